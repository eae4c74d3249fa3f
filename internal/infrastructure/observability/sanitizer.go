package observability

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
)

// StatementLevel controls how much query text reaches span attributes.
type StatementLevel string

const (
	// StatementLevelNone records no query text
	StatementLevelNone StatementLevel = "none"
	// StatementLevelHashed replaces literals that look like personal data with salted hashes
	StatementLevelHashed StatementLevel = "hashed"
	// StatementLevelFull records the query as sent
	StatementLevelFull StatementLevel = "full"
)

// Sanitizer scrubs query text before it is attached to spans.
type Sanitizer struct {
	level StatementLevel
	salt  string

	emailPattern      *regexp.Regexp
	phonePattern      *regexp.Regexp
	creditCardPattern *regexp.Regexp
	ipv4Pattern       *regexp.Regexp
}

// NewSanitizer creates a sanitizer. Unknown levels behave as hashed.
func NewSanitizer(level StatementLevel, salt string) *Sanitizer {
	return &Sanitizer{
		level:             level,
		salt:              salt,
		emailPattern:      regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`),
		phonePattern:      regexp.MustCompile(`\b\d{3}[-.\s]?\d{3}[-.\s]?\d{4}\b`),
		creditCardPattern: regexp.MustCompile(`\b\d{4}[- ]?\d{4}[- ]?\d{4}[- ]?\d{4}\b`),
		ipv4Pattern:       regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`),
	}
}

// Statement returns query as it may be recorded.
func (s *Sanitizer) Statement(query string) string {
	switch s.level {
	case StatementLevelNone:
		return "[REDACTED]"
	case StatementLevelFull:
		return query
	default:
		return s.hashPII(query)
	}
}

func (s *Sanitizer) hashPII(input string) string {
	// cards before phones: a card number contains phone-shaped runs
	result := s.creditCardPattern.ReplaceAllString(input, "[CC:REDACTED]")
	result = s.emailPattern.ReplaceAllStringFunc(result, func(match string) string {
		return fmt.Sprintf("[EMAIL:%s]", s.hash(match))
	})
	result = s.phonePattern.ReplaceAllStringFunc(result, func(match string) string {
		return fmt.Sprintf("[PHONE:%s]", s.hash(match))
	})
	result = s.ipv4Pattern.ReplaceAllStringFunc(result, func(match string) string {
		return fmt.Sprintf("[IP:%s]", s.hash(match))
	})
	return result
}

func (s *Sanitizer) hash(data string) string {
	h := sha256.Sum256([]byte(data + s.salt))
	return hex.EncodeToString(h[:])[:8]
}

var statementSanitizer atomic.Pointer[Sanitizer]

func init() {
	statementSanitizer.Store(NewSanitizer(StatementLevelHashed, ""))
}

// SetStatementSanitizer replaces the sanitizer used by StatementAttributes.
func SetStatementSanitizer(s *Sanitizer) {
	if s != nil {
		statementSanitizer.Store(s)
	}
}

// StatementAttributes describes a store call for a span. Parameter values are
// never recorded, only their names.
func StatementAttributes(operation, query string, params map[string]any) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", operation),
	}
	if query != "" {
		attrs = append(attrs, attribute.String("db.statement", statementSanitizer.Load().Statement(query)))
	}
	if len(params) > 0 {
		names := make([]string, 0, len(params))
		for name := range params {
			names = append(names, name)
		}
		sort.Strings(names)
		attrs = append(attrs, attribute.String("db.parameters", strings.Join(names, ",")))
	}
	return attrs
}
