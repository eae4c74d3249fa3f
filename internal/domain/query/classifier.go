package query

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Dialect names the query language whose mutation keywords the classifier looks for.
type Dialect string

const (
	DialectSQL    Dialect = "sql"
	DialectCypher Dialect = "cypher"
)

// Classification is the verdict of a lexical scan over query text.
type Classification int

const (
	Read Classification = iota
	Mutating
)

func (c Classification) String() string {
	if c == Mutating {
		return "mutating"
	}
	return "read"
}

var dialectKeywords = map[Dialect][]string{
	DialectSQL:    {"insert", "update", "delete", "create", "drop", "alter", "truncate", "merge", "grant", "revoke", "upsert", "replace"},
	DialectCypher: {"create", "merge", "set", "delete", "detach", "remove", "drop"},
}

// ParseDialect resolves a configured dialect name.
func ParseDialect(raw string) (Dialect, error) {
	d := Dialect(strings.ToLower(strings.TrimSpace(raw)))
	if d == "" {
		return DialectSQL, nil
	}
	if _, ok := dialectKeywords[d]; !ok {
		return "", fmt.Errorf("unsupported query dialect %q", raw)
	}
	return d, nil
}

// Classifier flags query text as mutating when any mutation keyword of its dialect
// appears as a whole word, ignoring case.
//
// The scan is lexical. A keyword inside a string literal or a comment still marks
// the query as mutating, so `SELECT 'please delete me'` is rejected by read-only
// tools. Words that merely contain a keyword, such as created_at or updates, do not match.
type Classifier struct {
	dialect  Dialect
	keywords []string
	pattern  *regexp.Regexp
}

// NewClassifier builds a classifier for the given dialect.
func NewClassifier(dialect Dialect) (*Classifier, error) {
	keywords, ok := dialectKeywords[dialect]
	if !ok {
		return nil, fmt.Errorf("unsupported query dialect %q", dialect)
	}
	quoted := make([]string, len(keywords))
	for i, kw := range keywords {
		quoted[i] = regexp.QuoteMeta(kw)
	}
	// \b treats '_' as a word character, so created_at stays a single word.
	pattern := regexp.MustCompile(`(?i)\b(` + strings.Join(quoted, "|") + `)\b`)
	return &Classifier{dialect: dialect, keywords: keywords, pattern: pattern}, nil
}

// Dialect returns the dialect the classifier was built for.
func (c *Classifier) Dialect() Dialect {
	return c.dialect
}

// MutationKeywords lists the keywords that make a query mutating.
func (c *Classifier) MutationKeywords() []string {
	out := make([]string, len(c.keywords))
	copy(out, c.keywords)
	return out
}

// Classify returns Mutating if the text contains any mutation keyword.
func (c *Classifier) Classify(text string) Classification {
	if c.pattern.MatchString(text) {
		return Mutating
	}
	return Read
}

// Keywords returns the distinct mutation keywords found in text, lower-cased and sorted.
func (c *Classifier) Keywords(text string) []string {
	matches := c.pattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		kw := strings.ToLower(m)
		if _, ok := seen[kw]; ok {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
	}
	sort.Strings(out)
	return out
}
