package schema

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"jan-server/services/query-tools/internal/domain/query"
	"jan-server/services/query-tools/utils/platformerrors"
)

var (
	singleQuoted  = regexp.MustCompile(`'(?:[^']|'')*'`)
	doubleQuoted  = regexp.MustCompile(`"(?:[^"\\]|\\.)*"`)
	sqlComment    = regexp.MustCompile(`(?m)--.*$`)
	cypherComment = regexp.MustCompile(`(?m)//.*$`)
	blockComment  = regexp.MustCompile(`(?s)/\*.*?\*/`)

	sqlEntityRef = regexp.MustCompile(`(?i)\b(from|join|into|update|(?:alter|truncate)\s+table)\s+(?:only\s+)?("?[A-Za-z_][\w$]*"?(?:\."?[A-Za-z_][\w$]*"?)?)`)
	sqlCTEName   = regexp.MustCompile(`(?i)(?:\bwith\s+(?:recursive\s+)?|,\s*)([A-Za-z_]\w*)\s+as\s*\(`)

	cypherNodeLabels = regexp.MustCompile(`\(\s*[A-Za-z_]?\w*\s*((?::\s*[A-Za-z_]\w*\s*)+)`)
	cypherRelTypes   = regexp.MustCompile(`\[\s*[A-Za-z_]?\w*\s*:\s*([A-Za-z_]\w*(?:\s*\|\s*:?\s*[A-Za-z_]\w*)*)`)

	fieldAccess = regexp.MustCompile(`\b([A-Za-z_]\w*)\.([A-Za-z_]\w*)\b`)
)

// sqlReserved holds words that can follow FROM/UPDATE without naming a relation,
// e.g. ON CONFLICT DO UPDATE SET.
var sqlReserved = map[string]struct{}{
	"set": {}, "select": {}, "lateral": {}, "values": {}, "unnest": {},
}

// Mismatch lists the tokens a query references that the snapshot does not know.
type Mismatch struct {
	Entities []string
	Fields   []string
}

// Check extracts entity and field references from text and returns the ones missing
// from the snapshot. It is a lexical heuristic: functions, aliases and derived
// tables are skipped where they can be recognised, and anything else is reported.
func Check(text string, snap *Snapshot, dialect query.Dialect) Mismatch {
	cleaned := strip(text, dialect)

	var entities, fields []string
	switch dialect {
	case query.DialectCypher:
		entities = cypherEntities(cleaned, snap)
	default:
		entities = sqlEntities(cleaned, snap)
	}
	fields = unknownFields(cleaned, snap)

	return Mismatch{Entities: dedupe(entities), Fields: dedupe(fields)}
}

// Validate runs Check and returns a SCHEMA_MISMATCH error naming offending tokens and
// the valid sets. A nil snapshot validates nothing.
func Validate(ctx context.Context, text string, snap *Snapshot, dialect query.Dialect) error {
	if snap == nil {
		return nil
	}
	m := Check(text, snap, dialect)
	if len(m.Entities) == 0 && len(m.Fields) == 0 {
		return nil
	}

	var parts []string
	if len(m.Entities) > 0 {
		parts = append(parts, fmt.Sprintf("unknown entities %v (valid entities: %v)", m.Entities, snap.EntityNames()))
	}
	if len(m.Fields) > 0 {
		parts = append(parts, fmt.Sprintf("unknown fields %v (valid fields: %v)", m.Fields, snap.FieldNames()))
	}

	return platformerrors.NewErrorWithContext(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeSchemaMismatch,
		"query does not match the current schema: "+strings.Join(parts, "; "), nil,
		map[string]any{
			"unknown_entities": m.Entities,
			"unknown_fields":   m.Fields,
		})
}

func strip(text string, dialect query.Dialect) string {
	text = blockComment.ReplaceAllString(text, " ")
	text = singleQuoted.ReplaceAllString(text, "''")
	if dialect == query.DialectCypher {
		text = doubleQuoted.ReplaceAllString(text, "''")
		return cypherComment.ReplaceAllString(text, "")
	}
	return sqlComment.ReplaceAllString(text, "")
}

func sqlEntities(text string, snap *Snapshot) []string {
	ctes := make(map[string]struct{})
	for _, m := range sqlCTEName.FindAllStringSubmatch(text, -1) {
		ctes[strings.ToLower(m[1])] = struct{}{}
	}

	var unknown []string
	for _, idx := range sqlEntityRef.FindAllStringSubmatchIndex(text, -1) {
		keyword := strings.ToLower(text[idx[2]:idx[3]])
		token := text[idx[4]:idx[5]]
		if (keyword == "from" || keyword == "join") && strings.HasPrefix(strings.TrimSpace(text[idx[5]:]), "(") {
			// table function such as generate_series(...)
			continue
		}
		name := strings.ReplaceAll(token, `"`, "")
		if _, ok := sqlReserved[strings.ToLower(name)]; ok {
			continue
		}
		if _, ok := ctes[strings.ToLower(name)]; ok {
			continue
		}
		if knownEntity(snap, name) || snap.HasField(name) {
			// a field after FROM comes from EXTRACT(part FROM field) and similar
			continue
		}
		unknown = append(unknown, name)
	}
	return unknown
}

func knownEntity(snap *Snapshot, name string) bool {
	if snap.HasEntity(name) {
		return true
	}
	if schemaName, table, ok := strings.Cut(name, "."); ok && strings.EqualFold(schemaName, "public") {
		return snap.HasEntity(table)
	}
	return false
}

func cypherEntities(text string, snap *Snapshot) []string {
	var unknown []string
	for _, m := range cypherNodeLabels.FindAllStringSubmatch(text, -1) {
		for _, label := range strings.Split(m[1], ":") {
			label = strings.TrimSpace(label)
			if label != "" && !snap.HasEntity(label) {
				unknown = append(unknown, label)
			}
		}
	}
	for _, m := range cypherRelTypes.FindAllStringSubmatch(text, -1) {
		for _, rel := range strings.Split(m[1], "|") {
			rel = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(rel), ":"))
			if rel != "" && !hasRelation(snap, rel) {
				unknown = append(unknown, rel)
			}
		}
	}
	return unknown
}

func hasRelation(snap *Snapshot, name string) bool {
	for _, r := range snap.Relations {
		if strings.EqualFold(r.Name, name) {
			return true
		}
	}
	return false
}

func unknownFields(text string, snap *Snapshot) []string {
	var unknown []string
	for _, m := range fieldAccess.FindAllStringSubmatch(text, -1) {
		owner, field := m[1], m[2]
		if knownEntity(snap, owner+"."+field) || snap.HasEntity(field) {
			continue
		}
		if snap.HasField(field) {
			continue
		}
		unknown = append(unknown, owner+"."+field)
	}
	return unknown
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
