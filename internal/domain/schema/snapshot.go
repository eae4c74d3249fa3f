package schema

import (
	"sort"
	"strings"
	"time"
)

// Snapshot is a point-in-time description of the store's entities and relations.
type Snapshot struct {
	Entities  map[string]Entity `json:"entities"`
	Relations []Relation        `json:"relations"`
	FetchedAt time.Time         `json:"fetched_at"`
}

// Entity is a table, view or node label.
type Entity struct {
	Kind   string           `json:"kind"`
	Fields map[string]Field `json:"fields"`
}

// Field describes one column or property.
type Field struct {
	Type     string  `json:"type"`
	Nullable bool    `json:"nullable"`
	Default  *string `json:"default,omitempty"`
}

// Relation is a foreign key or relationship type between two entities.
type Relation struct {
	Name       string   `json:"name"`
	From       string   `json:"from"`
	FromFields []string `json:"from_fields"`
	To         string   `json:"to"`
	ToFields   []string `json:"to_fields"`
}

// EntityNames returns entity names sorted.
func (s *Snapshot) EntityNames() []string {
	names := make([]string, 0, len(s.Entities))
	for name := range s.Entities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FieldNames returns the union of field names across all entities, sorted.
func (s *Snapshot) FieldNames() []string {
	seen := make(map[string]struct{})
	for _, e := range s.Entities {
		for f := range e.Fields {
			seen[f] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for f := range seen {
		names = append(names, f)
	}
	sort.Strings(names)
	return names
}

// HasEntity reports whether name matches an entity, ignoring case.
func (s *Snapshot) HasEntity(name string) bool {
	if _, ok := s.Entities[name]; ok {
		return true
	}
	for e := range s.Entities {
		if strings.EqualFold(e, name) {
			return true
		}
	}
	return false
}

// HasField reports whether any entity has a field with the given name, ignoring case.
func (s *Snapshot) HasField(name string) bool {
	for _, e := range s.Entities {
		if _, ok := e.Fields[name]; ok {
			return true
		}
		for f := range e.Fields {
			if strings.EqualFold(f, name) {
				return true
			}
		}
	}
	return false
}
