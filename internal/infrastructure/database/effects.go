package database

import (
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"jan-server/services/query-tools/internal/domain/store"
)

var schemaStatements = []string{"CREATE", "ALTER", "DROP", "COMMENT", "GRANT", "REVOKE"}

func effectsFromTag(tag pgconn.CommandTag) *store.Effects {
	n := tag.RowsAffected()
	effects := &store.Effects{Statement: tag.String(), RowsAffected: n}

	switch {
	case tag.Insert():
		effects.RowsCreated = n
	case tag.Update():
		effects.RowsUpdated = n
	case tag.Delete():
		effects.RowsDeleted = n
	case tag.Select():
		effects.RowsReturned = n
	}

	verb, _, _ := strings.Cut(tag.String(), " ")
	for _, s := range schemaStatements {
		if strings.EqualFold(verb, s) {
			effects.SchemaChanged = true
			break
		}
	}
	return effects
}
