package database

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes raised when the role or server lacks what introspection needs.
var capabilityCodes = map[string]struct{}{
	"42501": {}, // insufficient_privilege
	"42P01": {}, // undefined_table
	"3F000": {}, // invalid_schema_name
	"42883": {}, // undefined_function
	"0A000": {}, // feature_not_supported
}

func capabilityMissing(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	_, ok := capabilityCodes[pgErr.Code]
	return ok
}

func describeError(err error) map[string]any {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return nil
	}
	fields := map[string]any{"sqlstate": pgErr.Code}
	if pgErr.Detail != "" {
		fields["detail"] = pgErr.Detail
	}
	if pgErr.Hint != "" {
		fields["store_hint"] = pgErr.Hint
	}
	return fields
}
