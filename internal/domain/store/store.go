package store

import "context"

// Rows is the raw tabular output of a read query, in store-native value types.
type Rows struct {
	Columns []string
	Values  [][]any
}

// Effects summarises what a write query changed.
type Effects struct {
	Statement     string `json:"statement"`
	RowsCreated   int64  `json:"rows_created"`
	RowsUpdated   int64  `json:"rows_updated"`
	RowsDeleted   int64  `json:"rows_deleted"`
	RowsAffected  int64  `json:"rows_affected"`
	RowsReturned  int64  `json:"rows_returned"`
	SchemaChanged bool   `json:"schema_changed"`
}

// Executor runs queries against the shared backing-store handle.
type Executor interface {
	RunRead(ctx context.Context, query string, params map[string]any) (*Rows, error)
	RunWrite(ctx context.Context, query string, params map[string]any) (*Effects, error)
}

// Prober reports the store's reachability for health checks.
type Prober interface {
	Ping(ctx context.Context) error
	Identity() string
}
