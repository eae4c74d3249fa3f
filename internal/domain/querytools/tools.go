// Package querytools implements the schema and query tools exposed to callers.
package querytools

import (
	"context"
	"fmt"
	"strings"

	"jan-server/services/query-tools/internal/domain/normalize"
	"jan-server/services/query-tools/internal/domain/query"
	"jan-server/services/query-tools/internal/domain/schema"
	"jan-server/services/query-tools/internal/domain/store"
	"jan-server/services/query-tools/internal/domain/toolcall"
	"jan-server/services/query-tools/utils/platformerrors"
)

const (
	FetchSchemaName   = "fetch_schema"
	RunReadQueryName  = "run_read_query"
	RunWriteQueryName = "run_write_query"

	fetchSchemaHint = "call fetch_schema first to verify entity and field names, then retry"
)

// SchemaFetcher returns the current schema snapshot.
type SchemaFetcher interface {
	Fetch(ctx context.Context, refresh bool) (*schema.Snapshot, error)
}

// Tools builds the three query tools over a shared executor.
func Tools(executor store.Executor, fetcher SchemaFetcher, classifier *query.Classifier) []toolcall.Tool {
	return []toolcall.Tool{
		&FetchSchemaTool{fetcher: fetcher},
		&ReadQueryTool{executor: executor, fetcher: fetcher, classifier: classifier},
		&WriteQueryTool{executor: executor, fetcher: fetcher, classifier: classifier},
	}
}

// FetchSchemaTool returns the store's entities, fields and relations.
type FetchSchemaTool struct {
	fetcher SchemaFetcher
}

func (t *FetchSchemaTool) Descriptor() toolcall.Descriptor {
	return toolcall.Descriptor{
		Name: FetchSchemaName,
		Description: "Describe the database: every table and view with its columns, types and nullability, " +
			"plus foreign-key relations. Call this before writing queries so names match the schema.",
		Params: []toolcall.Param{
			{Name: "refresh", Type: toolcall.TypeBoolean, Description: "Bypass any cached schema and introspect again."},
		},
		ReadOnly: true,
	}
}

func (t *FetchSchemaTool) Call(ctx context.Context, args toolcall.Arguments) (string, error) {
	snap, err := t.fetcher.Fetch(ctx, args.Bool("refresh"))
	if err != nil {
		return "", err
	}
	return normalize.JSON(snap)
}

// ReadQueryTool runs queries that the classifier considers read-only.
type ReadQueryTool struct {
	executor   store.Executor
	fetcher    SchemaFetcher
	classifier *query.Classifier
}

func (t *ReadQueryTool) Descriptor() toolcall.Descriptor {
	return toolcall.Descriptor{
		Name: RunReadQueryName,
		Description: fmt.Sprintf("Run a read-only %s query and return the rows as a JSON list. "+
			"Queries containing mutation keywords (%s) are rejected, even inside string literals; use %s for changes. "+
			"Call %s first if you are unsure of table or column names.",
			t.classifier.Dialect(), strings.Join(t.classifier.MutationKeywords(), ", "), RunWriteQueryName, FetchSchemaName),
		Params:   queryParams(),
		ReadOnly: true,
	}
}

func (t *ReadQueryTool) Call(ctx context.Context, args toolcall.Arguments) (string, error) {
	text, err := queryText(ctx, args)
	if err != nil {
		return "", err
	}
	if t.classifier.Classify(text) == query.Mutating {
		return "", platformerrors.NewErrorWithContext(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			fmt.Sprintf("%s only accepts read queries; found mutation keyword(s) %v. Use %s to change data",
				RunReadQueryName, t.classifier.Keywords(text), RunWriteQueryName), nil,
			map[string]any{"query": text})
	}
	if err := checkSchema(ctx, args, text, t.fetcher, t.classifier.Dialect()); err != nil {
		return "", err
	}
	params := args.Object("params")

	rows, err := t.executor.RunRead(ctx, text, params)
	if err != nil {
		return "", withHint(ctx, err, RunReadQueryName)
	}
	return normalize.JSON(normalize.Rows(rows.Columns, rows.Values))
}

// WriteQueryTool runs queries that the classifier considers mutating.
type WriteQueryTool struct {
	executor   store.Executor
	fetcher    SchemaFetcher
	classifier *query.Classifier
}

func (t *WriteQueryTool) Descriptor() toolcall.Descriptor {
	return toolcall.Descriptor{
		Name: RunWriteQueryName,
		Description: fmt.Sprintf("Run a %s statement that changes data or schema inside its own transaction and "+
			"return a summary of its effects (rows created, updated, deleted, schema changes). "+
			"The statement must contain a mutation keyword (%s); use %s for reads.",
			t.classifier.Dialect(), strings.Join(t.classifier.MutationKeywords(), ", "), RunReadQueryName),
		Params: queryParams(),
	}
}

func (t *WriteQueryTool) Call(ctx context.Context, args toolcall.Arguments) (string, error) {
	text, err := queryText(ctx, args)
	if err != nil {
		return "", err
	}
	if t.classifier.Classify(text) == query.Read {
		return "", platformerrors.NewErrorWithContext(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			fmt.Sprintf("%s requires a mutating statement; use %s for queries that only read", RunWriteQueryName, RunReadQueryName), nil,
			map[string]any{"query": text})
	}
	if err := checkSchema(ctx, args, text, t.fetcher, t.classifier.Dialect()); err != nil {
		return "", err
	}
	params := args.Object("params")

	effects, err := t.executor.RunWrite(ctx, text, params)
	if err != nil {
		return "", withHint(ctx, err, RunWriteQueryName)
	}
	return normalize.JSON(effects)
}

func queryParams() []toolcall.Param {
	return []toolcall.Param{
		{Name: "query", Type: toolcall.TypeString, Required: true, Description: "Query text. Reference parameters as @name."},
		{Name: "params", Type: toolcall.TypeObject, Description: "Named parameter values bound to @name placeholders."},
		{Name: "validate", Type: toolcall.TypeBoolean, Description: "Check entity and field names against the current schema before running."},
	}
}

func queryText(ctx context.Context, args toolcall.Arguments) (string, error) {
	text := strings.TrimSpace(args.String("query"))
	if text == "" {
		return "", platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "query must not be empty", nil)
	}
	return text, nil
}

// checkSchema runs the optional schema check. It must follow mode classification:
// a wrong-mode query never reaches the store, not even for introspection.
func checkSchema(ctx context.Context, args toolcall.Arguments, text string, fetcher SchemaFetcher, dialect query.Dialect) error {
	if !args.Bool("validate") {
		return nil
	}
	snap, err := fetcher.Fetch(ctx, false)
	if err != nil {
		return err
	}
	return schema.Validate(ctx, text, snap, dialect)
}

func withHint(ctx context.Context, err error, tool string) error {
	perr := platformerrors.AsError(ctx, platformerrors.LayerDomain, err, tool+" failed")
	if perr.Type == platformerrors.ErrorTypeExecution {
		perr.Context["hint"] = fetchSchemaHint
	}
	return perr
}
