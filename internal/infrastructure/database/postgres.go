package database

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"jan-server/services/query-tools/internal/domain/schema"
	"jan-server/services/query-tools/internal/domain/store"
)

// PoolConfig holds pgx pool settings.
type PoolConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	ConnectTimeout  time.Duration
}

// NewPostgresOpener returns an Opener that builds a pgx pool and verifies it with a ping.
func NewPostgresOpener(cfg PoolConfig) Opener {
	return func(ctx context.Context) (Handle, error) {
		poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("parse database url: %w", err)
		}
		if cfg.MaxConns > 0 {
			poolCfg.MaxConns = cfg.MaxConns
		}
		if cfg.MinConns > 0 {
			poolCfg.MinConns = cfg.MinConns
		}
		if cfg.MaxConnLifetime > 0 {
			poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
		}
		if cfg.ConnectTimeout > 0 {
			poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
			defer cancel()
		}

		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, fmt.Errorf("create pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}
		return &postgresHandle{pool: pool}, nil
	}
}

// Identity renders host, port and database from a DSN, dropping credentials.
func Identity(dsn string) string {
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return "postgres"
	}
	return fmt.Sprintf("postgres://%s/%s", net.JoinHostPort(cfg.Host, strconv.Itoa(int(cfg.Port))), cfg.Database)
}

type postgresHandle struct {
	pool *pgxpool.Pool

	ormOnce sync.Once
	orm     *gorm.DB
	ormErr  error
}

func (h *postgresHandle) Read(ctx context.Context, query string, params map[string]any) (*store.Rows, error) {
	tx, err := h.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, query, bindArgs(params)...)
	if err != nil {
		return nil, err
	}
	result, err := collect(rows)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return result, nil
}

func (h *postgresHandle) Write(ctx context.Context, query string, params map[string]any) (*store.Effects, error) {
	tx, err := h.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadWrite})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, query, bindArgs(params)...)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return effectsFromTag(tag), nil
}

func (h *postgresHandle) Ping(ctx context.Context) error {
	return h.pool.Ping(ctx)
}

func (h *postgresHandle) Close() {
	if h.orm != nil {
		if sqlDB, err := h.orm.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	h.pool.Close()
}

// ORM opens a gorm session over the shared pool on first use.
func (h *postgresHandle) ORM() (*gorm.DB, error) {
	h.ormOnce.Do(func() {
		sqlDB := stdlib.OpenDBFromPool(h.pool)
		h.orm, h.ormErr = gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		})
	})
	return h.orm, h.ormErr
}

func collect(rows pgx.Rows) (*store.Rows, error) {
	defer rows.Close()

	fields := rows.FieldDescriptions()
	out := &store.Rows{Columns: make([]string, len(fields))}
	for i, f := range fields {
		out.Columns[i] = f.Name
	}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		out.Values = append(out.Values, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// bindArgs maps named parameters onto @name placeholders. Keys that are all
// positive integers bind positionally to $1..$n instead.
func bindArgs(params map[string]any) []any {
	if len(params) == 0 {
		return nil
	}
	named := make(pgx.NamedArgs, len(params))
	for key, v := range params {
		named[key] = bindValue(v)
	}
	positional := make([]any, len(params))
	for key, v := range named {
		n, err := strconv.Atoi(key)
		if err != nil || n < 1 || n > len(params) {
			return []any{named}
		}
		positional[n-1] = v
	}
	return positional
}

// bindValue turns decoded JSON numbers into int64, or float64 when they are not
// integral, so pgx can encode them.
func bindValue(v any) any {
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = bindValue(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = bindValue(e)
		}
		return out
	}
	return v
}

const introspectColumnsSQL = `
SELECT c.table_schema::text, c.table_name::text, t.table_type::text, c.column_name::text,
       c.data_type::text, c.is_nullable = 'YES', c.column_default::text
FROM information_schema.columns c
JOIN information_schema.tables t
  ON t.table_schema = c.table_schema AND t.table_name = c.table_name
WHERE c.table_schema NOT IN ('pg_catalog', 'information_schema')
  AND c.table_schema NOT LIKE 'pg_toast%'
ORDER BY c.table_schema, c.table_name, c.ordinal_position`

const introspectRelationsSQL = `
SELECT con.conname::text,
       src_ns.nspname::text, src.relname::text,
       ARRAY(SELECT a.attname::text FROM unnest(con.conkey) WITH ORDINALITY k(attnum, ord)
             JOIN pg_attribute a ON a.attrelid = con.conrelid AND a.attnum = k.attnum ORDER BY k.ord),
       dst_ns.nspname::text, dst.relname::text,
       ARRAY(SELECT a.attname::text FROM unnest(con.confkey) WITH ORDINALITY k(attnum, ord)
             JOIN pg_attribute a ON a.attrelid = con.confrelid AND a.attnum = k.attnum ORDER BY k.ord)
FROM pg_constraint con
JOIN pg_class src ON src.oid = con.conrelid
JOIN pg_namespace src_ns ON src_ns.oid = src.relnamespace
JOIN pg_class dst ON dst.oid = con.confrelid
JOIN pg_namespace dst_ns ON dst_ns.oid = dst.relnamespace
WHERE con.contype = 'f'
  AND src_ns.nspname NOT IN ('pg_catalog', 'information_schema')
ORDER BY con.conname`

func (h *postgresHandle) Introspect(ctx context.Context) (*schema.Snapshot, error) {
	tx, err := h.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	snap := &schema.Snapshot{Entities: map[string]schema.Entity{}, Relations: []schema.Relation{}}

	rows, err := tx.Query(ctx, introspectColumnsSQL)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var (
			tableSchema, tableName, tableType, column, dataType string
			nullable                                            bool
			def                                                 *string
		)
		if err := rows.Scan(&tableSchema, &tableName, &tableType, &column, &dataType, &nullable, &def); err != nil {
			rows.Close()
			return nil, err
		}
		name := entityName(tableSchema, tableName)
		entity, ok := snap.Entities[name]
		if !ok {
			entity = schema.Entity{Kind: entityKind(tableType), Fields: map[string]schema.Field{}}
		}
		entity.Fields[column] = schema.Field{Type: dataType, Nullable: nullable, Default: def}
		snap.Entities[name] = entity
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = tx.Query(ctx, introspectRelationsSQL)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var (
			rel                    schema.Relation
			srcSchema, srcTable    string
			dstSchema, dstTable    string
			srcColumns, dstColumns []string
		)
		if err := rows.Scan(&rel.Name, &srcSchema, &srcTable, &srcColumns, &dstSchema, &dstTable, &dstColumns); err != nil {
			rows.Close()
			return nil, err
		}
		rel.From, rel.FromFields = entityName(srcSchema, srcTable), srcColumns
		rel.To, rel.ToFields = entityName(dstSchema, dstTable), dstColumns
		snap.Relations = append(snap.Relations, rel)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	snap.FetchedAt = time.Now().UTC()
	return snap, nil
}

func entityName(schemaName, table string) string {
	if schemaName == "public" {
		return table
	}
	return schemaName + "." + table
}

func entityKind(tableType string) string {
	switch tableType {
	case "VIEW":
		return "view"
	case "FOREIGN":
		return "foreign_table"
	default:
		return "table"
	}
}
