package schema_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jan-server/services/query-tools/internal/domain/query"
	"jan-server/services/query-tools/internal/domain/schema"
	"jan-server/services/query-tools/utils/platformerrors"
)

func shopSnapshot() *schema.Snapshot {
	return &schema.Snapshot{
		Entities: map[string]schema.Entity{
			"users": {Kind: "table", Fields: map[string]schema.Field{
				"id": {Type: "bigint"}, "name": {Type: "text"}, "created_at": {Type: "timestamptz"},
			}},
			"orders": {Kind: "table", Fields: map[string]schema.Field{
				"id": {Type: "bigint"}, "user_id": {Type: "bigint"}, "total": {Type: "numeric"},
			}},
			"sales.invoices": {Kind: "table", Fields: map[string]schema.Field{
				"id": {Type: "uuid"},
			}},
		},
		Relations: []schema.Relation{{Name: "orders_user_id_fkey", From: "orders", FromFields: []string{"user_id"}, To: "users", ToFields: []string{"id"}}},
	}
}

func TestCheckSQL(t *testing.T) {
	snap := shopSnapshot()

	tests := []struct {
		name     string
		query    string
		entities []string
		fields   []string
	}{
		{"valid join", "SELECT u.name, o.total FROM users u JOIN orders o ON o.user_id = u.id", nil, nil},
		{"qualified public", "SELECT * FROM public.users", nil, nil},
		{"qualified other schema", "SELECT * FROM sales.invoices", nil, nil},
		{"unknown table", "SELECT * FROM customers", []string{"customers"}, nil},
		{"unknown field", "SELECT u.email FROM users u", nil, []string{"u.email"}},
		{"insert with column list", "INSERT INTO users (name) VALUES ('x')", nil, nil},
		{"table function", "SELECT * FROM generate_series(1, 3)", nil, nil},
		{"cte", "WITH recent AS (SELECT * FROM orders) SELECT * FROM recent", nil, nil},
		{"extract from field", "SELECT extract(year FROM created_at) FROM users", nil, nil},
		{"string literal ignored", "SELECT * FROM users WHERE name = 'from nowhere.col'", nil, nil},
		{"upsert", "INSERT INTO users (id) VALUES (1) ON CONFLICT (id) DO UPDATE SET name = 'a'", nil, nil},
		{"quoted identifier", `SELECT * FROM "users"`, nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := schema.Check(tt.query, snap, query.DialectSQL)
			assert.Equal(t, tt.entities, m.Entities)
			assert.Equal(t, tt.fields, m.Fields)
		})
	}
}

func TestCheckCypher(t *testing.T) {
	snap := &schema.Snapshot{
		Entities: map[string]schema.Entity{
			"Person": {Kind: "label", Fields: map[string]schema.Field{"name": {Type: "STRING"}}},
		},
		Relations: []schema.Relation{{Name: "KNOWS", From: "Person", To: "Person"}},
	}

	m := schema.Check("MATCH (p:Person)-[:KNOWS]->(f:Person) RETURN f.name", snap, query.DialectCypher)
	assert.Empty(t, m.Entities)
	assert.Empty(t, m.Fields)

	m = schema.Check("MATCH (p:Company)-[:OWNS|KNOWS]->(x) RETURN p.revenue // note: x.y", snap, query.DialectCypher)
	assert.Equal(t, []string{"Company", "OWNS"}, m.Entities)
	assert.Equal(t, []string{"p.revenue"}, m.Fields)

	m = schema.Check("MATCH (n) RETURN count(n)", snap, query.DialectCypher)
	assert.Empty(t, m.Entities)
}

func TestValidateReturnsSchemaMismatch(t *testing.T) {
	err := schema.Validate(context.Background(), "SELECT c.vip FROM customers c", shopSnapshot(), query.DialectSQL)
	require.Error(t, err)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeSchemaMismatch))
	assert.Contains(t, err.Error(), "customers")
	assert.Contains(t, err.Error(), "c.vip")
	assert.Contains(t, err.Error(), "valid entities: [orders sales.invoices users]")

	assert.NoError(t, schema.Validate(context.Background(), "SELECT id FROM users", shopSnapshot(), query.DialectSQL))
	assert.NoError(t, schema.Validate(context.Background(), "SELECT * FROM anything", nil, query.DialectSQL))
}

type introspectorFunc func(ctx context.Context) (*schema.Snapshot, error)

func (f introspectorFunc) Introspect(ctx context.Context) (*schema.Snapshot, error) { return f(ctx) }

type mapCache struct {
	mu    sync.Mutex
	items map[string]*schema.Snapshot
	ttls  map[string]time.Duration
}

func newMapCache() *mapCache {
	return &mapCache{items: map[string]*schema.Snapshot{}, ttls: map[string]time.Duration{}}
}

func (c *mapCache) Get(_ context.Context, key string) (*schema.Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.items[key]
	return s, ok
}

func (c *mapCache) Set(_ context.Context, key string, snap *schema.Snapshot, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = snap
	c.ttls[key] = ttl
}

func TestServiceWithoutTTLAlwaysIntrospects(t *testing.T) {
	var calls atomic.Int32
	intro := introspectorFunc(func(ctx context.Context) (*schema.Snapshot, error) {
		calls.Add(1)
		return shopSnapshot(), nil
	})
	cache := newMapCache()
	svc := schema.NewService(intro, cache, 0, "db")

	for i := 0; i < 3; i++ {
		_, err := svc.Fetch(context.Background(), false)
		require.NoError(t, err)
	}
	assert.EqualValues(t, 3, calls.Load())
	assert.Empty(t, cache.items)
}

func TestServiceCachesWithTTL(t *testing.T) {
	var calls atomic.Int32
	intro := introspectorFunc(func(ctx context.Context) (*schema.Snapshot, error) {
		calls.Add(1)
		return shopSnapshot(), nil
	})
	cache := newMapCache()
	svc := schema.NewService(intro, cache, time.Minute, "db")

	_, err := svc.Fetch(context.Background(), false)
	require.NoError(t, err)
	_, err = svc.Fetch(context.Background(), false)
	require.NoError(t, err)
	assert.EqualValues(t, 1, calls.Load())
	assert.Equal(t, time.Minute, cache.ttls["schema:db"])

	_, err = svc.Fetch(context.Background(), true)
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load())
}

func TestServicePropagatesUnavailable(t *testing.T) {
	unavailable := platformerrors.NewError(context.Background(), platformerrors.LayerInfrastructure, platformerrors.ErrorTypeSchemaUnavailable, "no catalog access", errors.New("permission denied"))
	svc := schema.NewService(introspectorFunc(func(ctx context.Context) (*schema.Snapshot, error) {
		return nil, unavailable
	}), nil, time.Minute, "db")

	_, err := svc.Fetch(context.Background(), false)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeSchemaUnavailable))
}
