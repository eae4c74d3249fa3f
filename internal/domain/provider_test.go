package domain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jan-server/services/query-tools/internal/domain/indicator"
	"jan-server/services/query-tools/internal/domain/query"
	"jan-server/services/query-tools/internal/domain/schema"
	"jan-server/services/query-tools/internal/domain/store"
)

type stubExecutor struct{}

func (stubExecutor) RunRead(context.Context, string, map[string]any) (*store.Rows, error) {
	return &store.Rows{}, nil
}

func (stubExecutor) RunWrite(context.Context, string, map[string]any) (*store.Effects, error) {
	return &store.Effects{}, nil
}

type stubFetcher struct{}

func (stubFetcher) Fetch(context.Context, bool) (*schema.Snapshot, error) {
	return &schema.Snapshot{}, nil
}

type stubPrices struct{}

func (stubPrices) Closes(context.Context, string, int) ([]indicator.PricePoint, error) {
	return nil, nil
}

func toolNames(t *testing.T, cfg ToolsConfig) []string {
	t.Helper()
	classifier, err := query.NewClassifier(query.DialectSQL)
	require.NoError(t, err)
	registry, err := ProvideRegistry(stubExecutor{}, stubFetcher{}, classifier, stubPrices{}, nil, cfg)
	require.NoError(t, err)

	var names []string
	for _, d := range registry.Descriptors() {
		names = append(names, d.Name)
	}
	return names
}

func TestProvideRegistry(t *testing.T) {
	assert.Equal(t, []string{"fetch_schema", "run_read_query", "run_write_query"}, toolNames(t, ToolsConfig{}))
	assert.Equal(t, []string{"fetch_schema", "run_read_query", "run_write_query", "calculate_indicator"},
		toolNames(t, ToolsConfig{Indicators: true}))
}
