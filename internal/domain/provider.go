package domain

import (
	"github.com/google/wire"
	"github.com/rs/zerolog/log"

	"jan-server/services/query-tools/internal/domain/indicator"
	"jan-server/services/query-tools/internal/domain/query"
	"jan-server/services/query-tools/internal/domain/querytools"
	"jan-server/services/query-tools/internal/domain/store"
	"jan-server/services/query-tools/internal/domain/toolcall"
)

// ToolsConfig switches optional tools on.
type ToolsConfig struct {
	Indicators bool
}

// DomainProvider provides all domain services
var DomainProvider = wire.NewSet(
	ProvideRegistry,
)

// ProvideRegistry registers the query tools and, when enabled, the indicator tool.
func ProvideRegistry(
	executor store.Executor,
	fetcher querytools.SchemaFetcher,
	classifier *query.Classifier,
	prices indicator.PriceSource,
	observer toolcall.Observer,
	cfg ToolsConfig,
) (*toolcall.Registry, error) {
	registry := toolcall.NewRegistry(observer)
	for _, tool := range querytools.Tools(executor, fetcher, classifier) {
		if err := registry.Register(tool); err != nil {
			return nil, err
		}
	}
	if cfg.Indicators {
		if err := registry.Register(indicator.NewCalculateTool(prices)); err != nil {
			return nil, err
		}
	}

	names := make([]string, 0, len(registry.Descriptors()))
	for _, d := range registry.Descriptors() {
		names = append(names, d.Name)
	}
	log.Info().Strs("tools", names).Msg("Tool registry ready")
	return registry, nil
}
