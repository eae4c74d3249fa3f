package infrastructure

import (
	"github.com/google/wire"
	"github.com/rs/zerolog/log"

	"jan-server/services/query-tools/internal/domain"
	"jan-server/services/query-tools/internal/domain/indicator"
	"jan-server/services/query-tools/internal/domain/query"
	"jan-server/services/query-tools/internal/domain/querytools"
	"jan-server/services/query-tools/internal/domain/schema"
	"jan-server/services/query-tools/internal/domain/store"
	"jan-server/services/query-tools/internal/domain/toolcall"
	"jan-server/services/query-tools/internal/infrastructure/config"
	"jan-server/services/query-tools/internal/infrastructure/database"
	"jan-server/services/query-tools/internal/infrastructure/metrics"
	"jan-server/services/query-tools/internal/infrastructure/pricefeed"
	"jan-server/services/query-tools/internal/infrastructure/schemacache"
)

// InfrastructureProvider provides all infrastructure dependencies
var InfrastructureProvider = wire.NewSet(
	// Config
	ProvideConfig,
	ProvideToolsConfig,

	// Backing store
	ProvideDatabaseManager,
	wire.Bind(new(store.Executor), new(*database.Manager)),

	// Schema
	ProvideSchemaCache,
	ProvideSchemaService,
	wire.Bind(new(querytools.SchemaFetcher), new(*schema.Service)),
	ProvideClassifier,

	// Domain tools
	ProvidePriceSource,

	// Metrics
	ProvideToolCallObserver,
)

// ProvideConfig loads and provides the application configuration
func ProvideConfig() (*config.Config, error) {
	return config.LoadConfig()
}

// ProvideToolsConfig selects the optional tools.
func ProvideToolsConfig(cfg *config.Config) domain.ToolsConfig {
	return domain.ToolsConfig{Indicators: cfg.IndicatorsEnabled}
}

// ProvideDatabaseManager provides the shared backing store handle. The
// connection is opened on first use, not here.
func ProvideDatabaseManager(cfg *config.Config) (*database.Manager, func()) {
	manager := database.NewManager(database.NewPostgresOpener(database.PoolConfig{
		DSN:             cfg.DatabaseURL,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		MaxConnLifetime: cfg.DBMaxConnLifetime,
		ConnectTimeout:  cfg.DBConnectTimeout,
	}), database.Identity(cfg.DatabaseURL), cfg.QueryTimeout)
	return manager, manager.Close
}

// ProvideSchemaCache provides the snapshot cache tier
func ProvideSchemaCache(cfg *config.Config, manager *database.Manager) (schema.Cache, func(), error) {
	if cfg.SchemaCacheTTL <= 0 {
		return schemacache.NoOpsCache{}, func() {}, nil
	}
	cache, err := schemacache.NewCache(schemacache.Config{
		Type:      cfg.SchemaCacheType,
		RedisURL:  cfg.SchemaCacheRedisURL,
		KeyPrefix: "query-tools:",
		MaxSize:   cfg.SchemaCacheSize,
	})
	if err != nil {
		return nil, nil, err
	}
	log.Info().
		Str("type", cfg.SchemaCacheType).
		Dur("ttl", cfg.SchemaCacheTTL).
		Str("store", manager.Identity()).
		Msg("Schema cache enabled")

	cleanup := func() {}
	if closer, ok := cache.(interface{ Close() error }); ok {
		cleanup = func() {
			if err := closer.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close schema cache")
			}
		}
	}
	return cache, cleanup, nil
}

// ProvideSchemaService provides schema introspection keyed by store identity
func ProvideSchemaService(manager *database.Manager, cache schema.Cache, cfg *config.Config) *schema.Service {
	return schema.NewService(manager, cache, cfg.SchemaCacheTTL, manager.Identity())
}

// ProvideClassifier provides the mutation classifier for the configured dialect
func ProvideClassifier(cfg *config.Config) (*query.Classifier, error) {
	dialect, err := query.ParseDialect(cfg.QueryDialect)
	if err != nil {
		return nil, err
	}
	return query.NewClassifier(dialect)
}

// ProvidePriceSource provides price history for the indicator tool
func ProvidePriceSource(manager *database.Manager, cfg *config.Config) (indicator.PriceSource, error) {
	repo, err := pricefeed.NewRepository(manager, cfg.PriceTable)
	if err != nil {
		return nil, err
	}
	return repo, nil
}

// ProvideToolCallObserver records tool call metrics
func ProvideToolCallObserver() toolcall.Observer {
	return metrics.NewToolCallObserver()
}
