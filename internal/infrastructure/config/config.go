package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Version is overridden at build time with -ldflags "-X jan-server/services/query-tools/internal/infrastructure/config.Version=<tag>".
var Version = "dev"

// Config holds all configuration for the query tools service
type Config struct {
	// HTTP Server - using QUERY_TOOLS_ prefix to avoid collisions
	HTTPPort  string `env:"QUERY_TOOLS_HTTP_PORT" envDefault:"8092"`
	LogLevel  string `env:"QUERY_TOOLS_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"QUERY_TOOLS_LOG_FORMAT" envDefault:"json"` // json or console

	// Backing store
	DatabaseURL         string        `env:"QUERY_TOOLS_DATABASE_URL,required"`
	DBMaxConns          int32         `env:"QUERY_TOOLS_DB_MAX_CONNS" envDefault:"10"`
	DBMinConns          int32         `env:"QUERY_TOOLS_DB_MIN_CONNS" envDefault:"0"`
	DBMaxConnLifetime   time.Duration `env:"QUERY_TOOLS_DB_MAX_CONN_LIFETIME" envDefault:"30m"`
	DBConnectTimeout    time.Duration `env:"QUERY_TOOLS_DB_CONNECT_TIMEOUT" envDefault:"10s"`
	QueryDialect        string        `env:"QUERY_TOOLS_QUERY_DIALECT" envDefault:"sql"`
	QueryTimeout        time.Duration `env:"QUERY_TOOLS_QUERY_TIMEOUT" envDefault:"30s"` // 0 disables
	HealthCheckTimeout  time.Duration `env:"QUERY_TOOLS_HEALTH_TIMEOUT" envDefault:"5s"`
	SchemaCacheTTL      time.Duration `env:"QUERY_TOOLS_SCHEMA_CACHE_TTL" envDefault:"0s"`      // 0 disables caching
	SchemaCacheType     string        `env:"QUERY_TOOLS_SCHEMA_CACHE_TYPE" envDefault:"memory"` // memory, redis or noop
	SchemaCacheRedisURL string        `env:"QUERY_TOOLS_SCHEMA_CACHE_REDIS_URL"`
	SchemaCacheSize     int           `env:"QUERY_TOOLS_SCHEMA_CACHE_SIZE" envDefault:"16"`

	// Domain tools
	IndicatorsEnabled bool   `env:"QUERY_TOOLS_INDICATORS_ENABLED" envDefault:"false"`
	PriceTable        string `env:"QUERY_TOOLS_PRICE_TABLE" envDefault:"price_bars"`

	// Transports
	SSEKeepAlive       time.Duration `env:"QUERY_TOOLS_SSE_KEEPALIVE" envDefault:"15s"`
	SessionQueueSize   int           `env:"QUERY_TOOLS_SESSION_QUEUE_SIZE" envDefault:"64"`
	SessionMaxInFlight int           `env:"QUERY_TOOLS_SESSION_MAX_IN_FLIGHT" envDefault:"16"`
	ShutdownTimeout    time.Duration `env:"QUERY_TOOLS_SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Tracing
	OTELEnabled     bool   `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"query-tools"`
	TraceStatements string `env:"QUERY_TOOLS_TRACE_STATEMENTS" envDefault:"hashed"` // none, hashed or full
}

// LoadConfig loads configuration from environment variables, layered over the
// optional YAML file named by QUERY_TOOLS_CONFIG_FILE.
func LoadConfig() (*Config, error) {
	vars, err := environment(os.Getenv("QUERY_TOOLS_CONFIG_FILE"), os.Environ())
	if err != nil {
		return nil, err
	}
	return parse(vars)
}

func parse(vars map[string]string) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Environment: vars}); err != nil {
		return nil, err
	}

	if strings.TrimSpace(vars["QUERY_TOOLS_LOG_LEVEL"]) == "" {
		if global := strings.TrimSpace(vars["LOG_LEVEL"]); global != "" {
			cfg.LogLevel = global
		}
	}
	if strings.TrimSpace(vars["QUERY_TOOLS_LOG_FORMAT"]) == "" {
		if global := strings.TrimSpace(vars["LOG_FORMAT"]); global != "" {
			cfg.LogFormat = global
		}
	}

	if cfg.QueryTimeout < 0 {
		return nil, fmt.Errorf("QUERY_TOOLS_QUERY_TIMEOUT must not be negative")
	}
	if cfg.SchemaCacheTTL < 0 {
		return nil, fmt.Errorf("QUERY_TOOLS_SCHEMA_CACHE_TTL must not be negative")
	}
	if cfg.SessionQueueSize < 1 {
		return nil, fmt.Errorf("QUERY_TOOLS_SESSION_QUEUE_SIZE must be at least 1")
	}
	if cfg.SessionMaxInFlight < 1 {
		return nil, fmt.Errorf("QUERY_TOOLS_SESSION_MAX_IN_FLIGHT must be at least 1")
	}
	switch cfg.TraceStatements {
	case "none", "hashed", "full":
	default:
		return nil, fmt.Errorf("QUERY_TOOLS_TRACE_STATEMENTS must be none, hashed or full")
	}
	// the only backing store is PostgreSQL, so its keyword rules must be SQL's
	switch strings.ToLower(strings.TrimSpace(cfg.QueryDialect)) {
	case "", "sql":
	case "cypher":
		return nil, fmt.Errorf("QUERY_TOOLS_QUERY_DIALECT=cypher requires a graph backing store; only sql is supported with PostgreSQL")
	default:
		return nil, fmt.Errorf("QUERY_TOOLS_QUERY_DIALECT must be sql")
	}
	if cfg.SchemaCacheType == "redis" && strings.TrimSpace(cfg.SchemaCacheRedisURL) == "" {
		return nil, fmt.Errorf("QUERY_TOOLS_SCHEMA_CACHE_REDIS_URL is required when QUERY_TOOLS_SCHEMA_CACHE_TYPE is redis")
	}
	return cfg, nil
}

// environment merges the YAML file at path (keys are variable names) with the
// process environment. Process values win.
func environment(path string, environ []string) (map[string]string, error) {
	merged := map[string]string{}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		var values map[string]any
		if err := yaml.Unmarshal(raw, &values); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
		for k, v := range values {
			merged[k] = yamlValue(v)
		}
	}
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok {
			merged[k] = v
		}
	}
	return merged, nil
}

func yamlValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case []any:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = yamlValue(item)
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(val)
	}
}
