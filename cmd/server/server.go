package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"

	"jan-server/services/query-tools/internal/domain/toolcall"
	"jan-server/services/query-tools/internal/infrastructure/config"
	"jan-server/services/query-tools/internal/infrastructure/database"
	"jan-server/services/query-tools/internal/infrastructure/logger"
	"jan-server/services/query-tools/internal/infrastructure/observability"
	"jan-server/services/query-tools/internal/interfaces/httpserver"
	"jan-server/services/query-tools/internal/interfaces/httpserver/routes"
	"jan-server/services/query-tools/internal/interfaces/mcpserver"
	"jan-server/services/query-tools/internal/interfaces/session"
	"jan-server/services/query-tools/internal/interfaces/stdio"
)

type Application struct {
	httpServer *httpserver.HTTPServer
	manager    *database.Manager
	config     *config.Config
}

// StdioApplication serves a single session on the process's standard streams.
type StdioApplication struct {
	registry *toolcall.Registry
	config   *config.Config
}

func init() {
	// Initialize logger with default settings
	logger.Init("info", "json")
}

// Start runs the HTTP transports until ctx is cancelled.
func (app *Application) Start(ctx context.Context) error {
	log.Info().
		Str("store", app.manager.Identity()).
		Str("dialect", app.config.QueryDialect).
		Bool("indicators", app.config.IndicatorsEnabled).
		Msg("Starting query tools service")

	// the backing store handle is opened by the first call that needs it
	return app.httpServer.Run(ctx)
}

// Run serves the chosen protocol until input ends or ctx is cancelled. in and out
// are used by the envelope protocol; mcp always uses the process streams.
func (app *StdioApplication) Run(ctx context.Context, protocol string, in io.Reader, out io.Writer) error {
	info := routes.ProvideServerInfo()
	switch protocol {
	case "envelope":
		srv := stdio.NewServer(app.registry, info, session.Options{
			QueueSize:   app.config.SessionQueueSize,
			MaxInFlight: app.config.SessionMaxInFlight,
		})
		return srv.Serve(ctx, in, out)
	case "mcp":
		return mcpserver.ServeStdio(ctx, mcpserver.NewServer(app.registry, info))
	default:
		return fmt.Errorf("unknown stdio protocol %q (want envelope or mcp)", protocol)
	}
}

// setupTracing installs the tracer provider and returns a func that flushes it.
func setupTracing(ctx context.Context, cfg *config.Config) func() {
	shutdown, err := observability.Setup(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Msg("initialize tracing")
		return func() {}
	}
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown tracing")
		}
	}
}
