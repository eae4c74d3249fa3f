package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"jan-server/services/query-tools/internal/infrastructure/config"
	"jan-server/services/query-tools/internal/infrastructure/metrics"
	"jan-server/services/query-tools/internal/interfaces/httpserver/middlewares"
	"jan-server/services/query-tools/internal/interfaces/httpserver/routes"
)

type HTTPServer struct {
	router     *gin.Engine
	config     *config.Config
	sseRoute   *routes.SSERoute
	httpServer *http.Server
}

func NewHTTPServer(
	cfg *config.Config,
	healthRoute *routes.HealthRoute,
	toolsRoute *routes.ToolsRoute,
	sseRoute *routes.SSERoute,
	mcpRoute *routes.MCPRoute,
) *HTTPServer {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middlewares.RequestID())
	router.Use(middlewares.RequestLogger())
	router.Use(middlewares.CORS())
	router.Use(middlewares.MetricsRecorder())

	healthRoute.RegisterRouter(router)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := router.Group("/v1")
	toolsRoute.RegisterRouter(v1)
	sseRoute.RegisterRouter(v1)
	mcpRoute.RegisterRouter(v1)

	return &HTTPServer{
		router:   router,
		config:   cfg,
		sseRoute: sseRoute,
	}
}

// Handler exposes the router, mainly for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

// Run serves until ctx ends, then closes open sessions and drains connections
// within the configured shutdown timeout.
func (s *HTTPServer) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%s", s.config.HTTPPort),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	// open event streams only end when their session does
	s.httpServer.RegisterOnShutdown(s.sseRoute.Hub().CloseAll)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("address", s.httpServer.Addr).Msg("Server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received")
	}

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}
	log.Info().Msg("Server exited")
	return nil
}
