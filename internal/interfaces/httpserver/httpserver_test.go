package httpserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"jan-server/services/query-tools/internal/domain/toolcall"
	"jan-server/services/query-tools/internal/infrastructure/config"
	"jan-server/services/query-tools/internal/interfaces/httpserver/middlewares"
	"jan-server/services/query-tools/internal/interfaces/httpserver/routes"
	"jan-server/services/query-tools/internal/interfaces/mcpserver"
	"jan-server/services/query-tools/internal/interfaces/session"
)

type MockProber struct {
	PingFunc func(ctx context.Context) error
}

func (m *MockProber) Ping(ctx context.Context) error { return m.PingFunc(ctx) }
func (m *MockProber) Identity() string               { return "postgres://db:5432/app" }

func newTestServer() *HTTPServer {
	gin.SetMode(gin.TestMode)
	registry := toolcall.NewRegistry(nil)
	info := session.ServerInfo{Name: "query-tools", Version: "test"}
	cfg := &config.Config{HTTPPort: "0", ShutdownTimeout: time.Second}

	return NewHTTPServer(
		cfg,
		routes.NewHealthRoute(&MockProber{PingFunc: func(ctx context.Context) error { return nil }}, time.Second),
		routes.NewToolsRoute(registry, info),
		routes.NewSSERoute(session.NewHub("sse", registry, session.Options{}), info, 0),
		routes.NewMCPRoute(mcpserver.NewHTTPHandler(mcpserver.NewServer(registry, info))),
	)
}

func TestRouterServesHealthAndMetrics(t *testing.T) {
	handler := newTestServer().Handler()

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"backing_store_status":"ok"`)
	assert.NotEmpty(t, w.Header().Get(middlewares.RequestIDHeader))

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "jan_query_tools_")
}

func TestRouterEchoesRequestIDInErrors(t *testing.T) {
	handler := newTestServer().Handler()

	req := httptest.NewRequest(http.MethodPost, "/v1/messages?session_id=missing", strings.NewReader(`{}`))
	req.Header.Set(middlewares.RequestIDHeader, "req-42")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "req-42", w.Header().Get(middlewares.RequestIDHeader))
	assert.Contains(t, w.Body.String(), `"request_id":"req-42"`)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	srv := newTestServer()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
