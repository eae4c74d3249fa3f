package routes

import (
	"github.com/google/wire"

	"jan-server/services/query-tools/internal/domain/toolcall"
	"jan-server/services/query-tools/internal/infrastructure/config"
	"jan-server/services/query-tools/internal/infrastructure/database"
	"jan-server/services/query-tools/internal/interfaces/mcpserver"
	"jan-server/services/query-tools/internal/interfaces/session"
)

// RoutesProvider provides all route dependencies
var RoutesProvider = wire.NewSet(
	ProvideServerInfo,
	ProvideHealthRoute,
	ProvideToolsRoute,
	ProvideSSERoute,
	ProvideMCPRoute,
)

// ProvideServerInfo identifies this server in session handshakes.
func ProvideServerInfo() session.ServerInfo {
	return session.ServerInfo{Name: "query-tools", Version: config.Version}
}

// ProvideHealthRoute checks the shared connection manager.
func ProvideHealthRoute(manager *database.Manager, cfg *config.Config) *HealthRoute {
	return NewHealthRoute(manager, cfg.HealthCheckTimeout)
}

// ProvideToolsRoute lists the registry catalog.
func ProvideToolsRoute(registry *toolcall.Registry, info session.ServerInfo) *ToolsRoute {
	return NewToolsRoute(registry, info)
}

// ProvideSSERoute creates the session hub for streaming connections.
func ProvideSSERoute(registry *toolcall.Registry, info session.ServerInfo, cfg *config.Config) *SSERoute {
	hub := session.NewHub("sse", registry, session.Options{
		QueueSize:   cfg.SessionQueueSize,
		MaxInFlight: cfg.SessionMaxInFlight,
	})
	return NewSSERoute(hub, info, cfg.SSEKeepAlive)
}

// ProvideMCPRoute serves the registry over MCP streamable HTTP.
func ProvideMCPRoute(registry *toolcall.Registry, info session.ServerInfo) *MCPRoute {
	return NewMCPRoute(mcpserver.NewHTTPHandler(mcpserver.NewServer(registry, info)))
}
