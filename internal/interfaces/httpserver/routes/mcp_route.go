package routes

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"jan-server/services/query-tools/internal/interfaces/httpserver/responses"
	"jan-server/services/query-tools/utils/platformerrors"
)

var allowedMCPMethods = map[string]bool{
	// Initialization / handshake
	"initialize":                true,
	"notifications/initialized": true,
	"ping":                      true,

	// Tools
	"tools/list": true,
	"tools/call": true,
}

// MCPRoute serves the Model Context Protocol over streamable HTTP.
type MCPRoute struct {
	httpHandler http.Handler
}

func NewMCPRoute(httpHandler http.Handler) *MCPRoute {
	return &MCPRoute{httpHandler: httpHandler}
}

func (route *MCPRoute) RegisterRouter(router gin.IRouter) {
	router.POST("/mcp", MCPMethodGuard(allowedMCPMethods), route.serveMCP)
}

func (route *MCPRoute) serveMCP(reqCtx *gin.Context) {
	// Force acceptable content types for go-sdk streamable handler even if client omits Accept.
	reqCtx.Request.Header.Set("Accept", "application/json, text/event-stream")
	route.httpHandler.ServeHTTP(reqCtx.Writer, reqCtx.Request)
}

// MCPMethodGuard rejects JSON-RPC requests whose method is not allowed.
func MCPMethodGuard(allowedMethods map[string]bool) gin.HandlerFunc {
	return func(reqCtx *gin.Context) {
		bodyBytes, err := io.ReadAll(http.MaxBytesReader(reqCtx.Writer, reqCtx.Request.Body, maxEnvelopeBytes))
		if err != nil {
			responses.HandleNewError(reqCtx, platformerrors.ErrorTypeTransport, "failed to read MCP request body")
			return
		}
		_ = reqCtx.Request.Body.Close()

		if len(bodyBytes) == 0 {
			responses.HandleNewError(reqCtx, platformerrors.ErrorTypeValidation, "empty MCP request body")
			return
		}

		reqCtx.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))

		var payload struct {
			Method string `json:"method"`
		}
		if err := json.Unmarshal(bodyBytes, &payload); err != nil {
			responses.HandleNewError(reqCtx, platformerrors.ErrorTypeValidation, "invalid MCP request payload")
			return
		}
		if payload.Method == "" {
			responses.HandleNewError(reqCtx, platformerrors.ErrorTypeValidation, "missing method field in MCP request")
			return
		}
		if !allowedMethods[payload.Method] {
			responses.HandleNewError(reqCtx, platformerrors.ErrorTypeValidation, "unsupported MCP method: "+payload.Method)
			return
		}

		reqCtx.Next()
	}
}
