package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"jan-server/services/query-tools/internal/interfaces/httpserver/responses"
	"jan-server/services/query-tools/internal/interfaces/session"
)

type ToolsRoute struct {
	dispatcher session.Dispatcher
	info       session.ServerInfo
}

func NewToolsRoute(dispatcher session.Dispatcher, info session.ServerInfo) *ToolsRoute {
	return &ToolsRoute{dispatcher: dispatcher, info: info}
}

func (route *ToolsRoute) RegisterRouter(router gin.IRouter) {
	router.GET("/tools", route.list)
}

// list returns the same catalog sent in the session handshake.
func (route *ToolsRoute) list(reqCtx *gin.Context) {
	reqCtx.JSON(http.StatusOK, responses.GeneralResponse[session.Capabilities]{
		Status: "ok",
		Result: session.Capabilities{Server: route.info, Tools: session.Catalog(route.dispatcher.Descriptors())},
	})
}
