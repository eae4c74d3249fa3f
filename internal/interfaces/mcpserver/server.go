// Package mcpserver exposes the tool registry over the Model Context Protocol.
package mcpserver

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"

	"jan-server/services/query-tools/internal/domain/toolcall"
	"jan-server/services/query-tools/internal/interfaces/session"
	"jan-server/services/query-tools/utils/platformerrors"
)

// NewServer registers every descriptor of dispatcher as an MCP tool. Argument
// validation is left to the dispatcher so MCP clients get the same error results as
// every other transport.
func NewServer(dispatcher session.Dispatcher, info session.ServerInfo) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: info.Name, Version: info.Version}, nil)
	for _, desc := range dispatcher.Descriptors() {
		server.AddTool(&mcp.Tool{
			Name:        desc.Name,
			Description: desc.Description,
			InputSchema: desc.InputSchema(),
			Annotations: &mcp.ToolAnnotations{ReadOnlyHint: desc.ReadOnly},
		}, handler(dispatcher, desc.Name))
	}
	log.Debug().Int("tool_count", len(dispatcher.Descriptors())).Msg("MCP tools registered")
	return server
}

// NewHTTPHandler serves server over stateless streamable HTTP.
func NewHTTPHandler(server *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(_ *http.Request) *mcp.Server {
		return server
	}, &mcp.StreamableHTTPOptions{Stateless: true})
}

// ServeStdio runs server over stdin/stdout until the client disconnects or ctx ends.
func ServeStdio(ctx context.Context, server *mcp.Server) error {
	return server.Run(ctx, &mcp.StdioTransport{})
}

func handler(dispatcher session.Dispatcher, name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		call := toolcall.Call{ID: uuid.NewString(), Tool: name}
		if req != nil && req.Params != nil && len(req.Params.Arguments) > 0 {
			args, err := toolcall.DecodeArguments(req.Params.Arguments)
			if err != nil {
				perr := platformerrors.NewError(ctx, platformerrors.LayerTransport, platformerrors.ErrorTypeTransport,
					"tool arguments must be a JSON object", err)
				return toResult(toolcall.ErrorResult(call.ID, perr)), nil
			}
			call.Arguments = args
		}
		// a dropped HTTP request must not cancel store-side work
		return toResult(dispatcher.Dispatch(context.WithoutCancel(ctx), call)), nil
	}
}

func toResult(r toolcall.Result) *mcp.CallToolResult {
	content := make([]mcp.Content, len(r.Content))
	for i, c := range r.Content {
		content[i] = &mcp.TextContent{Text: c.Text}
	}
	return &mcp.CallToolResult{Content: content, IsError: r.IsError}
}
