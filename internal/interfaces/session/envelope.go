package session

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"jan-server/services/query-tools/internal/domain/toolcall"
	"jan-server/services/query-tools/utils/platformerrors"
)

// Event names used on every transport.
const (
	EventEndpoint     = "endpoint"
	EventCapabilities = "capabilities"
	EventResult       = "result"
	EventError        = "error"
)

// Frame is one outbound message: an event name and its JSON payload.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// ServerInfo identifies this server in the capabilities handshake.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ToolInfo is the catalog entry for one tool.
type ToolInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
	ReadOnly    bool           `json:"read_only"`
}

// Capabilities is the handshake sent when a session opens.
type Capabilities struct {
	Server    ServerInfo `json:"server"`
	SessionID string     `json:"session_id,omitempty"`
	Tools     []ToolInfo `json:"tools"`
}

// ErrorPayload is the data of an error frame.
type ErrorPayload struct {
	Type    platformerrors.ErrorType `json:"type"`
	Message string                   `json:"message"`
	Code    string                   `json:"code,omitempty"`
}

// Catalog converts descriptors into handshake entries.
func Catalog(descs []toolcall.Descriptor) []ToolInfo {
	out := make([]ToolInfo, len(descs))
	for i, d := range descs {
		out[i] = ToolInfo{Name: d.Name, Description: d.Description, InputSchema: d.InputSchema(), ReadOnly: d.ReadOnly}
	}
	return out
}

// DecodeCall parses one inbound envelope. Anything that is not a JSON object with a
// call_id, a tool_name and an optional arguments object is a transport error.
func DecodeCall(ctx context.Context, raw []byte) (toolcall.Call, *platformerrors.PlatformError) {
	var envelope struct {
		CallID    string          `json:"call_id"`
		ToolName  string          `json:"tool_name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return toolcall.Call{}, malformed(ctx, "envelope must be a JSON object", nil)
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return toolcall.Call{}, malformed(ctx, "envelope is not valid JSON", err)
	}
	if strings.TrimSpace(envelope.CallID) == "" {
		return toolcall.Call{}, malformed(ctx, "envelope is missing call_id", nil)
	}
	if strings.TrimSpace(envelope.ToolName) == "" {
		return toolcall.Call{}, malformed(ctx, "envelope is missing tool_name", nil)
	}

	call := toolcall.Call{ID: envelope.CallID, Tool: envelope.ToolName}
	args := bytes.TrimSpace(envelope.Arguments)
	if len(args) > 0 && !bytes.Equal(args, []byte("null")) {
		if args[0] != '{' {
			return toolcall.Call{}, malformed(ctx, "envelope arguments must be a JSON object", nil)
		}
		decoded, err := toolcall.DecodeArguments(args)
		if err != nil {
			return toolcall.Call{}, malformed(ctx, "envelope arguments are not valid JSON", err)
		}
		call.Arguments = decoded
	}
	return call, nil
}

func malformed(ctx context.Context, message string, err error) *platformerrors.PlatformError {
	return platformerrors.NewError(ctx, platformerrors.LayerTransport, platformerrors.ErrorTypeTransport, message, err)
}

func errorFrame(err *platformerrors.PlatformError) Frame {
	return Frame{Event: EventError, Data: ErrorPayload{Type: err.Type, Message: err.Detail(), Code: err.GetUUID()}}
}
