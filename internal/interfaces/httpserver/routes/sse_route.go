package routes

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"jan-server/services/query-tools/internal/interfaces/httpserver/middlewares"
	"jan-server/services/query-tools/internal/interfaces/httpserver/responses"
	"jan-server/services/query-tools/internal/interfaces/session"
	"jan-server/services/query-tools/utils/platformerrors"
)

const maxEnvelopeBytes = 8 << 20

// SSERoute serves the streaming-connection transport: GET opens a session and
// streams its frames, POST delivers call envelopes to it.
type SSERoute struct {
	hub         *session.Hub
	info        session.ServerInfo
	keepAlive   time.Duration
	messagePath string
}

func NewSSERoute(hub *session.Hub, info session.ServerInfo, keepAlive time.Duration) *SSERoute {
	return &SSERoute{hub: hub, info: info, keepAlive: keepAlive, messagePath: "/v1/messages"}
}

func (route *SSERoute) RegisterRouter(router gin.IRouter) {
	router.GET("/sse", route.stream)
	router.POST("/messages", route.message)
}

// Hub exposes the session hub so shutdown can close open streams.
func (route *SSERoute) Hub() *session.Hub {
	return route.hub
}

func (route *SSERoute) stream(reqCtx *gin.Context) {
	flusher, ok := middlewares.PrepareSSE(reqCtx)
	if !ok {
		responses.HandleNewError(reqCtx, platformerrors.ErrorTypeInternal, "streaming is not supported by this connection")
		return
	}

	sess := route.hub.Open(reqCtx.Request.Context())
	defer sess.Close()

	w := &eventWriter{w: reqCtx.Writer, flusher: flusher, log: log.With().Str("session_id", sess.ID()).Logger()}
	reqCtx.Status(http.StatusOK)
	if !w.raw(session.EventEndpoint, fmt.Sprintf("%s?session_id=%s", route.messagePath, sess.ID())) ||
		!w.send(session.EventCapabilities, sess.Capabilities(route.info)) {
		return
	}

	var tick <-chan time.Time
	if route.keepAlive > 0 {
		ticker := time.NewTicker(route.keepAlive)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case f := <-sess.Frames():
			if !w.send(f.Event, f.Data) {
				return
			}
		case <-tick:
			if !w.comment("keepalive") {
				return
			}
		case <-sess.Done():
			// deliver a terminal error frame queued by Fail
			for {
				select {
				case f := <-sess.Frames():
					w.send(f.Event, f.Data)
				default:
					return
				}
			}
		}
	}
}

type acceptedResponse struct {
	Status string `json:"status"`
	CallID string `json:"call_id"`
}

func (route *SSERoute) message(reqCtx *gin.Context) {
	id := reqCtx.Query("session_id")
	if id == "" {
		responses.HandleNewError(reqCtx, platformerrors.ErrorTypeValidation, "session_id query parameter is required")
		return
	}
	sess, ok := route.hub.Get(id)
	if !ok {
		responses.HandleNewError(reqCtx, platformerrors.ErrorTypeNotFound, fmt.Sprintf("session %s not found", id))
		return
	}

	ctx := reqCtx.Request.Context()
	body, err := io.ReadAll(http.MaxBytesReader(reqCtx.Writer, reqCtx.Request.Body, maxEnvelopeBytes))
	if err != nil {
		perr := platformerrors.NewError(ctx, platformerrors.LayerTransport, platformerrors.ErrorTypeTransport, "failed to read envelope", err)
		sess.Fail(perr)
		responses.HandleError(reqCtx, perr, "")
		return
	}

	call, perr := session.DecodeCall(ctx, body)
	if perr != nil {
		sess.Fail(perr)
		responses.HandleError(reqCtx, perr, "")
		return
	}

	if err := sess.Submit(ctx, call); err != nil {
		responses.HandleError(reqCtx, err, "")
		return
	}
	reqCtx.JSON(http.StatusAccepted, acceptedResponse{Status: "accepted", CallID: call.ID})
}

// eventWriter writes SSE frames. Writes come from the stream handler only.
type eventWriter struct {
	w       io.Writer
	flusher http.Flusher
	log     zerolog.Logger
}

func (e *eventWriter) send(event string, payload any) bool {
	data, err := json.Marshal(payload)
	if err != nil {
		e.log.Error().Err(err).Str("event", event).Msg("marshal SSE payload")
		return true
	}
	return e.raw(event, string(data))
}

func (e *eventWriter) raw(event, data string) bool {
	if _, err := fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		e.log.Debug().Err(err).Msg("SSE write failed; client gone")
		return false
	}
	e.flusher.Flush()
	return true
}

func (e *eventWriter) comment(text string) bool {
	if _, err := fmt.Fprintf(e.w, ": %s\n\n", text); err != nil {
		return false
	}
	e.flusher.Flush()
	return true
}
