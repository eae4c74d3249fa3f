// Package stdio serves tool calls over newline-delimited JSON on a byte stream.
package stdio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"jan-server/services/query-tools/internal/domain/toolcall"
	"jan-server/services/query-tools/internal/interfaces/session"
	"jan-server/services/query-tools/utils/platformerrors"
)

const maxLineBytes = 8 << 20

// Server runs a single session over a reader/writer pair. The first line written is
// the capabilities frame; every later line is a result or error frame.
type Server struct {
	dispatcher session.Dispatcher
	info       session.ServerInfo
	opts       session.Options
}

func NewServer(dispatcher session.Dispatcher, info session.ServerInfo, opts session.Options) *Server {
	return &Server{dispatcher: dispatcher, info: info, opts: opts}
}

// Serve returns nil when r reaches EOF and every accepted call has been answered,
// the session's transport error when an envelope is malformed, and ctx.Err() when
// ctx ends first.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	sess := session.New(ctx, uuid.NewString(), "stdio", s.dispatcher, s.opts)
	defer sess.Close()

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(session.Frame{Event: session.EventCapabilities, Data: sess.Capabilities(s.info)}); err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerTransport, platformerrors.ErrorTypeTransport, "failed to write handshake", err)
	}

	written := make(chan struct{})
	go func() {
		defer close(written)
		s.write(enc, sess)
	}()

	readDone := make(chan error, 1)
	go func() { readDone <- s.read(ctx, r, sess) }()

	select {
	case err := <-readDone:
		if err != nil {
			sess.Fail(platformerrors.NewError(ctx, platformerrors.LayerTransport, platformerrors.ErrorTypeTransport, "failed to read input", err))
		} else {
			sess.Wait(ctx)
		}
		sess.Close()
	case <-sess.Done():
	}
	<-written

	if perr := sess.Err(); perr != nil {
		return perr
	}
	return ctx.Err()
}

func (s *Server) read(ctx context.Context, r io.Reader, sess *session.Session) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), maxLineBytes)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		call, perr := session.DecodeCall(ctx, line)
		if perr != nil {
			sess.Fail(perr)
			return nil
		}
		if err := sess.Submit(ctx, call); err != nil {
			perr := platformerrors.AsError(ctx, platformerrors.LayerTransport, err, "call rejected")
			sess.Emit(session.Frame{Event: session.EventResult, Data: toolcall.ErrorResult(call.ID, perr)})
			if perr.Type != platformerrors.ErrorTypeBusy {
				return nil
			}
		}
	}
	return scanner.Err()
}

// write copies frames to the encoder until the session ends, then flushes what is
// already queued.
func (s *Server) write(enc *json.Encoder, sess *session.Session) {
	encode := func(f session.Frame) {
		if err := enc.Encode(f); err != nil {
			log.Error().Err(err).Str("event", f.Event).Msg("failed to write stdio frame")
		}
	}
	for {
		select {
		case f := <-sess.Frames():
			encode(f)
		case <-sess.Done():
			for {
				select {
				case f := <-sess.Frames():
					encode(f)
				default:
					return
				}
			}
		}
	}
}
