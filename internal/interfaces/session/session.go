// Package session multiplexes tool calls and results for one transport connection.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"jan-server/services/query-tools/internal/domain/toolcall"
	"jan-server/services/query-tools/internal/infrastructure/metrics"
	"jan-server/services/query-tools/utils/platformerrors"
)

// Dispatcher executes tool calls. *toolcall.Registry satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, call toolcall.Call) toolcall.Result
	Descriptors() []toolcall.Descriptor
}

// Options bound a session's queues.
type Options struct {
	// QueueSize is the number of accepted calls waiting for a dispatch slot.
	QueueSize int
	// MaxInFlight caps concurrently executing calls in this session.
	MaxInFlight int
}

func (o Options) withDefaults() Options {
	if o.QueueSize < 1 {
		o.QueueSize = 64
	}
	if o.MaxInFlight < 1 {
		o.MaxInFlight = 16
	}
	return o
}

// Session is one logical client connection. It holds no state across calls:
// every call is dispatched independently and results are emitted as they complete.
type Session struct {
	id         string
	transport  string
	dispatcher Dispatcher
	logger     zerolog.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	inbound chan toolcall.Call
	out     chan Frame
	slots   chan struct{}

	pending   sync.WaitGroup
	closeOnce sync.Once
	done      chan struct{}
	mu        sync.RWMutex
	closeErr  *platformerrors.PlatformError
}

// New creates a session and starts its receive loop. The session ends when ctx is
// cancelled, Close is called or Fail is called.
func New(ctx context.Context, id, transport string, dispatcher Dispatcher, opts Options) *Session {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(ctx)
	s := &Session{
		id:         id,
		transport:  transport,
		dispatcher: dispatcher,
		logger:     log.With().Str("session_id", id).Str("transport", transport).Logger(),
		ctx:        ctx,
		cancel:     cancel,
		inbound:    make(chan toolcall.Call, opts.QueueSize),
		out:        make(chan Frame, opts.QueueSize),
		slots:      make(chan struct{}, opts.MaxInFlight),
		done:       make(chan struct{}),
	}
	metrics.SessionOpened(transport)
	s.logger.Info().Msg("session opened")

	go s.loop()
	context.AfterFunc(ctx, s.Close)
	return s
}

func (s *Session) ID() string { return s.id }

// Frames delivers outbound frames until Done is closed.
func (s *Session) Frames() <-chan Frame { return s.out }

// Done is closed when the session ends.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err returns the transport error that ended the session, if any.
func (s *Session) Err() *platformerrors.PlatformError {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closeErr
}

// Capabilities builds the handshake payload for this session.
func (s *Session) Capabilities(info ServerInfo) Capabilities {
	return Capabilities{Server: info, SessionID: s.id, Tools: Catalog(s.dispatcher.Descriptors())}
}

// Submit queues a call without blocking. It fails with BUSY when the queue is full
// and NOT_FOUND when the session has ended.
func (s *Session) Submit(ctx context.Context, call toolcall.Call) error {
	select {
	case <-s.done:
		return platformerrors.NewError(ctx, platformerrors.LayerTransport, platformerrors.ErrorTypeNotFound,
			fmt.Sprintf("session %s is closed", s.id), nil)
	default:
	}
	s.pending.Add(1)
	select {
	case s.inbound <- call:
		return nil
	default:
		s.pending.Done()
		metrics.RecordSessionReject(s.transport)
		return platformerrors.NewErrorWithContext(ctx, platformerrors.LayerTransport, platformerrors.ErrorTypeBusy,
			fmt.Sprintf("session %s has too many pending calls; retry later", s.id), nil,
			map[string]any{"call_id": call.ID})
	}
}

// Emit queues a frame for the client. Frames for a closed session are dropped.
func (s *Session) Emit(frame Frame) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.out <- frame:
		return true
	case <-s.done:
		return false
	}
}

// Fail reports a transport error to the client and ends the session.
func (s *Session) Fail(err *platformerrors.PlatformError) {
	s.mu.Lock()
	if s.closeErr == nil {
		s.closeErr = err
	}
	s.mu.Unlock()
	s.logger.Warn().Str("error_type", string(err.Type)).Msg(err.Detail())

	// best effort: a stalled client must not keep the session alive
	select {
	case s.out <- errorFrame(err):
	default:
	}
	s.Close()
}

// Wait blocks until every accepted call has produced its result, the session ends
// or ctx is done. Callers must stop submitting first.
func (s *Session) Wait(ctx context.Context) {
	drained := make(chan struct{})
	go func() {
		s.pending.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-s.done:
	case <-ctx.Done():
	}
}

// Close ends the session. Calls already dispatched keep running and their results
// are discarded.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.cancel()
		metrics.SessionClosed(s.transport)
		s.logger.Info().Msg("session closed")
	})
}

func (s *Session) loop() {
	for {
		select {
		case <-s.done:
			return
		case call := <-s.inbound:
			select {
			case s.slots <- struct{}{}:
			case <-s.done:
				return
			}
			go s.run(call)
		}
	}
}

func (s *Session) run(call toolcall.Call) {
	defer s.pending.Done()
	defer func() { <-s.slots }()

	// store-side work is not cancelled when the client goes away
	ctx := context.WithoutCancel(s.ctx)
	result := s.dispatcher.Dispatch(ctx, call)
	if !s.Emit(Frame{Event: EventResult, Data: result}) {
		s.logger.Debug().Str("call_id", call.ID).Msg("session closed before result was delivered; dropping")
	}
}
