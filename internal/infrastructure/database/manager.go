package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"jan-server/services/query-tools/internal/domain/schema"
	"jan-server/services/query-tools/internal/domain/store"
	"jan-server/services/query-tools/internal/infrastructure/observability"
	"jan-server/services/query-tools/utils/platformerrors"
)

var tracer = otel.Tracer("jan-server/query-tools/database")

// Handle is a live connection to the backing store. Implementations must be safe
// for concurrent use; each Read or Write runs in its own transaction.
type Handle interface {
	Read(ctx context.Context, query string, params map[string]any) (*store.Rows, error)
	Write(ctx context.Context, query string, params map[string]any) (*store.Effects, error)
	Introspect(ctx context.Context) (*schema.Snapshot, error)
	Ping(ctx context.Context) error
	Close()
}

// ORMHandle is implemented by handles that can expose a gorm session over their pool.
type ORMHandle interface {
	ORM() (*gorm.DB, error)
}

// Opener constructs a Handle.
type Opener func(ctx context.Context) (Handle, error)

var ErrManagerClosed = errors.New("connection manager is closed")

// Manager owns the single shared Handle. The handle is built on first use and at most
// once for any number of concurrent first callers; a failed build is not cached.
type Manager struct {
	opener   Opener
	identity string
	timeout  time.Duration

	mu     sync.RWMutex
	handle Handle
	closed bool
	group  singleflight.Group
}

// NewManager creates a manager. timeout bounds every query; zero disables it.
func NewManager(opener Opener, identity string, timeout time.Duration) *Manager {
	return &Manager{opener: opener, identity: identity, timeout: timeout}
}

// Identity names the backing store without credentials.
func (m *Manager) Identity() string {
	return m.identity
}

// Handle returns the shared handle, constructing it if needed.
func (m *Manager) Handle(ctx context.Context) (Handle, error) {
	m.mu.RLock()
	h, closed := m.handle, m.closed
	m.mu.RUnlock()
	if closed {
		return nil, ErrManagerClosed
	}
	if h != nil {
		return h, nil
	}

	ch := m.group.DoChan("handle", func() (any, error) {
		m.mu.RLock()
		existing := m.handle
		m.mu.RUnlock()
		if existing != nil {
			return existing, nil
		}

		// construction outlives the caller that happened to trigger it
		opened, err := m.opener(context.WithoutCancel(ctx))
		if err != nil {
			log.Warn().Err(err).Str("store", m.identity).Msg("failed to open backing store handle")
			return nil, err
		}

		m.mu.Lock()
		defer m.mu.Unlock()
		if m.closed {
			opened.Close()
			return nil, ErrManagerClosed
		}
		m.handle = opened
		log.Info().Str("store", m.identity).Msg("backing store handle opened")
		return opened, nil
	})

	// the caller may give up; construction keeps going for the next one
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(Handle), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for backing store handle: %w", ctx.Err())
	}
}

func (m *Manager) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.timeout)
}

// RunRead executes query in a read-only transaction.
func (m *Manager) RunRead(ctx context.Context, query string, params map[string]any) (rows *store.Rows, err error) {
	ctx, span := tracer.Start(ctx, "store.read", trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(observability.StatementAttributes("read", query, params)...))
	defer func() { endSpan(span, err) }()

	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	h, err := m.Handle(ctx)
	if err != nil {
		return nil, m.executionError(ctx, "backing store unavailable", err, query, params)
	}
	rows, err = h.Read(ctx, query, params)
	if err != nil {
		return nil, m.executionError(ctx, "read query failed", err, query, params)
	}
	return rows, nil
}

// RunWrite executes query in a read-write transaction and reports its effects.
func (m *Manager) RunWrite(ctx context.Context, query string, params map[string]any) (effects *store.Effects, err error) {
	ctx, span := tracer.Start(ctx, "store.write", trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(observability.StatementAttributes("write", query, params)...))
	defer func() { endSpan(span, err) }()

	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	h, err := m.Handle(ctx)
	if err != nil {
		return nil, m.executionError(ctx, "backing store unavailable", err, query, params)
	}
	effects, err = h.Write(ctx, query, params)
	if err != nil {
		return nil, m.executionError(ctx, "write query failed", err, query, params)
	}
	return effects, nil
}

// Introspect describes the store schema. Missing catalog access is reported as SCHEMA_UNAVAILABLE.
func (m *Manager) Introspect(ctx context.Context) (*schema.Snapshot, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	h, err := m.Handle(ctx)
	if err != nil {
		return nil, m.executionError(ctx, "backing store unavailable", err, "", nil)
	}
	snap, err := h.Introspect(ctx)
	if err != nil {
		if capabilityMissing(err) {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeSchemaUnavailable,
				"schema introspection is not available for this store; grant the connecting role read access to information_schema and pg_catalog", err)
		}
		return nil, m.executionError(ctx, "schema introspection failed", err, "", nil)
	}
	return snap, nil
}

// ORM returns a gorm session sharing the handle's pool.
func (m *Manager) ORM(ctx context.Context) (*gorm.DB, error) {
	h, err := m.Handle(ctx)
	if err != nil {
		return nil, err
	}
	orm, ok := h.(ORMHandle)
	if !ok {
		return nil, fmt.Errorf("backing store handle %T does not support ORM access", h)
	}
	return orm.ORM()
}

// Ping performs a trivial round-trip, opening the handle if needed.
func (m *Manager) Ping(ctx context.Context) error {
	h, err := m.Handle(ctx)
	if err != nil {
		return err
	}
	return h.Ping(ctx)
}

// Close releases the handle. Later calls fail with ErrManagerClosed.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	if m.handle != nil {
		m.handle.Close()
		m.handle = nil
		log.Info().Str("store", m.identity).Msg("backing store handle closed")
	}
}

func (m *Manager) executionError(ctx context.Context, message string, err error, query string, params map[string]any) *platformerrors.PlatformError {
	if m.timeout > 0 && (errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)) {
		message = fmt.Sprintf("%s: exceeded the %s query timeout", message, m.timeout)
	}
	fields := map[string]any{"store": m.identity}
	if query != "" {
		fields["query"] = query
	}
	if len(params) > 0 {
		fields["params"] = params
	}
	for k, v := range describeError(err) {
		fields[k] = v
	}
	return platformerrors.NewErrorWithContext(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeExecution, message, err, fields)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store call failed")
	}
	span.End()
}
