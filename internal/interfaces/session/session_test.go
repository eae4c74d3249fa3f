package session

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jan-server/services/query-tools/internal/domain/toolcall"
	"jan-server/services/query-tools/utils/platformerrors"
)

type MockTool struct {
	desc     toolcall.Descriptor
	CallFunc func(ctx context.Context, args toolcall.Arguments) (string, error)
}

func (m *MockTool) Descriptor() toolcall.Descriptor { return m.desc }

func (m *MockTool) Call(ctx context.Context, args toolcall.Arguments) (string, error) {
	return m.CallFunc(ctx, args)
}

func queryTool(fn func(ctx context.Context, args toolcall.Arguments) (string, error)) *MockTool {
	return &MockTool{
		desc: toolcall.Descriptor{
			Name:        "run_read_query",
			Description: "run a query",
			Params:      []toolcall.Param{{Name: "query", Type: toolcall.TypeString, Required: true}},
			ReadOnly:    true,
		},
		CallFunc: fn,
	}
}

func newRegistry(t *testing.T, tool toolcall.Tool) *toolcall.Registry {
	t.Helper()
	reg := toolcall.NewRegistry(nil)
	require.NoError(t, reg.Register(tool))
	return reg
}

func nextResult(t *testing.T, s *Session) toolcall.Result {
	t.Helper()
	select {
	case f := <-s.Frames():
		require.Equal(t, EventResult, f.Event)
		return f.Data.(toolcall.Result)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for result")
		return toolcall.Result{}
	}
}

func call(id, query string) toolcall.Call {
	return toolcall.Call{ID: id, Tool: "run_read_query", Arguments: map[string]any{"query": query}}
}

func TestFailingCallInOneSessionDoesNotAffectAnother(t *testing.T) {
	release := make(chan struct{})
	reg := newRegistry(t, queryTool(func(ctx context.Context, args toolcall.Arguments) (string, error) {
		switch args.String("query") {
		case "SELECT broken":
			return "", platformerrors.NewError(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeExecution,
				"read query failed", errors.New(`relation "broken" does not exist`))
		case "SELECT slow":
			<-release
			return `[{"n":1}]`, nil
		}
		return "", errors.New("unexpected query")
	}))
	hub := NewHub("test", reg, Options{})
	a := hub.Open(context.Background())
	b := hub.Open(context.Background())
	defer hub.CloseAll()

	require.NoError(t, b.Submit(context.Background(), call("b-1", "SELECT slow")))
	require.NoError(t, a.Submit(context.Background(), call("a-1", "SELECT broken")))

	failed := nextResult(t, a)
	assert.True(t, failed.IsError)
	assert.Equal(t, "a-1", failed.CallID)

	close(release)
	ok := nextResult(t, b)
	assert.False(t, ok.IsError)
	assert.Equal(t, "b-1", ok.CallID)
	assert.Equal(t, `[{"n":1}]`, ok.Text())

	// session A keeps serving after a failed call
	require.NoError(t, a.Submit(context.Background(), call("a-2", "SELECT slow")))
	assert.Equal(t, "a-2", nextResult(t, a).CallID)
}

func TestResultsArriveInCompletionOrder(t *testing.T) {
	release := make(chan struct{})
	reg := newRegistry(t, queryTool(func(ctx context.Context, args toolcall.Arguments) (string, error) {
		if args.String("query") == "slow" {
			<-release
		}
		return args.String("query"), nil
	}))
	s := New(context.Background(), "s", "test", reg, Options{})
	defer s.Close()

	require.NoError(t, s.Submit(context.Background(), call("1", "slow")))
	require.NoError(t, s.Submit(context.Background(), call("2", "fast")))

	assert.Equal(t, "2", nextResult(t, s).CallID)
	close(release)
	assert.Equal(t, "1", nextResult(t, s).CallID)
}

func TestSubmitRejectsWhenQueueIsFull(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	started := make(chan struct{}, 1)
	reg := newRegistry(t, queryTool(func(ctx context.Context, args toolcall.Arguments) (string, error) {
		started <- struct{}{}
		<-release
		return "", nil
	}))
	s := New(context.Background(), "s", "test", reg, Options{QueueSize: 1, MaxInFlight: 1})
	defer s.Close()

	require.NoError(t, s.Submit(context.Background(), call("1", "x")))
	<-started
	// the loop holds call 2 while waiting for a slot, call 3 fills the queue
	require.NoError(t, s.Submit(context.Background(), call("2", "x")))
	require.Eventually(t, func() bool { return len(s.inbound) == 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Submit(context.Background(), call("3", "x")))

	err := s.Submit(context.Background(), call("4", "x"))
	require.Error(t, err)
	assert.Equal(t, platformerrors.ErrorTypeBusy, platformerrors.TypeOf(err))
}

func TestDisconnectAbandonsInFlightCallsWithoutCancelling(t *testing.T) {
	release := make(chan struct{})
	finished := make(chan error, 1)
	reg := newRegistry(t, queryTool(func(ctx context.Context, args toolcall.Arguments) (string, error) {
		<-release
		finished <- ctx.Err()
		return "late", nil
	}))
	ctx, disconnect := context.WithCancel(context.Background())
	s := New(ctx, "s", "test", reg, Options{})

	require.NoError(t, s.Submit(context.Background(), call("1", "x")))
	time.Sleep(10 * time.Millisecond)
	disconnect()
	<-s.Done()
	close(release)

	select {
	case err := <-finished:
		assert.NoError(t, err, "dispatched work must not observe the disconnect")
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight call never completed")
	}

	err := s.Submit(context.Background(), call("2", "x"))
	assert.Equal(t, platformerrors.ErrorTypeNotFound, platformerrors.TypeOf(err))
}

func TestFailEmitsTransportErrorAndEndsSession(t *testing.T) {
	reg := newRegistry(t, queryTool(func(ctx context.Context, args toolcall.Arguments) (string, error) { return "", nil }))
	hub := NewHub("test", reg, Options{})
	s := hub.Open(context.Background())

	_, perr := DecodeCall(context.Background(), []byte(`{"tool_name":"run_read_query"`))
	require.NotNil(t, perr)
	s.Fail(perr)

	f := <-s.Frames()
	assert.Equal(t, EventError, f.Event)
	assert.Equal(t, platformerrors.ErrorTypeTransport, f.Data.(ErrorPayload).Type)
	<-s.Done()
	assert.Equal(t, perr, s.Err())
	require.Eventually(t, func() bool { return hub.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestDecodeCall(t *testing.T) {
	ctx := context.Background()

	c, perr := DecodeCall(ctx, []byte(`{"call_id":"c1","tool_name":"fetch_schema","arguments":{"refresh":true}}`))
	require.Nil(t, perr)
	assert.Equal(t, toolcall.Call{ID: "c1", Tool: "fetch_schema", Arguments: map[string]any{"refresh": true}}, c)

	c, perr = DecodeCall(ctx, []byte(`{"call_id":"c6","tool_name":"run_read_query","arguments":{"query":"SELECT 1","params":{"id":9007199254740993}}}`))
	require.Nil(t, perr)
	assert.Equal(t, map[string]any{"id": json.Number("9007199254740993")}, toolcall.Arguments(c.Arguments).Object("params"))

	c, perr = DecodeCall(ctx, []byte(`{"call_id":"c2","tool_name":"fetch_schema","arguments":null}`))
	require.Nil(t, perr)
	assert.Nil(t, c.Arguments)

	for _, raw := range []string{
		``,
		`[]`,
		`not json`,
		`{"tool_name":"fetch_schema"}`,
		`{"call_id":"c3"}`,
		`{"call_id":"c4","tool_name":"x","arguments":[1]}`,
		`{"call_id":"c5","tool_name":"x"} trailing`,
	} {
		_, perr := DecodeCall(ctx, []byte(raw))
		require.NotNil(t, perr, raw)
		assert.Equal(t, platformerrors.ErrorTypeTransport, perr.Type, raw)
	}
}

func TestCapabilitiesListsTools(t *testing.T) {
	reg := newRegistry(t, queryTool(func(ctx context.Context, args toolcall.Arguments) (string, error) { return "", nil }))
	s := New(context.Background(), "abc", "test", reg, Options{})
	defer s.Close()

	caps := s.Capabilities(ServerInfo{Name: "query-tools", Version: "test"})
	assert.Equal(t, "abc", caps.SessionID)
	require.Len(t, caps.Tools, 1)
	assert.Equal(t, "run_read_query", caps.Tools[0].Name)
	assert.Equal(t, "object", caps.Tools[0].InputSchema["type"])
}
