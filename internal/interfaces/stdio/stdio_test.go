package stdio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jan-server/services/query-tools/internal/domain/toolcall"
	"jan-server/services/query-tools/internal/interfaces/session"
	"jan-server/services/query-tools/utils/platformerrors"
)

type MockTool struct {
	CallFunc func(ctx context.Context, args toolcall.Arguments) (string, error)
}

func (m *MockTool) Descriptor() toolcall.Descriptor {
	return toolcall.Descriptor{
		Name:        "echo",
		Description: "echo the message",
		Params:      []toolcall.Param{{Name: "message", Type: toolcall.TypeString, Required: true}},
	}
}

func (m *MockTool) Call(ctx context.Context, args toolcall.Arguments) (string, error) {
	return m.CallFunc(ctx, args)
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func newServer(t *testing.T) *Server {
	t.Helper()
	reg := toolcall.NewRegistry(nil)
	require.NoError(t, reg.Register(&MockTool{CallFunc: func(ctx context.Context, args toolcall.Arguments) (string, error) {
		if args.String("message") == "fail" {
			return "", errors.New("boom")
		}
		return args.String("message"), nil
	}}))
	return NewServer(reg, session.ServerInfo{Name: "query-tools", Version: "test"}, session.Options{})
}

func readFrames(t *testing.T, out *bytes.Buffer) []frame {
	t.Helper()
	var frames []frame
	scanner := bufio.NewScanner(out)
	for scanner.Scan() {
		var f frame
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &f), scanner.Text())
		frames = append(frames, f)
	}
	return frames
}

func TestServeHandshakeThenResults(t *testing.T) {
	in := strings.NewReader(strings.Join([]string{
		`{"call_id":"1","tool_name":"echo","arguments":{"message":"hello"}}`,
		``,
		`{"call_id":"2","tool_name":"echo","arguments":{"message":"fail"}}`,
		`{"call_id":"3","tool_name":"missing","arguments":{}}`,
	}, "\n"))
	var out bytes.Buffer

	require.NoError(t, newServer(t).Serve(context.Background(), in, &out))

	frames := readFrames(t, &out)
	require.Len(t, frames, 4)
	assert.Equal(t, session.EventCapabilities, frames[0].Event)
	var caps session.Capabilities
	require.NoError(t, json.Unmarshal(frames[0].Data, &caps))
	assert.Equal(t, "query-tools", caps.Server.Name)
	require.Len(t, caps.Tools, 1)
	assert.Equal(t, "echo", caps.Tools[0].Name)

	results := map[string]toolcall.Result{}
	for _, f := range frames[1:] {
		require.Equal(t, session.EventResult, f.Event)
		var r toolcall.Result
		require.NoError(t, json.Unmarshal(f.Data, &r))
		results[r.CallID] = r
	}
	assert.False(t, results["1"].IsError)
	assert.Equal(t, "hello", results["1"].Text())
	assert.True(t, results["2"].IsError)
	assert.Contains(t, results["2"].Text(), "boom")
	assert.True(t, results["3"].IsError)
	assert.Contains(t, results["3"].Text(), "unknown tool")
}

func TestServeMalformedEnvelopeEndsSession(t *testing.T) {
	var out bytes.Buffer
	err := newServer(t).Serve(context.Background(), strings.NewReader("not json\n"), &out)

	require.Error(t, err)
	assert.Equal(t, platformerrors.ErrorTypeTransport, platformerrors.TypeOf(err))

	frames := readFrames(t, &out)
	require.Len(t, frames, 2)
	assert.Equal(t, session.EventError, frames[1].Event)
	assert.Contains(t, string(frames[1].Data), `"type":"TRANSPORT"`)
}

type blockingReader struct{ ch chan struct{} }

func (b blockingReader) Read(p []byte) (int, error) {
	<-b.ch
	return 0, errors.New("closed")
}

func TestServeStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var out bytes.Buffer
	done := make(chan error, 1)
	r := blockingReader{ch: make(chan struct{})}
	defer close(r.ch)

	srv := newServer(t)
	go func() { done <- srv.Serve(ctx, r, &out) }()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
