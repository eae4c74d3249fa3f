package toolcall_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
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

type recordingObserver struct {
	mu       sync.Mutex
	statuses []string
}

func (o *recordingObserver) ObserveToolCall(tool, status string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.statuses = append(o.statuses, tool+":"+status)
}

func echoTool() *MockTool {
	return &MockTool{
		desc: toolcall.Descriptor{
			Name:        "echo",
			Description: "Echo the message.",
			Params: []toolcall.Param{
				{Name: "message", Type: toolcall.TypeString, Required: true},
				{Name: "times", Type: toolcall.TypeInteger},
				{Name: "mode", Type: toolcall.TypeString, Enum: []string{"plain", "loud"}},
			},
		},
		CallFunc: func(ctx context.Context, args toolcall.Arguments) (string, error) {
			return args.String("message"), nil
		},
	}
}

func TestRegisterRejectsInvalidDescriptors(t *testing.T) {
	reg := toolcall.NewRegistry(nil)
	require.NoError(t, reg.Register(echoTool()))

	err := reg.Register(echoTool())
	assert.ErrorContains(t, err, "already registered")

	bad := []toolcall.Descriptor{
		{Name: "", Description: "x"},
		{Name: "nodesc"},
		{Name: "badtype", Description: "x", Params: []toolcall.Param{{Name: "a", Type: "date"}}},
		{Name: "dup", Description: "x", Params: []toolcall.Param{{Name: "a", Type: toolcall.TypeString}, {Name: "a", Type: toolcall.TypeString}}},
		{Name: "enum", Description: "x", Params: []toolcall.Param{{Name: "a", Type: toolcall.TypeInteger, Enum: []string{"1"}}}},
	}
	for _, d := range bad {
		assert.Error(t, reg.Register(&MockTool{desc: d}), d.Name)
	}
	assert.Len(t, reg.Descriptors(), 1)
}

func TestDispatchSuccess(t *testing.T) {
	obs := &recordingObserver{}
	reg := toolcall.NewRegistry(obs)
	reg.MustRegister(echoTool())

	res := reg.Dispatch(context.Background(), toolcall.Call{ID: "c1", Tool: "echo", Arguments: map[string]any{"message": "hi", "times": float64(2)}})

	assert.False(t, res.IsError)
	assert.Equal(t, "c1", res.CallID)
	assert.Equal(t, "hi", res.Text())
	assert.Equal(t, []string{"echo:ok"}, obs.statuses)
}

func TestDispatchUnknownTool(t *testing.T) {
	reg := toolcall.NewRegistry(nil)
	reg.MustRegister(echoTool())

	res := reg.Dispatch(context.Background(), toolcall.Call{ID: "c2", Tool: "nope"})

	assert.True(t, res.IsError)
	assert.Equal(t, platformerrors.ErrorTypeValidation, res.Kind)
	assert.Contains(t, res.Text(), `unknown tool "nope"`)
	assert.Contains(t, res.Text(), "echo")
}

func TestDispatchArgumentValidation(t *testing.T) {
	called := false
	tool := echoTool()
	tool.CallFunc = func(ctx context.Context, args toolcall.Arguments) (string, error) {
		called = true
		return "", nil
	}
	reg := toolcall.NewRegistry(nil)
	reg.MustRegister(tool)

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"missing", map[string]any{}, "missing required parameter(s): message"},
		{"null required", map[string]any{"message": nil}, "missing required parameter(s): message"},
		{"wrong type", map[string]any{"message": 3.0}, "message must be string"},
		{"fractional integer", map[string]any{"message": "x", "times": 1.5}, "times must be integer"},
		{"integer out of int64 range", map[string]any{"message": "x", "times": 1e300}, "times must be integer"},
		{"integer at 2^63", map[string]any{"message": "x", "times": 9223372036854775808.0}, "times must be integer"},
		{"enum", map[string]any{"message": "x", "mode": "quiet"}, "mode must be one of plain, loud"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := reg.Dispatch(context.Background(), toolcall.Call{ID: "v", Tool: "echo", Arguments: tt.args})
			assert.True(t, res.IsError)
			assert.Equal(t, platformerrors.ErrorTypeValidation, res.Kind)
			assert.Contains(t, res.Text(), tt.want)
		})
	}
	assert.False(t, called, "handler must not run on invalid arguments")
}

func TestDispatchAcceptsJSONNumbers(t *testing.T) {
	reg := toolcall.NewRegistry(nil)
	tool := echoTool()
	var got int64
	tool.CallFunc = func(ctx context.Context, args toolcall.Arguments) (string, error) {
		got, _ = args.Int("times")
		return "ok", nil
	}
	reg.MustRegister(tool)

	res := reg.Dispatch(context.Background(), toolcall.Call{ID: "n", Tool: "echo", Arguments: map[string]any{"message": "x", "times": json.Number("4")}})
	require.False(t, res.IsError, res.Text())
	assert.EqualValues(t, 4, got)
}

func TestArgumentsIntRejectsOverflow(t *testing.T) {
	_, ok := toolcall.Arguments{"n": 1e300}.Int("n")
	assert.False(t, ok)
	_, ok = toolcall.Arguments{"n": -1e19}.Int("n")
	assert.False(t, ok)

	n, ok := toolcall.Arguments{"n": float64(-1 << 63)}.Int("n")
	require.True(t, ok)
	assert.EqualValues(t, int64(-1<<63), n)
}

func TestDecodeArgumentsKeepsLargeIntegers(t *testing.T) {
	args, err := toolcall.DecodeArguments([]byte(`{"id":9007199254740993,"ratio":1.5,"nested":{"ids":[9007199254740995]}}`))
	require.NoError(t, err)

	assert.Equal(t, json.Number("9007199254740993"), args["id"])
	assert.Equal(t, json.Number("1.5"), args["ratio"])
	n, ok := args.Int("id")
	require.True(t, ok)
	assert.EqualValues(t, int64(9007199254740993), n)
	assert.Equal(t, []any{json.Number("9007199254740995")}, args.Object("nested")["ids"])

	_, err = toolcall.DecodeArguments([]byte(`{"a":1} {"b":2}`))
	assert.Error(t, err)
	_, err = toolcall.DecodeArguments([]byte(`[1]`))
	assert.Error(t, err)
}

func TestDispatchExecutionErrorCarriesDiagnostics(t *testing.T) {
	tool := echoTool()
	tool.CallFunc = func(ctx context.Context, args toolcall.Arguments) (string, error) {
		return "", platformerrors.NewErrorWithContext(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeExecution,
			"query failed", errors.New(`relation "missing" does not exist`),
			map[string]any{"query": "SELECT * FROM missing", "params": map[string]any{"id": 1}, "hint": "call fetch_schema first"})
	}
	obs := &recordingObserver{}
	reg := toolcall.NewRegistry(obs)
	reg.MustRegister(tool)

	res := reg.Dispatch(context.Background(), toolcall.Call{ID: "e", Tool: "echo", Arguments: map[string]any{"message": "x"}})

	assert.True(t, res.IsError)
	assert.Equal(t, platformerrors.ErrorTypeExecution, res.Kind)
	text := res.Text()
	assert.Contains(t, text, `relation "missing" does not exist`)
	assert.Contains(t, text, "Query: SELECT * FROM missing")
	assert.Contains(t, text, `Parameters: {"id":1}`)
	assert.Contains(t, text, "Hint: call fetch_schema first")
	assert.Equal(t, []string{"echo:execution"}, obs.statuses)
}

func TestDispatchRecoversPanic(t *testing.T) {
	tool := echoTool()
	tool.CallFunc = func(ctx context.Context, args toolcall.Arguments) (string, error) {
		panic("nil map write")
	}
	reg := toolcall.NewRegistry(nil)
	reg.MustRegister(tool)

	res := reg.Dispatch(context.Background(), toolcall.Call{ID: "p", Tool: "echo", Arguments: map[string]any{"message": "x"}})

	assert.True(t, res.IsError)
	assert.Equal(t, "p", res.CallID)
	assert.Equal(t, platformerrors.ErrorTypeInternal, res.Kind)
	assert.Contains(t, res.Text(), "nil map write")
}

func TestInputSchema(t *testing.T) {
	schema := echoTool().Descriptor().InputSchema()
	assert.Equal(t, "object", schema["type"])
	assert.Equal(t, []string{"message"}, schema["required"])
	props := schema["properties"].(map[string]any)
	assert.Equal(t, []string{"plain", "loud"}, props["mode"].(map[string]any)["enum"])
}
