package toolcall

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"

	"jan-server/services/query-tools/utils/platformerrors"
)

// ParamType is the JSON type a tool parameter accepts.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
	TypeObject  ParamType = "object"
	TypeArray   ParamType = "array"
)

// Param describes one named tool argument.
type Param struct {
	Name        string
	Type        ParamType
	Description string
	Required    bool
	Enum        []string
}

// Descriptor is the immutable public contract of a tool.
type Descriptor struct {
	Name        string
	Description string
	Params      []Param
	ReadOnly    bool
}

// InputSchema renders the parameters as a JSON Schema object.
func (d Descriptor) InputSchema() map[string]any {
	properties := make(map[string]any, len(d.Params))
	required := make([]string, 0, len(d.Params))
	for _, p := range d.Params {
		prop := map[string]any{
			"type":        string(p.Type),
			"description": p.Description,
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

// Call is one inbound invocation.
type Call struct {
	ID        string         `json:"call_id"`
	Tool      string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments"`
}

// Content is one block of result content.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Result is the single, complete outcome of a call.
type Result struct {
	CallID  string                   `json:"call_id"`
	Content []Content                `json:"content"`
	IsError bool                     `json:"is_error"`
	Kind    platformerrors.ErrorType `json:"-"`
}

// Text joins the text content blocks.
func (r Result) Text() string {
	if len(r.Content) == 1 {
		return r.Content[0].Text
	}
	var out string
	for i, c := range r.Content {
		if i > 0 {
			out += "\n"
		}
		out += c.Text
	}
	return out
}

// TextResult builds a successful single-block result.
func TextResult(callID, text string) Result {
	return Result{CallID: callID, Content: []Content{{Type: "text", Text: text}}}
}

// Tool is a named operation the registry can dispatch to.
type Tool interface {
	Descriptor() Descriptor
	Call(ctx context.Context, args Arguments) (string, error)
}

// Arguments are validated call arguments.
type Arguments map[string]any

// String returns a string argument or "".
func (a Arguments) String(name string) string {
	s, _ := a[name].(string)
	return s
}

// Bool returns a boolean argument or false.
func (a Arguments) Bool(name string) bool {
	b, _ := a[name].(bool)
	return b
}

// Int returns an integer argument and whether it was present.
func (a Arguments) Int(name string) (int64, bool) {
	switch v := a[name].(type) {
	case float64:
		if !fitsInt64(v) {
			return 0, false
		}
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	case int:
		return int64(v), true
	case int64:
		return v, true
	case int32:
		return int64(v), true
	}
	return 0, false
}

// Object returns an object argument or nil.
func (a Arguments) Object(name string) map[string]any {
	m, _ := a[name].(map[string]any)
	return m
}

func isInteger(v any) bool {
	switch x := v.(type) {
	case int, int32, int64:
		return true
	case float64:
		return x == math.Trunc(x) && fitsInt64(x)
	case json.Number:
		_, err := x.Int64()
		return err == nil
	}
	return false
}

// fitsInt64 reports whether f converts to int64 without wrapping. 2^63 itself is
// exactly representable as a float64 but is one past math.MaxInt64.
func fitsInt64(f float64) bool {
	return f >= -(1<<63) && f < 1<<63
}

// DecodeArguments parses a JSON object of tool arguments. Numbers stay
// json.Number so integers beyond 2^53 reach the store intact.
func DecodeArguments(raw []byte) (Arguments, error) {
	var args Arguments
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&args); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("unexpected data after arguments object")
	}
	return args, nil
}

func isNumber(v any) bool {
	switch x := v.(type) {
	case int, int32, int64, float32, float64:
		return true
	case json.Number:
		_, err := x.Float64()
		return err == nil
	}
	return false
}

func matchesType(t ParamType, v any) bool {
	switch t {
	case TypeString:
		_, ok := v.(string)
		return ok
	case TypeInteger:
		return isInteger(v)
	case TypeNumber:
		return isNumber(v)
	case TypeBoolean:
		_, ok := v.(bool)
		return ok
	case TypeObject:
		_, ok := v.(map[string]any)
		return ok
	case TypeArray:
		_, ok := v.([]any)
		return ok
	}
	return false
}
