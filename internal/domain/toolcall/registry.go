package toolcall

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"jan-server/services/query-tools/utils/platformerrors"
)

// Observer receives the outcome of every dispatched call.
type Observer interface {
	ObserveToolCall(tool, status string, duration time.Duration)
}

// Registry holds the tool catalog and turns calls into results.
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]Tool
	order    []string
	observer Observer
}

// NewRegistry creates an empty registry. observer may be nil.
func NewRegistry(observer Observer) *Registry {
	return &Registry{tools: make(map[string]Tool), observer: observer}
}

// Register adds a tool after checking its descriptor.
func (r *Registry) Register(tool Tool) error {
	desc := tool.Descriptor()
	if err := checkDescriptor(desc); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[desc.Name]; exists {
		return fmt.Errorf("tool %q already registered", desc.Name)
	}
	r.tools[desc.Name] = tool
	r.order = append(r.order, desc.Name)
	return nil
}

// MustRegister registers tools and panics on the first invalid one.
func (r *Registry) MustRegister(tools ...Tool) {
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
}

func checkDescriptor(d Descriptor) error {
	if strings.TrimSpace(d.Name) == "" {
		return errors.New("tool name is required")
	}
	if strings.TrimSpace(d.Description) == "" {
		return fmt.Errorf("tool %q: description is required", d.Name)
	}
	seen := make(map[string]struct{}, len(d.Params))
	for _, p := range d.Params {
		if p.Name == "" {
			return fmt.Errorf("tool %q: parameter name is required", d.Name)
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("tool %q: duplicate parameter %q", d.Name, p.Name)
		}
		seen[p.Name] = struct{}{}
		switch p.Type {
		case TypeString, TypeInteger, TypeNumber, TypeBoolean, TypeObject, TypeArray:
		default:
			return fmt.Errorf("tool %q: parameter %q has unsupported type %q", d.Name, p.Name, p.Type)
		}
		if len(p.Enum) > 0 && p.Type != TypeString {
			return fmt.Errorf("tool %q: enum on non-string parameter %q", d.Name, p.Name)
		}
	}
	return nil
}

// Descriptors lists registered tools in registration order.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].Descriptor())
	}
	return out
}

// Lookup returns the tool with the given name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Dispatch runs one call to completion and always returns a result for it.
// Calls are never retried.
func (r *Registry) Dispatch(ctx context.Context, call Call) (result Result) {
	start := time.Now()
	ctx = platformerrors.WithRequestID(ctx, call.ID)
	logger := log.With().Str("call_id", call.ID).Str("tool", call.Tool).Logger()
	logger.Debug().Str("state", "received").Msg("tool call")

	ctx, span := otel.Tracer("jan-server/query-tools").Start(ctx, "tool "+call.Tool)
	span.SetAttributes(attribute.String("tool.name", call.Tool), attribute.String("tool.call_id", call.ID))

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error().Interface("panic", rec).Msg("tool handler panicked")
			result = ErrorResult(call.ID, platformerrors.NewError(ctx, platformerrors.LayerRegistry, platformerrors.ErrorTypeInternal,
				fmt.Sprintf("tool %s failed unexpectedly", call.Tool), fmt.Errorf("%v", rec)))
		}

		status := "ok"
		if result.IsError {
			status = strings.ToLower(string(result.Kind))
			span.SetStatus(codes.Error, status)
		}
		span.End()
		if r.observer != nil {
			r.observer.ObserveToolCall(call.Tool, status, time.Since(start))
		}
		logger.Debug().Str("state", "completed").Str("status", status).Dur("duration", time.Since(start)).Msg("tool call")
	}()

	tool, ok := r.Lookup(call.Tool)
	if !ok {
		return ErrorResult(call.ID, platformerrors.NewError(ctx, platformerrors.LayerRegistry, platformerrors.ErrorTypeValidation,
			fmt.Sprintf("unknown tool %q; available tools: %s", call.Tool, strings.Join(r.names(), ", ")), nil))
	}

	args, verr := validateArguments(ctx, tool.Descriptor(), call.Arguments)
	if verr != nil {
		return ErrorResult(call.ID, verr)
	}
	logger.Debug().Str("state", "validated").Msg("tool call")

	logger.Debug().Str("state", "executing").Msg("tool call")
	text, err := tool.Call(ctx, args)
	if err != nil {
		perr := platformerrors.AsError(ctx, platformerrors.LayerRegistry, err, call.Tool)
		if perr.Type == platformerrors.ErrorTypeInternal || perr.Type == platformerrors.ErrorTypeExecution {
			platformerrors.LogError(logger, perr)
		}
		return ErrorResult(call.ID, perr)
	}
	return TextResult(call.ID, text)
}

func (r *Registry) names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := slices.Clone(r.order)
	sort.Strings(names)
	return names
}

func validateArguments(ctx context.Context, desc Descriptor, raw map[string]any) (Arguments, *platformerrors.PlatformError) {
	args := make(Arguments, len(raw))
	var missing, invalid []string

	for _, p := range desc.Params {
		v, present := raw[p.Name]
		if !present || v == nil {
			if p.Required {
				missing = append(missing, p.Name)
			}
			continue
		}
		if !matchesType(p.Type, v) {
			invalid = append(invalid, fmt.Sprintf("%s must be %s", p.Name, p.Type))
			continue
		}
		if len(p.Enum) > 0 && !slices.Contains(p.Enum, v.(string)) {
			invalid = append(invalid, fmt.Sprintf("%s must be one of %s", p.Name, strings.Join(p.Enum, ", ")))
			continue
		}
		args[p.Name] = v
	}

	if len(missing) == 0 && len(invalid) == 0 {
		return args, nil
	}

	var parts []string
	if len(missing) > 0 {
		parts = append(parts, "missing required parameter(s): "+strings.Join(missing, ", "))
	}
	parts = append(parts, invalid...)
	return nil, platformerrors.NewErrorWithContext(ctx, platformerrors.LayerRegistry, platformerrors.ErrorTypeValidation,
		fmt.Sprintf("invalid arguments for %s: %s", desc.Name, strings.Join(parts, "; ")), nil,
		map[string]any{"missing": missing})
}

// ErrorResult renders err as the error result of a call.
func ErrorResult(callID string, err *platformerrors.PlatformError) Result {
	var b strings.Builder
	fmt.Fprintf(&b, "Error [%s]: %s", err.Type, err.Detail())
	if q, ok := err.Context["query"].(string); ok && q != "" {
		fmt.Fprintf(&b, "\nQuery: %s", q)
	}
	if params, ok := err.Context["params"]; ok && params != nil {
		if raw, marshalErr := json.Marshal(params); marshalErr == nil {
			fmt.Fprintf(&b, "\nParameters: %s", raw)
		}
	}
	if hint, ok := err.Context["hint"].(string); ok && hint != "" {
		fmt.Fprintf(&b, "\nHint: %s", hint)
	}
	return Result{
		CallID:  callID,
		Content: []Content{{Type: "text", Text: b.String()}},
		IsError: true,
		Kind:    err.Type,
	}
}
