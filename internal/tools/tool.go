// ABOUTME: Tool capability types: definitions, handlers, and invocation results
// ABOUTME: Failure kinds tag every error a tool execution can produce

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/2389/loom/internal/evaluator"
	"github.com/2389/loom/internal/gateway"
	"github.com/2389/loom/internal/store"
)

// Handler executes a tool. It receives the raw argument string (a bare
// string or a JSON object, depending on the tool) and returns the result
// payload as JSON or an error. Handlers must respect ctx cancellation.
type Handler func(ctx context.Context, raw string) (json.RawMessage, error)

// Definition describes one registered tool. The description is consumed
// by the planning layer when selecting tools.
type Definition struct {
	Name        string
	Description string
	Handler     Handler
}

// ErrInvalidInput is wrapped by handlers when the raw argument doesn't
// match the tool's expected shape.
var ErrInvalidInput = errors.New("invalid input")

// FailureKind tags a failed invocation with its originating component.
type FailureKind string

const (
	FailUnknownTool    FailureKind = "unknown_tool"
	FailInvalidInput   FailureKind = "invalid_input"
	FailValidation     FailureKind = "validation"
	FailNotFound       FailureKind = "not_found"
	FailConflict       FailureKind = "conflict"
	FailTimeout        FailureKind = "timeout"
	FailNetwork        FailureKind = "network_error"
	FailRemote         FailureKind = "remote_error"
	FailParse          FailureKind = "parse_error"
	FailDivisionByZero FailureKind = "division_by_zero"
	FailInternal       FailureKind = "internal"
)

// Failure describes why an invocation failed.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// Result is the outcome of a tool invocation: either a payload or a
// failure, never both. Results are plain values; tool faults never
// propagate as errors past the dispatcher.
type Result struct {
	Payload json.RawMessage
	Failure *Failure
}

// OK reports whether the invocation succeeded.
func (r Result) OK() bool { return r.Failure == nil }

func success(payload json.RawMessage) Result {
	return Result{Payload: payload}
}

func failure(kind FailureKind, format string, args ...any) Result {
	return Result{Failure: &Failure{Kind: kind, Message: fmt.Sprintf(format, args...)}}
}

// classify translates an error from a handler into a tagged failure.
// Anything unrecognized is an internal fault.
func classify(err error) *Failure {
	var remote *gateway.RemoteError
	var parseErr *evaluator.ParseError

	switch {
	case errors.Is(err, ErrInvalidInput):
		return &Failure{Kind: FailInvalidInput, Message: err.Error()}
	case errors.Is(err, store.ErrValidation):
		return &Failure{Kind: FailValidation, Message: err.Error()}
	case errors.Is(err, store.ErrNotFound):
		return &Failure{Kind: FailNotFound, Message: err.Error()}
	case errors.Is(err, store.ErrConflict):
		return &Failure{Kind: FailConflict, Message: err.Error()}
	case errors.Is(err, gateway.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return &Failure{Kind: FailTimeout, Message: err.Error()}
	case errors.Is(err, gateway.ErrNetwork):
		return &Failure{Kind: FailNetwork, Message: err.Error()}
	case errors.As(err, &remote):
		return &Failure{Kind: FailRemote, Message: remote.Error()}
	case errors.Is(err, gateway.ErrBadPayload):
		return &Failure{Kind: FailRemote, Message: err.Error()}
	case errors.As(err, &parseErr):
		return &Failure{Kind: FailParse, Message: parseErr.Error()}
	case errors.Is(err, evaluator.ErrDivisionByZero):
		return &Failure{Kind: FailDivisionByZero, Message: err.Error()}
	default:
		return &Failure{Kind: FailInternal, Message: err.Error()}
	}
}
