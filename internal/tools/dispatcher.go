// ABOUTME: Immutable tool registry and the dispatching containment boundary
// ABOUTME: Invoke never panics or returns an error; every outcome is a Result value

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// DefaultInvokeTimeout bounds a single tool execution when no timeout is
// configured.
const DefaultInvokeTimeout = 10 * time.Second

// ErrDuplicateTool indicates two definitions share a name.
var ErrDuplicateTool = errors.New("duplicate tool name")

// Info is the public view of a registered tool.
type Info struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Dispatcher maps tool names to handlers and isolates every handler
// fault. The registry is populated once at construction and never
// mutated, so concurrent Invoke calls need no synchronization.
type Dispatcher struct {
	tools   map[string]*Definition
	order   []string
	timeout time.Duration
	logger  *slog.Logger
}

// NewDispatcher builds a dispatcher from the given definitions.
// Registration order is preserved for List. A non-positive timeout falls
// back to DefaultInvokeTimeout.
func NewDispatcher(defs []*Definition, timeout time.Duration) (*Dispatcher, error) {
	if timeout <= 0 {
		timeout = DefaultInvokeTimeout
	}

	d := &Dispatcher{
		tools:   make(map[string]*Definition, len(defs)),
		order:   make([]string, 0, len(defs)),
		timeout: timeout,
		logger:  slog.Default().With("component", "dispatcher"),
	}

	for _, def := range defs {
		if def.Name == "" || def.Handler == nil {
			return nil, fmt.Errorf("tool definition needs a name and a handler")
		}
		if _, exists := d.tools[def.Name]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateTool, def.Name)
		}
		d.tools[def.Name] = def
		d.order = append(d.order, def.Name)
	}

	d.logger.Info("dispatcher ready", "tool_count", len(d.order), "invoke_timeout", timeout)
	return d, nil
}

// List returns the registered tools in registration order.
func (d *Dispatcher) List() []Info {
	infos := make([]Info, 0, len(d.order))
	for _, name := range d.order {
		infos = append(infos, Info{Name: name, Description: d.tools[name].Description})
	}
	return infos
}

// Invoke executes the named tool with the raw argument string under the
// per-call timeout. Lookup misses, malformed input, handler errors,
// panics, and timeouts all come back as tagged failures; nothing raises
// past this boundary.
func (d *Dispatcher) Invoke(ctx context.Context, name, raw string) Result {
	def, ok := d.tools[name]
	if !ok {
		return failure(FailUnknownTool, "no tool named %q", name)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	type outcome struct {
		payload json.RawMessage
		err     error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("tool panicked: %v", r)}
			}
		}()
		payload, err := def.Handler(ctx, raw)
		done <- outcome{payload: payload, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			f := classify(out.err)
			d.logger.Warn("tool failed", "tool", name, "kind", f.Kind, "error", out.err)
			return Result{Failure: f}
		}
		d.logger.Debug("tool succeeded", "tool", name)
		return success(out.payload)
	case <-ctx.Done():
		// The handler goroutine observes ctx and unwinds on its own;
		// the buffered channel lets it exit either way.
		d.logger.Warn("tool timed out", "tool", name, "timeout", d.timeout)
		return failure(FailTimeout, "tool %q exceeded its %s deadline", name, d.timeout)
	}
}
