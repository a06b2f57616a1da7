// ABOUTME: Invocation facade consumed by the LLM orchestration layer
// ABOUTME: Marshals every tool outcome into a JSON string; never returns a fault

package agent

import (
	"context"
	"encoding/json"

	"github.com/2389/loom/internal/tools"
)

// Facade is the boundary the orchestration layer calls through. It adds
// no logic beyond argument marshalling: listing comes straight from the
// dispatcher, and every invocation result becomes a JSON string.
type Facade struct {
	disp *tools.Dispatcher
}

// New creates a facade over the given dispatcher.
func New(disp *tools.Dispatcher) *Facade {
	return &Facade{disp: disp}
}

// ListTools returns the registered tools in registration order.
func (f *Facade) ListTools() []tools.Info {
	return f.disp.List()
}

// Invoke runs a tool and returns its outcome as a JSON string: the
// payload on success, or {"error": "<message>"} on any failure.
func (f *Facade) Invoke(ctx context.Context, name, rawArgs string) string {
	res := f.disp.Invoke(ctx, name, rawArgs)
	if res.OK() {
		return string(res.Payload)
	}

	out, err := json.Marshal(map[string]string{"error": res.Failure.Error()})
	if err != nil {
		return `{"error": "internal: failed to encode error"}`
	}
	return string(out)
}
