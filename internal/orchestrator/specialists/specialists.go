// Package specialists holds the agents the manager dispatches to. Specialists
// are registered against a routing decision, so adding one (for example a
// future alerting agent) is a registration, not a change to the manager.
package specialists

import (
	"context"
	"fmt"

	"github.com/OmarSamirz/NextBI/internal/orchestrator/model"
)

// Specialist handles one category of work for a single loop pass. Execute
// reads what it needs from the shared state and merges its outcome back in.
// The returned error is reserved for unrecoverable conditions (backend
// unreachable, sandbox unavailable, caller cancellation); ordinary failures
// are folded into the state as failure notes.
type Specialist interface {
	Name() string
	Execute(ctx context.Context, st *model.RunState) error
}

// ToolInvoker executes a named tool with JSON-encoded arguments and returns
// the tool's textual observation. The Teradata backend client satisfies this.
type ToolInvoker interface {
	Invoke(ctx context.Context, name, argsJSON string) (string, error)
}

// Registry maps routing decisions to specialists.
type Registry struct {
	handlers map[model.Decision]Specialist
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[model.Decision]Specialist)}
}

func (r *Registry) Register(d model.Decision, s Specialist) {
	r.handlers[d] = s
}

func (r *Registry) Lookup(d model.Decision) (Specialist, bool) {
	s, ok := r.handlers[d]
	return s, ok
}

// Dispatch runs the specialist registered for the decision. A missing
// registration is a wiring bug and surfaces as an error.
func (r *Registry) Dispatch(ctx context.Context, d model.Decision, st *model.RunState) error {
	s, ok := r.handlers[d]
	if !ok {
		return fmt.Errorf("no specialist registered for decision %q", d)
	}
	return s.Execute(ctx, st)
}
