package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/user/taskpilot/pkg/llm"
)

// ErrUnknownTool is returned by Invoke for a name nothing registered.
var ErrUnknownTool = errors.New("unknown tool")

// Tool defines the interface for an executable tool.
type Tool interface {
	Name() string
	Description() string
	Parameters() json.RawMessage
	Execute(ctx context.Context, args json.RawMessage) (string, error)
}

// InvokeObserver is notified after every Invoke with the tool name and an
// outcome of "ok", "invalid", "error" or "unknown".
type InvokeObserver func(tool, outcome string)

// Registry holds registered tools and validates arguments before dispatch.
type Registry struct {
	mu         sync.RWMutex
	tools      map[string]Tool
	validators map[string]*validator
	observer   InvokeObserver
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:      make(map[string]Tool),
		validators: make(map[string]*validator),
	}
}

// Register adds a tool to the registry. The tool's parameter schema must
// compile.
func (r *Registry) Register(t Tool) error {
	v, err := compileValidator(t.Parameters())
	if err != nil {
		return fmt.Errorf("register %s: %w", t.Name(), err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
	r.validators[t.Name()] = v
	return nil
}

// Observe installs fn as the invoke observer.
func (r *Registry) Observe(fn InvokeObserver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observer = fn
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// All returns all registered tools sorted by name.
func (r *Registry) All() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Names returns the sorted tool names.
func (r *Registry) Names() []string {
	tools := r.All()
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name()
	}
	return names
}

// AsLLMTools converts registered tools to the LLM provider format.
func (r *Registry) AsLLMTools() []llm.Tool {
	tools := r.All()
	out := make([]llm.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, llm.Tool{
			Type: "function",
			Function: llm.Function{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return out
}

// Invoke validates args against the named tool's schema and executes it.
// Validation failures are returned as *types.ValidationError.
func (r *Registry) Invoke(ctx context.Context, name string, args json.RawMessage) (string, error) {
	r.mu.RLock()
	t, ok := r.tools[name]
	v := r.validators[name]
	observer := r.observer
	r.mu.RUnlock()

	notify := func(outcome string) {
		if observer != nil {
			observer(name, outcome)
		}
	}

	if !ok {
		notify("unknown")
		return "", fmt.Errorf("%w %q", ErrUnknownTool, name)
	}
	args = normalizeArgs(args)
	if err := v.validate(args); err != nil {
		notify("invalid")
		return "", err
	}
	result, err := t.Execute(ctx, args)
	if err != nil {
		notify("error")
		return "", err
	}
	notify("ok")
	return result, nil
}
