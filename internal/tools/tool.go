package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrToolNotFound  = errors.New("ToolNotFound")
	ErrInvalidParams = errors.New("invalid parameters")
)

// Tool defines the interface for all agent capabilities.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any // JSON Schema for the tool's inputs
	Execute(ctx context.Context, params Params) Result
}

// funcTool adapts a closure to the Tool interface.
type funcTool struct {
	name        string
	description string
	schema      map[string]any
	run         func(ctx context.Context, params Params) Result
}

func (f *funcTool) Name() string {
	return f.name
}

func (f *funcTool) Description() string {
	return f.description
}

func (f *funcTool) Parameters() map[string]any {
	return f.schema
}

func (f *funcTool) Execute(ctx context.Context, params Params) Result {
	return f.run(ctx, params)
}

// Registry manages the set of available tools. It is filled at startup and
// read concurrently afterwards; it holds no run state.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// Register adds t under its name. Registering the same name twice is a
// programming error.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.tools[t.Name()]; dup {
		panic(fmt.Sprintf("tools: duplicate registration of %q", t.Name()))
	}
	r.tools[t.Name()] = t
}

func (r *Registry) Lookup(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return t, nil
}

// Resolve looks up name and checks params against the tool's schema.
func (r *Registry) Resolve(name string, params Params) (Tool, error) {
	t, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	if err := ValidateParams(t.Parameters(), params); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return t, nil
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Descriptor is the wire shape of a registered tool.
type Descriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

func (r *Registry) Describe() []Descriptor {
	names := r.Names()
	out := make([]Descriptor, 0, len(names))
	for _, name := range names {
		t, _ := r.Lookup(name)
		out = append(out, Descriptor{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return out
}
