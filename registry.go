package serena

import (
	"context"
	"fmt"
	"sync"
)

// Tool is a named handler that turns arguments into text content. Call
// returns an error when the tool ran but could not produce its output; the
// registry reports that to the client as "Error: <message>".
type Tool interface {
	Descriptor() ToolDescriptor
	Call(ctx context.Context, args Arguments) (ToolResult, error)
}

// ToolFunc adapts a plain function to the Tool interface.
type ToolFunc struct {
	Desc ToolDescriptor
	Fn   func(ctx context.Context, args Arguments) (ToolResult, error)
}

func (t ToolFunc) Descriptor() ToolDescriptor { return t.Desc }

func (t ToolFunc) Call(ctx context.Context, args Arguments) (ToolResult, error) {
	return t.Fn(ctx, args)
}

// Registry maps tool names to tools. It is filled at startup and only read
// afterwards, so a single registry can back any number of connections.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

// NewRegistry returns a registry holding tools, in that order.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds t under its descriptor name.
func (r *Registry) Register(t Tool) error {
	name := t.Descriptor().Name
	if name == "" {
		return fmt.Errorf("register tool: empty name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, name)
	}
	r.tools[name] = t
	r.order = append(r.order, name)
	return nil
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Descriptors lists every tool in registration order.
func (r *Registry) Descriptors() []ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ToolDescriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].Descriptor())
	}
	return out
}

// Invoke runs the named tool. The result is always something to send back:
// unknown tools and failing handlers become text content. The error describes
// what went wrong and is meant for logs only.
func (r *Registry) Invoke(ctx context.Context, name string, args Arguments) (res ToolResult, err error) {
	t, ok := r.Get(name)
	if !ok {
		return TextResult("Unknown tool: " + name), fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	if args == nil {
		args = Arguments{}
	}

	defer func() {
		if v := recover(); v != nil {
			perr := &PanicError{Tool: name, Value: v}
			res = ErrorResult("Error: " + perr.Error())
			err = perr
		}
	}()

	res, err = t.Call(ctx, args)
	if err != nil {
		return ErrorResult("Error: " + err.Error()), fmt.Errorf("tool %s: %w", name, err)
	}
	if res.Content == nil {
		res.Content = []ContentBlock{}
	}
	return res, nil
}
