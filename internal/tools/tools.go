// Package tools defines the built-in tool registry: a static catalog of
// locally-handled tools that requires no child process. The MCP client
// consumes it as if it were an always-available zero-latency server.
package tools

import (
	"context"
	"sort"
	"sync"
)

// Handler executes a tool call with the given arguments and returns the
// result as text.
type Handler func(ctx context.Context, args map[string]any) (string, error)

// Tool represents a callable built-in tool. InputSchema is a
// JSON-Schema-like object (type, properties, required) describing the
// accepted arguments; it is passed through to catalog consumers without
// interpretation.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
	Handler     Handler        `json:"-"`
}

// Registry holds the built-in tools. Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds a tool to the registry. An existing tool with the same
// name is replaced.
func (r *Registry) Register(t *Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name] = t
}

// Get returns the named tool, or nil if it is not registered.
func (r *Registry) Get(name string) *Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Has reports whether a tool with the given name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// List returns all registered tools sorted by name.
func (r *Registry) List() []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns the registered tool names sorted alphabetically.
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

// Call executes the named tool. Returns *ErrToolUnavailable if the tool
// is not registered.
func (r *Registry) Call(ctx context.Context, name string, args map[string]any) (string, error) {
	t := r.Get(name)
	if t == nil {
		return "", &ErrToolUnavailable{ToolName: name}
	}
	return t.Handler(ctx, args)
}
