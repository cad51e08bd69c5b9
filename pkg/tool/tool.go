// Package tool defines the capability contract for tools the reasoning
// engine may invoke, and a registry binding them into named sets per
// invocation.
package tool

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Handler executes a tool with named arguments and returns its textual
// output. Tool-level validation failures are returned as an error string
// in the output, not as an error; errors are reserved for invocation
// failures.
type Handler func(ctx context.Context, args map[string]interface{}) (string, error)

// Parameter describes one named argument of a tool.
type Parameter struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// Definition is a tool capability: name, description, schema, handler.
type Definition struct {
	Name        string
	Description string
	Parameters  []Parameter
	Handler     Handler
}

// InputSchema renders the tool's parameters as a JSON-schema object for
// provider function-calling APIs.
func (d Definition) InputSchema() map[string]interface{} {
	properties := map[string]interface{}{}
	required := []string{}
	for _, p := range d.Parameters {
		properties[p.Name] = map[string]interface{}{
			"type":        p.Type,
			"description": p.Description,
		}
		if p.Required {
			required = append(required, p.Name)
		}
	}

	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// Registry holds the registered tool set. Registration order is preserved
// so tool lists presented to the model are stable.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Definition
	order []string
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Definition)}
}

// Register adds a tool definition. Names must be unique and non-empty.
func (r *Registry) Register(def Definition) error {
	name := strings.TrimSpace(def.Name)
	if name == "" {
		return fmt.Errorf("tool name is required")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool %q has no handler", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool already registered: %s", name)
	}
	def.Name = name
	r.tools[name] = def
	r.order = append(r.order, name)
	return nil
}

// Get returns the named tool definition, or false when absent.
func (r *Registry) Get(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.tools[name]
	return def, ok
}

// All returns every registered tool in registration order.
func (r *Registry) All() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name])
	}
	return defs
}

// Without returns the registered tools minus the named exclusions,
// preserving order. Plan mode uses this to withhold the plan-declaration
// tool from executor sessions.
func (r *Registry) Without(excluded ...string) []Definition {
	skip := make(map[string]struct{}, len(excluded))
	for _, name := range excluded {
		skip[name] = struct{}{}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		if _, drop := skip[name]; drop {
			continue
		}
		defs = append(defs, r.tools[name])
	}
	return defs
}
