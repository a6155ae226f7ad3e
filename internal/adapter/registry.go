package adapter

import "fmt"

// Registry resolves a node's type string to the Adapter that runs it.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry builds the default registry backing the four executable node
// types: claude, claude-cli, codex, gemini.
func NewRegistry() *Registry {
	claude := NewClaude()
	return &Registry{adapters: map[string]Adapter{
		"claude":     claude,
		"claude-cli": claude,
		"codex":      NewCodex(),
		"gemini":     NewGemini(),
	}}
}

// Register overrides or adds a binding, primarily for tests that swap in a
// Mock adapter under the same node type name.
func (r *Registry) Register(nodeType string, a Adapter) {
	r.adapters[nodeType] = a
}

// Resolve returns the adapter bound to nodeType, or an error if none is
// registered.
func (r *Registry) Resolve(nodeType string) (Adapter, error) {
	a, ok := r.adapters[nodeType]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for node type %q", nodeType)
	}
	return a, nil
}
