// Package toolkit collects tools for agents: a registry, adapters for tools
// served over MCP, and a web search client.
package toolkit

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/haivivi/agentkit/pkg/genx"
)

var ErrDuplicateTool = errors.New("toolkit: duplicate tool")

// Registry keeps tools in registration order. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools []*genx.FuncTool
}

func (r *Registry) Add(tools ...*genx.FuncTool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range tools {
		if slices.ContainsFunc(r.tools, func(e *genx.FuncTool) bool { return e.Name == t.Name }) {
			return fmt.Errorf("%w: %s", ErrDuplicateTool, t.Name)
		}
		r.tools = append(r.tools, t)
	}
	return nil
}

func (r *Registry) Get(name string) (*genx.FuncTool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i := slices.IndexFunc(r.tools, func(t *genx.FuncTool) bool { return t.Name == name })
	if i < 0 {
		return nil, false
	}
	return r.tools[i], true
}

// Tools returns a snapshot of the registered tools.
func (r *Registry) Tools() []*genx.FuncTool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.tools)
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for _, t := range r.tools {
		names = append(names, t.Name)
	}
	return names
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
