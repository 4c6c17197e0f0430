// Package generators provides a multiplexer for genx.Generator routing.
package generators

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/haivivi/agentkit/pkg/genx"
)

var _ genx.Generator = (*Mux)(nil)

// DefaultMux is the default generator multiplexer.
var DefaultMux = NewMux()

// Handle registers a generator for the given pattern to the default mux.
func Handle(pattern string, gen genx.Generator) error {
	return DefaultMux.Handle(pattern, gen)
}

// Mux routes requests to registered generators by model name. A pattern
// ending in "/*" matches every name under that prefix; the longest match wins.
type Mux struct {
	mu   sync.RWMutex
	gens map[string]genx.Generator
}

// NewMux creates a new generator multiplexer.
func NewMux() *Mux {
	return &Mux{gens: make(map[string]genx.Generator)}
}

// Handle registers a generator for the given pattern.
// Returns an error if a generator is already registered for the pattern.
func (gm *Mux) Handle(pattern string, gen genx.Generator) error {
	if gen == nil {
		return fmt.Errorf("nil generator for %s", pattern)
	}
	gm.mu.Lock()
	defer gm.mu.Unlock()
	if _, ok := gm.gens[pattern]; ok {
		return fmt.Errorf("generator already registered for %s", pattern)
	}
	gm.gens[pattern] = gen
	return nil
}

// Names returns the registered patterns in sorted order.
func (gm *Mux) Names() []string {
	gm.mu.RLock()
	defer gm.mu.RUnlock()
	names := make([]string, 0, len(gm.gens))
	for k := range gm.gens {
		names = append(names, k)
	}
	slices.Sort(names)
	return names
}

func (gm *Mux) Generate(ctx context.Context, name string, mctx genx.ModelContext) (*genx.Reply, error) {
	gen, err := gm.get(name)
	if err != nil {
		return nil, err
	}
	return gen.Generate(ctx, name, mctx)
}

func (gm *Mux) Invoke(ctx context.Context, name string, mctx genx.ModelContext, tool *genx.FuncTool) (genx.Usage, *genx.FuncCall, error) {
	gen, err := gm.get(name)
	if err != nil {
		return genx.Usage{}, nil, err
	}
	return gen.Invoke(ctx, name, mctx, tool)
}

func (gm *Mux) get(name string) (genx.Generator, error) {
	gm.mu.RLock()
	defer gm.mu.RUnlock()
	if gen, ok := gm.gens[name]; ok {
		return gen, nil
	}
	var (
		best    genx.Generator
		bestLen = -1
	)
	for pattern, gen := range gm.gens {
		prefix, ok := strings.CutSuffix(pattern, "*")
		if !ok || !strings.HasPrefix(name, prefix) {
			continue
		}
		if len(prefix) > bestLen {
			best, bestLen = gen, len(prefix)
		}
	}
	if best == nil {
		return nil, fmt.Errorf("generator not found for %s", name)
	}
	return best, nil
}
