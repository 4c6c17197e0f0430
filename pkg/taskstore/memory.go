package taskstore

import (
	"bytes"
	"context"
	"slices"
	"sync"

	"github.com/haivivi/agentkit/pkg/a2a"
)

var _ Store = (*Memory)(nil)

// Memory keeps encoded tasks in a map. Stored tasks never alias caller
// memory.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, id string) (*a2a.Task, error) {
	m.mu.RLock()
	b, ok := m.data[string(taskKey(id))]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return decode(b)
}

func (m *Memory) Save(_ context.Context, t *a2a.Task) error {
	b, err := encode(t)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.data[string(taskKey(t.ID))] = b
	m.data[string(contextKey(t.ContextID, t.ID))] = nil
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := string(taskKey(id))
	b, ok := m.data[k]
	if !ok {
		return nil
	}
	delete(m.data, k)
	if t, err := decode(b); err == nil {
		delete(m.data, string(contextKey(t.ContextID, id)))
	}
	return nil
}

func (m *Memory) ListByContext(_ context.Context, contextID string) ([]*a2a.Task, error) {
	prefix := contextPrefix(contextID)
	m.mu.RLock()
	var ids []string
	for k := range m.data {
		if bytes.HasPrefix([]byte(k), prefix) {
			ids = append(ids, k[len(prefix):])
		}
	}
	slices.Sort(ids)
	encoded := make([][]byte, 0, len(ids))
	for _, id := range ids {
		encoded = append(encoded, m.data[string(taskKey(id))])
	}
	m.mu.RUnlock()

	tasks := make([]*a2a.Task, 0, len(encoded))
	for _, b := range encoded {
		t, err := decode(b)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

func (m *Memory) Close() error {
	return nil
}
