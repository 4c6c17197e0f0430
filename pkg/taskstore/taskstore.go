// Package taskstore persists A2A tasks. Tasks are msgpack-encoded and keyed
// by id, with a secondary index by context id.
package taskstore

import (
	"context"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/haivivi/agentkit/pkg/a2a"
)

// ErrNotFound matches a2a.ErrTaskNotFound with errors.Is.
var ErrNotFound = fmt.Errorf("taskstore: %w", a2a.ErrTaskNotFound)

// Store is an a2a.TaskStore that can also list the tasks of a context.
type Store interface {
	a2a.TaskStore
	ListByContext(ctx context.Context, contextID string) ([]*a2a.Task, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

func taskKey(id string) []byte {
	return []byte("task:" + id)
}

func contextKey(contextID, id string) []byte {
	return []byte("ctx:" + contextID + ":" + id)
}

func contextPrefix(contextID string) []byte {
	return []byte("ctx:" + contextID + ":")
}

func encode(t *a2a.Task) ([]byte, error) {
	b, err := msgpack.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("taskstore: encode task %s: %w", t.ID, err)
	}
	return b, nil
}

func decode(b []byte) (*a2a.Task, error) {
	var t a2a.Task
	if err := msgpack.Unmarshal(b, &t); err != nil {
		return nil, fmt.Errorf("taskstore: decode task: %w", err)
	}
	return &t, nil
}
