package a2a

import (
	"context"
	"slices"
)

// TaskStore persists tasks. Get returns an error matching ErrTaskNotFound
// for unknown ids.
type TaskStore interface {
	Get(ctx context.Context, id string) (*Task, error)
	Save(ctx context.Context, t *Task) error
}

func (m *Message) clone() *Message {
	if m == nil {
		return nil
	}
	c := *m
	c.Parts = slices.Clone(m.Parts)
	return &c
}

func (t *Task) clone() *Task {
	c := *t
	c.Status.Message = t.Status.Message.clone()
	c.Artifacts = make([]Artifact, len(t.Artifacts))
	for i, a := range t.Artifacts {
		a.Parts = slices.Clone(a.Parts)
		c.Artifacts[i] = a
	}
	c.History = make([]*Message, len(t.History))
	for i, m := range t.History {
		c.History[i] = m.clone()
	}
	return &c
}

// withHistory trims the history to the last n messages. Negative n keeps all.
func (t *Task) withHistory(n int) *Task {
	if n < 0 || n >= len(t.History) {
		return t
	}
	t.History = t.History[len(t.History)-n:]
	return t
}
