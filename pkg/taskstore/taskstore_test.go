package taskstore_test

import (
	"context"
	"errors"
	"testing"

	"github.com/haivivi/agentkit/pkg/a2a"
	"github.com/haivivi/agentkit/pkg/taskstore"
)

func newBadgerStore(t *testing.T) taskstore.Store {
	t.Helper()
	s, err := taskstore.NewBadger(taskstore.BadgerOptions{InMemory: true})
	if err != nil {
		t.Fatalf("NewBadger: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func stores(t *testing.T) map[string]taskstore.Store {
	return map[string]taskstore.Store{
		"memory": taskstore.NewMemory(),
		"badger": newBadgerStore(t),
	}
}

func newTask(contextID, text string) *a2a.Task {
	msg := a2a.NewUserTextMessage(text)
	msg.ContextID = contextID
	return a2a.NewTask(msg)
}

func TestStore_SaveGet(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			task := newTask("ctx-1", "hello")
			task.Status.State = a2a.TaskStateCompleted
			task.Status.Message = a2a.NewAgentTextMessage("done", task.ContextID, task.ID)
			task.Artifacts = []a2a.Artifact{{ArtifactID: "a1", Name: "response", Parts: []a2a.Part{a2a.TextPart("answer")}}}

			if _, err := s.Get(ctx, task.ID); !errors.Is(err, a2a.ErrTaskNotFound) {
				t.Fatalf("Get before Save: err = %v", err)
			}
			if err := s.Save(ctx, task); err != nil {
				t.Fatalf("Save: %v", err)
			}
			got, err := s.Get(ctx, task.ID)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got.ID != task.ID || got.ContextID != "ctx-1" || got.Status.State != a2a.TaskStateCompleted {
				t.Errorf("task = %+v", got)
			}
			if !got.Status.Timestamp.Equal(task.Status.Timestamp) {
				t.Errorf("timestamp = %v, want %v", got.Status.Timestamp, task.Status.Timestamp)
			}
			if got.Answer() != "answer" {
				t.Errorf("Answer = %q", got.Answer())
			}
			if len(got.History) != 1 || got.History[0].Text() != "hello" {
				t.Errorf("History = %+v", got.History)
			}

			got.Status.State = a2a.TaskStateFailed
			again, _ := s.Get(ctx, task.ID)
			if again.Status.State != a2a.TaskStateCompleted {
				t.Error("stored task aliases returned value")
			}
		})
	}
}

func TestStore_ListByContextAndDelete(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a := newTask("ctx-a", "one")
			b := newTask("ctx-a", "two")
			c := newTask("ctx-ab", "three")
			for _, task := range []*a2a.Task{a, b, c, b} {
				if err := s.Save(ctx, task); err != nil {
					t.Fatalf("Save: %v", err)
				}
			}

			tasks, err := s.ListByContext(ctx, "ctx-a")
			if err != nil {
				t.Fatalf("ListByContext: %v", err)
			}
			if len(tasks) != 2 {
				t.Fatalf("ListByContext = %d tasks, want 2", len(tasks))
			}
			for _, task := range tasks {
				if task.ContextID != "ctx-a" {
					t.Errorf("task from context %q", task.ContextID)
				}
			}

			if err := s.Delete(ctx, a.ID); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if err := s.Delete(ctx, a.ID); err != nil {
				t.Fatalf("Delete twice: %v", err)
			}
			if _, err := s.Get(ctx, a.ID); !errors.Is(err, taskstore.ErrNotFound) {
				t.Errorf("Get deleted: err = %v", err)
			}
			tasks, _ = s.ListByContext(ctx, "ctx-a")
			if len(tasks) != 1 || tasks[0].ID != b.ID {
				t.Errorf("after delete = %+v", tasks)
			}
		})
	}
}

func TestNewBadger_RequiresDir(t *testing.T) {
	if _, err := taskstore.NewBadger(taskstore.BadgerOptions{}); err == nil {
		t.Error("expected error without Dir")
	}
}
