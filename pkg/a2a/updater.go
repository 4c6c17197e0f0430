package a2a

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haivivi/agentkit/pkg/planexec"
	"github.com/haivivi/agentkit/pkg/storage"
)

// ErrTaskTerminal is returned when updating a task that already finished.
var ErrTaskTerminal = errors.New("a2a: task already in a terminal state")

const responseArtifact = "response"

var _ planexec.EventSink = (*TaskUpdater)(nil)

// TaskUpdater records the progress of one task and publishes it to
// subscribers. It is the EventSink handed to agents.
type TaskUpdater struct {
	mu      sync.Mutex
	task    *Task
	store   TaskStore
	broker  *broker
	archive storage.Store
	logger  *slog.Logger
}

func (u *TaskUpdater) TaskID() string {
	return u.task.ID
}

func (u *TaskUpdater) ContextID() string {
	return u.task.ContextID
}

// Snapshot returns a copy of the current task.
func (u *TaskUpdater) Snapshot() *Task {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.task.clone()
}

// Notify reports progress as a working status with an agent message.
func (u *TaskUpdater) Notify(ctx context.Context, message string) error {
	u.logger.InfoContext(ctx, "emitting event", "task", u.task.ID, "message", message)
	return u.UpdateStatus(ctx, TaskStateWorking, u.agentMessage(message))
}

func (u *TaskUpdater) agentMessage(text string) *Message {
	return NewAgentTextMessage(text, u.task.ContextID, u.task.ID)
}

// UpdateStatus moves the task to state. Terminal states close the stream.
func (u *TaskUpdater) UpdateStatus(ctx context.Context, state TaskState, msg *Message) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.updateStatus(ctx, state, msg)
}

func (u *TaskUpdater) updateStatus(ctx context.Context, state TaskState, msg *Message) error {
	if u.task.Status.State.Terminal() {
		return ErrTaskTerminal
	}
	u.task.Status = TaskStatus{State: state, Message: msg, Timestamp: time.Now().UTC()}
	if msg != nil {
		u.task.History = append(u.task.History, msg)
	}
	if err := u.save(ctx); err != nil {
		return err
	}
	u.broker.publish(&TaskStatusUpdateEvent{
		Kind:      "status-update",
		TaskID:    u.task.ID,
		ContextID: u.task.ContextID,
		Status:    TaskStatus{State: state, Message: msg.clone(), Timestamp: u.task.Status.Timestamp},
		Final:     state.Terminal(),
	})
	return nil
}

func (u *TaskUpdater) addArtifact(ctx context.Context, text string) error {
	a := Artifact{
		ArtifactID: uuid.NewString(),
		Name:       responseArtifact,
		Parts:      []Part{TextPart(text)},
	}
	u.task.Artifacts = append(u.task.Artifacts, a)
	if err := u.save(ctx); err != nil {
		return err
	}
	u.broker.publish(&TaskArtifactUpdateEvent{
		Kind:      "artifact-update",
		TaskID:    u.task.ID,
		ContextID: u.task.ContextID,
		Artifact:  a,
		LastChunk: true,
	})
	return nil
}

// Complete attaches answer as the response artifact and completes the task.
func (u *TaskUpdater) Complete(ctx context.Context, answer string) error {
	return u.finish(ctx, TaskStateCompleted, answer)
}

// Fail attaches text as the response artifact and fails the task.
func (u *TaskUpdater) Fail(ctx context.Context, text string) error {
	return u.finish(ctx, TaskStateFailed, text)
}

func (u *TaskUpdater) finish(ctx context.Context, state TaskState, text string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.task.Status.State.Terminal() {
		return ErrTaskTerminal
	}
	if err := u.addArtifact(ctx, text); err != nil {
		return err
	}
	if err := u.updateStatus(ctx, state, u.agentMessage(text)); err != nil {
		return err
	}
	u.archiveTask(ctx)
	return nil
}

// Cancel marks the task canceled.
func (u *TaskUpdater) Cancel(ctx context.Context) error {
	return u.UpdateStatus(ctx, TaskStateCanceled, u.agentMessage("Task canceled"))
}

// save writes the task even when ctx is already canceled, so the final
// state of an aborted run is kept.
func (u *TaskUpdater) save(ctx context.Context) error {
	if err := u.store.Save(context.WithoutCancel(ctx), u.task.clone()); err != nil {
		return fmt.Errorf("a2a: save task %s: %w", u.task.ID, err)
	}
	return nil
}

func (u *TaskUpdater) archiveTask(ctx context.Context) {
	if u.archive == nil {
		return
	}
	b, err := json.Marshal(u.task)
	if err != nil {
		u.logger.WarnContext(ctx, "archive encode failed", "task", u.task.ID, "error", err)
		return
	}
	key := ArchiveKey(u.task.ContextID, u.task.ID)
	if err := u.archive.Put(context.WithoutCancel(ctx), key, b); err != nil {
		u.logger.WarnContext(ctx, "archive failed", "task", u.task.ID, "key", key, "error", err)
	}
}

// ArchiveKey is where a finished task is archived.
func ArchiveKey(contextID, taskID string) string {
	return "tasks/" + contextID + "/" + taskID + ".json"
}
