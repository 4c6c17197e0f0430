// Package a2a serves agents over the A2A JSON-RPC protocol and provides a
// client for it.
package a2a

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrTaskNotFound is returned by a TaskStore for an unknown task id.
var ErrTaskNotFound = errors.New("a2a: task not found")

type TaskState string

const (
	TaskStateSubmitted TaskState = "submitted"
	TaskStateWorking   TaskState = "working"
	TaskStateCompleted TaskState = "completed"
	TaskStateFailed    TaskState = "failed"
	TaskStateCanceled  TaskState = "canceled"
)

// Terminal reports whether no further updates follow s.
func (s TaskState) Terminal() bool {
	switch s {
	case TaskStateCompleted, TaskStateFailed, TaskStateCanceled:
		return true
	}
	return false
}

type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

const (
	PartKindText = "text"
	PartKindData = "data"
	PartKindFile = "file"
)

type FileContent struct {
	Name     string `json:"name,omitempty" msgpack:"name,omitempty"`
	MimeType string `json:"mimeType,omitempty" msgpack:"mime_type,omitempty"`
	Bytes    string `json:"bytes,omitempty" msgpack:"bytes,omitempty"`
	URI      string `json:"uri,omitempty" msgpack:"uri,omitempty"`
}

// Part is one piece of message content, discriminated by Kind.
type Part struct {
	Kind string         `json:"kind" msgpack:"kind"`
	Text string         `json:"text,omitempty" msgpack:"text,omitempty"`
	Data map[string]any `json:"data,omitempty" msgpack:"data,omitempty"`
	File *FileContent   `json:"file,omitempty" msgpack:"file,omitempty"`
}

func TextPart(text string) Part {
	return Part{Kind: PartKindText, Text: text}
}

type Message struct {
	Kind      string `json:"kind" msgpack:"kind"`
	Role      Role   `json:"role" msgpack:"role"`
	Parts     []Part `json:"parts" msgpack:"parts"`
	MessageID string `json:"messageId" msgpack:"message_id"`
	TaskID    string `json:"taskId,omitempty" msgpack:"task_id,omitempty"`
	ContextID string `json:"contextId,omitempty" msgpack:"context_id,omitempty"`
}

// NewAgentTextMessage builds an agent message bound to a task.
func NewAgentTextMessage(text, contextID, taskID string) *Message {
	return &Message{
		Kind:      "message",
		Role:      RoleAgent,
		Parts:     []Part{TextPart(text)},
		MessageID: uuid.NewString(),
		TaskID:    taskID,
		ContextID: contextID,
	}
}

// NewUserTextMessage builds a user message that starts a new task.
func NewUserTextMessage(text string) *Message {
	return &Message{
		Kind:      "message",
		Role:      RoleUser,
		Parts:     []Part{TextPart(text)},
		MessageID: uuid.NewString(),
	}
}

// Text joins the text parts of m.
func (m *Message) Text() string {
	if m == nil {
		return ""
	}
	var s string
	for _, p := range m.Parts {
		if p.Kind != PartKindText {
			continue
		}
		if s != "" {
			s += "\n"
		}
		s += p.Text
	}
	return s
}

type TaskStatus struct {
	State     TaskState `json:"state" msgpack:"state"`
	Message   *Message  `json:"message,omitempty" msgpack:"message,omitempty"`
	Timestamp time.Time `json:"timestamp" msgpack:"timestamp"`
}

type Artifact struct {
	ArtifactID string `json:"artifactId" msgpack:"artifact_id"`
	Name       string `json:"name,omitempty" msgpack:"name,omitempty"`
	Parts      []Part `json:"parts" msgpack:"parts"`
}

type Task struct {
	Kind      string     `json:"kind" msgpack:"kind"`
	ID        string     `json:"id" msgpack:"id"`
	ContextID string     `json:"contextId" msgpack:"context_id"`
	Status    TaskStatus `json:"status" msgpack:"status"`
	Artifacts []Artifact `json:"artifacts,omitempty" msgpack:"artifacts,omitempty"`
	History   []*Message `json:"history,omitempty" msgpack:"history,omitempty"`
}

// NewTask starts a submitted task for msg. The context id of msg is kept
// when set.
func NewTask(msg *Message) *Task {
	contextID := msg.ContextID
	if contextID == "" {
		contextID = uuid.NewString()
	}
	t := &Task{
		Kind:      "task",
		ID:        uuid.NewString(),
		ContextID: contextID,
		Status:    TaskStatus{State: TaskStateSubmitted, Timestamp: time.Now().UTC()},
	}
	m := *msg
	m.TaskID = t.ID
	m.ContextID = contextID
	t.History = []*Message{&m}
	return t
}

// Answer returns the text of the first artifact, or of the final status
// message when there is none.
func (t *Task) Answer() string {
	for _, a := range t.Artifacts {
		for _, p := range a.Parts {
			if p.Kind == PartKindText {
				return p.Text
			}
		}
	}
	if t.Status.Message != nil {
		return t.Status.Message.Text()
	}
	return ""
}

type TaskStatusUpdateEvent struct {
	Kind      string     `json:"kind"`
	TaskID    string     `json:"taskId"`
	ContextID string     `json:"contextId"`
	Status    TaskStatus `json:"status"`
	Final     bool       `json:"final"`
}

type TaskArtifactUpdateEvent struct {
	Kind      string   `json:"kind"`
	TaskID    string   `json:"taskId"`
	ContextID string   `json:"contextId"`
	Artifact  Artifact `json:"artifact"`
	LastChunk bool     `json:"lastChunk"`
}

// Event is one item of a task stream: *Task, *TaskStatusUpdateEvent or
// *TaskArtifactUpdateEvent.
type Event interface {
	taskID() string
	final() bool
}

func (t *Task) taskID() string { return t.ID }
func (t *Task) final() bool    { return t.Status.State.Terminal() }

func (e *TaskStatusUpdateEvent) taskID() string { return e.TaskID }
func (e *TaskStatusUpdateEvent) final() bool    { return e.Final }

func (e *TaskArtifactUpdateEvent) taskID() string { return e.TaskID }
func (e *TaskArtifactUpdateEvent) final() bool    { return false }

type AgentCapabilities struct {
	Streaming         bool `json:"streaming"`
	PushNotifications bool `json:"pushNotifications"`
}

type AgentSkill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	Examples    []string `json:"examples,omitempty"`
}

// AgentCard is the public description served at /.well-known/agent.json.
type AgentCard struct {
	Name               string            `json:"name"`
	Description        string            `json:"description"`
	URL                string            `json:"url"`
	Version            string            `json:"version"`
	ProtocolVersion    string            `json:"protocolVersion,omitempty"`
	DefaultInputModes  []string          `json:"defaultInputModes"`
	DefaultOutputModes []string          `json:"defaultOutputModes"`
	Capabilities       AgentCapabilities `json:"capabilities"`
	Skills             []AgentSkill      `json:"skills"`
}
