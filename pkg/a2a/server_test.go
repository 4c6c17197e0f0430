package a2a

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/haivivi/agentkit/pkg/auth"
	"github.com/haivivi/agentkit/pkg/planexec"
	"github.com/haivivi/agentkit/pkg/storage"
)

// mapStore is a TaskStore over a map.
type mapStore struct {
	mu    sync.Mutex
	tasks map[string]*Task
}

func newMapStore() *mapStore {
	return &mapStore{tasks: make(map[string]*Task)}
}

func (s *mapStore) Get(_ context.Context, id string) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	return t.clone(), nil
}

func (s *mapStore) Save(_ context.Context, t *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID] = t.clone()
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testCard = AgentCard{
	Name:    "Test Agent",
	URL:     "http://localhost/",
	Version: "1.0.0",
	Skills:  []AgentSkill{{ID: "echo", Name: "Echo"}},
}

func newTestServer(t *testing.T, exec Executor, opts ServerOptions) (*Server, *Client) {
	t.Helper()
	if opts.Store == nil {
		opts.Store = newMapStore()
	}
	opts.Logger = testLogger()
	srv, err := NewServer(testCard, exec, opts)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		hs.Close()
		srv.Close()
	})
	return srv, &Client{URL: hs.URL}
}

var echo = ExecutorFunc(func(ctx context.Context, msg *Message, sink planexec.EventSink) (string, error) {
	if err := sink.Notify(ctx, "working on "+msg.Text()); err != nil {
		return "", err
	}
	return "echo: " + msg.Text(), nil
})

func TestServer_Card(t *testing.T) {
	_, c := newTestServer(t, echo, ServerOptions{})
	card, err := c.Card(context.Background())
	if err != nil {
		t.Fatalf("Card: %v", err)
	}
	if card.Name != "Test Agent" || len(card.Skills) != 1 {
		t.Errorf("card = %+v", card)
	}
}

func TestServer_Send(t *testing.T) {
	archive, err := storage.NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	_, c := newTestServer(t, echo, ServerOptions{Archive: archive})
	ctx := context.Background()

	task, err := c.Send(ctx, NewUserTextMessage("hello"))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if task.Status.State != TaskStateCompleted {
		t.Errorf("state = %s", task.Status.State)
	}
	if task.Answer() != "echo: hello" {
		t.Errorf("answer = %q", task.Answer())
	}
	if len(task.Artifacts) != 1 || task.Artifacts[0].Name != "response" {
		t.Errorf("artifacts = %+v", task.Artifacts)
	}
	var sawProgress bool
	for _, m := range task.History {
		if m.Role == RoleAgent && m.Text() == "working on hello" {
			sawProgress = true
		}
	}
	if !sawProgress {
		t.Errorf("history lacks progress message: %+v", task.History)
	}

	got, err := c.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Status.State != TaskStateCompleted || got.ContextID != task.ContextID {
		t.Errorf("stored task = %+v", got)
	}
	if _, err := archive.Get(ctx, ArchiveKey(task.ContextID, task.ID)); err != nil {
		t.Errorf("archive: %v", err)
	}
}

func TestServer_ExecutorError(t *testing.T) {
	failing := ExecutorFunc(func(ctx context.Context, msg *Message, sink planexec.EventSink) (string, error) {
		return "", errors.New("model unavailable")
	})
	_, c := newTestServer(t, failing, ServerOptions{})
	task, err := c.Send(context.Background(), NewUserTextMessage("hi"))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if task.Status.State != TaskStateFailed {
		t.Errorf("state = %s", task.Status.State)
	}
	if !strings.HasPrefix(task.Answer(), "I'm sorry I was unable to fulfill your request.") ||
		!strings.Contains(task.Answer(), "model unavailable") {
		t.Errorf("answer = %q", task.Answer())
	}
}

func TestServer_ExecutorPanic(t *testing.T) {
	panicking := ExecutorFunc(func(ctx context.Context, msg *Message, sink planexec.EventSink) (string, error) {
		panic("boom")
	})
	_, c := newTestServer(t, panicking, ServerOptions{})
	task, err := c.Send(context.Background(), NewUserTextMessage("hi"))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if task.Status.State != TaskStateFailed || !strings.Contains(task.Answer(), "boom") {
		t.Errorf("task = %+v", task)
	}
}

func TestServer_Stream(t *testing.T) {
	_, c := newTestServer(t, echo, ServerOptions{})

	var (
		states    []TaskState
		artifacts int
		first     Event
	)
	err := c.Stream(context.Background(), NewUserTextMessage("hi"), func(e Event) error {
		if first == nil {
			first = e
		}
		switch e := e.(type) {
		case *TaskStatusUpdateEvent:
			states = append(states, e.Status.State)
		case *TaskArtifactUpdateEvent:
			artifacts++
			if e.Artifact.Parts[0].Text != "echo: hi" {
				t.Errorf("artifact = %+v", e.Artifact)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if _, ok := first.(*Task); !ok {
		t.Errorf("first event = %T, want *Task", first)
	}
	want := []TaskState{TaskStateWorking, TaskStateWorking, TaskStateCompleted}
	if len(states) != len(want) {
		t.Fatalf("states = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("states = %v, want %v", states, want)
			break
		}
	}
	if artifacts != 1 {
		t.Errorf("artifacts = %d", artifacts)
	}
}

// blocking waits for cancellation after announcing it started.
func blocking(started chan<- string) Executor {
	return ExecutorFunc(func(ctx context.Context, msg *Message, sink planexec.EventSink) (string, error) {
		started <- sink.(*TaskUpdater).TaskID()
		<-ctx.Done()
		return "", ctx.Err()
	})
}

func TestServer_Cancel(t *testing.T) {
	started := make(chan string, 1)
	_, c := newTestServer(t, blocking(started), ServerOptions{})
	ctx := context.Background()

	done := make(chan *Task, 1)
	go func() {
		task, _ := c.Send(ctx, NewUserTextMessage("wait"))
		done <- task
	}()

	id := <-started
	task, err := c.CancelTask(ctx, id)
	if err != nil {
		t.Fatalf("CancelTask: %v", err)
	}
	if task.Status.State != TaskStateCanceled {
		t.Errorf("state = %s", task.Status.State)
	}
	select {
	case sent := <-done:
		if sent == nil || sent.Status.State != TaskStateCanceled {
			t.Errorf("send result = %+v", sent)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("send did not return after cancel")
	}

	_, err = c.CancelTask(ctx, id)
	var rpcErr *Error
	if !errors.As(err, &rpcErr) || rpcErr.Code != CodeTaskNotCancelable {
		t.Errorf("second cancel err = %v", err)
	}
}

func TestServer_Errors(t *testing.T) {
	_, c := newTestServer(t, echo, ServerOptions{})
	ctx := context.Background()

	_, err := c.GetTask(ctx, "missing")
	var rpcErr *Error
	if !errors.As(err, &rpcErr) || rpcErr.Code != CodeTaskNotFound {
		t.Errorf("GetTask err = %v", err)
	}

	_, err = c.Send(ctx, &Message{Role: RoleUser})
	if !errors.As(err, &rpcErr) || rpcErr.Code != CodeInvalidParams {
		t.Errorf("Send empty err = %v", err)
	}

	var out any
	err = c.call(ctx, "tasks/resubscribe", TaskIDParams{ID: "x"}, &out)
	if !errors.As(err, &rpcErr) || rpcErr.Code != CodeMethodNotFound {
		t.Errorf("unknown method err = %v", err)
	}
}

func TestServer_Middleware(t *testing.T) {
	deny := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":"no token"}`, http.StatusUnauthorized)
		})
	}
	_, c := newTestServer(t, echo, ServerOptions{Middleware: deny})
	if _, err := c.Card(context.Background()); err != nil {
		t.Errorf("card behind middleware: %v", err)
	}
	_, err := c.Send(context.Background(), NewUserTextMessage("hi"))
	if err == nil || !strings.Contains(err.Error(), "no token") {
		t.Errorf("Send err = %v", err)
	}
}

func TestServer_MiddlewareTokenReachesExecutor(t *testing.T) {
	withToken := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(auth.WithToken(r.Context(), "caller-jwt")))
		})
	}
	tokenEcho := ExecutorFunc(func(ctx context.Context, msg *Message, sink planexec.EventSink) (string, error) {
		if tok, ok := auth.TokenFromContext(ctx); ok {
			return "token=" + tok, nil
		}
		return "no token", nil
	})
	_, c := newTestServer(t, tokenEcho, ServerOptions{Middleware: withToken})
	task, err := c.Send(context.Background(), NewUserTextMessage("who am i"))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if task.Answer() != "token=caller-jwt" {
		t.Errorf("answer = %q", task.Answer())
	}
}

func TestServer_CloseCancelsRunningTask(t *testing.T) {
	started := make(chan string, 1)
	srv, c := newTestServer(t, blocking(started), ServerOptions{})

	go c.Send(context.Background(), NewUserTextMessage("wait"))
	<-started

	closed := make(chan struct{})
	go func() {
		srv.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not cancel the running task")
	}
}

func TestServer_WebsocketEvents(t *testing.T) {
	release := make(chan struct{})
	started := make(chan string, 1)
	exec := ExecutorFunc(func(ctx context.Context, msg *Message, sink planexec.EventSink) (string, error) {
		started <- sink.(*TaskUpdater).TaskID()
		<-release
		sink.Notify(ctx, "halfway")
		return "finished", nil
	})
	_, c := newTestServer(t, exec, ServerOptions{})
	ctx := context.Background()

	go c.Send(ctx, NewUserTextMessage("go"))
	id := <-started

	wsURL := "ws" + strings.TrimPrefix(c.URL, "http") + "/tasks/" + id + "/events"
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	var first struct {
		Kind string `json:"kind"`
		ID   string `json:"id"`
	}
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read first: %v", err)
	}
	if first.Kind != "task" || first.ID != id {
		t.Errorf("first = %+v", first)
	}
	close(release)

	var kinds []string
	for {
		var e struct {
			Kind  string `json:"kind"`
			Final bool   `json:"final"`
		}
		if err := conn.ReadJSON(&e); err != nil {
			break
		}
		kinds = append(kinds, e.Kind)
		if e.Final {
			break
		}
	}
	if strings.Join(kinds, ",") != "status-update,artifact-update,status-update" {
		t.Errorf("kinds = %v", kinds)
	}

	// A finished task sends its final state and closes.
	conn2, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial finished: %v", err)
	}
	defer conn2.Close()
	var final Task
	if err := conn2.ReadJSON(&final); err != nil {
		t.Fatalf("read final: %v", err)
	}
	if final.Status.State != TaskStateCompleted {
		t.Errorf("final state = %s", final.Status.State)
	}
}

func TestBroker_DropsSlowSubscriber(t *testing.T) {
	b := newBroker()
	ch, cancel := b.subscribe("t1")
	defer cancel()
	for range subscriberBuffer + 1 {
		b.publish(&TaskStatusUpdateEvent{TaskID: "t1"})
	}
	n := 0
	for range ch {
		n++
	}
	if n != subscriberBuffer {
		t.Errorf("received %d events, want %d", n, subscriberBuffer)
	}
}

func TestTaskUpdater_TerminalIsFinal(t *testing.T) {
	u := &TaskUpdater{
		task:   NewTask(NewUserTextMessage("x")),
		store:  newMapStore(),
		broker: newBroker(),
		logger: testLogger(),
	}
	ctx := context.Background()
	if err := u.Complete(ctx, "done"); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if err := u.Notify(ctx, "late"); !errors.Is(err, ErrTaskTerminal) {
		t.Errorf("Notify after complete: err = %v", err)
	}
	if err := u.Fail(ctx, "late"); !errors.Is(err, ErrTaskTerminal) {
		t.Errorf("Fail after complete: err = %v", err)
	}
	if got := u.Snapshot(); got.Status.State != TaskStateCompleted || len(got.Artifacts) != 1 {
		t.Errorf("task = %+v", got)
	}
}
