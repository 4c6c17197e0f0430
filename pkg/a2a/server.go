package a2a

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/haivivi/agentkit/pkg/planexec"
	"github.com/haivivi/agentkit/pkg/storage"
)

// Paths of the public agent card.
const (
	AgentCardPath       = "/.well-known/agent.json"
	AgentCardPathLegacy = "/.well-known/agent-card.json"
)

// Executor runs one request. Progress goes to sink; the returned string is
// the final answer.
type Executor interface {
	Execute(ctx context.Context, msg *Message, sink planexec.EventSink) (string, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, msg *Message, sink planexec.EventSink) (string, error)

func (f ExecutorFunc) Execute(ctx context.Context, msg *Message, sink planexec.EventSink) (string, error) {
	return f(ctx, msg, sink)
}

// ErrorAnswer is the final text of a task whose executor failed.
func ErrorAnswer(err error) string {
	return fmt.Sprintf("I'm sorry I was unable to fulfill your request. I encountered the following exception: %s", err)
}

type ServerOptions struct {
	// Store is required.
	Store TaskStore

	// Archive receives finished tasks when set.
	Archive storage.Store

	// Middleware wraps the RPC and event endpoints, not the agent card.
	Middleware func(http.Handler) http.Handler

	Logger *slog.Logger
}

type runningTask struct {
	updater *TaskUpdater
	cancel  context.CancelFunc
	release func() bool
	done    chan struct{}
}

// Server serves one agent over A2A JSON-RPC.
type Server struct {
	card     AgentCard
	executor Executor
	opts     ServerOptions
	broker   *broker
	logger   *slog.Logger

	ctx    context.Context
	stop   context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	active map[string]*runningTask
}

func NewServer(card AgentCard, executor Executor, opts ServerOptions) (*Server, error) {
	if executor == nil {
		return nil, errors.New("a2a: executor is required")
	}
	if opts.Store == nil {
		return nil, errors.New("a2a: task store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Server{
		card:     card,
		executor: executor,
		opts:     opts,
		broker:   newBroker(),
		logger:   logger,
		ctx:      ctx,
		stop:     stop,
		active:   make(map[string]*runningTask),
	}, nil
}

// Handler routes the agent card, JSON-RPC and websocket endpoints.
func (s *Server) Handler() http.Handler {
	protected := http.NewServeMux()
	protected.HandleFunc("POST /{$}", s.handleRPC)
	protected.HandleFunc("GET /tasks/{id}/events", s.handleEvents)

	var inner http.Handler = protected
	if s.opts.Middleware != nil {
		inner = s.opts.Middleware(inner)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+AgentCardPath, s.handleCard)
	mux.HandleFunc("GET "+AgentCardPathLegacy, s.handleCard)
	mux.Handle("/", inner)
	return mux
}

// Close cancels running tasks and waits for them to record their final
// state.
func (s *Server) Close() error {
	s.stop()
	s.wg.Wait()
	return nil
}

func (s *Server) handleCard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.card)
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRPC(w, Response{JSONRPC: jsonrpcVersion, ID: nullID, Error: newError(CodeParseError, "parse error: %v", err)})
		return
	}
	id := req.ID
	if len(id) == 0 {
		id = nullID
	}
	if req.JSONRPC != jsonrpcVersion || req.Method == "" {
		writeRPC(w, Response{JSONRPC: jsonrpcVersion, ID: id, Error: newError(CodeInvalidRequest, "invalid request")})
		return
	}
	s.logger.DebugContext(r.Context(), "rpc request", "method", req.Method)

	if req.Method == MethodMessageStream {
		s.handleStream(w, r, id, req.Params)
		return
	}

	var (
		result any
		rpcErr *Error
	)
	switch req.Method {
	case MethodMessageSend:
		result, rpcErr = s.send(r.Context(), req.Params)
	case MethodTasksGet:
		result, rpcErr = s.get(r.Context(), req.Params)
	case MethodTasksCancel:
		result, rpcErr = s.cancel(r.Context(), req.Params)
	default:
		rpcErr = newError(CodeMethodNotFound, "method %q not found", req.Method)
	}
	resp := Response{JSONRPC: jsonrpcVersion, ID: id}
	if rpcErr != nil {
		resp.Error = rpcErr
	} else {
		resp.Result = result
	}
	writeRPC(w, resp)
}

func decodeParams(raw json.RawMessage, v any) *Error {
	if len(raw) == 0 {
		return newError(CodeInvalidParams, "params are required")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return newError(CodeInvalidParams, "invalid params: %v", err)
	}
	return nil
}

func decodeMessage(raw json.RawMessage) (*Message, *Error) {
	var p MessageSendParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.Message == nil || len(p.Message.Parts) == 0 {
		return nil, newError(CodeInvalidParams, "message with at least one part is required")
	}
	if p.Message.Kind == "" {
		p.Message.Kind = "message"
	}
	return p.Message, nil
}

// start records a new task for msg and runs it in the background. When
// subscribe is set the returned channel sees every event of the task.
func (s *Server) start(ctx context.Context, msg *Message, subscribe bool) (*runningTask, <-chan Event, func(), error) {
	task := NewTask(msg)
	u := &TaskUpdater{
		task:    task,
		store:   s.opts.Store,
		broker:  s.broker,
		archive: s.opts.Archive,
		logger:  s.logger,
	}
	if err := u.save(ctx); err != nil {
		return nil, nil, nil, err
	}

	var (
		events      <-chan Event
		unsubscribe = func() {}
	)
	if subscribe {
		events, unsubscribe = s.broker.subscribe(task.ID)
	}

	// The task outlives the request but keeps its values, such as the
	// caller's token. Server shutdown still cancels it.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	rt := &runningTask{
		updater: u,
		cancel:  cancel,
		release: context.AfterFunc(s.ctx, cancel),
		done:    make(chan struct{}),
	}
	s.mu.Lock()
	s.active[task.ID] = rt
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(runCtx, rt, task.History[0].clone())
	return rt, events, unsubscribe, nil
}

func (s *Server) run(ctx context.Context, rt *runningTask, msg *Message) {
	u := rt.updater
	defer s.wg.Done()
	defer close(rt.done)
	defer rt.cancel()
	defer rt.release()
	defer func() {
		s.mu.Lock()
		delete(s.active, u.TaskID())
		s.mu.Unlock()
	}()

	log := s.logger.With("task", u.TaskID(), "context", u.ContextID())
	if err := u.UpdateStatus(ctx, TaskStateWorking, nil); err != nil {
		log.ErrorContext(ctx, "task start failed", "error", err)
		return
	}

	answer, err := s.execute(ctx, msg, u)
	switch {
	case ctx.Err() != nil:
		log.InfoContext(ctx, "task canceled")
		err = u.Cancel(ctx)
	case err != nil:
		log.ErrorContext(ctx, "task failed", "error", err)
		err = u.Fail(ctx, ErrorAnswer(err))
	default:
		err = u.Complete(ctx, answer)
	}
	if err != nil && !errors.Is(err, ErrTaskTerminal) {
		log.ErrorContext(ctx, "task final update failed", "error", err)
	}
}

func (s *Server) execute(ctx context.Context, msg *Message, sink planexec.EventSink) (answer string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.executor.Execute(ctx, msg, sink)
}

func (s *Server) send(ctx context.Context, params json.RawMessage) (any, *Error) {
	msg, rpcErr := decodeMessage(params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	rt, _, _, err := s.start(ctx, msg, false)
	if err != nil {
		return nil, newError(CodeInternalError, "%v", err)
	}
	select {
	case <-rt.done:
	case <-ctx.Done():
	}
	return rt.updater.Snapshot(), nil
}

func (s *Server) get(ctx context.Context, params json.RawMessage) (any, *Error) {
	var p TaskQueryParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	task, err := s.opts.Store.Get(ctx, p.ID)
	if errors.Is(err, ErrTaskNotFound) {
		return nil, newError(CodeTaskNotFound, "task %s not found", p.ID)
	}
	if err != nil {
		return nil, newError(CodeInternalError, "%v", err)
	}
	if p.HistoryLength != nil {
		task.withHistory(*p.HistoryLength)
	}
	return task, nil
}

func (s *Server) cancel(ctx context.Context, params json.RawMessage) (any, *Error) {
	var p TaskIDParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	s.mu.Lock()
	rt := s.active[p.ID]
	s.mu.Unlock()
	if rt != nil {
		rt.cancel()
		select {
		case <-rt.done:
		case <-ctx.Done():
			return nil, newError(CodeInternalError, "%v", ctx.Err())
		}
		return rt.updater.Snapshot(), nil
	}

	task, err := s.opts.Store.Get(ctx, p.ID)
	if errors.Is(err, ErrTaskNotFound) {
		return nil, newError(CodeTaskNotFound, "task %s not found", p.ID)
	}
	if err != nil {
		return nil, newError(CodeInternalError, "%v", err)
	}
	return nil, newError(CodeTaskNotCancelable, "task %s is %s", task.ID, task.Status.State)
}

var nullID = json.RawMessage("null")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeRPC(w http.ResponseWriter, resp Response) {
	writeJSON(w, http.StatusOK, resp)
}
