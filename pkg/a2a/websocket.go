package a2a

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const wsWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// handleEvents streams the events of a task over a websocket as JSON
// messages. A task that already finished sends its final state and closes.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	s.mu.Lock()
	rt := s.active[id]
	var (
		events      <-chan Event
		unsubscribe = func() {}
	)
	if rt != nil {
		events, unsubscribe = s.broker.subscribe(id)
	}
	s.mu.Unlock()
	defer unsubscribe()

	var current *Task
	if rt != nil {
		current = rt.updater.Snapshot()
	} else {
		task, err := s.opts.Store.Get(r.Context(), id)
		if errors.Is(err, ErrTaskNotFound) {
			http.Error(w, "task not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		current = task
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WarnContext(r.Context(), "websocket upgrade failed", "task", id, "error", err)
		return
	}
	defer conn.Close()

	// Reads only detect the peer going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	write := func(v any) bool {
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteJSON(v) == nil
	}
	if !write(current) || events == nil || current.Status.State.Terminal() {
		closeWS(conn)
		return
	}
	for {
		select {
		case e, ok := <-events:
			if !ok {
				closeWS(conn)
				return
			}
			if !write(e) {
				return
			}
		case <-gone:
			return
		}
	}
}

func closeWS(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}
