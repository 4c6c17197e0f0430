package a2a

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// handleStream answers message/stream with server-sent events. Each event
// is a JSON-RPC response whose result is a Task or an update event.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request, id json.RawMessage, params json.RawMessage) {
	msg, rpcErr := decodeMessage(params)
	if rpcErr != nil {
		writeRPC(w, Response{JSONRPC: jsonrpcVersion, ID: id, Error: rpcErr})
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeRPC(w, Response{JSONRPC: jsonrpcVersion, ID: id, Error: newError(CodeInternalError, "streaming unsupported")})
		return
	}
	rt, events, unsubscribe, err := s.start(r.Context(), msg, true)
	if err != nil {
		writeRPC(w, Response{JSONRPC: jsonrpcVersion, ID: id, Error: newError(CodeInternalError, "%v", err)})
		return
	}
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	send := func(e Event) bool {
		b, err := json.Marshal(Response{JSONRPC: jsonrpcVersion, ID: id, Result: e})
		if err != nil {
			s.logger.ErrorContext(r.Context(), "encode stream event", "error", err)
			return false
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", b); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	if !send(rt.updater.Snapshot()) {
		return
	}
	for {
		select {
		case e, ok := <-events:
			if !ok {
				return
			}
			if !send(e) {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}
