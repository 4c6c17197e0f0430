// Package tools serves MCP servers over the transports the agents dial.
//
// The subpackages hold the servers themselves.
package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/server"
)

const (
	TransportStdio          = "stdio"
	TransportSSE            = "sse"
	TransportStreamableHTTP = "streamable-http"
)

// DefaultAddr is where HTTP transports listen when no address is given.
const DefaultAddr = "0.0.0.0:8000"

const shutdownTimeout = 5 * time.Second

type ServeOptions struct {
	// Transport is one of the Transport constants. Empty means
	// streamable-http.
	Transport string

	// Addr is the listen address of HTTP transports.
	Addr string

	// Middleware wraps HTTP transports, typically with token validation.
	Middleware func(http.Handler) http.Handler

	Logger *slog.Logger
}

// StreamableHTTPPath is where the streamable-http transport is mounted.
const StreamableHTTPPath = "/mcp"

// Handler returns the HTTP handler of an HTTP transport.
func Handler(s *server.MCPServer, transport string) (http.Handler, error) {
	mux := http.NewServeMux()
	switch transport {
	case TransportSSE:
		mux.Handle("/", server.NewSSEServer(s))
	case TransportStreamableHTTP, "":
		mux.Handle(StreamableHTTPPath, server.NewStreamableHTTPServer(s))
	default:
		return nil, fmt.Errorf("tools: unknown transport %q", transport)
	}
	return mux, nil
}

// Serve runs s until ctx is done or the transport fails.
func Serve(ctx context.Context, s *server.MCPServer, opts ServeOptions) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Transport == TransportStdio {
		logger.InfoContext(ctx, "serving mcp on stdio")
		return server.NewStdioServer(s).Listen(ctx, os.Stdin, os.Stdout)
	}

	h, err := Handler(s, opts.Transport)
	if err != nil {
		return err
	}
	if opts.Middleware != nil {
		h = opts.Middleware(h)
	}
	addr := opts.Addr
	if addr == "" {
		addr = DefaultAddr
	}
	return ListenAndServe(ctx, &http.Server{Addr: addr, Handler: h}, logger)
}

// ListenAndServe runs srv until ctx is done, then shuts it down.
func ListenAndServe(ctx context.Context, srv *http.Server, logger *slog.Logger) error {
	errc := make(chan error, 1)
	go func() {
		logger.InfoContext(ctx, "listening", "addr", srv.Addr)
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.WarnContext(ctx, "shutdown", "error", err)
		}
		return nil
	}
}
