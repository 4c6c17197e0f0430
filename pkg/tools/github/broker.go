// Package github federates an upstream GitHub MCP server.
//
// The Broker lists the upstream tools once and re-exposes them. Each
// downstream MCP session gets its own upstream session, authorized with the
// caller's bearer token, optionally exchanged for one aimed at GitHub.
package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/haivivi/agentkit/pkg/auth"
)

// DefaultUpstreamURL is GitHub's hosted MCP server.
const DefaultUpstreamURL = "https://api.githubcopilot.com/mcp/"

const clientName = "agentkit-github-broker"

// Dialer opens and initializes an upstream client sending authorization
// as its Authorization header.
type Dialer func(ctx context.Context, authorization string) (*client.Client, error)

// TokenExchanger trades the caller's token for an upstream one.
type TokenExchanger interface {
	Exchange(ctx context.Context, subject string) (string, error)
}

type BrokerOptions struct {
	// UpstreamURL defaults to DefaultUpstreamURL.
	UpstreamURL string

	// InitAuthHeader authorizes tool discovery and keepalive pings. It is
	// also used for callers that present no token.
	InitAuthHeader string

	// Exchanger, when set, exchanges caller tokens before they go upstream.
	Exchanger TokenExchanger

	// Dial replaces the streamable HTTP dialer.
	Dial Dialer

	Version string
	Logger  *slog.Logger
}

// Broker is an MCP server forwarding tool calls upstream.
type Broker struct {
	opts   BrokerOptions
	logger *slog.Logger
	probe  *client.Client
	tools  []mcp.Tool
	server *server.MCPServer

	mu       sync.Mutex
	sessions map[string]*client.Client
}

// NewBroker connects to the upstream server and discovers its tools.
func NewBroker(ctx context.Context, opts BrokerOptions) (*Broker, error) {
	if opts.InitAuthHeader == "" {
		return nil, errors.New(`github: init auth header is required, e.g. "Bearer ${GITHUB_TOKEN}"`)
	}
	if opts.UpstreamURL == "" {
		opts.UpstreamURL = DefaultUpstreamURL
	}
	if opts.Version == "" {
		opts.Version = "0.1.0"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	b := &Broker{
		opts:     opts,
		logger:   logger,
		sessions: make(map[string]*client.Client),
	}
	if b.opts.Dial == nil {
		b.opts.Dial = b.dialHTTP
	}

	probe, err := b.opts.Dial(ctx, opts.InitAuthHeader)
	if err != nil {
		return nil, fmt.Errorf("github: connect upstream %s: %w", opts.UpstreamURL, err)
	}
	res, err := probe.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		probe.Close()
		return nil, fmt.Errorf("github: list upstream tools: %w", err)
	}
	b.probe = probe
	b.tools = res.Tools
	b.server = b.newServer()
	return b, nil
}

func (b *Broker) dialHTTP(ctx context.Context, authorization string) (*client.Client, error) {
	var opts []transport.StreamableHTTPCOption
	if authorization != "" {
		opts = append(opts, transport.WithHTTPHeaders(map[string]string{"Authorization": authorization}))
	}
	c, err := client.NewStreamableHttpClient(b.opts.UpstreamURL, opts...)
	if err != nil {
		return nil, err
	}
	if err := c.Start(ctx); err != nil {
		c.Close()
		return nil, err
	}
	if err := Initialize(ctx, c); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// Initialize performs the MCP handshake on a started client.
func Initialize(ctx context.Context, c *client.Client) error {
	_, err := c.Initialize(ctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			Capabilities: mcp.ClientCapabilities{
				Roots: &struct {
					ListChanged bool `json:"listChanged,omitempty"`
				}{ListChanged: true},
			},
			ClientInfo: mcp.Implementation{Name: clientName, Version: "0.1.0"},
		},
	})
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}
	return nil
}

func (b *Broker) newServer() *server.MCPServer {
	hooks := &server.Hooks{}
	hooks.AddOnRegisterSession(func(ctx context.Context, session server.ClientSession) {
		b.logger.InfoContext(ctx, "client connected", "session", session.SessionID())
	})
	hooks.AddOnUnregisterSession(func(ctx context.Context, session server.ClientSession) {
		b.logger.InfoContext(ctx, "client disconnected", "session", session.SessionID())
		b.closeSession(session.SessionID())
	})
	hooks.AddOnError(func(ctx context.Context, _ any, method mcp.MCPMethod, _ any, err error) {
		b.logger.WarnContext(ctx, "mcp server error", "method", method, "error", err)
	})

	s := server.NewMCPServer("GitHub MCP Broker", b.opts.Version,
		server.WithHooks(hooks),
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)
	for _, t := range b.tools {
		b.logger.Info("federating tool", "upstream", b.opts.UpstreamURL, "tool", t.Name)
		s.AddTool(t, b.handle)
	}
	return s
}

// Tools returns the upstream tools.
func (b *Broker) Tools() []mcp.Tool {
	return b.tools
}

// MCPServer is the downstream server.
func (b *Broker) MCPServer() *server.MCPServer {
	return b.server
}

func (b *Broker) handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return b.CallTool(ctx, sessionID(ctx, req), req)
}

func sessionID(ctx context.Context, req mcp.CallToolRequest) string {
	if s := server.ClientSessionFromContext(ctx); s != nil && s.SessionID() != "" {
		return s.SessionID()
	}
	return req.Header.Get("Mcp-Session-Id")
}

// CallTool forwards req upstream on the session of downstream, opening it
// on first use.
func (b *Broker) CallTool(ctx context.Context, downstream string, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	c, err := b.session(ctx, downstream, req.Header)
	if err != nil {
		return nil, err
	}
	return c.CallTool(ctx, req)
}

func (b *Broker) session(ctx context.Context, downstream string, h http.Header) (*client.Client, error) {
	b.mu.Lock()
	c, ok := b.sessions[downstream]
	b.mu.Unlock()
	if ok {
		return c, nil
	}

	// Exchange and dial unlocked so a slow upstream only stalls its own
	// downstream.
	authz, err := b.authorization(ctx, h)
	if err != nil {
		return nil, err
	}
	c, err = b.opts.Dial(ctx, authz)
	if err != nil {
		return nil, fmt.Errorf("github: could not open upstream: %w", err)
	}

	b.mu.Lock()
	if existing, ok := b.sessions[downstream]; ok {
		b.mu.Unlock()
		c.Close()
		return existing, nil
	}
	b.sessions[downstream] = c
	b.mu.Unlock()
	return c, nil
}

func (b *Broker) authorization(ctx context.Context, h http.Header) (string, error) {
	tok, ok := auth.BearerToken(h)
	if !ok {
		if tok, ok = auth.TokenFromContext(ctx); !ok {
			return b.opts.InitAuthHeader, nil
		}
	}
	if b.opts.Exchanger == nil {
		return "Bearer " + tok, nil
	}
	exchanged, err := b.opts.Exchanger.Exchange(ctx, tok)
	if err != nil {
		return "", fmt.Errorf("github: %w", err)
	}
	return "Bearer " + exchanged, nil
}

func (b *Broker) closeSession(downstream string) {
	b.mu.Lock()
	c, ok := b.sessions[downstream]
	delete(b.sessions, downstream)
	b.mu.Unlock()
	if ok {
		c.Close()
	}
}

// KeepAlive pings the upstream server every interval until ctx is done.
func (b *Broker) KeepAlive(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := b.probe.Ping(ctx); err != nil && ctx.Err() == nil {
				b.logger.WarnContext(ctx, "upstream ping failed", "error", err)
			}
		}
	}
}

// Close ends every upstream session.
func (b *Broker) Close() error {
	b.mu.Lock()
	sessions := b.sessions
	b.sessions = make(map[string]*client.Client)
	b.mu.Unlock()
	for _, c := range sessions {
		c.Close()
	}
	return b.probe.Close()
}
