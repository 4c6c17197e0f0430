package toolkit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/haivivi/agentkit/pkg/genx"
)

// Transport selects how an MCP server is reached.
type Transport string

const (
	TransportSSE            Transport = "sse"
	TransportStreamableHTTP Transport = "streamable-http"
)

const clientName = "agentkit"

type MCPOptions struct {
	URL       string
	Transport Transport
	Headers   map[string]string
}

// MCPSession is an initialized connection to one MCP server.
type MCPSession struct {
	client *client.Client
}

// DialMCP connects to the server at opts.URL and completes the handshake.
func DialMCP(ctx context.Context, opts MCPOptions) (*MCPSession, error) {
	if opts.URL == "" {
		return nil, errors.New("toolkit: mcp url is empty")
	}
	var (
		c   *client.Client
		err error
	)
	switch opts.Transport {
	case TransportSSE:
		c, err = client.NewSSEMCPClient(opts.URL, transport.WithHeaders(opts.Headers))
	case TransportStreamableHTTP, "":
		c, err = client.NewStreamableHttpClient(opts.URL, transport.WithHTTPHeaders(opts.Headers))
	default:
		return nil, fmt.Errorf("toolkit: unknown mcp transport %q", opts.Transport)
	}
	if err != nil {
		return nil, fmt.Errorf("toolkit: create mcp client: %w", err)
	}
	if err := c.Start(ctx); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("toolkit: start mcp client: %w", err)
	}
	return NewMCPSession(ctx, c)
}

// NewMCPSession initializes a started client.
func NewMCPSession(ctx context.Context, c *client.Client) (*MCPSession, error) {
	_, err := c.Initialize(ctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo: mcp.Implementation{
				Name:    clientName,
				Version: "0.1.0",
			},
		},
	})
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("toolkit: initialize mcp session: %w", err)
	}
	return &MCPSession{client: c}, nil
}

func (s *MCPSession) Close() error {
	return s.client.Close()
}

// Tools lists the server's tools as FuncTools that call back into the
// session.
func (s *MCPSession) Tools(ctx context.Context) ([]*genx.FuncTool, error) {
	res, err := s.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("toolkit: list mcp tools: %w", err)
	}
	tools := make([]*genx.FuncTool, 0, len(res.Tools))
	for _, t := range res.Tools {
		schema, err := inputSchema(t)
		if err != nil {
			return nil, fmt.Errorf("toolkit: schema of %s: %w", t.Name, err)
		}
		name := t.Name
		tools = append(tools, genx.NewRawFuncTool(name, t.Description, schema, func(ctx context.Context, arg string) (any, error) {
			return s.Call(ctx, name, arg)
		}))
	}
	return tools, nil
}

// Call invokes a tool with JSON arguments and returns its text content.
func (s *MCPSession) Call(ctx context.Context, name, arguments string) (string, error) {
	var args map[string]any
	if strings.TrimSpace(arguments) != "" {
		if err := json.Unmarshal([]byte(arguments), &args); err != nil {
			return "", fmt.Errorf("toolkit: decode %s arguments: %w", name, err)
		}
	}
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	res, err := s.client.CallTool(ctx, req)
	if err != nil {
		return "", fmt.Errorf("toolkit: call %s: %w", name, err)
	}
	text := resultText(res)
	if res.IsError {
		return "", fmt.Errorf("toolkit: %s failed: %s", name, text)
	}
	return text, nil
}

func resultText(res *mcp.CallToolResult) string {
	var parts []string
	for _, c := range res.Content {
		switch c := c.(type) {
		case mcp.TextContent:
			parts = append(parts, c.Text)
		case *mcp.TextContent:
			parts = append(parts, c.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func inputSchema(t mcp.Tool) (*jsonschema.Schema, error) {
	raw := []byte(t.RawInputSchema)
	if len(raw) == 0 {
		b, err := json.Marshal(t.InputSchema)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	var schema jsonschema.Schema
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, err
	}
	if schema.Type == "" && len(schema.Types) == 0 {
		schema.Type = "object"
	}
	return &schema, nil
}
