package toolkit

import (
	"context"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func newTestSession(t *testing.T) *MCPSession {
	t.Helper()
	srv := server.NewMCPServer("test", "0.0.1", server.WithToolCapabilities(true))
	srv.AddTool(mcp.NewTool("echo",
		mcp.WithDescription("Echo the text back"),
		mcp.WithString("text", mcp.Required(), mcp.Description("text to echo")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText("echo: " + req.GetString("text", "")), nil
	})
	srv.AddTool(mcp.NewTool("fail", mcp.WithDescription("Always fails")),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultError("nope"), nil
		})

	c, err := client.NewInProcessClient(srv)
	if err != nil {
		t.Fatalf("NewInProcessClient error: %v", err)
	}
	ctx := context.Background()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	s, err := NewMCPSession(ctx, c)
	if err != nil {
		t.Fatalf("NewMCPSession error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMCPSession_Tools(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()

	tools, err := s.Tools(ctx)
	if err != nil {
		t.Fatalf("Tools error: %v", err)
	}
	if len(tools) != 2 {
		t.Fatalf("tools = %d, want 2", len(tools))
	}
	var echoIdx = -1
	for i, tool := range tools {
		if tool.Name == "echo" {
			echoIdx = i
		}
	}
	if echoIdx < 0 {
		t.Fatal("echo tool missing")
	}
	echo := tools[echoIdx]
	if echo.Description != "Echo the text back" {
		t.Errorf("Description = %q", echo.Description)
	}
	if echo.Argument == nil || echo.Argument.Properties["text"] == nil {
		t.Errorf("schema = %+v", echo.Argument)
	}

	v, err := echo.NewFuncCall(`{"text": "hi"}`).Invoke(ctx)
	if err != nil {
		t.Fatalf("Invoke error: %v", err)
	}
	if v != "echo: hi" {
		t.Errorf("result = %v", v)
	}
}

func TestMCPSession_CallError(t *testing.T) {
	s := newTestSession(t)
	_, err := s.Call(context.Background(), "fail", "")
	if err == nil || !strings.Contains(err.Error(), "nope") {
		t.Errorf("err = %v", err)
	}
	if _, err := s.Call(context.Background(), "echo", "not json"); err == nil {
		t.Error("expected decode error")
	}
}

func TestDialMCP_UnknownTransport(t *testing.T) {
	if _, err := DialMCP(context.Background(), MCPOptions{URL: "http://x", Transport: "carrier-pigeon"}); err == nil {
		t.Error("expected error")
	}
}
