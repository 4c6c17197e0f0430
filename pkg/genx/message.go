package genx

import (
	"context"
	"fmt"
)

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
	RoleTool  Role = "tool"
)

var (
	_ Payload = Text("")
	_ Payload = (*ToolCall)(nil)
	_ Payload = (*ToolResult)(nil)
)

type Message struct {
	Role    Role
	Name    string
	Payload Payload
}

type Role string

func (r Role) String() string {
	return string(r)
}

type Payload interface {
	isPayload()
}

type Text string

func (Text) isPayload() {}

type FuncCall struct {
	Name      string
	Arguments string

	tool *FuncTool
}

// Invoke runs the bound tool with the call arguments.
func (f *FuncCall) Invoke(ctx context.Context) (any, error) {
	if f.tool == nil {
		return nil, fmt.Errorf("tool not found: name=%s", f.Name)
	}
	if f.tool.Invoke == nil {
		return nil, fmt.Errorf("invoke function not set: name=%s", f.Name)
	}
	return f.tool.Invoke(ctx, f, f.Arguments)
}

// Unmarshal decodes the call arguments into v, repairing malformed JSON.
func (f *FuncCall) Unmarshal(v any) error {
	if err := unmarshalJSON([]byte(f.Arguments), v); err != nil {
		return fmt.Errorf("genx: decode %s arguments: %w", f.Name, err)
	}
	return nil
}

type ToolCall struct {
	ID       string
	FuncCall *FuncCall
}

func (*ToolCall) isPayload() {}

type ToolResult struct {
	ID     string
	Result string
}

func (*ToolResult) isPayload() {}
