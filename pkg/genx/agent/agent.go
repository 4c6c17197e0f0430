package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/haivivi/agentkit/pkg/genx"
)

// DefaultMaxTurns bounds tool rounds per Run.
const DefaultMaxTurns = 3

const finalizePrompt = "You have used all available tool calls. Answer now using only the information gathered so far."

// EventType identifies a tool lifecycle event.
type EventType int

const (
	EventToolStart EventType = iota
	EventToolDone
	EventToolError
)

func (t EventType) String() string {
	switch t {
	case EventToolStart:
		return "tool_start"
	case EventToolDone:
		return "tool_done"
	case EventToolError:
		return "tool_error"
	}
	return fmt.Sprintf("EventType(%d)", int(t))
}

type ToolEvent struct {
	Type      EventType
	Tool      string
	Arguments string
	Result    string
	Err       error
}

// Observer receives tool events synchronously.
type Observer func(ToolEvent)

// Step is one tool invocation made during a run.
type Step struct {
	Tool      string
	Arguments string
	Result    string
	Failed    bool
}

type Result struct {
	Text  string
	Steps []Step
	Usage genx.Usage
}

// ToolAgent answers an instruction with the help of tools. It holds no
// per-run state and may be shared between goroutines.
type ToolAgent struct {
	Generator genx.Generator
	Model     string
	Prompt    string
	Tools     []*genx.FuncTool

	// MaxTurns limits tool rounds. Zero means DefaultMaxTurns.
	MaxTurns int

	Logger *slog.Logger
}

func (a *ToolAgent) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}

func (a *ToolAgent) maxTurns() int {
	if a.MaxTurns > 0 {
		return a.MaxTurns
	}
	return DefaultMaxTurns
}

// Run executes input. Extra context, such as results of earlier steps, is
// appended to the prompt by the caller through extra.
func (a *ToolAgent) Run(ctx context.Context, input string, observe Observer, extra ...*genx.Prompt) (*Result, error) {
	if a.Generator == nil {
		return nil, ErrNoGenerator
	}
	if observe == nil {
		observe = func(ToolEvent) {}
	}

	mcb := &genx.ModelContextBuilder{}
	if a.Prompt != "" {
		mcb.PromptText("system", a.Prompt)
	}
	for _, p := range extra {
		mcb.AddPrompt(p)
	}
	for _, t := range a.Tools {
		mcb.AddTool(t)
	}
	mcb.UserText("", input)

	res := &Result{}
	for turn := 0; turn < a.maxTurns(); turn++ {
		reply, err := a.Generator.Generate(ctx, a.Model, mcb.Build())
		if err != nil {
			return res, fmt.Errorf("agent: generate: %w", err)
		}
		res.Usage = res.Usage.Add(reply.Usage)
		if !reply.HasToolCalls() {
			res.Text = reply.Text
			return res, nil
		}
		for _, call := range reply.ToolCalls {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			res.Steps = append(res.Steps, a.invoke(ctx, mcb, call, observe))
		}
	}

	a.logger().DebugContext(ctx, "tool turns exhausted", "model", a.Model, "turns", a.maxTurns())
	mcb.Tools = nil
	mcb.PromptText("finalize", finalizePrompt)
	reply, err := a.Generator.Generate(ctx, a.Model, mcb.Build())
	if err != nil {
		return res, fmt.Errorf("agent: finalize: %w", err)
	}
	res.Usage = res.Usage.Add(reply.Usage)
	res.Text = reply.Text
	return res, nil
}

func (a *ToolAgent) invoke(ctx context.Context, mcb *genx.ModelContextBuilder, call *genx.ToolCall, observe Observer) Step {
	fc := call.FuncCall
	step := Step{Tool: fc.Name, Arguments: fc.Arguments}
	observe(ToolEvent{Type: EventToolStart, Tool: fc.Name, Arguments: fc.Arguments})

	out, err := a.call(ctx, fc)
	if err != nil {
		a.logger().WarnContext(ctx, "tool call failed", "tool", fc.Name, "error", err)
		step.Failed = true
		step.Result = "error: " + err.Error()
		observe(ToolEvent{Type: EventToolError, Tool: fc.Name, Arguments: fc.Arguments, Err: err})
	} else {
		step.Result = out
		observe(ToolEvent{Type: EventToolDone, Tool: fc.Name, Arguments: fc.Arguments, Result: out})
	}

	mcb.AddToolCall(call)
	mcb.AddToolResult(call.ID, step.Result)
	return step
}

func (a *ToolAgent) call(ctx context.Context, fc *genx.FuncCall) (string, error) {
	var tool *genx.FuncTool
	for _, t := range a.Tools {
		if t.Name == fc.Name {
			tool = t
			break
		}
	}
	if tool == nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, fc.Name)
	}
	v, err := tool.NewFuncCall(fc.Arguments).Invoke(ctx)
	if err != nil {
		return "", err
	}
	if s, ok := v.(string); ok {
		return s, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal %s result: %w", fc.Name, err)
	}
	return string(b), nil
}
