package genx

import (
	"encoding/json"
	"fmt"
	"iter"
	"slices"

	"github.com/goccy/go-yaml"
)

var _ ModelContext = (*modelContext)(nil)

type ModelContextBuilder struct {
	Prompts  []*Prompt
	Messages []*Message
	Tools    []Tool

	Params *ModelParams
}

func (mcb *ModelContextBuilder) Build() ModelContext {
	return &modelContext{
		prompts:  slices.Clone(mcb.Prompts),
		messages: slices.Clone(mcb.Messages),
		tools:    slices.Clone(mcb.Tools),
		params:   mcb.Params,
	}
}

// AddPrompt appends prompt, merging it into the previous prompt of the same name.
func (mcb *ModelContextBuilder) AddPrompt(prompt *Prompt) {
	if n := len(mcb.Prompts); n > 0 && mcb.Prompts[n-1].Name == prompt.Name {
		p := mcb.Prompts[n-1]
		if p.Text != "" {
			p.Text += "\n" + prompt.Text
		} else {
			p.Text = prompt.Text
		}
		return
	}
	mcb.Prompts = append(mcb.Prompts, prompt)
}

func (mcb *ModelContextBuilder) AddMessage(msg *Message) {
	mcb.Messages = append(mcb.Messages, msg)
}

func (mcb *ModelContextBuilder) AddTool(tool Tool) {
	mcb.Tools = append(mcb.Tools, tool)
}

// Prompt renders value as yaml under key and appends it as a prompt.
func (mcb *ModelContextBuilder) Prompt(name, key string, value any) error {
	b, err := yaml.Marshal(map[string]any{key: value})
	if err != nil {
		return err
	}
	mcb.AddPrompt(&Prompt{
		Name: name,
		Text: string(b),
	})
	return nil
}

func (mcb *ModelContextBuilder) PromptText(name, text string) {
	mcb.AddPrompt(&Prompt{
		Name: name,
		Text: text,
	})
}

func (mcb *ModelContextBuilder) UserText(name, text string) {
	mcb.AddMessage(&Message{
		Role:    RoleUser,
		Name:    name,
		Payload: Text(text),
	})
}

func (mcb *ModelContextBuilder) ModelText(name, text string) {
	mcb.AddMessage(&Message{
		Role:    RoleModel,
		Name:    name,
		Payload: Text(text),
	})
}

// AddToolCall records a model tool request. Calls without an id get one.
func (mcb *ModelContextBuilder) AddToolCall(call *ToolCall) {
	if call.ID == "" {
		call.ID = "call_" + hexString()
	}
	mcb.AddMessage(&Message{
		Role:    RoleModel,
		Payload: call,
	})
}

func (mcb *ModelContextBuilder) AddToolResult(id, result string) {
	mcb.AddMessage(&Message{
		Role:    RoleTool,
		Payload: &ToolResult{ID: id, Result: result},
	})
}

// AddToolCallResult records a call and its result as a pair.
func (mcb *ModelContextBuilder) AddToolCallResult(toolName string, callArg, callResult any) error {
	argstr, err := toJSONString(callArg)
	if err != nil {
		return fmt.Errorf("failed to marshal tool call argument to json string: %w", err)
	}
	resstr, err := toJSONString(callResult)
	if err != nil {
		return fmt.Errorf("failed to marshal tool call result to json string: %w", err)
	}
	call := &ToolCall{FuncCall: &FuncCall{Name: toolName, Arguments: argstr}}
	mcb.AddToolCall(call)
	mcb.AddToolResult(call.ID, resstr)
	return nil
}

func toJSONString(v any) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

type modelContext struct {
	prompts  []*Prompt
	messages []*Message
	tools    []Tool

	params *ModelParams
}

func (mctx *modelContext) Prompts() iter.Seq[*Prompt] {
	return slices.Values(mctx.prompts)
}

func (mctx *modelContext) Messages() iter.Seq[*Message] {
	return slices.Values(mctx.messages)
}

func (mctx *modelContext) Tools() iter.Seq[Tool] {
	return slices.Values(mctx.tools)
}

func (mctx *modelContext) Params() *ModelParams {
	return mctx.params
}
