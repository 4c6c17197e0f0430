package genx

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/goccy/go-yaml"
)

type ModelParams struct {
	MaxTokens        int     `json:"max_tokens,omitzero" yaml:"max_tokens,omitzero"`
	FrequencyPenalty float32 `json:"frequency_penalty,omitzero" yaml:"frequency_penalty,omitzero"`
	Temperature      float32 `json:"temperature,omitzero" yaml:"temperature,omitzero"`
	TopP             float32 `json:"top_p,omitzero" yaml:"top_p,omitzero"`
	PresencePenalty  float32 `json:"presence_penalty,omitzero" yaml:"presence_penalty,omitzero"`
}

type Prompt struct {
	Name string
	Text string
}

type Tool interface {
	isTool()
}

type ModelContext interface {
	Prompts() iter.Seq[*Prompt]
	Messages() iter.Seq[*Message]
	Tools() iter.Seq[Tool]

	Params() *ModelParams
}

// Reply is a complete, non-streamed model turn.
type Reply struct {
	Text      string
	ToolCalls []*ToolCall
	Usage     Usage
}

// HasToolCalls reports whether the model asked for at least one tool.
func (r *Reply) HasToolCalls() bool {
	return r != nil && len(r.ToolCalls) > 0
}

type Generator interface {
	// Generate runs one model turn. Tools present in the context may be
	// requested through Reply.ToolCalls.
	Generate(context.Context, string, ModelContext) (*Reply, error)

	// Invoke forces the model to answer with arguments for fn.
	Invoke(context.Context, string, ModelContext, *FuncTool) (Usage, *FuncCall, error)
}

type Usage struct {
	PromptTokenCount        int64
	CachedContentTokenCount int64
	GeneratedTokenCount     int64
}

func (u Usage) Add(o Usage) Usage {
	return Usage{
		PromptTokenCount:        u.PromptTokenCount + o.PromptTokenCount,
		CachedContentTokenCount: u.CachedContentTokenCount + o.CachedContentTokenCount,
		GeneratedTokenCount:     u.GeneratedTokenCount + o.GeneratedTokenCount,
	}
}

func (u Usage) String() string {
	b, _ := yaml.Marshal(map[string]map[string]any{
		"Usage": {
			"Prompt":    u.PromptTokenCount,
			"Cached":    u.CachedContentTokenCount,
			"Generated": u.GeneratedTokenCount,
		},
	})
	return string(b)
}

// InspectModelContext renders mctx as markdown for debug logs.
func InspectModelContext(mctx ModelContext) string {
	var sb strings.Builder
	for p := range mctx.Prompts() {
		fmt.Fprintf(&sb, "## prompt %s\n%s\n", p.Name, strings.TrimSpace(p.Text))
	}
	for msg := range mctx.Messages() {
		sb.WriteString(InspectMessage(msg))
	}
	for t := range mctx.Tools() {
		if ft, ok := t.(*FuncTool); ok {
			fmt.Fprintf(&sb, "## tool %q\n%s\n", ft.Name, ft.Description)
		}
	}
	return sb.String()
}

func InspectMessage(msg *Message) string {
	if msg == nil {
		return ""
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "## %s %s\n", msg.Role, msg.Name)
	switch p := msg.Payload.(type) {
	case Text:
		fmt.Fprintln(&sb, string(p))
	case *ToolCall:
		fmt.Fprintf(&sb, "[%s] %s(%s)\n", p.ID, p.FuncCall.Name, p.FuncCall.Arguments)
	case *ToolResult:
		fmt.Fprintf(&sb, "[%s] %s\n", p.ID, p.Result)
	}
	return sb.String()
}
