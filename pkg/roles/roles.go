// Package roles implements the planexec collaborators on top of a
// genx.Generator.
//
// Every role except the worker and the summarizer answers through
// Generator.Invoke with a typed verdict. Faults are absorbed according to
// the role: a critic that cannot answer rejects the step, a judge reports
// the goal as not met, and a reflector stops the run. Context errors are
// always returned unchanged so cancellation reaches the loop.
package roles

import (
	"context"
	_ "embed"
	"errors"
	"log/slog"
	"strings"

	"github.com/haivivi/agentkit/pkg/genx"
	"github.com/haivivi/agentkit/pkg/planexec"
)

var (
	//go:embed prompts/planner.md
	plannerPrompt string

	//go:embed prompts/critic.md
	criticPrompt string

	//go:embed prompts/goal_judge.md
	goalJudgePrompt string

	//go:embed prompts/reflector.md
	reflectorPrompt string

	//go:embed prompts/summarizer.md
	summarizerPrompt string

	//go:embed prompts/worker.md
	workerPrompt string
)

// WorkerPrompt is the default system prompt of a Worker's tool agent.
func WorkerPrompt() string {
	return workerPrompt
}

// Model names the generator and model a role calls.
type Model struct {
	Generator genx.Generator
	Name      string
	Logger    *slog.Logger
}

func (m Model) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}

// Invoke asks the model for arguments of fn and decodes them into v. The raw
// arguments are returned even when decoding fails.
func (m Model) Invoke(ctx context.Context, mcb *genx.ModelContextBuilder, fn *genx.FuncTool, v any) (string, error) {
	if m.Generator == nil {
		return "", errors.New("roles: no generator")
	}
	_, call, err := m.Generator.Invoke(ctx, m.Name, mcb.Build(), fn)
	if err != nil {
		return "", err
	}
	if call == nil {
		return "", genx.ErrNoAnswer
	}
	if err := call.Unmarshal(v); err != nil {
		return call.Arguments, err
	}
	return call.Arguments, nil
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func renderResults(results []planexec.Output) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.String())
	}
	return out
}

var (
	_ planexec.Planner    = (*Planner)(nil)
	_ planexec.StepCritic = (*Critic)(nil)
	_ planexec.GoalJudge  = (*Judge)(nil)
	_ planexec.Reflector  = (*Reflector)(nil)
	_ planexec.Summarizer = (*Summarizer)(nil)
	_ planexec.StepWorker = (*Worker)(nil)
)

// ToolInfo describes a tool to the planner.
type ToolInfo struct {
	Name        string
	Description string
}

// ToolInfos lists name and description of tools.
func ToolInfos(tools []*genx.FuncTool) []ToolInfo {
	infos := make([]ToolInfo, 0, len(tools))
	for _, t := range tools {
		infos = append(infos, ToolInfo{Name: t.Name, Description: t.Description})
	}
	return infos
}

func formatTools(tools []ToolInfo) string {
	if len(tools) == 0 {
		return "(none)"
	}
	var sb strings.Builder
	for _, t := range tools {
		sb.WriteString("- ")
		sb.WriteString(t.Name)
		if t.Description != "" {
			sb.WriteString(": ")
			sb.WriteString(t.Description)
		}
		sb.WriteByte('\n')
	}
	return strings.TrimRight(sb.String(), "\n")
}
