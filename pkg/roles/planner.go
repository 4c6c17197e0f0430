package roles

import (
	"context"
	"strings"

	"github.com/haivivi/agentkit/pkg/genx"
	"github.com/haivivi/agentkit/pkg/planexec"
)

type planArg struct {
	Steps []string `json:"steps" jsonschema:"ordered instructions, one per step"`
}

var planTool = genx.MustNewFuncTool[planArg]("submit_plan", "Submit the ordered list of steps.")

// Planner drafts a plan with the tools it may use listed in its prompt.
type Planner struct {
	Model
	Tools []ToolInfo
}

func (p *Planner) Plan(ctx context.Context, goal string) ([]string, error) {
	mcb := &genx.ModelContextBuilder{}
	mcb.PromptText("planner", strings.ReplaceAll(plannerPrompt, "{{tools}}", formatTools(p.Tools)))
	mcb.UserText("user", goal)

	var arg planArg
	raw, err := p.Invoke(ctx, mcb, planTool, &arg)
	if err != nil {
		if isContextErr(err) {
			return nil, err
		}
		p.logger().WarnContext(ctx, "plan unreadable", "error", err)
		diag := strings.TrimSpace(raw)
		if diag == "" {
			diag = err.Error()
		}
		return nil, &planexec.PlanError{Diagnostic: diag}
	}

	steps := make([]string, 0, len(arg.Steps))
	for _, s := range arg.Steps {
		if s = strings.TrimSpace(s); s != "" {
			steps = append(steps, s)
		}
	}
	p.logger().DebugContext(ctx, "plan drafted", "steps", len(steps))
	return steps, nil
}
