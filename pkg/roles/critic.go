package roles

import (
	"context"
	"fmt"

	"github.com/haivivi/agentkit/pkg/genx"
	"github.com/haivivi/agentkit/pkg/planexec"
)

type stepVerdictArg struct {
	Satisfied bool   `json:"satisfied" jsonschema:"whether the output satisfies the instruction"`
	Reason    string `json:"reason,omitempty" jsonschema:"why the output falls short"`
}

var critiqueTool = genx.MustNewFuncTool[stepVerdictArg]("submit_verdict", "Submit whether the step succeeded.")

// Critic judges a single step. A critic that cannot answer rejects the step.
type Critic struct {
	Model
}

func (c *Critic) Critique(ctx context.Context, instruction string, results []planexec.Output, output planexec.Output) (planexec.StepVerdict, error) {
	if output.IsZero() {
		return planexec.StepVerdict{Reason: "the step produced no output"}, nil
	}

	mcb := &genx.ModelContextBuilder{}
	mcb.PromptText("critic", criticPrompt)
	if len(results) > 0 {
		if err := mcb.Prompt("context", "previous_results", renderResults(results)); err != nil {
			return planexec.StepVerdict{}, err
		}
	}
	mcb.UserText("user", fmt.Sprintf("Instruction: %s\n\nOutput:\n%s", instruction, output.String()))

	var arg stepVerdictArg
	if _, err := c.Invoke(ctx, mcb, critiqueTool, &arg); err != nil {
		if isContextErr(err) {
			return planexec.StepVerdict{}, err
		}
		c.logger().WarnContext(ctx, "critic failed", "error", err)
		return planexec.StepVerdict{Reason: "the step could not be reviewed: " + err.Error()}, nil
	}
	if !arg.Satisfied && arg.Reason == "" {
		arg.Reason = "the output does not satisfy the instruction"
	}
	return planexec.StepVerdict{Satisfied: arg.Satisfied, Reason: arg.Reason}, nil
}
