package roles

import (
	"context"

	"github.com/haivivi/agentkit/pkg/genx"
	"github.com/haivivi/agentkit/pkg/planexec"
)

type goalVerdictArg struct {
	Met    bool   `json:"met" jsonschema:"whether the goal is fully met"`
	Reason string `json:"reason,omitempty" jsonschema:"short explanation"`
}

var judgeTool = genx.MustNewFuncTool[goalVerdictArg]("submit_goal_verdict", "Submit whether the goal is met.")

// Judge decides whether the goal is met. Faults count as not met.
type Judge struct {
	Model
}

func (j *Judge) Judge(ctx context.Context, goal string, plan []string, results []planexec.Output) (planexec.GoalVerdict, error) {
	if len(results) == 0 {
		return planexec.GoalVerdict{Reason: "nothing has been gathered yet"}, nil
	}

	mcb := &genx.ModelContextBuilder{}
	mcb.PromptText("judge", goalJudgePrompt)
	if err := mcb.Prompt("context", "plan", plan); err != nil {
		return planexec.GoalVerdict{}, err
	}
	if err := mcb.Prompt("context", "results", renderResults(results)); err != nil {
		return planexec.GoalVerdict{}, err
	}
	mcb.UserText("user", goal)

	var arg goalVerdictArg
	if _, err := j.Invoke(ctx, mcb, judgeTool, &arg); err != nil {
		if isContextErr(err) {
			return planexec.GoalVerdict{}, err
		}
		j.logger().WarnContext(ctx, "goal judge failed", "error", err)
		return planexec.GoalVerdict{Reason: "goal could not be judged: " + err.Error()}, nil
	}
	return planexec.GoalVerdict{Met: arg.Met, Reason: arg.Reason}, nil
}
