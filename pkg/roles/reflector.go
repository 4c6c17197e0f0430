package roles

import (
	"context"
	"strings"

	"github.com/haivivi/agentkit/pkg/genx"
	"github.com/haivivi/agentkit/pkg/planexec"
)

type decisionArg struct {
	Decision    string `json:"decision" jsonschema:"CONTINUE or TERMINATE"`
	Instruction string `json:"instruction,omitempty" jsonschema:"the next instruction when continuing"`
	Reason      string `json:"reason,omitempty" jsonschema:"why the goal cannot be reached when terminating"`
}

var reflectTool = genx.MustNewFuncTool[decisionArg]("submit_decision", "Submit the next instruction or stop.")

// Reflector chooses the next instruction. Faults stop the run.
type Reflector struct {
	Model
}

func (r *Reflector) Reflect(ctx context.Context, in planexec.Reflection) (planexec.Decision, error) {
	mcb := &genx.ModelContextBuilder{}
	mcb.PromptText("reflector", reflectorPrompt)
	if err := mcb.Prompt("context", "initial_plan", in.Plan); err != nil {
		return planexec.Decision{}, err
	}
	if err := mcb.Prompt("context", "completed_steps", in.StepsTaken); err != nil {
		return planexec.Decision{}, err
	}
	if err := mcb.Prompt("context", "last_step", in.LastReflection); err != nil {
		return planexec.Decision{}, err
	}
	if err := mcb.Prompt("context", "last_output", in.LastOutput.String()); err != nil {
		return planexec.Decision{}, err
	}
	mcb.UserText("user", in.Goal)

	var arg decisionArg
	if _, err := r.Invoke(ctx, mcb, reflectTool, &arg); err != nil {
		if isContextErr(err) {
			return planexec.Decision{}, err
		}
		r.logger().WarnContext(ctx, "reflection failed", "error", err)
		return planexec.Terminate("reflection failed: " + err.Error()), nil
	}
	return parseDecision(arg), nil
}

func parseDecision(arg decisionArg) planexec.Decision {
	instruction := strings.TrimSpace(arg.Instruction)
	reason := strings.TrimSpace(arg.Reason)
	switch strings.ToUpper(strings.TrimSpace(arg.Decision)) {
	case "CONTINUE":
		return planexec.Continue(instruction)
	case "TERMINATE", "STOP":
		if reason == "" {
			reason = "the goal cannot be reached with the available tools"
		}
		return planexec.Terminate(reason)
	}
	if instruction != "" {
		return planexec.Continue(instruction)
	}
	if reason == "" {
		reason = "reflection gave no decision"
	}
	return planexec.Terminate(reason)
}
