package planexec

import (
	"fmt"
	"slices"
	"strings"
)

// Observation is one tool call made while producing an Output.
type Observation struct {
	Tool      string `json:"tool" msgpack:"tool"`
	Arguments string `json:"arguments,omitempty" msgpack:"arguments,omitempty"`
	Result    string `json:"result" msgpack:"result"`
}

// Output is the result of executing one instruction. The loop never looks
// inside it; it only decides where it is kept.
type Output struct {
	Text         string        `json:"text" msgpack:"text"`
	Observations []Observation `json:"observations,omitempty" msgpack:"observations,omitempty"`

	// Err holds a worker failure as data, so critics can judge it.
	Err string `json:"error,omitempty" msgpack:"error,omitempty"`
}

// IsZero reports whether o carries nothing.
func (o Output) IsZero() bool {
	return o.Text == "" && len(o.Observations) == 0 && o.Err == ""
}

// String renders o for prompts.
func (o Output) String() string {
	var sb strings.Builder
	if o.Err != "" {
		fmt.Fprintf(&sb, "Error: %s\n", o.Err)
	}
	for _, ob := range o.Observations {
		fmt.Fprintf(&sb, "Tool %s(%s) returned: %s\n", ob.Tool, ob.Arguments, ob.Result)
	}
	if o.Text != "" {
		sb.WriteString(o.Text)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (o Output) clone() Output {
	o.Observations = slices.Clone(o.Observations)
	return o
}

// PlanContext is the state of one run. It is owned by a single Run call.
type PlanContext struct {
	Goal      string
	Plan      []string
	StepIndex int

	LastStep   string
	LastOutput Output

	// AccumulatedResults and StepsTaken only grow, and only together.
	AccumulatedResults []Output
	StepsTaken         []string

	// FailureReason is set only when the Reflector terminates the run.
	FailureReason string
}

func newPlanContext(goal string, plan []string) *PlanContext {
	return &PlanContext{
		Goal: goal,
		Plan: slices.Clone(plan),
	}
}

// accept folds the last step into durable context.
func (pc *PlanContext) accept() {
	pc.AccumulatedResults = append(pc.AccumulatedResults, pc.LastOutput)
	pc.StepsTaken = append(pc.StepsTaken, pc.LastStep)
}

// Clone returns a deep copy of pc.
func (pc *PlanContext) Clone() *PlanContext {
	c := *pc
	c.Plan = slices.Clone(pc.Plan)
	c.LastOutput = pc.LastOutput.clone()
	c.AccumulatedResults = make([]Output, len(pc.AccumulatedResults))
	for i, o := range pc.AccumulatedResults {
		c.AccumulatedResults[i] = o.clone()
	}
	c.StepsTaken = slices.Clone(pc.StepsTaken)
	return &c
}

// results returns a copy collaborators cannot use to mutate the run.
func (pc *PlanContext) results() []Output {
	return slices.Clone(pc.AccumulatedResults)
}
