package planexec

import (
	"context"
	"reflect"
	"testing"
)

// strict fails the test if any judging collaborator is consulted.
type strict struct{ t *testing.T }

func (s strict) Critique(context.Context, string, []Output, Output) (StepVerdict, error) {
	s.t.Error("critic called on first step")
	return StepVerdict{}, nil
}

func (s strict) Judge(context.Context, string, []string, []Output) (GoalVerdict, error) {
	s.t.Error("goal judge called on first step")
	return GoalVerdict{Met: true}, nil
}

func (s strict) Reflect(context.Context, Reflection) (Decision, error) {
	s.t.Error("reflector called on first step")
	return Terminate("no"), nil
}

func TestDetermineNext_FirstStepUsesPlan(t *testing.T) {
	s := strict{t}
	r := &run{
		loop: &Loop{Critic: s, Judge: s, Reflector: s},
		log:  (&Loop{}).logger(),
		pc:   newPlanContext("goal", []string{"first", "second"}),
	}
	n, err := r.determineNext(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n.terminate || n.instruction != "first" {
		t.Errorf("next = %+v, want plan[0]", n)
	}
}

type fixed struct {
	verdict  StepVerdict
	goal     GoalVerdict
	decision Decision
}

func (f fixed) Critique(context.Context, string, []Output, Output) (StepVerdict, error) {
	return f.verdict, nil
}

func (f fixed) Judge(context.Context, string, []string, []Output) (GoalVerdict, error) {
	return f.goal, nil
}

func (f fixed) Reflect(_ context.Context, r Reflection) (Decision, error) {
	d := f.decision
	d.Instruction += " after " + r.LastReflection
	return d, nil
}

func TestDetermineNext_Idempotent(t *testing.T) {
	base := newPlanContext("goal", []string{"a"})
	base.StepIndex = 2
	base.LastStep = "b"
	base.LastOutput = Output{Text: "out b", Observations: []Observation{{Tool: "t", Result: "r"}}}
	base.AccumulatedResults = []Output{{Text: "out a"}}
	base.StepsTaken = []string{"a"}

	cases := []fixed{
		{verdict: StepVerdict{Satisfied: true}, decision: Continue("c")},
		{verdict: StepVerdict{Satisfied: false, Reason: "empty"}, decision: Continue("c")},
		{verdict: StepVerdict{Satisfied: true}, goal: GoalVerdict{Met: true}},
		{verdict: StepVerdict{Satisfied: false, Reason: "x"}, decision: Terminate("stuck")},
	}
	for i, f := range cases {
		do := func() (next, *PlanContext) {
			r := &run{loop: &Loop{Critic: f, Judge: f, Reflector: f}, log: (&Loop{}).logger(), pc: base.Clone()}
			n, err := r.determineNext(context.Background())
			if err != nil {
				t.Fatalf("case %d: %v", i, err)
			}
			return n, r.pc
		}
		n1, pc1 := do()
		n2, pc2 := do()
		if n1 != n2 {
			t.Errorf("case %d: %+v != %+v", i, n1, n2)
		}
		if !reflect.DeepEqual(pc1, pc2) {
			t.Errorf("case %d: resulting contexts differ", i)
		}
	}
	if len(base.StepsTaken) != 1 {
		t.Errorf("base context mutated through clone")
	}
}

func TestPlanContext_CloneIsDeep(t *testing.T) {
	pc := newPlanContext("g", []string{"a"})
	pc.LastOutput = Output{Observations: []Observation{{Tool: "t"}}}
	pc.AccumulatedResults = []Output{{Text: "x"}}
	c := pc.Clone()
	c.Plan[0] = "changed"
	c.LastOutput.Observations[0].Tool = "changed"
	c.AccumulatedResults[0].Text = "changed"
	if pc.Plan[0] != "a" || pc.LastOutput.Observations[0].Tool != "t" || pc.AccumulatedResults[0].Text != "x" {
		t.Errorf("clone shares memory with original: %+v", pc)
	}
}

func TestOutput_String(t *testing.T) {
	o := Output{
		Text:         "done",
		Observations: []Observation{{Tool: "search", Arguments: `{"q":"go"}`, Result: "3 hits"}},
		Err:          "partial",
	}
	want := "Error: partial\nTool search({\"q\":\"go\"}) returned: 3 hits\ndone"
	if got := o.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if !(Output{}).IsZero() || o.IsZero() {
		t.Error("IsZero mismatch")
	}
}

func TestFormatPlan(t *testing.T) {
	got := formatPlan([]string{"a", "b"})
	if got != "Created a plan with 2 steps\n1. a\n2. b" {
		t.Errorf("formatPlan = %q", got)
	}
}
