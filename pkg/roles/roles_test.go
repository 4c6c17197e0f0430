package roles

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/haivivi/agentkit/pkg/genx"
	"github.com/haivivi/agentkit/pkg/genx/agent"
	"github.com/haivivi/agentkit/pkg/planexec"
)

// mockGenerator answers Invoke by tool name and Generate with text.
type mockGenerator struct {
	args    map[string]string
	errs    map[string]error
	text    string
	textErr error

	invoked []genx.ModelContext
}

func (g *mockGenerator) Generate(ctx context.Context, model string, mctx genx.ModelContext) (*genx.Reply, error) {
	g.invoked = append(g.invoked, mctx)
	if g.textErr != nil {
		return nil, g.textErr
	}
	return &genx.Reply{Text: g.text}, nil
}

func (g *mockGenerator) Invoke(ctx context.Context, model string, mctx genx.ModelContext, fn *genx.FuncTool) (genx.Usage, *genx.FuncCall, error) {
	g.invoked = append(g.invoked, mctx)
	if err := g.errs[fn.Name]; err != nil {
		return genx.Usage{}, nil, err
	}
	args, ok := g.args[fn.Name]
	if !ok {
		return genx.Usage{}, nil, genx.ErrNoAnswer
	}
	return genx.Usage{}, fn.NewFuncCall(args), nil
}

func promptText(mctx genx.ModelContext) string {
	var sb strings.Builder
	for p := range mctx.Prompts() {
		sb.WriteString(p.Text)
		sb.WriteString("\n")
	}
	return sb.String()
}

func TestPlanner(t *testing.T) {
	gen := &mockGenerator{args: map[string]string{
		"submit_plan": "```json\n{\"steps\": [\" search the web \", \"\", \"compare prices\"]}\n```",
	}}
	p := &Planner{
		Model: Model{Generator: gen, Name: "m"},
		Tools: []ToolInfo{{Name: "web_search", Description: "search the web"}},
	}
	steps, err := p.Plan(context.Background(), "best laptop")
	if err != nil {
		t.Fatalf("Plan error: %v", err)
	}
	if !slices.Equal(steps, []string{"search the web", "compare prices"}) {
		t.Errorf("steps = %q", steps)
	}
	if !strings.Contains(promptText(gen.invoked[0]), "- web_search: search the web") {
		t.Errorf("planner prompt does not list tools:\n%s", promptText(gen.invoked[0]))
	}
}

func TestPlanner_Unreadable(t *testing.T) {
	gen := &mockGenerator{args: map[string]string{"submit_plan": "I cannot plan this"}}
	p := &Planner{Model: Model{Generator: gen}}
	_, err := p.Plan(context.Background(), "goal")
	var pe *planexec.PlanError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want *PlanError", err)
	}
	if pe.Diagnostic != "I cannot plan this" {
		t.Errorf("Diagnostic = %q", pe.Diagnostic)
	}
}

func TestPlanner_InvokeFailure(t *testing.T) {
	gen := &mockGenerator{errs: map[string]error{"submit_plan": errors.New("rate limited")}}
	_, err := (&Planner{Model: Model{Generator: gen}}).Plan(context.Background(), "goal")
	var pe *planexec.PlanError
	if !errors.As(err, &pe) || !strings.Contains(pe.Diagnostic, "rate limited") {
		t.Errorf("err = %v", err)
	}
}

func TestPlanner_Canceled(t *testing.T) {
	gen := &mockGenerator{errs: map[string]error{"submit_plan": context.Canceled}}
	_, err := (&Planner{Model: Model{Generator: gen}}).Plan(context.Background(), "goal")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	var pe *planexec.PlanError
	if errors.As(err, &pe) {
		t.Error("cancellation reported as PlanError")
	}
}

func TestCritic(t *testing.T) {
	tests := []struct {
		name   string
		args   string
		err    error
		output planexec.Output
		want   planexec.StepVerdict
	}{
		{
			name:   "satisfied",
			args:   `{"satisfied": true}`,
			output: planexec.Output{Text: "found it"},
			want:   planexec.StepVerdict{Satisfied: true},
		},
		{
			name:   "rejected with reason",
			args:   `{"satisfied": false, "reason": "no prices"}`,
			output: planexec.Output{Text: "found it"},
			want:   planexec.StepVerdict{Reason: "no prices"},
		},
		{
			name:   "rejected without reason",
			args:   `{"satisfied": false}`,
			output: planexec.Output{Text: "found it"},
			want:   planexec.StepVerdict{Reason: "the output does not satisfy the instruction"},
		},
		{
			name:   "empty output skips model",
			output: planexec.Output{},
			want:   planexec.StepVerdict{Reason: "the step produced no output"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &mockGenerator{args: map[string]string{"submit_verdict": tt.args}}
			c := &Critic{Model: Model{Generator: gen}}
			got, err := c.Critique(context.Background(), "find prices", nil, tt.output)
			if err != nil {
				t.Fatalf("Critique error: %v", err)
			}
			if got != tt.want {
				t.Errorf("verdict = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestCritic_FaultRejectsStep(t *testing.T) {
	gen := &mockGenerator{errs: map[string]error{"submit_verdict": errors.New("boom")}}
	c := &Critic{Model: Model{Generator: gen}}
	v, err := c.Critique(context.Background(), "x", nil, planexec.Output{Text: "y"})
	if err != nil {
		t.Fatalf("Critique error: %v", err)
	}
	if v.Satisfied || !strings.Contains(v.Reason, "boom") {
		t.Errorf("verdict = %+v", v)
	}
}

func TestCritic_SeesPreviousResults(t *testing.T) {
	gen := &mockGenerator{args: map[string]string{"submit_verdict": `{"satisfied": true}`}}
	c := &Critic{Model: Model{Generator: gen}}
	results := []planexec.Output{{Text: "earlier finding"}}
	if _, err := c.Critique(context.Background(), "x", results, planexec.Output{Text: "y"}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(promptText(gen.invoked[0]), "earlier finding") {
		t.Errorf("prompt misses previous results:\n%s", promptText(gen.invoked[0]))
	}
}

func TestJudge(t *testing.T) {
	gen := &mockGenerator{args: map[string]string{"submit_goal_verdict": `{"met": true, "reason": "all found"}`}}
	j := &Judge{Model: Model{Generator: gen}}
	v, err := j.Judge(context.Background(), "goal", []string{"a"}, []planexec.Output{{Text: "r"}})
	if err != nil {
		t.Fatalf("Judge error: %v", err)
	}
	if !v.Met || v.Reason != "all found" {
		t.Errorf("verdict = %+v", v)
	}
}

func TestJudge_NoResults(t *testing.T) {
	gen := &mockGenerator{}
	v, err := (&Judge{Model: Model{Generator: gen}}).Judge(context.Background(), "goal", nil, nil)
	if err != nil || v.Met {
		t.Errorf("verdict = %+v, err = %v", v, err)
	}
	if len(gen.invoked) != 0 {
		t.Errorf("model called %d times, want 0", len(gen.invoked))
	}
}

func TestJudge_Fault(t *testing.T) {
	gen := &mockGenerator{errs: map[string]error{"submit_goal_verdict": errors.New("boom")}}
	v, err := (&Judge{Model: Model{Generator: gen}}).Judge(context.Background(), "goal", nil, []planexec.Output{{Text: "r"}})
	if err != nil || v.Met {
		t.Errorf("verdict = %+v, err = %v", v, err)
	}
}

func TestParseDecision(t *testing.T) {
	tests := []struct {
		arg  decisionArg
		want planexec.Decision
	}{
		{decisionArg{Decision: "CONTINUE", Instruction: " next "}, planexec.Continue("next")},
		{decisionArg{Decision: "continue"}, planexec.Continue("")},
		{decisionArg{Decision: "TERMINATE", Reason: "no tool"}, planexec.Terminate("no tool")},
		{decisionArg{Decision: "terminate"}, planexec.Terminate("the goal cannot be reached with the available tools")},
		{decisionArg{Instruction: "guess"}, planexec.Continue("guess")},
		{decisionArg{}, planexec.Terminate("reflection gave no decision")},
	}
	for _, tt := range tests {
		if got := parseDecision(tt.arg); got != tt.want {
			t.Errorf("parseDecision(%+v) = %+v, want %+v", tt.arg, got, tt.want)
		}
	}
}

func TestReflector(t *testing.T) {
	gen := &mockGenerator{args: map[string]string{
		"submit_decision": `{"decision": "CONTINUE", "instruction": "search again"}`,
	}}
	r := &Reflector{Model: Model{Generator: gen}}
	d, err := r.Reflect(context.Background(), planexec.Reflection{
		Goal:           "goal",
		Plan:           []string{"a", "b"},
		LastReflection: "Previous step: a",
		LastOutput:     planexec.Output{Text: "nothing useful"},
	})
	if err != nil {
		t.Fatalf("Reflect error: %v", err)
	}
	if d != planexec.Continue("search again") {
		t.Errorf("decision = %+v", d)
	}
	text := promptText(gen.invoked[0])
	for _, want := range []string{"Previous step: a", "nothing useful"} {
		if !strings.Contains(text, want) {
			t.Errorf("prompt misses %q", want)
		}
	}
}

func TestReflector_FaultTerminates(t *testing.T) {
	gen := &mockGenerator{errs: map[string]error{"submit_decision": errors.New("boom")}}
	d, err := (&Reflector{Model: Model{Generator: gen}}).Reflect(context.Background(), planexec.Reflection{Goal: "g"})
	if err != nil {
		t.Fatalf("Reflect error: %v", err)
	}
	if d.Kind != planexec.DecisionTerminate || !strings.Contains(d.Reason, "boom") {
		t.Errorf("decision = %+v", d)
	}
}

func TestSummarizer(t *testing.T) {
	gen := &mockGenerator{text: "final answer"}
	s := &Summarizer{Model: Model{Generator: gen}}
	got, err := s.Summarize(context.Background(), "goal", []planexec.Output{{Text: "fact"}}, "ran out of tools")
	if err != nil {
		t.Fatalf("Summarize error: %v", err)
	}
	if got != "final answer" {
		t.Errorf("answer = %q", got)
	}
	text := promptText(gen.invoked[0])
	if !strings.Contains(text, "fact") || !strings.Contains(text, "ran out of tools") {
		t.Errorf("prompt = %s", text)
	}
}

func TestSummarizer_Fallback(t *testing.T) {
	gen := &mockGenerator{textErr: errors.New("boom")}
	s := &Summarizer{Model: Model{Generator: gen}}
	got, err := s.Summarize(context.Background(), "goal", []planexec.Output{{Text: "fact"}}, "")
	if err != nil {
		t.Fatalf("Summarize error: %v", err)
	}
	if !strings.Contains(got, "fact") {
		t.Errorf("fallback = %q", got)
	}

	got, _ = s.Summarize(context.Background(), "goal", nil, "no tool")
	if !strings.Contains(got, "could not find") || !strings.Contains(got, "no tool") {
		t.Errorf("fallback = %q", got)
	}
}

func TestSummarizer_Canceled(t *testing.T) {
	gen := &mockGenerator{textErr: context.Canceled}
	_, err := (&Summarizer{Model: Model{Generator: gen}}).Summarize(context.Background(), "goal", nil, "")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v", err)
	}
}

// toolGenerator asks for one tool call and then answers.
type toolGenerator struct {
	turn int
	seen []genx.ModelContext
}

func (g *toolGenerator) Generate(ctx context.Context, model string, mctx genx.ModelContext) (*genx.Reply, error) {
	g.seen = append(g.seen, mctx)
	g.turn++
	if g.turn == 1 {
		return &genx.Reply{ToolCalls: []*genx.ToolCall{
			{ID: "c1", FuncCall: &genx.FuncCall{Name: "lookup", Arguments: `{"q":"x"}`}},
		}}, nil
	}
	return &genx.Reply{Text: "done"}, nil
}

func (g *toolGenerator) Invoke(context.Context, string, genx.ModelContext, *genx.FuncTool) (genx.Usage, *genx.FuncCall, error) {
	return genx.Usage{}, nil, errors.New("unused")
}

type lookupArg struct {
	Q string `json:"q"`
}

func TestWorker(t *testing.T) {
	gen := &toolGenerator{}
	lookup := genx.MustNewFuncTool[lookupArg]("lookup", "look something up",
		genx.InvokeFunc[lookupArg](func(ctx context.Context, _ *genx.FuncCall, arg lookupArg) (any, error) {
			return "value for " + arg.Q, nil
		}))
	var events []string
	w := &Worker{
		Agent: &agent.ToolAgent{Generator: gen, Tools: []*genx.FuncTool{lookup}},
		Sink: planexec.EventSinkFunc(func(ctx context.Context, msg string) error {
			events = append(events, msg)
			return errors.New("sink closed")
		}),
	}
	out, err := w.Execute(context.Background(), "look up x", []planexec.Output{{Text: "earlier"}})
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if out.Text != "done" {
		t.Errorf("Text = %q", out.Text)
	}
	want := []planexec.Observation{{Tool: "lookup", Arguments: `{"q":"x"}`, Result: "value for x"}}
	if !slices.Equal(out.Observations, want) {
		t.Errorf("Observations = %+v", out.Observations)
	}
	if !slices.Equal(events, []string{"Calling tool lookup"}) {
		t.Errorf("events = %q", events)
	}
	if !strings.Contains(promptText(gen.seen[0]), "earlier") {
		t.Error("worker prompt misses previous results")
	}
}
