package planexec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// DefaultMaxSteps is the step budget when Loop.MaxSteps is unset.
const DefaultMaxSteps = 6

const instrumentationName = "github.com/haivivi/agentkit/pkg/planexec"

// ErrMissingCollaborator is returned by Run when a required collaborator is nil.
var ErrMissingCollaborator = errors.New("planexec: missing collaborator")

// Exit says how a run left the step loop.
type Exit string

const (
	ExitPlanFailed Exit = "plan_failed"
	// ExitGoalMet is also reported when the closing review after the step
	// budget runs out finds the goal met.
	ExitGoalMet    Exit = "goal_met"
	ExitTerminated Exit = "terminated"
	ExitBudget     Exit = "budget_exhausted"
)

// Report is the full outcome of a run.
type Report struct {
	Answer  string
	Exit    Exit
	Context *PlanContext
}

// Loop wires the collaborators of the plan, execute and reflect cycle. A
// Loop holds no per-run state; concurrent Runs are independent as long as
// the collaborators are safe for concurrent use.
type Loop struct {
	Planner    Planner
	Worker     StepWorker
	Critic     StepCritic
	Judge      GoalJudge
	Reflector  Reflector
	Summarizer Summarizer

	// Sink is optional.
	Sink EventSink

	// MaxSteps bounds worker executions per run. Zero means DefaultMaxSteps.
	MaxSteps int

	Logger *slog.Logger
}

func (l *Loop) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}

func (l *Loop) maxSteps() int {
	if l.MaxSteps > 0 {
		return l.MaxSteps
	}
	return DefaultMaxSteps
}

func (l *Loop) validate() error {
	var missing []string
	if l.Planner == nil {
		missing = append(missing, "planner")
	}
	if l.Worker == nil {
		missing = append(missing, "worker")
	}
	if l.Critic == nil {
		missing = append(missing, "critic")
	}
	if l.Judge == nil {
		missing = append(missing, "goal judge")
	}
	if l.Reflector == nil {
		missing = append(missing, "reflector")
	}
	if l.Summarizer == nil {
		missing = append(missing, "summarizer")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingCollaborator, strings.Join(missing, ", "))
	}
	return nil
}

// Run answers goal. The error is non-nil only for missing collaborators,
// collaborator infrastructure faults and cancellation.
func (l *Loop) Run(ctx context.Context, goal string) (string, error) {
	rep, err := l.Execute(ctx, goal)
	if err != nil {
		return "", err
	}
	return rep.Answer, nil
}

// Execute is Run with the final state attached.
func (l *Loop) Execute(ctx context.Context, goal string) (_ *Report, err error) {
	if err := l.validate(); err != nil {
		return nil, err
	}
	ctx, span := tracer().Start(ctx, "planexec.Run", trace.WithAttributes(
		attribute.Int("planexec.max_steps", l.maxSteps()),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	r := &run{loop: l, log: l.logger()}
	rep, err := r.execute(ctx, goal)
	if err == nil {
		span.SetAttributes(
			attribute.String("planexec.exit", string(rep.Exit)),
			attribute.Int("planexec.steps", rep.Context.StepIndex),
		)
		recordRun(ctx, rep.Exit)
	}
	return rep, err
}

// run carries one execution. It is not shared.
type run struct {
	loop *Loop
	log  *slog.Logger
	pc   *PlanContext
}

// next is the outcome of determineNext.
type next struct {
	instruction string
	terminate   bool
	reason      string
	exit        Exit
}

func (r *run) execute(ctx context.Context, goal string) (*Report, error) {
	plan, err := r.plan(ctx, goal)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var pe *PlanError
		diagnostic := err.Error()
		if errors.As(err, &pe) {
			diagnostic = pe.Diagnostic
		}
		r.log.WarnContext(ctx, "plan generation failed", "error", err)
		return &Report{Answer: diagnostic, Exit: ExitPlanFailed, Context: newPlanContext(goal, nil)}, nil
	}

	r.pc = newPlanContext(goal, plan)
	r.notify(ctx, formatPlan(plan))

	exit := ExitBudget
	for r.pc.StepIndex = 0; r.pc.StepIndex < r.loop.maxSteps(); r.pc.StepIndex++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := r.determineNext(ctx)
		if err != nil {
			return nil, err
		}
		if n.terminate {
			r.pc.FailureReason = n.reason
			exit = n.exit
			break
		}
		r.notify(ctx, "Executing step: "+n.instruction)
		out, err := r.executeStep(ctx, n.instruction)
		if err != nil {
			return nil, err
		}
		r.pc.LastStep = n.instruction
		r.pc.LastOutput = out
	}

	if exit == ExitBudget {
		if exit, err = r.closingReview(ctx); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.notify(ctx, "Summarizing results")
	answer, err := r.summarize(ctx)
	if err != nil {
		return nil, err
	}
	r.log.InfoContext(ctx, "plan execution finished",
		"exit", exit,
		"steps", r.pc.StepIndex,
		"accepted", len(r.pc.StepsTaken),
		"failure_reason", r.pc.FailureReason,
	)
	return &Report{Answer: answer, Exit: exit, Context: r.pc}, nil
}

// determineNext picks the instruction for the current step index, or
// decides to stop. It mutates only the folded results of r.pc.
func (r *run) determineNext(ctx context.Context) (next, error) {
	pc := r.pc
	if pc.StepIndex == 0 {
		if len(pc.Plan) == 0 {
			return next{terminate: true, reason: "planner returned no steps", exit: ExitTerminated}, nil
		}
		return next{instruction: pc.Plan[0]}, nil
	}

	reflection, err := r.critiqueLastStep(ctx)
	if err != nil {
		return next{}, err
	}

	verdict, err := r.judgeGoal(ctx)
	if err != nil {
		return next{}, err
	}
	if verdict.Met {
		return next{terminate: true, exit: ExitGoalMet}, nil
	}

	r.notify(ctx, "Re-planning the next step")
	decision, err := r.reflect(ctx, reflection)
	if err != nil {
		return next{}, err
	}
	switch decision.Kind {
	case DecisionContinue:
		if strings.TrimSpace(decision.Instruction) == "" {
			return next{terminate: true, reason: "reflection produced no next instruction", exit: ExitTerminated}, nil
		}
		return next{instruction: decision.Instruction}, nil
	default:
		return next{terminate: true, reason: decision.Reason, exit: ExitTerminated}, nil
	}
}

// critiqueLastStep folds the last output when the critic approves it and
// returns the reflection message for the Reflector.
func (r *run) critiqueLastStep(ctx context.Context) (string, error) {
	pc := r.pc
	verdict, err := r.critique(ctx)
	if err != nil {
		return "", err
	}
	if !verdict.Satisfied {
		r.log.DebugContext(ctx, "step not satisfied", "step", pc.LastStep, "reason", verdict.Reason)
		return fmt.Sprintf("Previous step: %s\nThe step was not completed successfully. Reason: %s", pc.LastStep, verdict.Reason), nil
	}
	pc.accept()
	return pc.LastStep, nil
}

// closingReview runs after the budget is spent: the final step still gets
// its critique and a last goal check, but no new instruction is requested.
func (r *run) closingReview(ctx context.Context) (Exit, error) {
	if r.pc.StepIndex == 0 || r.pc.LastStep == "" {
		return ExitBudget, nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if _, err := r.critiqueLastStep(ctx); err != nil {
		return "", err
	}
	verdict, err := r.judgeGoal(ctx)
	if err != nil {
		return "", err
	}
	if verdict.Met {
		return ExitGoalMet, nil
	}
	return ExitBudget, nil
}

func (r *run) notify(ctx context.Context, message string) {
	r.log.InfoContext(ctx, message)
	if r.loop.Sink == nil {
		return
	}
	if err := r.loop.Sink.Notify(ctx, message); err != nil {
		r.log.WarnContext(ctx, "event sink failed", "error", err)
	}
}

func formatPlan(plan []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Created a plan with %d steps", len(plan))
	for i, s := range plan {
		fmt.Fprintf(&sb, "\n%d. %s", i+1, s)
	}
	return sb.String()
}

func tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

func recordRun(ctx context.Context, exit Exit) {
	counter, err := otel.Meter(instrumentationName).Int64Counter(
		"planexec.runs",
		metric.WithDescription("Completed plan executions by exit"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return
	}
	counter.Add(ctx, 1, metric.WithAttributes(attribute.String("exit", string(exit))))
}
