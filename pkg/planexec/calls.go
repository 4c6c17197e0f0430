package planexec

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Each helper wraps one collaborator call in a span and passes a snapshot
// of the accumulated results.

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (r *run) plan(ctx context.Context, goal string) (_ []string, err error) {
	ctx, span := startSpan(ctx, "planexec.Plan")
	defer func() { endSpan(span, err) }()
	return r.loop.Planner.Plan(ctx, goal)
}

// executeStep runs the worker. Worker faults become part of the output so
// the critic can reject the step; only cancellation aborts.
func (r *run) executeStep(ctx context.Context, instruction string) (_ Output, err error) {
	ctx, span := startSpan(ctx, "planexec.Execute", attribute.Int("planexec.step", r.pc.StepIndex))
	defer func() { endSpan(span, err) }()
	out, err := r.loop.Worker.Execute(ctx, instruction, r.pc.results())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Output{}, ctxErr
		}
		r.log.WarnContext(ctx, "step execution failed", "step", instruction, "error", err)
		out.Err = err.Error()
	}
	return out, nil
}

func (r *run) critique(ctx context.Context) (_ StepVerdict, err error) {
	ctx, span := startSpan(ctx, "planexec.Critique", attribute.Int("planexec.step", r.pc.StepIndex))
	defer func() { endSpan(span, err) }()
	v, err := r.loop.Critic.Critique(ctx, r.pc.LastStep, r.pc.results(), r.pc.LastOutput)
	if err != nil {
		return StepVerdict{}, fmt.Errorf("planexec: critique: %w", err)
	}
	span.SetAttributes(attribute.Bool("planexec.satisfied", v.Satisfied))
	return v, nil
}

func (r *run) judgeGoal(ctx context.Context) (_ GoalVerdict, err error) {
	ctx, span := startSpan(ctx, "planexec.JudgeGoal")
	defer func() { endSpan(span, err) }()
	v, err := r.loop.Judge.Judge(ctx, r.pc.Goal, r.pc.Plan, r.pc.results())
	if err != nil {
		return GoalVerdict{}, fmt.Errorf("planexec: judge goal: %w", err)
	}
	span.SetAttributes(attribute.Bool("planexec.goal_met", v.Met))
	return v, nil
}

func (r *run) reflect(ctx context.Context, reflection string) (_ Decision, err error) {
	ctx, span := startSpan(ctx, "planexec.Reflect")
	defer func() { endSpan(span, err) }()
	d, err := r.loop.Reflector.Reflect(ctx, Reflection{
		Goal:           r.pc.Goal,
		Plan:           r.pc.Plan,
		LastReflection: reflection,
		LastOutput:     r.pc.LastOutput,
		StepsTaken:     append([]string(nil), r.pc.StepsTaken...),
	})
	if err != nil {
		return Decision{}, fmt.Errorf("planexec: reflect: %w", err)
	}
	span.SetAttributes(attribute.String("planexec.decision", d.Kind.String()))
	return d, nil
}

func (r *run) summarize(ctx context.Context) (_ string, err error) {
	ctx, span := startSpan(ctx, "planexec.Summarize", attribute.Bool("planexec.partial", r.pc.FailureReason != ""))
	defer func() { endSpan(span, err) }()
	answer, err := r.loop.Summarizer.Summarize(ctx, r.pc.Goal, r.pc.results(), r.pc.FailureReason)
	if err != nil {
		return "", fmt.Errorf("planexec: summarize: %w", err)
	}
	return answer, nil
}
