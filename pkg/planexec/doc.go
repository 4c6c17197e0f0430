// Package planexec drives a goal through a bounded plan, execute and
// reflect cycle.
//
// A Loop asks its Planner for candidate steps, executes plan[0], and from
// then on, before every further step, runs a fixed protocol:
//
//	StepCritic  → was the previous step satisfied?  (fold or discard its output)
//	GoalJudge   → is the goal met?                   (stop, success)
//	Reflector   → next instruction, or terminate     (stop, with a reason)
//
// Only outputs the critic approved reach the accumulated context seen by the
// GoalJudge and the Summarizer. The Reflector always sees the latest output,
// approved or not, so it can correct course.
//
// The Summarizer is called exactly once per run unless the context is
// canceled, in which case Run returns the context error and no answer.
package planexec
