package planexec

import "context"

// PlanError reports that the planner's answer could not be read as a list of
// steps. Diagnostic is returned to the user as the answer.
type PlanError struct {
	Diagnostic string
}

func (e *PlanError) Error() string {
	return "planexec: unparseable plan: " + e.Diagnostic
}

// StepVerdict is the critic's judgement of one step's output.
type StepVerdict struct {
	Satisfied bool
	Reason    string
}

// GoalVerdict says whether the results so far meet the goal.
type GoalVerdict struct {
	Met    bool
	Reason string
}

// DecisionKind tells a continue decision from a terminate one.
type DecisionKind int

const (
	DecisionContinue DecisionKind = iota
	DecisionTerminate
)

func (k DecisionKind) String() string {
	switch k {
	case DecisionContinue:
		return "continue"
	case DecisionTerminate:
		return "terminate"
	}
	return "unknown"
}

// Decision is the Reflector's answer: the next instruction, or a reason to stop.
type Decision struct {
	Kind        DecisionKind
	Instruction string
	Reason      string
}

// Continue returns a decision to run instruction next.
func Continue(instruction string) Decision {
	return Decision{Kind: DecisionContinue, Instruction: instruction}
}

// Terminate returns a decision to stop for reason.
func Terminate(reason string) Decision {
	return Decision{Kind: DecisionTerminate, Reason: reason}
}

// Reflection is what the Reflector gets to choose the next step.
type Reflection struct {
	Goal string
	Plan []string

	// LastReflection restates the last instruction, with the critic's
	// reason appended when it was not satisfied.
	LastReflection string
	LastOutput     Output
	StepsTaken     []string
}

// Planner drafts candidate steps for goal. A *PlanError means the answer
// was unreadable.
type Planner interface {
	Plan(ctx context.Context, goal string) ([]string, error)
}

// StepWorker carries out one instruction given the results so far.
type StepWorker interface {
	Execute(ctx context.Context, instruction string, results []Output) (Output, error)
}

// StepCritic judges whether a step's output satisfied its instruction.
type StepCritic interface {
	Critique(ctx context.Context, instruction string, results []Output, output Output) (StepVerdict, error)
}

// GoalJudge decides whether the goal has been met.
type GoalJudge interface {
	Judge(ctx context.Context, goal string, plan []string, results []Output) (GoalVerdict, error)
}

// Reflector picks the next instruction or ends the run.
type Reflector interface {
	Reflect(ctx context.Context, r Reflection) (Decision, error)
}

// Summarizer writes the final answer from the collected results.
type Summarizer interface {
	Summarize(ctx context.Context, goal string, results []Output, failureReason string) (string, error)
}

// EventSink receives progress messages. Errors are logged and dropped.
type EventSink interface {
	Notify(ctx context.Context, message string) error
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(ctx context.Context, message string) error

func (f EventSinkFunc) Notify(ctx context.Context, message string) error {
	return f(ctx, message)
}
