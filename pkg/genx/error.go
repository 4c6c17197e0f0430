package genx

import (
	"errors"
	"fmt"
)

type Status string

const (
	StatusDone      Status = "done"
	StatusBlocked   Status = "blocked"
	StatusTruncated Status = "truncated"
	StatusError     Status = "error"
)

// ErrNoAnswer is returned when the model finishes without usable content.
var ErrNoAnswer = errors.New("genx: no answer")

func Blocked(stats Usage, refusal string) *State {
	return &State{
		usage:  stats,
		status: StatusBlocked,
		err:    fmt.Errorf("genx: generate blocked: %s", refusal),
	}
}

func Truncated(stats Usage) *State {
	return &State{
		usage:  stats,
		status: StatusTruncated,
		err:    errors.New("genx: generate truncated"),
	}
}

func Error(stats Usage, err error) *State {
	return &State{
		usage:  stats,
		status: StatusError,
		err:    fmt.Errorf("genx: generate error: %w", err),
	}
}

// State is the error form of an abnormal finish.
type State struct {
	usage  Usage
	status Status
	err    error
}

func (ss *State) Usage() Usage {
	return ss.usage
}

func (ss *State) Status() Status {
	return ss.status
}

func (ss *State) Unwrap() error {
	return ss.err
}

func (ss *State) Error() string {
	if ss.err == nil {
		return fmt.Sprintf("genx: unexpected status: %v", ss.status)
	}
	return ss.err.Error()
}
