package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrShapeChanged indicates a field whose extent differs from step 0.
	ErrShapeChanged = errors.New("pipeline: field shape changed between steps")

	// ErrMissingVariable indicates an input step without a required variable.
	ErrMissingVariable = errors.New("pipeline: required variable missing")
)

// StepError wraps a fatal error with the step and operation that raised it.
type StepError struct {
	Step    int
	Op      string
	Wrapped error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d: %s: %v", e.Step, e.Op, e.Wrapped)
}

func (e *StepError) Unwrap() error {
	return e.Wrapped
}
