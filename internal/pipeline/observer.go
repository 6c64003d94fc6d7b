package pipeline

import "time"

// FrameKind labels an output transaction.
type FrameKind string

const (
	FrameInitial    FrameKind = "initial"
	FrameDerivative FrameKind = "derivative"
	FrameFinal      FrameKind = "final"
)

// Observer is notified as the loop progresses. deriv is only valid for the
// duration of the call.
type Observer interface {
	OnStep(step int, elapsed time.Duration)
	OnFrame(step int, kind FrameKind, deriv []float64)
	OnHalt(expected, producer int)
}
