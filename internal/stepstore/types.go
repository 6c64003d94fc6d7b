package stepstore

import (
	"context"
	"fmt"
)

// Kind is the element type of a variable.
type Kind uint8

const (
	Float64 Kind = iota + 1
	Int64
)

func (k Kind) String() string {
	switch k {
	case Float64:
		return "float64"
	case Int64:
		return "int64"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	if k != Float64 && k != Int64 {
		return nil, fmt.Errorf("%w: %d", ErrKindMismatch, uint8(k))
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "float64":
		*k = Float64
	case "int64":
		*k = Int64
	default:
		return fmt.Errorf("%w: %q", ErrKindMismatch, b)
	}
	return nil
}

// Variable describes a named array with constant dimensions. A variable
// with an empty shape is a scalar.
type Variable struct {
	Name  string `json:"name"`
	Kind  Kind   `json:"kind"`
	Shape []int  `json:"shape,omitempty"`
}

// Len returns the element count: the product of the shape, 1 for scalars.
func (v Variable) Len() int {
	n := 1
	for _, d := range v.Shape {
		n *= d
	}
	return n
}

func (v Variable) IsScalar() bool { return len(v.Shape) == 0 }

func (v Variable) sameLayout(o Variable) bool {
	if v.Kind != o.Kind || len(v.Shape) != len(o.Shape) {
		return false
	}
	for i := range v.Shape {
		if v.Shape[i] != o.Shape[i] {
			return false
		}
	}
	return true
}

// StepStatus is the outcome of Reader.BeginStep.
type StepStatus int

const (
	StepOK StepStatus = iota
	EndOfStream
)

func (s StepStatus) String() string {
	if s == EndOfStream {
		return "end-of-stream"
	}
	return "ok"
}

// Reader consumes committed steps in increasing order.
type Reader interface {
	BeginStep(ctx context.Context) (StepStatus, error)
	// CurrentStep is the producer step index of the open step.
	CurrentStep() int
	InquireVariable(name string) (Variable, bool)
	// Get reads the full extent of a float64 variable into dst.
	Get(name string, dst []float64) error
	GetFloat64(name string) (float64, error)
	GetInt64(name string) (int64, error)
	EndStep() error
	Close() error
}

// Writer produces steps. Every put of a step becomes visible at EndStep.
type Writer interface {
	DefineVariable(name string, kind Kind, shape ...int) (Variable, error)
	BeginStep(ctx context.Context) error
	Put(v Variable, data []float64) error
	PutFloat64(v Variable, x float64) error
	PutInt64(v Variable, n int64) error
	EndStep() error
	// AbortStep discards the open step but consumes its index.
	AbortStep() error
	Close() error
}
