package pipeline

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/san-kum/timederiv/internal/field"
	"github.com/san-kum/timederiv/internal/stepstore"
	"go.uber.org/zap"
)

// Names of the variables read from the input and written to the output.
const (
	VarDeltaT     = "deltaT"
	VarMaxStep    = "MaxStep"
	VarX          = "x"
	VarY          = "y"
	VarZ          = "z"
	VarDerivative = "time_derivative"
)

// Summary reports what a Run did.
type Summary struct {
	StepsRead        int         `json:"steps_read"`
	FramesWritten    int         `json:"frames_written"`
	DerivativeFrames int         `json:"derivative_frames"`
	Halted           bool        `json:"halted"`
	ExpectedStep     int         `json:"expected_step,omitempty"`
	ProducerStep     int         `json:"producer_step,omitempty"`
	DeltaT           float64     `json:"delta_t"`
	MaxStep          int64       `json:"max_step"`
	Shape            field.Shape `json:"shape"`
}

type outputVars struct {
	deriv, x, y, z stepstore.Variable
}

// state is everything the loop carries from one step to the next.
type state struct {
	step    int
	deltaT  float64
	maxStep int64
	shape   field.Shape
	ring    *field.Ring
	axes    [3][]float64
	deriv   []float64
	out     outputVars
	defined bool
}

type Pipeline struct {
	in        stepstore.Reader
	out       stepstore.Writer
	varName   string
	logger    *zap.Logger
	observers []Observer
	st        state
}

// New returns a pipeline that differentiates varName from in into out.
// A nil logger discards log output.
func New(in stepstore.Reader, out stepstore.Writer, varName string, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		in:      in,
		out:     out,
		varName: varName,
		logger:  logger,
		st:      state{ring: field.NewRing(0)},
	}
}

func (p *Pipeline) AddObserver(o Observer) { p.observers = append(p.observers, o) }

// Run processes the input until end of stream or a step mismatch, then
// writes the final zero frame and closes the output. Any other failure is
// returned immediately and leaves the output open.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	sum := &Summary{}
	defer func() {
		sum.DeltaT = p.st.deltaT
		sum.MaxStep = p.st.maxStep
		sum.Shape = p.st.shape
	}()

	for {
		start := time.Now()
		status, err := p.in.BeginStep(ctx)
		if err != nil {
			return sum, &StepError{Step: p.st.step, Op: "begin input step", Wrapped: err}
		}
		if status == stepstore.EndOfStream {
			break
		}

		producer := p.in.CurrentStep()
		p.logger.Info("Process step", zap.Int("step", p.st.step), zap.Int("producer_step", producer))
		if producer != p.st.step {
			p.logger.Error("this pipeline needs all steps from the producer",
				zap.Int("expected_step", p.st.step), zap.Int("producer_step", producer))
			sum.Halted = true
			sum.ExpectedStep = p.st.step
			sum.ProducerStep = producer
			for _, o := range p.observers {
				o.OnHalt(p.st.step, producer)
			}
			break
		}

		if err := p.readStep(); err != nil {
			return sum, err
		}
		sum.StepsRead++

		kind, err := p.emit(ctx)
		if err != nil {
			return sum, err
		}
		if kind != "" {
			sum.FramesWritten++
			if kind == FrameDerivative {
				sum.DerivativeFrames++
			}
		}

		elapsed := time.Since(start)
		for _, o := range p.observers {
			o.OnStep(p.st.step, elapsed)
		}
		p.st.step++
	}

	if p.st.defined {
		field.Zero(p.st.deriv)
		if err := p.writeFrame(ctx, FrameFinal, false); err != nil {
			return sum, err
		}
		sum.FramesWritten++
	} else {
		p.logger.Warn("no input steps were read; skipping final frame")
	}

	if err := p.out.Close(); err != nil {
		return sum, &StepError{Step: p.st.step, Op: "close output", Wrapped: err}
	}
	return sum, nil
}

// readStep performs everything between BeginStep and EndStep on the input.
func (p *Pipeline) readStep() error {
	s := &p.st
	fail := func(op string, err error) error {
		return &StepError{Step: s.step, Op: op, Wrapped: err}
	}

	if s.step == 0 {
		dt, err := p.in.GetFloat64(VarDeltaT)
		if err != nil {
			return fail("read "+VarDeltaT, err)
		}
		maxStep, err := p.in.GetInt64(VarMaxStep)
		if err != nil {
			return fail("read "+VarMaxStep, err)
		}
		s.deltaT, s.maxStep = dt, maxStep
		p.logger.Info("time step metadata", zap.Float64("deltaT", dt), zap.Int64("max_step", maxStep))
		if dt == 0 || math.IsNaN(dt) {
			p.logger.Warn("deltaT is zero or NaN; derivatives will not be finite", zap.Float64("deltaT", dt))
		}
	} else {
		p.logger.Debug("shift data backward", zap.Int("step", s.step))
		s.ring.Shift()
	}

	v, ok := p.in.InquireVariable(p.varName)
	if !ok {
		return fail("inquire", fmt.Errorf("%w: %s", ErrMissingVariable, p.varName))
	}
	shape, err := field.ShapeOf(v.Shape)
	if err != nil {
		return fail("shape of "+p.varName, err)
	}
	if s.step > 0 && shape != s.shape {
		return fail("shape of "+p.varName, fmt.Errorf("%w: %s -> %s", ErrShapeChanged, s.shape, shape))
	}
	s.shape = shape

	for i, name := range []string{VarX, VarY, VarZ} {
		if len(s.axes[i]) != shape[i] {
			s.axes[i] = make([]float64, shape[i])
		}
		if err := p.in.Get(name, s.axes[i]); err != nil {
			return fail("read axis "+name, err)
		}
	}

	if s.step == 0 {
		if err := p.defineOutputs(); err != nil {
			return fail("define outputs", err)
		}
	}

	n := shape.Size()
	if s.ring.Resize(n) {
		p.logger.Debug("allocated field buffers", zap.Int("elements", n), zap.Stringer("shape", shape))
	}
	if len(s.deriv) != n {
		s.deriv = make([]float64, n)
	}
	if err := p.in.Get(p.varName, s.ring.Plus()); err != nil {
		return fail("read "+p.varName, err)
	}

	if err := p.in.EndStep(); err != nil {
		return fail("end input step", err)
	}
	return nil
}

func (p *Pipeline) defineOutputs() error {
	s := &p.st
	var err error
	if s.out.deriv, err = p.out.DefineVariable(VarDerivative, stepstore.Float64, s.shape.Dims()...); err != nil {
		return err
	}
	if s.out.x, err = p.out.DefineVariable(VarX, stepstore.Float64, s.shape[0]); err != nil {
		return err
	}
	if s.out.y, err = p.out.DefineVariable(VarY, stepstore.Float64, s.shape[1]); err != nil {
		return err
	}
	if s.out.z, err = p.out.DefineVariable(VarZ, stepstore.Float64, s.shape[2]); err != nil {
		return err
	}
	s.defined = true
	return nil
}

// emit writes the output transaction for the current step, if any, and
// returns its kind ("" when nothing was written).
func (p *Pipeline) emit(ctx context.Context) (FrameKind, error) {
	s := &p.st
	switch {
	case s.step >= 2 && int64(s.step) < s.maxStep:
		p.logger.Debug("calculate derivative", zap.Int("centered_step", s.step-1))
		if err := field.CenteredDifference(s.deriv, s.ring.Plus(), s.ring.Minus(), s.deltaT); err != nil {
			return "", &StepError{Step: s.step, Op: "centered difference", Wrapped: err}
		}
		return FrameDerivative, p.writeFrame(ctx, FrameDerivative, false)
	case s.step == 0:
		field.Zero(s.deriv)
		return FrameInitial, p.writeFrame(ctx, FrameInitial, true)
	default:
		p.logger.Debug("no output for boundary step", zap.Int("step", s.step), zap.Int64("max_step", s.maxStep))
		return "", nil
	}
}

func (p *Pipeline) writeFrame(ctx context.Context, kind FrameKind, withAxes bool) error {
	s := &p.st
	fail := func(op string, err error) error {
		return &StepError{Step: s.step, Op: op, Wrapped: err}
	}

	if err := p.out.BeginStep(ctx); err != nil {
		return fail("begin output step", err)
	}
	if withAxes {
		if err := p.out.Put(s.out.x, s.axes[0]); err != nil {
			return fail("put "+VarX, err)
		}
		if err := p.out.Put(s.out.y, s.axes[1]); err != nil {
			return fail("put "+VarY, err)
		}
		if err := p.out.Put(s.out.z, s.axes[2]); err != nil {
			return fail("put "+VarZ, err)
		}
	}
	if err := p.out.Put(s.out.deriv, s.deriv); err != nil {
		return fail("put "+VarDerivative, err)
	}
	if err := p.out.EndStep(); err != nil {
		return fail("end output step", err)
	}

	for _, o := range p.observers {
		o.OnFrame(s.step, kind, s.deriv)
	}
	return nil
}
