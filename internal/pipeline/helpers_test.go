package pipeline_test

import (
	"context"
	"fmt"
	"time"

	"github.com/san-kum/timederiv/internal/pipeline"
	"github.com/san-kum/timederiv/internal/stepstore"
)

// frame is one output transaction read back from a store.
type frame struct {
	step  int
	deriv []float64
	axes  [3][]float64
}

func readFrames(st *stepstore.Store) ([]frame, error) {
	ctx := context.Background()
	r := st.NewReader()
	defer r.Close()

	var frames []frame
	for {
		status, err := r.BeginStep(ctx)
		if err != nil {
			return nil, err
		}
		if status == stepstore.EndOfStream {
			return frames, nil
		}
		f := frame{step: r.CurrentStep()}
		v, ok := r.InquireVariable(pipeline.VarDerivative)
		if !ok {
			return nil, fmt.Errorf("frame %d has no derivative", f.step)
		}
		f.deriv = make([]float64, v.Len())
		if err := r.Get(pipeline.VarDerivative, f.deriv); err != nil {
			return nil, err
		}
		for i, name := range []string{pipeline.VarX, pipeline.VarY, pipeline.VarZ} {
			if av, ok := r.InquireVariable(name); ok {
				f.axes[i] = make([]float64, av.Len())
				if err := r.Get(name, f.axes[i]); err != nil {
					return nil, err
				}
			}
		}
		if err := r.EndStep(); err != nil {
			return nil, err
		}
		frames = append(frames, f)
	}
}

// fakeStep is one input step served by fakeReader.
type fakeStep struct {
	producer int
	vars     map[string]stepstore.Variable
	data     map[string][]float64
	ints     map[string]int64
}

func newFakeStep(producer int, shape [3]int, dt float64, maxStep int64, value float64) fakeStep {
	n := shape[0] * shape[1] * shape[2]
	s := fakeStep{
		producer: producer,
		vars:     map[string]stepstore.Variable{},
		data:     map[string][]float64{},
		ints:     map[string]int64{pipeline.VarMaxStep: maxStep},
	}
	add := func(name string, kind stepstore.Kind, data []float64, dims ...int) {
		s.vars[name] = stepstore.Variable{Name: name, Kind: kind, Shape: dims}
		s.data[name] = data
	}
	add(pipeline.VarDeltaT, stepstore.Float64, []float64{dt})
	s.vars[pipeline.VarMaxStep] = stepstore.Variable{Name: pipeline.VarMaxStep, Kind: stepstore.Int64}
	for i, name := range []string{pipeline.VarX, pipeline.VarY, pipeline.VarZ} {
		axis := make([]float64, shape[i])
		for j := range axis {
			axis[j] = float64(j)
		}
		add(name, stepstore.Float64, axis, shape[i])
	}
	f := make([]float64, n)
	for i := range f {
		f[i] = value
	}
	add("F", stepstore.Float64, f, shape[0], shape[1], shape[2])
	return s
}

type fakeReader struct {
	steps []fakeStep
	pos   int
}

var _ stepstore.Reader = (*fakeReader)(nil)

func (r *fakeReader) BeginStep(ctx context.Context) (stepstore.StepStatus, error) {
	if err := ctx.Err(); err != nil {
		return stepstore.EndOfStream, err
	}
	if r.pos >= len(r.steps) {
		return stepstore.EndOfStream, nil
	}
	return stepstore.StepOK, nil
}

func (r *fakeReader) CurrentStep() int { return r.steps[r.pos].producer }

func (r *fakeReader) InquireVariable(name string) (stepstore.Variable, bool) {
	v, ok := r.steps[r.pos].vars[name]
	return v, ok
}

func (r *fakeReader) Get(name string, dst []float64) error {
	src, ok := r.steps[r.pos].data[name]
	if !ok {
		return stepstore.ErrVariableNotFound
	}
	if len(src) != len(dst) {
		return stepstore.ErrShapeMismatch
	}
	copy(dst, src)
	return nil
}

func (r *fakeReader) GetFloat64(name string) (float64, error) {
	src, ok := r.steps[r.pos].data[name]
	if !ok {
		return 0, stepstore.ErrVariableNotFound
	}
	return src[0], nil
}

func (r *fakeReader) GetInt64(name string) (int64, error) {
	n, ok := r.steps[r.pos].ints[name]
	if !ok {
		return 0, stepstore.ErrVariableNotFound
	}
	return n, nil
}

func (r *fakeReader) EndStep() error {
	r.pos++
	return nil
}

func (r *fakeReader) Close() error { return nil }

// recorder is an Observer that keeps every notification.
type recorder struct {
	steps  []int
	frames []pipeline.FrameKind
	halts  [][2]int
}

func (r *recorder) OnStep(step int, _ time.Duration) { r.steps = append(r.steps, step) }

func (r *recorder) OnFrame(_ int, kind pipeline.FrameKind, _ []float64) {
	r.frames = append(r.frames, kind)
}

func (r *recorder) OnHalt(expected, producer int) {
	r.halts = append(r.halts, [2]int{expected, producer})
}
