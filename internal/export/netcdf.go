// Package export converts derivative output stores into NetCDF classic files.
package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ctessum/cdf"
	"github.com/san-kum/timederiv/internal/field"
	"github.com/san-kum/timederiv/internal/pipeline"
	"github.com/san-kum/timederiv/internal/stepstore"
)

// ErrNoFrames is returned when the source store has no committed steps.
var ErrNoFrames = errors.New("export: store has no frames")

// Dimension names in the exported file. time is the record dimension.
const (
	DimTime = "time"
	DimX    = "x"
	DimY    = "y"
	DimZ    = "z"
)

// Options carries the global attributes written to the file header.
type Options struct {
	Source string
	RunID  string
}

func header(shape field.Shape, opts Options) *cdf.Header {
	h := cdf.NewHeader(
		[]string{DimTime, DimX, DimY, DimZ},
		[]int{0, shape[0], shape[1], shape[2]})
	h.AddAttribute("", "comment", "Centered finite-difference time derivative")
	h.AddAttribute("", "created", time.Now().UTC().Format(time.RFC3339))
	if opts.Source != "" {
		h.AddAttribute("", "source", opts.Source)
	}
	if opts.RunID != "" {
		h.AddAttribute("", "run_id", opts.RunID)
	}

	for _, axis := range []string{DimX, DimY, DimZ} {
		h.AddVariable(axis, []string{axis}, []float64{0})
		h.AddAttribute(axis, "description", "grid coordinate")
	}
	h.AddVariable(pipeline.VarDerivative, []string{DimTime, DimX, DimY, DimZ}, []float64{0})
	h.AddAttribute(pipeline.VarDerivative, "description", "dF/dt by centered difference")
	h.Define()
	return h
}

// NetCDF writes every frame of r to a new file at path and returns the
// number of records written. Axes come from the first frame that has them.
func NetCDF(ctx context.Context, r stepstore.Reader, path string, opts Options) (int, error) {
	var (
		ff     *os.File
		f      *cdf.File
		shape  field.Shape
		buf    []float64
		frames int
		axesOK bool
	)
	defer func() {
		if ff != nil {
			ff.Close()
		}
	}()

	for {
		status, err := r.BeginStep(ctx)
		if err != nil {
			return frames, err
		}
		if status == stepstore.EndOfStream {
			break
		}
		step := r.CurrentStep()

		v, ok := r.InquireVariable(pipeline.VarDerivative)
		if !ok {
			return frames, fmt.Errorf("step %d: %w: %s", step, stepstore.ErrVariableNotFound, pipeline.VarDerivative)
		}
		if f == nil {
			if shape, err = field.ShapeOf(v.Shape); err != nil {
				return frames, fmt.Errorf("step %d: %w", step, err)
			}
			h := header(shape, opts)
			if errs := h.Check(); len(errs) > 0 {
				return frames, fmt.Errorf("export: invalid header: %w", errors.Join(errs...))
			}
			if ff, err = os.Create(path); err != nil {
				return frames, err
			}
			if f, err = cdf.Create(ff, h); err != nil {
				return frames, fmt.Errorf("export: write header: %w", err)
			}
			buf = make([]float64, shape.Size())
		}
		if v.Len() != len(buf) {
			return frames, fmt.Errorf("step %d: %w", step, stepstore.ErrShapeMismatch)
		}

		if err := r.Get(pipeline.VarDerivative, buf); err != nil {
			return frames, fmt.Errorf("step %d: %w", step, err)
		}
		begin := []int{frames, 0, 0, 0}
		end := []int{frames + 1, shape[0], shape[1], shape[2]}
		if _, err := f.Writer(pipeline.VarDerivative, begin, end).Write(buf); err != nil {
			return frames, fmt.Errorf("step %d: write record: %w", step, err)
		}
		frames++

		if !axesOK {
			if axesOK, err = writeAxes(r, f); err != nil {
				return frames, fmt.Errorf("step %d: %w", step, err)
			}
		}
		if err := r.EndStep(); err != nil {
			return frames, err
		}
	}

	if f == nil {
		return 0, ErrNoFrames
	}
	if err := cdf.UpdateNumRecs(ff); err != nil {
		return frames, fmt.Errorf("export: update record count: %w", err)
	}
	err := ff.Close()
	ff = nil
	return frames, err
}

func writeAxes(r stepstore.Reader, f *cdf.File) (bool, error) {
	for _, name := range []string{pipeline.VarX, pipeline.VarY, pipeline.VarZ} {
		v, ok := r.InquireVariable(name)
		if !ok {
			return false, nil
		}
		data := make([]float64, v.Len())
		if err := r.Get(name, data); err != nil {
			return false, err
		}
		begin, end := []int{0}, []int{len(data)}
		if _, err := f.Writer(name, begin, end).Write(data); err != nil {
			return false, fmt.Errorf("write axis %s: %w", name, err)
		}
	}
	return true, nil
}
