// Package report summarizes an output store of the derivative pipeline.
package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/timederiv/internal/field"
	"github.com/san-kum/timederiv/internal/pipeline"
	"github.com/san-kum/timederiv/internal/stepstore"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00ffff"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888899"))
)

// FrameStats describes one time_derivative frame. Min, Max and Mean cover
// the finite elements only.
type FrameStats struct {
	Step      int     `json:"step"`
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	Mean      float64 `json:"mean"`
	MaxAbs    float64 `json:"max_abs"`
	NonFinite int     `json:"non_finite,omitempty"`
	// MaxError is set by Verify.
	MaxError float64 `json:"max_error,omitempty"`
}

type Axes struct {
	X []float64 `json:"x"`
	Y []float64 `json:"y"`
	Z []float64 `json:"z"`
}

type Report struct {
	Source   string              `json:"source,omitempty"`
	Manifest *stepstore.Manifest `json:"manifest,omitempty"`
	Shape    field.Shape         `json:"shape"`
	Axes     Axes                `json:"axes"`
	Frames   []FrameStats        `json:"frames"`
	Verified bool                `json:"verified,omitempty"`
}

func Stats(step int, data []float64) FrameStats {
	fs := FrameStats{Step: step, Min: math.Inf(1), Max: math.Inf(-1)}
	sum, n := 0.0, 0
	for _, v := range data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			fs.NonFinite++
			continue
		}
		fs.Min = math.Min(fs.Min, v)
		fs.Max = math.Max(fs.Max, v)
		fs.MaxAbs = math.Max(fs.MaxAbs, math.Abs(v))
		sum += v
		n++
	}
	if n == 0 {
		fs.Min, fs.Max = 0, 0
		return fs
	}
	fs.Mean = sum / float64(n)
	return fs
}

// Collect reads every frame of r.
func Collect(ctx context.Context, r stepstore.Reader) (*Report, error) {
	rep := &Report{}
	var buf []float64
	for {
		status, err := r.BeginStep(ctx)
		if err != nil {
			return nil, err
		}
		if status == stepstore.EndOfStream {
			return rep, nil
		}
		step := r.CurrentStep()

		v, ok := r.InquireVariable(pipeline.VarDerivative)
		if !ok {
			return nil, fmt.Errorf("step %d: %w: %s", step, stepstore.ErrVariableNotFound, pipeline.VarDerivative)
		}
		if rep.Shape == (field.Shape{}) {
			if rep.Shape, err = field.ShapeOf(v.Shape); err != nil {
				return nil, fmt.Errorf("step %d: %w", step, err)
			}
		}
		if len(buf) != v.Len() {
			buf = make([]float64, v.Len())
		}
		if err := r.Get(pipeline.VarDerivative, buf); err != nil {
			return nil, fmt.Errorf("step %d: %w", step, err)
		}
		rep.Frames = append(rep.Frames, Stats(step, buf))

		if rep.Axes.X == nil {
			if err := readAxes(r, &rep.Axes); err != nil {
				return nil, fmt.Errorf("step %d: %w", step, err)
			}
		}
		if err := r.EndStep(); err != nil {
			return nil, err
		}
	}
}

// Verify rereads the frames of r and records in rep the largest deviation
// of each derivative frame from exact at t = step*dt. The zero frames at
// both ends of the stream are skipped. rep must come from Collect on the
// same store.
func Verify(ctx context.Context, r stepstore.Reader, rep *Report, exact func(t, x, y, z float64) float64, dt float64) error {
	if rep.Axes.X == nil || rep.Axes.Y == nil || rep.Axes.Z == nil {
		return errors.New("report: verify needs the axes of step 0")
	}
	buf := make([]float64, rep.Shape.Size())
	last := len(rep.Frames) - 1
	for i := 0; ; i++ {
		status, err := r.BeginStep(ctx)
		if err != nil {
			return err
		}
		if status == stepstore.EndOfStream {
			if i != len(rep.Frames) {
				return fmt.Errorf("report: store has %d frames, report has %d", i, len(rep.Frames))
			}
			rep.Verified = true
			return nil
		}
		if i > last {
			return fmt.Errorf("report: store has more frames than the report (%d)", len(rep.Frames))
		}

		if i > 0 && i < last {
			if err := r.Get(pipeline.VarDerivative, buf); err != nil {
				return fmt.Errorf("step %d: %w", r.CurrentStep(), err)
			}
			rep.Frames[i].MaxError = maxError(buf, rep.Shape, rep.Axes, float64(i)*dt, exact)
		}
		if err := r.EndStep(); err != nil {
			return err
		}
	}
}

func maxError(data []float64, shape field.Shape, axes Axes, t float64, exact func(t, x, y, z float64) float64) float64 {
	worst := 0.0
	for i, x := range axes.X {
		for j, y := range axes.Y {
			for k, z := range axes.Z {
				d := math.Abs(data[shape.Index(i, j, k)] - exact(t, x, y, z))
				if d > worst || math.IsNaN(d) {
					worst = d
				}
			}
		}
	}
	return worst
}

func readAxes(r stepstore.Reader, axes *Axes) error {
	targets := []*[]float64{&axes.X, &axes.Y, &axes.Z}
	for i, name := range []string{pipeline.VarX, pipeline.VarY, pipeline.VarZ} {
		v, ok := r.InquireVariable(name)
		if !ok {
			return nil
		}
		dst := make([]float64, v.Len())
		if err := r.Get(name, dst); err != nil {
			return err
		}
		*targets[i] = dst
	}
	return nil
}

// Render prints a header, a per-frame table and, when plot is set, an ASCII
// plot of the peak derivative per frame.
func Render(w io.Writer, rep *Report, plot bool) error {
	title := "time derivative"
	if rep.Source != "" {
		title += ": " + rep.Source
	}
	fmt.Fprintln(w, titleStyle.Render(title))
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("shape:"), rep.Shape)
	fmt.Fprintf(w, "%s %d\n", labelStyle.Render("frames:"), len(rep.Frames))
	if rep.Manifest != nil {
		fmt.Fprintf(w, "%s %s\n", labelStyle.Render("run id:"), rep.Manifest.RunID)
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	header := "STEP\tMIN\tMAX\tMEAN\tMAX|dF/dt|\tNON-FINITE"
	if rep.Verified {
		header += "\tMAX ERROR"
	}
	fmt.Fprintln(tw, header)
	for _, f := range rep.Frames {
		fmt.Fprintf(tw, "%d\t%.6g\t%.6g\t%.6g\t%.6g\t%d", f.Step, f.Min, f.Max, f.Mean, f.MaxAbs, f.NonFinite)
		if rep.Verified {
			fmt.Fprintf(tw, "\t%.3g", f.MaxError)
		}
		fmt.Fprintln(tw)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if plot && len(rep.Frames) > 1 {
		data := make([]float64, len(rep.Frames))
		for i, f := range rep.Frames {
			data[i] = f.MaxAbs
		}
		graph := asciigraph.Plot(data,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption("max |dF/dt| per frame"),
		)
		fmt.Fprintln(w)
		fmt.Fprintln(w, graph)
	}
	return nil
}

func WriteJSON(w io.Writer, rep *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

func WriteJSONFile(path string, rep *Report) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return WriteJSON(file, rep)
}
