// Package synth writes synthetic input stores with analytically known
// fields, so the derivative pipeline can be exercised without an upstream
// simulation.
package synth

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"

	"github.com/san-kum/timederiv/internal/field"
	"github.com/san-kum/timederiv/internal/stepstore"
)

// Profile selects the time dependence of a synthetic field.
type Profile string

const (
	Linear    Profile = "linear"
	Quadratic Profile = "quadratic"
	Wave      Profile = "wave"
)

func Profiles() []Profile { return []Profile{Linear, Quadratic, Wave} }

// Analytic is a closed-form field F(t, x, y, z).
type Analytic struct {
	Profile Profile
	Slope   float64
	Omega   float64
}

func (a Analytic) Value(t, x, y, z float64) float64 {
	switch a.Profile {
	case Quadratic:
		return a.Slope * t * t
	case Wave:
		return a.Slope * math.Sin(a.phase(t, x, y, z))
	default:
		return a.Slope*t + x + 2*y + 3*z
	}
}

func (a Analytic) Derivative(t, x, y, z float64) float64 {
	switch a.Profile {
	case Quadratic:
		return 2 * a.Slope * t
	case Wave:
		return -a.Omega * a.Slope * math.Cos(a.phase(t, x, y, z))
	default:
		return a.Slope
	}
}

func (a Analytic) phase(t, x, y, z float64) float64 {
	return 2*math.Pi*(x+y+z) - a.Omega*t
}

// Spec describes a synthetic input store.
type Spec struct {
	Profile Profile `yaml:"profile"`
	Var     string  `yaml:"var"`
	Steps   int     `yaml:"steps"`
	Dt      float64 `yaml:"dt"`
	Nx      int     `yaml:"nx"`
	Ny      int     `yaml:"ny"`
	Nz      int     `yaml:"nz"`
	Slope   float64 `yaml:"slope"`
	Omega   float64 `yaml:"omega"`
	// Drop lists producer steps that are aborted instead of committed.
	Drop []int `yaml:"drop,omitempty"`
}

func (s *Spec) Validate() error {
	if !slices.Contains(Profiles(), s.Profile) {
		return fmt.Errorf("unknown profile %q", s.Profile)
	}
	if s.Var == "" {
		return errors.New("variable name must not be empty")
	}
	switch s.Var {
	case "x", "y", "z", "deltaT", "MaxStep":
		return fmt.Errorf("variable name %q collides with a metadata variable", s.Var)
	}
	if s.Steps <= 0 {
		return fmt.Errorf("steps must be positive, got %d", s.Steps)
	}
	if s.Dt <= 0 {
		return fmt.Errorf("dt must be positive, got %f", s.Dt)
	}
	if _, err := field.ShapeOf([]int{s.Nx, s.Ny, s.Nz}); err != nil {
		return err
	}
	return nil
}

func (s *Spec) Shape() field.Shape { return field.Shape{s.Nx, s.Ny, s.Nz} }

func (s *Spec) Analytic() Analytic {
	return Analytic{Profile: s.Profile, Slope: s.Slope, Omega: s.Omega}
}

// ErrNotSynthetic is returned for manifests not written by Generate.
var ErrNotSynthetic = errors.New("synth: store has no synthetic profile attributes")

// Attribute keys recorded in the manifest of a generated store.
const (
	AttrProfile = "profile"
	AttrVar     = "variable"
	AttrDt      = "dt"
	AttrSlope   = "slope"
	AttrOmega   = "omega"
)

// Attributes holds what AnalyticFromAttributes needs to rebuild the field.
func (s *Spec) Attributes() map[string]string {
	return map[string]string{
		AttrProfile: string(s.Profile),
		AttrVar:     s.Var,
		AttrDt:      strconv.FormatFloat(s.Dt, 'g', -1, 64),
		AttrSlope:   strconv.FormatFloat(s.Slope, 'g', -1, 64),
		AttrOmega:   strconv.FormatFloat(s.Omega, 'g', -1, 64),
	}
}

// AnalyticFromAttributes rebuilds the analytic field and time step of a
// generated store from its manifest attributes.
func AnalyticFromAttributes(attrs map[string]string) (Analytic, float64, error) {
	profile, ok := attrs[AttrProfile]
	if !ok {
		return Analytic{}, 0, ErrNotSynthetic
	}
	a := Analytic{Profile: Profile(profile)}
	if !slices.Contains(Profiles(), a.Profile) {
		return Analytic{}, 0, fmt.Errorf("unknown profile %q", profile)
	}

	var dt float64
	for key, dst := range map[string]*float64{AttrDt: &dt, AttrSlope: &a.Slope, AttrOmega: &a.Omega} {
		v, err := strconv.ParseFloat(attrs[key], 64)
		if err != nil {
			return Analytic{}, 0, fmt.Errorf("attribute %s: %w", key, err)
		}
		*dst = v
	}
	return a, dt, nil
}

// Axis returns n points evenly spaced on [0, 1].
func Axis(n int) []float64 {
	a := make([]float64, n)
	if n == 1 {
		return a
	}
	for i := range a {
		a[i] = float64(i) / float64(n-1)
	}
	return a
}

// Fill evaluates fn over the grid spanned by the axes into dst.
func Fill(dst []float64, xs, ys, zs []float64, fn func(x, y, z float64) float64) {
	s := field.Shape{len(xs), len(ys), len(zs)}
	for i, x := range xs {
		for j, y := range ys {
			for k, z := range zs {
				dst[s.Index(i, j, k)] = fn(x, y, z)
			}
		}
	}
}

// Result summarizes a Generate call.
type Result struct {
	Committed int
	Aborted   int
	Shape     field.Shape
}

// Generate writes spec.Steps steps to w. Each committed step carries
// deltaT, MaxStep, the three axes and the field.
func Generate(ctx context.Context, w stepstore.Writer, spec Spec) (Result, error) {
	if err := spec.Validate(); err != nil {
		return Result{}, err
	}
	shape := spec.Shape()
	res := Result{Shape: shape}

	vDt, err := w.DefineVariable("deltaT", stepstore.Float64)
	if err != nil {
		return res, err
	}
	vMax, err := w.DefineVariable("MaxStep", stepstore.Int64)
	if err != nil {
		return res, err
	}
	vx, err := w.DefineVariable("x", stepstore.Float64, shape[0])
	if err != nil {
		return res, err
	}
	vy, err := w.DefineVariable("y", stepstore.Float64, shape[1])
	if err != nil {
		return res, err
	}
	vz, err := w.DefineVariable("z", stepstore.Float64, shape[2])
	if err != nil {
		return res, err
	}
	vf, err := w.DefineVariable(spec.Var, stepstore.Float64, shape.Dims()...)
	if err != nil {
		return res, err
	}

	xs, ys, zs := Axis(shape[0]), Axis(shape[1]), Axis(shape[2])
	buf := make([]float64, shape.Size())
	fn := spec.Analytic()

	for step := 0; step < spec.Steps; step++ {
		if err := w.BeginStep(ctx); err != nil {
			return res, fmt.Errorf("begin step %d: %w", step, err)
		}
		if slices.Contains(spec.Drop, step) {
			if err := w.AbortStep(); err != nil {
				return res, fmt.Errorf("abort step %d: %w", step, err)
			}
			res.Aborted++
			continue
		}

		t := float64(step) * spec.Dt
		Fill(buf, xs, ys, zs, func(x, y, z float64) float64 { return fn.Value(t, x, y, z) })

		err := errors.Join(
			w.PutFloat64(vDt, spec.Dt),
			w.PutInt64(vMax, int64(spec.Steps)),
			w.Put(vx, xs),
			w.Put(vy, ys),
			w.Put(vz, zs),
			w.Put(vf, buf),
		)
		if err != nil {
			return res, fmt.Errorf("put step %d: %w", step, err)
		}
		if err := w.EndStep(); err != nil {
			return res, fmt.Errorf("end step %d: %w", step, err)
		}
		res.Committed++
	}
	return res, nil
}
