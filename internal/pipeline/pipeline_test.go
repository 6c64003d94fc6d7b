package pipeline_test

import (
	"context"
	"errors"
	"math"

	"github.com/google/go-cmp/cmp"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/san-kum/timederiv/internal/pipeline"
	"github.com/san-kum/timederiv/internal/stepstore"
	"github.com/san-kum/timederiv/internal/synth"
)

func openMemoryStore() *stepstore.Store {
	st, err := stepstore.Open(stepstore.InMemoryConfig(), nil)
	Expect(err).NotTo(HaveOccurred())
	DeferCleanup(st.Close)
	return st
}

func generate(spec synth.Spec) *stepstore.Store {
	st := openMemoryStore()
	w, err := st.NewWriter()
	Expect(err).NotTo(HaveOccurred())
	_, err = synth.Generate(context.Background(), w, spec)
	Expect(err).NotTo(HaveOccurred())
	Expect(w.Close()).To(Succeed())
	return st
}

func expectAllZero(values []float64) {
	for i, v := range values {
		Expect(v).To(BeZero(), "element %d", i)
	}
}

var _ = Describe("Pipeline", func() {
	var (
		ctx    context.Context
		out    *stepstore.Store
		writer *stepstore.StoreWriter
	)

	BeforeEach(func() {
		ctx = context.Background()
		out = openMemoryStore()
		var err error
		writer, err = out.NewWriter()
		Expect(err).NotTo(HaveOccurred())
	})

	Context("with a linear field F = A*t", func() {
		var (
			spec    synth.Spec
			summary *pipeline.Summary
			frames  []frame
			rec     *recorder
		)

		BeforeEach(func() {
			spec = synth.Spec{Profile: synth.Linear, Var: "F", Steps: 6, Dt: 0.1, Nx: 3, Ny: 2, Nz: 2, Slope: 2}
			in := generate(spec)

			p := pipeline.New(in.NewReader(), writer, "F", nil)
			rec = &recorder{}
			p.AddObserver(rec)

			var err error
			summary, err = p.Run(ctx)
			Expect(err).NotTo(HaveOccurred())
			frames, err = readFrames(out)
			Expect(err).NotTo(HaveOccurred())
		})

		It("writes one frame per input step", func() {
			Expect(frames).To(HaveLen(spec.Steps))
			Expect(summary.StepsRead).To(Equal(6))
			Expect(summary.FramesWritten).To(Equal(6))
			Expect(summary.DerivativeFrames).To(Equal(4))
			Expect(summary.Halted).To(BeFalse())
			Expect(summary.MaxStep).To(BeEquivalentTo(6))
			Expect(summary.DeltaT).To(Equal(0.1))
		})

		It("starts with a zero frame carrying the input axes", func() {
			expectAllZero(frames[0].deriv)
			Expect(cmp.Diff(synth.Axis(3), frames[0].axes[0])).To(BeEmpty())
			Expect(cmp.Diff(synth.Axis(2), frames[0].axes[1])).To(BeEmpty())
			Expect(cmp.Diff(synth.Axis(2), frames[0].axes[2])).To(BeEmpty())
		})

		It("writes the axes only once", func() {
			for _, f := range frames[1:] {
				Expect(f.axes[0]).To(BeNil())
				Expect(f.axes[1]).To(BeNil())
				Expect(f.axes[2]).To(BeNil())
			}
		})

		It("recovers the slope at every interior step", func() {
			for _, f := range frames[1 : len(frames)-1] {
				for _, v := range f.deriv {
					Expect(v).To(BeNumerically("~", 2.0, 1e-9))
				}
			}
		})

		It("ends with an all-zero frame", func() {
			expectAllZero(frames[len(frames)-1].deriv)
		})

		It("notifies observers of every step and frame", func() {
			Expect(rec.steps).To(Equal([]int{0, 1, 2, 3, 4, 5}))
			Expect(rec.frames).To(Equal([]pipeline.FrameKind{
				pipeline.FrameInitial,
				pipeline.FrameDerivative, pipeline.FrameDerivative,
				pipeline.FrameDerivative, pipeline.FrameDerivative,
				pipeline.FrameFinal,
			}))
			Expect(rec.halts).To(BeEmpty())
		})

		It("closes the output store", func() {
			m, err := out.NewReader().Manifest()
			Expect(err).NotTo(HaveOccurred())
			Expect(m.ClosedAt).NotTo(BeNil())
			Expect(m.StepsCommitted).To(Equal(6))
		})
	})

	It("computes the centered difference of steps s and s-2", func() {
		spec := synth.Spec{Profile: synth.Wave, Var: "rho", Steps: 8, Dt: 0.05, Nx: 4, Ny: 3, Nz: 2, Slope: 1, Omega: 2 * math.Pi}
		in := generate(spec)

		_, err := pipeline.New(in.NewReader(), writer, "rho", nil).Run(ctx)
		Expect(err).NotTo(HaveOccurred())
		frames, err := readFrames(out)
		Expect(err).NotTo(HaveOccurred())
		Expect(frames).To(HaveLen(8))

		fn := spec.Analytic()
		xs, ys, zs := synth.Axis(4), synth.Axis(3), synth.Axis(2)
		plus := make([]float64, 24)
		minus := make([]float64, 24)
		for k := 1; k <= spec.Steps-2; k++ {
			s := k + 1
			tp := float64(s) * spec.Dt
			tm := float64(s-2) * spec.Dt
			synth.Fill(plus, xs, ys, zs, func(x, y, z float64) float64 { return fn.Value(tp, x, y, z) })
			synth.Fill(minus, xs, ys, zs, func(x, y, z float64) float64 { return fn.Value(tm, x, y, z) })
			for i := range plus {
				want := (plus[i] - minus[i]) / (2 * spec.Dt)
				Expect(frames[k].deriv[i]).To(BeNumerically("~", want, 1e-12), "frame %d element %d", k, i)
			}
		}
	})

	Context("when the producer skips a step", func() {
		var (
			summary *pipeline.Summary
			frames  []frame
			rec     *recorder
		)

		BeforeEach(func() {
			spec := synth.Spec{Profile: synth.Linear, Var: "F", Steps: 6, Dt: 0.5, Nx: 2, Ny: 2, Nz: 2, Slope: 1, Drop: []int{3}}
			in := generate(spec)

			p := pipeline.New(in.NewReader(), writer, "F", nil)
			rec = &recorder{}
			p.AddObserver(rec)

			var err error
			summary, err = p.Run(ctx)
			Expect(err).NotTo(HaveOccurred())
			frames, err = readFrames(out)
			Expect(err).NotTo(HaveOccurred())
		})

		It("halts without reporting an error", func() {
			Expect(summary.Halted).To(BeTrue())
			Expect(summary.ExpectedStep).To(Equal(3))
			Expect(summary.ProducerStep).To(Equal(4))
			Expect(summary.StepsRead).To(Equal(3))
			Expect(rec.halts).To(Equal([][2]int{{3, 4}}))
		})

		It("processes no further steps and still writes the final frame", func() {
			Expect(frames).To(HaveLen(3))
			Expect(frames[1].deriv[0]).To(BeNumerically("~", 1.0, 1e-12))
			expectAllZero(frames[2].deriv)
		})

		It("closes the output cleanly", func() {
			m, err := out.NewReader().Manifest()
			Expect(err).NotTo(HaveOccurred())
			Expect(m.ClosedAt).NotTo(BeNil())
		})
	})

	It("writes nothing for steps at or beyond MaxStep", func() {
		in := &fakeReader{}
		for s := 0; s < 6; s++ {
			in.steps = append(in.steps, newFakeStep(s, [3]int{2, 1, 1}, 0.5, 4, float64(s)))
		}

		summary, err := pipeline.New(in, writer, "F", nil).Run(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(summary.StepsRead).To(Equal(6))
		Expect(summary.DerivativeFrames).To(Equal(2))

		frames, err := readFrames(out)
		Expect(err).NotTo(HaveOccurred())
		Expect(frames).To(HaveLen(4))
		Expect(frames[1].deriv).To(Equal([]float64{2, 2}))
		Expect(frames[2].deriv).To(Equal([]float64{2, 2}))
		expectAllZero(frames[3].deriv)
	})

	It("does not guard against a zero time step", func() {
		in := &fakeReader{}
		for s := 0; s < 3; s++ {
			in.steps = append(in.steps, newFakeStep(s, [3]int{1, 1, 2}, 0, 3, float64(s)))
		}

		_, err := pipeline.New(in, writer, "F", nil).Run(ctx)
		Expect(err).NotTo(HaveOccurred())
		frames, err := readFrames(out)
		Expect(err).NotTo(HaveOccurred())
		Expect(frames).To(HaveLen(3))
		Expect(math.IsInf(frames[1].deriv[0], 1)).To(BeTrue())
	})

	It("closes the output without frames when the input is empty", func() {
		summary, err := pipeline.New(&fakeReader{}, writer, "F", nil).Run(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(summary.FramesWritten).To(BeZero())

		frames, err := readFrames(out)
		Expect(err).NotTo(HaveOccurred())
		Expect(frames).To(BeEmpty())

		m, err := out.NewReader().Manifest()
		Expect(err).NotTo(HaveOccurred())
		Expect(m.ClosedAt).NotTo(BeNil())
	})

	It("fails when the field shape changes", func() {
		in := &fakeReader{steps: []fakeStep{
			newFakeStep(0, [3]int{2, 2, 2}, 1, 5, 0),
			newFakeStep(1, [3]int{2, 2, 3}, 1, 5, 1),
		}}

		_, err := pipeline.New(in, writer, "F", nil).Run(ctx)
		Expect(err).To(MatchError(pipeline.ErrShapeChanged))

		var stepErr *pipeline.StepError
		Expect(errors.As(err, &stepErr)).To(BeTrue())
		Expect(stepErr.Step).To(Equal(1))
	})

	It("fails when the field variable is missing", func() {
		in := &fakeReader{steps: []fakeStep{newFakeStep(0, [3]int{2, 2, 2}, 1, 5, 0)}}

		_, err := pipeline.New(in, writer, "G", nil).Run(ctx)
		Expect(err).To(MatchError(pipeline.ErrMissingVariable))
	})

	It("stops when the context is canceled", func() {
		in := &fakeReader{steps: []fakeStep{newFakeStep(0, [3]int{2, 2, 2}, 1, 5, 0)}}
		canceled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := pipeline.New(in, writer, "F", nil).Run(canceled)
		Expect(err).To(MatchError(context.Canceled))
	})
})
