// Package metrics exposes the derivative pipeline as Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/san-kum/timederiv/internal/field"
	"github.com/san-kum/timederiv/internal/pipeline"
)

const namespace = "timederiv"

var _ pipeline.Observer = (*Pipeline)(nil)

// Pipeline observes a pipeline run and records it in Prometheus collectors.
type Pipeline struct {
	StepsRead      prometheus.Counter
	Frames         *prometheus.CounterVec
	Halts          prometheus.Counter
	StepDuration   prometheus.Histogram
	LastStep       prometheus.Gauge
	DerivativePeak prometheus.Gauge
}

// NewPipeline creates the collectors and registers them on reg.
func NewPipeline(reg prometheus.Registerer) *Pipeline {
	m := &Pipeline{
		StepsRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_read_total",
			Help:      "Input steps read and processed.",
		}),
		Frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_written_total",
			Help:      "Output transactions written, by kind.",
		}, []string{"kind"}),
		Halts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "halts_total",
			Help:      "Runs stopped early by a producer step mismatch.",
		}),
		StepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Wall time per input step, including output.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}),
		LastStep: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_step",
			Help:      "Index of the last input step processed.",
		}),
		DerivativePeak: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "derivative_max_abs",
			Help:      "Largest absolute time derivative in the last derivative frame.",
		}),
	}
	reg.MustRegister(m.StepsRead, m.Frames, m.Halts, m.StepDuration, m.LastStep, m.DerivativePeak)
	return m
}

func (m *Pipeline) OnStep(step int, elapsed time.Duration) {
	m.StepsRead.Inc()
	m.LastStep.Set(float64(step))
	m.StepDuration.Observe(elapsed.Seconds())
}

func (m *Pipeline) OnFrame(_ int, kind pipeline.FrameKind, deriv []float64) {
	m.Frames.WithLabelValues(string(kind)).Inc()
	if kind == pipeline.FrameDerivative {
		m.DerivativePeak.Set(field.MaxAbs(deriv))
	}
}

func (m *Pipeline) OnHalt(_, _ int) {
	m.Halts.Inc()
}

// WriteTextfile dumps g in the text exposition format, for the node
// exporter textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}
