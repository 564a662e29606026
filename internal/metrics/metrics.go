// Package metrics tracks stage timings and artifact sizes for one run and
// writes them in the Prometheus text format, for node_exporter's textfile
// collector or for reading by hand.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder holds a run's stage metrics.
type Recorder struct {
	registry *prometheus.Registry
	duration *prometheus.GaugeVec
	runs     *prometheus.CounterVec
	bytes    *prometheus.GaugeVec
	lines    prometheus.Gauge
	kept     prometheus.Gauge
}

// New creates a recorder with its own registry.
func New() *Recorder {
	duration := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lextrain_stage_duration_seconds",
		Help: "Wall time of the last execution of each training stage.",
	}, []string{"stage"})
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lextrain_stage_runs_total",
		Help: "Training stage executions by outcome.",
	}, []string{"stage", "status"})
	bytes := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lextrain_artifact_bytes",
		Help: "Size of each cache artifact when its producing stage finished.",
	}, []string{"artifact"})
	lines := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "lextrain_training_lines",
		Help: "Effective number of corpus lines used for tagging.",
	})
	kept := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "lextrain_clean_lines",
		Help: "Lines that survived the untagged-line filter.",
	})

	reg := prometheus.NewRegistry()
	reg.MustRegister(duration, runs, bytes, lines, kept)

	return &Recorder{
		registry: reg,
		duration: duration,
		runs:     runs,
		bytes:    bytes,
		lines:    lines,
		kept:     kept,
	}
}

// ObserveStage records one stage execution.
func (r *Recorder) ObserveStage(stage, status string, elapsed time.Duration) {
	r.duration.WithLabelValues(stage).Set(elapsed.Seconds())
	r.runs.WithLabelValues(stage, status).Inc()
}

// SetArtifactBytes records an artifact's size. Negative sizes are ignored.
func (r *Recorder) SetArtifactBytes(artifact string, n int64) {
	if n < 0 {
		return
	}
	r.bytes.WithLabelValues(artifact).Set(float64(n))
}

// SetTrainingLines records the effective line budget.
func (r *Recorder) SetTrainingLines(n int) { r.lines.Set(float64(n)) }

// SetCleanLines records how many lines survived cleaning.
func (r *Recorder) SetCleanLines(n int) { r.kept.Set(float64(n)) }

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// WriteFile writes every metric to path atomically.
func (r *Recorder) WriteFile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
