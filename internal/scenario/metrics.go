// internal/scenario/metrics.go
package scenario

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/cmux-cli/uiverify/internal/step"
)

// Metrics holds the runner's prometheus collectors.
type Metrics struct {
	scenarios        *prometheus.CounterVec
	steps            *prometheus.CounterVec
	stepDuration     *prometheus.HistogramVec
	scenarioDuration prometheus.Histogram
}

// NewMetrics registers the runner collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		scenarios: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "uiverify",
			Name:      "scenarios_total",
			Help:      "Scenarios completed, by status.",
		}, []string{"status"}),
		steps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "uiverify",
			Name:      "steps_total",
			Help:      "Step outcomes, by kind and status.",
		}, []string{"kind", "status"}),
		stepDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "uiverify",
			Name:      "step_duration_seconds",
			Help:      "Time spent executing steps, including waits.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"kind"}),
		scenarioDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "uiverify",
			Name:      "scenario_duration_seconds",
			Help:      "Wall time of scenario runs, including session setup and teardown.",
			Buckets:   []float64{.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
	}
}

func (m *Metrics) recordStep(o step.Outcome) {
	if m == nil {
		return
	}
	kind := string(o.Step.Kind)
	m.steps.WithLabelValues(kind, string(o.Status)).Inc()
	if o.Status != step.StatusSkipped {
		m.stepDuration.WithLabelValues(kind).Observe(o.Elapsed.Seconds())
	}
}

func (m *Metrics) recordScenario(status step.Status, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.scenarios.WithLabelValues(string(status)).Inc()
	m.scenarioDuration.Observe(elapsed.Seconds())
}

// WriteTextfile writes everything g gathers to path in the text exposition format,
// for pickup by a node_exporter textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}
