// internal/browser/metrics.go
package browser

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks browser runtime counters. It implements prometheus.Collector so a
// registry can export the same values the harness asserts on in tests.
type Metrics struct {
	SessionsCreated atomic.Int64
	SessionsClosed  atomic.Int64
	ActiveSessions  atomic.Int64

	NavigateCount  atomic.Int64
	SnapshotCount  atomic.Int64
	ActionCount    atomic.Int64
	ActionFailures atomic.Int64
	Screenshots    atomic.Int64

	SnapshotLatencySum   atomic.Int64 // nanoseconds
	SnapshotLatencyCount atomic.Int64
}

// NewMetrics creates a new metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordSessionCreated increments the session creation counter.
func (m *Metrics) RecordSessionCreated() {
	if m == nil {
		return
	}
	m.SessionsCreated.Add(1)
	m.ActiveSessions.Add(1)
}

// RecordSessionClosed increments the session close counter.
func (m *Metrics) RecordSessionClosed() {
	if m == nil {
		return
	}
	m.SessionsClosed.Add(1)
	m.ActiveSessions.Add(-1)
}

// RecordNavigate increments the navigation counter.
func (m *Metrics) RecordNavigate() {
	if m == nil {
		return
	}
	m.NavigateCount.Add(1)
}

// RecordSnapshot tracks snapshot latency.
func (m *Metrics) RecordSnapshot(latency time.Duration) {
	if m == nil {
		return
	}
	m.SnapshotCount.Add(1)
	m.SnapshotLatencySum.Add(latency.Nanoseconds())
	m.SnapshotLatencyCount.Add(1)
}

// RecordAction increments the action counter and tracks failures.
func (m *Metrics) RecordAction(success bool) {
	if m == nil {
		return
	}
	m.ActionCount.Add(1)
	if !success {
		m.ActionFailures.Add(1)
	}
}

// RecordScreenshot increments the screenshot counter.
func (m *Metrics) RecordScreenshot() {
	if m == nil {
		return
	}
	m.Screenshots.Add(1)
}

// Snapshot returns a point-in-time copy of all metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	avg := time.Duration(0)
	if n := m.SnapshotLatencyCount.Load(); n > 0 {
		avg = time.Duration(m.SnapshotLatencySum.Load() / n)
	}
	return MetricsSnapshot{
		SessionsCreated:        m.SessionsCreated.Load(),
		SessionsClosed:         m.SessionsClosed.Load(),
		ActiveSessions:         m.ActiveSessions.Load(),
		NavigateCount:          m.NavigateCount.Load(),
		SnapshotCount:          m.SnapshotCount.Load(),
		ActionCount:            m.ActionCount.Load(),
		ActionFailures:         m.ActionFailures.Load(),
		Screenshots:            m.Screenshots.Load(),
		AverageSnapshotLatency: avg,
	}
}

// MetricsSnapshot is a point-in-time copy of browser metrics.
type MetricsSnapshot struct {
	SessionsCreated        int64         `json:"sessions_created"`
	SessionsClosed         int64         `json:"sessions_closed"`
	ActiveSessions         int64         `json:"active_sessions"`
	NavigateCount          int64         `json:"navigate_count"`
	SnapshotCount          int64         `json:"snapshot_count"`
	ActionCount            int64         `json:"action_count"`
	ActionFailures         int64         `json:"action_failures"`
	Screenshots            int64         `json:"screenshots"`
	AverageSnapshotLatency time.Duration `json:"average_snapshot_latency"`
}

var (
	descSessions = prometheus.NewDesc("uiverify_browser_sessions_total",
		"Browser sessions by lifecycle event", []string{"event"}, nil)
	descActive = prometheus.NewDesc("uiverify_browser_sessions_active",
		"Currently open browser sessions", nil, nil)
	descOps = prometheus.NewDesc("uiverify_browser_operations_total",
		"Browser operations by type", []string{"op"}, nil)
	descActionFailures = prometheus.NewDesc("uiverify_browser_action_failures_total",
		"Click and fill operations that failed", nil, nil)
)

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- descSessions
	ch <- descActive
	ch <- descOps
	ch <- descActionFailures
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	s := m.Snapshot()
	ch <- prometheus.MustNewConstMetric(descSessions, prometheus.CounterValue, float64(s.SessionsCreated), "created")
	ch <- prometheus.MustNewConstMetric(descSessions, prometheus.CounterValue, float64(s.SessionsClosed), "closed")
	ch <- prometheus.MustNewConstMetric(descActive, prometheus.GaugeValue, float64(s.ActiveSessions))
	ch <- prometheus.MustNewConstMetric(descOps, prometheus.CounterValue, float64(s.NavigateCount), "navigate")
	ch <- prometheus.MustNewConstMetric(descOps, prometheus.CounterValue, float64(s.SnapshotCount), "snapshot")
	ch <- prometheus.MustNewConstMetric(descOps, prometheus.CounterValue, float64(s.ActionCount), "action")
	ch <- prometheus.MustNewConstMetric(descOps, prometheus.CounterValue, float64(s.Screenshots), "screenshot")
	ch <- prometheus.MustNewConstMetric(descActionFailures, prometheus.CounterValue, float64(s.ActionFailures))
}
