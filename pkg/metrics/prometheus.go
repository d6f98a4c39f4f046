package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	simulationsTotal *prometheus.CounterVec
	simDuration      *prometheus.HistogramVec
	errorsTotal      *prometheus.CounterVec
	activeStreams    prometheus.Gauge
	snapshotVersion  prometheus.Gauge
	agentDeltaBps    *prometheus.GaugeVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		simulationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "macrosim_simulations_total",
				Help: "Total number of simulation runs by kind",
			},
			[]string{"kind"},
		),
		simDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "macrosim_simulation_duration_seconds",
				Help:    "Duration of simulation runs in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "macrosim_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		activeStreams: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "macrosim_active_streams",
				Help: "Number of WebSocket simulation sessions currently streaming",
			},
		),
		snapshotVersion: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "macrosim_snapshot_version",
				Help: "Version of the currently loaded state snapshot",
			},
		),
		agentDeltaBps: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "macrosim_agent_delta_bps",
				Help: "Last resolved action per agent in basis points",
			},
			[]string{"agent"},
		),
	}
}

// RecordSimulation records a completed simulation run.
func (r *Recorder) RecordSimulation(kind string, seconds float64) {
	r.simulationsTotal.WithLabelValues(kind).Inc()
	r.simDuration.WithLabelValues(kind).Observe(seconds)
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// StreamStarted marks a streaming session as active.
func (r *Recorder) StreamStarted() {
	r.activeStreams.Inc()
}

// StreamEnded marks a streaming session as finished.
func (r *Recorder) StreamEnded() {
	r.activeStreams.Dec()
}

// RecordSnapshotVersion records the loaded snapshot version.
func (r *Recorder) RecordSnapshotVersion(version int64) {
	r.snapshotVersion.Set(float64(version))
}

// RecordAgentAction records the last resolved delta for an agent.
func (r *Recorder) RecordAgentAction(agent string, deltaBps float64) {
	r.agentDeltaBps.WithLabelValues(agent).Set(deltaBps)
}
