package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DeconflictionCollector exposes metrics specific to the deconfliction
// engine and the mission dispatcher's evaluation passes.
type DeconflictionCollector struct {
	gatherer prometheus.Gatherer

	EvaluationDuration  prometheus.Histogram
	MissionQueueDepth   prometheus.Gauge
	ConflictsDetected   *prometheus.CounterVec
	LiveMonitorTickSkew prometheus.Gauge
}

// NewDeconflictionCollector registers deconfliction-engine metrics against
// the provided registerer.
func NewDeconflictionCollector(reg prometheus.Registerer) (*DeconflictionCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	evalHistogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "coordinator_deconfliction_evaluation_duration_seconds",
		Help:    "Duration of one candidate-vs-registry deconfliction evaluation.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
	})
	evalHistogram, err := registerHistogram(reg, evalHistogram, "coordinator_deconfliction_evaluation_duration_seconds")
	if err != nil {
		return nil, err
	}

	queueGauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "coordinator_mission_queue_depth",
		Help: "Number of SCHEDULED missions awaiting their dispatch start_time.",
	})
	queueGauge, err = registerGauge(reg, queueGauge, "coordinator_mission_queue_depth")
	if err != nil {
		return nil, err
	}

	conflicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coordinator_conflicts_detected_total",
		Help: "Cumulative number of conflicts detected, labeled by kind and severity.",
	}, []string{"kind", "severity"})
	conflicts, err = registerCounterVec(reg, conflicts, "coordinator_conflicts_detected_total")
	if err != nil {
		return nil, err
	}

	tickSkew := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "coordinator_live_monitor_tick_skew_seconds",
		Help: "Observed drift between the live monitor's intended and actual tick time.",
	})
	tickSkew, err = registerGauge(reg, tickSkew, "coordinator_live_monitor_tick_skew_seconds")
	if err != nil {
		return nil, err
	}

	return &DeconflictionCollector{
		gatherer:            gatherer,
		EvaluationDuration:  evalHistogram,
		MissionQueueDepth:   queueGauge,
		ConflictsDetected:   conflicts,
		LiveMonitorTickSkew: tickSkew,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *DeconflictionCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// ObserveEvaluation records one deconfliction evaluation's duration.
func (c *DeconflictionCollector) ObserveEvaluation(d time.Duration) {
	if c == nil || c.EvaluationDuration == nil {
		return
	}
	c.EvaluationDuration.Observe(d.Seconds())
}

// SetQueueDepth updates the SCHEDULED-missions-awaiting-dispatch gauge.
func (c *DeconflictionCollector) SetQueueDepth(depth int) {
	if c == nil || c.MissionQueueDepth == nil {
		return
	}
	c.MissionQueueDepth.Set(float64(depth))
}

// IncConflict increments the conflicts-detected counter for one kind/severity.
func (c *DeconflictionCollector) IncConflict(kind, severity string) {
	if c == nil || c.ConflictsDetected == nil {
		return
	}
	c.ConflictsDetected.WithLabelValues(kind, severity).Inc()
}

// SetTickSkew records the live monitor's observed tick drift.
func (c *DeconflictionCollector) SetTickSkew(d time.Duration) {
	if c == nil || c.LiveMonitorTickSkew == nil {
		return
	}
	c.LiveMonitorTickSkew.Set(d.Seconds())
}
