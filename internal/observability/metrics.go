package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// APICollector bundles Prometheus metrics for the public HTTP/WS surface and
// the mission registry's health counters, which are surfaced as counters
// rather than failing individual requests noisily.
type APICollector struct {
	gatherer prometheus.Gatherer

	HTTPRequests  *prometheus.CounterVec
	HTTPDurations *prometheus.HistogramVec

	FleetVehicles     prometheus.Gauge
	FleetActiveMissions prometheus.Gauge
	WSSubscribers     prometheus.Gauge

	MissionAdmissions        prometheus.Counter
	MissionRejections        prometheus.Counter
	MissionLateConflicts     prometheus.Counter
	MissionPersistenceErrors prometheus.Counter
}

// NewAPICollector registers the coordinator's Prometheus metrics against the
// provided registerer, defaulting to the global Prometheus registry when nil.
func NewAPICollector(reg prometheus.Registerer) (*APICollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coordinator_http_requests_total",
		Help: "Total number of handled HTTP requests, labeled by route and status code.",
	}, []string{"route", "code"})
	requests, err := registerCounterVec(reg, requests, "coordinator_http_requests_total")
	if err != nil {
		return nil, err
	}

	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "coordinator_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"route"})
	durations, err = registerHistogramVec(reg, durations, "coordinator_http_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	vehicles, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "coordinator_fleet_vehicles",
		Help: "Current number of vehicles known to the fleet driver.",
	}), "coordinator_fleet_vehicles")
	if err != nil {
		return nil, err
	}
	activeMissions, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "coordinator_active_missions",
		Help: "Current number of missions in SCHEDULED or RUNNING state.",
	}), "coordinator_active_missions")
	if err != nil {
		return nil, err
	}
	subscribers, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "coordinator_ws_subscribers",
		Help: "Current number of connected WebSocket event-channel subscribers.",
	}), "coordinator_ws_subscribers")
	if err != nil {
		return nil, err
	}

	admissions, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "coordinator_mission_admissions_total",
		Help: "Cumulative number of missions admitted by the registry.",
	}), "coordinator_mission_admissions_total")
	if err != nil {
		return nil, err
	}
	rejections, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "coordinator_mission_rejections_total",
		Help: "Cumulative number of candidate missions rejected by deconfliction.",
	}), "coordinator_mission_rejections_total")
	if err != nil {
		return nil, err
	}
	lateConflicts, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "coordinator_mission_late_conflicts_total",
		Help: "Cumulative number of missions failed at dispatch by the second-pass re-validation.",
	}), "coordinator_mission_late_conflicts_total")
	if err != nil {
		return nil, err
	}
	persistenceErrors, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "coordinator_mission_persistence_errors_total",
		Help: "Cumulative number of mission admission writes that failed after retry.",
	}), "coordinator_mission_persistence_errors_total")
	if err != nil {
		return nil, err
	}

	return &APICollector{
		gatherer:                 gatherer,
		HTTPRequests:             requests,
		HTTPDurations:            durations,
		FleetVehicles:            vehicles,
		FleetActiveMissions:      activeMissions,
		WSSubscribers:            subscribers,
		MissionAdmissions:        admissions,
		MissionRejections:        rejections,
		MissionLateConflicts:     lateConflicts,
		MissionPersistenceErrors: persistenceErrors,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *APICollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveHTTP records one request's route, status code, and latency.
func (c *APICollector) ObserveHTTP(route, code string, seconds float64) {
	if c == nil {
		return
	}
	if c.HTTPRequests != nil {
		c.HTTPRequests.WithLabelValues(route, code).Inc()
	}
	if c.HTTPDurations != nil {
		c.HTTPDurations.WithLabelValues(route).Observe(seconds)
	}
}

// SetFleetCounts updates the fleet-size gauges.
func (c *APICollector) SetFleetCounts(vehicles, activeMissions, wsSubscribers int) {
	if c == nil {
		return
	}
	if c.FleetVehicles != nil {
		c.FleetVehicles.Set(float64(vehicles))
	}
	if c.FleetActiveMissions != nil {
		c.FleetActiveMissions.Set(float64(activeMissions))
	}
	if c.WSSubscribers != nil {
		c.WSSubscribers.Set(float64(wsSubscribers))
	}
}

// IncAdmissions implements core.RegistryMetrics.
func (c *APICollector) IncAdmissions() {
	if c != nil && c.MissionAdmissions != nil {
		c.MissionAdmissions.Inc()
	}
}

// IncRejections implements core.RegistryMetrics.
func (c *APICollector) IncRejections() {
	if c != nil && c.MissionRejections != nil {
		c.MissionRejections.Inc()
	}
}

// IncLateConflicts implements core.RegistryMetrics.
func (c *APICollector) IncLateConflicts() {
	if c != nil && c.MissionLateConflicts != nil {
		c.MissionLateConflicts.Inc()
	}
}

// IncPersistenceFailures implements core.RegistryMetrics.
func (c *APICollector) IncPersistenceFailures() {
	if c != nil && c.MissionPersistenceErrors != nil {
		c.MissionPersistenceErrors.Inc()
	}
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}
