// core/deconfliction.go
package core

import (
	"fmt"
	"time"

	"github.com/signalsfoundry/uav-coordinator/internal/coreerr"
	"github.com/signalsfoundry/uav-coordinator/model"
)

// DeconflictionParams bundles the engine's tunables explicitly, so it stays
// pure over its inputs rather than reaching for a global config.
type DeconflictionParams struct {
	SafetyBufferM      float64       // B
	Resolution         time.Duration // Δ
	ProjectionHorizon  time.Duration
	MaxCruiseSpeedMps  float64
	AltitudeFloorM     float64
	StalenessBound     time.Duration
}

// DefaultParams returns the engine's production configuration defaults.
func DefaultParams() DeconflictionParams {
	return DeconflictionParams{
		SafetyBufferM:     10.0,
		Resolution:        500 * time.Millisecond,
		ProjectionHorizon: 30 * time.Second,
		MaxCruiseSpeedMps: 20.0,
		AltitudeFloorM:    2.0,
		StalenessBound:    2 * time.Second,
	}
}

// Candidate is a mission proposal to evaluate, before admission.
type Candidate struct {
	VehicleID   string
	Plan        model.Plan
	StartTime   time.Time
	EndTime     time.Time
	CruiseSpeed float64 // metres/second; 0 means "derive from plan length / window"
}

// ActiveMission is the minimal view of another vehicle's scheduled or
// running mission the engine needs to build a comparison segment.
type ActiveMission struct {
	VehicleID string
	Segment   model.PlannedSegment
}

// DeconflictionMetrics is the set of deconfliction-engine and scheduler
// health metrics a collector can expose, kept local so core stays decoupled
// from internal/observability's concrete collector type.
type DeconflictionMetrics interface {
	ObserveEvaluation(d time.Duration)
	IncConflict(kind, severity string)
	SetQueueDepth(depth int)
	SetTickSkew(d time.Duration)
}

// DeconflictionEngine evaluates a Candidate against a registry snapshot and
// current live telemetry. It is pure over its inputs: it never mutates the
// registry or the trajectory store, and holds no admission lock itself (that
// is the registry's job).
type DeconflictionEngine struct {
	Params  DeconflictionParams
	metrics DeconflictionMetrics
}

// NewDeconflictionEngine constructs an engine with the given params.
func NewDeconflictionEngine(params DeconflictionParams) *DeconflictionEngine {
	return &DeconflictionEngine{Params: params}
}

// SetMetrics wires a metrics collector into the engine. m may be nil.
func (e *DeconflictionEngine) SetMetrics(m DeconflictionMetrics) {
	e.metrics = m
}

// ValidateCandidate checks a candidate's structural edge cases before any
// spatial evaluation runs.
func (e *DeconflictionEngine) ValidateCandidate(c Candidate) error {
	if len(c.Plan.Waypoints) == 0 {
		return fmt.Errorf("%w: INVALID_PLAN: plan has no waypoints", coreerr.ErrInvalidInput)
	}
	if !c.EndTime.After(c.StartTime) {
		return fmt.Errorf("%w: INVALID_WINDOW: end_time must be after start_time", coreerr.ErrInvalidInput)
	}
	speed := c.CruiseSpeed
	if speed == 0 {
		_, total := legLengths(c.Plan)
		dur := c.EndTime.Sub(c.StartTime).Seconds()
		if dur > 0 {
			speed = total / dur
		}
	}
	if speed > e.Params.MaxCruiseSpeedMps {
		return fmt.Errorf("%w: INVALID_SPEED: cruise speed %.2f m/s exceeds max %.2f",
			coreerr.ErrInvalidInput, speed, e.Params.MaxCruiseSpeedMps)
	}
	return nil
}

// segmentOf builds the time-parameterized segment for a candidate, deriving
// CruiseSpeed from path length / window when not explicitly set.
func segmentOf(c Candidate) model.PlannedSegment {
	speed := c.CruiseSpeed
	if speed == 0 {
		_, total := legLengths(c.Plan)
		dur := c.EndTime.Sub(c.StartTime).Seconds()
		if dur > 0 {
			speed = total / dur
		}
	}
	return model.PlannedSegment{
		Plan:        c.Plan,
		StartTime:   c.StartTime,
		EndTime:     c.EndTime,
		CruiseSpeed: speed,
	}
}

// Evaluate runs the full deconfliction algorithm in stages - vehicle
// exclusivity, then planned-vs-planned and planned-vs-live spatial
// conflicts - and returns whether the candidate is safe and, if not, the
// conflicts found. active is the set of other vehicles' SCHEDULED/RUNNING
// missions whose windows may overlap the candidate; live is the most recent
// sample per vehicle without an active mission (already filtered by the
// caller, or not - Evaluate re-filters by VehicleID membership in active).
// Evaluate assumes ValidateCandidate has already been called by the caller
// (the registry does this before taking the admission lock) so that
// INVALID_PLAN/INVALID_WINDOW/INVALID_SPEED surface as synchronous errors
// rather than conflicts.
func (e *DeconflictionEngine) Evaluate(c Candidate, active []ActiveMission, live map[string]model.TrajectorySample, now time.Time) (bool, []model.Conflict) {
	evalStart := time.Now()
	var conflicts []model.Conflict
	candidateSeg := segmentOf(c)

	// Step 4: vehicle-exclusivity, distinct from spatial conflicts.
	for _, a := range active {
		if a.VehicleID != c.VehicleID {
			continue
		}
		if model.Overlaps(c.StartTime, c.EndTime, a.Segment.StartTime, a.Segment.EndTime) {
			conflicts = append(conflicts, model.Conflict{
				Kind:     model.ConflictVehicleExclusivity,
				VehicleA: c.VehicleID,
				VehicleB: c.VehicleID,
				Start:    maxTime(c.StartTime, a.Segment.StartTime),
				End:      minTime(c.EndTime, a.Segment.EndTime),
				Severity: model.SeverityCritical,
			})
		}
	}

	// Step 2: PLANNED conflicts against other vehicles' active missions.
	for _, a := range active {
		if a.VehicleID == c.VehicleID {
			continue
		}
		if !model.Overlaps(c.StartTime, c.EndTime, a.Segment.StartTime, a.Segment.EndTime) {
			continue
		}
		if conf, ok := e.sampleAndBisect(candidateSeg, a.Segment, c.VehicleID, a.VehicleID, model.ConflictPlanned); ok {
			conflicts = append(conflicts, conf)
		}
	}

	// Step 3: MIXED conflicts against live vehicles with no active mission.
	activeVehicles := make(map[string]bool, len(active))
	for _, a := range active {
		activeVehicles[a.VehicleID] = true
	}
	horizonEnd := c.StartTime.Add(e.Params.ProjectionHorizon)
	for vid, sample := range live {
		if vid == c.VehicleID || activeVehicles[vid] {
			continue
		}
		if now.Sub(sample.Time) > e.Params.StalenessBound {
			continue
		}
		windowEnd := c.EndTime
		if horizonEnd.Before(windowEnd) {
			windowEnd = horizonEnd
		}
		if !windowEnd.After(c.StartTime) {
			continue
		}
		projSeg := projectedSegment(sample, c.StartTime, windowEnd)
		if conf, ok := e.sampleAndBisect(candidateSeg, projSeg, c.VehicleID, vid, model.ConflictMixed); ok {
			conflicts = append(conflicts, conf)
		}
	}

	// Altitude floor advisory, non-spatial.
	for _, wp := range c.Plan.Waypoints {
		if wp.Alt < e.Params.AltitudeFloorM {
			conflicts = append(conflicts, model.Conflict{
				Kind:     model.ConflictAltitude,
				VehicleA: c.VehicleID,
				Severity: model.SeverityAdvisory,
			})
			break
		}
	}

	if e.metrics != nil {
		e.metrics.ObserveEvaluation(time.Since(evalStart))
		for _, conf := range conflicts {
			e.metrics.IncConflict(string(conf.Kind), string(conf.Severity))
		}
	}

	return len(conflicts) == 0, conflicts
}

// projectedSegment turns a live sample's constant-velocity projection into a
// two-point PlannedSegment so the same sampling machinery can be reused.
func projectedSegment(sample model.TrajectorySample, start, end time.Time) model.PlannedSegment {
	p0 := sample.Position
	p1 := ProjectConstantVelocity(model.VehicleState{Position: sample.Position, Velocity: sample.Velocity}, end.Sub(start))
	return model.PlannedSegment{
		Plan: model.Plan{Waypoints: []model.Waypoint{
			{Lat: p0.Lat, Lon: p0.Lon, Alt: p0.Alt},
			{Lat: p1.Lat, Lon: p1.Lon, Alt: p1.Alt},
		}},
		StartTime: start,
		EndTime:   end,
	}
}

// sampleAndBisect walks the overlap window of two segments at resolution Δ,
// finds the minimum sampled separation, and if it is within the safety
// buffer, refines the conflict sub-interval's endpoints by bisection to
// 0.1·Δ precision.
func (e *DeconflictionEngine) sampleAndBisect(a, b model.PlannedSegment, vehicleA, vehicleB string, kind model.ConflictKind) (model.Conflict, bool) {
	start := maxTime(a.StartTime, b.StartTime)
	end := minTime(a.EndTime, b.EndTime)
	if !end.After(start) {
		return model.Conflict{}, false
	}

	delta := e.Params.Resolution
	if delta <= 0 {
		delta = 500 * time.Millisecond
	}

	type sample struct {
		t time.Time
		d float64
	}
	var samples []sample
	for t := start; t.Before(end); t = t.Add(delta) {
		samples = append(samples, sample{t: t, d: sep(a, b, t)})
	}
	samples = append(samples, sample{t: end, d: sep(a, b, end)})

	minD := samples[0].d
	minIdx := 0
	for i, s := range samples {
		if s.d < minD {
			minD = s.d
			minIdx = i
		}
	}

	// Strict inequality: separation exactly equal to the buffer is not a
	// conflict.
	if minD >= e.Params.SafetyBufferM {
		return model.Conflict{}, false
	}

	// Find the sub-interval where separation stays below the buffer,
	// expanding outward from the minimum, then refine each crossing by
	// bisection.
	lo := minIdx
	for lo > 0 && samples[lo-1].d < e.Params.SafetyBufferM {
		lo--
	}
	hi := minIdx
	for hi < len(samples)-1 && samples[hi+1].d < e.Params.SafetyBufferM {
		hi++
	}

	conflictStart := samples[lo].t
	if lo > 0 {
		conflictStart = e.bisect(a, b, samples[lo-1].t, samples[lo].t, delta)
	}
	conflictEnd := samples[hi].t
	if hi < len(samples)-1 {
		conflictEnd = e.bisect(a, b, samples[hi].t, samples[hi+1].t, delta)
	}

	severity := model.SeverityWarning
	if minD <= e.Params.SafetyBufferM/2 {
		severity = model.SeverityCritical
	}

	return model.Conflict{
		Kind:        kind,
		VehicleA:    vehicleA,
		VehicleB:    vehicleB,
		Start:       conflictStart,
		End:         conflictEnd,
		MinDistance: minD,
		Severity:    severity,
	}, true
}

// bisect refines the boundary between an "outside buffer" sample at tOut and
// an "inside buffer" sample at tIn to 0.1*Δ precision.
func (e *DeconflictionEngine) bisect(a, b model.PlannedSegment, tOut, tIn time.Time, delta time.Duration) time.Time {
	precision := time.Duration(float64(delta) * 0.1)
	if precision <= 0 {
		precision = time.Millisecond
	}
	lo, hi := tOut, tIn
	for hi.Sub(lo) > precision {
		mid := lo.Add(hi.Sub(lo) / 2)
		if sep(a, b, mid) < e.Params.SafetyBufferM {
			hi = mid
		} else {
			lo = mid
		}
	}
	return hi
}

func sep(a, b model.PlannedSegment, t time.Time) float64 {
	return Distance3D(PositionAt(a, t), PositionAt(b, t))
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
