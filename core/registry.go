// core/registry.go
package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/signalsfoundry/uav-coordinator/internal/coreerr"
	"github.com/signalsfoundry/uav-coordinator/internal/logging"
	"github.com/signalsfoundry/uav-coordinator/model"
)

// DefaultCommandWatchdog bounds a single driver command dispatched by the
// registry itself (arm/takeoff/goto/stop), distinct from any deadline an
// HTTP caller's request context already carries.
const DefaultCommandWatchdog = 15 * time.Second

// errCommandWatchdogExpired is returned by dispatchCommand when a driver
// call does not return before its watchdog deadline.
var errCommandWatchdogExpired = errors.New("driver command exceeded watchdog deadline")

// Driver is the subset of the fleet driver interface the registry's
// dispatcher needs. The full interface lives in internal/driver; this local
// view keeps core free of an import cycle.
type Driver interface {
	Command(ctx context.Context, vehicleID string, cmd model.Command) error
}

// Persister is the subset of the persistence interface mission admission
// needs. Mission writes are authoritative-with-ack: the caller gets an error
// if the write did not durably land.
type Persister interface {
	PutMission(ctx context.Context, m model.Mission) error
}

// AlertSink receives edge-triggered alerts raised by the registry's
// dispatcher (e.g. LATE_CONFLICT failures).
type AlertSink interface {
	PostAlert(conflict model.Conflict)
}

// MissionRegistry owns mission records exclusively and provides atomic
// admission. Reads (List/Get) never block on the admission lock; only
// Schedule and the dispatcher's start-time re-validation take it.
type MissionRegistry struct {
	admissionMu sync.Mutex // held for one admission: evaluation, persistence, insert
	recordsMu   sync.RWMutex
	records     map[string]model.Mission

	engine  *DeconflictionEngine
	trio    *TrajectoryStore
	driver  Driver
	store   Persister
	alerts  AlertSink
	log     logging.Logger

	wake chan struct{} // nudges the dispatcher to recompute its wait

	metrics        RegistryMetrics
	schedMetrics   DeconflictionMetrics
	clock          Clock
	commandTimeout time.Duration
}

// RegistryMetrics is the minimal set of health counters the registry
// surfaces, rather than failing individual requests noisily.
type RegistryMetrics interface {
	IncAdmissions()
	IncRejections()
	IncLateConflicts()
	IncPersistenceFailures()
}

// NewMissionRegistry constructs a registry wired to its collaborators.
func NewMissionRegistry(engine *DeconflictionEngine, trio *TrajectoryStore, driver Driver, store Persister, alerts AlertSink, metrics RegistryMetrics, log logging.Logger) *MissionRegistry {
	if log == nil {
		log = logging.Noop()
	}
	return &MissionRegistry{
		records:        make(map[string]model.Mission),
		engine:         engine,
		trio:           trio,
		driver:         driver,
		store:          store,
		alerts:         alerts,
		metrics:        metrics,
		log:            log,
		wake:           make(chan struct{}, 1),
		clock:          SystemClock{},
		commandTimeout: DefaultCommandWatchdog,
	}
}

// SetMetrics wires a deconfliction-scheduler metrics collector into the
// registry's queue-depth reporting. m may be nil.
func (r *MissionRegistry) SetMetrics(m DeconflictionMetrics) {
	r.schedMetrics = m
}

// SetCommandTimeout overrides the per-command watchdog deadline the
// dispatcher applies to every arm/takeoff/goto/stop command it issues. A
// non-positive d leaves driver commands unbounded.
func (r *MissionRegistry) SetCommandTimeout(d time.Duration) {
	r.commandTimeout = d
}

// scheduledCount returns the number of missions currently in the SCHEDULED
// state, awaiting their dispatch start_time.
func (r *MissionRegistry) scheduledCount() int {
	r.recordsMu.RLock()
	defer r.recordsMu.RUnlock()
	n := 0
	for _, m := range r.records {
		if m.State == model.MissionScheduled {
			n++
		}
	}
	return n
}

// Schedule atomically admits a candidate mission. On success it returns the
// new mission's ID. On conflict, it returns the conflict list and
// coreerr.ErrConflictDetected; no state is changed.
func (r *MissionRegistry) Schedule(ctx context.Context, c Candidate) (string, []model.Conflict, error) {
	if err := r.engine.ValidateCandidate(c); err != nil {
		return "", nil, err
	}

	r.admissionMu.Lock()
	defer r.admissionMu.Unlock()

	active := r.snapshotActive("")
	live := r.trio.LatestAll()

	safe, conflicts := r.engine.Evaluate(c, active, live, r.clock.Now())
	if !safe {
		if r.metrics != nil {
			r.metrics.IncRejections()
		}
		return "", conflicts, coreerr.ErrConflictDetected
	}

	id := uuid.NewString()
	now := r.clock.Now()
	mission := model.Mission{
		ID:          id,
		VehicleID:   c.VehicleID,
		Plan:        c.Plan,
		StartTime:   c.StartTime,
		EndTime:     c.EndTime,
		CruiseSpeed: segmentOf(c).CruiseSpeed,
		State:       model.MissionScheduled,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if r.store != nil {
		if err := r.persistWithRetry(ctx, mission); err != nil {
			if r.metrics != nil {
				r.metrics.IncPersistenceFailures()
			}
			return "", nil, fmt.Errorf("%w: mission admission persistence failed: %v", coreerr.ErrPersistenceError, err)
		}
	}

	r.recordsMu.Lock()
	r.records[id] = mission
	r.recordsMu.Unlock()

	if r.metrics != nil {
		r.metrics.IncAdmissions()
	}
	r.log.Info(ctx, "mission scheduled", logging.MissionID(id), logging.VehicleID(c.VehicleID))
	r.notifyWake()
	return id, nil, nil
}

// persistWithRetry retries exactly once on failure, bounding each attempt by
// a write deadline so a slow store can't stall admission indefinitely.
func (r *MissionRegistry) persistWithRetry(ctx context.Context, m model.Mission) error {
	const deadline = 2 * time.Second
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		writeCtx, cancel := context.WithTimeout(ctx, deadline)
		err := r.store.PutMission(writeCtx, m)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return lastErr
}

// Cancel transitions a mission to CANCELLED if non-terminal; a no-op on a
// terminal mission, returning its current state unchanged.
func (r *MissionRegistry) Cancel(ctx context.Context, missionID string) (model.Mission, error) {
	r.recordsMu.Lock()
	m, ok := r.records[missionID]
	if !ok {
		r.recordsMu.Unlock()
		return model.Mission{}, coreerr.ErrNotFound
	}
	if m.State.Terminal() {
		r.recordsMu.Unlock()
		return m, nil
	}

	wasRunning := m.State == model.MissionRunning
	m.State = model.MissionCancelled
	m.UpdatedAt = r.clock.Now()
	r.records[missionID] = m
	r.recordsMu.Unlock()

	if r.store != nil {
		_ = r.store.PutMission(ctx, m)
	}

	if wasRunning && r.driver != nil {
		if err := r.dispatchCommand(ctx, missionID, m.VehicleID, model.Command{Type: model.CommandStop}); err != nil {
			r.log.Warn(ctx, "stop command failed on cancel", logging.MissionID(missionID), logging.String("error", err.Error()))
		}
	}

	r.log.Info(ctx, "mission cancelled", logging.MissionID(missionID))
	return m, nil
}

// Get returns a mission record by ID.
func (r *MissionRegistry) Get(missionID string) (model.Mission, bool) {
	r.recordsMu.RLock()
	defer r.recordsMu.RUnlock()
	m, ok := r.records[missionID]
	return m, ok
}

// ListActive returns all missions in SCHEDULED or RUNNING state.
func (r *MissionRegistry) ListActive() []model.Mission {
	r.recordsMu.RLock()
	defer r.recordsMu.RUnlock()
	out := make([]model.Mission, 0, len(r.records))
	for _, m := range r.records {
		if m.Active() {
			out = append(out, m)
		}
	}
	return out
}

// List returns all mission records, regardless of state.
func (r *MissionRegistry) List() []model.Mission {
	r.recordsMu.RLock()
	defer r.recordsMu.RUnlock()
	out := make([]model.Mission, 0, len(r.records))
	for _, m := range r.records {
		out = append(out, m)
	}
	return out
}

// Restore re-inserts a mission record without going through admission; used
// by startup reconciliation to replay persisted missions.
func (r *MissionRegistry) Restore(m model.Mission) {
	r.recordsMu.Lock()
	defer r.recordsMu.Unlock()
	r.records[m.ID] = m
}

// ShutdownCancelAll cancels every SCHEDULED mission and issues a stop to
// every RUNNING vehicle, for use at process shutdown. The caller is
// responsible for bounding ctx to the shutdown deadline; each STOP goes
// through Cancel, which waits for the driver call to return, bounded by ctx
// and the command watchdog.
func (r *MissionRegistry) ShutdownCancelAll(ctx context.Context) {
	for _, m := range r.ListActive() {
		if _, err := r.Cancel(ctx, m.ID); err != nil {
			r.log.Warn(ctx, "shutdown cancel failed", logging.MissionID(m.ID), logging.String("error", err.Error()))
		}
	}
}

// snapshotActive returns every SCHEDULED or RUNNING mission except the one
// whose ID is excludeID (pass "" to exclude none).
func (r *MissionRegistry) snapshotActive(excludeID string) []ActiveMission {
	r.recordsMu.RLock()
	defer r.recordsMu.RUnlock()
	out := make([]ActiveMission, 0, len(r.records))
	for id, m := range r.records {
		if m.Active() && id != excludeID {
			out = append(out, ActiveMission{VehicleID: m.VehicleID, Segment: m.Segment()})
		}
	}
	return out
}

func (r *MissionRegistry) transition(id string, mutate func(*model.Mission)) (model.Mission, bool) {
	r.recordsMu.Lock()
	defer r.recordsMu.Unlock()
	m, ok := r.records[id]
	if !ok {
		return model.Mission{}, false
	}
	mutate(&m)
	m.UpdatedAt = r.clock.Now()
	r.records[id] = m
	return m, true
}

func (r *MissionRegistry) notifyWake() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// RunDispatcher drives the mission lifecycle: SCHEDULED -> RUNNING at
// start_time (after a second-pass re-validation), and RUNNING -> COMPLETED
// at end_time. It blocks until ctx is cancelled.
func (r *MissionRegistry) RunDispatcher(ctx context.Context) {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		if r.schedMetrics != nil {
			r.schedMetrics.SetQueueDepth(r.scheduledCount())
		}

		next, has := r.nextDeadline()
		if !has {
			timer.Reset(time.Hour)
		} else {
			d := time.Until(next)
			if d < 0 {
				d = 0
			}
			timer.Reset(d)
		}

		select {
		case <-ctx.Done():
			return
		case <-r.wake:
			timer.Stop()
			continue
		case <-timer.C:
			r.runDueTransitions(ctx, r.clock.Now())
		}
	}
}

// nextDeadline returns the earliest start_time (SCHEDULED) or end_time
// (RUNNING) among active missions.
func (r *MissionRegistry) nextDeadline() (time.Time, bool) {
	r.recordsMu.RLock()
	defer r.recordsMu.RUnlock()
	var best time.Time
	found := false
	for _, m := range r.records {
		var t time.Time
		switch m.State {
		case model.MissionScheduled:
			t = m.StartTime
		case model.MissionRunning:
			t = m.EndTime
		default:
			continue
		}
		if !found || t.Before(best) {
			best = t
			found = true
		}
	}
	return best, found
}

func (r *MissionRegistry) runDueTransitions(ctx context.Context, now time.Time) {
	r.recordsMu.RLock()
	var due []model.Mission
	for _, m := range r.records {
		if m.State == model.MissionScheduled && !now.Before(m.StartTime) {
			due = append(due, m)
		} else if m.State == model.MissionRunning && !now.Before(m.EndTime) {
			due = append(due, m)
		}
	}
	r.recordsMu.RUnlock()

	for _, m := range due {
		switch m.State {
		case model.MissionScheduled:
			r.startMission(ctx, m, now)
		case model.MissionRunning:
			r.completeMission(ctx, m)
		}
	}
}

// startMission re-validates against live state as of now, the moment of
// dispatch, before committing to RUNNING, since the world may have shifted
// since admission. The mission's own record is left out of the active set so
// it is not judged against itself.
func (r *MissionRegistry) startMission(ctx context.Context, m model.Mission, now time.Time) {
	r.admissionMu.Lock()
	active := r.snapshotActive(m.ID)
	live := r.trio.LatestAll()
	c := Candidate{VehicleID: m.VehicleID, Plan: m.Plan, StartTime: m.StartTime, EndTime: m.EndTime, CruiseSpeed: m.CruiseSpeed}
	safe, conflicts := r.engine.Evaluate(c, active, live, now)
	r.admissionMu.Unlock()

	if !safe {
		r.failMission(ctx, m.ID, model.FailureLateConflict)
		if r.metrics != nil {
			r.metrics.IncLateConflicts()
		}
		if r.alerts != nil {
			for _, conf := range conflicts {
				r.alerts.PostAlert(conf)
			}
		}
		r.log.Warn(ctx, "mission failed late-conflict re-validation", logging.MissionID(m.ID))
		return
	}

	updated, ok := r.transition(m.ID, func(mm *model.Mission) { mm.State = model.MissionRunning })
	if !ok {
		return
	}
	if r.store != nil {
		_ = r.store.PutMission(ctx, updated)
	}
	if r.driver != nil {
		seg := updated.Segment()
		if err := r.dispatchWaypoints(ctx, m.ID, updated.VehicleID, seg.Plan.Waypoints); err != nil {
			reason := model.FailureDriverError
			if errors.Is(err, errCommandWatchdogExpired) {
				reason = model.FailureWatchdog
			}
			r.log.Warn(ctx, "driver command failed on mission start", logging.MissionID(m.ID), logging.String("error", err.Error()))
			r.failMission(ctx, m.ID, reason)
			return
		}
	}
	r.log.Info(ctx, "mission started", logging.MissionID(m.ID))
}

// dispatchWaypoints arms the vehicle, takes off to the first waypoint's
// altitude, then issues a GOTO for every waypoint in order, per spec's
// arm -> takeoff -> goto-per-waypoint dispatch sequence. Every mission
// starts from the ground/idle state, so takeoff is unconditional here;
// there is no mid-mission resume case that would need to skip it.
func (r *MissionRegistry) dispatchWaypoints(ctx context.Context, missionID, vehicleID string, waypoints []model.Waypoint) error {
	if len(waypoints) == 0 {
		return nil
	}
	if err := r.dispatchCommand(ctx, missionID, vehicleID, model.Command{Type: model.CommandArm}); err != nil {
		return err
	}
	if err := r.dispatchCommand(ctx, missionID, vehicleID, model.Command{Type: model.CommandTakeoff, Altitude: waypoints[0].Alt}); err != nil {
		return err
	}
	for _, wp := range waypoints {
		cmd := model.Command{Type: model.CommandGoto, Lat: wp.Lat, Lon: wp.Lon, Alt: wp.Alt}
		if err := r.dispatchCommand(ctx, missionID, vehicleID, cmd); err != nil {
			return err
		}
	}
	return nil
}

// dispatchCommand issues a single driver command under a span and a
// watchdog deadline; a command that does not return before the deadline
// yields errCommandWatchdogExpired regardless of what the driver itself
// returns.
func (r *MissionRegistry) dispatchCommand(ctx context.Context, missionID, vehicleID string, cmd model.Command) error {
	spanCtx, span := startDriverSpan(ctx, missionID, vehicleID, string(cmd.Type))
	defer span.End()

	cmdCtx, cancel := watchdogContext(spanCtx, r.commandTimeout)
	defer cancel()

	err := r.driver.Command(cmdCtx, vehicleID, cmd)
	if cmdCtx.Err() == context.DeadlineExceeded {
		span.RecordError(errCommandWatchdogExpired)
		return errCommandWatchdogExpired
	}
	if err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// watchdogContext bounds a driver command by d. A non-positive d leaves
// parent unbounded.
func watchdogContext(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return parent, func() {}
	}
	return context.WithTimeout(parent, d)
}

func (r *MissionRegistry) completeMission(ctx context.Context, m model.Mission) {
	updated, ok := r.transition(m.ID, func(mm *model.Mission) { mm.State = model.MissionCompleted })
	if !ok {
		return
	}
	if r.store != nil {
		_ = r.store.PutMission(ctx, updated)
	}
	r.log.Info(ctx, "mission completed", logging.MissionID(m.ID))
}

func (r *MissionRegistry) failMission(ctx context.Context, missionID string, reason model.FailureReason) {
	updated, ok := r.transition(missionID, func(mm *model.Mission) {
		mm.State = model.MissionFailed
		mm.Reason = reason
	})
	if !ok {
		return
	}
	if r.store != nil {
		_ = r.store.PutMission(ctx, updated)
	}
}
