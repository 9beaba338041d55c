// core/trajectory_store.go
package core

import (
	"sort"
	"sync"
	"time"

	"github.com/signalsfoundry/uav-coordinator/model"
)

// DefaultRetention is the default per-vehicle sample retention window.
const DefaultRetention = 1 * time.Hour

// DefaultClockSlack is how far out of order a sample may arrive (relative to
// the newest recorded sample) before append silently drops it, to tolerate
// clock jitter between the driver and the core.
const DefaultClockSlack = 100 * time.Millisecond

// TrajectoryStore is an append-only, per-vehicle time-indexed buffer of live
// telemetry. It exclusively owns sample storage; callers only ever see
// copies. A single writer per vehicle is expected, with any number of
// concurrent readers.
type TrajectoryStore struct {
	mu        sync.RWMutex
	retention time.Duration
	slack     time.Duration
	byVehicle map[string][]model.TrajectorySample
}

// NewTrajectoryStore constructs a store with the given retention window and
// clock slack. Zero values fall back to the package defaults.
func NewTrajectoryStore(retention, slack time.Duration) *TrajectoryStore {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if slack <= 0 {
		slack = DefaultClockSlack
	}
	return &TrajectoryStore{
		retention: retention,
		slack:     slack,
		byVehicle: make(map[string][]model.TrajectorySample),
	}
}

// SetRetention overrides the store's retention window; call before the
// store starts accepting samples from a running driver.
func (s *TrajectoryStore) SetRetention(retention time.Duration) {
	if retention <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retention = retention
}

// Append records a sample for the given vehicle. Samples whose timestamp is
// older than the newest recorded sample by more than the configured slack
// are silently dropped as stale out-of-order telemetry.
func (s *TrajectoryStore) Append(sample model.TrajectorySample) {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := s.byVehicle[sample.VehicleID]
	if n := len(buf); n > 0 {
		newest := buf[n-1].Time
		if sample.Time.Before(newest.Add(-s.slack)) {
			return
		}
	}
	s.byVehicle[sample.VehicleID] = append(buf, sample)
}

// Latest returns the most recent sample recorded for vehicle, if any.
func (s *TrajectoryStore) Latest(vehicle string) (model.TrajectorySample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	buf := s.byVehicle[vehicle]
	if len(buf) == 0 {
		return model.TrajectorySample{}, false
	}
	return buf[len(buf)-1], true
}

// Slice returns the ordered samples for vehicle within [from, to].
func (s *TrajectoryStore) Slice(vehicle string, from, to time.Time) []model.TrajectorySample {
	s.mu.RLock()
	defer s.mu.RUnlock()

	buf := s.byVehicle[vehicle]
	if len(buf) == 0 {
		return nil
	}

	lo := sort.Search(len(buf), func(i int) bool { return !buf[i].Time.Before(from) })
	hi := sort.Search(len(buf), func(i int) bool { return buf[i].Time.After(to) })
	if lo >= hi {
		return nil
	}

	out := make([]model.TrajectorySample, hi-lo)
	copy(out, buf[lo:hi])
	return out
}

// LatestAll returns a point-in-time consistent snapshot of the most recent
// sample per vehicle.
func (s *TrajectoryStore) LatestAll() map[string]model.TrajectorySample {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]model.TrajectorySample, len(s.byVehicle))
	for id, buf := range s.byVehicle {
		if len(buf) > 0 {
			out[id] = buf[len(buf)-1]
		}
	}
	return out
}

// Prune removes samples older than the retention window relative to now.
// Prune is the only path that removes samples.
func (s *TrajectoryStore) Prune(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-s.retention)
	for id, buf := range s.byVehicle {
		idx := sort.Search(len(buf), func(i int) bool { return !buf[i].Time.Before(cutoff) })
		if idx == 0 {
			continue
		}
		if idx >= len(buf) {
			delete(s.byVehicle, id)
			continue
		}
		remaining := make([]model.TrajectorySample, len(buf)-idx)
		copy(remaining, buf[idx:])
		s.byVehicle[id] = remaining
	}
}
