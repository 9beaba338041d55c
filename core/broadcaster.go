// core/broadcaster.go
package core

import (
	"context"
	"sync"
	"time"

	"github.com/signalsfoundry/uav-coordinator/model"
)

// DefaultBroadcastInterval is the fixed snapshot composition rate.
const DefaultBroadcastInterval = 500 * time.Millisecond

// StatusProvider supplies the non-kinematic vehicle health fields (battery,
// armed, flight mode) a Snapshot's per-vehicle array carries alongside
// position and velocity. The simulator driver (simdrv.Driver) implements it.
type StatusProvider interface {
	StatusAll() map[string]model.VehicleState
}

// Broadcaster composes fixed-rate snapshots from the trajectory store,
// mission registry, and live monitor, and fans them out to subscribers over
// size-1 coalescing channels so a slow subscriber only ever sees the latest
// snapshot rather than falling behind a queue.
type Broadcaster struct {
	trio    *TrajectoryStore
	reg     *MissionRegistry
	monitor *LiveMonitor
	status  StatusProvider

	interval time.Duration

	mu          sync.Mutex
	subscribers map[int]chan model.Snapshot
	nextSubID   int
	updateID    uint64
	latest      model.Snapshot
}

// NewBroadcaster constructs a broadcaster over the given components. status
// may be nil, in which case per-vehicle state carries only the kinematics
// the trajectory store has on file.
func NewBroadcaster(trio *TrajectoryStore, reg *MissionRegistry, monitor *LiveMonitor, status StatusProvider) *Broadcaster {
	return &Broadcaster{
		trio:        trio,
		reg:         reg,
		monitor:     monitor,
		status:      status,
		interval:    DefaultBroadcastInterval,
		subscribers: make(map[int]chan model.Snapshot),
	}
}

// Subscribe registers a new subscriber and returns a size-1 channel that
// always holds the most recently composed snapshot, plus an unsubscribe
// function. The channel is pre-loaded with the latest snapshot, if any, so a
// new subscriber does not wait a full tick for its first message.
func (b *Broadcaster) Subscribe() (<-chan model.Snapshot, func()) {
	b.mu.Lock()
	id := b.nextSubID
	b.nextSubID++
	ch := make(chan model.Snapshot, 1)
	if b.updateID > 0 {
		ch <- b.latest
	}
	b.subscribers[id] = ch
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		delete(b.subscribers, id)
		b.mu.Unlock()
	}
	return ch, unsubscribe
}

// Snapshot returns the most recently composed snapshot without forcing a
// new composition pass.
func (b *Broadcaster) Snapshot() model.Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.latest
}

// SetInterval overrides the broadcaster's tick period; call before Run.
func (b *Broadcaster) SetInterval(interval time.Duration) {
	if interval > 0 {
		b.interval = interval
	}
}

// Run composes and fans out a snapshot every interval until ctx is
// cancelled.
func (b *Broadcaster) Run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			b.tick(t)
		}
	}
}

// tick composes one snapshot and pushes it to every subscriber, coalescing
// by draining any stale pending value first.
func (b *Broadcaster) tick(now time.Time) model.Snapshot {
	snap := b.compose(now)

	b.mu.Lock()
	b.updateID = snap.UpdateID
	b.latest = snap
	for _, ch := range b.subscribers {
		select {
		case ch <- snap:
		default:
			// Coalesce: drop the stale pending snapshot, push the fresh one.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
	b.mu.Unlock()

	return snap
}

func (b *Broadcaster) compose(now time.Time) model.Snapshot {
	b.mu.Lock()
	id := b.updateID + 1
	b.mu.Unlock()

	samples := b.trio.LatestAll()
	var statuses map[string]model.VehicleState
	if b.status != nil {
		statuses = b.status.StatusAll()
	}

	vehicles := make([]model.VehicleState, 0, len(samples))
	for id, sample := range samples {
		vs, ok := statuses[id]
		if !ok {
			vs = model.VehicleState{ID: id}
		}
		vs.ID = id
		vs.Position = sample.Position
		vs.Velocity = sample.Velocity
		vehicles = append(vehicles, vs)
	}
	// Vehicles the status provider reports but the trajectory store has no
	// sample for yet keep the provider's own position and velocity.
	for vid, vs := range statuses {
		if _, ok := samples[vid]; !ok {
			vs.ID = vid
			vehicles = append(vehicles, vs)
		}
	}

	var conflicts []model.Conflict
	if b.monitor != nil {
		conflicts = b.monitor.Tick(now)
	}

	return model.Snapshot{
		ServerTime: now,
		Vehicles:   vehicles,
		Conflicts:  conflicts,
		UpdateID:   id,
	}
}
