// internal/store/store.go
package store

import (
	"context"
	"time"

	"github.com/signalsfoundry/uav-coordinator/model"
)

// Store is the persistence capability interface: mission records are
// authoritative-with-ack, trajectory samples and conflict events are
// best-effort. A memory-backed store and a modernc.org/sqlite-backed store
// both implement it.
type Store interface {
	PutMission(ctx context.Context, m model.Mission) error
	GetMission(ctx context.Context, id string) (model.Mission, error)
	ListMissions(ctx context.Context) ([]model.Mission, error)

	AppendTrajectory(ctx context.Context, s model.TrajectorySample) error
	RangeTrajectory(ctx context.Context, vehicleID string, from, to time.Time) ([]model.TrajectorySample, error)

	AppendConflictEvent(ctx context.Context, c model.Conflict) error
	RangeConflicts(ctx context.Context, from, to time.Time) ([]model.Conflict, error)

	Close() error
}
