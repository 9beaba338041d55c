// internal/store/memstore/memstore.go
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/signalsfoundry/uav-coordinator/internal/coreerr"
	"github.com/signalsfoundry/uav-coordinator/model"
)

// Store is an in-memory implementation of store.Store, used for tests and
// local development without a durable backing database.
type Store struct {
	mu          sync.RWMutex
	missions    map[string]model.Mission
	trajectory  map[string][]model.TrajectorySample
	conflicts   []model.Conflict
}

// New constructs an empty in-memory store.
func New() *Store {
	return &Store{
		missions:   make(map[string]model.Mission),
		trajectory: make(map[string][]model.TrajectorySample),
	}
}

func (s *Store) PutMission(ctx context.Context, m model.Mission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.missions[m.ID] = m
	return nil
}

func (s *Store) GetMission(ctx context.Context, id string) (model.Mission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.missions[id]
	if !ok {
		return model.Mission{}, fmt.Errorf("%w: mission %q", coreerr.ErrNotFound, id)
	}
	return m, nil
}

func (s *Store) ListMissions(ctx context.Context) ([]model.Mission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Mission, 0, len(s.missions))
	for _, m := range s.missions {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) AppendTrajectory(ctx context.Context, sample model.TrajectorySample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trajectory[sample.VehicleID] = append(s.trajectory[sample.VehicleID], sample)
	return nil
}

func (s *Store) RangeTrajectory(ctx context.Context, vehicleID string, from, to time.Time) ([]model.TrajectorySample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.TrajectorySample
	for _, sample := range s.trajectory[vehicleID] {
		if sample.Time.Before(from) || sample.Time.After(to) {
			continue
		}
		out = append(out, sample)
	}
	return out, nil
}

func (s *Store) AppendConflictEvent(ctx context.Context, c model.Conflict) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conflicts = append(s.conflicts, c)
	return nil
}

func (s *Store) RangeConflicts(ctx context.Context, from, to time.Time) ([]model.Conflict, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Conflict
	for _, c := range s.conflicts {
		if c.Start.Before(from) || c.Start.After(to) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *Store) Close() error { return nil }
