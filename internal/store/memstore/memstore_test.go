package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/signalsfoundry/uav-coordinator/internal/coreerr"
	"github.com/signalsfoundry/uav-coordinator/model"
)

func TestStore_PutAndGetMission(t *testing.T) {
	s := New()
	ctx := context.Background()
	m := model.Mission{ID: "m1", VehicleID: "d1", State: model.MissionScheduled, CreatedAt: time.Now()}

	if err := s.PutMission(ctx, m); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := s.GetMission(ctx, "m1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "m1" {
		t.Fatalf("expected mission m1, got %+v", got)
	}
}

func TestStore_GetMissionNotFound(t *testing.T) {
	s := New()
	_, err := s.GetMission(context.Background(), "ghost")
	if !errors.Is(err, coreerr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_RangeTrajectoryFiltersByWindow(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		_ = s.AppendTrajectory(ctx, model.TrajectorySample{VehicleID: "d1", Time: base.Add(time.Duration(i) * time.Second)})
	}

	got, err := s.RangeTrajectory(ctx, "d1", base.Add(time.Second), base.Add(3*time.Second))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(got))
	}
}

func TestStore_RangeConflictsFiltersByWindow(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	_ = s.AppendConflictEvent(ctx, model.Conflict{Start: base, End: base})
	_ = s.AppendConflictEvent(ctx, model.Conflict{Start: base.Add(time.Hour), End: base.Add(time.Hour)})

	got, err := s.RangeConflicts(ctx, base.Add(-time.Minute), base.Add(time.Minute))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 conflict in range, got %d", len(got))
	}
}
