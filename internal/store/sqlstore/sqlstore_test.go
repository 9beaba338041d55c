package sqlstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/signalsfoundry/uav-coordinator/model"
)

func TestStore_PutGetListMission(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "coordinator.db")
	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("unexpected error opening store: %v", err)
	}
	defer func() { _ = s.Close() }()

	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := model.Mission{
		ID:        "m1",
		VehicleID: "d1",
		Plan:      model.Plan{Waypoints: []model.Waypoint{{Lat: 0, Lon: 0, Alt: 10}}},
		StartTime: now,
		EndTime:   now.Add(time.Minute),
		State:     model.MissionScheduled,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.PutMission(ctx, m); err != nil {
		t.Fatalf("unexpected error putting mission: %v", err)
	}

	got, err := s.GetMission(ctx, "m1")
	if err != nil {
		t.Fatalf("unexpected error getting mission: %v", err)
	}
	if got.VehicleID != "d1" || len(got.Plan.Waypoints) != 1 {
		t.Fatalf("unexpected mission round-trip: %+v", got)
	}

	m.State = model.MissionCompleted
	if err := s.PutMission(ctx, m); err != nil {
		t.Fatalf("unexpected error updating mission: %v", err)
	}
	list, err := s.ListMissions(ctx)
	if err != nil {
		t.Fatalf("unexpected error listing missions: %v", err)
	}
	if len(list) != 1 || list[0].State != model.MissionCompleted {
		t.Fatalf("expected one updated mission, got %+v", list)
	}
}

func TestStore_TrajectoryAndConflictRoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "coordinator.db")
	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("unexpected error opening store: %v", err)
	}
	defer func() { _ = s.Close() }()

	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := s.AppendTrajectory(ctx, model.TrajectorySample{VehicleID: "d1", Time: now, Position: model.Position{Lat: 1, Lon: 2, Alt: 3}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	samples, err := s.RangeTrajectory(ctx, "d1", now.Add(-time.Minute), now.Add(time.Minute))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(samples) != 1 || samples[0].Position.Lon != 2 {
		t.Fatalf("unexpected trajectory round-trip: %+v", samples)
	}

	if err := s.AppendConflictEvent(ctx, model.Conflict{Kind: model.ConflictLive, VehicleA: "d1", VehicleB: "d2", Start: now, End: now, MinDistance: 5, Severity: model.SeverityWarning}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	conflicts, err := s.RangeConflicts(ctx, now.Add(-time.Minute), now.Add(time.Minute))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(conflicts) != 1 || conflicts[0].Kind != model.ConflictLive {
		t.Fatalf("unexpected conflict round-trip: %+v", conflicts)
	}
}
