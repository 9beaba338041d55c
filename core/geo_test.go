package core

import (
	"testing"
	"time"

	"github.com/signalsfoundry/uav-coordinator/model"
)

func TestHorizontalDistance_ShortHop(t *testing.T) {
	a := model.Position{Lat: 0, Lon: 0}
	b := model.Position{Lat: 0, Lon: 0.001}

	d := HorizontalDistance(a, b)
	// ~0.001 deg of longitude at the equator is ~111 m.
	if d < 100 || d > 120 {
		t.Errorf("HorizontalDistance = %v, want ~111", d)
	}
}

func TestHorizontalDistance_LongHopUsesHaversine(t *testing.T) {
	a := model.Position{Lat: 0, Lon: 0}
	b := model.Position{Lat: 0, Lon: 1} // ~111 km, above the local threshold

	d := HorizontalDistance(a, b)
	if d < 110000 || d > 112000 {
		t.Errorf("HorizontalDistance = %v, want ~111000", d)
	}
}

func TestDistance3D_CombinesVertical(t *testing.T) {
	a := model.Position{Lat: 0, Lon: 0, Alt: 0}
	b := model.Position{Lat: 0, Lon: 0, Alt: 30}

	if d := Distance3D(a, b); d != 30 {
		t.Errorf("Distance3D = %v, want 30", d)
	}
}

func TestPositionAt_EqualSpeedPerLeg(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	seg := model.PlannedSegment{
		Plan: model.Plan{Waypoints: []model.Waypoint{
			{Lat: 0, Lon: 0, Alt: 10},
			{Lat: 0, Lon: 0.001, Alt: 10}, // short leg
			{Lat: 0, Lon: 0.003, Alt: 10}, // long leg, 2x the first
		}},
		StartTime: start,
		EndTime:   start.Add(60 * time.Second),
	}

	mid := PositionAt(seg, start.Add(30*time.Second))
	// Total path length ~333 m; half the time should be ~half the path,
	// which lands inside the second (longer) leg, past its start waypoint.
	if mid.Lon <= 0.001 || mid.Lon >= 0.003 {
		t.Errorf("PositionAt midpoint lon = %v, want between 0.001 and 0.003", mid.Lon)
	}
}

func TestPositionAt_ClampsToEndpoints(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	seg := model.PlannedSegment{
		Plan: model.Plan{Waypoints: []model.Waypoint{
			{Lat: 0, Lon: 0, Alt: 10},
			{Lat: 1, Lon: 1, Alt: 20},
		}},
		StartTime: start,
		EndTime:   start.Add(10 * time.Second),
	}

	before := PositionAt(seg, start.Add(-5*time.Second))
	if before.Lat != 0 || before.Lon != 0 {
		t.Errorf("PositionAt before window = %+v, want first waypoint", before)
	}

	after := PositionAt(seg, start.Add(20*time.Second))
	if after.Lat != 1 || after.Lon != 1 {
		t.Errorf("PositionAt after window = %+v, want last waypoint", after)
	}
}
