package core

import (
	"testing"
	"time"

	"github.com/signalsfoundry/uav-coordinator/model"
)

// S4 — live alert edge-trigger: two vehicles sit within the safety buffer
// for several ticks, producing an initial alert and a single 5s reminder,
// then clear once they've been apart for clearGap.
func TestLiveMonitor_EdgeTriggerAndReminder(t *testing.T) {
	trio := NewTrajectoryStore(0, 0)
	sink := &fakeAlerts{}
	m := NewLiveMonitor(trio, DefaultParams(), sink)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	close := func(tick int) {
		t := base.Add(time.Duration(tick) * time.Second)
		trio.Append(model.TrajectorySample{VehicleID: "d1", Time: t, Position: model.Position{Lat: 0, Lon: 0, Alt: 0}})
		trio.Append(model.TrajectorySample{VehicleID: "d2", Time: t, Position: model.Position{Lat: 0, Lon: 0, Alt: 8}})
	}
	far := func(tick int) {
		t := base.Add(time.Duration(tick) * time.Second)
		trio.Append(model.TrajectorySample{VehicleID: "d1", Time: t, Position: model.Position{Lat: 0, Lon: 0, Alt: 0}})
		trio.Append(model.TrajectorySample{VehicleID: "d2", Time: t, Position: model.Position{Lat: 0, Lon: 0, Alt: 30}})
	}

	alertTicks := 0
	for tick := 0; tick <= 6; tick++ {
		close(tick)
		confs := m.Tick(base.Add(time.Duration(tick) * time.Second))
		if len(confs) > 0 {
			alertTicks++
		}
	}
	if alertTicks != 2 {
		t.Fatalf("expected exactly 2 raised alerts (t=0 initial, t=5 reminder), got %d", alertTicks)
	}

	for tick := 7; tick <= 10; tick++ {
		far(tick)
		m.Tick(base.Add(time.Duration(tick) * time.Second))
	}

	key := makePairKey("d1", "d2")
	st := m.state[key]
	if st == nil || st.active {
		t.Fatalf("expected pair cleared after clearGap, state=%+v", st)
	}
}

func TestLiveMonitor_SafeDistanceRaisesNothing(t *testing.T) {
	trio := NewTrajectoryStore(0, 0)
	m := NewLiveMonitor(trio, DefaultParams(), nil)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	trio.Append(model.TrajectorySample{VehicleID: "d1", Time: now, Position: model.Position{Lat: 0, Lon: 0, Alt: 0}})
	trio.Append(model.TrajectorySample{VehicleID: "d2", Time: now, Position: model.Position{Lat: 0, Lon: 0, Alt: 100}})

	if confs := m.Tick(now); len(confs) != 0 {
		t.Fatalf("expected no conflicts at safe distance, got %+v", confs)
	}
}

func TestLiveMonitor_ReportsTickSkewAfterFirstTick(t *testing.T) {
	trio := NewTrajectoryStore(0, 0)
	m := NewLiveMonitor(trio, DefaultParams(), nil)
	metrics := &fakeSchedMetrics{}
	m.SetMetrics(metrics)
	m.SetIntervals(time.Second, 0, 0)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	m.Tick(base)
	if len(metrics.tickSkews) != 0 {
		t.Fatalf("expected no skew recorded on the first tick, got %v", metrics.tickSkews)
	}

	m.Tick(base.Add(1100 * time.Millisecond))
	if len(metrics.tickSkews) != 1 {
		t.Fatalf("expected one skew sample after the second tick, got %v", metrics.tickSkews)
	}
	if metrics.tickSkews[0] != 100*time.Millisecond {
		t.Fatalf("expected 100ms of skew, got %v", metrics.tickSkews[0])
	}
}

// Stale telemetry older than the staleness bound is excluded from the live
// monitor, even though the two vehicles' last known positions are well
// within the safety buffer.
func TestLiveMonitor_ExcludesPairWithStaleSample(t *testing.T) {
	trio := NewTrajectoryStore(0, 0)
	params := DefaultParams()
	m := NewLiveMonitor(trio, params, nil)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	trio.Append(model.TrajectorySample{VehicleID: "d1", Time: now, Position: model.Position{Lat: 0, Lon: 0, Alt: 0}})
	trio.Append(model.TrajectorySample{VehicleID: "d2", Time: now.Add(-(params.StalenessBound + time.Second)), Position: model.Position{Lat: 0, Lon: 0, Alt: 5}})

	if confs := m.Tick(now); len(confs) != 0 {
		t.Fatalf("expected the stale pair to be excluded, got %+v", confs)
	}
}

func TestLiveMonitor_SeverityEscalatesAtHalfBuffer(t *testing.T) {
	trio := NewTrajectoryStore(0, 0)
	m := NewLiveMonitor(trio, DefaultParams(), nil)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	trio.Append(model.TrajectorySample{VehicleID: "d1", Time: now, Position: model.Position{Lat: 0, Lon: 0, Alt: 0}})
	trio.Append(model.TrajectorySample{VehicleID: "d2", Time: now, Position: model.Position{Lat: 0, Lon: 0, Alt: 3}})

	confs := m.Tick(now)
	if len(confs) != 1 || confs[0].Severity != model.SeverityCritical {
		t.Fatalf("expected one CRITICAL conflict within half the safety buffer, got %+v", confs)
	}
}
