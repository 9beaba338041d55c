package core

import (
	"testing"
	"time"

	"github.com/signalsfoundry/uav-coordinator/model"
)

func TestBroadcaster_TickIncrementsUpdateID(t *testing.T) {
	trio := NewTrajectoryStore(0, 0)
	b := NewBroadcaster(trio, nil, nil, nil)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	s1 := b.tick(base)
	s2 := b.tick(base.Add(time.Second))
	if s1.UpdateID != 1 || s2.UpdateID != 2 {
		t.Fatalf("expected update_id 1 then 2, got %d then %d", s1.UpdateID, s2.UpdateID)
	}
}

func TestBroadcaster_SubscribePrimesLatestSnapshot(t *testing.T) {
	trio := NewTrajectoryStore(0, 0)
	b := NewBroadcaster(trio, nil, nil, nil)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b.tick(base)

	ch, unsubscribe := b.Subscribe()
	defer unsubscribe()

	select {
	case snap := <-ch:
		if snap.UpdateID != 1 {
			t.Fatalf("expected primed snapshot update_id 1, got %d", snap.UpdateID)
		}
	default:
		t.Fatal("expected the subscriber channel to be pre-loaded with the latest snapshot")
	}
}

// S6 — a slow subscriber draining at 1 Hz against a broadcaster ticking 10
// times receives at most 6 messages, all strictly increasing, ending at the
// final update_id.
func TestBroadcaster_SlowSubscriberCoalesces(t *testing.T) {
	trio := NewTrajectoryStore(0, 0)
	b := NewBroadcaster(trio, nil, nil, nil)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	ch, unsubscribe := b.Subscribe()
	defer unsubscribe()

	var received []model.Snapshot
	for i := 1; i <= 10; i++ {
		b.tick(base.Add(time.Duration(i) * 500 * time.Millisecond))
		if i%2 == 0 {
			// Subscriber drains at half the tick rate (1 Hz vs. 2 Hz ticks).
			select {
			case snap := <-ch:
				received = append(received, snap)
			default:
			}
		}
	}

	if len(received) > 6 {
		t.Fatalf("expected at most 6 received messages, got %d", len(received))
	}
	for i := 1; i < len(received); i++ {
		if received[i].UpdateID <= received[i-1].UpdateID {
			t.Fatalf("expected strictly increasing update_id, got %d then %d", received[i-1].UpdateID, received[i].UpdateID)
		}
	}
	if len(received) > 0 && received[len(received)-1].UpdateID != 10 {
		t.Errorf("expected last received update_id to be the latest (10), got %d", received[len(received)-1].UpdateID)
	}
}

func TestBroadcaster_Snapshot_ReturnsLatestWithoutTicking(t *testing.T) {
	trio := NewTrajectoryStore(0, 0)
	b := NewBroadcaster(trio, nil, nil, nil)
	if zero := b.Snapshot(); zero.UpdateID != 0 {
		t.Fatalf("expected zero-value snapshot before any tick, got %+v", zero)
	}
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b.tick(base)
	if got := b.Snapshot(); got.UpdateID != 1 {
		t.Fatalf("expected Snapshot() to reflect the last tick, got %d", got.UpdateID)
	}
}
