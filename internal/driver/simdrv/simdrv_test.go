package simdrv

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/signalsfoundry/uav-coordinator/internal/coreerr"
	"github.com/signalsfoundry/uav-coordinator/model"
)

func TestDriver_ArmTakeoffAdvancesTowardTarget(t *testing.T) {
	d := New("d1")
	ctx := context.Background()

	if err := d.Command(ctx, "d1", model.Command{Type: model.CommandArm}); err != nil {
		t.Fatalf("unexpected error arming: %v", err)
	}
	if err := d.Command(ctx, "d1", model.Command{Type: model.CommandTakeoff, Altitude: 20}); err != nil {
		t.Fatalf("unexpected error on takeoff: %v", err)
	}

	d.tick(time.Now())
	st, err := d.Status(ctx, "d1")
	if err != nil {
		t.Fatalf("unexpected status error: %v", err)
	}
	if st.Position.Alt <= 0 {
		t.Errorf("expected altitude to have advanced toward 20, got %v", st.Position.Alt)
	}
}

func TestDriver_CommandUnknownVehicle(t *testing.T) {
	d := New("d1")
	err := d.Command(context.Background(), "ghost", model.Command{Type: model.CommandArm})
	if !errors.Is(err, coreerr.ErrVehicleUnavailable) {
		t.Fatalf("expected ErrVehicleUnavailable, got %v", err)
	}
}

func TestDriver_DisarmMidMissionRejected(t *testing.T) {
	d := New("d1")
	ctx := context.Background()
	_ = d.Command(ctx, "d1", model.Command{Type: model.CommandArm})
	_ = d.Command(ctx, "d1", model.Command{Type: model.CommandGoto, Lat: 1, Lon: 1, Alt: 10})

	err := d.Command(ctx, "d1", model.Command{Type: model.CommandDisarm})
	if !errors.Is(err, coreerr.ErrDriverError) {
		t.Fatalf("expected ErrDriverError disarming mid-mission, got %v", err)
	}
}

func TestDriver_SubscribeReceivesTicks(t *testing.T) {
	d := New("d1")
	ch, cancel := d.Subscribe()
	defer cancel()

	d.tick(time.Now())

	select {
	case sample := <-ch:
		if sample.VehicleID != "d1" {
			t.Fatalf("expected sample for d1, got %q", sample.VehicleID)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a telemetry sample after a tick")
	}
}

func TestDriver_EmergencyStopAllClearsTargets(t *testing.T) {
	d := New("d1", "d2")
	ctx := context.Background()
	_ = d.Command(ctx, "d1", model.Command{Type: model.CommandArm})
	_ = d.Command(ctx, "d1", model.Command{Type: model.CommandGoto, Lat: 1, Lon: 1, Alt: 10})

	if errs := d.EmergencyStopAll(ctx); len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	st, _ := d.Status(ctx, "d1")
	if st.Mode != "LOITER" {
		t.Fatalf("expected LOITER after emergency stop, got %v", st.Mode)
	}
}
