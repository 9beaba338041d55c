// internal/driver/driver.go
package driver

import (
	"context"

	"github.com/signalsfoundry/uav-coordinator/model"
)

// Driver is the capability interface the core depends on for vehicle
// telemetry and command dispatch. The deterministic in-memory simulator
// (simdrv.Driver) implements it; the core depends only on this interface.
type Driver interface {
	// Status returns the current known state of one vehicle.
	Status(ctx context.Context, vehicleID string) (model.VehicleState, error)

	// StatusAll returns the current known state of every discovered
	// vehicle, keyed by vehicle ID.
	StatusAll() map[string]model.VehicleState

	// Command issues a command to one vehicle. It returns
	// coreerr.ErrVehicleUnavailable if the vehicle is unknown or offline,
	// and coreerr.ErrDriverError if the command was rejected.
	Command(ctx context.Context, vehicleID string, cmd model.Command) error

	// EmergencyStopAll issues STOP to every known vehicle; used by the
	// operator-triggered emergency endpoint.
	EmergencyStopAll(ctx context.Context) []error

	// Subscribe returns a channel of telemetry samples as they arrive. The
	// returned cancel function stops delivery and releases resources.
	Subscribe() (<-chan model.TrajectorySample, func())
}
