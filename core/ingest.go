// core/ingest.go
package core

import (
	"context"

	"github.com/signalsfoundry/uav-coordinator/internal/logging"
	"github.com/signalsfoundry/uav-coordinator/model"
)

// TelemetrySource is the telemetry-tap subset of the fleet driver interface
// the ingest loop needs, kept local to avoid core depending on
// internal/driver's package.
type TelemetrySource interface {
	Subscribe() (<-chan model.TrajectorySample, func())
}

// TrajectoryPersister is the subset of the persistence interface trajectory
// ingestion needs, beyond Store's mission bookkeeping.
type TrajectoryPersister interface {
	AppendTrajectory(ctx context.Context, s model.TrajectorySample) error
}

// IngestTelemetry drains source's telemetry tap into the trajectory store,
// which every other component reads from, and into persist on a best-effort
// basis: persistence failures for non-authoritative telemetry are logged and
// otherwise dropped, never blocking the producer. It blocks until ctx is
// cancelled or the source closes its channel.
func (c *Core) IngestTelemetry(ctx context.Context, source TelemetrySource, persist TrajectoryPersister) {
	ch, unsubscribe := source.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case sample, ok := <-ch:
			if !ok {
				return
			}
			c.Trajectory.Append(sample)
			if persist != nil {
				if err := persist.AppendTrajectory(ctx, sample); err != nil {
					c.log.Warn(ctx, "trajectory persistence failed",
						logging.VehicleID(sample.VehicleID),
						logging.String("error", err.Error()))
				}
			}
		}
	}
}
