// core/tracing.go
package core

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/signalsfoundry/uav-coordinator/core"

// startDriverSpan starts a child span around a single driver command
// dispatch, so a slow or failing vehicle is traceable back to the mission
// that issued the command.
func startDriverSpan(ctx context.Context, missionID, vehicleID string, cmd string) (context.Context, trace.Span) {
	tracer := otel.Tracer(tracerName)
	return tracer.Start(ctx, "driver.Command", trace.WithAttributes(
		attribute.String("mission_id", missionID),
		attribute.String("vehicle_id", vehicleID),
		attribute.String("command", cmd),
	))
}
