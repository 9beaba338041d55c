// internal/driver/simdrv/simdrv.go
package simdrv

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/signalsfoundry/uav-coordinator/internal/coreerr"
	"github.com/signalsfoundry/uav-coordinator/model"
)

// DefaultTickInterval is the simulator's telemetry production rate, fast
// enough to stay well under the deconfliction staleness bound
// (core.DeconflictionParams.StalenessBound).
const DefaultTickInterval = 200 * time.Millisecond

// DefaultCruiseSpeed is used for GOTO commands when the caller's mission
// did not separately constrain speed.
const DefaultCruiseSpeed = 5.0

// vehicle holds one simulated drone's mutable flight state.
type vehicle struct {
	id       string
	pos      model.Position
	vel      model.Velocity
	battery  float64
	armed    bool
	mode     model.FlightMode
	target   *model.Position
	speedMps float64
}

// Driver is a deterministic in-memory fleet simulator implementing
// driver.Driver. It never calls a real vehicle; every tick it advances each
// vehicle's position toward its commanded target at a fixed speed. The core
// treats its telemetry identically to a live fleet's.
type Driver struct {
	mu       sync.Mutex
	vehicles map[string]*vehicle
	interval time.Duration

	subMu sync.Mutex
	subs  map[int]chan model.TrajectorySample
	nextS int
}

// New constructs a simulator seeded with the given vehicle IDs, each
// starting armed-off at the origin with a full battery.
func New(vehicleIDs ...string) *Driver {
	d := &Driver{
		vehicles: make(map[string]*vehicle, len(vehicleIDs)),
		interval: DefaultTickInterval,
		subs:     make(map[int]chan model.TrajectorySample),
	}
	for _, id := range vehicleIDs {
		d.vehicles[id] = &vehicle{id: id, battery: 1.0, mode: "STANDBY"}
	}
	return d
}

// Run advances the simulation at its tick interval until ctx is cancelled.
func (d *Driver) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			d.tick(t)
		}
	}
}

func (d *Driver) tick(now time.Time) {
	d.mu.Lock()
	samples := make([]model.TrajectorySample, 0, len(d.vehicles))
	for _, v := range d.vehicles {
		d.advance(v)
		if v.battery > 0 {
			v.battery -= 0.00001 // slow drain, bounded below at 0
			if v.battery < 0 {
				v.battery = 0
			}
		}
		samples = append(samples, model.TrajectorySample{
			VehicleID: v.id,
			Time:      now,
			Position:  v.pos,
			Velocity:  v.vel,
		})
	}
	d.mu.Unlock()

	d.subMu.Lock()
	for _, ch := range samples {
		for _, sub := range d.subs {
			select {
			case sub <- ch:
			default:
			}
		}
	}
	d.subMu.Unlock()
}

// advance moves v toward its target by one tick at its commanded speed,
// using the same local-tangent-plane approximation the deconfliction engine
// uses for short hops.
func (d *Driver) advance(v *vehicle) {
	if v.target == nil || !v.armed {
		v.vel = model.Velocity{}
		return
	}
	dt := d.interval.Seconds()
	speed := v.speedMps
	if speed <= 0 {
		speed = DefaultCruiseSpeed
	}

	dLat := v.target.Lat - v.pos.Lat
	dLon := v.target.Lon - v.pos.Lon
	dAlt := v.target.Alt - v.pos.Alt

	// Rough metres-per-degree conversion at this latitude, consistent with
	// the engine's equirectangular approximation for short hops.
	const metersPerDegLat = 111320.0
	metersPerDegLon := metersPerDegLat // adequate for a simulator; no polar ops

	distM := math.Sqrt((dLat*metersPerDegLat)*(dLat*metersPerDegLat) + (dLon*metersPerDegLon)*(dLon*metersPerDegLon) + dAlt*dAlt)
	if distM < 0.01 {
		v.pos = *v.target
		v.target = nil
		v.vel = model.Velocity{}
		return
	}

	step := speed * dt
	if step >= distM {
		v.pos = *v.target
		v.target = nil
		v.vel = model.Velocity{}
		return
	}
	frac := step / distM
	v.pos.Lat += dLat * frac
	v.pos.Lon += dLon * frac
	v.pos.Alt += dAlt * frac
	v.vel = model.Velocity{
		Vx: (dLon * metersPerDegLon / distM) * speed,
		Vy: (dLat * metersPerDegLat / distM) * speed,
		Vz: (dAlt / distM) * speed,
	}
}

// Status returns one vehicle's current state.
func (d *Driver) Status(ctx context.Context, vehicleID string) (model.VehicleState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.vehicles[vehicleID]
	if !ok {
		return model.VehicleState{}, fmt.Errorf("%w: vehicle %q not known to simulator", coreerr.ErrVehicleUnavailable, vehicleID)
	}
	return toState(v), nil
}

// StatusAll returns every known vehicle's current state.
func (d *Driver) StatusAll() map[string]model.VehicleState {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]model.VehicleState, len(d.vehicles))
	for id, v := range d.vehicles {
		out[id] = toState(v)
	}
	return out
}

func toState(v *vehicle) model.VehicleState {
	return model.VehicleState{
		ID:       v.id,
		Position: v.pos,
		Velocity: v.vel,
		Battery:  v.battery,
		Armed:    v.armed,
		Mode:     v.mode,
	}
}

// Command applies cmd to vehicleID's simulated state.
func (d *Driver) Command(ctx context.Context, vehicleID string, cmd model.Command) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.vehicles[vehicleID]
	if !ok {
		return fmt.Errorf("%w: vehicle %q not known to simulator", coreerr.ErrVehicleUnavailable, vehicleID)
	}

	switch cmd.Type {
	case model.CommandArm:
		v.armed = true
		v.mode = "GUIDED"
	case model.CommandDisarm:
		if v.target != nil {
			return fmt.Errorf("%w: cannot disarm %q mid-mission", coreerr.ErrDriverError, vehicleID)
		}
		v.armed = false
		v.mode = "STANDBY"
	case model.CommandTakeoff:
		if !v.armed {
			return fmt.Errorf("%w: cannot take off, %q is not armed", coreerr.ErrDriverError, vehicleID)
		}
		target := v.pos
		target.Alt = cmd.Altitude
		v.target = &target
		v.mode = "GUIDED"
	case model.CommandLand:
		target := v.pos
		target.Alt = 0
		v.target = &target
		v.mode = "LAND"
	case model.CommandRTL:
		v.target = &model.Position{Lat: 0, Lon: 0, Alt: v.pos.Alt}
		v.mode = "RTL"
	case model.CommandGoto:
		v.target = &model.Position{Lat: cmd.Lat, Lon: cmd.Lon, Alt: cmd.Alt}
		v.speedMps = DefaultCruiseSpeed
		v.mode = "GUIDED"
	case model.CommandStop:
		v.target = nil
		v.vel = model.Velocity{}
		v.mode = "LOITER"
	default:
		return fmt.Errorf("%w: unknown command type %q", coreerr.ErrInvalidInput, cmd.Type)
	}
	return nil
}

// EmergencyStopAll issues STOP to every known vehicle.
func (d *Driver) EmergencyStopAll(ctx context.Context) []error {
	d.mu.Lock()
	ids := make([]string, 0, len(d.vehicles))
	for id := range d.vehicles {
		ids = append(ids, id)
	}
	d.mu.Unlock()

	var errs []error
	for _, id := range ids {
		if err := d.Command(ctx, id, model.Command{Type: model.CommandStop}); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// Subscribe returns a fresh telemetry channel fed by every tick.
func (d *Driver) Subscribe() (<-chan model.TrajectorySample, func()) {
	d.subMu.Lock()
	id := d.nextS
	d.nextS++
	ch := make(chan model.TrajectorySample, 16)
	d.subs[id] = ch
	d.subMu.Unlock()

	cancel := func() {
		d.subMu.Lock()
		delete(d.subs, id)
		d.subMu.Unlock()
	}
	return ch, cancel
}
