// core/geo.go
package core

import (
	"math"
	"time"

	"github.com/signalsfoundry/uav-coordinator/model"
)

// EarthRadiusM is the mean Earth radius used for geodetic distance
// calculations (metres).
const EarthRadiusM = 6371000.0

// localDistanceThresholdM is the inter-point distance below which the
// equirectangular local-tangent-plane approximation is used instead of
// Haversine. Implementations MUST agree on this threshold to keep sampled
// conflict windows deterministic across the fleet's expected ~10 km scale.
const localDistanceThresholdM = 10000.0

// HorizontalDistance returns the great-circle distance in metres between two
// geodetic positions, ignoring altitude. Points within localDistanceThresholdM
// use an equirectangular local-tangent-plane approximation; farther pairs use
// the exact Haversine form.
func HorizontalDistance(a, b model.Position) float64 {
	if d := equirectangularDistance(a, b); d < localDistanceThresholdM {
		return d
	}
	return haversineDistance(a, b)
}

// Distance3D returns the 3-D Euclidean separation between two positions: the
// horizontal great-circle distance combined with the pure vertical
// (altitude) component.
func Distance3D(a, b model.Position) float64 {
	h := HorizontalDistance(a, b)
	v := a.Alt - b.Alt
	return math.Sqrt(h*h + v*v)
}

func equirectangularDistance(a, b model.Position) float64 {
	latRad := degToRad((a.Lat + b.Lat) / 2)
	dLat := degToRad(b.Lat - a.Lat)
	dLon := degToRad(b.Lon - a.Lon)

	x := dLon * math.Cos(latRad)
	y := dLat
	return EarthRadiusM * math.Sqrt(x*x+y*y)
}

func haversineDistance(a, b model.Position) float64 {
	lat1 := degToRad(a.Lat)
	lat2 := degToRad(b.Lat)
	dLat := degToRad(b.Lat - a.Lat)
	dLon := degToRad(b.Lon - a.Lon)

	sinDLat := math.Sin(dLat / 2)
	sinDLon := math.Sin(dLon / 2)
	h := sinDLat*sinDLat + math.Cos(lat1)*math.Cos(lat2)*sinDLon*sinDLon
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusM * c
}

func degToRad(d float64) float64 { return d * math.Pi / 180.0 }

// legLengths returns the horizontal length of each leg of the plan (between
// consecutive waypoints), and the total path length.
func legLengths(plan model.Plan) (legs []float64, total float64) {
	wps := plan.Waypoints
	legs = make([]float64, 0, maxInt(len(wps)-1, 0))
	for i := 1; i < len(wps); i++ {
		a := model.Position{Lat: wps[i-1].Lat, Lon: wps[i-1].Lon}
		b := model.Position{Lat: wps[i].Lat, Lon: wps[i].Lon}
		l := HorizontalDistance(a, b)
		legs = append(legs, l)
		total += l
	}
	return legs, total
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// PositionAt returns the equal-speed-per-leg interpolated position of a
// PlannedSegment at time t. If t falls outside [StartTime, EndTime], the
// nearest endpoint is returned.
func PositionAt(seg model.PlannedSegment, t time.Time) model.Position {
	wps := seg.Plan.Waypoints
	if len(wps) == 0 {
		return model.Position{}
	}
	if len(wps) == 1 {
		return model.Position{Lat: wps[0].Lat, Lon: wps[0].Lon, Alt: wps[0].Alt}
	}

	if !t.After(seg.StartTime) {
		return model.Position{Lat: wps[0].Lat, Lon: wps[0].Lon, Alt: wps[0].Alt}
	}
	last := wps[len(wps)-1]
	if !t.Before(seg.EndTime) {
		return model.Position{Lat: last.Lat, Lon: last.Lon, Alt: last.Alt}
	}

	legs, total := legLengths(seg.Plan)
	if total == 0 {
		return model.Position{Lat: wps[0].Lat, Lon: wps[0].Lon, Alt: wps[0].Alt}
	}

	duration := seg.EndTime.Sub(seg.StartTime).Seconds()
	if duration <= 0 {
		return model.Position{Lat: wps[0].Lat, Lon: wps[0].Lon, Alt: wps[0].Alt}
	}
	speed := total / duration
	consumed := speed * t.Sub(seg.StartTime).Seconds()
	if consumed < 0 {
		consumed = 0
	}

	walked := 0.0
	for i, legLen := range legs {
		if consumed <= walked+legLen || i == len(legs)-1 {
			var frac float64
			if legLen > 0 {
				frac = (consumed - walked) / legLen
			}
			if frac < 0 {
				frac = 0
			}
			if frac > 1 {
				frac = 1
			}
			a, b := wps[i], wps[i+1]
			return model.Position{
				Lat: a.Lat + (b.Lat-a.Lat)*frac,
				Lon: a.Lon + (b.Lon-a.Lon)*frac,
				Alt: a.Alt + (b.Alt-a.Alt)*frac,
			}
		}
		walked += legLen
	}

	return model.Position{Lat: last.Lat, Lon: last.Lon, Alt: last.Alt}
}

// ProjectConstantVelocity extrapolates a live vehicle's position forward by
// d assuming its current velocity holds constant, used to build MIXED
// conflict candidates from vehicles with no active mission.
func ProjectConstantVelocity(state model.VehicleState, d time.Duration) model.Position {
	secs := d.Seconds()
	// Convert local-frame velocity (m/s) to a lat/lon delta via the same
	// local-tangent-plane approximation used for distance.
	latRad := degToRad(state.Position.Lat)
	dLat := (state.Velocity.Vy * secs) / EarthRadiusM
	dLon := (state.Velocity.Vx * secs) / (EarthRadiusM * math.Cos(latRad))

	return model.Position{
		Lat: state.Position.Lat + dLat*180.0/math.Pi,
		Lon: state.Position.Lon + dLon*180.0/math.Pi,
		Alt: state.Position.Alt + state.Velocity.Vz*secs,
	}
}
