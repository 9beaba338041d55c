package model

import "time"

// FlightMode is a free-form autopilot mode tag reported by the driver
// (e.g. "GUIDED", "LOITER", "RTL").
type FlightMode string

// Position is a geodetic position with altitude above ground level.
type Position struct {
	Lat float64 `json:"lat"` // degrees
	Lon float64 `json:"lon"` // degrees
	Alt float64 `json:"alt"` // metres AGL
}

// Velocity is a local-frame velocity in metres per second.
type Velocity struct {
	Vx float64 `json:"vx"`
	Vy float64 `json:"vy"`
	Vz float64 `json:"vz"`
}

// VehicleState is the live kinematic and health state of one vehicle, as
// reported by the fleet driver.
type VehicleState struct {
	ID       string     `json:"drone_id"`
	Position Position   `json:"position"`
	Velocity Velocity   `json:"velocity"`
	Battery  float64    `json:"battery"` // fraction [0,1]
	Armed    bool       `json:"armed"`
	Mode     FlightMode `json:"mode"`
}

// Vehicle is a fleet member discovered at startup. It never disappears while
// the process runs; Online reflects whether the driver currently reports it.
type Vehicle struct {
	ID     string `json:"drone_id"`
	Name   string `json:"name"`
	Online bool   `json:"online"`
}

// TrajectorySample is one timestamped position/velocity observation for a
// vehicle, either reported live by the driver or recorded for a planned
// segment evaluation.
type TrajectorySample struct {
	VehicleID string    `json:"drone_id"`
	Time      time.Time `json:"timestamp"`
	Position  Position  `json:"position"`
	Velocity  Velocity  `json:"velocity"`
}
