package model

import "time"

// Snapshot is a point-in-time composition of per-vehicle state and current
// conflicts, fanned out to subscribers by the broadcaster.
type Snapshot struct {
	ServerTime time.Time      `json:"timestamp"`
	Vehicles   []VehicleState `json:"drones"`
	Conflicts  []Conflict     `json:"conflicts"`
	UpdateID   uint64         `json:"update_id"`
}
