package model

import "time"

// ConflictKind classifies what was compared to detect a Conflict.
type ConflictKind string

const (
	// ConflictLive is two vehicles' current live positions below the buffer.
	ConflictLive ConflictKind = "LIVE"
	// ConflictPlanned is two planned segments' closest approach below the buffer.
	ConflictPlanned ConflictKind = "PLANNED"
	// ConflictMixed is a planned segment against a live-velocity projection.
	ConflictMixed ConflictKind = "MIXED"
	// ConflictVehicleExclusivity is a non-spatial conflict: the same vehicle
	// already has an overlapping SCHEDULED or RUNNING mission.
	ConflictVehicleExclusivity ConflictKind = "VEHICLE_EXCLUSIVITY"
	// ConflictAltitude is a non-spatial advisory conflict for a plan that
	// dips below the altitude floor.
	ConflictAltitude ConflictKind = "ALTITUDE"
)

// Severity buckets a spatial conflict by how far below the buffer the
// minimum separation fell.
type Severity string

const (
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
	SeverityAdvisory Severity = "ADVISORY"
)

// Conflict records one detected spatio-temporal or administrative conflict
// between two vehicles, or one vehicle against itself: for exclusivity
// conflicts VehicleB repeats VehicleA, and for altitude conflicts VehicleB is
// empty.
type Conflict struct {
	Kind        ConflictKind `json:"kind"`
	VehicleA    string       `json:"vehicle_a"`
	VehicleB    string       `json:"vehicle_b,omitempty"`
	Start       time.Time    `json:"start"`
	End         time.Time    `json:"end"`
	MinDistance float64      `json:"min_distance"` // metres; 0 for non-spatial kinds
	Severity    Severity     `json:"severity"`
}
