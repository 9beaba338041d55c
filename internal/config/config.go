// Package config holds the coordination service's tunable parameters.
package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/signalsfoundry/uav-coordinator/core"
)

// Config bundles every tunable the coordination service exposes, each with
// the production default used when a flag is left unset.
type Config struct {
	SafetyBufferM         float64 `json:"safety_buffer_m"`
	UpdateHz              float64 `json:"update_hz"` // broadcaster/monitor tick rate
	TrajectoryRetentionS  int     `json:"trajectory_retention_s"`
	ProjectionHorizonS    float64 `json:"projection_horizon_s"`
	DedupReminderS        float64 `json:"dedup_reminder_s"`
	DedupClearS           float64 `json:"dedup_clear_s"`
	DeconflictResolutionS float64 `json:"deconflict_resolution_s"` // Δ
	MaxCruiseSpeedMps     float64 `json:"max_cruise_speed_mps"`
	AltitudeFloorM        float64 `json:"altitude_floor_m"`
	DriverCommandTimeoutS float64 `json:"driver_command_timeout_s"`
	MaxDrones             int     `json:"max_drones"`
	ShutdownDeadlineS     float64 `json:"shutdown_deadline_s"`

	HTTPAddr    string `json:"http_addr"`
	MetricsAddr string `json:"metrics_addr"`
	StoreDriver string `json:"store"` // "memory" | "sqlite"
	SQLitePath  string `json:"sqlite_path"`

	// FleetIDsCSV lists the vehicle IDs the fleet driver discovers at
	// startup, comma-separated; see FleetIDs.
	FleetIDsCSV string `json:"fleet_ids"`
}

// Default returns the service's production configuration defaults.
func Default() Config {
	return Config{
		SafetyBufferM:         10.0,
		UpdateHz:              2.0,
		TrajectoryRetentionS:  3600,
		ProjectionHorizonS:    30.0,
		DedupReminderS:        5.0,
		DedupClearS:           3.0,
		DeconflictResolutionS: 0.5,
		MaxCruiseSpeedMps:     20.0,
		AltitudeFloorM:        2.0,
		DriverCommandTimeoutS: 15.0,
		MaxDrones:             10,
		ShutdownDeadlineS:     5.0,
		HTTPAddr:              ":8080",
		MetricsAddr:           ":9090",
		StoreDriver:           "memory",
		SQLitePath:            "coordinator.db",
		FleetIDsCSV:           "D1,D2,D3,D4",
	}
}

// RegisterFlags binds c's fields to flag.CommandLine (or fs, if provided),
// each defaulting to the value already in c. Call Default() first to get
// production defaults, then RegisterFlags, then fs.Parse.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	if fs == nil {
		fs = flag.CommandLine
	}
	fs.Float64Var(&c.SafetyBufferM, "safety-buffer-m", c.SafetyBufferM, "minimum separation between vehicles, in metres")
	fs.Float64Var(&c.UpdateHz, "update-hz", c.UpdateHz, "broadcaster and live monitor tick rate, in Hz")
	fs.IntVar(&c.TrajectoryRetentionS, "trajectory-retention-s", c.TrajectoryRetentionS, "seconds of trajectory history kept in memory per vehicle")
	fs.Float64Var(&c.ProjectionHorizonS, "projection-horizon-s", c.ProjectionHorizonS, "seconds of forward live-telemetry projection for mixed conflicts")
	fs.Float64Var(&c.DedupReminderS, "dedup-reminder-s", c.DedupReminderS, "seconds between reminder alerts for an ongoing live conflict")
	fs.Float64Var(&c.DedupClearS, "dedup-clear-s", c.DedupClearS, "seconds a pair must stay clear before a live conflict is cleared")
	fs.Float64Var(&c.DeconflictResolutionS, "deconflict-resolution-s", c.DeconflictResolutionS, "sampling resolution for deconfliction evaluation, in seconds")
	fs.Float64Var(&c.MaxCruiseSpeedMps, "max-cruise-speed-mps", c.MaxCruiseSpeedMps, "maximum accepted cruise speed, in metres/second")
	fs.Float64Var(&c.AltitudeFloorM, "altitude-floor-m", c.AltitudeFloorM, "minimum accepted altitude, in metres")
	fs.Float64Var(&c.DriverCommandTimeoutS, "driver-command-timeout-s", c.DriverCommandTimeoutS, "deadline for a single driver command, in seconds")
	fs.IntVar(&c.MaxDrones, "max-drones", c.MaxDrones, "maximum number of distinct vehicle IDs the fleet accepts")
	fs.Float64Var(&c.ShutdownDeadlineS, "shutdown-deadline-s", c.ShutdownDeadlineS, "seconds to wait for mission cancellation and driver stop during shutdown before proceeding regardless")

	fs.StringVar(&c.HTTPAddr, "http-addr", c.HTTPAddr, "HTTP address for the REST/WebSocket API")
	fs.StringVar(&c.MetricsAddr, "metrics-addr", c.MetricsAddr, "HTTP address for Prometheus /metrics")
	fs.StringVar(&c.StoreDriver, "store", c.StoreDriver, `persistence backend: "memory" or "sqlite"`)
	fs.StringVar(&c.SQLitePath, "sqlite-path", c.SQLitePath, "filesystem path for the sqlite store, when -store=sqlite")
	fs.StringVar(&c.FleetIDsCSV, "fleet-ids", c.FleetIDsCSV, "comma-separated list of vehicle IDs the fleet driver discovers at startup")
}

// FleetIDs splits FleetIDsCSV into individual vehicle IDs, trimming
// whitespace and dropping empty entries.
func (c Config) FleetIDs() []string {
	var ids []string
	for _, raw := range strings.Split(c.FleetIDsCSV, ",") {
		id := strings.TrimSpace(raw)
		if id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// DeconflictionParams derives the core engine's tunables from c.
func (c Config) DeconflictionParams() core.DeconflictionParams {
	return core.DeconflictionParams{
		SafetyBufferM:     c.SafetyBufferM,
		Resolution:        durationFromSeconds(c.DeconflictResolutionS),
		ProjectionHorizon: durationFromSeconds(c.ProjectionHorizonS),
		MaxCruiseSpeedMps: c.MaxCruiseSpeedMps,
		AltitudeFloorM:    c.AltitudeFloorM,
		StalenessBound:    2 * time.Second,
	}
}

// BroadcastInterval derives the broadcaster/monitor tick period from UpdateHz.
func (c Config) BroadcastInterval() time.Duration {
	if c.UpdateHz <= 0 {
		return core.DefaultBroadcastInterval
	}
	return durationFromSeconds(1.0 / c.UpdateHz)
}

// ReminderInterval derives the live monitor's reminder cadence.
func (c Config) ReminderInterval() time.Duration {
	return durationFromSeconds(c.DedupReminderS)
}

// ClearGap derives the live monitor's conflict-clear cadence.
func (c Config) ClearGap() time.Duration {
	return durationFromSeconds(c.DedupClearS)
}

// TrajectoryRetention derives the trajectory store's retention window.
func (c Config) TrajectoryRetention() time.Duration {
	return time.Duration(c.TrajectoryRetentionS) * time.Second
}

// DriverCommandTimeout derives the per-command deadline driver adapters use.
func (c Config) DriverCommandTimeout() time.Duration {
	return durationFromSeconds(c.DriverCommandTimeoutS)
}

// ShutdownDeadline derives how long shutdown waits for mission cancellation
// and driver stop commands before proceeding regardless.
func (c Config) ShutdownDeadline() time.Duration {
	return durationFromSeconds(c.ShutdownDeadlineS)
}

func durationFromSeconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// LoadFile reads a JSON defaults file and overlays it onto c. Fields absent
// from the file keep their current value, so the usual call order is
// Default() -> LoadFile() -> ApplyEnv() -> RegisterFlags() -> fs.Parse().
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// envOverrides maps each COORDINATOR_* environment variable to the setter
// that applies it, matching internal/observability/tracing.go's
// COORDINATOR_TRACING_* naming convention.
func (c *Config) envOverrides() map[string]func(string) error {
	return map[string]func(string) error{
		"COORDINATOR_SAFETY_BUFFER_M":          floatSetter(&c.SafetyBufferM),
		"COORDINATOR_UPDATE_HZ":                floatSetter(&c.UpdateHz),
		"COORDINATOR_TRAJECTORY_RETENTION_S":   intSetter(&c.TrajectoryRetentionS),
		"COORDINATOR_PROJECTION_HORIZON_S":     floatSetter(&c.ProjectionHorizonS),
		"COORDINATOR_DEDUP_REMINDER_S":         floatSetter(&c.DedupReminderS),
		"COORDINATOR_DEDUP_CLEAR_S":            floatSetter(&c.DedupClearS),
		"COORDINATOR_DECONFLICT_RESOLUTION_S":  floatSetter(&c.DeconflictResolutionS),
		"COORDINATOR_MAX_CRUISE_SPEED_MPS":     floatSetter(&c.MaxCruiseSpeedMps),
		"COORDINATOR_ALTITUDE_FLOOR_M":         floatSetter(&c.AltitudeFloorM),
		"COORDINATOR_DRIVER_COMMAND_TIMEOUT_S": floatSetter(&c.DriverCommandTimeoutS),
		"COORDINATOR_MAX_DRONES":               intSetter(&c.MaxDrones),
		"COORDINATOR_SHUTDOWN_DEADLINE_S":      floatSetter(&c.ShutdownDeadlineS),
		"COORDINATOR_HTTP_ADDR":                stringSetter(&c.HTTPAddr),
		"COORDINATOR_METRICS_ADDR":             stringSetter(&c.MetricsAddr),
		"COORDINATOR_STORE":                    stringSetter(&c.StoreDriver),
		"COORDINATOR_SQLITE_PATH":              stringSetter(&c.SQLitePath),
		"COORDINATOR_FLEET_IDS":                stringSetter(&c.FleetIDsCSV),
	}
}

// ApplyEnv overlays any set COORDINATOR_* environment variables onto c.
func (c *Config) ApplyEnv() error {
	for name, set := range c.envOverrides() {
		v, ok := os.LookupEnv(name)
		if !ok {
			continue
		}
		if err := set(v); err != nil {
			return fmt.Errorf("env %s: %w", name, err)
		}
	}
	return nil
}

func floatSetter(dst *float64) func(string) error {
	return func(v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*dst = f
		return nil
	}
}

func intSetter(dst *int) func(string) error {
	return func(v string) error {
		i, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst = i
		return nil
	}
}

func stringSetter(dst *string) func(string) error {
	return func(v string) error {
		*dst = v
		return nil
	}
}

// Validate rejects a configuration with out-of-range tunables. A non-nil
// error from Validate should cause the process to exit with status 2.
func (c Config) Validate() error {
	switch {
	case c.SafetyBufferM <= 0:
		return fmt.Errorf("safety_buffer_m must be positive, got %v", c.SafetyBufferM)
	case c.UpdateHz <= 0:
		return fmt.Errorf("update_hz must be positive, got %v", c.UpdateHz)
	case c.TrajectoryRetentionS <= 0:
		return fmt.Errorf("trajectory_retention_s must be positive, got %v", c.TrajectoryRetentionS)
	case c.ProjectionHorizonS <= 0:
		return fmt.Errorf("projection_horizon_s must be positive, got %v", c.ProjectionHorizonS)
	case c.DeconflictResolutionS <= 0:
		return fmt.Errorf("deconflict_resolution_s must be positive, got %v", c.DeconflictResolutionS)
	case c.MaxCruiseSpeedMps <= 0:
		return fmt.Errorf("max_cruise_speed_mps must be positive, got %v", c.MaxCruiseSpeedMps)
	case c.MaxDrones <= 0:
		return fmt.Errorf("max_drones must be positive, got %v", c.MaxDrones)
	case c.ShutdownDeadlineS <= 0:
		return fmt.Errorf("shutdown_deadline_s must be positive, got %v", c.ShutdownDeadlineS)
	case c.StoreDriver != "memory" && c.StoreDriver != "sqlite":
		return fmt.Errorf(`store must be "memory" or "sqlite", got %q`, c.StoreDriver)
	case len(c.FleetIDs()) == 0:
		return fmt.Errorf("fleet_ids must name at least one vehicle, got %q", c.FleetIDsCSV)
	case len(c.FleetIDs()) > c.MaxDrones:
		return fmt.Errorf("fleet_ids names %d vehicles, exceeding max_drones=%d", len(c.FleetIDs()), c.MaxDrones)
	default:
		return nil
	}
}
