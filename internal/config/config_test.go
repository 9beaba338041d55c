package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	c := Default()
	if c.SafetyBufferM != 10.0 {
		t.Fatalf("expected SafetyBufferM=10.0, got %v", c.SafetyBufferM)
	}
	if c.MaxDrones != 10 {
		t.Fatalf("expected MaxDrones=10, got %v", c.MaxDrones)
	}
	if c.StoreDriver != "memory" {
		t.Fatalf("expected StoreDriver=memory, got %q", c.StoreDriver)
	}
}

func TestRegisterFlags_DefaultsSurviveParse(t *testing.T) {
	c := Default()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.RegisterFlags(fs)
	if err := fs.Parse(nil); err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if c.UpdateHz != 2.0 {
		t.Fatalf("expected UpdateHz=2.0 unchanged, got %v", c.UpdateHz)
	}
}

func TestRegisterFlags_OverridesApply(t *testing.T) {
	c := Default()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.RegisterFlags(fs)
	if err := fs.Parse([]string{"-safety-buffer-m=25", "-max-drones=50", "-store=sqlite"}); err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if c.SafetyBufferM != 25 {
		t.Fatalf("expected SafetyBufferM=25, got %v", c.SafetyBufferM)
	}
	if c.MaxDrones != 50 {
		t.Fatalf("expected MaxDrones=50, got %v", c.MaxDrones)
	}
	if c.StoreDriver != "sqlite" {
		t.Fatalf("expected StoreDriver=sqlite, got %q", c.StoreDriver)
	}
}

func TestDeconflictionParams_Derivation(t *testing.T) {
	c := Default()
	p := c.DeconflictionParams()
	if p.SafetyBufferM != c.SafetyBufferM {
		t.Fatalf("expected SafetyBufferM to round-trip, got %v", p.SafetyBufferM)
	}
	if p.Resolution != 500*time.Millisecond {
		t.Fatalf("expected Resolution=500ms, got %v", p.Resolution)
	}
	if p.ProjectionHorizon != 30*time.Second {
		t.Fatalf("expected ProjectionHorizon=30s, got %v", p.ProjectionHorizon)
	}
}

func TestBroadcastInterval_DerivedFromHz(t *testing.T) {
	c := Default()
	c.UpdateHz = 4.0
	if got := c.BroadcastInterval(); got != 250*time.Millisecond {
		t.Fatalf("expected 250ms at 4Hz, got %v", got)
	}
}

func TestBroadcastInterval_ZeroHzFallsBackToDefault(t *testing.T) {
	c := Default()
	c.UpdateHz = 0
	if got := c.BroadcastInterval(); got <= 0 {
		t.Fatalf("expected a positive fallback interval, got %v", got)
	}
}

func TestTrajectoryRetention_Derivation(t *testing.T) {
	c := Default()
	if got := c.TrajectoryRetention(); got != time.Hour {
		t.Fatalf("expected 1h at trajectory_retention_s=3600, got %v", got)
	}
}

func TestShutdownDeadline_Derivation(t *testing.T) {
	c := Default()
	if got := c.ShutdownDeadline(); got != 5*time.Second {
		t.Fatalf("expected 5s default shutdown deadline, got %v", got)
	}
}

func TestLoadFile_OverlaysOnlyPresentFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"safety_buffer_m": 15, "max_drones": 25}`), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	c := Default()
	if err := c.LoadFile(path); err != nil {
		t.Fatalf("unexpected LoadFile error: %v", err)
	}
	if c.SafetyBufferM != 15 {
		t.Fatalf("expected SafetyBufferM=15, got %v", c.SafetyBufferM)
	}
	if c.MaxDrones != 25 {
		t.Fatalf("expected MaxDrones=25, got %v", c.MaxDrones)
	}
	if c.UpdateHz != 2.0 {
		t.Fatalf("expected UpdateHz to keep its default of 2.0, got %v", c.UpdateHz)
	}
}

func TestLoadFile_MissingFileReturnsError(t *testing.T) {
	c := Default()
	if err := c.LoadFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestApplyEnv_OverridesSetFields(t *testing.T) {
	t.Setenv("COORDINATOR_SAFETY_BUFFER_M", "12.5")
	t.Setenv("COORDINATOR_STORE", "sqlite")

	c := Default()
	if err := c.ApplyEnv(); err != nil {
		t.Fatalf("unexpected ApplyEnv error: %v", err)
	}
	if c.SafetyBufferM != 12.5 {
		t.Fatalf("expected SafetyBufferM=12.5, got %v", c.SafetyBufferM)
	}
	if c.StoreDriver != "sqlite" {
		t.Fatalf("expected StoreDriver=sqlite, got %q", c.StoreDriver)
	}
}

func TestApplyEnv_InvalidValueReturnsError(t *testing.T) {
	t.Setenv("COORDINATOR_MAX_DRONES", "not-a-number")
	c := Default()
	if err := c.ApplyEnv(); err == nil {
		t.Fatal("expected an error for a non-numeric COORDINATOR_MAX_DRONES")
	}
}

func TestValidate_RejectsNonPositiveSafetyBuffer(t *testing.T) {
	c := Default()
	c.SafetyBufferM = 0
	if err := c.Validate(); err == nil {
		t.Fatal("expected an error for a zero safety buffer")
	}
}

func TestValidate_RejectsNonPositiveShutdownDeadline(t *testing.T) {
	c := Default()
	c.ShutdownDeadlineS = 0
	if err := c.Validate(); err == nil {
		t.Fatal("expected an error for a zero shutdown deadline")
	}
}

func TestValidate_RejectsUnknownStoreDriver(t *testing.T) {
	c := Default()
	c.StoreDriver = "postgres"
	if err := c.Validate(); err == nil {
		t.Fatal("expected an error for an unsupported store driver")
	}
}

func TestValidate_AcceptsDefaults(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("expected defaults to validate cleanly, got %v", err)
	}
}

func TestFleetIDs_SplitsAndTrims(t *testing.T) {
	c := Default()
	c.FleetIDsCSV = " D1, D2 ,D3,,D4 "
	got := c.FleetIDs()
	want := []string{"D1", "D2", "D3", "D4"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestValidate_RejectsEmptyFleet(t *testing.T) {
	c := Default()
	c.FleetIDsCSV = ""
	if err := c.Validate(); err == nil {
		t.Fatal("expected an error for an empty fleet")
	}
}

func TestValidate_RejectsFleetExceedingMaxDrones(t *testing.T) {
	c := Default()
	c.MaxDrones = 2
	c.FleetIDsCSV = "D1,D2,D3"
	if err := c.Validate(); err == nil {
		t.Fatal("expected an error when fleet size exceeds max_drones")
	}
}
