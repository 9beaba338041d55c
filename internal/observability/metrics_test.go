package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewAPICollector_RegistersWithoutError(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewAPICollector(reg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c.IncAdmissions()
	c.IncRejections()
	c.SetFleetCounts(3, 1, 2)

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("unexpected error gathering metrics: %v", err)
	}
	if len(metrics) == 0 {
		t.Fatal("expected at least one registered metric family")
	}
}

func TestNewAPICollector_ReuseOnDoubleRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewAPICollector(reg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := NewAPICollector(reg); err != nil {
		t.Fatalf("expected second registration against the same registerer to reuse collectors, got: %v", err)
	}
}

func TestNewDeconflictionCollector_RegistersWithoutError(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewDeconflictionCollector(reg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c.SetQueueDepth(4)
	c.IncConflict("PLANNED", "WARNING")
	if c.Gatherer() == nil {
		t.Fatal("expected a non-nil gatherer")
	}
}
