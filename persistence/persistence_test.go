package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/cepro/cersim/eventlog"
	"github.com/cepro/cersim/oracle"
	"github.com/cepro/cersim/results"
)

func TestSaveAndLoadScenarioRoundTrips(t *testing.T) {
	store, err := New(":memory:")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	scenarioID := uuid.New()

	reg := results.New(0.5)
	reg.Append(results.TimestepResult{
		Timestep: 0,
		Time:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Totals:   oracle.Totals{ActivePowerKW: 3.5},
		Converged: true,
		Iterations: 4,
	})

	log := eventlog.New()
	log.RecordNonConvergence(1, time.Date(2026, 1, 1, 0, 30, 0, 0, time.UTC), 300, 0.002)
	log.RecordOracleError(2, time.Date(2026, 1, 1, 1, 0, 0, 0, time.UTC), errors.New("singular matrix"))

	ctx := context.Background()
	if err := store.SaveScenario(ctx, scenarioID, reg, log); err != nil {
		t.Fatalf("SaveScenario: %v", err)
	}

	steps, events, err := store.LoadScenario(ctx, scenarioID)
	if err != nil {
		t.Fatalf("LoadScenario: %v", err)
	}
	if len(steps) != 1 {
		t.Fatalf("len(steps) = %d, want 1", len(steps))
	}
	if steps[0].ActivePowerKW != 3.5 {
		t.Fatalf("ActivePowerKW = %v, want 3.5", steps[0].ActivePowerKW)
	}
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}
}

func TestLoadScenarioUnknownIDReturnsEmpty(t *testing.T) {
	store, err := New(":memory:")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	steps, events, err := store.LoadScenario(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("LoadScenario: %v", err)
	}
	if len(steps) != 0 || len(events) != 0 {
		t.Fatalf("expected empty results for unknown scenario ID")
	}
}
