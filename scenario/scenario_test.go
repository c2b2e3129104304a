package scenario

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/cepro/cersim/config"
	"github.com/cepro/cersim/engine"
	"github.com/cepro/cersim/inverter"
	"github.com/cepro/cersim/oracle"
	"github.com/cepro/cersim/simerrors"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(nopWriter{}, nil))
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func pureLoadConfig() config.Config {
	return config.Config{
		TimestepMinutes: 30,
		Steps:           4,
		StartTime:       time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Loads: []config.LoadConfig{
			{Label: "l1", PowerFactor: 0.98, MeterLabel: "site"},
		},
		Meters: []config.MeterConfig{
			{Label: "site", Loads: []string{"l1"}},
		},
	}
}

func TestBuildPureLoadScenario(t *testing.T) {
	cfg := pureLoadConfig()
	input := InputData{
		DemandKW:     map[string][]float64{"l1": {1, 2, 3, 4}},
		IrradiancePU: make([]float64, 4),
		AmbientTempC: make([]float64, 4),
	}

	ora := oracle.NewMock(1.0)
	d, err := Build(cfg, input, ora, discardLogger())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(d.Registers.Steps) != 4 {
		t.Fatalf("len(Steps) = %d, want 4", len(d.Registers.Steps))
	}
	for i, step := range d.Registers.Steps {
		if !step.Converged {
			t.Errorf("step %d: expected convergence for a pure-load scenario at fixed voltage", i)
		}
		want := float64(i + 1)
		if got := step.Totals.ActivePowerKW; got != want {
			t.Errorf("step %d: Totals.ActivePowerKW = %v, want %v", i, got, want)
		}
	}
	if !d.EventLog.Empty() {
		t.Errorf("expected no non-fatal events for a pure-load scenario")
	}
}

func TestBuildRejectsMissingDemandSeries(t *testing.T) {
	cfg := pureLoadConfig()
	input := InputData{
		IrradiancePU: make([]float64, 4),
		AmbientTempC: make([]float64, 4),
	}

	_, err := Build(cfg, input, oracle.NewMock(1.0), discardLogger())
	if err == nil {
		t.Fatalf("expected error for missing demand series")
	}
	var mismatch *simerrors.InputMismatchError
	if !asInputMismatch(err, &mismatch) {
		t.Fatalf("expected *simerrors.InputMismatchError, got %T: %v", err, err)
	}
}

func asInputMismatch(err error, target **simerrors.InputMismatchError) bool {
	im, ok := err.(*simerrors.InputMismatchError)
	if ok {
		*target = im
	}
	return ok
}

func TestBuildRejectsShortIrradianceSeries(t *testing.T) {
	cfg := pureLoadConfig()
	input := InputData{
		DemandKW:     map[string][]float64{"l1": {1, 2, 3, 4}},
		IrradiancePU: make([]float64, 2),
		AmbientTempC: make([]float64, 4),
	}

	if _, err := Build(cfg, input, oracle.NewMock(1.0), discardLogger()); err == nil {
		t.Fatalf("expected error for short irradiance series")
	}
}

func TestBuildRejectsMeterReferencingUnknownCER(t *testing.T) {
	cfg := pureLoadConfig()
	cfg.Meters[0].Loads = append(cfg.Meters[0].Loads, "ghost")
	input := InputData{
		DemandKW:     map[string][]float64{"l1": {1, 2, 3, 4}},
		IrradiancePU: make([]float64, 4),
		AmbientTempC: make([]float64, 4),
	}

	if _, err := Build(cfg, input, oracle.NewMock(1.0), discardLogger()); err == nil {
		t.Fatalf("expected error for a meter referencing an unknown CER label")
	}
}

func TestRunRecordsOracleErrorAndContinues(t *testing.T) {
	cfg := pureLoadConfig()
	input := InputData{
		DemandKW:     map[string][]float64{"l1": {1, 2, 3, 4}},
		IrradiancePU: make([]float64, 4),
		AmbientTempC: make([]float64, 4),
	}

	ora := oracle.NewMock(1.0)
	calls := 0
	// Fail the very first Solve only, simulating a transient oracle error the driver recovers from.
	shim := &failFirstOracle{Mock: ora, calls: &calls}

	d, err := Build(cfg, input, shim, discardLogger())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(d.EventLog.OracleErrors) != 1 {
		t.Fatalf("len(OracleErrors) = %d, want 1", len(d.EventLog.OracleErrors))
	}
	if len(d.Registers.Steps) != cfg.Steps-1 {
		t.Fatalf("len(Steps) = %d, want %d (one timestep skipped)", len(d.Registers.Steps), cfg.Steps-1)
	}
}

// failFirstOracle wraps an oracle.Mock and fails only the first Solve call.
type failFirstOracle struct {
	*oracle.Mock
	calls *int
}

func (f *failFirstOracle) Solve() error {
	*f.calls++
	if *f.calls == 1 {
		return errSingular
	}
	return f.Mock.Solve()
}

var errSingular = &mockSolveError{}

type mockSolveError struct{}

func (e *mockSolveError) Error() string { return "singular matrix" }

// A timestep that hits the iteration cap is non-fatal: the run completes, the step is still
// recorded, and the event log carries one non-convergence per affected timestep.
func TestRunRecordsNonConvergence(t *testing.T) {
	cfg := pureLoadConfig()
	cfg.Steps = 2
	vw := inverter.DefaultVoltWattCurve()
	cfg.PVSystems = []config.PVSystemConfig{{
		Label:      "pv1",
		Panel:      config.PanelConfig{PeakPowerKW: 7.2},
		Capability: config.CapabilityConfig{RatedKVA: 6.0},
		Policy:     config.PolicyConfig{VoltWatt: vw.Points},
		MeterLabel: "site",
	}}
	cfg.Meters[0].PVSystems = []string{"pv1"}

	input := InputData{
		DemandKW:     map[string][]float64{"l1": {1, 1}},
		IrradiancePU: []float64{1, 1},
		AmbientTempC: []float64{25, 25},
	}

	ora := oracle.NewMock(1.0)
	flips := map[uuid.UUID]bool{}
	// Every CER's voltage alternates between two values on each solve, so the voltage tolerance
	// can never be met.
	ora.VoltageFunc = func(id uuid.UUID, pKW, qKVAr float64) float64 {
		flips[id] = !flips[id]
		if flips[id] {
			return 1.09
		}
		return 1.01
	}

	d, err := Build(cfg, input, ora, discardLogger())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(d.Registers.Steps) != 2 {
		t.Fatalf("len(Steps) = %d, want 2 (non-convergence is non-fatal)", len(d.Registers.Steps))
	}
	if len(d.EventLog.NonConvergences) != 2 {
		t.Fatalf("len(NonConvergences) = %d, want 2", len(d.EventLog.NonConvergences))
	}
	if got := d.EventLog.NonConvergences[0].Iterations; got != engine.DefaultMaxIterations {
		t.Errorf("recorded iterations = %d, want the cap %d", got, engine.DefaultMaxIterations)
	}
}
