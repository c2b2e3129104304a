package engine

import (
	"math"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/cepro/cersim/battery"
	"github.com/cepro/cersim/cer"
	"github.com/cepro/cersim/inverter"
	"github.com/cepro/cersim/oracle"
)

func TestStepPureLoadConvergesFirstIteration(t *testing.T) {
	load := cer.NewLoad("l1", 0.98)
	ora := oracle.NewMock(1.0)
	eng := New([]cer.CER{load}, ora, DefaultTolerances(), DefaultRelaxation(), DefaultMaxIterations, nil)

	build := func(c cer.CER, voltage float64) cer.StepContext {
		return cer.StepContext{Time: time.Now(), DtHours: 0.5, Voltage: voltage, Demand: 4.0}
	}

	res, err := eng.Step(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 0.5, build)
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if !res.Converged {
		t.Fatalf("expected convergence, got iterations=%d maxDeltaV=%v", res.Iterations, res.MaxDeltaV)
	}
	if res.Iterations != 2 {
		t.Fatalf("iterations = %d, want 2 (seed pass-through, then one confirming check)", res.Iterations)
	}
	if got := res.P["l1"]; got != 4.0 {
		t.Fatalf("P[l1] = %v, want 4.0", got)
	}
}

func TestStepFixedVoltageLoadConverges(t *testing.T) {
	load := cer.NewLoad("l1", 1.0)
	ora := oracle.NewMock(1.0)
	eng := New([]cer.CER{load}, ora, DefaultTolerances(), DefaultRelaxation(), DefaultMaxIterations, nil)

	build := func(c cer.CER, voltage float64) cer.StepContext {
		return cer.StepContext{DtHours: 0.5, Voltage: voltage, Demand: 2.5}
	}

	res, err := eng.Step(time.Now(), 0.5, build)
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if !res.Converged {
		t.Fatalf("expected convergence")
	}
	if res.V["l1"] != 1.0 {
		t.Fatalf("V[l1] = %v, want 1.0", res.V["l1"])
	}
}

func TestStepReportsUnbalanceFromOracle(t *testing.T) {
	load := cer.NewLoad("l1", 1.0)
	ora := oracle.NewMock(1.0)
	ora.VUFFunc = func(id uuid.UUID) float64 { return 2.5 }
	eng := New([]cer.CER{load}, ora, DefaultTolerances(), DefaultRelaxation(), DefaultMaxIterations, nil)

	build := func(c cer.CER, voltage float64) cer.StepContext {
		return cer.StepContext{DtHours: 0.5, Voltage: voltage, Demand: 1.0}
	}

	res, err := eng.Step(time.Now(), 0.5, build)
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if res.VUF["l1"] != 2.5 {
		t.Fatalf("VUF[l1] = %v, want 2.5", res.VUF["l1"])
	}
}

func TestStepCarriesVoltageAcrossTimesteps(t *testing.T) {
	load := cer.NewLoad("l1", 1.0)
	ora := oracle.NewMock(1.03)
	eng := New([]cer.CER{load}, ora, DefaultTolerances(), DefaultRelaxation(), DefaultMaxIterations, nil)

	build := func(c cer.CER, voltage float64) cer.StepContext {
		return cer.StepContext{DtHours: 0.5, Voltage: voltage, Demand: 1.0}
	}

	first, err := eng.Step(time.Now(), 0.5, build)
	if err != nil {
		t.Fatalf("first step: %v", err)
	}
	second, err := eng.Step(time.Now(), 0.5, build)
	if err != nil {
		t.Fatalf("second step: %v", err)
	}
	if first.V["l1"] != 1.03 || second.V["l1"] != 1.03 {
		t.Fatalf("voltages = %v, %v, want 1.03 both", first.V["l1"], second.V["l1"])
	}
}

func newTestHybrid(label string) (*cer.HybridPVSystem, *battery.Battery) {
	bat := battery.New(label, battery.Config{Capacity: 13.5, SOCInit: 0.5, SOCMin: 0.1, ChargerEff: 0.98, ChargerPowerKW: 5.0})
	cap := inverter.DefaultCapability()
	vw := inverter.DefaultVoltWattCurve()
	pol := inverter.Policy{VoltWatt: &vw}
	hybridPol := inverter.HybridPolicy{Scheduling: inverter.HybridScheduling{MaximiseSelfConsumption: true}}
	panel := cer.PanelConfig{PeakPowerKW: 3.0, TempDerating: cer.DefaultPanelTempDerating()}
	return cer.NewHybridPVSystem(label, panel, bat, cap, pol, hybridPol), bat
}

// SOC must advance exactly one step's worth per timestep regardless of how many inner trial
// iterations ran: the trial iterations drive snapshots, and only the post-convergence evaluation
// touches the real battery.
func TestStepAdvancesSOCExactlyOnce(t *testing.T) {
	h, bat := newTestHybrid("h1")
	ora := oracle.NewMock(1.0)
	eng := New([]cer.CER{h}, ora, DefaultTolerances(), DefaultRelaxation(), DefaultMaxIterations, nil)

	ctxFor := func(voltage float64) cer.StepContext {
		return cer.StepContext{DtHours: 1.0, Voltage: voltage, Irradiance: 1.0, AmbientTempC: 25.0, Demand: 1.0}
	}
	build := func(c cer.CER, voltage float64) cer.StepContext { return ctxFor(voltage) }

	res, err := eng.Step(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC), 1.0, build)
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if !res.Converged {
		t.Fatalf("expected convergence")
	}

	// A twin system stepped exactly once at the converged voltage must land on the same SOC.
	twin, twinBat := newTestHybrid("h2")
	ctx := ctxFor(res.V["h1"])
	twin.Update(ctx)
	twin.Step(ctx)

	if math.Abs(bat.SOC()-twinBat.SOC()) > 1e-9 {
		t.Errorf("SOC = %v, want %v (one step's worth, not one per inner iteration)", bat.SOC(), twinBat.SOC())
	}
}

// Feeding the converged operating point back through a fresh evaluation must reproduce it: the
// relaxed running set-point and a fresh evaluation at the converged voltage agree to within the
// engine's tolerances.
func TestStepConvergenceIdempotence(t *testing.T) {
	cap := inverter.DefaultCapability()
	vw := inverter.DefaultVoltWattCurve()
	pol := inverter.Policy{VoltWatt: &vw}
	panel := cer.PanelConfig{PeakPowerKW: 7.2, TempDerating: cer.DefaultPanelTempDerating()}
	pv := cer.NewPVSystem("pv1", panel, cap, pol)

	ora := oracle.NewMock(1.0)
	// Export raises the terminal voltage into the Volt-Watt derating region, so the set-point and
	// the voltage genuinely depend on each other.
	ora.VoltageFunc = func(id uuid.UUID, pKW, qKVAr float64) float64 {
		return 1.03 + 0.012*pKW
	}
	eng := New([]cer.CER{pv}, ora, DefaultTolerances(), DefaultRelaxation(), DefaultMaxIterations, nil)

	ctxFor := func(voltage float64) cer.StepContext {
		return cer.StepContext{DtHours: 1.0, Voltage: voltage, Irradiance: 1.0, AmbientTempC: 25.0}
	}
	build := func(c cer.CER, voltage float64) cer.StepContext { return ctxFor(voltage) }

	res, err := eng.Step(time.Now(), 1.0, build)
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if !res.Converged {
		t.Fatalf("expected convergence, iterations=%d maxDeltaV=%v", res.Iterations, res.MaxDeltaV)
	}
	if res.Iterations > DefaultMaxIterations {
		t.Fatalf("iterations = %d exceeds the cap", res.Iterations)
	}

	twin := cer.NewPVSystem("pv2", panel, cap, pol)
	ctx := ctxFor(res.V["pv1"])
	twin.Update(ctx)
	p, _ := twin.Step(ctx)

	if math.Abs(p-res.P["pv1"]) > 0.01 {
		t.Errorf("fresh evaluation at converged V = %v, engine reported %v", p, res.P["pv1"])
	}
}

// A non-converging scenario must stop at the iteration cap, keep the last attempted set-points,
// and report Converged=false rather than failing.
func TestStepNonConvergenceKeepsLastSetPoints(t *testing.T) {
	cap := inverter.DefaultCapability()
	vw := inverter.DefaultVoltWattCurve()
	pol := inverter.Policy{VoltWatt: &vw}
	panel := cer.PanelConfig{PeakPowerKW: 7.2, TempDerating: cer.DefaultPanelTempDerating()}
	pv := cer.NewPVSystem("pv1", panel, cap, pol)

	ora := oracle.NewMock(1.0)
	flip := false
	// An oscillating voltage response that never settles.
	ora.VoltageFunc = func(id uuid.UUID, pKW, qKVAr float64) float64 {
		flip = !flip
		if flip {
			return 1.09
		}
		return 1.01
	}
	eng := New([]cer.CER{pv}, ora, DefaultTolerances(), DefaultRelaxation(), 20, nil)

	build := func(c cer.CER, voltage float64) cer.StepContext {
		return cer.StepContext{DtHours: 1.0, Voltage: voltage, Irradiance: 1.0, AmbientTempC: 25.0}
	}

	res, err := eng.Step(time.Now(), 1.0, build)
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if res.Converged {
		t.Fatalf("expected non-convergence")
	}
	if res.Iterations != 20 {
		t.Errorf("iterations = %d, want the cap 20", res.Iterations)
	}
	if res.NonConvergence == nil {
		t.Fatalf("expected a NonConvergence on the result")
	}
	if res.NonConvergence.Iterations != 20 {
		t.Errorf("NonConvergence.Iterations = %d, want 20", res.NonConvergence.Iterations)
	}
	if _, ok := res.P["pv1"]; !ok {
		t.Errorf("expected last attempted set-points to be reported")
	}
}
