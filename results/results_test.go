package results

import (
	"testing"
	"time"

	"github.com/cepro/cersim/meter"
	"github.com/cepro/cersim/oracle"
)

func TestFairnessIndexUndefinedWithoutPV(t *testing.T) {
	r := New(0.5)
	r.Append(TimestepResult{Timestep: 1, Time: time.Now(), Totals: oracle.Totals{}})

	if _, ok := r.FairnessIndex(); ok {
		t.Fatalf("expected fairness index to be undefined with no PV systems")
	}
}

func TestFairnessIndexPerfectWhenNoCurtailment(t *testing.T) {
	r := New(0.5)
	for i := 0; i < 4; i++ {
		r.Append(TimestepResult{
			Timestep: i,
			Time:     time.Now(),
			PV: map[string]PVRegister{
				"pv_a": {ACPotentialKW: 2.0, ActivePowerKW: 2.0},
				"pv_b": {ACPotentialKW: 3.0, ActivePowerKW: 3.0},
			},
		})
	}

	f, ok := r.FairnessIndex()
	if !ok {
		t.Fatalf("expected fairness index to be defined")
	}
	if f != 1.0 {
		t.Fatalf("fairness = %v, want 1.0 (no curtailment => zero spread)", f)
	}
}

func TestMetricsComputesRatiosFromAggregatedSums(t *testing.T) {
	r := New(0.5)
	r.Append(TimestepResult{
		Timestep: 0,
		Time:     time.Now(),
		PV: map[string]PVRegister{
			"pv_a": {DCGenerationKW: 10, DCCurtailmentKW: 1, ACPotentialKW: 9, ACCurtailmentKW: 2},
		},
		Voltages: map[string]VoltageReading{
			"bus1": {PU: 1.11, VUF: 3.0},
		},
		LinePct: map[string]oracle.PhaseCurrents{
			"line1": {A: 50, B: 50, C: 50},
		},
		Totals: oracle.Totals{ActivePowerKW: 100, ActiveLossesKW: 5, ReactivePowerKVAr: 20, ReactiveLossesKVAr: 1},
	})

	metrics, err := r.Metrics(VoltageBand{MinPU: 0.94, MaxPU: 1.10}, 2.0)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	if got := metrics.DCCurtailmentPct; got != 10.0 {
		t.Fatalf("DCCurtailmentPct = %v, want 10.0", got)
	}
	if got := metrics.ACCurtailmentPct; got < 22.0 || got > 22.3 {
		t.Fatalf("ACCurtailmentPct = %v, want ~22.22", got)
	}
	if got := metrics.VoltageViolationRatePct; got != 100.0 {
		t.Fatalf("VoltageViolationRatePct = %v, want 100.0 (1.11 > 1.10)", got)
	}
	if got := metrics.VUFViolationRatePct; got != 100.0 {
		t.Fatalf("VUFViolationRatePct = %v, want 100.0 (3.0 > 2.0)", got)
	}
	if got := metrics.LineOverloadRatePct; got != 0.0 {
		t.Fatalf("LineOverloadRatePct = %v, want 0.0", got)
	}
	if got := metrics.ActiveLossRatioPct; got != 5.0 {
		t.Fatalf("ActiveLossRatioPct = %v, want 5.0", got)
	}
}

func TestDailyAggregatesGroupsByCalendarDay(t *testing.T) {
	r := New(1.0)
	day1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	r.Append(TimestepResult{Time: day1, Totals: oracle.Totals{ActivePowerKW: 1}})
	r.Append(TimestepResult{Time: day1, Totals: oracle.Totals{ActivePowerKW: 1}})
	r.Append(TimestepResult{Time: day2, Totals: oracle.Totals{ActivePowerKW: 5}})

	df := r.DailyAggregates()
	if df.Nrow() != 2 {
		t.Fatalf("nrow = %d, want 2 calendar days", df.Nrow())
	}
}

func TestRegistersCarryMeterFlows(t *testing.T) {
	r := New(0.5)
	r.Append(TimestepResult{
		Flows: map[string]meter.Flows{
			"site": {GridToLoad: 1.0},
		},
	})
	if r.Steps[0].Flows["site"].GridToLoad != 1.0 {
		t.Fatalf("flow not recorded")
	}
}
