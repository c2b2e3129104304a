package inverter

import (
	"math"
	"testing"
)

func approxEqual(a, b, eps float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= eps
}

func TestOffStateProducesNoOutputWithoutNightMode(t *testing.T) {
	cap := DefaultCapability()
	cap.NightModeEnabled = false
	inv := New("pv1", cap, Policy{})

	p, q := inv.Output(0, 1.0)
	if p != 0 || q != 0 {
		t.Errorf("Output() = (%v, %v), want (0, 0) while off", p, q)
	}
}

func TestVoltWattAtBreakpointNoDerating(t *testing.T) {
	cap := DefaultCapability()
	curve := DefaultVoltWattCurve()
	pol := Policy{VoltWatt: &curve}
	inv := New("pv1", cap, pol)

	pDC := 5.0
	p, _ := inv.Output(pDC, 1.00)
	pAC := clip(pDC*Efficiency(pDC, cap), 0, cap.RatedKVA)

	if !approxEqual(p, pAC, 1e-9) {
		t.Errorf("P at V=1.00 = %v, want %v (no Volt-Watt derating at the first breakpoint)", p, pAC)
	}
}

func TestVoltWattInterpolatedDerating(t *testing.T) {
	// Matches the worked example: V=1.085 sits between 1.07 (factor 1.00) and 1.10 (factor 0.20).
	cap := DefaultCapability()
	cap.RatedKVA = 6.0
	curve := DefaultVoltWattCurve()

	limit := cap.RatedKVA * curve.Evaluate(1.085)
	wantFactor := 0.60 // halfway between 1.00 and 0.20
	if !approxEqual(curve.Evaluate(1.085), wantFactor, 1e-9) {
		t.Fatalf("VoltWatt curve at 1.085 = %v, want %v", curve.Evaluate(1.085), wantFactor)
	}
	if !approxEqual(limit, cap.RatedKVA*wantFactor, 1e-9) {
		t.Errorf("p_lim at V=1.085 = %v, want %v", limit, cap.RatedKVA*wantFactor)
	}
}

func TestArbitrationScalesBothWhenBothMandatory(t *testing.T) {
	ratedKVA := 6.0
	exportLimit := 1.0
	pol := Policy{ExportLimit: &exportLimit, PowerFactor: f64ptr(0.9)}

	p, q := Arbitrate(6.0, 3.0, ratedKVA, pol)
	s := math.Hypot(p, q)
	if !approxEqual(s, ratedKVA, 1e-9) {
		t.Errorf("apparent power after arbitration = %v, want %v", s, ratedKVA)
	}
	// ratio preserved
	if !approxEqual(p/q, 2.0, 1e-9) {
		t.Errorf("arbitration changed the P:Q ratio: p=%v q=%v", p, q)
	}
}

func TestArbitrationClipsQWhenOnlyPMandatory(t *testing.T) {
	ratedKVA := 6.0
	exportLimit := 1.0
	pol := Policy{ExportLimit: &exportLimit}

	pDesired := 6.0
	qDesired := 3.0
	p, q := Arbitrate(pDesired, qDesired, ratedKVA, pol)

	if p != pDesired {
		t.Errorf("P = %v, want unchanged %v (P is mandatory)", p, pDesired)
	}
	maxQ := math.Sqrt(ratedKVA*ratedKVA - p*p)
	if !approxEqual(q, maxQ, 1e-9) {
		t.Errorf("Q = %v, want clipped to %v", q, maxQ)
	}
}

func TestArbitrationExactlyAtRatedCapacityIsUnchanged(t *testing.T) {
	ratedKVA := 6.0
	p, q := Arbitrate(ratedKVA, 0, ratedKVA, Policy{})
	if p != ratedKVA || q != 0 {
		t.Errorf("Arbitrate at exactly S̄ = (%v, %v), want (%v, 0)", p, q, ratedKVA)
	}
}

func TestInvertEfficiencyRoundTrips(t *testing.T) {
	cap := DefaultCapability()
	pDC := 3.0
	pAC := pDC * Efficiency(pDC, cap)

	got, err := InvertEfficiency(pAC, cap)
	if err != nil {
		t.Fatalf("InvertEfficiency() error = %v", err)
	}
	if !approxEqual(got, pDC, 1e-6) {
		t.Errorf("InvertEfficiency(%v) = %v, want %v", pAC, got, pDC)
	}
}

func TestInvertEfficiencyOutOfRangeSubstitutesBoundary(t *testing.T) {
	cap := DefaultCapability()
	got, err := InvertEfficiency(cap.RatedKVA*2, cap)
	if err == nil {
		t.Fatal("expected error for unachievable target")
	}
	if got != cap.RatedKVA {
		t.Errorf("got = %v, want boundary %v", got, cap.RatedKVA)
	}
}

func TestStatusHysteresis(t *testing.T) {
	cap := Capability{RatedKVA: 6.0, EfficiencyCurve: DefaultEfficiencyCurve(), CutIn: 1.0, CutOut: 0.5}
	var s Status

	if s.Evaluate(0.01, cap) {
		t.Fatal("expected off below cut-in")
	}
	cutInKW := cap.CutIn * cap.RatedKVA / 100
	if !s.Evaluate(cutInKW, cap) {
		t.Fatal("expected on at cut-in")
	}
	// between cut-out and cut-in: latch should stay on.
	between := (cap.CutOut*cap.RatedKVA/100 + cutInKW) / 2
	if !s.Evaluate(between, cap) {
		t.Fatal("expected latch to stay on between cut-out and cut-in")
	}
	cutOutKW := cap.CutOut * cap.RatedKVA / 100
	if s.Evaluate(cutOutKW-1e-9, cap) {
		t.Fatal("expected off just below cut-out")
	}
}

func f64ptr(x float64) *float64 { return &x }
