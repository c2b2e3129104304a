// Package inverter implements the inverter decision layer: desired active/reactive power under
// Volt-Watt, Volt-VAr, export-limit and constant-power-factor modes, apparent-power arbitration
// when the desired set-point exceeds rated capacity, and the battery-power selection policies for
// hybrid PV+battery and EV inverters.
package inverter

import "github.com/cepro/cersim/cartesian"

// Capability holds the immutable electrical characteristics of an inverter.
type Capability struct {
	RatedKVA         float64
	EfficiencyCurve  cartesian.Curve
	CutIn            float64 // percent of RatedKVA, e.g. 0.1 means 0.1% of RatedKVA
	CutOut           float64
	NightModeEnabled bool
}

// DefaultEfficiencyCurve is the CER parameter schema's stated default efficiency curve.
func DefaultEfficiencyCurve() cartesian.Curve {
	return cartesian.Curve{Points: []cartesian.Point{
		{X: 0.1, Y: 0.86},
		{X: 0.2, Y: 0.90},
		{X: 0.4, Y: 0.93},
		{X: 1.0, Y: 0.97},
	}}
}

// DefaultCapability returns the CER parameter schema defaults for an inverter's capability.
func DefaultCapability() Capability {
	return Capability{
		RatedKVA:         6.0,
		EfficiencyCurve:  DefaultEfficiencyCurve(),
		CutIn:            0.1,
		CutOut:           0.1,
		NightModeEnabled: true,
	}
}

// Efficiency returns eta(p_dc/S̄), clamping the per-unit input at 1.0 (and at 0 below).
func Efficiency(pDC float64, cap Capability) float64 {
	pdcPU := pDC / cap.RatedKVA
	if pdcPU > 1.0 {
		pdcPU = 1.0
	}
	if pdcPU < 0 {
		pdcPU = 0
	}
	return cap.EfficiencyCurve.Evaluate(pdcPU)
}

// StatusFor is a stateless on/off check against the cut-in threshold only, used for hypothetical
// "what would this CER's potential output be at power X" queries that must not perturb the real
// hysteresis latch (see Status).
func StatusFor(pDC float64, cap Capability) bool {
	cutInKW := cap.CutIn * cap.RatedKVA / 100
	return pDC >= cutInKW
}

// Status tracks the inverter's on/off hysteresis: once on, it stays on until p_dc falls below the
// cut-out threshold. This is per-CER mutable state that must be snapshotted alongside battery SOC.
type Status struct {
	on bool
}

// Evaluate advances the latch given a new p_dc reading and returns the resulting on/off state.
func (s *Status) Evaluate(pDC float64, cap Capability) bool {
	cutInKW := cap.CutIn * cap.RatedKVA / 100
	cutOutKW := cap.CutOut * cap.RatedKVA / 100
	if pDC >= cutInKW {
		s.on = true
	} else if pDC < cutOutKW {
		s.on = false
	}
	return s.on
}

// Clone returns a value copy of the latch, for use in a per-CER snapshot.
func (s Status) Clone() Status {
	return s
}

// PotentialGeneration returns the AC power the inverter would produce from pDC if unconstrained by
// any mandatory P-limiter, clamped to rated capacity - used for curtailment accounting.
func PotentialGeneration(pDC float64, cap Capability) float64 {
	if !StatusFor(pDC, cap) {
		return 0
	}
	out := pDC * Efficiency(pDC, cap)
	if out > cap.RatedKVA {
		return cap.RatedKVA
	}
	return out
}

func clip(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
