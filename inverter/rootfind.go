package inverter

import (
	"fmt"
	"math"
)

const (
	rootFindMaxIter = 100
	rootFindTol     = 1e-9
)

// invertEfficiencyCurve finds x in [lo, hi] such that x*eta(x) = target, where eta is evaluated via
// evalEff. The forward map x -> x*eta(x) is monotone non-decreasing for every efficiency curve this
// package uses (the curves are themselves monotone non-decreasing), so bisection on the bracket is
// sufficient. If target is at or below f(lo), lo is returned with no error; if target is at or
// above f(hi), hi is returned together with an error describing the substitution.
func invertEfficiencyCurve(target, lo, hi float64, f func(float64) float64) (float64, error) {
	g := func(x float64) float64 { return f(x) - target }

	flo := g(lo)
	fhi := g(hi)

	if flo >= 0 {
		return lo, nil
	}
	if fhi <= 0 {
		return hi, fmt.Errorf("target %v exceeds achievable output on [%v, %v], substituting boundary", target, lo, hi)
	}

	for i := 0; i < rootFindMaxIter; i++ {
		mid := (lo + hi) / 2
		fmid := g(mid)
		if math.Abs(fmid) < rootFindTol || (hi-lo)/2 < rootFindTol {
			return mid, nil
		}
		if (fmid > 0) == (flo > 0) {
			lo, flo = mid, fmid
		} else {
			hi = mid
		}
	}
	return (lo + hi) / 2, nil
}

// InvertEfficiency solves p*eta(p/S̄) = target for p over [0, S̄]. It is used both to find the DC
// input that would yield a desired AC output (PV curtailment accounting) and, symmetrically, to
// find the AC-side power a battery charger must draw to deliver a desired DC-equivalent charging
// power - both directions share the same forward map.
func InvertEfficiency(target float64, cap Capability) (float64, error) {
	f := func(x float64) float64 { return x * Efficiency(x, cap) }
	return invertEfficiencyCurve(target, 0, cap.RatedKVA, f)
}
