package inverter

import (
	"math"

	"github.com/google/uuid"

	"github.com/cepro/cersim/simerrors"
)

// Inverter is the core decision layer shared by PV-only, hybrid and EV inverters: given a DC input
// power and the local voltage, it decides desired active/reactive set-points and arbitrates them
// down to the rated apparent-power envelope.
type Inverter struct {
	ID         uuid.UUID
	Label      string
	Capability Capability
	Policy     Policy

	status Status
}

// New constructs an Inverter.
func New(label string, cap Capability, pol Policy) *Inverter {
	return &Inverter{ID: uuid.New(), Label: label, Capability: cap, Policy: pol}
}

// PLim returns p_lim, the smallest of the Volt-Watt-curve-scaled capacity, the static export
// limit, and the constant-power-factor cap S̄*pf (whichever of those three are configured). If
// none is configured, p_lim is simply the rated capacity.
func (inv *Inverter) PLim(volt float64) float64 {
	return plim(volt, inv.Capability, inv.Policy)
}

func plim(volt float64, cap Capability, pol Policy) float64 {
	lim := cap.RatedKVA
	set := false
	consider := func(v float64) {
		if !set || v < lim {
			lim = v
			set = true
		}
	}
	if pol.VoltWatt != nil {
		consider(cap.RatedKVA * pol.VoltWatt.Evaluate(volt))
	}
	if pol.ExportLimit != nil {
		consider(cap.RatedKVA * *pol.ExportLimit)
	}
	if pol.PowerFactor != nil {
		consider(cap.RatedKVA * *pol.PowerFactor)
	}
	return lim
}

// DesiredActivePower returns p_hat: zero if the inverter is off, otherwise the AC output implied by
// the efficiency curve, clipped to p_lim.
func DesiredActivePower(pDC, volt float64, cap Capability, pol Policy, on bool) float64 {
	if !on {
		return 0
	}
	pAC := clip(pDC*Efficiency(pDC, cap), 0, cap.RatedKVA)
	return clip(pAC, 0, plim(volt, cap, pol))
}

// DesiredReactivePower returns q_hat. Constant-power-factor takes priority over Volt-VAr when both
// are configured. Reactive output is zero when the inverter is off and night-mode is disabled.
func DesiredReactivePower(pDC, volt float64, cap Capability, pol Policy, on bool) float64 {
	if !on && !cap.NightModeEnabled {
		return 0
	}
	if pol.PowerFactor != nil {
		return cap.RatedKVA * math.Sin(math.Acos(*pol.PowerFactor))
	}
	if pol.VoltVar != nil {
		return cap.RatedKVA * pol.VoltVar.Evaluate(volt)
	}
	return 0
}

// Arbitrate reconciles a desired (P, Q) pair against the rated apparent-power envelope. When the
// desired point is inside the envelope it is returned unchanged. Otherwise:
//   - if both P and Q are under a mandatory limiter, both are scaled down by the same factor so the
//     apparent power exactly matches rated capacity;
//   - if only P is mandatory, P is kept and Q is clipped to whatever headroom remains;
//   - if only Q is mandatory, Q is kept and P is clipped to whatever headroom remains;
//   - if neither is mandatory, OutputPriority decides which set-point is kept and which yields.
func Arbitrate(pDesired, qDesired, ratedKVA float64, pol Policy) (p, q float64) {
	s := math.Hypot(pDesired, qDesired)
	if s <= ratedKVA {
		return pDesired, qDesired
	}

	mandatoryP := pol.mandatoryP()
	mandatoryQ := pol.mandatoryQ()

	switch {
	case mandatoryP && mandatoryQ:
		scale := ratedKVA / s
		return pDesired * scale, qDesired * scale
	case mandatoryP:
		maxQ := math.Sqrt(math.Max(0, ratedKVA*ratedKVA-pDesired*pDesired))
		return pDesired, clip(qDesired, -maxQ, maxQ)
	case mandatoryQ:
		maxP := math.Sqrt(math.Max(0, ratedKVA*ratedKVA-qDesired*qDesired))
		return clip(pDesired, -maxP, maxP), qDesired
	default:
		switch pol.OutputPriority {
		case PriorityVar:
			q := clip(qDesired, -ratedKVA, ratedKVA)
			maxP := math.Sqrt(math.Max(0, ratedKVA*ratedKVA-q*q))
			return clip(pDesired, -maxP, maxP), q
		case PriorityPF:
			if pol.PowerFactor != nil {
				p := ratedKVA * *pol.PowerFactor
				return p, ratedKVA * math.Sin(math.Acos(*pol.PowerFactor))
			}
			p := clip(pDesired, -ratedKVA, ratedKVA)
			maxQ := math.Sqrt(math.Max(0, ratedKVA*ratedKVA-p*p))
			return p, clip(qDesired, -maxQ, maxQ)
		default: // PriorityWatt
			p := clip(pDesired, -ratedKVA, ratedKVA)
			maxQ := math.Sqrt(math.Max(0, ratedKVA*ratedKVA-p*p))
			return p, clip(qDesired, -maxQ, maxQ)
		}
	}
}

// Output advances the status latch for pDC and returns the arbitrated (P, Q) AC output.
func (inv *Inverter) Output(pDC, volt float64) (p, q float64) {
	on := inv.status.Evaluate(pDC, inv.Capability)
	pDes := DesiredActivePower(pDC, volt, inv.Capability, inv.Policy, on)
	qDes := DesiredReactivePower(pDC, volt, inv.Capability, inv.Policy, on)
	return Arbitrate(pDes, qDes, inv.Capability.RatedKVA, inv.Policy)
}

// InvertEfficiency solves p*eta(p/S̄) = target for p over [0, S̄], against this inverter's
// capability. A target above S̄*eta(1), the largest achievable output, yields S̄ together with a
// simerrors.NumericError naming this inverter.
func (inv *Inverter) InvertEfficiency(target float64) (float64, error) {
	p, err := InvertEfficiency(target, inv.Capability)
	if err != nil {
		return p, &simerrors.NumericError{Label: inv.Label, Reason: err.Error()}
	}
	return p, nil
}

// StatusSnapshot returns a copy of the current hysteresis latch, for a per-CER state snapshot.
func (inv *Inverter) StatusSnapshot() Status {
	return inv.status.Clone()
}

// RestoreStatus overwrites the hysteresis latch, used when committing or discarding a snapshot.
func (inv *Inverter) RestoreStatus(s Status) {
	inv.status = s
}
