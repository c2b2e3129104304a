package inverter

import "github.com/cepro/cersim/cartesian"

// OutputPriority selects which set-point wins apparent-power arbitration when neither P nor Q is
// under a mandatory limiter (VoltWatt/StaticExportLimit for P, VoltVar/ConstantPowerFactor for Q).
type OutputPriority int

const (
	PriorityWatt OutputPriority = iota
	PriorityVar
	PriorityPF
)

// Policy holds a core inverter's control-curve configuration. At most one of VoltWatt and
// ExportLimit should be set (both are "mandatory P" limiters); at most one of VoltVar and
// PowerFactor should be set (both are "mandatory Q" limiters).
type Policy struct {
	VoltWatt       *cartesian.Curve
	ExportLimit    *float64 // fraction of RatedKVA
	VoltVar        *cartesian.Curve
	PowerFactor    *float64
	OutputPriority OutputPriority
}

// DefaultVoltWattCurve is the CER parameter schema's stated default Volt-Watt curve.
func DefaultVoltWattCurve() cartesian.Curve {
	return cartesian.Curve{Points: []cartesian.Point{
		{X: 1.00, Y: 1.00},
		{X: 1.07, Y: 1.00},
		{X: 1.10, Y: 0.20},
	}}
}

// DefaultVoltVarCurve is the CER parameter schema's stated default Volt-VAr curve.
func DefaultVoltVarCurve() cartesian.Curve {
	return cartesian.Curve{Points: []cartesian.Point{
		{X: 0.90, Y: 0.60},
		{X: 0.95, Y: 0.0},
		{X: 1.00, Y: 0.0},
		{X: 1.05, Y: 0.0},
		{X: 1.10, Y: -0.60},
	}}
}

func (p Policy) mandatoryP() bool {
	return p.VoltWatt != nil || p.ExportLimit != nil
}

func (p Policy) mandatoryQ() bool {
	return p.VoltVar != nil || p.PowerFactor != nil
}
