package cer

import "github.com/cepro/cersim/cartesian"

// PanelConfig describes a PV panel array's DC generation model: a peak DC power rating scaled by
// per-unit irradiance and a temperature-derating curve.
type PanelConfig struct {
	PeakPowerKW  float64
	TempDerating cartesian.Curve
}

// DefaultPanelTempDerating is the CER parameter schema's stated default temperature-derating curve.
func DefaultPanelTempDerating() cartesian.Curve {
	return cartesian.Curve{Points: []cartesian.Point{
		{X: 0, Y: 1.2},
		{X: 25, Y: 1.0},
		{X: 75, Y: 0.8},
		{X: 100, Y: 0.6},
	}}
}

// DefaultPanelConfig returns the CER parameter schema defaults.
func DefaultPanelConfig() PanelConfig {
	return PanelConfig{PeakPowerKW: 7.2, TempDerating: DefaultPanelTempDerating()}
}

// DCPower returns the panel's DC output given per-unit irradiance and ambient temperature (deg C).
func (p PanelConfig) DCPower(irradiance, tempC float64) float64 {
	return p.PeakPowerKW * irradiance * p.TempDerating.Evaluate(tempC)
}
