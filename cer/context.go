package cer

import "time"

// StepContext carries the exogenous per-timestep inputs the different CER kinds consume. A given
// CER reads only the fields relevant to its kind, leaving the rest unused.
type StepContext struct {
	Time         time.Time
	DtHours      float64
	Voltage      float64
	Irradiance   float64 // per-unit, PV/HybridPV
	AmbientTempC float64 // PV/HybridPV
	Demand       float64 // Load/HybridPV local load, kW
}
