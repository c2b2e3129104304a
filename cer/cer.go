// Package cer models the four kinds of controllable energy resource a scenario can contain: Load,
// PVSystem, HybridPVSystem and EVSystem.
package cer

import "github.com/google/uuid"

// Kind identifies which of the four CER variants a value is.
type Kind int

const (
	KindLoad Kind = iota
	KindPV
	KindHybridPV
	KindEV
)

func (k Kind) String() string {
	switch k {
	case KindLoad:
		return "load"
	case KindPV:
		return "pv"
	case KindHybridPV:
		return "hybridpv"
	case KindEV:
		return "ev"
	default:
		return "unknown"
	}
}

// CER is the closed sum-type of controllable energy resources. Update loads exogenous inputs for
// the timestep (demand, irradiance, terminal voltage, ...) into internal fields with no circuit
// side-effects; Step evaluates the current output from those stored fields, advancing any owned
// battery's SOC in the process. The engine, meter and scenario driver reach type-specific
// behaviour (battery power limits, curtailment accounting) through type switches and narrower
// interface assertions rather than routing everything through this one interface.
type CER interface {
	ID() uuid.UUID
	Label() string
	Kind() Kind
	Update(ctx StepContext)
	Step(ctx StepContext) (p, q float64)
}

var (
	_ CER = (*Load)(nil)
	_ CER = (*PVSystem)(nil)
	_ CER = (*HybridPVSystem)(nil)
	_ CER = (*EVSystem)(nil)
)
