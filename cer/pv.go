package cer

import (
	"github.com/google/uuid"

	"github.com/cepro/cersim/inverter"
)

// PVSystem is a PV array with no battery: DC generation passed through an inverter subject to its
// control-curve policy.
type PVSystem struct {
	id       uuid.UUID
	label    string
	Panel    PanelConfig
	Inverter *inverter.Inverter

	dcGeneration  float64
	acPotential   float64
	dcCurtailment float64
	acCurtailment float64
	pOut, qOut    float64
}

// NewPVSystem constructs a PVSystem.
func NewPVSystem(label string, panel PanelConfig, cap inverter.Capability, pol inverter.Policy) *PVSystem {
	return &PVSystem{id: uuid.New(), label: label, Panel: panel, Inverter: inverter.New(label, cap, pol)}
}

func (pv *PVSystem) ID() uuid.UUID { return pv.id }
func (pv *PVSystem) Label() string { return pv.label }
func (pv *PVSystem) Kind() Kind    { return KindPV }

// Update records this step's DC generation from irradiance and ambient temperature.
func (pv *PVSystem) Update(ctx StepContext) {
	pv.dcGeneration = pv.Panel.DCPower(ctx.Irradiance, ctx.AmbientTempC)
}

// Step computes curtailment accounting and the arbitrated AC output.
func (pv *PVSystem) Step(ctx StepContext) (p, q float64) {
	cap := pv.Inverter.Capability

	pv.acPotential = inverter.PotentialGeneration(pv.dcGeneration, cap)
	dcEquiv, err := pv.Inverter.InvertEfficiency(pv.acPotential)
	if err != nil {
		dcEquiv = pv.acPotential / inverter.Efficiency(cap.RatedKVA, cap)
	}
	pv.dcCurtailment = pv.dcGeneration - dcEquiv

	pv.pOut, pv.qOut = pv.Inverter.Output(pv.dcGeneration, ctx.Voltage)
	pv.acCurtailment = pv.acPotential - pv.pOut

	return pv.pOut, pv.qOut
}

func (pv *PVSystem) DCGeneration() float64      { return pv.dcGeneration }
func (pv *PVSystem) ACPotentialOutput() float64 { return pv.acPotential }
func (pv *PVSystem) DCCurtailment() float64     { return pv.dcCurtailment }
func (pv *PVSystem) ACCurtailment() float64     { return pv.acCurtailment }
func (pv *PVSystem) POut() float64              { return pv.pOut }
func (pv *PVSystem) QOut() float64              { return pv.qOut }

// StatusSnapshot and RestoreStatus expose the underlying inverter's on/off hysteresis latch so the
// engine can snapshot and restore it alongside battery SOC.
func (pv *PVSystem) StatusSnapshot() inverter.Status { return pv.Inverter.StatusSnapshot() }
func (pv *PVSystem) RestoreStatus(s inverter.Status) { pv.Inverter.RestoreStatus(s) }
