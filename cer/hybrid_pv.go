package cer

import (
	"math"

	"github.com/google/uuid"

	"github.com/cepro/cersim/battery"
	"github.com/cepro/cersim/inverter"
)

// HybridPVSystem is a PV array co-located with a battery: the inverter decides how much surplus
// generation charges the battery (or, under a time-of-use policy, how much grid power tops up
// charging), and exports whatever net DC power remains after the battery's contribution.
type HybridPVSystem struct {
	id       uuid.UUID
	label    string
	Panel    PanelConfig
	Inverter *inverter.HybridInverter

	// Battery is swappable: the real *battery.Battery during the post-convergence final advance, or
	// a *battery.Snapshot during the engine's trial inner iterations.
	Battery battery.Store

	dcGeneration  float64
	localLoad     float64
	acPotential   float64
	dcCurtailment float64
	acCurt        float64
	pBatt         float64
	pOut, qOut    float64
}

// NewHybridPVSystem constructs a HybridPVSystem.
func NewHybridPVSystem(label string, panel PanelConfig, bat battery.Store, cap inverter.Capability, corePol inverter.Policy, hybridPol inverter.HybridPolicy) *HybridPVSystem {
	return &HybridPVSystem{
		id:       uuid.New(),
		label:    label,
		Panel:    panel,
		Inverter: inverter.NewHybrid(label, cap, corePol, hybridPol),
		Battery:  bat,
	}
}

func (h *HybridPVSystem) ID() uuid.UUID { return h.id }
func (h *HybridPVSystem) Label() string { return h.label }
func (h *HybridPVSystem) Kind() Kind    { return KindHybridPV }

// Update records this step's DC generation, the local load seen at the meter, and refreshes the
// inverter's battery power limits from the current SOC.
func (h *HybridPVSystem) Update(ctx StepContext) {
	h.dcGeneration = h.Panel.DCPower(ctx.Irradiance, ctx.AmbientTempC)
	h.localLoad = math.Max(0, ctx.Demand)
	h.Inverter.UpdateBatteryPowerLimits(
		h.Battery.MaxChargePower(ctx.DtHours),
		h.Battery.MaxDischargePower(ctx.DtHours),
	)
}

// Step decides the battery power, advances SOC, and computes the arbitrated AC output of the net
// DC power left over for the inverter.
func (h *HybridPVSystem) Step(ctx StepContext) (p, q float64) {
	cap := h.Inverter.Base.Capability

	h.acPotential = inverter.PotentialGeneration(h.dcGeneration, cap)
	dcEquiv, _ := h.Inverter.Base.InvertEfficiency(h.acPotential)
	h.dcCurtailment = h.dcGeneration - dcEquiv

	h.pBatt = h.Inverter.GetBatteryPower(h.dcGeneration, h.localLoad, ctx.Voltage, ctx.Time)
	h.Battery.ApplySignedPower(h.pBatt, ctx.DtHours)

	pInvDC := h.dcGeneration - h.pBatt
	h.pOut, h.qOut = h.Inverter.Output(pInvDC, ctx.Voltage)

	h.acCurt = acCurtailment(h.acPotential, h.pOut, h.pBatt)

	return h.pOut, h.qOut
}

// acCurtailment accounts for PV generation that neither reached the grid nor was absorbed by the
// battery. Power the battery is charging from (pBatt > 0) is not curtailment - it is usefully
// stored - so it is subtracted from the potential before comparing against what was exported; power
// the battery is discharging (pBatt < 0) only ever adds to the inverter's output, so it never
// increases curtailment.
func acCurtailment(acPotential, pOut, pBatt float64) float64 {
	return math.Max(0, acPotential-pOut-math.Max(0, pBatt))
}

func (h *HybridPVSystem) DCGeneration() float64      { return h.dcGeneration }
func (h *HybridPVSystem) ACPotentialOutput() float64 { return h.acPotential }
func (h *HybridPVSystem) DCCurtailment() float64     { return h.dcCurtailment }
func (h *HybridPVSystem) ACCurtailment() float64     { return h.acCurt }
func (h *HybridPVSystem) BatteryPower() float64      { return h.pBatt }
func (h *HybridPVSystem) POut() float64              { return h.pOut }
func (h *HybridPVSystem) QOut() float64              { return h.qOut }

func (h *HybridPVSystem) StatusSnapshot() inverter.Status { return h.Inverter.Base.StatusSnapshot() }
func (h *HybridPVSystem) RestoreStatus(s inverter.Status) { h.Inverter.Base.RestoreStatus(s) }

// BatteryStore and SetBatteryStore let the convergence engine swap the real Battery out for a
// battery.Snapshot for the duration of its trial inner iterations, and back again for the final
// post-convergence step.
func (h *HybridPVSystem) BatteryStore() battery.Store      { return h.Battery }
func (h *HybridPVSystem) SetBatteryStore(s battery.Store)  { h.Battery = s }
