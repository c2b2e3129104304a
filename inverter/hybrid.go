package inverter

import (
	"math"
	"time"

	"github.com/cepro/cersim/cartesian"
	"github.com/cepro/cersim/timeutils"
)

// HybridScheduling is the closed set of battery scheduling policies for a hybrid PV+battery
// inverter. Exactly one field should be populated.
type HybridScheduling struct {
	MaximiseSelfConsumption bool
	TimeOfUse               *TimeOfUseWindows
}

// TimeOfUseWindows names the clock-time windows during which a hybrid or EV battery may charge from
// the grid, or discharge to the inverter, under the TimeOfUse/V2G scheduling policies.
type TimeOfUseWindows struct {
	ChargeWindow    timeutils.ClockTimePeriod
	DischargeWindow timeutils.ClockTimePeriod
}

// HybridPolicy extends the core inverter Policy with the battery scheduling policy and an optional
// charging-side Volt-Watt curve that limits how much AC power may be drawn from the grid to charge.
type HybridPolicy struct {
	Scheduling       HybridScheduling
	ChargingVoltWatt *cartesian.Curve
}

// HybridInverter wraps a core Inverter with battery-aware power flows: how much of the PV
// generation goes straight to the battery, how much of the battery goes to the inverter/load, and
// how much grid power may be drawn in to charge under a time-of-use policy.
type HybridInverter struct {
	Base   *Inverter
	Policy HybridPolicy

	maxCharge, maxDischarge float64
	batteryPower            float64
}

// NewHybrid constructs a HybridInverter.
func NewHybrid(label string, cap Capability, corePol Policy, hybridPol HybridPolicy) *HybridInverter {
	return &HybridInverter{Base: New(label, cap, corePol), Policy: hybridPol}
}

// UpdateBatteryPowerLimits records the battery's current charge/discharge power caps (derived from
// SOC headroom and charger rating) ahead of this step's battery-power decision.
func (h *HybridInverter) UpdateBatteryPowerLimits(maxCharge, maxDischarge float64) {
	h.maxCharge = maxCharge
	h.maxDischarge = maxDischarge
}

// maxACOutput returns the largest AC output the base inverter could produce at volt, i.e. its
// absolute generation ceiling independent of any particular PV input.
func (h *HybridInverter) maxACOutput(volt float64) float64 {
	maxDC, _ := h.Base.InvertEfficiency(h.Base.Capability.RatedKVA)
	p, _ := h.Base.Output(maxDC, volt)
	return p
}

// dcPowerToMeetLoad returns the DC-equivalent power required to produce load watts of AC through
// the inverter, capped at the DC input that yields the inverter's maximum AC output.
func (h *HybridInverter) dcPowerToMeetLoad(pPV, load, volt float64) float64 {
	if maxAC := h.maxACOutput(volt); load >= maxAC {
		dc, _ := h.Base.InvertEfficiency(maxAC)
		return dc
	}
	dc, _ := h.Base.InvertEfficiency(load)
	return dc
}

// chargeLimitKW returns p_ch_limit, the AC-side power the grid may deliver to the charger, reduced
// by the charging Volt-Watt curve when one is configured.
func (h *HybridInverter) chargeLimitKW(volt float64) float64 {
	if h.Policy.ChargingVoltWatt != nil {
		return h.Base.Capability.RatedKVA * h.Policy.ChargingVoltWatt.Evaluate(volt)
	}
	return h.Base.Capability.RatedKVA
}

// batteryToInverter returns p_batt_to_inv, the DC power drawn from the battery into the inverter.
// Under self-consumption it covers the part of the load that PV cannot; under time-of-use it
// discharges inside the discharge window up to the inverter's AC ceiling, regardless of load.
func (h *HybridInverter) batteryToInverter(pPV, load, volt float64, atTime time.Time) float64 {
	switch {
	case h.Policy.Scheduling.MaximiseSelfConsumption:
		pDCRequired := h.dcPowerToMeetLoad(pPV, load, volt)
		return clip(math.Max(0, pDCRequired-pPV), 0, h.maxDischarge)
	case h.Policy.Scheduling.TimeOfUse != nil:
		if h.Policy.Scheduling.TimeOfUse.DischargeWindow.Contains(atTime) {
			maxDCInput, _ := h.Base.InvertEfficiency(h.maxACOutput(volt))
			return clip(math.Max(0, maxDCInput-pPV), 0, h.maxDischarge)
		}
		return 0
	default:
		return 0
	}
}

// pvToBattery returns p_pv_to_batt, the share of PV generation routed directly to the battery.
func (h *HybridInverter) pvToBattery(pPV, load, volt float64, atTime time.Time) float64 {
	switch {
	case h.Policy.Scheduling.MaximiseSelfConsumption:
		pDCRequired := h.dcPowerToMeetLoad(pPV, load, volt)
		return clip(math.Max(0, pPV-pDCRequired), 0, h.maxCharge)
	case h.Policy.Scheduling.TimeOfUse != nil:
		if h.Policy.Scheduling.TimeOfUse.ChargeWindow.Contains(atTime) {
			return math.Min(pPV, h.maxCharge)
		}
		return 0
	default:
		return 0
	}
}

// gridToBattery returns p_grid_to_batt, the grid import used to top up charging beyond what PV
// alone supplies, only available under the TimeOfUse scheduling policy inside its charge window.
func (h *HybridInverter) gridToBattery(volt float64, atTime time.Time, pvToBatt float64) float64 {
	if h.Policy.Scheduling.TimeOfUse == nil {
		return 0
	}
	if !h.Policy.Scheduling.TimeOfUse.ChargeWindow.Contains(atTime) {
		return 0
	}
	chLimit := h.chargeLimitKW(volt)
	chDCAvailable := chLimit * Efficiency(chLimit, h.Base.Capability)
	return clip(math.Max(0, chDCAvailable-pvToBatt), 0, math.Max(0, h.maxCharge-pvToBatt))
}

// GetBatteryPower returns the signed battery power for this step (positive = charging), and remembers
// it for the meter's battery-power rollup.
func (h *HybridInverter) GetBatteryPower(pPV, load, volt float64, atTime time.Time) float64 {
	toInv := h.batteryToInverter(pPV, load, volt, atTime)
	toBatt := h.pvToBattery(pPV, load, volt, atTime)
	fromGrid := h.gridToBattery(volt, atTime, toBatt)
	h.batteryPower = -toInv + toBatt + fromGrid
	return h.batteryPower
}

// BatteryPower returns the battery power computed by the most recent GetBatteryPower call.
func (h *HybridInverter) BatteryPower() float64 {
	return h.batteryPower
}

// Output returns the inverter's AC set-point given the net DC power flowing to it (p_pv - p_batt).
// A non-negative net DC power follows the normal generation path; a negative one represents the
// battery charging from the grid, in which case the AC import required is found by inverting the
// efficiency curve, with no reactive component.
func (h *HybridInverter) Output(pInvDC, volt float64) (p, q float64) {
	if pInvDC >= 0 {
		return h.Base.Output(pInvDC, volt)
	}
	acEquiv, _ := h.Base.InvertEfficiency(-pInvDC)
	return -acEquiv, 0
}
