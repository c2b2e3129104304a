package inverter

import (
	"math"
	"time"

	"github.com/cepro/cersim/cartesian"
	"github.com/cepro/cersim/timeutils"
)

// EVScheduling is the closed set of EV charging policies. Exactly one field should be populated.
type EVScheduling struct {
	Unmanaged bool
	Managed   *timeutils.ClockTimePeriod // charge window
	V2G       *TimeOfUseWindows          // charge window + discharge window
}

// EVPolicy extends the core inverter Policy with the EV charging/discharging schedule and an
// optional charging-side Volt-Watt curve.
type EVPolicy struct {
	Scheduling       EVScheduling
	ChargingVoltWatt *cartesian.Curve
}

// EVInverter wraps a core Inverter with EV-specific power flows: charging only while at home and
// inside the relevant schedule window, driving range consumed while away, and (under V2G) exporting
// stored energy back through the inverter.
type EVInverter struct {
	Base   *Inverter
	Policy EVPolicy

	maxCharge, maxDischarge float64
}

// NewEV constructs an EVInverter.
func NewEV(label string, cap Capability, corePol Policy, evPol EVPolicy) *EVInverter {
	return &EVInverter{Base: New(label, cap, corePol), Policy: evPol}
}

// UpdateBatteryPowerLimits records the EV battery's current charge/discharge power caps.
func (e *EVInverter) UpdateBatteryPowerLimits(maxCharge, maxDischarge float64) {
	e.maxCharge = maxCharge
	e.maxDischarge = maxDischarge
}

func (e *EVInverter) chargeLimitKW(volt float64) float64 {
	if e.Policy.ChargingVoltWatt != nil {
		return e.Base.Capability.RatedKVA * e.Policy.ChargingVoltWatt.Evaluate(volt)
	}
	return e.Base.Capability.RatedKVA
}

// batteryToInverter returns the DC power discharged from the battery to the inverter for export,
// only possible under V2G, at home, inside the discharge window. The inverter's AC ceiling is
// inverted back through the efficiency curve so the clip against the battery's discharge cap
// happens in the DC domain; the final Output call is then the only place efficiency applies.
func (e *EVInverter) batteryToInverter(volt float64, atHome bool, atTime time.Time) float64 {
	if e.Policy.Scheduling.V2G == nil || !atHome {
		return 0
	}
	if !e.Policy.Scheduling.V2G.DischargeWindow.Contains(atTime) {
		return 0
	}
	maxDC, _ := e.Base.InvertEfficiency(e.Base.Capability.RatedKVA)
	acCeiling, _ := e.Base.Output(maxDC, volt)
	maxDCInput, _ := e.Base.InvertEfficiency(acCeiling)
	return math.Min(maxDCInput, e.maxDischarge)
}

// batteryToWheel returns the DC power consumed driving, while away from home.
func (e *EVInverter) batteryToWheel(atHome bool, distance, energyPerKM, dtHours float64) float64 {
	if atHome || dtHours <= 0 {
		return 0
	}
	return math.Min(distance*energyPerKM/dtHours, e.maxDischarge)
}

// chargingAllowed reports whether the schedule permits drawing charge power right now.
func (e *EVInverter) chargingAllowed(atHome bool, atTime time.Time) bool {
	if !atHome {
		return false
	}
	switch {
	case e.Policy.Scheduling.Unmanaged:
		return true
	case e.Policy.Scheduling.Managed != nil:
		return e.Policy.Scheduling.Managed.Contains(atTime)
	case e.Policy.Scheduling.V2G != nil:
		return e.Policy.Scheduling.V2G.ChargeWindow.Contains(atTime)
	default:
		return false
	}
}

// inverterToBattery returns the DC power delivered into the battery from the inverter.
func (e *EVInverter) inverterToBattery(volt float64, atHome bool, atTime time.Time) float64 {
	if !e.chargingAllowed(atHome, atTime) {
		return 0
	}
	chLimit := e.chargeLimitKW(volt)
	chDC := chLimit * Efficiency(chLimit, e.Base.Capability)
	return math.Min(chDC, e.maxCharge)
}

// GetBatteryPower returns the signed EV battery power for this step (positive = charging).
func (e *EVInverter) GetBatteryPower(volt float64, atHome bool, distance, energyPerKM, dtHours float64, atTime time.Time) float64 {
	toInv := e.batteryToInverter(volt, atHome, atTime)
	toWheel := e.batteryToWheel(atHome, distance, energyPerKM, dtHours)
	toBatt := e.inverterToBattery(volt, atHome, atTime)
	return -toInv - toWheel + toBatt
}

// Output returns (p_in, q_in): positive p_in is grid import to charge, negative is V2G export.
// A non-negative net DC power to the battery means charging, so the AC import required is found by
// inverting the efficiency curve with no reactive component. A negative net DC power means the
// battery is discharging through the inverter; the magnitude is run through the normal arbitrated
// generation path and then negated to express it as export.
func (e *EVInverter) Output(pInvDC, volt float64) (p, q float64) {
	if pInvDC >= 0 {
		acEquiv, _ := e.Base.InvertEfficiency(pInvDC)
		return acEquiv, 0
	}
	p, q = e.Base.Output(-pInvDC, volt)
	return -p, -q
}
