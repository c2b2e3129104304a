package cer

import (
	"github.com/google/uuid"

	"github.com/cepro/cersim/battery"
	"github.com/cepro/cersim/inverter"
	"github.com/cepro/cersim/vehicle"
)

// EVSystem is an electric vehicle's home charging point: a Vehicle (away/home and driving-distance
// model), a Battery, and an EVInverter deciding when to charge, discharge (V2G) or idle.
type EVSystem struct {
	id       uuid.UUID
	label    string
	Vehicle  *vehicle.Vehicle
	Inverter *inverter.EVInverter
	Battery  battery.Store

	energyPerKM float64 // battery capacity / electric range

	pBatt      float64
	pOut, qOut float64
}

// NewEVSystem constructs an EVSystem. batteryCapacityKWh is used only to derive energy-per-km; the
// battery itself is supplied separately so it can be swapped for a snapshot during trial iterations.
func NewEVSystem(label string, veh *vehicle.Vehicle, bat battery.Store, batteryCapacityKWh float64, cap inverter.Capability, corePol inverter.Policy, evPol inverter.EVPolicy) *EVSystem {
	return &EVSystem{
		id:          uuid.New(),
		label:       label,
		Vehicle:     veh,
		Inverter:    inverter.NewEV(label, cap, corePol, evPol),
		Battery:     bat,
		energyPerKM: batteryCapacityKWh / veh.Config.BatteryRangeKM,
	}
}

func (e *EVSystem) ID() uuid.UUID { return e.id }
func (e *EVSystem) Label() string { return e.label }
func (e *EVSystem) Kind() Kind    { return KindEV }

// Update refreshes the inverter's battery power limits from the current SOC.
func (e *EVSystem) Update(ctx StepContext) {
	e.Inverter.UpdateBatteryPowerLimits(
		e.Battery.MaxChargePower(ctx.DtHours),
		e.Battery.MaxDischargePower(ctx.DtHours),
	)
}

// Step decides the battery power (driving consumption, charging, or V2G discharge), advances SOC,
// and computes the inverter's (P, Q) import/export. While away, the inverter's grid port is always
// zero - driving consumption never reaches the grid, even though it discharges the battery.
func (e *EVSystem) Step(ctx StepContext) (p, q float64) {
	atHome := e.Vehicle.AtHome(ctx.Time)
	distance := e.Vehicle.DistancePerStep()

	e.pBatt = e.Inverter.GetBatteryPower(ctx.Voltage, atHome, distance, e.energyPerKM, ctx.DtHours, ctx.Time)
	e.Battery.ApplySignedPower(e.pBatt, ctx.DtHours)

	pInvDC := e.pBatt
	if e.pBatt < 0 && !atHome {
		pInvDC = 0
	}

	e.pOut, e.qOut = e.Inverter.Output(pInvDC, ctx.Voltage)
	return e.pOut, e.qOut
}

func (e *EVSystem) BatteryPower() float64 { return e.pBatt }
func (e *EVSystem) POut() float64         { return e.pOut }
func (e *EVSystem) QOut() float64         { return e.qOut }

func (e *EVSystem) StatusSnapshot() inverter.Status { return e.Inverter.Base.StatusSnapshot() }
func (e *EVSystem) RestoreStatus(s inverter.Status) { e.Inverter.Base.RestoreStatus(s) }

// BatteryStore and SetBatteryStore let the convergence engine swap the real Battery out for a
// battery.Snapshot for the duration of its trial inner iterations, and back again for the final
// post-convergence step.
func (e *EVSystem) BatteryStore() battery.Store     { return e.Battery }
func (e *EVSystem) SetBatteryStore(s battery.Store) { e.Battery = s }
