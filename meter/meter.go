// Package meter aggregates a set of CERs behind a common coupling point and decomposes their
// instantaneous power balance into directed energy flows.
package meter

import "github.com/cepro/cersim/cer"

// inverterSource is satisfied by PV and hybrid PV systems: a grid-connected inverter where a
// positive POut means export to the grid.
type inverterSource interface {
	Label() string
	POut() float64
	QOut() float64
}

// batteryPowered is additionally satisfied by hybrid PV systems, whose inverter reports the signed
// power flowing to or from its battery.
type batteryPowered interface {
	BatteryPower() float64
}

// evSource is satisfied by EV systems. A positive POut means the EV is importing (charging); a
// negative POut means it is exporting (V2G discharge).
type evSource interface {
	Label() string
	POut() float64
	QOut() float64
}

// loadSource is satisfied by loads, whose demand is always non-negative.
type loadSource interface {
	Label() string
	POut() float64
}

var (
	_ loadSource     = (*cer.Load)(nil)
	_ inverterSource = (*cer.PVSystem)(nil)
	_ inverterSource = (*cer.HybridPVSystem)(nil)
	_ batteryPowered = (*cer.HybridPVSystem)(nil)
	_ evSource       = (*cer.EVSystem)(nil)
)

// Meter aggregates a set of Loads, Inverters (PV or hybrid PV) and EVSystems behind a single common
// coupling point. It holds borrow-references into CERs owned elsewhere - it reads them, and never
// mutates them.
type Meter struct {
	Label     string
	Loads     []loadSource
	Inverters []inverterSource
	EVs       []evSource
}

// New constructs an empty Meter.
func New(label string) *Meter {
	return &Meter{Label: label}
}

func (m *Meter) AddLoad(l loadSource)         { m.Loads = append(m.Loads, l) }
func (m *Meter) AddInverter(i inverterSource) { m.Inverters = append(m.Inverters, i) }
func (m *Meter) AddEV(e evSource)             { m.EVs = append(m.EVs, e) }

// TotalLoadPower is Sigma(load.p_in), always >= 0.
func (m *Meter) TotalLoadPower() float64 {
	total := 0.0
	for _, l := range m.Loads {
		total += l.POut()
	}
	return total
}

// TotalInverterPower is Sigma(inverter.p_out); positive means net export from this meter's
// inverters.
func (m *Meter) TotalInverterPower() float64 {
	total := 0.0
	for _, inv := range m.Inverters {
		total += inv.POut()
	}
	return total
}

// TotalEVPower is Sigma(ev.p_in); positive means net import (charging) across this meter's EVs.
func (m *Meter) TotalEVPower() float64 {
	total := 0.0
	for _, ev := range m.EVs {
		total += ev.POut()
	}
	return total
}

// BatteryPower sums the battery power reported by every hybrid inverter behind this meter. Plain PV
// inverters and EV systems contribute nothing here - an EV's own battery power is exposed directly
// on cer.EVSystem, not rolled into the meter.
func (m *Meter) BatteryPower() float64 {
	total := 0.0
	for _, inv := range m.Inverters {
		if bp, ok := inv.(batteryPowered); ok {
			total += bp.BatteryPower()
		}
	}
	return total
}

// NetToGrid is Sigma(inv.p_out) - Sigma(ev.p_in) - Sigma(load.p_in); positive means this meter is a
// net exporter to the grid.
func (m *Meter) NetToGrid() float64 {
	return m.TotalInverterPower() - m.TotalEVPower() - m.TotalLoadPower()
}

// Flows is the directed decomposition of the instantaneous power balance at this meter. Every field
// is non-negative.
type Flows struct {
	InverterToLoad  float64
	InverterToEV    float64
	InverterToGrid  float64
	EVToLoad        float64
	EVToInverter    float64
	EVToGrid        float64
	GridToLoad      float64
	GridToEV        float64
}

// Decompose computes the ten-step greedy directed-flow decomposition: inverter export is attributed
// to local load first, then EV charging, then whatever remains goes to the grid; EV discharge is
// attributed to unmet load, then to an importing inverter, then to the grid; grid import covers
// whatever load and EV charging neither the inverter nor a discharging EV could meet.
func (m *Meter) Decompose() Flows {
	sumInv := m.TotalInverterPower()
	sumLoad := m.TotalLoadPower()
	sumEV := m.TotalEVPower()
	net := sumInv - sumEV - sumLoad

	var f Flows

	f.InverterToLoad = min(max(sumInv, 0), sumLoad)
	remainingInv := max(sumInv-f.InverterToLoad, 0)
	f.InverterToEV = min(remainingInv, max(sumEV, 0))
	if net > 0 {
		f.InverterToGrid = remainingInv - f.InverterToEV
	}

	evDischarge := max(-sumEV, 0)
	f.EVToLoad = min(evDischarge, max(sumLoad-f.InverterToLoad, 0))
	f.EVToInverter = min(evDischarge-f.EVToLoad, max(-sumInv, 0))
	if net > 0 {
		f.EVToGrid = evDischarge - f.EVToLoad - f.EVToInverter
	}

	if net < 0 {
		f.GridToLoad = max(sumLoad-f.InverterToLoad-f.EVToLoad, 0)
		f.GridToEV = max(sumEV-f.InverterToEV, 0)
	}

	return f
}
