// Package battery implements the SOC-tracking energy storage model shared by hybrid PV and EV
// systems.
package battery

import "github.com/google/uuid"

// Config holds the immutable parameters of a Battery.
type Config struct {
	Capacity       float64 // kWh
	SOCInit        float64
	SOCMin         float64
	ChargerEff     float64 // eta_b, (0,1]
	ChargerPowerKW float64
}

// DefaultConfig returns the CER parameter schema defaults of the battery, per the external
// interface's stated defaults.
func DefaultConfig() Config {
	return Config{
		Capacity:       13.5,
		SOCInit:        0.1,
		SOCMin:         0.1,
		ChargerEff:     0.98,
		ChargerPowerKW: 5.0,
	}
}

// Battery is a stateful charge-store. SOC is its only mutable field; everything else is fixed at
// construction.
type Battery struct {
	ID     uuid.UUID
	Label  string
	Config Config
	soc    float64
}

// New constructs a Battery. An SOCInit below SOCMin is clamped up to SOCMin.
func New(label string, cfg Config) *Battery {
	soc := cfg.SOCInit
	if soc < cfg.SOCMin {
		soc = cfg.SOCMin
	}
	return &Battery{
		ID:     uuid.New(),
		Label:  label,
		Config: cfg,
		soc:    soc,
	}
}

// SOC returns the current state of charge, in [SOCMin, 1].
func (b *Battery) SOC() float64 {
	return b.soc
}

// StoredEnergy returns SOC * Capacity, in kWh.
func (b *Battery) StoredEnergy() float64 {
	return b.soc * b.Config.Capacity
}

// MaxChargePower returns the maximum power the battery can accept over a step of length dtHours,
// bounded by the charger's rated power and by how much headroom remains to SOC=1.
func (b *Battery) MaxChargePower(dtHours float64) float64 {
	available := (1.0 - b.soc) * b.Config.Capacity / dtHours / b.Config.ChargerEff
	return min(b.Config.ChargerPowerKW, available)
}

// MaxDischargePower returns the maximum power the battery can deliver over a step of length
// dtHours, bounded by the charger's rated power and by how much energy remains above SOCMin.
func (b *Battery) MaxDischargePower(dtHours float64) float64 {
	available := b.Config.ChargerEff * (b.soc - b.Config.SOCMin) * b.Config.Capacity / dtHours
	return min(b.Config.ChargerPowerKW, available)
}

// Charge advances SOC by the absolute value of power, clamped to MaxChargePower, applied for
// dtHours. power is expected non-negative but its magnitude is taken regardless.
func (b *Battery) Charge(power, dtHours float64) {
	power = abs(power)
	chPower := min(power, b.MaxChargePower(dtHours))
	b.soc += chPower * b.Config.ChargerEff * dtHours / b.Config.Capacity
}

// Discharge reduces SOC by the absolute value of power, clamped to MaxDischargePower, applied for
// dtHours.
func (b *Battery) Discharge(power, dtHours float64) {
	power = abs(power)
	dischPower := min(power, b.MaxDischargePower(dtHours))
	b.soc -= dischPower * dtHours / b.Config.Capacity / b.Config.ChargerEff
}

// ApplySignedPower charges if power >= 0, discharges otherwise - the convention used throughout
// the inverter decision layer where positive battery power means charging.
func (b *Battery) ApplySignedPower(power, dtHours float64) {
	if power >= 0 {
		b.Charge(power, dtHours)
	} else {
		b.Discharge(power, dtHours)
	}
}

// Snapshot is the copy-on-write record of a Battery's only mutable state, used by the convergence
// engine's inner iterations so real batteries are never advanced except on the final
// post-convergence step.
type Snapshot struct {
	battery *Battery
	soc     float64
}

// Snap captures the battery's current SOC into a Snapshot that shares the parent's immutable
// Config by reference.
func (b *Battery) Snap() *Snapshot {
	return &Snapshot{battery: b, soc: b.soc}
}

func (s *Snapshot) SOC() float64 {
	return s.soc
}

func (s *Snapshot) StoredEnergy() float64 {
	return s.soc * s.battery.Config.Capacity
}

func (s *Snapshot) MaxChargePower(dtHours float64) float64 {
	available := (1.0 - s.soc) * s.battery.Config.Capacity / dtHours / s.battery.Config.ChargerEff
	return min(s.battery.Config.ChargerPowerKW, available)
}

func (s *Snapshot) MaxDischargePower(dtHours float64) float64 {
	available := s.battery.Config.ChargerEff * (s.soc - s.battery.Config.SOCMin) * s.battery.Config.Capacity / dtHours
	return min(s.battery.Config.ChargerPowerKW, available)
}

func (s *Snapshot) Charge(power, dtHours float64) {
	power = abs(power)
	chPower := min(power, s.MaxChargePower(dtHours))
	s.soc += chPower * s.battery.Config.ChargerEff * dtHours / s.battery.Config.Capacity
}

func (s *Snapshot) Discharge(power, dtHours float64) {
	power = abs(power)
	dischPower := min(power, s.MaxDischargePower(dtHours))
	s.soc -= dischPower * dtHours / s.battery.Config.Capacity / s.battery.Config.ChargerEff
}

func (s *Snapshot) ApplySignedPower(power, dtHours float64) {
	if power >= 0 {
		s.Charge(power, dtHours)
	} else {
		s.Discharge(power, dtHours)
	}
}

// Commit writes the snapshot's SOC back onto the real battery.
func (s *Snapshot) Commit() {
	s.battery.soc = s.soc
}

// Reset re-synchronises the snapshot's SOC to the real battery's current SOC, discarding any
// charge/discharge applied during a trial iteration that did not lead to convergence.
func (s *Snapshot) Reset() {
	s.soc = s.battery.soc
}

// Store is the charge/discharge surface shared by Battery and Snapshot, letting CER wrappers stay
// agnostic to whether they are driving the real battery or a trial snapshot of it.
type Store interface {
	SOC() float64
	StoredEnergy() float64
	MaxChargePower(dtHours float64) float64
	MaxDischargePower(dtHours float64) float64
	Charge(power, dtHours float64)
	Discharge(power, dtHours float64)
	ApplySignedPower(power, dtHours float64)
}

var (
	_ Store = (*Battery)(nil)
	_ Store = (*Snapshot)(nil)
)

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
