// Package config defines the scenario configuration schema and its JSON loader.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/cepro/cersim/cartesian"
	"github.com/cepro/cersim/engine"
	"github.com/cepro/cersim/timeutils"
	"github.com/google/uuid"
)

// ToleranceConfig mirrors engine.Tolerances.
type ToleranceConfig struct {
	VoltagePU    float64 `json:"voltagePU"`
	ActiveKW     float64 `json:"activeKW"`
	ReactiveKVAr float64 `json:"reactiveKVAr"`
}

// RelaxationConfig mirrors engine.Relaxation.
type RelaxationConfig struct {
	Initial float64 `json:"initial"`
	AHi     float64 `json:"aHi"`
	ALo     float64 `json:"aLo"`
	BLo     float64 `json:"bLo"`
	BHi     float64 `json:"bHi"`
}

// Resolve fills any zero-valued field with the engine default and converts to engine.Tolerances.
func (t ToleranceConfig) Resolve() engine.Tolerances {
	d := engine.DefaultTolerances()
	if t.VoltagePU == 0 {
		t.VoltagePU = d.VoltagePU
	}
	if t.ActiveKW == 0 {
		t.ActiveKW = d.ActiveKW
	}
	if t.ReactiveKVAr == 0 {
		t.ReactiveKVAr = d.ReactiveKVAr
	}
	return engine.Tolerances{VoltagePU: t.VoltagePU, ActiveKW: t.ActiveKW, ReactiveKVAr: t.ReactiveKVAr}
}

// Resolve fills any zero-valued field with the engine default and converts to engine.Relaxation.
func (r RelaxationConfig) Resolve() engine.Relaxation {
	d := engine.DefaultRelaxation()
	if r.Initial == 0 {
		r.Initial = d.Initial
	}
	if r.AHi == 0 {
		r.AHi = d.AHi
	}
	if r.ALo == 0 {
		r.ALo = d.ALo
	}
	if r.BLo == 0 {
		r.BLo = d.BLo
	}
	if r.BHi == 0 {
		r.BHi = d.BHi
	}
	return engine.Relaxation{Initial: r.Initial, AHi: r.AHi, ALo: r.ALo, BLo: r.BLo, BHi: r.BHi}
}

// BatteryConfig mirrors battery.Config with JSON tags; zero fields resolve to battery.DefaultConfig.
type BatteryConfig struct {
	Capacity       float64 `json:"capacity"`
	SOCInit        float64 `json:"socInit"`
	SOCMin         float64 `json:"socMin"`
	ChargerEff     float64 `json:"chargerEff"`
	ChargerPowerKW float64 `json:"chargerPowerKW"`
}

// CapabilityConfig mirrors inverter.Capability.
type CapabilityConfig struct {
	RatedKVA         float64           `json:"ratedKVA"`
	EfficiencyCurve  []cartesian.Point `json:"efficiencyCurve"`
	CutIn            float64           `json:"cutIn"`
	CutOut           float64           `json:"cutOut"`
	NightModeEnabled *bool             `json:"nightModeEnabled"`
}

// PolicyConfig mirrors inverter.Policy.
type PolicyConfig struct {
	VoltWatt       []cartesian.Point `json:"voltWatt"`
	ExportLimit    *float64          `json:"exportLimit"`
	VoltVar        []cartesian.Point `json:"voltVar"`
	PowerFactor    *float64          `json:"powerFactor"`
	OutputPriority string            `json:"outputPriority"` // "watt" | "var" | "pf"
}

// PanelConfig mirrors cer.PanelConfig.
type PanelConfig struct {
	PeakPowerKW  float64           `json:"peakPowerKW"`
	TempDerating []cartesian.Point `json:"tempDerating"`
}

// ClockTimePeriodConfig mirrors timeutils.ClockTimePeriod with "HH:MM" string bounds, relying on
// ClockTime's own JSON (un)marshalling.
type ClockTimePeriodConfig = timeutils.ClockTimePeriod

// TimeOfUseConfig mirrors inverter.TimeOfUseWindows.
type TimeOfUseConfig struct {
	ChargeWindow    ClockTimePeriodConfig `json:"chargeWindow"`
	DischargeWindow ClockTimePeriodConfig `json:"dischargeWindow"`
}

// HybridSchedulingConfig mirrors inverter.HybridScheduling. Exactly one of the two fields should be
// set; validated at build time in the scenario package.
type HybridSchedulingConfig struct {
	MaximiseSelfConsumption bool             `json:"maximiseSelfConsumption"`
	TimeOfUse               *TimeOfUseConfig `json:"timeOfUse"`
}

// EVSchedulingConfig mirrors inverter.EVScheduling. Exactly one field should be set; validated at
// build time in the scenario package.
type EVSchedulingConfig struct {
	Unmanaged bool                   `json:"unmanaged"`
	Managed   *ClockTimePeriodConfig `json:"managed"`
	V2G       *TimeOfUseConfig       `json:"v2g"`
}

// VehicleConfig mirrors vehicle.Config.
type VehicleConfig struct {
	DailyDistanceKM float64                 `json:"dailyDistanceKM"`
	AwayIntervals   []ClockTimePeriodConfig `json:"awayIntervals"`
	BatteryRangeKM  float64                 `json:"batteryRangeKM"`
}

// LoadConfig configures a cer.Load.
type LoadConfig struct {
	Label       string  `json:"label"`
	PowerFactor float64 `json:"powerFactor"`
	MeterLabel  string  `json:"meter"`
}

// PVSystemConfig configures a cer.PVSystem.
type PVSystemConfig struct {
	Label        string           `json:"label"`
	Panel        PanelConfig      `json:"panel"`
	Capability   CapabilityConfig `json:"capability"`
	Policy       PolicyConfig     `json:"policy"`
	MeterLabel   string           `json:"meter"`
}

// HybridSystemConfig configures a cer.HybridPVSystem.
type HybridSystemConfig struct {
	Label            string                 `json:"label"`
	Panel            PanelConfig            `json:"panel"`
	Battery          BatteryConfig          `json:"battery"`
	Capability       CapabilityConfig       `json:"capability"`
	Policy           PolicyConfig           `json:"policy"`
	Scheduling       HybridSchedulingConfig `json:"scheduling"`
	ChargingVoltWatt []cartesian.Point      `json:"chargingVoltWatt"`
	MeterLabel       string                 `json:"meter"`
}

// EVSystemConfig configures a cer.EVSystem.
type EVSystemConfig struct {
	Label            string             `json:"label"`
	Vehicle          VehicleConfig      `json:"vehicle"`
	Battery          BatteryConfig      `json:"battery"`
	Capability       CapabilityConfig   `json:"capability"`
	Policy           PolicyConfig       `json:"policy"`
	Scheduling       EVSchedulingConfig `json:"scheduling"`
	ChargingVoltWatt []cartesian.Point  `json:"chargingVoltWatt"`
	MeterLabel       string             `json:"meter"`
}

// MeterConfig names the Loads/PVSystems/HybridSystems/EVSystems behind a single meter, by label.
type MeterConfig struct {
	Label         string   `json:"label"`
	Loads         []string `json:"loads"`
	PVSystems     []string `json:"pvSystems"`
	HybridSystems []string `json:"hybridSystems"`
	EVSystems     []string `json:"evSystems"`
}

// PersistenceConfig configures the optional SQLite archival store.
type PersistenceConfig struct {
	Path       string    `json:"path"`
	ScenarioID uuid.UUID `json:"scenarioID"`
}

// Config is the top-level scenario configuration document.
type Config struct {
	TimestepMinutes int              `json:"timestepMinutes"`
	Steps           int              `json:"steps"`
	StartTime       time.Time        `json:"startTime"`
	Tolerances      ToleranceConfig  `json:"tolerances"`
	Relaxation      RelaxationConfig `json:"relaxation"`

	Loads         []LoadConfig         `json:"loads"`
	PVSystems     []PVSystemConfig     `json:"pvSystems"`
	HybridSystems []HybridSystemConfig `json:"hybridSystems"`
	EVSystems     []EVSystemConfig     `json:"evSystems"`
	Meters        []MeterConfig        `json:"meters"`

	Persistence *PersistenceConfig `json:"persistence,omitempty"`
}

// Read loads and parses a scenario configuration document from path.
func Read(path string) (Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(content, &config); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	return config, nil
}
