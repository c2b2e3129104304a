// Package scenario wires a config.Config and its external input data into a running engine.Engine,
// collecting results.Registers and eventlog.Log as it steps through a scenario.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cepro/cersim/battery"
	"github.com/cepro/cersim/cartesian"
	"github.com/cepro/cersim/cer"
	"github.com/cepro/cersim/config"
	"github.com/cepro/cersim/engine"
	"github.com/cepro/cersim/eventlog"
	"github.com/cepro/cersim/inverter"
	"github.com/cepro/cersim/meter"
	"github.com/cepro/cersim/oracle"
	"github.com/cepro/cersim/results"
	"github.com/cepro/cersim/simerrors"
	"github.com/cepro/cersim/vehicle"
)

// InputData carries the exogenous time series a scenario consumes, one value per timestep.
// Demand series are keyed by CER label (Loads and HybridSystems' local load); irradiance and
// ambient temperature are shared across the whole feeder.
type InputData struct {
	DemandKW     map[string][]float64
	IrradiancePU []float64
	AmbientTempC []float64
}

// Driver owns a built scenario: its CERs, meters, engine, and the registers/event log accumulated
// as it steps.
type Driver struct {
	cfg    config.Config
	input  InputData
	engine *engine.Engine
	meters map[string]*meter.Meter
	cers   []cer.CER

	Registers *results.Registers
	EventLog  *eventlog.Log

	logger *slog.Logger
}

// Build validates cfg and input against each other and constructs every configured CER, wiring
// them into meters and an engine.Engine against ora.
func Build(cfg config.Config, input InputData, ora oracle.Oracle, logger *slog.Logger) (*Driver, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Steps <= 0 {
		return nil, simerrors.NewConfigurationError("scenario", "steps must be positive")
	}
	if len(input.IrradiancePU) < cfg.Steps {
		return nil, simerrors.NewInputMismatchError("irradiance", fmt.Sprintf("have %d samples, need %d", len(input.IrradiancePU), cfg.Steps))
	}
	if len(input.AmbientTempC) < cfg.Steps {
		return nil, simerrors.NewInputMismatchError("ambientTemp", fmt.Sprintf("have %d samples, need %d", len(input.AmbientTempC), cfg.Steps))
	}

	byLabel := map[string]cer.CER{}
	meters := map[string]*meter.Meter{}
	for _, mc := range cfg.Meters {
		meters[mc.Label] = meter.New(mc.Label)
	}

	var cers []cer.CER

	for _, lc := range cfg.Loads {
		if err := requireDemand(input, lc.Label, cfg.Steps); err != nil {
			return nil, err
		}
		l := cer.NewLoad(lc.Label, lc.PowerFactor)
		byLabel[lc.Label] = l
		cers = append(cers, l)
		if m, ok := meters[lc.MeterLabel]; ok {
			m.AddLoad(l)
		}
	}

	for _, pc := range cfg.PVSystems {
		pol, err := buildPolicy(pc.Policy)
		if err != nil {
			return nil, simerrors.NewConfigurationError(pc.Label, err.Error())
		}
		cap := buildCapability(pc.Capability)
		pv := cer.NewPVSystem(pc.Label, buildPanel(pc.Panel), cap, pol)
		byLabel[pc.Label] = pv
		cers = append(cers, pv)
		if m, ok := meters[pc.MeterLabel]; ok {
			m.AddInverter(pv)
		}
	}

	for _, hc := range cfg.HybridSystems {
		if err := requireDemand(input, hc.Label, cfg.Steps); err != nil {
			return nil, err
		}
		pol, err := buildPolicy(hc.Policy)
		if err != nil {
			return nil, simerrors.NewConfigurationError(hc.Label, err.Error())
		}
		sched, err := buildHybridScheduling(hc.Scheduling)
		if err != nil {
			return nil, simerrors.NewConfigurationError(hc.Label, err.Error())
		}
		cap := buildCapability(hc.Capability)
		batCfg := buildBatteryConfig(hc.Battery)
		bat := battery.New(hc.Label, batCfg)
		hybridPol := inverter.HybridPolicy{Scheduling: sched, ChargingVoltWatt: curveOrNil(hc.ChargingVoltWatt)}
		h := cer.NewHybridPVSystem(hc.Label, buildPanel(hc.Panel), bat, cap, pol, hybridPol)
		byLabel[hc.Label] = h
		cers = append(cers, h)
		if m, ok := meters[hc.MeterLabel]; ok {
			m.AddInverter(h)
		}
	}

	for _, ec := range cfg.EVSystems {
		pol, err := buildPolicy(ec.Policy)
		if err != nil {
			return nil, simerrors.NewConfigurationError(ec.Label, err.Error())
		}
		sched, err := buildEVScheduling(ec.Scheduling)
		if err != nil {
			return nil, simerrors.NewConfigurationError(ec.Label, err.Error())
		}
		cap := buildCapability(ec.Capability)
		batCfg := buildBatteryConfig(ec.Battery)
		bat := battery.New(ec.Label, batCfg)
		vehCfg := vehicle.Config{
			DailyDistanceKM: ec.Vehicle.DailyDistanceKM,
			AwayIntervals:   ec.Vehicle.AwayIntervals,
			BatteryRangeKM:  ec.Vehicle.BatteryRangeKM,
		}
		if vehCfg.DailyDistanceKM == 0 && vehCfg.BatteryRangeKM == 0 {
			vehCfg = vehicle.DefaultConfig()
		}
		veh := vehicle.New(ec.Label, vehCfg, cfg.TimestepMinutes)
		evPol := inverter.EVPolicy{Scheduling: sched, ChargingVoltWatt: curveOrNil(ec.ChargingVoltWatt)}
		e := cer.NewEVSystem(ec.Label, veh, bat, batCfg.Capacity, cap, pol, evPol)
		byLabel[ec.Label] = e
		cers = append(cers, e)
		if m, ok := meters[ec.MeterLabel]; ok {
			m.AddEV(e)
		}
	}

	for _, mc := range cfg.Meters {
		for _, labels := range [][]string{mc.Loads, mc.PVSystems, mc.HybridSystems, mc.EVSystems} {
			for _, label := range labels {
				if _, ok := byLabel[label]; !ok {
					return nil, simerrors.NewInputMismatchError(mc.Label, fmt.Sprintf("meter references unknown CER %q", label))
				}
			}
		}
	}

	tol := cfg.Tolerances.Resolve()
	relax := cfg.Relaxation.Resolve()
	eng := engine.New(cers, ora, tol, relax, engine.DefaultMaxIterations, logger)

	return &Driver{
		cfg:       cfg,
		input:     input,
		engine:    eng,
		meters:    meters,
		cers:      cers,
		Registers: results.New(float64(cfg.TimestepMinutes) / 60.0),
		EventLog:  eventlog.New(),
		logger:    logger,
	}, nil
}

func requireDemand(input InputData, label string, steps int) error {
	series, ok := input.DemandKW[label]
	if !ok {
		return simerrors.NewInputMismatchError(label, "no demand series supplied")
	}
	if len(series) < steps {
		return simerrors.NewInputMismatchError(label, fmt.Sprintf("have %d samples, need %d", len(series), steps))
	}
	return nil
}

func curveOrNil(points []cartesian.Point) *cartesian.Curve {
	if len(points) == 0 {
		return nil
	}
	c := cartesian.Curve{Points: points}
	return &c
}

func buildCapability(cc config.CapabilityConfig) inverter.Capability {
	cap := inverter.DefaultCapability()
	if cc.RatedKVA != 0 {
		cap.RatedKVA = cc.RatedKVA
	}
	if len(cc.EfficiencyCurve) > 0 {
		cap.EfficiencyCurve = cartesian.Curve{Points: cc.EfficiencyCurve}
	}
	if cc.CutIn != 0 {
		cap.CutIn = cc.CutIn
	}
	if cc.CutOut != 0 {
		cap.CutOut = cc.CutOut
	}
	if cc.NightModeEnabled != nil {
		cap.NightModeEnabled = *cc.NightModeEnabled
	}
	return cap
}

func buildPanel(pc config.PanelConfig) cer.PanelConfig {
	panel := cer.DefaultPanelConfig()
	if pc.PeakPowerKW != 0 {
		panel.PeakPowerKW = pc.PeakPowerKW
	}
	if len(pc.TempDerating) > 0 {
		panel.TempDerating = cartesian.Curve{Points: pc.TempDerating}
	}
	return panel
}

func buildBatteryConfig(bc config.BatteryConfig) battery.Config {
	cfg := battery.DefaultConfig()
	if bc.Capacity != 0 {
		cfg.Capacity = bc.Capacity
	}
	if bc.SOCInit != 0 {
		cfg.SOCInit = bc.SOCInit
	}
	if bc.SOCMin != 0 {
		cfg.SOCMin = bc.SOCMin
	}
	if bc.ChargerEff != 0 {
		cfg.ChargerEff = bc.ChargerEff
	}
	if bc.ChargerPowerKW != 0 {
		cfg.ChargerPowerKW = bc.ChargerPowerKW
	}
	return cfg
}

func buildPolicy(pc config.PolicyConfig) (inverter.Policy, error) {
	if pc.VoltWatt != nil && pc.ExportLimit != nil {
		return inverter.Policy{}, fmt.Errorf("at most one of voltWatt/exportLimit may be set")
	}
	if pc.VoltVar != nil && pc.PowerFactor != nil {
		return inverter.Policy{}, fmt.Errorf("at most one of voltVar/powerFactor may be set")
	}

	pol := inverter.Policy{
		VoltWatt:    curveOrNil(pc.VoltWatt),
		ExportLimit: pc.ExportLimit,
		VoltVar:     curveOrNil(pc.VoltVar),
		PowerFactor: pc.PowerFactor,
	}
	for _, c := range []*cartesian.Curve{pol.VoltWatt, pol.VoltVar} {
		if c != nil && !c.StrictlyIncreasingX() {
			return inverter.Policy{}, fmt.Errorf("control curve X values must be strictly increasing")
		}
	}

	switch pc.OutputPriority {
	case "", "watt":
		pol.OutputPriority = inverter.PriorityWatt
	case "var":
		pol.OutputPriority = inverter.PriorityVar
	case "pf":
		pol.OutputPriority = inverter.PriorityPF
	default:
		return inverter.Policy{}, fmt.Errorf("unknown outputPriority %q", pc.OutputPriority)
	}

	return pol, nil
}

func buildHybridScheduling(sc config.HybridSchedulingConfig) (inverter.HybridScheduling, error) {
	set := 0
	if sc.MaximiseSelfConsumption {
		set++
	}
	if sc.TimeOfUse != nil {
		set++
	}
	if set != 1 {
		return inverter.HybridScheduling{}, fmt.Errorf("exactly one of maximiseSelfConsumption/timeOfUse must be set")
	}

	sched := inverter.HybridScheduling{MaximiseSelfConsumption: sc.MaximiseSelfConsumption}
	if sc.TimeOfUse != nil {
		sched.TimeOfUse = &inverter.TimeOfUseWindows{
			ChargeWindow:    sc.TimeOfUse.ChargeWindow,
			DischargeWindow: sc.TimeOfUse.DischargeWindow,
		}
	}
	return sched, nil
}

func buildEVScheduling(sc config.EVSchedulingConfig) (inverter.EVScheduling, error) {
	set := 0
	if sc.Unmanaged {
		set++
	}
	if sc.Managed != nil {
		set++
	}
	if sc.V2G != nil {
		set++
	}
	if set != 1 {
		return inverter.EVScheduling{}, fmt.Errorf("exactly one of unmanaged/managed/v2g must be set")
	}

	sched := inverter.EVScheduling{Unmanaged: sc.Unmanaged, Managed: sc.Managed}
	if sc.V2G != nil {
		sched.V2G = &inverter.TimeOfUseWindows{
			ChargeWindow:    sc.V2G.ChargeWindow,
			DischargeWindow: sc.V2G.DischargeWindow,
		}
	}
	return sched, nil
}

// Run steps the scenario from its configured start time for cfg.Steps timesteps, recording a
// results.TimestepResult and any non-convergence eventlog.Log entry for each. A timestep whose
// oracle solve fails is logged as an oracle error and skipped, with no TimestepResult.
func (d *Driver) Run(ctx context.Context) error {
	dtHours := float64(d.cfg.TimestepMinutes) / 60.0

	d.logger.Info("scenario starting",
		"steps", d.cfg.Steps,
		"timestep_minutes", d.cfg.TimestepMinutes,
		"start_time", d.cfg.StartTime,
		"cers", len(d.cers),
	)

	for i := 0; i < d.cfg.Steps; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		t := d.cfg.StartTime.Add(time.Duration(i) * time.Duration(d.cfg.TimestepMinutes) * time.Minute)

		build := func(c cer.CER, voltage float64) cer.StepContext {
			return cer.StepContext{
				Time:         t,
				DtHours:      dtHours,
				Voltage:      voltage,
				Irradiance:   d.input.IrradiancePU[i],
				AmbientTempC: d.input.AmbientTempC[i],
				Demand:       demandAt(d.input, c.Label(), i),
			}
		}

		stepRes, err := d.engine.Step(t, dtHours, build)
		if err != nil {
			var oracleErr *simerrors.OracleError
			if errors.As(err, &oracleErr) {
				d.EventLog.RecordOracleError(i, t, err)
				d.logger.Warn("oracle error, continuing to next timestep", "timestep", i, "time", t, "err", err)
				continue
			}
			return fmt.Errorf("timestep %d: %w", i, err)
		}

		if nc := stepRes.NonConvergence; nc != nil {
			d.EventLog.RecordNonConvergence(i, t, nc.Iterations, nc.MaxDeltaV)
		}

		d.Registers.Append(d.collect(i, t, stepRes))
	}

	d.logger.Info("scenario complete",
		"steps", d.cfg.Steps,
		"non_convergences", len(d.EventLog.NonConvergences),
		"oracle_errors", len(d.EventLog.OracleErrors),
	)

	return nil
}

func demandAt(input InputData, label string, i int) float64 {
	series, ok := input.DemandKW[label]
	if !ok || i >= len(series) {
		return 0
	}
	return series[i]
}

// collect assembles a results.TimestepResult from the engine's StepResult and the current state of
// every CER and meter.
func (d *Driver) collect(i int, t time.Time, stepRes engine.StepResult) results.TimestepResult {
	tr := results.TimestepResult{
		Timestep:               i,
		Time:                   t,
		Voltages:               map[string]results.VoltageReading{},
		LinePct:                linePct(stepRes),
		Totals:                 stepRes.Totals,
		PV:                     map[string]results.PVRegister{},
		BatteryStoredEnergyKWh: map[string]float64{},
		EVStoredEnergyKWh:      map[string]float64{},
		Flows:                  map[string]meter.Flows{},
		Converged:              stepRes.Converged,
		Iterations:             stepRes.Iterations,
	}

	for label, v := range stepRes.V {
		tr.Voltages[label] = results.VoltageReading{PU: v, VUF: stepRes.VUF[label]}
	}

	for _, c := range d.cers {
		switch v := c.(type) {
		case *cer.PVSystem:
			tr.PV["pv_"+v.Label()] = results.PVRegister{
				DCGenerationKW:    v.DCGeneration(),
				ACPotentialKW:     v.ACPotentialOutput(),
				ACCurtailmentKW:   v.ACCurtailment(),
				DCCurtailmentKW:   v.DCCurtailment(),
				ActivePowerKW:     v.POut(),
				ReactivePowerKVAr: v.QOut(),
			}
		case *cer.HybridPVSystem:
			tr.PV["hybridpv_"+v.Label()] = results.PVRegister{
				DCGenerationKW:    v.DCGeneration(),
				ACPotentialKW:     v.ACPotentialOutput(),
				ACCurtailmentKW:   v.ACCurtailment(),
				DCCurtailmentKW:   v.DCCurtailment(),
				ActivePowerKW:     v.POut(),
				ReactivePowerKVAr: v.QOut(),
			}
			tr.BatteryStoredEnergyKWh[v.Label()] = v.BatteryStore().StoredEnergy()
		case *cer.EVSystem:
			tr.EVStoredEnergyKWh[v.Label()] = v.BatteryStore().StoredEnergy()
		}
	}

	for label, m := range d.meters {
		tr.Flows[label] = m.Decompose()
	}

	return tr
}

func linePct(stepRes engine.StepResult) map[string]oracle.PhaseCurrents {
	pct := make(map[string]oracle.PhaseCurrents, len(stepRes.LineCurrents))
	for line, currents := range stepRes.LineCurrents {
		rating, ok := stepRes.LineRatings[line]
		if !ok || rating == 0 {
			continue
		}
		pct[line] = oracle.PhaseCurrents{
			A: 100 * currents.A / rating,
			B: 100 * currents.B / rating,
			C: 100 * currents.C / rating,
		}
	}
	return pct
}

// ScenarioID returns a fresh identifier suitable for tagging a persistence.Store.SaveScenario call.
func ScenarioID() uuid.UUID {
	return uuid.New()
}
