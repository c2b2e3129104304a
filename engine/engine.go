// Package engine implements the CER convergence engine: the per-timestep fixed-point iteration
// that drives the tuple (voltage, P, Q) at every CER to a simultaneous solution with the power-flow
// oracle, via adaptive per-CER relaxation on P and Q.
package engine

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/cepro/cersim/battery"
	"github.com/cepro/cersim/cer"
	"github.com/cepro/cersim/inverter"
	"github.com/cepro/cersim/oracle"
	"github.com/cepro/cersim/simerrors"
)

// Tolerances are the convergence engine's default tolerances: T_V, T_P, T_Q.
type Tolerances struct {
	VoltagePU    float64
	ActiveKW     float64
	ReactiveKVAr float64
}

// DefaultTolerances returns the default T_V, T_P, T_Q.
func DefaultTolerances() Tolerances {
	return Tolerances{VoltagePU: 1e-5, ActiveKW: 6e-4, ReactiveKVAr: 6e-4}
}

// Relaxation holds the adaptive step-rule coefficients. One set drives both the P and Q tracks;
// the tracks are not tuned separately.
type Relaxation struct {
	Initial float64
	AHi     float64
	ALo     float64
	BLo     float64
	BHi     float64
}

// DefaultRelaxation returns the default step-rule coefficients (0.10/0.05/0.10/0.05, initial 0.5).
func DefaultRelaxation() Relaxation {
	return Relaxation{Initial: 0.5, AHi: 0.10, ALo: 0.05, BLo: 0.10, BHi: 0.05}
}

// DefaultMaxIterations is K_max.
const DefaultMaxIterations = 300

// statusBearer is satisfied by every CER kind that owns an inverter (PV, hybrid PV, EV) and
// therefore carries an on/off hysteresis latch that must be snapshotted and restored alongside SOC.
type statusBearer interface {
	StatusSnapshot() inverter.Status
	RestoreStatus(inverter.Status)
}

// batteryBearer is satisfied by the two CER kinds that own a battery (hybrid PV, EV): their battery
// field is swapped for a battery.Snapshot during the engine's trial inner iterations.
type batteryBearer interface {
	BatteryStore() battery.Store
	SetBatteryStore(battery.Store)
}

// ContextBuilder supplies the exogenous inputs (demand, irradiance, temperature, ...) for a CER at
// the given trial voltage. The engine calls it once per CER per iteration; the scenario driver is
// the usual implementer, since it alone knows each CER's input time series.
type ContextBuilder func(c cer.CER, voltage float64) cer.StepContext

type perCER struct {
	c cer.CER

	pActive, qActive bool

	// loop-local state, reset at the start of every timestep
	deltaP, deltaQ   float64
	oldDeltaV        float64
	vPrev, pPrev, qPrev float64

	// persisted across timesteps: the last converged voltage, carried in as iteration 0's v_cur
	vCarry float64

	sb  statusBearer  // nil if this CER has no inverter
	bb  batteryBearer // nil if this CER has no battery
	realBattery battery.Store
	startStatus inverter.Status
}

// Engine runs the per-timestep fixed-point iteration against a fixed set of CERs and a single
// Oracle.
type Engine struct {
	Oracle        oracle.Oracle
	Tolerances    Tolerances
	Relaxation    Relaxation
	MaxIterations int
	Logger        *slog.Logger

	cers     []*perCER
	timestep int
}

// New constructs an Engine over the given CERs. p_active/q_active are derived once here from each
// CER's inverter policy (Volt-Watt enables p_active, Volt-VAr enables q_active; Loads have neither).
func New(cers []cer.CER, ora oracle.Oracle, tol Tolerances, relax Relaxation, maxIterations int, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		Oracle:        ora,
		Tolerances:    tol,
		Relaxation:    relax,
		MaxIterations: maxIterations,
		Logger:        logger,
	}
	for _, c := range cers {
		pc := &perCER{c: c, vCarry: 1.0}
		pActive, qActive := activeFlags(c)
		pc.pActive, pc.qActive = pActive, qActive
		if sb, ok := c.(statusBearer); ok {
			pc.sb = sb
		}
		if bb, ok := c.(batteryBearer); ok {
			pc.bb = bb
			pc.realBattery = bb.BatteryStore()
		}
		e.cers = append(e.cers, pc)
	}
	return e
}

// activeFlags inspects a CER's inverter policy (if any): Volt-Watt makes the P track relaxable,
// Volt-VAr the Q track. Loads have neither and pass through unrelaxed.
func activeFlags(c cer.CER) (pActive, qActive bool) {
	switch v := c.(type) {
	case *cer.PVSystem:
		return v.Inverter.Policy.VoltWatt != nil, v.Inverter.Policy.VoltVar != nil
	case *cer.HybridPVSystem:
		return v.Inverter.Base.Policy.VoltWatt != nil, v.Inverter.Base.Policy.VoltVar != nil
	case *cer.EVSystem:
		return v.Inverter.Base.Policy.VoltWatt != nil, v.Inverter.Base.Policy.VoltVar != nil
	default:
		return false, false
	}
}

// StepResult reports one timestep's final, converged (or last-attempted) per-CER outputs.
type StepResult struct {
	Converged  bool
	Iterations int
	MaxDeltaV  float64

	// NonConvergence is set when the iteration cap was reached without meeting the tolerances.
	// It is carried on the result rather than returned as an error because the condition is
	// non-fatal: the last attempted set-points are still valid output.
	NonConvergence *simerrors.NonConvergence

	P, Q, V, VUF map[string]float64 // keyed by CER label

	Totals       oracle.Totals
	LineCurrents map[string]oracle.PhaseCurrents
	LineRatings  map[string]float64
}

// Step runs the fixed-point iteration for one timestep, then advances the real CERs exactly once.
func (e *Engine) Step(t time.Time, dtHours float64, build ContextBuilder) (StepResult, error) {
	e.timestep++
	e.beginTimestep()

	converged := false
	iterations := 0
	maxDeltaV := 0.0
	finalV := make(map[*perCER]float64, len(e.cers))

	type outcome struct {
		pOut, qOut, vCur float64
	}

	// Iteration 0 is a pass-through: evaluate every CER at the voltage carried from the previous
	// timestep, with no relaxation and no convergence check (there is nothing yet to compare
	// against), then push those set-points to the oracle to seed vPrev/pPrev/qPrev for iteration 1.
	e.resetSnapshots()
	seed := make(map[*perCER]outcome, len(e.cers))
	for _, pc := range e.cers {
		vCur := pc.vCarry
		ctx := build(pc.c, vCur)
		pc.c.Update(ctx)
		pInv, qInv := pc.c.Step(ctx)
		seed[pc] = outcome{pOut: pInv, qOut: qInv, vCur: vCur}
		finalV[pc] = vCur
	}
	for pc, o := range seed {
		e.Oracle.SetInjection(pc.c.ID(), o.pOut, o.qOut)
	}
	if err := e.Oracle.Solve(); err != nil {
		return StepResult{}, &simerrors.OracleError{Timestep: e.timestep, Err: err}
	}
	for pc, o := range seed {
		pc.vPrev, pc.pPrev, pc.qPrev = o.vCur, o.pOut, o.qOut
	}
	iterations = 1

	for iter := 1; iter < e.MaxIterations; iter++ {
		iterations = iter + 1
		e.resetSnapshots()

		allConverged := true
		maxDeltaV = 0.0
		outcomes := make(map[*perCER]outcome, len(e.cers))

		for _, pc := range e.cers {
			vCur := e.Oracle.VoltagePU(pc.c.ID())
			deltaV := math.Abs(vCur - pc.vPrev)

			applyAdaptiveRule(&pc.deltaP, pc.pActive, deltaV, pc.oldDeltaV, e.Relaxation)
			applyAdaptiveRule(&pc.deltaQ, pc.qActive, deltaV, pc.oldDeltaV, e.Relaxation)
			pc.oldDeltaV = deltaV
			if deltaV > maxDeltaV {
				maxDeltaV = deltaV
			}

			ctx := build(pc.c, vCur)
			pc.c.Update(ctx)
			pInv, qInv := pc.c.Step(ctx)

			pOut := relax(pc.pActive, pc.pPrev, pInv, pc.deltaP)
			qOut := relax(pc.qActive, pc.qPrev, qInv, pc.deltaQ)

			if deltaV > e.Tolerances.VoltagePU ||
				math.Abs(pOut-pInv) > e.Tolerances.ActiveKW ||
				math.Abs(qOut-qInv) > e.Tolerances.ReactiveKVAr {
				allConverged = false
			}

			outcomes[pc] = outcome{pOut: pOut, qOut: qOut, vCur: vCur}
		}

		if allConverged {
			converged = true
			for pc, o := range outcomes {
				finalV[pc] = o.vCur
			}
			break
		}

		for pc, o := range outcomes {
			e.Oracle.SetInjection(pc.c.ID(), o.pOut, o.qOut)
		}
		if err := e.Oracle.Solve(); err != nil {
			return StepResult{}, &simerrors.OracleError{Timestep: e.timestep, Err: err}
		}

		for pc, o := range outcomes {
			pc.vPrev, pc.pPrev, pc.qPrev = o.vCur, o.pOut, o.qOut
			finalV[pc] = o.vCur
		}
	}

	var ncErr *simerrors.NonConvergence
	if !converged {
		ncErr = &simerrors.NonConvergence{Timestep: e.timestep, Iterations: iterations, MaxDeltaV: maxDeltaV}
		e.Logger.Warn("convergence error!", "time", t, "err", ncErr)
	}

	res, err := e.finalise(t, dtHours, build, converged, iterations, maxDeltaV, finalV)
	if err != nil {
		return StepResult{}, err
	}
	res.NonConvergence = ncErr
	return res, nil
}

// beginTimestep resets every CER's loop-local relaxation state ahead of a fresh inner iteration.
func (e *Engine) beginTimestep() {
	for _, pc := range e.cers {
		pc.deltaP, pc.deltaQ = e.Relaxation.Initial, e.Relaxation.Initial
		pc.oldDeltaV = 0
		if pc.sb != nil {
			pc.startStatus = pc.sb.StatusSnapshot()
		}
		if pc.bb != nil {
			if _, isSnap := pc.bb.BatteryStore().(*battery.Snapshot); !isSnap {
				pc.realBattery = pc.bb.BatteryStore()
			}
		}
	}
}

// resetSnapshots rewinds every CER's trial state (battery SOC, inverter status) back to the value
// it held at the start of this timestep, so that K_max trial iterations never accumulate charge or
// status transitions against each other.
func (e *Engine) resetSnapshots() {
	for _, pc := range e.cers {
		if pc.sb != nil {
			pc.sb.RestoreStatus(pc.startStatus)
		}
		if pc.bb != nil {
			if snap, ok := pc.bb.BatteryStore().(*battery.Snapshot); ok {
				snap.Reset()
			} else if real, ok := pc.realBattery.(*battery.Battery); ok {
				pc.bb.SetBatteryStore(real.Snap())
			}
		}
	}
}

// finalise runs the real (non-snapshot) CERs through one last Update+Step at the converged (or
// last-attempted) voltage, advancing SOC and the status latch exactly once, then pushes the final
// injections and solves once more to collect line currents and totals.
func (e *Engine) finalise(t time.Time, dtHours float64, build ContextBuilder, converged bool, iterations int, maxDeltaV float64, finalV map[*perCER]float64) (StepResult, error) {
	res := StepResult{
		Converged:  converged,
		Iterations: iterations,
		MaxDeltaV:  maxDeltaV,
		P:          map[string]float64{},
		Q:          map[string]float64{},
		V:          map[string]float64{},
		VUF:        map[string]float64{},
	}

	for _, pc := range e.cers {
		if pc.sb != nil {
			pc.sb.RestoreStatus(pc.startStatus)
		}
		if pc.bb != nil {
			pc.bb.SetBatteryStore(pc.realBattery)
		}

		v := finalV[pc]
		ctx := build(pc.c, v)
		pc.c.Update(ctx)
		p, q := pc.c.Step(ctx)

		e.Oracle.SetInjection(pc.c.ID(), p, q)

		res.P[pc.c.Label()] = p
		res.Q[pc.c.Label()] = q
		res.V[pc.c.Label()] = v

		pc.vCarry = v
	}

	if err := e.Oracle.Solve(); err != nil {
		return StepResult{}, fmt.Errorf("final solve: %w", &simerrors.OracleError{Timestep: e.timestep, Err: err})
	}

	res.Totals = e.Oracle.Totals()
	res.LineCurrents = e.Oracle.LineCurrents()
	res.LineRatings = e.Oracle.LineRatings()

	for _, pc := range e.cers {
		res.V[pc.c.Label()] = e.Oracle.VoltagePU(pc.c.ID())
		res.VUF[pc.c.Label()] = e.Oracle.VoltageUnbalancePct(pc.c.ID())
		pc.vCarry = res.V[pc.c.Label()]
	}

	return res, nil
}

// applyAdaptiveRule nudges one track's relaxation factor based on how the voltage error is
// trending: a slowly-shrinking or growing |delta V| shrinks the factor, a rapidly-shrinking one
// grows it. The caller updates oldDeltaV unconditionally for both tracks after applying the rule.
func applyAdaptiveRule(delta *float64, active bool, deltaV, oldDeltaV float64, r Relaxation) {
	if !active {
		return
	}
	switch {
	case deltaV > 0.8*oldDeltaV && *delta > 0.2:
		*delta -= r.AHi
	case deltaV > 0.6*oldDeltaV && *delta > 0.2:
		*delta -= r.ALo
	case deltaV < 0.2*oldDeltaV && *delta < 0.9:
		*delta += r.BLo
	case deltaV < 0.4*oldDeltaV && *delta < 0.9:
		*delta += r.BHi
	}
}

// relax returns p_prev + delta*(p_inv - p_prev) when the track is active, else p_inv unchanged.
func relax(active bool, prev, inv, delta float64) float64 {
	if !active {
		return inv
	}
	return prev + delta*(inv-prev)
}
