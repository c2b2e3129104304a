// Package results collects per-timestep simulation output into in-memory registers, and derives
// daily aggregates and summary metrics from them on export.
package results

import (
	"math"
	"time"

	"github.com/cepro/cersim/meter"
	"github.com/cepro/cersim/oracle"
	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/mitchellh/mapstructure"
)

// VoltageReading is the per-bus, per-phase voltage reported for a timestep.
type VoltageReading struct {
	PU  float64 // per-unit magnitude
	VUF float64 // percent
}

// PVRegister accumulates the generation and curtailment quantities for a single PV or hybrid PV
// system, keyed in TimestepResult as "pv_<label>" or "hybridpv_<label>".
type PVRegister struct {
	DCGenerationKW    float64
	ACPotentialKW     float64
	ACCurtailmentKW   float64
	DCCurtailmentKW   float64
	ActivePowerKW     float64
	ReactivePowerKVAr float64
}

// TimestepResult is the full set of exported per-timestep quantities.
type TimestepResult struct {
	Timestep int
	Time     time.Time

	Voltages map[string]VoltageReading // keyed by end-bus label
	LinePct  map[string]oracle.PhaseCurrents

	Totals oracle.Totals

	PV map[string]PVRegister // keyed "pv_<label>" / "hybridpv_<label>"

	BatteryStoredEnergyKWh map[string]float64
	EVStoredEnergyKWh      map[string]float64

	Flows map[string]meter.Flows // keyed by meter label

	Converged  bool
	Iterations int
}

// Registers accumulates a scenario's TimestepResults in the order they occur and derives daily
// aggregates and metrics from them. It is owned by the scenario driver, never process-wide state.
type Registers struct {
	DtHours float64
	Steps   []TimestepResult
}

// New constructs an empty Registers for a scenario with the given per-step duration.
func New(dtHours float64) *Registers {
	return &Registers{DtHours: dtHours}
}

// Append records one timestep's result, in order.
func (r *Registers) Append(tr TimestepResult) {
	r.Steps = append(r.Steps, tr)
}

// pvLabels returns the set of PV/hybrid-PV register keys present across all timesteps, in first-
// seen order, so callers get a stable iteration order regardless of map ranging.
func (r *Registers) pvLabels() []string {
	seen := map[string]bool{}
	var labels []string
	for _, s := range r.Steps {
		for k := range s.PV {
			if !seen[k] {
				seen[k] = true
				labels = append(labels, k)
			}
		}
	}
	return labels
}

// FairnessIndex computes F = 1 - sigma(r_i)/0.5 over every PV/hybrid-PV system's utilisation ratio
// r_i = sum_t(p_out_i) / sum_t(ac_potential_output_i). Returns false if no PV system is present -
// fairness is undefined without PV.
func (r *Registers) FairnessIndex() (float64, bool) {
	labels := r.pvLabels()
	if len(labels) == 0 {
		return 0, false
	}

	ratios := make([]float64, 0, len(labels))
	for _, label := range labels {
		var sumOut, sumPotential float64
		for _, s := range r.Steps {
			reg, ok := s.PV[label]
			if !ok {
				continue
			}
			sumOut += reg.ActivePowerKW
			sumPotential += reg.ACPotentialKW
		}
		if sumPotential == 0 {
			ratios = append(ratios, 1.0)
			continue
		}
		ratios = append(ratios, sumOut/sumPotential)
	}

	return 1.0 - stddev(ratios)/0.5, true
}

func stddev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	mean := 0.0
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))

	var variance float64
	for _, x := range xs {
		d := x - mean
		variance += d * d
	}
	variance /= float64(len(xs))

	return math.Sqrt(variance)
}

// DailyAggregates groups the timestep registers by calendar day and sums energy quantities (kWh =
// sum(kW)*dt_h) using gota's GroupBy/Aggregation, rather than a hand-rolled map-reduce.
func (r *Registers) DailyAggregates() dataframe.DataFrame {
	if len(r.Steps) == 0 {
		return dataframe.New()
	}

	days := make([]string, len(r.Steps))
	activeKWh := make([]float64, len(r.Steps))
	reactiveKWh := make([]float64, len(r.Steps))
	lossKWh := make([]float64, len(r.Steps))

	for i, s := range r.Steps {
		days[i] = s.Time.Format("2006-01-02")
		activeKWh[i] = s.Totals.ActivePowerKW * r.DtHours
		reactiveKWh[i] = s.Totals.ReactivePowerKVAr * r.DtHours
		lossKWh[i] = s.Totals.ActiveLossesKW * r.DtHours
	}

	df := dataframe.New(
		series.New(days, series.String, "day"),
		series.New(activeKWh, series.Float, "active_kwh"),
		series.New(reactiveKWh, series.Float, "reactive_kwh"),
		series.New(lossKWh, series.Float, "loss_kwh"),
	)

	return df.GroupBy("day").Aggregation(
		[]dataframe.AggregationType{dataframe.Aggregation_SUM, dataframe.Aggregation_SUM, dataframe.Aggregation_SUM},
		[]string{"active_kwh", "reactive_kwh", "loss_kwh"},
	)
}

// Metrics is the typed view of the scenario-wide summary metrics, decoded via mapstructure from
// the flat key-value map the Metrics method assembles.
type Metrics struct {
	DCCurtailmentPct        float64
	ACCurtailmentPct        float64
	VoltageViolationRatePct float64
	LineOverloadRatePct     float64
	VUFViolationRatePct     float64
	ActiveLossRatioPct      float64
	ReactiveLossRatioPct    float64
}

// VoltageBand bounds the acceptable per-unit voltage range for Metric 2; the acceptable unbalance
// factor for Metric 4 is the separate vufLimitPct argument of Metrics.
type VoltageBand struct {
	MinPU, MaxPU float64
}

// Metrics computes the scenario-wide Metric 1.a through 5.b and decodes them into a Metrics value.
func (r *Registers) Metrics(voltageBand VoltageBand, vufLimitPct float64) (Metrics, error) {
	m := map[string]interface{}{}

	var sumDCGen, sumDCCurt, sumACPotential, sumACCurt float64
	var voltageSamples, violatingVoltage int
	var vufSamples, violatingVUF int
	var lineSamples, overloadedLines int
	var sumActivePower, sumActiveLoss, sumReactivePower, sumReactiveLoss float64

	for _, s := range r.Steps {
		for _, reg := range s.PV {
			sumDCGen += reg.DCGenerationKW
			sumDCCurt += reg.DCCurtailmentKW
			sumACPotential += reg.ACPotentialKW
			sumACCurt += reg.ACCurtailmentKW
		}

		for _, v := range s.Voltages {
			voltageSamples++
			if v.PU < voltageBand.MinPU || v.PU > voltageBand.MaxPU {
				violatingVoltage++
			}
			vufSamples++
			if v.VUF > vufLimitPct {
				violatingVUF++
			}
		}

		for line, pct := range s.LinePct {
			_ = line
			lineSamples++
			if pct.A > 100 || pct.B > 100 || pct.C > 100 {
				overloadedLines++
			}
		}

		sumActivePower += s.Totals.ActivePowerKW
		sumActiveLoss += s.Totals.ActiveLossesKW
		sumReactivePower += s.Totals.ReactivePowerKVAr
		sumReactiveLoss += s.Totals.ReactiveLossesKVAr
	}

	m["DCCurtailmentPct"] = pct(sumDCCurt, sumDCGen)
	m["ACCurtailmentPct"] = pct(sumACCurt, sumACPotential)
	m["VoltageViolationRatePct"] = rate(violatingVoltage, voltageSamples)
	m["LineOverloadRatePct"] = rate(overloadedLines, lineSamples)
	m["VUFViolationRatePct"] = rate(violatingVUF, vufSamples)
	m["ActiveLossRatioPct"] = pct(sumActiveLoss, sumActivePower)
	m["ReactiveLossRatioPct"] = pct(sumReactiveLoss, sumReactivePower)

	var metrics Metrics
	if err := mapstructure.Decode(m, &metrics); err != nil {
		return Metrics{}, err
	}
	return metrics, nil
}

func pct(numerator, denominator float64) float64 {
	if denominator == 0 {
		return 0
	}
	return 100 * numerator / denominator
}

func rate(count, total int) float64 {
	if total == 0 {
		return 0
	}
	return 100 * float64(count) / float64(total)
}
