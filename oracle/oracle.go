// Package oracle defines the abstract interface onto the three-phase unbalanced power-flow solver
// the convergence engine drives. The solver itself - an opaque external collaborator - is out of
// scope; any implementation satisfying this interface may be wrapped behind it.
package oracle

import "github.com/google/uuid"

// PhaseCurrents holds a line's per-phase current magnitude, in amps.
type PhaseCurrents struct {
	A, B, C float64
}

// Totals summarises the whole circuit's active/reactive power and losses for a solved state.
type Totals struct {
	ActivePowerKW       float64
	ReactivePowerKVAr   float64
	ActiveLossesKW      float64
	ReactiveLossesKVAr  float64
}

// Oracle is the power-flow solver's interface as consumed by the convergence engine. Injections use
// the load sign convention: PV/EV-discharge are entered as negative active power. The engine is the
// Oracle's sole caller within a timestep; no other package pushes injections or triggers a solve.
type Oracle interface {
	// SetInjection stages the active/reactive power injection for the CER identified by id, to take
	// effect on the next Solve.
	SetInjection(id uuid.UUID, pKW, qKVAr float64)

	// Solve runs the power flow against the currently staged injections.
	Solve() error

	// VoltagePU returns the last-solved per-unit voltage magnitude at the CER identified by id.
	VoltagePU(id uuid.UUID) float64

	// VoltageUnbalancePct returns the last-solved symmetric-components voltage unbalance factor,
	// |V2/V1|*100, at the end-bus serving the CER identified by id. Unlike VoltagePU this is a
	// property of all three phases at that bus, not of the CER's own single-phase connection, so
	// only the solver - which alone holds the full per-phase state - can answer it.
	VoltageUnbalancePct(id uuid.UUID) float64

	// LineCurrents returns the last-solved per-phase line current magnitudes, keyed by line ID.
	LineCurrents() map[string]PhaseCurrents

	// LineRatings returns each line's rated ampacity, keyed by line ID.
	LineRatings() map[string]float64

	// Totals returns the last-solved circuit-wide active/reactive power and losses.
	Totals() Totals
}
