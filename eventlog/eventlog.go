// Package eventlog accumulates the non-fatal events a scenario run encounters - timesteps that
// failed to converge within K_max iterations, and oracle errors the driver chose to recover from -
// so they can be inspected or persisted alongside a scenario's result registers.
package eventlog

import "time"

// NonConvergenceEvent records a timestep that reached the iteration limit without meeting the
// engine's voltage/active-power/reactive-power tolerances.
type NonConvergenceEvent struct {
	Timestep   int
	Time       time.Time
	Iterations int
	MaxDeltaV  float64
}

// OracleErrorEvent records a timestep at which the power-flow oracle returned an error that the
// scenario driver chose to log and continue past, rather than treat as fatal.
type OracleErrorEvent struct {
	Timestep int
	Time     time.Time
	Err      error
}

// Log is an append-only, ordered record of the non-fatal events encountered during a scenario run.
// It is owned by the scenario driver, not process-wide state, mirroring results.Registers.
type Log struct {
	NonConvergences []NonConvergenceEvent
	OracleErrors    []OracleErrorEvent
}

// New constructs an empty Log.
func New() *Log {
	return &Log{}
}

// RecordNonConvergence appends a NonConvergenceEvent.
func (l *Log) RecordNonConvergence(timestep int, t time.Time, iterations int, maxDeltaV float64) {
	l.NonConvergences = append(l.NonConvergences, NonConvergenceEvent{
		Timestep:   timestep,
		Time:       t,
		Iterations: iterations,
		MaxDeltaV:  maxDeltaV,
	})
}

// RecordOracleError appends an OracleErrorEvent.
func (l *Log) RecordOracleError(timestep int, t time.Time, err error) {
	l.OracleErrors = append(l.OracleErrors, OracleErrorEvent{Timestep: timestep, Time: t, Err: err})
}

// Empty reports whether no non-fatal events were recorded.
func (l *Log) Empty() bool {
	return len(l.NonConvergences) == 0 && len(l.OracleErrors) == 0
}
