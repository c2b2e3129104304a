package cer

import (
	"math"

	"github.com/google/uuid"
)

// Load models a fixed-power-factor demand CER: an active-power schedule supplied externally each
// step, with reactive power derived from a constant power factor.
type Load struct {
	id          uuid.UUID
	label       string
	PowerFactor float64

	p float64
}

// NewLoad constructs a Load with the given power factor.
func NewLoad(label string, powerFactor float64) *Load {
	return &Load{id: uuid.New(), label: label, PowerFactor: powerFactor}
}

func (l *Load) ID() uuid.UUID { return l.id }
func (l *Load) Label() string { return l.label }
func (l *Load) Kind() Kind    { return KindLoad }

// Update records this step's demand.
func (l *Load) Update(ctx StepContext) {
	l.p = ctx.Demand
}

// Step returns (P, Q); reactive power is derived from PowerFactor.
func (l *Load) Step(ctx StepContext) (p, q float64) {
	q = l.p * math.Tan(math.Acos(l.PowerFactor))
	return l.p, q
}

// POut returns the active power recorded by the most recent Update call.
func (l *Load) POut() float64 { return l.p }
