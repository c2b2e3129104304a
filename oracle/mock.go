package oracle

import "github.com/google/uuid"

// Mock is a deterministic Oracle used by tests and by scenarios that do not wrap a real three-phase
// solver. Voltage defaults to FixedVoltage for every CER; supplying VoltageFunc lets a test script a
// voltage response per injection (e.g. to exercise the convergence engine's relaxation behaviour
// without a real circuit model).
type Mock struct {
	FixedVoltage float64
	VoltageFunc  func(id uuid.UUID, pKW, qKVAr float64) float64

	// VUFFunc, when set, scripts the VoltageUnbalancePct response per CER. A Mock models a perfectly
	// balanced circuit by default (VUF = 0), since it carries no per-phase state of its own.
	VUFFunc func(id uuid.UUID) float64

	// LineCurrentsMap and LineRatingsMap are returned verbatim by LineCurrents/LineRatings; nil
	// reads back as an empty map.
	LineCurrentsMap map[string]PhaseCurrents
	LineRatingsMap  map[string]float64

	// SolveErr, when set, is returned by every call to Solve.
	SolveErr error

	injections map[uuid.UUID][2]float64
	voltages   map[uuid.UUID]float64
	solveCount int
}

// NewMock constructs a Mock reporting FixedVoltage at every CER until VoltageFunc is set.
func NewMock(fixedVoltage float64) *Mock {
	return &Mock{
		FixedVoltage: fixedVoltage,
		injections:   map[uuid.UUID][2]float64{},
		voltages:     map[uuid.UUID]float64{},
	}
}

func (m *Mock) SetInjection(id uuid.UUID, pKW, qKVAr float64) {
	m.injections[id] = [2]float64{pKW, qKVAr}
}

func (m *Mock) Solve() error {
	if m.SolveErr != nil {
		return m.SolveErr
	}
	m.solveCount++
	for id, pq := range m.injections {
		if m.VoltageFunc != nil {
			m.voltages[id] = m.VoltageFunc(id, pq[0], pq[1])
		} else {
			m.voltages[id] = m.FixedVoltage
		}
	}
	return nil
}

func (m *Mock) VoltagePU(id uuid.UUID) float64 {
	if v, ok := m.voltages[id]; ok {
		return v
	}
	return m.FixedVoltage
}

func (m *Mock) VoltageUnbalancePct(id uuid.UUID) float64 {
	if m.VUFFunc != nil {
		return m.VUFFunc(id)
	}
	return 0
}

func (m *Mock) LineCurrents() map[string]PhaseCurrents {
	if m.LineCurrentsMap != nil {
		return m.LineCurrentsMap
	}
	return map[string]PhaseCurrents{}
}

func (m *Mock) LineRatings() map[string]float64 {
	if m.LineRatingsMap != nil {
		return m.LineRatingsMap
	}
	return map[string]float64{}
}

// Totals sums the currently staged injections - a Mock has no notion of line losses, so the losses
// fields are always zero.
func (m *Mock) Totals() Totals {
	var t Totals
	for _, pq := range m.injections {
		t.ActivePowerKW += pq[0]
		t.ReactivePowerKVAr += pq[1]
	}
	return t
}

// SolveCount reports how many times Solve has succeeded, for tests asserting on iteration counts.
func (m *Mock) SolveCount() int {
	return m.solveCount
}

var _ Oracle = (*Mock)(nil)
