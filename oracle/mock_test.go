package oracle

import (
	"testing"

	"github.com/google/uuid"
)

func TestMockFixedVoltage(t *testing.T) {
	m := NewMock(1.02)
	id := uuid.New()
	m.SetInjection(id, 1.0, 0.2)
	if err := m.Solve(); err != nil {
		t.Fatalf("solve: %v", err)
	}
	if v := m.VoltagePU(id); v != 1.02 {
		t.Fatalf("voltage = %v, want 1.02", v)
	}
	if got := m.Totals().ActivePowerKW; got != 1.0 {
		t.Fatalf("totals active power = %v, want 1.0", got)
	}
}

func TestMockVoltageFunc(t *testing.T) {
	m := NewMock(1.0)
	m.VoltageFunc = func(id uuid.UUID, pKW, qKVAr float64) float64 {
		return 1.0 + pKW*0.01
	}
	id := uuid.New()
	m.SetInjection(id, 5.0, 0)
	if err := m.Solve(); err != nil {
		t.Fatalf("solve: %v", err)
	}
	if v := m.VoltagePU(id); v != 1.05 {
		t.Fatalf("voltage = %v, want 1.05", v)
	}
}
