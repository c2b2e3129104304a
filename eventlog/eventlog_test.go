package eventlog

import (
	"errors"
	"testing"
	"time"
)

func TestLogEmptyInitially(t *testing.T) {
	l := New()
	if !l.Empty() {
		t.Fatalf("expected new log to be empty")
	}
}

func TestRecordNonConvergence(t *testing.T) {
	l := New()
	l.RecordNonConvergence(12, time.Now(), 300, 0.0021)
	if l.Empty() {
		t.Fatalf("expected log to be non-empty after recording")
	}
	if len(l.NonConvergences) != 1 {
		t.Fatalf("len(NonConvergences) = %d, want 1", len(l.NonConvergences))
	}
	if l.NonConvergences[0].Timestep != 12 {
		t.Fatalf("timestep = %d, want 12", l.NonConvergences[0].Timestep)
	}
}

func TestRecordOracleError(t *testing.T) {
	l := New()
	l.RecordOracleError(3, time.Now(), errors.New("singular matrix"))
	if len(l.OracleErrors) != 1 {
		t.Fatalf("len(OracleErrors) = %d, want 1", len(l.OracleErrors))
	}
}
