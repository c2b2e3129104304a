// Package persistence optionally archives a completed scenario's result registers and event log
// to a local SQLite database.
package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cepro/cersim/eventlog"
	"github.com/cepro/cersim/results"
)

// StoredTimestepResult is one timestep's scenario-wide summary, persisted to SQLite.
type StoredTimestepResult struct {
	gorm.Model
	ScenarioID         uuid.UUID `gorm:"index"`
	Timestep           int
	Time               time.Time
	ActivePowerKW      float64
	ReactivePowerKVAr  float64
	ActiveLossesKW     float64
	ReactiveLossesKVAr float64
	Converged          bool
	Iterations         int
}

// StoredEvent is one non-fatal scenario event (non-convergence, or a recovered oracle error),
// persisted to SQLite.
type StoredEvent struct {
	gorm.Model
	ScenarioID uuid.UUID `gorm:"index"`
	Kind       string // "non_convergence" | "oracle_error"
	Timestep   int
	Time       time.Time
	Iterations int
	MaxDeltaV  float64
	Message    string
}

// Store wraps a gorm-backed SQLite database holding archived scenario runs.
type Store struct {
	db *gorm.DB
}

// New opens (creating if necessary) the SQLite database at path and migrates its schema.
func New(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.AutoMigrate(&StoredTimestepResult{}, &StoredEvent{}); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return &Store{db: db}, nil
}

// SaveScenario persists every timestep result and non-fatal event of a completed scenario run,
// tagged with scenarioID.
func (s *Store) SaveScenario(ctx context.Context, scenarioID uuid.UUID, reg *results.Registers, log *eventlog.Log) error {
	rows := make([]StoredTimestepResult, 0, len(reg.Steps))
	for _, step := range reg.Steps {
		rows = append(rows, StoredTimestepResult{
			ScenarioID:         scenarioID,
			Timestep:           step.Timestep,
			Time:               step.Time,
			ActivePowerKW:      step.Totals.ActivePowerKW,
			ReactivePowerKVAr:  step.Totals.ReactivePowerKVAr,
			ActiveLossesKW:     step.Totals.ActiveLossesKW,
			ReactiveLossesKVAr: step.Totals.ReactiveLossesKVAr,
			Converged:          step.Converged,
			Iterations:         step.Iterations,
		})
	}
	if len(rows) > 0 {
		if result := s.db.WithContext(ctx).Create(&rows); result.Error != nil {
			return fmt.Errorf("save timestep results: %w", result.Error)
		}
	}

	var events []StoredEvent
	for _, e := range log.NonConvergences {
		events = append(events, StoredEvent{
			ScenarioID: scenarioID,
			Kind:       "non_convergence",
			Timestep:   e.Timestep,
			Time:       e.Time,
			Iterations: e.Iterations,
			MaxDeltaV:  e.MaxDeltaV,
		})
	}
	for _, e := range log.OracleErrors {
		events = append(events, StoredEvent{
			ScenarioID: scenarioID,
			Kind:       "oracle_error",
			Timestep:   e.Timestep,
			Time:       e.Time,
			Message:    e.Err.Error(),
		})
	}
	if len(events) > 0 {
		if result := s.db.WithContext(ctx).Create(&events); result.Error != nil {
			return fmt.Errorf("save events: %w", result.Error)
		}
	}

	return nil
}

// LoadScenario retrieves every persisted timestep result and event tagged with scenarioID, ordered
// by timestep.
func (s *Store) LoadScenario(ctx context.Context, scenarioID uuid.UUID) ([]StoredTimestepResult, []StoredEvent, error) {
	var steps []StoredTimestepResult
	if result := s.db.WithContext(ctx).Where("scenario_id = ?", scenarioID).Order("timestep asc").Find(&steps); result.Error != nil {
		return nil, nil, fmt.Errorf("load timestep results: %w", result.Error)
	}

	var events []StoredEvent
	if result := s.db.WithContext(ctx).Where("scenario_id = ?", scenarioID).Order("timestep asc").Find(&events); result.Error != nil {
		return nil, nil, fmt.Errorf("load events: %w", result.Error)
	}

	return steps, events, nil
}
