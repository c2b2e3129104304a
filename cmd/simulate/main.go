// Command simulate runs a single CER feeder scenario from a JSON configuration file and prints a
// summary of the result. It is a minimal harness: input-data loading, CSV/workbook export and
// plotting are external collaborators, out of scope for this module; this program
// exists only so the simulator is runnable end to end.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/cepro/cersim/config"
	"github.com/cepro/cersim/oracle"
	"github.com/cepro/cersim/persistence"
	"github.com/cepro/cersim/results"
	"github.com/cepro/cersim/scenario"
)

// inputFile is the minimal on-disk shape for a scenario's exogenous time series. It is not a
// general input-data-loading subsystem - just enough JSON to drive this CLI's scenarios.
type inputFile struct {
	DemandKW     map[string][]float64 `json:"demandKW"`
	IrradiancePU []float64            `json:"irradiancePU"`
	AmbientTempC []float64            `json:"ambientTempC"`
}

func readInput(path string) (scenario.InputData, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return scenario.InputData{}, fmt.Errorf("read input file: %w", err)
	}
	var f inputFile
	if err := json.Unmarshal(content, &f); err != nil {
		return scenario.InputData{}, fmt.Errorf("unmarshal input file: %w", err)
	}
	return scenario.InputData{
		DemandKW:     f.DemandKW,
		IrradiancePU: f.IrradiancePU,
		AmbientTempC: f.AmbientTempC,
	}, nil
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	var configFilePath, inputFilePath string
	flag.StringVar(&configFilePath, "config", "./scenario.json", "Specify scenario config file path")
	flag.StringVar(&inputFilePath, "input", "./input.json", "Specify exogenous input data file path")
	flag.Parse()

	slog.Info("Starting", "config_file", configFilePath, "input_file", inputFilePath)

	cfg, err := config.Read(configFilePath)
	if err != nil {
		slog.Error("Failed to read config", "error", err)
		os.Exit(1)
	}

	input, err := readInput(inputFilePath)
	if err != nil {
		slog.Error("Failed to read input data", "error", err)
		os.Exit(1)
	}

	ora := oracle.NewMock(1.0)

	driver, err := scenario.Build(cfg, input, ora, logger)
	if err != nil {
		slog.Error("Failed to build scenario", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt)
	go func() {
		<-signalChan
		slog.Warn("Interrupt received, cancelling scenario")
		cancel()
	}()

	if err := driver.Run(ctx); err != nil {
		slog.Error("Scenario run failed", "error", err)
		os.Exit(1)
	}

	printSummary(driver)

	if cfg.Persistence != nil {
		store, err := persistence.New(cfg.Persistence.Path)
		if err != nil {
			slog.Error("Failed to open persistence store", "error", err)
			os.Exit(1)
		}
		scenarioID := cfg.Persistence.ScenarioID
		if err := store.SaveScenario(context.Background(), scenarioID, driver.Registers, driver.EventLog); err != nil {
			slog.Error("Failed to persist scenario", "error", err)
			os.Exit(1)
		}
		slog.Info("Scenario persisted", "path", cfg.Persistence.Path, "scenario_id", scenarioID)
	}

	slog.Info("Exiting")
}

func printSummary(d *scenario.Driver) {
	metrics, err := d.Registers.Metrics(defaultVoltageBand(), 2.0)
	if err != nil {
		slog.Warn("Could not compute summary metrics", "error", err)
	} else {
		fmt.Printf("DC curtailment:        %.2f%%\n", metrics.DCCurtailmentPct)
		fmt.Printf("AC curtailment:        %.2f%%\n", metrics.ACCurtailmentPct)
		fmt.Printf("Voltage violation rate: %.2f%%\n", metrics.VoltageViolationRatePct)
		fmt.Printf("Line overload rate:     %.2f%%\n", metrics.LineOverloadRatePct)
		fmt.Printf("VUF violation rate:     %.2f%%\n", metrics.VUFViolationRatePct)
		fmt.Printf("Active loss ratio:      %.2f%%\n", metrics.ActiveLossRatioPct)
		fmt.Printf("Reactive loss ratio:    %.2f%%\n", metrics.ReactiveLossRatioPct)
	}

	if f, ok := d.Registers.FairnessIndex(); ok {
		fmt.Printf("Fairness index:         %.3f\n", f)
	}

	if !d.EventLog.Empty() {
		fmt.Printf("Non-convergences: %d, oracle errors: %d\n", len(d.EventLog.NonConvergences), len(d.EventLog.OracleErrors))
	}

	df := d.Registers.DailyAggregates()
	fmt.Printf("Daily aggregates (%d day(s) simulated):\n", df.Nrow())
	fmt.Println(df)
}

func defaultVoltageBand() results.VoltageBand {
	return results.VoltageBand{MinPU: 0.94, MaxPU: 1.10}
}
