package racesim

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/okian/podium/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

// SetupLogging sends simulator logs to both console and file.
// If logFile is empty, a timestamped filename is generated.
func SetupLogging(logFile string, verbose bool) error {
	if logFile == "" {
		timestamp := time.Now().Format("20060102_150405")
		logFile = "race_sim_" + timestamp + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	if err := logger.Init(logger.WithWriter(io.MultiWriter(os.Stdout, file))); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if verbose {
		_ = logger.SetLevelString("debug")
	}
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return nil
}

// ShowHelp prints usage information for the race simulator.
func ShowHelp() {
	os.Stdout.WriteString(`Podium Race Simulator
=====================

Registers racers against a running podium service, submits faster times in
rounds and checks the leaderboard order and the delivery log.

Usage:
  go run ./cmd/race-sim [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -racers int
        Number of racers to register (default 20)
  -rounds int
        Improvement rounds after registration (default 3)
  -top int
        Podium size the service runs with (default 3)
  -prefix string
        Country prefix for generated phone numbers (default "+27")
  -workers int
        Number of concurrent workers (default 4)
  -timeout duration
        HTTP request timeout (default 10s)
  -settle duration
        Wait for notifications to be dispatched (default 2s)
  -log string
        Log file for simulator output (default: race_sim_TIMESTAMP.log)
  -verbose
        Enable verbose logging
  -help
        Show this help message

Examples:
  # Simulate a small event against a local service in simulate mode
  go run ./cmd/race-sim

  # A bigger field with more retries
  go run ./cmd/race-sim -racers 200 -rounds 10 -workers 16
`)
}
