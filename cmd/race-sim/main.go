package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/okian/podium/internal/racesim"
)

// Default configuration constants.
const (
	defaultRacers   = 20
	defaultRounds   = 3
	defaultTopN     = 3
	defaultWorkers  = 4
	defaultTimeout  = 10 * time.Second
	defaultSettle   = 2 * time.Second
	defaultDeadline = 10 * time.Minute
)

func main() {
	var (
		baseURL = flag.String("url", "http://localhost:9080", "Base URL of the service")
		racers  = flag.Int("racers", defaultRacers, "Number of racers to register")
		rounds  = flag.Int("rounds", defaultRounds, "Improvement rounds after registration")
		topN    = flag.Int("top", defaultTopN, "Podium size the service runs with")
		prefix  = flag.String("prefix", "+27", "Country prefix for generated phone numbers")
		workers = flag.Int("workers", defaultWorkers, "Number of concurrent workers")
		timeout = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		settle  = flag.Duration("settle", defaultSettle, "Wait for notifications to be dispatched")
		logFile = flag.String("log", "", "Log file for simulator output (default: race_sim_TIMESTAMP.log)")
		verbose = flag.Bool("verbose", false, "Enable verbose logging")
		help    = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		racesim.ShowHelp()
		return
	}

	if err := racesim.SetupLogging(*logFile, *verbose); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultDeadline)
	defer cancel()

	_, err := racesim.Run(ctx, &racesim.Config{
		BaseURL:     *baseURL,
		Racers:      *racers,
		Rounds:      *rounds,
		TopN:        *topN,
		Workers:     *workers,
		Timeout:     *timeout,
		Settle:      *settle,
		PhonePrefix: *prefix,
		LogFile:     *logFile,
		Verbose:     *verbose,
	})
	if err != nil {
		os.Stderr.WriteString("Simulation failed: " + err.Error() + "\n")
		cancel()
		os.Exit(1)
	}
}
