// Package main is the command-line runner: it executes a single scenario
// without the HTTP server and writes the resulting prices to CSV.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/meridian-energy/meridian/internal/modules/results"
	"github.com/meridian-energy/meridian/internal/modules/scenario"
	"github.com/meridian-energy/meridian/internal/modules/simulation"
	"github.com/meridian-energy/meridian/pkg/logger"
)

func main() {
	var (
		scenarioPath = flag.String("scenario", "", "Path to the scenario YAML file (required)")
		seed         = flag.Int64("seed", 0, "Random seed for the simulation")
		csvPath      = flag.String("out", "", "Write commodity prices to this CSV file (default: stdout)")
		logLevel     = flag.String("log-level", "warn", "Log level: debug, info, warn, error")
	)
	flag.Parse()

	log := logger.New(logger.Config{Level: *logLevel, Pretty: true})

	if *scenarioPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	m, pool, err := scenario.Load(*scenarioPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load scenario")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner := simulation.NewRunner(log, *seed, simulation.WithObserver(func(ev simulation.Event) {
		if ev.Stage == simulation.StageYearSolved {
			fmt.Fprintf(os.Stderr, "solved %d (%d/%d), unmet %.4f\n", ev.Year, ev.Done, ev.Years, ev.Unmet)
		}
	}))

	result, err := runner.Run(ctx, m, pool)
	if err != nil {
		log.Fatal().Err(err).Msg("Simulation failed")
	}

	out := os.Stdout
	if *csvPath != "" {
		f, err := os.Create(*csvPath)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create output file")
		}
		defer f.Close()
		out = f
	}

	if err := results.ExportPricesCSV(out, results.PriceRows(result)); err != nil {
		log.Fatal().Err(err).Msg("Failed to write prices CSV")
	}

	fmt.Fprintf(os.Stderr, "simulated %d milestone years, %d assets in final pool\n",
		len(result.Years), result.Pool.Len())
}
