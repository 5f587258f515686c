// Package main provides the worker command that runs the full register
// pipeline: read, normalize, validate, build the graph, sign and publish.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"tier0/internal/config"
	"tier0/internal/logger"
	"tier0/internal/metrics"
	"tier0/internal/pipeline"
)

const (
	exitOK     = 0
	exitFailed = 1
	exitConfig = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath string
		envFiles   []string
		logLevel   string
		runID      string
	)

	flags := pflag.NewFlagSet("worker", pflag.ContinueOnError)
	flags.StringVarP(&configPath, "config", "c", "configs/pipeline.yaml", "Path to the pipeline configuration")
	flags.StringSliceVar(&envFiles, "env-file", []string{".env"}, "Environment files loaded before the configuration")
	flags.StringVar(&logLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")
	flags.StringVar(&runID, "run-id", "", "Run identifier (default: random UUID)")

	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}

		fmt.Fprintf(os.Stderr, "error: %v\n", err)

		return exitConfig
	}

	if err := config.LoadEnvFiles(envFiles...); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitConfig
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitConfig
	}

	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	log := logger.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("starting register pipeline", "config", configPath, "input", cfg.InputFile)

	start := time.Now()

	res, err := pipeline.Run(ctx, cfg, pipeline.Options{
		Log:     log,
		Metrics: metrics.New(),
		RunID:   runID,
	})
	if err != nil {
		log.Error("pipeline failed", "error", err)

		if errors.Is(err, pipeline.ErrConfiguration) {
			return exitConfig
		}

		return exitFailed
	}

	fmt.Println("------------------------------------------------")
	fmt.Println("📊 Run summary")
	fmt.Println("------------------------------------------------")
	fmt.Printf("Run ID:           %s\n", res.RunID)
	fmt.Printf("Generated at:     %s\n", res.GeneratedAt.Format(time.RFC3339))
	fmt.Printf("Source records:   %d\n", res.Records)
	fmt.Printf("Firms accepted:   %d (rejected %d)\n", res.Counts.FirmsAccepted, res.Counts.FirmsRejected)
	fmt.Printf("Offices accepted: %d (rejected %d)\n", res.Counts.OfficesAccepted, res.Counts.OfficesRejected)
	fmt.Printf("Overall digest:   %s\n", res.Manifest.OverallDigest)
	fmt.Printf("Signed:           %t\n", res.Manifest.Signed())
	fmt.Printf("Files written:    %d\n", len(res.Written))
	fmt.Printf("Total duration:   %v\n", time.Since(start).Round(time.Millisecond))
	fmt.Println("------------------------------------------------")

	return exitOK
}
