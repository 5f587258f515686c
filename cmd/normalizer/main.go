// Package main provides the normalizer command: it reads a register extract,
// normalizes and validates it, and writes the raw copy, the normalized
// snapshot and the validation reports without building linked data.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"tier0/internal/config"
	"tier0/internal/logger"
	"tier0/internal/pipeline"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath string
		inputPath  string
		reportPath string
		xlsxPath   string
	)

	flags := pflag.NewFlagSet("normalizer", pflag.ContinueOnError)
	flags.StringVarP(&configPath, "config", "c", "configs/pipeline.yaml", "Path to the pipeline configuration")
	flags.StringVarP(&inputPath, "input", "i", "", "Register extract (.json, .txt or .xlsx); overrides input_file")
	flags.StringVar(&reportPath, "report", "", "Markdown validation report path; overrides report.markdown")
	flags.StringVar(&xlsxPath, "xlsx", "", "XLSX validation workbook path; overrides report.xlsx")

	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}

		fmt.Fprintf(os.Stderr, "error: %v\n", err)

		return 2
	}

	if err := config.LoadEnvFiles(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 2
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 2
	}

	if inputPath != "" {
		cfg.InputFile = inputPath
	}

	if reportPath != "" {
		cfg.Report.Markdown = reportPath
	}

	if xlsxPath != "" {
		cfg.Report.XLSX = xlsxPath
	}

	log := logger.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("📂 Reading: %s\n", cfg.InputFile)

	res, err := pipeline.Run(ctx, cfg, pipeline.Options{Log: log, NormalizeOnly: true})
	if err != nil {
		log.Error("normalization failed", "error", err)

		if errors.Is(err, pipeline.ErrConfiguration) {
			return 2
		}

		return 1
	}

	fmt.Printf("📊 Firms: %d accepted, %d rejected\n", res.Counts.FirmsAccepted, res.Counts.FirmsRejected)
	fmt.Printf("📊 Offices: %d accepted, %d rejected\n", res.Counts.OfficesAccepted, res.Counts.OfficesRejected)

	for _, v := range res.Rejected {
		fmt.Printf("  - %s %s: %s\n", v.Kind, v.Key, strings.Join(v.Reasons, "; "))
	}

	for _, p := range res.Written {
		fmt.Printf("✅ Wrote %s\n", p)
	}

	return 0
}
