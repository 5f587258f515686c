// Package main provides the history command: it lists pipeline runs from
// the run ledger and shows the rejections and manifest of a single run.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"tier0/internal/config"
	"tier0/internal/ledger"
	"tier0/internal/report"
)

func main() {
	var (
		configPath string
		dbPath     string
		limit      int
		runID      string
	)

	flags := pflag.NewFlagSet("history", pflag.ContinueOnError)
	flags.StringVarP(&configPath, "config", "c", "configs/pipeline.yaml", "Pipeline configuration naming ledger.path")
	flags.StringVar(&dbPath, "db", "", "Ledger database; overrides ledger.path")
	flags.IntVarP(&limit, "limit", "n", 20, "Number of runs to list (0 lists all)")
	flags.StringVar(&runID, "run", "", "Show the manifest and rejections of one run")

	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}

		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	if dbPath == "" {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(2)
		}

		dbPath = cfg.Ledger.Path
	}

	if dbPath == "" {
		fmt.Fprintln(os.Stderr, "error: no ledger configured (set ledger.path or --db)")
		os.Exit(2)
	}

	l, err := ledger.Open(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer l.Close()

	ctx := context.Background()

	if runID != "" {
		err = showRun(ctx, l, runID)
	} else {
		err = listRuns(ctx, l, limit)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		l.Close()
		os.Exit(1)
	}
}

func listRuns(ctx context.Context, l *ledger.Ledger, limit int) error {
	runs, err := l.Runs(ctx, limit)
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		signed := "no"
		if r.Signed {
			signed = "yes"
		}

		rows = append(rows, []string{
			r.GeneratedAt.Format(time.RFC3339),
			r.RunID,
			fmt.Sprint(r.Accepted),
			fmt.Sprint(r.Rejected),
			signed,
			r.OverallDigest,
		})
	}

	header := []string{"Generated", "Run", "Accepted", "Rejected", "Signed", "Overall digest"}
	fmt.Println(strings.Join(report.Table(header, rows), "\n"))

	return nil
}

func showRun(ctx context.Context, l *ledger.Ledger, runID string) error {
	m, err := l.Manifest(ctx, runID)
	if err != nil {
		return err
	}

	data, err := m.Bytes()
	if err != nil {
		return err
	}

	fmt.Printf("Manifest:\n%s\n\n", data)

	rejected, err := l.Rejections(ctx, runID)
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(rejected))
	for _, v := range rejected {
		rows = append(rows, []string{string(v.Kind), v.Key, strings.Join(v.Reasons, "; ")})
	}

	fmt.Printf("Rejected entities (%d):\n", len(rejected))

	if len(rows) > 0 {
		fmt.Println(strings.Join(report.Table([]string{"Kind", "Key", "Reasons"}, rows), "\n"))
	}

	return nil
}
