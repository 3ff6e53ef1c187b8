// Peregrine - Fraud detection projects that provision in 60 seconds.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

// Command profile runs the tabular profiler against a local CSV file
// and prints the report as JSON, without needing a running server.
package main

import (
	"encoding/json"
	"flag"
	"log/slog"
	"os"

	"github.com/opensource-finance/peregrine/internal/dataset"
	"github.com/opensource-finance/peregrine/internal/profiler"
)

func main() {
	var (
		inputPath      = flag.String("input", "", "path to the CSV training file (required)")
		labelColumn    = flag.String("label", "", "label column name (default EVENT_LABEL)")
		tsColumn       = flag.String("timestamp", "", "timestamp column name (default EVENT_TIMESTAMP)")
		filterWarnings = flag.Bool("filter-warnings", false, "derive inputs only from columns that carry a warning")
		deriveInputs   = flag.Bool("inputs", false, "emit training inputs instead of summary statistics")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if *inputPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	table, err := dataset.LoadFile(*inputPath)
	if err != nil {
		logger.Error("failed to load CSV", "path", *inputPath, "error", err)
		os.Exit(1)
	}

	opts := profiler.Options{
		LabelColumn:     *labelColumn,
		TimestampColumn: *tsColumn,
		FilterWarnings:  *filterWarnings,
	}
	prof := profiler.New(logger)

	var report any
	if *deriveInputs {
		report, err = prof.Inputs(table, opts)
	} else {
		report, err = prof.SummaryStats(table, opts)
	}
	if err != nil {
		logger.Error("profiling failed", "error", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		logger.Error("failed to encode report", "error", err)
		os.Exit(1)
	}
}
