// Copyright (C) 2025 VesselForge Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/spf13/cobra"

	"github.com/vesselforge/vesselforge/pipeline/artifact"
	"github.com/vesselforge/vesselforge/pipeline/benchmark"
)

var (
	flagBenchName        string
	flagBenchBinary      string
	flagBenchArg         string
	flagBenchOutput      string
	flagBenchIterations  int
	flagBenchWarmup      int
	flagBenchTimeout     time.Duration
	flagBenchBaselineDir string
	flagBenchThreshold   float64
	flagBenchSave        bool
)

var benchmarkCmd = &cobra.Command{
	Use:   "benchmark",
	Short: "Measure vessel performance and compare against a stored baseline",
	RunE:  runBenchmarkCommand,
}

func init() {
	benchmarkCmd.Flags().StringVarP(&flagBenchName, "name", "n", "", "benchmark/baseline name (required)")
	benchmarkCmd.Flags().StringVar(&flagBenchBinary, "binary", "", "vessel binary to execute (required)")
	benchmarkCmd.Flags().StringVar(&flagBenchArg, "arg", "1", "argument passed to the binary each iteration")
	benchmarkCmd.Flags().StringVarP(&flagBenchOutput, "output", "o", "report.json", "report output path")
	benchmarkCmd.Flags().IntVar(&flagBenchIterations, "iterations", benchmark.DefaultIterations, "recorded iterations")
	benchmarkCmd.Flags().IntVar(&flagBenchWarmup, "warmup", benchmark.DefaultWarmupIterations, "discarded warmup iterations")
	benchmarkCmd.Flags().DurationVar(&flagBenchTimeout, "iteration-timeout", benchmark.DefaultIterationTimeout, "per-iteration time limit")
	benchmarkCmd.Flags().StringVar(&flagBenchBaselineDir, "baseline-dir", ".vesselforge/baselines", "baseline store directory")
	benchmarkCmd.Flags().Float64Var(&flagBenchThreshold, "regression-threshold", benchmark.DefaultRegressionThreshold, "mean-delta percent flagged as regression")
	benchmarkCmd.Flags().BoolVar(&flagBenchSave, "save-baseline", false, "store this run as the new baseline")
	_ = benchmarkCmd.MarkFlagRequired("name")
	_ = benchmarkCmd.MarkFlagRequired("binary")
	rootCmd.AddCommand(benchmarkCmd)
}

func runBenchmarkCommand(cmd *cobra.Command, args []string) error {
	baselines, err := benchmark.NewFileBaselineStore(flagBenchBaselineDir)
	if err != nil {
		return err
	}

	runner := benchmark.NewRunner(
		benchmark.WithIterations(flagBenchIterations),
		benchmark.WithWarmup(flagBenchWarmup),
		benchmark.WithIterationTimeout(flagBenchTimeout),
		benchmark.WithRegressionThreshold(flagBenchThreshold),
		benchmark.WithBaselineStore(baselines),
		benchmark.WithRunLogger(appLogger.Slog()),
	)

	workload := func(ctx context.Context) error {
		return exec.CommandContext(ctx, flagBenchBinary, flagBenchArg).Run()
	}

	sample, err := runner.Run(cmd.Context(), flagBenchName, workload)
	if err != nil {
		return err
	}

	report := artifact.NewReport(sample)
	if err := artifact.Save(flagBenchOutput, report); err != nil {
		return err
	}

	fmt.Printf("mean=%.3fms p95=%.3fms p99=%.3fms\n", report.MeanMs, report.P95Ms, report.P99Ms)
	if report.Baseline != nil {
		fmt.Printf("baseline mean=%.3fms delta=%+.1f%% regression=%v\n",
			report.Baseline.MeanMs, report.Baseline.DeltaPercent, report.Baseline.RegressionDetected)
	}

	if flagBenchSave {
		if err := runner.SaveBaseline(cmd.Context(), flagBenchName, sample); err != nil {
			return err
		}
		appLogger.Info("baseline saved", "name", flagBenchName)
	}
	return nil
}
