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
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vesselforge/vesselforge/pipeline/artifact"
	"github.com/vesselforge/vesselforge/pipeline/parity"
)

var (
	flagValidateBlueprint string
	flagValidateFunction  string
	flagValidateOutput    string
	flagValidateTests     int
	flagValidateTolerance float64
	flagValidateThreshold float64
	flagValidateSeed      int64
	flagValidateTimeout   time.Duration
	flagValidateInputsDir string
	flagValidateInterp    string
)

var validateCmd = &cobra.Command{
	Use:   "validate <manifest.json>",
	Short: "Certify statistical parity between a vessel and its legacy source",
	Long: `validate replays a deterministic test-input suite through both the
original interpreted function and its compiled vessel, compares every
output pair within tolerance, and writes a parity certificate.

An uncertified vessel exits successfully: the certificate carries the
verdict either way.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidateCommand,
}

func init() {
	validateCmd.Flags().StringVarP(&flagValidateBlueprint, "blueprint", "b", "blueprint.json", "blueprint holding the legacy source")
	validateCmd.Flags().StringVarP(&flagValidateFunction, "function", "f", "", "function to validate (required)")
	validateCmd.Flags().StringVarP(&flagValidateOutput, "output", "o", "certificate.json", "certificate output path")
	validateCmd.Flags().IntVar(&flagValidateTests, "tests", parity.DefaultTestCount, "pseudo-random test case count")
	validateCmd.Flags().Float64Var(&flagValidateTolerance, "tolerance", parity.DefaultTolerance, "maximum passing relative error")
	validateCmd.Flags().Float64Var(&flagValidateThreshold, "threshold", parity.DefaultConfidenceThreshold, "minimum confidence to certify")
	validateCmd.Flags().Int64Var(&flagValidateSeed, "seed", 0, "input-generation seed (0 = from clock)")
	validateCmd.Flags().DurationVar(&flagValidateTimeout, "call-timeout", parity.DefaultCallTimeout, "per-call execution limit")
	validateCmd.Flags().StringVar(&flagValidateInputsDir, "inputs-dir", ".vesselforge/regressions", "regression-input store directory")
	validateCmd.Flags().StringVar(&flagValidateInterp, "interpreter", "python3", "interpreter for the legacy side")
	_ = validateCmd.MarkFlagRequired("function")
	rootCmd.AddCommand(validateCmd)
}

func runValidateCommand(cmd *cobra.Command, args []string) error {
	manifest, err := artifact.LoadManifest(args[0])
	if err != nil {
		return err
	}
	blueprint, err := artifact.LoadBlueprint(flagValidateBlueprint)
	if err != nil {
		return err
	}

	vessel := findVessel(manifest, flagValidateFunction)
	if vessel == nil {
		return fmt.Errorf("function %q not found in manifest", flagValidateFunction)
	}
	if vessel.Status == artifact.StatusError {
		return fmt.Errorf("vessel %q has no runnable binary (status %s): %s",
			vessel.Function, vessel.Status, vessel.Error)
	}

	spec := findSpec(blueprint, flagValidateFunction)
	if spec == nil {
		return fmt.Errorf("function %q not found in blueprint", flagValidateFunction)
	}

	legacyScript, err := writeLegacyHarness(spec)
	if err != nil {
		return err
	}
	defer os.Remove(legacyScript)

	inputs, err := parity.NewFileInputStore(flagValidateInputsDir)
	if err != nil {
		return err
	}

	validator := parity.New(parity.Config{
		TestCount:           flagValidateTests,
		Tolerance:           flagValidateTolerance,
		ConfidenceThreshold: flagValidateThreshold,
		Seed:                flagValidateSeed,
		CallTimeout:         flagValidateTimeout,
		Inputs:              inputs,
		Logger:              appLogger.Slog(),
	})

	legacy := commandRunner(flagValidateInterp, legacyScript)
	vesselRunner := commandRunner(vessel.BinaryPath)

	cert, err := validator.Validate(cmd.Context(), flagValidateFunction, legacy, vesselRunner)
	if err != nil {
		return err
	}

	if err := artifact.Save(flagValidateOutput, cert); err != nil {
		return err
	}

	fmt.Printf("certified=%v confidence=%.2f passed=%d/%d speedup=%.2fx\n",
		cert.Certified, cert.Confidence, cert.Passed, cert.TestCount, cert.Performance.Speedup)
	return nil
}

// findVessel returns the manifest record for a function, or nil.
func findVessel(m *artifact.Manifest, function string) *artifact.VesselRecord {
	for i := range m.Vessels {
		if m.Vessels[i].Function == function {
			return &m.Vessels[i]
		}
	}
	return nil
}

// findSpec returns the blueprint spec for a function, or nil.
func findSpec(b *artifact.Blueprint, function string) *artifact.FunctionSpec {
	for i := range b.Functions {
		if b.Functions[i].Name == function {
			return &b.Functions[i]
		}
	}
	return nil
}

// writeLegacyHarness writes a temporary interpreter script that applies the
// original function to its single command-line argument and prints the
// numeric result.
func writeLegacyHarness(spec *artifact.FunctionSpec) (string, error) {
	var sb strings.Builder
	sb.WriteString(spec.Source)
	sb.WriteString("\n\nimport sys\nprint(")
	sb.WriteString(spec.Name)
	sb.WriteString("(float(sys.argv[1])))\n")

	f, err := os.CreateTemp("", "vesselforge-legacy-*.py")
	if err != nil {
		return "", fmt.Errorf("create legacy harness: %w", err)
	}
	if _, err := f.WriteString(sb.String()); err != nil {
		f.Close()
		return "", fmt.Errorf("write legacy harness: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return f.Name(), nil
}

// commandRunner adapts an executable to a parity.Runner: the input goes in
// as the final argument, the output comes back as a float on stdout.
func commandRunner(name string, args ...string) parity.Runner {
	return func(ctx context.Context, input float64) (float64, error) {
		full := append(append([]string{}, args...), strconv.FormatFloat(input, 'g', -1, 64))
		out, err := exec.CommandContext(ctx, name, full...).Output()
		if err != nil {
			return 0, fmt.Errorf("run %s: %w", filepath.Base(name), err)
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
		if err != nil {
			return 0, fmt.Errorf("parse output of %s: %w", filepath.Base(name), err)
		}
		return value, nil
	}
}
