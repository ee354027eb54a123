// Copyright (C) 2025 VesselForge Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vesselforge/vesselforge/pipeline/analyzer"
	"github.com/vesselforge/vesselforge/pipeline/artifact"
)

var (
	flagAnalyzeOutput   string
	flagAnalyzeLanguage string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <source-file>",
	Short: "Extract function specs and target recommendations from source",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnalyzeCommand,
}

func init() {
	analyzeCmd.Flags().StringVarP(&flagAnalyzeOutput, "output", "o", "blueprint.json", "blueprint output path")
	analyzeCmd.Flags().StringVar(&flagAnalyzeLanguage, "language", "python", "source language")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyzeCommand(cmd *cobra.Command, args []string) error {
	sourcePath := args[0]
	content, err := os.ReadFile(sourcePath)
	if err != nil {
		return fmt.Errorf("read source: %w", err)
	}

	a := analyzer.New()
	blueprint, err := a.Analyze(cmd.Context(), content, flagAnalyzeLanguage, sourcePath)
	if err != nil {
		return fmt.Errorf("analyze %s: %w", sourcePath, err)
	}

	if err := artifact.Save(flagAnalyzeOutput, blueprint); err != nil {
		return err
	}

	appLogger.Info("blueprint written",
		"source", sourcePath,
		"functions", len(blueprint.Functions),
		"output", flagAnalyzeOutput,
	)
	for i := range blueprint.Functions {
		f := &blueprint.Functions[i]
		fmt.Printf("%-30s complexity=%-3d target=%-22s %s\n", f.Name, f.Complexity, f.Target, f.Rationale)
	}
	return nil
}
