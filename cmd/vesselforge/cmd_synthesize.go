// Copyright (C) 2025 VesselForge Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vesselforge/vesselforge/pipeline/artifact"
	"github.com/vesselforge/vesselforge/pipeline/buildcache"
	"github.com/vesselforge/vesselforge/pipeline/profile"
	"github.com/vesselforge/vesselforge/pipeline/synthesizer"
)

var (
	flagSynthProfile  string
	flagSynthOutput   string
	flagSynthCacheDir string
	flagSynthWorkDir  string
	flagSynthTimeout  time.Duration
)

var synthesizeCmd = &cobra.Command{
	Use:   "synthesize <blueprint.json>",
	Short: "Generate and compile vessels for an analysis blueprint",
	Args:  cobra.ExactArgs(1),
	RunE:  runSynthesizeCommand,
}

func init() {
	synthesizeCmd.Flags().StringVarP(&flagSynthProfile, "profile", "p", "", "optimization profile YAML (required)")
	synthesizeCmd.Flags().StringVarP(&flagSynthOutput, "output", "o", "manifest.json", "manifest output path")
	synthesizeCmd.Flags().StringVar(&flagSynthCacheDir, "cache-dir", ".vesselforge/cache", "build cache directory")
	synthesizeCmd.Flags().StringVar(&flagSynthWorkDir, "work-dir", ".vesselforge/work", "directory for rendered sources and binaries")
	synthesizeCmd.Flags().DurationVar(&flagSynthTimeout, "compile-timeout", synthesizer.DefaultCompileTimeout, "per-compile time limit")
	_ = synthesizeCmd.MarkFlagRequired("profile")
	rootCmd.AddCommand(synthesizeCmd)
}

func runSynthesizeCommand(cmd *cobra.Command, args []string) error {
	blueprint, err := artifact.LoadBlueprint(args[0])
	if err != nil {
		return err
	}

	prof, err := profile.Load(flagSynthProfile)
	if err != nil {
		return err
	}

	cache, err := buildcache.Open(
		buildcache.DefaultConfig(flagSynthCacheDir),
		buildcache.WithLogger(appLogger.Slog()),
	)
	if err != nil {
		return err
	}
	defer cache.Close()

	synth, err := synthesizer.New(prof, cache,
		synthesizer.WithWorkDir(flagSynthWorkDir),
		synthesizer.WithCompileTimeout(flagSynthTimeout),
		synthesizer.WithLogger(appLogger.Slog()),
	)
	if err != nil {
		return err
	}

	manifest, err := synth.Synthesize(cmd.Context(), blueprint.Functions)
	if err != nil {
		return err
	}

	if err := artifact.Save(flagSynthOutput, manifest); err != nil {
		return err
	}

	appLogger.Info("manifest written",
		"profile", manifest.ProfileID,
		"vessels", len(manifest.Vessels),
		"cache_hits", manifest.CacheHits,
		"cache_misses", manifest.CacheMisses,
		"output", flagSynthOutput,
	)
	for i := range manifest.Vessels {
		v := &manifest.Vessels[i]
		fmt.Printf("%-30s %-20s %s\n", v.Function, v.Status, v.BinaryPath)
	}
	return nil
}
