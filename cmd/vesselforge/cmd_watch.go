// Copyright (C) 2025 VesselForge Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vesselforge/vesselforge/pipeline/analyzer"
	"github.com/vesselforge/vesselforge/pipeline/artifact"
	"github.com/vesselforge/vesselforge/pipeline/watch"
)

var (
	flagWatchOutputDir string
	flagWatchDebounce  time.Duration
	flagWatchExts      []string
)

var watchCmd = &cobra.Command{
	Use:   "watch <dir> [dir...]",
	Short: "Re-analyze source files as they change",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runWatchCommand,
}

func init() {
	watchCmd.Flags().StringVar(&flagWatchOutputDir, "output-dir", ".", "directory for generated blueprints")
	watchCmd.Flags().DurationVar(&flagWatchDebounce, "debounce", watch.DefaultDebounce, "quiet period before re-analysis")
	watchCmd.Flags().StringSliceVar(&flagWatchExts, "ext", []string{".py"}, "file extensions to watch")
	rootCmd.AddCommand(watchCmd)
}

func runWatchCommand(cmd *cobra.Command, args []string) error {
	if err := os.MkdirAll(flagWatchOutputDir, 0750); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	a := analyzer.New()
	handler := func(ctx context.Context, path string) {
		content, err := os.ReadFile(path)
		if err != nil {
			appLogger.Warn("read changed file failed", "path", path, "error", err.Error())
			return
		}
		blueprint, err := a.Analyze(ctx, content, "python", path)
		if err != nil {
			appLogger.Warn("re-analysis failed", "path", path, "error", err.Error())
			return
		}

		base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		out := filepath.Join(flagWatchOutputDir, base+".blueprint.json")
		if err := artifact.Save(out, blueprint); err != nil {
			appLogger.Warn("blueprint write failed", "path", out, "error", err.Error())
			return
		}
		appLogger.Info("blueprint refreshed",
			"source", path,
			"functions", len(blueprint.Functions),
			"output", out,
		)
	}

	w, err := watch.New(handler,
		watch.WithDebounce(flagWatchDebounce),
		watch.WithExtensions(flagWatchExts...),
		watch.WithWatchLogger(appLogger.Slog()),
	)
	if err != nil {
		return err
	}
	defer w.Close()

	for _, dir := range args {
		if err := w.Add(dir); err != nil {
			return err
		}
	}

	err = w.Run(cmd.Context())
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
