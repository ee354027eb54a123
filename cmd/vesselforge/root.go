// Copyright (C) 2025 VesselForge Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vesselforge/vesselforge/pkg/logging"
)

var (
	flagLogLevel string
	flagLogDir   string
	flagLogJSON  bool
	flagQuiet    bool

	// appLogger is initialized before any command runs and shared by all.
	appLogger *logging.Logger
)

var rootCmd = &cobra.Command{
	Use:   "vesselforge",
	Short: "Evolve interpreted hot functions into certified compiled vessels",
	Long: `vesselforge analyzes interpreted source code, generates compiled
equivalents (vessels), statistically certifies parity between the two
implementations, and tracks the performance gain over time.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := parseLevel(flagLogLevel)
		if err != nil {
			return err
		}
		appLogger = logging.New(logging.Config{
			Level:   level,
			LogDir:  flagLogDir,
			Service: "cli",
			JSON:    flagLogJSON,
			Quiet:   flagQuiet,
		})
		slog.SetDefault(appLogger.Slog())
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if appLogger != nil {
			_ = appLogger.Close()
		}
	},
}

// Execute runs the CLI. Errors are printed once, here.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "minimum log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVar(&flagLogDir, "log-dir", "", "directory for JSON log files (disabled when empty)")
	rootCmd.PersistentFlags().BoolVar(&flagLogJSON, "log-json", false, "emit stderr logs as JSON")
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress stderr logging")
}

// parseLevel maps the flag string to a logging level.
func parseLevel(s string) (logging.Level, error) {
	switch s {
	case "debug":
		return logging.LevelDebug, nil
	case "info":
		return logging.LevelInfo, nil
	case "warn":
		return logging.LevelWarn, nil
	case "error":
		return logging.LevelError, nil
	default:
		return logging.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}
