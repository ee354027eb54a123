// Copyright (C) 2025 VesselForge Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analyzer

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/vesselforge/vesselforge/pipeline/artifact"
)

// Package-level tracer and meter for analysis.
var (
	tracer = otel.Tracer("vesselforge.analyzer")
	meter  = otel.Meter("vesselforge.analyzer")
)

var (
	analyzeLatency     metric.Float64Histogram
	analyzeTotal       metric.Int64Counter
	functionsExtracted metric.Int64Histogram
	analyzeErrors      metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the instruments. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		analyzeLatency, err = meter.Float64Histogram(
			"analyzer_duration_seconds",
			metric.WithDescription("Duration of source analysis operations"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		analyzeTotal, err = meter.Int64Counter(
			"analyzer_runs_total",
			metric.WithDescription("Total number of analysis operations"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		functionsExtracted, err = meter.Int64Histogram(
			"analyzer_functions_extracted",
			metric.WithDescription("Number of functions extracted per analysis"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		analyzeErrors, err = meter.Int64Counter(
			"analyzer_errors_total",
			metric.WithDescription("Total number of analysis failures"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordAnalyzeMetrics records metrics for one analysis.
func recordAnalyzeMetrics(ctx context.Context, language string, duration time.Duration, bp *artifact.Blueprint, analysisErr error) {
	if err := initMetrics(); err != nil {
		return // Silently skip if metrics init failed
	}

	attrs := metric.WithAttributes(
		attribute.String("language", language),
		attribute.Bool("success", analysisErr == nil),
	)

	analyzeLatency.Record(ctx, duration.Seconds(), attrs)
	analyzeTotal.Add(ctx, 1, attrs)

	if analysisErr != nil {
		analyzeErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("language", language)))
		return
	}
	if bp != nil {
		functionsExtracted.Record(ctx, int64(len(bp.Functions)),
			metric.WithAttributes(attribute.String("language", language)),
		)
	}
}

// startAnalyzeSpan creates a span for one analysis.
func startAnalyzeSpan(ctx context.Context, language, sourcePath string, contentSize int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Analyzer.Analyze",
		trace.WithAttributes(
			attribute.String("analyzer.language", language),
			attribute.String("analyzer.file", sourcePath),
			attribute.Int("analyzer.content_size", contentSize),
		),
	)
}

// setAnalyzeSpanResult records the outcome on the span.
func setAnalyzeSpanResult(span trace.Span, bp *artifact.Blueprint, err error) {
	if err != nil {
		span.RecordError(err)
		return
	}
	if bp != nil {
		span.SetAttributes(attribute.Int("analyzer.function_count", len(bp.Functions)))
	}
}
