// Copyright (C) 2025 VesselForge Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package synthesizer

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

var (
	tracer = otel.Tracer("vesselforge.synthesizer")
	meter  = otel.Meter("vesselforge.synthesizer")
)

var (
	synthesizeLatency metric.Float64Histogram
	vesselsTotal      metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		synthesizeLatency, err = meter.Float64Histogram(
			"synthesizer_duration_seconds",
			metric.WithDescription("Duration of synthesis batches"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		vesselsTotal, err = meter.Int64Counter(
			"synthesizer_vessels_total",
			metric.WithDescription("Vessels produced, labeled by outcome status"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordSynthesizeMetrics records metrics for one batch.
func recordSynthesizeMetrics(ctx context.Context, profileID string, duration time.Duration, m *artifact.Manifest) {
	if err := initMetrics(); err != nil {
		return // Silently skip if metrics init failed
	}

	synthesizeLatency.Record(ctx, duration.Seconds(),
		metric.WithAttributes(attribute.String("profile", profileID)),
	)
	for i := range m.Vessels {
		vesselsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("profile", profileID),
			attribute.String("status", string(m.Vessels[i].Status)),
		))
	}
}

// startSynthesizeSpan creates a span for one batch.
func startSynthesizeSpan(ctx context.Context, profileID string, specCount int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Synthesizer.Synthesize",
		trace.WithAttributes(
			attribute.String("synthesizer.profile", profileID),
			attribute.Int("synthesizer.spec_count", specCount),
		),
	)
}

// setSynthesizeSpanResult records the outcome on the span.
func setSynthesizeSpanResult(span trace.Span, m *artifact.Manifest) {
	span.SetAttributes(
		attribute.Int("synthesizer.cache_hits", m.CacheHits),
		attribute.Int("synthesizer.cache_misses", m.CacheMisses),
	)
}
