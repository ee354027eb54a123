// Copyright (C) 2025 VesselForge Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package benchmark measures vessel performance over repeated executions
// and tracks it against stored baselines.
//
// A run discards its warmup iterations and any iteration exceeding its
// timeout, records the remaining per-iteration durations, and derives
// mean/median/min/max/stddev plus 95th and 99th
// percentiles by the nearest-rank method. When a baseline is supplied the
// sample carries an advisory regression verdict; the engine reports, the
// caller decides.
package benchmark

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vesselforge/vesselforge/pipeline/artifact"
)

var benchTracer = otel.Tracer("vesselforge.benchmark")

// Defaults applied when the corresponding option is unset.
const (
	DefaultIterations       = 50
	DefaultWarmupIterations = 5
	DefaultIterationTimeout = 30 * time.Second
)

// ErrIterationTimeout marks one workload invocation exceeding its deadline.
var ErrIterationTimeout = errors.New("benchmark iteration timed out")

// Workload is one benchmarkable execution of a vessel.
type Workload func(ctx context.Context) error

// Runner executes benchmark runs. Create with NewRunner.
//
// Thread Safety: Safe for concurrent use; each Run call is self-contained.
type Runner struct {
	iterations       int
	warmup           int
	iterationTimeout time.Duration
	threshold        float64
	baselines        BaselineStore
	logger           *slog.Logger
}

// RunOption configures a Runner.
type RunOption func(*Runner)

// WithIterations sets the recorded (post-warmup) iteration count.
func WithIterations(n int) RunOption {
	return func(r *Runner) {
		if n > 0 {
			r.iterations = n
		}
	}
}

// WithWarmup sets the discarded warmup iteration count.
func WithWarmup(n int) RunOption {
	return func(r *Runner) {
		if n >= 0 {
			r.warmup = n
		}
	}
}

// WithIterationTimeout bounds each workload invocation.
func WithIterationTimeout(d time.Duration) RunOption {
	return func(r *Runner) {
		if d > 0 {
			r.iterationTimeout = d
		}
	}
}

// WithRegressionThreshold sets the mean-delta percentage that flags a
// regression against the baseline.
func WithRegressionThreshold(percent float64) RunOption {
	return func(r *Runner) {
		if percent > 0 {
			r.threshold = percent
		}
	}
}

// WithBaselineStore attaches a store for baseline comparison and updates.
func WithBaselineStore(store BaselineStore) RunOption {
	return func(r *Runner) {
		r.baselines = store
	}
}

// WithRunLogger sets the runner's logger. Nil is ignored.
func WithRunLogger(logger *slog.Logger) RunOption {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRunner creates a benchmark runner with the given options.
func NewRunner(opts ...RunOption) *Runner {
	r := &Runner{
		iterations:       DefaultIterations,
		warmup:           DefaultWarmupIterations,
		iterationTimeout: DefaultIterationTimeout,
		threshold:        DefaultRegressionThreshold,
		logger:           slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run benchmarks one workload.
//
// Description:
//
//	Executes warmup iterations (discarded), then the recorded iterations.
//	Every invocation is bounded by the iteration timeout; a timed-out
//	iteration is discarded and the run continues, so one stuck execution
//	never voids its siblings. Workload errors and cancellation still
//	abort the run. When a baseline store is attached and holds a sample
//	under the same name, the result carries a regression verdict.
//
// Outputs:
//   - *artifact.BenchmarkSample: The validated sample over the iterations
//     that completed in time.
//   - error: Non-nil on workload failure, cancellation, or when every
//     recorded iteration timed out.
func (r *Runner) Run(ctx context.Context, name string, workload Workload) (*artifact.BenchmarkSample, error) {
	if workload == nil {
		return nil, errors.New("benchmark: workload is required")
	}

	ctx, span := benchTracer.Start(ctx, "Benchmark.Run",
		trace.WithAttributes(
			attribute.String("benchmark.name", name),
			attribute.Int("benchmark.iterations", r.iterations),
			attribute.Int("benchmark.warmup", r.warmup),
		),
	)
	defer span.End()

	for i := 0; i < r.warmup; i++ {
		if _, err := r.runOnce(ctx, workload); err != nil {
			if errors.Is(err, ErrIterationTimeout) {
				continue
			}
			span.RecordError(err)
			return nil, fmt.Errorf("benchmark %s: warmup iteration %d: %w", name, i, err)
		}
	}

	durations := make([]time.Duration, 0, r.iterations)
	timedOut := 0
	for i := 0; i < r.iterations; i++ {
		elapsed, err := r.runOnce(ctx, workload)
		switch {
		case err == nil:
			durations = append(durations, elapsed)
		case errors.Is(err, ErrIterationTimeout):
			timedOut++
			r.logger.Warn("iteration timed out, discarding",
				slog.String("name", name),
				slog.Int("iteration", i),
			)
		default:
			span.RecordError(err)
			return nil, fmt.Errorf("benchmark %s: iteration %d: %w", name, i, err)
		}
	}
	if len(durations) == 0 {
		err := fmt.Errorf("benchmark %s: all %d iterations discarded: %w", name, r.iterations, ErrIterationTimeout)
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("benchmark.timed_out", timedOut))

	sample := &artifact.BenchmarkSample{
		Name:           name,
		Iterations:     len(durations),
		Durations:      durations,
		CreatedAtMilli: time.Now().UnixMilli(),
	}
	sample.Mean, sample.Median, sample.Min, sample.Max, sample.StdDev, sample.P95, sample.P99 = summarize(durations)

	if r.baselines != nil {
		baseline, err := r.baselines.Load(ctx, name)
		switch {
		case err == nil:
			sample.Baseline = CompareBaseline(sample, baseline, r.threshold)
		case errors.Is(err, ErrBaselineNotFound):
			// First run under this name; nothing to compare against.
		default:
			span.RecordError(err)
			return nil, fmt.Errorf("benchmark %s: load baseline: %w", name, err)
		}
	}

	if err := sample.Validate(); err != nil {
		return nil, fmt.Errorf("benchmark %s: %w", name, err)
	}

	span.SetAttributes(
		attribute.Float64("benchmark.mean_ms", float64(sample.Mean.Nanoseconds())/1e6),
		attribute.Bool("benchmark.regression", sample.Baseline != nil && sample.Baseline.RegressionDetected),
	)
	r.logger.Info("benchmark complete",
		slog.String("name", name),
		slog.Int("iterations", sample.Iterations),
		slog.Duration("mean", sample.Mean),
		slog.Duration("p95", sample.P95),
		slog.Duration("p99", sample.P99),
	)
	return sample, nil
}

// SaveBaseline persists a sample as the new named baseline.
func (r *Runner) SaveBaseline(ctx context.Context, name string, sample *artifact.BenchmarkSample) error {
	if r.baselines == nil {
		return errors.New("benchmark: no baseline store attached")
	}
	return r.baselines.Save(ctx, name, sample)
}

// runOnce executes the workload under the iteration timeout.
func (r *Runner) runOnce(ctx context.Context, workload Workload) (time.Duration, error) {
	ictx, cancel := context.WithTimeout(ctx, r.iterationTimeout)
	defer cancel()

	errCh := make(chan error, 1)
	start := time.Now()
	go func() { errCh <- workload(ictx) }()

	select {
	case err := <-errCh:
		if err != nil {
			// A workload that honors its context reports the iteration
			// deadline itself; attribute it to the iteration budget unless
			// the parent context expired.
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				return 0, fmt.Errorf("%w after %v", ErrIterationTimeout, r.iterationTimeout)
			}
			return 0, err
		}
		return time.Since(start), nil
	case <-ictx.Done():
		if errors.Is(ictx.Err(), context.DeadlineExceeded) {
			return 0, fmt.Errorf("%w after %v", ErrIterationTimeout, r.iterationTimeout)
		}
		return 0, ictx.Err()
	}
}
