// Copyright (C) 2025 VesselForge Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package parity statistically certifies that a vessel reproduces its
// legacy implementation.
//
// The validator drives both implementations through the same deterministic
// test-input sequence, compares every output pair within a configured
// relative tolerance, and issues a ParityCertificate. An uncertified
// vessel is a normal, reportable outcome; Validate returns an error only
// when the run itself could not be carried out.
//
// Confidence is the pass rate damped by the Smirnov asymptotic agreement
// probability of the two output distributions:
//
//	confidence = 100 * (passed/testCount) * min(1, 2*exp(-2*D^2*nm/(n+m)))
//
// where D is the two-sample Kolmogorov-Smirnov statistic. Identical
// distributions give agreement 1, so an all-pass run reports ~100 and
// adding more passing cases never lowers the figure.
package parity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vesselforge/vesselforge/pipeline/artifact"
)

var validatorTracer = otel.Tracer("vesselforge.parity")

// Defaults applied when the corresponding Config field is zero.
const (
	DefaultTestCount           = 100
	DefaultTolerance           = 1e-3
	DefaultConfidenceThreshold = 99.0
	DefaultCallTimeout         = 1 * time.Second
)

// ErrCallTimeout marks a single runner call that exceeded the per-call
// deadline. It fails that comparison, never the whole run.
var ErrCallTimeout = errors.New("runner call timed out")

// Runner executes one implementation (legacy or vessel) on one input.
//
// The context carries the per-call deadline; runners that block should
// honor it, but the validator also enforces the deadline externally.
type Runner func(ctx context.Context, input float64) (float64, error)

// Config tunes one validator.
type Config struct {
	// TestCount is the number of pseudo-random inputs, on top of the
	// fixed boundary values and stored regression inputs.
	TestCount int

	// Tolerance is the maximum passing relative error.
	Tolerance float64

	// ConfidenceThreshold is the minimum confidence for certification.
	ConfidenceThreshold float64

	// Seed fixes the pseudo-random input sequence. Zero draws a seed
	// from the clock; the certificate records whichever was used.
	Seed int64

	// CallTimeout bounds each individual runner call.
	CallTimeout time.Duration

	// Domain bounds the random input draws. Zero value uses the default
	// symmetric domain.
	Domain InputDomain

	// Inputs optionally persists failed inputs for replay in later runs.
	Inputs InputStore

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Validator executes parity runs. Create with New.
//
// Thread Safety: Safe for concurrent use; each Validate call is
// self-contained.
type Validator struct {
	cfg Config
}

// New creates a Validator, filling zero Config fields with defaults.
func New(cfg Config) *Validator {
	if cfg.TestCount <= 0 {
		cfg.TestCount = DefaultTestCount
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = DefaultTolerance
	}
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Validator{cfg: cfg}
}

// Validate runs the full parity suite for one function.
//
// Inputs:
//   - ctx: Cancels the run between comparisons.
//   - function: The function name, recorded on the certificate and used
//     as the regression-input key.
//   - legacy: The reference implementation.
//   - vessel: The implementation under test.
//
// Outputs:
//   - *artifact.ParityCertificate: Always non-nil on success, certified
//     or not.
//   - error: Non-nil only for run-level failures (nil runners, context
//     cancellation, regression-store faults).
func (v *Validator) Validate(ctx context.Context, function string, legacy, vessel Runner) (*artifact.ParityCertificate, error) {
	if legacy == nil || vessel == nil {
		return nil, errors.New("validate: both runners are required")
	}

	ctx, span := validatorTracer.Start(ctx, "Validator.Validate",
		trace.WithAttributes(
			attribute.String("parity.function", function),
			attribute.Int("parity.test_count", v.cfg.TestCount),
			attribute.Float64("parity.tolerance", v.cfg.Tolerance),
		),
	)
	defer span.End()

	seed := v.cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	var regression []float64
	if v.cfg.Inputs != nil {
		stored, err := v.cfg.Inputs.Load(ctx, function)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("load regression inputs: %w", err)
		}
		regression = stored
	}

	inputs := generateInputs(seed, v.cfg.TestCount, v.cfg.Domain, regression)

	var (
		relErrors     []float64
		legacyOutputs []float64
		vesselOutputs []float64
		failedInputs  []float64
		passed        int
		legacyTotal   time.Duration
		vesselTotal   time.Duration
	)

	for _, input := range inputs {
		if err := ctx.Err(); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("validate %s: %w", function, err)
		}

		legacyOut, legacyDur, legacyErr := v.call(ctx, legacy, input)
		vesselOut, vesselDur, vesselErr := v.call(ctx, vessel, input)
		legacyTotal += legacyDur
		vesselTotal += vesselDur

		if legacyErr != nil || vesselErr != nil {
			failedInputs = append(failedInputs, input)
			v.cfg.Logger.Debug("comparison failed",
				slog.String("function", function),
				slog.Float64("input", input),
				slog.Any("legacy_error", legacyErr),
				slog.Any("vessel_error", vesselErr),
			)
			continue
		}

		legacyOutputs = append(legacyOutputs, legacyOut)
		vesselOutputs = append(vesselOutputs, vesselOut)

		relErr := relativeError(legacyOut, vesselOut)
		relErrors = append(relErrors, relErr)
		if relErr <= v.cfg.Tolerance {
			passed++
		} else {
			failedInputs = append(failedInputs, input)
		}
	}

	if v.cfg.Inputs != nil && len(failedInputs) > 0 {
		if err := v.cfg.Inputs.Record(ctx, function, failedInputs); err != nil {
			v.cfg.Logger.Warn("recording regression inputs failed",
				slog.String("function", function),
				slog.String("error", err.Error()),
			)
		}
	}

	total := len(inputs)
	failed := total - passed

	stats := errorStats(relErrors)
	stats.SimilarityStatistic = ksStatistic(legacyOutputs, vesselOutputs)
	agreement := ksAgreement(stats.SimilarityStatistic, len(legacyOutputs), len(vesselOutputs))
	confidence := aggregateConfidence(passed, total, agreement)

	perf := performanceFrom(legacyTotal, vesselTotal)

	cert := &artifact.ParityCertificate{
		ID:             uuid.NewString(),
		Function:       function,
		Certified:      failed == 0 && confidence >= v.cfg.ConfidenceThreshold,
		Confidence:     confidence,
		TestCount:      total,
		Passed:         passed,
		Failed:         failed,
		Seed:           seed,
		Performance:    perf,
		Statistics:     stats,
		CreatedAtMilli: time.Now().UnixMilli(),
	}

	span.SetAttributes(
		attribute.Bool("parity.certified", cert.Certified),
		attribute.Float64("parity.confidence", cert.Confidence),
		attribute.Int("parity.failed", cert.Failed),
	)
	v.cfg.Logger.Info("parity run complete",
		slog.String("function", function),
		slog.Bool("certified", cert.Certified),
		slog.Float64("confidence", cert.Confidence),
		slog.Int("passed", cert.Passed),
		slog.Int("failed", cert.Failed),
		slog.Float64("speedup", perf.Speedup),
	)
	return cert, nil
}

// performanceFrom builds the wall-clock comparison from summed run times.
func performanceFrom(legacyTotal, vesselTotal time.Duration) artifact.Performance {
	perf := artifact.Performance{
		LegacyMs: float64(legacyTotal.Nanoseconds()) / 1e6,
		VesselMs: float64(vesselTotal.Nanoseconds()) / 1e6,
	}
	if perf.VesselMs > 0 {
		perf.Speedup = perf.LegacyMs / perf.VesselMs
	}
	return perf
}

// call runs one implementation on one input under the per-call deadline.
// The deadline is enforced even if the runner ignores its context.
func (v *Validator) call(ctx context.Context, r Runner, input float64) (float64, time.Duration, error) {
	cctx, cancel := context.WithTimeout(ctx, v.cfg.CallTimeout)
	defer cancel()

	type result struct {
		out float64
		err error
	}
	ch := make(chan result, 1)
	start := time.Now()
	go func() {
		out, err := r(cctx, input)
		ch <- result{out: out, err: err}
	}()

	select {
	case res := <-ch:
		return res.out, time.Since(start), res.err
	case <-cctx.Done():
		return 0, time.Since(start), fmt.Errorf("%w: input %g", ErrCallTimeout, input)
	}
}
