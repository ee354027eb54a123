// Copyright (C) 2025 VesselForge Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package artifact defines the typed records exchanged between pipeline
// stages and the JSON envelopes persisted at stage boundaries.
//
// Every stage of the evolution pipeline (analyze, synthesize, validate,
// benchmark) consumes the previous stage's envelope and produces the next.
// Serialization to and from JSON happens only in this package, and every
// envelope is schema-validated on load and before save so a malformed
// artifact is rejected at the boundary instead of deep inside a stage.
//
// Design principles:
//   - Concrete types only - no map[string]interface{} between stages
//   - Timestamps as int64 UnixMilli per project conventions
//   - Envelopes are immutable once written; a new run writes a new file
package artifact

import (
	"errors"
	"fmt"
	"time"
)

// -----------------------------------------------------------------------------
// Targets
// -----------------------------------------------------------------------------

// Target identifies the recommended compilation target class for a function.
type Target string

const (
	// TargetMemorySafeNative is recommended for cryptographic code where
	// memory safety of the generated implementation is non-negotiable.
	TargetMemorySafeNative Target = "memory-safe-native"

	// TargetCompiledConcurrent is recommended for loop-heavy, I/O-free
	// functions that benefit from goroutine-class parallelism.
	TargetCompiledConcurrent Target = "compiled-concurrent"

	// TargetCompiledNative is recommended for math-heavy, I/O-free code.
	TargetCompiledNative Target = "compiled-native"

	// TargetInterpretedStay marks functions not worth converting; the
	// synthesizer skips them unless explicitly forced.
	TargetInterpretedStay Target = "interpreted-stay"
)

// Valid reports whether the target is one of the known identifiers.
func (t Target) Valid() bool {
	switch t {
	case TargetMemorySafeNative, TargetCompiledConcurrent, TargetCompiledNative, TargetInterpretedStay:
		return true
	}
	return false
}

// -----------------------------------------------------------------------------
// FunctionSpec
// -----------------------------------------------------------------------------

// FunctionSpec describes one analyzed function.
//
// Created by the analyzer, immutable afterward, consumed by the synthesizer.
// The analyzer guarantees Complexity >= 1 and a stable, deterministic Target
// for identical input; the synthesizer's cache hashing depends on that.
type FunctionSpec struct {
	// Name is the function's declared name.
	Name string `json:"name"`

	// StartLine is the 1-based line of the definition.
	StartLine int `json:"start_line"`

	// LineCount is the number of source lines the definition spans.
	LineCount int `json:"line_count"`

	// Source is the exact source text of the function, used by the
	// code generator for body translation and by cache hashing.
	Source string `json:"source"`

	// Complexity is the cyclomatic complexity score (>= 1).
	Complexity int `json:"complexity"`

	// HasLoops is true if any loop construct is nested in the body.
	HasLoops bool `json:"has_loops"`

	// HasRecursion is true if the function calls itself.
	HasRecursion bool `json:"has_recursion"`

	// ArgHints are free-form per-argument type hints, in order.
	ArgHints []string `json:"arg_hints,omitempty"`

	// ReturnHint is a free-form return type hint.
	ReturnHint string `json:"return_hint,omitempty"`

	// Target is the recommended target-language identifier.
	Target Target `json:"recommended_target"`

	// Rationale is a human-readable justification for the recommendation.
	Rationale string `json:"rationale"`
}

// Validate checks the record's invariants.
func (f *FunctionSpec) Validate() error {
	if f.Name == "" {
		return errors.New("function spec: name is required")
	}
	if f.Complexity < 1 {
		return fmt.Errorf("function spec %s: complexity %d < 1", f.Name, f.Complexity)
	}
	if f.StartLine < 1 {
		return fmt.Errorf("function spec %s: start line %d < 1", f.Name, f.StartLine)
	}
	if f.LineCount < 1 {
		return fmt.Errorf("function spec %s: line count %d < 1", f.Name, f.LineCount)
	}
	if !f.Target.Valid() {
		return fmt.Errorf("function spec %s: unknown target %q", f.Name, f.Target)
	}
	return nil
}

// -----------------------------------------------------------------------------
// VesselRecord
// -----------------------------------------------------------------------------

// VesselStatus is the lifecycle status of a generated artifact.
type VesselStatus string

const (
	// StatusCompiled means the compiler produced a fresh binary this run.
	StatusCompiled VesselStatus = "Compiled"

	// StatusCached means an existing binary was reused from the build cache.
	// A cached record's ContentHash always matches a live cache entry.
	StatusCached VesselStatus = "Cached"

	// StatusInterpretedFallback means compilation failed (or was skipped)
	// and the vessel wraps the original interpreted source in a shim.
	StatusInterpretedFallback VesselStatus = "InterpretedFallback"

	// StatusError means compilation failed and no fallback was allowed.
	StatusError VesselStatus = "Error"
)

// Valid reports whether the status is a known enum member.
func (s VesselStatus) Valid() bool {
	switch s {
	case StatusCompiled, StatusCached, StatusInterpretedFallback, StatusError:
		return true
	}
	return false
}

// VesselRecord describes one generated-and-compiled artifact.
//
// Created by the synthesizer and updated only by the synthesizer on rebuild.
// The validator and benchmark engine treat it as read-only.
type VesselRecord struct {
	// Function is the originating function name.
	Function string `json:"function"`

	// Target is the target language the vessel was generated for.
	Target Target `json:"target"`

	// SourcePath is the path of the generated target-language source.
	SourcePath string `json:"source_path,omitempty"`

	// BinaryPath is the path of the compiled binary (or shim script).
	BinaryPath string `json:"binary_path,omitempty"`

	// Status is the compilation outcome.
	Status VesselStatus `json:"status"`

	// ContentHash is the build-cache key derived from the rendered source,
	// profile, toolchain version, and target triple.
	ContentHash string `json:"content_hash"`

	// CompileMillis is the wall-clock compile duration. Zero for cache hits.
	CompileMillis int64 `json:"compile_ms"`

	// BinarySize is the compiled binary size in bytes.
	BinarySize int64 `json:"binary_size"`

	// Error holds the compiler diagnostic for Error/InterpretedFallback.
	Error string `json:"error,omitempty"`
}

// Validate checks the record's invariants.
func (v *VesselRecord) Validate() error {
	if v.Function == "" {
		return errors.New("vessel record: function name is required")
	}
	if !v.Status.Valid() {
		return fmt.Errorf("vessel %s: unknown status %q", v.Function, v.Status)
	}
	if v.ContentHash == "" && v.Status != StatusError {
		return fmt.Errorf("vessel %s: content hash is required for status %s", v.Function, v.Status)
	}
	if v.Status == StatusCached && v.BinaryPath == "" {
		return fmt.Errorf("vessel %s: cached vessel has no binary path", v.Function)
	}
	return nil
}

// -----------------------------------------------------------------------------
// CacheEntry
// -----------------------------------------------------------------------------

// CacheEntry is the value stored in the build cache under a content hash.
//
// Entries are never mutated in place: a changed input always produces a new
// hash and therefore a new entry. Stale entries may be swept, never
// silently overwritten.
type CacheEntry struct {
	// Hash is the content hash the entry is keyed by.
	Hash string `json:"hash"`

	// BinaryPath is the location of the compiled binary.
	BinaryPath string `json:"binary_path"`

	// CreatedAtMilli is the creation timestamp (UnixMilli).
	CreatedAtMilli int64 `json:"created_at_ms"`

	// SourceBytes is the length of the rendered source that produced the
	// binary, kept for cache diagnostics.
	SourceBytes int `json:"source_bytes"`

	// ProfileID identifies the optimization profile used.
	ProfileID string `json:"profile_id"`

	// Toolchain is the compiler toolchain version string.
	Toolchain string `json:"toolchain"`

	// TargetTriple is the compilation target triple.
	TargetTriple string `json:"target_triple"`
}

// Validate checks the entry's invariants.
func (e *CacheEntry) Validate() error {
	if e.Hash == "" {
		return errors.New("cache entry: hash is required")
	}
	if e.BinaryPath == "" {
		return fmt.Errorf("cache entry %s: binary path is required", e.Hash)
	}
	if e.CreatedAtMilli <= 0 {
		return fmt.Errorf("cache entry %s: created_at_ms must be positive", e.Hash)
	}
	return nil
}

// CreatedAt returns the creation timestamp as time.Time.
func (e *CacheEntry) CreatedAt() time.Time {
	return time.UnixMilli(e.CreatedAtMilli)
}

// -----------------------------------------------------------------------------
// ParityCertificate
// -----------------------------------------------------------------------------

// ErrorStats aggregates the per-test relative-error distribution.
type ErrorStats struct {
	// MeanError is the mean relative error across all comparisons.
	MeanError float64 `json:"meanError"`

	// MedianError is the median relative error.
	MedianError float64 `json:"medianError"`

	// Stddev is the standard deviation of the relative errors.
	Stddev float64 `json:"stddev"`

	// MaxError is the largest observed relative error.
	MaxError float64 `json:"maxError"`

	// SimilarityStatistic is the two-sample Kolmogorov-Smirnov statistic
	// comparing legacy and vessel output distributions (0 = identical).
	SimilarityStatistic float64 `json:"similarityStatistic"`
}

// Performance compares total wall-clock time of the two implementations.
type Performance struct {
	// LegacyMs is the summed legacy execution time in milliseconds.
	LegacyMs float64 `json:"legacyMs"`

	// VesselMs is the summed vessel execution time in milliseconds.
	VesselMs float64 `json:"vesselMs"`

	// Speedup is LegacyMs / VesselMs. Zero when VesselMs is zero.
	Speedup float64 `json:"speedup"`
}

// ParityCertificate is one validation outcome for a vessel.
//
// A certificate is created once per validation run and never merged across
// runs. Certified=false is a normal, reportable outcome, not an error.
type ParityCertificate struct {
	// ID uniquely identifies the validation run.
	ID string `json:"id"`

	// Function is the validated function's name.
	Function string `json:"function,omitempty"`

	// Certified is true when every comparison passed and the aggregate
	// confidence met the configured threshold.
	Certified bool `json:"certified"`

	// Confidence is the aggregate confidence percentage (0-100).
	Confidence float64 `json:"confidence"`

	// TestCount is the total number of executed comparisons.
	TestCount int `json:"testCount"`

	// Passed is the number of comparisons within tolerance.
	Passed int `json:"passed"`

	// Failed is the number of comparisons outside tolerance (including
	// per-call timeouts on either side).
	Failed int `json:"failed"`

	// Seed is the pseudo-random seed used for input generation, recorded
	// so a run can be reproduced exactly.
	Seed int64 `json:"seed"`

	// Performance holds the wall-clock comparison.
	Performance Performance `json:"performance"`

	// Statistics holds the relative-error distribution aggregates.
	Statistics ErrorStats `json:"statistics"`

	// CreatedAtMilli is when the certificate was issued (UnixMilli).
	CreatedAtMilli int64 `json:"created_at_ms"`
}

// Validate checks the certificate's invariants.
func (c *ParityCertificate) Validate() error {
	if c.TestCount < 0 || c.Passed < 0 || c.Failed < 0 {
		return errors.New("parity certificate: negative counts")
	}
	if c.Passed+c.Failed != c.TestCount {
		return fmt.Errorf("parity certificate: passed %d + failed %d != testCount %d",
			c.Passed, c.Failed, c.TestCount)
	}
	if c.Confidence < 0 || c.Confidence > 100 {
		return fmt.Errorf("parity certificate: confidence %.4f outside [0,100]", c.Confidence)
	}
	if c.Certified && c.Failed > 0 {
		return errors.New("parity certificate: certified with failures")
	}
	return nil
}

// -----------------------------------------------------------------------------
// BenchmarkSample
// -----------------------------------------------------------------------------

// BaselineVerdict is the advisory regression comparison against a stored
// baseline sample. The engine reports it; the orchestrator decides.
type BaselineVerdict struct {
	// Name is the baseline's stored name.
	Name string `json:"name,omitempty"`

	// MeanMs is the baseline's mean duration in milliseconds.
	MeanMs float64 `json:"mean"`

	// DeltaPercent is the percentage change of the new mean vs baseline.
	DeltaPercent float64 `json:"delta_percent"`

	// RegressionDetected is true when DeltaPercent exceeds the threshold.
	RegressionDetected bool `json:"regressionDetected"`
}

// BenchmarkSample is one benchmark invocation's result set.
//
// A baseline is a named, persisted BenchmarkSample that outlives any single
// run; see the benchmark package's baseline store.
type BenchmarkSample struct {
	// Name identifies the benchmarked vessel or function.
	Name string `json:"name"`

	// Iterations is the number of recorded (post-warmup) iterations.
	Iterations int `json:"iterations"`

	// Durations is the ordered sequence of per-iteration durations.
	Durations []time.Duration `json:"durations"`

	// Derived statistics over Durations. Percentiles use the
	// nearest-rank method.
	Mean   time.Duration `json:"mean"`
	Median time.Duration `json:"median"`
	Min    time.Duration `json:"min"`
	Max    time.Duration `json:"max"`
	StdDev time.Duration `json:"std_dev"`
	P95    time.Duration `json:"p95"`
	P99    time.Duration `json:"p99"`

	// Baseline is the optional regression verdict.
	Baseline *BaselineVerdict `json:"baseline,omitempty"`

	// CreatedAtMilli is when the sample was recorded (UnixMilli).
	CreatedAtMilli int64 `json:"created_at_ms"`
}

// Validate checks the sample's invariants, including percentile ordering
// min <= median <= p95 <= p99 <= max.
func (b *BenchmarkSample) Validate() error {
	if b.Iterations < 1 {
		return errors.New("benchmark sample: iterations < 1")
	}
	if len(b.Durations) != b.Iterations {
		return fmt.Errorf("benchmark sample: %d durations for %d iterations",
			len(b.Durations), b.Iterations)
	}
	if b.Min > b.Median || b.Median > b.P95 || b.P95 > b.P99 || b.P99 > b.Max {
		return fmt.Errorf("benchmark sample: percentile ordering violated (min=%v p50=%v p95=%v p99=%v max=%v)",
			b.Min, b.Median, b.P95, b.P99, b.Max)
	}
	return nil
}
