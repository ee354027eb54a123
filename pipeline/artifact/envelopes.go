// Copyright (C) 2025 VesselForge Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package artifact

import (
	"errors"
	"fmt"
)

// StatusOK marks a successfully produced envelope.
const StatusOK = "ok"

// Blueprint is the analyzer's stage output: the detected functions of one
// source file plus the language tag the caller supplied.
type Blueprint struct {
	// Status is "ok" for a complete analysis. A parse failure never
	// produces a blueprint at all; partial analysis is unsupported.
	Status string `json:"status"`

	// SourceLanguage is the caller-supplied language tag.
	SourceLanguage string `json:"sourceLanguage"`

	// SourcePath is the analyzed file, for traceability.
	SourcePath string `json:"sourcePath,omitempty"`

	// Functions are the analyzed function specs, in source order.
	Functions []FunctionSpec `json:"functions"`
}

// Validate checks the blueprint and every contained spec.
func (b *Blueprint) Validate() error {
	if b.Status != StatusOK {
		return fmt.Errorf("blueprint: unexpected status %q", b.Status)
	}
	if b.SourceLanguage == "" {
		return errors.New("blueprint: source language is required")
	}
	for i := range b.Functions {
		if err := b.Functions[i].Validate(); err != nil {
			return fmt.Errorf("blueprint: %w", err)
		}
	}
	return nil
}

// Manifest is the synthesizer's stage output.
type Manifest struct {
	// Status is "ok" when synthesis completed, even if individual vessels
	// failed; per-vessel failures are recorded on the records themselves.
	Status string `json:"status"`

	// ProfileID identifies the optimization profile applied.
	ProfileID string `json:"profileId"`

	// Vessels are the synthesis results, one per input FunctionSpec.
	Vessels []VesselRecord `json:"vessels"`

	// CacheHits counts vessels satisfied from the build cache.
	CacheHits int `json:"cacheHits"`

	// CacheMisses counts vessels that went past the cache: compiled fresh,
	// degraded to an interpreted fallback, or failed after lookup.
	CacheMisses int `json:"cacheMisses"`
}

// Validate checks the manifest and every contained record, including the
// hit/miss accounting against vessel statuses.
func (m *Manifest) Validate() error {
	if m.Status != StatusOK {
		return fmt.Errorf("manifest: unexpected status %q", m.Status)
	}
	if m.ProfileID == "" {
		return errors.New("manifest: profile id is required")
	}
	hits := 0
	for i := range m.Vessels {
		if err := m.Vessels[i].Validate(); err != nil {
			return fmt.Errorf("manifest: %w", err)
		}
		if m.Vessels[i].Status == StatusCached {
			hits++
		}
	}
	if hits != m.CacheHits {
		return fmt.Errorf("manifest: cacheHits %d disagrees with %d cached vessels", m.CacheHits, hits)
	}
	return nil
}

// Report is the benchmark engine's stage output. Durations are reported in
// milliseconds for external consumers; the in-process BenchmarkSample keeps
// time.Duration precision.
type Report struct {
	// Name identifies the benchmarked vessel.
	Name string `json:"name,omitempty"`

	// Iterations is the recorded (post-warmup) iteration count.
	Iterations int `json:"iterations"`

	MeanMs   float64 `json:"mean"`
	MedianMs float64 `json:"median"`
	MinMs    float64 `json:"min"`
	MaxMs    float64 `json:"max"`
	StddevMs float64 `json:"stddev"`
	P95Ms    float64 `json:"p95"`
	P99Ms    float64 `json:"p99"`

	// Baseline is present when the run was compared to a stored baseline.
	Baseline *BaselineVerdict `json:"baseline,omitempty"`
}

// Validate checks the report's invariants.
func (r *Report) Validate() error {
	if r.Iterations < 1 {
		return errors.New("report: iterations < 1")
	}
	if r.MinMs > r.MedianMs || r.MedianMs > r.P95Ms || r.P95Ms > r.P99Ms || r.P99Ms > r.MaxMs {
		return fmt.Errorf("report: percentile ordering violated (min=%.3f p50=%.3f p95=%.3f p99=%.3f max=%.3f)",
			r.MinMs, r.MedianMs, r.P95Ms, r.P99Ms, r.MaxMs)
	}
	return nil
}

// NewReport converts a BenchmarkSample into its wire representation.
func NewReport(s *BenchmarkSample) *Report {
	toMs := func(d int64) float64 { return float64(d) / 1e6 }
	return &Report{
		Name:       s.Name,
		Iterations: s.Iterations,
		MeanMs:     toMs(int64(s.Mean)),
		MedianMs:   toMs(int64(s.Median)),
		MinMs:      toMs(int64(s.Min)),
		MaxMs:      toMs(int64(s.Max)),
		StddevMs:   toMs(int64(s.StdDev)),
		P95Ms:      toMs(int64(s.P95)),
		P99Ms:      toMs(int64(s.P99)),
		Baseline:   s.Baseline,
	}
}
