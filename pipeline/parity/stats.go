// Copyright (C) 2025 VesselForge Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package parity

import (
	"math"
	"sort"

	"github.com/vesselforge/vesselforge/pipeline/artifact"
)

// relativeError compares two numeric outputs.
//
// Exact matches (including matching infinities and NaNs) score zero. A NaN
// on exactly one side is an unconditional mismatch. Otherwise the error is
// |legacy - vessel| relative to the legacy magnitude, floored to avoid
// division blowup near zero.
func relativeError(legacy, vessel float64) float64 {
	if legacy == vessel {
		return 0
	}
	legacyNaN, vesselNaN := math.IsNaN(legacy), math.IsNaN(vessel)
	if legacyNaN && vesselNaN {
		return 0
	}
	if legacyNaN || vesselNaN {
		return math.Inf(1)
	}
	denom := math.Max(math.Abs(legacy), 1e-12)
	return math.Abs(legacy-vessel) / denom
}

// errorStats aggregates a relative-error distribution.
func errorStats(errors []float64) artifact.ErrorStats {
	if len(errors) == 0 {
		return artifact.ErrorStats{}
	}

	sorted := append([]float64{}, errors...)
	sort.Float64s(sorted)

	var sum float64
	for _, e := range sorted {
		sum += e
	}
	mean := sum / float64(len(sorted))

	var variance float64
	for _, e := range sorted {
		d := e - mean
		variance += d * d
	}
	variance /= float64(len(sorted))

	return artifact.ErrorStats{
		MeanError:   mean,
		MedianError: median(sorted),
		Stddev:      math.Sqrt(variance),
		MaxError:    sorted[len(sorted)-1],
	}
}

// median of an already-sorted slice.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// ksStatistic computes the two-sample Kolmogorov-Smirnov statistic
// D = sup |F_a(x) - F_b(x)| over the pooled sample.
func ksStatistic(a, b []float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	sa := append([]float64{}, a...)
	sb := append([]float64{}, b...)
	sort.Float64s(sa)
	sort.Float64s(sb)

	var d float64
	i, j := 0, 0
	for i < len(sa) && j < len(sb) {
		// Ties advance both sides so identical samples score zero.
		x := math.Min(sa[i], sb[j])
		for i < len(sa) && sa[i] == x {
			i++
		}
		for j < len(sb) && sb[j] == x {
			j++
		}
		fa := float64(i) / float64(len(sa))
		fb := float64(j) / float64(len(sb))
		if diff := math.Abs(fa - fb); diff > d {
			d = diff
		}
	}
	return d
}

// ksAgreement is the Smirnov asymptotic probability of observing a KS
// statistic at least this large when the two distributions are identical,
// clamped to [0, 1]. Values near 1 mean the samples are statistically
// indistinguishable.
func ksAgreement(d float64, n, m int) float64 {
	if n == 0 || m == 0 {
		return 1
	}
	en := float64(n) * float64(m) / float64(n+m)
	p := 2 * math.Exp(-2*d*d*en)
	if p > 1 {
		return 1
	}
	if p < 0 {
		return 0
	}
	return p
}

// aggregateConfidence derives the certificate confidence percentage: the
// pass rate damped by the KS agreement probability.
func aggregateConfidence(passed, total int, agreement float64) float64 {
	if total == 0 {
		return 0
	}
	return 100 * (float64(passed) / float64(total)) * agreement
}
