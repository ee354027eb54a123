// Copyright (C) 2025 VesselForge Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package benchmark

import (
	"math"
	"sort"
	"time"
)

// percentile returns the p-th percentile of durations by the nearest-rank
// method: the value at index ceil(p*n)-1 of the sorted set. p is a fraction
// in (0, 1].
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(p * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}

// summarize fills the derived statistics for an ordered duration set.
func summarize(durations []time.Duration) (mean, med, min, max, stddev, p95, p99 time.Duration) {
	if len(durations) == 0 {
		return
	}

	sorted := append([]time.Duration{}, durations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}
	mean = sum / time.Duration(len(sorted))

	var variance float64
	for _, d := range sorted {
		diff := float64(d - mean)
		variance += diff * diff
	}
	variance /= float64(len(sorted))
	stddev = time.Duration(math.Sqrt(variance))

	min = sorted[0]
	max = sorted[len(sorted)-1]
	med = percentile(sorted, 0.50)
	p95 = percentile(sorted, 0.95)
	p99 = percentile(sorted, 0.99)
	return
}
