// Copyright (C) 2025 VesselForge Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package parity

import (
	"math"
	"math/rand"
)

// boundaryInputs are always tested first, before any random draws. They
// cover the classic numeric edge cases regardless of the inferred domain.
var boundaryInputs = []float64{0, 1, -1, -math.MaxFloat64, math.MaxFloat64}

// defaultDomain bounds random draws when the caller supplies no domain.
const defaultDomain = 1e6

// InputDomain bounds the pseudo-random input draws for one function,
// typically inferred from the analyzer's argument hints.
type InputDomain struct {
	Min float64
	Max float64
}

// generateInputs builds the deterministic test-input sequence: boundary
// values, then count seeded pseudo-random draws, then any stored regression
// inputs from prior failed runs.
//
// Identical (seed, count, domain, regression) always yields the identical
// sequence; certificate determinism depends on it.
func generateInputs(seed int64, count int, domain InputDomain, regression []float64) []float64 {
	if domain.Min == 0 && domain.Max == 0 {
		domain = InputDomain{Min: -defaultDomain, Max: defaultDomain}
	}

	inputs := make([]float64, 0, len(boundaryInputs)+count+len(regression))
	inputs = append(inputs, boundaryInputs...)

	rng := rand.New(rand.NewSource(seed))
	span := domain.Max - domain.Min
	for i := 0; i < count; i++ {
		inputs = append(inputs, domain.Min+rng.Float64()*span)
	}

	inputs = append(inputs, regression...)
	return inputs
}
