// Copyright (C) 2025 VesselForge Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analyzer

import (
	"fmt"

	"github.com/vesselforge/vesselforge/pipeline/artifact"
)

// concurrentComplexityFloor is the complexity at or above which loop-heavy
// code is routed to the concurrent target.
const concurrentComplexityFloor = 8

// nativeComplexityFloor is the complexity at or above which otherwise
// unremarkable code is still worth compiling.
const nativeComplexityFloor = 4

// ruleInput is the flag set the recommendation rules operate on. The rules
// are a pure function of these fields and nothing else.
type ruleInput struct {
	Complexity int
	HasLoops   bool
	UsesIO     bool
	UsesMath   bool
	UsesCrypto bool
}

// recommendTarget applies the target rules in fixed priority order and
// returns the first match with its justification. The ordering is part of
// the analyzer's contract: the synthesizer's cache hashing requires the
// recommendation to be deterministic for identical input.
//
// Priority order:
//  1. cryptographic keywords            -> memory-safe-native
//  2. loops, no I/O, complexity >= 8    -> compiled-concurrent
//  3. math keywords, no I/O             -> compiled-native
//  4. complexity >= 4                   -> compiled-native
//  5. otherwise                         -> interpreted-stay
func recommendTarget(in ruleInput) (artifact.Target, string) {
	switch {
	case in.UsesCrypto:
		return artifact.TargetMemorySafeNative,
			"cryptographic keywords detected; memory-safe compilation required"
	case in.HasLoops && !in.UsesIO && in.Complexity >= concurrentComplexityFloor:
		return artifact.TargetCompiledConcurrent,
			fmt.Sprintf("loop-heavy, I/O-free, complexity %d >= %d; parallel compiled target",
				in.Complexity, concurrentComplexityFloor)
	case in.UsesMath && !in.UsesIO:
		return artifact.TargetCompiledNative,
			"math-heavy, I/O-free; native compiled target"
	case in.Complexity >= nativeComplexityFloor:
		return artifact.TargetCompiledNative,
			fmt.Sprintf("complexity %d >= %d; native compiled target", in.Complexity, nativeComplexityFloor)
	default:
		return artifact.TargetInterpretedStay,
			fmt.Sprintf("complexity %d below conversion threshold; staying interpreted", in.Complexity)
	}
}
