// Copyright (C) 2025 VesselForge Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package profile defines the optimization profile supplied by the external
// orchestrator and consumed by the synthesizer.
//
// A profile is a named bundle of optimization and safety settings: numeric
// opt level, SIMD/LTO/unsafe flags, per-target toolchain commands, the
// toolchain version string, and the target triple. The profile id, the
// toolchain version, and the triple all participate in build-cache hashing,
// so two runs with the same profile and source always reuse the same binary.
package profile

import (
	"fmt"
	"os"
	"runtime"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/vesselforge/vesselforge/pipeline/artifact"
)

// TargetToolchain describes how to compile rendered source for one target.
type TargetToolchain struct {
	// Compiler is the compiler executable to invoke.
	Compiler string `yaml:"compiler" validate:"required"`

	// Flags are target-specific compiler flags, appended after the
	// profile-derived optimization flags.
	Flags []string `yaml:"flags"`

	// SourceExt is the file extension for rendered source (".go", ".rs").
	SourceExt string `yaml:"source_ext" validate:"required,startswith=."`
}

// Profile is one named optimization/safety bundle.
type Profile struct {
	// ID names the profile. Participates in cache hashing.
	ID string `yaml:"id" validate:"required"`

	// OptLevel is the numeric optimization level (0-3).
	OptLevel int `yaml:"opt_level" validate:"min=0,max=3"`

	// SIMD enables vectorization flags.
	SIMD bool `yaml:"simd"`

	// LTO enables link-time optimization flags.
	LTO bool `yaml:"lto"`

	// Unsafe permits unchecked arithmetic/bounds in generated code.
	Unsafe bool `yaml:"unsafe"`

	// AllowFallback makes compiler failures degrade to an interpreted
	// shim instead of an Error vessel.
	AllowFallback bool `yaml:"allow_fallback"`

	// Concurrency bounds parallel compilation. Zero means host CPU count.
	Concurrency int `yaml:"concurrency" validate:"min=0"`

	// ToolchainVersion is the compiler toolchain version string supplied
	// by the orchestrator. Participates in cache hashing.
	ToolchainVersion string `yaml:"toolchain_version" validate:"required"`

	// TargetTriple is the compilation target triple. Participates in
	// cache hashing.
	TargetTriple string `yaml:"target_triple" validate:"required"`

	// Targets maps target identifiers to their toolchains.
	Targets map[artifact.Target]TargetToolchain `yaml:"targets" validate:"required,dive"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads and validates a profile from a YAML file.
//
// Outputs:
//   - *Profile: The validated profile. Never nil on success.
//   - error: Non-nil for read, decode, or validation failures.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile %s: %w", path, err)
	}
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode profile %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("profile %s: %w", path, err)
	}
	return &p, nil
}

// Validate checks the profile's structural constraints.
func (p *Profile) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("invalid profile: %w", err)
	}
	for target := range p.Targets {
		if !target.Valid() {
			return fmt.Errorf("invalid profile: unknown target %q", target)
		}
	}
	return nil
}

// EffectiveConcurrency resolves the concurrency limit, defaulting to the
// host CPU count.
func (p *Profile) EffectiveConcurrency() int {
	if p.Concurrency > 0 {
		return p.Concurrency
	}
	return runtime.NumCPU()
}

// CompilerFlags derives the full flag list for a target: the optimization
// level, SIMD/LTO switches, then the target's own flags.
func (p *Profile) CompilerFlags(target artifact.Target) []string {
	flags := []string{fmt.Sprintf("-O%d", p.OptLevel)}
	if p.SIMD {
		flags = append(flags, "-ftree-vectorize")
	}
	if p.LTO {
		flags = append(flags, "-flto")
	}
	if tc, ok := p.Targets[target]; ok {
		flags = append(flags, tc.Flags...)
	}
	return flags
}

// Default returns a conservative profile suitable for local use: opt level
// 2, fallback enabled, host-count concurrency, /bin/true-class compilers
// left unset for the caller to fill in.
func Default() *Profile {
	return &Profile{
		ID:               "default",
		OptLevel:         2,
		AllowFallback:    true,
		ToolchainVersion: "unknown",
		TargetTriple:     runtime.GOOS + "/" + runtime.GOARCH,
		Targets:          map[artifact.Target]TargetToolchain{},
	}
}
