// Copyright (C) 2025 VesselForge Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package profile

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vesselforge/vesselforge/pipeline/artifact"
)

const validYAML = `id: aggressive
opt_level: 3
simd: true
lto: true
allow_fallback: true
concurrency: 8
toolchain_version: rustc-1.80
target_triple: x86_64-unknown-linux-gnu
targets:
  compiled-native:
    compiler: rustc
    flags: ["--edition", "2021"]
    source_ext: .rs
  compiled-concurrent:
    compiler: go
    source_ext: .go
`

func writeProfile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0640))
	return path
}

func TestLoad_ValidProfile(t *testing.T) {
	p, err := Load(writeProfile(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, "aggressive", p.ID)
	assert.Equal(t, 3, p.OptLevel)
	assert.True(t, p.SIMD)
	assert.True(t, p.LTO)
	assert.True(t, p.AllowFallback)
	assert.Equal(t, 8, p.Concurrency)
	assert.Equal(t, "rustc-1.80", p.ToolchainVersion)

	tc, ok := p.Targets[artifact.TargetCompiledNative]
	require.True(t, ok)
	assert.Equal(t, "rustc", tc.Compiler)
	assert.Equal(t, ".rs", tc.SourceExt)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoad_MalformedYAML(t *testing.T) {
	_, err := Load(writeProfile(t, "id: [unclosed"))
	assert.Error(t, err)
}

func TestValidate_Rejections(t *testing.T) {
	base := func() *Profile {
		return &Profile{
			ID:               "p",
			OptLevel:         2,
			ToolchainVersion: "tc",
			TargetTriple:     "linux/amd64",
			Targets: map[artifact.Target]TargetToolchain{
				artifact.TargetCompiledNative: {Compiler: "cc", SourceExt: ".c"},
			},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Profile)
	}{
		{"missing id", func(p *Profile) { p.ID = "" }},
		{"opt level above range", func(p *Profile) { p.OptLevel = 4 }},
		{"opt level below range", func(p *Profile) { p.OptLevel = -1 }},
		{"missing toolchain version", func(p *Profile) { p.ToolchainVersion = "" }},
		{"missing target triple", func(p *Profile) { p.TargetTriple = "" }},
		{"negative concurrency", func(p *Profile) { p.Concurrency = -2 }},
		{"unknown target key", func(p *Profile) {
			p.Targets[artifact.Target("quantum")] = TargetToolchain{Compiler: "qc", SourceExt: ".q"}
		}},
		{"toolchain without compiler", func(p *Profile) {
			p.Targets[artifact.TargetCompiledNative] = TargetToolchain{SourceExt: ".c"}
		}},
		{"extension without dot", func(p *Profile) {
			p.Targets[artifact.TargetCompiledNative] = TargetToolchain{Compiler: "cc", SourceExt: "c"}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base()
			tt.mutate(p)
			assert.Error(t, p.Validate())
		})
	}

	t.Run("valid base passes", func(t *testing.T) {
		assert.NoError(t, base().Validate())
	})
}

func TestCompilerFlags(t *testing.T) {
	p := &Profile{
		OptLevel: 2,
		SIMD:     true,
		LTO:      true,
		Targets: map[artifact.Target]TargetToolchain{
			artifact.TargetCompiledNative: {Compiler: "cc", SourceExt: ".c", Flags: []string{"-march=native"}},
		},
	}

	flags := p.CompilerFlags(artifact.TargetCompiledNative)
	assert.Equal(t, []string{"-O2", "-ftree-vectorize", "-flto", "-march=native"}, flags)

	// Unknown target still yields the profile-level flags.
	assert.Equal(t, []string{"-O2", "-ftree-vectorize", "-flto"},
		p.CompilerFlags(artifact.TargetCompiledConcurrent))
}

func TestCompilerFlags_MinimalProfile(t *testing.T) {
	p := &Profile{OptLevel: 0}
	assert.Equal(t, []string{"-O0"}, p.CompilerFlags(artifact.TargetCompiledNative))
}

func TestEffectiveConcurrency(t *testing.T) {
	assert.Equal(t, 6, (&Profile{Concurrency: 6}).EffectiveConcurrency())
	assert.Equal(t, runtime.NumCPU(), (&Profile{}).EffectiveConcurrency())
}

func TestDefault(t *testing.T) {
	p := Default()
	assert.Equal(t, "default", p.ID)
	assert.Equal(t, 2, p.OptLevel)
	assert.True(t, p.AllowFallback)
	assert.NotNil(t, p.Targets)
}
