// Copyright (C) 2025 VesselForge Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package synthesizer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vesselforge/vesselforge/pipeline/artifact"
	"github.com/vesselforge/vesselforge/pipeline/buildcache"
	"github.com/vesselforge/vesselforge/pipeline/profile"
)

// fakeCompiler writes a shell script that counts its invocations in a file
// and produces the requested output binary.
func fakeCompiler(t *testing.T) (script, countFile string) {
	t.Helper()
	dir := t.TempDir()
	countFile = filepath.Join(dir, "count")
	script = filepath.Join(dir, "cc.sh")
	body := fmt.Sprintf(`#!/bin/sh
echo 1 >> %q
prev=""
out=""
for a in "$@"; do
  if [ "$prev" = "-o" ]; then out="$a"; fi
  prev="$a"
done
printf 'binary' > "$out"
`, countFile)
	require.NoError(t, os.WriteFile(script, []byte(body), 0750))
	return script, countFile
}

// failingCompiler writes a shell script that always fails with a diagnostic.
func failingCompiler(t *testing.T) string {
	t.Helper()
	script := filepath.Join(t.TempDir(), "badcc.sh")
	body := "#!/bin/sh\necho 'type mismatch in generated code' >&2\nexit 1\n"
	require.NoError(t, os.WriteFile(script, []byte(body), 0750))
	return script
}

func invocationCount(t *testing.T, countFile string) int {
	t.Helper()
	data, err := os.ReadFile(countFile)
	if os.IsNotExist(err) {
		return 0
	}
	require.NoError(t, err)
	return strings.Count(string(data), "1")
}

func testProfile(compiler string) *profile.Profile {
	return &profile.Profile{
		ID:               "test",
		OptLevel:         1,
		Concurrency:      4,
		ToolchainVersion: "tc-1.0",
		TargetTriple:     "linux/amd64",
		Targets: map[artifact.Target]profile.TargetToolchain{
			artifact.TargetCompiledNative:     {Compiler: compiler, SourceExt: ".rs"},
			artifact.TargetCompiledConcurrent: {Compiler: compiler, SourceExt: ".go"},
			artifact.TargetMemorySafeNative:   {Compiler: compiler, SourceExt: ".rs"},
		},
	}
}

func testSpec(name string, target artifact.Target) artifact.FunctionSpec {
	return artifact.FunctionSpec{
		Name:       name,
		StartLine:  1,
		LineCount:  2,
		Source:     "def " + name + "(a):\n    return a * 2",
		Complexity: 4,
		ArgHints:   []string{"float"},
		ReturnHint: "float",
		Target:     target,
		Rationale:  "test fixture",
	}
}

func newTestSynthesizer(t *testing.T, p *profile.Profile) *Synthesizer {
	t.Helper()
	cache, err := buildcache.Open(buildcache.InMemoryConfig(),
		buildcache.WithRegisterer(prometheus.NewRegistry()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })

	s, err := New(p, cache, WithWorkDir(t.TempDir()))
	require.NoError(t, err)
	return s
}

func TestSynthesize_CompilesFreshSource(t *testing.T) {
	compiler, countFile := fakeCompiler(t)
	s := newTestSynthesizer(t, testProfile(compiler))

	manifest, err := s.Synthesize(context.Background(), []artifact.FunctionSpec{
		testSpec("hot", artifact.TargetCompiledNative),
	})
	require.NoError(t, err)
	require.NoError(t, manifest.Validate())
	require.Len(t, manifest.Vessels, 1)

	v := manifest.Vessels[0]
	assert.Equal(t, artifact.StatusCompiled, v.Status)
	assert.NotEmpty(t, v.ContentHash)
	assert.FileExists(t, v.BinaryPath)
	assert.Positive(t, v.BinarySize)
	assert.Equal(t, 0, manifest.CacheHits)
	assert.Equal(t, 1, manifest.CacheMisses)
	assert.Equal(t, 1, invocationCount(t, countFile))
}

func TestSynthesize_SecondRunHitsCache(t *testing.T) {
	compiler, countFile := fakeCompiler(t)
	s := newTestSynthesizer(t, testProfile(compiler))
	specs := []artifact.FunctionSpec{testSpec("hot", artifact.TargetCompiledNative)}
	ctx := context.Background()

	first, err := s.Synthesize(ctx, specs)
	require.NoError(t, err)
	second, err := s.Synthesize(ctx, specs)
	require.NoError(t, err)

	assert.Equal(t, artifact.StatusCompiled, first.Vessels[0].Status)
	assert.Equal(t, artifact.StatusCached, second.Vessels[0].Status)
	assert.Equal(t, first.Vessels[0].ContentHash, second.Vessels[0].ContentHash)
	assert.Equal(t, 1, second.CacheHits)
	assert.Equal(t, 0, second.CacheMisses)
	assert.Equal(t, 1, invocationCount(t, countFile))
}

func TestSynthesize_ProfileChangeForcesRecompile(t *testing.T) {
	compiler, countFile := fakeCompiler(t)
	p := testProfile(compiler)

	cache, err := buildcache.Open(buildcache.InMemoryConfig(),
		buildcache.WithRegisterer(prometheus.NewRegistry()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })

	specs := []artifact.FunctionSpec{testSpec("hot", artifact.TargetCompiledNative)}
	ctx := context.Background()

	s1, err := New(p, cache, WithWorkDir(t.TempDir()))
	require.NoError(t, err)
	_, err = s1.Synthesize(ctx, specs)
	require.NoError(t, err)

	p2 := *p
	p2.ID = "other-profile"
	s2, err := New(&p2, cache, WithWorkDir(t.TempDir()))
	require.NoError(t, err)
	m2, err := s2.Synthesize(ctx, specs)
	require.NoError(t, err)

	assert.Equal(t, artifact.StatusCompiled, m2.Vessels[0].Status)
	assert.Equal(t, 2, invocationCount(t, countFile))
}

func TestSynthesize_AtMostOneCompilePerHash(t *testing.T) {
	compiler, countFile := fakeCompiler(t)
	s := newTestSynthesizer(t, testProfile(compiler))

	const n = 16
	specs := make([]artifact.FunctionSpec, n)
	for i := range specs {
		specs[i] = testSpec("hot", artifact.TargetCompiledNative)
	}

	manifest, err := s.Synthesize(context.Background(), specs)
	require.NoError(t, err)
	require.Len(t, manifest.Vessels, n)

	assert.Equal(t, 1, invocationCount(t, countFile))
	for i := 1; i < n; i++ {
		assert.Equal(t, manifest.Vessels[0].ContentHash, manifest.Vessels[i].ContentHash)
	}
}

func TestSynthesize_FallbackOnCompileFailure(t *testing.T) {
	p := testProfile(failingCompiler(t))
	p.AllowFallback = true
	s := newTestSynthesizer(t, p)

	manifest, err := s.Synthesize(context.Background(), []artifact.FunctionSpec{
		testSpec("hot", artifact.TargetCompiledNative),
	})
	require.NoError(t, err)

	v := manifest.Vessels[0]
	assert.Equal(t, artifact.StatusInterpretedFallback, v.Status)
	assert.Contains(t, v.Error, "type mismatch")
	assert.FileExists(t, v.BinaryPath)
	assert.Equal(t, 0, manifest.CacheHits)
	assert.Equal(t, 1, manifest.CacheMisses)
}

func TestSynthesize_ErrorWhenFallbackDisabled(t *testing.T) {
	p := testProfile(failingCompiler(t))
	p.AllowFallback = false
	s := newTestSynthesizer(t, p)

	manifest, err := s.Synthesize(context.Background(), []artifact.FunctionSpec{
		testSpec("hot", artifact.TargetCompiledNative),
	})
	require.NoError(t, err)

	v := manifest.Vessels[0]
	assert.Equal(t, artifact.StatusError, v.Status)
	assert.NotEmpty(t, v.Error)
	assert.Equal(t, 0, manifest.CacheHits)
	assert.Equal(t, 1, manifest.CacheMisses)
}

func TestSynthesize_InterpretedStayGetsShim(t *testing.T) {
	compiler, countFile := fakeCompiler(t)
	s := newTestSynthesizer(t, testProfile(compiler))

	manifest, err := s.Synthesize(context.Background(), []artifact.FunctionSpec{
		testSpec("tiny", artifact.TargetInterpretedStay),
	})
	require.NoError(t, err)

	v := manifest.Vessels[0]
	assert.Equal(t, artifact.StatusInterpretedFallback, v.Status)
	assert.FileExists(t, v.BinaryPath)
	assert.Equal(t, 0, invocationCount(t, countFile))
	assert.Equal(t, 0, manifest.CacheHits)
	assert.Equal(t, 0, manifest.CacheMisses)
}

func TestSynthesize_RecompilesCorruptedCacheEntry(t *testing.T) {
	compiler, countFile := fakeCompiler(t)
	s := newTestSynthesizer(t, testProfile(compiler))
	specs := []artifact.FunctionSpec{testSpec("hot", artifact.TargetCompiledNative)}
	ctx := context.Background()

	first, err := s.Synthesize(ctx, specs)
	require.NoError(t, err)
	require.NoError(t, os.Remove(first.Vessels[0].BinaryPath))

	second, err := s.Synthesize(ctx, specs)
	require.NoError(t, err)

	v := second.Vessels[0]
	assert.Equal(t, artifact.StatusCompiled, v.Status)
	assert.FileExists(t, v.BinaryPath)
	assert.Equal(t, 2, invocationCount(t, countFile))
}

func TestSynthesize_MissingToolchainIsPerVesselFailure(t *testing.T) {
	compiler, _ := fakeCompiler(t)
	p := testProfile(compiler)
	delete(p.Targets, artifact.TargetCompiledConcurrent)
	s := newTestSynthesizer(t, p)

	manifest, err := s.Synthesize(context.Background(), []artifact.FunctionSpec{
		testSpec("par", artifact.TargetCompiledConcurrent),
		testSpec("hot", artifact.TargetCompiledNative),
	})
	require.NoError(t, err)

	assert.Equal(t, artifact.StatusError, manifest.Vessels[0].Status)
	assert.Equal(t, artifact.StatusCompiled, manifest.Vessels[1].Status)
}

func TestTemplateGenerator_Deterministic(t *testing.T) {
	gen := NewTemplateGenerator(nil)
	p := testProfile("unused")
	spec := testSpec("hot", artifact.TargetCompiledNative)

	first, err := gen.Generate(spec, spec.Target, p)
	require.NoError(t, err)
	second, err := gen.Generate(spec, spec.Target, p)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Contains(t, first, "hot")
}

func TestTemplateGenerator_UnknownTargetFails(t *testing.T) {
	gen := NewTemplateGenerator(nil)
	spec := testSpec("hot", artifact.TargetCompiledNative)
	spec.Target = artifact.Target("bogus")
	_, err := gen.Generate(spec, spec.Target, testProfile("unused"))
	assert.Error(t, err)
}
