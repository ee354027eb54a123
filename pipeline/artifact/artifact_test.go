// Copyright (C) 2025 VesselForge Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package artifact

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSpec() FunctionSpec {
	return FunctionSpec{
		Name:       "crunch",
		StartLine:  1,
		LineCount:  5,
		Source:     "def crunch(v):\n    return v",
		Complexity: 4,
		Target:     TargetCompiledNative,
		Rationale:  "complexity 4 meets compilation floor",
	}
}

func validBlueprint() *Blueprint {
	return &Blueprint{
		Status:         StatusOK,
		SourceLanguage: "python",
		SourcePath:     "hot.py",
		Functions:      []FunctionSpec{validSpec()},
	}
}

func validManifest() *Manifest {
	return &Manifest{
		Status:    StatusOK,
		ProfileID: "default",
		Vessels: []VesselRecord{
			{Function: "crunch", Target: TargetCompiledNative, Status: StatusCompiled, ContentHash: "abc", BinaryPath: "/tmp/crunch.bin"},
			{Function: "warm", Target: TargetCompiledNative, Status: StatusCached, ContentHash: "def", BinaryPath: "/tmp/warm.bin"},
		},
		CacheHits:   1,
		CacheMisses: 1,
	}
}

func TestTargetValid(t *testing.T) {
	for _, target := range []Target{TargetMemorySafeNative, TargetCompiledConcurrent, TargetCompiledNative, TargetInterpretedStay} {
		assert.True(t, target.Valid(), string(target))
	}
	assert.False(t, Target("quantum").Valid())
	assert.False(t, Target("").Valid())
}

func TestVesselStatusValid(t *testing.T) {
	for _, status := range []VesselStatus{StatusCompiled, StatusCached, StatusInterpretedFallback, StatusError} {
		assert.True(t, status.Valid(), string(status))
	}
	assert.False(t, VesselStatus("Pending").Valid())
}

func TestFunctionSpec_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*FunctionSpec)
	}{
		{"missing name", func(f *FunctionSpec) { f.Name = "" }},
		{"complexity below one", func(f *FunctionSpec) { f.Complexity = 0 }},
		{"zero start line", func(f *FunctionSpec) { f.StartLine = 0 }},
		{"zero line count", func(f *FunctionSpec) { f.LineCount = 0 }},
		{"unknown target", func(f *FunctionSpec) { f.Target = "quantum" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := validSpec()
			tt.mutate(&spec)
			assert.Error(t, spec.Validate())
		})
	}

	spec := validSpec()
	assert.NoError(t, spec.Validate())
}

func TestVesselRecord_Validate(t *testing.T) {
	t.Run("error status needs no hash", func(t *testing.T) {
		v := VesselRecord{Function: "f", Target: TargetCompiledNative, Status: StatusError, Error: "boom"}
		assert.NoError(t, v.Validate())
	})

	t.Run("compiled status requires hash", func(t *testing.T) {
		v := VesselRecord{Function: "f", Target: TargetCompiledNative, Status: StatusCompiled}
		assert.Error(t, v.Validate())
	})

	t.Run("cached status requires binary path", func(t *testing.T) {
		v := VesselRecord{Function: "f", Target: TargetCompiledNative, Status: StatusCached, ContentHash: "abc"}
		assert.Error(t, v.Validate())
	})
}

func TestManifest_Validate(t *testing.T) {
	assert.NoError(t, validManifest().Validate())

	t.Run("hit accounting must match statuses", func(t *testing.T) {
		m := validManifest()
		m.CacheHits = 0
		assert.Error(t, m.Validate())
	})

	t.Run("missing profile id", func(t *testing.T) {
		m := validManifest()
		m.ProfileID = ""
		assert.Error(t, m.Validate())
	})
}

func TestParityCertificate_Validate(t *testing.T) {
	valid := ParityCertificate{
		ID: "run-1", Certified: true, Confidence: 99.95,
		TestCount: 100, Passed: 100, Failed: 0, Seed: 42,
	}
	assert.NoError(t, valid.Validate())

	t.Run("count mismatch", func(t *testing.T) {
		c := valid
		c.Passed = 99
		assert.Error(t, c.Validate())
	})

	t.Run("confidence out of range", func(t *testing.T) {
		c := valid
		c.Confidence = 100.5
		assert.Error(t, c.Validate())
	})

	t.Run("certified with failures", func(t *testing.T) {
		c := valid
		c.Passed, c.Failed = 99, 1
		assert.Error(t, c.Validate())
	})
}

func TestBenchmarkSample_Validate(t *testing.T) {
	sample := BenchmarkSample{
		Name: "hot", Iterations: 3,
		Durations: []time.Duration{10, 20, 30},
		Mean:      20, Median: 20, Min: 10, Max: 30, P95: 30, P99: 30,
	}
	assert.NoError(t, sample.Validate())

	t.Run("duration count mismatch", func(t *testing.T) {
		s := sample
		s.Iterations = 5
		assert.Error(t, s.Validate())
	})

	t.Run("percentile ordering violated", func(t *testing.T) {
		s := sample
		s.P95 = 40
		assert.Error(t, s.Validate())
	})
}

func TestNewReport(t *testing.T) {
	sample := &BenchmarkSample{
		Name: "hot", Iterations: 2,
		Durations: []time.Duration{time.Millisecond, 3 * time.Millisecond},
		Mean:      2 * time.Millisecond, Median: 2 * time.Millisecond,
		Min: time.Millisecond, Max: 3 * time.Millisecond,
		P95: 3 * time.Millisecond, P99: 3 * time.Millisecond,
		Baseline: &BaselineVerdict{DeltaPercent: 25, RegressionDetected: true},
	}

	report := NewReport(sample)
	require.NoError(t, report.Validate())
	assert.Equal(t, "hot", report.Name)
	assert.InDelta(t, 2.0, report.MeanMs, 1e-9)
	assert.InDelta(t, 1.0, report.MinMs, 1e-9)
	assert.InDelta(t, 3.0, report.P99Ms, 1e-9)
	require.NotNil(t, report.Baseline)
	assert.True(t, report.Baseline.RegressionDetected)
}

func TestSaveLoad_Blueprint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "artifacts", "blueprint.json")
	bp := validBlueprint()

	require.NoError(t, Save(path, bp))

	got, err := LoadBlueprint(path)
	require.NoError(t, err)
	assert.Equal(t, bp, got)
}

func TestSaveLoad_Manifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")
	m := validManifest()

	require.NoError(t, Save(path, m))

	got, err := LoadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestSave_RejectsInvalidEnvelope(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	bp := validBlueprint()
	bp.Status = "incomplete"

	err := Save(path, bp)
	assert.ErrorIs(t, err, ErrInvalidArtifact)
	assert.NoFileExists(t, path)
}

func TestLoad_RejectsInvalidPayload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tampered.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"status":"ok","sourceLanguage":"","functions":[]}`), 0640))

	_, err := LoadBlueprint(path)
	assert.ErrorIs(t, err, ErrInvalidArtifact)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := LoadManifest(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestLoad_MalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0640))

	_, err := LoadCertificate(path)
	assert.Error(t, err)
}
