// Copyright (C) 2025 VesselForge Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package benchmark

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/vesselforge/vesselforge/pipeline/artifact"
)

// DefaultRegressionThreshold is the mean-delta percentage above which a run
// is flagged as a regression.
const DefaultRegressionThreshold = 10.0

// ErrBaselineNotFound indicates no baseline is stored under the name.
var ErrBaselineNotFound = errors.New("baseline not found")

// BaselineStore persists named baseline samples across runs.
type BaselineStore interface {
	// Save stores a sample as the named baseline, replacing any previous
	// baseline of that name.
	Save(ctx context.Context, name string, sample *artifact.BenchmarkSample) error

	// Load returns the named baseline, or ErrBaselineNotFound.
	Load(ctx context.Context, name string) (*artifact.BenchmarkSample, error)
}

// CompareBaseline produces the advisory regression verdict for a new sample
// against a baseline. The verdict reports; callers decide what to do with a
// flagged regression.
//
// The delta is the percentage change of the new mean relative to the
// baseline mean. Faster runs yield negative deltas and are never flagged.
func CompareBaseline(sample, baseline *artifact.BenchmarkSample, thresholdPercent float64) *artifact.BaselineVerdict {
	if thresholdPercent <= 0 {
		thresholdPercent = DefaultRegressionThreshold
	}

	verdict := &artifact.BaselineVerdict{
		Name:   baseline.Name,
		MeanMs: float64(baseline.Mean.Nanoseconds()) / 1e6,
	}
	if baseline.Mean <= 0 {
		return verdict
	}

	delta := (float64(sample.Mean) - float64(baseline.Mean)) / float64(baseline.Mean) * 100
	verdict.DeltaPercent = delta
	verdict.RegressionDetected = delta > thresholdPercent
	return verdict
}

// -----------------------------------------------------------------------------
// File-backed store
// -----------------------------------------------------------------------------

// FileBaselineStore keeps one JSON file per baseline under a directory.
//
// Thread Safety: Safe for concurrent use within one process.
type FileBaselineStore struct {
	dir string
	mu  sync.Mutex
}

// Compile-time interface check.
var _ BaselineStore = (*FileBaselineStore)(nil)

// NewFileBaselineStore creates the store, creating the directory if needed.
func NewFileBaselineStore(dir string) (*FileBaselineStore, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create baseline dir %s: %w", dir, err)
	}
	return &FileBaselineStore{dir: dir}, nil
}

// Save implements BaselineStore. The write is atomic (temp file + rename).
func (s *FileBaselineStore) Save(ctx context.Context, name string, sample *artifact.BenchmarkSample) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := sample.Validate(); err != nil {
		return fmt.Errorf("save baseline %s: %w", name, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(sample, "", "  ")
	if err != nil {
		return fmt.Errorf("encode baseline %s: %w", name, err)
	}
	path := s.path(name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0640); err != nil {
		return fmt.Errorf("write baseline %s: %w", name, err)
	}
	return os.Rename(tmp, path)
}

// Load implements BaselineStore.
func (s *FileBaselineStore) Load(ctx context.Context, name string) (*artifact.BenchmarkSample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(name))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrBaselineNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("read baseline %s: %w", name, err)
	}

	var sample artifact.BenchmarkSample
	if err := json.Unmarshal(data, &sample); err != nil {
		return nil, fmt.Errorf("decode baseline %s: %w", name, err)
	}
	return &sample, nil
}

// path sanitizes the baseline name into a file name.
func (s *FileBaselineStore) path(name string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		}
		return '_'
	}, name)
	return filepath.Join(s.dir, safe+".json")
}

// -----------------------------------------------------------------------------
// In-memory store
// -----------------------------------------------------------------------------

// MemoryBaselineStore is an in-memory BaselineStore for tests.
//
// Thread Safety: Safe for concurrent use.
type MemoryBaselineStore struct {
	mu        sync.RWMutex
	baselines map[string]*artifact.BenchmarkSample
}

// Compile-time interface check.
var _ BaselineStore = (*MemoryBaselineStore)(nil)

// NewMemoryBaselineStore creates an empty in-memory store.
func NewMemoryBaselineStore() *MemoryBaselineStore {
	return &MemoryBaselineStore{baselines: make(map[string]*artifact.BenchmarkSample)}
}

// Save implements BaselineStore.
func (s *MemoryBaselineStore) Save(_ context.Context, name string, sample *artifact.BenchmarkSample) error {
	if err := sample.Validate(); err != nil {
		return fmt.Errorf("save baseline %s: %w", name, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *sample
	s.baselines[name] = &clone
	return nil
}

// Load implements BaselineStore.
func (s *MemoryBaselineStore) Load(_ context.Context, name string) (*artifact.BenchmarkSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sample, ok := s.baselines[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBaselineNotFound, name)
	}
	clone := *sample
	return &clone, nil
}
