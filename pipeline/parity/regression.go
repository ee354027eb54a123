// Copyright (C) 2025 VesselForge Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package parity

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// InputStore persists the inputs that failed parity in prior runs so every
// later run replays them in addition to its random draws.
type InputStore interface {
	// Load returns the stored regression inputs for a function, oldest
	// first. A function with no history returns an empty slice, not an
	// error.
	Load(ctx context.Context, function string) ([]float64, error)

	// Record appends newly failed inputs for a function, deduplicating
	// against what is already stored.
	Record(ctx context.Context, function string, inputs []float64) error
}

// -----------------------------------------------------------------------------
// File-backed store
// -----------------------------------------------------------------------------

// FileInputStore keeps one JSON file per function under a directory.
//
// Thread Safety: Safe for concurrent use within one process. Cross-process
// writers are not coordinated.
type FileInputStore struct {
	dir string
	mu  sync.Mutex
}

// Compile-time interface check.
var _ InputStore = (*FileInputStore)(nil)

// NewFileInputStore creates the store, creating the directory if needed.
func NewFileInputStore(dir string) (*FileInputStore, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create regression input dir %s: %w", dir, err)
	}
	return &FileInputStore{dir: dir}, nil
}

// Load implements InputStore.
func (s *FileInputStore) Load(ctx context.Context, function string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(function))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read regression inputs for %s: %w", function, err)
	}

	var inputs []float64
	if err := json.Unmarshal(data, &inputs); err != nil {
		return nil, fmt.Errorf("decode regression inputs for %s: %w", function, err)
	}
	return inputs, nil
}

// Record implements InputStore.
func (s *FileInputStore) Record(ctx context.Context, function string, inputs []float64) error {
	if len(inputs) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var existing []float64
	if data, err := os.ReadFile(s.path(function)); err == nil {
		_ = json.Unmarshal(data, &existing)
	}
	merged := mergeInputs(existing, inputs)

	data, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return fmt.Errorf("encode regression inputs for %s: %w", function, err)
	}

	tmp := s.path(function) + ".tmp"
	if err := os.WriteFile(tmp, data, 0640); err != nil {
		return fmt.Errorf("write regression inputs for %s: %w", function, err)
	}
	return os.Rename(tmp, s.path(function))
}

// path sanitizes the function name into a file name.
func (s *FileInputStore) path(function string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		}
		return '_'
	}, function)
	return filepath.Join(s.dir, safe+".json")
}

// -----------------------------------------------------------------------------
// In-memory store
// -----------------------------------------------------------------------------

// MemoryInputStore is an in-memory InputStore for tests and ephemeral runs.
//
// Thread Safety: Safe for concurrent use.
type MemoryInputStore struct {
	mu     sync.RWMutex
	inputs map[string][]float64
}

// Compile-time interface check.
var _ InputStore = (*MemoryInputStore)(nil)

// NewMemoryInputStore creates an empty in-memory store.
func NewMemoryInputStore() *MemoryInputStore {
	return &MemoryInputStore{inputs: make(map[string][]float64)}
}

// Load implements InputStore.
func (s *MemoryInputStore) Load(_ context.Context, function string) ([]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]float64{}, s.inputs[function]...), nil
}

// Record implements InputStore.
func (s *MemoryInputStore) Record(_ context.Context, function string, inputs []float64) error {
	if len(inputs) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inputs[function] = mergeInputs(s.inputs[function], inputs)
	return nil
}

// mergeInputs appends new inputs to existing, dropping exact duplicates and
// keeping a stable order.
func mergeInputs(existing, fresh []float64) []float64 {
	seen := make(map[float64]struct{}, len(existing)+len(fresh))
	merged := make([]float64, 0, len(existing)+len(fresh))
	for _, v := range existing {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		merged = append(merged, v)
	}
	added := append([]float64{}, fresh...)
	sort.Float64s(added)
	for _, v := range added {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		merged = append(merged, v)
	}
	return merged
}
