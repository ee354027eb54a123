// Copyright (C) 2025 VesselForge Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package registry provides named registration of pipeline capabilities.
//
// Custom analyzers, code generators, and validators are registered at
// startup under explicit names and resolved by configuration. There is no
// dynamic loading and no reflection: an unregistered name is a lookup
// error, surfaced immediately.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/vesselforge/vesselforge/pipeline/artifact"
	"github.com/vesselforge/vesselforge/pipeline/parity"
	"github.com/vesselforge/vesselforge/pipeline/synthesizer"
)

var (
	// ErrAlreadyRegistered indicates a duplicate registration under a name.
	ErrAlreadyRegistered = errors.New("already registered")

	// ErrNotRegistered indicates a lookup for an unknown name.
	ErrNotRegistered = errors.New("not registered")
)

// Analyzer is the source-analysis capability.
type Analyzer interface {
	// Analyze extracts function specs from source content.
	Analyze(ctx context.Context, content []byte, language, sourcePath string) (*artifact.Blueprint, error)

	// Language reports the source language the analyzer handles.
	Language() string
}

// Validator is the parity-certification capability.
type Validator interface {
	// Validate certifies a vessel against its legacy implementation.
	Validate(ctx context.Context, function string, legacy, vessel parity.Runner) (*artifact.ParityCertificate, error)
}

// Registry is a named, concurrency-safe set of implementations of one
// capability.
//
// Thread Safety: Safe for concurrent use.
type Registry[T any] struct {
	mu      sync.RWMutex
	kind    string
	entries map[string]T
}

// New creates an empty registry. kind names the capability in error text.
func New[T any](kind string) *Registry[T] {
	return &Registry[T]{kind: kind, entries: make(map[string]T)}
}

// Register adds an implementation under a name. Duplicate names fail with
// ErrAlreadyRegistered; replacing a registration is never silent.
func (r *Registry[T]) Register(name string, impl T) error {
	if name == "" {
		return fmt.Errorf("register %s: name is required", r.kind)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.entries[name]; dup {
		return fmt.Errorf("register %s %q: %w", r.kind, name, ErrAlreadyRegistered)
	}
	r.entries[name] = impl
	return nil
}

// MustRegister is Register that panics on error. For startup wiring only.
func (r *Registry[T]) MustRegister(name string, impl T) {
	if err := r.Register(name, impl); err != nil {
		panic(err)
	}
}

// Get resolves a name to its implementation.
func (r *Registry[T]) Get(name string) (T, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	impl, ok := r.entries[name]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%s %q: %w", r.kind, name, ErrNotRegistered)
	}
	return impl, nil
}

// Names returns the registered names, sorted.
func (r *Registry[T]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Set bundles one registry per pipeline capability.
type Set struct {
	Analyzers  *Registry[Analyzer]
	Generators *Registry[synthesizer.CodeGenerator]
	Validators *Registry[Validator]
}

// NewSet creates an empty capability set.
func NewSet() *Set {
	return &Set{
		Analyzers:  New[Analyzer]("analyzer"),
		Generators: New[synthesizer.CodeGenerator]("code generator"),
		Validators: New[Validator]("validator"),
	}
}
