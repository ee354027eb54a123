// Copyright (C) 2025 VesselForge Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package registry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vesselforge/vesselforge/pipeline/analyzer"
	"github.com/vesselforge/vesselforge/pipeline/parity"
	"github.com/vesselforge/vesselforge/pipeline/synthesizer"
)

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := New[int]("widget")

	require.NoError(t, r.Register("a", 1))
	require.NoError(t, r.Register("b", 2))

	got, err := r.Get("a")
	require.NoError(t, err)
	assert.Equal(t, 1, got)
	assert.Equal(t, []string{"a", "b"}, r.Names())
}

func TestRegistry_DuplicateNameFails(t *testing.T) {
	r := New[int]("widget")
	require.NoError(t, r.Register("a", 1))

	err := r.Register("a", 2)
	assert.ErrorIs(t, err, ErrAlreadyRegistered)

	// The original registration survives.
	got, err := r.Get("a")
	require.NoError(t, err)
	assert.Equal(t, 1, got)
}

func TestRegistry_EmptyNameRejected(t *testing.T) {
	r := New[int]("widget")
	assert.Error(t, r.Register("", 1))
}

func TestRegistry_GetUnknown(t *testing.T) {
	r := New[int]("widget")
	_, err := r.Get("missing")
	assert.ErrorIs(t, err, ErrNotRegistered)
}

func TestRegistry_MustRegisterPanicsOnDuplicate(t *testing.T) {
	r := New[int]("widget")
	r.MustRegister("a", 1)
	assert.Panics(t, func() { r.MustRegister("a", 2) })
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := New[int]("widget")
	require.NoError(t, r.Register("seed", 0))

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = r.Get("seed")
			_ = r.Names()
		}()
	}
	wg.Wait()
}

func TestNewSet_WiresBuiltins(t *testing.T) {
	set := NewSet()

	set.Analyzers.MustRegister("python", analyzer.New())
	set.Generators.MustRegister("template", synthesizer.NewTemplateGenerator(nil))
	set.Validators.MustRegister("statistical", parity.New(parity.Config{}))

	a, err := set.Analyzers.Get("python")
	require.NoError(t, err)
	assert.Equal(t, "python", a.Language())

	_, err = set.Generators.Get("template")
	assert.NoError(t, err)
	_, err = set.Validators.Get("statistical")
	assert.NoError(t, err)
}
