// Copyright (C) 2025 VesselForge Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package buildcache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vesselforge/vesselforge/pipeline/artifact"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(InMemoryConfig(), WithRegisterer(prometheus.NewRegistry()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func writeBinary(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("fake binary"), 0750))
	return path
}

func testEntry(t *testing.T, hash string) *artifact.CacheEntry {
	t.Helper()
	return &artifact.CacheEntry{
		Hash:           hash,
		BinaryPath:     writeBinary(t, "vessel.bin"),
		CreatedAtMilli: time.Now().UnixMilli(),
		SourceBytes:    128,
		ProfileID:      "default",
		Toolchain:      "tc-1.0",
		TargetTriple:   "linux/amd64",
	}
}

func TestComputeHash_Deterministic(t *testing.T) {
	a := ComputeHash("src", "prof", "tc", "triple")
	b := ComputeHash("src", "prof", "tc", "triple")
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestComputeHash_SensitiveToEveryField(t *testing.T) {
	base := ComputeHash("src", "prof", "tc", "triple")

	tests := []struct {
		name string
		hash string
	}{
		{"source change", ComputeHash("src2", "prof", "tc", "triple")},
		{"profile change", ComputeHash("src", "prof2", "tc", "triple")},
		{"toolchain change", ComputeHash("src", "prof", "tc2", "triple")},
		{"triple change", ComputeHash("src", "prof", "tc", "triple2")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEqual(t, base, tt.hash)
		})
	}
}

func TestComputeHash_NoFieldBoundaryCollision(t *testing.T) {
	// "ab"+"c" must not collide with "a"+"bc".
	assert.NotEqual(t,
		ComputeHash("ab", "c", "tc", "triple"),
		ComputeHash("a", "bc", "tc", "triple"),
	)
}

func TestStore_PutGetRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	entry := testEntry(t, ComputeHash("src", "p", "tc", "tr"))

	require.NoError(t, store.Put(ctx, entry))

	got, err := store.Get(ctx, entry.Hash)
	require.NoError(t, err)
	assert.Equal(t, entry.Hash, got.Hash)
	assert.Equal(t, entry.BinaryPath, got.BinaryPath)
	assert.Equal(t, entry.ProfileID, got.ProfileID)
}

func TestStore_GetMissing(t *testing.T) {
	store := openTestStore(t)
	_, err := store.Get(context.Background(), "no-such-hash")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_PutRejectsOverwrite(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	entry := testEntry(t, "h1")

	require.NoError(t, store.Put(ctx, entry))
	err := store.Put(ctx, entry)
	assert.ErrorIs(t, err, ErrExists)
}

func TestStore_MissingBinaryIsCorruption(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	entry := testEntry(t, "h2")
	require.NoError(t, store.Put(ctx, entry))

	require.NoError(t, os.Remove(entry.BinaryPath))

	_, err := store.Get(ctx, entry.Hash)
	assert.ErrorIs(t, err, ErrCorrupted)
}

func TestStore_RepairReplacesCorruptedEntry(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	entry := testEntry(t, "h3")
	require.NoError(t, store.Put(ctx, entry))
	require.NoError(t, os.Remove(entry.BinaryPath))

	repaired := *entry
	repaired.BinaryPath = writeBinary(t, "rebuilt.bin")
	require.NoError(t, store.Repair(ctx, &repaired))

	got, err := store.Get(ctx, entry.Hash)
	require.NoError(t, err)
	assert.Equal(t, repaired.BinaryPath, got.BinaryPath)
}

func TestStore_SweepRemovesStaleEntries(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	stale := testEntry(t, "old")
	stale.CreatedAtMilli = time.Now().Add(-2 * time.Hour).UnixMilli()
	require.NoError(t, store.Put(ctx, stale))

	fresh := testEntry(t, "new")
	require.NoError(t, store.Put(ctx, fresh))

	removed, err := store.Sweep(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = store.Get(ctx, "old")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Get(ctx, "new")
	assert.NoError(t, err)

	count, err := store.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestStore_SweepRemovesUndecodableEntries(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	fresh := testEntry(t, "good")
	require.NoError(t, store.Put(ctx, fresh))

	// Plant a value that no longer decodes as a CacheEntry.
	err := store.db.Update(func(txn *badger.Txn) error {
		return txn.Set(entryKey("mangled"), []byte("not json"))
	})
	require.NoError(t, err)

	removed, err := store.Sweep(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = store.Get(ctx, "good")
	assert.NoError(t, err)

	count, err := store.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestStore_PutValidatesEntry(t *testing.T) {
	store := openTestStore(t)
	err := store.Put(context.Background(), &artifact.CacheEntry{Hash: "x"})
	assert.Error(t, err)
}
