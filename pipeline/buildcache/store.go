// Copyright (C) 2025 VesselForge Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package buildcache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vesselforge/vesselforge/pipeline/artifact"
)

var (
	// ErrNotFound indicates no entry exists for the hash.
	ErrNotFound = errors.New("cache entry not found")

	// ErrExists indicates an insert would overwrite a live entry.
	// Entries are immutable; use Repair only after detected corruption.
	ErrExists = errors.New("cache entry already exists")

	// ErrCorrupted indicates an entry's binary is missing or unreadable.
	// Callers treat this as a miss, recompile, and Repair the entry.
	ErrCorrupted = errors.New("cache entry corrupted")
)

// keyPrefix namespaces cache entries inside the shared database.
var keyPrefix = []byte("vessel/")

// ComputeHash derives the content-addressed cache key.
//
// Description:
//
//	The hash covers everything that can change the produced binary: the
//	rendered source text, the optimization profile id, the compiler
//	toolchain version, and the target triple. Fields are length-prefixed
//	before hashing so boundary shifts between fields cannot collide.
//
// Outputs:
//   - string: Hex-encoded SHA-256 digest.
func ComputeHash(renderedSource, profileID, toolchain, targetTriple string) string {
	h := sha256.New()
	var lenBuf [8]byte
	for _, field := range []string{renderedSource, profileID, toolchain, targetTriple} {
		binary.BigEndian.PutUint64(lenBuf[:], uint64(len(field)))
		h.Write(lenBuf[:])
		h.Write([]byte(field))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Store is the content-addressed build cache.
//
// Description:
//
//	Store wraps BadgerDB with the cache's insert-once discipline and
//	binary liveness checks. It is injected into the synthesizer rather
//	than held as package state, with lifecycle tied to Open/Close.
//
// Thread Safety: Safe for concurrent use; BadgerDB transactions provide
// atomic visibility, so readers see either the old complete state or the
// new complete state, never a partial entry.
type Store struct {
	db      *badger.DB
	logger  *slog.Logger
	metrics *storeMetrics
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the store's logger. Nil is ignored.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRegisterer sets the Prometheus registerer for cache metrics.
// Defaults to prometheus.DefaultRegisterer; tests inject their own.
func WithRegisterer(reg prometheus.Registerer) StoreOption {
	return func(s *Store) {
		if reg != nil {
			s.metrics = newStoreMetrics(reg)
		}
	}
}

// Open opens the build cache.
//
// Inputs:
//   - cfg: Database configuration (see Config).
//   - opts: Optional store options.
//
// Outputs:
//   - *Store: The opened cache. Caller must Close it.
//   - error: Non-nil if the database cannot be opened.
func Open(cfg Config, opts ...StoreOption) (*Store, error) {
	db, err := openBadger(cfg)
	if err != nil {
		return nil, err
	}

	s := &Store{
		db:     db,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = newStoreMetrics(prometheus.DefaultRegisterer)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get retrieves the entry for a hash and verifies its binary is alive.
//
// Description:
//
//	A present entry whose binary has gone missing or unreadable returns
//	ErrCorrupted: the caller recompiles and repairs. A hash with no entry
//	returns ErrNotFound.
//
// Thread Safety: Safe for concurrent use.
func (s *Store) Get(ctx context.Context, hash string) (*artifact.CacheEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var entry artifact.CacheEntry
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(entryKey(hash))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		s.metrics.misses.Inc()
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read cache entry %s: %w", hash, err)
	}

	if err := verifyBinary(entry.BinaryPath); err != nil {
		s.metrics.corruptions.Inc()
		s.logger.Warn("cache entry binary unreadable, treating as corrupted",
			slog.String("hash", hash),
			slog.String("binary", entry.BinaryPath),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupted, hash, err)
	}

	s.metrics.hits.Inc()
	return &entry, nil
}

// Put inserts a new entry. Inserting over a live entry fails with ErrExists;
// entries are never mutated in place.
//
// Thread Safety: Safe for concurrent use; the insert is atomic.
func (s *Store) Put(ctx context.Context, entry *artifact.CacheEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("cache put: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		key := entryKey(entry.Hash)
		if _, err := txn.Get(key); err == nil {
			return fmt.Errorf("%w: %s", ErrExists, entry.Hash)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("probe cache entry %s: %w", entry.Hash, err)
		}
		val, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("encode cache entry: %w", err)
		}
		return txn.Set(key, val)
	})
}

// Repair replaces an entry after detected corruption. This is the only
// write path allowed to overwrite, and it logs the repair.
//
// Thread Safety: Safe for concurrent use.
func (s *Store) Repair(ctx context.Context, entry *artifact.CacheEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("cache repair: %w", err)
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		val, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("encode cache entry: %w", err)
		}
		return txn.Set(entryKey(entry.Hash), val)
	})
	if err != nil {
		return err
	}

	s.logger.Info("cache entry repaired",
		slog.String("hash", entry.Hash),
		slog.String("binary", entry.BinaryPath),
	)
	return nil
}

// Sweep garbage-collects entries older than maxAge, returning the number
// removed. Entries whose stored value no longer decodes are removed
// regardless of age. Stale entries are deleted, never overwritten in place.
//
// Thread Safety: Safe for concurrent use.
func (s *Store) Sweep(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge).UnixMilli()

	var stale [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(keyPrefix); it.ValidForPrefix(keyPrefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			var entry artifact.CacheEntry
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			})
			// Undecodable values are garbage regardless of age.
			if err != nil || entry.CreatedAtMilli < cutoff {
				stale = append(stale, item.KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan cache: %w", err)
	}

	removed := 0
	for _, key := range stale {
		err := s.db.Update(func(txn *badger.Txn) error {
			return txn.Delete(key)
		})
		if err != nil {
			s.logger.Warn("cache sweep delete failed",
				slog.String("key", string(key)),
				slog.String("error", err.Error()),
			)
			continue
		}
		removed++
	}

	if removed > 0 {
		s.logger.Info("cache swept",
			slog.Int("removed", removed),
			slog.Duration("max_age", maxAge),
		)
	}
	return removed, nil
}

// Len returns the number of live entries. Intended for tests and
// diagnostics, not hot paths.
func (s *Store) Len(ctx context.Context) (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(keyPrefix); it.ValidForPrefix(keyPrefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	return count, err
}

// entryKey builds the namespaced database key for a hash.
func entryKey(hash string) []byte {
	return append(append([]byte{}, keyPrefix...), hash...)
}

// verifyBinary checks the cached binary still exists and is a regular,
// readable file.
func verifyBinary(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	return f.Close()
}
