// Copyright (C) 2025 VesselForge Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package synthesizer turns analyzed function specs into compiled vessels.
//
// For each spec the synthesizer renders target-language source, consults the
// content-addressed build cache, and compiles only on a miss. Concurrency is
// bounded by the profile, and in-flight compilations are deduplicated per
// content hash so two racing requests for the same rendered source never
// invoke the compiler twice.
//
// Per-vessel failures never abort the batch: a failed compile degrades to an
// interpreted fallback shim when the profile allows it, or to an Error
// record otherwise, and the manifest reports all outcomes.
package synthesizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/vesselforge/vesselforge/pipeline/artifact"
	"github.com/vesselforge/vesselforge/pipeline/buildcache"
	"github.com/vesselforge/vesselforge/pipeline/profile"
)

// DefaultCompileTimeout bounds a single compiler invocation.
const DefaultCompileTimeout = 2 * time.Minute

// ErrNoToolchain indicates the profile defines no toolchain for a target.
var ErrNoToolchain = errors.New("no toolchain configured for target")

// Synthesizer coordinates generation, caching, and compilation.
//
// Thread Safety: Safe for concurrent use. Synthesize may be called from
// multiple goroutines; the per-hash flight group spans all of them.
type Synthesizer struct {
	profile        *profile.Profile
	cache          *buildcache.Store
	generator      CodeGenerator
	workDir        string
	compileTimeout time.Duration
	logger         *slog.Logger

	// flight dedups concurrent compiles of the same content hash.
	flight singleflight.Group
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithGenerator replaces the built-in template generator.
func WithGenerator(gen CodeGenerator) Option {
	return func(s *Synthesizer) {
		if gen != nil {
			s.generator = gen
		}
	}
}

// WithWorkDir sets the directory for rendered sources and binaries.
// Defaults to the OS temp dir under "vesselforge".
func WithWorkDir(dir string) Option {
	return func(s *Synthesizer) {
		if dir != "" {
			s.workDir = dir
		}
	}
}

// WithCompileTimeout bounds each compiler invocation.
func WithCompileTimeout(d time.Duration) Option {
	return func(s *Synthesizer) {
		if d > 0 {
			s.compileTimeout = d
		}
	}
}

// WithLogger sets the synthesizer's logger. Nil is ignored.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Synthesizer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a Synthesizer bound to a profile and a build cache.
//
// Inputs:
//   - p: The optimization profile. Must be validated by the caller.
//   - cache: The build cache; lookups are mandatory before compilation.
//   - opts: Optional configuration.
//
// Outputs:
//   - *Synthesizer: Ready for Synthesize calls.
//   - error: Non-nil if inputs are missing or the work dir cannot be created.
func New(p *profile.Profile, cache *buildcache.Store, opts ...Option) (*Synthesizer, error) {
	if p == nil {
		return nil, errors.New("synthesizer: profile is required")
	}
	if cache == nil {
		return nil, errors.New("synthesizer: build cache is required")
	}

	s := &Synthesizer{
		profile:        p,
		cache:          cache,
		generator:      NewTemplateGenerator(nil),
		workDir:        filepath.Join(os.TempDir(), "vesselforge"),
		compileTimeout: DefaultCompileTimeout,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(s.workDir, 0750); err != nil {
		return nil, fmt.Errorf("synthesizer: create work dir %s: %w", s.workDir, err)
	}
	return s, nil
}

// Synthesize processes a batch of function specs into a manifest.
//
// Description:
//
//	Specs are processed in parallel up to the profile's concurrency limit.
//	Results keep input order. The returned error is non-nil only for
//	batch-level failures (context cancellation); per-vessel failures are
//	carried on the records.
//
// Thread Safety: Safe for concurrent use.
func (s *Synthesizer) Synthesize(ctx context.Context, specs []artifact.FunctionSpec) (*artifact.Manifest, error) {
	start := time.Now()
	ctx, span := startSynthesizeSpan(ctx, s.profile.ID, len(specs))
	defer span.End()

	records := make([]artifact.VesselRecord, len(specs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.profile.EffectiveConcurrency())
	for i := range specs {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			records[i] = s.synthesizeOne(gctx, &specs[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("synthesize batch: %w", err)
	}

	manifest := &artifact.Manifest{
		Status:    artifact.StatusOK,
		ProfileID: s.profile.ID,
		Vessels:   records,
	}
	for i := range records {
		switch records[i].Status {
		case artifact.StatusCached:
			manifest.CacheHits++
		case artifact.StatusCompiled:
			manifest.CacheMisses++
		case artifact.StatusError:
			// Error records carry a content hash only after a cache lookup;
			// generation failures never reached the cache.
			if records[i].ContentHash != "" {
				manifest.CacheMisses++
			}
		case artifact.StatusInterpretedFallback:
			// Compile fallbacks missed the cache; functions that stay
			// interpreted never consulted it.
			if records[i].Target != artifact.TargetInterpretedStay {
				manifest.CacheMisses++
			}
		}
	}

	recordSynthesizeMetrics(ctx, s.profile.ID, time.Since(start), manifest)
	setSynthesizeSpanResult(span, manifest)
	return manifest, nil
}

// synthesizeOne produces the vessel record for a single spec. Failures are
// encoded in the record, never returned.
func (s *Synthesizer) synthesizeOne(ctx context.Context, spec *artifact.FunctionSpec) artifact.VesselRecord {
	if spec.Target == artifact.TargetInterpretedStay {
		return s.interpretedVessel(spec, "")
	}

	rendered, err := s.generator.Generate(*spec, spec.Target, s.profile)
	if err != nil {
		return s.failedVessel(spec, "", err)
	}

	hash := buildcache.ComputeHash(rendered, s.profile.ID, s.profile.ToolchainVersion, s.profile.TargetTriple)

	entry, err := s.cache.Get(ctx, hash)
	switch {
	case err == nil:
		return s.cachedVessel(spec, entry)
	case errors.Is(err, buildcache.ErrCorrupted):
		return s.compileShared(ctx, spec, rendered, hash, true)
	case errors.Is(err, buildcache.ErrNotFound):
		return s.compileShared(ctx, spec, rendered, hash, false)
	default:
		return s.failedVessel(spec, hash, fmt.Errorf("cache lookup: %w", err))
	}
}

// compileOutcome is what one deduplicated compile produces.
type compileOutcome struct {
	entry         *artifact.CacheEntry
	sourcePath    string
	compileMillis int64

	// fromCache means the flight found a live entry on re-check and never
	// invoked the compiler.
	fromCache bool
}

// compileShared compiles through the flight group so at most one compiler
// invocation runs per content hash. Waiters that did not run the compile
// report the result as a cache hit: by the time they observe it, the binary
// is a live cache entry.
func (s *Synthesizer) compileShared(ctx context.Context, spec *artifact.FunctionSpec, rendered, hash string, repair bool) artifact.VesselRecord {
	ranHere := false
	v, err, _ := s.flight.Do(hash, func() (interface{}, error) {
		ranHere = true
		return s.compile(ctx, spec, rendered, hash, repair)
	})
	if err != nil {
		if s.profile.AllowFallback && !errors.Is(err, context.Canceled) {
			return s.fallbackVessel(spec, hash, err)
		}
		return s.failedVessel(spec, hash, err)
	}

	outcome := v.(*compileOutcome)
	if !ranHere || outcome.fromCache {
		return s.cachedVessel(spec, outcome.entry)
	}

	record := artifact.VesselRecord{
		Function:      spec.Name,
		Target:        spec.Target,
		SourcePath:    outcome.sourcePath,
		BinaryPath:    outcome.entry.BinaryPath,
		Status:        artifact.StatusCompiled,
		ContentHash:   hash,
		CompileMillis: outcome.compileMillis,
		BinarySize:    binarySize(outcome.entry.BinaryPath),
	}
	return record
}

// compile renders to disk, runs the compiler, and records the cache entry.
// Runs at most once per hash at a time (flight group).
func (s *Synthesizer) compile(ctx context.Context, spec *artifact.FunctionSpec, rendered, hash string, repair bool) (*compileOutcome, error) {
	tc, ok := s.profile.Targets[spec.Target]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoToolchain, spec.Target)
	}

	// A caller may join the flight after a previous one completed; re-check
	// the cache so the compiler still runs at most once per hash.
	if entry, err := s.cache.Get(ctx, hash); err == nil {
		return &compileOutcome{entry: entry, fromCache: true}, nil
	}

	srcPath := filepath.Join(s.workDir, hash+tc.SourceExt)
	binPath := filepath.Join(s.workDir, hash+".bin")
	if err := os.WriteFile(srcPath, []byte(rendered), 0640); err != nil {
		return nil, fmt.Errorf("write rendered source: %w", err)
	}

	start := time.Now()
	err := runCompiler(ctx, tc, s.profile.CompilerFlags(spec.Target), srcPath, binPath, s.compileTimeout)
	elapsed := time.Since(start)
	if err != nil {
		s.logger.Warn("compile failed",
			slog.String("function", spec.Name),
			slog.String("target", string(spec.Target)),
			slog.String("hash", hash),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	entry := &artifact.CacheEntry{
		Hash:           hash,
		BinaryPath:     binPath,
		CreatedAtMilli: time.Now().UnixMilli(),
		SourceBytes:    len(rendered),
		ProfileID:      s.profile.ID,
		Toolchain:      s.profile.ToolchainVersion,
		TargetTriple:   s.profile.TargetTriple,
	}
	if repair {
		if err := s.cache.Repair(ctx, entry); err != nil {
			return nil, fmt.Errorf("repair cache entry: %w", err)
		}
	} else if err := s.cache.Put(ctx, entry); err != nil && !errors.Is(err, buildcache.ErrExists) {
		return nil, fmt.Errorf("store cache entry: %w", err)
	}

	s.logger.Info("vessel compiled",
		slog.String("function", spec.Name),
		slog.String("target", string(spec.Target)),
		slog.String("hash", hash),
		slog.Duration("elapsed", elapsed),
	)
	return &compileOutcome{
		entry:         entry,
		sourcePath:    srcPath,
		compileMillis: elapsed.Milliseconds(),
	}, nil
}

// cachedVessel builds the record for a cache hit.
func (s *Synthesizer) cachedVessel(spec *artifact.FunctionSpec, entry *artifact.CacheEntry) artifact.VesselRecord {
	return artifact.VesselRecord{
		Function:    spec.Name,
		Target:      spec.Target,
		BinaryPath:  entry.BinaryPath,
		Status:      artifact.StatusCached,
		ContentHash: entry.Hash,
		BinarySize:  binarySize(entry.BinaryPath),
	}
}

// interpretedVessel builds the record for a function staying interpreted.
// The shim gives it the same invocation surface as compiled vessels.
func (s *Synthesizer) interpretedVessel(spec *artifact.FunctionSpec, diagnostic string) artifact.VesselRecord {
	hash := buildcache.ComputeHash(spec.Source, s.profile.ID, "interpreter", s.profile.TargetTriple)
	record := artifact.VesselRecord{
		Function:    spec.Name,
		Target:      spec.Target,
		Status:      artifact.StatusInterpretedFallback,
		ContentHash: hash,
		Error:       diagnostic,
	}
	shimPath, err := writeShim(s.workDir, spec.Name, spec.Source)
	if err != nil {
		s.logger.Warn("shim write failed",
			slog.String("function", spec.Name),
			slog.String("error", err.Error()),
		)
		record.Status = artifact.StatusError
		record.Error = err.Error()
		return record
	}
	record.BinaryPath = shimPath
	return record
}

// fallbackVessel degrades a failed compile to an interpreted shim, keeping
// the compiler diagnostic on the record.
func (s *Synthesizer) fallbackVessel(spec *artifact.FunctionSpec, hash string, compileErr error) artifact.VesselRecord {
	record := s.interpretedVessel(spec, compileErr.Error())
	if record.Status == artifact.StatusInterpretedFallback {
		record.ContentHash = hash
	}
	s.logger.Warn("vessel fell back to interpreter",
		slog.String("function", spec.Name),
		slog.String("target", string(spec.Target)),
		slog.String("error", compileErr.Error()),
	)
	return record
}

// failedVessel builds an Error record.
func (s *Synthesizer) failedVessel(spec *artifact.FunctionSpec, hash string, err error) artifact.VesselRecord {
	return artifact.VesselRecord{
		Function:    spec.Name,
		Target:      spec.Target,
		Status:      artifact.StatusError,
		ContentHash: hash,
		Error:       err.Error(),
	}
}

// binarySize returns the binary's size in bytes, zero when unreadable.
func binarySize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
