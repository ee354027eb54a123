// Copyright (C) 2025 VesselForge Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package analyzer turns raw interpreted-language source into a blueprint of
// FunctionSpec records: per-function cyclomatic complexity, loop/recursion
// flags, type hints, and a deterministic target recommendation.
//
// Language detection is the caller's responsibility; the analyzer receives
// a language tag and rejects tags it has no front-end for. Analysis is
// all-or-nothing per file: a source file that does not parse yields
// ErrParse and no partial function list, because downstream cache hashing
// assumes deterministic, complete input.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/vesselforge/vesselforge/pipeline/artifact"
)

// DefaultMaxFileSize is the largest source file the analyzer will accept.
const DefaultMaxFileSize = 10 * 1024 * 1024

var (
	// ErrParse indicates the source could not be analyzed. The whole file
	// is rejected; partial analysis is not supported.
	ErrParse = errors.New("source parse failed")

	// ErrUnsupportedLanguage indicates no front-end exists for the tag.
	ErrUnsupportedLanguage = errors.New("unsupported source language")

	// ErrFileTooLarge indicates the source exceeds the size limit.
	ErrFileTooLarge = errors.New("source file too large")

	// ErrInvalidContent indicates the source is not valid UTF-8.
	ErrInvalidContent = errors.New("source content is not valid UTF-8")
)

// Option configures an Analyzer instance.
type Option func(*Analyzer)

// WithMaxFileSize sets the maximum source size the analyzer will accept.
//
// Inputs:
//   - bytes: Maximum size in bytes. Non-positive values are ignored.
func WithMaxFileSize(bytes int64) Option {
	return func(a *Analyzer) {
		if bytes > 0 {
			a.maxFileSize = bytes
		}
	}
}

// Analyzer computes FunctionSpec records from source text.
//
// Description:
//
//	Analyzer dispatches on the caller-supplied language tag to a
//	tree-sitter front-end, extracts every syntactic function definition,
//	and scores each one. The recommendation rules are pure functions of
//	the extracted flags, so identical source always yields an identical
//	blueprint; the synthesizer's cache keys depend on that.
//
// Thread Safety:
//
//	Analyzer instances are safe for concurrent use. Each Analyze call
//	creates its own tree-sitter parser internally.
type Analyzer struct {
	maxFileSize int64
}

// New creates an Analyzer with the given options.
//
// Outputs:
//   - *Analyzer: Configured analyzer, never nil.
//
// Example:
//
//	a := analyzer.New(analyzer.WithMaxFileSize(5 * 1024 * 1024))
//	bp, err := a.Analyze(ctx, src, "python", "hot.py")
func New(opts ...Option) *Analyzer {
	a := &Analyzer{maxFileSize: DefaultMaxFileSize}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze extracts and scores every function definition in the source.
//
// Description:
//
//	Validates the input, parses it with the language front-end, and
//	returns a complete blueprint. Any syntax error anywhere in the file
//	rejects the whole file with ErrParse.
//
// Inputs:
//   - ctx: Context for cancellation. Checked before and after parsing;
//     tree-sitter parsing itself cannot be interrupted mid-parse.
//   - content: Raw source bytes. Must be valid UTF-8.
//   - language: Caller-supplied language tag (e.g. "python").
//   - sourcePath: Path of the file, recorded in the blueprint.
//
// Outputs:
//   - *artifact.Blueprint: Complete analysis. Never nil on success.
//   - error: ErrUnsupportedLanguage, ErrFileTooLarge, ErrInvalidContent,
//     ErrParse, or a context error.
//
// Thread Safety: Safe for concurrent use.
func (a *Analyzer) Analyze(ctx context.Context, content []byte, language, sourcePath string) (bp *artifact.Blueprint, err error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("analysis canceled before start: %w", err)
	}

	if int64(len(content)) > a.maxFileSize {
		return nil, fmt.Errorf("%w: size %d exceeds limit %d", ErrFileTooLarge, len(content), a.maxFileSize)
	}
	if !utf8.Valid(content) {
		return nil, ErrInvalidContent
	}

	start := time.Now()
	ctx, span := startAnalyzeSpan(ctx, language, sourcePath, len(content))
	defer span.End()

	switch language {
	case "python":
		bp, err = analyzePython(ctx, content, sourcePath)
	default:
		err = fmt.Errorf("%w: %q", ErrUnsupportedLanguage, language)
	}

	setAnalyzeSpanResult(span, bp, err)
	recordAnalyzeMetrics(ctx, language, time.Since(start), bp, err)

	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("analysis canceled after extraction: %w", err)
	}
	return bp, nil
}

// Language returns the canonical language tag of the built-in front-end.
func (a *Analyzer) Language() string { return "python" }

// Extensions returns the file extensions handled by the built-in front-end.
func (a *Analyzer) Extensions() []string { return []string{".py", ".pyi"} }
