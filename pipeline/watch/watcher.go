// Copyright (C) 2025 VesselForge Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package watch re-triggers analysis when watched source files change.
//
// The watcher observes directories through fsnotify and debounces bursts
// of write events per path, so an editor save (often several writes plus a
// rename) produces a single re-analysis instead of a storm.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period required after the last write before
// a change is delivered.
const DefaultDebounce = 500 * time.Millisecond

// Handler receives one debounced change notification per settled path.
type Handler func(ctx context.Context, path string)

// Watcher delivers debounced file-change notifications.
//
// Thread Safety: Safe for concurrent Add calls; Run must be called once.
type Watcher struct {
	fsw        *fsnotify.Watcher
	handler    Handler
	debounce   time.Duration
	extensions map[string]struct{}
	logger     *slog.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the per-path quiet period.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithExtensions restricts notifications to the given file extensions
// (with leading dots). Default: ".py".
func WithExtensions(exts ...string) Option {
	return func(w *Watcher) {
		if len(exts) == 0 {
			return
		}
		w.extensions = make(map[string]struct{}, len(exts))
		for _, ext := range exts {
			w.extensions[strings.ToLower(ext)] = struct{}{}
		}
	}
}

// WithWatchLogger sets the watcher's logger. Nil is ignored.
func WithWatchLogger(logger *slog.Logger) Option {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// New creates a Watcher delivering to handler.
func New(handler Handler, opts ...Option) (*Watcher, error) {
	if handler == nil {
		return nil, errors.New("watch: handler is required")
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create watcher: %w", err)
	}

	w := &Watcher{
		fsw:        fsw,
		handler:    handler,
		debounce:   DefaultDebounce,
		extensions: map[string]struct{}{".py": {}},
		logger:     slog.Default(),
		timers:     make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Add registers a directory (or single file) for watching.
func (w *Watcher) Add(path string) error {
	if err := w.fsw.Add(path); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}
	w.logger.Info("watching", slog.String("path", path))
	return nil
}

// Run processes events until the context is cancelled. It always returns a
// non-nil error: ctx.Err() on cancellation, or the watcher's failure.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.stopTimers()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.fsw.Events:
			if !ok {
				return errors.New("watch: event channel closed")
			}
			if !w.relevant(event) {
				continue
			}
			w.schedule(ctx, event.Name)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return errors.New("watch: error channel closed")
			}
			w.logger.Warn("watch error", slog.String("error", err.Error()))
		}
	}
}

// Close stops the underlying watcher. Pending debounce timers are dropped.
func (w *Watcher) Close() error {
	w.stopTimers()
	return w.fsw.Close()
}

// relevant filters to content-changing events on matching extensions.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Rename) {
		return false
	}
	ext := strings.ToLower(filepath.Ext(event.Name))
	_, ok := w.extensions[ext]
	return ok
}

// schedule (re)starts the debounce timer for a path. Each further event
// within the quiet period pushes delivery back.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.timers[path]; ok {
		timer.Stop()
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		w.logger.Debug("source changed", slog.String("path", path))
		w.handler(ctx, path)
	})
}

// stopTimers cancels all pending deliveries.
func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, timer := range w.timers {
		timer.Stop()
		delete(w.timers, path)
	}
}
