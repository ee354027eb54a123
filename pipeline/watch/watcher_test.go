// Copyright (C) 2025 VesselForge Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// changeCollector records handler deliveries for assertion.
type changeCollector struct {
	mu    sync.Mutex
	paths []string
	seen  chan string
}

func newChangeCollector() *changeCollector {
	return &changeCollector{seen: make(chan string, 16)}
}

func (c *changeCollector) handle(_ context.Context, path string) {
	c.mu.Lock()
	c.paths = append(c.paths, path)
	c.mu.Unlock()
	c.seen <- path
}

func (c *changeCollector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.paths)
}

func (c *changeCollector) waitForDelivery(t *testing.T, timeout time.Duration) string {
	t.Helper()
	select {
	case path := <-c.seen:
		return path
	case <-time.After(timeout):
		t.Fatal("no change delivered before timeout")
		return ""
	}
}

func startWatcher(t *testing.T, w *Watcher) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = w.Close()
	})
	return cancel
}

func TestWatcher_DeliversDebouncedChange(t *testing.T) {
	dir := t.TempDir()
	collector := newChangeCollector()

	w, err := New(collector.handle, WithDebounce(50*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, w.Add(dir))
	startWatcher(t, w)

	target := filepath.Join(dir, "hot.py")
	require.NoError(t, os.WriteFile(target, []byte("def f():\n    pass\n"), 0640))

	delivered := collector.waitForDelivery(t, 3*time.Second)
	assert.Equal(t, target, delivered)
}

func TestWatcher_CoalescesWriteBursts(t *testing.T) {
	dir := t.TempDir()
	collector := newChangeCollector()

	w, err := New(collector.handle, WithDebounce(150*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, w.Add(dir))
	startWatcher(t, w)

	// An editor-style burst: several writes in quick succession.
	target := filepath.Join(dir, "burst.py")
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(target, []byte("x = 1\n"), 0640))
		time.Sleep(10 * time.Millisecond)
	}

	collector.waitForDelivery(t, 3*time.Second)

	// Allow any spurious extra deliveries to land before counting.
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 1, collector.count())
}

func TestWatcher_IgnoresOtherExtensions(t *testing.T) {
	dir := t.TempDir()
	collector := newChangeCollector()

	w, err := New(collector.handle, WithDebounce(50*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, w.Add(dir))
	startWatcher(t, w)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("n"), 0640))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hot.py"), []byte("x = 1\n"), 0640))

	delivered := collector.waitForDelivery(t, 3*time.Second)
	assert.Equal(t, filepath.Join(dir, "hot.py"), delivered)

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 1, collector.count())
}

func TestWatcher_CustomExtensions(t *testing.T) {
	dir := t.TempDir()
	collector := newChangeCollector()

	w, err := New(collector.handle,
		WithDebounce(50*time.Millisecond),
		WithExtensions(".pyi"),
	)
	require.NoError(t, err)
	require.NoError(t, w.Add(dir))
	startWatcher(t, w)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "stubs.pyi"), []byte("x: int\n"), 0640))

	delivered := collector.waitForDelivery(t, 3*time.Second)
	assert.Equal(t, filepath.Join(dir, "stubs.pyi"), delivered)
}

func TestWatcher_RunReturnsOnCancel(t *testing.T) {
	w, err := New(func(context.Context, string) {})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestWatcher_RequiresHandler(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}

func TestWatcher_AddMissingPath(t *testing.T) {
	w, err := New(func(context.Context, string) {})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	assert.Error(t, w.Add(filepath.Join(t.TempDir(), "does-not-exist")))
}
