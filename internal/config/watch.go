// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/mergestack/chatbot-tui/internal/transport"
)

// =============================================================================
// ROUTE WATCHER
// =============================================================================

// watchDebounce absorbs the editor write-then-rename burst.
const watchDebounce = 250 * time.Millisecond

// RouteWatcher hot-reloads the [models] routing table when the config file
// changes. Only routing is reloaded; key material and server settings stay
// fixed for the process lifetime.
type RouteWatcher struct {
	path    string
	watcher *fsnotify.Watcher
	apply   func(transport.Routes)
	log     *zap.Logger

	mu      sync.Mutex
	pending *time.Timer
	done    chan struct{}
}

// NewRouteWatcher watches the config file at path and calls apply with the
// new routing table after each change.
func NewRouteWatcher(path string, apply func(transport.Routes), log *zap.Logger) (*RouteWatcher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	rw := &RouteWatcher{
		path:    path,
		watcher: watcher,
		apply:   apply,
		log:     log,
		done:    make(chan struct{}),
	}
	return rw, nil
}

// Watch starts the watcher. The parent directory is watched, not the file,
// so the atomic-rename save pattern still produces events.
func (rw *RouteWatcher) Watch() error {
	if err := rw.watcher.Add(filepath.Dir(rw.path)); err != nil {
		return err
	}
	go rw.processEvents()
	return nil
}

// Close stops watching and releases resources.
func (rw *RouteWatcher) Close() error {
	close(rw.done)
	rw.mu.Lock()
	if rw.pending != nil {
		rw.pending.Stop()
	}
	rw.mu.Unlock()
	return rw.watcher.Close()
}

func (rw *RouteWatcher) processEvents() {
	for {
		select {
		case <-rw.done:
			return
		case event, ok := <-rw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(rw.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			rw.scheduleReload()
		case err, ok := <-rw.watcher.Errors:
			if !ok {
				return
			}
			rw.log.Warn("config watcher error", zap.Error(err))
		}
	}
}

// scheduleReload debounces bursts of events into one reload.
func (rw *RouteWatcher) scheduleReload() {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if rw.pending != nil {
		rw.pending.Stop()
	}
	rw.pending = time.AfterFunc(watchDebounce, rw.reload)
}

func (rw *RouteWatcher) reload() {
	select {
	case <-rw.done:
		return
	default:
	}
	cfg, err := LoadFromPath(rw.path)
	if err != nil {
		rw.log.Warn("route reload skipped", zap.Error(err))
		return
	}
	rw.apply(cfg.Routes())
	rw.log.Info("completion routes reloaded",
		zap.String("default", cfg.Models.DefaultEndpoint),
		zap.Int("models", len(cfg.Models.Routes)))
}
