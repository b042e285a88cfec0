// Copyright 2026 © The Avalon Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Watcher polls the config files of a long batch run and reloads them when
// they change. Matches already running keep the settings they started with.
type Watcher struct {
	paths    []string
	load     func() (*Config, error)
	interval time.Duration
	logger   *slog.Logger

	current atomic.Pointer[Config]
	stamps  map[string]fileStamp // owned by the polling goroutine

	mu        sync.Mutex
	listeners []func(*Config)

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// fileStamp detects rewrites that keep the modification time but change
// the size.
type fileStamp struct {
	mod  time.Time
	size int64
}

// WatcherOption configures the watcher.
type WatcherOption func(*Watcher)

// WithWatchInterval sets the polling period. The default is one second.
func WithWatchInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

func WithWatchLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewWatcher loads the first config with load and prepares to rebuild it
// whenever one of paths changes. Polling begins with Start.
func NewWatcher(paths []string, load func() (*Config, error), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		paths:    paths,
		load:     load,
		interval: time.Second,
		logger:   slog.Default(),
		stamps:   make(map[string]fileStamp, len(paths)),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	w.changed()
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	w.current.Store(cfg)
	return w, nil
}

// OnChange registers fn to run after every successful reload.
func (w *Watcher) OnChange(fn func(*Config)) {
	w.mu.Lock()
	w.listeners = append(w.listeners, fn)
	w.mu.Unlock()
}

// Config returns the latest good configuration.
func (w *Watcher) Config() *Config {
	return w.current.Load()
}

// Start polls until ctx ends or Stop is called.
func (w *Watcher) Start(ctx context.Context) {
	go func() {
		defer close(w.done)
		tick := time.NewTicker(w.interval)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.stop:
				return
			case <-tick.C:
				if w.changed() {
					w.reload()
				}
			}
		}
	}()
}

// Stop ends polling and waits for it. It is safe to call twice; Start
// must have been called.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	<-w.done
}

// changed refreshes the file stamps and reports whether any moved.
// Missing files are ignored until they appear.
func (w *Watcher) changed() bool {
	moved := false
	for _, path := range w.paths {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		stamp := fileStamp{mod: info.ModTime(), size: info.Size()}
		if prev, ok := w.stamps[path]; !ok || prev != stamp {
			w.stamps[path] = stamp
			moved = true
		}
	}
	return moved
}

// reload swaps in a fresh config. A config that fails to load or validate
// is logged and the last good one stays.
func (w *Watcher) reload() {
	cfg, err := w.load()
	if err != nil {
		w.logger.Error("config reload failed", "error", err)
		return
	}
	w.current.Store(cfg)
	w.logger.Info("config reloaded", "provider", cfg.LLM.Provider, "model", cfg.LLM.Model)

	w.mu.Lock()
	listeners := append(([]func(*Config))(nil), w.listeners...)
	w.mu.Unlock()
	for _, fn := range listeners {
		fn(cfg)
	}
}

// WatchCLI loads the config from CLI arguments like LoadWithCLI and keeps
// it current while ctx lives. The base file and the profile file, if any,
// are watched.
func WatchCLI(ctx context.Context, args []string, opts ...WatcherOption) (*Watcher, error) {
	cli, _, err := parseCLIOverrides(args)
	if err != nil {
		return nil, err
	}
	var paths []string
	if cli.ConfigPath != "" {
		paths = append(paths, cli.ConfigPath)
		if p := profileConfigPath(cli.ConfigPath, cli.Profile); p != "" {
			paths = append(paths, p)
		}
	}

	w, err := NewWatcher(paths, func() (*Config, error) { return LoadWithCLI(args) }, opts...)
	if err != nil {
		return nil, err
	}
	w.Start(ctx)
	return w, nil
}
