package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Watcher polls a config file and reports content changes through a callback.
// Polling (not fsnotify) keeps dependencies minimal; edits land within one
// interval, which is plenty for a file a human touches.
type Watcher struct {
	path     string
	interval time.Duration
	notify   func(old, updated *Config)

	mu      sync.Mutex
	current *Config
	mtime   time.Time
	sum     [sha256.Size]byte

	done     chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. The default is 5 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads the config at path and starts polling it in a background
// goroutine. Every content change that parses and validates fires onChange
// with the previous and the fresh config; a broken rewrite keeps the last
// good config running and is logged instead.
func NewWatcher(path string, onChange func(old, updated *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: 5 * time.Second,
		notify:   onChange,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	if err := w.refresh(true); err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}

	go w.run()
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop stops the file watcher.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
	})
}

func (w *Watcher) run() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			if err := w.refresh(false); err != nil {
				slog.Warn("config watcher: keeping previous config",
					"path", w.path, "err", err)
			}
		}
	}
}

// refresh re-reads the file when its mtime moved and swaps in the parsed
// config on a content change. The initial load only populates state; the
// callback fires on later changes.
func (w *Watcher) refresh(initial bool) error {
	info, err := os.Stat(w.path)
	if err != nil {
		return err
	}

	w.mu.Lock()
	seen := w.mtime
	w.mu.Unlock()
	if !initial && info.ModTime().Equal(seen) {
		return nil
	}

	data, err := os.ReadFile(w.path)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(data)

	w.mu.Lock()
	if !initial && sum == w.sum {
		// Touched but identical content, only remember the new mtime.
		w.mtime = info.ModTime()
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return err
	}

	w.mu.Lock()
	old := w.current
	w.current = cfg
	w.sum = sum
	w.mtime = info.ModTime()
	w.mu.Unlock()

	if initial {
		return nil
	}

	slog.Info("config watcher: configuration reloaded", "path", w.path)

	// The callback runs outside the lock so it can call Current.
	if w.notify != nil {
		w.notify(old, cfg)
	}
	return nil
}
