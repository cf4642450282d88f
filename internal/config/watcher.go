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

const defaultPollInterval = 5 * time.Second

// fileState is the change-detection fingerprint of the config file.
type fileState struct {
	modTime time.Time
	sum     [sha256.Size]byte
}

// Watcher polls a config file and reports content changes through a
// callback, which is how threshold, telemetry interval and log level
// tweaks land without a server restart. Polling keeps the watcher free
// of platform notification dependencies; a touched but unchanged file
// is detected by content hash and ignored. A file that fails to parse
// or validate is also ignored, keeping the last good config current.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)

	mu      sync.Mutex
	current *Config
	state   fileState

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

// NewWatcher loads the config at path and starts polling it for changes
// in a background goroutine. Stop the watcher to release the goroutine.
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: defaultPollInterval,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, st, err := w.snapshot()
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.current = cfg
	w.state = st

	go w.poll()
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop ends the polling goroutine. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
}

func (w *Watcher) poll() {
	tick := time.NewTicker(w.interval)
	defer tick.Stop()
	for {
		select {
		case <-w.done:
			return
		case <-tick.C:
			w.sweep()
		}
	}
}

// sweep runs one poll round: a stat-only fast path when the mtime is
// unchanged, a full read and parse otherwise.
func (w *Watcher) sweep() {
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config file unreadable, keeping previous", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	seen := w.state.modTime
	w.mu.Unlock()
	if info.ModTime().Equal(seen) {
		return
	}

	cfg, st, err := w.snapshot()
	if err != nil {
		slog.Warn("config file invalid, keeping previous", "path", w.path, "err", err)
		return
	}

	old, applied := w.swap(cfg, st)
	if !applied {
		return
	}

	slog.Info("config file reloaded", "path", w.path)
	// The callback runs outside the lock so it may call Current().
	if w.onChange != nil {
		w.onChange(old, cfg)
	}
}

// swap installs cfg unless the content hash matches what is already
// current, in which case only the recorded mtime advances. It returns
// the previous config and whether cfg was installed.
func (w *Watcher) swap(cfg *Config, st fileState) (old *Config, applied bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if st.sum == w.state.sum {
		w.state.modTime = st.modTime
		return nil, false
	}

	old = w.current
	w.current = cfg
	w.state = st
	return old, true
}

// snapshot reads, hashes and parses the file in one pass, returning the
// validated config with the fingerprint of the bytes that produced it.
// The stat happens before the read: a write landing in between leaves a
// stale mtime behind, which only costs one extra read next sweep.
func (w *Watcher) snapshot() (*Config, fileState, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, fileState{}, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, fileState{}, err
	}

	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fileState{}, err
	}

	return cfg, fileState{modTime: info.ModTime(), sum: sha256.Sum256(data)}, nil
}
