package config

import (
	"flag"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher reloads the configuration when config.json changes and
// passes every successfully loaded Config to onChange. It watches
// the data directory rather than the file so editors that replace
// the file by rename are still seen.
type Watcher struct {
	fs       *flag.FlagSet
	dataDir  string
	path     string
	onChange func(Config)
	log      zerolog.Logger
	watcher  *fsnotify.Watcher
	debounce time.Duration

	mu      sync.Mutex
	pending bool
	last    time.Time

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// Watch starts watching cfg's config file. Reloads re-layer the
// file, env and fs over the defaults, so explicitly set flags keep
// winning over the file. The data dir never changes on reload.
func Watch(
	cfg Config, fs *flag.FlagSet, debounce time.Duration,
	log zerolog.Logger, onChange func(Config),
) (*Watcher, error) {
	if onChange == nil {
		return nil, fmt.Errorf("onChange callback is nil")
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if err := fsw.Add(cfg.DataDir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watching %s: %w", cfg.DataDir, err)
	}
	w := &Watcher{
		fs:       fs,
		dataDir:  cfg.DataDir,
		path:     filepath.Clean(cfg.ConfigPath()),
		onChange: onChange,
		log:      log.With().Str("component", "config").Logger(),
		watcher:  fsw,
		debounce: debounce,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Stop stops the watcher and waits for it to finish.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
		<-w.done
		w.watcher.Close()
	})
}

func (w *Watcher) loop() {
	defer close(w.done)
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("config watcher error")

		case <-ticker.C:
			w.flush()
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}
	w.mu.Lock()
	w.pending = true
	w.last = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) flush() {
	w.mu.Lock()
	ready := w.pending && time.Since(w.last) >= w.debounce
	if ready {
		w.pending = false
	}
	w.mu.Unlock()
	if !ready {
		return
	}

	cfg, err := loadIn(w.dataDir, w.fs)
	if err != nil {
		w.log.Warn().Err(err).Msg("config reload failed, keeping previous")
		return
	}
	w.log.Info().
		Str("merge_mode", string(cfg.MergeMode)).
		Str("history_scope", string(cfg.HistoryScope)).
		Msg("config reloaded")
	w.onChange(cfg)
}
