package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"coffer/internal/logging"
)

// Watcher monitors a config file and invokes a callback with the freshly
// loaded config after each change. Rapid saves are debounced. Only the
// dynamic settings (logging) should be applied by callers; structural
// settings like the data directory require a restart.
type Watcher struct {
	mu       sync.RWMutex
	watcher  *fsnotify.Watcher
	path     string
	onReload func(*Config)
	debounce time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
	running  bool

	stats WatcherStats
}

// WatcherStats tracks watcher activity for debugging.
type WatcherStats struct {
	Reloads     int
	ParseErrors int
	LastReload  time.Time
}

// NewWatcher creates a watcher for the config file at path.
func NewWatcher(path string, onReload func(*Config)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher:  fw,
		path:     path,
		onReload: onReload,
		debounce: 500 * time.Millisecond, // coalesce editor save bursts
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start begins watching. Watches the parent directory because editors often
// replace the file via rename, which drops a watch on the file itself.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}
	w.running = true
	go w.loop()
	logging.ConfigLog("watching %s for changes", w.path)
	return nil
}

// Stop terminates the watcher and waits for the loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	_ = w.watcher.Close()
}

// Stats returns a copy of the watcher statistics.
func (w *Watcher) Stats() WatcherStats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

// loop debounces trailing-edge: each event restarts the settle timer, and the
// reload runs only after a save burst has settled past the window. Editors
// save via write-then-rename; reading on the first event would catch the
// partial file.
func (w *Watcher) loop() {
	defer close(w.doneCh)

	settle := time.NewTimer(w.debounce)
	if !settle.Stop() {
		<-settle.C
	}
	pending := false

	for {
		select {
		case <-w.stopCh:
			settle.Stop()
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				settle.Stop()
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if pending && !settle.Stop() {
				<-settle.C
			}
			settle.Reset(w.debounce)
			pending = true
		case <-settle.C:
			pending = false
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				settle.Stop()
				return
			}
			logging.Get(logging.CategoryConfig).Error("watch error: %v", err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.mu.Lock()
		w.stats.ParseErrors++
		w.mu.Unlock()
		logging.Get(logging.CategoryConfig).Warn("reload skipped, config invalid: %v", err)
		return
	}

	w.mu.Lock()
	w.stats.Reloads++
	w.stats.LastReload = time.Now()
	cb := w.onReload
	w.mu.Unlock()

	logging.ConfigLog("config reloaded from %s", w.path)
	if cb != nil {
		cb(cfg)
	}
}
