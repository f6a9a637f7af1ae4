package config

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/lanonasis/onasis-gateway/internal/logging"
	"go.uber.org/zap"
)

// DirWatcher watches a directory of descriptor documents and fires a
// callback after changes settle. The edge-function adapter uses it to
// rebuild its tool list without a restart; the catalog itself stays an
// immutable startup snapshot.
type DirWatcher struct {
	watcher  *fsnotify.Watcher
	dir      string
	exts     map[string]bool
	debounce time.Duration

	mu        sync.Mutex
	callbacks []func()
}

// NewDirWatcher creates a watcher over dir, reacting only to files whose
// extension is in exts (e.g. ".md", ".json"). Empty exts means all files.
func NewDirWatcher(dir string, exts ...string) (*DirWatcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &DirWatcher{
		watcher:  fsWatcher,
		dir:      dir,
		debounce: 500 * time.Millisecond,
	}
	if len(exts) > 0 {
		w.exts = make(map[string]bool, len(exts))
		for _, e := range exts {
			w.exts[strings.ToLower(e)] = true
		}
	}
	return w, nil
}

// OnChange registers a callback invoked after a debounced change.
func (w *DirWatcher) OnChange(fn func()) {
	w.mu.Lock()
	w.callbacks = append(w.callbacks, fn)
	w.mu.Unlock()
}

// Start begins watching. It is a no-op error if the directory is missing.
func (w *DirWatcher) Start() error {
	if err := w.watcher.Add(w.dir); err != nil {
		return err
	}
	go w.watch()
	return nil
}

func (w *DirWatcher) watch() {
	var debounceTimer *time.Timer

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if w.exts != nil && !w.exts[strings.ToLower(filepath.Ext(event.Name))] {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.debounce, w.fire)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Error("descriptor watcher error", zap.Error(err))
		}
	}
}

func (w *DirWatcher) fire() {
	w.mu.Lock()
	callbacks := make([]func(), len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.Unlock()

	logging.Info("descriptor directory changed", zap.String("dir", w.dir))
	for _, cb := range callbacks {
		go cb()
	}
}

// Stop stops watching.
func (w *DirWatcher) Stop() error {
	return w.watcher.Close()
}
