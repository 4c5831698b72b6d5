// Package content watches the on-disk content tree (effect definitions,
// creature templates, zone scripts) and triggers hot reloads on change.
package content

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is the window over which rapid file events are coalesced
// into a single reload. Editors tend to emit several events per save.
const DefaultDebounce = 250 * time.Millisecond

// ReloadFunc receives the batch of changed paths after the debounce window.
type ReloadFunc func(changed []string)

// Watcher observes content directories and invokes a reload callback when
// any tracked file changes. It implements the server Service interface.
type Watcher struct {
	fs       *fsnotify.Watcher
	logger   *zap.Logger
	reload   ReloadFunc
	debounce time.Duration

	closeCh chan struct{}
	once    sync.Once
}

// NewWatcher creates a Watcher over the given directories. Subdirectories
// are not added recursively; list each directory to track.
//
// Precondition: logger and reload must be non-nil; dirs must not be empty.
// Postcondition: Returns a Watcher ready for Start, or a non-nil error.
func NewWatcher(logger *zap.Logger, reload ReloadFunc, debounce time.Duration, dirs ...string) (*Watcher, error) {
	if logger == nil {
		panic("content: nil logger")
	}
	if reload == nil {
		panic("content: nil reload callback")
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for _, dir := range dirs {
		if err := fs.Add(dir); err != nil {
			_ = fs.Close()
			return nil, err
		}
	}

	return &Watcher{
		fs:       fs,
		logger:   logger,
		reload:   reload,
		debounce: debounce,
		closeCh:  make(chan struct{}),
	}, nil
}

// Start runs the event loop. It blocks until Stop is called.
func (w *Watcher) Start() error {
	pending := make(map[string]struct{})
	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)
	resetTimer := func() {
		if timer == nil {
			timer = time.NewTimer(w.debounce)
			timerCh = timer.C
			return
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(w.debounce)
	}

	for {
		select {
		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if !trackedFile(event.Name) {
				continue
			}
			pending[event.Name] = struct{}{}
			resetTimer()
		case <-timerCh:
			changed := make([]string, 0, len(pending))
			for name := range pending {
				changed = append(changed, name)
			}
			clear(pending)
			w.logger.Info("content changed, reloading",
				zap.Strings("paths", changed),
			)
			w.reload(changed)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("content watch error", zap.Error(err))
		case <-w.closeCh:
			return nil
		}
	}
}

// Stop terminates the event loop and releases the underlying watcher.
func (w *Watcher) Stop() {
	w.once.Do(func() {
		close(w.closeCh)
		_ = w.fs.Close()
	})
}

// trackedFile reports whether path is part of the reloadable content set.
func trackedFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".lua":
		return true
	}
	return false
}
