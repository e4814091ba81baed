package assets

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce coalesces the burst of events an editor or exporter
// produces for a single save.
const DefaultDebounce = 100 * time.Millisecond

var errWatcherClosed = errors.New("watcher already closed")

// Change reports that a watched file was rewritten.
type Change struct {
	Path string
}

// Watcher invalidates cached files when they change on disk and forwards a
// Change for each one after the debounce interval.
type Watcher struct {
	manager  *Manager
	fs       *fsnotify.Watcher
	debounce time.Duration
	log      *zap.Logger

	events chan Change
	done   chan struct{}
	wg     sync.WaitGroup

	mu      sync.Mutex
	files   map[string]bool
	dirs    map[string]bool
	pending map[string]*time.Timer
	closed  bool
}

// NewWatcher creates a watcher tied to m. A zero debounce uses DefaultDebounce.
func NewWatcher(m *Manager, debounce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	w := &Watcher{
		manager:  m,
		fs:       fsw,
		debounce: debounce,
		log:      m.log.Named("watch"),
		events:   make(chan Change, 16),
		done:     make(chan struct{}),
		files:    make(map[string]bool),
		dirs:     make(map[string]bool),
		pending:  make(map[string]*time.Timer),
	}

	w.wg.Add(1)
	go w.run()

	return w, nil
}

// Watch starts watching a file. The parent directory is watched so that
// save-by-rename is seen too.
func (w *Watcher) Watch(path string) error {
	full, err := w.manager.Resolve(path)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return errWatcherClosed
	}

	dir := filepath.Dir(full)
	if !w.dirs[dir] {
		if err := w.fs.Add(dir); err != nil {
			return fmt.Errorf("watching %s: %w", dir, err)
		}
		w.dirs[dir] = true
	}
	w.files[full] = true
	w.log.Debug("watching", zap.String("path", full))

	return nil
}

// Events delivers debounced changes. It is closed by Close.
func (w *Watcher) Events() <-chan Change { return w.events }

// Close stops watching and closes the Events channel.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	for path, t := range w.pending {
		if t.Stop() {
			w.wg.Done()
		}
		delete(w.pending, path)
	}
	w.mu.Unlock()

	close(w.done)
	err := w.fs.Close()
	w.wg.Wait()
	close(w.events)

	return err
}

func (w *Watcher) run() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			w.schedule(filepath.Clean(ev.Name))
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.log.Warn("watch error", zap.Error(err))
		}
	}
}

func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed || !w.files[path] {
		return
	}
	// an expired timer is already firing; start a fresh one
	if t, ok := w.pending[path]; ok && t.Stop() {
		t.Reset(w.debounce)
		return
	}

	w.wg.Add(1)
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		defer w.wg.Done()
		w.fire(path)
	})
}

func (w *Watcher) fire(path string) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	delete(w.pending, path)
	w.mu.Unlock()

	w.manager.Invalidate(path)
	w.log.Info("file changed", zap.String("path", path))

	select {
	case w.events <- Change{Path: path}:
	case <-w.done:
	}
}
