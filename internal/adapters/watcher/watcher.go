// Package watcher reloads workflow files and datasets when they change on disk.
package watcher

import (
	"context"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Change is a debounced file change.
type Change struct {
	Path string
	Kind Kind
}

// Kind is the type of a file change.
type Kind int

// Change kinds.
const (
	Created Kind = iota
	Modified
	Removed
)

// String returns the name of the change kind.
func (k Kind) String() string {
	switch k {
	case Created:
		return "created"
	case Modified:
		return "modified"
	case Removed:
		return "removed"
	default:
		return "unknown"
	}
}

// Handler is called for every debounced change of a matching file.
type Handler func(ctx context.Context, change Change) error

// Config holds watcher configuration.
type Config struct {
	Paths    []string
	Debounce time.Duration
	// Match selects the files to report. All files are reported when nil.
	Match func(path string) bool
}

const (
	defaultDebounce = 500 * time.Millisecond
	flushInterval   = 100 * time.Millisecond
)

type pending struct {
	seen time.Time
	kind Kind
}

// Watcher watches directories and reports changes of matching files.
type Watcher struct {
	fs       *fsnotify.Watcher
	handler  Handler
	logger   *slog.Logger
	cfg      Config
	mu       sync.Mutex
	pending  map[string]*pending
	now      func() time.Time
	stopOnce sync.Once
}

// New creates a new file watcher.
func New(cfg Config, handler Handler, logger *slog.Logger) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if cfg.Debounce <= 0 {
		cfg.Debounce = defaultDebounce
	}

	return &Watcher{
		fs:      fs,
		handler: handler,
		logger:  logger,
		cfg:     cfg,
		pending: make(map[string]*pending),
		now:     time.Now,
	}, nil
}

// Start watches the configured paths until ctx is canceled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	for _, path := range w.cfg.Paths {
		if err := w.AddPath(path); err != nil {
			w.logger.Warn("failed to watch path", "path", path, "error", err)
		}
	}

	go w.run(ctx)
	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() { err = w.fs.Close() })
	return err
}

func (w *Watcher) run(ctx context.Context) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.record(event)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "error", err)

		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

// record adds an fsnotify event to the pending set.
func (w *Watcher) record(event fsnotify.Event) {
	if w.cfg.Match != nil && !w.cfg.Match(event.Name) {
		return
	}

	kind := kindOf(event.Op)
	w.logger.Debug("file event", "path", event.Name, "op", event.Op.String())

	w.mu.Lock()
	defer w.mu.Unlock()

	p, ok := w.pending[event.Name]
	if !ok {
		w.pending[event.Name] = &pending{seen: w.now(), kind: kind}
		return
	}
	p.seen = w.now()
	p.kind = merge(p.kind, kind)
}

// merge folds a new change into a pending one. A removal wins, and a file that comes
// back after a removal is a creation.
func merge(current, next Kind) Kind {
	switch {
	case next == Removed:
		return Removed
	case current == Removed:
		return Created
	case current == Created:
		return Created
	default:
		return next
	}
}

// flush hands every settled change to the handler in path order.
func (w *Watcher) flush(ctx context.Context) {
	ready := w.settled()
	for _, change := range ready {
		w.logger.Info("file changed", "path", change.Path, "change", change.Kind.String())
		if err := w.handler(ctx, change); err != nil {
			w.logger.Error("handling file change failed",
				"path", change.Path,
				"change", change.Kind.String(),
				"error", err,
			)
		}
	}
}

// settled removes and returns the pending changes older than the debounce interval.
func (w *Watcher) settled() []Change {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	var ready []Change
	for path, p := range w.pending {
		if now.Sub(p.seen) < w.cfg.Debounce {
			continue
		}
		delete(w.pending, path)
		ready = append(ready, Change{Path: path, Kind: p.kind})
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i].Path < ready[j].Path })
	return ready
}

func kindOf(op fsnotify.Op) Kind {
	switch {
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		// A renamed file is gone from the watched location
		return Removed
	case op.Has(fsnotify.Create):
		return Created
	default:
		return Modified
	}
}

// AddPath adds a directory to watch.
func (w *Watcher) AddPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := w.fs.Add(absPath); err != nil {
		return err
	}

	w.logger.Info("watching directory", "path", absPath)
	return nil
}

// RemovePath stops watching a directory.
func (w *Watcher) RemovePath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	return w.fs.Remove(absPath)
}
