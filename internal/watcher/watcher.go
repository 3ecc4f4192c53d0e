// Package watcher notifies when Claude CLI transcripts change on disk, so
// clients can refresh session lists for conversations started elsewhere.
package watcher

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	defaultDebounce = 500 * time.Millisecond
	transcriptExt   = ".jsonl"
)

// UpdateCallback is called once per burst of writes to a transcript.
type UpdateCallback func(projectName, sessionID string)

// Watcher monitors a projects root (one directory per project) for
// transcript changes.
type Watcher struct {
	root     string
	callback UpdateCallback
	logger   *slog.Logger

	// Debounce is the quiet period before a change is reported.
	Debounce time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer // transcript path → debounce timer
	closed  bool
}

// New creates a watcher for root.
func New(root string, callback UpdateCallback, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		root:     root,
		callback: callback,
		logger:   logger.With("component", "watcher"),
		Debounce: defaultDebounce,
		pending:  make(map[string]*time.Timer),
	}
}

// Run watches until ctx is cancelled. The root is created if missing.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.root, 0o755); err != nil {
		return err
	}

	fsW, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsW.Close()

	if err := addProjectDirs(fsW, w.root); err != nil {
		return err
	}
	w.logger.Info("watching transcripts", "root", w.root)

	defer w.stopTimers()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsW.Events:
			if !ok {
				return nil
			}
			w.handle(fsW, event)

		case err, ok := <-fsW.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.logger.Warn("watcher overflow, events dropped")
				continue
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(fsW *fsnotify.Watcher, event fsnotify.Event) {
	// A new project directory directly under the root.
	if event.Has(fsnotify.Create) && filepath.Dir(event.Name) == filepath.Clean(w.root) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() && !isHidden(info.Name()) {
			if err := fsW.Add(event.Name); err != nil {
				w.logger.Warn("watch project failed", "path", event.Name, "error", err)
			}
		}
		return
	}

	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	project, sessionID, ok := w.parsePath(event.Name)
	if !ok {
		return
	}

	// Debounce: reset the timer on each event.
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if t, ok := w.pending[event.Name]; ok {
		t.Stop()
	}
	path := event.Name
	w.pending[path] = time.AfterFunc(w.Debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		closed := w.closed
		w.mu.Unlock()
		if !closed && w.callback != nil {
			w.callback(project, sessionID)
		}
	})
}

// parsePath splits <root>/<project>/<session>.jsonl.
func (w *Watcher) parsePath(path string) (project, sessionID string, ok bool) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return "", "", false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 2 || !strings.HasSuffix(parts[1], transcriptExt) {
		return "", "", false
	}
	sessionID = strings.TrimSuffix(parts[1], transcriptExt)
	if parts[0] == ".." || sessionID == "" || isHidden(parts[1]) {
		return "", "", false
	}
	return parts[0], sessionID, true
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
}

// addProjectDirs adds the root and each project directory below it.
func addProjectDirs(w *fsnotify.Watcher, root string) error {
	if err := w.Add(root); err != nil {
		return err
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if !e.IsDir() || isHidden(e.Name()) {
			continue
		}
		if err := w.Add(filepath.Join(root, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

func isHidden(name string) bool {
	return len(name) > 0 && name[0] == '.'
}
