// Package inbox imports exercise answers dropped into a directory as
// <exercise-id>.json files. Writing a file puts its record in the workshop
// store, removing it deletes the record.
package inbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/septapod/agentmapper/internal/workshop"
)

// ext is the suffix of the files the inbox picks up.
const ext = ".json"

// ErrAlreadyRunning is returned by a second Start.
var ErrAlreadyRunning = errors.New("inbox watcher already running")

// Watcher mirrors a directory of answer files into a workshop store.
type Watcher struct {
	dir   string
	store *workshop.Store
	log   *slog.Logger

	watcher *fsnotify.Watcher

	mu      sync.Mutex
	running bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// New creates a watcher for dir. It does nothing until Start.
func New(dir string, store *workshop.Store, log *slog.Logger) (*Watcher,
	error) {

	if log == nil {
		log = slog.Default()
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	return &Watcher{
		dir:     dir,
		store:   store,
		log:     log.With("component", "inbox", "dir", dir),
		watcher: w,
		done:    make(chan struct{}),
	}, nil
}

// Start imports the files already present and then follows changes until
// Stop.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return ErrAlreadyRunning
	}

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create inbox dir: %w", err)
	}
	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}

	if err := w.scan(ctx); err != nil {
		_ = w.watcher.Remove(w.dir)
		return err
	}

	w.running = true
	w.wg.Add(1)
	go w.loop(ctx)

	w.log.InfoContext(ctx, "Inbox watcher started")

	return nil
}

// Stop ends the watch and waits for the event loop to exit.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return w.watcher.Close()
	}
	w.running = false
	w.mu.Unlock()

	close(w.done)
	err := w.watcher.Close()
	w.wg.Wait()

	if err != nil {
		return fmt.Errorf("close watcher: %w", err)
	}

	return nil
}

// scan imports every answer file currently in the directory.
func (w *Watcher) scan(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("read inbox dir: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := recordID(e.Name()); !ok {
			continue
		}
		w.importFile(ctx, filepath.Join(w.dir, e.Name()))
	}

	return nil
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case <-ctx.Done():
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(ctx, ev)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.WarnContext(ctx, "Inbox watch error", "error", err)
		}
	}
}

// handle applies one filesystem event. A rename away is a removal; the new
// name, if still in the directory, arrives as a create.
func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event) {
	id, ok := recordID(filepath.Base(ev.Name))
	if !ok || filepath.Dir(ev.Name) != filepath.Clean(w.dir) {
		return
	}

	switch {
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		w.importFile(ctx, ev.Name)

	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		if w.store.DeleteRecord(ctx, id) {
			w.log.InfoContext(ctx, "Removed record", "id", id)
		}
	}
}

// importFile puts the file's content as the record named after it. Files
// that are not valid JSON are skipped; a half written file is picked up
// again by its next write event.
func (w *Watcher) importFile(ctx context.Context, path string) {
	id, ok := recordID(filepath.Base(path))
	if !ok {
		return
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		w.log.DebugContext(ctx, "Cannot read inbox file",
			"path", path, "error", err)
		return
	}

	if !json.Valid(raw) {
		w.log.WarnContext(ctx, "Skipping invalid JSON file",
			"path", path)
		return
	}

	if err := w.store.PutRecord(ctx, id, raw); err != nil {
		w.log.WarnContext(ctx, "Cannot import inbox file",
			"path", path, "error", err)
		return
	}

	w.log.DebugContext(ctx, "Imported record", "id", id)
}

// recordID returns the exercise id of an answer file name. Hidden files
// and editor temporaries are ignored.
func recordID(name string) (string, bool) {
	if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ext) {
		return "", false
	}

	id := strings.TrimSuffix(name, ext)
	if id == "" {
		return "", false
	}

	return id, true
}
