package vecdb

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ReloadEvent notifies a caller that a collection's on-disk files
// changed outside of this Registry's own Save calls — for example,
// another process sharing the same data directory wrote a new
// snapshot. It is purely informational: nothing here merges concurrent
// writers, and the registry's own in-memory state is left untouched
// until the caller decides to reload.
type ReloadEvent struct {
	Name string
}

// Watcher observes a Registry's persistence root for externally made
// changes to collection files and emits debounced ReloadEvents.
type Watcher struct {
	fw      *fsnotify.Watcher
	root    string
	events  chan ReloadEvent
	pending map[string]*time.Timer
	mu      sync.Mutex

	suppressMu sync.Mutex
	suppress   map[string]time.Time
}

// debounceWindow coalesces bursts of filesystem events (an atomic
// write touches .tmp, then renames three separate files) into a
// single reload notification per collection name.
const debounceWindow = 300 * time.Millisecond

// NewWatcher starts watching root's collections directory. Call Close
// when done; Events() delivers reload notifications until then.
func NewWatcher(root string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(root, "collections")
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{
		fw:       fw,
		root:     root,
		events:   make(chan ReloadEvent, 16),
		pending:  make(map[string]*time.Timer),
		suppress: make(map[string]time.Time),
	}
	go w.loop()
	return w, nil
}

// Events returns the channel of debounced reload notifications.
func (w *Watcher) Events() <-chan ReloadEvent { return w.events }

// Close stops watching and releases the underlying inotify/kqueue
// handle.
func (w *Watcher) Close() error {
	return w.fw.Close()
}

// SuppressSelf marks name's files as "about to change because we wrote
// them", so the resulting fsnotify events within the debounce window
// are not reported back to the caller as an external change.
func (w *Watcher) SuppressSelf(name string) {
	w.suppressMu.Lock()
	defer w.suppressMu.Unlock()
	w.suppress[name] = time.Now().Add(debounceWindow)
}

func (w *Watcher) isSuppressed(name string) bool {
	w.suppressMu.Lock()
	defer w.suppressMu.Unlock()
	until, ok := w.suppress[name]
	return ok && time.Now().Before(until)
}

func (w *Watcher) loop() {
	for {
		select {
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			name := collectionNameFromPath(ev.Name)
			if name == "" || w.isSuppressed(name) {
				continue
			}
			w.schedule(name)
		case _, ok := <-w.fw.Errors:
			if !ok {
				return
			}
		}
	}
}

func (w *Watcher) schedule(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[name]; ok {
		t.Stop()
	}
	w.pending[name] = time.AfterFunc(debounceWindow, func() {
		w.mu.Lock()
		delete(w.pending, name)
		w.mu.Unlock()
		if w.isSuppressed(name) {
			return
		}
		select {
		case w.events <- ReloadEvent{Name: name}:
		default:
		}
	})
}

func collectionNameFromPath(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, tmpSuffix)
	for _, suf := range []string{metaSuffix, hnswSuffix, vectorsSuffix} {
		if strings.HasSuffix(base, suf) {
			return strings.TrimSuffix(base, suf)
		}
	}
	return ""
}
