package vecdb

import (
	"fmt"
	"sort"
	"sync"
)

// Registry is the "database of collections": a named set of
// Collections backed by one PersistenceManager. Its map is guarded by
// an RWMutex so lookups and searches on distinct collections can run
// concurrently while create/delete/reload take the write lock.
type Registry struct {
	mu          sync.RWMutex
	persistence *PersistenceManager
	collections map[string]*Collection
	watcher     *Watcher
}

// Open constructs a Registry rooted at path, loading any collections
// already persisted there. This is the Go analogue of the Python
// original's VecDB(path) constructor plus its __enter__.
func Open(path string) (*Registry, error) {
	pm, err := NewPersistenceManager(path)
	if err != nil {
		return nil, err
	}
	r := &Registry{persistence: pm, collections: make(map[string]*Collection)}
	if err := r.loadExisting(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) loadExisting() error {
	names, err := r.persistence.ListCollections()
	if err != nil {
		return err
	}
	for _, name := range names {
		c, err := r.persistence.LoadCollection(name)
		if err != nil {
			return fmt.Errorf("vecdb: load collection %q: %w", name, err)
		}
		if c == nil {
			continue // partial/orphaned entry, skip rather than fail startup
		}
		r.collections[name] = c
	}
	return nil
}

// CreateCollection adds a new, empty collection under name.
func (r *Registry) CreateCollection(name string, dimension int, metric Metric, params HNSWParams) (*Collection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.collections[name]; exists {
		return nil, newError(KindCollectionExists, "collection %q already exists", name)
	}
	c, err := NewCollection(name, dimension, metric, params)
	if err != nil {
		return nil, err
	}
	r.collections[name] = c
	return c, nil
}

// GetCollection returns the named collection.
func (r *Registry) GetCollection(name string) (*Collection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.collections[name]
	if !ok {
		return nil, newError(KindCollectionNotFound, "collection %q not found", name)
	}
	return c, nil
}

// DeleteCollection removes name from the registry and from disk. If
// name is not registered in memory but orphaned files exist on disk,
// it still attempts the disk-side delete (matching the Python
// original's handling of a partially-loaded collection).
func (r *Registry) DeleteCollection(name string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.collections[name]; !ok {
		return r.persistence.DeleteCollection(name), nil
	}
	delete(r.collections, name)
	r.persistence.DeleteCollection(name)
	return true, nil
}

// ListCollections returns the sorted names of registered collections.
func (r *Registry) ListCollections() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.collections))
	for n := range r.collections {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Len reports the number of registered collections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.collections)
}

// Save writes the registry-level metadata.json and unconditionally
// persists every collection, live or untouched. The Python original
// does not track a dirty bit at the registry level either — every
// Save is a full fan-out save_collection pass.
func (r *Registry) Save() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.collections))
	for n := range r.collections {
		names = append(names, n)
	}
	sort.Strings(names)
	if err := r.persistence.SaveRegistryMetadata(names); err != nil {
		return err
	}
	for _, n := range names {
		if r.watcher != nil {
			r.watcher.SuppressSelf(n)
		}
		if err := r.persistence.SaveCollection(r.collections[n]); err != nil {
			return fmt.Errorf("vecdb: save collection %q: %w", n, err)
		}
	}
	return nil
}

// Watch starts watching this registry's persistence root for changes
// made by another process sharing the same data directory, returning
// a Watcher whose Events() channel delivers a debounced ReloadEvent
// per collection name whenever its files change outside this
// Registry's own Save calls. The caller owns the returned Watcher and
// must Close it; Watch itself only needs to run once per Registry.
func (r *Registry) Watch() (*Watcher, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, err := NewWatcher(r.persistence.root)
	if err != nil {
		return nil, err
	}
	r.watcher = w
	return w, nil
}

// Reload re-reads name from disk and replaces its in-memory
// Collection, discarding any unsaved in-memory changes. It is meant to
// be called in response to a ReloadEvent from Watch.
func (r *Registry) Reload(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.persistence.LoadCollection(name)
	if err != nil {
		return fmt.Errorf("vecdb: reload collection %q: %w", name, err)
	}
	if c == nil {
		delete(r.collections, name)
		return newError(KindCollectionNotFound, "collection %q not found on disk", name)
	}
	r.collections[name] = c
	return nil
}

// Close saves the registry and all collections. It is meant to be
// called via defer right after Open, the Go equivalent of the Python
// original's "with VecDB(path) as db:" scoped-acquisition pattern: if
// the body already failed and is returning an error, Close's own
// save error must never silently replace or hide it — callers should
// report both, not just the one that happened to run last.
func (r *Registry) Close() error {
	return r.Save()
}
