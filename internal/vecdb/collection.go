// Package vecdb implements an embedded approximate-nearest-neighbor
// vector database: a Collection wraps an HNSW index behind a stable
// caller-chosen id space, a PersistenceManager gives it a durable
// on-disk layout, and a Registry owns a named set of collections.
package vecdb

import (
	"errors"
	"sync"
	"time"

	"github.com/HessamLa/vecdb-hnsw/internal/hnsw"
)

// Metric re-exports the hnsw distance metric so callers never need to
// import the hnsw package directly.
type Metric = hnsw.Metric

const (
	L2     = hnsw.L2
	Cosine = hnsw.Cosine
	Dot    = hnsw.Dot
)

// ParseMetricName parses "l2", "cosine", or "dot" into a Metric.
func ParseMetricName(s string) (Metric, bool) { return hnsw.ParseMetric(s) }

// HNSWParams mirrors the constructor-time tuning knobs the Python
// original exposes as a plain hnsw_params dict.
type HNSWParams struct {
	M              int
	EfConstruction int
	EfSearch       int
	Seed           uint64
}

func (p HNSWParams) toConfig() hnsw.Config {
	cfg := hnsw.DefaultConfig()
	if p.M > 0 {
		cfg.M = p.M
	}
	if p.EfConstruction > 0 {
		cfg.EfConstruction = p.EfConstruction
	}
	if p.EfSearch > 0 {
		cfg.EfSearch = p.EfSearch
	}
	if p.Seed != 0 {
		cfg.Seed = p.Seed
	}
	return cfg
}

// SearchResult is one ranked hit translated back into the caller's id
// space, ordered by ascending distance (closer first).
type SearchResult struct {
	UserID   int64
	Distance float32
}

// Collection owns one HNSW graph plus the bijection between caller
// ("user") ids and the internal ids the graph actually indexes.
// A Collection is single-threaded per spec: its own RWMutex guards
// every operation, but the system as a whole runs one collection
// per goroutine, not one lock per query.
type Collection struct {
	mu sync.RWMutex

	name      string
	dimension int
	metric    Metric
	params    HNSWParams

	graph *hnsw.Graph

	userToInternal map[int64]uint64
	internalToUser map[uint64]int64
	vectors        map[int64][]float32

	nextInternalID uint64

	dirty       bool
	lastUpdated time.Time
}

// NewCollection constructs an empty collection. name must be
// non-empty, dimension must be >= 1, and metric must be one of
// L2/Cosine/Dot.
func NewCollection(name string, dimension int, metric Metric, params HNSWParams) (*Collection, error) {
	if name == "" {
		return nil, newError(KindInvalidArgument, "collection name must not be empty")
	}
	if dimension < 1 {
		return nil, newError(KindInvalidArgument, "dimension must be >= 1")
	}
	if metric != L2 && metric != Cosine && metric != Dot {
		return nil, newError(KindInvalidArgument, "unknown metric %d", metric)
	}
	g, err := hnsw.New(dimension, metric, params.toConfig())
	if err != nil {
		return nil, translateHNSWErr(err)
	}
	return &Collection{
		name:           name,
		dimension:      dimension,
		metric:         metric,
		params:         params,
		graph:          g,
		userToInternal: make(map[int64]uint64),
		internalToUser: make(map[uint64]int64),
		vectors:        make(map[int64][]float32),
		lastUpdated:    time.Now(),
	}, nil
}

func (c *Collection) Name() string   { return c.name }
func (c *Collection) Dimension() int { return c.dimension }
func (c *Collection) Metric() Metric { return c.metric }

func (c *Collection) IsDirty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dirty
}

// MarkSaved clears the dirty flag; called by the PersistenceManager
// after a successful save_collection.
func (c *Collection) MarkSaved() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dirty = false
}

func (c *Collection) LastUpdated() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastUpdated
}

// Insert adds vec under user-chosen id. It fails if the dimension does
// not match or id is already present.
func (c *Collection) Insert(userID int64, vec []float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(vec) != c.dimension {
		return newError(KindDimensionMismatch, "vector has length %d, collection dimension is %d", len(vec), c.dimension)
	}
	if _, exists := c.userToInternal[userID]; exists {
		return newError(KindDuplicateID, "user id %d already present", userID)
	}

	internalID := c.nextInternalID
	c.nextInternalID++

	if err := c.graph.Add(internalID, vec); err != nil {
		return translateHNSWErr(err)
	}

	c.userToInternal[userID] = internalID
	c.internalToUser[internalID] = userID
	stored := make([]float32, len(vec))
	copy(stored, vec)
	c.vectors[userID] = stored

	c.dirty = true
	c.lastUpdated = time.Now()
	return nil
}

// Search returns up to k nearest neighbors of query, translated back
// into user ids and ordered by ascending distance. efSearch <= 0 uses
// the collection's configured default.
func (c *Collection) Search(query []float32, k int, efSearch int) ([]SearchResult, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(query) != c.dimension {
		return nil, newError(KindDimensionMismatch, "query has length %d, collection dimension is %d", len(query), c.dimension)
	}
	if k < 1 {
		return nil, newError(KindInvalidArgument, "k must be >= 1")
	}

	results, err := c.graph.Search(query, k, efSearch)
	if err != nil {
		return nil, translateHNSWErr(err)
	}

	out := make([]SearchResult, 0, len(results))
	for _, r := range results {
		uid, ok := c.internalToUser[r.ID]
		if !ok {
			continue
		}
		out = append(out, SearchResult{UserID: uid, Distance: r.Distance})
	}
	return out, nil
}

// Delete removes userID if present, reporting whether it existed.
func (c *Collection) Delete(userID int64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	internalID, exists := c.userToInternal[userID]
	if !exists {
		return false, nil
	}

	if _, err := c.graph.Remove(internalID); err != nil {
		return false, translateHNSWErr(err)
	}

	delete(c.userToInternal, userID)
	delete(c.internalToUser, internalID)
	delete(c.vectors, userID)

	c.dirty = true
	c.lastUpdated = time.Now()
	return true, nil
}

// Get returns a defensive copy of the stored vector for userID.
func (c *Collection) Get(userID int64) ([]float32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	v, ok := c.vectors[userID]
	if !ok {
		return nil, false
	}
	out := make([]float32, len(v))
	copy(out, v)
	return out, true
}

// Contains reports whether userID is present.
func (c *Collection) Contains(userID int64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.userToInternal[userID]
	return ok
}

// Count returns the number of live entries.
func (c *Collection) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.userToInternal)
}

// state is an internal snapshot used by the PersistenceManager. It is
// not part of the public API surface; persistence.go lives in the same
// package and uses it directly.
type state struct {
	name           string
	dimension      int
	metric         Metric
	params         HNSWParams
	count          int
	nextInternalID uint64
	userToInternal map[int64]uint64
	vectors        map[int64][]float32
	graphBlob      []byte
}

func (c *Collection) snapshot() (state, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	blob, err := c.graph.Serialize()
	if err != nil {
		return state{}, translateHNSWErr(err)
	}

	u2i := make(map[int64]uint64, len(c.userToInternal))
	for k, v := range c.userToInternal {
		u2i[k] = v
	}
	vecs := make(map[int64][]float32, len(c.vectors))
	for k, v := range c.vectors {
		cp := make([]float32, len(v))
		copy(cp, v)
		vecs[k] = cp
	}

	return state{
		name:           c.name,
		dimension:      c.dimension,
		metric:         c.metric,
		params:         c.params,
		count:          len(c.userToInternal),
		nextInternalID: c.nextInternalID,
		userToInternal: u2i,
		vectors:        vecs,
		graphBlob:      blob,
	}, nil
}

// fromState reconstructs a Collection from persisted parts: the graph
// blob (already deserialized into g), the user<->internal id mapping,
// and the raw vectors keyed by user id.
func fromState(name string, dimension int, metric Metric, params HNSWParams, g *hnsw.Graph, userToInternal map[int64]uint64, nextInternalID uint64, vectors map[int64][]float32) *Collection {
	internalToUser := make(map[uint64]int64, len(userToInternal))
	for uid, iid := range userToInternal {
		internalToUser[iid] = uid
	}
	return &Collection{
		name:           name,
		dimension:      dimension,
		metric:         metric,
		params:         params,
		graph:          g,
		userToInternal: userToInternal,
		internalToUser: internalToUser,
		vectors:        vectors,
		nextInternalID: nextInternalID,
		lastUpdated:    time.Now(),
	}
}

func translateHNSWErr(err error) error {
	switch {
	case errors.Is(err, hnsw.ErrDimensionMismatch):
		return newError(KindDimensionMismatch, "%s", err.Error())
	case errors.Is(err, hnsw.ErrDuplicateID):
		return newError(KindDuplicateID, "%s", err.Error())
	case errors.Is(err, hnsw.ErrDeserialization):
		return newError(KindDeserialization, "%s", err.Error())
	case errors.Is(err, hnsw.ErrInvalidArgument):
		return newError(KindInvalidArgument, "%s", err.Error())
	default:
		return err
	}
}
