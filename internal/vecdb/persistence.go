package vecdb

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/HessamLa/vecdb-hnsw/internal/hnsw"
)

// FileFormatVersion gates the .meta/.vectors layout independently of
// the .hnsw graph blob's own internal version.
const FileFormatVersion = 1

const (
	metaSuffix    = ".meta"
	hnswSuffix    = ".hnsw"
	vectorsSuffix = ".vectors"
	tmpSuffix     = ".tmp"
)

// metaFile is the JSON sidecar written next to the binary blobs.
type metaFile struct {
	Version        int    `json:"version"`
	Name           string `json:"name"`
	Dimension      int    `json:"dimension"`
	Metric         string `json:"metric"`
	Count          int    `json:"count"`
	NextInternalID uint64 `json:"next_internal_id"`
	M              int    `json:"m"`
	EfConstruction int    `json:"ef_construction"`
	EfSearch       int    `json:"ef_search"`
}

// PersistenceManager owns the on-disk layout under a root directory:
//
//	<root>/
//	  collections/
//	    <name>.meta      JSON metadata
//	    <name>.hnsw      serialized graph
//	    <name>.vectors   raw vectors keyed by id
//	  metadata.json      registry-level bookkeeping
//
// Every write goes through _atomic_write's Go analogue: write to a
// "<file>.tmp" sibling, fsync it, then rename over the target, so a
// crash mid-write never leaves a half-written collection file.
type PersistenceManager struct {
	root string
}

// NewPersistenceManager ensures root/collections exists and returns a
// manager bound to it.
func NewPersistenceManager(root string) (*PersistenceManager, error) {
	if err := os.MkdirAll(filepath.Join(root, "collections"), 0o755); err != nil {
		return nil, fmt.Errorf("vecdb: create data directory: %w", err)
	}
	return &PersistenceManager{root: root}, nil
}

func (pm *PersistenceManager) collectionsDir() string { return filepath.Join(pm.root, "collections") }

func (pm *PersistenceManager) metaPath(name string) string {
	return filepath.Join(pm.collectionsDir(), name+metaSuffix)
}
func (pm *PersistenceManager) hnswPath(name string) string {
	return filepath.Join(pm.collectionsDir(), name+hnswSuffix)
}
func (pm *PersistenceManager) vectorsPath(name string) string {
	return filepath.Join(pm.collectionsDir(), name+vectorsSuffix)
}

// atomicWrite writes data to path via a temp-file-then-rename sequence
// with an fsync before the rename, so readers never observe a partial
// file.
func atomicWrite(path string, data []byte) error {
	tmpName := path + tmpSuffix
	tmp, err := os.OpenFile(tmpName, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("vecdb: create temp file: %w", err)
	}
	defer os.Remove(tmpName) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("vecdb: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("vecdb: fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("vecdb: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("vecdb: rename into place: %w", err)
	}
	return nil
}

// SaveCollection persists c's full state under its own name, writing
// .hnsw, .vectors, and .meta in that order so a reader that sees a
// fresh .meta is guaranteed the .hnsw and .vectors already landed.
func (pm *PersistenceManager) SaveCollection(c *Collection) error {
	st, err := c.snapshot()
	if err != nil {
		return err
	}

	if err := atomicWrite(pm.hnswPath(st.name), st.graphBlob); err != nil {
		return err
	}

	vecBlob, err := serializeVectors(st)
	if err != nil {
		return err
	}
	if err := atomicWrite(pm.vectorsPath(st.name), vecBlob); err != nil {
		return err
	}

	meta := metaFile{
		Version:        FileFormatVersion,
		Name:           st.name,
		Dimension:      st.dimension,
		Metric:         st.metric.String(),
		Count:          st.count,
		NextInternalID: st.nextInternalID,
		M:              st.params.M,
		EfConstruction: st.params.EfConstruction,
		EfSearch:       st.params.EfSearch,
	}
	metaBlob, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("vecdb: marshal metadata: %w", err)
	}
	if err := atomicWrite(pm.metaPath(st.name), metaBlob); err != nil {
		return err
	}

	c.MarkSaved()
	return nil
}

// LoadCollection reconstructs a Collection from disk. It returns
// (nil, nil) if the collection does not exist (any of the three files
// missing), matching the Python original's "partial collections never
// load silently, absent ones just aren't there" behavior.
func (pm *PersistenceManager) LoadCollection(name string) (*Collection, error) {
	metaPath := pm.metaPath(name)
	hnswPath := pm.hnswPath(name)
	vecPath := pm.vectorsPath(name)

	if !fileExists(metaPath) || !fileExists(hnswPath) || !fileExists(vecPath) {
		return nil, nil
	}

	metaBlob, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, newError(KindDeserialization, "read %s: %v", metaPath, err)
	}
	var meta metaFile
	if err := json.Unmarshal(metaBlob, &meta); err != nil {
		return nil, newError(KindDeserialization, "parse %s: %v", metaPath, err)
	}
	if meta.Version > FileFormatVersion {
		return nil, newError(KindDeserialization, "%s has unsupported format version %d", metaPath, meta.Version)
	}
	metric, ok := hnsw.ParseMetric(meta.Metric)
	if !ok {
		return nil, newError(KindDeserialization, "%s has unknown metric %q", metaPath, meta.Metric)
	}

	hnswBlob, err := os.ReadFile(hnswPath)
	if err != nil {
		return nil, newError(KindDeserialization, "read %s: %v", hnswPath, err)
	}
	g, err := hnsw.Deserialize(hnswBlob)
	if err != nil {
		return nil, newError(KindDeserialization, "%s: %v", hnswPath, err)
	}
	if g.Dim() != meta.Dimension {
		return nil, newError(KindDeserialization, "%s dimension %d does not match %s dimension %d", hnswPath, g.Dim(), metaPath, meta.Dimension)
	}

	vecBlob, err := os.ReadFile(vecPath)
	if err != nil {
		return nil, newError(KindDeserialization, "read %s: %v", vecPath, err)
	}
	userToInternal, vectors, err := deserializeVectors(vecBlob, meta.Dimension)
	if err != nil {
		return nil, err
	}

	if len(userToInternal) != meta.Count {
		return nil, newError(KindDeserialization, "%s declares count %d but vectors file has %d entries", metaPath, meta.Count, len(userToInternal))
	}
	if err := validateBijection(userToInternal, meta.NextInternalID); err != nil {
		return nil, err
	}

	params := HNSWParams{M: meta.M, EfConstruction: meta.EfConstruction, EfSearch: meta.EfSearch}
	return fromState(meta.Name, meta.Dimension, metric, params, g, userToInternal, meta.NextInternalID, vectors), nil
}

// validateBijection checks that userToInternal maps distinct user ids
// to distinct internal ids (no internal id shared by two user ids) and
// that every internal id is below nextInternalID, as required of a
// collection reconstructed from disk.
func validateBijection(userToInternal map[int64]uint64, nextInternalID uint64) error {
	seen := make(map[uint64]int64, len(userToInternal))
	for uid, iid := range userToInternal {
		if other, dup := seen[iid]; dup {
			return newError(KindDeserialization, "internal id %d is assigned to both user id %d and user id %d", iid, other, uid)
		}
		seen[iid] = uid
		if iid >= nextInternalID {
			return newError(KindDeserialization, "internal id %d is not less than next_internal_id %d", iid, nextInternalID)
		}
	}
	return nil
}

// DeleteCollection removes any of the three on-disk files for name,
// reporting whether at least one existed.
func (pm *PersistenceManager) DeleteCollection(name string) bool {
	deleted := false
	for _, p := range []string{pm.metaPath(name), pm.hnswPath(name), pm.vectorsPath(name)} {
		if err := os.Remove(p); err == nil {
			deleted = true
		}
	}
	return deleted
}

// ListCollections returns the sorted names of collections with a
// present .meta file.
func (pm *PersistenceManager) ListCollections() ([]string, error) {
	entries, err := os.ReadDir(pm.collectionsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("vecdb: list collections: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		n := e.Name()
		if filepath.Ext(n) == metaSuffix {
			names = append(names, n[:len(n)-len(metaSuffix)])
		}
	}
	sort.Strings(names)
	return names, nil
}

// SaveRegistryMetadata writes the root-level metadata.json.
func (pm *PersistenceManager) SaveRegistryMetadata(names []string) error {
	blob, err := json.MarshalIndent(map[string]interface{}{"collections": names}, "", "  ")
	if err != nil {
		return fmt.Errorf("vecdb: marshal registry metadata: %w", err)
	}
	return atomicWrite(filepath.Join(pm.root, "metadata.json"), blob)
}

// LoadRegistryMetadata reads root-level metadata.json, returning an
// empty map if it is absent or unparsable (matching the Python
// original, which swallows a corrupt metadata.json rather than
// failing startup over what is purely advisory bookkeeping).
func (pm *PersistenceManager) LoadRegistryMetadata() map[string]interface{} {
	blob, err := os.ReadFile(filepath.Join(pm.root, "metadata.json"))
	if err != nil {
		return map[string]interface{}{}
	}
	var out map[string]interface{}
	if err := json.Unmarshal(blob, &out); err != nil {
		return map[string]interface{}{}
	}
	return out
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// serializeVectors encodes the raw-vector file:
//
//	uint32 version
//	uint64 count
//	uint32 dimension
//	--- per vector, sorted by internal id for reproducibility ---
//	int64  userID
//	uint64 internalID
//	float32 vec[dimension]
func serializeVectors(st state) ([]byte, error) {
	type entry struct {
		userID     int64
		internalID uint64
	}
	entries := make([]entry, 0, len(st.userToInternal))
	for uid, iid := range st.userToInternal {
		entries = append(entries, entry{userID: uid, internalID: iid})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].internalID < entries[j].internalID })

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, uint32(FileFormatVersion)); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, uint64(len(entries))); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, uint32(st.dimension)); err != nil {
		return nil, err
	}
	for _, e := range entries {
		vec := st.vectors[e.userID]
		if err := binary.Write(&buf, binary.LittleEndian, e.userID); err != nil {
			return nil, err
		}
		if err := binary.Write(&buf, binary.LittleEndian, e.internalID); err != nil {
			return nil, err
		}
		for _, f := range vec {
			if err := binary.Write(&buf, binary.LittleEndian, f); err != nil {
				return nil, err
			}
		}
	}
	return buf.Bytes(), nil
}

const vectorsHeaderSize = 4 + 8 + 4

func deserializeVectors(data []byte, expectedDimension int) (map[int64]uint64, map[int64][]float32, error) {
	if len(data) < vectorsHeaderSize {
		return nil, nil, newError(KindDeserialization, "vectors file truncated: missing header")
	}
	r := bytes.NewReader(data)
	var version uint32
	var count uint64
	var dimension uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, nil, newError(KindDeserialization, "read vectors version: %v", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, nil, newError(KindDeserialization, "read vectors count: %v", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &dimension); err != nil {
		return nil, nil, newError(KindDeserialization, "read vectors dimension: %v", err)
	}
	if version > FileFormatVersion {
		return nil, nil, newError(KindDeserialization, "vectors file has unsupported version %d", version)
	}
	if int(dimension) != expectedDimension {
		return nil, nil, newError(KindDeserialization, "vectors file dimension %d does not match expected %d", dimension, expectedDimension)
	}

	vectorSize := int64(8+8) + int64(dimension)*4
	expectedSize := int64(vectorsHeaderSize) + int64(count)*vectorSize
	if int64(len(data)) < expectedSize {
		return nil, nil, newError(KindDeserialization, "vectors file truncated: expected %d bytes, got %d", expectedSize, len(data))
	}

	userToInternal := make(map[int64]uint64, count)
	vectors := make(map[int64][]float32, count)
	for i := uint64(0); i < count; i++ {
		var userID int64
		var internalID uint64
		if err := binary.Read(r, binary.LittleEndian, &userID); err != nil {
			return nil, nil, newError(KindDeserialization, "read vector %d user id: %v", i, err)
		}
		if err := binary.Read(r, binary.LittleEndian, &internalID); err != nil {
			return nil, nil, newError(KindDeserialization, "read vector %d internal id: %v", i, err)
		}
		vec := make([]float32, dimension)
		for j := range vec {
			if err := binary.Read(r, binary.LittleEndian, &vec[j]); err != nil {
				return nil, nil, newError(KindDeserialization, "read vector %d component %d: %v", i, j, err)
			}
		}
		userToInternal[userID] = internalID
		vectors[userID] = vec
	}
	return userToInternal, vectors, nil
}
