package hnsw

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// magic identifies a serialized graph blob.
var magic = [4]byte{'V', 'H', 'N', 'W'}

const formatVersion = uint16(1)

// Serialize encodes the graph into a self-describing binary blob.
//
// Layout:
//
//	[4]byte  magic
//	uint16   version
//	uint8    metric
//	uint64   dim
//	uint64   m
//	uint64   efConstruction
//	uint64   efSearch
//	uint64   rngState
//	uint8    hasEntry
//	uint64   entryPoint
//	int64    topLevel
//	uint64   nodeCount
//	--- per node ---
//	uint64   id
//	uint8    removed
//	uint32   vecLen
//	float32  vec[vecLen]
//	uint8    levelCount (= level + 1)
//	--- per level in node ---
//	uint32   neighborCount
//	uint64   neighbor[neighborCount]
func (g *Graph) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	w := &binaryWriter{w: &buf}

	w.write(magic)
	w.writeU16(formatVersion)
	w.writeU8(uint8(g.metric))
	w.writeU64(uint64(g.dim))
	w.writeU64(uint64(g.m))
	w.writeU64(uint64(g.efConstruction))
	w.writeU64(uint64(g.efSearch))
	w.writeU64(g.rng.State())
	if g.hasEntry {
		w.writeU8(1)
	} else {
		w.writeU8(0)
	}
	w.writeU64(g.entryPoint)
	w.writeI64(int64(g.topLevel))
	w.writeU64(uint64(len(g.nodes)))

	for _, n := range g.nodes {
		w.writeU64(n.id)
		if n.removed {
			w.writeU8(1)
		} else {
			w.writeU8(0)
		}
		w.writeU32(uint32(len(n.vec)))
		for _, v := range n.vec {
			w.writeF32(v)
		}
		w.writeU8(uint8(len(n.neighbors)))
		for _, layer := range n.neighbors {
			w.writeU32(uint32(len(layer)))
			for _, nb := range layer {
				w.writeU64(nb)
			}
		}
	}

	if w.err != nil {
		return nil, fmt.Errorf("hnsw: serialize: %w", w.err)
	}
	return buf.Bytes(), nil
}

// Deserialize reconstructs a graph from a blob previously produced by
// Serialize.
func Deserialize(data []byte) (*Graph, error) {
	r := &binaryReader{r: bytes.NewReader(data)}

	var gotMagic [4]byte
	r.read(&gotMagic)
	if r.err == nil && gotMagic != magic {
		return nil, errWrap(ErrDeserialization, "bad magic bytes in hnsw blob")
	}

	version := r.readU16()
	if r.err == nil && version > formatVersion {
		return nil, errWrap(ErrDeserialization, "unsupported hnsw format version")
	}

	metric := Metric(r.readU8())
	dim := int(r.readU64())
	m := int(r.readU64())
	efConstruction := int(r.readU64())
	efSearch := int(r.readU64())
	rngState := r.readU64()
	hasEntry := r.readU8() != 0
	entryPoint := r.readU64()
	topLevel := int(r.readI64())
	nodeCount := r.readU64()

	if r.err != nil {
		return nil, errWrap(ErrDeserialization, fmt.Sprintf("read header: %v", r.err))
	}

	g := &Graph{
		dim:            dim,
		metric:         metric,
		m:              m,
		efConstruction: efConstruction,
		efSearch:       efSearch,
		mL:             1.0,
		rng:            newRNGSource(1),
		nodes:          make(map[uint64]*node, nodeCount),
		entryPoint:     entryPoint,
		hasEntry:       hasEntry,
		topLevel:       topLevel,
	}
	g.rng.SetState(rngState)
	if m > 1 {
		g.mL = 1.0 / math.Log(float64(m))
	}

	for i := uint64(0); i < nodeCount; i++ {
		id := r.readU64()
		removed := r.readU8() != 0
		vecLen := int(r.readU32())
		vec := make([]float32, vecLen)
		for j := range vec {
			vec[j] = r.readF32()
		}
		levelCount := int(r.readU8())
		neighbors := make([][]uint64, levelCount)
		for l := range neighbors {
			nbCount := int(r.readU32())
			neighbors[l] = make([]uint64, nbCount)
			for j := range neighbors[l] {
				neighbors[l][j] = r.readU64()
			}
		}
		if r.err != nil {
			return nil, errWrap(ErrDeserialization, fmt.Sprintf("read node %d: %v", i, r.err))
		}
		n := &node{id: id, vec: vec, neighbors: neighbors, removed: removed}
		g.nodes[id] = n
		if !removed {
			g.liveCount++
		}
	}

	if err := g.validateTopology(); err != nil {
		return nil, err
	}

	return g, nil
}

// validateTopology rejects a deserialized graph whose neighbor lists
// reference unknown ids or exceed their layer's cap, so a corrupted
// blob fails loudly here instead of panicking or silently misbehaving
// later in greedyDescend/searchLayer.
func (g *Graph) validateTopology() error {
	for id, n := range g.nodes {
		for l, layer := range n.neighbors {
			if len(layer) > g.layerCap(l) {
				return errWrap(ErrDeserialization, fmt.Sprintf("node %d layer %d has %d neighbors, exceeding cap %d", id, l, len(layer), g.layerCap(l)))
			}
			for _, nb := range layer {
				if _, ok := g.nodes[nb]; !ok {
					return errWrap(ErrDeserialization, fmt.Sprintf("node %d layer %d references unknown neighbor %d", id, l, nb))
				}
			}
		}
	}
	return nil
}

// binaryWriter wraps an io.Writer and accumulates the first error.
type binaryWriter struct {
	w   io.Writer
	err error
}

func (bw *binaryWriter) write(v interface{}) {
	if bw.err != nil {
		return
	}
	bw.err = binary.Write(bw.w, binary.LittleEndian, v)
}
func (bw *binaryWriter) writeU8(v uint8)    { bw.write(v) }
func (bw *binaryWriter) writeU16(v uint16)  { bw.write(v) }
func (bw *binaryWriter) writeU32(v uint32)  { bw.write(v) }
func (bw *binaryWriter) writeU64(v uint64)  { bw.write(v) }
func (bw *binaryWriter) writeI64(v int64)   { bw.write(v) }
func (bw *binaryWriter) writeF32(v float32) { bw.write(v) }

// binaryReader wraps an io.Reader and accumulates the first error.
type binaryReader struct {
	r   io.Reader
	err error
}

func (br *binaryReader) read(v interface{}) {
	if br.err != nil {
		return
	}
	br.err = binary.Read(br.r, binary.LittleEndian, v)
}
func (br *binaryReader) readU8() uint8 {
	var v uint8
	br.read(&v)
	return v
}
func (br *binaryReader) readU16() uint16 {
	var v uint16
	br.read(&v)
	return v
}
func (br *binaryReader) readU32() uint32 {
	var v uint32
	br.read(&v)
	return v
}
func (br *binaryReader) readU64() uint64 {
	var v uint64
	br.read(&v)
	return v
}
func (br *binaryReader) readI64() int64 {
	var v int64
	br.read(&v)
	return v
}
func (br *binaryReader) readF32() float32 {
	var v float32
	br.read(&v)
	return v
}
