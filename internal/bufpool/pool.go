// Package bufpool is the shared vertex/index arena every region mesh lives in.
// Each arena is a buddy allocator: power-of-two blocks split on demand and
// merge with their buddy when freed, so a drained pool can serve its largest
// block again.
package bufpool

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/go-gl/mathgl/mgl32"
)

// VertexStride is the number of float32 per vertex (pos.xyz + normal.xyz).
const VertexStride = 6

var (
	ErrPoolExhausted = errors.New("bufpool: pool exhausted")
	ErrTooLarge      = errors.New("bufpool: allocation larger than the largest block")
	ErrBadHandle     = errors.New("bufpool: invalid handle")
	ErrInvalidConfig = errors.New("bufpool: invalid config")
)

// Config sizes the two arenas in elements (vertices and indices).
type Config struct {
	VertexCapacity int
	IndexCapacity  int
	// MinBlock is the smallest block in elements; rounded up to a power of two.
	MinBlock int
	// MaxVertices and MaxIndices cap a single allocation, normally the meshing
	// worst case for one region. Zero means the arena capacity.
	MaxVertices int
	MaxIndices  int
}

// Range is a span of elements inside one arena.
type Range struct {
	Offset int
	Count  int
}

// Handle identifies one allocation. The zero Handle is invalid.
type Handle struct {
	id       uint32
	Vertices Range
	Indices  Range
}

// Valid reports whether h came from Alloc.
func (h Handle) Valid() bool { return h.id != 0 }

type arena struct {
	capacity int
	minShift int
	maxClass int
	top      int // high-water mark of allocated ends
	free     [][]int
	freeAt   map[int]int // free block offset -> index in free[class]
	inUse    int
	dirty    []Range
}

func newArena(capacity, minBlock, maxAlloc int) (*arena, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: capacity %d", ErrInvalidConfig, capacity)
	}
	minShift := bits.Len(uint(max(minBlock, 1) - 1))
	if maxAlloc <= 0 || maxAlloc > capacity {
		maxAlloc = capacity
	}
	maxClass := max(bits.Len(uint(maxAlloc-1))-minShift, 0)
	if 1<<(maxClass+minShift) > capacity {
		return nil, fmt.Errorf("%w: largest block %d exceeds capacity %d", ErrInvalidConfig, 1<<(maxClass+minShift), capacity)
	}
	a := &arena{
		capacity: capacity,
		minShift: minShift,
		maxClass: maxClass,
		free:     make([][]int, maxClass+1),
		freeAt:   make(map[int]int),
	}
	// Tile the arena with aligned roots, largest first. A tail shorter than
	// the smallest block is never handed out.
	off := 0
	for c := maxClass; c >= 0; c-- {
		for size := a.blockSize(c); off+size <= capacity; off += size {
			a.push(c, off)
		}
	}
	return a, nil
}

func (a *arena) class(n int) int {
	if n <= 1<<a.minShift {
		return 0
	}
	return bits.Len(uint(n-1)) - a.minShift
}

func (a *arena) blockSize(class int) int {
	return 1 << (class + a.minShift)
}

func (a *arena) push(c, off int) {
	a.freeAt[off] = len(a.free[c])
	a.free[c] = append(a.free[c], off)
}

// pop removes the lowest free block of class c.
func (a *arena) pop(c int) int {
	off := a.free[c][0]
	for _, o := range a.free[c][1:] {
		off = min(off, o)
	}
	a.take(c, off)
	return off
}

// take removes the free block of class c at off, reporting whether it was
// there.
func (a *arena) take(c, off int) bool {
	i, ok := a.freeAt[off]
	if !ok || i >= len(a.free[c]) || a.free[c][i] != off {
		return false
	}
	l := len(a.free[c]) - 1
	if i != l {
		moved := a.free[c][l]
		a.free[c][i] = moved
		a.freeAt[moved] = i
	}
	a.free[c] = a.free[c][:l]
	delete(a.freeAt, off)
	return true
}

func (a *arena) alloc(n int) (int, error) {
	if n == 0 {
		return -1, nil
	}
	c := a.class(n)
	if c > a.maxClass {
		return 0, fmt.Errorf("%w: %d elements, largest block %d", ErrTooLarge, n, a.blockSize(a.maxClass))
	}
	size := a.blockSize(c)
	from := c
	for from <= a.maxClass && len(a.free[from]) == 0 {
		from++
	}
	if from > a.maxClass {
		return 0, fmt.Errorf("%w: need %d elements, %d of %d in use", ErrPoolExhausted, size, a.inUse, a.capacity)
	}
	off := a.pop(from)
	for from > c {
		from--
		a.push(from, off+a.blockSize(from))
	}
	a.inUse += size
	a.top = max(a.top, off+size)
	return off, nil
}

func (a *arena) release(off, n int) {
	if off < 0 || n == 0 {
		return
	}
	c := a.class(n)
	a.inUse -= a.blockSize(c)
	for c < a.maxClass {
		buddy := off ^ a.blockSize(c)
		if !a.take(c, buddy) {
			break
		}
		off = min(off, buddy)
		c++
	}
	a.push(c, off)
}

// Pool owns the vertex and index arenas.
type Pool struct {
	vertices []float32
	indices  []uint32
	va, ia   *arena
	live     map[uint32]Handle
	nextID   uint32
}

// Stats describes arena usage in elements.
type Stats struct {
	Allocations    int
	VertexInUse    int
	VertexCarved   int
	VertexCapacity int
	IndexInUse     int
	IndexCarved    int
	IndexCapacity  int
}

// New validates cfg and allocates both arenas up front.
func New(cfg Config) (*Pool, error) {
	va, err := newArena(cfg.VertexCapacity, cfg.MinBlock, cfg.MaxVertices)
	if err != nil {
		return nil, fmt.Errorf("vertex arena: %w", err)
	}
	ia, err := newArena(cfg.IndexCapacity, cfg.MinBlock, cfg.MaxIndices)
	if err != nil {
		return nil, fmt.Errorf("index arena: %w", err)
	}
	return &Pool{
		vertices: make([]float32, cfg.VertexCapacity*VertexStride),
		indices:  make([]uint32, cfg.IndexCapacity),
		va:       va,
		ia:       ia,
		live:     make(map[uint32]Handle),
	}, nil
}

// Alloc reserves room for a mesh. On failure nothing is reserved.
func (p *Pool) Alloc(vertexCount, indexCount int) (Handle, error) {
	voff, err := p.va.alloc(vertexCount)
	if err != nil {
		return Handle{}, err
	}
	ioff, err := p.ia.alloc(indexCount)
	if err != nil {
		p.va.release(voff, vertexCount)
		return Handle{}, err
	}
	p.nextID++
	if p.nextID == 0 {
		p.nextID = 1
	}
	h := Handle{
		id:       p.nextID,
		Vertices: Range{Offset: voff, Count: vertexCount},
		Indices:  Range{Offset: ioff, Count: indexCount},
	}
	p.live[h.id] = h
	return h, nil
}

// Free returns h's blocks to their arenas, merging free buddies. Freeing an unknown or
// already freed handle is a no-op.
func (p *Pool) Free(h Handle) {
	if _, ok := p.live[h.id]; !ok {
		return
	}
	delete(p.live, h.id)
	p.va.release(h.Vertices.Offset, h.Vertices.Count)
	p.ia.release(h.Indices.Offset, h.Indices.Count)
}

// Write copies a mesh into h's blocks. Indices are stored relative to the
// handle's first vertex; draw calls add Vertices.Offset as the base vertex.
func (p *Pool) Write(h Handle, positions, normals []mgl32.Vec3, indices []uint32) error {
	if _, ok := p.live[h.id]; !ok {
		return ErrBadHandle
	}
	if len(positions) != h.Vertices.Count || len(normals) != len(positions) || len(indices) != h.Indices.Count {
		return fmt.Errorf("%w: mesh %d/%d/%d does not match handle %d/%d",
			ErrBadHandle, len(positions), len(normals), len(indices), h.Vertices.Count, h.Indices.Count)
	}
	if h.Vertices.Count > 0 {
		dst := p.vertices[h.Vertices.Offset*VertexStride:]
		for i, pos := range positions {
			n := normals[i]
			o := i * VertexStride
			dst[o], dst[o+1], dst[o+2] = pos[0], pos[1], pos[2]
			dst[o+3], dst[o+4], dst[o+5] = n[0], n[1], n[2]
		}
		p.va.dirty = append(p.va.dirty, h.Vertices)
	}
	if h.Indices.Count > 0 {
		copy(p.indices[h.Indices.Offset:], indices)
		p.ia.dirty = append(p.ia.dirty, h.Indices)
	}
	return nil
}

// Vertices exposes the interleaved vertex arena.
func (p *Pool) Vertices() []float32 { return p.vertices }

// Indices exposes the index arena.
func (p *Pool) Indices() []uint32 { return p.indices }

// VertexSpan returns h's interleaved vertex floats.
func (p *Pool) VertexSpan(h Handle) []float32 {
	if h.Vertices.Count == 0 {
		return nil
	}
	return p.vertices[h.Vertices.Offset*VertexStride : (h.Vertices.Offset+h.Vertices.Count)*VertexStride]
}

// IndexSpan returns h's indices.
func (p *Pool) IndexSpan(h Handle) []uint32 {
	if h.Indices.Count == 0 {
		return nil
	}
	return p.indices[h.Indices.Offset : h.Indices.Offset+h.Indices.Count]
}

// DrainDirty returns the element ranges written since the last call.
func (p *Pool) DrainDirty() (vertices, indices []Range) {
	vertices, indices = p.va.dirty, p.ia.dirty
	p.va.dirty, p.ia.dirty = nil, nil
	return vertices, indices
}

// Stats reports current usage.
func (p *Pool) Stats() Stats {
	return Stats{
		Allocations:    len(p.live),
		VertexInUse:    p.va.inUse,
		VertexCarved:   p.va.top,
		VertexCapacity: p.va.capacity,
		IndexInUse:     p.ia.inUse,
		IndexCarved:    p.ia.top,
		IndexCapacity:  p.ia.capacity,
	}
}

// MaxBlock returns the largest single allocation in vertices and indices.
func (p *Pool) MaxBlock() (vertices, indices int) {
	return p.va.blockSize(p.va.maxClass), p.ia.blockSize(p.ia.maxClass)
}
