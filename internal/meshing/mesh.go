// Package meshing turns dense density blocks into indexed triangle meshes.
// Two backends share one case table and one finishing step: Software runs
// marching cubes inline, Hardware records a multi-pass compute pipeline on a
// gpu.Device and hands back a Future resolved by the submission's fence.
package meshing

import (
	"errors"
	"fmt"

	"voxterrain/internal/gpu"

	"github.com/go-gl/mathgl/mgl32"
)

var (
	ErrNotReady     = errors.New("meshing: result not ready")
	ErrBusy         = errors.New("meshing: backend busy")
	ErrInvalidBlock = errors.New("meshing: invalid request")
	ErrClosed       = errors.New("meshing: backend closed")
)

// MeshData is one region's surface in region-local units. Zero vertices is a
// valid result for homogeneous blocks.
type MeshData struct {
	Positions []mgl32.Vec3
	Normals   []mgl32.Vec3
	Indices   []uint32
	Materials []uint8
	Anchors   []bool
}

// Empty reports whether the mesh has no geometry.
func (m *MeshData) Empty() bool {
	return m == nil || len(m.Positions) == 0 || len(m.Indices) == 0
}

// VertexCount and IndexCount are nil-safe.
func (m *MeshData) VertexCount() int {
	if m == nil {
		return 0
	}
	return len(m.Positions)
}

func (m *MeshData) IndexCount() int {
	if m == nil {
		return 0
	}
	return len(m.Indices)
}

// Scale multiplies every position by s in place.
func (m *MeshData) Scale(s float32) {
	for i := range m.Positions {
		m.Positions[i] = m.Positions[i].Mul(s)
	}
}

// Request is a dense Dim³ block laid out (x*Dim+y)*Dim+z. Density > 0 is solid.
type Request struct {
	Density   []float32
	Materials []uint8
	Dim       int
	// Scale multiplies output positions; zero means 1.
	Scale float32
	// AnchorMargin marks vertices closer than this many samples to the block
	// border as anchors; zero means 1.
	AnchorMargin float32
}

func (r Request) validate() error {
	if r.Dim < 2 {
		return fmt.Errorf("%w: dim %d", ErrInvalidBlock, r.Dim)
	}
	n := r.Dim * r.Dim * r.Dim
	if len(r.Density) != n {
		return fmt.Errorf("%w: %d density samples for dim %d", ErrInvalidBlock, len(r.Density), r.Dim)
	}
	if r.Materials != nil && len(r.Materials) != n {
		return fmt.Errorf("%w: %d material samples for dim %d", ErrInvalidBlock, len(r.Materials), r.Dim)
	}
	return nil
}

func (r Request) scale() float32 {
	if r.Scale == 0 {
		return 1
	}
	return r.Scale
}

func (r Request) margin() float32 {
	if r.AnchorMargin == 0 {
		return 1
	}
	return r.AnchorMargin
}

// Backend extracts region meshes.
type Backend interface {
	Name() string
	// Busy reports that Extract would currently fail with ErrBusy.
	Busy() bool
	Extract(ctx *gpu.Context, req Request) (Future, error)
	Close()
}

// Future is a mesh that may still be in flight.
type Future interface {
	Done() bool
	// Result returns ErrNotReady until Done reports true.
	Result() (*MeshData, error)
	Wait() (*MeshData, error)
}

type resolved struct {
	mesh *MeshData
	err  error
}

// Resolved wraps an already computed mesh.
func Resolved(m *MeshData, err error) Future {
	return &resolved{mesh: m, err: err}
}

func (r *resolved) Done() bool                 { return true }
func (r *resolved) Result() (*MeshData, error) { return r.mesh, r.err }
func (r *resolved) Wait() (*MeshData, error)   { return r.mesh, r.err }

// WorstCase returns the vertex and index counts no dim³ block can exceed.
// Buffer pools are sized from it, so a region mesh never needs truncation.
func WorstCase(dim int, algo Algorithm) (vertices, indices int) {
	if dim < 2 {
		return 0, 0
	}
	t := tableFor(algo)
	dirs := map[uint8]bool{}
	for _, e := range t.edges {
		dirs[e.dir()] = true
	}
	for d := range dirs {
		n := 1
		for a := 0; a < 3; a++ {
			if d&(1<<a) != 0 {
				n *= dim - 1
			} else {
				n *= dim
			}
		}
		vertices += n
	}
	cells := (dim - 1) * (dim - 1) * (dim - 1)
	return vertices, cells * t.maxTris * 3
}

// MaxTrianglesPerCell is the largest triangle count any case emits.
func MaxTrianglesPerCell(algo Algorithm) int {
	return tableFor(algo).maxTris
}
