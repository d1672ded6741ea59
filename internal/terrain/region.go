package terrain

import (
	"fmt"

	"voxterrain/internal/bufpool"

	"github.com/go-gl/mathgl/mgl32"
)

// Status is a region's lifecycle state.
type Status uint8

const (
	StatusPool Status = iota
	StatusQueued
	StatusGenerating
	StatusReady
	StatusHidden
	statusCount
)

func (s Status) String() string {
	switch s {
	case StatusPool:
		return "pool"
	case StatusQueued:
		return "queued"
	case StatusGenerating:
		return "generating"
	case StatusReady:
		return "ready"
	case StatusHidden:
		return "hidden"
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// VoxelMesh is a region's slice of the shared buffer pool. A zero
// VertexCount is a valid, empty mesh.
type VoxelMesh struct {
	Handle      bufpool.Handle
	VertexCount int
	IndexCount  int
}

// Region is one arena entry. Regions are created with their Level and only
// ever recycled, never freed.
type Region struct {
	Level int
	// Slot is the fixed ring position; Wrapped is the logical position inside
	// the window, (Slot - wrap) mod subregions.
	Slot    [3]int
	Wrapped [3]int
	Status  Status

	Mesh      VoxelMesh
	Transform mgl32.Mat4
	// Min and Max bound the region in world space.
	Min, Max mgl32.Vec3

	// Draw is false while the region waits for its first mesh at the current position.
	Draw bool
	// NeedsReupdate is set when data changes under an in-flight generation.
	NeedsReupdate bool
	// Empty marks a Pool region whose last generation found no surface.
	Empty bool
	// Hybrid marks a region the cross-LOD generator has already remeshed.
	Hybrid bool

	epoch uint32
}

// HasMesh reports whether the region owns pool storage.
func (r *Region) HasMesh() bool {
	return r.Mesh.Handle.Valid()
}
