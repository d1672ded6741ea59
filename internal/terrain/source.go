package terrain

import (
	"voxterrain/internal/bufpool"
	"voxterrain/internal/gpu"
	"voxterrain/internal/voxel"

	"github.com/go-gl/mathgl/mgl32"
)

// Rect is a world-space sample lattice: Size[a] samples starting at Min,
// Step world units apart. Dense buffers for a Rect are laid out
// (x*Size[1]+y)*Size[2]+z.
type Rect struct {
	Min  [3]int
	Size [3]int
	Step int
}

// Len is the number of samples in r.
func (r Rect) Len() int {
	return r.Size[0] * r.Size[1] * r.Size[2]
}

// Box is the world-space extent covered by r's samples.
func (r Rect) Box() voxel.Box {
	var b voxel.Box
	for a := 0; a < 3; a++ {
		b.Min[a] = r.Min[a]
		b.Max[a] = r.Min[a] + (r.Size[a]-1)*r.Step + 1
	}
	return b
}

// DataSource supplies voxel samples. Density > 0 is solid.
type DataSource interface {
	Sample(r Rect, dst []float32)
	SampleMaterials(r Rect, dst []uint8)
	// DirtyRects returns world boxes changed since the last call and forgets them.
	DirtyRects() []voxel.Box
}

// SliceRequest is the next block of data a level needs. Full requests cover
// the whole level grid and are answered with LoadLevel; the others cover one
// face plane and are answered with AppendSlice.
type SliceRequest struct {
	Level int
	Face  voxel.Face
	Full  bool
	Rect  Rect
}

// DrawCall is one visible region. Indices are relative to Vertices.Offset.
type DrawCall struct {
	Level     int
	Slot      [3]int
	Region    int
	Transform mgl32.Mat4
	Vertices  bufpool.Range
	Indices   bufpool.Range
}

// Renderer issues the actual draw calls.
type Renderer interface {
	Draw(ctx *gpu.Context, call DrawCall)
}
