// Package glrender mirrors the terrain buffer pool into OpenGL buffers and
// draws visible regions out of them with base-vertex draw calls.
package glrender

import (
	"errors"
	"slices"
	"unsafe"

	"voxterrain/internal/bufpool"
	"voxterrain/internal/gpu"
	"voxterrain/internal/profiling"
	"voxterrain/internal/terrain"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"
)

var ErrShader = errors.New("glrender: shader")

// mergeGap is how many untouched elements may sit between two dirty ranges
// before they are uploaded separately.
const mergeGap = 1024

const (
	floatSize = int(unsafe.Sizeof(float32(0)))
	indexSize = int(unsafe.Sizeof(uint32(0)))
)

// lodTints colours each level so LOD boundaries are visible.
var lodTints = []mgl32.Vec3{
	{0.45, 0.62, 0.32},
	{0.55, 0.55, 0.35},
	{0.52, 0.45, 0.38},
	{0.45, 0.45, 0.50},
}

// Renderer owns one VBO/EBO pair the size of the pool's arenas. Sync uploads
// what the terrain wrote since the previous frame; Draw implements
// terrain.Renderer.
type Renderer struct {
	pool   *bufpool.Pool
	shader *shader
	vao    uint32
	vbo    uint32
	ebo    uint32
	log    *zap.Logger

	// Wireframe draws triangle edges only.
	Wireframe bool
	// FogDistance is the distance at which fog is total.
	FogDistance float32

	drawn     int
	triangles int
	uploaded  int
}

var _ terrain.Renderer = (*Renderer)(nil)

// New creates the GL objects for pool. A current GL 4.1 context is required.
func New(pool *bufpool.Pool, log *zap.Logger) (*Renderer, error) {
	if log == nil {
		log = zap.NewNop()
	}
	sh, err := newShader(vertexShader, fragmentShader)
	if err != nil {
		return nil, err
	}
	r := &Renderer{pool: pool, shader: sh, log: log, FogDistance: 1000}

	gl.GenVertexArrays(1, &r.vao)
	gl.GenBuffers(1, &r.vbo)
	gl.GenBuffers(1, &r.ebo)

	gl.BindVertexArray(r.vao)
	gl.BindBuffer(gl.ARRAY_BUFFER, r.vbo)
	gl.BufferData(gl.ARRAY_BUFFER, len(pool.Vertices())*floatSize, nil, gl.DYNAMIC_DRAW)
	gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, r.ebo)
	gl.BufferData(gl.ELEMENT_ARRAY_BUFFER, len(pool.Indices())*indexSize, nil, gl.DYNAMIC_DRAW)

	stride := int32(bufpool.VertexStride * floatSize)
	gl.EnableVertexAttribArray(0)
	gl.VertexAttribPointer(0, 3, gl.FLOAT, false, stride, gl.PtrOffset(0))
	gl.EnableVertexAttribArray(1)
	gl.VertexAttribPointer(1, 3, gl.FLOAT, false, stride, gl.PtrOffset(3*floatSize))
	gl.BindVertexArray(0)

	log.Info("gl renderer created",
		zap.Int("vertexBytes", len(pool.Vertices())*floatSize),
		zap.Int("indexBytes", len(pool.Indices())*indexSize))
	return r, nil
}

// coalesce sorts ranges and merges those closer than gap elements.
func coalesce(ranges []bufpool.Range, gap int) []bufpool.Range {
	if len(ranges) == 0 {
		return nil
	}
	sorted := slices.Clone(ranges)
	slices.SortFunc(sorted, func(a, b bufpool.Range) int { return a.Offset - b.Offset })
	out := sorted[:1]
	for _, r := range sorted[1:] {
		last := &out[len(out)-1]
		if r.Offset <= last.Offset+last.Count+gap {
			last.Count = max(last.Count, r.Offset+r.Count-last.Offset)
			continue
		}
		out = append(out, r)
	}
	return out
}

// Sync uploads the pool ranges written since the last call.
func (r *Renderer) Sync() {
	defer profiling.Track("glrender.Sync")()
	vertices, indices := r.pool.DrainDirty()
	vdata, idata := r.pool.Vertices(), r.pool.Indices()

	gl.BindBuffer(gl.ARRAY_BUFFER, r.vbo)
	for _, rg := range coalesce(vertices, mergeGap) {
		off := rg.Offset * bufpool.VertexStride
		n := rg.Count * bufpool.VertexStride
		gl.BufferSubData(gl.ARRAY_BUFFER, off*floatSize, n*floatSize, gl.Ptr(&vdata[off]))
		r.uploaded += n * floatSize
	}
	gl.BindBuffer(gl.ARRAY_BUFFER, 0)

	gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, r.ebo)
	for _, rg := range coalesce(indices, mergeGap) {
		gl.BufferSubData(gl.ELEMENT_ARRAY_BUFFER, rg.Offset*indexSize, rg.Count*indexSize, gl.Ptr(&idata[rg.Offset]))
		r.uploaded += rg.Count * indexSize
	}
	gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, 0)
}

// Begin binds the program and buffers for a frame of draws.
func (r *Renderer) Begin(view, proj mgl32.Mat4, eye mgl32.Vec3) {
	r.drawn, r.triangles = 0, 0
	if r.Wireframe {
		gl.PolygonMode(gl.FRONT_AND_BACK, gl.LINE)
	} else {
		gl.PolygonMode(gl.FRONT_AND_BACK, gl.FILL)
	}
	r.shader.use()
	r.shader.setMat4("proj", &proj)
	r.shader.setMat4("view", &view)
	r.shader.setVec3("eye", eye)
	r.shader.setVec3("lightDir", mgl32.Vec3{0.3, 1.0, 0.3}.Normalize())
	r.shader.setFloat("fogDistance", r.FogDistance)
	gl.BindVertexArray(r.vao)
}

// Draw issues one region. Indices are stored relative to the region's first
// vertex, so the vertex offset is passed as the base vertex.
func (r *Renderer) Draw(_ *gpu.Context, call terrain.DrawCall) {
	if call.Indices.Count == 0 {
		return
	}
	r.shader.setMat4("model", &call.Transform)
	r.shader.setVec3("tint", lodTints[min(call.Level, len(lodTints)-1)])
	gl.DrawElementsBaseVertex(gl.TRIANGLES, int32(call.Indices.Count), gl.UNSIGNED_INT,
		gl.PtrOffset(call.Indices.Offset*indexSize), int32(call.Vertices.Offset))
	r.drawn++
	r.triangles += call.Indices.Count / 3
}

// End restores state changed by Begin.
func (r *Renderer) End() {
	gl.BindVertexArray(0)
	gl.PolygonMode(gl.FRONT_AND_BACK, gl.FILL)
}

// FrameStats returns draws and triangles of the last frame and the total
// bytes uploaded so far.
func (r *Renderer) FrameStats() (draws, triangles, uploaded int) {
	return r.drawn, r.triangles, r.uploaded
}

// Dispose releases every GL object.
func (r *Renderer) Dispose() {
	if r.vao != 0 {
		gl.DeleteVertexArrays(1, &r.vao)
		r.vao = 0
	}
	if r.vbo != 0 {
		gl.DeleteBuffers(1, &r.vbo)
		r.vbo = 0
	}
	if r.ebo != 0 {
		gl.DeleteBuffers(1, &r.ebo)
		r.ebo = 0
	}
	r.shader.delete()
}
