package meshing

import (
	"fmt"

	"voxterrain/internal/gpu"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"
)

// Hardware records the extraction as compute passes:
//
//	classify   case code per cell
//	candidates one record per crossing edge owned by a cell
//	vertices   interpolated position and gradient normal per candidate
//	splat      candidate index into a (sample, direction) lookup volume
//	indices    case-table triangles resolved through the lookup volume
//
// Counts are turned into offsets by ordered scans, so output order does not
// depend on scheduling. Density is uploaded into one of two ping-pong
// textures; with both held by unsignaled fences the backend is Busy.
type Hardware struct {
	algo   Algorithm
	pair   *gpu.TexturePair
	dim    int
	seq    int
	closed bool
}

// NewHardware returns a compute backend using algo.
func NewHardware(algo Algorithm) *Hardware {
	return &Hardware{algo: algo}
}

func (h *Hardware) Name() string { return "hardware" }

func (h *Hardware) Busy() bool {
	return h.pair != nil && h.pair.Busy()
}

func (h *Hardware) Close() {
	h.closed = true
}

// Extract uploads the block and submits the pipeline. The returned future
// resolves once the submission's fence has signalled.
func (h *Hardware) Extract(ctx *gpu.Context, req Request) (Future, error) {
	if h.closed {
		return nil, ErrClosed
	}
	if ctx == nil || ctx.Device == nil {
		return nil, fmt.Errorf("%w: hardware extraction needs a device", ErrInvalidBlock)
	}
	if err := req.validate(); err != nil {
		return nil, err
	}
	if h.pair == nil || h.dim != req.Dim {
		// in-flight jobs keep their own texture references
		h.pair = gpu.NewTexturePair(req.Dim, req.Dim, req.Dim)
		h.dim = req.Dim
	}
	slot, tex, ok := h.pair.Acquire()
	if !ok {
		return nil, ErrBusy
	}
	copy(tex.Data, req.Density)

	job := &hwJob{
		tex:   tex,
		table: tableFor(h.algo),
		cells: req.Dim - 1,
	}
	var mats []uint8
	if req.Materials != nil {
		mats = append([]uint8(nil), req.Materials...)
	}
	job.blk = block{density: tex.Data, mats: mats, dim: req.Dim}

	h.seq++
	cb := gpu.NewCommandBuffer(fmt.Sprintf("extract-%d", h.seq))
	job.record(cb)
	fence := ctx.Device.Submit(cb)
	h.pair.Hold(slot, fence)
	ctx.Logger().Debug("hardware extraction submitted",
		zap.String("label", cb.Label),
		zap.Int("slot", slot),
		zap.Int("dim", req.Dim))

	return &hwFuture{fence: fence, job: job, req: req}, nil
}

type latticeEdge struct {
	p [3]int
	d uint8
}

type hwJob struct {
	tex   *gpu.Texture3D
	blk   block
	table *caseTable
	cells int

	cases      []uint8
	candCount  []int32
	candOffset []int32
	cand       []latticeEdge
	raw        rawMesh
	splat      []int32
	triCount   []int32
	triOffset  []int32
}

func (j *hwJob) cell(cx, cy, cz int) int {
	return (cx*j.cells+cy)*j.cells + cz
}

func (j *hwJob) owns(cx, cy, cz int, e edgeRef) bool {
	o := cornerOffset(e.a)
	c := [3]int{cx, cy, cz}
	for a := 0; a < 3; a++ {
		if o[a] == 1 && c[a] != j.cells-1 {
			return false
		}
	}
	return true
}

func (j *hwJob) crossing(p [3]int, d uint8) bool {
	s := step(d)
	return (j.blk.at(p[0], p[1], p[2]) > 0) != (j.blk.at(p[0]+s[0], p[1]+s[1], p[2]+s[2]) > 0)
}

// forSlab runs fn over every cell of the x slab gx.
func (j *hwJob) forSlab(gx int, fn func(cx, cy, cz, c int)) {
	for cy := 0; cy < j.cells; cy++ {
		for cz := 0; cz < j.cells; cz++ {
			fn(gx, cy, cz, j.cell(gx, cy, cz))
		}
	}
}

func scan(counts, offsets []int32) int {
	total := int32(0)
	for i, c := range counts {
		offsets[i] = total
		total += c
	}
	return int(total)
}

func (j *hwJob) record(cb *gpu.CommandBuffer) {
	n := j.cells * j.cells * j.cells
	groups := [3]int{j.cells, 1, 1}
	j.cases = make([]uint8, n)
	j.candCount = make([]int32, n)
	j.candOffset = make([]int32, n)
	j.triCount = make([]int32, n)
	j.triOffset = make([]int32, n)

	cb.Dispatch("classify", groups, func(gx, _, _ int) {
		j.forSlab(gx, func(cx, cy, cz, c int) {
			j.cases[c] = uint8(j.blk.caseCode(cx, cy, cz))
		})
	})

	cb.Dispatch("candidates.count", groups, func(gx, _, _ int) {
		j.forSlab(gx, func(cx, cy, cz, c int) {
			if j.cases[c] == 0 || j.cases[c] == 255 {
				return
			}
			count := int32(0)
			for _, e := range j.table.edges {
				o := cornerOffset(e.a)
				if j.owns(cx, cy, cz, e) && j.crossing([3]int{cx + o[0], cy + o[1], cz + o[2]}, e.dir()) {
					count++
				}
			}
			j.candCount[c] = count
		})
	})

	cb.Single("candidates.scan", func() {
		total := scan(j.candCount, j.candOffset)
		j.cand = make([]latticeEdge, total)
		j.raw.positions = make([]mgl32.Vec3, total)
		j.raw.normals = make([]mgl32.Vec3, total)
		j.raw.materials = make([]uint8, total)
		dim := j.blk.dim
		j.splat = make([]int32, dim*dim*dim*8)
		for i := range j.splat {
			j.splat[i] = -1
		}
	})

	cb.Dispatch("candidates.emit", groups, func(gx, _, _ int) {
		j.forSlab(gx, func(cx, cy, cz, c int) {
			if j.candCount[c] == 0 {
				return
			}
			k := j.candOffset[c]
			for _, e := range j.table.edges {
				o := cornerOffset(e.a)
				p := [3]int{cx + o[0], cy + o[1], cz + o[2]}
				if j.owns(cx, cy, cz, e) && j.crossing(p, e.dir()) {
					j.cand[k] = latticeEdge{p: p, d: e.dir()}
					k++
				}
			}
		})
	})

	cb.Dispatch("vertices", groups, func(gx, _, _ int) {
		for i := gx; i < len(j.cand); i += j.cells {
			e := j.cand[i]
			j.raw.positions[i], j.raw.normals[i], j.raw.materials[i] = j.blk.edgeVertex(e.p, e.d)
		}
	})

	cb.Dispatch("splat", groups, func(gx, _, _ int) {
		for i := gx; i < len(j.cand); i += j.cells {
			e := j.cand[i]
			j.splat[j.blk.index(e.p[0], e.p[1], e.p[2])*8+int(e.d)] = int32(i)
		}
	})

	cb.Dispatch("indices.count", groups, func(gx, _, _ int) {
		j.forSlab(gx, func(_, _, _ int, c int) {
			j.triCount[c] = int32(len(j.table.tris[j.cases[c]]))
		})
	})

	cb.Single("indices.scan", func() {
		total := scan(j.triCount, j.triOffset)
		j.raw.indices = make([]uint32, total*3)
	})

	cb.Dispatch("indices.emit", groups, func(gx, _, _ int) {
		j.forSlab(gx, func(cx, cy, cz, c int) {
			k := int(j.triOffset[c]) * 3
			for _, tri := range j.table.tris[j.cases[c]] {
				for _, e := range tri {
					o := cornerOffset(e.a)
					key := j.blk.index(cx+o[0], cy+o[1], cz+o[2])*8 + int(e.dir())
					j.raw.indices[k] = uint32(j.splat[key])
					k++
				}
			}
		})
	})
}

type hwFuture struct {
	fence *gpu.Fence
	job   *hwJob
	req   Request

	mesh *MeshData
	err  error
	read bool
}

func (f *hwFuture) Done() bool {
	return f.fence.Signaled()
}

func (f *hwFuture) Result() (*MeshData, error) {
	if !f.fence.Signaled() {
		return nil, ErrNotReady
	}
	return f.readback()
}

func (f *hwFuture) Wait() (*MeshData, error) {
	_ = f.fence.Wait()
	return f.readback()
}

func (f *hwFuture) readback() (*MeshData, error) {
	if f.read {
		return f.mesh, f.err
	}
	f.read = true
	if err := f.fence.Err(); err != nil {
		f.err = fmt.Errorf("meshing: %s: %w", f.fence.Label(), err)
		return nil, f.err
	}
	f.mesh = finalize(f.job.raw, f.req)
	f.job = nil
	return f.mesh, nil
}
