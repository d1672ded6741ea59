package meshing

import "github.com/go-gl/mathgl/mgl32"

// block is a read-only view of a dense request volume.
type block struct {
	density []float32
	mats    []uint8
	dim     int
}

func newBlock(req Request) block {
	return block{density: req.Density, mats: req.Materials, dim: req.Dim}
}

func (b block) index(x, y, z int) int {
	return (x*b.dim+y)*b.dim + z
}

func (b block) at(x, y, z int) float32 {
	x = min(max(x, 0), b.dim-1)
	y = min(max(y, 0), b.dim-1)
	z = min(max(z, 0), b.dim-1)
	return b.density[b.index(x, y, z)]
}

func (b block) material(x, y, z int) uint8 {
	if b.mats == nil {
		return 0
	}
	return b.mats[b.index(x, y, z)]
}

func (b block) gradient(x, y, z int) mgl32.Vec3 {
	return mgl32.Vec3{
		(b.at(x+1, y, z) - b.at(x-1, y, z)) * 0.5,
		(b.at(x, y+1, z) - b.at(x, y-1, z)) * 0.5,
		(b.at(x, y, z+1) - b.at(x, y, z-1)) * 0.5,
	}
}

func (b block) caseCode(cx, cy, cz int) int {
	code := 0
	for c := uint8(0); c < 8; c++ {
		o := cornerOffset(c)
		if b.at(cx+o[0], cy+o[1], cz+o[2]) > 0 {
			code |= 1 << c
		}
	}
	return code
}

func step(d uint8) [3]int {
	return [3]int{int(d & 1), int(d>>1) & 1, int(d>>2) & 1}
}

// edgeVertex places a vertex at the zero crossing of the lattice edge leaving
// sample p in direction d. The normal is the negated, interpolated gradient so
// it points from solid toward empty space.
func (b block) edgeVertex(p [3]int, d uint8) (pos, nrm mgl32.Vec3, mat uint8) {
	s := step(d)
	q := [3]int{p[0] + s[0], p[1] + s[1], p[2] + s[2]}
	d0 := b.at(p[0], p[1], p[2])
	d1 := b.at(q[0], q[1], q[2])
	t := float32(0.5)
	if d0 != d1 {
		t = d0 / (d0 - d1)
	}
	pos = mgl32.Vec3{
		float32(p[0]) + t*float32(s[0]),
		float32(p[1]) + t*float32(s[1]),
		float32(p[2]) + t*float32(s[2]),
	}
	g := b.gradient(p[0], p[1], p[2]).Mul(1 - t).Add(b.gradient(q[0], q[1], q[2]).Mul(t))
	if g.Len() > 1e-8 {
		nrm = g.Mul(-1).Normalize()
	} else {
		nrm = mgl32.Vec3{0, 1, 0}
	}
	if d0 > 0 {
		mat = b.material(p[0], p[1], p[2])
	} else {
		mat = b.material(q[0], q[1], q[2])
	}
	return pos, nrm, mat
}

type rawMesh struct {
	positions []mgl32.Vec3
	normals   []mgl32.Vec3
	materials []uint8
	indices   []uint32
}

// finalize drops degenerate triangles, removes vertices no triangle uses,
// flags anchors and applies the request scale.
func finalize(raw rawMesh, req Request) *MeshData {
	out := &MeshData{}
	keep := make([]bool, 0, len(raw.indices)/3)
	for i := 0; i+2 < len(raw.indices); i += 3 {
		a, b, c := raw.indices[i], raw.indices[i+1], raw.indices[i+2]
		ok := a != b && b != c && a != c
		if ok {
			// only exactly flat triangles go; slivers keep the surface closed
			e1 := raw.positions[b].Sub(raw.positions[a])
			e2 := raw.positions[c].Sub(raw.positions[a])
			ok = e1.Cross(e2) != mgl32.Vec3{}
		}
		keep = append(keep, ok)
	}

	remap := make([]int32, len(raw.positions))
	for i := range remap {
		remap[i] = -1
	}
	for t, ok := range keep {
		if !ok {
			continue
		}
		for _, v := range raw.indices[t*3 : t*3+3] {
			remap[v] = 0
		}
	}
	for v, r := range remap {
		if r < 0 {
			continue
		}
		remap[v] = int32(len(out.Positions))
		out.Positions = append(out.Positions, raw.positions[v])
		out.Normals = append(out.Normals, raw.normals[v])
		out.Materials = append(out.Materials, raw.materials[v])
	}
	for t, ok := range keep {
		if !ok {
			continue
		}
		for _, v := range raw.indices[t*3 : t*3+3] {
			out.Indices = append(out.Indices, uint32(remap[v]))
		}
	}

	markAnchors(out, req)
	if s := req.scale(); s != 1 {
		out.Scale(s)
	}
	return out
}

// markAnchors flags vertices near the block border and every vertex of a
// triangle that spans two materials.
func markAnchors(m *MeshData, req Request) {
	m.Anchors = make([]bool, len(m.Positions))
	margin := req.margin()
	hi := float32(req.Dim-1) - margin
	for i, p := range m.Positions {
		for a := 0; a < 3; a++ {
			if p[a] < margin || p[a] > hi {
				m.Anchors[i] = true
				break
			}
		}
	}
	if req.Materials == nil {
		return
	}
	for i := 0; i+2 < len(m.Indices); i += 3 {
		a, b, c := m.Indices[i], m.Indices[i+1], m.Indices[i+2]
		if m.Materials[a] != m.Materials[b] || m.Materials[b] != m.Materials[c] {
			m.Anchors[a], m.Anchors[b], m.Anchors[c] = true, true, true
		}
	}
}
