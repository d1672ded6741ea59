package meshing

import (
	"voxterrain/internal/gpu"
	"voxterrain/internal/profiling"
)

// Software marches the block on the calling goroutine.
type Software struct {
	algo Algorithm
}

// NewSoftware returns a synchronous backend using algo.
func NewSoftware(algo Algorithm) *Software {
	return &Software{algo: algo}
}

func (s *Software) Name() string { return "software" }
func (s *Software) Busy() bool   { return false }
func (s *Software) Close()       {}

// Extract returns an already resolved future.
func (s *Software) Extract(_ *gpu.Context, req Request) (Future, error) {
	m, err := March(req, s.algo)
	if err != nil {
		return nil, err
	}
	return Resolved(m, nil), nil
}

// March extracts the isosurface of req in one pass. Vertices are shared
// between triangles through a (sample, direction) lookup.
func March(req Request, algo Algorithm) (*MeshData, error) {
	defer profiling.Track("meshing.March")()
	if err := req.validate(); err != nil {
		return nil, err
	}
	b := newBlock(req)
	t := tableFor(algo)
	cells := req.Dim - 1

	lookup := make(map[int]uint32)
	var raw rawMesh
	vertexFor := func(p [3]int, d uint8) uint32 {
		key := b.index(p[0], p[1], p[2])*8 + int(d)
		if v, ok := lookup[key]; ok {
			return v
		}
		pos, nrm, mat := b.edgeVertex(p, d)
		v := uint32(len(raw.positions))
		raw.positions = append(raw.positions, pos)
		raw.normals = append(raw.normals, nrm)
		raw.materials = append(raw.materials, mat)
		lookup[key] = v
		return v
	}

	for cx := 0; cx < cells; cx++ {
		for cy := 0; cy < cells; cy++ {
			for cz := 0; cz < cells; cz++ {
				code := b.caseCode(cx, cy, cz)
				if code == 0 || code == 255 {
					continue
				}
				for _, tri := range t.tris[code] {
					for _, e := range tri {
						o := cornerOffset(e.a)
						raw.indices = append(raw.indices, vertexFor([3]int{cx + o[0], cy + o[1], cz + o[2]}, e.dir()))
					}
				}
			}
		}
	}
	return finalize(raw, req), nil
}
