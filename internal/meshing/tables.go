package meshing

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// Algorithm selects the cell polygonisation scheme.
type Algorithm uint8

const (
	MarchingCubes Algorithm = iota
	MarchingTetrahedra
)

func (a Algorithm) String() string {
	switch a {
	case MarchingCubes:
		return "marching-cubes"
	case MarchingTetrahedra:
		return "marching-tetrahedra"
	}
	return fmt.Sprintf("algorithm(%d)", a)
}

// ParseAlgorithm accepts the names produced by String plus the short forms "mc" and "mt".
func ParseAlgorithm(s string) (Algorithm, error) {
	switch s {
	case "marching-cubes", "mc", "":
		return MarchingCubes, nil
	case "marching-tetrahedra", "mt":
		return MarchingTetrahedra, nil
	}
	return 0, fmt.Errorf("meshing: unknown algorithm %q", s)
}

// Cube corner i sits at (i&1, (i>>1)&1, (i>>2)&1).
func cornerOffset(c uint8) [3]int {
	return [3]int{int(c & 1), int(c>>1) & 1, int(c>>2) & 1}
}

func cornerVec(c uint8) mgl32.Vec3 {
	o := cornerOffset(c)
	return mgl32.Vec3{float32(o[0]), float32(o[1]), float32(o[2])}
}

// edgeRef is a cell edge between corners a and b where b's bits are a
// superset of a's. On the sample lattice it is the edge leaving sample
// cell+offset(a) in direction a^b.
type edgeRef struct {
	a, b uint8
}

func (e edgeRef) dir() uint8 { return e.a ^ e.b }

func (e edgeRef) midpoint() mgl32.Vec3 {
	return cornerVec(e.a).Add(cornerVec(e.b)).Mul(0.5)
}

type caseTable struct {
	algo Algorithm
	// edges lists every edge the scheme can place a vertex on, in emission order.
	edges   []edgeRef
	tris    [256][][3]edgeRef
	maxTris int
}

var tables [2]*caseTable

func init() {
	tables[MarchingCubes] = buildCubeTable()
	tables[MarchingTetrahedra] = buildTetraTable()
}

func tableFor(a Algorithm) *caseTable {
	if int(a) < len(tables) {
		return tables[a]
	}
	return tables[MarchingCubes]
}

func inside(code int, c uint8) bool {
	return code&(1<<c) != 0
}

// outward sums, over the loop's edges, the direction from the inside corner
// to the outside corner. The surface normal must agree with it.
func outward(code int, loop []edgeRef) mgl32.Vec3 {
	var o mgl32.Vec3
	for _, e := range loop {
		in, out := e.a, e.b
		if !inside(code, in) {
			in, out = out, in
		}
		o = o.Add(cornerVec(out).Sub(cornerVec(in)))
	}
	return o
}

// newell returns the polygon normal of the loop's edge midpoints.
func newell(loop []edgeRef) mgl32.Vec3 {
	var n mgl32.Vec3
	for i := range loop {
		p := loop[i].midpoint()
		q := loop[(i+1)%len(loop)].midpoint()
		n = n.Add(p.Cross(q))
	}
	return n
}

func orient(code int, loop []edgeRef) {
	if newell(loop).Dot(outward(code, loop)) < 0 {
		for i, j := 0, len(loop)-1; i < j; i, j = i+1, j-1 {
			loop[i], loop[j] = loop[j], loop[i]
		}
	}
}

func makeEdge(a, b uint8) edgeRef {
	if a > b {
		a, b = b, a
	}
	return edgeRef{a: a, b: b}
}

// buildCubeTable derives the marching cubes triangulation by tracing the
// iso-contour across each cube face and fanning every closed loop. On a face
// with diagonally opposite inside corners the inside corners are kept apart,
// so neighbouring cells always agree on the shared face.
func buildCubeTable() *caseTable {
	t := &caseTable{algo: MarchingCubes}
	for axis := 0; axis < 3; axis++ {
		for c := uint8(0); c < 8; c++ {
			if c&(1<<axis) == 0 {
				t.edges = append(t.edges, makeEdge(c, c|1<<axis))
			}
		}
	}

	for code := 1; code < 255; code++ {
		links := map[edgeRef][]edgeRef{}
		link := func(e1, e2 edgeRef) {
			links[e1] = append(links[e1], e2)
			links[e2] = append(links[e2], e1)
		}
		for axis := 0; axis < 3; axis++ {
			u, v := (axis+1)%3, (axis+2)%3
			for side := uint8(0); side < 2; side++ {
				base := side << axis
				ring := [4]uint8{
					base,
					base | 1<<u,
					base | 1<<u | 1<<v,
					base | 1<<v,
				}
				var crossing []int
				for i := 0; i < 4; i++ {
					if inside(code, ring[i]) != inside(code, ring[(i+1)%4]) {
						crossing = append(crossing, i)
					}
				}
				edge := func(i int) edgeRef { return makeEdge(ring[i%4], ring[(i+1)%4]) }
				switch len(crossing) {
				case 2:
					link(edge(crossing[0]), edge(crossing[1]))
				case 4:
					for i := 0; i < 4; i++ {
						if inside(code, ring[i]) {
							link(edge(i+3), edge(i))
						}
					}
				}
			}
		}

		visited := map[edgeRef]bool{}
		for _, start := range t.edges {
			if _, ok := links[start]; !ok || visited[start] {
				continue
			}
			loop := []edgeRef{start}
			visited[start] = true
			prev, cur := start, links[start][0]
			for cur != start {
				loop = append(loop, cur)
				visited[cur] = true
				next := links[cur][0]
				if next == prev {
					next = links[cur][1]
				}
				prev, cur = cur, next
			}
			orient(code, loop)
			for i := 1; i+1 < len(loop); i++ {
				t.tris[code] = append(t.tris[code], [3]edgeRef{loop[0], loop[i], loop[i+1]})
			}
		}
		t.maxTris = max(t.maxTris, len(t.tris[code]))
	}
	return t
}

// kuhnTetrahedra splits the cube into six tetrahedra sharing the 0→7 diagonal,
// one per axis ordering. Every edge is monotone, so the split tiles space
// consistently across neighbouring cells.
func kuhnTetrahedra() [6][4]uint8 {
	perms := [6][3]uint8{{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0}}
	var out [6][4]uint8
	for i, p := range perms {
		c1 := uint8(1) << p[0]
		c2 := c1 | 1<<p[1]
		out[i] = [4]uint8{0, c1, c2, 7}
	}
	return out
}

func buildTetraTable() *caseTable {
	t := &caseTable{algo: MarchingTetrahedra}
	tets := kuhnTetrahedra()
	seen := map[edgeRef]bool{}
	for _, tet := range tets {
		for i := 0; i < 4; i++ {
			for j := i + 1; j < 4; j++ {
				e := makeEdge(tet[i], tet[j])
				if !seen[e] {
					seen[e] = true
					t.edges = append(t.edges, e)
				}
			}
		}
	}

	for code := 1; code < 255; code++ {
		for _, tet := range tets {
			var in, out []uint8
			for _, c := range tet {
				if inside(code, c) {
					in = append(in, c)
				} else {
					out = append(out, c)
				}
			}
			var polys [][]edgeRef
			switch len(in) {
			case 1:
				polys = append(polys, []edgeRef{makeEdge(in[0], out[0]), makeEdge(in[0], out[1]), makeEdge(in[0], out[2])})
			case 3:
				polys = append(polys, []edgeRef{makeEdge(out[0], in[0]), makeEdge(out[0], in[1]), makeEdge(out[0], in[2])})
			case 2:
				q := []edgeRef{
					makeEdge(in[0], out[0]),
					makeEdge(in[0], out[1]),
					makeEdge(in[1], out[1]),
					makeEdge(in[1], out[0]),
				}
				polys = append(polys, []edgeRef{q[0], q[1], q[2]}, []edgeRef{q[0], q[2], q[3]})
			}
			for _, p := range polys {
				orient(code, p)
				t.tris[code] = append(t.tris[code], [3]edgeRef{p[0], p[1], p[2]})
			}
		}
		t.maxTris = max(t.maxTris, len(t.tris[code]))
	}
	return t
}
