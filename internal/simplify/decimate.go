// Package simplify implements quadric error metric edge-collapse decimation
// for region meshes. Anchor vertices (region borders and material seams) are
// never removed, so neighbouring regions keep matching border geometry.
package simplify

import (
	"container/heap"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/go-gl/mathgl/mgl32"
	"gonum.org/v1/gonum/mat"
)

var ErrInvalidMesh = errors.New("simplify: invalid mesh")

// Result is a compacted, decimated mesh. Surviving vertices keep their
// relative order. Remap maps every input vertex to the output index of the
// vertex it ended up merged into.
type Result struct {
	Vertices  []mgl32.Vec3
	Normals   []mgl32.Vec3
	Anchors   []bool
	Indices   []uint32
	Remap     []int32
	Collapses int
}

// TargetCollapses converts a reduction ratio of the non-anchor vertices into
// a collapse count.
func TargetCollapses(nonAnchor int, ratio float64) int {
	ratio = math.Min(math.Max(ratio, 0), 1)
	return int(math.Floor(float64(nonAnchor) * ratio))
}

type candidate struct {
	cost   float64
	u, v   int32
	su, sv uint32
}

type candidateHeap []candidate

func (h candidateHeap) Len() int { return len(h) }
func (h candidateHeap) Less(i, j int) bool {
	if h[i].cost != h[j].cost {
		return h[i].cost < h[j].cost
	}
	if h[i].u != h[j].u {
		return h[i].u < h[j].u
	}
	return h[i].v < h[j].v
}
func (h candidateHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *candidateHeap) Push(x any)   { *h = append(*h, x.(candidate)) }
func (h *candidateHeap) Pop() any {
	old := *h
	n := len(old)
	c := old[n-1]
	*h = old[:n-1]
	return c
}

type decimator struct {
	pos    []mgl32.Vec3
	anchor []bool
	border []bool
	alive  []bool
	stamp  []uint32
	parent []int32
	quad   []*mat.SymDense

	faces     [][3]int32
	faceAlive []bool
	vfaces    [][]int32

	heap      candidateHeap
	scratch   *mat.SymDense
	collapses int
}

// Decimate collapses up to targetCollapses edges, lowest quadric cost first.
// A collapse u→v removes u and keeps v's position. anchors may be nil.
// Identical input always yields identical output.
func Decimate(vertices, normals []mgl32.Vec3, indices []uint32, anchors []bool, targetCollapses int) (Result, error) {
	n := len(vertices)
	if normals != nil && len(normals) != n {
		return Result{}, fmt.Errorf("%w: %d normals for %d vertices", ErrInvalidMesh, len(normals), n)
	}
	if anchors != nil && len(anchors) != n {
		return Result{}, fmt.Errorf("%w: %d anchor flags for %d vertices", ErrInvalidMesh, len(anchors), n)
	}
	if len(indices)%3 != 0 {
		return Result{}, fmt.Errorf("%w: index count %d is not a multiple of 3", ErrInvalidMesh, len(indices))
	}
	for i, idx := range indices {
		if int(idx) >= n {
			return Result{}, fmt.Errorf("%w: index %d at %d out of range", ErrInvalidMesh, idx, i)
		}
	}

	d := newDecimator(vertices, indices, anchors)
	d.run(targetCollapses)
	return d.result(normals), nil
}

func newDecimator(vertices []mgl32.Vec3, indices []uint32, anchors []bool) *decimator {
	n := len(vertices)
	d := &decimator{
		pos:     vertices,
		anchor:  make([]bool, n),
		border:  make([]bool, n),
		alive:   make([]bool, n),
		stamp:   make([]uint32, n),
		parent:  make([]int32, n),
		quad:    make([]*mat.SymDense, n),
		vfaces:  make([][]int32, n),
		scratch: mat.NewSymDense(4, nil),
	}
	if anchors != nil {
		copy(d.anchor, anchors)
	}
	for i := range n {
		d.alive[i] = true
		d.parent[i] = int32(i)
		d.quad[i] = mat.NewSymDense(4, nil)
	}

	edgeUse := make(map[uint64]int)
	for f := 0; f+2 < len(indices); f += 3 {
		a, b, c := int32(indices[f]), int32(indices[f+1]), int32(indices[f+2])
		if a == b || b == c || a == c {
			continue
		}
		fi := int32(len(d.faces))
		d.faces = append(d.faces, [3]int32{a, b, c})
		d.faceAlive = append(d.faceAlive, true)
		plane, area := facePlane(vertices[a], vertices[b], vertices[c])
		for _, x := range [3]int32{a, b, c} {
			d.vfaces[x] = append(d.vfaces[x], fi)
			if area > 0 {
				d.quad[x].SymRankOne(d.quad[x], area, plane)
			}
		}
		edgeUse[edgeKey(a, b)]++
		edgeUse[edgeKey(b, c)]++
		edgeUse[edgeKey(c, a)]++
	}
	// open or non-manifold edges pin both endpoints
	for k, uses := range edgeUse {
		if uses != 2 {
			d.border[int32(k>>32)] = true
			d.border[int32(k&0xffffffff)] = true
		}
	}
	return d
}

func edgeKey(a, b int32) uint64 {
	if a > b {
		a, b = b, a
	}
	return uint64(a)<<32 | uint64(uint32(b))
}

func (d *decimator) removable(u int32) bool {
	return d.alive[u] && !d.anchor[u] && !d.border[u]
}

func (d *decimator) push(u, v int32) {
	if !d.removable(u) || !d.alive[v] {
		return
	}
	cost := quadricCost(d.scratch, d.quad[u], d.quad[v], d.pos[v])
	heap.Push(&d.heap, candidate{cost: cost, u: u, v: v, su: d.stamp[u], sv: d.stamp[v]})
}

func (d *decimator) rebuild() {
	d.heap = d.heap[:0]
	for u := range d.pos {
		if !d.removable(int32(u)) {
			continue
		}
		for _, w := range d.neighbors(int32(u)) {
			cost := quadricCost(d.scratch, d.quad[u], d.quad[w], d.pos[w])
			d.heap = append(d.heap, candidate{cost: cost, u: int32(u), v: w, su: d.stamp[u], sv: d.stamp[w]})
		}
	}
	heap.Init(&d.heap)
}

// run pops candidates until the target is met. When the heap drains after
// progress, it is rebuilt once more since rejected edges may have become legal.
func (d *decimator) run(target int) {
	for d.collapses < target {
		before := d.collapses
		d.rebuild()
		for d.collapses < target && d.heap.Len() > 0 {
			c := heap.Pop(&d.heap).(candidate)
			if !d.alive[c.u] || !d.alive[c.v] || d.stamp[c.u] != c.su || d.stamp[c.v] != c.sv {
				continue
			}
			if !d.canCollapse(c.u, c.v) {
				continue
			}
			d.collapse(c.u, c.v)
		}
		if d.collapses == before {
			return
		}
	}
}

func (d *decimator) neighbors(x int32) []int32 {
	var out []int32
	for _, f := range d.vfaces[x] {
		if !d.faceAlive[f] {
			continue
		}
		for _, y := range d.faces[f] {
			if y != x {
				out = append(out, y)
			}
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func (d *decimator) canCollapse(u, v int32) bool {
	shared := 0
	for _, f := range d.vfaces[u] {
		if d.faceAlive[f] && slices.Contains(d.faces[f][:], v) {
			shared++
		}
	}
	if shared == 0 {
		return false
	}

	// link condition: the common neighbours of u and v are exactly the
	// apexes of the faces on edge uv
	nv := d.neighbors(v)
	common := 0
	for _, w := range d.neighbors(u) {
		if _, ok := slices.BinarySearch(nv, w); ok {
			common++
		}
	}
	if common != shared {
		return false
	}

	pv := d.pos[v]
	for _, f := range d.vfaces[u] {
		if !d.faceAlive[f] {
			continue
		}
		tri := d.faces[f]
		if slices.Contains(tri[:], v) {
			continue
		}
		var before, after [3]mgl32.Vec3
		for k, x := range tri {
			before[k] = d.pos[x]
			after[k] = d.pos[x]
			if x == u {
				after[k] = pv
			}
		}
		n0 := triangleNormal(before[0], before[1], before[2])
		n1 := triangleNormal(after[0], after[1], after[2])
		l0 := n0[0]*n0[0] + n0[1]*n0[1] + n0[2]*n0[2]
		l1 := n1[0]*n1[0] + n1[1]*n1[1] + n1[2]*n1[2]
		if l1 <= 1e-12*l0 {
			return false
		}
		if n0[0]*n1[0]+n0[1]*n1[1]+n0[2]*n1[2] <= 0 {
			return false
		}
	}
	return true
}

func (d *decimator) collapse(u, v int32) {
	live := d.vfaces[v][:0]
	for _, f := range d.vfaces[v] {
		if d.faceAlive[f] {
			live = append(live, f)
		}
	}
	d.vfaces[v] = live

	for _, f := range d.vfaces[u] {
		if !d.faceAlive[f] {
			continue
		}
		tri := &d.faces[f]
		if slices.Contains(tri[:], v) {
			d.faceAlive[f] = false
			continue
		}
		for k := range tri {
			if tri[k] == u {
				tri[k] = v
			}
		}
		d.vfaces[v] = append(d.vfaces[v], f)
	}
	d.vfaces[u] = nil

	d.quad[v].AddSym(d.quad[v], d.quad[u])
	d.alive[u] = false
	d.parent[u] = v
	d.stamp[v]++
	d.collapses++

	for _, w := range d.neighbors(v) {
		d.push(v, w)
		d.push(w, v)
	}
}

func (d *decimator) find(x int32) int32 {
	for d.parent[x] != x {
		x = d.parent[x]
	}
	return x
}

func (d *decimator) result(normals []mgl32.Vec3) Result {
	n := len(d.pos)
	next := make([]int32, n)
	res := Result{
		Remap:     make([]int32, n),
		Collapses: d.collapses,
	}
	kept := n - d.collapses
	res.Vertices = make([]mgl32.Vec3, 0, kept)
	res.Anchors = make([]bool, 0, kept)
	if normals != nil {
		res.Normals = make([]mgl32.Vec3, 0, kept)
	}
	for i := range n {
		if !d.alive[i] {
			next[i] = -1
			continue
		}
		next[i] = int32(len(res.Vertices))
		res.Vertices = append(res.Vertices, d.pos[i])
		res.Anchors = append(res.Anchors, d.anchor[i])
		if normals != nil {
			res.Normals = append(res.Normals, normals[i])
		}
	}
	for i := range n {
		res.Remap[i] = next[d.find(int32(i))]
	}
	for f, tri := range d.faces {
		if !d.faceAlive[f] {
			continue
		}
		a, b, c := next[tri[0]], next[tri[1]], next[tri[2]]
		if a == b || b == c || a == c {
			continue
		}
		res.Indices = append(res.Indices, uint32(a), uint32(b), uint32(c))
	}
	return res
}
