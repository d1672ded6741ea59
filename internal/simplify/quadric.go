package simplify

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"gonum.org/v1/gonum/mat"
)

// facePlane returns the unit plane (a, b, c, d) of triangle p0 p1 p2 and its
// area. Degenerate triangles report zero area.
func facePlane(p0, p1, p2 mgl32.Vec3) (*mat.VecDense, float64) {
	ax, ay, az := float64(p1[0]-p0[0]), float64(p1[1]-p0[1]), float64(p1[2]-p0[2])
	bx, by, bz := float64(p2[0]-p0[0]), float64(p2[1]-p0[1]), float64(p2[2]-p0[2])
	nx, ny, nz := ay*bz-az*by, az*bx-ax*bz, ax*by-ay*bx
	length := math.Sqrt(nx*nx + ny*ny + nz*nz)
	if length == 0 {
		return nil, 0
	}
	nx, ny, nz = nx/length, ny/length, nz/length
	d := -(nx*float64(p0[0]) + ny*float64(p0[1]) + nz*float64(p0[2]))
	return mat.NewVecDense(4, []float64{nx, ny, nz, d}), length / 2
}

// homogeneous lifts p to (x, y, z, 1).
func homogeneous(p mgl32.Vec3) *mat.VecDense {
	return mat.NewVecDense(4, []float64{float64(p[0]), float64(p[1]), float64(p[2]), 1})
}

// quadricCost evaluates v̄ᵀ(a+b)v̄ using scratch as the summed quadric.
func quadricCost(scratch *mat.SymDense, a, b *mat.SymDense, p mgl32.Vec3) float64 {
	scratch.AddSym(a, b)
	v := homogeneous(p)
	cost := mat.Inner(v, scratch, v)
	if cost < 0 {
		// rounding on near-coplanar neighbourhoods
		cost = 0
	}
	return cost
}

// triangleNormal is the unnormalised face normal in float64.
func triangleNormal(p0, p1, p2 mgl32.Vec3) [3]float64 {
	ax, ay, az := float64(p1[0]-p0[0]), float64(p1[1]-p0[1]), float64(p1[2]-p0[2])
	bx, by, bz := float64(p2[0]-p0[0]), float64(p2[1]-p0[1]), float64(p2[2]-p0[2])
	return [3]float64{ay*bz - az*by, az*bx - ax*bz, ax*by - ay*bx}
}
