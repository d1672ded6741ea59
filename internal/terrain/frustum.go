package terrain

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

type plane struct{ a, b, c, d float32 }

// Frustum holds the six clip planes of a view-projection matrix, in order
// left, right, bottom, top, near, far.
type Frustum struct {
	planes [6]plane
	// Margin inflates every tested box, in world units.
	Margin float32
}

// NewFrustum extracts the planes of the combined projection*view matrix.
func NewFrustum(viewProj mgl32.Mat4) *Frustum {
	m := viewProj
	// mgl32 matrices are column-major
	row := func(r int) [4]float32 { return [4]float32{m[r], m[r+4], m[r+8], m[r+12]} }
	r0, r1, r2, r3 := row(0), row(1), row(2), row(3)
	combine := func(a [4]float32, s float32) plane {
		return normalizePlane(plane{r3[0] + s*a[0], r3[1] + s*a[1], r3[2] + s*a[2], r3[3] + s*a[3]})
	}
	return &Frustum{planes: [6]plane{
		combine(r0, 1), combine(r0, -1),
		combine(r1, 1), combine(r1, -1),
		combine(r2, 1), combine(r2, -1),
	}}
}

func normalizePlane(p plane) plane {
	l := float32(math.Sqrt(float64(p.a*p.a + p.b*p.b + p.c*p.c)))
	if l == 0 {
		return p
	}
	return plane{p.a / l, p.b / l, p.c / l, p.d / l}
}

// IntersectsAABB reports whether the box is at least partly inside. Only the
// corner furthest along each plane normal is tested.
func (f *Frustum) IntersectsAABB(min, max mgl32.Vec3) bool {
	if f.Margin != 0 {
		m := mgl32.Vec3{f.Margin, f.Margin, f.Margin}
		min, max = min.Sub(m), max.Add(m)
	}
	for _, p := range f.planes {
		px, py, pz := max[0], max[1], max[2]
		if p.a < 0 {
			px = min[0]
		}
		if p.b < 0 {
			py = min[1]
		}
		if p.c < 0 {
			pz = min[2]
		}
		if p.a*px+p.b*py+p.c*pz+p.d < 0 {
			return false
		}
	}
	return true
}
