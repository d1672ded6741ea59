package voxel

// Box is an integer axis-aligned box; Min is inclusive, Max exclusive.
type Box struct {
	Min [3]int
	Max [3]int
}

// NewBox builds a box from an origin and a per-axis size.
func NewBox(min [3]int, size [3]int) Box {
	return Box{
		Min: min,
		Max: [3]int{min[0] + size[0], min[1] + size[1], min[2] + size[2]},
	}
}

// Empty reports whether the box has no volume.
func (b Box) Empty() bool {
	return b.Max[0] <= b.Min[0] || b.Max[1] <= b.Min[1] || b.Max[2] <= b.Min[2]
}

// Size returns the extent along each axis.
func (b Box) Size() [3]int {
	return [3]int{b.Max[0] - b.Min[0], b.Max[1] - b.Min[1], b.Max[2] - b.Min[2]}
}

// Intersects reports whether two boxes share any volume.
func (b Box) Intersects(o Box) bool {
	for a := 0; a < 3; a++ {
		if b.Max[a] <= o.Min[a] || o.Max[a] <= b.Min[a] {
			return false
		}
	}
	return true
}

// Intersection returns the overlap of two boxes (possibly empty).
func (b Box) Intersection(o Box) Box {
	var r Box
	for a := 0; a < 3; a++ {
		r.Min[a] = max(b.Min[a], o.Min[a])
		r.Max[a] = min(b.Max[a], o.Max[a])
	}
	return r
}

// Contains reports whether o lies entirely inside b.
func (b Box) Contains(o Box) bool {
	for a := 0; a < 3; a++ {
		if o.Min[a] < b.Min[a] || o.Max[a] > b.Max[a] {
			return false
		}
	}
	return true
}

// Scaled divides the box by a power-of-two step, rounding outward.
func (b Box) Scaled(step int) Box {
	if step <= 1 {
		return b
	}
	var r Box
	for a := 0; a < 3; a++ {
		r.Min[a] = FloorDiv(b.Min[a], step)
		r.Max[a] = -FloorDiv(-b.Max[a], step)
	}
	return r
}

// FloorDiv divides rounding toward negative infinity.
func FloorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// Mod returns a modulo b in [0, b).
func Mod(a, b int) int {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}
