// Package voxel holds dense density/material sample volumes whose window can
// slide through voxel space without reallocation.
package voxel

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidDimensions = errors.New("voxel: invalid grid dimensions")
	ErrSliceSize         = errors.New("voxel: slice size does not match face")
	ErrOutOfBounds       = errors.New("voxel: box outside grid")
	ErrNoMaterial        = errors.New("voxel: grid has no material channel")
)

// Grid is a dense W×H×D sample volume addressed through wrap offsets.
//
// Logical (x,y,z) lives at storage ((x+wx) mod W, (y+wy) mod H, (z+wz) mod D),
// so appending a slice on one face only rewrites a single plane.
type Grid struct {
	dims     [3]int
	wrap     [3]int
	density  []float32
	material []uint8
}

// NewGrid allocates a grid. Material storage is only allocated when requested.
func NewGrid(w, h, d int, withMaterial bool) (*Grid, error) {
	if w <= 0 || h <= 0 || d <= 0 {
		return nil, fmt.Errorf("%w: %dx%dx%d", ErrInvalidDimensions, w, h, d)
	}
	g := &Grid{
		dims:    [3]int{w, h, d},
		density: make([]float32, w*h*d),
	}
	if withMaterial {
		g.material = make([]uint8, w*h*d)
	}
	return g, nil
}

// Dims returns the grid size along each axis.
func (g *Grid) Dims() [3]int {
	return g.dims
}

// Wrap returns the current wrap offsets, each in [0, dim).
func (g *Grid) Wrap() [3]int {
	return g.wrap
}

// HasMaterial reports whether the grid carries a material channel.
func (g *Grid) HasMaterial() bool {
	return g.material != nil
}

// Index flattens (x,y,z) for a volume of height h and depth d.
func Index(x, y, z, h, d int) int {
	return (x*h+y)*d + z
}

func (g *Grid) storage(x, y, z int) int {
	sx := Mod(x+g.wrap[0], g.dims[0])
	sy := Mod(y+g.wrap[1], g.dims[1])
	sz := Mod(z+g.wrap[2], g.dims[2])
	return Index(sx, sy, sz, g.dims[1], g.dims[2])
}

// InBounds reports whether a logical coordinate lies inside the grid.
func (g *Grid) InBounds(x, y, z int) bool {
	return x >= 0 && y >= 0 && z >= 0 && x < g.dims[0] && y < g.dims[1] && z < g.dims[2]
}

// Density returns the sample at a logical coordinate; out-of-range reads return 0.
func (g *Grid) Density(x, y, z int) float32 {
	if !g.InBounds(x, y, z) {
		return 0
	}
	return g.density[g.storage(x, y, z)]
}

// SetDensity writes a sample at a logical coordinate.
func (g *Grid) SetDensity(x, y, z int, v float32) {
	if !g.InBounds(x, y, z) {
		return
	}
	g.density[g.storage(x, y, z)] = v
}

// Material returns the material id at a logical coordinate (0 without a material channel).
func (g *Grid) Material(x, y, z int) uint8 {
	if g.material == nil || !g.InBounds(x, y, z) {
		return 0
	}
	return g.material[g.storage(x, y, z)]
}

// SetMaterial writes a material id at a logical coordinate.
func (g *Grid) SetMaterial(x, y, z int, m uint8) {
	if g.material == nil || !g.InBounds(x, y, z) {
		return
	}
	g.material[g.storage(x, y, z)] = m
}

// PlaneSize returns how many samples one slice on face holds.
func (g *Grid) PlaneSize(f Face) int {
	switch f.Axis() {
	case 0:
		return g.dims[1] * g.dims[2]
	case 1:
		return g.dims[0] * g.dims[2]
	default:
		return g.dims[0] * g.dims[1]
	}
}

// planeCoord maps the i-th element of a face slice to the two in-plane logical coordinates.
// X planes are laid out y*D+z, Y planes x*D+z and Z planes x*H+y.
func (g *Grid) planeCoord(f Face, layer, i int) (int, int, int) {
	switch f.Axis() {
	case 0:
		return layer, i / g.dims[2], i % g.dims[2]
	case 1:
		return i / g.dims[2], layer, i % g.dims[2]
	default:
		return i / g.dims[1], i % g.dims[1], layer
	}
}

// leadingLayer is the logical plane a face slice is written to.
func (g *Grid) leadingLayer(f Face) int {
	if f.Sign() > 0 {
		return g.dims[f.Axis()] - 1
	}
	return 0
}

// AppendSlice slides the window one sample toward f and writes the newly
// exposed boundary plane. The plane that falls off the trailing side is reused.
func (g *Grid) AppendSlice(f Face, data []float32) error {
	if len(data) != g.PlaneSize(f) {
		return fmt.Errorf("%w: face %s wants %d samples, got %d", ErrSliceSize, f, g.PlaneSize(f), len(data))
	}
	a := f.Axis()
	g.wrap[a] = Mod(g.wrap[a]+f.Sign(), g.dims[a])

	layer := g.leadingLayer(f)
	for i, v := range data {
		x, y, z := g.planeCoord(f, layer, i)
		g.density[g.storage(x, y, z)] = v
	}
	return nil
}

// WriteMaterialPlane writes material ids of the current leading plane for f
// without sliding the window. Call it after the matching AppendSlice.
func (g *Grid) WriteMaterialPlane(f Face, data []uint8) error {
	if g.material == nil {
		return ErrNoMaterial
	}
	if len(data) != g.PlaneSize(f) {
		return fmt.Errorf("%w: face %s wants %d samples, got %d", ErrSliceSize, f, g.PlaneSize(f), len(data))
	}
	layer := g.leadingLayer(f)
	for i, m := range data {
		x, y, z := g.planeCoord(f, layer, i)
		g.material[g.storage(x, y, z)] = m
	}
	return nil
}

// Fill replaces the whole logical volume and resets the wrap offsets.
// materials may be nil to leave the material channel untouched.
func (g *Grid) Fill(density []float32, materials []uint8) error {
	n := g.dims[0] * g.dims[1] * g.dims[2]
	if len(density) != n {
		return fmt.Errorf("%w: fill wants %d samples, got %d", ErrSliceSize, n, len(density))
	}
	if materials != nil {
		if g.material == nil {
			return ErrNoMaterial
		}
		if len(materials) != n {
			return fmt.Errorf("%w: fill wants %d materials, got %d", ErrSliceSize, n, len(materials))
		}
		copy(g.material, materials)
	}
	g.wrap = [3]int{}
	copy(g.density, density)
	return nil
}

// CopyBox copies the logical cube [min, min+size) into dense arrays laid out
// (x*size+y)*size+z. mdst may be nil; it is filled only when the grid has materials.
func (g *Grid) CopyBox(min [3]int, size int, dst []float32, mdst []uint8) error {
	for a := 0; a < 3; a++ {
		if min[a] < 0 || min[a]+size > g.dims[a] {
			return fmt.Errorf("%w: min=%v size=%d dims=%v", ErrOutOfBounds, min, size, g.dims)
		}
	}
	if len(dst) < size*size*size {
		return fmt.Errorf("%w: destination holds %d, need %d", ErrSliceSize, len(dst), size*size*size)
	}
	withMat := g.material != nil && mdst != nil
	for x := 0; x < size; x++ {
		for y := 0; y < size; y++ {
			for z := 0; z < size; z++ {
				src := g.storage(min[0]+x, min[1]+y, min[2]+z)
				i := Index(x, y, z, size, size)
				dst[i] = g.density[src]
				if withMat {
					mdst[i] = g.material[src]
				}
			}
		}
	}
	return nil
}

// WriteBox stores a dense cube back into the grid at logical min; values
// falling outside the grid are skipped.
func (g *Grid) WriteBox(min [3]int, size [3]int, density []float32, materials []uint8) {
	for x := 0; x < size[0]; x++ {
		for y := 0; y < size[1]; y++ {
			for z := 0; z < size[2]; z++ {
				lx, ly, lz := min[0]+x, min[1]+y, min[2]+z
				if !g.InBounds(lx, ly, lz) {
					continue
				}
				i := Index(x, y, z, size[1], size[2])
				s := g.storage(lx, ly, lz)
				g.density[s] = density[i]
				if g.material != nil && materials != nil {
					g.material[s] = materials[i]
				}
			}
		}
	}
}
