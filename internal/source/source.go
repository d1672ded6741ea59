// Package source provides a procedural density field for the terrain.
package source

import (
	"math"
	"sync"

	"voxterrain/internal/config"
	"voxterrain/internal/terrain"
	"voxterrain/internal/voxel"

	"github.com/go-gl/mathgl/mgl32"
)

// Material ids produced by Noise.
const (
	MaterialStone uint8 = 1
	MaterialDirt  uint8 = 2
	MaterialGrass uint8 = 3
)

const dirtDepth = 6

type edit struct {
	center mgl32.Vec3
	radius float32
	fill   bool
}

// Noise is 3D value noise pulled down by an altitude gradient, so that the
// surface sits near BaseHeight with overhangs where the noise wins. Density
// > 0 is solid. Sphere edits are layered on top in the order they were made.
type Noise struct {
	cfg config.SourceConfig

	mu    sync.RWMutex
	edits []edit
	dirty []voxel.Box
}

var _ terrain.DataSource = (*Noise)(nil)

// New creates a noise source.
func New(cfg config.SourceConfig) *Noise {
	if cfg.Scale == 0 {
		cfg.Scale = 1.0 / 64.0
	}
	if cfg.GradientStrength == 0 {
		cfg.GradientStrength = 32
	}
	return &Noise{cfg: cfg}
}

func (n *Noise) base(x, y, z float64) float64 {
	c := n.cfg
	v := octaveNoise3D(x*c.Scale, y*c.Scale, z*c.Scale, c.Seed, c.Octaves, c.Persistence, c.Lacunarity)
	return v*2 - 1 + (float64(c.BaseHeight)-y)/c.GradientStrength
}

// Density evaluates the field at a world position.
func (n *Noise) Density(x, y, z float64) float32 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.density(x, y, z)
}

func (n *Noise) density(x, y, z float64) float32 {
	d := float32(n.base(x, y, z))
	p := mgl32.Vec3{float32(x), float32(y), float32(z)}
	for _, e := range n.edits {
		dist := p.Sub(e.center).Len()
		if e.fill {
			d = max(d, e.radius-dist)
		} else {
			d = min(d, dist-e.radius)
		}
	}
	return d
}

// Material picks a material by depth below the nominal surface.
func (n *Noise) Material(x, y, z float64) uint8 {
	depth := float64(n.cfg.BaseHeight) - y
	switch {
	case depth > dirtDepth:
		return MaterialStone
	case depth > 0:
		return MaterialDirt
	default:
		return MaterialGrass
	}
}

// Sample fills dst with densities laid out as terrain.Rect documents.
func (n *Noise) Sample(r terrain.Rect, dst []float32) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	n.each(r, func(i int, x, y, z float64) { dst[i] = n.density(x, y, z) })
}

// SampleMaterials fills dst with material ids for r.
func (n *Noise) SampleMaterials(r terrain.Rect, dst []uint8) {
	n.each(r, func(i int, x, y, z float64) { dst[i] = n.Material(x, y, z) })
}

func (n *Noise) each(r terrain.Rect, fn func(i int, x, y, z float64)) {
	i := 0
	for x := 0; x < r.Size[0]; x++ {
		wx := float64(r.Min[0] + x*r.Step)
		for y := 0; y < r.Size[1]; y++ {
			wy := float64(r.Min[1] + y*r.Step)
			for z := 0; z < r.Size[2]; z++ {
				fn(i, wx, wy, float64(r.Min[2]+z*r.Step))
				i++
			}
		}
	}
}

// Carve removes a sphere of material.
func (n *Noise) Carve(center mgl32.Vec3, radius float32) {
	n.apply(edit{center: center, radius: radius})
}

// Fill adds a solid sphere.
func (n *Noise) Fill(center mgl32.Vec3, radius float32) {
	n.apply(edit{center: center, radius: radius, fill: true})
}

func (n *Noise) apply(e edit) {
	if e.radius <= 0 {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.edits = append(n.edits, e)
	n.dirty = append(n.dirty, sphereBox(e.center, e.radius))
}

// sphereBox is the world box of samples whose density a sphere edit can
// change, with one sample of slack for interpolation.
func sphereBox(c mgl32.Vec3, r float32) voxel.Box {
	var b voxel.Box
	for a := 0; a < 3; a++ {
		b.Min[a] = int(math.Floor(float64(c[a]-r))) - 1
		b.Max[a] = int(math.Ceil(float64(c[a]+r))) + 2
	}
	return b
}

// Edits is the number of sphere edits applied so far.
func (n *Noise) Edits() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.edits)
}

// DirtyRects returns the boxes touched since the last call and forgets them.
func (n *Noise) DirtyRects() []voxel.Box {
	n.mu.Lock()
	defer n.mu.Unlock()
	d := n.dirty
	n.dirty = nil
	return d
}
