package terrain

import (
	"errors"
	"fmt"
	"math"

	"voxterrain/internal/bufpool"
	"voxterrain/internal/config"
	"voxterrain/internal/voxel"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"
)

var (
	ErrNotLoaded = errors.New("terrain: level has no data yet")
	ErrBadLevel  = errors.New("terrain: level out of range")
)

// Level is one LOD ring. Its grid holds (Subregions*(SubregionDim-1)+1)³
// samples spaced 2^index world units apart.
//
// The window is described by origin (a multiple of the region width, in level
// samples) and shift, the number of slices appended since origin last moved.
// Grid index 0 is always origin+shift. When shift reaches a full region width
// the ring rotates: origin advances, shift resets and the trailing row of
// regions is recycled as the new leading row.
type Level struct {
	index int
	scale int
	n     int // regions per axis
	c     int // cells per region
	g     int // samples per grid axis

	origin [3]int
	shift  [3]int
	target [3]int
	wrap   [3]int

	grid    *voxel.Grid
	regions []Region
	first   int
	lists   *statusLists

	pool *bufpool.Pool
	log  *zap.Logger

	loaded     bool
	positioned bool
	rotations  int
}

func newLevel(index int, cfg config.TerrainConfig, regions []Region, first int, pool *bufpool.Pool, log *zap.Logger) (*Level, error) {
	n := cfg.Subregions
	c := cfg.CellsPerRegion()
	g := cfg.GridDim()
	grid, err := voxel.NewGrid(g, g, g, cfg.Materials)
	if err != nil {
		return nil, fmt.Errorf("level %d: %w", index, err)
	}
	l := &Level{
		index:   index,
		scale:   1 << index,
		n:       n,
		c:       c,
		g:       g,
		grid:    grid,
		regions: regions,
		first:   first,
		lists:   newStatusLists(len(regions)),
		pool:    pool,
		log:     log.With(zap.Int("lod", index)),
	}
	for x := 0; x < n; x++ {
		for y := 0; y < n; y++ {
			for z := 0; z < n; z++ {
				i := l.local([3]int{x, y, z})
				regions[i] = Region{Level: index, Slot: [3]int{x, y, z}, Wrapped: [3]int{x, y, z}}
				l.lists.push(StatusPool, int32(i))
				l.place(int32(i))
			}
		}
	}
	return l, nil
}

func (l *Level) Index() int         { return l.index }
func (l *Level) Scale() int         { return l.scale }
func (l *Level) Origin() [3]int     { return l.origin }
func (l *Level) Shift() [3]int      { return l.shift }
func (l *Level) Target() [3]int     { return l.target }
func (l *Level) Wrap() [3]int       { return l.wrap }
func (l *Level) Grid() *voxel.Grid  { return l.grid }
func (l *Level) Loaded() bool       { return l.loaded }
func (l *Level) Rotations() int     { return l.rotations }
func (l *Level) Count(s Status) int { return l.lists.len(s) }
func (l *Level) RegionCount() int   { return len(l.regions) }
func (l *Level) Slot(i int) *Region { return &l.regions[i] }

// Base is the level-sample coordinate of grid index 0.
func (l *Level) Base() [3]int {
	return [3]int{l.origin[0] + l.shift[0], l.origin[1] + l.shift[1], l.origin[2] + l.shift[2]}
}

func (l *Level) local(slot [3]int) int {
	return (slot[0]*l.n+slot[1])*l.n + slot[2]
}

// Region returns the region at a logical ring position.
func (l *Level) Region(wrapped [3]int) *Region {
	var slot [3]int
	for a := 0; a < 3; a++ {
		slot[a] = voxel.Mod(wrapped[a]+l.wrap[a], l.n)
	}
	return &l.regions[l.local(slot)]
}

// start is the region's first sample in level coordinates.
func (l *Level) start(r *Region) [3]int {
	var s [3]int
	for a := 0; a < 3; a++ {
		s[a] = l.origin[a] + r.Wrapped[a]*l.c
	}
	return s
}

func (l *Level) gridStart(r *Region) [3]int {
	var s [3]int
	for a := 0; a < 3; a++ {
		s[a] = r.Wrapped[a]*l.c - l.shift[a]
	}
	return s
}

// resident reports whether every sample of r is currently in the grid. Rows
// half overwritten by an unfinished shift are not.
func (l *Level) resident(r *Region) bool {
	gs := l.gridStart(r)
	for a := 0; a < 3; a++ {
		if gs[a] < 0 || gs[a]+l.c > l.g-1 {
			return false
		}
	}
	return true
}

// regionAt finds the region whose first sample is start, if it is in the ring.
func (l *Level) regionAt(start [3]int) *Region {
	var w [3]int
	for a := 0; a < 3; a++ {
		d := start[a] - l.origin[a]
		if voxel.Mod(d, l.c) != 0 {
			return nil
		}
		w[a] = voxel.FloorDiv(d, l.c)
		if w[a] < 0 || w[a] >= l.n {
			return nil
		}
	}
	return l.Region(w)
}

// footprint is the region's sample box in level coordinates, borders included.
func (l *Level) footprint(r *Region) voxel.Box {
	return voxel.NewBox(l.start(r), [3]int{l.c + 1, l.c + 1, l.c + 1})
}

// place refreshes wrapped coordinates, bounds and transform of region i.
func (l *Level) place(i int32) {
	r := &l.regions[i]
	for a := 0; a < 3; a++ {
		r.Wrapped[a] = voxel.Mod(r.Slot[a]-l.wrap[a], l.n)
	}
	st := l.start(r)
	s := float32(l.scale)
	for a := 0; a < 3; a++ {
		r.Min[a] = float32(st[a]) * s
		r.Max[a] = float32(st[a]+l.c) * s
	}
	r.Transform = mgl32.Translate3D(r.Min[0], r.Min[1], r.Min[2]).Mul4(mgl32.Scale3D(s, s, s))
}

func (l *Level) setStatus(i int32, s Status) {
	l.lists.move(i, s)
	l.regions[i].Status = s
}

// queue schedules region i for generation. A generating region is flagged
// instead and requeued when its result comes back. Either way the epoch moves
// on, so in-flight and hybrid results for the old contents are dropped.
func (l *Level) queue(i int32) {
	r := &l.regions[i]
	r.epoch++
	switch r.Status {
	case StatusGenerating:
		r.NeedsReupdate = true
	case StatusQueued:
	default:
		l.setStatus(i, StatusQueued)
	}
}

// evict drops region i's mesh and queues it for its new position.
func (l *Level) evict(i int32) {
	r := &l.regions[i]
	l.pool.Free(r.Mesh.Handle)
	r.Mesh = VoxelMesh{}
	r.Draw = false
	r.Empty = false
	r.Hybrid = false
	l.queue(i)
}

// SetPosition recentres the streaming target on a level-0 world position.
// The target moves a whole region at a time once the viewer is more than half
// a region from the window centre, as often as needed. It reports whether the
// target changed.
func (l *Level) SetPosition(world mgl32.Vec3) bool {
	before := l.target
	half := float64(l.n*l.c) / 2
	for a := 0; a < 3; a++ {
		p := float64(world[a]) / float64(l.scale)
		if !l.positioned {
			l.target[a] = int(math.Round((p-half)/float64(l.c))) * l.c
		}
		for p-(float64(l.target[a])+half) > float64(l.c)/2 {
			l.target[a] += l.c
		}
		for p-(float64(l.target[a])+half) < -float64(l.c)/2 {
			l.target[a] -= l.c
		}
	}
	l.positioned = true
	if l.target != before {
		l.log.Debug("level target moved", zap.Ints("target", l.target[:]))
		return true
	}
	return false
}

// MissingSlice reports the next data the level needs to reach its target.
// Before the first load, or when the target is further away than a full grid
// of slices, it asks for a full reload.
func (l *Level) MissingSlice() (SliceRequest, bool) {
	base := l.Base()
	dist := 0
	for a := 0; a < 3; a++ {
		dist += abs(l.target[a] - base[a])
	}
	s := l.scale
	if !l.loaded || dist >= l.g {
		return SliceRequest{
			Level: l.index,
			Full:  true,
			Rect: Rect{
				Min:  [3]int{l.target[0] * s, l.target[1] * s, l.target[2] * s},
				Size: [3]int{l.g, l.g, l.g},
				Step: s,
			},
		}, true
	}
	for a := 0; a < 3; a++ {
		if l.target[a] == base[a] {
			continue
		}
		sign := 1
		plane := base[a] + l.g
		if l.target[a] < base[a] {
			sign = -1
			plane = base[a] - 1
		}
		r := Rect{
			Min:  [3]int{base[0] * s, base[1] * s, base[2] * s},
			Size: [3]int{l.g, l.g, l.g},
			Step: s,
		}
		r.Min[a] = plane * s
		r.Size[a] = 1
		return SliceRequest{Level: l.index, Face: voxel.FaceFor(a, sign), Rect: r}, true
	}
	return SliceRequest{}, false
}

func (l *Level) appendDensity(f voxel.Face, data []float32) error {
	if !l.loaded {
		return ErrNotLoaded
	}
	if err := l.grid.AppendSlice(f, data); err != nil {
		return err
	}
	a := f.Axis()
	l.shift[a] += f.Sign()
	if abs(l.shift[a]) == l.c {
		l.rotate(a, f.Sign())
	}
	return nil
}

func (l *Level) appendMaterials(f voxel.Face, ids []uint8) error {
	if !l.loaded {
		return ErrNotLoaded
	}
	return l.grid.WriteMaterialPlane(f, ids)
}

// rotate moves the window one region along axis a. The row that fell off the
// trailing side becomes the new leading row and waits for generation.
func (l *Level) rotate(a, sign int) {
	l.origin[a] += sign * l.c
	l.shift[a] = 0
	l.wrap[a] = voxel.Mod(l.wrap[a]+sign, l.n)
	l.rotations++

	fresh := 0
	if sign > 0 {
		fresh = l.n - 1
	}
	evicted := 0
	for i := range l.regions {
		l.place(int32(i))
		if l.regions[i].Wrapped[a] == fresh {
			l.evict(int32(i))
			evicted++
		}
	}
	l.log.Debug("level ring rotated",
		zap.Stringer("face", voxel.FaceFor(a, sign)),
		zap.Ints("origin", l.origin[:]),
		zap.Int("evicted", evicted))
}

// load replaces the whole grid with data sampled at the current target.
func (l *Level) load(density []float32, materials []uint8) error {
	if err := l.grid.Fill(density, materials); err != nil {
		return fmt.Errorf("level %d: %w", l.index, err)
	}
	l.origin = l.target
	l.shift = [3]int{}
	l.loaded = true
	for i := range l.regions {
		l.place(int32(i))
		l.evict(int32(i))
	}
	l.log.Debug("level loaded", zap.Ints("origin", l.origin[:]))
	return nil
}

// markDirty queues every region whose footprint overlaps box (level samples).
func (l *Level) markDirty(box voxel.Box) int {
	n := 0
	for i := range l.regions {
		if l.footprint(&l.regions[i]).Intersects(box) {
			l.queue(int32(i))
			n++
		}
	}
	return n
}

// dispatchable counts queued regions whose data is fully in the grid.
func (l *Level) dispatchable() int {
	n := 0
	for i := l.lists.first(StatusQueued); i >= 0; i = l.lists.after(i) {
		if l.resident(&l.regions[i]) {
			n++
		}
	}
	return n
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
