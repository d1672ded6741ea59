// Package terrain streams, meshes and schedules a voxel terrain made of
// concentric LOD rings around a moving viewer.
//
// All work happens inside Update, a bounded amount per call. Regions move
// through Pool, Queued, Generating, Ready and Hidden; meshes live in one
// shared bufpool.Pool and are drawn through a Renderer.
package terrain

import (
	"errors"
	"fmt"
	"math"

	"voxterrain/internal/bufpool"
	"voxterrain/internal/config"
	"voxterrain/internal/gpu"
	"voxterrain/internal/meshing"
	"voxterrain/internal/voxel"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"
)

var (
	ErrClosed     = errors.New("terrain: closed")
	ErrNoRequest  = errors.New("terrain: no hybrid request outstanding")
	ErrRegionSize = errors.New("terrain: region data does not match request")
	ErrMaterialID = errors.New("terrain: material id must be a whole number in [0, 255]")
)

// Option configures a Terrain.
type Option func(*Terrain)

// WithSource streams density from src during Update.
func WithSource(src DataSource) Option {
	return func(t *Terrain) { t.source = src }
}

// WithBackend overrides the backend named in the configuration. The caller
// keeps ownership.
func WithBackend(b meshing.Backend) Option {
	return func(t *Terrain) { t.backend = b }
}

func WithLogger(l *zap.Logger) Option {
	return func(t *Terrain) { t.log = l }
}

// WithContext supplies the compute/render context. Without it a context is
// created, with its own device when the hardware backend is selected.
func WithContext(ctx *gpu.Context) Option {
	return func(t *Terrain) { t.ctx = ctx }
}

type job struct {
	region int32
	epoch  uint32
	future meshing.Future
}

type completion struct {
	region int32
	mesh   *meshing.MeshData
}

// Terrain owns every level, the region arena and the shared buffer pool.
type Terrain struct {
	cfg  *config.Config
	algo meshing.Algorithm
	log  *zap.Logger

	ctx         *gpu.Context
	ownsDevice  bool
	backend     meshing.Backend
	ownsBackend bool
	source      DataSource

	pool    *bufpool.Pool
	regions []Region
	levels  []*Level
	active  int

	inflight []job
	dirty    []voxel.Box
	hybrid   *hybridGen
	visible  []int
	stats    counters
	closed   bool
}

// New validates cfg and builds every level up front. A nil cfg uses
// config.Default().
func New(cfg *config.Config, opts ...Option) (*Terrain, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	algo, err := meshing.ParseAlgorithm(cfg.Meshing.Algorithm)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalid, err)
	}
	t := &Terrain{cfg: cfg, algo: algo}
	for _, o := range opts {
		o(t)
	}
	if t.log == nil {
		t.log = zap.NewNop()
	}
	t.log = t.log.Named("terrain")

	tc := cfg.Terrain
	maxV, maxI := meshing.WorstCase(tc.SubregionDim, algo)
	if cfg.Hybrid.Enabled {
		hv, hi := meshing.WorstCase(2*tc.CellsPerRegion()+1, algo)
		maxV, maxI = max(maxV, hv), max(maxI, hi)
	}
	if maxV > cfg.Pool.VertexCapacity || maxI > cfg.Pool.IndexCapacity {
		return nil, fmt.Errorf("%w: worst-case region mesh %d vertices/%d indices exceeds pool %d/%d",
			config.ErrInvalid, maxV, maxI, cfg.Pool.VertexCapacity, cfg.Pool.IndexCapacity)
	}
	t.pool, err = bufpool.New(bufpool.Config{
		VertexCapacity: cfg.Pool.VertexCapacity,
		IndexCapacity:  cfg.Pool.IndexCapacity,
		MinBlock:       cfg.Pool.MinBlock,
		MaxVertices:    maxV,
		MaxIndices:     maxI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalid, err)
	}

	if t.backend == nil {
		switch cfg.Meshing.Backend {
		case "hardware":
			t.backend = meshing.NewHardware(algo)
		default:
			t.backend = meshing.NewSoftware(algo)
		}
		t.ownsBackend = true
	}
	if t.ctx == nil {
		var dev *gpu.Device
		if t.backend.Name() == "hardware" {
			dev = gpu.NewDevice(cfg.Meshing.Workers)
			t.ownsDevice = true
		}
		t.ctx = gpu.NewContext(dev, t.log)
	}

	per := tc.Subregions * tc.Subregions * tc.Subregions
	t.regions = make([]Region, tc.Levels*per)
	t.levels = make([]*Level, tc.Levels)
	for k := range t.levels {
		first := k * per
		l, err := newLevel(k, tc, t.regions[first:first+per], first, t.pool, t.log)
		if err != nil {
			return nil, err
		}
		t.levels[k] = l
	}
	if cfg.Hybrid.Enabled {
		t.hybrid = newHybrid(t, cfg.Hybrid.CutLevel, cfg.Hybrid.Ratio)
	}

	t.log.Info("terrain created",
		zap.Int("levels", tc.Levels),
		zap.Int("subregions", tc.Subregions),
		zap.Int("subregion_dim", tc.SubregionDim),
		zap.String("backend", t.backend.Name()),
		zap.Stringer("algorithm", algo),
		zap.Int("max_vertices", maxV),
		zap.Int("max_indices", maxI))
	return t, nil
}

// Config returns the configuration the terrain was built with.
func (t *Terrain) Config() *config.Config { return t.cfg }

// Pool is the shared vertex/index arena every Ready region draws from.
func (t *Terrain) Pool() *bufpool.Pool { return t.pool }

// Context is the context passed to the backend and to Render.
func (t *Terrain) Context() *gpu.Context { return t.ctx }

func (t *Terrain) Backend() meshing.Backend { return t.backend }

func (t *Terrain) Levels() int { return len(t.levels) }

// Level returns level i, or nil when out of range.
func (t *Terrain) Level(i int) *Level {
	if i < 0 || i >= len(t.levels) {
		return nil
	}
	return t.levels[i]
}

// Region returns arena entry i.
func (t *Terrain) Region(i int) *Region {
	return &t.regions[i]
}

// RegionCount is the arena size, Levels*Subregions³.
func (t *Terrain) RegionCount() int { return len(t.regions) }

func (t *Terrain) level(i int) (*Level, error) {
	if i < 0 || i >= len(t.levels) {
		return nil, fmt.Errorf("%w: %d", ErrBadLevel, i)
	}
	return t.levels[i], nil
}

// levelOf returns the level owning arena index i and i's local index in it.
func (t *Terrain) levelOf(i int32) (*Level, int32) {
	l := t.levels[t.regions[i].Level]
	return l, i - int32(l.first)
}

// SetPosition recentres every level on a viewer position in level-0 units.
func (t *Terrain) SetPosition(x, y, z float32) {
	p := mgl32.Vec3{x, y, z}
	for _, l := range t.levels {
		l.SetPosition(p)
	}
}

// MissingSlice reports the next data level needs, for callers feeding the
// terrain without a DataSource.
func (t *Terrain) MissingSlice(level int) (SliceRequest, bool) {
	l, err := t.level(level)
	if err != nil {
		return SliceRequest{}, false
	}
	return l.MissingSlice()
}

// AppendSlice pushes one face plane into a level. Density planes slide the
// window one sample toward face; material planes, carried as whole-number
// floats, fill the plane the last density append exposed.
func (t *Terrain) AppendSlice(level int, face voxel.Face, data []float32, isMaterial bool) error {
	l, err := t.level(level)
	if err != nil {
		return err
	}
	if isMaterial {
		ids := make([]uint8, len(data))
		for i, v := range data {
			if v < 0 || v > math.MaxUint8 || float64(v) != math.Trunc(float64(v)) {
				return fmt.Errorf("%w: %v at %d", ErrMaterialID, v, i)
			}
			ids[i] = uint8(v)
		}
		return l.appendMaterials(face, ids)
	}
	return l.appendDensity(face, data)
}

// LoadLevel replaces a level's whole grid with data sampled at its target
// and queues every region. materials may be nil.
func (t *Terrain) LoadLevel(level int, density []float32, materials []uint8) error {
	l, err := t.level(level)
	if err != nil {
		return err
	}
	return l.load(density, materials)
}

// MarkDirty queues every region overlapping a world-space box on the next
// Update. With a DataSource the affected samples are resampled first.
func (t *Terrain) MarkDirty(box voxel.Box) {
	if !box.Empty() {
		t.dirty = append(t.dirty, box)
	}
}

// GetMissingRegion returns the hybrid generator's outstanding request.
func (t *Terrain) GetMissingRegion() (Rect, bool) {
	if t.hybrid == nil {
		return Rect{}, false
	}
	return t.hybrid.missing()
}

// SetRegion answers GetMissingRegion with a dense density block.
func (t *Terrain) SetRegion(data []float32) error {
	return t.SetRegionWithMaterials(data, nil)
}

// SetRegionWithMaterials answers GetMissingRegion with density and material ids.
func (t *Terrain) SetRegionWithMaterials(data []float32, materials []uint8) error {
	if t.hybrid == nil {
		return ErrNoRequest
	}
	return t.hybrid.supply(data, materials)
}

// CullRegions rebuilds the visible list from Ready regions. A nil frustum
// selects all of them.
func (t *Terrain) CullRegions(f *Frustum) int {
	t.visible = t.visible[:0]
	for _, l := range t.levels {
		l.lists.each(StatusReady, func(i int32) {
			r := &l.regions[i]
			if f == nil || f.IntersectsAABB(r.Min, r.Max) {
				t.visible = append(t.visible, l.first+int(i))
			}
		})
	}
	return len(t.visible)
}

// Visible returns the arena indices selected by the last CullRegions.
func (t *Terrain) Visible() []int { return t.visible }

// Render issues one draw call per visible region. A nil ctx uses the
// terrain's own context.
func (t *Terrain) Render(ctx *gpu.Context, r Renderer) {
	if ctx == nil {
		ctx = t.ctx
	}
	for _, i := range t.visible {
		reg := &t.regions[i]
		if !reg.HasMesh() {
			continue
		}
		r.Draw(ctx, DrawCall{
			Level:     reg.Level,
			Slot:      reg.Slot,
			Region:    i,
			Transform: reg.Transform,
			Vertices:  reg.Mesh.Handle.Vertices,
			Indices:   reg.Mesh.Handle.Indices,
		})
	}
}

// Close waits for in-flight generations and releases what New created.
func (t *Terrain) Close() {
	if t.closed {
		return
	}
	t.closed = true
	for _, j := range t.inflight {
		_, _ = j.future.Wait()
	}
	t.inflight = nil
	if t.ownsBackend {
		t.backend.Close()
	}
	if t.ownsDevice && t.ctx.Device != nil {
		t.ctx.Device.Close()
	}
	t.log.Debug("terrain closed")
}
