package terrain

import (
	"fmt"

	"voxterrain/internal/meshing"
	"voxterrain/internal/profiling"

	"go.uber.org/zap"
)

// HybridState is the hybrid generator's phase.
type HybridState uint8

const (
	// HybridNotReady: no data yet; at most one request is outstanding.
	HybridNotReady HybridState = iota
	// HybridReady: data arrived and is meshed on the next step.
	HybridReady
)

func (s HybridState) String() string {
	if s == HybridReady {
		return "ready"
	}
	return "not-ready"
}

// hybridGen remeshes cut-level regions that straddle the finer level's window
// from samples at twice their resolution, so the seam against the finer level
// matches. It never has more than one request outstanding.
type hybridGen struct {
	t     *Terrain
	level int
	dim   int
	ratio float64

	state   HybridState
	pending bool
	region  int32
	epoch   uint32
	rect    Rect

	density   []float32
	materials []uint8

	requests int
	uploads  int
}

func newHybrid(t *Terrain, level int, ratio float64) *hybridGen {
	return &hybridGen{
		t:     t,
		level: level,
		dim:   2*t.cfg.Terrain.CellsPerRegion() + 1,
		ratio: ratio,
	}
}

// HybridState reports the hybrid generator phase.
func (t *Terrain) HybridState() HybridState {
	if t.hybrid == nil {
		return HybridNotReady
	}
	return t.hybrid.state
}

func (h *hybridGen) missing() (Rect, bool) {
	if h.pending && h.state == HybridNotReady {
		return h.rect, true
	}
	return Rect{}, false
}

func (h *hybridGen) supply(density []float32, materials []uint8) error {
	if !h.pending || h.state != HybridNotReady {
		return ErrNoRequest
	}
	n := h.rect.Len()
	if len(density) != n || (materials != nil && len(materials) != n) {
		return fmt.Errorf("%w: want %d samples, got %d density and %d materials",
			ErrRegionSize, n, len(density), len(materials))
	}
	h.density = append(h.density[:0], density...)
	h.materials = nil
	if materials != nil {
		h.materials = append([]uint8(nil), materials...)
	}
	h.state = HybridReady
	return nil
}

// fulfil answers the outstanding request from src.
func (h *hybridGen) fulfil(src DataSource) error {
	r, ok := h.missing()
	if !ok {
		return nil
	}
	density := make([]float32, r.Len())
	src.Sample(r, density)
	var mats []uint8
	if h.t.cfg.Terrain.Materials {
		mats = make([]uint8, r.Len())
		src.SampleMaterials(r, mats)
	}
	return h.supply(density, mats)
}

// step either meshes arrived data or issues the next request, never both.
func (h *hybridGen) step() error {
	switch h.state {
	case HybridReady:
		err := h.generate()
		h.state = HybridNotReady
		h.pending = false
		h.materials = nil
		return err
	default:
		if !h.pending {
			h.issue()
		}
		return nil
	}
}

// straddles reports whether r's footprint touches the finer level's window
// without lying inside it.
func straddles(coarse, fine *Level, r *Region) bool {
	st := coarse.start(r)
	inside := true
	for a := 0; a < 3; a++ {
		lo, hi := 2*st[a], 2*(st[a]+coarse.c)
		wlo, whi := fine.origin[a], fine.origin[a]+fine.n*fine.c
		if hi < wlo || lo > whi {
			return false
		}
		if lo < wlo || hi > whi {
			inside = false
		}
	}
	return !inside
}

func (h *hybridGen) issue() {
	coarse, fine := h.t.levels[h.level], h.t.levels[h.level-1]
	if !coarse.loaded || !fine.loaded {
		return
	}
	for i := coarse.lists.first(StatusReady); i >= 0; i = coarse.lists.after(i) {
		r := &coarse.regions[i]
		if r.Hybrid || !straddles(coarse, fine, r) {
			continue
		}
		st := coarse.start(r)
		s := coarse.scale
		h.rect = Rect{
			Min:  [3]int{st[0] * s, st[1] * s, st[2] * s},
			Size: [3]int{h.dim, h.dim, h.dim},
			Step: s / 2,
		}
		h.region = int32(coarse.first) + i
		h.epoch = r.epoch
		h.pending = true
		h.requests++
		h.t.log.Debug("hybrid region requested", zap.Int("lod", h.level), zap.Ints("slot", r.Slot[:]), zap.Ints("min", h.rect.Min[:]))
		return
	}
}

func (h *hybridGen) generate() error {
	defer profiling.Track("terrain.hybrid")()
	r := &h.t.regions[h.region]
	if r.epoch != h.epoch || (r.Status != StatusReady && r.Status != StatusHidden) {
		return nil
	}
	m, err := meshing.March(meshing.Request{
		Density:      h.density,
		Materials:    h.materials,
		Dim:          h.dim,
		Scale:        0.5,
		AnchorMargin: 2 * h.t.cfg.Terrain.AnchorMargin,
	}, h.t.algo)
	if err != nil {
		return fmt.Errorf("hybrid region %d: %w", h.region, err)
	}
	if m.Empty() {
		r.Hybrid = true
		return nil
	}
	if dm, _, err := decimateMesh(m, h.ratio); err == nil {
		m = dm
	} else {
		h.t.log.Warn("hybrid decimation failed, keeping full mesh", zap.Error(err))
	}
	if err := h.t.replaceMesh(r, m); err != nil {
		if poolError(err) {
			h.t.stats.exhausted++
		}
		return fmt.Errorf("hybrid region %d: %w", h.region, err)
	}
	r.Hybrid = true
	h.uploads++
	return nil
}
