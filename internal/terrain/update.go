package terrain

import (
	"errors"
	"fmt"

	"voxterrain/internal/bufpool"
	"voxterrain/internal/meshing"
	"voxterrain/internal/profiling"
	"voxterrain/internal/simplify"
	"voxterrain/internal/voxel"

	"go.uber.org/zap"
)

// Update runs one tick:
//
//  1. stream slices from the DataSource, at most SliceBudget per level
//  2. apply dirty boxes
//  3. collect generations that finished since the last tick
//  4. start at most MaxUpdates generations on the active level
//  5. decimate coarse meshes and upload them to the pool
//  6. step the hybrid generator
//  7. recompute Ready and Hidden
//
// A result submitted this tick is consumed on a later one at the earliest.
// Every stage runs even after a failure; the first error is returned. Regions
// whose generation or upload failed stay Queued.
func (t *Terrain) Update() error {
	defer profiling.Track("terrain.Update")()
	if t.closed {
		return ErrClosed
	}
	t.ctx.Frame++
	t.stats.ticks++

	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}

	keep(t.stream())
	t.applyDirty()
	done, err := t.poll()
	keep(err)
	keep(t.dispatch())
	done = t.decimate(done)
	keep(t.upload(done))
	if t.hybrid != nil {
		keep(t.hybrid.step())
	}
	t.updateVisibility()
	if t.hybrid != nil && t.source != nil {
		keep(t.hybrid.fulfil(t.source))
	}
	return first
}

func (t *Terrain) stream() error {
	if t.source == nil {
		return nil
	}
	defer profiling.Track("terrain.stream")()
	for _, l := range t.levels {
		req, ok := l.MissingSlice()
		if ok && req.Full {
			density := make([]float32, req.Rect.Len())
			t.source.Sample(req.Rect, density)
			var mats []uint8
			if l.grid.HasMaterial() {
				mats = make([]uint8, req.Rect.Len())
				t.source.SampleMaterials(req.Rect, mats)
			}
			if err := l.load(density, mats); err != nil {
				return err
			}
			t.stats.loads++
			continue
		}
		for n := 0; ok && n < t.cfg.Terrain.SliceBudget; n++ {
			density := make([]float32, req.Rect.Len())
			t.source.Sample(req.Rect, density)
			if err := l.appendDensity(req.Face, density); err != nil {
				return fmt.Errorf("level %d slice %s: %w", l.index, req.Face, err)
			}
			if l.grid.HasMaterial() {
				mats := make([]uint8, req.Rect.Len())
				t.source.SampleMaterials(req.Rect, mats)
				if err := l.appendMaterials(req.Face, mats); err != nil {
					return err
				}
			}
			t.stats.slices++
			req, ok = l.MissingSlice()
			if ok && req.Full {
				break
			}
		}
	}
	return nil
}

func (t *Terrain) applyDirty() {
	boxes := t.dirty
	t.dirty = nil
	if t.source != nil {
		boxes = append(boxes, t.source.DirtyRects()...)
	}
	if len(boxes) == 0 {
		return
	}
	defer profiling.Track("terrain.dirty")()
	for _, box := range boxes {
		for _, l := range t.levels {
			if !l.loaded {
				continue
			}
			lb := box.Scaled(l.scale)
			if t.source != nil {
				t.resample(l, lb)
			}
			if n := l.markDirty(lb); n > 0 {
				t.log.Debug("dirty box queued regions", zap.Int("lod", l.index), zap.Int("regions", n))
			}
		}
	}
}

// resample refreshes the part of l's grid that lb (level samples) covers.
func (t *Terrain) resample(l *Level, lb voxel.Box) {
	base := l.Base()
	ib := lb.Intersection(voxel.NewBox(base, [3]int{l.g, l.g, l.g}))
	if ib.Empty() {
		return
	}
	size := ib.Size()
	r := Rect{
		Min:  [3]int{ib.Min[0] * l.scale, ib.Min[1] * l.scale, ib.Min[2] * l.scale},
		Size: size,
		Step: l.scale,
	}
	density := make([]float32, r.Len())
	t.source.Sample(r, density)
	var mats []uint8
	if l.grid.HasMaterial() {
		mats = make([]uint8, r.Len())
		t.source.SampleMaterials(r, mats)
	}
	min := [3]int{ib.Min[0] - base[0], ib.Min[1] - base[1], ib.Min[2] - base[2]}
	l.grid.WriteBox(min, size, density, mats)
}

// poll collects finished generations. Stale results, from regions evicted or
// dirtied while in flight, are dropped and the region is queued again.
func (t *Terrain) poll() ([]completion, error) {
	var done []completion
	var first error
	keep := t.inflight[:0]
	for _, j := range t.inflight {
		if !j.future.Done() {
			keep = append(keep, j)
			continue
		}
		m, err := j.future.Result()
		l, li := t.levelOf(j.region)
		r := &t.regions[j.region]
		switch {
		case r.epoch != j.epoch || r.NeedsReupdate:
			r.NeedsReupdate = false
			l.setStatus(li, StatusQueued)
			t.stats.discarded++
		case err != nil:
			l.setStatus(li, StatusQueued)
			t.stats.failed++
			t.log.Warn("region generation failed", zap.Int("lod", r.Level), zap.Ints("slot", r.Slot[:]), zap.Error(err))
			if first == nil {
				first = fmt.Errorf("region %d: %w", j.region, err)
			}
		case m.Empty():
			t.pool.Free(r.Mesh.Handle)
			r.Mesh = VoxelMesh{}
			r.Empty, r.Draw, r.Hybrid = true, true, false
			l.setStatus(li, StatusPool)
			t.stats.completed++
		default:
			done = append(done, completion{region: j.region, mesh: m})
			t.stats.completed++
		}
	}
	clear(t.inflight[len(keep):])
	t.inflight = keep
	return done, first
}

// dispatch starts generations on one level. The active level moves on, round
// robin, once it has nothing left to start.
func (t *Terrain) dispatch() error {
	defer profiling.Track("terrain.dispatch")()
	for range t.levels {
		l := t.levels[t.active]
		if l.dispatchable() == 0 {
			t.active = (t.active + 1) % len(t.levels)
			continue
		}
		err := t.dispatchLevel(l)
		if l.dispatchable() == 0 {
			t.active = (t.active + 1) % len(t.levels)
		}
		return err
	}
	return nil
}

func (t *Terrain) dispatchLevel(l *Level) error {
	budget := t.cfg.Terrain.MaxUpdates
	for i := l.lists.first(StatusQueued); i >= 0 && budget > 0; {
		next := l.lists.after(i)
		r := &l.regions[i]
		if !l.resident(r) {
			i = next
			continue
		}
		if t.backend.Busy() {
			return nil
		}
		req, err := t.request(l, r)
		if err != nil {
			return err
		}
		fut, err := t.backend.Extract(t.ctx, req)
		if errors.Is(err, meshing.ErrBusy) {
			return nil
		}
		if err != nil {
			t.stats.failed++
			return fmt.Errorf("level %d slot %v: %w", l.index, r.Slot, err)
		}
		l.setStatus(i, StatusGenerating)
		t.inflight = append(t.inflight, job{region: int32(l.first) + i, epoch: r.epoch, future: fut})
		t.stats.dispatched++
		budget--
		i = next
	}
	return nil
}

func (t *Terrain) request(l *Level, r *Region) (meshing.Request, error) {
	d := t.cfg.Terrain.SubregionDim
	density := make([]float32, d*d*d)
	var mats []uint8
	if l.grid.HasMaterial() {
		mats = make([]uint8, d*d*d)
	}
	if err := l.grid.CopyBox(l.gridStart(r), d, density, mats); err != nil {
		return meshing.Request{}, err
	}
	return meshing.Request{
		Density:      density,
		Materials:    mats,
		Dim:          d,
		AnchorMargin: t.cfg.Terrain.AnchorMargin,
	}, nil
}

func (t *Terrain) decimate(done []completion) []completion {
	s := t.cfg.Simplify
	if !s.Enabled || len(done) == 0 {
		return done
	}
	defer profiling.Track("terrain.decimate")()
	for i, c := range done {
		if t.regions[c.region].Level < s.FromLevel {
			continue
		}
		m, n, err := decimateMesh(c.mesh, s.Ratio)
		if err != nil {
			t.log.Warn("decimation failed, keeping full mesh", zap.Int32("region", c.region), zap.Error(err))
			continue
		}
		done[i].mesh = m
		t.stats.collapses += n
	}
	return done
}

// decimateMesh removes ratio of the non-anchor vertices.
func decimateMesh(m *meshing.MeshData, ratio float64) (*meshing.MeshData, int, error) {
	free := 0
	for _, a := range m.Anchors {
		if !a {
			free++
		}
	}
	res, err := simplify.Decimate(m.Positions, m.Normals, m.Indices, m.Anchors, simplify.TargetCollapses(free, ratio))
	if err != nil {
		return nil, 0, err
	}
	return &meshing.MeshData{
		Positions: res.Vertices,
		Normals:   res.Normals,
		Indices:   res.Indices,
		Anchors:   res.Anchors,
	}, res.Collapses, nil
}

func (t *Terrain) upload(done []completion) error {
	if len(done) == 0 {
		return nil
	}
	defer profiling.Track("terrain.upload")()
	var first error
	for _, c := range done {
		l, li := t.levelOf(c.region)
		r := &t.regions[c.region]
		if err := t.replaceMesh(r, c.mesh); err != nil {
			l.setStatus(li, StatusQueued)
			if poolError(err) {
				t.stats.exhausted++
			}
			t.log.Warn("region upload failed", zap.Int("lod", r.Level), zap.Ints("slot", r.Slot[:]), zap.Error(err))
			if first == nil {
				first = fmt.Errorf("upload region %d: %w", c.region, err)
			}
			continue
		}
		r.Empty, r.Draw, r.Hybrid = false, true, false
		l.setStatus(li, StatusReady)
		t.stats.uploaded++
	}
	return first
}

// replaceMesh writes m to fresh pool storage before releasing r's old mesh,
// so r keeps its previous mesh when the pool is exhausted.
func (t *Terrain) replaceMesh(r *Region, m *meshing.MeshData) error {
	h, err := t.pool.Alloc(m.VertexCount(), m.IndexCount())
	if err != nil {
		return err
	}
	if err := t.pool.Write(h, m.Positions, m.Normals, m.Indices); err != nil {
		t.pool.Free(h)
		return err
	}
	t.pool.Free(r.Mesh.Handle)
	r.Mesh = VoxelMesh{Handle: h, VertexCount: m.VertexCount(), IndexCount: m.IndexCount()}
	return nil
}

// updateVisibility hides coarse regions whose footprint the next finer level
// fully covers, working outward so Hidden finer regions count as covered.
func (t *Terrain) updateVisibility() {
	for k := 1; k < len(t.levels); k++ {
		coarse, fine := t.levels[k], t.levels[k-1]
		for i := range coarse.regions {
			r := &coarse.regions[i]
			if r.Status != StatusReady && r.Status != StatusHidden {
				continue
			}
			want := StatusReady
			if fine.loaded && covered(coarse, fine, r) {
				want = StatusHidden
			}
			if r.Status != want {
				coarse.setStatus(int32(i), want)
			}
		}
	}
}

// covered reports whether all eight finer regions inside r have a mesh to
// show, or are known to be empty.
func covered(coarse, fine *Level, r *Region) bool {
	st := coarse.start(r)
	for d := 0; d < 8; d++ {
		var fs [3]int
		for a := 0; a < 3; a++ {
			fs[a] = 2*st[a] + (d>>a&1)*fine.c
		}
		fr := fine.regionAt(fs)
		if fr == nil {
			return false
		}
		switch fr.Status {
		case StatusReady, StatusHidden:
		case StatusPool:
			if !fr.Empty {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// poolError reports whether err came from the buffer pool running out.
func poolError(err error) bool {
	return errors.Is(err, bufpool.ErrPoolExhausted) || errors.Is(err, bufpool.ErrTooLarge)
}
