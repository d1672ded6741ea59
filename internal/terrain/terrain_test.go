package terrain

import (
	"errors"
	"testing"
	"time"

	"voxterrain/internal/bufpool"
	"voxterrain/internal/config"
	"voxterrain/internal/gpu"
	"voxterrain/internal/meshing"
	"voxterrain/internal/voxel"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// planeSource is solid below y = height.
type planeSource struct {
	height float32
	dirty  []voxel.Box
}

func (p *planeSource) Sample(r Rect, dst []float32) {
	for x := 0; x < r.Size[0]; x++ {
		for y := 0; y < r.Size[1]; y++ {
			wy := float32(r.Min[1] + y*r.Step)
			for z := 0; z < r.Size[2]; z++ {
				dst[(x*r.Size[1]+y)*r.Size[2]+z] = p.height - wy
			}
		}
	}
}

func (p *planeSource) SampleMaterials(r Rect, dst []uint8) {
	for i := range dst {
		dst[i] = 1
	}
}

func (p *planeSource) DirtyRects() []voxel.Box {
	d := p.dirty
	p.dirty = nil
	return d
}

type manualFuture struct {
	req  meshing.Request
	done bool
	mesh *meshing.MeshData
	err  error
}

func (f *manualFuture) Done() bool { return f.done }

func (f *manualFuture) Result() (*meshing.MeshData, error) {
	if !f.done {
		return nil, meshing.ErrNotReady
	}
	return f.mesh, f.err
}

func (f *manualFuture) Wait() (*meshing.MeshData, error) {
	if !f.done {
		f.mesh, f.err = meshing.March(f.req, meshing.MarchingCubes)
		f.done = true
	}
	return f.mesh, f.err
}

// manualBackend resolves futures only when told to.
type manualBackend struct {
	pending []*manualFuture
	busy    bool
	fail    error
}

func (b *manualBackend) Name() string { return "manual" }
func (b *manualBackend) Busy() bool   { return b.busy }
func (b *manualBackend) Close()       {}

func (b *manualBackend) Extract(_ *gpu.Context, req meshing.Request) (meshing.Future, error) {
	if b.busy {
		return nil, meshing.ErrBusy
	}
	f := &manualFuture{req: req}
	b.pending = append(b.pending, f)
	return f, nil
}

func (b *manualBackend) resolveAll() {
	for _, f := range b.pending {
		if b.fail != nil {
			f.err, f.done = b.fail, true
			continue
		}
		_, _ = f.Wait()
	}
	b.pending = nil
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Terrain.Levels = 1
	cfg.Terrain.Subregions = 4
	cfg.Terrain.SubregionDim = 17
	cfg.Terrain.MaxUpdates = 64
	cfg.Terrain.Materials = false
	cfg.Simplify.Enabled = false
	cfg.Hybrid.Enabled = false
	cfg.Pool.VertexCapacity = 1 << 18
	cfg.Pool.IndexCapacity = 1 << 21
	return cfg
}

func newTerrain(t *testing.T, cfg *config.Config, opts ...Option) *Terrain {
	t.Helper()
	tr, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(tr.Close)
	return tr
}

// feed answers every missing slice the way an engine without a DataSource would.
func feed(t *testing.T, tr *Terrain, src DataSource) {
	t.Helper()
	for k := 0; k < tr.Levels(); k++ {
		for {
			req, ok := tr.MissingSlice(k)
			if !ok {
				break
			}
			buf := make([]float32, req.Rect.Len())
			src.Sample(req.Rect, buf)
			if req.Full {
				require.NoError(t, tr.LoadLevel(k, buf, nil))
				continue
			}
			require.NoError(t, tr.AppendSlice(k, req.Face, buf, false))
		}
	}
}

func busy(tr *Terrain) int {
	n := 0
	for k := 0; k < tr.Levels(); k++ {
		l := tr.Level(k)
		n += l.Count(StatusQueued) + l.Count(StatusGenerating)
	}
	return n
}

func runUntilIdle(t *testing.T, tr *Terrain) {
	t.Helper()
	for i := 0; i < 200; i++ {
		require.NoError(t, tr.Update())
		checkInvariants(t, tr)
		if busy(tr) == 0 {
			return
		}
	}
	t.Fatalf("terrain still busy after 200 ticks: %+v", tr.Stats().Regions)
}

// checkInvariants verifies ring coordinates and list membership of every region.
func checkInvariants(t *testing.T, tr *Terrain) {
	t.Helper()
	for k := 0; k < tr.Levels(); k++ {
		l := tr.Level(k)
		total := 0
		for s := StatusPool; s < statusCount; s++ {
			total += l.Count(s)
		}
		require.Equal(t, l.RegionCount(), total, "level %d list sizes", k)

		seen := map[[3]int]bool{}
		for i := 0; i < l.RegionCount(); i++ {
			r := l.Slot(i)
			require.Less(t, int(r.Status), int(statusCount))
			require.Equal(t, r.Status, l.lists.in[i], "level %d region %d", k, i)
			require.True(t, l.lists.contains(r.Status, int32(i)))
			for a := 0; a < 3; a++ {
				require.GreaterOrEqual(t, r.Wrapped[a], 0)
				require.Less(t, r.Wrapped[a], l.n)
				require.Equal(t, voxel.Mod(r.Slot[a]-l.wrap[a], l.n), r.Wrapped[a])
			}
			require.False(t, seen[r.Wrapped], "duplicate ring position %v", r.Wrapped)
			seen[r.Wrapped] = true
		}
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Terrain.Levels = 0
	_, err := New(cfg)
	assert.ErrorIs(t, err, config.ErrInvalid)

	cfg = testConfig()
	cfg.Pool.VertexCapacity = 1000
	_, err = New(cfg)
	assert.ErrorIs(t, err, config.ErrInvalid)

	cfg = testConfig()
	cfg.Meshing.Algorithm = "dual-contouring"
	_, err = New(cfg)
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestNewBuildsArena(t *testing.T) {
	cfg := testConfig()
	cfg.Terrain.Levels = 3
	tr := newTerrain(t, cfg)
	assert.Equal(t, 3*64, tr.RegionCount())
	assert.Equal(t, "software", tr.Backend().Name())
	for k := 0; k < 3; k++ {
		assert.Equal(t, 64, tr.Level(k).Count(StatusPool))
		assert.Equal(t, 1<<k, tr.Level(k).Scale())
	}
	assert.Nil(t, tr.Level(3))
	checkInvariants(t, tr)
}

func TestHardwareBackendGetsOwnDevice(t *testing.T) {
	cfg := testConfig()
	cfg.Meshing.Backend = "hardware"
	tr := newTerrain(t, cfg, WithSource(&planeSource{height: 0.5}))
	require.NotNil(t, tr.Context().Device)
	tr.SetPosition(0, 0, 0)
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		require.NoError(t, tr.Update())
		checkInvariants(t, tr)
		if busy(tr) == 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	assert.Equal(t, 16, tr.Level(0).Count(StatusReady))
	assert.Equal(t, 48, tr.Level(0).Count(StatusPool))
}

func TestStreamingGeneratesPlane(t *testing.T) {
	tr := newTerrain(t, testConfig(), WithSource(&planeSource{height: 0.5}))
	tr.SetPosition(0, 0, 0)

	require.NoError(t, tr.Update())
	l := tr.Level(0)
	assert.True(t, l.Loaded())
	assert.Equal(t, [3]int{-32, -32, -32}, l.Origin())
	assert.Equal(t, 64, l.Count(StatusGenerating))

	require.NoError(t, tr.Update())
	checkInvariants(t, tr)
	assert.Equal(t, 16, l.Count(StatusReady))
	assert.Equal(t, 48, l.Count(StatusPool))
	for i := 0; i < l.RegionCount(); i++ {
		r := l.Slot(i)
		if r.Status == StatusReady {
			assert.Equal(t, 2, r.Wrapped[1])
			assert.True(t, r.Draw)
			assert.Greater(t, r.Mesh.VertexCount, 0)
		} else {
			assert.True(t, r.Empty)
			assert.False(t, r.HasMesh())
		}
	}
	st := tr.Stats()
	assert.Equal(t, 1, st.Loads)
	assert.Equal(t, 64, st.Completed)
	assert.Equal(t, 16, st.Uploaded)
	assert.Equal(t, 16, st.Buffers.Allocations)
}

func TestBudgetBoundsDispatchPerTick(t *testing.T) {
	cfg := testConfig()
	cfg.Terrain.Levels = 2
	cfg.Terrain.MaxUpdates = 3
	tr := newTerrain(t, cfg, WithSource(&planeSource{height: 0.5}))
	tr.SetPosition(0, 0, 0)

	for i := 0; i < 200; i++ {
		before := tr.Stats().Dispatched
		require.NoError(t, tr.Update())
		checkInvariants(t, tr)
		assert.LessOrEqual(t, tr.Stats().Dispatched-before, 3)

		generating := 0
		for k := 0; k < tr.Levels(); k++ {
			if tr.Level(k).Count(StatusGenerating) > 0 {
				generating++
			}
		}
		assert.LessOrEqual(t, generating, 1, "only one level dispatches per tick")
		if busy(tr) == 0 {
			break
		}
	}
	assert.Equal(t, 0, busy(tr))
	assert.Equal(t, 128, tr.Stats().Dispatched)
}

func TestCullWithoutFrustumSelectsReadyOnly(t *testing.T) {
	cfg := testConfig()
	cfg.Terrain.Levels = 2
	cfg.Simplify.Enabled = true
	tr := newTerrain(t, cfg, WithSource(&planeSource{height: 8.5}))
	tr.SetPosition(0, 0, 0)
	runUntilIdle(t, tr)

	coarse := tr.Level(1)
	assert.Equal(t, 4, coarse.Count(StatusHidden))
	assert.Equal(t, 12, coarse.Count(StatusReady))
	assert.Equal(t, 16, tr.Level(0).Count(StatusReady))
	assert.Greater(t, tr.Stats().Collapses, 0)

	n := tr.CullRegions(nil)
	assert.Equal(t, 28, n)
	for _, i := range tr.Visible() {
		assert.Equal(t, StatusReady, tr.Region(i).Status)
	}

	var calls []DrawCall
	tr.Render(nil, rendererFunc(func(_ *gpu.Context, c DrawCall) { calls = append(calls, c) }))
	require.Len(t, calls, 28)
	for _, c := range calls {
		r := tr.Region(c.Region)
		assert.Equal(t, r.Transform, c.Transform)
		assert.Equal(t, r.Level, c.Level)
		assert.Greater(t, c.Indices.Count, 0)
		assert.Len(t, tr.Pool().IndexSpan(r.Mesh.Handle), c.Indices.Count)
	}
}

func TestHiddenRegionShownWhenFinerRowEvicted(t *testing.T) {
	cfg := testConfig()
	cfg.Terrain.Levels = 2
	cfg.Simplify.Enabled = true
	tr := newTerrain(t, cfg)
	tr.SetPosition(0, 0, 0)
	feed(t, tr, &planeSource{height: 8.5})
	runUntilIdle(t, tr)

	coarse, fine := tr.Level(1), tr.Level(0)
	require.Equal(t, 4, coarse.Count(StatusHidden))
	hidden := map[int32]bool{}
	coarse.lists.each(StatusHidden, func(i int32) { hidden[i] = true })

	for i := 0; i < 16; i++ {
		require.NoError(t, tr.AppendSlice(0, voxel.FacePosX, xSlice(fine.g), false))
	}
	require.NoError(t, tr.Update())
	checkInvariants(t, tr)

	assert.Less(t, coarse.Count(StatusHidden), 4)
	assert.Greater(t, coarse.Count(StatusReady), 12)

	tr.CullRegions(nil)
	visible := map[int]bool{}
	for _, i := range tr.Visible() {
		visible[i] = true
	}
	shown := 0
	for i := range hidden {
		r := &coarse.regions[i]
		if r.Status != StatusReady {
			assert.Equal(t, StatusHidden, r.Status)
			continue
		}
		shown++
		assert.True(t, r.HasMesh())
		assert.True(t, visible[coarse.first+int(i)], "region %v drawn again", r.Slot)
	}
	assert.Positive(t, shown)
}

type rendererFunc func(*gpu.Context, DrawCall)

func (f rendererFunc) Draw(ctx *gpu.Context, c DrawCall) { f(ctx, c) }

func TestDirtyRectResamplesAndRequeues(t *testing.T) {
	src := &planeSource{height: 0.5}
	tr := newTerrain(t, testConfig(), WithSource(src))
	tr.SetPosition(0, 0, 0)
	runUntilIdle(t, tr)

	src.height = 20.5
	src.dirty = append(src.dirty, voxel.Box{Min: [3]int{-64, -64, -64}, Max: [3]int{64, 64, 64}})
	runUntilIdle(t, tr)

	l := tr.Level(0)
	assert.Equal(t, 16, l.Count(StatusReady))
	for i := 0; i < l.RegionCount(); i++ {
		if r := l.Slot(i); r.Status == StatusReady {
			assert.Equal(t, 3, r.Wrapped[1])
		}
	}
}

func TestRegionDirtiedWhileGeneratingIsRequeued(t *testing.T) {
	be := &manualBackend{}
	tr := newTerrain(t, testConfig(), WithBackend(be))
	feed(t, tr, &planeSource{height: 0.5})
	l := tr.Level(0)

	require.NoError(t, tr.Update())
	require.Equal(t, 64, l.Count(StatusGenerating))

	tr.MarkDirty(voxel.Box{Min: [3]int{-100, -100, -100}, Max: [3]int{100, 100, 100}})
	require.NoError(t, tr.Update())
	checkInvariants(t, tr)
	assert.Equal(t, 64, l.Count(StatusGenerating))
	for i := 0; i < l.RegionCount(); i++ {
		assert.True(t, l.Slot(i).NeedsReupdate)
	}

	be.resolveAll()
	require.NoError(t, tr.Update())
	checkInvariants(t, tr)
	assert.Equal(t, 64, tr.Stats().Discarded)
	assert.Equal(t, 64, l.Count(StatusGenerating), "requeued and dispatched again")
	for i := 0; i < l.RegionCount(); i++ {
		assert.False(t, l.Slot(i).NeedsReupdate)
	}

	be.resolveAll()
	require.NoError(t, tr.Update())
	assert.Equal(t, 16, l.Count(StatusReady))
	assert.Equal(t, 48, l.Count(StatusPool))
}

func TestFailedGenerationStaysQueued(t *testing.T) {
	boom := errors.New("boom")
	be := &manualBackend{fail: boom}
	cfg := testConfig()
	tr := newTerrain(t, cfg, WithBackend(be))
	feed(t, tr, &planeSource{height: 0.5})
	l := tr.Level(0)

	require.NoError(t, tr.Update())
	be.resolveAll()
	cfg.Terrain.MaxUpdates = 1
	err := tr.Update()
	require.ErrorIs(t, err, boom)
	checkInvariants(t, tr)
	assert.Equal(t, 64, tr.Stats().Failed)
	assert.Equal(t, 63, l.Count(StatusQueued))
	assert.Equal(t, 1, l.Count(StatusGenerating))

	be.fail = nil
	cfg.Terrain.MaxUpdates = 64
	for i := 0; i < 10 && busy(tr) > 0; i++ {
		be.resolveAll()
		require.NoError(t, tr.Update())
	}
	assert.Equal(t, 16, l.Count(StatusReady))
}

func TestBusyBackendDefersDispatch(t *testing.T) {
	be := &manualBackend{busy: true}
	tr := newTerrain(t, testConfig(), WithBackend(be))
	feed(t, tr, &planeSource{height: 0.5})

	require.NoError(t, tr.Update())
	assert.Equal(t, 64, tr.Level(0).Count(StatusQueued))
	assert.Equal(t, 0, tr.Stats().Dispatched)

	be.busy = false
	require.NoError(t, tr.Update())
	assert.Equal(t, 64, tr.Level(0).Count(StatusGenerating))
}

// checkerDensity alternates sign on every sample, so every cell carries surface.
func checkerDensity(g int) []float32 {
	d := make([]float32, g*g*g)
	for x := 0; x < g; x++ {
		for y := 0; y < g; y++ {
			for z := 0; z < g; z++ {
				v := float32(1)
				if (x+y+z)%2 == 1 {
					v = -1
				}
				d[voxel.Index(x, y, z, g, g)] = v
			}
		}
	}
	return d
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

func TestPoolExhaustionIsReportedAndRetried(t *testing.T) {
	cfg := testConfig()
	cfg.Terrain.Subregions = 2
	cfg.Terrain.SubregionDim = 5
	cfg.Pool.MinBlock = 1
	v, i := meshing.WorstCase(5, meshing.MarchingCubes)
	cfg.Pool.VertexCapacity = nextPow2(v)
	cfg.Pool.IndexCapacity = nextPow2(i)
	tr := newTerrain(t, cfg)
	require.NoError(t, tr.LoadLevel(0, checkerDensity(cfg.Terrain.GridDim()), nil))
	l := tr.Level(0)

	require.NoError(t, tr.Update())
	require.Equal(t, 8, l.Count(StatusGenerating))
	err := tr.Update()
	require.ErrorIs(t, err, bufpool.ErrPoolExhausted)
	checkInvariants(t, tr)
	assert.Equal(t, 1, l.Count(StatusReady))
	assert.Equal(t, 7, l.Count(StatusQueued))
	assert.Equal(t, 7, tr.Stats().Exhausted)
}

func TestUpdateAfterClose(t *testing.T) {
	tr, err := New(testConfig())
	require.NoError(t, err)
	tr.Close()
	tr.Close()
	assert.ErrorIs(t, tr.Update(), ErrClosed)
}
