package terrain

import (
	"math"
	"math/rand"
	"testing"

	"voxterrain/internal/voxel"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loadedRing returns a one-level terrain with every region generated around
// origin 0 and a plane at y=0.5.
func loadedRing(t *testing.T) (*Terrain, *Level) {
	t.Helper()
	tr := newTerrain(t, testConfig())
	feed(t, tr, &planeSource{height: 0.5})
	runUntilIdle(t, tr)
	l := tr.Level(0)
	require.Equal(t, [3]int{}, l.Origin())
	require.Equal(t, 16, l.Count(StatusReady))
	return tr, l
}

func xSlice(g int) []float32 {
	data := make([]float32, g*g)
	for y := 0; y < g; y++ {
		for z := 0; z < g; z++ {
			data[y*g+z] = 0.5 - float32(y)
		}
	}
	return data
}

func TestAppendSliceRotatesRingAfterFullRegion(t *testing.T) {
	tr, l := loadedRing(t)
	g := l.g

	for i := 1; i <= 15; i++ {
		require.NoError(t, tr.AppendSlice(0, voxel.FacePosX, xSlice(g), false))
		assert.Equal(t, 0, l.Rotations())
		assert.Equal(t, [3]int{i, 0, 0}, l.Shift())
		assert.Equal(t, 0, l.Count(StatusQueued))
	}

	require.NoError(t, tr.AppendSlice(0, voxel.FacePosX, xSlice(g), false))
	checkInvariants(t, tr)
	assert.Equal(t, 1, l.Rotations())
	assert.Equal(t, [3]int{16, 0, 0}, l.Origin())
	assert.Equal(t, [3]int{}, l.Shift())
	assert.Equal(t, [3]int{1, 0, 0}, l.Wrap())

	require.Equal(t, 16, l.Count(StatusQueued))
	l.lists.each(StatusQueued, func(i int32) {
		r := &l.regions[i]
		assert.False(t, r.Draw)
		assert.False(t, r.HasMesh())
		assert.Equal(t, 3, r.Wrapped[0])
		assert.Equal(t, 0, r.Slot[0], "the old leading slot is reused")
		assert.InDelta(t, float32(64), r.Min[0], 0)
	})
	assert.Equal(t, 12, l.Count(StatusReady))
	assert.Equal(t, 36, l.Count(StatusPool))

	runUntilIdle(t, tr)
	assert.Equal(t, 16, l.Count(StatusReady))
}

func TestNegativeAppendRotatesOtherWay(t *testing.T) {
	tr, l := loadedRing(t)
	for i := 0; i < 16; i++ {
		require.NoError(t, tr.AppendSlice(0, voxel.FaceNegX, xSlice(l.g), false))
	}
	checkInvariants(t, tr)
	assert.Equal(t, [3]int{-16, 0, 0}, l.Origin())
	assert.Equal(t, [3]int{3, 0, 0}, l.Wrap())
	l.lists.each(StatusQueued, func(i int32) {
		assert.Equal(t, 0, l.regions[i].Wrapped[0])
	})
	assert.Equal(t, 16, l.Count(StatusQueued))
}

func TestPartialShiftDefersTrailingRow(t *testing.T) {
	tr, l := loadedRing(t)
	require.NoError(t, tr.AppendSlice(0, voxel.FacePosX, xSlice(l.g), false))

	tr.MarkDirty(voxel.Box{Min: [3]int{-100, -100, -100}, Max: [3]int{100, 100, 100}})
	require.NoError(t, tr.Update())
	checkInvariants(t, tr)
	assert.Equal(t, 48, l.Count(StatusGenerating))
	assert.Equal(t, 16, l.Count(StatusQueued))
	l.lists.each(StatusQueued, func(i int32) {
		assert.Equal(t, 0, l.regions[i].Wrapped[0])
		assert.False(t, l.resident(&l.regions[i]))
	})

	// stepping back makes the row whole again
	require.NoError(t, tr.AppendSlice(0, voxel.FaceNegX, xSlice(l.g), false))
	runUntilIdle(t, tr)
	assert.Equal(t, 16, l.Count(StatusReady))
}

func TestAppendBeforeLoadFails(t *testing.T) {
	tr := newTerrain(t, testConfig())
	err := tr.AppendSlice(0, voxel.FacePosX, xSlice(65), false)
	assert.ErrorIs(t, err, ErrNotLoaded)
	assert.ErrorIs(t, tr.AppendSlice(7, voxel.FacePosX, nil, false), ErrBadLevel)
	assert.ErrorIs(t, tr.AppendSlice(0, voxel.FacePosX, []float32{1}, false), ErrNotLoaded)
}

func TestAppendRejectsWrongSliceSize(t *testing.T) {
	tr, _ := loadedRing(t)
	assert.ErrorIs(t, tr.AppendSlice(0, voxel.FacePosX, []float32{1, 2}, false), voxel.ErrSliceSize)
}

func TestMaterialSliceNeedsMaterialChannel(t *testing.T) {
	tr, l := loadedRing(t)
	require.NoError(t, tr.AppendSlice(0, voxel.FacePosX, xSlice(l.g), false))
	err := tr.AppendSlice(0, voxel.FacePosX, make([]float32, l.g*l.g), true)
	assert.ErrorIs(t, err, voxel.ErrNoMaterial)
	assert.Equal(t, [3]int{1, 0, 0}, l.Shift(), "material planes do not slide the window")
}

func TestMaterialSliceWritesLeadingPlane(t *testing.T) {
	cfg := testConfig()
	cfg.Terrain.Materials = true
	tr := newTerrain(t, cfg)
	feed(t, tr, &planeSource{height: 0.5})
	l := tr.Level(0)

	ids := make([]float32, l.g*l.g)
	for i := range ids {
		ids[i] = 3
	}
	require.NoError(t, tr.AppendSlice(0, voxel.FacePosZ, xSlice(l.g), false))
	require.NoError(t, tr.AppendSlice(0, voxel.FacePosZ, ids, true))
	assert.Equal(t, uint8(3), l.Grid().Material(5, 7, l.g-1))
	assert.Equal(t, uint8(0), l.Grid().Material(5, 7, l.g-2))
}

func TestMaterialSliceRejectsNonByteIDs(t *testing.T) {
	cfg := testConfig()
	cfg.Terrain.Materials = true
	tr := newTerrain(t, cfg)
	feed(t, tr, &planeSource{height: 0.5})
	l := tr.Level(0)
	require.NoError(t, tr.AppendSlice(0, voxel.FacePosZ, xSlice(l.g), false))

	for _, v := range []float32{-1, 256, 2.5, float32(math.NaN())} {
		ids := make([]float32, l.g*l.g)
		ids[len(ids)-1] = v
		err := tr.AppendSlice(0, voxel.FacePosZ, ids, true)
		assert.ErrorIs(t, err, ErrMaterialID, "%v", v)
	}
	assert.Equal(t, uint8(0), l.Grid().Material(l.g-1, l.g-1, l.g-1), "rejected planes write nothing")
}

func TestSetPositionMovesWholeRegions(t *testing.T) {
	tr := newTerrain(t, testConfig())
	l := tr.Level(0)

	assert.True(t, l.SetPosition(mgl32.Vec3{}))
	assert.Equal(t, [3]int{-32, -32, -32}, l.Target())

	assert.False(t, l.SetPosition(mgl32.Vec3{8, -8, 0}), "within half a region")
	assert.True(t, l.SetPosition(mgl32.Vec3{8.5, 0, 0}))
	assert.Equal(t, [3]int{-16, -32, -32}, l.Target())

	l.SetPosition(mgl32.Vec3{100, 0, -100})
	assert.Equal(t, [3]int{64, -32, -128}, l.Target(), "several regions in one call")
}

func TestSetPositionScalesPerLevel(t *testing.T) {
	cfg := testConfig()
	cfg.Terrain.Levels = 3
	tr := newTerrain(t, cfg)
	tr.SetPosition(100, 0, 0)
	assert.Equal(t, 64, tr.Level(0).Target()[0])
	assert.Equal(t, 16, tr.Level(1).Target()[0])
	assert.Equal(t, 0, tr.Level(2).Target()[0])
}

func TestMissingSlice(t *testing.T) {
	tr := newTerrain(t, testConfig())
	l := tr.Level(0)
	tr.SetPosition(0, 0, 0)

	req, ok := tr.MissingSlice(0)
	require.True(t, ok)
	assert.True(t, req.Full)
	assert.Equal(t, Rect{Min: [3]int{-32, -32, -32}, Size: [3]int{65, 65, 65}, Step: 1}, req.Rect)

	src := &planeSource{height: 0.5}
	feed(t, tr, src)
	_, ok = tr.MissingSlice(0)
	assert.False(t, ok)

	tr.SetPosition(0, 9, 0)
	req, ok = tr.MissingSlice(0)
	require.True(t, ok)
	assert.False(t, req.Full)
	assert.Equal(t, voxel.FacePosY, req.Face)
	assert.Equal(t, Rect{Min: [3]int{-32, 33, -32}, Size: [3]int{65, 1, 65}, Step: 1}, req.Rect)

	feed(t, tr, src)
	assert.Equal(t, 1, l.Rotations())
	assert.Equal(t, [3]int{-32, -16, -32}, l.Origin())

	tr.SetPosition(0, -9, 0)
	req, ok = tr.MissingSlice(0)
	require.True(t, ok)
	assert.Equal(t, voxel.FaceNegY, req.Face)
	assert.Equal(t, -17, req.Rect.Min[1])

	tr.SetPosition(1000, 0, 0)
	req, ok = tr.MissingSlice(0)
	require.True(t, ok)
	assert.True(t, req.Full, "far jumps reload")
}

func TestMissingSliceOnCoarseLevelUsesWorldUnits(t *testing.T) {
	cfg := testConfig()
	cfg.Terrain.Levels = 2
	tr := newTerrain(t, cfg)
	tr.SetPosition(0, 0, 0)
	feed(t, tr, &planeSource{height: 0.5})

	tr.SetPosition(20, 0, 0)
	req, ok := tr.MissingSlice(1)
	require.True(t, ok)
	assert.Equal(t, voxel.FacePosX, req.Face)
	assert.Equal(t, 2, req.Rect.Step)
	assert.Equal(t, (-32+65)*2, req.Rect.Min[0])
	assert.Equal(t, -64, req.Rect.Min[1])
}

func TestWindowingInvariantUnderRandomWalk(t *testing.T) {
	cfg := testConfig()
	cfg.Terrain.Levels = 2
	cfg.Terrain.MaxUpdates = 8
	tr := newTerrain(t, cfg)
	src := &planeSource{height: 0.5}
	rng := rand.New(rand.NewSource(7))

	pos := mgl32.Vec3{}
	for step := 0; step < 60; step++ {
		for a := 0; a < 3; a++ {
			pos[a] += float32(rng.Intn(41) - 20)
		}
		if step%15 == 14 {
			pos[0] += 500
		}
		tr.SetPosition(pos[0], pos[1], pos[2])
		feed(t, tr, src)
		require.NoError(t, tr.Update())
		checkInvariants(t, tr)
		for k := 0; k < tr.Levels(); k++ {
			l := tr.Level(k)
			assert.Equal(t, l.Target(), l.Base())
			assert.Equal(t, [3]int{}, l.Shift())
		}
	}
	runUntilIdle(t, tr)
}

func TestStatusListsKeepFIFOOrder(t *testing.T) {
	l := newStatusLists(5)
	for i := int32(0); i < 5; i++ {
		l.push(StatusPool, i)
	}
	l.move(3, StatusQueued)
	l.move(1, StatusQueued)
	l.move(4, StatusQueued)
	l.move(1, StatusReady)
	l.move(1, StatusQueued)

	var order []int32
	l.each(StatusQueued, func(i int32) { order = append(order, i) })
	assert.Equal(t, []int32{3, 4, 1}, order)
	assert.Equal(t, 3, l.len(StatusQueued))
	assert.Equal(t, 2, l.len(StatusPool))
	assert.Equal(t, 0, l.len(StatusReady))
	assert.Equal(t, int32(0), l.first(StatusPool))

	l.remove(0)
	l.remove(0)
	assert.Equal(t, int32(2), l.first(StatusPool))
	assert.Equal(t, 1, l.len(StatusPool))
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "generating", StatusGenerating.String())
	assert.Equal(t, "hidden", StatusHidden.String())
	assert.Equal(t, "status(9)", Status(9).String())
}
