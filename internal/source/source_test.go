package source

import (
	"testing"

	"voxterrain/internal/config"
	"voxterrain/internal/terrain"
	"voxterrain/internal/voxel"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testNoise() *Noise {
	return New(config.Default().Source)
}

func TestDensityFollowsAltitude(t *testing.T) {
	n := testNoise()
	for x := -50.0; x <= 50; x += 12.5 {
		assert.Greater(t, n.Density(x, -64, x), float32(0), "deep underground is solid")
		assert.Less(t, n.Density(x, 64, -x), float32(0), "high above is air")
	}
}

func TestSampleMatchesDensity(t *testing.T) {
	n := testNoise()
	r := terrain.Rect{Min: [3]int{-6, -4, 10}, Size: [3]int{3, 4, 5}, Step: 2}
	dst := make([]float32, r.Len())
	n.Sample(r, dst)

	for x := 0; x < 3; x++ {
		for y := 0; y < 4; y++ {
			for z := 0; z < 5; z++ {
				want := n.Density(float64(-6+2*x), float64(-4+2*y), float64(10+2*z))
				assert.Equal(t, want, dst[voxel.Index(x, y, z, 4, 5)])
			}
		}
	}
}

func TestSampleMaterialsByDepth(t *testing.T) {
	n := testNoise()
	r := terrain.Rect{Min: [3]int{0, -10, 0}, Size: [3]int{1, 12, 1}, Step: 1}
	dst := make([]uint8, r.Len())
	n.SampleMaterials(r, dst)
	assert.Equal(t, MaterialStone, dst[0])
	assert.Equal(t, MaterialDirt, dst[9])
	assert.Equal(t, MaterialGrass, dst[10])
	assert.Equal(t, MaterialGrass, dst[11])
}

func TestCarveAndFill(t *testing.T) {
	n := testNoise()
	deep := mgl32.Vec3{4, -60, 4}
	sky := mgl32.Vec3{4, 60, 4}
	require.Greater(t, n.Density(4, -60, 4), float32(0))
	require.Less(t, n.Density(4, 60, 4), float32(0))

	n.Carve(deep, 5)
	n.Fill(sky, 5)
	assert.Less(t, n.Density(4, -60, 4), float32(0))
	assert.Greater(t, n.Density(4, 60, 4), float32(0))
	assert.Greater(t, n.Density(4, -60, 12), float32(0), "outside the sphere is untouched")
	assert.Equal(t, 2, n.Edits())

	n.Carve(deep, 0)
	assert.Equal(t, 2, n.Edits(), "empty edits are ignored")
}

func TestDirtyRectsCoverEditsAndReset(t *testing.T) {
	n := testNoise()
	n.Carve(mgl32.Vec3{0.5, 0, -3}, 2)
	dirty := n.DirtyRects()
	require.Len(t, dirty, 1)
	assert.Equal(t, voxel.Box{Min: [3]int{-3, -3, -6}, Max: [3]int{5, 4, 1}}, dirty[0])
	assert.True(t, dirty[0].Contains(voxel.NewBox([3]int{-2, -2, -5}, [3]int{5, 5, 5})))
	assert.Empty(t, n.DirtyRects())
}

func smallTerrainConfig() *config.Config {
	cfg := config.Default()
	cfg.Terrain.Levels = 1
	cfg.Terrain.Subregions = 2
	cfg.Terrain.SubregionDim = 9
	cfg.Terrain.MaxUpdates = 8
	cfg.Simplify.Enabled = false
	cfg.Hybrid.Enabled = false
	// keep the surface within a few units of y=0
	cfg.Source.GradientStrength = 2
	return cfg
}

func settle(t *testing.T, tr *terrain.Terrain) {
	t.Helper()
	for i := 0; i < 50; i++ {
		require.NoError(t, tr.Update())
	}
	st := tr.Stats()
	require.Zero(t, st.InFlight)
	require.Zero(t, st.Regions[terrain.StatusQueued])
}

func TestNoiseDrivesTerrain(t *testing.T) {
	cfg := smallTerrainConfig()
	n := New(cfg.Source)
	tr, err := terrain.New(cfg, terrain.WithSource(n))
	require.NoError(t, err)
	t.Cleanup(tr.Close)

	tr.SetPosition(0, 0, 0)
	settle(t, tr)
	before := tr.Stats()
	require.Equal(t, 1, before.Loads)
	require.Greater(t, before.Regions[terrain.StatusReady], 0)
	_, ok := tr.MissingSlice(0)
	assert.False(t, ok)

	n.Carve(mgl32.Vec3{0, 0, 0}, 3)
	settle(t, tr)
	after := tr.Stats()
	assert.Greater(t, after.Dispatched, before.Dispatched, "the carved region is remeshed")
	assert.Equal(t, before.Loads, after.Loads)
}
