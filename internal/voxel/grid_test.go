package voxel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fillIota(g *Grid) {
	d := g.Dims()
	for x := 0; x < d[0]; x++ {
		for y := 0; y < d[1]; y++ {
			for z := 0; z < d[2]; z++ {
				g.SetDensity(x, y, z, float32(x*100+y*10+z))
			}
		}
	}
}

func TestNewGridRejectsBadDims(t *testing.T) {
	_, err := NewGrid(0, 4, 4, false)
	require.ErrorIs(t, err, ErrInvalidDimensions)
}

func TestAppendSliceShiftsWindow(t *testing.T) {
	g, err := NewGrid(4, 3, 2, false)
	require.NoError(t, err)
	fillIota(g)

	plane := make([]float32, g.PlaneSize(FacePosX))
	for i := range plane {
		plane[i] = -1
	}
	require.NoError(t, g.AppendSlice(FacePosX, plane))

	assert.Equal(t, [3]int{1, 0, 0}, g.Wrap())
	// old x=1 is now logical x=0
	assert.Equal(t, float32(100+2*10+1), g.Density(0, 2, 1))
	// the fresh plane sits on the leading edge
	for y := 0; y < 3; y++ {
		for z := 0; z < 2; z++ {
			assert.Equal(t, float32(-1), g.Density(3, y, z))
		}
	}
}

func TestAppendSliceNegativeFaceWraps(t *testing.T) {
	g, err := NewGrid(2, 3, 4, false)
	require.NoError(t, err)
	fillIota(g)

	plane := make([]float32, g.PlaneSize(FaceNegY))
	for i := range plane {
		plane[i] = float32(1000 + i)
	}
	require.NoError(t, g.AppendSlice(FaceNegY, plane))
	assert.Equal(t, [3]int{0, 2, 0}, g.Wrap())

	// Y planes are laid out x*D+z
	assert.Equal(t, float32(1000+1*4+3), g.Density(1, 0, 3))
	// old y=0 moved to y=1
	assert.Equal(t, float32(100+0+2), g.Density(1, 1, 2))
}

func TestWrapOffsetsStayInRange(t *testing.T) {
	g, err := NewGrid(3, 3, 3, false)
	require.NoError(t, err)
	plane := make([]float32, 9)
	for i := 0; i < 11; i++ {
		f := Faces[i%len(Faces)]
		require.NoError(t, g.AppendSlice(f, plane))
		for a, w := range g.Wrap() {
			assert.GreaterOrEqual(t, w, 0)
			assert.Less(t, w, g.Dims()[a])
		}
	}
}

func TestAppendSliceRejectsWrongSize(t *testing.T) {
	g, err := NewGrid(2, 2, 2, false)
	require.NoError(t, err)
	err = g.AppendSlice(FacePosZ, make([]float32, 3))
	require.ErrorIs(t, err, ErrSliceSize)
	assert.Equal(t, [3]int{}, g.Wrap())
}

func TestMaterialPlaneFollowsDensity(t *testing.T) {
	g, err := NewGrid(3, 2, 2, true)
	require.NoError(t, err)
	require.NoError(t, g.AppendSlice(FacePosX, make([]float32, 4)))
	require.NoError(t, g.WriteMaterialPlane(FacePosX, []uint8{1, 2, 3, 4}))
	assert.Equal(t, uint8(4), g.Material(2, 1, 1))
	assert.Equal(t, uint8(0), g.Material(0, 1, 1))

	plain, err := NewGrid(2, 2, 2, false)
	require.NoError(t, err)
	require.ErrorIs(t, plain.WriteMaterialPlane(FacePosX, make([]uint8, 4)), ErrNoMaterial)
}

func TestCopyBoxReadsThroughWrap(t *testing.T) {
	g, err := NewGrid(4, 4, 4, true)
	require.NoError(t, err)
	fillIota(g)
	require.NoError(t, g.AppendSlice(FacePosZ, make([]float32, 16)))

	dst := make([]float32, 8)
	mat := make([]uint8, 8)
	require.NoError(t, g.CopyBox([3]int{1, 1, 1}, 2, dst, mat))
	// logical z=1 was z=2 before the slide
	assert.Equal(t, float32(100+10+2), dst[Index(0, 0, 0, 2, 2)])
	assert.Equal(t, float32(200+20+3), dst[Index(1, 1, 1, 2, 2)])

	require.ErrorIs(t, g.CopyBox([3]int{3, 0, 0}, 2, dst, nil), ErrOutOfBounds)
}

func TestBoxOps(t *testing.T) {
	a := NewBox([3]int{0, 0, 0}, [3]int{4, 4, 4})
	b := NewBox([3]int{2, 3, -1}, [3]int{4, 4, 4})
	assert.True(t, a.Intersects(b))
	assert.Equal(t, Box{Min: [3]int{2, 3, 0}, Max: [3]int{4, 4, 3}}, a.Intersection(b))
	assert.False(t, a.Contains(b))
	assert.True(t, a.Contains(NewBox([3]int{1, 1, 1}, [3]int{2, 2, 2})))
	assert.True(t, NewBox([3]int{0, 0, 0}, [3]int{0, 1, 1}).Empty())

	s := NewBox([3]int{-3, 0, 5}, [3]int{4, 4, 4}).Scaled(2)
	assert.Equal(t, Box{Min: [3]int{-2, 0, 2}, Max: [3]int{1, 2, 5}}, s)
}

func TestFloorDivAndMod(t *testing.T) {
	assert.Equal(t, -1, FloorDiv(-1, 16))
	assert.Equal(t, -2, FloorDiv(-17, 16))
	assert.Equal(t, 1, FloorDiv(16, 16))
	assert.Equal(t, 15, Mod(-1, 16))
	assert.Equal(t, 0, Mod(32, 16))
}

func TestFaceHelpers(t *testing.T) {
	for _, f := range Faces {
		assert.Equal(t, f, FaceFor(f.Axis(), f.Sign()))
		assert.Equal(t, f.Axis(), f.Opposite().Axis())
		assert.Equal(t, -f.Sign(), f.Opposite().Sign())
	}
	assert.Equal(t, "-Y", FaceNegY.String())
}
