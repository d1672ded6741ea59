// Package debugviz renders density grids to images for offline inspection.
package debugviz

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"

	"voxterrain/internal/voxel"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var ErrLayer = errors.New("debugviz: layer out of range")

var (
	airColor     = color.RGBA{24, 32, 56, 255}
	surfaceColor = color.RGBA{255, 255, 255, 255}
	labelColor   = color.RGBA{255, 230, 80, 255}
)

// materialColors indexes solid colours by material id; 0 and unknown ids
// fall back to the first entry.
var materialColors = []color.RGBA{
	{128, 128, 128, 255},
	{110, 110, 120, 255},
	{120, 85, 50, 255},
	{80, 150, 60, 255},
}

// surfaceBand is the |density| below which a sample is drawn as surface.
const surfaceBand = 0.1

// sliceAxes returns the image axes for a slice across axis: u runs left to
// right and v bottom to top.
func sliceAxes(axis int) (u, v int) {
	switch axis {
	case 0:
		return 2, 1
	case 1:
		return 0, 2
	default:
		return 0, 1
	}
}

// Slice draws the plane layer across axis of g, one pixel per sample.
func Slice(g *voxel.Grid, axis, layer int) (*image.RGBA, error) {
	dims := g.Dims()
	if axis < 0 || axis > 2 || layer < 0 || layer >= dims[axis] {
		return nil, fmt.Errorf("%w: axis %d layer %d", ErrLayer, axis, layer)
	}
	u, v := sliceAxes(axis)
	w, h := dims[u], dims[v]
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for j := 0; j < h; j++ {
		for i := 0; i < w; i++ {
			var p [3]int
			p[axis], p[u], p[v] = layer, i, j
			img.SetRGBA(i, h-1-j, sampleColor(g, p))
		}
	}
	return img, nil
}

func sampleColor(g *voxel.Grid, p [3]int) color.RGBA {
	d := g.Density(p[0], p[1], p[2])
	switch {
	case d > -surfaceBand && d < surfaceBand:
		return surfaceColor
	case d <= 0:
		return airColor
	}
	m := int(g.Material(p[0], p[1], p[2]))
	if m >= len(materialColors) {
		m = 0
	}
	c := materialColors[m]
	// deeper samples are darker
	f := 1 / (1 + d*0.1)
	return color.RGBA{uint8(float32(c.R) * f), uint8(float32(c.G) * f), uint8(float32(c.B) * f), 255}
}

// Scale enlarges img by an integer factor without smoothing.
func Scale(img image.Image, factor int) *image.RGBA {
	if factor < 1 {
		factor = 1
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx()*factor, b.Dy()*factor))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// Label writes text in the top-left corner of img.
func Label(img draw.Image, text string) {
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(labelColor),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(2, 12),
	}
	d.DrawString(text)
}

// WritePNG encodes img to path.
func WritePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}
