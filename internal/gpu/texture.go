package gpu

// Texture3D is a single-channel float volume, laid out (x*H+y)*D+z.
type Texture3D struct {
	Dim  [3]int
	Data []float32
}

// NewTexture3D allocates a w×h×d texture.
func NewTexture3D(w, h, d int) *Texture3D {
	return &Texture3D{Dim: [3]int{w, h, d}, Data: make([]float32, w*h*d)}
}

// At samples the texture with clamp-to-edge addressing.
func (t *Texture3D) At(x, y, z int) float32 {
	x = min(max(x, 0), t.Dim[0]-1)
	y = min(max(y, 0), t.Dim[1]-1)
	z = min(max(z, 0), t.Dim[2]-1)
	return t.Data[(x*t.Dim[1]+y)*t.Dim[2]+z]
}

// TexturePair ping-pongs two textures: one may still be read by an in-flight
// submission while the other is written for the next.
type TexturePair struct {
	tex   [2]*Texture3D
	fence [2]*Fence
	next  int
}

// NewTexturePair allocates both textures.
func NewTexturePair(w, h, d int) *TexturePair {
	return &TexturePair{tex: [2]*Texture3D{NewTexture3D(w, h, d), NewTexture3D(w, h, d)}}
}

func (p *TexturePair) free(i int) bool {
	return p.fence[i] == nil || p.fence[i].Signaled()
}

// Acquire returns the next writable texture, alternating between the two.
// ok is false when both are still held by unsignaled fences.
func (p *TexturePair) Acquire() (slot int, tex *Texture3D, ok bool) {
	for k := 0; k < 2; k++ {
		i := (p.next + k) % 2
		if p.free(i) {
			p.next = (i + 1) % 2
			return i, p.tex[i], true
		}
	}
	return -1, nil, false
}

// Hold marks slot busy until f signals.
func (p *TexturePair) Hold(slot int, f *Fence) {
	p.fence[slot] = f
}

// Busy reports whether neither texture can be written.
func (p *TexturePair) Busy() bool {
	return !p.free(0) && !p.free(1)
}
