// Package flycam is a free-flying yaw/pitch camera.
package flycam

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

const (
	sensitivity = 0.1
	maxPitch    = 89.0
)

// Camera looks along Yaw/Pitch (degrees) from Position. Yaw 0 faces +X.
type Camera struct {
	Position mgl32.Vec3
	Yaw      float64
	Pitch    float64

	FOV    float32 // vertical, degrees
	Aspect float32
	Near   float32
	Far    float32
	Speed  float32 // units per second

	firstMouse   bool
	lastX, lastY float64
}

// New returns a camera at pos facing -Z.
func New(pos mgl32.Vec3, width, height int) *Camera {
	return &Camera{
		Position:   pos,
		Yaw:        -90,
		FOV:        70,
		Aspect:     float32(width) / float32(height),
		Near:       0.1,
		Far:        4000,
		Speed:      24,
		firstMouse: true,
	}
}

// Look applies a cursor position. The first call after ResetMouse only
// records the position.
func (c *Camera) Look(xpos, ypos float64) {
	if c.firstMouse {
		c.lastX, c.lastY = xpos, ypos
		c.firstMouse = false
		return
	}
	dx, dy := xpos-c.lastX, c.lastY-ypos
	c.lastX, c.lastY = xpos, ypos
	c.Yaw += dx * sensitivity
	c.Pitch = math.Max(-maxPitch, math.Min(maxPitch, c.Pitch+dy*sensitivity))
}

// ResetMouse forgets the last cursor position, e.g. after the cursor was
// released and captured again.
func (c *Camera) ResetMouse() { c.firstMouse = true }

// Front is the unit view direction.
func (c *Camera) Front() mgl32.Vec3 {
	y := float64(mgl32.DegToRad(float32(c.Yaw)))
	p := float64(mgl32.DegToRad(float32(c.Pitch)))
	return mgl32.Vec3{
		float32(math.Cos(y) * math.Cos(p)),
		float32(math.Sin(p)),
		float32(math.Sin(y) * math.Cos(p)),
	}.Normalize()
}

// Move flies along the view direction. forward, right and up are in -1..1.
func (c *Camera) Move(forward, right, up float32, dt float64) {
	front := c.Front()
	side := front.Cross(mgl32.Vec3{0, 1, 0}).Normalize()
	step := c.Speed * float32(dt)
	d := front.Mul(forward).Add(side.Mul(right)).Add(mgl32.Vec3{0, up, 0})
	if d.Len() == 0 {
		return
	}
	c.Position = c.Position.Add(d.Normalize().Mul(step))
}

func (c *Camera) View() mgl32.Mat4 {
	return mgl32.LookAtV(c.Position, c.Position.Add(c.Front()), mgl32.Vec3{0, 1, 0})
}

func (c *Camera) Projection() mgl32.Mat4 {
	return mgl32.Perspective(mgl32.DegToRad(c.FOV), c.Aspect, c.Near, c.Far)
}

// ViewProj is Projection*View, ready for frustum extraction.
func (c *Camera) ViewProj() mgl32.Mat4 {
	return c.Projection().Mul4(c.View())
}
