package core

import (
	"github.com/go-gl/mathgl/mgl32"
)

// WorldUp is fixed: the scan's depth axis points up on screen.
var WorldUp = mgl32.Vec3{0, 0, 1}

// OrthoCamera is an orthographic camera with three.js extent/zoom semantics:
// the visible window is the Left..Right / Bottom..Top box scaled by 1/Zoom
// around its centre.
type OrthoCamera struct {
	Left   float32
	Right  float32
	Top    float32
	Bottom float32
	Near   float32
	Far    float32
	Zoom   float32

	Position mgl32.Vec3
	Target   mgl32.Vec3
	Up       mgl32.Vec3

	proj mgl32.Mat4
}

func NewOrthoCamera() *OrthoCamera {
	c := &OrthoCamera{
		Left:   -1,
		Right:  1,
		Top:    1,
		Bottom: -1,
		Near:   0.1,
		Far:    2000,
		Zoom:   1,
		Up:     WorldUp,
	}
	c.UpdateProjection()
	return c
}

// UpdateProjection must be called after changing extents, zoom or depth range.
func (c *OrthoCamera) UpdateProjection() {
	zoom := c.Zoom
	if zoom <= 0 {
		zoom = 1
	}
	dx := (c.Right - c.Left) / (2 * zoom)
	dy := (c.Top - c.Bottom) / (2 * zoom)
	cx := (c.Right + c.Left) / 2
	cy := (c.Top + c.Bottom) / 2
	c.proj = mgl32.Ortho(cx-dx, cx+dx, cy-dy, cy+dy, c.Near, c.Far)
}

// Projection returns the matrix computed by the last UpdateProjection, in
// OpenGL clip conventions (z in [-1, 1]).
func (c *OrthoCamera) Projection() mgl32.Mat4 {
	return c.proj
}

// View looks along Forward. When Forward is parallel to Up the Y axis, or X
// for a Y-aligned view, stands in as up.
func (c *OrthoCamera) View() mgl32.Mat4 {
	forward := c.Forward()
	return mgl32.LookAtV(c.Position, c.Position.Add(forward), viewUp(forward, c.Up))
}

func viewUp(forward, up mgl32.Vec3) mgl32.Vec3 {
	if up.Len() > 0 && forward.Cross(up.Normalize()).Len() > 1e-6 {
		return up
	}
	if abs(forward.Y()) < 0.9 {
		return mgl32.Vec3{0, 1, 0}
	}
	return mgl32.Vec3{1, 0, 0}
}

func abs(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

func (c *OrthoCamera) ViewProjection() mgl32.Mat4 {
	return c.proj.Mul4(c.View())
}

// Forward is the normalized viewing direction. All rays of an orthographic
// camera share it.
func (c *OrthoCamera) Forward() mgl32.Vec3 {
	dir := c.Target.Sub(c.Position)
	if dir.Len() == 0 {
		return mgl32.Vec3{0, 1, 0}
	}
	return dir.Normalize()
}

// HalfExtents returns the unzoomed horizontal and vertical half sizes.
func (c *OrthoCamera) HalfExtents() (horizontal, vertical float32) {
	return (c.Right - c.Left) / 2, (c.Top - c.Bottom) / 2
}

// SetExtents sets a symmetric window.
func (c *OrthoCamera) SetExtents(horizontal, vertical float32) {
	c.Left, c.Right = -horizontal, horizontal
	c.Bottom, c.Top = -vertical, vertical
}

// ApplyFraming installs extents, depth range and the initial eye position.
// Target is left to the orbit controls.
func (c *OrthoCamera) ApplyFraming(f Framing) {
	c.SetExtents(f.Horizontal, f.Vertical)
	c.Near, c.Far = -f.DepthRange, f.DepthRange
	c.Position = f.Eye
	c.UpdateProjection()
}
