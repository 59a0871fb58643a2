package core

import (
	"github.com/go-gl/mathgl/mgl32"
)

// FramingOffset widens the camera window so the volume stays inside it while
// the user orbits.
const FramingOffset = 1.75

// Framing is the camera setup for one grid.
type Framing struct {
	// Horizontal and Vertical are half extents of the orthographic window.
	Horizontal float32
	Vertical   float32

	// Center is the grid's geometric centre in world space, used as the
	// orbit target. Translation moves a box centred on the origin there, so
	// voxel (i,j,k) sits at integer coordinates.
	Center      mgl32.Vec3
	Translation mgl32.Vec3

	// Eye is the initial camera position.
	Eye mgl32.Vec3

	// DepthRange is symmetric around the eye so the whole box survives any
	// orbit.
	DepthRange float32
}

// Frame computes the camera framing for a width x height x depth grid viewed
// on a surface with the given aspect ratio (width / height).
//
// The in-plane radius is half the larger of width and height; the vertical
// reference is half the depth (depth is the up axis). For aspect >= 1 the
// horizontal extent is aspect-scaled, otherwise the vertical extent is
// scaled by 1/aspect, so narrow viewports never clip the volume.
func Frame(width, height, depth int, aspect float32) Framing {
	if aspect <= 0 {
		aspect = 1
	}
	halfX := float32(width) / 2
	halfY := float32(height) / 2
	halfZ := float32(depth) / 2
	radius := halfX
	if halfY > radius {
		radius = halfY
	}

	f := Framing{}
	if aspect >= 1 {
		f.Horizontal = radius * aspect * FramingOffset
		f.Vertical = halfZ * FramingOffset
	} else {
		f.Horizontal = radius * FramingOffset
		f.Vertical = halfZ / aspect * FramingOffset
	}

	f.Translation = mgl32.Vec3{halfX - 0.5, halfY - 0.5, halfZ - 0.5}
	f.Center = f.Translation
	f.Eye = mgl32.Vec3{0, 0, f.Vertical / 2}

	longest := radius
	if halfZ > longest {
		longest = halfZ
	}
	f.DepthRange = 8 * longest
	if f.DepthRange < 1 {
		f.DepthRange = 1
	}
	return f
}

// ResizeHorizontal keeps the vertical half extent and derives the horizontal
// one from the new aspect ratio.
func ResizeHorizontal(vertical float32, width, height int) float32 {
	if height <= 0 {
		return vertical
	}
	return vertical * float32(width) / float32(height)
}

// ClampZoom bounds z to [lo, hi]. NaN maps to lo.
func ClampZoom(z, lo, hi float32) float32 {
	if z != z || z < lo {
		return lo
	}
	if z > hi {
		return hi
	}
	return z
}

const (
	ScaleMin = 100
	ScaleMax = 200
)

// ScalePercentage maps current within [lo, hi] linearly onto
// [ScaleMin, ScaleMax] percent, saturating outside the range.
func ScalePercentage(current, lo, hi float32) float32 {
	switch {
	case current < lo:
		return ScaleMin
	case current > hi:
		return ScaleMax
	case hi == lo:
		return ScaleMin
	}
	return ScaleMin + (current-lo)/(hi-lo)*(ScaleMax-ScaleMin)
}
