package core

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

var ErrInvalidClipRange = errors.New("core: invalid clip range")

// ClipRange is a normalized [Min, Max] window along one grid axis.
type ClipRange struct {
	Min float32
	Max float32
}

// Validate requires 0 <= Min <= Max <= 1. Values are never clamped.
func (r ClipRange) Validate() error {
	if math.IsNaN(float64(r.Min)) || math.IsNaN(float64(r.Max)) {
		return fmt.Errorf("%w: NaN bound", ErrInvalidClipRange)
	}
	if r.Min < 0 || r.Max > 1 || r.Min > r.Max {
		return fmt.Errorf("%w: [%g, %g] is not within 0 <= min <= max <= 1", ErrInvalidClipRange, r.Min, r.Max)
	}
	return nil
}

// ClipBox is a clip range per axis.
type ClipBox struct {
	X ClipRange
	Y ClipRange
	Z ClipRange
}

// DefaultClip hides the first half of the grid along X so the interior is
// visible on load.
var DefaultClip = ClipBox{
	X: ClipRange{0.5, 1},
	Y: ClipRange{0, 1},
	Z: ClipRange{0, 1},
}

// FullClip shows the whole grid.
var FullClip = ClipBox{
	X: ClipRange{0, 1},
	Y: ClipRange{0, 1},
	Z: ClipRange{0, 1},
}

func (b ClipBox) Validate() error {
	for _, axis := range []struct {
		name string
		r    ClipRange
	}{{"x", b.X}, {"y", b.Y}, {"z", b.Z}} {
		if err := axis.r.Validate(); err != nil {
			return fmt.Errorf("%s axis: %w", axis.name, err)
		}
	}
	return nil
}

// Bounds packs the box into the min/max vectors the shaders consume.
func (b ClipBox) Bounds() (lo, hi mgl32.Vec3) {
	return mgl32.Vec3{b.X.Min, b.Y.Min, b.Z.Min}, mgl32.Vec3{b.X.Max, b.Y.Max, b.Z.Max}
}
