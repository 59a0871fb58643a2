package gpu

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Geometry is a non-indexed triangle list.
type Geometry struct {
	Label     string
	Positions []mgl32.Vec3
}

func (g Geometry) VertexCount() int {
	return len(g.Positions)
}

// Bytes packs positions as tightly interleaved float32 triples.
func (g Geometry) Bytes() []byte {
	buf := make([]byte, 0, len(g.Positions)*12)
	for _, p := range g.Positions {
		buf = appendF32(buf, p[0], p[1], p[2])
	}
	return buf
}

// Bounds returns the axis-aligned bounding box of the positions.
func (g Geometry) Bounds() (lo, hi mgl32.Vec3) {
	if len(g.Positions) == 0 {
		return
	}
	lo, hi = g.Positions[0], g.Positions[0]
	for _, p := range g.Positions[1:] {
		for i := 0; i < 3; i++ {
			if p[i] < lo[i] {
				lo[i] = p[i]
			}
			if p[i] > hi[i] {
				hi[i] = p[i]
			}
		}
	}
	return lo, hi
}

// Box face corners, counter-clockwise seen from outside.
var boxFaces = [6][4]mgl32.Vec3{
	{{1, -1, -1}, {1, 1, -1}, {1, 1, 1}, {1, -1, 1}},     // +x
	{{-1, 1, -1}, {-1, -1, -1}, {-1, -1, 1}, {-1, 1, 1}}, // -x
	{{1, 1, -1}, {-1, 1, -1}, {-1, 1, 1}, {1, 1, 1}},     // +y
	{{-1, -1, -1}, {1, -1, -1}, {1, -1, 1}, {-1, -1, 1}}, // -y
	{{-1, -1, 1}, {1, -1, 1}, {1, 1, 1}, {-1, 1, 1}},     // +z
	{{-1, 1, -1}, {1, 1, -1}, {1, -1, -1}, {-1, -1, -1}}, // -z
}

// BoxGeometry builds a size-sized box centred on the origin and then moved by
// translate.
func BoxGeometry(size, translate mgl32.Vec3) Geometry {
	half := size.Mul(0.5)
	g := Geometry{Label: "volume box", Positions: make([]mgl32.Vec3, 0, 36)}
	for _, face := range boxFaces {
		var c [4]mgl32.Vec3
		for i, corner := range face {
			c[i] = mgl32.Vec3{corner[0] * half[0], corner[1] * half[1], corner[2] * half[2]}.Add(translate)
		}
		g.Positions = append(g.Positions, c[0], c[1], c[2], c[0], c[2], c[3])
	}
	return g
}
