package gpu

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

func appendF32(buf []byte, vs ...float32) []byte {
	for _, v := range vs {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
	}
	return buf
}

func alignUp(n, a int) int {
	return (n + a - 1) / a * a
}

// PackUniforms lays out the named uniforms as a WGSL uniform struct: f32 is
// 4-aligned, vec2 8-aligned, vec3 16-aligned with size 12. The total is
// rounded up to 16.
func PackUniforms(layout []string, set UniformSet) ([]byte, error) {
	buf := make([]byte, 0, 64)
	for _, name := range layout {
		u, ok := set[name]
		if !ok {
			return nil, fmt.Errorf("gpu: uniform %q missing", name)
		}
		switch v := u.Value.(type) {
		case float32:
			buf = pad(buf, 4)
			buf = appendF32(buf, v)
		case mgl32.Vec2:
			buf = pad(buf, 8)
			buf = appendF32(buf, v[0], v[1])
		case mgl32.Vec3:
			buf = pad(buf, 16)
			buf = appendF32(buf, v[0], v[1], v[2])
		default:
			return nil, fmt.Errorf("gpu: uniform %q has unsupported type %T", name, u.Value)
		}
	}
	return pad(buf, 16), nil
}

func pad(buf []byte, align int) []byte {
	for n := alignUp(len(buf), align) - len(buf); n > 0; n-- {
		buf = append(buf, 0)
	}
	return buf
}

// packCamera writes view-projection and the viewing direction for the
// volume shaders' Camera struct.
func packCamera(viewProj mgl32.Mat4, forward mgl32.Vec3) []byte {
	buf := make([]byte, 0, 80)
	buf = appendF32(buf, viewProj[:]...)
	return appendF32(buf, forward[0], forward[1], forward[2], 0)
}
