package gpu

import (
	"errors"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

var (
	ErrUnknownResource = errors.New("gpu: unknown resource")
	ErrDestroyed       = errors.New("gpu: backend destroyed")
)

// ResourceID names a GPU object owned by a Backend.
type ResourceID string

func NewResourceID() ResourceID {
	return ResourceID(uuid.NewString())
}

type ResourceKind int

const (
	KindTexture3D ResourceKind = iota
	KindTexture2D
	KindGeometry
	KindMaterial
)

func (k ResourceKind) String() string {
	switch k {
	case KindTexture3D:
		return "texture3d"
	case KindTexture2D:
		return "texture2d"
	case KindGeometry:
		return "geometry"
	case KindMaterial:
		return "material"
	}
	return "unknown"
}

// Texture3DDesc describes a single-channel scalar grid. Data is tightly packed
// x-fastest, one byte per sample, and is sampled with linear filtering.
type Texture3DDesc struct {
	Label  string
	Width  int
	Height int
	Depth  int
	Data   []byte
}

// Texture2DDesc describes an RGBA8 image, rows tightly packed.
type Texture2DDesc struct {
	Label  string
	Width  int
	Height int
	Pixels []byte
}

// Frame is one draw of the scene. An empty Mesh clears the surface only.
type Frame struct {
	ViewProjection mgl32.Mat4
	Forward        mgl32.Vec3
	Mesh           ResourceID
	Material       ResourceID
}

// Surface is the read-only handle of what a backend presents into.
type Surface interface {
	Size() (width, height int)
}

// Backend is the GPU device behind a renderer. Implementations need not be
// safe for concurrent use.
type Backend interface {
	CreateTexture3D(desc Texture3DDesc) (ResourceID, error)
	CreateTexture2D(desc Texture2DDesc) (ResourceID, error)
	CreateGeometry(geom Geometry) (ResourceID, error)
	CreateMaterial(desc MaterialDesc) (ResourceID, error)
	UpdateUniforms(material ResourceID, uniforms UniformSet) error
	Draw(frame Frame) error
	Resize(width, height int) error
	Release(id ResourceID)
	Surface() Surface
	Destroy()
}
