// Package gputest provides an in-memory gpu.Backend that records every call.
package gputest

import (
	"errors"
	"sync"

	"github.com/gekko3d/soilvol/volrt/rt/gpu"
)

type Surface struct {
	Width  int
	Height int
}

func (s *Surface) Size() (int, int) { return s.Width, s.Height }

// Backend is a recording gpu.Backend. Fail* fields inject errors.
type Backend struct {
	mu sync.Mutex

	surface *Surface
	live    map[gpu.ResourceID]gpu.ResourceKind

	Materials  map[gpu.ResourceID]gpu.MaterialDesc
	Geometry   map[gpu.ResourceID]gpu.Geometry
	Textures3D map[gpu.ResourceID]gpu.Texture3DDesc

	Frames       []gpu.Frame
	Uniforms     []gpu.UniformSet
	Released     []gpu.ResourceID
	DoubleFrees  int
	DestroyCalls int

	FailTexture3D error
	FailTexture2D error
	FailMaterial  error
}

func NewBackend(width, height int) *Backend {
	return &Backend{
		surface:    &Surface{Width: width, Height: height},
		live:       make(map[gpu.ResourceID]gpu.ResourceKind),
		Materials:  make(map[gpu.ResourceID]gpu.MaterialDesc),
		Geometry:   make(map[gpu.ResourceID]gpu.Geometry),
		Textures3D: make(map[gpu.ResourceID]gpu.Texture3DDesc),
	}
}

var ErrDestroyed = errors.New("gputest: backend destroyed")

func (b *Backend) create(kind gpu.ResourceKind, fail error) (gpu.ResourceID, error) {
	if b.DestroyCalls > 0 {
		return "", ErrDestroyed
	}
	if fail != nil {
		return "", fail
	}
	id := gpu.NewResourceID()
	b.live[id] = kind
	return id, nil
}

func (b *Backend) CreateTexture3D(desc gpu.Texture3DDesc) (gpu.ResourceID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id, err := b.create(gpu.KindTexture3D, b.FailTexture3D)
	if err == nil {
		b.Textures3D[id] = desc
	}
	return id, err
}

func (b *Backend) CreateTexture2D(desc gpu.Texture2DDesc) (gpu.ResourceID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.create(gpu.KindTexture2D, b.FailTexture2D)
}

func (b *Backend) CreateGeometry(geom gpu.Geometry) (gpu.ResourceID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id, err := b.create(gpu.KindGeometry, nil)
	if err == nil {
		b.Geometry[id] = geom
	}
	return id, err
}

func (b *Backend) CreateMaterial(desc gpu.MaterialDesc) (gpu.ResourceID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id, err := b.create(gpu.KindMaterial, b.FailMaterial)
	if err == nil {
		desc.Uniforms = desc.Uniforms.Clone()
		b.Materials[id] = desc
	}
	return id, err
}

func (b *Backend) UpdateUniforms(material gpu.ResourceID, uniforms gpu.UniformSet) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.live[material]; !ok {
		return gpu.ErrUnknownResource
	}
	b.Uniforms = append(b.Uniforms, uniforms.Clone())
	return nil
}

func (b *Backend) Draw(frame gpu.Frame) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.DestroyCalls > 0 {
		return ErrDestroyed
	}
	b.Frames = append(b.Frames, frame)
	return nil
}

func (b *Backend) Resize(width, height int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.surface.Width, b.surface.Height = width, height
	return nil
}

func (b *Backend) Release(id gpu.ResourceID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.live[id]; !ok {
		b.DoubleFrees++
		return
	}
	delete(b.live, id)
	b.Released = append(b.Released, id)
}

func (b *Backend) Surface() gpu.Surface {
	return b.surface
}

func (b *Backend) Destroy() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.DestroyCalls++
}

// Live reports whether id was created and not yet released.
func (b *Backend) Live(id gpu.ResourceID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.live[id]
	return ok
}

func (b *Backend) LiveCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.live)
}

func (b *Backend) FrameCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Frames)
}

func (b *Backend) LastFrame() gpu.Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.Frames) == 0 {
		return gpu.Frame{}
	}
	return b.Frames[len(b.Frames)-1]
}

// LastUniforms returns the most recent uniform upload, or nil.
func (b *Backend) LastUniforms() gpu.UniformSet {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.Uniforms) == 0 {
		return nil
	}
	return b.Uniforms[len(b.Uniforms)-1]
}

func (b *Backend) UniformUploads() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Uniforms)
}

func (b *Backend) Destroyed() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.DestroyCalls
}

func (b *Backend) DoubleFreeCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.DoubleFrees
}

var _ gpu.Backend = (*Backend)(nil)
