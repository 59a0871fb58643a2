package gpu

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gekko3d/soilvol/volrt/rt/shaders"
	"github.com/go-gl/mathgl/mgl32"
)

var ErrUnknownStrategy = errors.New("gpu: unknown shader strategy")

type StrategyKind string

const (
	StrategyDefault StrategyKind = "default"
	StrategyCustom  StrategyKind = "custom"
)

func ParseStrategyKind(s string) (StrategyKind, error) {
	switch StrategyKind(strings.ToLower(strings.TrimSpace(s))) {
	case StrategyDefault:
		return StrategyDefault, nil
	case StrategyCustom:
		return StrategyCustom, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
}

// Side selects which triangle faces are rasterized.
type Side int

const (
	SideFront Side = iota
	SideBack
	SideDouble
)

// Uniform is a mutable slot. Value holds a float32, mgl32.Vec2, mgl32.Vec3 or
// a texture ResourceID.
type Uniform struct {
	Value any
}

type UniformSet map[string]*Uniform

func (s UniformSet) Float(name string) float32 {
	if u, ok := s[name]; ok {
		if v, ok := u.Value.(float32); ok {
			return v
		}
	}
	return 0
}

func (s UniformSet) Vec3(name string) mgl32.Vec3 {
	if u, ok := s[name]; ok {
		if v, ok := u.Value.(mgl32.Vec3); ok {
			return v
		}
	}
	return mgl32.Vec3{}
}

func (s UniformSet) Texture(name string) ResourceID {
	if u, ok := s[name]; ok {
		if v, ok := u.Value.(ResourceID); ok {
			return v
		}
	}
	return ""
}

// Clone copies the slots so the copy can be mutated independently.
func (s UniformSet) Clone() UniformSet {
	out := make(UniformSet, len(s))
	for k, u := range s {
		out[k] = &Uniform{Value: u.Value}
	}
	return out
}

// MaterialDesc is everything a backend needs to build a volume pipeline.
// Layout lists the scalar and vector uniforms in buffer order; Textures lists
// the 3D data texture then the colour map.
type MaterialDesc struct {
	Label    string
	Shader   string
	Layout   []string
	Textures []string
	Side     Side
	Clipping bool
	Uniforms UniformSet
}

// Strategy builds and drives one kind of volume material.
type Strategy interface {
	Kind() StrategyKind
	BuildMaterial(volume, colorMap ResourceID, size mgl32.Vec3) MaterialDesc
	SetThreshold(m *MaterialDesc, threshold float32)
}

// Clipper is implemented by strategies whose shader honours per-axis clip
// bounds.
type Clipper interface {
	SetClip(m *MaterialDesc, lo, hi mgl32.Vec3)
}

func StrategyFor(kind StrategyKind) (Strategy, error) {
	switch kind {
	case StrategyDefault:
		return DefaultStrategy{}, nil
	case StrategyCustom:
		return NewCustomStrategy(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, kind)
}

// DefaultStrategy is the transfer-function ray march with clipping.
type DefaultStrategy struct{}

func (DefaultStrategy) Kind() StrategyKind { return StrategyDefault }

func (DefaultStrategy) BuildMaterial(volume, colorMap ResourceID, size mgl32.Vec3) MaterialDesc {
	return MaterialDesc{
		Label:    "volume default",
		Shader:   shaders.DefaultVolumeWGSL,
		Layout:   []string{"u_size", "u_renderthreshold", "u_clim", "u_min_distance", "u_max_distance"},
		Textures: []string{"u_data", "u_cmdata"},
		Side:     SideBack,
		Clipping: true,
		Uniforms: UniformSet{
			"u_data":            {Value: volume},
			"u_cmdata":          {Value: colorMap},
			"u_size":            {Value: size},
			"u_renderthreshold": {Value: float32(0)},
			"u_clim":            {Value: mgl32.Vec2{0, 1}},
			"u_min_distance":    {Value: mgl32.Vec3{0, 0, 0}},
			"u_max_distance":    {Value: mgl32.Vec3{1, 1, 1}},
		},
	}
}

func (DefaultStrategy) SetThreshold(m *MaterialDesc, threshold float32) {
	m.Uniforms["u_renderthreshold"].Value = threshold
}

func (DefaultStrategy) SetClip(m *MaterialDesc, lo, hi mgl32.Vec3) {
	m.Uniforms["u_min_distance"].Value = lo
	m.Uniforms["u_max_distance"].Value = hi
}

// SoilMaxDistance trims the top quarter of the scan column, where the
// sample holder dominates the signal.
var SoilMaxDistance = mgl32.Vec3{1, 1, 0.75}

// CustomStrategy is the soil iso-surface shader. It has no clip bounds;
// MaxDistance is fixed when the material is built.
type CustomStrategy struct {
	MaxDistance mgl32.Vec3
}

func NewCustomStrategy() CustomStrategy {
	return CustomStrategy{MaxDistance: SoilMaxDistance}
}

func (CustomStrategy) Kind() StrategyKind { return StrategyCustom }

func (s CustomStrategy) BuildMaterial(volume, colorMap ResourceID, size mgl32.Vec3) MaterialDesc {
	return MaterialDesc{
		Label:    "volume custom",
		Shader:   shaders.CustomVolumeWGSL,
		Layout:   []string{"u_size", "u_threshold", "u_max_distance"},
		Textures: []string{"u_data", "u_cmdata"},
		Side:     SideBack,
		Uniforms: UniformSet{
			"u_data":         {Value: volume},
			"u_cmdata":       {Value: colorMap},
			"u_size":         {Value: size},
			"u_threshold":    {Value: float32(0)},
			"u_max_distance": {Value: s.MaxDistance},
		},
	}
}

func (CustomStrategy) SetThreshold(m *MaterialDesc, threshold float32) {
	m.Uniforms["u_threshold"].Value = threshold
}
