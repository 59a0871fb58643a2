package app

import (
	"github.com/gekko3d/soilvol"
	"github.com/gekko3d/soilvol/volrt/rt/core"
	"github.com/gekko3d/soilvol/volrt/rt/gpu"
	"github.com/gekko3d/soilvol/volrt/rt/loader"
)

const (
	MinZoom = 1
	MaxZoom = 5
)

// Options configures Initialize. NewBackend is required.
type Options struct {
	Width  int
	Height int

	// Shader selects the strategy; empty means gpu.StrategyDefault.
	Shader gpu.StrategyKind

	// ColorMapURL locates the PNG or WebP colour map shared by both volume
	// kinds. Empty selects BuiltinColorMap.
	ColorMapURL string

	NewBackend func(width, height int) (gpu.Backend, error)

	Fetcher          loader.Fetcher
	ResourceObserver loader.ResourceObserver
	FrameObserver    FrameObserver

	// ControlsEvents are attached to the orbit controls for the renderer's
	// lifetime. They run with the renderer locked and must not call back
	// into it.
	ControlsEvents map[core.ControlsEvent]core.ControlsListener

	Logger soilvol.Logger
}

// RenderParameters are the strategy-agnostic shading controls.
type RenderParameters struct {
	RenderThreshold float32
}

// ClipPlanes bounds the visible part of the grid per axis, normalized.
type ClipPlanes struct {
	XAxis core.ClipRange
	YAxis core.ClipRange
	ZAxis core.ClipRange
}

func (c ClipPlanes) box() core.ClipBox {
	return core.ClipBox{X: c.XAxis, Y: c.YAxis, Z: c.ZAxis}
}
