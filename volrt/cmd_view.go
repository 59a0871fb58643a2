package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gekko3d/soilvol"
	"github.com/gekko3d/soilvol/volrt/rt/app"
	"github.com/gekko3d/soilvol/volrt/rt/core"
	"github.com/gekko3d/soilvol/volrt/rt/gpu"
	"github.com/gekko3d/soilvol/volrt/rt/loader"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/urfave/cli/v3"
)

const (
	orbitSensitivity = 0.005
	keyZoomStep      = 0.25
	thresholdStep    = 0.02
)

func viewCommand() *cli.Command {
	var (
		kind   string
		shader string
		width  int
		height int
	)
	return &cli.Command{
		Name:  "view",
		Usage: "open a window and render a volume",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "kind", Usage: "solids or pores", Destination: &kind},
			&cli.StringFlag{Name: "shader", Usage: "default or custom", Destination: &shader},
			&cli.IntFlag{Name: "width", Usage: "window width", Destination: &width},
			&cli.IntFlag{Name: "height", Usage: "window height", Destination: &height},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.IsSet("kind") {
				k, err := soilvol.ParseVolumeKind(kind)
				if err != nil {
					return err
				}
				cfg.Kind = k
			}
			if cmd.IsSet("shader") {
				cfg.Shader = shader
			}
			if cmd.IsSet("width") {
				cfg.Width = width
			}
			if cmd.IsSet("height") {
				cfg.Height = height
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runViewer(ctx, cfg, logger)
		},
	}
}

type viewerInput struct {
	dragging     bool
	lastX, lastY float64
	threshold    float32
	fullClip     bool
}

func runViewer(ctx context.Context, cfg soilvol.Config, logger soilvol.Logger) error {
	if err := glfw.Init(); err != nil {
		return fmt.Errorf("glfw init: %w", err)
	}
	defer glfw.Terminate()

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	window, err := glfw.CreateWindow(cfg.Width, cfg.Height, "volrt: "+string(cfg.Kind), nil, nil)
	if err != nil {
		return fmt.Errorf("create window: %w", err)
	}
	defer window.Destroy()

	renderer, err := app.Initialize(ctx, app.Options{
		Width:       cfg.Width,
		Height:      cfg.Height,
		Shader:      gpu.StrategyKind(cfg.Shader),
		ColorMapURL: cfg.ColorMapURL(),
		NewBackend: func(int, int) (gpu.Backend, error) {
			b, err := gpu.NewWGPUBackend(window)
			if err != nil {
				return nil, err
			}
			return b, nil
		},
		ResourceObserver: loader.ResourceObserverFunc(func(t loader.ResourceTiming) {
			logger.Infof("fetched %s: %s in %s", t.Source, loader.FormatSize(t.Size), t.Duration.Round(time.Millisecond))
		}),
		FrameObserver: app.FrameObserverFunc(func(url string, elapsed time.Duration) {
			logger.Infof("first frame of %s after %s", url, elapsed.Round(time.Millisecond))
		}),
		ControlsEvents: map[core.ControlsEvent]core.ControlsListener{
			core.EventEnd: func(core.ControlsEvent) { logger.Debugf("controls moved") },
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}
	defer renderer.Dispose()

	// Callbacks and draws stay on this goroutine, so the volume is loaded
	// before the event loop starts.
	if err := renderer.LoadVolumeKind(ctx, cfg.VolumeURL(), cfg.Kind); err != nil {
		return err
	}

	in := &viewerInput{}
	window.SetFramebufferSizeCallback(func(w *glfw.Window, width, height int) {
		if width == 0 || height == 0 {
			return
		}
		if err := renderer.Resize(width, height); err != nil {
			logger.Warnf("resize: %v", err)
		}
	})
	window.SetMouseButtonCallback(func(w *glfw.Window, button glfw.MouseButton, action glfw.Action, mods glfw.ModifierKey) {
		if button != glfw.MouseButtonLeft {
			return
		}
		in.dragging = action == glfw.Press
		in.lastX, in.lastY = w.GetCursorPos()
	})
	window.SetCursorPosCallback(func(w *glfw.Window, x, y float64) {
		if !in.dragging {
			return
		}
		dx, dy := x-in.lastX, y-in.lastY
		in.lastX, in.lastY = x, y
		if err := renderer.Orbit(-float32(dx)*orbitSensitivity, -float32(dy)*orbitSensitivity); err != nil {
			logger.Warnf("orbit: %v", err)
		}
	})
	window.SetScrollCallback(func(w *glfw.Window, xoff, yoff float64) {
		if err := renderer.Scroll(float32(yoff)); err != nil {
			logger.Warnf("scroll: %v", err)
		}
	})
	window.SetKeyCallback(func(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
		if action != glfw.Press && action != glfw.Repeat {
			return
		}
		var err error
		switch key {
		case glfw.KeyEscape:
			w.SetShouldClose(true)
		case glfw.KeyEqual, glfw.KeyKPAdd:
			err = renderer.ZoomIn(keyZoomStep)
		case glfw.KeyMinus, glfw.KeyKPSubtract:
			err = renderer.ZoomOut(keyZoomStep)
		case glfw.KeyUp:
			in.threshold = min(in.threshold+thresholdStep, 1)
			err = renderer.SetRenderParameters(app.RenderParameters{RenderThreshold: in.threshold})
		case glfw.KeyDown:
			in.threshold = max(in.threshold-thresholdStep, 0)
			err = renderer.SetRenderParameters(app.RenderParameters{RenderThreshold: in.threshold})
		case glfw.KeyC:
			in.fullClip = !in.fullClip
			box := core.DefaultClip
			if in.fullClip {
				box = core.FullClip
			}
			err = renderer.ClipPlanes(app.ClipPlanes{XAxis: box.X, YAxis: box.Y, ZAxis: box.Z})
		case glfw.KeyS:
			logger.Infof("zoom %.0f%%", renderer.ScalePercentage())
		}
		if err != nil {
			logger.Warnf("key %v: %v", key, err)
		}
	})

	for !window.ShouldClose() {
		if ctx.Err() != nil {
			break
		}
		glfw.WaitEventsTimeout(0.25)
	}
	return nil
}
