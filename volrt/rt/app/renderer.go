package app

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/gekko3d/soilvol"
	"github.com/gekko3d/soilvol/volrt/rt/codec"
	"github.com/gekko3d/soilvol/volrt/rt/core"
	"github.com/gekko3d/soilvol/volrt/rt/gpu"
	"github.com/gekko3d/soilvol/volrt/rt/loader"
	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/sync/errgroup"
)

// Renderer owns one surface, its camera and controls, and at most one
// resident volume. All methods are safe for concurrent use. Volume fetch and
// decode run without the lock; GPU work happens under it.
type Renderer struct {
	mu sync.Mutex

	logger   soilvol.Logger
	frameObs FrameObserver

	backend  gpu.Backend
	arena    *gpu.Arena
	loader   *loader.Loader
	strategy gpu.Strategy

	camera   *core.OrthoCamera
	controls *core.OrbitControls

	colorMaps map[soilvol.VolumeKind]gpu.ResourceID

	// Resident volume; empty ids mean none.
	texture  gpu.ResourceID
	mesh     gpu.ResourceID
	material gpu.ResourceID
	desc     *gpu.MaterialDesc
	dims     [3]int

	seq      uint64
	inflight int
	probe    *frameProbe
	disposed bool
}

// Initialize creates the backend, prepares the decompression engine and the
// colour map concurrently, and sets up the camera and controls. On failure
// everything created so far is destroyed.
func Initialize(ctx context.Context, opts Options) (*Renderer, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSize, opts.Width, opts.Height)
	}
	if opts.NewBackend == nil {
		return nil, errors.New("app: Options.NewBackend is required")
	}
	kind := opts.Shader
	if kind == "" {
		kind = gpu.StrategyDefault
	}
	strategy, err := gpu.StrategyFor(kind)
	if err != nil {
		return nil, err
	}
	logger := soilvol.OrNop(opts.Logger)
	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = loader.NewResourceFetcher()
	}

	backend, err := opts.NewBackend(opts.Width, opts.Height)
	if err != nil {
		return nil, fmt.Errorf("create backend: %w", err)
	}

	var (
		ld   *loader.Loader
		cmap *image.RGBA
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		ld, err = loader.New(loader.Options{
			Fetcher:  fetcher,
			Observer: opts.ResourceObserver,
			Logger:   logger,
		})
		return err
	})
	g.Go(func() error {
		var err error
		cmap, err = fetchColorMap(gctx, fetcher, opts.ColorMapURL)
		return err
	})
	if err := g.Wait(); err != nil {
		if ld != nil {
			ld.Close()
		}
		backend.Destroy()
		logger.Errorf("initialize failed: %v", err)
		return nil, err
	}

	arena := gpu.NewArena(backend)
	cmID, err := arena.Texture2D(gpu.Texture2DDesc{
		Label:  "colour map",
		Width:  cmap.Bounds().Dx(),
		Height: cmap.Bounds().Dy(),
		Pixels: cmap.Pix,
	})
	if err != nil {
		ld.Close()
		backend.Destroy()
		return nil, fmt.Errorf("upload colour map: %w", err)
	}

	camera := core.NewOrthoCamera()
	controls := core.NewOrbitControls(camera)
	controls.MinZoom = MinZoom
	controls.MaxZoom = MaxZoom
	controls.EnablePan = false
	controls.Update()

	r := &Renderer{
		logger:   logger,
		frameObs: opts.FrameObserver,
		backend:  backend,
		arena:    arena,
		loader:   ld,
		strategy: strategy,
		camera:   camera,
		controls: controls,
		colorMaps: map[soilvol.VolumeKind]gpu.ResourceID{
			soilvol.Solids: cmID,
			soilvol.Pores:  cmID,
		},
	}
	controls.AddEventListener(core.EventChange, func(core.ControlsEvent) { r.renderLocked() })
	for event, fn := range opts.ControlsEvents {
		if fn != nil {
			controls.AddEventListener(event, fn)
		}
	}
	logger.Infof("renderer ready: %dx%d, %s shader", opts.Width, opts.Height, strategy.Kind())
	return r, nil
}

// Surface returns the handle the backend presents into. The handle is gone
// once the renderer is disposed.
func (r *Renderer) Surface() (gpu.Surface, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed {
		return nil, ErrAlreadyDisposed
	}
	return r.backend.Surface(), nil
}

func (r *Renderer) Strategy() gpu.StrategyKind {
	return r.strategy.Kind()
}

// LoadVolume loads url as a solids scan.
func (r *Renderer) LoadVolume(ctx context.Context, url string) error {
	return r.LoadVolumeKind(ctx, url, soilvol.Solids)
}

// LoadVolumeAsync runs LoadVolumeKind on a new goroutine. The channel
// receives exactly one value.
func (r *Renderer) LoadVolumeAsync(ctx context.Context, url string, kind soilvol.VolumeKind) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- r.LoadVolumeKind(ctx, url, kind)
	}()
	return done
}

// LoadVolumeKind fetches, decodes and installs a volume. When loads overlap
// only the most recently started one is installed; the others return
// ErrStaleLoad. A failed load leaves the resident volume untouched.
func (r *Renderer) LoadVolumeKind(ctx context.Context, url string, kind soilvol.VolumeKind) error {
	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return ErrAlreadyDisposed
	}
	r.seq++
	seq := r.seq
	r.inflight++
	ld := r.loader
	r.mu.Unlock()

	start := time.Now()
	vol, err := ld.Load(ctx, url)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.inflight--
	if r.disposed {
		r.closeLoaderLocked()
		return ErrAlreadyDisposed
	}
	if err != nil {
		return err
	}
	if seq != r.seq {
		r.logger.Debugf("dropping %s: superseded", url)
		return fmt.Errorf("%w: %s", ErrStaleLoad, url)
	}
	if err := r.installLocked(url, kind, vol, start); err != nil {
		r.logger.Errorf("install %s failed: %v", url, err)
		return err
	}
	return nil
}

func (r *Renderer) installLocked(url string, kind soilvol.VolumeKind, vol *codec.Volume, start time.Time) error {
	cm, ok := r.colorMaps[kind]
	if !ok {
		cm = r.colorMaps[soilvol.Solids]
	}

	texture, err := r.arena.Texture3D(gpu.Texture3DDesc{
		Label:  url,
		Width:  vol.Width,
		Height: vol.Height,
		Depth:  vol.Depth,
		Data:   vol.Samples,
	})
	if err != nil {
		return fmt.Errorf("upload volume: %w", err)
	}

	aspect := r.aspectLocked()
	framing := core.Frame(vol.Width, vol.Height, vol.Depth, aspect)
	size := mgl32.Vec3{float32(vol.Width), float32(vol.Height), float32(vol.Depth)}

	mesh, err := r.arena.Geometry(gpu.BoxGeometry(size, framing.Translation))
	if err != nil {
		r.arena.Release(texture)
		return fmt.Errorf("create box: %w", err)
	}

	desc := r.strategy.BuildMaterial(texture, cm, size)
	if clipper, ok := r.strategy.(gpu.Clipper); ok {
		lo, hi := core.DefaultClip.Bounds()
		clipper.SetClip(&desc, lo, hi)
	}
	material, err := r.arena.Material(desc)
	if err != nil {
		r.arena.Release(mesh)
		r.arena.Release(texture)
		return fmt.Errorf("create material: %w", err)
	}

	// Retire the previous volume before the new one becomes visible.
	r.arena.Release(r.mesh)
	r.arena.Release(r.material)
	r.arena.Release(r.texture)

	r.texture, r.mesh, r.material = texture, mesh, material
	r.desc = &desc
	r.dims = [3]int{vol.Width, vol.Height, vol.Depth}
	r.probe = &frameProbe{url: url, start: start}

	r.camera.ApplyFraming(framing)
	r.controls.Target = framing.Center
	r.controls.Update()
	r.renderLocked()

	r.logger.Infof("installed %s (%s): %dx%dx%d", url, kind, vol.Width, vol.Height, vol.Depth)
	return nil
}

func (r *Renderer) aspectLocked() float32 {
	w, h := r.backend.Surface().Size()
	if w <= 0 || h <= 0 {
		return 1
	}
	return float32(w) / float32(h)
}

func (r *Renderer) renderLocked() {
	if r.disposed {
		return
	}
	err := r.backend.Draw(gpu.Frame{
		ViewProjection: r.camera.ViewProjection(),
		Forward:        r.camera.Forward(),
		Mesh:           r.mesh,
		Material:       r.material,
	})
	if err != nil {
		r.logger.Warnf("draw failed: %v", err)
		return
	}
	if p := r.probe; p != nil && r.mesh != "" {
		r.probe = nil
		if r.frameObs != nil {
			r.frameObs.FirstFrame(p.url, time.Since(p.start))
		}
	}
}

// SetRenderParameters updates the active strategy's threshold. Without a
// resident volume it does nothing.
func (r *Renderer) SetRenderParameters(p RenderParameters) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed {
		return ErrAlreadyDisposed
	}
	if r.desc == nil {
		return nil
	}
	r.strategy.SetThreshold(r.desc, p.RenderThreshold)
	if err := r.backend.UpdateUniforms(r.material, r.desc.Uniforms); err != nil {
		return err
	}
	r.renderLocked()
	return nil
}

// ClipPlanes sets the visible window per axis. Every bound must satisfy
// 0 <= min <= max <= 1; invalid input is rejected and nothing changes.
// Without a resident volume it does nothing.
func (r *Renderer) ClipPlanes(c ClipPlanes) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed {
		return ErrAlreadyDisposed
	}
	if r.desc == nil {
		return nil
	}
	clipper, ok := r.strategy.(gpu.Clipper)
	if !ok {
		return ErrClipUnsupported
	}
	box := c.box()
	if err := box.Validate(); err != nil {
		return err
	}
	lo, hi := box.Bounds()
	clipper.SetClip(r.desc, lo, hi)
	if err := r.backend.UpdateUniforms(r.material, r.desc.Uniforms); err != nil {
		return err
	}
	r.renderLocked()
	return nil
}

func (r *Renderer) ZoomIn(step float32) error {
	return r.zoomTo(func(z float32) float32 { return z + step })
}

func (r *Renderer) ZoomOut(step float32) error {
	return r.zoomTo(func(z float32) float32 { return z - step })
}

func (r *Renderer) zoomTo(next func(float32) float32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed {
		return ErrAlreadyDisposed
	}
	r.camera.Zoom = core.ClampZoom(next(r.camera.Zoom), r.controls.MinZoom, r.controls.MaxZoom)
	r.camera.UpdateProjection()
	r.renderLocked()
	return nil
}

// Zoom returns the camera's current zoom factor.
func (r *Renderer) Zoom() float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.camera.Zoom
}

// ScalePercentage reports the zoom as a percentage between core.ScaleMin and
// core.ScaleMax.
func (r *Renderer) ScalePercentage() float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return core.ScalePercentage(r.camera.Zoom, r.controls.MinZoom, r.controls.MaxZoom)
}

// Orbit rotates the camera around the grid centre by the given angles in
// radians.
func (r *Renderer) Orbit(dAzimuth, dPolar float32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed {
		return ErrAlreadyDisposed
	}
	r.controls.Rotate(dAzimuth, dPolar)
	return nil
}

// Scroll applies wheel input: positive delta zooms in.
func (r *Renderer) Scroll(delta float32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed {
		return ErrAlreadyDisposed
	}
	r.controls.Zoom(delta)
	return nil
}

// Resize keeps the vertical extent and derives the horizontal one from the
// new aspect ratio.
func (r *Renderer) Resize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed {
		return ErrAlreadyDisposed
	}
	if err := r.backend.Resize(width, height); err != nil {
		return err
	}
	_, vertical := r.camera.HalfExtents()
	r.camera.SetExtents(core.ResizeHorizontal(vertical, width, height), vertical)
	r.camera.UpdateProjection()
	r.renderLocked()
	return nil
}

// Camera returns a copy of the camera state.
func (r *Renderer) Camera() core.OrthoCamera {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.camera
}

// VolumeSize returns the resident grid's dimensions and whether one is
// resident.
func (r *Renderer) VolumeSize() ([3]int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dims, r.mesh != ""
}

// Dispose releases every GPU resource, detaches all control listeners and
// destroys the backend. Later calls return nil and do nothing; every other
// method returns ErrAlreadyDisposed.
func (r *Renderer) Dispose() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed {
		return nil
	}
	r.disposed = true
	r.probe = nil
	r.controls.RemoveAllListeners()

	n := r.arena.ReleaseAll()
	r.texture, r.mesh, r.material = "", "", ""
	r.desc = nil
	r.colorMaps = nil

	r.closeLoaderLocked()
	r.backend.Destroy()
	r.logger.Debugf("disposed: released %d resources", n)
	return nil
}

// closeLoaderLocked closes the loader once no load is using it.
func (r *Renderer) closeLoaderLocked() {
	if r.inflight == 0 && r.loader != nil {
		r.loader.Close()
		r.loader = nil
	}
}
