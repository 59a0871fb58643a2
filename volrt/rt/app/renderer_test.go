package app

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gekko3d/soilvol"
	"github.com/gekko3d/soilvol/volrt/rt/codec"
	"github.com/gekko3d/soilvol/volrt/rt/core"
	"github.com/gekko3d/soilvol/volrt/rt/gpu"
	"github.com/gekko3d/soilvol/volrt/rt/gpu/gputest"
	"github.com/gekko3d/soilvol/volrt/rt/loader"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memFetcher serves files from memory. A location with a gate blocks until
// the gate is closed.
type memFetcher struct {
	mu      sync.Mutex
	files   map[string][]byte
	gates   map[string]chan struct{}
	entered chan string
}

func newMemFetcher() *memFetcher {
	return &memFetcher{
		files:   make(map[string][]byte),
		gates:   make(map[string]chan struct{}),
		entered: make(chan string, 16),
	}
}

func (f *memFetcher) put(location string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[location] = data
}

func (f *memFetcher) gate(location string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	g := make(chan struct{})
	f.gates[location] = g
	return g
}

func (f *memFetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	f.mu.Lock()
	gate := f.gates[location]
	f.mu.Unlock()

	select {
	case f.entered <- location:
	default:
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[location]
	if !ok {
		return nil, &loader.StatusError{URL: location, StatusCode: http.StatusNotFound}
	}
	return data, nil
}

func encodeVolume(t *testing.T, w, h, d int) []byte {
	t.Helper()
	samples := make([]byte, w*h*d)
	for i := range samples {
		samples[i] = byte(i * 7)
	}
	data, err := codec.Encode(codec.Metadata{Width: w, Height: h, Depth: d}, samples)
	require.NoError(t, err)
	return data
}

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.NRGBA{R: uint8(x), G: 10, B: 20, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type firstFrames struct {
	mu   sync.Mutex
	urls []string
}

func (f *firstFrames) FirstFrame(url string, elapsed time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, url)
}

func (f *firstFrames) get() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.urls...)
}

type fixture struct {
	renderer *Renderer
	backend  *gputest.Backend
	fetcher  *memFetcher
	frames   *firstFrames
}

func newFixture(t *testing.T, mutate func(*Options)) *fixture {
	t.Helper()
	f := &fixture{
		backend: gputest.NewBackend(200, 100),
		fetcher: newMemFetcher(),
		frames:  &firstFrames{},
	}
	opts := Options{
		Width:         200,
		Height:        100,
		Fetcher:       f.fetcher,
		FrameObserver: f.frames,
		NewBackend: func(w, h int) (gpu.Backend, error) {
			return f.backend, nil
		},
	}
	if mutate != nil {
		mutate(&opts)
	}
	r, err := Initialize(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Dispose() })
	f.renderer = r
	return f
}

func TestInitialize_Defaults(t *testing.T) {
	f := newFixture(t, nil)

	cam := f.renderer.Camera()
	assert.Equal(t, float32(1), cam.Zoom)
	assert.Equal(t, core.WorldUp, cam.Up)
	assert.Equal(t, gpu.StrategyDefault, f.renderer.Strategy())
	assert.Zero(t, f.backend.FrameCount())
	// The built-in colour map is the only resource.
	assert.Equal(t, 1, f.backend.LiveCount())

	surface, err := f.renderer.Surface()
	require.NoError(t, err)
	w, h := surface.Size()
	assert.Equal(t, 200, w)
	assert.Equal(t, 100, h)

	_, resident := f.renderer.VolumeSize()
	assert.False(t, resident)
}

func TestInitialize_ColorMapFromHTTP(t *testing.T) {
	pngData := encodePNG(t, 16, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(pngData)
	}))
	t.Cleanup(server.Close)

	backend := gputest.NewBackend(64, 64)
	r, err := Initialize(context.Background(), Options{
		Width:       64,
		Height:      64,
		ColorMapURL: server.URL + "/cm.png",
		NewBackend:  func(int, int) (gpu.Backend, error) { return backend, nil },
	})
	require.NoError(t, err)
	assert.Equal(t, 1, backend.LiveCount())
	require.NoError(t, r.Dispose())
}

func TestInitialize_FailureDestroysBackend(t *testing.T) {
	cases := map[string]func(*memFetcher, *Options){
		"missing colour map": func(_ *memFetcher, o *Options) { o.ColorMapURL = "cm-default.webp" },
		"undecodable colour map": func(f *memFetcher, o *Options) {
			f.put("cm.png", []byte("not an image"))
			o.ColorMapURL = "cm.png"
		},
		"unknown shader": func(_ *memFetcher, o *Options) { o.Shader = "phong" },
	}
	for name, setup := range cases {
		t.Run(name, func(t *testing.T) {
			fetcher := newMemFetcher()
			backend := gputest.NewBackend(64, 64)
			created := false
			opts := Options{
				Width:   64,
				Height:  64,
				Fetcher: fetcher,
				NewBackend: func(int, int) (gpu.Backend, error) {
					created = true
					return backend, nil
				},
			}
			setup(fetcher, &opts)

			r, err := Initialize(context.Background(), opts)
			require.Error(t, err)
			assert.Nil(t, r)
			if created {
				assert.Equal(t, 1, backend.Destroyed())
			}
			assert.Zero(t, backend.LiveCount())
		})
	}
}

func TestInitialize_BackendErrorAndBadSize(t *testing.T) {
	_, err := Initialize(context.Background(), Options{
		Width:      10,
		Height:     10,
		NewBackend: func(int, int) (gpu.Backend, error) { return nil, assert.AnError },
	})
	assert.ErrorIs(t, err, assert.AnError)

	_, err = Initialize(context.Background(), Options{Width: 0, Height: 10})
	assert.ErrorIs(t, err, ErrInvalidSize)
}

func TestLoadVolume_InstallsFramedVolume(t *testing.T) {
	f := newFixture(t, nil)
	f.fetcher.put("solids", encodeVolume(t, 8, 6, 4))

	require.NoError(t, f.renderer.LoadVolume(context.Background(), "solids"))

	dims, resident := f.renderer.VolumeSize()
	require.True(t, resident)
	assert.Equal(t, [3]int{8, 6, 4}, dims)

	want := core.Frame(8, 6, 4, 2)
	cam := f.renderer.Camera()
	h, v := cam.HalfExtents()
	assert.InDelta(t, want.Horizontal, h, 1e-4)
	assert.InDelta(t, want.Vertical, v, 1e-4)
	assert.Equal(t, want.Center, cam.Target)

	frame := f.backend.LastFrame()
	require.NotEmpty(t, frame.Mesh)
	lo, hi := f.backend.Geometry[frame.Mesh].Bounds()
	assert.Equal(t, mgl32.Vec3{-0.5, -0.5, -0.5}, lo)
	assert.Equal(t, mgl32.Vec3{7.5, 5.5, 3.5}, hi)

	desc := f.backend.Materials[frame.Material]
	assert.Equal(t, gpu.SideBack, desc.Side)
	assert.Equal(t, mgl32.Vec3{0.5, 0, 0}, desc.Uniforms.Vec3("u_min_distance"))
	assert.Equal(t, mgl32.Vec3{1, 1, 1}, desc.Uniforms.Vec3("u_max_distance"))
	assert.Equal(t, mgl32.Vec3{8, 6, 4}, desc.Uniforms.Vec3("u_size"))

	tex := f.backend.Textures3D[desc.Uniforms.Texture("u_data")]
	assert.Len(t, tex.Data, 8*6*4)

	assert.Equal(t, []string{"solids"}, f.frames.get())
}

func TestLoadVolume_ReplacesPreviousVolume(t *testing.T) {
	f := newFixture(t, nil)
	f.fetcher.put("a", encodeVolume(t, 4, 4, 4))
	f.fetcher.put("b", encodeVolume(t, 2, 3, 5))

	require.NoError(t, f.renderer.LoadVolume(context.Background(), "a"))
	first := f.backend.LastFrame()
	require.NoError(t, f.renderer.LoadVolumeKind(context.Background(), "b", soilvol.Pores))
	second := f.backend.LastFrame()

	assert.NotEqual(t, first.Mesh, second.Mesh)
	assert.False(t, f.backend.Live(first.Mesh))
	assert.False(t, f.backend.Live(first.Material))
	assert.True(t, f.backend.Live(second.Mesh))
	// Colour map, texture, box and material.
	assert.Equal(t, 4, f.backend.LiveCount())
	assert.Equal(t, []string{"a", "b"}, f.frames.get())
}

func TestLoadVolume_OverlappingLastCallWins(t *testing.T) {
	f := newFixture(t, nil)
	f.fetcher.put("a", encodeVolume(t, 4, 4, 4))
	f.fetcher.put("b", encodeVolume(t, 2, 2, 2))
	gateA := f.fetcher.gate("a")

	doneA := f.renderer.LoadVolumeAsync(context.Background(), "a", soilvol.Solids)
	require.Equal(t, "a", <-f.fetcher.entered)

	require.NoError(t, f.renderer.LoadVolume(context.Background(), "b"))
	close(gateA)

	err := <-doneA
	assert.ErrorIs(t, err, ErrStaleLoad)

	dims, _ := f.renderer.VolumeSize()
	assert.Equal(t, [3]int{2, 2, 2}, dims)
	assert.Equal(t, []string{"b"}, f.frames.get())
	assert.Equal(t, 4, f.backend.LiveCount())
}

func TestLoadVolume_NotFoundKeepsPreviousVolume(t *testing.T) {
	f := newFixture(t, nil)
	f.fetcher.put("good", encodeVolume(t, 3, 3, 3))
	require.NoError(t, f.renderer.LoadVolume(context.Background(), "good"))
	before := f.backend.LastFrame()
	live := f.backend.LiveCount()

	err := f.renderer.LoadVolume(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, loader.ErrNetwork)
	var status *loader.StatusError
	require.True(t, errors.As(err, &status))
	assert.Equal(t, http.StatusNotFound, status.StatusCode)

	assert.Equal(t, live, f.backend.LiveCount())
	assert.True(t, f.backend.Live(before.Mesh))
	dims, resident := f.renderer.VolumeSize()
	assert.True(t, resident)
	assert.Equal(t, [3]int{3, 3, 3}, dims)
}

func TestLoadVolume_DecodeErrorPassesThrough(t *testing.T) {
	f := newFixture(t, nil)
	f.fetcher.put("junk", []byte("definitely not a volume"))

	err := f.renderer.LoadVolume(context.Background(), "junk")
	assert.ErrorIs(t, err, loader.ErrDecode)
	assert.ErrorIs(t, err, codec.ErrBadMagic)
	_, resident := f.renderer.VolumeSize()
	assert.False(t, resident)
}

func TestLoadVolume_InstallFailureKeepsPrevious(t *testing.T) {
	f := newFixture(t, nil)
	f.fetcher.put("a", encodeVolume(t, 2, 2, 2))
	f.fetcher.put("b", encodeVolume(t, 3, 3, 3))
	require.NoError(t, f.renderer.LoadVolume(context.Background(), "a"))
	before := f.backend.LastFrame()
	live := f.backend.LiveCount()

	f.backend.FailMaterial = assert.AnError
	err := f.renderer.LoadVolume(context.Background(), "b")
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, live, f.backend.LiveCount())
	assert.True(t, f.backend.Live(before.Material))
}

func TestDispose_Idempotent(t *testing.T) {
	f := newFixture(t, nil)
	f.fetcher.put("a", encodeVolume(t, 2, 2, 2))
	require.NoError(t, f.renderer.LoadVolume(context.Background(), "a"))

	require.NoError(t, f.renderer.Dispose())
	require.NoError(t, f.renderer.Dispose())

	assert.Zero(t, f.backend.LiveCount())
	assert.Zero(t, f.backend.DoubleFreeCount())
	assert.Equal(t, 1, f.backend.Destroyed())

	ctx := context.Background()
	assert.ErrorIs(t, f.renderer.LoadVolume(ctx, "a"), ErrAlreadyDisposed)
	assert.ErrorIs(t, f.renderer.SetRenderParameters(RenderParameters{RenderThreshold: 0.1}), ErrAlreadyDisposed)
	assert.ErrorIs(t, f.renderer.ClipPlanes(ClipPlanes{}), ErrAlreadyDisposed)
	assert.ErrorIs(t, f.renderer.ZoomIn(1), ErrAlreadyDisposed)
	assert.ErrorIs(t, f.renderer.ZoomOut(1), ErrAlreadyDisposed)
	surface, err := f.renderer.Surface()
	assert.ErrorIs(t, err, ErrAlreadyDisposed)
	assert.Nil(t, surface)
	assert.ErrorIs(t, f.renderer.Resize(10, 10), ErrAlreadyDisposed)
	assert.ErrorIs(t, f.renderer.Orbit(0.1, 0), ErrAlreadyDisposed)
	assert.ErrorIs(t, f.renderer.Scroll(1), ErrAlreadyDisposed)
}

func TestDispose_DuringInFlightLoad(t *testing.T) {
	f := newFixture(t, nil)
	f.fetcher.put("slow", encodeVolume(t, 4, 4, 4))
	gate := f.fetcher.gate("slow")

	done := f.renderer.LoadVolumeAsync(context.Background(), "slow", soilvol.Solids)
	<-f.fetcher.entered
	require.NoError(t, f.renderer.Dispose())
	frames := f.backend.FrameCount()

	close(gate)
	assert.ErrorIs(t, <-done, ErrAlreadyDisposed)
	assert.Zero(t, f.backend.LiveCount())
	assert.Equal(t, frames, f.backend.FrameCount())
	assert.Empty(t, f.frames.get())
}

func TestControls_NoMaterialIsNoop(t *testing.T) {
	f := newFixture(t, nil)

	require.NoError(t, f.renderer.SetRenderParameters(RenderParameters{RenderThreshold: 0.5}))
	require.NoError(t, f.renderer.ClipPlanes(ClipPlanes{XAxis: core.ClipRange{Min: 2, Max: 1}}))
	assert.Zero(t, f.backend.UniformUploads())
	assert.Zero(t, f.backend.FrameCount())
}

func TestSetRenderParameters(t *testing.T) {
	f := newFixture(t, nil)
	f.fetcher.put("a", encodeVolume(t, 2, 2, 2))
	require.NoError(t, f.renderer.LoadVolume(context.Background(), "a"))
	frames := f.backend.FrameCount()

	require.NoError(t, f.renderer.SetRenderParameters(RenderParameters{RenderThreshold: 0.3}))
	assert.Equal(t, float32(0.3), f.backend.LastUniforms().Float("u_renderthreshold"))
	assert.Equal(t, frames+1, f.backend.FrameCount())
}

func TestClipPlanes(t *testing.T) {
	f := newFixture(t, nil)
	f.fetcher.put("a", encodeVolume(t, 2, 2, 2))
	require.NoError(t, f.renderer.LoadVolume(context.Background(), "a"))

	valid := ClipPlanes{
		XAxis: core.ClipRange{Min: 0.1, Max: 0.9},
		YAxis: core.ClipRange{Min: 0, Max: 1},
		ZAxis: core.ClipRange{Min: 0.25, Max: 0.25},
	}
	require.NoError(t, f.renderer.ClipPlanes(valid))
	u := f.backend.LastUniforms()
	assert.Equal(t, mgl32.Vec3{0.1, 0, 0.25}, u.Vec3("u_min_distance"))
	assert.Equal(t, mgl32.Vec3{0.9, 1, 0.25}, u.Vec3("u_max_distance"))
	uploads := f.backend.UniformUploads()

	invalid := []ClipPlanes{
		{XAxis: core.ClipRange{Min: 0.6, Max: 0.4}, YAxis: core.ClipRange{Max: 1}, ZAxis: core.ClipRange{Max: 1}},
		{XAxis: core.ClipRange{Max: 1}, YAxis: core.ClipRange{Min: -0.1, Max: 1}, ZAxis: core.ClipRange{Max: 1}},
		{XAxis: core.ClipRange{Max: 1}, YAxis: core.ClipRange{Max: 1}, ZAxis: core.ClipRange{Max: 1.5}},
	}
	for _, c := range invalid {
		assert.ErrorIs(t, f.renderer.ClipPlanes(c), ErrInvalidClipRange)
	}
	assert.Equal(t, uploads, f.backend.UniformUploads())
}

func TestCustomStrategy(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.Shader = gpu.StrategyCustom })
	f.fetcher.put("a", encodeVolume(t, 2, 2, 2))
	require.NoError(t, f.renderer.LoadVolume(context.Background(), "a"))

	desc := f.backend.Materials[f.backend.LastFrame().Material]
	assert.Equal(t, gpu.SideBack, desc.Side)
	assert.Equal(t, gpu.SoilMaxDistance, desc.Uniforms.Vec3("u_max_distance"))

	require.NoError(t, f.renderer.SetRenderParameters(RenderParameters{RenderThreshold: 0.7}))
	assert.Equal(t, float32(0.7), f.backend.LastUniforms().Float("u_threshold"))

	assert.ErrorIs(t, f.renderer.ClipPlanes(ClipPlanes{}), ErrClipUnsupported)
}

func TestZoom_ClampedRegardlessOfSign(t *testing.T) {
	f := newFixture(t, nil)

	require.NoError(t, f.renderer.ZoomIn(3.8))
	require.NoError(t, f.renderer.ZoomIn(1))
	assert.Equal(t, float32(5), f.renderer.Zoom())
	assert.Equal(t, float32(200), f.renderer.ScalePercentage())

	require.NoError(t, f.renderer.ZoomOut(-3))
	assert.Equal(t, float32(5), f.renderer.Zoom())

	require.NoError(t, f.renderer.ZoomOut(10))
	assert.Equal(t, float32(1), f.renderer.Zoom())

	require.NoError(t, f.renderer.ZoomIn(2))
	require.NoError(t, f.renderer.ZoomIn(float32(math.NaN())))
	assert.Equal(t, float32(1), f.renderer.Zoom())
	assert.Equal(t, float32(100), f.renderer.ScalePercentage())

	require.NoError(t, f.renderer.ZoomIn(-3))
	assert.Equal(t, float32(1), f.renderer.Zoom())

	require.NoError(t, f.renderer.ZoomIn(2))
	assert.Equal(t, float32(150), f.renderer.ScalePercentage())

	for i := 0; i < 100; i++ {
		require.NoError(t, f.renderer.Scroll(1))
	}
	assert.Equal(t, float32(5), f.renderer.Zoom())
}

func TestResize_KeepsVerticalExtent(t *testing.T) {
	f := newFixture(t, nil)
	f.fetcher.put("a", encodeVolume(t, 10, 10, 10))
	require.NoError(t, f.renderer.LoadVolume(context.Background(), "a"))
	before := f.renderer.Camera()
	_, vertical := before.HalfExtents()

	require.NoError(t, f.renderer.Resize(300, 100))
	after := f.renderer.Camera()
	h, v := after.HalfExtents()
	assert.Equal(t, vertical, v)
	assert.InDelta(t, vertical*3, h, 1e-4)
	surface, err := f.renderer.Surface()
	require.NoError(t, err)
	w, hh := surface.Size()
	assert.Equal(t, 300, w)
	assert.Equal(t, 100, hh)

	assert.ErrorIs(t, f.renderer.Resize(0, 100), ErrInvalidSize)
}

func TestControlsEvents_PassedThroughAndDetached(t *testing.T) {
	var mu sync.Mutex
	var events []core.ControlsEvent
	record := func(e core.ControlsEvent) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	}
	f := newFixture(t, func(o *Options) {
		o.ControlsEvents = map[core.ControlsEvent]core.ControlsListener{
			core.EventStart:  record,
			core.EventChange: record,
			core.EventEnd:    record,
		}
	})
	f.fetcher.put("a", encodeVolume(t, 4, 4, 4))
	require.NoError(t, f.renderer.LoadVolume(context.Background(), "a"))
	frames := f.backend.FrameCount()

	mu.Lock()
	events = nil
	mu.Unlock()
	require.NoError(t, f.renderer.Orbit(0.2, 0.1))

	mu.Lock()
	assert.Equal(t, []core.ControlsEvent{core.EventStart, core.EventChange, core.EventEnd}, events)
	mu.Unlock()
	assert.Equal(t, frames+1, f.backend.FrameCount())
	// Orbiting never re-reports the first frame.
	assert.Equal(t, []string{"a"}, f.frames.get())

	require.NoError(t, f.renderer.Dispose())
	assert.Zero(t, f.renderer.controls.ListenerCount())
}
