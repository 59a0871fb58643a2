package gpu

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl32"
)

// glToWGPU maps OpenGL clip depth [-w, w] onto WebGPU's [0, w].
var glToWGPU = mgl32.Mat4{
	1, 0, 0, 0,
	0, 1, 0, 0,
	0, 0, 0.5, 0,
	0, 0, 0.5, 1,
}

const cameraUniformSize = 80

type gpuTexture struct {
	texture *wgpu.Texture
	view    *wgpu.TextureView
}

type gpuGeometry struct {
	buffer *wgpu.Buffer
	count  uint32
}

type gpuMaterial struct {
	pipeline   *wgpu.RenderPipeline
	params     *wgpu.Buffer
	cameraBG   *wgpu.BindGroup
	texturesBG *wgpu.BindGroup
	layout     []string
}

// WindowSurface is the glfw window a WGPUBackend presents into.
type WindowSurface struct {
	Window *glfw.Window
}

func (s *WindowSurface) Size() (int, int) {
	return s.Window.GetFramebufferSize()
}

// WGPUBackend renders volume materials into a glfw window through WebGPU.
// All calls must come from the goroutine that owns the window.
type WGPUBackend struct {
	surfaceHandle *WindowSurface

	instance *wgpu.Instance
	surface  *wgpu.Surface
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	config   *wgpu.SurfaceConfiguration

	sampler   *wgpu.Sampler
	cameraBuf *wgpu.Buffer

	textures   map[ResourceID]*gpuTexture
	geometries map[ResourceID]*gpuGeometry
	materials  map[ResourceID]*gpuMaterial

	destroyed bool
}

func NewWGPUBackend(window *glfw.Window) (*WGPUBackend, error) {
	b := &WGPUBackend{
		surfaceHandle: &WindowSurface{Window: window},
		textures:      make(map[ResourceID]*gpuTexture),
		geometries:    make(map[ResourceID]*gpuGeometry),
		materials:     make(map[ResourceID]*gpuMaterial),
	}

	b.instance = wgpu.CreateInstance(nil)
	b.surface = b.instance.CreateSurface(wgpuglfw.GetSurfaceDescriptor(window))

	var err error
	b.adapter, err = b.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		CompatibleSurface: b.surface,
		PowerPreference:   wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		b.Destroy()
		return nil, fmt.Errorf("request adapter: %w", err)
	}
	b.device, err = b.adapter.RequestDevice(&wgpu.DeviceDescriptor{Label: "volume device"})
	if err != nil {
		b.Destroy()
		return nil, fmt.Errorf("request device: %w", err)
	}
	b.queue = b.device.GetQueue()

	width, height := window.GetFramebufferSize()
	caps := b.surface.GetCapabilities(b.adapter)
	b.config = &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      caps.Formats[0],
		Width:       uint32(width),
		Height:      uint32(height),
		PresentMode: wgpu.PresentModeFifo,
		AlphaMode:   caps.AlphaModes[0],
	}
	b.surface.Configure(b.adapter, b.device, b.config)

	b.sampler, err = b.device.CreateSampler(&wgpu.SamplerDescriptor{
		AddressModeU:  wgpu.AddressModeClampToEdge,
		AddressModeV:  wgpu.AddressModeClampToEdge,
		AddressModeW:  wgpu.AddressModeClampToEdge,
		MagFilter:     wgpu.FilterModeLinear,
		MinFilter:     wgpu.FilterModeLinear,
		MipmapFilter:  wgpu.MipmapFilterModeLinear,
		LodMinClamp:   0,
		LodMaxClamp:   1,
		MaxAnisotropy: 1,
	})
	if err != nil {
		b.Destroy()
		return nil, fmt.Errorf("create sampler: %w", err)
	}

	b.cameraBuf, err = b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "volume camera",
		Size:  cameraUniformSize,
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		b.Destroy()
		return nil, fmt.Errorf("create camera buffer: %w", err)
	}
	return b, nil
}

func (b *WGPUBackend) Surface() Surface {
	return b.surfaceHandle
}

func (b *WGPUBackend) CreateTexture3D(desc Texture3DDesc) (ResourceID, error) {
	if b.destroyed {
		return "", ErrDestroyed
	}
	if len(desc.Data) != desc.Width*desc.Height*desc.Depth {
		return "", fmt.Errorf("gpu: texture %q has %d bytes for %dx%dx%d", desc.Label, len(desc.Data), desc.Width, desc.Height, desc.Depth)
	}
	extent := wgpu.Extent3D{
		Width:              uint32(desc.Width),
		Height:             uint32(desc.Height),
		DepthOrArrayLayers: uint32(desc.Depth),
	}
	tex, err := b.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         desc.Label,
		Size:          extent,
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension3D,
		Format:        wgpu.TextureFormatR8Unorm,
		Usage:         wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
	})
	if err != nil {
		return "", fmt.Errorf("create texture %q: %w", desc.Label, err)
	}
	// One byte per sample, rows tightly packed.
	err = b.queue.WriteTexture(tex.AsImageCopy(), desc.Data, &wgpu.TextureDataLayout{
		Offset:       0,
		BytesPerRow:  uint32(desc.Width),
		RowsPerImage: uint32(desc.Height),
	}, &extent)
	if err != nil {
		tex.Release()
		return "", fmt.Errorf("upload texture %q: %w", desc.Label, err)
	}
	return b.addTexture(tex)
}

func (b *WGPUBackend) CreateTexture2D(desc Texture2DDesc) (ResourceID, error) {
	if b.destroyed {
		return "", ErrDestroyed
	}
	if len(desc.Pixels) != desc.Width*desc.Height*4 {
		return "", fmt.Errorf("gpu: texture %q has %d bytes for %dx%d RGBA", desc.Label, len(desc.Pixels), desc.Width, desc.Height)
	}
	extent := wgpu.Extent3D{Width: uint32(desc.Width), Height: uint32(desc.Height), DepthOrArrayLayers: 1}
	tex, err := b.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         desc.Label,
		Size:          extent,
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        wgpu.TextureFormatRGBA8Unorm,
		Usage:         wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
	})
	if err != nil {
		return "", fmt.Errorf("create texture %q: %w", desc.Label, err)
	}
	err = b.queue.WriteTexture(tex.AsImageCopy(), desc.Pixels, &wgpu.TextureDataLayout{
		Offset:       0,
		BytesPerRow:  uint32(desc.Width * 4),
		RowsPerImage: uint32(desc.Height),
	}, &extent)
	if err != nil {
		tex.Release()
		return "", fmt.Errorf("upload texture %q: %w", desc.Label, err)
	}
	return b.addTexture(tex)
}

func (b *WGPUBackend) addTexture(tex *wgpu.Texture) (ResourceID, error) {
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return "", err
	}
	id := NewResourceID()
	b.textures[id] = &gpuTexture{texture: tex, view: view}
	return id, nil
}

func (b *WGPUBackend) CreateGeometry(geom Geometry) (ResourceID, error) {
	if b.destroyed {
		return "", ErrDestroyed
	}
	buf, err := b.device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    geom.Label,
		Contents: geom.Bytes(),
		Usage:    wgpu.BufferUsageVertex,
	})
	if err != nil {
		return "", fmt.Errorf("create geometry: %w", err)
	}
	id := NewResourceID()
	b.geometries[id] = &gpuGeometry{buffer: buf, count: uint32(geom.VertexCount())}
	return id, nil
}

func cullMode(side Side) wgpu.CullMode {
	switch side {
	case SideBack:
		return wgpu.CullModeFront
	case SideDouble:
		return wgpu.CullModeNone
	}
	return wgpu.CullModeBack
}

func (b *WGPUBackend) CreateMaterial(desc MaterialDesc) (ResourceID, error) {
	if b.destroyed {
		return "", ErrDestroyed
	}
	if len(desc.Textures) != 2 {
		return "", fmt.Errorf("gpu: material %q needs a data and a colour map texture", desc.Label)
	}
	data, ok := b.textures[desc.Uniforms.Texture(desc.Textures[0])]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownResource, desc.Textures[0])
	}
	cmap, ok := b.textures[desc.Uniforms.Texture(desc.Textures[1])]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownResource, desc.Textures[1])
	}
	params, err := PackUniforms(desc.Layout, desc.Uniforms)
	if err != nil {
		return "", err
	}

	module, err := b.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          desc.Label,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: desc.Shader},
	})
	if err != nil {
		return "", fmt.Errorf("compile %q: %w", desc.Label, err)
	}
	defer module.Release()

	pipeline, err := b.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label: desc.Label,
		Vertex: wgpu.VertexState{
			Module:     module,
			EntryPoint: "vs_main",
			Buffers: []wgpu.VertexBufferLayout{{
				ArrayStride: 12,
				StepMode:    wgpu.VertexStepModeVertex,
				Attributes: []wgpu.VertexAttribute{
					{Format: wgpu.VertexFormatFloat32x3, Offset: 0, ShaderLocation: 0},
				},
			}},
		},
		Fragment: &wgpu.FragmentState{
			Module:     module,
			EntryPoint: "fs_main",
			Targets: []wgpu.ColorTargetState{{
				Format:    b.config.Format,
				WriteMask: wgpu.ColorWriteMaskAll,
			}},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  wgpu.PrimitiveTopologyTriangleList,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  cullMode(desc.Side),
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return "", fmt.Errorf("create pipeline %q: %w", desc.Label, err)
	}

	m := &gpuMaterial{pipeline: pipeline, layout: desc.Layout}
	m.params, err = b.device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    desc.Label + " params",
		Contents: params,
		Usage:    wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		m.release()
		return "", fmt.Errorf("create params %q: %w", desc.Label, err)
	}
	m.cameraBG, err = b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Layout: pipeline.GetBindGroupLayout(0),
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: b.cameraBuf, Size: wgpu.WholeSize},
		},
	})
	if err != nil {
		m.release()
		return "", fmt.Errorf("camera bind group %q: %w", desc.Label, err)
	}
	m.texturesBG, err = b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Layout: pipeline.GetBindGroupLayout(1),
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: m.params, Size: wgpu.WholeSize},
			{Binding: 1, TextureView: data.view},
			{Binding: 2, TextureView: cmap.view},
			{Binding: 3, Sampler: b.sampler},
		},
	})
	if err != nil {
		m.release()
		return "", fmt.Errorf("texture bind group %q: %w", desc.Label, err)
	}

	id := NewResourceID()
	b.materials[id] = m
	return id, nil
}

func (m *gpuMaterial) release() {
	if m.texturesBG != nil {
		m.texturesBG.Release()
	}
	if m.cameraBG != nil {
		m.cameraBG.Release()
	}
	if m.params != nil {
		m.params.Release()
	}
	if m.pipeline != nil {
		m.pipeline.Release()
	}
}

func (b *WGPUBackend) UpdateUniforms(material ResourceID, uniforms UniformSet) error {
	if b.destroyed {
		return ErrDestroyed
	}
	m, ok := b.materials[material]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownResource, material)
	}
	params, err := PackUniforms(m.layout, uniforms)
	if err != nil {
		return err
	}
	b.queue.WriteBuffer(m.params, 0, params)
	return nil
}

func (b *WGPUBackend) Draw(frame Frame) error {
	if b.destroyed {
		return ErrDestroyed
	}
	b.queue.WriteBuffer(b.cameraBuf, 0, packCamera(glToWGPU.Mul4(frame.ViewProjection), frame.Forward))

	next, err := b.surface.GetCurrentTexture()
	if err != nil {
		return fmt.Errorf("acquire surface texture: %w", err)
	}
	defer next.Release()
	view, err := next.CreateView(nil)
	if err != nil {
		return fmt.Errorf("surface view: %w", err)
	}
	defer view.Release()

	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("command encoder: %w", err)
	}
	defer encoder.Release()

	pass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:       view,
			LoadOp:     wgpu.LoadOpClear,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: wgpu.Color{R: 0, G: 0, B: 0, A: 0},
		}},
	})
	geom, hasGeom := b.geometries[frame.Mesh]
	mat, hasMat := b.materials[frame.Material]
	if hasGeom && hasMat {
		pass.SetPipeline(mat.pipeline)
		pass.SetBindGroup(0, mat.cameraBG, nil)
		pass.SetBindGroup(1, mat.texturesBG, nil)
		pass.SetVertexBuffer(0, geom.buffer, 0, wgpu.WholeSize)
		pass.Draw(geom.count, 1, 0, 0)
	}
	if err := pass.End(); err != nil {
		return fmt.Errorf("render pass: %w", err)
	}
	pass.Release()

	cmd, err := encoder.Finish(nil)
	if err != nil {
		return fmt.Errorf("finish encoder: %w", err)
	}
	defer cmd.Release()
	b.queue.Submit(cmd)
	b.surface.Present()
	return nil
}

func (b *WGPUBackend) Resize(width, height int) error {
	if b.destroyed {
		return ErrDestroyed
	}
	if width <= 0 || height <= 0 {
		return nil
	}
	b.config.Width = uint32(width)
	b.config.Height = uint32(height)
	b.surface.Configure(b.adapter, b.device, b.config)
	return nil
}

func (b *WGPUBackend) Release(id ResourceID) {
	if t, ok := b.textures[id]; ok {
		t.view.Release()
		t.texture.Release()
		delete(b.textures, id)
		return
	}
	if g, ok := b.geometries[id]; ok {
		g.buffer.Release()
		delete(b.geometries, id)
		return
	}
	if m, ok := b.materials[id]; ok {
		m.release()
		delete(b.materials, id)
	}
}

// Destroy releases every remaining resource and the device. It is safe to
// call more than once.
func (b *WGPUBackend) Destroy() {
	if b.destroyed {
		return
	}
	b.destroyed = true
	for id := range b.materials {
		b.Release(id)
	}
	for id := range b.geometries {
		b.Release(id)
	}
	for id := range b.textures {
		b.Release(id)
	}
	if b.cameraBuf != nil {
		b.cameraBuf.Release()
	}
	if b.sampler != nil {
		b.sampler.Release()
	}
	if b.queue != nil {
		b.queue.Release()
	}
	if b.device != nil {
		b.device.Release()
	}
	if b.adapter != nil {
		b.adapter.Release()
	}
	if b.surface != nil {
		b.surface.Release()
	}
	if b.instance != nil {
		b.instance.Release()
	}
}
