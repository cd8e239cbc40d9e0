package present

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/Carmen-Shannon/oxy-nano/common"
	"github.com/Carmen-Shannon/oxy-nano/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-nano/log"
	"github.com/cogentcore/webgpu/wgpu"
)

var logger = log.New("present")

// blitSource draws one fullscreen triangle and copies the frame texture texel for texel, scaled
// to the surface when the two sizes differ.
const blitSource = `
@group(0) @binding(0) var frame: texture_2d<f32>;
@group(0) @binding(1) var<uniform> surfaceSize: vec4<f32>;

@vertex
fn vs_main(@builtin(vertex_index) i: u32) -> @builtin(position) vec4<f32> {
	let uv = vec2<f32>(f32((i << 1u) & 2u), f32(i & 2u));
	return vec4<f32>(uv * 2.0 - 1.0, 0.0, 1.0);
}

@fragment
fn fs_main(@builtin(position) pos: vec4<f32>) -> @location(0) vec4<f32> {
	let size = vec2<f32>(textureDimensions(frame));
	let p = vec2<i32>(pos.xy * size / surfaceSize.xy);
	let texel = clamp(p, vec2<i32>(0), vec2<i32>(size) - 1);
	return textureLoad(frame, texel, 0);
}
`

// Presenter shows resolved frames on screen.
type Presenter interface {
	// Present uploads img and draws it to the next surface image.
	//
	// Parameters:
	//   - img: the resolved visualization image
	//
	// Returns:
	//   - error: error if the surface image cannot be acquired or drawn
	Present(img resource.Image) error

	// Resize reconfigures the surface after the window changed size.
	Resize(width, height int)

	// Release frees every WebGPU object the presenter owns.
	Release()
}

// surfacePresenter is the WebGPU implementation of Presenter.
type surfacePresenter struct {
	mu *sync.Mutex

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	surface  *wgpu.Surface

	surfaceFormat wgpu.TextureFormat
	presentMode   wgpu.PresentMode
	width         int
	height        int

	layout   *wgpu.BindGroupLayout
	pipeline *wgpu.RenderPipeline
	sizeBuf  *wgpu.Buffer

	// frame texture, recreated when the image size changes
	texture       *wgpu.Texture
	textureView   *wgpu.TextureView
	bindGroup     *wgpu.BindGroup
	textureWidth  uint32
	textureHeight uint32
}

var _ Presenter = &surfacePresenter{}

// NewSurfacePresenter creates a WebGPU device on the surface described by desc and the pipeline
// that copies frames onto it.
//
// Parameters:
//   - desc: the platform surface descriptor, from window.Window.SurfaceDescriptor
//   - width, height: the initial surface size in pixels
//   - vsync: present with FIFO instead of immediate mode
//
// Returns:
//   - Presenter: the presenter
//   - error: error if no adapter or device could be created
func NewSurfacePresenter(desc *wgpu.SurfaceDescriptor, width, height int, vsync bool) (Presenter, error) {
	if desc == nil {
		return nil, errors.New("present: nil surface descriptor")
	}
	runtime.LockOSThread()

	p := &surfacePresenter{
		mu:          &sync.Mutex{},
		instance:    wgpu.CreateInstance(nil),
		presentMode: wgpu.PresentModeImmediate,
	}
	if vsync {
		p.presentMode = wgpu.PresentModeFifo
	}
	p.surface = p.instance.CreateSurface(desc)

	a, err := p.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		CompatibleSurface: p.surface,
	})
	if err != nil {
		p.Release()
		return nil, fmt.Errorf("present: request adapter: %w", err)
	}
	p.adapter = a

	d, err := a.RequestDevice(&wgpu.DeviceDescriptor{Label: "Present Device"})
	if err != nil {
		p.Release()
		return nil, fmt.Errorf("present: request device: %w", err)
	}
	p.device = d
	p.queue = d.GetQueue()

	p.configure(width, height)
	if err := p.createPipeline(); err != nil {
		p.Release()
		return nil, err
	}
	logger.Infof("surface presenter ready: %dx%d format %v", p.width, p.height, p.surfaceFormat)
	return p, nil
}

// configure sets up the swapchain. Caller holds mu or owns p exclusively.
func (p *surfacePresenter) configure(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	capabilities := p.surface.GetCapabilities(p.adapter)
	p.surfaceFormat = capabilities.Formats[0]
	p.width, p.height = width, height

	p.surface.Configure(p.adapter, p.device, &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      p.surfaceFormat,
		Width:       uint32(width),
		Height:      uint32(height),
		PresentMode: p.presentMode,
		AlphaMode:   capabilities.AlphaModes[0],
	})
}

func (p *surfacePresenter) createPipeline() error {
	module, err := p.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: "Blit",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: blitSource,
		},
	})
	if err != nil {
		return fmt.Errorf("present: shader module: %w", err)
	}
	defer module.Release()

	layoutEntries := []wgpu.BindGroupLayoutEntry{
		{Binding: 0, Visibility: wgpu.ShaderStageFragment},
		{Binding: 1, Visibility: wgpu.ShaderStageFragment},
	}
	layoutEntries[0].Texture.SampleType = wgpu.TextureSampleTypeUnfilterableFloat
	layoutEntries[0].Texture.ViewDimension = wgpu.TextureViewDimension2D
	layoutEntries[1].Buffer.Type = wgpu.BufferBindingTypeUniform

	p.layout, err = p.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label:   "Blit Layout",
		Entries: layoutEntries,
	})
	if err != nil {
		return fmt.Errorf("present: bind group layout: %w", err)
	}
	pipelineLayout, err := p.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            "Blit",
		BindGroupLayouts: []*wgpu.BindGroupLayout{p.layout},
	})
	if err != nil {
		return fmt.Errorf("present: pipeline layout: %w", err)
	}
	defer pipelineLayout.Release()

	p.pipeline, err = p.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  "Blit Render Pipeline",
		Layout: pipelineLayout,
		Vertex: wgpu.VertexState{
			Module:     module,
			EntryPoint: "vs_main",
		},
		Fragment: &wgpu.FragmentState{
			Module:     module,
			EntryPoint: "fs_main",
			Targets: []wgpu.ColorTargetState{{
				Format:    p.surfaceFormat,
				WriteMask: wgpu.ColorWriteMaskAll,
			}},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  wgpu.PrimitiveTopologyTriangleList,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  wgpu.CullModeNone,
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return fmt.Errorf("present: render pipeline: %w", err)
	}

	p.sizeBuf, err = p.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "Blit Surface Size",
		Size:  16,
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("present: uniform buffer: %w", err)
	}
	return nil
}

// ensureTexture recreates the frame texture and its bind group when the image size changed.
func (p *surfacePresenter) ensureTexture(width, height uint32) error {
	if p.texture != nil && p.textureWidth == width && p.textureHeight == height {
		return nil
	}
	p.releaseTexture()

	tex, err := p.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:     "Frame Texture",
		Usage:     wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
		Dimension: wgpu.TextureDimension2D,
		Size: wgpu.Extent3D{
			Width:              width,
			Height:             height,
			DepthOrArrayLayers: 1,
		},
		Format:        wgpu.TextureFormatRGBA8Unorm,
		MipLevelCount: 1,
		SampleCount:   1,
	})
	if err != nil {
		return fmt.Errorf("present: frame texture: %w", err)
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return fmt.Errorf("present: frame texture view: %w", err)
	}
	group, err := p.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "Blit Bind Group",
		Layout: p.layout,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, TextureView: view},
			{Binding: 1, Buffer: p.sizeBuf, Size: wgpu.WholeSize},
		},
	})
	if err != nil {
		view.Release()
		tex.Release()
		return fmt.Errorf("present: bind group: %w", err)
	}

	p.texture, p.textureView, p.bindGroup = tex, view, group
	p.textureWidth, p.textureHeight = width, height
	logger.Debugf("frame texture %dx%d", width, height)
	return nil
}

func (p *surfacePresenter) Present(img resource.Image) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.device == nil {
		return errors.New("present: presenter released")
	}
	if img == nil || img.Released() {
		return errors.New("present: image is not available")
	}
	w, h := img.Width(), img.Height()
	if err := p.ensureTexture(w, h); err != nil {
		return err
	}

	rgba := ToRGBA(img)
	p.queue.WriteTexture(
		&wgpu.ImageCopyTexture{
			Texture:  p.texture,
			MipLevel: 0,
			Origin:   wgpu.Origin3D{},
			Aspect:   wgpu.TextureAspectAll,
		},
		rgba.Pix,
		&wgpu.TextureDataLayout{
			Offset:       0,
			BytesPerRow:  uint32(rgba.Stride),
			RowsPerImage: h,
		},
		&wgpu.Extent3D{
			Width:              w,
			Height:             h,
			DepthOrArrayLayers: 1,
		},
	)
	p.queue.WriteBuffer(p.sizeBuf, 0, common.SliceToBytes([]float32{float32(p.width), float32(p.height), 0, 0}))

	surfaceTexture, err := p.surface.GetCurrentTexture()
	if err != nil {
		return fmt.Errorf("present: acquire surface image: %w", err)
	}
	defer surfaceTexture.Release()
	view, err := surfaceTexture.CreateView(nil)
	if err != nil {
		return fmt.Errorf("present: surface view: %w", err)
	}
	defer view.Release()

	encoder, err := p.device.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("present: command encoder: %w", err)
	}
	defer encoder.Release()

	pass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:       view,
			LoadOp:     wgpu.LoadOpClear,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: wgpu.Color{R: 0.05, G: 0.05, B: 0.08, A: 1.0},
		}},
	})
	pass.SetPipeline(p.pipeline)
	pass.SetBindGroup(0, p.bindGroup, nil)
	pass.Draw(3, 1, 0, 0)
	pass.End()

	commandBuffer, err := encoder.Finish(nil)
	if err != nil {
		return fmt.Errorf("present: finish: %w", err)
	}
	defer commandBuffer.Release()
	p.queue.Submit(commandBuffer)
	p.surface.Present()
	return nil
}

func (p *surfacePresenter) Resize(width, height int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.device == nil {
		return
	}
	p.configure(width, height)
}

func (p *surfacePresenter) releaseTexture() {
	if p.bindGroup != nil {
		p.bindGroup.Release()
		p.bindGroup = nil
	}
	if p.textureView != nil {
		p.textureView.Release()
		p.textureView = nil
	}
	if p.texture != nil {
		p.texture.Release()
		p.texture = nil
	}
}

func (p *surfacePresenter) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.releaseTexture()
	if p.sizeBuf != nil {
		p.sizeBuf.Release()
		p.sizeBuf = nil
	}
	if p.pipeline != nil {
		p.pipeline.Release()
		p.pipeline = nil
	}
	if p.layout != nil {
		p.layout.Release()
		p.layout = nil
	}
	if p.device != nil {
		p.device.Release()
		p.device = nil
	}
	if p.adapter != nil {
		p.adapter.Release()
		p.adapter = nil
	}
	if p.surface != nil {
		p.surface.Release()
		p.surface = nil
	}
	if p.instance != nil {
		p.instance.Release()
		p.instance = nil
	}
}
