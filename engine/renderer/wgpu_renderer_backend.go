package renderer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/Carmen-Shannon/oxy-nano/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-nano/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-nano/engine/renderer/raster"
	"github.com/Carmen-Shannon/oxy-nano/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-nano/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

// pushConstantStride is the byte distance between the push constant blocks of two commands in the
// push arena. It is the default minUniformBufferOffsetAlignment and holds MaxPushConstants words.
const pushConstantStride = 256

// renderTargetFormat is the format of the color attachment the raster pass needs to exist. The
// pipeline never writes it; fragments go to the visibility buffer.
const renderTargetFormat = wgpu.TextureFormatRGBA8Unorm

// Adapter feature names that together back FeatureInt64Atomics: 64-bit integers in WGSL plus
// 64-bit atomic min/max on storage buffers. Names are compared after normalizeFeatureName.
var (
	int64FeatureNames       = []string{"shaderint64"}
	int64AtomicFeatureNames = []string{"shaderint64atomicminmax", "shaderint64atomicallops"}
)

type wgpuRendererBackendImpl struct {
	mu     *sync.Mutex
	device *wgpu.Device
	queue  *wgpu.Queue

	instance *wgpu.Instance
	adapter  *wgpu.Adapter

	features Feature

	// pushLayout is bind group 1 of every pipeline with push constants. Each command gets its own
	// pushConstantStride block of pushArena, selected with a dynamic offset.
	pushLayout *wgpu.BindGroupLayout
	pushArena  *wgpu.Buffer
	pushGroup  *wgpu.BindGroup
	pushBlocks int

	// The raster pass draws into a color target it never writes, resized with the viewport.
	target     *wgpu.Texture
	targetView *wgpu.TextureView
	targetSize raster.Viewport

	pipelines []*wgpuPipeline
	released  bool
}

// wgpuPipeline is what a pipeline resolves to on the wgpu backend. It is attached with SetProgram.
type wgpuPipeline struct {
	compute *wgpu.ComputePipeline
	render  *wgpu.RenderPipeline
	layout  *wgpu.BindGroupLayout
	slots   []shader.BindingDecl
	push    bool
}

var _ RendererBackend = &wgpuRendererBackendImpl{}

// newWGPURendererBackend acquires an adapter and a device. FeatureInt64Atomics is reported only
// when the adapter exposes the native 64-bit atomic features, which are then requested on the
// device; without them every pass but the two rasterizers still compiles and runs.
func newWGPURendererBackend(forceFallbackAdapter bool, disabled Feature) (RendererBackend, error) {
	runtime.LockOSThread()
	w := &wgpuRendererBackendImpl{
		mu:       &sync.Mutex{},
		instance: wgpu.CreateInstance(nil),
	}

	a, err := w.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: forceFallbackAdapter,
	})
	if err != nil {
		w.instance.Release()
		return nil, fmt.Errorf("renderer: wgpu adapter: %w", err)
	}
	w.adapter = a

	available := a.EnumerateFeatures()
	names := make([]string, len(available))
	for i, f := range available {
		names[i] = fmt.Sprint(f)
	}
	picked, int64Atomics := selectInt64AtomicFeatures(names)
	required := make([]wgpu.FeatureName, 0, len(picked))
	for _, i := range picked {
		required = append(required, available[i])
	}

	limits := wgpu.DefaultLimits()
	d, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label:            "Visibility Device",
		RequiredFeatures: required,
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: limits,
		},
	})
	if err != nil {
		a.Release()
		w.instance.Release()
		return nil, fmt.Errorf("renderer: wgpu device: %w", err)
	}
	w.device = d
	w.queue = d.GetQueue()

	w.features = FeatureIndirect
	if int64Atomics {
		w.features |= FeatureInt64Atomics
	}
	w.features &^= disabled

	w.pushLayout, err = d.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "Push Constants",
		Entries: []wgpu.BindGroupLayoutEntry{{
			Binding:    0,
			Visibility: wgpu.ShaderStageCompute | wgpu.ShaderStageVertex | wgpu.ShaderStageFragment,
			Buffer: wgpu.BufferBindingLayout{
				Type:             wgpu.BufferBindingTypeUniform,
				HasDynamicOffset: true,
				MinBindingSize:   pushConstantStride,
			},
		}},
	})
	if err != nil {
		w.Release()
		return nil, fmt.Errorf("renderer: push constant layout: %w", err)
	}
	return w, nil
}

// normalizeFeatureName folds the spellings bindings use for one feature ("ShaderInt64",
// "shader-int64", "NativeFeatureShaderInt64", "FeatureNameShaderInt64") onto one key.
func normalizeFeatureName(name string) string {
	n := strings.ToLower(name)
	n = strings.NewReplacer("_", "", "-", "", " ", "").Replace(n)
	for _, prefix := range []string{"wgpunativefeature", "nativefeature", "featurename"} {
		n = strings.TrimPrefix(n, prefix)
	}
	return n
}

// selectInt64AtomicFeatures picks, from the adapter's feature names, the ones the device must
// request for 64-bit atomic min on storage buffers.
//
// Parameters:
//   - names: the adapter's features as printed
//
// Returns:
//   - []int: indices into names of the features to request
//   - bool: true when both 64-bit integers and 64-bit atomics are available
func selectInt64AtomicFeatures(names []string) ([]int, bool) {
	int64At, atomicAt := -1, -1
	for i, name := range names {
		n := normalizeFeatureName(name)
		for _, want := range int64FeatureNames {
			if n == want && int64At < 0 {
				int64At = i
			}
		}
		for _, want := range int64AtomicFeatureNames {
			if n == want && atomicAt < 0 {
				atomicAt = i
			}
		}
	}
	if int64At < 0 || atomicAt < 0 {
		return nil, false
	}
	return []int{int64At, atomicAt}, true
}

// kernelFeatures returns the device features a compiled kernel depends on.
func kernelFeatures(kernel string) Feature {
	if strings.Contains(kernel, "u64") {
		return FeatureInt64Atomics
	}
	return 0
}

func (b *wgpuRendererBackendImpl) Features() Feature {
	return b.features
}

func (b *wgpuRendererBackendImpl) RegisterPipeline(p pipeline.Pipeline, _ *Programs) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return resource.ErrReleased
	}

	decls, err := pipelineDeclarations(p)
	if err != nil {
		return err
	}
	wp := &wgpuPipeline{slots: sortedDeclarations(decls)}

	switch p.Type() {
	case pipeline.PipelineTypeCompute:
		cs := p.Shader(shader.ShaderTypeCompute)
		if cs == nil {
			return errors.New("compute shader must be set to create a compute pipeline")
		}
		module, err := b.shaderModule(cs)
		if err != nil {
			return err
		}
		defer module.Release()

		wp.push = cs.PushConstantCount() > 0
		layout, err := b.pipelineLayout(p.PipelineKey(), wp, layoutEntries(cs.Bindings(), wgpu.ShaderStageCompute))
		if err != nil {
			return err
		}
		wp.compute, err = b.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
			Label:  p.PipelineKey() + " Compute Pipeline",
			Layout: layout,
			Compute: wgpu.ProgrammableStageDescriptor{
				Module:     module,
				EntryPoint: cs.EntryPoint(),
			},
		})
		if err != nil {
			return err
		}

	case pipeline.PipelineTypeRender:
		vertexShader := p.Shader(shader.ShaderTypeVertex)
		fragmentShader := p.Shader(shader.ShaderTypeFragment)
		if vertexShader == nil || fragmentShader == nil {
			return errors.New("both vertex and fragment shaders must be set to create a render pipeline")
		}
		vs, err := b.shaderModule(vertexShader)
		if err != nil {
			return err
		}
		defer vs.Release()
		fs, err := b.shaderModule(fragmentShader)
		if err != nil {
			return err
		}
		defer fs.Release()

		wp.push = vertexShader.PushConstantCount() > 0 || fragmentShader.PushConstantCount() > 0
		entries := mergeLayoutEntries(
			layoutEntries(vertexShader.Bindings(), wgpu.ShaderStageVertex),
			layoutEntries(fragmentShader.Bindings(), wgpu.ShaderStageFragment),
		)
		layout, err := b.pipelineLayout(p.PipelineKey(), wp, entries)
		if err != nil {
			return err
		}
		wp.render, err = b.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
			Label:  p.PipelineKey() + " Render Pipeline",
			Layout: layout,
			Vertex: wgpu.VertexState{
				Module:     vs,
				EntryPoint: vertexShader.EntryPoint(),
			},
			Fragment: &wgpu.FragmentState{
				Module:     fs,
				EntryPoint: fragmentShader.EntryPoint(),
				Targets: []wgpu.ColorTargetState{{
					Format:    renderTargetFormat,
					WriteMask: wgpu.ColorWriteMask(0),
				}},
			},
			Primitive: wgpu.PrimitiveState{
				Topology:  wgpu.PrimitiveTopologyTriangleList,
				FrontFace: wgpuFrontFace(p.FrontFace()),
				CullMode:  wgpuCullMode(p.CullMode()),
			},
			Multisample: wgpu.MultisampleState{
				Count: 1,
				Mask:  0xFFFFFFFF,
			},
		})
		if err != nil {
			return err
		}
	}

	p.SetProgram(wp)
	b.pipelines = append(b.pipelines, wp)
	return nil
}

// shaderModule expands s into WGSL and compiles it, refusing kernels that need a feature the
// device lacks.
func (b *wgpuRendererBackendImpl) shaderModule(s shader.Shader) (*wgpu.ShaderModule, error) {
	kernel, err := s.Kernel()
	if err != nil {
		return nil, err
	}
	if need := kernelFeatures(kernel); need&^b.features != 0 {
		return nil, fmt.Errorf("%w: %s (%s) needs %s on the wgpu backend", ErrMissingFeature, s.EntryPoint(), s.Path(), need&^b.features)
	}
	return b.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: s.Key(),
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: kernel,
		},
	})
}

// pipelineLayout creates bind group 0 from entries and the layout of wp, adding the shared push
// constant group when wp has push constants.
func (b *wgpuRendererBackendImpl) pipelineLayout(key string, wp *wgpuPipeline, entries []wgpu.BindGroupLayoutEntry) (*wgpu.PipelineLayout, error) {
	var err error
	wp.layout, err = b.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label:   key,
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bind group layout for group 0: %w", err)
	}
	groups := []*wgpu.BindGroupLayout{wp.layout}
	if wp.push {
		groups = append(groups, b.pushLayout)
	}
	return b.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            key,
		BindGroupLayouts: groups,
	})
}

// sortedDeclarations orders declarations by slot.
func sortedDeclarations(decls map[int]shader.BindingDecl) []shader.BindingDecl {
	out := make([]shader.BindingDecl, 0, len(decls))
	for _, d := range decls {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Slot < out[j].Slot
	})
	return out
}

// layoutEntries builds the bind group 0 entries of one stage from its declarations. Image slots
// are storage buffers of texels on this backend.
//
// Parameters:
//   - decls: the slots the stage declares
//   - visibility: the stage
//
// Returns:
//   - []wgpu.BindGroupLayoutEntry: the entries sorted by binding
func layoutEntries(decls map[int]shader.BindingDecl, visibility wgpu.ShaderStage) []wgpu.BindGroupLayoutEntry {
	entries := make([]wgpu.BindGroupLayoutEntry, 0, len(decls))
	for _, d := range sortedDeclarations(decls) {
		kind := wgpu.BufferBindingTypeReadOnlyStorage
		switch {
		case d.Kind == shader.AnnotationArgUniform:
			kind = wgpu.BufferBindingTypeUniform
		case d.ReadWrite:
			kind = wgpu.BufferBindingTypeStorage
		}
		entries = append(entries, wgpu.BindGroupLayoutEntry{
			Binding:    uint32(d.Slot),
			Visibility: visibility,
			Buffer: wgpu.BufferBindingLayout{
				Type: kind,
			},
		})
	}
	return entries
}

// mergeLayoutEntries merges the bind group 0 entries of a vertex and a fragment stage. A binding
// declared by both stages is listed once with the visibility of both.
//
// Parameters:
//   - vertexEntries: the entries of the vertex stage
//   - fragmentEntries: the entries of the fragment stage
//
// Returns:
//   - []wgpu.BindGroupLayoutEntry: the merged entries sorted by binding
func mergeLayoutEntries(vertexEntries, fragmentEntries []wgpu.BindGroupLayoutEntry) []wgpu.BindGroupLayoutEntry {
	entryMap := make(map[uint32]wgpu.BindGroupLayoutEntry)
	for _, e := range vertexEntries {
		entryMap[e.Binding] = e
	}
	for _, e := range fragmentEntries {
		if existing, ok := entryMap[e.Binding]; ok {
			existing.Visibility |= e.Visibility
			entryMap[e.Binding] = existing
		} else {
			entryMap[e.Binding] = e
		}
	}

	entries := make([]wgpu.BindGroupLayoutEntry, 0, len(entryMap))
	for _, e := range entryMap {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Binding < entries[j].Binding
	})
	return entries
}

func wgpuCullMode(m pipeline.CullMode) wgpu.CullMode {
	switch m {
	case pipeline.CullModeBack:
		return wgpu.CullModeBack
	case pipeline.CullModeFront:
		return wgpu.CullModeFront
	default:
		return wgpu.CullModeNone
	}
}

func wgpuFrontFace(f pipeline.FrontFace) wgpu.FrontFace {
	if f == pipeline.FrontFaceCW {
		return wgpu.FrontFaceCW
	}
	return wgpu.FrontFaceCCW
}

func (b *wgpuRendererBackendImpl) CreateBuffer(label string, size uint64, usage resource.BufferUsage) (resource.Buffer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return nil, resource.ErrReleased
	}
	if size == 0 {
		return nil, fmt.Errorf("renderer: buffer %s has zero size", label)
	}

	host := resource.NewBuffer(label, size, usage)
	gpu, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label,
		Size:  host.Size(),
		Usage: deviceBufferUsage(usage),
	})
	if err != nil {
		return nil, fmt.Errorf("renderer: buffer %s: %w", label, err)
	}
	return &wgpuBuffer{Buffer: host, gpu: gpu}, nil
}

func (b *wgpuRendererBackendImpl) CreateImage(label string, width, height uint32) (resource.Image, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return nil, resource.ErrReleased
	}
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("renderer: image %s has zero extent", label)
	}

	host := resource.NewImage(label, width, height)
	gpu, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label,
		Size:  uint64(len(texelBytes(host.Texels()))),
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst | wgpu.BufferUsageCopySrc,
	})
	if err != nil {
		return nil, fmt.Errorf("renderer: image %s: %w", label, err)
	}
	return &wgpuImage{Image: host, gpu: gpu}, nil
}

// WriteBuffers writes the host shadows; the next Execute uploads them.
func (b *wgpuRendererBackendImpl) WriteBuffers(writes []bind_group_provider.BufferWrite) error {
	return writeHost(writes)
}

// wgpuUse is one resource a submission touches.
type wgpuUse struct {
	res     wgpuResource
	written bool
}

// Execute encodes the whole command list into one submission. Each dispatch and each draw gets its
// own pass, which orders it after everything recorded before it, so barriers need no encoding.
// Dirty shadows are uploaded first; afterwards every written resource that allows readback is
// copied back into its shadow.
func (b *wgpuRendererBackendImpl) Execute(cmds []command) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return resource.ErrReleased
	}

	var (
		uses    []wgpuUse
		index   = make(map[wgpuResource]int)
		pushes  [][]uint32
		touched = func(r wgpuResource, written bool) {
			if i, ok := index[r]; ok {
				uses[i].written = uses[i].written || written
				return
			}
			index[r] = len(uses)
			uses = append(uses, wgpuUse{res: r, written: written})
		}
	)
	for i, c := range cmds {
		if c.kind == commandBarrier {
			continue
		}
		wp, ok := c.pipeline.Program().(*wgpuPipeline)
		if !ok {
			return fmt.Errorf("command %d (%s): %w", i, c, ErrProgramNotFound)
		}
		for _, slot := range wp.slots {
			binding, _ := c.provider.Binding(slot.Slot)
			r, err := deviceResource(binding)
			if err != nil {
				return fmt.Errorf("command %d (%s): %w", i, c, err)
			}
			if r.Released() {
				return fmt.Errorf("command %d (%s): %w: %s", i, c, resource.ErrReleased, r.Label())
			}
			touched(r, slot.ReadWrite)
		}
		if c.args != nil {
			args, ok := c.args.(*wgpuBuffer)
			if !ok {
				return fmt.Errorf("command %d (%s): %w: buffer %s was not created by the wgpu backend", i, c, ErrBindingMismatch, c.args.Label())
			}
			touched(args, false)
		}
		if wp.push {
			pushes = append(pushes, c.push)
		}
	}

	for _, u := range uses {
		if err := u.res.upload(b.queue); err != nil {
			return err
		}
	}
	if err := b.writePushArena(pushes); err != nil {
		return err
	}

	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		return err
	}
	defer encoder.Release()

	var groups []*wgpu.BindGroup
	defer func() {
		for _, g := range groups {
			g.Release()
		}
	}()

	block := 0
	for i, c := range cmds {
		if c.kind == commandBarrier {
			continue
		}
		wp := c.pipeline.Program().(*wgpuPipeline)
		group, err := b.bindGroup(c, wp)
		if err != nil {
			return fmt.Errorf("command %d (%s): %w", i, c, err)
		}
		groups = append(groups, group)

		var offsets []uint32
		if wp.push {
			offsets = []uint32{uint32(block * pushConstantStride)}
			block++
		}

		switch c.kind {
		case commandDispatch, commandDispatchIndirect:
			pass := encoder.BeginComputePass(nil)
			pass.SetPipeline(wp.compute)
			pass.SetBindGroup(0, group, nil)
			if wp.push {
				pass.SetBindGroup(shader.PushConstantGroup, b.pushGroup, offsets)
			}
			if c.kind == commandDispatchIndirect {
				pass.DispatchWorkgroupsIndirect(c.args.(*wgpuBuffer).gpu, c.offset)
			} else {
				pass.DispatchWorkgroups(c.groups[0], c.groups[1], c.groups[2])
			}
			pass.End()

		case commandDrawIndirect:
			view, err := b.renderTarget(c.viewport)
			if err != nil {
				return fmt.Errorf("command %d (%s): %w", i, c, err)
			}
			pass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
				ColorAttachments: []wgpu.RenderPassColorAttachment{{
					View:       view,
					LoadOp:     wgpu.LoadOpClear,
					StoreOp:    wgpu.StoreOpDiscard,
					ClearValue: wgpu.Color{},
				}},
			})
			pass.SetPipeline(wp.render)
			pass.SetBindGroup(0, group, nil)
			if wp.push {
				pass.SetBindGroup(shader.PushConstantGroup, b.pushGroup, offsets)
			}
			pass.DrawIndirect(c.args.(*wgpuBuffer).gpu, c.offset)
			pass.End()
		}
	}

	type readback struct {
		res     wgpuResource
		staging *wgpu.Buffer
	}
	var reads []readback
	defer func() {
		for _, r := range reads {
			r.staging.Release()
		}
	}()
	for _, u := range uses {
		if !u.written || !u.res.readBack() {
			continue
		}
		size := u.res.deviceSize()
		staging, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: u.res.Label() + " Readback",
			Size:  size,
			Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		})
		if err != nil {
			return fmt.Errorf("renderer: readback %s: %w", u.res.Label(), err)
		}
		reads = append(reads, readback{res: u.res, staging: staging})
		encoder.CopyBufferToBuffer(u.res.device(), 0, staging, 0, size)
	}

	commandBuffer, err := encoder.Finish(nil)
	if err != nil {
		return err
	}
	b.queue.Submit(commandBuffer)
	commandBuffer.Release()

	statuses := make([]wgpu.BufferMapAsyncStatus, len(reads))
	for i, r := range reads {
		r.staging.MapAsync(wgpu.MapModeRead, 0, r.res.deviceSize(), func(status wgpu.BufferMapAsyncStatus) {
			statuses[i] = status
		})
	}
	b.device.Poll(true, nil)

	for i, r := range reads {
		if statuses[i] != wgpu.BufferMapAsyncStatusSuccess {
			return fmt.Errorf("renderer: readback %s: map status %d", r.res.Label(), statuses[i])
		}
		data := r.staging.GetMappedRange(0, uint(r.res.deviceSize()))
		copy(r.res.shadow(), data)
		r.staging.Unmap()
	}
	return nil
}

// bindGroup binds the resources of c's provider to bind group 0 of wp.
func (b *wgpuRendererBackendImpl) bindGroup(c command, wp *wgpuPipeline) (*wgpu.BindGroup, error) {
	entries := make([]wgpu.BindGroupEntry, 0, len(wp.slots))
	for _, slot := range wp.slots {
		binding, _ := c.provider.Binding(slot.Slot)
		r, err := deviceResource(binding)
		if err != nil {
			return nil, err
		}
		entries = append(entries, wgpu.BindGroupEntry{
			Binding: uint32(slot.Slot),
			Buffer:  r.device(),
			Offset:  0,
			Size:    wgpu.WholeSize,
		})
	}
	label := c.pipeline.PipelineKey()
	if c.provider != nil {
		label = c.provider.Label()
	}
	return b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   label + " Bind Group",
		Layout:  wp.layout,
		Entries: entries,
	})
}

// writePushArena uploads one push constant block per command that has push constants, growing
// the arena when the command list needs more blocks than it holds.
func (b *wgpuRendererBackendImpl) writePushArena(pushes [][]uint32) error {
	if len(pushes) == 0 {
		return nil
	}
	if len(pushes) > b.pushBlocks {
		if b.pushGroup != nil {
			b.pushGroup.Release()
			b.pushArena.Release()
			b.pushGroup, b.pushArena, b.pushBlocks = nil, nil, 0
		}
		arena, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: "Push Constant Arena",
			Size:  uint64(len(pushes) * pushConstantStride),
			Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
		})
		if err != nil {
			return fmt.Errorf("renderer: push constant arena: %w", err)
		}
		group, err := b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
			Label:  "Push Constant Arena",
			Layout: b.pushLayout,
			Entries: []wgpu.BindGroupEntry{{
				Binding: 0,
				Buffer:  arena,
				Offset:  0,
				Size:    pushConstantStride,
			}},
		})
		if err != nil {
			arena.Release()
			return fmt.Errorf("renderer: push constant arena: %w", err)
		}
		b.pushArena, b.pushGroup, b.pushBlocks = arena, group, len(pushes)
	}
	return b.queue.WriteBuffer(b.pushArena, 0, pushConstantBlocks(pushes))
}

// pushConstantBlocks lays out push constants as consecutive pushConstantStride blocks of
// little-endian words, zero-padded.
func pushConstantBlocks(pushes [][]uint32) []byte {
	data := make([]byte, len(pushes)*pushConstantStride)
	for i, push := range pushes {
		block := data[i*pushConstantStride : (i+1)*pushConstantStride]
		for k, v := range push {
			if k >= shader.MaxPushConstants {
				break
			}
			binary.LittleEndian.PutUint32(block[4*k:], v)
		}
	}
	return data
}

// renderTarget returns a view of the color attachment sized to vp, recreating it on resize.
func (b *wgpuRendererBackendImpl) renderTarget(vp raster.Viewport) (*wgpu.TextureView, error) {
	if b.targetView != nil && b.targetSize == vp {
		return b.targetView, nil
	}
	b.releaseTarget()

	tex, err := b.device.CreateTexture(&wgpu.TextureDescriptor{
		Label: "Raster Target",
		Size: wgpu.Extent3D{
			Width:              vp.Width,
			Height:             vp.Height,
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        renderTargetFormat,
		Usage:         wgpu.TextureUsageRenderAttachment,
	})
	if err != nil {
		return nil, err
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return nil, err
	}
	b.target, b.targetView, b.targetSize = tex, view, vp
	return view, nil
}

func (b *wgpuRendererBackendImpl) releaseTarget() {
	if b.targetView != nil {
		b.targetView.Release()
		b.targetView = nil
	}
	if b.target != nil {
		b.target.Release()
		b.target = nil
	}
}

func (b *wgpuRendererBackendImpl) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return
	}
	b.released = true

	for _, wp := range b.pipelines {
		if wp.compute != nil {
			wp.compute.Release()
		}
		if wp.render != nil {
			wp.render.Release()
		}
		if wp.layout != nil {
			wp.layout.Release()
		}
	}
	b.pipelines = nil
	b.releaseTarget()
	if b.pushGroup != nil {
		b.pushGroup.Release()
		b.pushArena.Release()
	}
	if b.pushLayout != nil {
		b.pushLayout.Release()
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
	if b.instance != nil {
		b.instance.Release()
	}
}
