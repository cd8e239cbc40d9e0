package renderer

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/Carmen-Shannon/oxy-nano/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-nano/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-nano/engine/renderer/raster"
	"github.com/Carmen-Shannon/oxy-nano/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-nano/engine/renderer/shader"
)

// renderer is the implementation of the Renderer interface.
type renderer struct {
	mu *sync.Mutex

	pipelineCache map[string]pipeline.Pipeline
	declarations  map[string]map[int]shader.BindingDecl
	programs      Programs

	backendType RendererBackendType
	backend     RendererBackend

	// Pre-creation config collected from builder options
	workers          int
	validate         bool
	disabledFeatures Feature
	forceFallback    bool

	// Frame recording state
	recording bool
	commands  []command
	frameErr  error
}

// Renderer defines the interface for the device.
//
// This is a high-level API that keeps the pipeline cache, resolves shader entry points to programs,
// and records one command list per frame. Commands run in recording order, each one to completion
// before the next starts. Memory visibility between commands is only guaranteed across a Barrier;
// with validation enabled, a submission that relies on ordering without a covering barrier fails
// with ErrHazard before anything executes.
type Renderer interface {
	// BackendType returns the backend the renderer was created with.
	BackendType() RendererBackendType

	// Features reports the capabilities of the device.
	//
	// Returns:
	//   - Feature: the supported feature bits
	Features() Feature

	// RequireFeatures returns an ErrMissingFeature error naming the first missing capability.
	//
	// Parameters:
	//   - features: the required feature bits
	//
	// Returns:
	//   - error: nil when every feature is supported
	RequireFeatures(features Feature) error

	// RegisterPrograms adds entry point implementations to the program library.
	// Programs must be registered before the pipelines that name them.
	//
	// Parameters:
	//   - programs: the programs keyed by entry point name
	RegisterPrograms(programs Programs)

	// Pipeline retrieves the cached Pipeline associated with the given key.
	// If the Pipeline does not exist, this will return nil.
	//
	// Parameters:
	//   - key: the unique identifier for the Pipeline to retrieve
	//
	// Returns:
	//   - pipeline.Pipeline: the Pipeline associated with the key, or nil if not found
	Pipeline(key string) pipeline.Pipeline

	// Pipelines retrieves the entire cache of Pipelines.
	//
	// Returns:
	//   - map[string]pipeline.Pipeline: a map of pipeline keys to their corresponding Pipeline objects
	Pipelines() map[string]pipeline.Pipeline

	// RegisterPipelines hands each pipeline to the backend, which resolves its entry points to
	// programs (software) or compiles its WGSL kernels (wgpu), then caches the pipelines by
	// PipelineKey. Pipelines whose keys are already registered are skipped.
	//
	// Parameters:
	//   - pipelines: the Pipelines to register
	//
	// Returns:
	//   - error: ErrProgramNotFound, ErrBindingMismatch, ErrMissingFeature or a compile error when
	//     a pipeline cannot be prepared
	RegisterPipelines(pipelines ...pipeline.Pipeline) error

	// CreateBuffer allocates a zeroed device buffer owned by the caller.
	//
	// Parameters:
	//   - label: the debug label
	//   - size: the size in bytes
	//   - usage: how the buffer may be bound
	//
	// Returns:
	//   - resource.Buffer: the buffer
	//   - error: an error if the allocation fails
	CreateBuffer(label string, size uint64, usage resource.BufferUsage) (resource.Buffer, error)

	// CreateImage allocates a zeroed RGBA32F storage image owned by the caller.
	//
	// Parameters:
	//   - label: the debug label
	//   - width: the width in texels
	//   - height: the height in texels
	//
	// Returns:
	//   - resource.Image: the image
	//   - error: an error if the allocation fails
	CreateImage(label string, width, height uint32) (resource.Image, error)

	// WriteBuffers performs host writes immediately. Writes are not part of any command list and
	// must not be issued while a frame is recording.
	//
	// Parameters:
	//   - writes: a slice of BufferWrite structs describing the data to write
	//
	// Returns:
	//   - error: ErrReleased, an out-of-range error, or an error when a frame is recording
	WriteBuffers(writes []bind_group_provider.BufferWrite) error

	// BeginComputeFrame starts recording a command list. Must be paired with EndComputeFrame.
	// Recording errors are sticky: the first one is returned by EndComputeFrame.
	//
	// Returns:
	//   - error: an error if a frame is already recording
	BeginComputeFrame() error

	// DispatchCompute records a direct compute dispatch.
	//
	// Parameters:
	//   - pipelineKey: the unique identifier for the cached compute Pipeline to use
	//   - provider: the resources the dispatch binds
	//   - workGroupCount: the number of workgroups to dispatch in the x, y, and z dimensions
	//   - push: the push constants of the dispatch
	DispatchCompute(pipelineKey string, provider bind_group_provider.BindGroupProvider, workGroupCount [3]uint32, push ...uint32)

	// DispatchComputeIndirect records a compute dispatch whose workgroup counts are read from three
	// consecutive u32 values of argsBuffer when the command executes.
	//
	// Parameters:
	//   - pipelineKey: the unique identifier for the cached compute Pipeline to use
	//   - provider: the resources the dispatch binds
	//   - argsBuffer: the buffer holding the dispatch arguments
	//   - offset: the byte offset of the arguments
	//   - push: the push constants of the dispatch
	DispatchComputeIndirect(pipelineKey string, provider bind_group_provider.BindGroupProvider, argsBuffer resource.Buffer, offset uint64, push ...uint32)

	// DrawIndirect records an instanced, non-indexed draw through the fixed-function raster path.
	// The arguments (vertexCount, instanceCount, firstVertex, firstInstance) are read from argsBuffer
	// when the command executes.
	//
	// Parameters:
	//   - pipelineKey: the unique identifier for the cached render Pipeline to use
	//   - provider: the resources both stages bind
	//   - argsBuffer: the buffer holding the draw arguments
	//   - offset: the byte offset of the arguments
	//   - viewport: the pixel grid to rasterize onto
	DrawIndirect(pipelineKey string, provider bind_group_provider.BindGroupProvider, argsBuffer resource.Buffer, offset uint64, viewport raster.Viewport)

	// Barrier records a memory dependency: writes recorded before it to the listed resources are
	// visible to commands recorded after it. With no resources it covers everything.
	//
	// Parameters:
	//   - resources: the buffers and images the barrier covers
	Barrier(resources ...Resource)

	// EndComputeFrame validates the recorded command list and executes it.
	//
	// Returns:
	//   - error: the first recording error, ErrHazard, or an execution error
	EndComputeFrame() error

	// Release stops the renderer. Resources created through it stay owned by their callers.
	Release()
}

var _ Renderer = &renderer{}

// NewRenderer creates a new Renderer with the specified backend.
//
// Parameters:
//   - backendType: the device implementation to use
//   - options: variadic list of RendererBuilderOption functions to configure the Renderer
//
// Returns:
//   - Renderer: a new instance of Renderer configured with the specified backend and options
//   - error: an error for an unknown backend type, or when the wgpu adapter or device cannot be
//     acquired
func NewRenderer(backendType RendererBackendType, options ...RendererBuilderOption) (Renderer, error) {
	r := &renderer{
		mu:            &sync.Mutex{},
		pipelineCache: make(map[string]pipeline.Pipeline),
		declarations:  make(map[string]map[int]shader.BindingDecl),
		backendType:   backendType,
		workers:       runtime.NumCPU(),
		validate:      true,
	}

	// Apply options first so the worker count is known before the backend starts its pool.
	for _, opt := range options {
		opt(r)
	}

	switch backendType {
	case BackendTypeSoftware:
		r.backend = newSoftwareRendererBackend(r.workers, r.disabledFeatures)
	case BackendTypeWGPU:
		backend, err := newWGPURendererBackend(r.forceFallback, r.disabledFeatures)
		if err != nil {
			return nil, err
		}
		r.backend = backend
	default:
		return nil, fmt.Errorf("renderer: unknown backend type %d", int(backendType))
	}
	return r, nil
}

func (r *renderer) BackendType() RendererBackendType {
	return r.backendType
}

func (r *renderer) Features() Feature {
	return r.backend.Features()
}

func (r *renderer) RequireFeatures(features Feature) error {
	have := r.backend.Features()
	for f := Feature(1); f != 0 && f <= features; f <<= 1 {
		if features&f != 0 && have&f == 0 {
			return fmt.Errorf("%w: %s (%s backend)", ErrMissingFeature, f, r.backendType)
		}
	}
	return nil
}

func (r *renderer) RegisterPrograms(programs Programs) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.programs.merge(programs)
}

func (r *renderer) Pipeline(key string) pipeline.Pipeline {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pipelineCache[key]
}

func (r *renderer) Pipelines() map[string]pipeline.Pipeline {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pipelineCache
}

func (r *renderer) RegisterPipelines(pipelines ...pipeline.Pipeline) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range pipelines {
		key := p.PipelineKey()
		if _, exists := r.pipelineCache[key]; exists {
			continue
		}
		decls, err := pipelineDeclarations(p)
		if err != nil {
			return err
		}
		if err := r.backend.RegisterPipeline(p, &r.programs); err != nil {
			return fmt.Errorf("pipeline %s: %w", key, err)
		}
		r.declarations[key] = decls
		r.pipelineCache[key] = p
	}
	return nil
}

func (r *renderer) CreateBuffer(label string, size uint64, usage resource.BufferUsage) (resource.Buffer, error) {
	return r.backend.CreateBuffer(label, size, usage)
}

func (r *renderer) CreateImage(label string, width, height uint32) (resource.Image, error) {
	return r.backend.CreateImage(label, width, height)
}

func (r *renderer) WriteBuffers(writes []bind_group_provider.BufferWrite) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recording {
		return fmt.Errorf("renderer: host write while a frame is recording")
	}
	return r.backend.WriteBuffers(writes)
}

func (r *renderer) BeginComputeFrame() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recording {
		return fmt.Errorf("renderer: frame already recording")
	}
	r.recording = true
	r.commands = r.commands[:0]
	r.frameErr = nil
	return nil
}

// record appends a command, or latches the first recording error.
func (r *renderer) record(c command, pipelineKey string, want pipeline.PipelineType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frameErr != nil {
		return
	}
	if !r.recording {
		r.frameErr = ErrNoFrame
		return
	}
	if c.kind != commandBarrier {
		p, exists := r.pipelineCache[pipelineKey]
		if !exists {
			r.frameErr = fmt.Errorf("%w: %q", ErrPipelineNotFound, pipelineKey)
			return
		}
		if p.Type() != want {
			r.frameErr = fmt.Errorf("%w: %q has the wrong pipeline type", ErrPipelineNotFound, pipelineKey)
			return
		}
		if err := checkBindings(pipelineKey, r.declarations[pipelineKey], c.provider); err != nil {
			r.frameErr = err
			return
		}
		if c.args != nil {
			if c.args.Usage()&resource.BufferUsageIndirect == 0 {
				r.frameErr = fmt.Errorf("%w: buffer %s lacks indirect usage", ErrBindingMismatch, c.args.Label())
				return
			}
			if r.backend.Features()&FeatureIndirect == 0 {
				r.frameErr = fmt.Errorf("%w: %s", ErrMissingFeature, FeatureIndirect)
				return
			}
		}
		c.pipeline = p
	}
	r.commands = append(r.commands, c)
}

func (r *renderer) DispatchCompute(pipelineKey string, provider bind_group_provider.BindGroupProvider, workGroupCount [3]uint32, push ...uint32) {
	r.record(command{
		kind:     commandDispatch,
		provider: provider,
		groups:   workGroupCount,
		push:     append([]uint32(nil), push...),
	}, pipelineKey, pipeline.PipelineTypeCompute)
}

func (r *renderer) DispatchComputeIndirect(pipelineKey string, provider bind_group_provider.BindGroupProvider, argsBuffer resource.Buffer, offset uint64, push ...uint32) {
	r.record(command{
		kind:     commandDispatchIndirect,
		provider: provider,
		args:     argsBuffer,
		offset:   offset,
		push:     append([]uint32(nil), push...),
	}, pipelineKey, pipeline.PipelineTypeCompute)
}

func (r *renderer) DrawIndirect(pipelineKey string, provider bind_group_provider.BindGroupProvider, argsBuffer resource.Buffer, offset uint64, viewport raster.Viewport) {
	r.record(command{
		kind:     commandDrawIndirect,
		provider: provider,
		args:     argsBuffer,
		offset:   offset,
		viewport: viewport,
	}, pipelineKey, pipeline.PipelineTypeRender)
}

func (r *renderer) Barrier(resources ...Resource) {
	r.record(command{
		kind:    commandBarrier,
		barrier: append([]Resource(nil), resources...),
	}, "", 0)
}

func (r *renderer) EndComputeFrame() error {
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return ErrNoFrame
	}
	r.recording = false
	cmds := r.commands
	err := r.frameErr
	validate := r.validate
	r.mu.Unlock()

	if err != nil {
		return err
	}
	if validate {
		h := newHazardTracker()
		for i, c := range cmds {
			if c.kind == commandBarrier {
				h.barrier(c.barrier)
				continue
			}
			if err := h.use(i, c); err != nil {
				return err
			}
		}
	}
	return r.backend.Execute(cmds)
}

func (r *renderer) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backend.Release()
	r.pipelineCache = make(map[string]pipeline.Pipeline)
	r.declarations = make(map[string]map[int]shader.BindingDecl)
}
