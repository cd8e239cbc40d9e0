package renderer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Carmen-Shannon/oxy-nano/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-nano/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-nano/engine/renderer/raster"
	"github.com/Carmen-Shannon/oxy-nano/engine/renderer/resource"
)

// RendererBackendType identifies the device implementation used by the Renderer.
type RendererBackendType int

const (
	// BackendTypeSoftware selects the backend that executes programs on a CPU worker pool.
	BackendTypeSoftware RendererBackendType = iota
	// BackendTypeWGPU selects the backend that compiles the WGSL kernels and runs them on a WebGPU
	// adapter.
	BackendTypeWGPU
)

func (t RendererBackendType) String() string {
	switch t {
	case BackendTypeSoftware:
		return "software"
	case BackendTypeWGPU:
		return "wgpu"
	default:
		return "unknown"
	}
}

// ParseBackendType maps a backend name, as printed by String, onto its RendererBackendType.
//
// Parameters:
//   - name: the backend name, case-insensitive
//
// Returns:
//   - RendererBackendType: the matching backend
//   - error: an error naming the accepted values when name is unknown
func ParseBackendType(name string) (RendererBackendType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "software", "cpu":
		return BackendTypeSoftware, nil
	case "wgpu", "webgpu":
		return BackendTypeWGPU, nil
	default:
		return 0, fmt.Errorf("renderer: unknown backend %q (want software or wgpu)", name)
	}
}

// Feature is a bit set of optional device capabilities.
type Feature uint32

const (
	// FeatureInt64Atomics allows 64-bit atomic min/max on storage buffers.
	FeatureInt64Atomics Feature = 1 << iota
	// FeatureIndirect allows dispatch and draw arguments to be sourced from device buffers.
	FeatureIndirect
)

func (f Feature) String() string {
	switch f {
	case FeatureInt64Atomics:
		return "int64-atomics"
	case FeatureIndirect:
		return "indirect"
	default:
		return "features"
	}
}

var (
	// ErrMissingFeature is returned when a required device capability is not available.
	ErrMissingFeature = errors.New("renderer: missing device feature")

	// ErrHazard is returned when a submission reads or overwrites a resource written earlier in the
	// same submission without an intervening barrier covering it.
	ErrHazard = errors.New("renderer: missing barrier")

	// ErrProgramNotFound is returned when a shader entry point has no registered program.
	ErrProgramNotFound = errors.New("renderer: program not found")

	// ErrPipelineNotFound is returned when a command names a pipeline that was never registered.
	ErrPipelineNotFound = errors.New("renderer: pipeline not found")

	// ErrBindingMismatch is returned when a provider does not match the slots a shader declares.
	ErrBindingMismatch = errors.New("renderer: binding mismatch")

	// ErrNoFrame is returned when a command is recorded outside BeginComputeFrame/EndComputeFrame.
	ErrNoFrame = errors.New("renderer: no frame is being recorded")
)

// RendererBackend runs validated command lists on one device. The front-end owns recording and
// the pipeline cache; the backend owns pipeline creation and execution.
type RendererBackend interface {
	// Features reports the capabilities of the device.
	Features() Feature

	// RegisterPipeline prepares p for execution and attaches the device object to it through
	// SetProgram. The software backend resolves the entry points against programs; the wgpu
	// backend compiles the WGSL kernels and ignores programs.
	RegisterPipeline(p pipeline.Pipeline, programs *Programs) error

	// CreateBuffer allocates a zeroed device buffer.
	CreateBuffer(label string, size uint64, usage resource.BufferUsage) (resource.Buffer, error)

	// CreateImage allocates a zeroed RGBA32F storage image.
	CreateImage(label string, width, height uint32) (resource.Image, error)

	// WriteBuffers performs host writes immediately.
	WriteBuffers(writes []bind_group_provider.BufferWrite) error

	// Execute runs the commands in order, each one to completion.
	Execute(cmds []command) error

	// Release stops accepting work and frees device objects owned by the backend.
	Release()
}

// writeHost applies host writes to the buffers bound in each write's provider.
func writeHost(writes []bind_group_provider.BufferWrite) error {
	for _, w := range writes {
		if w.Provider == nil {
			continue
		}
		buf := w.Provider.Buffer(w.Binding)
		if buf == nil {
			return fmt.Errorf("renderer: %s has no buffer at binding %d", w.Provider.Label(), w.Binding)
		}
		if err := buf.Write(w.Offset, w.Data); err != nil {
			return fmt.Errorf("renderer: write %s: %w", buf.Label(), err)
		}
	}
	return nil
}

// commandKind discriminates the entries of a command list.
type commandKind int

const (
	commandDispatch commandKind = iota
	commandDispatchIndirect
	commandDrawIndirect
	commandBarrier
)

// command is one recorded entry. Only the fields relevant to kind are set.
type command struct {
	kind     commandKind
	pipeline pipeline.Pipeline
	provider bind_group_provider.BindGroupProvider
	groups   [3]uint32
	push     []uint32
	args     resource.Buffer
	offset   uint64
	viewport raster.Viewport
	barrier  []Resource
}

func (c command) String() string {
	switch c.kind {
	case commandDispatch:
		return "dispatch " + c.pipeline.PipelineKey()
	case commandDispatchIndirect:
		return "dispatch-indirect " + c.pipeline.PipelineKey()
	case commandDrawIndirect:
		return "draw-indirect " + c.pipeline.PipelineKey()
	default:
		return "barrier"
	}
}
