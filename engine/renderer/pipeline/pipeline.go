package pipeline

import (
	"github.com/Carmen-Shannon/oxy-nano/engine/renderer/shader"
)

// PipelineType identifies whether a pipeline is a compute pipeline or a render pipeline.
type PipelineType int

const (
	// PipelineTypeCompute indicates a compute pipeline with a single compute shader entry point.
	PipelineTypeCompute PipelineType = iota

	// PipelineTypeRender indicates a render pipeline with vertex and fragment shader entry points.
	PipelineTypeRender
)

// CullMode selects which triangle facing the fixed-function raster path discards.
type CullMode int

const (
	// CullModeNone keeps both facings.
	CullModeNone CullMode = iota
	// CullModeBack discards back-facing triangles.
	CullModeBack
	// CullModeFront discards front-facing triangles.
	CullModeFront
)

// FrontFace selects the winding order that counts as front facing.
type FrontFace int

const (
	// FrontFaceCCW treats counter-clockwise screen-space winding as front facing.
	FrontFaceCCW FrontFace = iota
	// FrontFaceCW treats clockwise screen-space winding as front facing.
	FrontFaceCW
)

// pipeline is the implementation of the Pipeline interface.
type pipeline struct {
	// pipelineType indicates the type of pipeline this is; compute or render
	pipelineType PipelineType
	// pipelineKey is the unique identifier for this pipeline, used for caching and lookups
	pipelineKey string

	// the following shader references are required to be set before registering a pipeline.

	vertexShader, fragmentShader, computeShader shader.Shader

	// program is the device object resolved from the shaders' entry points at registration
	program any

	// Raster state, ignored by compute pipelines.

	cullMode  CullMode
	frontFace FrontFace
}

// Pipeline defines the interface for a device pipeline, encapsulating either a render pipeline
// (vertex + fragment shaders) or a compute pipeline (compute shader).
type Pipeline interface {
	// Type returns the type of the pipeline
	//
	// Returns:
	//   - PipelineType: the type of the pipeline (render or compute)
	Type() PipelineType

	// PipelineKey returns the unique key associated with this pipeline, used for caching and lookups.
	//
	// Returns:
	//   - string: the unique key for this pipeline
	PipelineKey() string

	// Shader retrieves the shader associated with the specified type if it exists, nil otherwise.
	//
	// Parameters:
	//   - shaderType: the type of shader to retrieve (vertex, fragment, or compute)
	//
	// Returns:
	//   - shader.Shader: the shader associated with the specified type, or nil if not set
	Shader(shaderType shader.ShaderType) shader.Shader

	// Program returns the device program bound at registration, or nil before registration.
	// Note: the caller is responsible for type asserting the returned value.
	//
	// Returns:
	//   - any: the device program
	Program() any

	// SetProgram stores the device program. Called by the Renderer during registration.
	//
	// Parameters:
	//   - program: the device program
	SetProgram(program any)

	// CullMode returns the facing discarded by the raster path.
	CullMode() CullMode

	// FrontFace returns the winding order treated as front facing.
	FrontFace() FrontFace
}

var _ Pipeline = &pipeline{}

// NewPipeline is the entry point to create a new Pipeline interface. A PipelineType must be specified and provided upon creation.
//
// Parameters:
//   - pipelineKey: the unique key for this pipeline
//   - pipelineType: the type of pipeline to create (render or compute)
//   - opts: a variadic list of PipelineBuilderOption functions to configure the pipeline
//
// Returns:
//   - Pipeline: a new Pipeline instance with the specified type and configuration
func NewPipeline(pipelineKey string, pipelineType PipelineType, opts ...PipelineBuilderOption) Pipeline {
	p := &pipeline{
		pipelineKey:  pipelineKey,
		pipelineType: pipelineType,
		cullMode:     CullModeNone,
		frontFace:    FrontFaceCCW,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *pipeline) Type() PipelineType {
	return p.pipelineType
}

func (p *pipeline) PipelineKey() string {
	return p.pipelineKey
}

func (p *pipeline) Program() any {
	return p.program
}

func (p *pipeline) SetProgram(program any) {
	p.program = program
}

func (p *pipeline) CullMode() CullMode {
	return p.cullMode
}

func (p *pipeline) FrontFace() FrontFace {
	return p.frontFace
}

func (p *pipeline) Shader(shaderType shader.ShaderType) shader.Shader {
	switch shaderType {
	case shader.ShaderTypeVertex:
		return p.vertexShader
	case shader.ShaderTypeFragment:
		return p.fragmentShader
	case shader.ShaderTypeCompute:
		return p.computeShader
	default:
		return nil
	}
}
