package pipeline

import (
	"github.com/Carmen-Shannon/oxy-nano/engine/renderer/shader"
)

// PipelineBuilderOption is a functional option used to configure a Pipeline during construction.
type PipelineBuilderOption func(*pipeline)

// WithVertexShader sets the vertex shader for this pipeline.
//
// Parameters:
//   - s: the vertex shader to use for this pipeline
//
// Returns:
//   - PipelineBuilderOption: a function that sets the vertex shader for this pipeline
func WithVertexShader(s shader.Shader) PipelineBuilderOption {
	return func(p *pipeline) {
		p.vertexShader = s
	}
}

// WithFragmentShader sets the fragment shader for this pipeline.
//
// Parameters:
//   - s: the fragment shader to use for this pipeline
//
// Returns:
//   - PipelineBuilderOption: a function that sets the fragment shader for this pipeline
func WithFragmentShader(s shader.Shader) PipelineBuilderOption {
	return func(p *pipeline) {
		p.fragmentShader = s
	}
}

// WithComputeShader sets the compute shader for this pipeline.
//
// Parameters:
//   - s: the compute shader to use for this pipeline
//
// Returns:
//   - PipelineBuilderOption: a function that sets the compute shader for this pipeline
func WithComputeShader(s shader.Shader) PipelineBuilderOption {
	return func(p *pipeline) {
		p.computeShader = s
	}
}

// WithCullMode sets the facing the raster path discards.
//
// Parameters:
//   - mode: CullModeNone, CullModeBack or CullModeFront
//
// Returns:
//   - PipelineBuilderOption: a function that sets the cull mode for this pipeline
func WithCullMode(mode CullMode) PipelineBuilderOption {
	return func(p *pipeline) {
		p.cullMode = mode
	}
}

// WithFrontFace sets the front face winding order for this pipeline.
//
// Parameters:
//   - frontFace: FrontFaceCCW or FrontFaceCW
//
// Returns:
//   - PipelineBuilderOption: a function that sets the front face for this pipeline
func WithFrontFace(frontFace FrontFace) PipelineBuilderOption {
	return func(p *pipeline) {
		p.frontFace = frontFace
	}
}
