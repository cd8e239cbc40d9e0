package renderer

import (
	"github.com/Carmen-Shannon/oxy-nano/engine/renderer/pipeline"
)

// RendererBuilderOption is a functional option applied to a renderer during construction via NewRenderer.
type RendererBuilderOption func(*renderer)

// WithPrograms pre-registers entry point implementations in the renderer's program library.
//
// Parameters:
//   - programs: the programs keyed by entry point name
//
// Returns:
//   - RendererBuilderOption: a function that applies the programs option to a renderer
func WithPrograms(programs Programs) RendererBuilderOption {
	return func(r *renderer) {
		r.programs.merge(programs)
	}
}

// WithPipeline pre-caches a single Pipeline under the given key. The pipeline must already carry
// its program; use RegisterPipelines to resolve one.
//
// Parameters:
//   - key: the unique identifier for the pipeline
//   - p: the Pipeline to cache
//
// Returns:
//   - RendererBuilderOption: a function that applies the pipeline option to a renderer
func WithPipeline(key string, p pipeline.Pipeline) RendererBuilderOption {
	return func(r *renderer) {
		if decls, err := pipelineDeclarations(p); err == nil {
			r.declarations[key] = decls
		}
		r.pipelineCache[key] = p
	}
}

// WithWorkers sets how many workers the software backend runs workgroups on.
// When not specified, the default is runtime.NumCPU().
//
// Parameters:
//   - n: the worker count, values below 1 are treated as 1
//
// Returns:
//   - RendererBuilderOption: a function that applies the worker count to a renderer
func WithWorkers(n int) RendererBuilderOption {
	return func(r *renderer) {
		if n < 1 {
			n = 1
		}
		r.workers = n
	}
}

// WithValidation toggles barrier validation of submitted command lists. Enabled by default.
//
// Parameters:
//   - enabled: true to fail submissions with missing barriers
//
// Returns:
//   - RendererBuilderOption: a function that applies the validation option to a renderer
func WithValidation(enabled bool) RendererBuilderOption {
	return func(r *renderer) {
		r.validate = enabled
	}
}

// WithDisabledFeatures masks device capabilities, emulating a device that lacks them.
//
// Parameters:
//   - features: the feature bits to hide
//
// Returns:
//   - RendererBuilderOption: a function that applies the feature mask to a renderer
func WithDisabledFeatures(features Feature) RendererBuilderOption {
	return func(r *renderer) {
		r.disabledFeatures = features
	}
}

// WithForceFallbackAdapter asks the wgpu backend for the adapter's software fallback instead of a
// hardware adapter. Ignored by the software backend.
//
// Parameters:
//   - force: true to request the fallback adapter
//
// Returns:
//   - RendererBuilderOption: a function that applies the adapter choice to a renderer
func WithForceFallbackAdapter(force bool) RendererBuilderOption {
	return func(r *renderer) {
		r.forceFallback = force
	}
}
