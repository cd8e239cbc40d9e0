package scene

import (
	"fmt"
	"io/fs"

	"github.com/Carmen-Shannon/oxy-nano/engine/renderer"
	"github.com/Carmen-Shannon/oxy-nano/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-nano/engine/renderer/shader"
)

// Pipeline keys of the visibility pipeline. Compute keys match their descriptor file names.
const (
	pipelineInit               = "Init"
	pipelineCullArgs           = "CullArgs"
	pipelineNodeAndClusterCull = "NodeAndClusterCull"
	pipelineClusterCullArgs    = "ClusterCullArgs"
	pipelineClusterCull        = "ClusterCull"
	pipelineRasterArgs         = "RasterArgs"
	pipelineHWRasterize        = "HWRasterize"
	pipelineSWRasterize        = "SWRasterize"
	pipelineVisualize          = "Visualize"
)

var computePasses = []string{
	pipelineInit,
	pipelineCullArgs,
	pipelineNodeAndClusterCull,
	pipelineClusterCullArgs,
	pipelineClusterCull,
	pipelineRasterArgs,
	pipelineSWRasterize,
	pipelineVisualize,
}

// Programs returns the device programs implementing every pass, keyed by entry point.
func Programs() renderer.Programs {
	return renderer.Programs{
		Compute: map[string]renderer.ComputeProgram{
			pipelineInit:               initProgram,
			pipelineCullArgs:           cullArgsProgram,
			pipelineNodeAndClusterCull: nodeAndClusterCullProgram,
			pipelineClusterCullArgs:    clusterCullArgsProgram,
			pipelineClusterCull:        clusterCullProgram,
			pipelineRasterArgs:         rasterArgsProgram,
			pipelineSWRasterize:        swRasterizeProgram,
			pipelineVisualize:          visualizeProgram,
		},
		Vertex: map[string]renderer.VertexProgram{
			"HWRasterizeVS": hwRasterizeVertexProgram,
		},
		Fragment: map[string]renderer.FragmentProgram{
			"HWRasterizeFS": hwRasterizeFragmentProgram,
		},
	}
}

// loadPipelines reads every pass descriptor from fsys and builds the pipelines of the frame.
//
// Parameters:
//   - fsys: the shader directory
//
// Returns:
//   - []pipeline.Pipeline: one pipeline per pass
//   - error: shader.ErrShaderNotFound (wrapped) or a descriptor parse error
func loadPipelines(fsys fs.FS) ([]pipeline.Pipeline, error) {
	out := make([]pipeline.Pipeline, 0, len(computePasses)+1)
	for _, name := range computePasses {
		s, err := shader.LoadShader(fsys, name, shader.ShaderTypeCompute)
		if err != nil {
			return nil, fmt.Errorf("scene: %w", err)
		}
		out = append(out, pipeline.NewPipeline(name, pipeline.PipelineTypeCompute, pipeline.WithComputeShader(s)))
	}

	vs, err := shader.LoadShader(fsys, "HWRasterizeVS", shader.ShaderTypeVertex)
	if err != nil {
		return nil, fmt.Errorf("scene: %w", err)
	}
	fsh, err := shader.LoadShader(fsys, "HWRasterizeFS", shader.ShaderTypeFragment)
	if err != nil {
		return nil, fmt.Errorf("scene: %w", err)
	}
	out = append(out, pipeline.NewPipeline(pipelineHWRasterize, pipeline.PipelineTypeRender,
		pipeline.WithVertexShader(vs),
		pipeline.WithFragmentShader(fsh),
		pipeline.WithCullMode(pipeline.CullModeNone),
	))
	return out, nil
}
