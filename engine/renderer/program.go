package renderer

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-nano/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-nano/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-nano/engine/renderer/shader"
)

// Resource is anything a barrier can cover: buffers and images.
type Resource interface {
	Label() string
	Released() bool
}

// Bindings is what a program sees while it runs: the resources bound to each slot, the push
// constants of the dispatch and the dispatch geometry.
type Bindings interface {
	// Buffer returns the buffer bound at slot.
	Buffer(slot int) resource.Buffer

	// Image returns the image bound at slot.
	Image(slot int) resource.Image

	// PushConstant returns push constant i, or 0 when the dispatch supplied fewer.
	PushConstant(i int) uint32

	// WorkgroupSize returns the invocation count of one workgroup, from the shader.
	WorkgroupSize() [3]uint32

	// NumWorkgroups returns the dispatch size.
	NumWorkgroups() [3]uint32
}

// WorkgroupFunc runs every invocation of one workgroup. Workgroups of one dispatch run
// concurrently and in no particular order.
type WorkgroupFunc func(group [3]uint32)

// ComputeProgram is resolved once per dispatch and returns the workgroup body.
type ComputeProgram func(b Bindings) WorkgroupFunc

// VertexFunc produces the clip-space position of one vertex of one instance. The payload of the
// first vertex of a triangle is handed to every fragment of that triangle. Returning ok=false
// discards the whole triangle.
type VertexFunc func(instance, vertex uint32) (clip [4]float32, payload uint32, ok bool)

// VertexProgram is resolved once per draw and returns the vertex body.
type VertexProgram func(b Bindings) VertexFunc

// FragmentFunc consumes one covered pixel.
type FragmentFunc func(x, y uint32, depth float32, payload uint32)

// FragmentProgram is resolved once per draw and returns the fragment body.
type FragmentProgram func(b Bindings) FragmentFunc

// Programs maps shader entry points to device programs.
type Programs struct {
	Compute  map[string]ComputeProgram
	Vertex   map[string]VertexProgram
	Fragment map[string]FragmentProgram
}

// renderProgram is what a render pipeline resolves to.
type renderProgram struct {
	vertex   VertexProgram
	fragment FragmentProgram
}

// merge copies every program of other into p.
func (p *Programs) merge(other Programs) {
	if p.Compute == nil {
		p.Compute = make(map[string]ComputeProgram)
	}
	if p.Vertex == nil {
		p.Vertex = make(map[string]VertexProgram)
	}
	if p.Fragment == nil {
		p.Fragment = make(map[string]FragmentProgram)
	}
	for k, v := range other.Compute {
		p.Compute[k] = v
	}
	for k, v := range other.Vertex {
		p.Vertex[k] = v
	}
	for k, v := range other.Fragment {
		p.Fragment[k] = v
	}
}

func (p *Programs) resolveCompute(s shader.Shader) (ComputeProgram, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: compute pipeline without compute shader", ErrProgramNotFound)
	}
	prog, ok := p.Compute[s.EntryPoint()]
	if !ok {
		return nil, fmt.Errorf("%w: %s (%s)", ErrProgramNotFound, s.EntryPoint(), s.Path())
	}
	return prog, nil
}

func (p *Programs) resolveRender(vs, fs shader.Shader) (renderProgram, error) {
	if vs == nil || fs == nil {
		return renderProgram{}, fmt.Errorf("%w: render pipeline needs vertex and fragment shaders", ErrProgramNotFound)
	}
	v, ok := p.Vertex[vs.EntryPoint()]
	if !ok {
		return renderProgram{}, fmt.Errorf("%w: %s (%s)", ErrProgramNotFound, vs.EntryPoint(), vs.Path())
	}
	f, ok := p.Fragment[fs.EntryPoint()]
	if !ok {
		return renderProgram{}, fmt.Errorf("%w: %s (%s)", ErrProgramNotFound, fs.EntryPoint(), fs.Path())
	}
	return renderProgram{vertex: v, fragment: f}, nil
}

// dispatchBindings is the Bindings view of one command.
type dispatchBindings struct {
	provider      bind_group_provider.BindGroupProvider
	push          []uint32
	workgroupSize [3]uint32
	groups        [3]uint32
}

var _ Bindings = &dispatchBindings{}

func (d *dispatchBindings) Buffer(slot int) resource.Buffer {
	return d.provider.Buffer(slot)
}

func (d *dispatchBindings) Image(slot int) resource.Image {
	return d.provider.Image(slot)
}

func (d *dispatchBindings) PushConstant(i int) uint32 {
	if i < 0 || i >= len(d.push) {
		return 0
	}
	return d.push[i]
}

func (d *dispatchBindings) WorkgroupSize() [3]uint32 {
	return d.workgroupSize
}

func (d *dispatchBindings) NumWorkgroups() [3]uint32 {
	return d.groups
}
