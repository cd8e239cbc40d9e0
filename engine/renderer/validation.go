package renderer

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-nano/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-nano/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-nano/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-nano/engine/renderer/shader"
)

// pipelineDeclarations collects the slots a pipeline declares. The stages of a render pipeline share
// one provider, so a slot declared by both stages must be declared identically.
func pipelineDeclarations(p pipeline.Pipeline) (map[int]shader.BindingDecl, error) {
	out := make(map[int]shader.BindingDecl)
	var stages []shader.Shader
	switch p.Type() {
	case pipeline.PipelineTypeCompute:
		stages = []shader.Shader{p.Shader(shader.ShaderTypeCompute)}
	case pipeline.PipelineTypeRender:
		stages = []shader.Shader{p.Shader(shader.ShaderTypeVertex), p.Shader(shader.ShaderTypeFragment)}
	}
	for _, s := range stages {
		if s == nil {
			continue
		}
		for slot, decl := range s.Bindings() {
			if prev, ok := out[slot]; ok && (prev.Kind != decl.Kind || prev.ReadWrite != decl.ReadWrite) {
				return nil, fmt.Errorf("%w: pipeline %s declares slot %d as %s and %s",
					ErrBindingMismatch, p.PipelineKey(), slot, prev.Kind, decl.Kind)
			}
			out[slot] = decl
		}
	}
	return out, nil
}

// checkBindings verifies that a provider binds exactly the declared slots with matching kinds and
// access modes, and that nothing bound has been released.
func checkBindings(key string, decls map[int]shader.BindingDecl, provider bind_group_provider.BindGroupProvider) error {
	if provider == nil {
		if len(decls) == 0 {
			return nil
		}
		return fmt.Errorf("%w: pipeline %s has no provider", ErrBindingMismatch, key)
	}
	for slot, decl := range decls {
		b, ok := provider.Binding(slot)
		if !ok {
			return fmt.Errorf("%w: pipeline %s slot %d (%s) is unbound in %s", ErrBindingMismatch, key, slot, decl.Name, provider.Label())
		}
		if err := checkBinding(decl, b); err != nil {
			return fmt.Errorf("pipeline %s slot %d (%s): %w", key, slot, decl.Name, err)
		}
	}
	for _, b := range provider.Bindings() {
		if _, ok := decls[b.Slot]; !ok {
			return fmt.Errorf("%w: pipeline %s does not declare slot %d bound in %s", ErrBindingMismatch, key, b.Slot, provider.Label())
		}
	}
	return nil
}

func checkBinding(decl shader.BindingDecl, b bind_group_provider.Binding) error {
	want := bind_group_provider.AccessRead
	if decl.ReadWrite {
		want = bind_group_provider.AccessReadWrite
	}

	switch decl.Kind {
	case shader.AnnotationArgStorage:
		if b.Buffer == nil {
			return fmt.Errorf("%w: storage slot without buffer", ErrBindingMismatch)
		}
		if b.Buffer.Usage()&resource.BufferUsageStorage == 0 {
			return fmt.Errorf("%w: buffer %s lacks storage usage", ErrBindingMismatch, b.Buffer.Label())
		}
		if b.Access != want {
			return fmt.Errorf("%w: bound %s, declared %s", ErrBindingMismatch, b.Access, want)
		}
		if b.Buffer.Released() {
			return fmt.Errorf("buffer %s: %w", b.Buffer.Label(), resource.ErrReleased)
		}
	case shader.AnnotationArgUniform:
		if b.Buffer == nil {
			return fmt.Errorf("%w: uniform slot without buffer", ErrBindingMismatch)
		}
		if b.Buffer.Usage()&resource.BufferUsageUniform == 0 {
			return fmt.Errorf("%w: buffer %s lacks uniform usage", ErrBindingMismatch, b.Buffer.Label())
		}
		if b.Access != bind_group_provider.AccessUniform {
			return fmt.Errorf("%w: bound %s, declared uniform", ErrBindingMismatch, b.Access)
		}
		if b.Buffer.Released() {
			return fmt.Errorf("buffer %s: %w", b.Buffer.Label(), resource.ErrReleased)
		}
	case shader.AnnotationArgImage:
		if b.Image == nil {
			return fmt.Errorf("%w: image slot without image", ErrBindingMismatch)
		}
		if b.Access != want {
			return fmt.Errorf("%w: bound %s, declared %s", ErrBindingMismatch, b.Access, want)
		}
		if b.Image.Released() {
			return fmt.Errorf("image %s: %w", b.Image.Label(), resource.ErrReleased)
		}
	}
	return nil
}

// hazardTracker follows which resources were written since the last barrier covering them.
type hazardTracker struct {
	dirty map[Resource]string
}

func newHazardTracker() *hazardTracker {
	return &hazardTracker{dirty: make(map[Resource]string)}
}

// barrier makes prior writes to the listed resources visible. An empty list covers everything.
func (h *hazardTracker) barrier(resources []Resource) {
	if len(resources) == 0 {
		clear(h.dirty)
		return
	}
	for _, r := range resources {
		delete(h.dirty, r)
	}
}

// use checks one command against pending writes and then records the command's own writes.
func (h *hazardTracker) use(index int, c command) error {
	reads, writes := commandResources(c)
	for _, r := range reads {
		if w, ok := h.dirty[r]; ok {
			return fmt.Errorf("%w: command %d (%s) uses %s written by %s", ErrHazard, index, c, r.Label(), w)
		}
	}
	for _, r := range writes {
		h.dirty[r] = c.String()
	}
	return nil
}

// commandResources lists everything a command touches and the subset it may write.
func commandResources(c command) (touched, written []Resource) {
	if c.provider != nil {
		for _, b := range c.provider.Bindings() {
			var r Resource
			switch {
			case b.Buffer != nil:
				r = b.Buffer
			case b.Image != nil:
				r = b.Image
			default:
				continue
			}
			touched = append(touched, r)
			if b.Access.Writes() {
				written = append(written, r)
			}
		}
	}
	if c.args != nil {
		touched = append(touched, c.args)
	}
	return touched, written
}
