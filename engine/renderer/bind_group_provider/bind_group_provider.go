package bind_group_provider

import (
	"sort"

	"github.com/Carmen-Shannon/oxy-nano/engine/renderer/resource"
)

// Access declares how a pass uses a bound resource. The renderer derives read/write hazards from it.
type Access int

const (
	// AccessRead binds a resource read-only.
	AccessRead Access = iota
	// AccessReadWrite binds a resource for reads and writes (atomics included).
	AccessReadWrite
	// AccessUniform binds a small read-only constant block.
	AccessUniform
)

// Writes reports whether the access mode can modify the resource.
func (a Access) Writes() bool {
	return a == AccessReadWrite
}

func (a Access) String() string {
	switch a {
	case AccessRead:
		return "read"
	case AccessReadWrite:
		return "read_write"
	case AccessUniform:
		return "uniform"
	default:
		return "unknown"
	}
}

// Binding is one numbered slot of a provider: exactly one of Buffer or Image is set.
type Binding struct {
	Slot   int
	Access Access
	Buffer resource.Buffer
	Image  resource.Image
}

// bindGroupProvider is the unexported implementation of BindGroupProvider.
type bindGroupProvider struct {
	// label is a debug label added for convenience.
	label string

	bindings map[int]Binding
}

// BindGroupProvider groups the numbered resource slots one pass reads and writes. Providers only
// borrow resources: releasing the underlying buffers and images stays with their owner.
//
// Usage pattern:
//  1. The pass owner creates a provider with the slot layout of the pass's shader
//  2. The renderer validates the slots against the shader's declared bindings at dispatch
//  3. Programs fetch their resources by slot while the dispatch runs
type BindGroupProvider interface {
	// Label returns the debug label for this provider.
	//
	// Returns:
	//   - string: the debug label
	Label() string

	// Binding returns the binding at slot.
	//
	// Parameters:
	//   - slot: the binding slot
	//
	// Returns:
	//   - Binding: the binding
	//   - bool: false when nothing is bound at slot
	Binding(slot int) (Binding, bool)

	// Bindings returns every binding ordered by slot.
	//
	// Returns:
	//   - []Binding: the bindings
	Bindings() []Binding

	// Buffer returns the buffer bound at slot, or nil.
	Buffer(slot int) resource.Buffer

	// Image returns the image bound at slot, or nil.
	Image(slot int) resource.Image

	// SetBuffer binds a buffer at slot, replacing any previous binding.
	//
	// Parameters:
	//   - slot: the binding slot
	//   - buf: the buffer to bind
	//   - access: how the pass uses it
	SetBuffer(slot int, buf resource.Buffer, access Access)

	// SetImage binds an image at slot, replacing any previous binding.
	//
	// Parameters:
	//   - slot: the binding slot
	//   - img: the image to bind
	//   - access: how the pass uses it
	SetImage(slot int, img resource.Image, access Access)
}

// Compile-time check that bindGroupProvider implements BindGroupProvider
var _ BindGroupProvider = &bindGroupProvider{}

// NewBindGroupProvider creates a new BindGroupProvider with the provided options.
//
// Parameters:
//   - label: a debug label
//   - options: a variadic list of options to configure the provider
//
// Returns:
//   - BindGroupProvider: a new instance of BindGroupProvider configured with the provided options
func NewBindGroupProvider(label string, options ...BindGroupProviderOption) BindGroupProvider {
	p := &bindGroupProvider{
		label:    label,
		bindings: make(map[int]Binding),
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

func (p *bindGroupProvider) Label() string {
	return p.label
}

func (p *bindGroupProvider) Binding(slot int) (Binding, bool) {
	b, ok := p.bindings[slot]
	return b, ok
}

func (p *bindGroupProvider) Bindings() []Binding {
	out := make([]Binding, 0, len(p.bindings))
	for _, b := range p.bindings {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slot < out[j].Slot })
	return out
}

func (p *bindGroupProvider) Buffer(slot int) resource.Buffer {
	return p.bindings[slot].Buffer
}

func (p *bindGroupProvider) Image(slot int) resource.Image {
	return p.bindings[slot].Image
}

func (p *bindGroupProvider) SetBuffer(slot int, buf resource.Buffer, access Access) {
	p.bindings[slot] = Binding{Slot: slot, Access: access, Buffer: buf}
}

func (p *bindGroupProvider) SetImage(slot int, img resource.Image, access Access) {
	p.bindings[slot] = Binding{Slot: slot, Access: access, Image: img}
}
