package bind_group_provider

import "github.com/Carmen-Shannon/oxy-nano/engine/renderer/resource"

// BindGroupProviderOption is a functional option used to configure a BindGroupProvider during construction.
type BindGroupProviderOption func(*bindGroupProvider)

// WithBuffer binds a buffer at a slot.
//
// Parameters:
//   - slot: the binding slot for this buffer
//   - buf: the buffer to associate with this slot
//   - access: how the pass uses the buffer
//
// Returns:
//   - BindGroupProviderOption: a function that sets the buffer for the specified slot
func WithBuffer(slot int, buf resource.Buffer, access Access) BindGroupProviderOption {
	return func(p *bindGroupProvider) {
		p.SetBuffer(slot, buf, access)
	}
}

// WithImage binds an image at a slot.
//
// Parameters:
//   - slot: the binding slot for this image
//   - img: the image to associate with this slot
//   - access: how the pass uses the image
//
// Returns:
//   - BindGroupProviderOption: a function that sets the image for the specified slot
func WithImage(slot int, img resource.Image, access Access) BindGroupProviderOption {
	return func(p *bindGroupProvider) {
		p.SetImage(slot, img, access)
	}
}
