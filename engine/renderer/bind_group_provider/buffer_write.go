package bind_group_provider

// BufferWrite describes a single host-to-device buffer write targeting a specific slot
// on a BindGroupProvider at a given byte offset.
type BufferWrite struct {
	Provider BindGroupProvider
	Binding  int
	Offset   uint64
	Data     []byte
}
