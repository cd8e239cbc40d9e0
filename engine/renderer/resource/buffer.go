package resource

import (
	"errors"
	"fmt"
	"sync/atomic"
	"unsafe"
)

// ErrReleased is returned when a released resource is accessed.
var ErrReleased = errors.New("resource: released")

// BufferUsage is a bit set describing how a buffer may be bound.
type BufferUsage uint32

const (
	// BufferUsageStorage allows binding as a read or read-write storage buffer.
	BufferUsageStorage BufferUsage = 1 << iota
	// BufferUsageUniform allows binding as a uniform buffer.
	BufferUsageUniform
	// BufferUsageIndirect allows the buffer to source indirect dispatch/draw arguments.
	BufferUsageIndirect
	// BufferUsageCopyDst allows host writes.
	BufferUsageCopyDst
	// BufferUsageMapRead allows host readback.
	BufferUsageMapRead
)

// buffer is the implementation of the Buffer interface. Storage is backed by a []uint64 so
// every 4- and 8-byte aligned offset can be used with sync/atomic.
type buffer struct {
	label    string
	size     uint64
	usage    BufferUsage
	words    []uint64
	bytes    []byte
	released atomic.Bool
}

// Buffer is an exclusively owned device buffer. The owner releases it; passes only borrow it
// for the duration of a submission.
type Buffer interface {
	// Label returns the debug label of the buffer.
	Label() string

	// Size returns the buffer size in bytes.
	Size() uint64

	// Usage returns the usage flags the buffer was created with.
	Usage() BufferUsage

	// Bytes returns the backing storage. Kernels index it directly; the host must only touch it
	// outside of a submission.
	Bytes() []byte

	// Write copies data into the buffer at offset.
	//
	// Parameters:
	//   - offset: the byte offset to write at
	//   - data: the bytes to copy
	//
	// Returns:
	//   - error: ErrReleased or an out-of-range error
	Write(offset uint64, data []byte) error

	// Read copies size bytes starting at offset out of the buffer.
	//
	// Parameters:
	//   - offset: the byte offset to read from
	//   - size: the number of bytes to copy
	//
	// Returns:
	//   - []byte: a copy of the requested range
	//   - error: ErrReleased or an out-of-range error
	Read(offset, size uint64) ([]byte, error)

	// LoadU32 atomically loads the 32-bit word at a 4-byte aligned offset.
	LoadU32(offset uint64) uint32

	// StoreU32 atomically stores a 32-bit word at a 4-byte aligned offset.
	StoreU32(offset uint64, v uint32)

	// AddU32 atomically adds delta to the word at offset and returns the previous value.
	AddU32(offset uint64, delta uint32) uint32

	// OrU32 atomically ORs bits into the word at offset.
	OrU32(offset uint64, bits uint32)

	// LoadU64 atomically loads the 64-bit word at an 8-byte aligned offset.
	LoadU64(offset uint64) uint64

	// StoreU64 atomically stores a 64-bit word at an 8-byte aligned offset.
	StoreU64(offset uint64, v uint64)

	// MinU64 atomically replaces the 64-bit word at offset with v if v is smaller.
	//
	// Returns:
	//   - uint64: the previous value
	MinU64(offset uint64, v uint64) uint64

	// Fill64 stores v into every 64-bit word in [offset, offset+count*8).
	Fill64(offset uint64, count uint64, v uint64)

	// Release frees the storage. Further access returns ErrReleased or panics for word operations.
	Release()

	// Released reports whether Release has been called.
	Released() bool
}

var _ Buffer = &buffer{}

// NewBuffer allocates a zeroed buffer. The size is rounded up to a multiple of 8 bytes.
//
// Parameters:
//   - label: the debug label
//   - size: the requested size in bytes
//   - usage: how the buffer may be bound
//
// Returns:
//   - Buffer: the new buffer
func NewBuffer(label string, size uint64, usage BufferUsage) Buffer {
	size = (size + 7) &^ 7
	b := &buffer{
		label: label,
		size:  size,
		usage: usage,
		words: make([]uint64, size/8),
	}
	if size > 0 {
		b.bytes = unsafe.Slice((*byte)(unsafe.Pointer(&b.words[0])), size)
	}
	return b
}

func (b *buffer) Label() string {
	return b.label
}

func (b *buffer) Size() uint64 {
	return b.size
}

func (b *buffer) Usage() BufferUsage {
	return b.usage
}

func (b *buffer) Bytes() []byte {
	return b.bytes
}

func (b *buffer) Write(offset uint64, data []byte) error {
	if b.released.Load() {
		return fmt.Errorf("%w: write to %q", ErrReleased, b.label)
	}
	if offset+uint64(len(data)) > b.size {
		return fmt.Errorf("resource: write of %d bytes at %d overflows %q (%d bytes)", len(data), offset, b.label, b.size)
	}
	copy(b.bytes[offset:], data)
	return nil
}

func (b *buffer) Read(offset, size uint64) ([]byte, error) {
	if b.released.Load() {
		return nil, fmt.Errorf("%w: read from %q", ErrReleased, b.label)
	}
	if offset+size > b.size {
		return nil, fmt.Errorf("resource: read of %d bytes at %d overflows %q (%d bytes)", size, offset, b.label, b.size)
	}
	out := make([]byte, size)
	copy(out, b.bytes[offset:offset+size])
	return out, nil
}

func (b *buffer) u32(offset uint64) *uint32 {
	return (*uint32)(unsafe.Pointer(&b.bytes[offset]))
}

func (b *buffer) u64(offset uint64) *uint64 {
	return &b.words[offset/8]
}

func (b *buffer) LoadU32(offset uint64) uint32 {
	return atomic.LoadUint32(b.u32(offset))
}

func (b *buffer) StoreU32(offset uint64, v uint32) {
	atomic.StoreUint32(b.u32(offset), v)
}

func (b *buffer) AddU32(offset uint64, delta uint32) uint32 {
	return atomic.AddUint32(b.u32(offset), delta) - delta
}

func (b *buffer) OrU32(offset uint64, bits uint32) {
	p := b.u32(offset)
	for {
		old := atomic.LoadUint32(p)
		if old&bits == bits || atomic.CompareAndSwapUint32(p, old, old|bits) {
			return
		}
	}
}

func (b *buffer) LoadU64(offset uint64) uint64 {
	return atomic.LoadUint64(b.u64(offset))
}

func (b *buffer) StoreU64(offset uint64, v uint64) {
	atomic.StoreUint64(b.u64(offset), v)
}

func (b *buffer) MinU64(offset uint64, v uint64) uint64 {
	p := b.u64(offset)
	for {
		old := atomic.LoadUint64(p)
		if v >= old || atomic.CompareAndSwapUint64(p, old, v) {
			return old
		}
	}
}

func (b *buffer) Fill64(offset uint64, count uint64, v uint64) {
	first := offset / 8
	for i := first; i < first+count; i++ {
		atomic.StoreUint64(&b.words[i], v)
	}
}

func (b *buffer) Release() {
	if b.released.Swap(true) {
		return
	}
	b.words = nil
	b.bytes = nil
}

func (b *buffer) Released() bool {
	return b.released.Load()
}
