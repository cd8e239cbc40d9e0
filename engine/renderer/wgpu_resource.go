package renderer

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/Carmen-Shannon/oxy-nano/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-nano/engine/renderer/resource"
	"github.com/cogentcore/webgpu/wgpu"
)

// wgpuResource is a buffer or image created by the wgpu backend. The host side is a shadow copy
// the scene reads and writes between submissions; the device side is what kernels bind.
type wgpuResource interface {
	Resource

	// device returns the buffer kernels bind.
	device() *wgpu.Buffer

	// deviceSize returns the byte size of the device buffer.
	deviceSize() uint64

	// upload copies the shadow to the device when the host changed it since the last upload.
	upload(queue *wgpu.Queue) error

	// shadow returns the host bytes without marking them changed.
	shadow() []byte

	// readBack reports whether a submission that writes the resource copies it back to the host.
	readBack() bool
}

// wgpuBuffer is a resource.Buffer whose contents live on a wgpu device. Every host mutator marks
// the shadow dirty; Bytes counts as a mutator because callers may write through the slice.
type wgpuBuffer struct {
	resource.Buffer
	gpu     *wgpu.Buffer
	dirty   atomic.Bool
	release sync.Once
}

var _ resource.Buffer = &wgpuBuffer{}
var _ wgpuResource = &wgpuBuffer{}

// deviceBufferUsage maps resource usage onto device usage. Every device buffer can be uploaded to
// and copied out of; readback goes through a separate staging buffer, so MapRead never reaches
// the device buffer itself.
func deviceBufferUsage(u resource.BufferUsage) wgpu.BufferUsage {
	usage := wgpu.BufferUsageCopyDst | wgpu.BufferUsageCopySrc
	if u&resource.BufferUsageStorage != 0 {
		usage |= wgpu.BufferUsageStorage
	}
	if u&resource.BufferUsageUniform != 0 {
		usage |= wgpu.BufferUsageUniform
	}
	if u&resource.BufferUsageIndirect != 0 {
		usage |= wgpu.BufferUsageIndirect
	}
	return usage
}

func (b *wgpuBuffer) Bytes() []byte {
	b.dirty.Store(true)
	return b.Buffer.Bytes()
}

func (b *wgpuBuffer) Write(offset uint64, data []byte) error {
	if err := b.Buffer.Write(offset, data); err != nil {
		return err
	}
	b.dirty.Store(true)
	return nil
}

func (b *wgpuBuffer) StoreU32(offset uint64, v uint32) {
	b.Buffer.StoreU32(offset, v)
	b.dirty.Store(true)
}

func (b *wgpuBuffer) AddU32(offset uint64, delta uint32) uint32 {
	b.dirty.Store(true)
	return b.Buffer.AddU32(offset, delta)
}

func (b *wgpuBuffer) OrU32(offset uint64, bits uint32) {
	b.Buffer.OrU32(offset, bits)
	b.dirty.Store(true)
}

func (b *wgpuBuffer) StoreU64(offset uint64, v uint64) {
	b.Buffer.StoreU64(offset, v)
	b.dirty.Store(true)
}

func (b *wgpuBuffer) MinU64(offset uint64, v uint64) uint64 {
	b.dirty.Store(true)
	return b.Buffer.MinU64(offset, v)
}

func (b *wgpuBuffer) Fill64(offset uint64, count uint64, v uint64) {
	b.Buffer.Fill64(offset, count, v)
	b.dirty.Store(true)
}

func (b *wgpuBuffer) Release() {
	b.release.Do(func() {
		b.gpu.Release()
		b.Buffer.Release()
	})
}

func (b *wgpuBuffer) device() *wgpu.Buffer {
	return b.gpu
}

func (b *wgpuBuffer) deviceSize() uint64 {
	return b.Buffer.Size()
}

func (b *wgpuBuffer) upload(queue *wgpu.Queue) error {
	if !b.dirty.Swap(false) {
		return nil
	}
	if err := queue.WriteBuffer(b.gpu, 0, b.Buffer.Bytes()); err != nil {
		b.dirty.Store(true)
		return fmt.Errorf("renderer: upload %s: %w", b.Label(), err)
	}
	return nil
}

func (b *wgpuBuffer) shadow() []byte {
	return b.Buffer.Bytes()
}

func (b *wgpuBuffer) readBack() bool {
	return b.Usage()&resource.BufferUsageMapRead != 0
}

// wgpuImage is a resource.Image stored on the device as a storage buffer of RGBA32F texels in
// row-major order, the layout the kernels declare for image slots.
type wgpuImage struct {
	resource.Image
	gpu     *wgpu.Buffer
	dirty   atomic.Bool
	release sync.Once
}

var _ resource.Image = &wgpuImage{}
var _ wgpuResource = &wgpuImage{}

// texelBytes views texels as raw bytes.
func texelBytes(texels [][4]float32) []byte {
	if len(texels) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&texels[0][0])), len(texels)*int(unsafe.Sizeof(texels[0])))
}

func (i *wgpuImage) Store(x, y uint32, v [4]float32) {
	i.Image.Store(x, y, v)
	i.dirty.Store(true)
}

func (i *wgpuImage) Texels() [][4]float32 {
	i.dirty.Store(true)
	return i.Image.Texels()
}

func (i *wgpuImage) Release() {
	i.release.Do(func() {
		i.gpu.Release()
		i.Image.Release()
	})
}

func (i *wgpuImage) device() *wgpu.Buffer {
	return i.gpu
}

func (i *wgpuImage) deviceSize() uint64 {
	return uint64(len(i.shadow()))
}

func (i *wgpuImage) upload(queue *wgpu.Queue) error {
	if !i.dirty.Swap(false) {
		return nil
	}
	if err := queue.WriteBuffer(i.gpu, 0, i.shadow()); err != nil {
		i.dirty.Store(true)
		return fmt.Errorf("renderer: upload %s: %w", i.Label(), err)
	}
	return nil
}

func (i *wgpuImage) shadow() []byte {
	return texelBytes(i.Image.Texels())
}

func (i *wgpuImage) readBack() bool {
	return true
}

// deviceResource returns the wgpu resource behind a provider binding.
func deviceResource(b bind_group_provider.Binding) (wgpuResource, error) {
	switch {
	case b.Buffer != nil:
		if r, ok := b.Buffer.(*wgpuBuffer); ok {
			return r, nil
		}
		return nil, fmt.Errorf("%w: buffer %s was not created by the wgpu backend", ErrBindingMismatch, b.Buffer.Label())
	case b.Image != nil:
		if r, ok := b.Image.(*wgpuImage); ok {
			return r, nil
		}
		return nil, fmt.Errorf("%w: image %s was not created by the wgpu backend", ErrBindingMismatch, b.Image.Label())
	default:
		return nil, fmt.Errorf("%w: slot %d binds nothing", ErrBindingMismatch, b.Slot)
	}
}
