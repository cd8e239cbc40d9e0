package resource

import (
	"sync/atomic"
)

// ImageFormat identifies the texel layout of an Image.
type ImageFormat int

const (
	// ImageFormatRGBA32Float stores four float32 channels per texel.
	ImageFormatRGBA32Float ImageFormat = iota
)

// image is the implementation of the Image interface.
type image struct {
	label    string
	width    uint32
	height   uint32
	format   ImageFormat
	texels   [][4]float32
	released atomic.Bool
}

// Image is an exclusively owned 2D storage image.
type Image interface {
	// Label returns the debug label of the image.
	Label() string

	// Width returns the image width in texels.
	Width() uint32

	// Height returns the image height in texels.
	Height() uint32

	// Format returns the texel format.
	Format() ImageFormat

	// Store writes one texel. Out-of-range coordinates are ignored.
	Store(x, y uint32, v [4]float32)

	// Load reads one texel. Out-of-range coordinates return zero.
	Load(x, y uint32) [4]float32

	// Texels returns the row-major texel storage.
	Texels() [][4]float32

	// Release frees the storage.
	Release()

	// Released reports whether Release has been called.
	Released() bool
}

var _ Image = &image{}

// NewImage allocates a zeroed RGBA32F image.
func NewImage(label string, width, height uint32) Image {
	return &image{
		label:  label,
		width:  width,
		height: height,
		format: ImageFormatRGBA32Float,
		texels: make([][4]float32, int(width)*int(height)),
	}
}

func (i *image) Label() string {
	return i.label
}

func (i *image) Width() uint32 {
	return i.width
}

func (i *image) Height() uint32 {
	return i.height
}

func (i *image) Format() ImageFormat {
	return i.format
}

func (i *image) Store(x, y uint32, v [4]float32) {
	if x >= i.width || y >= i.height {
		return
	}
	i.texels[y*i.width+x] = v
}

func (i *image) Load(x, y uint32) [4]float32 {
	if x >= i.width || y >= i.height {
		return [4]float32{}
	}
	return i.texels[y*i.width+x]
}

func (i *image) Texels() [][4]float32 {
	return i.texels
}

func (i *image) Release() {
	if i.released.Swap(true) {
		return
	}
	i.texels = nil
}

func (i *image) Released() bool {
	return i.released.Load()
}
