// Package shaders embeds the pass descriptors of the visibility pipeline and the WGSL files they
// include. Each descriptor names the entry point of its pass, declares the workgroup size and
// numbered slots, and carries the WGSL kernel the wgpu backend compiles.
package shaders

import "embed"

// FS holds every descriptor and include in this directory.
//
//go:embed *.comp *.vert *.frag *.wgsl
var FS embed.FS
