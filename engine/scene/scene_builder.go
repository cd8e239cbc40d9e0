package scene

import (
	"io/fs"
	"os"

	"github.com/Carmen-Shannon/oxy-nano/engine/camera"
)

// SceneBuilderOption is a functional option for configuring a Scene.
// Use the With* functions to create options.
type SceneBuilderOption func(s *scene)

// WithSize sets the viewport in pixels. Defaults to 1280x720.
//
// Parameters:
//   - width, height: the viewport size (zero values are ignored)
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithSize(width, height uint32) SceneBuilderOption {
	return func(s *scene) {
		if width > 0 && height > 0 {
			s.width, s.height = width, height
		}
	}
}

// WithCamera attaches a camera. Its aspect ratio is overwritten from the viewport.
//
// Parameters:
//   - cam: the camera
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithCamera(cam camera.Camera) SceneBuilderOption {
	return func(s *scene) {
		s.cam = cam
	}
}

// WithCullRounds sets the fixed number of cull rounds per frame, clamped to [1, 32].
// A hierarchy deeper than the round count is clamped at the last round: nodes on that level emit
// their own clusters instead of descending.
//
// Parameters:
//   - n: the round count (default 4)
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithCullRounds(n int) SceneBuilderOption {
	return func(s *scene) {
		s.rounds = min(max(n, 1), maxCullRounds)
		s.adaptive = false
	}
}

// WithAdaptiveTraversal runs cull rounds until the produced queue is empty, at most maxRounds.
//
// Parameters:
//   - maxRounds: the safety bound, clamped to [1, 32]
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithAdaptiveTraversal(maxRounds int) SceneBuilderOption {
	return func(s *scene) {
		s.adaptive = true
		s.maxRounds = min(max(maxRounds, 1), maxCullRounds)
	}
}

// WithOverflowPolicy selects what happens when a fixed-capacity buffer drops entries.
func WithOverflowPolicy(p OverflowPolicy) SceneBuilderOption {
	return func(s *scene) {
		s.policy = p
	}
}

// WithQueueCapacity sets the byte size of each work queue, header included.
func WithQueueCapacity(bytes uint64) SceneBuilderOption {
	return func(s *scene) {
		s.caps.queue = max(bytes, queueHeaderSize)
	}
}

// WithBatchCapacity sets the byte size of the cluster batch, header included.
func WithBatchCapacity(bytes uint64) SceneBuilderOption {
	return func(s *scene) {
		s.caps.batch = max(bytes, queueHeaderSize)
	}
}

// WithListCapacity sets the byte size of the visible cluster list, header included.
func WithListCapacity(bytes uint64) SceneBuilderOption {
	return func(s *scene) {
		s.caps.list = max(bytes, listHeaderSize)
	}
}

// WithMaxBufferSize bounds how far OverflowGrow may grow a buffer. Defaults to 64 MiB.
func WithMaxBufferSize(bytes uint64) SceneBuilderOption {
	return func(s *scene) {
		s.maxBytes = bytes
	}
}

// WithSoftwareRaster enables or disables the compute raster path. When disabled, Partition sends
// every cluster to the hardware path.
//
// Parameters:
//   - enabled: whether small clusters are rasterized in compute (default true)
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithSoftwareRaster(enabled bool) SceneBuilderOption {
	return func(s *scene) {
		s.software = enabled
	}
}

// WithShaderDir loads the pass descriptors from a directory instead of the embedded set.
func WithShaderDir(dir string) SceneBuilderOption {
	return func(s *scene) {
		s.shaderFS = os.DirFS(dir)
	}
}

// WithShaderFS loads the pass descriptors from fsys.
func WithShaderFS(fsys fs.FS) SceneBuilderOption {
	return func(s *scene) {
		s.shaderFS = fsys
	}
}

// WithLODReferences sets the pixel sizes the two LOD scales are measured against. The software
// reference is the error budget of traversal; the hardware reference is the footprint at which
// Partition routes a cluster to the hardware path.
//
// Parameters:
//   - software: pixels per unit of projected error (default 1)
//   - hardware: minimum hardware footprint in pixels (default 32)
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithLODReferences(software, hardware float32) SceneBuilderOption {
	return func(s *scene) {
		if software > 0 {
			s.refSW = software
		}
		if hardware > 0 {
			s.refHW = hardware
		}
	}
}

// WithErrorThreshold sets the projected error, in reference pixels, below which traversal stops.
func WithErrorThreshold(pixels float32) SceneBuilderOption {
	return func(s *scene) {
		if pixels > 0 {
			s.errorThreshold = pixels
		}
	}
}

// WithMipOverride starts with a debug mip override. Values outside {0..8, 10} are ignored.
func WithMipOverride(level uint32) SceneBuilderOption {
	return func(s *scene) {
		for i, l := range mipLevels {
			if l == level {
				s.mipIndex = i
			}
		}
	}
}

// WithVisualizeMode selects what the resolve stage draws.
func WithVisualizeMode(mode VisualizeMode) SceneBuilderOption {
	return func(s *scene) {
		s.mode = mode % visualizeModeCount
	}
}

// WithModelRotation sets the model's rotation about +Y in radians. Defaults to pi.
func WithModelRotation(radians float32) SceneBuilderOption {
	return func(s *scene) {
		s.modelRotation = radians
	}
}

// WithVisitLog records every node a cull round reads into FrameStats.VisitLog.
func WithVisitLog(enabled bool) SceneBuilderOption {
	return func(s *scene) {
		s.visitLog = enabled
	}
}
