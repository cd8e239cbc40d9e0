package scene

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-nano/common"
	"github.com/Carmen-Shannon/oxy-nano/engine/asset"
	"github.com/Carmen-Shannon/oxy-nano/engine/camera"
	"github.com/Carmen-Shannon/oxy-nano/engine/renderer"
	"github.com/Carmen-Shannon/oxy-nano/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-nano/log"
	"github.com/Carmen-Shannon/oxy-nano/shaders"
)

// ErrCapacityExceeded is returned by RenderFrame under OverflowStrict when a fixed-capacity buffer
// dropped entries.
var ErrCapacityExceeded = errors.New("scene: capacity exceeded")

var logger = log.New("scene")

// OverflowPolicy decides what a frame does when a queue, the batch or the visible cluster list
// runs out of room. Entries past capacity are always dropped on the device; the policy acts on
// the readback.
type OverflowPolicy int

const (
	// OverflowDropAndLog keeps the truncated frame and logs a warning.
	OverflowDropAndLog OverflowPolicy = iota
	// OverflowGrow doubles the overflowing buffers and renders the frame again, up to the
	// configured maximum size.
	OverflowGrow
	// OverflowStrict returns ErrCapacityExceeded.
	OverflowStrict
)

func (p OverflowPolicy) String() string {
	switch p {
	case OverflowDropAndLog:
		return "drop"
	case OverflowGrow:
		return "grow"
	case OverflowStrict:
		return "strict"
	default:
		return "unknown"
	}
}

// ParseOverflowPolicy maps a policy name back to its value.
func ParseOverflowPolicy(name string) (OverflowPolicy, bool) {
	for p := OverflowDropAndLog; p <= OverflowStrict; p++ {
		if p.String() == name {
			return p, true
		}
	}
	return 0, false
}

// mipLevels is the debug override set the up and down keys step through.
var mipLevels = []uint32{0, 1, 2, 3, 4, 5, 6, 7, 8, 10}

// Default sizes.
const (
	DefaultCullRounds    = 4
	DefaultBufferSize    = 4 << 20
	DefaultMaxBufferSize = 64 << 20
)

// Scene renders one cluster hierarchy through the visibility pipeline:
// Init, the cull rounds, Partition, the two raster paths and Resolve, one command list per frame
// with an explicit barrier between every producer and its consumers.
// Thread-safe for concurrent access.
type Scene interface {
	// RenderFrame uploads the frame constants and runs the whole pipeline once.
	//
	// Returns:
	//   - FrameStats: the counters read back after the frame
	//   - error: a device error, ErrCapacityExceeded under OverflowStrict, or resource.ErrReleased
	//     after Release
	RenderFrame() (FrameStats, error)

	// Camera returns the scene's camera.
	Camera() camera.Camera

	// SetCamera moves the camera. The new pose is used from the next frame on.
	//
	// Parameters:
	//   - pose: the new camera pose
	SetCamera(pose camera.Pose)

	// Resize replaces the visibility buffer and the visualization image.
	//
	// Parameters:
	//   - width, height: the new viewport in pixels
	//
	// Returns:
	//   - error: an allocation error, an empty viewport, or resource.ErrReleased after Release
	Resize(width, height uint32) error

	// Size returns the viewport in pixels.
	Size() (uint32, uint32)

	// OnKeyUp handles the debug keys: up and down step the mip override through
	// {0..8, 10} with wrap-around, V cycles the visualize mode.
	//
	// Parameters:
	//   - key: the released key code
	OnKeyUp(key uint32)

	// MipOverride returns the current debug mip override.
	MipOverride() uint32

	// VisualizeMode returns what the resolve stage draws.
	VisualizeMode() VisualizeMode

	// SetVisualizeMode selects what the resolve stage draws.
	SetVisualizeMode(mode VisualizeMode)

	// ReadVisBuffer copies the visibility buffer of the last frame to the host.
	//
	// Returns:
	//   - VisBuffer: the packed cells
	//   - error: a readback error, or resource.ErrReleased after Release
	ReadVisBuffer() (VisBuffer, error)

	// VisualizationImage returns the image the resolve stage writes, or nil after Release.
	VisualizationImage() resource.Image

	// Stats returns the counters of the last frame.
	Stats() FrameStats

	// Release frees every device resource of the scene. The renderer stays with its owner.
	Release()
}

// scene is the implementation of the Scene interface.
type scene struct {
	mu *sync.Mutex

	r     renderer.Renderer
	store *asset.Store
	cam   camera.Camera
	ctx   *frameContext

	width, height uint32

	// Traversal
	rounds    int
	adaptive  bool
	maxRounds int
	visitLog  bool

	// Capacity
	policy   OverflowPolicy
	caps     capacities
	maxBytes uint64

	// LOD and raster selection
	software       bool
	refSW, refHW   float32
	errorThreshold float32
	mipIndex       int

	mode          VisualizeMode
	modelRotation float32
	shaderFS      fs.FS

	frame uint32
	stats FrameStats
}

var _ Scene = &scene{}

// NewScene checks the device capabilities, registers the pass programs and pipelines, uploads the
// asset store and allocates every per-frame buffer. The renderer and the store are required and
// NewScene panics if either is nil.
//
// Parameters:
//   - r: the device (must not be nil)
//   - store: the hierarchy and cluster data (must not be nil)
//   - options: functional options to configure the scene
//
// Returns:
//   - Scene: the scene, ready to render
//   - error: renderer.ErrMissingFeature, shader.ErrShaderNotFound or an allocation error
func NewScene(r renderer.Renderer, store *asset.Store, options ...SceneBuilderOption) (Scene, error) {
	if r == nil {
		panic("scene: NewScene requires a non-nil Renderer")
	}
	if store == nil {
		panic("scene: NewScene requires a non-nil asset Store")
	}

	s := &scene{
		mu:             &sync.Mutex{},
		r:              r,
		store:          store,
		width:          1280,
		height:         720,
		rounds:         DefaultCullRounds,
		maxRounds:      maxCullRounds,
		policy:         OverflowDropAndLog,
		caps:           capacities{queue: DefaultBufferSize, batch: DefaultBufferSize, list: DefaultBufferSize},
		maxBytes:       DefaultMaxBufferSize,
		software:       true,
		refSW:          1,
		refHW:          32,
		errorThreshold: 1,
		mode:           VisualizeClusters,
		modelRotation:  math.Pi,
		shaderFS:       shaders.FS,
	}
	for _, option := range options {
		option(s)
	}
	if s.cam == nil {
		s.cam = camera.NewCamera()
	}
	s.cam.SetAspect(float32(s.width) / float32(s.height))

	if err := r.RequireFeatures(renderer.FeatureInt64Atomics | renderer.FeatureIndirect); err != nil {
		return nil, fmt.Errorf("scene: %w", err)
	}
	r.RegisterPrograms(Programs())
	pipelines, err := loadPipelines(s.shaderFS)
	if err != nil {
		return nil, err
	}
	if err := r.RegisterPipelines(pipelines...); err != nil {
		return nil, fmt.Errorf("scene: %w", err)
	}

	ctx, err := newFrameContext(r, store, s.width, s.height, s.caps)
	if err != nil {
		return nil, fmt.Errorf("scene: %w", err)
	}
	s.ctx = ctx

	depth := store.BVH.Depth()
	logger.Infof("loaded %d nodes (depth %d), %d clusters, %d triangles; bvh %d bytes, mesh %d bytes",
		len(store.BVH.Nodes), depth, len(store.Mesh.Clusters), store.Mesh.TriangleCount(),
		len(store.BVHBlob), len(store.MeshBlob))
	if limit := s.roundLimit(); depth > limit {
		logger.Warningf("hierarchy depth %d exceeds %d cull rounds; levels below %d are clamped", depth, limit, limit)
	}
	return s, nil
}

// roundLimit is the deepest hierarchy level a frame can reach.
func (s *scene) roundLimit() int {
	if s.adaptive {
		return s.maxRounds
	}
	return s.rounds
}

func (s *scene) RenderFrame() (FrameStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx == nil {
		return FrameStats{}, fmt.Errorf("scene: render: %w", resource.ErrReleased)
	}

	start := time.Now()
	s.cam.Update()
	fc := buildFrameConstants(s.cam, s.frameParams())
	if err := s.ctx.uploadConstants(&fc); err != nil {
		return FrameStats{}, fmt.Errorf("scene: %w", err)
	}

	regrown := 0
	var stats FrameStats
	for {
		rounds, err := s.submit()
		if err != nil {
			return FrameStats{}, fmt.Errorf("scene: frame %d: %w", s.frame, err)
		}
		stats = s.ctx.collectStats(rounds, s.visitLog)
		if !stats.Overflowed() || s.policy != OverflowGrow {
			break
		}
		grown, err := s.ctx.grow(stats.Overflows, s.maxBytes)
		if err != nil {
			return FrameStats{}, fmt.Errorf("scene: growing %s: %w", strings.Join(stats.Overflows, ", "), err)
		}
		if !grown {
			logger.Warningf("frame %d: %s at the %d byte limit, entries dropped", s.frame, strings.Join(stats.Overflows, ", "), s.maxBytes)
			break
		}
		regrown++
		logger.Noticef("frame %d: grew %s to queues %d, batch %d, list %d bytes", s.frame,
			strings.Join(stats.Overflows, ", "), s.ctx.caps.queue, s.ctx.caps.batch, s.ctx.caps.list)
	}

	stats.Frame = s.frame
	stats.Regrown = regrown
	stats.Duration = time.Since(start)
	s.stats = stats
	s.frame++

	if c := stats.Clamped(); c > 0 {
		logger.Debugf("frame %d: %d nodes clamped at round %d", stats.Frame, c, stats.RoundsRun-1)
	}
	if stats.Overflowed() {
		switch s.policy {
		case OverflowStrict:
			return stats, fmt.Errorf("%w: %s", ErrCapacityExceeded, strings.Join(stats.Overflows, ", "))
		case OverflowDropAndLog:
			logger.Warningf("frame %d: %s overflowed, entries dropped", stats.Frame, strings.Join(stats.Overflows, ", "))
		}
	}
	return stats, nil
}

// submit records and executes the frame. With a fixed round count everything is one command list.
// Adaptive traversal reads the produced queue count after every round, so each further round is its
// own submission and the tail waits for the last one.
//
// Returns:
//   - int: the number of cull rounds run
//   - error: a recording, validation or execution error
func (s *scene) submit() (int, error) {
	r, f := s.r, s.ctx
	f.queues.Reset()

	last := uint32(s.rounds - 1)
	if s.adaptive {
		last = uint32(s.maxRounds - 1)
	}

	if err := r.BeginComputeFrame(); err != nil {
		return 0, err
	}
	r.Barrier(recordInit(r, f)...)
	r.Barrier(recordCullRound(r, f, 0, last, s.visitLog)...)
	rounds := 1

	if s.adaptive {
		if err := r.EndComputeFrame(); err != nil {
			return rounds, err
		}
		for rounds < s.maxRounds && newQueueView(f.queues.Current()).count() > 0 {
			if err := r.BeginComputeFrame(); err != nil {
				return rounds, err
			}
			r.Barrier(recordCullRound(r, f, uint32(rounds), last, s.visitLog)...)
			if err := r.EndComputeFrame(); err != nil {
				return rounds, err
			}
			rounds++
		}
		if err := r.BeginComputeFrame(); err != nil {
			return rounds, err
		}
	} else {
		for ; rounds < s.rounds; rounds++ {
			r.Barrier(recordCullRound(r, f, uint32(rounds), last, s.visitLog)...)
		}
	}

	recordPartition(r, f)
	recordRaster(r, f, s.software)
	recordResolve(r, f)
	return rounds, r.EndComputeFrame()
}

func (s *scene) frameParams() frameParams {
	return frameParams{
		width:          s.width,
		height:         s.height,
		modelRotation:  s.modelRotation,
		mipOverride:    mipLevels[s.mipIndex],
		mode:           s.mode,
		software:       s.software,
		frameIndex:     s.frame,
		errorThreshold: s.errorThreshold,
		refSW:          s.refSW,
		refHW:          s.refHW,
	}
}

func (s *scene) Camera() camera.Camera {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cam
}

func (s *scene) SetCamera(pose camera.Pose) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cam.SetPose(pose)
}

func (s *scene) Resize(width, height uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return fmt.Errorf("scene: resize: %w", resource.ErrReleased)
	}
	if width == s.width && height == s.height {
		return nil
	}
	if err := s.ctx.resize(width, height); err != nil {
		return err
	}
	s.width, s.height = width, height
	s.cam.SetAspect(float32(width) / float32(height))
	logger.Debugf("resized to %dx%d", width, height)
	return nil
}

func (s *scene) Size() (uint32, uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height
}

func (s *scene) OnKeyUp(key uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch key {
	case common.KeyUp:
		s.mipIndex = (s.mipIndex + 1) % len(mipLevels)
		logger.Infof("mip override %d", mipLevels[s.mipIndex])
	case common.KeyDown:
		s.mipIndex = (s.mipIndex + len(mipLevels) - 1) % len(mipLevels)
		logger.Infof("mip override %d", mipLevels[s.mipIndex])
	case common.KeyV:
		s.mode = (s.mode + 1) % visualizeModeCount
		logger.Infof("visualize %s", s.mode)
	}
}

func (s *scene) MipOverride() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return mipLevels[s.mipIndex]
}

func (s *scene) VisualizeMode() VisualizeMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

func (s *scene) SetVisualizeMode(mode VisualizeMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = mode % visualizeModeCount
}

func (s *scene) ReadVisBuffer() (VisBuffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return VisBuffer{}, fmt.Errorf("scene: read visibility buffer: %w", resource.ErrReleased)
	}
	return s.ctx.readVisBuffer()
}

func (s *scene) VisualizationImage() resource.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return nil
	}
	return s.ctx.color
}

func (s *scene) Stats() FrameStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *scene) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx != nil {
		s.ctx.Release()
		s.ctx = nil
	}
}
