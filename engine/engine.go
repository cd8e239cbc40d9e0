package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-nano/common"
	"github.com/Carmen-Shannon/oxy-nano/engine/camera"
	"github.com/Carmen-Shannon/oxy-nano/engine/present"
	"github.com/Carmen-Shannon/oxy-nano/engine/profiler"
	"github.com/Carmen-Shannon/oxy-nano/engine/scene"
	"github.com/Carmen-Shannon/oxy-nano/engine/window"
	"github.com/Carmen-Shannon/oxy-nano/log"
)

var logger = log.New("engine")

// engine implements the Engine interface.
// Runs the viewer loop on the calling thread: poll window events, render the scene, present.
type engine struct {
	mu *sync.Mutex

	scene     scene.Scene
	window    window.Window
	presenter present.Presenter

	quitChannel chan struct{}
	quitOnce    sync.Once // Ensures quitChannel is only closed once

	profiler         *profiler.Profiler
	profilingEnabled bool

	renderFrameLimit time.Duration // minimum frame duration; 0 = uncapped
	maxFrames        int           // 0 = until the window closes
	frameCallback    func(stats scene.FrameStats)

	pendingResize bool
	pendingWidth  int
	pendingHeight int
	titleDirty    bool
	title         string
}

// Engine is the interactive viewer. It routes window input to the scene's camera and debug keys,
// renders one frame per loop iteration and presents the resolved image.
type Engine interface {
	// Scene returns the scene being viewed.
	Scene() scene.Scene

	// Window returns the window the engine polls.
	Window() window.Window

	// Profiler returns the frame profiler. It records every frame, and logs only when profiling
	// is enabled.
	Profiler() *profiler.Profiler

	// EnableProfiler enables performance profiling output to the log.
	EnableProfiler()

	// DisableProfiler disables performance profiling output.
	DisableProfiler()

	// SetRenderFrameLimit sets an optional render frame rate cap in frames per second.
	// Pass 0 to uncap the render loop (default).
	//
	// Parameters:
	//   - fps: maximum render frames per second (0 = uncapped)
	SetRenderFrameLimit(fps float64)

	// Run renders until the window closes, Quit is called or the frame limit is reached.
	// Must be called from the thread that created the window.
	//
	// Returns:
	//   - error: the first frame or presentation error
	Run() error

	// Quit stops the loop after the current frame.
	// Safe to call multiple times; subsequent calls are no-ops.
	Quit()

	// Release frees the presenter and closes the window. The scene stays with its owner.
	Release()
}

// NewEngine creates an engine viewing s. A window and a presenter are required, either passed
// as options or created from the defaults (a GLFW window and a WebGPU surface presenter).
//
// Parameters:
//   - s: the scene to view (must not be nil)
//   - options: functional options for engine configuration
//
// Returns:
//   - Engine: the newly created engine
//   - error: error if the default window or presenter could not be created
func NewEngine(s scene.Scene, options ...EngineBuilderOption) (Engine, error) {
	if s == nil {
		panic("engine: NewEngine requires a non-nil Scene")
	}
	e := &engine{
		mu:          &sync.Mutex{},
		scene:       s,
		quitChannel: make(chan struct{}),
		profiler:    profiler.NewProfiler(),
		title:       "oxy-nano",
	}
	for _, opt := range options {
		opt(e)
	}

	if e.window == nil {
		w, h := s.Size()
		win, err := window.NewWindow(window.WithTitle(e.title), window.WithSize(int(w), int(h)))
		if err != nil {
			return nil, fmt.Errorf("engine: %w", err)
		}
		e.window = win
	}
	if e.presenter == nil {
		w, h := e.window.Size()
		p, err := present.NewSurfacePresenter(e.window.SurfaceDescriptor(), w, h, e.renderFrameLimit == 0)
		if err != nil {
			return nil, fmt.Errorf("engine: %w", err)
		}
		e.presenter = p
	}

	cam := s.Camera()
	if cam.Controller() == nil {
		cam.SetController(camera.NewCameraController(camera.WithControllerPose(cam.Pose())))
	}
	e.window.SetInputHandler(e)
	if w, h := e.window.Size(); w > 0 && h > 0 {
		e.OnResize(w, h)
	}
	e.titleDirty = true
	return e, nil
}

func (e *engine) Scene() scene.Scene {
	return e.scene
}

func (e *engine) Window() window.Window {
	return e.window
}

func (e *engine) Profiler() *profiler.Profiler {
	return e.profiler
}

func (e *engine) EnableProfiler() {
	e.profilingEnabled = true
}

func (e *engine) DisableProfiler() {
	e.profilingEnabled = false
}

func (e *engine) SetRenderFrameLimit(fps float64) {
	if fps <= 0 {
		e.renderFrameLimit = 0
		return
	}
	e.renderFrameLimit = time.Duration(float64(time.Second) / fps)
}

func (e *engine) Quit() {
	e.quitOnce.Do(func() {
		close(e.quitChannel)
	})
}

func (e *engine) Run() error {
	for frames := 0; e.maxFrames == 0 || frames < e.maxFrames; frames++ {
		select {
		case <-e.quitChannel:
			return nil
		default:
		}
		if !e.window.Poll() {
			return nil
		}

		frameStart := time.Now()
		if err := e.frame(); err != nil {
			return err
		}

		// Frame rate limiting
		if e.renderFrameLimit > 0 {
			if remaining := e.renderFrameLimit - time.Since(frameStart); remaining > 0 {
				time.Sleep(remaining)
			}
		}
	}
	return nil
}

// frame applies pending input, renders and presents once.
func (e *engine) frame() error {
	e.mu.Lock()
	resize, width, height := e.pendingResize, e.pendingWidth, e.pendingHeight
	e.pendingResize = false
	retitle := e.titleDirty
	e.titleDirty = false
	e.mu.Unlock()

	if resize {
		// A minimized window reports 0x0; keep rendering at the old size.
		if width > 0 && height > 0 {
			if err := e.scene.Resize(uint32(width), uint32(height)); err != nil {
				return fmt.Errorf("engine: %w", err)
			}
			e.presenter.Resize(width, height)
		}
	}
	if retitle {
		e.window.SetTitle(fmt.Sprintf("%s | %s | mip %d", e.title, e.scene.VisualizeMode(), e.scene.MipOverride()))
	}

	stats, err := e.scene.RenderFrame()
	if err != nil && !errors.Is(err, scene.ErrCapacityExceeded) {
		return fmt.Errorf("engine: %w", err)
	}
	if err := e.presenter.Present(e.scene.VisualizationImage()); err != nil {
		// The surface can be briefly unavailable while the window is resized.
		logger.Debugf("present skipped: %v", err)
	}

	sample := profiler.Sample{
		Duration:   stats.Duration,
		HWClusters: stats.HWClusters,
		SWClusters: stats.SWClusters,
		Overflowed: stats.Overflowed(),
	}
	if e.profilingEnabled {
		e.profiler.Tick(sample)
	} else {
		e.profiler.Record(sample)
	}
	if e.frameCallback != nil {
		e.frameCallback(stats)
	}
	return nil
}

// OnKeyUp forwards the debug keys to the scene and refreshes the title.
func (e *engine) OnKeyUp(key uint32) {
	switch key {
	case common.KeyUp, common.KeyDown, common.KeyV:
		e.scene.OnKeyUp(key)
		e.mu.Lock()
		e.titleDirty = true
		e.mu.Unlock()
	}
}

// OnDrag orbits the camera.
func (e *engine) OnDrag(dx, dy float64) {
	if ctrl := e.scene.Camera().Controller(); ctrl != nil {
		ctrl.Drag(dx, dy)
	}
}

// OnScroll zooms the camera.
func (e *engine) OnScroll(delta float32) {
	if ctrl := e.scene.Camera().Controller(); ctrl != nil {
		ctrl.Zoom(delta)
	}
}

// OnResize defers the resize to the next frame so the scene's buffers are only replaced between
// frames.
func (e *engine) OnResize(width, height int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pendingResize = true
	e.pendingWidth, e.pendingHeight = width, height
}

func (e *engine) Release() {
	if e.presenter != nil {
		e.presenter.Release()
	}
	if e.window != nil && e.window.IsRunning() {
		if err := e.window.Close(); err != nil {
			logger.Warningf("close window: %v", err)
		}
	}
}
