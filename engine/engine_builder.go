package engine

import (
	"time"

	"github.com/Carmen-Shannon/oxy-nano/engine/present"
	"github.com/Carmen-Shannon/oxy-nano/engine/profiler"
	"github.com/Carmen-Shannon/oxy-nano/engine/scene"
	"github.com/Carmen-Shannon/oxy-nano/engine/window"
)

// EngineBuilderOption is a functional option for configuring an Engine.
// Use the With* functions to create options that are applied directly to the engine instance.
type EngineBuilderOption func(*engine)

// WithProfiling enables or disables performance profiling output.
//
// Parameters:
//   - enabled: if true, enables performance profiling
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithProfiling(enabled bool) EngineBuilderOption {
	return func(e *engine) {
		e.profilingEnabled = enabled
	}
}

// WithProfiler replaces the default profiler.
func WithProfiler(p *profiler.Profiler) EngineBuilderOption {
	return func(e *engine) {
		if p != nil {
			e.profiler = p
		}
	}
}

// WithWindow sets a custom configured window for the engine to use rather than allowing the engine
// to create and manage one internally.
//
// Parameters:
//   - w: a pre-configured Window instance
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithWindow(w window.Window) EngineBuilderOption {
	return func(e *engine) {
		e.window = w
	}
}

// WithPresenter sets the presenter instead of creating a WebGPU surface presenter on the window.
//
// Parameters:
//   - p: the presenter
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithPresenter(p present.Presenter) EngineBuilderOption {
	return func(e *engine) {
		e.presenter = p
	}
}

// WithTitle sets the prefix of the window title. The visualize mode and mip override follow it.
func WithTitle(title string) EngineBuilderOption {
	return func(e *engine) {
		e.title = title
	}
}

// WithRenderFrameLimit sets an optional render frame rate cap in frames per second.
// Pass 0 to uncap the render loop (default). A capped engine presents without vsync.
//
// Parameters:
//   - fps: maximum render frames per second (0 = uncapped)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithRenderFrameLimit(fps float64) EngineBuilderOption {
	return func(e *engine) {
		if fps <= 0 {
			e.renderFrameLimit = 0
			return
		}
		e.renderFrameLimit = time.Duration(float64(time.Second) / fps)
	}
}

// WithMaxFrames stops Run after n frames. Zero runs until the window closes.
func WithMaxFrames(n int) EngineBuilderOption {
	return func(e *engine) {
		e.maxFrames = max(n, 0)
	}
}

// WithFrameCallback registers a function called with the stats of every rendered frame.
func WithFrameCallback(callback func(stats scene.FrameStats)) EngineBuilderOption {
	return func(e *engine) {
		e.frameCallback = callback
	}
}
