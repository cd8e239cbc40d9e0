package window

import (
	"fmt"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"
)

// InputHandler receives the window events the viewer reacts to. Every method is called on the
// thread that runs Poll.
type InputHandler interface {
	// OnKeyUp is called when a key is released.
	//
	// Parameters:
	//   - key: the GLFW key code (see common.Key*)
	OnKeyUp(key uint32)

	// OnDrag is called while the middle mouse button is held and the cursor moves.
	//
	// Parameters:
	//   - dx, dy: cursor movement since the last event in pixels
	OnDrag(dx, dy float64)

	// OnScroll is called for mouse wheel events.
	//
	// Parameters:
	//   - delta: positive when scrolling up
	OnScroll(delta float32)

	// OnResize is called when the framebuffer changes size. Zero sizes are reported while the
	// window is minimized.
	OnResize(width, height int)
}

// Window is a platform window with just enough input for the viewer.
type Window interface {
	// SetInputHandler routes input events to h. A nil handler drops them.
	SetInputHandler(h InputHandler)

	// SetTitle replaces the title bar text.
	SetTitle(title string)

	// SurfaceDescriptor returns a platform-appropriate surface descriptor for WebGPU, or nil if the
	// window has been closed.
	SurfaceDescriptor() *wgpu.SurfaceDescriptor

	// Poll processes pending events without blocking.
	//
	// Returns:
	//   - bool: false once the window has been asked to close
	Poll() bool

	// IsRunning reports whether the window is still open.
	IsRunning() bool

	// Size returns the framebuffer size in pixels.
	Size() (width, height int)

	// Close destroys the window.
	//
	// Returns:
	//   - error: error if the window was never created
	Close() error
}

// engineWindow is the implementation of the Window interface.
type engineWindow struct {
	mu *sync.Mutex

	title     string
	width     int
	height    int
	minWidth  int
	minHeight int
	maxWidth  int
	maxHeight int

	// internalWindow holds the platform-specific window data (glfwWindow).
	internalWindow any

	handler InputHandler

	dragging bool
	lastX    float64
	lastY    float64
}

var _ Window = &engineWindow{}

// NewWindow creates and shows a window. Applies default values first, then each option in order.
//
// Parameters:
//   - options: functional options to configure the window
//
// Returns:
//   - Window: the open window
//   - error: error if the platform window could not be created
func NewWindow(options ...WindowBuilderOption) (Window, error) {
	w := &engineWindow{
		mu:        &sync.Mutex{},
		title:     "oxy-nano",
		width:     1280,
		height:    720,
		minWidth:  320,
		minHeight: 200,
		maxWidth:  3840,
		maxHeight: 2160,
	}
	for _, opt := range options {
		opt(w)
	}
	if err := newPlatformWindow(w); err != nil {
		return nil, fmt.Errorf("window: %w", err)
	}
	return w, nil
}

func (w *engineWindow) SetInputHandler(h InputHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handler = h
}

func (w *engineWindow) SetTitle(title string) {
	w.title = title
	platformSetTitle(w, title)
}

func (w *engineWindow) SurfaceDescriptor() *wgpu.SurfaceDescriptor {
	return platformGetSurfaceDescriptor(w)
}

func (w *engineWindow) Poll() bool {
	if !w.IsRunning() {
		return false
	}
	return platformProcessMessages(w)
}

func (w *engineWindow) IsRunning() bool {
	return platformIsRunningCheck(w)
}

func (w *engineWindow) Size() (int, int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.width, w.height
}

func (w *engineWindow) Close() error {
	return platformCloseWindow(w)
}

func (w *engineWindow) currentHandler() InputHandler {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.handler
}

// keyUp forwards a released key.
func (w *engineWindow) keyUp(key uint32) {
	if h := w.currentHandler(); h != nil {
		h.OnKeyUp(key)
	}
}

// middleButton starts or ends a drag at (x, y).
func (w *engineWindow) middleButton(pressed bool, x, y float64) {
	w.dragging = pressed
	w.lastX, w.lastY = x, y
}

// cursorMoved turns cursor positions into drag deltas while dragging.
func (w *engineWindow) cursorMoved(x, y float64) {
	if !w.dragging {
		return
	}
	dx, dy := x-w.lastX, y-w.lastY
	w.lastX, w.lastY = x, y
	if h := w.currentHandler(); h != nil && (dx != 0 || dy != 0) {
		h.OnDrag(dx, dy)
	}
}

func (w *engineWindow) scrolled(delta float32) {
	if h := w.currentHandler(); h != nil {
		h.OnScroll(delta)
	}
}

func (w *engineWindow) resized(width, height int) {
	w.mu.Lock()
	w.width, w.height = width, height
	h := w.handler
	w.mu.Unlock()
	if h != nil {
		h.OnResize(width, height)
	}
}
