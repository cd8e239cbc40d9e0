package window

import (
	"sync"
	"testing"
)

type recordingHandler struct {
	keys    []uint32
	drags   [][2]float64
	scrolls []float32
	sizes   [][2]int
}

func (r *recordingHandler) OnKeyUp(key uint32)         { r.keys = append(r.keys, key) }
func (r *recordingHandler) OnDrag(dx, dy float64)      { r.drags = append(r.drags, [2]float64{dx, dy}) }
func (r *recordingHandler) OnScroll(delta float32)     { r.scrolls = append(r.scrolls, delta) }
func (r *recordingHandler) OnResize(width, height int) { r.sizes = append(r.sizes, [2]int{width, height}) }

// headless returns a window with no platform window behind it.
func headless(h InputHandler) *engineWindow {
	return &engineWindow{mu: &sync.Mutex{}, handler: h}
}

// ============================================================================
// Event routing
// ============================================================================

func TestDragOnlyWhileMiddleButtonHeld(t *testing.T) {
	rec := &recordingHandler{}
	w := headless(rec)

	w.cursorMoved(10, 10)
	w.middleButton(true, 10, 10)
	w.cursorMoved(15, 8)
	w.cursorMoved(15, 8)
	w.middleButton(false, 15, 8)
	w.cursorMoved(40, 40)

	if len(rec.drags) != 1 || rec.drags[0] != [2]float64{5, -2} {
		t.Errorf("drags = %v, want [[5 -2]]", rec.drags)
	}
}

func TestResizeUpdatesSize(t *testing.T) {
	rec := &recordingHandler{}
	w := headless(rec)
	w.resized(800, 600)

	if width, height := w.Size(); width != 800 || height != 600 {
		t.Errorf("Size = %dx%d", width, height)
	}
	if len(rec.sizes) != 1 {
		t.Errorf("handler saw %d resizes", len(rec.sizes))
	}
}

func TestNilHandlerDropsEvents(t *testing.T) {
	w := headless(nil)
	w.keyUp(265)
	w.scrolled(1)
	w.middleButton(true, 0, 0)
	w.cursorMoved(3, 3)
	w.resized(10, 10)

	rec := &recordingHandler{}
	w.SetInputHandler(rec)
	w.keyUp(264)
	w.scrolled(-1)
	if len(rec.keys) != 1 || rec.keys[0] != 264 || len(rec.scrolls) != 1 {
		t.Errorf("handler saw keys %v scrolls %v", rec.keys, rec.scrolls)
	}
}

func TestClosedWindowIsNotRunning(t *testing.T) {
	w := headless(nil)
	if w.IsRunning() || w.Poll() {
		t.Errorf("a window without a platform window reports running")
	}
	if w.SurfaceDescriptor() != nil {
		t.Errorf("expected nil surface descriptor")
	}
	if err := w.Close(); err == nil {
		t.Errorf("Close on an uncreated window must fail")
	}
}
