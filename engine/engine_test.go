package engine

import (
	"errors"
	"strings"
	"testing"

	"github.com/Carmen-Shannon/oxy-nano/common"
	"github.com/Carmen-Shannon/oxy-nano/engine/asset"
	"github.com/Carmen-Shannon/oxy-nano/engine/camera"
	"github.com/Carmen-Shannon/oxy-nano/engine/renderer"
	"github.com/Carmen-Shannon/oxy-nano/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-nano/engine/scene"
	"github.com/Carmen-Shannon/oxy-nano/engine/window"
	"github.com/cogentcore/webgpu/wgpu"
)

// ============================================================================
// Fakes
// ============================================================================

// fakeWindow stays open for a fixed number of polls.
type fakeWindow struct {
	polls   int
	handler window.InputHandler
	titles  []string
	w, h    int
}

func (f *fakeWindow) SetInputHandler(h window.InputHandler)       { f.handler = h }
func (f *fakeWindow) SetTitle(title string)                       { f.titles = append(f.titles, title) }
func (f *fakeWindow) SurfaceDescriptor() *wgpu.SurfaceDescriptor { return nil }
func (f *fakeWindow) IsRunning() bool                             { return f.polls > 0 }
func (f *fakeWindow) Size() (int, int)                            { return f.w, f.h }
func (f *fakeWindow) Close() error                                { f.polls = 0; return nil }

func (f *fakeWindow) Poll() bool {
	if f.polls <= 0 {
		return false
	}
	f.polls--
	return true
}

type fakePresenter struct {
	presented int
	resizes   [][2]int
	released  bool
	fail      error
}

func (p *fakePresenter) Present(img resource.Image) error {
	if p.fail != nil {
		return p.fail
	}
	if img != nil {
		p.presented++
	}
	return nil
}
func (p *fakePresenter) Resize(width, height int) { p.resizes = append(p.resizes, [2]int{width, height}) }
func (p *fakePresenter) Release()                 { p.released = true }

// quadStore is one 2-triangle cluster at the origin under a single root.
func quadStore(t *testing.T) *asset.Store {
	t.Helper()
	s, err := asset.NewStoreFromData(
		&asset.BVH{Root: 0, Nodes: []asset.BVHNode{{Extent: [3]float32{20, 20, 0}, FirstCluster: 0, ClusterCount: 1}}},
		&asset.Mesh{
			Clusters: []asset.Cluster{{Extent: [3]float32{20, 20, 0}, TriangleCount: 2, VertexCount: 4}},
			Vertices: [][3]float32{{-20, -20, 0}, {20, -20, 0}, {20, 20, 0}, {-20, 20, 0}},
			Indices:  []uint32{0, 1, 2, 0, 2, 3},
		},
	)
	if err != nil {
		t.Fatalf("NewStoreFromData: %v", err)
	}
	return s
}

func newTestEngine(t *testing.T, win *fakeWindow, pres *fakePresenter, options ...EngineBuilderOption) Engine {
	t.Helper()
	r, err := renderer.NewRenderer(renderer.BackendTypeSoftware)
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	t.Cleanup(r.Release)

	cam := camera.NewCamera(camera.WithPose(camera.Pose{
		Position: [3]float32{0, 0, 100},
		Up:       [3]float32{0, 1, 0},
	}), camera.WithClip(1, 1000))
	s, err := scene.NewScene(r, quadStore(t), scene.WithSize(48, 48), scene.WithCamera(cam), scene.WithModelRotation(0))
	if err != nil {
		t.Fatalf("NewScene: %v", err)
	}
	t.Cleanup(s.Release)

	base := []EngineBuilderOption{WithWindow(win), WithPresenter(pres)}
	e, err := NewEngine(s, append(base, options...)...)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

// ============================================================================
// Loop
// ============================================================================

func TestRunPresentsEveryFrame(t *testing.T) {
	win := &fakeWindow{polls: 100, w: 48, h: 48}
	pres := &fakePresenter{}
	var seen []uint32
	e := newTestEngine(t, win, pres,
		WithMaxFrames(3),
		WithFrameCallback(func(stats scene.FrameStats) { seen = append(seen, stats.Frame) }),
	)

	if err := e.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if pres.presented != 3 {
		t.Errorf("presented %d frames, want 3", pres.presented)
	}
	if len(seen) != 3 || seen[0] != 0 || seen[2] != 2 {
		t.Errorf("frame callback saw %v", seen)
	}
	if got := e.Profiler().Summary().Frames; got != 3 {
		t.Errorf("profiler recorded %d frames", got)
	}
	if len(win.titles) != 1 || !strings.Contains(win.titles[0], "mip 0") {
		t.Errorf("titles = %v", win.titles)
	}
}

func TestRunStopsWhenWindowCloses(t *testing.T) {
	win := &fakeWindow{polls: 2, w: 48, h: 48}
	pres := &fakePresenter{}
	e := newTestEngine(t, win, pres)

	if err := e.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if pres.presented != 2 {
		t.Errorf("presented %d frames, want 2", pres.presented)
	}
}

func TestQuitBeforeRun(t *testing.T) {
	win := &fakeWindow{polls: 10, w: 48, h: 48}
	pres := &fakePresenter{}
	e := newTestEngine(t, win, pres)
	e.Quit()
	e.Quit()

	if err := e.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if pres.presented != 0 {
		t.Errorf("presented %d frames after Quit", pres.presented)
	}
}

func TestPresentErrorsDoNotStopTheLoop(t *testing.T) {
	win := &fakeWindow{polls: 10, w: 48, h: 48}
	pres := &fakePresenter{fail: errors.New("surface lost")}
	e := newTestEngine(t, win, pres, WithMaxFrames(2))

	if err := e.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := e.Profiler().Summary().Frames; got != 2 {
		t.Errorf("rendered %d frames, want 2", got)
	}
}

// ============================================================================
// Input
// ============================================================================

func TestKeyUpCyclesMipAndRetitles(t *testing.T) {
	win := &fakeWindow{polls: 10, w: 48, h: 48}
	pres := &fakePresenter{}
	e := newTestEngine(t, win, pres, WithMaxFrames(1))

	win.handler.OnKeyUp(common.KeyUp)
	win.handler.OnKeyUp(common.KeyUp)
	if got := e.Scene().MipOverride(); got != 2 {
		t.Errorf("MipOverride = %d, want 2", got)
	}
	win.handler.OnKeyUp(common.KeyDown)
	if err := e.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	last := win.titles[len(win.titles)-1]
	if !strings.Contains(last, "mip 1") {
		t.Errorf("title %q does not show mip 1", last)
	}
}

func TestResizeAppliedBetweenFrames(t *testing.T) {
	win := &fakeWindow{polls: 10, w: 48, h: 48}
	pres := &fakePresenter{}
	e := newTestEngine(t, win, pres, WithMaxFrames(1))

	win.handler.OnResize(32, 16)
	if w, h := e.Scene().Size(); w != 48 || h != 48 {
		t.Fatalf("scene resized before the frame: %dx%d", w, h)
	}
	if err := e.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if w, h := e.Scene().Size(); w != 32 || h != 16 {
		t.Errorf("scene size = %dx%d, want 32x16", w, h)
	}
	if img := e.Scene().VisualizationImage(); img.Width() != 32 || img.Height() != 16 {
		t.Errorf("image size = %dx%d", img.Width(), img.Height())
	}
	if n := len(pres.resizes); n == 0 || pres.resizes[n-1] != [2]int{32, 16} {
		t.Errorf("presenter resizes = %v", pres.resizes)
	}
}

func TestMinimizedWindowKeepsSize(t *testing.T) {
	win := &fakeWindow{polls: 10, w: 48, h: 48}
	pres := &fakePresenter{}
	e := newTestEngine(t, win, pres, WithMaxFrames(1))

	win.handler.OnResize(0, 0)
	if err := e.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if w, h := e.Scene().Size(); w != 48 || h != 48 {
		t.Errorf("scene size = %dx%d after a zero resize", w, h)
	}
}

func TestDragOrbitsCamera(t *testing.T) {
	win := &fakeWindow{polls: 10, w: 48, h: 48}
	pres := &fakePresenter{}
	e := newTestEngine(t, win, pres, WithMaxFrames(1))

	before := e.Scene().Camera().Pose().Position
	win.handler.OnDrag(120, 0)
	if err := e.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	after := e.Scene().Camera().Pose().Position
	if before == after {
		t.Errorf("camera did not move: %v", after)
	}
}

func TestReleaseFreesPresenter(t *testing.T) {
	win := &fakeWindow{polls: 1, w: 48, h: 48}
	pres := &fakePresenter{}
	e := newTestEngine(t, win, pres)
	e.Release()
	if !pres.released || win.IsRunning() {
		t.Errorf("released %v, window running %v", pres.released, win.IsRunning())
	}
}
