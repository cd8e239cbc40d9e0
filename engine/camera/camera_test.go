package camera

import (
	"errors"
	"math"
	"testing"

	"github.com/Carmen-Shannon/oxy-nano/common"
)

func near3(a, b [3]float32, eps float32) bool {
	for i := range 3 {
		if float32(math.Abs(float64(a[i]-b[i]))) > eps {
			return false
		}
	}
	return true
}

// =============================================================================
// Camera
// =============================================================================

func TestDefaultCameraLooksAtTarget(t *testing.T) {
	cam := NewCamera()
	pose := cam.Pose()
	view := cam.ViewMatrix()

	v := common.TransformPoint(view[:], pose.Target)
	dist := common.Length3(common.Sub3(pose.Target, pose.Position))
	if math.Abs(float64(v[0])) > 1e-3 || math.Abs(float64(v[1])) > 1e-3 {
		t.Errorf("target in view space = %v, want on the -Z axis", v)
	}
	if math.Abs(float64(v[2]+dist)) > 1e-2 {
		t.Errorf("target view depth = %v, want %v", v[2], -dist)
	}

	vp := cam.ViewProjectionMatrix()
	c := common.TransformPoint(vp[:], pose.Target)
	if c[3] <= 0 {
		t.Fatalf("target clip w = %v, want > 0", c[3])
	}
	if z := c[2] / c[3]; z <= 0 || z >= 1 {
		t.Errorf("target NDC z = %v, want inside (0, 1)", z)
	}
}

func TestProjectionDepthRange(t *testing.T) {
	cam := NewCamera(WithClip(10, 1000))
	pose := cam.Pose()
	fwd := pose.Forward()
	vp := cam.ViewProjectionMatrix()

	tests := []struct {
		name     string
		distance float32
		want     float32
	}{
		{"near plane", 10, 0},
		{"far plane", 1000, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := [3]float32{
				pose.Position[0] + fwd[0]*tt.distance,
				pose.Position[1] + fwd[1]*tt.distance,
				pose.Position[2] + fwd[2]*tt.distance,
			}
			c := common.TransformPoint(vp[:], p)
			if got := c[2] / c[3]; math.Abs(float64(got-tt.want)) > 1e-3 {
				t.Errorf("NDC z = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCameraUpdateFollowsController(t *testing.T) {
	ctrl := NewCameraController()
	cam := NewCamera(WithController(ctrl))
	before := cam.Pose()

	ctrl.OrbitRight()
	if cam.Pose() != before {
		t.Fatal("camera pose changed before Update")
	}
	cam.Update()
	after := cam.Pose()
	if near3(after.Position, before.Position, 1e-3) {
		t.Error("camera did not move after orbiting the controller")
	}
	if !near3(after.Target, before.Target, 1e-3) {
		t.Errorf("orbit moved the target: %v -> %v", before.Target, after.Target)
	}
}

// =============================================================================
// Controller
// =============================================================================

func TestControllerReproducesPose(t *testing.T) {
	want := DefaultPose()
	ctrl := NewCameraController(WithControllerPose(want))
	got := ctrl.Pose()
	if !near3(got.Position, want.Position, 1e-2) {
		t.Errorf("Position = %v, want %v", got.Position, want.Position)
	}
	if !near3(got.Target, want.Target, 1e-6) {
		t.Errorf("Target = %v, want %v", got.Target, want.Target)
	}
}

func TestControllerZoomClampsRadius(t *testing.T) {
	ctrl := NewCameraController(WithRadiusBounds(100, 600), WithZoomSpeed(1))
	if r := ctrl.Radius(); r < 100 || r > 600 {
		t.Fatalf("initial radius %v outside bounds", r)
	}
	ctrl.Zoom(1e6)
	if r := ctrl.Radius(); r != 100 {
		t.Errorf("radius after zooming in = %v, want 100", r)
	}
	ctrl.Zoom(-1e6)
	if r := ctrl.Radius(); r != 600 {
		t.Errorf("radius after zooming out = %v, want 600", r)
	}
}

func TestControllerElevationClamp(t *testing.T) {
	ctrl := NewCameraController(WithElevationBounds(0, 0.5), WithOrbitSpeed(0.2))
	for range 10 {
		ctrl.OrbitUp()
	}
	if e := ctrl.Elevation(); e != 0.5 {
		t.Errorf("elevation = %v, want 0.5", e)
	}
	for range 10 {
		ctrl.OrbitDown()
	}
	if e := ctrl.Elevation(); e != 0 {
		t.Errorf("elevation = %v, want 0", e)
	}
}

func TestControllerPanKeepsOffset(t *testing.T) {
	ctrl := NewCameraController(WithPanSpeed(1))
	before := ctrl.Pose()
	offset := common.Sub3(before.Position, before.Target)

	ctrl.PanRight(10)
	ctrl.PanUp(-5)
	ctrl.PanForward(3)

	after := ctrl.Pose()
	if !near3(common.Sub3(after.Position, after.Target), offset, 1e-2) {
		t.Errorf("pan changed the orbit offset")
	}
	if near3(after.Target, before.Target, 1e-3) {
		t.Errorf("pan did not move the target")
	}
}

// =============================================================================
// Script
// =============================================================================

const circleScript = `
frames = 4
function pose(frame, count)
  local x, y, z = orbit(100, 360 * frame / count, 0)
  return { position = {x, y + 50, z}, target = {0, 50, 0} }
end
`

func TestScriptPoses(t *testing.T) {
	s, err := NewScript("circle", circleScript)
	if err != nil {
		t.Fatalf("NewScript: %v", err)
	}
	defer s.Close()

	if n := s.Frames(10); n != 4 {
		t.Errorf("Frames = %d, want 4", n)
	}

	want := [][3]float32{{0, 50, 100}, {100, 50, 0}, {0, 50, -100}, {-100, 50, 0}}
	for frame, w := range want {
		p, err := s.PoseAt(frame, 4)
		if err != nil {
			t.Fatalf("PoseAt(%d): %v", frame, err)
		}
		if !near3(p.Position, w, 1e-3) {
			t.Errorf("frame %d position = %v, want %v", frame, p.Position, w)
		}
		if p.Up != [3]float32{0, 1, 0} {
			t.Errorf("frame %d up = %v, want default +Y", frame, p.Up)
		}
	}
}

func TestScriptFramesFallback(t *testing.T) {
	s, err := NewScript("static", `function pose() return { position = {1, 2, 3}, target = {0, 0, 0}, up = {0, 0, 1} } end`)
	if err != nil {
		t.Fatalf("NewScript: %v", err)
	}
	defer s.Close()
	if n := s.Frames(7); n != 7 {
		t.Errorf("Frames = %d, want fallback 7", n)
	}
	p, err := s.PoseAt(0, 1)
	if err != nil {
		t.Fatalf("PoseAt: %v", err)
	}
	if p.Up != [3]float32{0, 0, 1} {
		t.Errorf("up = %v, want script value", p.Up)
	}
}

func TestScriptErrors(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		atLoad  bool
		badForm bool
	}{
		{"syntax", "function pose(", true, false},
		{"no pose", "frames = 3", true, true},
		{"not a table", "function pose() return 5 end", false, true},
		{"missing target", "function pose() return { position = {1, 2, 3} } end", false, true},
		{"short vector", "function pose() return { position = {1, 2}, target = {0, 0, 0} } end", false, true},
		{"runtime error", "function pose() error('boom') end", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewScript(tt.name, tt.source)
			if !tt.atLoad {
				if err != nil {
					t.Fatalf("NewScript: %v", err)
				}
				defer s.Close()
				_, err = s.PoseAt(0, 1)
			}
			if err == nil {
				t.Fatal("expected an error")
			}
			if got := errors.Is(err, ErrBadScript); got != tt.badForm {
				t.Errorf("errors.Is(err, ErrBadScript) = %v, want %v (err: %v)", got, tt.badForm, err)
			}
		})
	}
}
