package camera

import (
	"math"
	"sync"

	"github.com/Carmen-Shannon/oxy-nano/common"
)

type cameraControllerImpl struct {
	mu *sync.Mutex

	position [3]float32
	target   [3]float32

	radius    float32
	azimuth   float32
	elevation float32

	minRadius    float32
	maxRadius    float32
	minElevation float32
	maxElevation float32

	orbitSpeed       float32
	mouseSensitivity float32
	zoomSpeed        float32
	panSpeed         float32
}

var _ CameraController = &cameraControllerImpl{}

// NewCameraController creates an orbit controller positioned at DefaultPose.
//
// Parameters:
//   - options: functional options to configure the controller
//
// Returns:
//   - CameraController: the newly created controller
func NewCameraController(options ...CameraControllerOption) CameraController {
	cc := &cameraControllerImpl{
		mu: &sync.Mutex{},

		minRadius:    20.0,
		maxRadius:    8000.0,
		minElevation: -float32(math.Pi/2 - 0.05),
		maxElevation: float32(math.Pi/2 - 0.05),

		orbitSpeed:       0.03,
		mouseSensitivity: 0.005,
		zoomSpeed:        15.0,
		panSpeed:         4.0,
	}
	cc.setPose(DefaultPose())

	for _, option := range options {
		option(cc)
	}

	cc.clamp()
	cc.updatePosition()
	return cc
}

// setPose derives the spherical coordinates of pose.Position around pose.Target.
// Caller must hold the mutex or own cc exclusively.
func (cc *cameraControllerImpl) setPose(pose Pose) {
	cc.target = pose.Target
	d := common.Sub3(pose.Position, pose.Target)
	cc.radius = common.Length3(d)
	if cc.radius == 0 {
		cc.azimuth, cc.elevation = 0, 0
		return
	}
	cc.elevation = float32(math.Asin(float64(d[1] / cc.radius)))
	cc.azimuth = float32(math.Atan2(float64(d[0]), float64(d[2])))
}

func (cc *cameraControllerImpl) clamp() {
	cc.radius = min(max(cc.radius, cc.minRadius), cc.maxRadius)
	cc.elevation = min(max(cc.elevation, cc.minElevation), cc.maxElevation)
}

// updatePosition recomputes the position from the pivot and spherical coordinates.
func (cc *cameraControllerImpl) updatePosition() {
	cosElev := float32(math.Cos(float64(cc.elevation)))
	sinElev := float32(math.Sin(float64(cc.elevation)))
	cosAzim := float32(math.Cos(float64(cc.azimuth)))
	sinAzim := float32(math.Sin(float64(cc.azimuth)))

	cc.position[0] = cc.target[0] + cc.radius*cosElev*sinAzim
	cc.position[1] = cc.target[1] + cc.radius*sinElev
	cc.position[2] = cc.target[2] + cc.radius*cosElev*cosAzim
}

// localAxes returns the right, up and forward axes matching the LookAt basis with +Y up.
// All three are zero when position and target coincide.
func (cc *cameraControllerImpl) localAxes() (right, up, forward [3]float32) {
	back := common.Sub3(cc.position, cc.target)
	if common.Length3(back) < 1e-8 {
		return
	}
	back = common.Normalize3(back)
	right = common.Cross3([3]float32{0, 1, 0}, back)
	if common.Length3(right) < 1e-8 {
		return [3]float32{}, [3]float32{}, [3]float32{}
	}
	right = common.Normalize3(right)
	up = common.Cross3(back, right)
	forward = [3]float32{-back[0], -back[1], -back[2]}
	return
}

// translate shifts both the pivot and the camera by axis * delta * panSpeed.
func (cc *cameraControllerImpl) translate(axis [3]float32, delta float32) {
	offset := delta * cc.panSpeed
	for i := range 3 {
		cc.target[i] += axis[i] * offset
		cc.position[i] += axis[i] * offset
	}
}

func (cc *cameraControllerImpl) Pose() Pose {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return Pose{Position: cc.position, Target: cc.target, Up: [3]float32{0, 1, 0}}
}

func (cc *cameraControllerImpl) SetPose(pose Pose) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.setPose(pose)
	cc.clamp()
	cc.updatePosition()
}

func (cc *cameraControllerImpl) Zoom(delta float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.radius -= delta * cc.zoomSpeed
	cc.clamp()
	cc.updatePosition()
}

func (cc *cameraControllerImpl) OrbitLeft() {
	cc.orbit(-1, 0)
}

func (cc *cameraControllerImpl) OrbitRight() {
	cc.orbit(1, 0)
}

func (cc *cameraControllerImpl) OrbitUp() {
	cc.orbit(0, 1)
}

func (cc *cameraControllerImpl) OrbitDown() {
	cc.orbit(0, -1)
}

func (cc *cameraControllerImpl) orbit(steps, elevSteps float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.azimuth += steps * cc.orbitSpeed
	cc.elevation += elevSteps * cc.orbitSpeed
	cc.clamp()
	cc.updatePosition()
}

func (cc *cameraControllerImpl) Drag(dx, dy float64) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.azimuth -= float32(dx) * cc.mouseSensitivity
	cc.elevation += float32(dy) * cc.mouseSensitivity
	cc.clamp()
	cc.updatePosition()
}

func (cc *cameraControllerImpl) Radius() float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.radius
}

func (cc *cameraControllerImpl) Azimuth() float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.azimuth
}

func (cc *cameraControllerImpl) Elevation() float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.elevation
}

func (cc *cameraControllerImpl) PanRight(delta float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	right, _, _ := cc.localAxes()
	cc.translate(right, delta)
}

func (cc *cameraControllerImpl) PanUp(delta float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	_, up, _ := cc.localAxes()
	cc.translate(up, delta)
}

func (cc *cameraControllerImpl) PanForward(delta float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	_, _, forward := cc.localAxes()
	cc.translate(forward, delta)
}
