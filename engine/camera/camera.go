package camera

import (
	"math"
	"sync"

	"github.com/Carmen-Shannon/oxy-nano/common"
)

// Pose places a camera in world space.
type Pose struct {
	Position [3]float32
	Target   [3]float32
	Up       [3]float32
}

// DefaultPose returns the viewer's start pose, looking down at the model from one corner.
func DefaultPose() Pose {
	return Pose{
		Position: [3]float32{-330, 330, -330},
		Target:   [3]float32{0, 80, 0},
		Up:       [3]float32{0, 1, 0},
	}
}

// Forward returns the unit view direction of the pose.
func (p Pose) Forward() [3]float32 {
	return common.Normalize3(common.Sub3(p.Target, p.Position))
}

type cameraImpl struct {
	mu *sync.Mutex

	pose Pose

	fov    float32
	aspect float32
	near   float32
	far    float32

	viewMatrix           [16]float32
	projectionMatrix     [16]float32
	viewProjectionMatrix [16]float32

	controller CameraController
}

// Camera holds a pose and perspective settings and keeps the view/projection matrices in sync
// with them. When a CameraController is attached, Update pulls the pose from it.
type Camera interface {
	// Pose returns the current camera pose.
	//
	// Returns:
	//   - Pose: position, target and up vector
	Pose() Pose

	// SetPose places the camera and recomputes matrices. An attached controller is moved too.
	//
	// Parameters:
	//   - pose: the new pose
	SetPose(pose Pose)

	// Fov returns the vertical field of view in radians.
	Fov() float32

	// Aspect returns the aspect ratio (width / height).
	Aspect() float32

	// Near returns the near clipping plane distance.
	Near() float32

	// Far returns the far clipping plane distance.
	Far() float32

	// SetFov sets the vertical field of view in radians and recomputes matrices.
	//
	// Parameters:
	//   - fov: field of view in radians
	SetFov(fov float32)

	// SetAspect sets the aspect ratio (width / height) and recomputes matrices.
	//
	// Parameters:
	//   - aspect: the aspect ratio
	SetAspect(aspect float32)

	// SetClip sets the near and far plane distances and recomputes matrices.
	//
	// Parameters:
	//   - near: near plane distance, greater than zero
	//   - far: far plane distance, greater than near
	SetClip(near, far float32)

	// ViewMatrix returns the world-to-view matrix (column-major).
	ViewMatrix() [16]float32

	// ProjectionMatrix returns the view-to-clip matrix (column-major, depth in [0, 1]).
	ProjectionMatrix() [16]float32

	// ViewProjectionMatrix returns ProjectionMatrix * ViewMatrix (column-major).
	ViewProjectionMatrix() [16]float32

	// Controller returns the attached CameraController, or nil.
	Controller() CameraController

	// SetController attaches a CameraController and moves it to the current pose.
	//
	// Parameters:
	//   - ctrl: the controller to attach
	SetController(ctrl CameraController)

	// Update reads the pose from the attached controller and recomputes matrices.
	// Does nothing when no controller is attached.
	Update()
}

var _ Camera = &cameraImpl{}

// NewCamera creates a Camera at DefaultPose with a 90 degree field of view and a
// 10..10000 clip range.
//
// Parameters:
//   - options: functional options to configure the camera
//
// Returns:
//   - Camera: the newly created camera
func NewCamera(options ...CameraBuilderOption) Camera {
	c := &cameraImpl{
		mu:     &sync.Mutex{},
		pose:   DefaultPose(),
		fov:    90.0 * (math.Pi / 180.0),
		aspect: 1.0,
		near:   10.0,
		far:    10000.0,
	}
	for _, option := range options {
		option(c)
	}
	if c.controller != nil {
		c.controller.SetPose(c.pose)
	}
	c.updateMatrices()
	return c
}

func (c *cameraImpl) Pose() Pose {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pose
}

func (c *cameraImpl) SetPose(pose Pose) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pose = pose
	if c.controller != nil {
		c.controller.SetPose(pose)
	}
	c.updateMatrices()
}

func (c *cameraImpl) Fov() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fov
}

func (c *cameraImpl) Aspect() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aspect
}

func (c *cameraImpl) Near() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.near
}

func (c *cameraImpl) Far() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.far
}

func (c *cameraImpl) SetFov(fov float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fov = fov
	c.updateMatrices()
}

func (c *cameraImpl) SetAspect(aspect float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.aspect = aspect
	c.updateMatrices()
}

func (c *cameraImpl) SetClip(near, far float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.near = near
	c.far = far
	c.updateMatrices()
}

func (c *cameraImpl) ViewMatrix() [16]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewMatrix
}

func (c *cameraImpl) ProjectionMatrix() [16]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.projectionMatrix
}

func (c *cameraImpl) ViewProjectionMatrix() [16]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewProjectionMatrix
}

func (c *cameraImpl) Controller() CameraController {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.controller
}

func (c *cameraImpl) SetController(ctrl CameraController) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.controller = ctrl
	if ctrl != nil {
		ctrl.SetPose(c.pose)
	}
}

func (c *cameraImpl) Update() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.controller == nil {
		return
	}
	up := c.pose.Up
	c.pose = c.controller.Pose()
	c.pose.Up = up
	c.updateMatrices()
}

// updateMatrices recalculates view, projection and view-projection from the pose.
// Caller must hold the mutex.
func (c *cameraImpl) updateMatrices() {
	p := c.pose
	common.LookAt(c.viewMatrix[:],
		p.Position[0], p.Position[1], p.Position[2],
		p.Target[0], p.Target[1], p.Target[2],
		p.Up[0], p.Up[1], p.Up[2],
	)
	common.Perspective(c.projectionMatrix[:], c.fov, c.aspect, c.near, c.far)
	common.Mul4(c.viewProjectionMatrix[:], c.projectionMatrix[:], c.viewMatrix[:])
}
