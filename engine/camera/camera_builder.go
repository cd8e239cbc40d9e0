package camera

type CameraBuilderOption func(*cameraImpl)

// WithPose sets the camera's initial pose.
//
// Parameters:
//   - pose: position, target and up vector
//
// Returns:
//   - CameraBuilderOption: a function that sets the camera's pose
func WithPose(pose Pose) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.pose = pose
	}
}

// WithFov sets the camera's vertical field of view in radians.
//
// Parameters:
//   - fov: field of view in radians
//
// Returns:
//   - CameraBuilderOption: a function that sets the camera's field of view
func WithFov(fov float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.fov = fov
	}
}

// WithAspect sets the camera's aspect ratio (width / height).
func WithAspect(aspect float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.aspect = aspect
	}
}

// WithClip sets the near and far clipping plane distances.
//
// Parameters:
//   - near: near plane distance
//   - far: far plane distance
//
// Returns:
//   - CameraBuilderOption: a function that sets the clip range
func WithClip(near, far float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.near = near
		c.far = far
	}
}

// WithController attaches a controller to the camera. The controller is moved to the camera's
// pose once every option has been applied.
//
// Parameters:
//   - ctrl: the controller to attach
//
// Returns:
//   - CameraBuilderOption: functional option to set the controller
func WithController(ctrl CameraController) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.controller = ctrl
	}
}
