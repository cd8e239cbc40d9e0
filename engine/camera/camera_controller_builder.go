package camera

// CameraControllerOption is a functional option for configuring a CameraController.
type CameraControllerOption func(*cameraControllerImpl)

// WithControllerPose places the controller so it reproduces pose.
//
// Parameters:
//   - pose: the pose to start from
//
// Returns:
//   - CameraControllerOption: functional option to set the start pose
func WithControllerPose(pose Pose) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.setPose(pose)
	}
}

// WithRadiusBounds sets the minimum and maximum distance from the pivot.
//
// Parameters:
//   - min: closest zoom distance
//   - max: farthest zoom distance
//
// Returns:
//   - CameraControllerOption: functional option to set radius bounds
func WithRadiusBounds(min, max float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.minRadius = min
		cc.maxRadius = max
	}
}

// WithElevationBounds sets the lowest and highest elevation in radians.
func WithElevationBounds(min, max float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.minElevation = min
		cc.maxElevation = max
	}
}

// WithOrbitSpeed sets the keyboard orbit step in radians.
func WithOrbitSpeed(speed float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.orbitSpeed = speed
	}
}

// WithMouseSensitivity sets the radians of orbit per pixel of mouse drag.
func WithMouseSensitivity(sensitivity float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.mouseSensitivity = sensitivity
	}
}

// WithZoomSpeed sets the world units moved per unit of scroll.
func WithZoomSpeed(speed float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.zoomSpeed = speed
	}
}

// WithPanSpeed sets the world units moved per unit of pan input.
func WithPanSpeed(speed float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.panSpeed = speed
	}
}
