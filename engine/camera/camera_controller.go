package camera

// CameraController owns the viewer's interactive pose. It combines orbiting around a pivot
// with panning along the camera's local axes; the Camera reads the pose back on Update.
type CameraController interface {
	orbitCameraController
	planarCameraController

	// Pose returns the controller's position and target. Up is always +Y.
	//
	// Returns:
	//   - Pose: the current pose
	Pose() Pose

	// SetPose moves the pivot to pose.Target and derives radius, azimuth and elevation from
	// pose.Position, clamped to the controller's bounds.
	//
	// Parameters:
	//   - pose: the pose to adopt
	SetPose(pose Pose)

	// Zoom moves the camera toward the pivot. Positive delta zooms in.
	//
	// Parameters:
	//   - delta: zoom amount, scaled by the zoom speed
	Zoom(delta float32)
}

// orbitCameraController rotates the camera around its pivot in spherical coordinates.
type orbitCameraController interface {
	// OrbitLeft rotates the camera left around the pivot by one orbit step.
	OrbitLeft()

	// OrbitRight rotates the camera right around the pivot by one orbit step.
	OrbitRight()

	// OrbitUp raises the camera by one orbit step, clamped to the elevation bounds.
	OrbitUp()

	// OrbitDown lowers the camera by one orbit step, clamped to the elevation bounds.
	OrbitDown()

	// Drag orbits by a mouse movement in pixels, scaled by the mouse sensitivity.
	//
	// Parameters:
	//   - dx: horizontal cursor movement
	//   - dy: vertical cursor movement
	Drag(dx, dy float64)

	// Radius returns the distance from the pivot.
	Radius() float32

	// Azimuth returns the horizontal angle around +Y in radians, 0 on the +Z axis.
	Azimuth() float32

	// Elevation returns the angle above the horizontal plane in radians.
	Elevation() float32
}

// planarCameraController translates the camera and its pivot together.
type planarCameraController interface {
	// PanRight moves along the local right axis. Negative delta moves left.
	PanRight(delta float32)

	// PanUp moves along the local up axis. Negative delta moves down.
	PanUp(delta float32)

	// PanForward moves along the view direction. Negative delta moves back.
	PanForward(delta float32)
}
