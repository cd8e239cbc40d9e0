package scene

import (
	"github.com/Carmen-Shannon/oxy-nano/common"
	"github.com/Carmen-Shannon/oxy-nano/engine/camera"
)

// frameParams are the host-side inputs of one FrameConstants block besides the camera.
type frameParams struct {
	width, height  uint32
	modelRotation  float32
	mipOverride    uint32
	mode           VisualizeMode
	software       bool
	frameIndex     uint32
	errorThreshold float32
	refSW, refHW   float32
}

// buildFrameConstants derives the uniform block of a frame from the camera and the viewport.
// The model matrix is a rotation about +Y; every device-side test runs in model space, so the
// camera position and the frustum planes are carried into it here.
func buildFrameConstants(cam camera.Camera, p frameParams) FrameConstants {
	var fc FrameConstants

	fc.Projection = cam.ProjectionMatrix()
	fc.View = cam.ViewMatrix()
	fc.ViewProj = cam.ViewProjectionMatrix()
	common.RotationEuler(fc.Model[:], 0, p.modelRotation, 0)
	common.Mul4(fc.MVP[:], fc.ViewProj[:], fc.Model[:])

	pose := cam.Pose()
	forward := pose.Forward()
	lodScale := 0.5 * fc.Projection[5] * float32(p.height)

	fc.CameraPositionWS = [4]float32{pose.Position[0], pose.Position[1], pose.Position[2], lodScale / p.refSW}
	fc.CameraViewDirectionWS = [4]float32{forward[0], forward[1], forward[2], lodScale / p.refHW}

	var inverseModel [16]float32
	if !common.Invert4(inverseModel[:], fc.Model[:]) {
		common.Identity(inverseModel[:])
	}
	fc.CameraPositionOS = common.TransformPoint(inverseModel[:], pose.Position)

	var software uint32
	if p.software {
		software = 1
	}
	fc.Misc0 = [4]uint32{p.mipOverride, uint32(p.mode), software, p.frameIndex}
	fc.Viewport = [4]float32{float32(p.width), float32(p.height), 1 / float32(p.width), 1 / float32(p.height)}
	fc.DepthParams = [4]float32{cam.Near(), cam.Far(), p.errorThreshold, p.refHW}

	frustum := common.ExtractFrustumFromMatrix(fc.MVP[:])
	fc.Frustum = frustum.PlanesAsVec4()
	return fc
}
