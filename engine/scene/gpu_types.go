package scene

import (
	"math"
	"unsafe"

	"github.com/Carmen-Shannon/oxy-nano/common"
	"github.com/Carmen-Shannon/oxy-nano/engine/asset"
	"github.com/Carmen-Shannon/oxy-nano/engine/renderer/resource"
)

// FrameConstants is the uniform block every stage reads. It is rewritten by the host before each
// submission and never written on the device.
// Size: 512 bytes (std140 / std430 aligned, all members 16-byte multiples).
type FrameConstants struct {
	Projection            [16]float32   // offset   0
	View                  [16]float32   // offset  64
	Model                 [16]float32   // offset 128
	ViewProj              [16]float32   // offset 192
	MVP                   [16]float32   // offset 256
	CameraPositionWS      [4]float32    // offset 320: w = LOD scale against the software reference
	CameraViewDirectionWS [4]float32    // offset 336: w = LOD scale against the hardware reference
	CameraPositionOS      [4]float32    // offset 352: camera position in model space
	Misc0                 [4]uint32     // offset 368: mip override, visualize mode, software raster, frame index
	Viewport              [4]float32    // offset 384: width, height, 1/width, 1/height
	DepthParams           [4]float32    // offset 400: near, far, error threshold, hw raster min pixels
	Frustum               [6][4]float32 // offset 416: model-space planes extracted from MVP
}

// Size returns the size of the FrameConstants struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (512)
func (f *FrameConstants) Size() int {
	return int(unsafe.Sizeof(*f))
}

// Marshal copies the block into a byte slice ready for upload.
func (f *FrameConstants) Marshal() []byte {
	return append([]byte(nil), common.StructToBytes(f)...)
}

func (f *FrameConstants) lodScale() float32   { return f.CameraPositionWS[3] }
func (f *FrameConstants) lodScaleHW() float32 { return f.CameraViewDirectionWS[3] }
func (f *FrameConstants) mipOverride() uint32 { return f.Misc0[0] }
func (f *FrameConstants) width() uint32       { return uint32(f.Viewport[0]) }
func (f *FrameConstants) height() uint32      { return uint32(f.Viewport[1]) }
func (f *FrameConstants) near() float32       { return f.DepthParams[0] }
func (f *FrameConstants) far() float32        { return f.DepthParams[1] }

func (f *FrameConstants) cameraOS() [3]float32 {
	return [3]float32{f.CameraPositionOS[0], f.CameraPositionOS[1], f.CameraPositionOS[2]}
}

// errorThreshold is the projected error below which descent stops, widened by the mip override.
func (f *FrameConstants) errorThreshold() float32 {
	return f.DepthParams[2] * float32(math.Ldexp(1, int(f.mipOverride())))
}

// loadFrameConstants decodes the uniform block from a bound buffer.
func loadFrameConstants(buf resource.Buffer) FrameConstants {
	var fc FrameConstants
	copy(common.StructToBytes(&fc), buf.Bytes())
	return fc
}

// VisualizeMode selects what the resolve stage draws.
type VisualizeMode uint32

const (
	// VisualizeClusters colors every cluster with a hashed color, shaded by depth.
	VisualizeClusters VisualizeMode = iota
	// VisualizeTriangles colors every triangle with a hashed color, shaded by depth.
	VisualizeTriangles
	// VisualizeDepth draws log-scaled linear depth.
	VisualizeDepth
	// VisualizeShaded draws flat headlight shading from the face normal.
	VisualizeShaded

	visualizeModeCount
)

func (m VisualizeMode) String() string {
	switch m {
	case VisualizeClusters:
		return "clusters"
	case VisualizeTriangles:
		return "triangles"
	case VisualizeDepth:
		return "depth"
	case VisualizeShaded:
		return "shaded"
	default:
		return "unknown"
	}
}

// ParseVisualizeMode maps a mode name back to its value.
func ParseVisualizeMode(name string) (VisualizeMode, bool) {
	for m := VisualizeMode(0); m < visualizeModeCount; m++ {
		if m.String() == name {
			return m, true
		}
	}
	return 0, false
}

// Visibility cell packing: depth in the high word so an unsigned 64-bit minimum picks the nearest
// surface, then the cluster and triangle ids.
const (
	// VisEmpty is the sentinel of a cell no triangle covered.
	VisEmpty uint64 = 0xFFFF_FFFF_FFFF_FFFF

	triangleBits = 7
	triangleMask = 1<<triangleBits - 1
	clusterMask  = asset.MaxClusters - 1
)

// PackVisCell encodes a visibility cell. depth must be in [0, 1]; for non-negative floats the
// IEEE bit pattern orders like the value.
func PackVisCell(depth float32, cluster, triangle uint32) uint64 {
	return uint64(math.Float32bits(depth))<<32 | uint64(visPayload(cluster, triangle))
}

// UnpackVisCell decodes a non-empty visibility cell.
func UnpackVisCell(cell uint64) (depth float32, cluster, triangle uint32) {
	payload := uint32(cell)
	return math.Float32frombits(uint32(cell >> 32)), payload >> triangleBits & clusterMask, payload & triangleMask
}

func visPayload(cluster, triangle uint32) uint32 {
	return (cluster&clusterMask)<<triangleBits | triangle&triangleMask
}

// Queue and batch buffer layout.
const (
	queueHeaderSize     = 32
	queueEntrySize      = 8
	queueCountOffset    = 0
	queueGroupsOffset   = 4
	queueOverflowOffset = 16
)

// Visible cluster list ("SWHW") buffer layout. Hardware entries fill the list area from the front,
// software entries from the back.
const (
	listHeaderSize      = 64
	listDrawArgsOffset  = 0
	listSWArgsOffset    = 16
	listHWCountOffset   = 32
	listSWCountOffset   = 36
	listOverflowOffset  = 40
	listReservedOffset  = 44
	listEntrySize       = 4
	hardwareVertexCount = asset.MaxClusterTriangles * 3
)

// Echo buffer layout: per-round counters, partition counters, then the optional visit log.
const (
	maxCullRounds = 32

	echoRoundStride          = 32
	echoRoundVisited         = 0
	echoRoundCulled          = 4
	echoRoundAccepted        = 8
	echoRoundEmittedClusters = 12
	echoRoundPushed          = 16
	echoRoundClamped         = 20
	echoRoundQueueOverflow   = 24
	echoRoundBatchOverflow   = 28

	echoPartitionBase  = 1024
	echoPartCulled     = echoPartitionBase + 0
	echoPartHW         = echoPartitionBase + 4
	echoPartSW         = echoPartitionBase + 8
	echoPartOverflow   = echoPartitionBase + 12
	echoCoveredPixels  = echoPartitionBase + 16
	echoPartHWEstimate = echoPartitionBase + 20

	echoVisitCount    = 2048
	echoVisitOverflow = 2052
	echoVisitEntries  = 2056
	echoVisitStride   = 8

	// echoResetWords covers every counter Init clears.
	echoResetWords = echoVisitEntries / 8
)

// Batch entry flags.
const (
	batchFlagHardwareEstimate = 1 << 0
	batchRoundShift           = 8
)

// Workgroup sizes, matching the pass descriptors.
const (
	cullGroupSize      = 64
	partitionGroupSize = 64
	tileSize           = 8
)

// Background is the color of cells no triangle covered.
var Background = [4]float32{0.05, 0.05, 0.08, 1}
