package scene

import (
	"math"

	"github.com/Carmen-Shannon/oxy-nano/common"
	"github.com/Carmen-Shannon/oxy-nano/engine/asset"
	"github.com/Carmen-Shannon/oxy-nano/engine/renderer"
)

// visualizeProgram decodes one 8x8 tile of the visibility buffer into color texels and counts
// the covered cells.
func visualizeProgram(b renderer.Bindings) renderer.WorkgroupFunc {
	vis := b.Buffer(0)
	color := b.Image(1)
	fc := loadFrameConstants(b.Buffer(2))
	mesh := b.Buffer(3).Bytes()
	echo := b.Buffer(4)

	layout := asset.ParseMeshLayout(mesh)
	mode := VisualizeMode(fc.Misc0[1])
	width, height := fc.width(), fc.height()
	depth := newDepthShade(fc.near(), fc.far())
	camera := fc.cameraOS()

	return func(g [3]uint32) {
		var covered uint32
		x0, y0 := g[0]*tileSize, g[1]*tileSize
		for y := y0; y < min(y0+tileSize, height); y++ {
			for x := x0; x < min(x0+tileSize, width); x++ {
				cell := vis.LoadU64(8 * (uint64(y)*uint64(width) + uint64(x)))
				if cell == VisEmpty {
					color.Store(x, y, Background)
					continue
				}
				covered++

				d, ci, tri := UnpackVisCell(cell)
				var rgb [3]float32
				switch mode {
				case VisualizeTriangles:
					rgb = scale3(hashColor(ci*131+tri), depth.shade(d))
				case VisualizeDepth:
					s := depth.shade(d)
					rgb = [3]float32{s, s, s}
				case VisualizeShaded:
					p := layout.Triangle(mesh, asset.ClusterAt(mesh, ci), tri)
					s := headlight(p, camera)
					rgb = [3]float32{s, s, s}
				default:
					rgb = scale3(hashColor(ci), depth.shade(d))
				}
				color.Store(x, y, [4]float32{rgb[0], rgb[1], rgb[2], 1})
			}
		}
		if covered != 0 {
			echo.AddU32(echoCoveredPixels, covered)
		}
	}
}

// depthShade turns NDC depth back into view distance and maps it onto a log scale between the
// clip planes: 1 at the near plane, 0.2 at the far plane.
type depthShade struct {
	a, b, near, logRange float32
}

func newDepthShade(near, far float32) depthShade {
	return depthShade{
		a:        far / (near - far),
		b:        near * far / (near - far),
		near:     near,
		logRange: float32(math.Log(float64(far / near))),
	}
}

func (s depthShade) shade(d float32) float32 {
	linear := s.b / (d + s.a)
	t := float32(math.Log(float64(linear/s.near))) / s.logRange
	return 1 - 0.8*common.Clamp01(t)
}

// hashColor maps an id onto a stable color with every channel in [0.2, 1].
func hashColor(id uint32) [3]float32 {
	h := id
	h ^= h >> 16
	h *= 0x85ebca6b
	h ^= h >> 13
	h *= 0xc2b2ae35
	h ^= h >> 16
	return [3]float32{
		0.2 + 0.8*float32(h&0xff)/255,
		0.2 + 0.8*float32(h>>8&0xff)/255,
		0.2 + 0.8*float32(h>>16&0xff)/255,
	}
}

func scale3(v [3]float32, s float32) [3]float32 {
	return [3]float32{v[0] * s, v[1] * s, v[2] * s}
}

// headlight shades a face by the angle between its normal and the direction to the camera.
func headlight(p [3][3]float32, camera [3]float32) float32 {
	n := common.Normalize3(common.Cross3(common.Sub3(p[1], p[0]), common.Sub3(p[2], p[0])))
	centroid := [3]float32{
		(p[0][0] + p[1][0] + p[2][0]) / 3,
		(p[0][1] + p[1][1] + p[2][1]) / 3,
		(p[0][2] + p[1][2] + p[2][2]) / 3,
	}
	v := common.Normalize3(common.Sub3(camera, centroid))
	i := float32(math.Abs(float64(common.Dot3(n, v))))
	return 0.15 + 0.85*i
}

// recordResolve records the visualization pass.
func recordResolve(r renderer.Renderer, f *frameContext) {
	r.DispatchCompute(pipelineVisualize, f.visualizeProvider, [3]uint32{
		common.CeilDiv(f.width, tileSize),
		common.CeilDiv(f.height, tileSize),
		1,
	})
	r.Barrier(f.color, f.echo)
}
