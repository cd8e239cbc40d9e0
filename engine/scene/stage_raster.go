package scene

import (
	"math"

	"github.com/Carmen-Shannon/oxy-nano/common"
	"github.com/Carmen-Shannon/oxy-nano/engine/asset"
	"github.com/Carmen-Shannon/oxy-nano/engine/renderer"
	"github.com/Carmen-Shannon/oxy-nano/engine/renderer/raster"
)

// hwRasterizeVertexProgram fetches one corner of one triangle of a hardware-listed cluster.
// Every instance is drawn with the full triangle budget of a cluster; corners past the cluster's
// triangle count are discarded.
func hwRasterizeVertexProgram(b renderer.Bindings) renderer.VertexFunc {
	fc := loadFrameConstants(b.Buffer(0))
	mesh := b.Buffer(1).Bytes()
	list := newListView(b.Buffer(2))
	layout := asset.ParseMeshLayout(mesh)

	return func(instance, vertex uint32) ([4]float32, uint32, bool) {
		ci := list.hardware(instance)
		cluster := asset.ClusterAt(mesh, ci)
		tri := vertex / 3
		if tri >= cluster.TriangleCount {
			return [4]float32{}, 0, false
		}
		local := layout.IndexAt(mesh, cluster.IndexOffset+vertex)
		pos := layout.VertexAt(mesh, cluster.VertexOffset+local)
		return common.TransformPoint(fc.MVP[:], pos), visPayload(ci, tri), true
	}
}

// hwRasterizeFragmentProgram merges one fragment into the visibility buffer.
func hwRasterizeFragmentProgram(b renderer.Bindings) renderer.FragmentFunc {
	fc := loadFrameConstants(b.Buffer(0))
	vis := b.Buffer(3)
	width := uint64(fc.width())

	return func(x, y uint32, depth float32, payload uint32) {
		vis.MinU64(8*(uint64(y)*width+uint64(x)), uint64(math.Float32bits(depth))<<32|uint64(payload))
	}
}

// swRasterizeProgram rasterizes one software-listed cluster per workgroup, one triangle per
// invocation. It shares the coverage rules of the hardware path, so both paths produce the same
// cells for the same triangle.
func swRasterizeProgram(b renderer.Bindings) renderer.WorkgroupFunc {
	fc := loadFrameConstants(b.Buffer(0))
	mesh := b.Buffer(1).Bytes()
	list := newListView(b.Buffer(2))
	vis := b.Buffer(3)

	layout := asset.ParseMeshLayout(mesh)
	_, swCount := list.counts()
	size := b.WorkgroupSize()[0]
	vp := raster.Viewport{Width: fc.width(), Height: fc.height()}
	width := uint64(vp.Width)

	return func(g [3]uint32) {
		if g[0] >= swCount {
			return
		}
		ci := list.software(g[0])
		cluster := asset.ClusterAt(mesh, ci)
		for tri := uint32(0); tri < min(size, cluster.TriangleCount); tri++ {
			var clip [3][4]float32
			for k, p := range layout.Triangle(mesh, cluster, tri) {
				clip[k] = common.TransformPoint(fc.MVP[:], p)
			}
			payload := uint64(visPayload(ci, tri))
			raster.DrawTriangle(vp, clip, raster.CullNone, func(x, y uint32, depth float32) {
				vis.MinU64(8*(uint64(y)*width+uint64(x)), uint64(math.Float32bits(depth))<<32|payload)
			})
		}
	}
}

// recordRaster records the hardware draw and, when enabled, the software dispatch. The two paths
// write the same buffer, so the software pass waits on the hardware one.
func recordRaster(r renderer.Renderer, f *frameContext, software bool) {
	vp := raster.Viewport{Width: f.width, Height: f.height}
	r.DrawIndirect(pipelineHWRasterize, f.hwRasterProvider, f.list, listDrawArgsOffset, vp)
	if software {
		r.Barrier(f.vis)
		r.DispatchComputeIndirect(pipelineSWRasterize, f.swRasterProvider, f.list, listSWArgsOffset)
	}
	r.Barrier(f.vis)
}
