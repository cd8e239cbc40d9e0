package scene

import (
	"math"

	"github.com/Carmen-Shannon/oxy-nano/common"
	"github.com/Carmen-Shannon/oxy-nano/engine/asset"
	"github.com/Carmen-Shannon/oxy-nano/engine/renderer"
)

// clusterCullArgsProgram sizes the partition dispatch from the batch count.
func clusterCullArgsProgram(b renderer.Bindings) renderer.WorkgroupFunc {
	batch := newQueueView(b.Buffer(0))
	return func([3]uint32) {
		batch.writeGroups(partitionGroupSize)
	}
}

// partitionCounters accumulates one workgroup's partition counts.
type partitionCounters struct {
	culled, hardware, software, overflow, estimated uint32
}

// clusterCullProgram re-tests every batched cluster against the frustum and routes the survivors:
// clusters whose projected bounds reach the hardware threshold go to the front of the visible
// cluster list, the rest to its back. With the software path disabled every cluster is routed
// to hardware.
func clusterCullProgram(b renderer.Bindings) renderer.WorkgroupFunc {
	fc := loadFrameConstants(b.Buffer(0))
	batch := newQueueView(b.Buffer(1))
	list := newListView(b.Buffer(2))
	mesh := b.Buffer(3).Bytes()
	echo := b.Buffer(4)

	frustum := common.FrustumFromVec4(fc.Frustum)
	n := batch.count()
	size := b.WorkgroupSize()[0]
	softwareEnabled := fc.Misc0[2] != 0
	minPixels := fc.DepthParams[3]

	return func(g [3]uint32) {
		var c partitionCounters
		for local := uint32(0); local < size; local++ {
			idx := g[0]*size + local
			if idx >= n {
				break
			}
			ci, flags := batch.entry(idx)
			cluster := asset.ClusterAt(mesh, ci)
			if !frustum.IntersectsAABB(cluster.Center, cluster.Extent) {
				c.culled++
				continue
			}
			if flags&batchFlagHardwareEstimate != 0 {
				c.estimated++
			}

			hardware := !softwareEnabled || screenFootprint(&fc, cluster) >= minPixels
			switch {
			case !list.push(ci, hardware):
				c.overflow++
			case hardware:
				c.hardware++
			default:
				c.software++
			}
		}

		for _, v := range []struct {
			offset uint64
			n      uint32
		}{
			{echoPartCulled, c.culled},
			{echoPartHW, c.hardware},
			{echoPartSW, c.software},
			{echoPartOverflow, c.overflow},
			{echoPartHWEstimate, c.estimated},
		} {
			if v.n != 0 {
				echo.AddU32(v.offset, v.n)
			}
		}
	}
}

// screenFootprint returns the larger side, in pixels, of the screen rectangle enclosing the
// projected cluster bounds. Bounds reaching behind the camera are unbounded.
func screenFootprint(fc *FrameConstants, c asset.Cluster) float32 {
	minX, minY := float32(math.MaxFloat32), float32(math.MaxFloat32)
	maxX, maxY := -minX, -minY
	for i := 0; i < 8; i++ {
		corner := c.Center
		for axis := 0; axis < 3; axis++ {
			if i&(1<<axis) != 0 {
				corner[axis] += c.Extent[axis]
			} else {
				corner[axis] -= c.Extent[axis]
			}
		}
		clip := common.TransformPoint(fc.MVP[:], corner)
		if clip[3] <= 0 {
			return float32(math.Inf(1))
		}
		x := (clip[0]/clip[3]*0.5 + 0.5) * fc.Viewport[0]
		y := (clip[1]/clip[3]*0.5 + 0.5) * fc.Viewport[1]
		minX, maxX = min(minX, x), max(maxX, x)
		minY, maxY = min(minY, y), max(maxY, y)
	}
	return max(maxX-minX, maxY-minY)
}

// rasterArgsProgram writes the indirect arguments of both raster paths: a hardware draw with one
// instance per hardware cluster, and a software dispatch with one workgroup per software cluster.
func rasterArgsProgram(b renderer.Bindings) renderer.WorkgroupFunc {
	list := newListView(b.Buffer(0))
	return func([3]uint32) {
		hw, sw := list.counts()
		buf := list.buf
		buf.StoreU32(listDrawArgsOffset, hardwareVertexCount)
		buf.StoreU32(listDrawArgsOffset+4, hw)
		buf.StoreU32(listDrawArgsOffset+8, 0)
		buf.StoreU32(listDrawArgsOffset+12, 0)
		buf.StoreU32(listSWArgsOffset, sw)
		buf.StoreU32(listSWArgsOffset+4, 1)
		buf.StoreU32(listSWArgsOffset+8, 1)
	}
}

// recordPartition records the batch argument pass, the partition and the raster argument pass.
func recordPartition(r renderer.Renderer, f *frameContext) {
	r.DispatchCompute(pipelineClusterCullArgs, f.clusterCullArgsProvider, [3]uint32{1, 1, 1})
	r.Barrier(f.batch)
	r.DispatchComputeIndirect(pipelineClusterCull, f.clusterCullProvider, f.batch, queueGroupsOffset)
	r.Barrier(f.list, f.echo)
	r.DispatchCompute(pipelineRasterArgs, f.rasterArgsProvider, [3]uint32{1, 1, 1})
	r.Barrier(f.list)
}
