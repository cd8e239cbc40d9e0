package scene

import (
	"github.com/Carmen-Shannon/oxy-nano/common"
	"github.com/Carmen-Shannon/oxy-nano/engine/asset"
	"github.com/Carmen-Shannon/oxy-nano/engine/renderer"
	"github.com/Carmen-Shannon/oxy-nano/engine/renderer/resource"
)

// cullArgsProgram prepares one round. Round 0 seeds its input with the root; every round turns
// the input count into dispatch arguments and empties the output queue.
func cullArgsProgram(b renderer.Bindings) renderer.WorkgroupFunc {
	bvh := b.Buffer(0).Bytes()
	in := newQueueView(b.Buffer(1))
	out := newQueueView(b.Buffer(2))
	round := b.PushConstant(0)

	return func([3]uint32) {
		if round == 0 {
			in.reset()
			in.push(asset.RootIndex(bvh), asset.InvalidIndex)
		}
		in.writeGroups(cullGroupSize)
		out.reset()
	}
}

// roundCounters accumulates one workgroup's counts before a single atomic add per counter.
type roundCounters struct {
	visited, culled, accepted, emitted, pushed, clamped, queueOverflow, batchOverflow uint32
}

func (c *roundCounters) flush(echo resource.Buffer, base uint64) {
	for _, v := range []struct {
		offset uint64
		n      uint32
	}{
		{echoRoundVisited, c.visited},
		{echoRoundCulled, c.culled},
		{echoRoundAccepted, c.accepted},
		{echoRoundEmittedClusters, c.emitted},
		{echoRoundPushed, c.pushed},
		{echoRoundClamped, c.clamped},
		{echoRoundQueueOverflow, c.queueOverflow},
		{echoRoundBatchOverflow, c.batchOverflow},
	} {
		if v.n != 0 {
			echo.AddU32(base+v.offset, v.n)
		}
	}
}

// nodeAndClusterCullProgram processes one hierarchy level. Every input node is frustum tested in
// model space; a visible node whose projected error is within the threshold, or a leaf, appends
// its clusters to the batch. Otherwise its children go to the output queue, except on the last
// permitted round, where the node's own clusters are emitted instead (LOD clamp). A mip override
// v > 0 also stops refinement at any node whose LOD level is v or coarser.
func nodeAndClusterCullProgram(b renderer.Bindings) renderer.WorkgroupFunc {
	bvh := b.Buffer(0).Bytes()
	echo := b.Buffer(1)
	batch := newQueueView(b.Buffer(2))
	in := newQueueView(b.Buffer(3))
	out := newQueueView(b.Buffer(4))
	fc := loadFrameConstants(b.Buffer(5))
	mesh := b.Buffer(6).Bytes()

	round := b.PushConstant(0)
	last := b.PushConstant(1)
	logVisits := b.PushConstant(2) != 0

	frustum := common.FrustumFromVec4(fc.Frustum)
	threshold := fc.errorThreshold()
	mip := fc.mipOverride()
	n := in.count()
	size := b.WorkgroupSize()[0]
	base := uint64(min(round, maxCullRounds-1)) * echoRoundStride
	visitCapacity := uint32((echo.Size() - echoVisitEntries) / echoVisitStride)

	return func(g [3]uint32) {
		var c roundCounters
		for local := uint32(0); local < size; local++ {
			idx := g[0]*size + local
			if idx >= n {
				break
			}
			nodeIndex, _ := in.entry(idx)
			node := asset.NodeAt(bvh, nodeIndex)
			c.visited++
			if logVisits {
				logVisit(echo, visitCapacity, nodeIndex, round)
			}

			if !frustum.IntersectsAABB(node.Center, node.Extent) {
				c.culled++
				continue
			}

			descend := !node.IsLeaf() && !mipCapped(mip, node.MipLevel) &&
				projectedError(&fc, node.LODError, node.Center, node.Radius()) > threshold
			if descend && round < last {
				for child := node.FirstChild; child < node.FirstChild+node.ChildCount; child++ {
					if out.push(child, nodeIndex) {
						c.pushed++
					} else {
						c.queueOverflow++
					}
				}
				continue
			}

			if descend {
				c.clamped++
			} else {
				c.accepted++
			}
			for ci := node.FirstCluster; ci < node.FirstCluster+node.ClusterCount; ci++ {
				flags := round << batchRoundShift
				if hardwareEstimate(&fc, asset.ClusterAt(mesh, ci)) {
					flags |= batchFlagHardwareEstimate
				}
				if batch.push(ci, flags) {
					c.emitted++
				} else {
					c.batchOverflow++
				}
			}
		}
		c.flush(echo, base)
	}
}

// mipCapped reports whether the debug mip override forbids refining a node of the given level.
func mipCapped(override, level uint32) bool {
	return override > 0 && level <= override
}

func logVisit(echo resource.Buffer, capacity, node, round uint32) {
	idx := echo.AddU32(echoVisitCount, 1)
	if idx >= capacity {
		echo.AddU32(echoVisitOverflow, 1)
		return
	}
	off := echoVisitEntries + uint64(idx)*echoVisitStride
	echo.StoreU32(off, node)
	echo.StoreU32(off+4, round)
}

// boundsDistance is the distance from the camera to the nearest point of a bounding sphere,
// floored at the near plane.
func boundsDistance(fc *FrameConstants, center [3]float32, radius float32) float32 {
	d := common.Length3(common.Sub3(fc.cameraOS(), center)) - radius
	return max(d, fc.near())
}

// projectedError converts an object-space error into software-reference pixels.
func projectedError(fc *FrameConstants, lodError float32, center [3]float32, radius float32) float32 {
	return lodError * fc.lodScale() / boundsDistance(fc, center, radius)
}

// hardwareEstimate predicts at cull time whether a cluster's footprint reaches the hardware
// reference size. Partition makes the final decision from the projected bounds.
func hardwareEstimate(fc *FrameConstants, c asset.Cluster) bool {
	r := c.Radius()
	return 2*r*fc.lodScaleHW()/boundsDistance(fc, c.Center, r) >= 1
}

// recordCullRound records the argument pass and the cull pass of one round, then swaps the
// queues. Returns the resources the round writes.
func recordCullRound(r renderer.Renderer, f *frameContext, round, last uint32, visitLog bool) []renderer.Resource {
	in, out := f.queues.Current(), f.queues.Next()
	o := f.orientation()

	r.DispatchCompute(pipelineCullArgs, f.cullArgsProviders[o], [3]uint32{1, 1, 1}, round)
	r.Barrier(in, out)

	var logFlag uint32
	if visitLog {
		logFlag = 1
	}
	r.DispatchComputeIndirect(pipelineNodeAndClusterCull, f.cullProviders[o], in, queueGroupsOffset, round, last, logFlag)
	f.queues.Swap()
	return []renderer.Resource{out, f.batch, f.echo}
}
