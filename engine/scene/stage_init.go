package scene

import (
	"github.com/Carmen-Shannon/oxy-nano/common"
	"github.com/Carmen-Shannon/oxy-nano/engine/renderer"
)

// initProgram fills the visibility buffer with the empty sentinel, one 8x8 tile per workgroup.
// Workgroup (0,0,0) also empties both work queues, the batch, the visible cluster lists and the
// echo counters. Init is idempotent: it only stores constants.
func initProgram(b renderer.Bindings) renderer.WorkgroupFunc {
	vis := b.Buffer(0)
	queueA := newQueueView(b.Buffer(1))
	queueB := newQueueView(b.Buffer(2))
	batch := newQueueView(b.Buffer(3))
	list := newListView(b.Buffer(4))
	echo := b.Buffer(5)
	fc := loadFrameConstants(b.Buffer(6))
	width, height := uint64(fc.width()), uint64(fc.height())

	return func(g [3]uint32) {
		if g == [3]uint32{} {
			queueA.reset()
			queueB.reset()
			batch.reset()
			list.reset()
			echo.Fill64(0, echoResetWords, 0)
		}

		x0 := uint64(g[0]) * tileSize
		y0 := uint64(g[1]) * tileSize
		if x0 >= width {
			return
		}
		n := min(tileSize, width-x0)
		for y := y0; y < min(y0+tileSize, height); y++ {
			vis.Fill64(8*(y*width+x0), n, VisEmpty)
		}
	}
}

// recordInit records the Init pass and returns the resources it writes.
func recordInit(r renderer.Renderer, f *frameContext) []renderer.Resource {
	r.DispatchCompute(pipelineInit, f.initProvider, [3]uint32{
		common.CeilDiv(f.width, tileSize),
		common.CeilDiv(f.height, tileSize),
		1,
	})
	a, b := f.queues.Buffers()
	return []renderer.Resource{f.vis, a, b, f.batch, f.list, f.echo}
}
