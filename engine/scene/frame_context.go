package scene

import (
	"encoding/binary"
	"fmt"

	"github.com/Carmen-Shannon/oxy-nano/engine/asset"
	"github.com/Carmen-Shannon/oxy-nano/engine/renderer"
	"github.com/Carmen-Shannon/oxy-nano/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-nano/engine/renderer/resource"
)

const echoBufferSize = 1 << 20

// capacities are the byte sizes of the growable buffers.
type capacities struct {
	queue uint64
	batch uint64
	list  uint64
}

// frameContext owns every device resource of the pipeline and the bind groups of each pass.
// The asset and constant buffers live as long as the scene; the queue, batch and list buffers are
// replaced when they grow, the visibility buffer and color image when the viewport changes.
type frameContext struct {
	r renderer.Renderer

	bvh   resource.Buffer
	mesh  resource.Buffer
	frame resource.Buffer
	echo  resource.Buffer

	queues *WorkQueues
	batch  resource.Buffer
	list   resource.Buffer

	vis   resource.Buffer
	color resource.Image

	width, height uint32
	caps          capacities

	constantsProvider bind_group_provider.BindGroupProvider

	initProvider            bind_group_provider.BindGroupProvider
	cullArgsProviders       [2]bind_group_provider.BindGroupProvider
	cullProviders           [2]bind_group_provider.BindGroupProvider
	clusterCullArgsProvider bind_group_provider.BindGroupProvider
	clusterCullProvider     bind_group_provider.BindGroupProvider
	rasterArgsProvider      bind_group_provider.BindGroupProvider
	hwRasterProvider        bind_group_provider.BindGroupProvider
	swRasterProvider        bind_group_provider.BindGroupProvider
	visualizeProvider       bind_group_provider.BindGroupProvider
}

// newFrameContext uploads the asset blobs and allocates every per-frame buffer.
//
// Parameters:
//   - r: the device
//   - store: the immutable scene data
//   - width, height: the viewport in pixels
//   - caps: the initial sizes of the growable buffers
//
// Returns:
//   - *frameContext: the resources, ready to record a frame
//   - error: an allocation or upload error
func newFrameContext(r renderer.Renderer, store *asset.Store, width, height uint32, caps capacities) (*frameContext, error) {
	f := &frameContext{r: r, caps: caps}

	var err error
	if f.bvh, err = r.CreateBuffer("bvh", uint64(len(store.BVHBlob)), resource.BufferUsageStorage|resource.BufferUsageCopyDst); err != nil {
		return nil, err
	}
	if f.mesh, err = r.CreateBuffer("mesh", uint64(len(store.MeshBlob)), resource.BufferUsageStorage|resource.BufferUsageCopyDst); err != nil {
		f.Release()
		return nil, err
	}
	assets := bind_group_provider.NewBindGroupProvider("assets",
		bind_group_provider.WithBuffer(0, f.bvh, bind_group_provider.AccessRead),
		bind_group_provider.WithBuffer(1, f.mesh, bind_group_provider.AccessRead),
	)
	if err := r.WriteBuffers([]bind_group_provider.BufferWrite{
		{Provider: assets, Binding: 0, Data: store.BVHBlob},
		{Provider: assets, Binding: 1, Data: store.MeshBlob},
	}); err != nil {
		f.Release()
		return nil, fmt.Errorf("scene: uploading assets: %w", err)
	}

	var fc FrameConstants
	if f.frame, err = r.CreateBuffer("frame_constants", uint64(fc.Size()), resource.BufferUsageUniform|resource.BufferUsageCopyDst); err != nil {
		f.Release()
		return nil, err
	}
	f.constantsProvider = bind_group_provider.NewBindGroupProvider("frame_constants",
		bind_group_provider.WithBuffer(0, f.frame, bind_group_provider.AccessUniform),
	)
	if f.echo, err = r.CreateBuffer("echo", echoBufferSize, resource.BufferUsageStorage|resource.BufferUsageMapRead); err != nil {
		f.Release()
		return nil, err
	}

	if err := f.allocateWork(caps); err != nil {
		f.Release()
		return nil, err
	}
	if err := f.resize(width, height); err != nil {
		f.Release()
		return nil, err
	}
	return f, nil
}

// allocateWork replaces the queue, batch and list buffers with buffers of the given sizes.
func (f *frameContext) allocateWork(caps capacities) error {
	usage := resource.BufferUsageStorage | resource.BufferUsageIndirect | resource.BufferUsageMapRead
	a, err := f.r.CreateBuffer("work_queue_a", caps.queue, usage)
	if err != nil {
		return err
	}
	b, err := f.r.CreateBuffer("work_queue_b", caps.queue, usage)
	if err != nil {
		a.Release()
		return err
	}
	batch, err := f.r.CreateBuffer("batch", caps.batch, usage)
	if err != nil {
		a.Release()
		b.Release()
		return err
	}
	list, err := f.r.CreateBuffer("visible_clusters", caps.list, usage)
	if err != nil {
		a.Release()
		b.Release()
		batch.Release()
		return err
	}

	f.releaseWork()
	f.queues = NewWorkQueues(a, b)
	f.batch = batch
	f.list = list
	f.caps = caps
	f.bind()
	return nil
}

// resize replaces the visibility buffer and the color image.
func (f *frameContext) resize(width, height uint32) error {
	if width == 0 || height == 0 {
		return fmt.Errorf("scene: viewport %dx%d is empty", width, height)
	}
	vis, err := f.r.CreateBuffer("vis_buffer", visBufferSize(width, height), resource.BufferUsageStorage|resource.BufferUsageMapRead)
	if err != nil {
		return err
	}
	color, err := f.r.CreateImage("visualization", width, height)
	if err != nil {
		vis.Release()
		return err
	}
	if f.vis != nil {
		f.vis.Release()
	}
	if f.color != nil {
		f.color.Release()
	}
	f.vis, f.color = vis, color
	f.width, f.height = width, height
	f.bind()
	return nil
}

// bind rebuilds the bind group of every pass from the current resources.
func (f *frameContext) bind() {
	if f.queues == nil || f.vis == nil {
		return
	}
	const (
		r  = bind_group_provider.AccessRead
		rw = bind_group_provider.AccessReadWrite
		u  = bind_group_provider.AccessUniform
	)
	buf := bind_group_provider.WithBuffer
	a, b := f.queues.Buffers()

	f.initProvider = bind_group_provider.NewBindGroupProvider("init",
		buf(0, f.vis, rw), buf(1, a, rw), buf(2, b, rw), buf(3, f.batch, rw),
		buf(4, f.list, rw), buf(5, f.echo, rw), buf(6, f.frame, u),
	)
	for o, q := range [2][2]resource.Buffer{{a, b}, {b, a}} {
		in, out := q[0], q[1]
		f.cullArgsProviders[o] = bind_group_provider.NewBindGroupProvider(fmt.Sprintf("cull_args_%d", o),
			buf(0, f.bvh, r), buf(1, in, rw), buf(2, out, rw),
		)
		f.cullProviders[o] = bind_group_provider.NewBindGroupProvider(fmt.Sprintf("node_and_cluster_cull_%d", o),
			buf(0, f.bvh, r), buf(1, f.echo, rw), buf(2, f.batch, rw), buf(3, in, r),
			buf(4, out, rw), buf(5, f.frame, u), buf(6, f.mesh, r),
		)
	}
	f.clusterCullArgsProvider = bind_group_provider.NewBindGroupProvider("cluster_cull_args",
		buf(0, f.batch, rw),
	)
	f.clusterCullProvider = bind_group_provider.NewBindGroupProvider("cluster_cull",
		buf(0, f.frame, u), buf(1, f.batch, r), buf(2, f.list, rw), buf(3, f.mesh, r), buf(4, f.echo, rw),
	)
	f.rasterArgsProvider = bind_group_provider.NewBindGroupProvider("raster_args",
		buf(0, f.list, rw),
	)
	f.hwRasterProvider = bind_group_provider.NewBindGroupProvider("hw_rasterize",
		buf(0, f.frame, u), buf(1, f.mesh, r), buf(2, f.list, r), buf(3, f.vis, rw),
	)
	f.swRasterProvider = bind_group_provider.NewBindGroupProvider("sw_rasterize",
		buf(0, f.frame, u), buf(1, f.mesh, r), buf(2, f.list, r), buf(3, f.vis, rw),
	)
	f.visualizeProvider = bind_group_provider.NewBindGroupProvider("visualize",
		buf(0, f.vis, r),
		bind_group_provider.WithImage(1, f.color, rw),
		buf(2, f.frame, u), buf(3, f.mesh, r), buf(4, f.echo, rw),
	)
}

// orientation selects the bind groups matching the current ping-pong state.
func (f *frameContext) orientation() int {
	if f.queues.flipped {
		return 1
	}
	return 0
}

// uploadConstants writes the uniform block. Must not be called while a frame is recording.
func (f *frameContext) uploadConstants(fc *FrameConstants) error {
	return f.r.WriteBuffers([]bind_group_provider.BufferWrite{
		{Provider: f.constantsProvider, Binding: 0, Data: fc.Marshal()},
	})
}

// grow doubles every overflowing buffer, bounded by maxBytes.
//
// Returns:
//   - bool: false when none of the overflowing buffers could grow
//   - error: an allocation error
func (f *frameContext) grow(overflows []string, maxBytes uint64) (bool, error) {
	next := f.caps
	grown := false
	double := func(size *uint64) {
		if *size < maxBytes {
			*size = min(*size*2, maxBytes)
			grown = true
		}
	}
	for _, name := range overflows {
		switch name {
		case BufferWorkQueues:
			double(&next.queue)
		case BufferBatch:
			double(&next.batch)
		case BufferVisibleClusters:
			double(&next.list)
		}
	}
	if !grown {
		return false, nil
	}
	return true, f.allocateWork(next)
}

// collectStats reads the counters of the last submission back from the echo and list buffers.
func (f *frameContext) collectStats(roundsRun int, visitLog bool) FrameStats {
	echo := f.echo
	s := FrameStats{RoundsRun: roundsRun}

	var queueOverflow, batchOverflow uint32
	for i := 0; i < min(roundsRun, maxCullRounds); i++ {
		base := uint64(i) * echoRoundStride
		rs := RoundStats{
			Round:           i,
			Visited:         echo.LoadU32(base + echoRoundVisited),
			Culled:          echo.LoadU32(base + echoRoundCulled),
			Accepted:        echo.LoadU32(base + echoRoundAccepted),
			EmittedClusters: echo.LoadU32(base + echoRoundEmittedClusters),
			Pushed:          echo.LoadU32(base + echoRoundPushed),
			Clamped:         echo.LoadU32(base + echoRoundClamped),
			QueueOverflow:   echo.LoadU32(base + echoRoundQueueOverflow),
			BatchOverflow:   echo.LoadU32(base + echoRoundBatchOverflow),
		}
		s.BatchClusters += rs.EmittedClusters
		queueOverflow += rs.QueueOverflow
		batchOverflow += rs.BatchOverflow
		s.Rounds = append(s.Rounds, rs)
	}

	s.PartitionCulled = echo.LoadU32(echoPartCulled)
	s.HWClusters = echo.LoadU32(echoPartHW)
	s.SWClusters = echo.LoadU32(echoPartSW)
	s.HWEstimated = echo.LoadU32(echoPartHWEstimate)
	s.CoveredPixels = echo.LoadU32(echoCoveredPixels)

	if queueOverflow > 0 {
		s.Overflows = append(s.Overflows, BufferWorkQueues)
	}
	if batchOverflow > 0 {
		s.Overflows = append(s.Overflows, BufferBatch)
	}
	if echo.LoadU32(echoPartOverflow) > 0 {
		s.Overflows = append(s.Overflows, BufferVisibleClusters)
	}

	if visitLog {
		n := echo.LoadU32(echoVisitCount)
		s.VisitLogTruncated = echo.LoadU32(echoVisitOverflow)
		n -= s.VisitLogTruncated
		for i := uint32(0); i < n; i++ {
			off := echoVisitEntries + uint64(i)*echoVisitStride
			s.VisitLog = append(s.VisitLog, VisitEntry{Node: echo.LoadU32(off), Round: echo.LoadU32(off + 4)})
		}
	}
	return s
}

// readVisBuffer copies the visibility buffer to the host.
func (f *frameContext) readVisBuffer() (VisBuffer, error) {
	data, err := f.vis.Read(0, visBufferSize(f.width, f.height))
	if err != nil {
		return VisBuffer{}, err
	}
	return newVisBuffer(f.width, f.height, data), nil
}

// readCounts returns the raw header words of a queue-layout buffer; used by tests and debugging.
func readCounts(buf resource.Buffer) (count, overflow uint32) {
	head, err := buf.Read(0, queueHeaderSize)
	if err != nil {
		return 0, 0
	}
	return binary.LittleEndian.Uint32(head[queueCountOffset:]), binary.LittleEndian.Uint32(head[queueOverflowOffset:])
}

func (f *frameContext) releaseWork() {
	if f.queues != nil {
		a, b := f.queues.Buffers()
		a.Release()
		b.Release()
		f.queues = nil
	}
	if f.batch != nil {
		f.batch.Release()
		f.batch = nil
	}
	if f.list != nil {
		f.list.Release()
		f.list = nil
	}
}

// Release frees every resource the context owns.
func (f *frameContext) Release() {
	f.releaseWork()
	for _, b := range []resource.Buffer{f.bvh, f.mesh, f.frame, f.echo, f.vis} {
		if b != nil {
			b.Release()
		}
	}
	if f.color != nil {
		f.color.Release()
	}
}
