package scene

import (
	"errors"
	"slices"
	"testing"
	"testing/fstest"

	"github.com/Carmen-Shannon/oxy-nano/common"
	"github.com/Carmen-Shannon/oxy-nano/engine/renderer"
	"github.com/Carmen-Shannon/oxy-nano/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-nano/engine/renderer/shader"
)

// ============================================================================
// Frame pipeline
// ============================================================================

func TestSingleVisibleCluster(t *testing.T) {
	s := newTestScene(t, newTestRenderer(t), singleVisibleCluster(t))
	stats, vis := renderOnce(t, s)

	if stats.RoundsRun != DefaultCullRounds || len(stats.Rounds) != DefaultCullRounds {
		t.Fatalf("rounds run = %d (%d stats), want %d", stats.RoundsRun, len(stats.Rounds), DefaultCullRounds)
	}
	r0, r1 := stats.Rounds[0], stats.Rounds[1]
	if r0.Visited != 1 || r0.Pushed != 2 || r0.EmittedClusters != 0 {
		t.Errorf("round 0 = %+v, want the root pushing its two children", r0)
	}
	if r1.Visited != 2 || r1.Culled != 1 || r1.Accepted != 1 || r1.EmittedClusters != 1 {
		t.Errorf("round 1 = %+v, want one child culled and one cluster emitted", r1)
	}
	for _, r := range stats.Rounds[2:] {
		if r.Visited != 0 || r.EmittedClusters != 0 {
			t.Errorf("round %d = %+v, want an empty round", r.Round, r)
		}
	}

	if stats.BatchClusters != 1 {
		t.Errorf("batch clusters = %d, want 1", stats.BatchClusters)
	}
	// 40 units at the origin project to 12.8 pixels, below the 32 pixel hardware reference.
	if stats.HWClusters != 0 || stats.SWClusters != 1 {
		t.Errorf("hw/sw = %d/%d, want 0/1", stats.HWClusters, stats.SWClusters)
	}
	if stats.Overflowed() {
		t.Errorf("unexpected overflow: %v", stats.Overflows)
	}

	tris := vis.Triangles()
	if len(tris) == 0 || len(tris) > 10 {
		t.Fatalf("%d distinct triangles won pixels, want 1..10", len(tris))
	}
	for key := range tris {
		if key[0] != 0 || key[1] >= 10 {
			t.Errorf("cell decodes to cluster %d triangle %d", key[0], key[1])
		}
	}
	covered := vis.Covered()
	if covered == 0 || covered > 15*15 {
		t.Errorf("covered = %d, want the ~13x13 pixel square", covered)
	}
	if int(stats.CoveredPixels) != covered {
		t.Errorf("resolve counted %d covered pixels, vis buffer holds %d", stats.CoveredPixels, covered)
	}
	if vis.Cell(0, 0) != VisEmpty || vis.Cell(testSize/2, testSize/2) == VisEmpty {
		t.Errorf("corner must stay empty and center must be covered")
	}
}

func TestRasterPathsAgree(t *testing.T) {
	store := singleVisibleCluster(t)

	_, software := renderOnce(t, newTestScene(t, newTestRenderer(t), store))

	hwOnly := newTestScene(t, newTestRenderer(t), store, WithSoftwareRaster(false))
	stats, hardware := renderOnce(t, hwOnly)
	if stats.HWClusters != 1 || stats.SWClusters != 0 {
		t.Fatalf("software raster disabled: hw/sw = %d/%d, want 1/0", stats.HWClusters, stats.SWClusters)
	}

	lowRef := newTestScene(t, newTestRenderer(t), store, WithLODReferences(1, 4))
	stats, lowered := renderOnce(t, lowRef)
	if stats.HWClusters != 1 {
		t.Fatalf("4 pixel hardware reference: hw = %d, want 1", stats.HWClusters)
	}

	if !software.Equal(hardware) || !software.Equal(lowered) {
		t.Errorf("hardware and software raster paths produced different visibility buffers")
	}
}

func TestNearestSurfaceWins(t *testing.T) {
	for _, nearFirst := range []bool{true, false} {
		store, near := overlapping(t, nearFirst)
		s := newTestScene(t, newTestRenderer(t), store)
		_, vis := renderOnce(t, s)

		cell := vis.Cell(testSize/2, testSize/2)
		if cell == VisEmpty {
			t.Fatalf("nearFirst=%v: center is empty", nearFirst)
		}
		_, cluster, _ := UnpackVisCell(cell)
		if cluster != near {
			t.Errorf("nearFirst=%v: center shows cluster %d, want the near cluster %d", nearFirst, cluster, near)
		}
		for key := range vis.Triangles() {
			if key[0] != near {
				t.Errorf("nearFirst=%v: far cluster %d won a pixel", nearFirst, key[0])
			}
		}
	}
}

func TestDeterministicAcrossWorkers(t *testing.T) {
	store := grid(t)

	_, first := renderOnce(t, newTestScene(t, newTestRenderer(t, renderer.WithWorkers(1)), store))
	s := newTestScene(t, newTestRenderer(t, renderer.WithWorkers(8)), store)
	_, second := renderOnce(t, s)
	_, third := renderOnce(t, s)

	if first.Covered() == 0 {
		t.Fatal("grid rendered nothing")
	}
	if !first.Equal(second) {
		t.Errorf("1 worker and 8 workers disagree")
	}
	if !second.Equal(third) {
		t.Errorf("consecutive frames disagree")
	}
}

// ============================================================================
// Traversal bounds
// ============================================================================

func TestReachabilityBound(t *testing.T) {
	store := chain(t, 5, 1000)

	s := newTestScene(t, newTestRenderer(t), store, WithVisitLog(true))
	stats, _ := renderOnce(t, s)

	visited := map[VisitEntry]bool{}
	for _, v := range stats.VisitLog {
		visited[v] = true
	}
	for level := uint32(0); level < 4; level++ {
		if !visited[VisitEntry{Node: level, Round: level}] {
			t.Errorf("node %d not visited in round %d; log %v", level, level, stats.VisitLog)
		}
	}
	if len(stats.VisitLog) != 4 {
		t.Errorf("visit log has %d entries, want 4 (level 5 is never expanded)", len(stats.VisitLog))
	}
	if stats.Clamped() != 1 || stats.Rounds[3].Clamped != 1 {
		t.Errorf("clamped = %d, want the level 4 node clamped in round 3", stats.Clamped())
	}
	if stats.BatchClusters != 1 {
		t.Errorf("batch clusters = %d, want the clamped node's cluster", stats.BatchClusters)
	}

	deeper := newTestScene(t, newTestRenderer(t), store, WithCullRounds(5))
	stats, _ = renderOnce(t, deeper)
	if stats.Clamped() != 0 || stats.Rounds[4].Accepted != 1 {
		t.Errorf("5 rounds: clamped %d, round 4 = %+v; want the leaf accepted", stats.Clamped(), stats.Rounds[4])
	}
}

func TestAdaptiveTraversalStopsOnEmptyQueue(t *testing.T) {
	s := newTestScene(t, newTestRenderer(t), chain(t, 5, 1000), WithAdaptiveTraversal(32))
	stats, vis := renderOnce(t, s)

	if stats.RoundsRun != 5 {
		t.Errorf("adaptive traversal ran %d rounds, want 5", stats.RoundsRun)
	}
	if stats.Clamped() != 0 || stats.Accepted() != 1 {
		t.Errorf("clamped %d accepted %d, want 0 and 1", stats.Clamped(), stats.Accepted())
	}
	if vis.Covered() == 0 {
		t.Errorf("the leaf cluster was not drawn")
	}

	capped := newTestScene(t, newTestRenderer(t), chain(t, 5, 1000), WithAdaptiveTraversal(2))
	stats, _ = renderOnce(t, capped)
	if stats.RoundsRun != 2 || stats.Clamped() != 1 {
		t.Errorf("max 2 rounds: ran %d, clamped %d; want 2 and 1", stats.RoundsRun, stats.Clamped())
	}
}

func TestMipOverrideStopsAtRoot(t *testing.T) {
	store := chain(t, 3, 10)

	s := newTestScene(t, newTestRenderer(t), store)
	stats, _ := renderOnce(t, s)
	if stats.Rounds[0].Pushed != 1 {
		t.Fatalf("without override the root must descend: %+v", stats.Rounds[0])
	}

	coarse := newTestScene(t, newTestRenderer(t), store, WithMipOverride(10))
	stats, vis := renderOnce(t, coarse)
	if stats.Rounds[0].Accepted != 1 || stats.Rounds[0].Pushed != 0 {
		t.Errorf("mip 10: round 0 = %+v, want the root accepted", stats.Rounds[0])
	}
	if vis.Covered() == 0 {
		t.Errorf("the root cluster was not drawn")
	}
}

func TestMipOverrideCapsAtNodeLevel(t *testing.T) {
	// levels 3, 2, 1, 0 from the root; every interior error is far above the threshold
	store := chain(t, 4, 1000)
	if store.BVH.Nodes[0].MipLevel != 3 {
		t.Fatalf("root level = %d, want 3", store.BVH.Nodes[0].MipLevel)
	}

	s := newTestScene(t, newTestRenderer(t), store, WithMipOverride(1))
	stats, _ := renderOnce(t, s)
	for round, want := range []struct{ accepted, pushed uint32 }{{0, 1}, {0, 1}, {1, 0}} {
		got := stats.Rounds[round]
		if got.Accepted != want.accepted || got.Pushed != want.pushed {
			t.Errorf("round %d = %+v, want accepted %d pushed %d", round, got, want.accepted, want.pushed)
		}
	}
	if stats.Clamped() != 0 {
		t.Errorf("a capped node is accepted, not clamped: %d clamped", stats.Clamped())
	}
}

func TestMipCapped(t *testing.T) {
	if mipCapped(0, 0) || mipCapped(0, 5) {
		t.Error("override 0 never caps")
	}
	if !mipCapped(2, 2) || !mipCapped(2, 1) || mipCapped(2, 3) {
		t.Error("override 2 caps levels 0..2 only")
	}
}

// ============================================================================
// Reset and ordering
// ============================================================================

func TestInitIsIdempotent(t *testing.T) {
	r := newTestRenderer(t)
	s := newTestScene(t, r, singleVisibleCluster(t))
	renderOnce(t, s)

	f := s.ctx
	if err := r.BeginComputeFrame(); err != nil {
		t.Fatal(err)
	}
	r.Barrier(recordInit(r, f)...)
	r.Barrier(recordInit(r, f)...)
	if err := r.EndComputeFrame(); err != nil {
		t.Fatalf("Init twice: %v", err)
	}

	vis, err := s.ReadVisBuffer()
	if err != nil {
		t.Fatal(err)
	}
	if n := vis.Covered(); n != 0 {
		t.Errorf("%d cells survived Init", n)
	}
	a, b := f.queues.Buffers()
	for _, q := range []struct {
		name  string
		count uint32
	}{
		{"queue a", newQueueView(a).count()},
		{"queue b", newQueueView(b).count()},
		{"batch", newQueueView(f.batch).count()},
	} {
		if q.count != 0 {
			t.Errorf("%s holds %d entries after Init", q.name, q.count)
		}
	}
	if count, overflow := readCounts(a); count != 0 || overflow != 0 {
		t.Errorf("queue a header = %d/%d", count, overflow)
	}
}

func TestMissingBarrierIsAHazard(t *testing.T) {
	r := newTestRenderer(t)
	s := newTestScene(t, r, singleVisibleCluster(t))
	f := s.ctx

	if err := r.BeginComputeFrame(); err != nil {
		t.Fatal(err)
	}
	recordInit(r, f)
	r.DispatchCompute(pipelineCullArgs, f.cullArgsProviders[0], [3]uint32{1, 1, 1}, 0)
	err := r.EndComputeFrame()
	if !errors.Is(err, renderer.ErrHazard) {
		t.Fatalf("err = %v, want ErrHazard", err)
	}
}

// ============================================================================
// Capacity
// ============================================================================

func TestOverflowDropAndLog(t *testing.T) {
	tests := []struct {
		name   string
		option SceneBuilderOption
		buffer string
	}{
		{"queue", WithQueueCapacity(queueHeaderSize + 4*queueEntrySize), BufferWorkQueues},
		{"batch", WithBatchCapacity(queueHeaderSize + 2*queueEntrySize), BufferBatch},
		{"list", WithListCapacity(listHeaderSize + 3*listEntrySize), BufferVisibleClusters},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestScene(t, newTestRenderer(t), fanOut(t), tt.option)
			stats, err := s.RenderFrame()
			if err != nil {
				t.Fatalf("RenderFrame: %v", err)
			}
			if !slices.Contains(stats.Overflows, tt.buffer) {
				t.Errorf("overflows = %v, want %s", stats.Overflows, tt.buffer)
			}
		})
	}

	s := newTestScene(t, newTestRenderer(t), fanOut(t), tests[0].option)
	stats, _ := renderOnce(t, s)
	if r0 := stats.Rounds[0]; r0.Pushed != 4 || r0.QueueOverflow != 4 {
		t.Errorf("round 0 = %+v, want 4 pushed and 4 dropped", r0)
	}
	if stats.Rounds[1].Visited != 4 {
		t.Errorf("round 1 visited %d, want the 4 entries that fit", stats.Rounds[1].Visited)
	}
}

func TestOverflowStrict(t *testing.T) {
	s := newTestScene(t, newTestRenderer(t), fanOut(t),
		WithQueueCapacity(queueHeaderSize+4*queueEntrySize),
		WithOverflowPolicy(OverflowStrict),
	)
	stats, err := s.RenderFrame()
	if !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("err = %v, want ErrCapacityExceeded", err)
	}
	if !slices.Contains(stats.Overflows, BufferWorkQueues) {
		t.Errorf("overflows = %v", stats.Overflows)
	}
}

func TestOverflowGrow(t *testing.T) {
	s := newTestScene(t, newTestRenderer(t), fanOut(t),
		WithQueueCapacity(queueHeaderSize+4*queueEntrySize),
		WithOverflowPolicy(OverflowGrow),
	)
	stats, _ := renderOnce(t, s)
	if stats.Regrown != 1 {
		t.Errorf("regrown = %d, want 1", stats.Regrown)
	}
	if stats.Overflowed() {
		t.Errorf("overflows after growing: %v", stats.Overflows)
	}
	if stats.Rounds[0].Pushed != 8 {
		t.Errorf("round 0 pushed %d, want all 8 children", stats.Rounds[0].Pushed)
	}

	stats, _ = renderOnce(t, s)
	if stats.Regrown != 0 {
		t.Errorf("the grown queues must persist: regrown %d on the next frame", stats.Regrown)
	}
}

func TestOverflowGrowStopsAtLimit(t *testing.T) {
	size := uint64(queueHeaderSize + 2*queueEntrySize)
	s := newTestScene(t, newTestRenderer(t), fanOut(t),
		WithQueueCapacity(size),
		WithMaxBufferSize(size),
		WithOverflowPolicy(OverflowGrow),
	)
	stats, _ := renderOnce(t, s)
	if stats.Regrown != 0 || !slices.Contains(stats.Overflows, BufferWorkQueues) {
		t.Errorf("regrown %d overflows %v, want no growth and a reported overflow", stats.Regrown, stats.Overflows)
	}
}

// ============================================================================
// Construction and controls
// ============================================================================

func TestNewSceneRequiresInt64Atomics(t *testing.T) {
	r := newTestRenderer(t, renderer.WithDisabledFeatures(renderer.FeatureInt64Atomics))
	_, err := NewScene(r, singleVisibleCluster(t))
	if !errors.Is(err, renderer.ErrMissingFeature) {
		t.Fatalf("err = %v, want ErrMissingFeature", err)
	}
}

func TestNewSceneMissingShader(t *testing.T) {
	_, err := NewScene(newTestRenderer(t), singleVisibleCluster(t), WithShaderFS(fstest.MapFS{}))
	if !errors.Is(err, shader.ErrShaderNotFound) {
		t.Fatalf("err = %v, want ErrShaderNotFound", err)
	}
}

func TestNewScenePanicsWithoutRenderer(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("NewScene(nil, ...) did not panic")
		}
	}()
	NewScene(nil, singleVisibleCluster(t))
}

func TestMipOverrideKeys(t *testing.T) {
	s := newTestScene(t, newTestRenderer(t), singleVisibleCluster(t))

	var got []uint32
	for i := 0; i < len(mipLevels); i++ {
		s.OnKeyUp(common.KeyUp)
		got = append(got, s.MipOverride())
	}
	want := []uint32{1, 2, 3, 4, 5, 6, 7, 8, 10, 0}
	if !slices.Equal(got, want) {
		t.Errorf("key up sequence = %v, want %v", got, want)
	}

	s.OnKeyUp(common.KeyDown)
	if s.MipOverride() != 10 {
		t.Errorf("key down from 0 = %d, want 10", s.MipOverride())
	}

	s.OnKeyUp(common.KeyV)
	if s.VisualizeMode() != VisualizeTriangles {
		t.Errorf("V did not advance the visualize mode: %s", s.VisualizeMode())
	}
}

func TestResolveBackgroundAndModes(t *testing.T) {
	s := newTestScene(t, newTestRenderer(t), singleVisibleCluster(t))

	for m := VisualizeMode(0); m < visualizeModeCount; m++ {
		s.SetVisualizeMode(m)
		renderOnce(t, s)
		img := s.VisualizationImage()
		if got := img.Load(0, 0); got != Background {
			t.Errorf("%s: empty texel = %v, want background", m, got)
		}
		center := img.Load(testSize/2, testSize/2)
		if center == Background || center[3] != 1 {
			t.Errorf("%s: covered texel = %v", m, center)
		}
	}
}

func TestResize(t *testing.T) {
	s := newTestScene(t, newTestRenderer(t), singleVisibleCluster(t))
	if err := s.Resize(32, 16); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if w, h := s.Size(); w != 32 || h != 16 {
		t.Errorf("Size = %dx%d", w, h)
	}
	_, vis := renderOnce(t, s)
	if vis.Width != 32 || vis.Height != 16 || len(vis.Cells) != 32*16 {
		t.Errorf("vis buffer %dx%d with %d cells", vis.Width, vis.Height, len(vis.Cells))
	}
	if vis.Covered() == 0 {
		t.Errorf("nothing drawn after resize")
	}
	if img := s.VisualizationImage(); img.Width() != 32 || img.Height() != 16 {
		t.Errorf("image %dx%d", img.Width(), img.Height())
	}
	if err := s.Resize(0, 16); err == nil {
		t.Errorf("Resize(0, 16) succeeded")
	}
}

func TestStatsFrameCounter(t *testing.T) {
	s := newTestScene(t, newTestRenderer(t), singleVisibleCluster(t))
	renderOnce(t, s)
	stats, _ := renderOnce(t, s)
	if stats.Frame != 1 || s.Stats().Frame != 1 {
		t.Errorf("frame = %d, want 1", stats.Frame)
	}
}

func TestUseAfterRelease(t *testing.T) {
	s := newTestScene(t, newTestRenderer(t), singleVisibleCluster(t))
	renderOnce(t, s)
	s.Release()

	if _, err := s.RenderFrame(); !errors.Is(err, resource.ErrReleased) {
		t.Errorf("RenderFrame after Release: %v", err)
	}
	if _, err := s.ReadVisBuffer(); !errors.Is(err, resource.ErrReleased) {
		t.Errorf("ReadVisBuffer after Release: %v", err)
	}
	if err := s.Resize(32, 32); !errors.Is(err, resource.ErrReleased) {
		t.Errorf("Resize after Release: %v", err)
	}
	if img := s.VisualizationImage(); img != nil {
		t.Errorf("VisualizationImage after Release = %v", img)
	}
	s.Release()
}
