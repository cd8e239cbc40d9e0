package scene

import (
	"reflect"
	"testing"

	"github.com/Carmen-Shannon/oxy-nano/engine/asset"
	"github.com/Carmen-Shannon/oxy-nano/engine/camera"
	"github.com/Carmen-Shannon/oxy-nano/engine/renderer"
	"github.com/Carmen-Shannon/oxy-nano/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-nano/shaders"
)

// newWGPURenderer returns a wgpu renderer, skipping the test on machines without an adapter.
func newWGPURenderer(t *testing.T) renderer.Renderer {
	t.Helper()
	r, err := renderer.NewRenderer(renderer.BackendTypeWGPU)
	if err != nil {
		t.Skipf("no wgpu device: %v", err)
	}
	t.Cleanup(r.Release)
	return r
}

// cullFrame runs Init, rounds cull rounds and Partition over store on r and returns the frame
// statistics. The raster passes are left out so devices without 64-bit atomics can run it.
func cullFrame(t *testing.T, r renderer.Renderer, store *asset.Store, rounds int) FrameStats {
	t.Helper()
	r.RegisterPrograms(Programs())
	all, err := loadPipelines(shaders.FS)
	if err != nil {
		t.Fatalf("loadPipelines: %v", err)
	}
	var keep []pipeline.Pipeline
	for _, p := range all {
		switch p.PipelineKey() {
		case pipelineHWRasterize, pipelineSWRasterize, pipelineVisualize:
			continue
		}
		keep = append(keep, p)
	}
	if err := r.RegisterPipelines(keep...); err != nil {
		t.Fatalf("RegisterPipelines: %v", err)
	}

	f, err := newFrameContext(r, store, testSize, testSize,
		capacities{queue: DefaultBufferSize, batch: DefaultBufferSize, list: DefaultBufferSize})
	if err != nil {
		t.Fatalf("newFrameContext: %v", err)
	}
	t.Cleanup(f.Release)

	cam := camera.NewCamera(camera.WithPose(testPose), camera.WithClip(1, 1000))
	cam.SetAspect(1)
	cam.Update()
	fc := buildFrameConstants(cam, frameParams{
		width: testSize, height: testSize, software: true,
		errorThreshold: 1, refSW: 1, refHW: 32,
	})
	if err := f.uploadConstants(&fc); err != nil {
		t.Fatalf("uploadConstants: %v", err)
	}
	f.queues.Reset()

	if err := r.BeginComputeFrame(); err != nil {
		t.Fatalf("BeginComputeFrame: %v", err)
	}
	r.Barrier(recordInit(r, f)...)
	last := uint32(rounds - 1)
	for i := 0; i < rounds; i++ {
		r.Barrier(recordCullRound(r, f, uint32(i), last, false)...)
	}
	recordPartition(r, f)
	if err := r.EndComputeFrame(); err != nil {
		t.Fatalf("EndComputeFrame: %v", err)
	}
	return f.collectStats(rounds, false)
}

// ===========================================================================
// wgpu against software
// ===========================================================================

func TestWGPUCullMatchesSoftware(t *testing.T) {
	cases := []struct {
		name  string
		store func(t *testing.T) *asset.Store
	}{
		{"single visible cluster", singleVisibleCluster},
		{"fan out", fanOut},
		{"grid", grid},
		{"chain", func(t *testing.T) *asset.Store { return chain(t, 4, 1000) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gpu := newWGPURenderer(t)
			want := cullFrame(t, newTestRenderer(t), tc.store(t), DefaultCullRounds)
			got := cullFrame(t, gpu, tc.store(t), DefaultCullRounds)
			if !reflect.DeepEqual(got.Rounds, want.Rounds) {
				t.Errorf("rounds = %+v, want %+v", got.Rounds, want.Rounds)
			}
			if got.BatchClusters != want.BatchClusters || got.PartitionCulled != want.PartitionCulled {
				t.Errorf("batch %d culled %d, want batch %d culled %d",
					got.BatchClusters, got.PartitionCulled, want.BatchClusters, want.PartitionCulled)
			}
			if got.HWClusters != want.HWClusters || got.SWClusters != want.SWClusters {
				t.Errorf("hw %d sw %d, want hw %d sw %d", got.HWClusters, got.SWClusters, want.HWClusters, want.SWClusters)
			}
			if len(got.Overflows) != 0 {
				t.Errorf("overflows = %v", got.Overflows)
			}
		})
	}
}

func TestWGPUSceneRendersWithInt64Atomics(t *testing.T) {
	gpu := newWGPURenderer(t)
	if gpu.Features()&renderer.FeatureInt64Atomics == 0 {
		if _, err := NewScene(gpu, grid(t)); err == nil {
			t.Fatal("NewScene must fail on a device without 64-bit atomics")
		}
		t.Skip("adapter has no native 64-bit atomics")
	}

	want, _ := renderOnce(t, newTestScene(t, newTestRenderer(t), grid(t)))
	got, vis := renderOnce(t, newTestScene(t, gpu, grid(t)))
	if got.HWClusters != want.HWClusters || got.SWClusters != want.SWClusters {
		t.Errorf("hw %d sw %d, want hw %d sw %d", got.HWClusters, got.SWClusters, want.HWClusters, want.SWClusters)
	}
	if got.CoveredPixels == 0 {
		t.Error("the grid must cover pixels")
	}
	if len(vis.Cells) != testSize*testSize {
		t.Errorf("vis buffer has %d pixels, want %d", len(vis.Cells), testSize*testSize)
	}
}
