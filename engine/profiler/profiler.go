package profiler

import (
	"runtime"
	"time"

	"github.com/Carmen-Shannon/oxy-nano/log"
)

var logger = log.New("profiler")

// Sample is what one rendered frame reports to the profiler.
type Sample struct {
	// Duration is the host time spent rendering the frame.
	Duration time.Duration

	// HWClusters and SWClusters are the clusters routed to each raster path.
	HWClusters uint32
	SWClusters uint32

	// Overflowed is set when any fixed-capacity buffer dropped entries.
	Overflowed bool
}

// Summary aggregates every sample since the profiler was created.
type Summary struct {
	Frames        int
	Total         time.Duration
	Min           time.Duration
	Max           time.Duration
	HWClusters    uint64
	SWClusters    uint64
	OverflowCount int
}

// Average returns the mean frame time, or zero before the first frame.
func (s Summary) Average() time.Duration {
	if s.Frames == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Frames)
}

// Profiler tracks frame rate, cluster throughput and memory statistics.
// Logs at a configurable interval.
type Profiler struct {
	now            func() time.Time
	updateInterval time.Duration

	// window since the last log line
	frameCount int
	lastTime   time.Time
	frameTime  time.Duration
	clusters   uint64

	summary        Summary
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64
}

// NewProfiler creates a new Profiler. The update interval defaults to 1 second.
//
// Parameters:
//   - options: functional options
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler(options ...ProfilerOption) *Profiler {
	p := &Profiler{
		now:            time.Now,
		updateInterval: time.Second,
	}
	for _, opt := range options {
		opt(p)
	}
	p.lastTime = p.now()
	return p
}

// Tick records one frame. Logs performance statistics when the update interval has elapsed:
// FPS, mean frame time, clusters per frame, heap usage, allocation rate and GC pauses.
//
// Parameters:
//   - s: the frame's sample
//
// Returns:
//   - bool: true if stats were logged this tick, false otherwise
func (p *Profiler) Tick(s Sample) bool {
	p.Record(s)

	currentTime := p.now()
	elapsed := currentTime.Sub(p.lastTime)
	if elapsed < p.updateInterval {
		return false
	}

	fps := float64(p.frameCount) / elapsed.Seconds()
	meanMs := float64(p.frameTime.Microseconds()) / 1000 / float64(p.frameCount)
	clustersPerFrame := float64(p.clusters) / float64(p.frameCount)

	runtime.ReadMemStats(&p.memStats)
	allocMB := float64(p.memStats.Alloc) / 1024 / 1024
	sysMB := float64(p.memStats.Sys) / 1024 / 1024
	allocRateMB := float64(p.memStats.TotalAlloc-p.lastTotalAlloc) / 1024 / 1024 / elapsed.Seconds()

	gcCount := p.memStats.NumGC
	var maxPauseUs uint64
	// PauseNs is a ring of the last 256 pauses.
	startIdx := p.lastGCCount
	if gcCount-startIdx > 256 {
		startIdx = gcCount - 256
	}
	for i := startIdx; i < gcCount; i++ {
		maxPauseUs = max(maxPauseUs, p.memStats.PauseNs[i%256]/1000)
	}

	logger.Infof("FPS: %.2f | Frame: %.2f ms | Clusters: %.0f | Heap: %.2f MB | Alloc Rate: %.2f MB/s | GC: %d (max: %d µs) | Sys: %.2f MB",
		fps, meanMs, clustersPerFrame, allocMB, allocRateMB, gcCount, maxPauseUs, sysMB)

	p.frameCount = 0
	p.frameTime = 0
	p.clusters = 0
	p.lastTime = currentTime
	p.lastGCCount = gcCount
	p.lastTotalAlloc = p.memStats.TotalAlloc
	return true
}

// Record adds a frame to the totals and the current window without logging.
func (p *Profiler) Record(s Sample) {
	p.frameCount++
	p.frameTime += s.Duration
	p.clusters += uint64(s.HWClusters) + uint64(s.SWClusters)

	sum := &p.summary
	if sum.Frames == 0 || s.Duration < sum.Min {
		sum.Min = s.Duration
	}
	sum.Max = max(sum.Max, s.Duration)
	sum.Frames++
	sum.Total += s.Duration
	sum.HWClusters += uint64(s.HWClusters)
	sum.SWClusters += uint64(s.SWClusters)
	if s.Overflowed {
		sum.OverflowCount++
	}
}

// Summary returns the totals over every recorded frame.
func (p *Profiler) Summary() Summary {
	return p.summary
}
