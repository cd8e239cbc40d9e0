package scene

import (
	"time"
)

// Names of the growable buffers, as reported in FrameStats.Overflows and ErrCapacityExceeded.
const (
	BufferWorkQueues      = "work_queues"
	BufferBatch           = "batch"
	BufferVisibleClusters = "visible_clusters"
)

// RoundStats are the counters one cull round wrote to the echo buffer.
type RoundStats struct {
	Round           int
	Visited         uint32
	Culled          uint32
	Accepted        uint32
	EmittedClusters uint32
	Pushed          uint32
	Clamped         uint32
	QueueOverflow   uint32
	BatchOverflow   uint32
}

// VisitEntry records that a node was read by a round.
type VisitEntry struct {
	Node  uint32
	Round uint32
}

// FrameStats summarizes one rendered frame, read back from the echo and list buffers.
type FrameStats struct {
	Frame     uint32
	Rounds    []RoundStats
	RoundsRun int

	BatchClusters   uint32
	PartitionCulled uint32
	HWClusters      uint32
	SWClusters      uint32
	HWEstimated     uint32
	CoveredPixels   uint32

	// Overflows names every buffer that dropped entries in the final attempt.
	Overflows []string
	// Regrown counts the re-renders after growing overflowing buffers.
	Regrown int

	VisitLog          []VisitEntry
	VisitLogTruncated uint32

	Duration time.Duration
}

// Overflowed reports whether any buffer dropped entries.
func (s FrameStats) Overflowed() bool {
	return len(s.Overflows) > 0
}

// Accepted returns the node count accepted at their own LOD across all rounds.
func (s FrameStats) Accepted() uint32 {
	var n uint32
	for _, r := range s.Rounds {
		n += r.Accepted
	}
	return n
}

// Clamped returns the node count accepted only because the round limit was reached.
func (s FrameStats) Clamped() uint32 {
	var n uint32
	for _, r := range s.Rounds {
		n += r.Clamped
	}
	return n
}
