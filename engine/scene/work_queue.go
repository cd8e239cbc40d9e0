package scene

import (
	"github.com/Carmen-Shannon/oxy-nano/engine/renderer/resource"
)

// queueView reads and appends entries of a queue or batch buffer from inside a kernel.
// Appends are an atomic fetch-and-add of the count; an index past capacity is dropped and
// counted in the header's overflow word.
type queueView struct {
	buf      resource.Buffer
	capacity uint32
}

func newQueueView(buf resource.Buffer) queueView {
	return queueView{buf: buf, capacity: queueCapacity(buf.Size())}
}

// queueCapacity returns how many entries a queue buffer of size bytes holds.
func queueCapacity(size uint64) uint32 {
	if size < queueHeaderSize {
		return 0
	}
	return uint32((size - queueHeaderSize) / queueEntrySize)
}

// count returns the number of readable entries, clamped to capacity.
func (q queueView) count() uint32 {
	return min(q.buf.LoadU32(queueCountOffset), q.capacity)
}

func (q queueView) entry(i uint32) (uint32, uint32) {
	off := queueHeaderSize + uint64(i)*queueEntrySize
	return q.buf.LoadU32(off), q.buf.LoadU32(off + 4)
}

func (q queueView) setEntry(i uint32, a, b uint32) {
	off := queueHeaderSize + uint64(i)*queueEntrySize
	q.buf.StoreU32(off, a)
	q.buf.StoreU32(off+4, b)
}

// push appends one entry and reports whether it fit.
func (q queueView) push(a, b uint32) bool {
	idx := q.buf.AddU32(queueCountOffset, 1)
	if idx >= q.capacity {
		q.buf.AddU32(queueOverflowOffset, 1)
		return false
	}
	q.setEntry(idx, a, b)
	return true
}

// reset empties the queue and clears its dispatch arguments.
func (q queueView) reset() {
	q.buf.StoreU32(queueCountOffset, 0)
	q.buf.StoreU32(queueGroupsOffset, 0)
	q.buf.StoreU32(queueGroupsOffset+4, 0)
	q.buf.StoreU32(queueGroupsOffset+8, 0)
	q.buf.StoreU32(queueOverflowOffset, 0)
}

// writeGroups turns the readable count into a one-dimensional indirect dispatch.
func (q queueView) writeGroups(groupSize uint32) {
	n := q.count()
	q.buf.StoreU32(queueGroupsOffset, (n+groupSize-1)/groupSize)
	q.buf.StoreU32(queueGroupsOffset+4, 1)
	q.buf.StoreU32(queueGroupsOffset+8, 1)
}

// WorkQueues is the ping-pong pair the cull rounds alternate between. Round i reads Current and
// appends to Next; Swap hands the produced entries to the following round.
type WorkQueues struct {
	a, b    resource.Buffer
	flipped bool
}

// NewWorkQueues wraps two queue buffers. a is the input of round 0.
func NewWorkQueues(a, b resource.Buffer) *WorkQueues {
	return &WorkQueues{a: a, b: b}
}

// Current returns the queue the next round reads.
func (w *WorkQueues) Current() resource.Buffer {
	if w.flipped {
		return w.b
	}
	return w.a
}

// Next returns the queue the next round appends to.
func (w *WorkQueues) Next() resource.Buffer {
	if w.flipped {
		return w.a
	}
	return w.b
}

// Swap exchanges the roles of the two queues.
func (w *WorkQueues) Swap() {
	w.flipped = !w.flipped
}

// Reset makes the first queue the input again, as at the start of a frame.
func (w *WorkQueues) Reset() {
	w.flipped = false
}

// Buffers returns both queue buffers, first queue first.
func (w *WorkQueues) Buffers() (resource.Buffer, resource.Buffer) {
	return w.a, w.b
}

// listView appends cluster indices to the visible cluster list buffer.
type listView struct {
	buf      resource.Buffer
	capacity uint32
}

func newListView(buf resource.Buffer) listView {
	return listView{buf: buf, capacity: listCapacity(buf.Size())}
}

func listCapacity(size uint64) uint32 {
	if size < listHeaderSize {
		return 0
	}
	return uint32((size - listHeaderSize) / listEntrySize)
}

// push reserves one slot of the shared list area, then appends to the front (hardware) or the
// back (software). Reserving first keeps the two ends from crossing.
func (l listView) push(cluster uint32, hardware bool) bool {
	if l.buf.AddU32(listReservedOffset, 1) >= l.capacity {
		l.buf.AddU32(listOverflowOffset, 1)
		return false
	}
	if hardware {
		idx := l.buf.AddU32(listHWCountOffset, 1)
		l.buf.StoreU32(listHeaderSize+uint64(idx)*listEntrySize, cluster)
	} else {
		idx := l.buf.AddU32(listSWCountOffset, 1)
		l.buf.StoreU32(listHeaderSize+uint64(l.capacity-1-idx)*listEntrySize, cluster)
	}
	return true
}

func (l listView) hardware(i uint32) uint32 {
	return l.buf.LoadU32(listHeaderSize + uint64(i)*listEntrySize)
}

func (l listView) software(i uint32) uint32 {
	return l.buf.LoadU32(listHeaderSize + uint64(l.capacity-1-i)*listEntrySize)
}

func (l listView) counts() (hw, sw uint32) {
	return l.buf.LoadU32(listHWCountOffset), l.buf.LoadU32(listSWCountOffset)
}

func (l listView) reset() {
	l.buf.Fill64(0, listHeaderSize/8, 0)
}
