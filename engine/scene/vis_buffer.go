package scene

import (
	"encoding/binary"
)

// VisBuffer is a host copy of the visibility buffer: one packed cell per pixel, row-major.
type VisBuffer struct {
	Width  uint32
	Height uint32
	Cells  []uint64
}

func newVisBuffer(width, height uint32, data []byte) VisBuffer {
	v := VisBuffer{Width: width, Height: height, Cells: make([]uint64, int(width)*int(height))}
	for i := range v.Cells {
		v.Cells[i] = binary.LittleEndian.Uint64(data[i*8:])
	}
	return v
}

// Cell returns the packed cell of pixel (x, y).
func (v VisBuffer) Cell(x, y uint32) uint64 {
	return v.Cells[y*v.Width+x]
}

// Covered returns the number of non-empty cells.
func (v VisBuffer) Covered() int {
	n := 0
	for _, c := range v.Cells {
		if c != VisEmpty {
			n++
		}
	}
	return n
}

// Triangles returns the distinct (cluster, triangle) pairs that won at least one pixel.
func (v VisBuffer) Triangles() map[[2]uint32]int {
	out := make(map[[2]uint32]int)
	for _, c := range v.Cells {
		if c == VisEmpty {
			continue
		}
		_, cluster, tri := UnpackVisCell(c)
		out[[2]uint32{cluster, tri}]++
	}
	return out
}

// Equal reports whether two readbacks are byte-identical.
func (v VisBuffer) Equal(o VisBuffer) bool {
	if v.Width != o.Width || v.Height != o.Height || len(v.Cells) != len(o.Cells) {
		return false
	}
	for i := range v.Cells {
		if v.Cells[i] != o.Cells[i] {
			return false
		}
	}
	return true
}

// visBufferSize returns the byte size of the visibility buffer of a viewport.
func visBufferSize(width, height uint32) uint64 {
	return uint64(width) * uint64(height) * 8
}
