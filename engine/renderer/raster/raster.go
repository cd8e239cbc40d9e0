// Package raster holds the triangle coverage rules shared by the fixed-function draw path and the
// compute rasterizer, so both paths cover exactly the same pixels for the same triangle.
package raster

import (
	"math"
)

// Cull selects which clip-space winding is discarded. Windings are measured in NDC with +Y up.
type Cull int

const (
	// CullNone keeps both windings.
	CullNone Cull = iota
	// CullClockwise discards triangles that wind clockwise in NDC.
	CullClockwise
	// CullCounterClockwise discards triangles that wind counter-clockwise in NDC.
	CullCounterClockwise
)

// Viewport is the pixel grid triangles are rasterized onto. Pixel (0, 0) is the top-left corner.
type Viewport struct {
	Width  uint32
	Height uint32
}

// FragmentFunc receives one covered pixel and its interpolated NDC depth in [0, 1].
type FragmentFunc func(x, y uint32, depth float32)

// screenVertex is a vertex after the perspective divide and viewport transform.
type screenVertex struct {
	x, y, z float64
}

// DrawTriangle rasterizes one clip-space triangle.
//
// The triangle is clipped against the near plane (clip z >= 0), divided by w and mapped onto the
// viewport with Y pointing down. A pixel is covered when its center lies inside the triangle or on
// a top or left edge. Depth is interpolated linearly in screen space; samples beyond the far plane
// are discarded.
//
// Parameters:
//   - vp: the target viewport
//   - clip: the three clip-space vertices
//   - cull: the winding to discard
//   - emit: called once per covered pixel
//
// Returns:
//   - int: the number of pixels emitted
func DrawTriangle(vp Viewport, clip [3][4]float32, cull Cull, emit FragmentFunc) int {
	if vp.Width == 0 || vp.Height == 0 {
		return 0
	}

	var poly [4][4]float64
	n := clipNear(clip, &poly)
	if n < 3 {
		return 0
	}

	var sv [4]screenVertex
	for i := 0; i < n; i++ {
		sv[i] = toScreen(vp, poly[i])
	}

	covered := 0
	for i := 1; i+1 < n; i++ {
		covered += drawScreenTriangle(vp, sv[0], sv[i], sv[i+1], cull, emit)
	}
	return covered
}

// clipNear clips the triangle against z >= 0 and writes the resulting convex polygon into out.
// A triangle clipped by one plane has at most four vertices.
func clipNear(clip [3][4]float32, out *[4][4]float64) int {
	var in [3][4]float64
	for i := range clip {
		for j := 0; j < 4; j++ {
			in[i][j] = float64(clip[i][j])
		}
	}

	n := 0
	for i := 0; i < 3; i++ {
		cur := in[i]
		next := in[(i+1)%3]
		curIn := cur[2] >= 0
		nextIn := next[2] >= 0

		if curIn {
			out[n] = cur
			n++
		}
		if curIn != nextIn {
			t := cur[2] / (cur[2] - next[2])
			var p [4]float64
			for j := 0; j < 4; j++ {
				p[j] = cur[j] + t*(next[j]-cur[j])
			}
			p[2] = 0
			out[n] = p
			n++
		}
	}
	return n
}

func toScreen(vp Viewport, c [4]float64) screenVertex {
	w := c[3]
	if w <= 0 {
		w = math.SmallestNonzeroFloat32
	}
	nx, ny, nz := c[0]/w, c[1]/w, c[2]/w
	return screenVertex{
		x: (nx*0.5 + 0.5) * float64(vp.Width),
		y: (0.5 - ny*0.5) * float64(vp.Height),
		z: nz,
	}
}

// edge is positive when p lies to the right of a->b in Y-down screen space.
func edge(a, b screenVertex, px, py float64) float64 {
	return (b.x-a.x)*(py-a.y) - (b.y-a.y)*(px-a.x)
}

// topLeft reports whether a->b is a top or left edge of a triangle with positive area.
func topLeft(a, b screenVertex) bool {
	dx, dy := b.x-a.x, b.y-a.y
	return (dy == 0 && dx > 0) || dy < 0
}

func drawScreenTriangle(vp Viewport, v0, v1, v2 screenVertex, cull Cull, emit FragmentFunc) int {
	area := edge(v0, v1, v2.x, v2.y)
	if area == 0 || math.IsNaN(area) {
		return 0
	}

	// The Y flip keeps the visual winding, so positive area is clockwise in NDC as well.
	switch {
	case cull == CullClockwise && area > 0:
		return 0
	case cull == CullCounterClockwise && area < 0:
		return 0
	}
	if area < 0 {
		v1, v2 = v2, v1
		area = -area
	}

	minX := math.Floor(math.Min(v0.x, math.Min(v1.x, v2.x)))
	maxX := math.Ceil(math.Max(v0.x, math.Max(v1.x, v2.x)))
	minY := math.Floor(math.Min(v0.y, math.Min(v1.y, v2.y)))
	maxY := math.Ceil(math.Max(v0.y, math.Max(v1.y, v2.y)))

	x0, x1 := clampPixel(minX, vp.Width), clampPixel(maxX, vp.Width)
	y0, y1 := clampPixel(minY, vp.Height), clampPixel(maxY, vp.Height)
	if maxX < 0 || maxY < 0 || minX >= float64(vp.Width) || minY >= float64(vp.Height) {
		return 0
	}

	tl0, tl1, tl2 := topLeft(v1, v2), topLeft(v2, v0), topLeft(v0, v1)
	inv := 1 / area

	covered := 0
	for py := y0; py <= y1; py++ {
		sy := float64(py) + 0.5
		for px := x0; px <= x1; px++ {
			sx := float64(px) + 0.5
			w0 := edge(v1, v2, sx, sy)
			w1 := edge(v2, v0, sx, sy)
			w2 := edge(v0, v1, sx, sy)
			if !inside(w0, tl0) || !inside(w1, tl1) || !inside(w2, tl2) {
				continue
			}
			z := (w0*v0.z + w1*v1.z + w2*v2.z) * inv
			if z < 0 || z > 1 {
				continue
			}
			emit(px, py, float32(z))
			covered++
		}
	}
	return covered
}

func inside(w float64, topLeft bool) bool {
	return w > 0 || (w == 0 && topLeft)
}

func clampPixel(v float64, size uint32) uint32 {
	if v < 0 {
		return 0
	}
	if v > float64(size-1) {
		return size - 1
	}
	return uint32(v)
}
