package raster

import (
	"testing"
)

// =============================================================================
// Coverage
// =============================================================================

func TestQuadCoversEveryPixelOnce(t *testing.T) {
	vp := Viewport{Width: 16, Height: 9}
	hits := make([]int, vp.Width*vp.Height)
	emit := func(x, y uint32, _ float32) { hits[y*vp.Width+x]++ }

	bl := [4]float32{-1, -1, 0.5, 1}
	br := [4]float32{1, -1, 0.5, 1}
	tr := [4]float32{1, 1, 0.5, 1}
	tl := [4]float32{-1, 1, 0.5, 1}

	n := DrawTriangle(vp, [3][4]float32{bl, br, tr}, CullNone, emit)
	n += DrawTriangle(vp, [3][4]float32{bl, tr, tl}, CullNone, emit)

	if n != int(vp.Width*vp.Height) {
		t.Errorf("covered = %d, want %d", n, vp.Width*vp.Height)
	}
	for i, h := range hits {
		if h != 1 {
			t.Fatalf("pixel %d hit %d times, want 1", i, h)
		}
	}
}

func TestSharedEdgeIsNotDoubleCovered(t *testing.T) {
	vp := Viewport{Width: 7, Height: 8}
	hits := make(map[[2]uint32]int)
	emit := func(x, y uint32, _ float32) { hits[[2]uint32{x, y}]++ }

	// NDC x = 0 maps to screen x = 3.5, the centers of pixel column 3.
	a := [4]float32{0, -1, 0.5, 1}
	b := [4]float32{0, 1, 0.5, 1}
	DrawTriangle(vp, [3][4]float32{a, b, {-1, 0, 0.5, 1}}, CullNone, emit)
	DrawTriangle(vp, [3][4]float32{b, a, {1, 0, 0.5, 1}}, CullNone, emit)

	for p, h := range hits {
		if h > 1 {
			t.Errorf("pixel %v covered %d times", p, h)
		}
	}
	if hits[[2]uint32{3, 4}] != 1 {
		t.Errorf("pixel on the shared edge covered %d times, want 1", hits[[2]uint32{3, 4}])
	}
}

func TestDegenerateTriangleEmitsNothing(t *testing.T) {
	vp := Viewport{Width: 4, Height: 4}
	v := [4]float32{0, 0, 0.5, 1}
	n := DrawTriangle(vp, [3][4]float32{v, v, {1, 1, 0.5, 1}}, CullNone, func(uint32, uint32, float32) {
		t.Fatal("unexpected fragment")
	})
	if n != 0 {
		t.Errorf("covered = %d, want 0", n)
	}
}

func TestOffscreenTriangleEmitsNothing(t *testing.T) {
	vp := Viewport{Width: 4, Height: 4}
	tri := [3][4]float32{{2, 2, 0.5, 1}, {3, 2, 0.5, 1}, {2, 3, 0.5, 1}}
	if n := DrawTriangle(vp, tri, CullNone, func(uint32, uint32, float32) {}); n != 0 {
		t.Errorf("covered = %d, want 0", n)
	}
}

// =============================================================================
// Culling
// =============================================================================

func TestCullModes(t *testing.T) {
	vp := Viewport{Width: 8, Height: 8}
	ccw := [3][4]float32{{-1, -1, 0.5, 1}, {1, -1, 0.5, 1}, {0, 1, 0.5, 1}}
	cw := [3][4]float32{ccw[0], ccw[2], ccw[1]}
	noop := func(uint32, uint32, float32) {}

	tests := []struct {
		name    string
		tri     [3][4]float32
		cull    Cull
		covered bool
	}{
		{"ccw kept without culling", ccw, CullNone, true},
		{"cw kept without culling", cw, CullNone, true},
		{"ccw culled", ccw, CullCounterClockwise, false},
		{"ccw kept when culling cw", ccw, CullClockwise, true},
		{"cw culled", cw, CullClockwise, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := DrawTriangle(vp, tt.tri, tt.cull, noop)
			if (n > 0) != tt.covered {
				t.Errorf("covered = %d, want covered=%v", n, tt.covered)
			}
		})
	}
}

// =============================================================================
// Depth and clipping
// =============================================================================

func TestDepthIsInterpolated(t *testing.T) {
	vp := Viewport{Width: 64, Height: 64}
	tri := [3][4]float32{{-1, -1, 0.2, 1}, {1, -1, 0.2, 1}, {-1, 1, 0.2, 1}}
	DrawTriangle(vp, tri, CullNone, func(x, y uint32, z float32) {
		if z < 0.1999 || z > 0.2001 {
			t.Fatalf("depth at (%d,%d) = %v, want 0.2", x, y, z)
		}
	})
}

func TestNearPlaneClipping(t *testing.T) {
	vp := Viewport{Width: 32, Height: 32}
	// One vertex behind the near plane (z < 0, w small).
	tri := [3][4]float32{{-1, -1, 0.5, 1}, {1, -1, 0.5, 1}, {0, 0.5, -0.5, 0.1}}
	n := DrawTriangle(vp, tri, CullNone, func(x, y uint32, z float32) {
		if z < 0 || z > 1 {
			t.Fatalf("depth %v outside [0,1] at (%d,%d)", z, x, y)
		}
	})
	if n == 0 {
		t.Error("clipped triangle produced no coverage")
	}

	allBehind := [3][4]float32{{-1, -1, -0.5, 1}, {1, -1, -0.5, 1}, {0, 1, -0.5, 1}}
	if n := DrawTriangle(vp, allBehind, CullNone, func(uint32, uint32, float32) {}); n != 0 {
		t.Errorf("triangle behind near plane covered %d pixels", n)
	}
}
