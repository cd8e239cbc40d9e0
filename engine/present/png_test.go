package present

import (
	"bytes"
	"image/png"
	"path/filepath"
	"testing"

	"github.com/Carmen-Shannon/oxy-nano/engine/renderer/resource"
)

// ============================================================================
// PNG export
// ============================================================================

func TestToRGBAClampsChannels(t *testing.T) {
	img := resource.NewImage("color", 2, 1)
	img.Store(0, 0, [4]float32{2, -1, 0.5, 1})
	img.Store(1, 0, [4]float32{0, 1, 0, 0})

	rgba := ToRGBA(img)
	got := rgba.Pix[:8]
	want := []uint8{255, 0, 128, 255, 0, 255, 0, 0}
	if !bytes.Equal(got, want) {
		t.Errorf("pixels = %v, want %v", got, want)
	}
}

func TestEncodePNGRoundTripsSize(t *testing.T) {
	img := resource.NewImage("color", 40, 30)
	var buf bytes.Buffer
	if err := EncodePNG(&buf, img, ""); err != nil {
		t.Fatalf("EncodePNG: %v", err)
	}
	decoded, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("png.Decode: %v", err)
	}
	if b := decoded.Bounds(); b.Dx() != 40 || b.Dy() != 30 {
		t.Errorf("decoded size = %v", b)
	}
}

func TestDrawLabelMarksCorner(t *testing.T) {
	img := resource.NewImage("color", 120, 40)
	rgba := ToRGBA(img)
	DrawLabel(rgba, "mip 3\nclusters")

	lit := 0
	for y := 0; y < 34; y++ {
		for x := 0; x < 70; x++ {
			if rgba.RGBAAt(x, y).R > 128 {
				lit++
			}
		}
	}
	if lit == 0 {
		t.Errorf("label drew no text pixels")
	}
	if c := rgba.RGBAAt(119, 39); c.R != 0 || c.A != 0 {
		t.Errorf("far corner touched: %v", c)
	}
}

func TestSavePNGReleasedImage(t *testing.T) {
	img := resource.NewImage("color", 4, 4)
	img.Release()
	if err := SavePNG(filepath.Join(t.TempDir(), "out.png"), img, ""); err == nil {
		t.Errorf("expected an error for a released image")
	}
}
