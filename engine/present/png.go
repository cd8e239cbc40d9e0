package present

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"os"
	"strings"

	"github.com/Carmen-Shannon/oxy-nano/common"
	"github.com/Carmen-Shannon/oxy-nano/engine/renderer/resource"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// labelPadding is the margin around the label text in pixels.
const labelPadding = 4

// ToRGBA converts a float image to 8 bits per channel, clamping every channel to [0, 1].
//
// Parameters:
//   - img: the source image, row 0 at the top
//
// Returns:
//   - *image.RGBA: a new image of the same size
func ToRGBA(img resource.Image) *image.RGBA {
	w, h := int(img.Width()), int(img.Height())
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	texels := img.Texels()
	for y := 0; y < h; y++ {
		row := out.Pix[y*out.Stride:]
		for x := 0; x < w; x++ {
			t := texels[y*w+x]
			for c := 0; c < 4; c++ {
				row[4*x+c] = uint8(common.Clamp01(t[c])*255 + 0.5)
			}
		}
	}
	return out
}

// DrawLabel writes text into the top-left corner of dst over a dark backing box.
// Each line of text is one row of the 7x13 bitmap font.
//
// Parameters:
//   - dst: the image to draw into
//   - text: the label, lines separated by '\n'
func DrawLabel(dst draw.Image, text string) {
	if text == "" {
		return
	}
	face := basicfont.Face7x13
	lines := strings.Split(text, "\n")

	width := 0
	for _, line := range lines {
		width = max(width, font.MeasureString(face, line).Ceil())
	}
	lineHeight := face.Metrics().Height.Ceil()
	box := image.Rect(0, 0, width+2*labelPadding, len(lines)*lineHeight+2*labelPadding).Intersect(dst.Bounds())
	draw.Draw(dst, box, image.NewUniform(color.RGBA{A: 180}), image.Point{}, draw.Over)

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.White,
		Face: face,
	}
	for i, line := range lines {
		d.Dot = fixed.P(labelPadding, labelPadding+face.Ascent+i*lineHeight)
		d.DrawString(line)
	}
}

// EncodePNG writes img, with an optional label, as PNG to w.
//
// Parameters:
//   - w: the destination
//   - img: the resolved visualization image
//   - label: text drawn in the corner (empty for none)
//
// Returns:
//   - error: error if encoding fails
func EncodePNG(w io.Writer, img resource.Image, label string) error {
	if img == nil || img.Released() {
		return fmt.Errorf("present: image is not available")
	}
	rgba := ToRGBA(img)
	DrawLabel(rgba, label)
	return png.Encode(w, rgba)
}

// SavePNG writes img to a PNG file at path.
//
// Parameters:
//   - path: the output file, created or truncated
//   - img: the resolved visualization image
//   - label: text drawn in the corner (empty for none)
//
// Returns:
//   - error: error if the file cannot be written
func SavePNG(path string, img resource.Image, label string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("present: %w", err)
	}
	if err := EncodePNG(f, img, label); err != nil {
		f.Close()
		return fmt.Errorf("present: encode %s: %w", path, err)
	}
	return f.Close()
}
