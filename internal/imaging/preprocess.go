package imaging

import (
	"image"

	"github.com/anthonynsimon/bild/adjust"
	"github.com/anthonynsimon/bild/effect"
	"github.com/disintegration/imaging"
	colorful "github.com/lucasb-eyer/go-colorful"
)

// OCRPrepOptions controls how a region crop is cleaned up before text
// recognition.
type OCRPrepOptions struct {
	// MinHeight is the height below which a crop is upscaled. Tesseract
	// reads poorly below roughly 30px glyph height.
	MinHeight int

	// TargetHeight is the height short crops are upscaled to.
	TargetHeight int

	// Contrast is the bild contrast change in [-1,1]. Zero disables it.
	Contrast float64
}

// DefaultOCRPrep are the settings used by the recognizer.
var DefaultOCRPrep = OCRPrepOptions{
	MinHeight:    32,
	TargetHeight: 64,
	Contrast:     0.25,
}

// PrepareForOCR returns a grayscale, dark-ink-on-light-paper version of img
// suitable for Tesseract.
//
// Thermal receipts are usually dark on light already; crops whose mean
// lightness is below one half (inverted print, dark backgrounds) are
// inverted so that the ink is always dark.
func PrepareForOCR(img image.Image, opts OCRPrepOptions) image.Image {
	var out image.Image = effect.Grayscale(img)

	if MeanLightness(out) < 0.5 {
		out = effect.Invert(out)
	}
	if opts.Contrast != 0 {
		out = adjust.Contrast(out, opts.Contrast)
	}
	if h := out.Bounds().Dy(); opts.MinHeight > 0 && h > 0 && h < opts.MinHeight {
		out = imaging.Resize(out, 0, opts.TargetHeight, imaging.Lanczos)
	}
	return out
}

// MeanLightness is the average CIE L* of img scaled to [0,1].
//
// At most about 64x64 samples are taken regardless of image size.
// Fully transparent pixels are ignored. An empty image reports 1 (white).
func MeanLightness(img image.Image) float64 {
	b := img.Bounds()
	if b.Empty() {
		return 1
	}

	stepX := b.Dx() / 64
	if stepX < 1 {
		stepX = 1
	}
	stepY := b.Dy() / 64
	if stepY < 1 {
		stepY = 1
	}

	var sum float64
	var n int
	for y := b.Min.Y; y < b.Max.Y; y += stepY {
		for x := b.Min.X; x < b.Max.X; x += stepX {
			c, ok := colorful.MakeColor(img.At(x, y))
			if !ok {
				continue
			}
			l, _, _ := c.Lab()
			sum += l
			n++
		}
	}
	if n == 0 {
		return 1
	}
	return sum / float64(n)
}
