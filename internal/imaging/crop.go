package imaging

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// Clamp restricts r to bounds. The result may be empty when r lies
// entirely outside bounds or is itself inverted.
func Clamp(r, bounds image.Rectangle) image.Rectangle {
	if r.Min.X < bounds.Min.X {
		r.Min.X = bounds.Min.X
	}
	if r.Min.Y < bounds.Min.Y {
		r.Min.Y = bounds.Min.Y
	}
	if r.Max.X > bounds.Max.X {
		r.Max.X = bounds.Max.X
	}
	if r.Max.Y > bounds.Max.Y {
		r.Max.Y = bounds.Max.Y
	}
	return r
}

// CropRegion cuts r out of img after clamping it to the image bounds.
//
// It returns false when the clamped region is degenerate (zero or negative
// width or height); callers skip such regions instead of failing. The
// returned crop has its origin at (0,0).
func CropRegion(img image.Image, r image.Rectangle) (*image.NRGBA, bool) {
	c := Clamp(r, img.Bounds())
	if c.Min.X >= c.Max.X || c.Min.Y >= c.Max.Y {
		return nil, false
	}
	return imaging.Crop(img, c), true
}

// EncodeJPEG encodes img as a JPEG for shipping to remote inference.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodePNG encodes img as a lossless PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}
