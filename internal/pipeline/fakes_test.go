package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"

	"github.com/ironsheep/receipt-extractor/internal/detection"
)

// fakeDetector returns a fixed region list.
type fakeDetector struct {
	regions []detection.Region
	err     error
}

func (d *fakeDetector) Detect(ctx context.Context, img image.Image) ([]detection.Region, error) {
	if d.err != nil {
		return nil, d.err
	}
	return append([]detection.Region(nil), d.regions...), nil
}

// fakeRecognizer answers by crop size, "WxH", so tests can address
// individual regions.
type fakeRecognizer struct {
	mu    sync.Mutex
	texts map[string]string
	fail  map[string]error
	calls []string
}

func (r *fakeRecognizer) Recognize(ctx context.Context, img image.Image) (string, error) {
	key := fmt.Sprintf("%dx%d", img.Bounds().Dx(), img.Bounds().Dy())
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, key)
	if err := r.fail[key]; err != nil {
		return "", err
	}
	return r.texts[key], nil
}

func (r *fakeRecognizer) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// fakeClassifier records its inputs.
type fakeClassifier struct {
	mu     sync.Mutex
	label  string
	err    error
	inputs []string
}

func (c *fakeClassifier) Predict(ctx context.Context, text string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inputs = append(c.inputs, text)
	if c.err != nil {
		return "", c.err
	}
	return c.label, nil
}

func (c *fakeClassifier) seen() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.inputs...)
}

func receiptPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.White)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode image: %v", err)
	}
	return buf.Bytes()
}

func region(c detection.Class, x1, y1, x2, y2 int, conf float64) detection.Region {
	return detection.Region{
		Class:      c,
		Box:        detection.Box{X1: x1, Y1: y1, X2: x2, Y2: y2},
		Confidence: conf,
	}
}
