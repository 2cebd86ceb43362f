package server

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/ironsheep/receipt-extractor/internal/app"
	"github.com/ironsheep/receipt-extractor/internal/config"
	"github.com/ironsheep/receipt-extractor/internal/detection"
	"github.com/ironsheep/receipt-extractor/internal/ocr"
)

// createTestImageFile creates a test image file and returns its path
func createTestImageFile(t *testing.T, width, height int, c color.Color) string {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}

	path := filepath.Join(t.TempDir(), "receipt.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create file: %v", err)
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		t.Fatalf("failed to encode image: %v", err)
	}
	return path
}

type stubDetector struct {
	regions []detection.Region
}

func (d stubDetector) Detect(context.Context, image.Image) ([]detection.Region, error) {
	return d.regions, nil
}

// stubRecognizer answers by crop size, "WxH".
type stubRecognizer struct {
	texts map[string]string
}

func (r stubRecognizer) Recognize(_ context.Context, img image.Image) (string, error) {
	b := img.Bounds()
	return r.texts[fmt.Sprintf("%dx%d", b.Dx(), b.Dy())], nil
}

// wordRecognizer also reports word boxes.
type wordRecognizer struct {
	stubRecognizer
}

func (r wordRecognizer) RecognizeDetailed(ctx context.Context, img image.Image) (*ocr.Result, error) {
	text, _ := r.Recognize(ctx, img)
	return &ocr.Result{
		Text:  text,
		Words: []ocr.Word{{Text: text, Confidence: 0.9, Bounds: ocr.Bounds{X1: 1, Y1: 1, X2: 20, Y2: 10}}},
	}, nil
}

type stubClassifier struct{}

func (stubClassifier) Predict(context.Context, string) (string, error) {
	return "Groceries", nil
}

// receiptRegions lays out a sum box and an invoice box on a 200x100 image.
var receiptRegions = []detection.Region{
	{Class: detection.ClassSum, Box: detection.Box{X1: 0, Y1: 0, X2: 50, Y2: 20}, Confidence: 0.91},
	{Class: detection.ClassInvoice, Box: detection.Box{X1: 0, Y1: 20, X2: 200, Y2: 80}, Confidence: 0.8},
}

var receiptTexts = map[string]string{
	"50x20":  "52,30",
	"200x60": "MILK 1.20\nBREAD 2.10\n15.11.2025",
}

func newTestServer(t *testing.T, rec ocr.Recognizer) *Server {
	t.Helper()
	cfg := config.Defaults()
	cfg.Detector.Backend = config.DetectorHeuristic

	a, err := app.New(context.Background(), cfg,
		app.WithDetector(stubDetector{regions: receiptRegions}),
		app.WithRecognizer(rec),
		app.WithClassifier(stubClassifier{}))
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return New(a)
}

func defaultServer(t *testing.T) *Server {
	return newTestServer(t, stubRecognizer{texts: receiptTexts})
}

// callTool runs a tools/call request and decodes the text content.
func callTool(t *testing.T, s *Server, name string, args interface{}) (*MCPResponse, map[string]interface{}) {
	t.Helper()

	params := map[string]interface{}{"name": name, "arguments": args}
	paramsJSON, _ := json.Marshal(params)

	resp := s.handleRequest(context.Background(), &MCPRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "tools/call",
		Params:  paramsJSON,
	})
	if resp == nil {
		t.Fatal("handleRequest returned nil")
	}
	if resp.Error != nil {
		return resp, nil
	}

	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatal("Result should be a map")
	}
	content, ok := result["content"].([]map[string]interface{})
	if !ok || len(content) != 1 {
		t.Fatalf("content: got %#v", result["content"])
	}
	text, _ := content[0]["text"].(string)

	var out map[string]interface{}
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		t.Fatalf("tool output is not JSON: %v\n%s", err, text)
	}
	return resp, out
}
