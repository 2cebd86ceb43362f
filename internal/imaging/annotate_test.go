package imaging

import (
	"encoding/base64"
	"image"
	"image/color"
	"testing"
)

func TestAnnotate(t *testing.T) {
	img := solidImage(100, 100, color.Black)
	boxes := []Box{
		{Rect: image.Rect(10, 10, 50, 50), Label: "7 0.91"},
		{Rect: image.Rect(200, 200, 300, 300), Label: "1"},
	}

	result, err := Annotate(img, boxes, "#00FF00")
	if err != nil {
		t.Fatalf("Annotate failed: %v", err)
	}
	if result.Boxes != 1 {
		t.Errorf("Boxes: got %d, want 1 (outside box skipped)", result.Boxes)
	}
	if result.MimeType != "image/png" || result.Width != 100 || result.Height != 100 {
		t.Errorf("unexpected result header: %+v", result)
	}

	data, err := base64.StdEncoding.DecodeString(result.ImageBase64)
	if err != nil {
		t.Fatalf("failed to decode base64: %v", err)
	}
	out, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	// Bottom edge of the box, away from the label.
	if c := out.NRGBAAt(30, 49); c.G != 255 || c.R != 0 {
		t.Errorf("outline pixel: got %v, want green", c)
	}
	if c := out.NRGBAAt(30, 30); c.G != 0 {
		t.Errorf("interior pixel should be untouched, got %v", c)
	}
}

func TestParseHexColor(t *testing.T) {
	tests := []struct {
		in      string
		want    color.RGBA
		wantErr bool
	}{
		{"#FF0000", color.RGBA{255, 0, 0, 255}, false},
		{"00FF0080", color.RGBA{0, 255, 0, 128}, false},
		{"#FFF", color.RGBA{}, true},
		{"", color.RGBA{}, true},
		{"#GGGGGG", color.RGBA{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseHexColor(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseHexColor(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("parseHexColor(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
