package imaging

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

// solidImage returns an in-memory image filled with c.
func solidImage(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// createTestImage writes a solid PNG into a temp dir and returns its path.
func createTestImage(t *testing.T, width, height int, c color.Color) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "receipt.png")

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	defer f.Close()

	if err := png.Encode(f, solidImage(width, height, c)); err != nil {
		t.Fatalf("failed to encode image: %v", err)
	}
	return path
}

func pngBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode image: %v", err)
	}
	return buf.Bytes()
}

func TestDecode(t *testing.T) {
	data := pngBytes(t, solidImage(40, 30, color.RGBA{10, 20, 30, 255}))

	img, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if img.Bounds() != image.Rect(0, 0, 40, 30) {
		t.Errorf("bounds: got %v, want (0,0)-(40,30)", img.Bounds())
	}
	got := img.NRGBAAt(5, 5)
	if got.R != 10 || got.G != 20 || got.B != 30 || got.A != 255 {
		t.Errorf("pixel: got %v, want {10 20 30 255}", got)
	}
}

func TestDecode_Empty(t *testing.T) {
	_, err := Decode(nil)
	if !errors.Is(err, ErrEmptyImage) {
		t.Errorf("Decode(nil): got %v, want ErrEmptyImage", err)
	}
}

func TestDecode_NotAnImage(t *testing.T) {
	_, err := Decode([]byte("this is a text file, not a receipt"))
	if err == nil {
		t.Fatal("expected error for non-image bytes")
	}
	if errors.Is(err, ErrEmptyImage) {
		t.Error("non-image bytes should not report ErrEmptyImage")
	}
}

func TestDecode_JPEG(t *testing.T) {
	data, err := EncodeJPEG(solidImage(16, 16, color.White), 90)
	if err != nil {
		t.Fatalf("EncodeJPEG failed: %v", err)
	}
	img, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if img.Bounds().Dx() != 16 || img.Bounds().Dy() != 16 {
		t.Errorf("dimensions: got %v, want 16x16", img.Bounds())
	}
}

func TestImageCache_Load(t *testing.T) {
	path := createTestImage(t, 20, 10, color.White)
	cache := NewImageCache(0)

	first, err := cache.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(first.Data) == 0 {
		t.Error("Loaded.Data is empty")
	}
	if first.Image.Bounds().Dx() != 20 {
		t.Errorf("width: got %d, want 20", first.Image.Bounds().Dx())
	}

	second, err := cache.Load(path)
	if err != nil {
		t.Fatalf("second Load failed: %v", err)
	}
	if first != second {
		t.Error("second Load should return the cached entry")
	}
	if cache.Len() != 1 {
		t.Errorf("Len: got %d, want 1", cache.Len())
	}
}

func TestImageCache_LoadMissing(t *testing.T) {
	cache := NewImageCache(0)
	if _, err := cache.Load(filepath.Join(t.TempDir(), "missing.png")); err == nil {
		t.Fatal("expected error for missing file")
	}
	if cache.Len() != 0 {
		t.Errorf("failed load should not be cached, Len = %d", cache.Len())
	}
}

func TestImageCache_EvictAndClear(t *testing.T) {
	a := createTestImage(t, 5, 5, color.White)
	b := createTestImage(t, 6, 6, color.Black)
	cache := NewImageCache(0)

	for _, p := range []string{a, b} {
		if _, err := cache.Load(p); err != nil {
			t.Fatalf("Load(%s) failed: %v", p, err)
		}
	}

	if !cache.Evict(a) {
		t.Error("Evict of a cached path should report true")
	}
	if cache.Len() != 1 {
		t.Errorf("after Evict: Len = %d, want 1", cache.Len())
	}
	if cache.Evict("not-cached") {
		t.Error("Evict of an unknown path should report false")
	}
	if cache.Len() != 1 {
		t.Errorf("evicting an unknown path changed Len to %d", cache.Len())
	}

	cache.Clear()
	if cache.Len() != 0 {
		t.Errorf("after Clear: Len = %d, want 0", cache.Len())
	}
}

func TestImageCache_DropsOldestWhenFull(t *testing.T) {
	a := createTestImage(t, 5, 5, color.White)
	b := createTestImage(t, 6, 6, color.White)
	c := createTestImage(t, 7, 7, color.White)
	cache := NewImageCache(2)

	first, err := cache.Load(a)
	if err != nil {
		t.Fatalf("Load(a) failed: %v", err)
	}
	for _, p := range []string{b, c} {
		if _, err := cache.Load(p); err != nil {
			t.Fatalf("Load(%s) failed: %v", p, err)
		}
	}
	if cache.Len() != 2 {
		t.Errorf("Len: got %d, want 2", cache.Len())
	}

	again, err := cache.Load(a)
	if err != nil {
		t.Fatalf("reload of a failed: %v", err)
	}
	if again == first {
		t.Error("a should have been dropped and decoded again")
	}
	if cache.Len() != 2 {
		t.Errorf("Len after reload: got %d, want 2", cache.Len())
	}

	// b was the oldest remaining entry.
	if cache.Evict(b) {
		t.Error("b should have been dropped when a was reloaded")
	}
	if !cache.Evict(c) {
		t.Error("c should still be cached")
	}
}

func TestImageCache_Concurrent(t *testing.T) {
	path := createTestImage(t, 32, 32, color.White)
	cache := NewImageCache(0)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cache.Load(path); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent Load failed: %v", err)
	}
	if cache.Len() != 1 {
		t.Errorf("Len: got %d, want 1", cache.Len())
	}
}
