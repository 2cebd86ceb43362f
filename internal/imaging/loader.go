package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"os"
	"sync"

	"github.com/disintegration/imaging"
)

// ErrEmptyImage is returned when there are no bytes to decode.
var ErrEmptyImage = errors.New("empty image data")

// Decode turns encoded image bytes into an 8-bit RGBA pixel grid.
//
// EXIF orientation is applied, so a phone photo taken in portrait comes out
// upright. The result always has its origin at (0,0), which keeps region
// coordinates reported by detectors directly usable as pixel offsets.
//
// # Errors
//
//   - ErrEmptyImage if data is empty
//   - A wrapped decoder error if the bytes are not a PNG, JPEG, or GIF image
func Decode(data []byte) (*image.NRGBA, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return imaging.Clone(img), nil
}

// Loaded is a receipt image read from disk together with its raw bytes.
type Loaded struct {
	// Data is the file content exactly as stored.
	Data []byte

	// Image is the decoded pixel grid.
	Image *image.NRGBA
}

// DefaultCacheSize is how many images an ImageCache holds when no size is
// given.
const DefaultCacheSize = 32

// ImageCache provides thread-safe caching of loaded receipt images.
//
// The MCP server looks at the same receipt several times (extract, then
// inspect regions, then re-read one region). Entries are keyed by path.
// When the cache is full the oldest entry is dropped.
type ImageCache struct {
	mu     sync.RWMutex
	max    int
	order  []string
	images map[string]*Loaded
}

// NewImageCache creates an empty cache holding at most size images.
// A size of zero or less selects DefaultCacheSize.
func NewImageCache(size int) *ImageCache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	return &ImageCache{
		max:    size,
		images: make(map[string]*Loaded),
	}
}

// Load retrieves an image from the cache or reads and decodes it from disk.
//
// Different spellings of the same path (relative vs absolute) produce
// separate entries.
func (c *ImageCache) Load(path string) (*Loaded, error) {
	c.mu.RLock()
	if l, ok := c.images[path]; ok {
		c.mu.RUnlock()
		return l, nil
	}
	c.mu.RUnlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}

	img, err := Decode(data)
	if err != nil {
		return nil, err
	}

	l := &Loaded{Data: data, Image: img}
	c.mu.Lock()
	defer c.mu.Unlock()
	if cached, ok := c.images[path]; ok {
		return cached, nil
	}
	for len(c.order) >= c.max {
		delete(c.images, c.order[0])
		c.order = c.order[1:]
	}
	c.images[path] = l
	c.order = append(c.order, path)

	return l, nil
}

// Len reports how many images are cached.
func (c *ImageCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.images)
}

// Clear removes all images from the cache.
func (c *ImageCache) Clear() {
	c.mu.Lock()
	c.images = make(map[string]*Loaded)
	c.order = nil
	c.mu.Unlock()
}

// Evict removes the image cached under path and reports whether there was
// one.
func (c *ImageCache) Evict(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.images[path]; !ok {
		return false
	}
	delete(c.images, path)
	for i, p := range c.order {
		if p == path {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return true
}
