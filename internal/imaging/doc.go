// Package imaging provides the pixel-level operations of the receipt pipeline.
//
// It decodes uploaded bytes into an upright 8-bit RGBA grid, cuts detected
// regions out of it, cleans crops up for text recognition, and draws region
// boxes for inspection. All operations use a coordinate system where (0,0) is
// the top-left corner, X increases rightward, and Y increases downward.
//
// # Coordinate System
//
// Regions are half-open rectangles: (x1,y1) is inclusive (top-left) and
// (x2,y2) is exclusive (bottom-right). Detectors may report boxes that poke
// outside the image; CropRegion clamps them and reports degenerate results
// instead of failing.
//
// # Thread Safety
//
// The ImageCache type is safe for concurrent use. The other operations are
// stateless and never modify their input image.
package imaging
