// Package ocr reads text out of receipt region crops with Tesseract.
//
// The engine is reached through gosseract/v2 and needs the Tesseract
// library plus language data installed on the host:
//   - Ubuntu/Debian: apt-get install tesseract-ocr tesseract-ocr-eng
//   - macOS: brew install tesseract
//
// Set TESSDATA_PREFIX (Config.TessdataPrefix) when the language data lives
// outside the default location. Several languages are combined with "+",
// e.g. "eng+ukr".
//
// # Preprocessing
//
// Every crop goes through imaging.PrepareForOCR before recognition:
// grayscale, dark ink on light paper, a mild contrast boost and an upscale
// of very short crops. Word boxes are mapped back to crop coordinates.
//
// # Concurrency
//
// A Tesseract handle owns a fixed number of engine clients. Each client
// serves one call at a time; callers wait for a free client or for their
// context to end. The handle is safe for concurrent use.
//
// # Output
//
// Recognized lines are trimmed, blank lines are dropped, and the rest is
// joined with "\n". Recognition failures are returned as errors; deciding
// on a fallback is left to the caller.
package ocr
