// Package detection localizes the semantic regions of a receipt image.
//
// A Detector returns labelled boxes (merchant name, date, total, line items
// and so on) with a confidence score. Two backends are provided:
//
//   - HTTPDetector talks to an inference service that hosts the trained
//     object detection model. Images are shipped as JPEG in a multipart
//     form and boxes come back as JSON.
//   - HeuristicDetector runs locally without a model. It looks for blocks
//     of text-like edge density and labels all of them as invoice regions,
//     which is enough for the fallback amount and date search to work.
//
// # Classes
//
// The model was trained on nine classes, numbered 0 to 8:
//
//	0 item-list     3 date          6 price
//	1 merchant-name 4 invoice       7 sum
//	2 address       5 payment-info  8 tax-info
//
// Unknown class ids reported by a backend are dropped.
//
// # Coordinate System
//
// Boxes are in pixels of the decoded, EXIF-oriented image. (X1,Y1) is
// inclusive and (X2,Y2) exclusive. Boxes are clamped to the image, so a box
// reported entirely outside the image comes back empty and is skipped by
// the caller when cropping.
//
// # Thread Safety
//
// Both detectors hold no per-call state and are safe for concurrent use.
package detection
