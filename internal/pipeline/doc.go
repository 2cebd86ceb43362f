// Package pipeline turns a receipt photo into a date, a total and a
// spending category.
//
// Process runs a fixed sequence of stages:
//
//  1. Decode the image bytes. Failure is reported as ErrInvalidImage.
//  2. Detect regions. Failure is reported as ErrDetection.
//  3. For every sum, date and invoice region: crop, recognize, collapse
//     newlines. The largest sum wins, the first valid date wins, invoice
//     text is concatenated in detection order.
//  4. Fall back to searching the invoice text for a missing date or total.
//     A receipt with no usable date gets today's date.
//  5. Classify the invoice text, or default to "Other" when there is none.
//
// Only stages 1 and 2 are fatal. A recognizer or classifier error is logged
// and replaced by an empty text or "Other", so callers always get a complete
// result.
//
// # Concurrency
//
// A Pipeline holds no per-call state and may be shared by concurrent
// callers as long as its detector, recognizer and classifier are safe for
// concurrent use, which all backends in this repository are.
package pipeline
