// Package normalize turns noisy OCR text into clean receipt fields.
//
// Every function in this package is pure: no shared mutable state, no I/O,
// and the result depends only on the input text (plus the current year for
// date sanity bounds). None of them panic on malformed input; a value that
// cannot be recovered is reported as zero or as "not found".
//
// # Amounts
//
// CleanAmount parses a single money-looking string and resolves the
// decimal/thousands separator ambiguity between "1.234,56" and "1,234.56".
// FindTotalAmount searches free text for the receipt total, first next to
// a total keyword and then, failing that, across every money token.
//
// # Dates
//
// CleanDate parses one line that is expected to hold a date (the text of a
// detected date region). FindDateInText scans free text, including
// month-name forms such as "15 Nov 2025". Both accept only years within
// [2010, currentYear+1] and return dates as YYYY-MM-DD.
package normalize
