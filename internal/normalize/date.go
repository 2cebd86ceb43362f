package normalize

import (
	"regexp"
	"strings"
	"time"
)

// DateLayout is the output format of every date returned by this package.
const DateLayout = "2006-01-02"

// minValidYear is the earliest year accepted from a receipt.
const minValidYear = 2010

// now is replaced in tests to pin the upper year bound.
var now = time.Now

// Layouts tried in order after separators have been normalised to '-':
// day-month-year, day-month-2-digit-year, year-month-day,
// 2-digit-year-month-day, then the month-name forms.
var dateLayouts = []string{
	"2-1-2006",
	"2-1-06",
	"2006-1-2",
	"06-1-2",
	"2-Jan-2006",
	"2-January-2006",
}

// Patterns for a single date line. The leading guard keeps the numeric
// day-first pattern from starting in the middle of a 4-digit year.
var lineDatePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:^|\D)(\d{1,2}[./-]\d{1,2}[./-]\d{2,4})`),
	regexp.MustCompile(`(\d{4}[./-]\d{1,2}[./-]\d{1,2})`),
}

var textDatePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(\d{1,2}[./-]\d{1,2}[./-]\d{2,4})\b`),
	regexp.MustCompile(`\b(\d{4}[./-]\d{1,2}[./-]\d{1,2})\b`),
	regexp.MustCompile(`(?i)\b(\d{1,2}\s(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\s\d{2,4})\b`),
}

var dateSeparators = strings.NewReplacer(".", "-", "/", "-", " ", "-")

// CleanDate extracts a date from a single line of text, such as the OCR
// output of a detected date region. Only the first match of each pattern
// is considered. It returns the date as YYYY-MM-DD and true, or "" and
// false when nothing validates.
func CleanDate(text string) (string, bool) {
	for _, re := range lineDatePatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if d, ok := parseDate(m[1]); ok {
			return d, true
		}
	}
	return "", false
}

// FindDateInText scans free text for the first valid date, trying every
// match of each pattern in turn, numeric forms before month names.
func FindDateInText(text string) (string, bool) {
	for _, re := range textDatePatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if d, ok := parseDate(m[1]); ok {
				return d, true
			}
		}
	}
	return "", false
}

// parseDate tries every layout and accepts the first parse whose year is
// within [2010, currentYear+1]. A layout that parses to an out-of-range
// year does not stop the search.
func parseDate(raw string) (string, bool) {
	norm := strings.TrimSpace(dateSeparators.Replace(raw))
	if norm == "" {
		return "", false
	}

	maxYear := now().Year() + 1
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, norm)
		if err != nil {
			continue
		}
		if t.Year() >= minValidYear && t.Year() <= maxYear {
			return t.Format(DateLayout), true
		}
	}
	return "", false
}

// Today returns the current date in the package's output format.
func Today() string {
	return now().Format(DateLayout)
}
