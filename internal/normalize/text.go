package normalize

import (
	"regexp"
	"strings"
)

// ClassifierTextLimit bounds how much receipt text is sent to the classifier.
const ClassifierTextLimit = 1500

var digitRunRe = regexp.MustCompile(`\d+`)

// SingleLine collapses newlines to spaces and trims the result.
func SingleLine(text string) string {
	text = strings.ReplaceAll(text, "\r\n", " ")
	text = strings.ReplaceAll(text, "\n", " ")
	return strings.TrimSpace(text)
}

// ClassifierText prepares receipt text for category classification: it is
// trimmed, cut to the first limit characters and stripped of digit runs so
// that descriptive words carry the signal.
func ClassifierText(text string, limit int) string {
	text = strings.TrimSpace(text)
	if limit > 0 {
		if r := []rune(text); len(r) > limit {
			text = string(r[:limit])
		}
	}
	return digitRunRe.ReplaceAllString(text, "")
}
