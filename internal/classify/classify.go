// Package classify assigns a spending category to the text of a receipt.
//
// A Classifier scores the text against an ordered set of candidate labels
// and returns the best one. Two backends exist: a zero-shot NLI model behind
// a Hugging Face style inference endpoint, and an OpenAI chat model asked to
// pick one label.
//
// Texts shorter than MinTextLength runes return OtherLabel without calling
// a model. A backend answer outside the configured label set also becomes
// OtherLabel. Failures are returned as errors; the caller decides on the
// fallback.
package classify

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"
)

const (
	// OtherLabel is returned when no configured label applies.
	OtherLabel = "Other"

	// MinTextLength is the shortest text, in runes, worth classifying.
	MinTextLength = 3

	// HypothesisTemplate frames each label for the NLI model.
	HypothesisTemplate = "This is a receipt for {} products."
)

// DefaultLabels is the label set used when none is configured.
var DefaultLabels = []string{"Groceries", "Transport", "Restaurants", "Health", "Electronics", "Entertainment"}

// ErrNoLabels is returned when a backend is built without labels.
var ErrNoLabels = errors.New("no candidate labels configured")

// Classifier predicts a category for receipt text.
type Classifier interface {
	Predict(ctx context.Context, text string) (string, error)
}

// NormalizeLabels trims the labels, drops empty ones and duplicates
// (case-insensitively) and keeps the first spelling in order.
func NormalizeLabels(labels []string) ([]string, error) {
	out := make([]string, 0, len(labels))
	seen := make(map[string]bool, len(labels))
	for _, l := range labels {
		l = strings.TrimSpace(l)
		key := strings.ToLower(l)
		if l == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, l)
	}
	if len(out) == 0 {
		return nil, ErrNoLabels
	}
	return out, nil
}

// ParseLabels splits a comma separated label list.
func ParseLabels(csv string) ([]string, error) {
	return NormalizeLabels(strings.Split(csv, ","))
}

// tooShort reports whether text has fewer than MinTextLength characters.
func tooShort(text string) bool {
	return utf8.RuneCountInString(text) < MinTextLength
}

// resolve maps a backend answer onto the configured spelling, or OtherLabel.
func resolve(labels []string, answer string) string {
	answer = strings.TrimSpace(answer)
	for _, l := range labels {
		if strings.EqualFold(l, answer) {
			return l
		}
	}
	return OtherLabel
}
