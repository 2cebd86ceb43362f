package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// DefaultLocalizedKeywords are the non-English total keywords enabled when
// no other set is configured (Ukrainian: "total", "sum", "altogether").
var DefaultLocalizedKeywords = []string{"всього", "сума", "разом"}

var englishTotalKeywords = []string{"total", "sum", "amount", "due", "balance"}

// moneyToken matches "52.30", "1,234.56", "1 234,56" and similar.
const moneyToken = `\d{1,3}(?:[.,\s]\d{3})*(?:[.,]\d{2})`

const (
	// keywordWindow is how far (in characters) a money token may follow a
	// total keyword.
	keywordWindow = 150
	// contextWindow is how many characters before a bare money token are
	// inspected for payment or phone context.
	contextWindow = 20
)

var (
	whitespaceRe  = regexp.MustCompile(`\s+`)
	nonAmountRe   = regexp.MustCompile(`[^\d.,]`)
	bareMoneyRe   = regexp.MustCompile(`\b` + moneyToken + `\b`)
	maxValidTotal = decimal.NewFromInt(1000000)
)

// Tier-1 spans containing one of these describe tendered cash or change.
var paymentSpanWords = []string{"cash", "change", "tender"}

// Tier-2 tokens preceded by one of these are payments or phone numbers.
var rejectContextWords = []string{"cash", "change", "tel", "phone"}

// CleanAmount parses a noisy money string into a non-negative amount.
//
// Whitespace and every character other than digits, '.' and ',' are
// removed first. When both separators appear, the one that occurs first is
// the thousands separator and the other is the decimal point. When only
// commas appear, a trailing group of exactly two digits makes the comma a
// decimal point; otherwise commas are thousands separators.
//
// Unparseable input yields decimal.Zero.
func CleanAmount(text string) decimal.Decimal {
	s := whitespaceRe.ReplaceAllString(text, "")
	s = nonAmountRe.ReplaceAllString(s, "")
	if s == "" {
		return decimal.Zero
	}

	comma := strings.Index(s, ",")
	dot := strings.Index(s, ".")
	switch {
	case comma >= 0 && dot >= 0:
		if comma < dot {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.ReplaceAll(s, ",", ".")
		}
	case comma >= 0:
		parts := strings.Split(s, ",")
		if len(parts[len(parts)-1]) == 2 {
			s = strings.ReplaceAll(s, ",", ".")
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return decimal.Zero
	}
	return decimal.NewFromFloat(f)
}

// TotalFinder locates the receipt total in unstructured text.
//
// A TotalFinder is immutable once built and safe for concurrent use.
type TotalFinder struct {
	keywordRe *regexp.Regexp
}

// NewTotalFinder compiles a finder for the English total keywords plus the
// given localized ones. Empty and duplicate keywords are ignored.
func NewTotalFinder(localized []string) *TotalFinder {
	seen := make(map[string]struct{})
	alts := make([]string, 0, len(englishTotalKeywords)+len(localized))
	for _, kw := range append(append([]string{}, englishTotalKeywords...), localized...) {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if _, ok := seen[kw]; ok {
			continue
		}
		seen[kw] = struct{}{}
		alts = append(alts, regexp.QuoteMeta(kw))
	}

	pattern := `(?s)(?:` + strings.Join(alts, "|") + `).{0,` +
		strconv.Itoa(keywordWindow) + `}?(` + moneyToken + `)`
	return &TotalFinder{keywordRe: regexp.MustCompile(pattern)}
}

var defaultTotalFinder = NewTotalFinder(DefaultLocalizedKeywords)

// FindTotalAmount searches text with the default keyword set.
func FindTotalAmount(text string) decimal.Decimal {
	return defaultTotalFinder.Find(text)
}

// Find returns the most plausible total amount in text, or decimal.Zero.
//
// Tier 1 takes money tokens that follow a total keyword within 150
// characters, skipping spans that mention cash, change or tender. Tier 2
// runs only when tier 1 finds nothing and takes every money token not
// preceded by payment or phone context. In both tiers the largest value
// wins, so a total beats the subtotal printed above it.
func (f *TotalFinder) Find(text string) decimal.Decimal {
	lower := strings.ToLower(text)

	best := decimal.Zero
	found := false
	for _, m := range f.keywordRe.FindAllStringSubmatchIndex(lower, -1) {
		span := lower[m[0]:m[1]]
		if containsAny(span, paymentSpanWords) {
			continue
		}
		val := CleanAmount(lower[m[2]:m[3]])
		if !val.IsPositive() || !val.LessThan(maxValidTotal) {
			continue
		}
		if !found || val.GreaterThan(best) {
			best = val
			found = true
		}
	}
	if found {
		return best
	}

	for _, m := range bareMoneyRe.FindAllStringIndex(lower, -1) {
		val := CleanAmount(lower[m[0]:m[1]])
		if !val.IsPositive() || val.GreaterThan(maxValidTotal) {
			continue
		}
		if containsAny(lastRunes(lower[:m[0]], contextWindow), rejectContextWords) {
			continue
		}
		if val.GreaterThan(best) {
			best = val
		}
	}
	return best
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// lastRunes returns the trailing n characters of s.
func lastRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := len(s)
	for count := 0; count < n; count++ {
		_, size := utf8.DecodeLastRuneInString(s[:i])
		i -= size
	}
	return s[i:]
}
