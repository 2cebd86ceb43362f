package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ironsheep/receipt-extractor/internal/classify"
	"github.com/ironsheep/receipt-extractor/internal/detection"
	rimaging "github.com/ironsheep/receipt-extractor/internal/imaging"
	"github.com/ironsheep/receipt-extractor/internal/log"
	"github.com/ironsheep/receipt-extractor/internal/normalize"
	"github.com/ironsheep/receipt-extractor/internal/ocr"
)

var (
	// ErrInvalidImage means the uploaded bytes could not be decoded.
	ErrInvalidImage = errors.New("invalid image")

	// ErrDetection means region detection failed as a whole.
	ErrDetection = errors.New("region detection failed")
)

// Result is the extraction outcome for one receipt.
type Result struct {
	// Date is YYYY-MM-DD.
	Date *string

	// Amount is the receipt total rounded to cents, zero when unknown.
	Amount decimal.Decimal

	// Category is one of the configured labels or "Other".
	Category string
}

type resultJSON struct {
	Date     *string     `json:"date"`
	Amount   json.Number `json:"amount"`
	Category string      `json:"category"`
}

// MarshalJSON encodes Amount as a number with two decimals.
func (r Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(resultJSON{
		Date:     r.Date,
		Amount:   json.Number(r.Amount.StringFixed(2)),
		Category: r.Category,
	})
}

// UnmarshalJSON decodes the form written by MarshalJSON.
func (r *Result) UnmarshalJSON(data []byte) error {
	var raw resultJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	amount := decimal.Zero
	if raw.Amount != "" {
		v, err := decimal.NewFromString(raw.Amount.String())
		if err != nil {
			return fmt.Errorf("invalid amount: %w", err)
		}
		amount = v
	}
	*r = Result{Date: raw.Date, Amount: amount, Category: raw.Category}
	return nil
}

// DateString returns the date or "" when unset.
func (r *Result) DateString() string {
	if r.Date == nil {
		return ""
	}
	return *r.Date
}

// Reading is the text recognized in one region during Process.
type Reading struct {
	Region  detection.Region `json:"region"`
	Text    string           `json:"text"`
	Skipped bool             `json:"skipped,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// Trace records how a Result was reached.
type Trace struct {
	Width    int       `json:"width"`
	Height   int       `json:"height"`
	Regions  int       `json:"regions"`
	Readings []Reading `json:"readings"`
	FullText string    `json:"full_text"`

	// DateSource and AmountSource are "region", "text" or "default".
	DateSource   string `json:"date_source"`
	AmountSource string `json:"amount_source"`

	ClassifierText  string `json:"classifier_text,omitempty"`
	ClassifierError string `json:"classifier_error,omitempty"`
	Elapsed         string `json:"elapsed"`
}

// Options tune a Pipeline.
type Options struct {
	// TotalKeywords are the localized total keywords used in addition to
	// the English ones. Nil means normalize.DefaultLocalizedKeywords.
	TotalKeywords []string

	// ClassifierTextLimit caps the classifier input in runes. Zero means
	// normalize.ClassifierTextLimit.
	ClassifierTextLimit int
}

// Pipeline composes detection, recognition, normalization and
// classification.
type Pipeline struct {
	detector   detection.Detector
	recognizer ocr.Recognizer
	classifier classify.Classifier

	totals    *normalize.TotalFinder
	textLimit int
	today     func() string
	log       log.Logger
}

// New wires the stages together.
func New(d detection.Detector, r ocr.Recognizer, c classify.Classifier, opts Options) (*Pipeline, error) {
	if d == nil || r == nil || c == nil {
		return nil, errors.New("pipeline needs a detector, a recognizer and a classifier")
	}
	keywords := opts.TotalKeywords
	if keywords == nil {
		keywords = normalize.DefaultLocalizedKeywords
	}
	limit := opts.ClassifierTextLimit
	if limit <= 0 {
		limit = normalize.ClassifierTextLimit
	}
	return &Pipeline{
		detector:   d,
		recognizer: r,
		classifier: c,
		totals:     normalize.NewTotalFinder(keywords),
		textLimit:  limit,
		today:      normalize.Today,
		log:        log.Named("pipeline"),
	}, nil
}

// Process extracts the result from encoded image bytes.
//
// # Errors
//
//   - ErrInvalidImage if the bytes cannot be decoded
//   - ErrDetection if the detector fails
//   - ctx.Err() if ctx ends while regions are being read
func (p *Pipeline) Process(ctx context.Context, data []byte) (*Result, error) {
	res, _, err := p.ProcessDetailed(ctx, data)
	return res, err
}

// ProcessDetailed is Process plus a trace of every region read.
func (p *Pipeline) ProcessDetailed(ctx context.Context, data []byte) (*Result, *Trace, error) {
	start := time.Now()

	img, err := rimaging.Decode(data)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrInvalidImage, err)
	}

	regions, err := p.detector.Detect(ctx, img)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrDetection, err)
	}

	res, trace, err := p.extract(ctx, img, regions)
	if err != nil {
		return nil, nil, err
	}
	trace.Elapsed = time.Since(start).String()

	p.log.Infof("receipt processed: date=%s amount=%s category=%s regions=%d (%s)",
		res.DateString(), res.Amount.StringFixed(2), res.Category, len(regions), trace.Elapsed)
	return res, trace, nil
}

// Detection is the outcome of the first two stages.
type Detection struct {
	Width   int                `json:"width"`
	Height  int                `json:"height"`
	Regions []detection.Region `json:"regions"`
}

// Regions decodes the image and runs detection only.
func (p *Pipeline) Regions(ctx context.Context, data []byte) (*Detection, error) {
	img, err := rimaging.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidImage, err)
	}
	regions, err := p.detector.Detect(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDetection, err)
	}
	return &Detection{
		Width:   img.Bounds().Dx(),
		Height:  img.Bounds().Dy(),
		Regions: regions,
	}, nil
}

// Text parses free receipt text with the fallback search only: no image,
// no classification.
func (p *Pipeline) Text(text string) (date string, dateOK bool, amount decimal.Decimal) {
	date, dateOK = normalize.FindDateInText(text)
	return date, dateOK, p.totals.Find(text).Round(2)
}

func (p *Pipeline) extract(ctx context.Context, img image.Image, regions []detection.Region) (*Result, *Trace, error) {
	trace := &Trace{
		Width:    img.Bounds().Dx(),
		Height:   img.Bounds().Dy(),
		Regions:  len(regions),
		Readings: make([]Reading, 0, len(regions)),
	}

	amount := decimal.Zero
	var date string
	haveDate := false
	parts := make([]string, 0)

	for _, r := range regions {
		switch r.Class {
		case detection.ClassSum, detection.ClassDate, detection.ClassInvoice:
		default:
			continue
		}
		if r.Class == detection.ClassDate && haveDate {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		crop, ok := rimaging.CropRegion(img, r.Box.Rect())
		if !ok {
			p.log.Debugf("skipping degenerate %s region %+v", r.Class, r.Box)
			trace.Readings = append(trace.Readings, Reading{Region: r, Skipped: true})
			continue
		}

		reading := Reading{Region: r}
		raw, err := p.recognizer.Recognize(ctx, crop)
		if err != nil {
			p.log.Warnf("text recognition failed for %s region %+v: %v", r.Class, r.Box, err)
			reading.Error = err.Error()
			raw = ""
		}
		text := normalize.SingleLine(raw)
		reading.Text = text
		trace.Readings = append(trace.Readings, reading)

		switch r.Class {
		case detection.ClassSum:
			if v := normalize.CleanAmount(text); v.GreaterThan(amount) {
				amount = v
				trace.AmountSource = "region"
			}
		case detection.ClassDate:
			if d, ok := normalize.CleanDate(text); ok {
				date, haveDate = d, true
				trace.DateSource = "region"
			}
		case detection.ClassInvoice:
			if text != "" {
				parts = append(parts, text)
			}
		}
	}

	fullText := strings.Join(parts, " ")
	trace.FullText = fullText

	if fullText != "" {
		if !haveDate {
			if d, ok := normalize.FindDateInText(fullText); ok {
				date, haveDate = d, true
				trace.DateSource = "text"
			}
		}
		if amount.IsZero() {
			if v := p.totals.Find(fullText); v.IsPositive() {
				amount = v
				trace.AmountSource = "text"
			}
		}
	}
	if !haveDate {
		date = p.today()
		trace.DateSource = "default"
	}
	if amount.IsZero() {
		trace.AmountSource = "default"
	}

	category := classify.OtherLabel
	if fullText != "" {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		input := normalize.ClassifierText(fullText, p.textLimit)
		trace.ClassifierText = input
		label, err := p.classifier.Predict(ctx, input)
		if err != nil {
			p.log.Warnf("classification failed, using %q: %v", classify.OtherLabel, err)
			trace.ClassifierError = err.Error()
		} else if label != "" {
			category = label
		}
	}

	return &Result{
		Date:     &date,
		Amount:   amount.Round(2),
		Category: category,
	}, trace, nil
}
