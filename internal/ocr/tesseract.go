package ocr

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"

	rimaging "github.com/ironsheep/receipt-extractor/internal/imaging"
	"github.com/ironsheep/receipt-extractor/internal/log"
)

var (
	// ErrEngineUnavailable is returned by New when Tesseract or the
	// requested language data cannot be initialized.
	ErrEngineUnavailable = errors.New("ocr engine unavailable")

	// ErrClosed is returned by calls made after Close.
	ErrClosed = errors.New("ocr engine closed")
)

// DefaultLanguage is used when Config.Language is empty.
const DefaultLanguage = "eng"

// Recognizer turns an image crop into text.
type Recognizer interface {
	Recognize(ctx context.Context, img image.Image) (string, error)
}

// Config configures a Tesseract handle.
type Config struct {
	// Language is a Tesseract language code, "+"-joined for several.
	Language string

	// TessdataPrefix is the directory holding *.traineddata. Empty uses
	// the library default.
	TessdataPrefix string

	// PoolSize is the number of engine clients. Values below 1 mean 1.
	PoolSize int

	// Prep overrides the crop preprocessing. Nil means
	// imaging.DefaultOCRPrep.
	Prep *rimaging.OCRPrepOptions
}

// Bounds represents a rectangular bounding box in pixel coordinates.
type Bounds struct {
	X1 int `json:"x1"` // Left edge
	Y1 int `json:"y1"` // Top edge
	X2 int `json:"x2"` // Right edge
	Y2 int `json:"y2"` // Bottom edge
}

// Word is one recognized word with its location in the crop.
type Word struct {
	Text string `json:"text"`

	// Confidence is the engine's score scaled to [0,1].
	Confidence float64 `json:"confidence"`

	Bounds Bounds `json:"bounds"`
}

// Result is the detailed outcome of recognizing one crop.
type Result struct {
	// Text is the recognized lines joined with "\n".
	Text string `json:"text"`

	// Words may be empty even when Text is not, if the engine could not
	// report word boxes.
	Words []Word `json:"words"`
}

// Info describes the OCR subsystem.
type Info struct {
	Available    bool   `json:"available"`
	Version      string `json:"version,omitempty"`
	Backend      string `json:"backend"`
	Language     string `json:"language"`
	PoolSize     int    `json:"pool_size"`
	TessdataPath string `json:"tessdata_path,omitempty"`
}

// Tesseract is a pool of gosseract clients.
type Tesseract struct {
	cfg     Config
	prep    rimaging.OCRPrepOptions
	version string

	clients chan *gosseract.Client
	size    int
	done    chan struct{}
	once    sync.Once

	log log.Logger
}

// New creates PoolSize engine clients and runs each once on a blank image so
// that a missing library or language file fails here rather than on the
// first receipt.
func New(cfg Config) (*Tesseract, error) {
	if cfg.Language == "" {
		cfg.Language = DefaultLanguage
	}
	if cfg.PoolSize < 1 {
		cfg.PoolSize = 1
	}
	prep := rimaging.DefaultOCRPrep
	if cfg.Prep != nil {
		prep = *cfg.Prep
	}

	t := &Tesseract{
		cfg:     cfg,
		prep:    prep,
		clients: make(chan *gosseract.Client, cfg.PoolSize),
		done:    make(chan struct{}),
		log:     log.Named("ocr"),
	}

	blank, err := blankPNG()
	if err != nil {
		return nil, err
	}

	for i := 0; i < cfg.PoolSize; i++ {
		c := gosseract.NewClient()
		if err := warmUp(c, cfg, blank); err != nil {
			c.Close()
			t.Close()
			return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
		}
		if t.version == "" {
			t.version = c.Version()
		}
		t.clients <- c
		t.size++
	}

	t.log.Infof("tesseract %s ready: language=%s pool=%d", t.version, cfg.Language, cfg.PoolSize)
	return t, nil
}

func warmUp(c *gosseract.Client, cfg Config, blank []byte) error {
	if err := configure(c, cfg); err != nil {
		return err
	}
	if err := c.SetImageFromBytes(blank); err != nil {
		return fmt.Errorf("failed to set image: %w", err)
	}
	if _, err := c.Text(); err != nil {
		return fmt.Errorf("engine init failed: %w", err)
	}
	return nil
}

func configure(c *gosseract.Client, cfg Config) error {
	if cfg.TessdataPrefix != "" {
		if err := c.SetTessdataPrefix(cfg.TessdataPrefix); err != nil {
			return fmt.Errorf("failed to set tessdata path: %w", err)
		}
	}
	if err := c.SetLanguage(strings.Split(cfg.Language, "+")...); err != nil {
		return fmt.Errorf("failed to set language: %w", err)
	}
	if err := c.SetPageSegMode(gosseract.PSM_SINGLE_BLOCK); err != nil {
		return fmt.Errorf("failed to set page segmentation mode: %w", err)
	}
	return nil
}

func blankPNG() ([]byte, error) {
	img := image.NewGray(image.Rect(0, 0, 32, 32))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	return rimaging.EncodePNG(img)
}

// Info reports the engine version and configuration.
func (t *Tesseract) Info() Info {
	return Info{
		Available:    true,
		Version:      t.version,
		Backend:      "gosseract",
		Language:     t.cfg.Language,
		PoolSize:     t.cfg.PoolSize,
		TessdataPath: t.cfg.TessdataPrefix,
	}
}

// Recognize returns the text of img.
func (t *Tesseract) Recognize(ctx context.Context, img image.Image) (string, error) {
	res, err := t.RecognizeDetailed(ctx, img)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

// RecognizeDetailed returns the text of img together with word boxes in
// img's coordinate space.
func (t *Tesseract) RecognizeDetailed(ctx context.Context, img image.Image) (*Result, error) {
	b := img.Bounds()
	if b.Empty() {
		return &Result{Words: []Word{}}, nil
	}

	prepared := rimaging.PrepareForOCR(img, t.prep)
	data, err := rimaging.EncodePNG(prepared)
	if err != nil {
		return nil, err
	}

	c, err := t.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer t.release(c)

	if err := c.SetImageFromBytes(data); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	text, err := c.Text()
	if err != nil {
		return nil, fmt.Errorf("OCR failed: %w", err)
	}

	words := make([]Word, 0)
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		t.log.Debugf("word boxes unavailable: %v", err)
	} else {
		pb := prepared.Bounds()
		sx := float64(b.Dx()) / float64(pb.Dx())
		sy := float64(b.Dy()) / float64(pb.Dy())
		for _, box := range boxes {
			if strings.TrimSpace(box.Word) == "" {
				continue
			}
			words = append(words, Word{
				Text:       box.Word,
				Confidence: box.Confidence / 100.0,
				Bounds: Bounds{
					X1: b.Min.X + int(float64(box.Box.Min.X)*sx),
					Y1: b.Min.Y + int(float64(box.Box.Min.Y)*sy),
					X2: b.Min.X + int(float64(box.Box.Max.X)*sx),
					Y2: b.Min.Y + int(float64(box.Box.Max.Y)*sy),
				},
			})
		}
	}

	return &Result{Text: JoinLines(text), Words: words}, nil
}

func (t *Tesseract) acquire(ctx context.Context) (*gosseract.Client, error) {
	select {
	case <-t.done:
		return nil, ErrClosed
	default:
	}

	select {
	case c := <-t.clients:
		return c, nil
	case <-t.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *Tesseract) release(c *gosseract.Client) {
	t.clients <- c
}

// Close waits for in-flight calls to return their clients and then frees
// every engine. It is safe to call more than once.
func (t *Tesseract) Close() error {
	var errs []error
	t.once.Do(func() {
		close(t.done)
		for i := 0; i < t.size; i++ {
			c := <-t.clients
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}

// JoinLines trims each line of text, drops blank ones and joins the rest
// with "\n".
func JoinLines(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	kept := lines[:0]
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			kept = append(kept, l)
		}
	}
	return strings.Join(kept, "\n")
}
