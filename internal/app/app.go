// Package app owns the long-lived extraction components: the region
// detector, the OCR engine pool, the category classifier and the pipeline
// composed from them.
//
// An App is built once at startup with New and shared by every request.
// Hosts that must answer health checks before the models are loaded wrap it
// in a Holder.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/ironsheep/receipt-extractor/internal/classify"
	"github.com/ironsheep/receipt-extractor/internal/config"
	"github.com/ironsheep/receipt-extractor/internal/detection"
	"github.com/ironsheep/receipt-extractor/internal/log"
	"github.com/ironsheep/receipt-extractor/internal/ocr"
	"github.com/ironsheep/receipt-extractor/internal/pipeline"
)

var (
	// ErrModelUnavailable is returned by New when the detector, the OCR
	// engine or the classifier cannot be loaded or does not answer.
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrNotReady is returned when a request arrives before
	// initialization finished or after Close.
	ErrNotReady = errors.New("service not ready")
)

// Option overrides a component New would otherwise build from config.
type Option func(*options)

type options struct {
	detector   detection.Detector
	recognizer ocr.Recognizer
	classifier classify.Classifier
}

// WithDetector uses d instead of the configured detector backend.
func WithDetector(d detection.Detector) Option {
	return func(o *options) { o.detector = d }
}

// WithRecognizer uses r instead of a Tesseract pool.
func WithRecognizer(r ocr.Recognizer) Option {
	return func(o *options) { o.recognizer = r }
}

// WithClassifier uses c instead of the configured classifier backend.
func WithClassifier(c classify.Classifier) Option {
	return func(o *options) { o.classifier = c }
}

// App is the initialized service.
type App struct {
	cfg *config.Config

	detector   detection.Detector
	recognizer ocr.Recognizer
	classifier classify.Classifier
	pipeline   *pipeline.Pipeline

	ready atomic.Bool
	log   log.Logger
}

// New builds every component from cfg and loads the models.
//
// # Errors
//
//   - ErrModelUnavailable wrapping the cause if the detector weights, the
//     OCR engine or the classifier fail to load or fail their health check
//   - A configuration error if a backend rejects its settings
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{cfg: cfg, log: log.Named("app")}

	a.detector = o.detector
	if a.detector == nil {
		d, err := newDetector(ctx, cfg.Detector)
		if err != nil {
			return nil, err
		}
		a.detector = d
	}
	if err := checkHealth(ctx, "detector", a.detector); err != nil {
		return nil, err
	}

	a.recognizer = o.recognizer
	if a.recognizer == nil {
		t, err := ocr.New(ocr.Config{
			Language:       cfg.OCR.Language,
			TessdataPrefix: cfg.OCR.TessdataPrefix,
			PoolSize:       cfg.OCR.PoolSize,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrModelUnavailable, err)
		}
		a.recognizer = t
	}

	a.classifier = o.classifier
	if a.classifier == nil {
		c, err := newClassifier(cfg.Classifier)
		if err != nil {
			a.closeRecognizer()
			return nil, err
		}
		a.classifier = c
	}
	if err := checkHealth(ctx, "classifier", a.classifier); err != nil {
		a.closeRecognizer()
		return nil, err
	}

	p, err := pipeline.New(a.detector, a.recognizer, a.classifier, pipeline.Options{
		TotalKeywords: cfg.Pipeline.TotalKeywords,
	})
	if err != nil {
		a.closeRecognizer()
		return nil, err
	}
	a.pipeline = p

	a.ready.Store(true)
	a.log.Infof("service ready: detector=%s classifier=%s labels=%v",
		cfg.Detector.Backend, cfg.Classifier.Backend, cfg.Classifier.Labels)
	return a, nil
}

func newDetector(ctx context.Context, cfg config.DetectorConfig) (detection.Detector, error) {
	switch cfg.Backend {
	case config.DetectorHeuristic:
		return detection.NewHeuristicDetector(cfg.Confidence), nil
	case config.DetectorHTTP:
		d, err := detection.NewHTTPDetector(detection.HTTPConfig{
			BaseURL:      cfg.URL,
			Weights:      cfg.Weights,
			TrustWeights: cfg.TrustWeights,
			CheckWeights: cfg.CheckWeights,
			Confidence:   cfg.Confidence,
			Timeout:      cfg.Timeout,
		})
		if err != nil {
			return nil, err
		}
		if err := d.Load(ctx); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrModelUnavailable, err)
		}
		return d, nil
	default:
		return nil, fmt.Errorf("unknown detector backend %q", cfg.Backend)
	}
}

type healthChecker interface {
	Health(ctx context.Context) error
}

// checkHealth runs v's health check when it has one.
func checkHealth(ctx context.Context, component string, v any) error {
	h, ok := v.(healthChecker)
	if !ok {
		return nil
	}
	if err := h.Health(ctx); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrModelUnavailable, component, err)
	}
	return nil
}

func newClassifier(cfg config.ClassifierConfig) (classify.Classifier, error) {
	switch cfg.Backend {
	case config.ClassifierOpenAI:
		return classify.NewOpenAI(classify.OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
			Labels:  cfg.Labels,
			Timeout: cfg.Timeout,
		})
	case config.ClassifierZeroShot:
		return classify.NewZeroShot(classify.ZeroShotConfig{
			URL:     cfg.URL,
			Model:   cfg.Model,
			Token:   cfg.Token,
			Labels:  cfg.Labels,
			Timeout: cfg.Timeout,
		})
	default:
		return nil, fmt.Errorf("unknown classifier backend %q", cfg.Backend)
	}
}

// Ready reports whether the App accepts requests.
func (a *App) Ready() bool {
	return a.ready.Load()
}

// Config returns the configuration the App was built from.
func (a *App) Config() *config.Config {
	return a.cfg
}

// Pipeline returns the composed pipeline.
func (a *App) Pipeline() *pipeline.Pipeline {
	return a.pipeline
}

// Recognizer returns the text recognizer.
func (a *App) Recognizer() ocr.Recognizer {
	return a.recognizer
}

// Process runs the pipeline on encoded image bytes.
func (a *App) Process(ctx context.Context, data []byte) (*pipeline.Result, error) {
	if !a.Ready() {
		return nil, ErrNotReady
	}
	return a.pipeline.Process(ctx, data)
}

// Status describes the loaded components.
type Status struct {
	Ready      bool     `json:"ready"`
	Detector   string   `json:"detector"`
	Confidence float64  `json:"confidence"`
	Classifier string   `json:"classifier"`
	Labels     []string `json:"labels"`
	OCR        ocr.Info `json:"ocr"`
}

// Status reports the loaded components.
func (a *App) Status() Status {
	s := Status{
		Ready:      a.Ready(),
		Detector:   a.cfg.Detector.Backend,
		Confidence: a.cfg.Detector.Confidence,
		Classifier: a.cfg.Classifier.Backend,
		Labels:     a.cfg.Classifier.Labels,
		OCR:        ocr.Info{Backend: "custom", Language: a.cfg.OCR.Language},
	}
	if d, ok := a.detector.(interface{ Confidence() float64 }); ok {
		s.Confidence = d.Confidence()
	}
	if l, ok := a.classifier.(interface{ Labels() []string }); ok {
		s.Labels = l.Labels()
	}
	if i, ok := a.recognizer.(interface{ Info() ocr.Info }); ok {
		s.OCR = i.Info()
	}
	return s
}

// Close stops accepting requests and releases the OCR engines.
func (a *App) Close() error {
	if !a.ready.Swap(false) {
		return nil
	}
	a.log.Infof("service shutting down")
	return a.closeRecognizer()
}

func (a *App) closeRecognizer() error {
	if c, ok := a.recognizer.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
