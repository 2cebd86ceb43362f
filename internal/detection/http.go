package detection

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"strconv"
	"strings"
	"time"

	rimaging "github.com/ironsheep/receipt-extractor/internal/imaging"
	"github.com/ironsheep/receipt-extractor/internal/log"
)

// ErrWeightsMissing is returned by Load when the configured weights file
// does not exist locally.
var ErrWeightsMissing = errors.New("detector weights not found")

const (
	defaultTimeout     = 30 * time.Second
	defaultJPEGQuality = 92
	maxErrorBody       = 512
)

// HTTPConfig configures an HTTPDetector.
type HTTPConfig struct {
	// BaseURL of the inference service, e.g. "http://127.0.0.1:5000".
	// Detection is POSTed to BaseURL+"/detect".
	BaseURL string

	// Weights is the model weights path handed to the service on Load.
	Weights string

	// TrustWeights allows the service to unpickle the weights file with
	// full code execution. Only enable it for weights you produced.
	TrustWeights bool

	// CheckWeights makes Load stat Weights locally before asking the
	// service to load it. Use it when both share a filesystem.
	CheckWeights bool

	// Confidence is the minimum score kept. Zero means DefaultConfidence.
	Confidence float64

	// Timeout bounds each request. Zero means 30s.
	Timeout time.Duration

	// JPEGQuality for the uploaded image. Zero means 92.
	JPEGQuality int

	// Client overrides the HTTP client; its Timeout is left untouched.
	Client *http.Client
}

// HTTPDetector runs detection on a remote inference service.
type HTTPDetector struct {
	cfg    HTTPConfig
	client *http.Client
	log    log.Logger
}

// NewHTTPDetector validates cfg and returns a detector.
func NewHTTPDetector(cfg HTTPConfig) (*HTTPDetector, error) {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		return nil, errors.New("detector base url is required")
	}
	if cfg.Confidence == 0 {
		cfg.Confidence = DefaultConfidence
	}
	if cfg.Confidence < 0 || cfg.Confidence > 1 {
		return nil, fmt.Errorf("detector confidence %v outside [0,1]", cfg.Confidence)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.JPEGQuality == 0 {
		cfg.JPEGQuality = defaultJPEGQuality
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	return &HTTPDetector{
		cfg:    cfg,
		client: client,
		log:    log.Named("detection"),
	}, nil
}

// Confidence returns the effective threshold.
func (d *HTTPDetector) Confidence() float64 {
	return d.cfg.Confidence
}

type loadRequest struct {
	Weights      string `json:"weights"`
	TrustWeights bool   `json:"trust_weights"`
}

// Load asks the service to load the configured weights.
//
// # Errors
//
//   - ErrWeightsMissing if CheckWeights is set and the file does not exist
//   - A wrapped transport error or the service's status otherwise
func (d *HTTPDetector) Load(ctx context.Context) error {
	if d.cfg.CheckWeights && d.cfg.Weights != "" {
		if _, err := os.Stat(d.cfg.Weights); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrWeightsMissing, d.cfg.Weights, err)
		}
	}

	body, err := json.Marshal(loadRequest{Weights: d.cfg.Weights, TrustWeights: d.cfg.TrustWeights})
	if err != nil {
		return fmt.Errorf("encode load request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.BaseURL+"/load", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("send load request: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return fmt.Errorf("load weights: %w", err)
	}
	d.log.Infof("detector weights loaded: %s (trusted=%v)", d.cfg.Weights, d.cfg.TrustWeights)
	return nil
}

// Health reports whether the inference service is reachable and healthy.
func (d *HTTPDetector) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.cfg.BaseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("detector unreachable: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return fmt.Errorf("detector unhealthy: %w", err)
	}
	return nil
}

type wireDetection struct {
	ClassID    int       `json:"class_id"`
	Confidence float64   `json:"confidence"`
	Box        []float64 `json:"box"`
}

type detectResponse struct {
	Detections []wireDetection `json:"detections"`
}

// Detect uploads img and returns the regions scoring at least the configured
// confidence, clamped to the image bounds.
func (d *HTTPDetector) Detect(ctx context.Context, img image.Image) ([]Region, error) {
	data, err := rimaging.EncodeJPEG(img, d.cfg.JPEGQuality)
	if err != nil {
		return nil, err
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="receipt.jpg"`)
	h.Set("Content-Type", "image/jpeg")
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("copy image data: %w", err)
	}
	if err := writer.WriteField("conf", strconv.FormatFloat(d.cfg.Confidence, 'f', -1, 64)); err != nil {
		return nil, fmt.Errorf("write conf field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.BaseURL+"/detect", body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	start := time.Now()
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	var out detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	regions := d.toRegions(out.Detections, img.Bounds())
	d.log.Debugf("detected %d regions (%d raw) in %s", len(regions), len(out.Detections), time.Since(start))
	return regions, nil
}

func (d *HTTPDetector) toRegions(dets []wireDetection, bounds image.Rectangle) []Region {
	regions := make([]Region, 0, len(dets))
	for _, det := range dets {
		class, ok := ClassFromID(det.ClassID)
		if !ok {
			d.log.Debugf("dropping detection with unknown class id %d", det.ClassID)
			continue
		}
		if len(det.Box) != 4 {
			d.log.Warnf("dropping detection with %d box coordinates", len(det.Box))
			continue
		}
		box := Box{
			X1: int(det.Box[0]),
			Y1: int(det.Box[1]),
			X2: int(det.Box[2]),
			Y2: int(det.Box[3]),
		}
		regions = append(regions, Region{
			Class:      class,
			Box:        clampBox(box, bounds),
			Confidence: det.Confidence,
		})
	}
	return FilterConfidence(regions, d.cfg.Confidence)
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if s := strings.TrimSpace(string(msg)); s != "" {
		return fmt.Errorf("status %d: %s", resp.StatusCode, s)
	}
	return fmt.Errorf("status %d", resp.StatusCode)
}
