package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ironsheep/receipt-extractor/internal/log"
)

const (
	// DefaultZeroShotURL is the Hugging Face inference router. The model
	// name is appended as a path segment.
	DefaultZeroShotURL = "https://router.huggingface.co/hf-inference/models"

	// DefaultZeroShotModel is a small NLI cross-encoder.
	DefaultZeroShotModel = "cross-encoder/nli-distilroberta-base"

	defaultTimeout = 30 * time.Second
	maxErrorBody   = 512

	warmUpText = "MILK 1.20 BREAD 2.10 TOTAL 3.30"
)

// ZeroShotConfig configures a ZeroShot classifier.
type ZeroShotConfig struct {
	// URL is the endpoint base; requests go to URL + "/" + Model.
	URL string

	// Model is the model id. Empty means DefaultZeroShotModel.
	Model string

	// Token is sent as a bearer token when set.
	Token string

	Labels []string

	// Template overrides HypothesisTemplate.
	Template string

	// Timeout bounds each request. Zero means 30s.
	Timeout time.Duration

	// Client overrides the HTTP client.
	Client *http.Client
}

// ZeroShot classifies with a zero-shot NLI model over HTTP.
type ZeroShot struct {
	endpoint string
	token    string
	labels   []string
	template string
	client   *http.Client
	log      log.Logger
}

// NewZeroShot validates cfg and returns the classifier.
func NewZeroShot(cfg ZeroShotConfig) (*ZeroShot, error) {
	labels, err := NormalizeLabels(cfg.Labels)
	if err != nil {
		return nil, err
	}
	if cfg.URL == "" {
		cfg.URL = DefaultZeroShotURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultZeroShotModel
	}
	if cfg.Template == "" {
		cfg.Template = HypothesisTemplate
	}
	if !strings.Contains(cfg.Template, "{}") {
		return nil, fmt.Errorf("hypothesis template %q has no {} placeholder", cfg.Template)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	return &ZeroShot{
		endpoint: strings.TrimRight(cfg.URL, "/") + "/" + strings.Trim(cfg.Model, "/"),
		token:    cfg.Token,
		labels:   labels,
		template: cfg.Template,
		client:   client,
		log:      log.Named("classify"),
	}, nil
}

// Labels returns the candidate labels in order.
func (z *ZeroShot) Labels() []string {
	return append([]string(nil), z.labels...)
}

type zeroShotParameters struct {
	CandidateLabels    []string `json:"candidate_labels"`
	HypothesisTemplate string   `json:"hypothesis_template"`
	MultiLabel         bool     `json:"multi_label"`
}

type zeroShotRequest struct {
	Inputs     string             `json:"inputs"`
	Parameters zeroShotParameters `json:"parameters"`
}

// zeroShotScores covers both response shapes: the pipeline form
// {"labels":[...],"scores":[...]} and the router form
// [{"label":...,"score":...}].
type zeroShotScores struct {
	Labels []string  `json:"labels"`
	Scores []float64 `json:"scores"`
	Label  string    `json:"label"`
	Score  float64   `json:"score"`
}

// Predict returns the label with the highest entailment score.
func (z *ZeroShot) Predict(ctx context.Context, text string) (string, error) {
	if tooShort(text) {
		return OtherLabel, nil
	}

	best, err := z.query(ctx, text)
	if err != nil {
		return "", err
	}

	label := resolve(z.labels, best)
	if label == OtherLabel && !strings.EqualFold(best, OtherLabel) {
		z.log.Debugf("classifier answered unknown label %q", best)
	}
	return label, nil
}

// Health runs one classification so that a cold model is loaded before
// the first receipt arrives.
func (z *ZeroShot) Health(ctx context.Context) error {
	if _, err := z.query(ctx, warmUpText); err != nil {
		return fmt.Errorf("zero-shot classifier unavailable: %w", err)
	}
	return nil
}

func (z *ZeroShot) query(ctx context.Context, text string) (string, error) {
	body, err := json.Marshal(zeroShotRequest{
		Inputs: text,
		Parameters: zeroShotParameters{
			CandidateLabels:    z.labels,
			HypothesisTemplate: z.template,
			MultiLabel:         false,
		},
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, z.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if z.token != "" {
		req.Header.Set("Authorization", "Bearer "+z.token)
	}

	resp, err := z.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", fmt.Errorf("classifier failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	return bestLabel(raw)
}

// bestLabel decodes either response shape and returns the top label.
// Ties keep the first label listed.
func bestLabel(raw []byte) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", errors.New("empty classifier response")
	}

	var entries []zeroShotScores
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &entries); err != nil {
			return "", fmt.Errorf("decode response: %w", err)
		}
	} else {
		var one zeroShotScores
		if err := json.Unmarshal(raw, &one); err != nil {
			return "", fmt.Errorf("decode response: %w", err)
		}
		entries = []zeroShotScores{one}
	}

	best := ""
	bestScore := -1.0
	consider := func(label string, score float64) {
		if label != "" && score > bestScore {
			best, bestScore = label, score
		}
	}
	for _, e := range entries {
		if len(e.Labels) != len(e.Scores) {
			return "", fmt.Errorf("classifier returned %d labels and %d scores", len(e.Labels), len(e.Scores))
		}
		for i := range e.Labels {
			consider(e.Labels[i], e.Scores[i])
		}
		consider(e.Label, e.Score)
	}
	if best == "" {
		return "", errors.New("classifier returned no scores")
	}
	return best, nil
}
