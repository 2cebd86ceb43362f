package classify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/openai/openai-go"
	openaiopt "github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/ironsheep/receipt-extractor/internal/log"
)

// DefaultOpenAIModel is used when OpenAIConfig.Model is empty.
const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAIConfig configures an OpenAI classifier.
type OpenAIConfig struct {
	APIKey string

	// BaseURL points at any OpenAI compatible endpoint. Empty uses the
	// library default.
	BaseURL string

	Model  string
	Labels []string

	// Timeout bounds each request. Zero means 30s.
	Timeout time.Duration

	// HTTPClient overrides the HTTP client.
	HTTPClient *http.Client
}

// OpenAI classifies by asking a chat model to name one label.
type OpenAI struct {
	client openai.Client
	model  string
	labels []string
	system string
	log    log.Logger
}

// NewOpenAI validates cfg and returns the classifier.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	labels, err := NormalizeLabels(cfg.Labels)
	if err != nil {
		return nil, err
	}
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, errors.New("openai classifier needs an api key or a base url")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}

	var clientOpts []openaiopt.RequestOption
	if cfg.APIKey != "" {
		clientOpts = append(clientOpts, openaiopt.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		clientOpts = append(clientOpts, openaiopt.WithBaseURL(cfg.BaseURL))
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	clientOpts = append(clientOpts, openaiopt.WithHTTPClient(httpClient), openaiopt.WithMaxRetries(1))

	return &OpenAI{
		client: openai.NewClient(clientOpts...),
		model:  cfg.Model,
		labels: labels,
		system: systemPrompt(labels),
		log:    log.Named("classify"),
	}, nil
}

func systemPrompt(labels []string) string {
	return fmt.Sprintf(
		"You categorize retail receipts. Reply with exactly one of these categories and nothing else: %s. "+
			"If none of them fits, reply %s.",
		strings.Join(labels, ", "), OtherLabel)
}

// Labels returns the candidate labels in order.
func (o *OpenAI) Labels() []string {
	return append([]string(nil), o.labels...)
}

// Predict asks the model for a category.
func (o *OpenAI) Predict(ctx context.Context, text string) (string, error) {
	if tooShort(text) {
		return OtherLabel, nil
	}

	completion, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(o.system),
			openai.UserMessage(text),
		},
		Temperature: openai.Float(0),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}

	answer := cleanAnswer(completion.Choices[0].Message.Content)
	label := resolve(o.labels, answer)
	if label == OtherLabel && !strings.EqualFold(answer, OtherLabel) {
		o.log.Debugf("model answered unknown label %q", answer)
	}
	return label, nil
}

// Health checks that the configured model exists and the key is accepted.
func (o *OpenAI) Health(ctx context.Context) error {
	if _, err := o.client.Models.Get(ctx, o.model); err != nil {
		return fmt.Errorf("openai model %s unavailable: %w", o.model, err)
	}
	return nil
}

// cleanAnswer strips quotes, trailing punctuation and anything after the
// first line from a model reply.
func cleanAnswer(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.Trim(s, " \t\"'`.!")
}
