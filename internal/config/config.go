// Package config loads service configuration from defaults, an optional
// YAML file, an optional .env file and the environment, in increasing order
// of precedence.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ironsheep/receipt-extractor/internal/classify"
	"github.com/ironsheep/receipt-extractor/internal/normalize"
)

// Backend names.
const (
	DetectorHTTP      = "http"
	DetectorHeuristic = "heuristic"

	ClassifierZeroShot = "zeroshot"
	ClassifierOpenAI   = "openai"
)

// FileEnv names the variable holding the optional YAML config path.
const FileEnv = "RECEIPT_CONFIG_FILE"

// Config holds all service configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Detector   DetectorConfig   `yaml:"detector"`
	OCR        OCRConfig        `yaml:"ocr"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	LogLevel   string           `yaml:"log_level"`
}

// HTTPConfig holds the HTTP boundary settings.
type HTTPConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	MaxUploadMB    int      `yaml:"max_upload_mb"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Addr is host:port for net.Listen.
func (h HTTPConfig) Addr() string {
	return net.JoinHostPort(h.Host, strconv.Itoa(h.Port))
}

// MaxUploadBytes is MaxUploadMB in bytes.
func (h HTTPConfig) MaxUploadBytes() int64 {
	return int64(h.MaxUploadMB) << 20
}

// DetectorConfig holds region detector settings.
type DetectorConfig struct {
	Backend      string        `yaml:"backend"`
	URL          string        `yaml:"url"`
	Weights      string        `yaml:"weights"`
	TrustWeights bool          `yaml:"trust_weights"`
	CheckWeights bool          `yaml:"check_weights"`
	Confidence   float64       `yaml:"confidence"`
	Timeout      time.Duration `yaml:"timeout"`
}

// OCRConfig holds text recognizer settings.
type OCRConfig struct {
	TessdataPrefix string `yaml:"tessdata_prefix"`
	Language       string `yaml:"language"`
	PoolSize       int    `yaml:"pool_size"`
}

// ClassifierConfig holds category classifier settings.
type ClassifierConfig struct {
	Backend string        `yaml:"backend"`
	Labels  []string      `yaml:"labels"`
	URL     string        `yaml:"url"`
	Token   string        `yaml:"token"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`

	OpenAIAPIKey  string `yaml:"openai_api_key"`
	OpenAIBaseURL string `yaml:"openai_base_url"`
	OpenAIModel   string `yaml:"openai_model"`
}

// PipelineConfig holds extraction settings.
type PipelineConfig struct {
	// TotalKeywords are localized total keywords added to the English set.
	TotalKeywords []string `yaml:"total_keywords"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Host:        "127.0.0.1",
			Port:        8001,
			MaxUploadMB: 20,
		},
		Detector: DetectorConfig{
			Backend:    DetectorHTTP,
			URL:        "http://127.0.0.1:5000",
			Weights:    "models/yolov8/best.pt",
			Confidence: 0.25,
			Timeout:    30 * time.Second,
		},
		OCR: OCRConfig{
			Language: "eng",
			PoolSize: 2,
		},
		Classifier: ClassifierConfig{
			Backend:     ClassifierZeroShot,
			Labels:      append([]string(nil), classify.DefaultLabels...),
			URL:         classify.DefaultZeroShotURL,
			Model:       classify.DefaultZeroShotModel,
			Timeout:     30 * time.Second,
			OpenAIModel: classify.DefaultOpenAIModel,
		},
		Pipeline: PipelineConfig{
			TotalKeywords: append([]string(nil), normalize.DefaultLocalizedKeywords...),
		},
		LogLevel: "info",
	}
}

// LoadDotEnv loads variables from the given .env files, or ./.env when none
// are given. Missing files are ignored and existing variables are kept.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load builds the configuration: defaults, then the YAML file at path (or
// $RECEIPT_CONFIG_FILE when path is empty), then environment variables.
// The result is validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path == "" {
		path = os.Getenv(FileEnv)
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	e := &envReader{}

	c.HTTP.Host = e.getString("RECEIPT_HTTP_HOST", c.HTTP.Host)
	c.HTTP.Port = e.getInt("RECEIPT_HTTP_PORT", c.HTTP.Port)
	c.HTTP.MaxUploadMB = e.getInt("RECEIPT_MAX_UPLOAD_MB", c.HTTP.MaxUploadMB)
	c.HTTP.AllowedOrigins = e.getList("RECEIPT_CORS_ORIGINS", c.HTTP.AllowedOrigins)

	c.Detector.Backend = e.getString("RECEIPT_DETECTOR_BACKEND", c.Detector.Backend)
	c.Detector.URL = e.getString("RECEIPT_DETECTOR_URL", c.Detector.URL)
	c.Detector.Weights = e.getString("RECEIPT_DETECTOR_WEIGHTS", c.Detector.Weights)
	c.Detector.TrustWeights = e.getBool("RECEIPT_DETECTOR_TRUST_WEIGHTS", c.Detector.TrustWeights)
	c.Detector.CheckWeights = e.getBool("RECEIPT_DETECTOR_CHECK_WEIGHTS", c.Detector.CheckWeights)
	c.Detector.Confidence = e.getFloat("RECEIPT_DETECT_CONFIDENCE", c.Detector.Confidence)
	c.Detector.Timeout = e.getDuration("RECEIPT_DETECTOR_TIMEOUT", c.Detector.Timeout)

	c.OCR.TessdataPrefix = e.getString("TESSDATA_PREFIX", c.OCR.TessdataPrefix)
	c.OCR.Language = e.getString("RECEIPT_OCR_LANGUAGE", c.OCR.Language)
	c.OCR.PoolSize = e.getInt("RECEIPT_OCR_POOL_SIZE", c.OCR.PoolSize)

	c.Classifier.Backend = e.getString("RECEIPT_CLASSIFIER_BACKEND", c.Classifier.Backend)
	c.Classifier.Labels = e.getList("DEFAULT_LABELS", c.Classifier.Labels)
	c.Classifier.URL = e.getString("RECEIPT_CLASSIFIER_URL", c.Classifier.URL)
	c.Classifier.Token = e.getString("RECEIPT_CLASSIFIER_TOKEN", c.Classifier.Token)
	c.Classifier.Model = e.getString("RECEIPT_CLASSIFIER_MODEL", c.Classifier.Model)
	c.Classifier.Timeout = e.getDuration("RECEIPT_CLASSIFIER_TIMEOUT", c.Classifier.Timeout)
	c.Classifier.OpenAIAPIKey = e.getString("OPENAI_API_KEY", c.Classifier.OpenAIAPIKey)
	c.Classifier.OpenAIBaseURL = e.getString("OPENAI_BASE_URL", c.Classifier.OpenAIBaseURL)
	c.Classifier.OpenAIModel = e.getString("OPENAI_MODEL", c.Classifier.OpenAIModel)

	c.Pipeline.TotalKeywords = e.getList("RECEIPT_TOTAL_KEYWORDS", c.Pipeline.TotalKeywords)

	c.LogLevel = e.getString("RECEIPT_LOG_LEVEL", c.LogLevel)

	return errors.Join(e.errs...)
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	var errs []error

	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("http port %d out of range", c.HTTP.Port))
	}
	if c.HTTP.MaxUploadMB < 1 {
		errs = append(errs, fmt.Errorf("max upload size must be at least 1 MB, got %d", c.HTTP.MaxUploadMB))
	}

	switch c.Detector.Backend {
	case DetectorHTTP:
		if c.Detector.URL == "" {
			errs = append(errs, errors.New("detector url is required for the http backend"))
		}
	case DetectorHeuristic:
	default:
		errs = append(errs, fmt.Errorf("unknown detector backend %q", c.Detector.Backend))
	}
	if c.Detector.Confidence <= 0 || c.Detector.Confidence > 1 {
		errs = append(errs, fmt.Errorf("detection confidence %v outside (0,1]", c.Detector.Confidence))
	}

	if c.OCR.PoolSize < 1 {
		errs = append(errs, fmt.Errorf("ocr pool size must be at least 1, got %d", c.OCR.PoolSize))
	}
	if strings.TrimSpace(c.OCR.Language) == "" {
		errs = append(errs, errors.New("ocr language is required"))
	}

	if _, err := classify.NormalizeLabels(c.Classifier.Labels); err != nil {
		errs = append(errs, err)
	}
	switch c.Classifier.Backend {
	case ClassifierZeroShot:
	case ClassifierOpenAI:
		if c.Classifier.OpenAIAPIKey == "" && c.Classifier.OpenAIBaseURL == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY or OPENAI_BASE_URL is required for the openai classifier"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown classifier backend %q", c.Classifier.Backend))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// envReader reads typed variables, falling back to the current value when a
// variable is unset or empty, and collects parse errors.
type envReader struct {
	errs []error
}

func (e *envReader) getString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func (e *envReader) getInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	v, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return v
}

func (e *envReader) getFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return v
}

func (e *envReader) getBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	v, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return v
}

func (e *envReader) getDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	v, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return v
}

func (e *envReader) getList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	out := make([]string, 0)
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
