// Package provider defines the capability contract every AI analysis backend
// satisfies, plus the concrete OpenAI, Anthropic and Ollama implementations.
// Providers differ in wire protocol and capabilities (vision vs text-only);
// everything above them consumes the one Result shape and the shared error
// taxonomy.
package provider

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/catalogai/doc-analyzer/internal/fault"
)

// Config carries the credentials and generation limits for one provider
// instance. It is supplied at construction and never mutated afterwards.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// Usage is the token accounting reported by a provider call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Pricing is USD per 1000 tokens for one model.
type Pricing struct {
	InputRate  float64 `json:"input_rate"`
	OutputRate float64 `json:"output_rate"`
}

// Image is one bitmap handed to a vision-capable provider. Data is always
// set; URL is an optional publicly-reachable alternative the caller has
// already vetted.
type Image struct {
	Data     []byte
	MIMEType string
	URL      string
}

// Options are the per-call overrides; zero values fall back to Config.
type Options struct {
	MaxTokens   int
	Temperature float64
}

// Result is the normalized output of one analysis call. Metadata is non-nil
// whenever Method != "failed".
type Result struct {
	Metadata map[string]any `json:"metadata"`
	Usage    Usage          `json:"usage"`
	Provider string         `json:"provider"`
	Model    string         `json:"model"`
	Method   string         `json:"extraction_method"`
}

// ConnectionStatus is the outcome of a configuration round-trip test.
type ConnectionStatus struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Provider is the capability interface implemented by each analysis backend.
// Text-only implementations reject the image calls with a typed
// VISION_NOT_SUPPORTED error instead of silently degrading.
type Provider interface {
	ID() string
	Model() string
	SupportsVision() bool

	AnalyzeImage(ctx context.Context, img Image, prompt string, opts Options) (*Result, error)
	AnalyzeImages(ctx context.Context, imgs []Image, prompt string, opts Options) (*Result, error)
	AnalyzeText(ctx context.Context, text, prompt string, opts Options) (*Result, error)

	Pricing(model string) Pricing
	TestConnection(ctx context.Context) ConnectionStatus
}

// New resolves a provider id to a concrete implementation. The orchestrator
// itself never calls this: it receives an already-constructed Provider, so no
// process-wide registry exists.
func New(id string, cfg Config, logger *slog.Logger) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(id)) {
	case "openai":
		return NewOpenAI(cfg, logger), nil
	case "anthropic":
		return NewAnthropic(cfg, logger), nil
	case "ollama":
		return NewOllama(cfg, logger), nil
	default:
		return nil, fault.New(fault.KindNotConfigured, "unknown provider %q", id)
	}
}
