package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/catalogai/doc-analyzer/internal/fault"
)

const (
	anthropicDefaultBaseURL = "https://api.anthropic.com"
	anthropicDefaultModel   = "claude-3-5-haiku-latest"
	anthropicVersion        = "2023-06-01"
	anthropicMaxTextBytes   = 120_000
	anthropicDefaultTokens  = 1024
)

var anthropicPricing = map[string]Pricing{
	"claude-3-5-sonnet-latest": {InputRate: 0.003, OutputRate: 0.015},
	"claude-3-5-haiku-latest":  {InputRate: 0.0008, OutputRate: 0.004},
	"claude-3-opus-latest":     {InputRate: 0.015, OutputRate: 0.075},
	"claude-3-haiku-20240307":  {InputRate: 0.00025, OutputRate: 0.00125},
}

// Anthropic speaks the messages API. All current claude-3 family models
// accept image input, sent as base64 source blocks.
type Anthropic struct {
	cfg    Config
	client *http.Client
	log    *slog.Logger
}

func NewAnthropic(cfg Config, logger *slog.Logger) *Anthropic {
	if cfg.BaseURL == "" {
		cfg.BaseURL = anthropicDefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = anthropicDefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Anthropic{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    logger,
	}
}

func (a *Anthropic) ID() string    { return "anthropic" }
func (a *Anthropic) Model() string { return a.cfg.Model }

func (a *Anthropic) SupportsVision() bool {
	return strings.HasPrefix(a.cfg.Model, "claude-3") || strings.HasPrefix(a.cfg.Model, "claude-sonnet") ||
		strings.HasPrefix(a.cfg.Model, "claude-opus") || strings.HasPrefix(a.cfg.Model, "claude-haiku")
}

func (a *Anthropic) Pricing(model string) Pricing {
	if p, ok := anthropicPricing[model]; ok {
		return p
	}
	return Pricing{}
}

func (a *Anthropic) AnalyzeText(ctx context.Context, text, prompt string, opts Options) (*Result, error) {
	content := []map[string]any{
		{"type": "text", "text": SanitizeText(text, anthropicMaxTextBytes)},
	}
	return a.message(ctx, prompt, content, opts)
}

func (a *Anthropic) AnalyzeImage(ctx context.Context, img Image, prompt string, opts Options) (*Result, error) {
	return a.AnalyzeImages(ctx, []Image{img}, prompt, opts)
}

func (a *Anthropic) AnalyzeImages(ctx context.Context, imgs []Image, prompt string, opts Options) (*Result, error) {
	if !a.SupportsVision() {
		return nil, fault.New(fault.KindVisionNotSupported, "model %s does not accept image input", a.cfg.Model)
	}
	content := make([]map[string]any, 0, len(imgs)+1)
	for _, img := range imgs {
		mime := img.MIMEType
		if mime == "" {
			mime = "image/jpeg"
		}
		content = append(content, map[string]any{
			"type": "image",
			"source": map[string]any{
				"type":       "base64",
				"media_type": mime,
				"data":       base64.StdEncoding.EncodeToString(img.Data),
			},
		})
	}
	content = append(content, map[string]any{"type": "text", "text": "Analyze the attached page image(s)."})
	return a.message(ctx, prompt, content, opts)
}

func (a *Anthropic) message(ctx context.Context, system string, content []map[string]any, opts Options) (*Result, error) {
	if a.cfg.APIKey == "" {
		return nil, fault.New(fault.KindNotConfigured, "anthropic: API key is not configured")
	}
	maxTokens := pickInt(opts.MaxTokens, a.cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultTokens
	}
	body := map[string]any{
		"model":      a.cfg.Model,
		"max_tokens": maxTokens,
		"system":     system,
		"messages": []map[string]any{
			{"role": "user", "content": content},
		},
		"temperature": pickFloat(opts.Temperature, a.cfg.Temperature),
	}

	raw, err := postJSON(ctx, a.client, a.ID(),
		strings.TrimRight(a.cfg.BaseURL, "/")+"/v1/messages",
		body,
		map[string]string{
			"x-api-key":         a.cfg.APIKey,
			"anthropic-version": anthropicVersion,
		},
		a.log,
	)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		Usage struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fault.Wrap(fault.KindJSONParse, err, "anthropic: malformed response envelope")
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if strings.TrimSpace(text) == "" {
		return nil, fault.New(fault.KindEmptyResponse, "anthropic: response contained no text content")
	}

	metadata, err := ParseJSONResponse(text)
	if err != nil {
		return nil, err
	}
	usage := Usage{
		PromptTokens:     resp.Usage.InputTokens,
		CompletionTokens: resp.Usage.OutputTokens,
		TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
	}
	return &Result{
		Metadata: metadata,
		Usage:    usage,
		Provider: a.ID(),
		Model:    a.cfg.Model,
	}, nil
}

// TestConnection issues a one-token message round trip.
func (a *Anthropic) TestConnection(ctx context.Context) ConnectionStatus {
	if a.cfg.APIKey == "" {
		return ConnectionStatus{Success: false, Message: "API key is not configured"}
	}
	body := map[string]any{
		"model":      a.cfg.Model,
		"max_tokens": 1,
		"messages": []map[string]any{
			{"role": "user", "content": "ping"},
		},
	}
	_, err := postJSON(ctx, a.client, a.ID(),
		strings.TrimRight(a.cfg.BaseURL, "/")+"/v1/messages",
		body,
		map[string]string{
			"x-api-key":         a.cfg.APIKey,
			"anthropic-version": anthropicVersion,
		},
		a.log,
	)
	if err != nil {
		return ConnectionStatus{Success: false, Message: fmt.Sprintf("connection test failed: %v", err)}
	}
	return ConnectionStatus{Success: true, Message: fmt.Sprintf("connected; model %s", a.cfg.Model)}
}
