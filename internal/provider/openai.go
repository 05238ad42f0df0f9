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
	openAIDefaultBaseURL = "https://api.openai.com/v1"
	openAIDefaultModel   = "gpt-4o-mini"
	openAIMaxTextBytes   = 48_000
)

// openAIVisionPrefixes lists model families with image input support. Vision
// capability is static per model; anything else is treated as text-only.
var openAIVisionPrefixes = []string{"gpt-4o", "gpt-4.1", "gpt-4-turbo", "o1", "o3"}

var openAIPricing = map[string]Pricing{
	"gpt-4o":        {InputRate: 0.0025, OutputRate: 0.01},
	"gpt-4o-mini":   {InputRate: 0.00015, OutputRate: 0.0006},
	"gpt-4.1":       {InputRate: 0.002, OutputRate: 0.008},
	"gpt-4-turbo":   {InputRate: 0.01, OutputRate: 0.03},
	"gpt-3.5-turbo": {InputRate: 0.0005, OutputRate: 0.0015},
}

// OpenAI speaks the chat/completions API. Vision calls send images as
// data-URL image_url content parts.
type OpenAI struct {
	cfg    Config
	client *http.Client
	log    *slog.Logger
}

// NewOpenAI builds a client; zero config fields get conservative defaults.
func NewOpenAI(cfg Config, logger *slog.Logger) *OpenAI {
	if cfg.BaseURL == "" {
		cfg.BaseURL = openAIDefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = openAIDefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAI{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    logger,
	}
}

func (o *OpenAI) ID() string    { return "openai" }
func (o *OpenAI) Model() string { return o.cfg.Model }

func (o *OpenAI) SupportsVision() bool {
	for _, prefix := range openAIVisionPrefixes {
		if strings.HasPrefix(o.cfg.Model, prefix) {
			return true
		}
	}
	return false
}

func (o *OpenAI) Pricing(model string) Pricing {
	if p, ok := openAIPricing[model]; ok {
		return p
	}
	// fall back to the longest matching family rate
	var best string
	for prefix := range openAIPricing {
		if strings.HasPrefix(model, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best != "" {
		return openAIPricing[best]
	}
	return Pricing{}
}

func (o *OpenAI) AnalyzeText(ctx context.Context, text, prompt string, opts Options) (*Result, error) {
	messages := []map[string]any{
		{"role": "system", "content": prompt},
		{"role": "user", "content": SanitizeText(text, openAIMaxTextBytes)},
	}
	return o.chat(ctx, messages, opts)
}

func (o *OpenAI) AnalyzeImage(ctx context.Context, img Image, prompt string, opts Options) (*Result, error) {
	return o.AnalyzeImages(ctx, []Image{img}, prompt, opts)
}

func (o *OpenAI) AnalyzeImages(ctx context.Context, imgs []Image, prompt string, opts Options) (*Result, error) {
	if !o.SupportsVision() {
		return nil, fault.New(fault.KindVisionNotSupported, "model %s does not accept image input", o.cfg.Model)
	}
	parts := []map[string]any{{"type": "text", "text": prompt}}
	for _, img := range imgs {
		parts = append(parts, map[string]any{
			"type":      "image_url",
			"image_url": map[string]any{"url": imageRef(img)},
		})
	}
	messages := []map[string]any{{"role": "user", "content": parts}}
	return o.chat(ctx, messages, opts)
}

func (o *OpenAI) chat(ctx context.Context, messages []map[string]any, opts Options) (*Result, error) {
	if o.cfg.APIKey == "" {
		return nil, fault.New(fault.KindNotConfigured, "openai: API key is not configured")
	}
	body := map[string]any{
		"model":           o.cfg.Model,
		"messages":        messages,
		"temperature":     pickFloat(opts.Temperature, o.cfg.Temperature),
		"response_format": map[string]any{"type": "json_object"},
	}
	if maxTokens := pickInt(opts.MaxTokens, o.cfg.MaxTokens); maxTokens > 0 {
		body["max_tokens"] = maxTokens
	}

	raw, err := postJSON(ctx, o.client, o.ID(),
		strings.TrimRight(o.cfg.BaseURL, "/")+"/chat/completions",
		body,
		map[string]string{"Authorization": "Bearer " + o.cfg.APIKey},
		o.log,
	)
	if err != nil {
		return nil, err
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage Usage `json:"usage"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return nil, fault.Wrap(fault.KindJSONParse, err, "openai: malformed response envelope")
	}
	if len(cc.Choices) == 0 || strings.TrimSpace(cc.Choices[0].Message.Content) == "" {
		return nil, fault.New(fault.KindEmptyResponse, "openai: response contained no content")
	}

	metadata, err := ParseJSONResponse(cc.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	return &Result{
		Metadata: metadata,
		Usage:    cc.Usage,
		Provider: o.ID(),
		Model:    o.cfg.Model,
	}, nil
}

// TestConnection lists models with the configured credentials; it is
// independent of the analysis path so misconfiguration shows up before any
// document is processed.
func (o *OpenAI) TestConnection(ctx context.Context) ConnectionStatus {
	if o.cfg.APIKey == "" {
		return ConnectionStatus{Success: false, Message: "API key is not configured"}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		strings.TrimRight(o.cfg.BaseURL, "/")+"/models", nil)
	if err != nil {
		return ConnectionStatus{Success: false, Message: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+o.cfg.APIKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return ConnectionStatus{Success: false, Message: fmt.Sprintf("connection failed: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return ConnectionStatus{Success: false, Message: fmt.Sprintf("HTTP %d from models endpoint", resp.StatusCode)}
	}
	return ConnectionStatus{Success: true, Message: fmt.Sprintf("connected; model %s", o.cfg.Model)}
}

// imageRef prefers a caller-vetted public URL, otherwise inlines the bytes
// as a data URL.
func imageRef(img Image) string {
	if img.URL != "" {
		return img.URL
	}
	mime := img.MIMEType
	if mime == "" {
		mime = "image/jpeg"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

func pickInt(override, base int) int {
	if override > 0 {
		return override
	}
	return base
}

func pickFloat(override, base float64) float64 {
	if override > 0 {
		return override
	}
	return base
}
