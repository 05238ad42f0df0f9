package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/catalogai/doc-analyzer/internal/fault"
)

const (
	ollamaDefaultBaseURL = "http://127.0.0.1:11434"
	ollamaDefaultModel   = "llama3.1"
	ollamaMaxTextBytes   = 24_000
)

// Ollama runs models on the local host. It is treated as text-only: image
// calls fail with VISION_NOT_SUPPORTED so the orchestrator reports a clear
// reason instead of sending pixels to a model that ignores them. No API key
// is involved and all pricing is zero.
type Ollama struct {
	cfg    Config
	client *http.Client
	log    *slog.Logger
}

func NewOllama(cfg Config, logger *slog.Logger) *Ollama {
	if cfg.BaseURL == "" {
		cfg.BaseURL = ollamaDefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = ollamaDefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ollama{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    logger,
	}
}

func (l *Ollama) ID() string    { return "ollama" }
func (l *Ollama) Model() string { return l.cfg.Model }

func (l *Ollama) SupportsVision() bool { return false }

func (l *Ollama) Pricing(string) Pricing { return Pricing{} }

func (l *Ollama) AnalyzeImage(ctx context.Context, _ Image, _ string, _ Options) (*Result, error) {
	return nil, fault.New(fault.KindVisionNotSupported, "ollama provider is text-only")
}

func (l *Ollama) AnalyzeImages(ctx context.Context, _ []Image, _ string, _ Options) (*Result, error) {
	return nil, fault.New(fault.KindVisionNotSupported, "ollama provider is text-only")
}

func (l *Ollama) AnalyzeText(ctx context.Context, text, prompt string, opts Options) (*Result, error) {
	options := map[string]any{
		"temperature": pickFloat(opts.Temperature, l.cfg.Temperature),
	}
	if maxTokens := pickInt(opts.MaxTokens, l.cfg.MaxTokens); maxTokens > 0 {
		options["num_predict"] = maxTokens
	}
	body := map[string]any{
		"model":  l.cfg.Model,
		"stream": false,
		"format": "json",
		"messages": []map[string]any{
			{"role": "system", "content": prompt},
			{"role": "user", "content": SanitizeText(text, ollamaMaxTextBytes)},
		},
		"options": options,
	}

	raw, err := postJSON(ctx, l.client, l.ID(),
		strings.TrimRight(l.cfg.BaseURL, "/")+"/api/chat",
		body, nil, l.log,
	)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		PromptEvalCount int `json:"prompt_eval_count"`
		EvalCount       int `json:"eval_count"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fault.Wrap(fault.KindJSONParse, err, "ollama: malformed response envelope")
	}
	if strings.TrimSpace(resp.Message.Content) == "" {
		return nil, fault.New(fault.KindEmptyResponse, "ollama: response contained no content")
	}

	metadata, err := ParseJSONResponse(resp.Message.Content)
	if err != nil {
		return nil, err
	}
	usage := Usage{
		PromptTokens:     resp.PromptEvalCount,
		CompletionTokens: resp.EvalCount,
		TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
	}
	return &Result{
		Metadata: metadata,
		Usage:    usage,
		Provider: l.ID(),
		Model:    l.cfg.Model,
	}, nil
}

// TestConnection checks the local daemon is up and lists the installed
// models.
func (l *Ollama) TestConnection(ctx context.Context) ConnectionStatus {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		strings.TrimRight(l.cfg.BaseURL, "/")+"/api/tags", nil)
	if err != nil {
		return ConnectionStatus{Success: false, Message: err.Error()}
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return ConnectionStatus{Success: false, Message: fmt.Sprintf("ollama daemon unreachable: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return ConnectionStatus{Success: false, Message: fmt.Sprintf("HTTP %d from tags endpoint", resp.StatusCode)}
	}
	return ConnectionStatus{Success: true, Message: fmt.Sprintf("connected; model %s", l.cfg.Model)}
}
