package provider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/catalogai/doc-analyzer/internal/fault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func anthropicTestServer(t *testing.T, handler http.HandlerFunc) *Anthropic {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewAnthropic(Config{APIKey: "test-key", BaseURL: srv.URL, Model: "claude-3-5-haiku-latest"}, nil)
}

func messagesReply(text string, in, out int) map[string]any {
	return map[string]any{
		"content": []map[string]any{{"type": "text", "text": text}},
		"usage":   map[string]any{"input_tokens": in, "output_tokens": out},
	}
}

func TestAnthropicAnalyzeText(t *testing.T) {
	var gotBody map[string]any
	client := anthropicTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &gotBody))
		_ = json.NewEncoder(w).Encode(messagesReply(`{"autor":"Cervantes"}`, 30, 10))
	})

	res, err := client.AnalyzeText(context.Background(), "document body", "extract metadata", Options{})
	require.NoError(t, err)
	assert.Equal(t, "Cervantes", res.Metadata["autor"])
	assert.Equal(t, 30, res.Usage.PromptTokens)
	assert.Equal(t, 10, res.Usage.CompletionTokens)
	assert.Equal(t, 40, res.Usage.TotalTokens)
	assert.Equal(t, "anthropic", res.Provider)

	// prompt travels as the system parameter, not a message
	assert.Equal(t, "extract metadata", gotBody["system"])
}

func TestAnthropicAnalyzeImages(t *testing.T) {
	var gotBody map[string]any
	client := anthropicTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &gotBody))
		_ = json.NewEncoder(w).Encode(messagesReply(`{"ok":true}`, 1, 1))
	})

	imgs := []Image{{Data: []byte("jpegbytes"), MIMEType: "image/jpeg"}}
	_, err := client.AnalyzeImages(context.Background(), imgs, "describe", Options{})
	require.NoError(t, err)

	messages := gotBody["messages"].([]any)
	content := messages[0].(map[string]any)["content"].([]any)
	require.Len(t, content, 2) // image block + trailing text block
	imgBlock := content[0].(map[string]any)
	assert.Equal(t, "image", imgBlock["type"])
	source := imgBlock["source"].(map[string]any)
	assert.Equal(t, "base64", source["type"])
	assert.Equal(t, "image/jpeg", source["media_type"])
	assert.NotEmpty(t, source["data"])
}

func TestAnthropicMultiBlockContent(t *testing.T) {
	client := anthropicTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]any{
				{"type": "text", "text": `{"titulo":`},
				{"type": "text", "text": `"Quijote"}`},
			},
			"usage": map[string]any{"input_tokens": 1, "output_tokens": 1},
		})
	})
	res, err := client.AnalyzeText(context.Background(), "x", "p", Options{})
	require.NoError(t, err)
	assert.Equal(t, "Quijote", res.Metadata["titulo"])
}

func TestAnthropicEmptyContent(t *testing.T) {
	client := anthropicTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"content": []any{}})
	})
	_, err := client.AnalyzeText(context.Background(), "x", "p", Options{})
	assert.True(t, fault.IsKind(err, fault.KindEmptyResponse))
}

func TestAnthropicErrorMapping(t *testing.T) {
	client := anthropicTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	_, err := client.AnalyzeText(context.Background(), "x", "p", Options{})
	assert.True(t, fault.IsKind(err, fault.KindRateLimited))
}

func TestAnthropicMissingKey(t *testing.T) {
	client := NewAnthropic(Config{}, nil)
	_, err := client.AnalyzeText(context.Background(), "x", "p", Options{})
	assert.True(t, fault.IsKind(err, fault.KindNotConfigured))

	status := client.TestConnection(context.Background())
	assert.False(t, status.Success)
}

func TestAnthropicVisionCapability(t *testing.T) {
	assert.True(t, NewAnthropic(Config{Model: "claude-3-5-sonnet-latest"}, nil).SupportsVision())
	assert.True(t, NewAnthropic(Config{Model: "claude-sonnet-4-20250514"}, nil).SupportsVision())
	assert.False(t, NewAnthropic(Config{Model: "claude-2.1"}, nil).SupportsVision())
}

func TestAnthropicTestConnection(t *testing.T) {
	client := anthropicTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))
		assert.Equal(t, float64(1), body["max_tokens"])
		_ = json.NewEncoder(w).Encode(messagesReply("pong", 1, 1))
	})
	status := client.TestConnection(context.Background())
	assert.True(t, status.Success)
}
