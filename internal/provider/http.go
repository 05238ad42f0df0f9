package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/catalogai/doc-analyzer/internal/fault"
	"github.com/google/uuid"
)

const maxErrorBody = 8 << 10

// postJSON sends a JSON body and returns the raw response. It assumes no
// particular provider; callers choose the URL and headers. Non-2xx statuses
// and transport failures come back as taxonomy errors, never raw.
func postJSON(ctx context.Context, client *http.Client, providerID, url string, body any, headers map[string]string, logger *slog.Logger) ([]byte, error) {
	if logger == nil {
		logger = slog.Default()
	}
	reqID := uuid.New().String()
	start := time.Now()

	bs, err := json.Marshal(body)
	if err != nil {
		return nil, fault.Wrap(fault.KindConnection, err, "%s: encode request", providerID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bs))
	if err != nil {
		return nil, fault.Wrap(fault.KindConnection, err, "%s: build request", providerID)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	logger.Debug("provider.http.request",
		"req_id", reqID,
		"provider", providerID,
		"url", url,
		"content_length", len(bs),
	)

	resp, err := client.Do(req)
	if err != nil {
		logger.Error("provider.http.send_error",
			"req_id", reqID, "provider", providerID, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fault.Wrap(fault.KindConnection, err, "%s: request timed out", providerID)
		}
		return nil, fault.Wrap(fault.KindConnection, err, "%s: request failed", providerID)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			logger.Warn("provider.http.body_close_error", "req_id", reqID, "error", cerr)
		}
	}()

	raw, _ := io.ReadAll(resp.Body)

	logger.Debug("provider.http.response",
		"req_id", reqID,
		"provider", providerID,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode/100 != 2 {
		return nil, statusError(providerID, resp.StatusCode, raw)
	}
	return raw, nil
}

// statusError translates an HTTP status into the error taxonomy. The raw
// provider payload goes into the cause, not the user-facing message.
func statusError(providerID string, status int, body []byte) error {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	cause := errors.New(string(bytes.TrimSpace(body)))
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fault.Wrap(fault.KindNotConfigured, cause, "%s: credentials rejected (HTTP %d)", providerID, status)
	case status == http.StatusTooManyRequests:
		return fault.Wrap(fault.KindRateLimited, cause, "%s: rate limited", providerID)
	case status == http.StatusRequestTimeout:
		return fault.Wrap(fault.KindConnection, cause, "%s: request timed out", providerID)
	case status >= 500:
		return fault.Wrap(fault.KindServiceUnavailable, cause, "%s: service unavailable (HTTP %d)", providerID, status)
	default:
		return fault.Wrap(fault.KindConnection, cause, "%s: unexpected HTTP %d", providerID, status)
	}
}
