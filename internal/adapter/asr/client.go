// Package asr adapts a hosted speech recognition API to domain.Transcriber.
package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/furzing/leakWhisperer/internal/domain"
	"github.com/furzing/leakWhisperer/internal/observability"
)

// maxDetailBytes bounds the upstream error body carried into error messages.
const maxDetailBytes = 512

// Client implements domain.Transcriber against a Hugging Face style
// inference endpoint: raw WAV bytes in, {"text": ...} out.
type Client struct {
	url        string
	token      string
	httpClient *http.Client
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a transcription client. An empty token sends no
// Authorization header.
func NewClient(url, token string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		url:   url,
		token: token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		metrics: metrics,
		logger:  logger,
	}
}

// Transcribe posts the WAV bytes and returns the trimmed transcript.
// Upstream failures come back as classified *domain.Error values; the client
// never retries.
func (c *Client) Transcribe(ctx context.Context, wav []byte) (string, error) {
	start := time.Now()
	text, err := c.doRequest(ctx, wav)
	c.metrics.TranscriptionDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.TranscriptionRequests.WithLabelValues("error").Inc()
		c.logger.Warn("transcription failed", "error", err, "kind", domain.KindOf(err))
		return "", err
	}
	c.metrics.TranscriptionRequests.WithLabelValues("success").Inc()
	return text, nil
}

func (c *Client) doRequest(ctx context.Context, wav []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(wav))
	if err != nil {
		return "", domain.NewError(domain.KindService, "create transcription request", err)
	}
	req.Header.Set("Content-Type", "audio/wav")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", domain.NewError(domain.KindService, "transcription request", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", domain.NewError(domain.KindService, "read transcription response", err)
	}

	switch {
	case resp.StatusCode == http.StatusServiceUnavailable:
		e := domain.NewError(domain.KindServiceWarmingUp, "ASR model warming up; retry shortly", nil)
		e.RetryAfter = retryAfter(resp.Header.Get("Retry-After"), body)
		return "", e
	case resp.StatusCode == http.StatusUnauthorized:
		return "", domain.NewError(domain.KindUnauthorized, "unauthorized by ASR API; set HF_API_TOKEN", nil)
	case resp.StatusCode >= http.StatusBadRequest:
		return "", domain.NewError(domain.KindService,
			fmt.Sprintf("ASR API error: status %d: %s", resp.StatusCode, truncate(body)), nil)
	}

	return parseTranscript(body)
}

// parseTranscript accepts either {"text": ...} or [{"text": ...}, ...]. An
// object carrying "error" means the model is not serving yet.
func parseTranscript(body []byte) (string, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []response
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return "", domain.NewError(domain.KindService, "decode transcription response", err)
		}
		if len(items) == 0 {
			return "", nil
		}
		return strings.TrimSpace(items[0].Text), nil
	}

	var r response
	if err := json.Unmarshal(trimmed, &r); err != nil {
		return "", domain.NewError(domain.KindService, "decode transcription response", err)
	}
	if r.Error != "" {
		e := domain.NewError(domain.KindServiceWarmingUp, "ASR unavailable: "+r.Error, nil)
		e.RetryAfter = seconds(r.EstimatedTime)
		return "", e
	}
	return strings.TrimSpace(r.Text), nil
}

// retryAfter prefers the Retry-After header and falls back to the body's
// estimated_time.
func retryAfter(header string, body []byte) time.Duration {
	if header != "" {
		var secs float64
		if _, err := fmt.Sscanf(header, "%g", &secs); err == nil {
			return seconds(secs)
		}
	}
	var r response
	if json.Unmarshal(body, &r) == nil {
		return seconds(r.EstimatedTime)
	}
	return 0
}

func seconds(s float64) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}

func truncate(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxDetailBytes {
		return s[:maxDetailBytes] + "..."
	}
	return s
}

// Inference API response types.

type response struct {
	Text          string  `json:"text"`
	Error         string  `json:"error"`
	EstimatedTime float64 `json:"estimated_time"`
}
