package simulate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Upload is the body accepted by the ingest endpoint.
type Upload struct {
	MeterID     string  `json:"meter_id"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	Timestamp   float64 `json:"timestamp"`
	AudioBase64 string  `json:"audio_base64"`
}

// Client posts uploads to a running service.
type Client struct {
	url  string
	http *http.Client
}

// NewClient targets baseURL + "/upload-audio".
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		url:  strings.TrimRight(baseURL, "/") + "/upload-audio",
		http: &http.Client{Timeout: timeout},
	}
}

// Send posts one upload and fails on any non-200 response.
func (c *Client) Send(ctx context.Context, u Upload) error {
	body, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("marshal upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", u.MeterID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("post %s: status %d: %s", u.MeterID, resp.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}
