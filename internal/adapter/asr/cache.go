package asr

import (
	"context"
	"crypto/sha256"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/furzing/leakWhisperer/internal/domain"
	"github.com/furzing/leakWhisperer/internal/observability"
)

// CachedTranscriber wraps a Transcriber with an LRU cache keyed by the
// SHA-256 of the audio bytes. Identical uploads skip the remote call.
type CachedTranscriber struct {
	inner   domain.Transcriber
	cache   *lru.Cache[[sha256.Size]byte, string]
	metrics *observability.Metrics
}

// NewCachedTranscriber creates a cache decorator around a transcriber.
func NewCachedTranscriber(inner domain.Transcriber, maxEntries int, metrics *observability.Metrics) (*CachedTranscriber, error) {
	cache, err := lru.New[[sha256.Size]byte, string](maxEntries)
	if err != nil {
		return nil, fmt.Errorf("create transcript cache: %w", err)
	}
	return &CachedTranscriber{inner: inner, cache: cache, metrics: metrics}, nil
}

func (c *CachedTranscriber) Transcribe(ctx context.Context, wav []byte) (string, error) {
	key := sha256.Sum256(wav)
	if text, ok := c.cache.Get(key); ok {
		c.metrics.TranscriptCache.WithLabelValues("hit").Inc()
		return text, nil
	}
	c.metrics.TranscriptCache.WithLabelValues("miss").Inc()

	text, err := c.inner.Transcribe(ctx, wav)
	if err != nil {
		return "", err
	}
	// Failures are never cached so a warming model is retried next time.
	c.cache.Add(key, text)
	return text, nil
}

// Len returns the number of cached transcripts.
func (c *CachedTranscriber) Len() int {
	return c.cache.Len()
}
