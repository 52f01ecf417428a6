package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/furzing/leakWhisperer/internal/domain"
	"github.com/furzing/leakWhisperer/internal/observability"
)

// BatchExtractor reads up to batchSize raw sample messages from the source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawEvent, error)
}

// Transformer ingests one raw sample message and returns its scored reading.
type Transformer interface {
	Transform(ctx context.Context, raw domain.RawEvent) (domain.Reading, error)
}

// BatchLoader writes multiple readings to the destination.
type BatchLoader interface {
	LoadBatch(ctx context.Context, readings []domain.Reading) error
}

// Pipeline consumes audio samples from a broker, ingests each through the
// Transformer, and publishes the resulting readings. Offsets are committed
// only after the readings of a batch are written; samples that cannot be
// ingested are logged, counted, and committed so one bad message cannot
// wedge the partition. A sample the speech service is still warming up for
// is retried in place a few times before it is dropped.
type Pipeline struct {
	extractor   BatchExtractor
	transformer Transformer
	loader      BatchLoader
	logger      *slog.Logger
	metrics     *observability.Metrics
	lastErr     atomic.Pointer[error]
	batchSize   int
	concurrency int

	warmupRetries int
	warmupWait    time.Duration
}

// maxWarmupWait caps a single wait for the speech service, whatever
// Retry-After it advertises.
const maxWarmupWait = 20 * time.Second

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithConcurrency sets how many messages of a batch are ingested at once.
// Transcription dominates ingest latency, so batches benefit from overlap.
func WithConcurrency(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithWarmupRetry sets how many times a sample is retried while the speech
// service warms up, and the first wait when it gives no Retry-After. Waits
// double up to maxWarmupWait. Zero attempts drops such samples immediately.
func WithWarmupRetry(attempts int, wait time.Duration) Option {
	return func(p *Pipeline) {
		if attempts >= 0 {
			p.warmupRetries = attempts
		}
		if wait > 0 {
			p.warmupWait = wait
		}
	}
}

// New creates a Pipeline with the given stages and observability.
func New(e BatchExtractor, t Transformer, l BatchLoader, logger *slog.Logger, metrics *observability.Metrics, batchSize int, opts ...Option) *Pipeline {
	p := &Pipeline{
		extractor:   e,
		transformer: t,
		loader:      l,
		logger:      logger,
		metrics:     metrics,
		batchSize:   batchSize,
		concurrency: 1,

		warmupRetries: 3,
		warmupWait:    time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CheckReadiness returns nil unless the most recent extract or load against
// the broker failed. An idle topic is ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if errp := p.lastErr.Load(); errp != nil {
		return fmt.Errorf("kafka pipeline unhealthy: %w", *errp)
	}
	return nil
}

func (p *Pipeline) setHealth(err error) {
	if err == nil {
		p.lastErr.Store(nil)
		return
	}
	p.lastErr.Store(&err)
}

// Run executes the batch ETL loop until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "batch_size", p.batchSize)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	// Exponential backoff: start at 200ms, double each retry, cap at 5s.
	backoff := 200 * time.Millisecond
	maxBackoff := 5 * time.Second

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		default:
		}

		if !p.processBatch(ctx, &backoff, maxBackoff) {
			return nil
		}
	}
}

// processBatch runs one extract-transform-load cycle. Returns false if the pipeline should stop.
func (p *Pipeline) processBatch(ctx context.Context, backoff *time.Duration, maxBackoff time.Duration) bool {
	start := time.Now()

	rawBatch, err := p.extractor.ExtractBatch(ctx, p.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		p.logger.Error("extract batch failed", "error", err)
		p.setHealth(err)
		return p.backoffOrStop(ctx, backoff, maxBackoff)
	}
	p.setHealth(nil)

	if len(rawBatch) == 0 {
		return ctx.Err() == nil
	}

	p.metrics.MessagesConsumed.Add(float64(len(rawBatch)))
	p.metrics.BatchSize.Observe(float64(len(rawBatch)))
	*backoff = 200 * time.Millisecond

	loaded, ok := p.transformAndLoad(ctx, rawBatch, backoff, maxBackoff)
	if !ok {
		return false
	}

	if loaded > 0 {
		p.metrics.BatchProcessingDuration.Observe(time.Since(start).Seconds())
	}
	return true
}

// transformAndLoad ingests each message in the batch, loads the readings,
// and commits offsets. Returns the number of loaded readings and false if the
// pipeline should stop.
func (p *Pipeline) transformAndLoad(ctx context.Context, rawBatch []domain.RawEvent, backoff *time.Duration, maxBackoff time.Duration) (int, bool) {
	readings := make([]domain.Reading, len(rawBatch))
	errs := make([]error, len(rawBatch))

	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i, raw := range rawBatch {
		g.Go(func() error {
			readings[i], errs[i] = p.transform(ctx, raw)
			return nil
		})
	}
	_ = g.Wait()

	outBatch := make([]domain.Reading, 0, len(rawBatch))
	successfulRaws := make([]domain.RawEvent, 0, len(rawBatch))

	for i, raw := range rawBatch {
		if err := errs[i]; err != nil {
			if ctx.Err() != nil {
				// Left uncommitted so the sample is redelivered after restart.
				continue
			}
			level := slog.LevelWarn
			if domain.Retryable(err) {
				level = slog.LevelError
			}
			p.logger.Log(ctx, level, "sample ingest failed, skipping message",
				"error", err,
				"kind", domain.KindOf(err),
				"topic", raw.Topic,
				"partition", raw.Partition,
				"offset", raw.Offset,
			)
			p.metrics.TransformErrors.Inc()
			p.commitOffset(ctx, raw)
			continue
		}
		outBatch = append(outBatch, readings[i])
		successfulRaws = append(successfulRaws, raw)
	}

	if len(outBatch) == 0 {
		return 0, true
	}

	if err := p.loader.LoadBatch(ctx, outBatch); err != nil {
		p.logger.Error("load batch failed", "error", err, "batch_size", len(outBatch))
		p.setHealth(err)
		return 0, p.backoffOrStop(ctx, backoff, maxBackoff)
	}

	p.metrics.MessagesProduced.Add(float64(len(outBatch)))

	for _, raw := range successfulRaws {
		p.commitOffset(ctx, raw)
	}

	return len(outBatch), true
}

// transform runs the Transformer, retrying while the speech service reports
// it is warming up.
func (p *Pipeline) transform(ctx context.Context, raw domain.RawEvent) (domain.Reading, error) {
	wait := p.warmupWait
	for attempt := 0; ; attempt++ {
		reading, err := p.transformer.Transform(ctx, raw)
		if err == nil || !domain.Retryable(err) || attempt >= p.warmupRetries {
			return reading, err
		}

		d := warmupDelay(err, wait)
		p.logger.Info("speech service warming up, retrying sample",
			"attempt", attempt+1,
			"wait", d,
			"topic", raw.Topic,
			"partition", raw.Partition,
			"offset", raw.Offset,
		)
		if !sleepWithContext(ctx, d) {
			return reading, err
		}
		wait = nextBackoff(wait, maxWarmupWait)
	}
}

// warmupDelay prefers the service's own estimate over the local backoff.
func warmupDelay(err error, fallback time.Duration) time.Duration {
	var de *domain.Error
	if errors.As(err, &de) && de.RetryAfter > 0 {
		return min(de.RetryAfter, maxWarmupWait)
	}
	return min(fallback, maxWarmupWait)
}

// backoffOrStop checks for context cancellation, sleeps with the current backoff,
// and advances the backoff. Returns false if the pipeline should stop.
func (p *Pipeline) backoffOrStop(ctx context.Context, backoff *time.Duration, maxBackoff time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if !sleepWithContext(ctx, *backoff) {
		return false
	}
	*backoff = nextBackoff(*backoff, maxBackoff)
	return true
}

// commitOffset commits the message offset if a commit function is available.
func (p *Pipeline) commitOffset(ctx context.Context, raw domain.RawEvent) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
