package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/furzing/leakWhisperer/internal/audio"
	"github.com/furzing/leakWhisperer/internal/broadcast"
	"github.com/furzing/leakWhisperer/internal/domain"
	"github.com/furzing/leakWhisperer/internal/observability"
	"github.com/furzing/leakWhisperer/internal/scoring"
	"github.com/furzing/leakWhisperer/internal/store"
)

const tracerName = "github.com/furzing/leakWhisperer/internal/pipeline"

// Sources label where a sample came from.
const (
	SourceHTTP  = "http"
	SourceKafka = "kafka"
)

// Publisher is a named external sink for leak events.
type Publisher interface {
	domain.EventPublisher
	Name() string
}

// ReadinessCheck reports whether a dependency is ready to serve.
type ReadinessCheck func(ctx context.Context) error

// Processor runs one sample through normalization, transcription, spectral
// scoring, flow estimation and the meter update, then fans a detected leak
// out to subscribers and publishers. It is safe for concurrent use; samples
// share no state beyond the store's per-meter locks.
type Processor struct {
	store       *store.Store
	transcriber domain.Transcriber
	hub         *broadcast.Hub
	publishers  []Publisher
	spectral    *semaphore.Weighted
	checks      map[string]ReadinessCheck
	tracer      trace.Tracer
	logger      *slog.Logger
	metrics     *observability.Metrics
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithPublishers adds external leak event sinks.
func WithPublishers(pubs ...Publisher) ProcessorOption {
	return func(p *Processor) { p.publishers = append(p.publishers, pubs...) }
}

// WithSpectralWorkers bounds concurrent spectral analyses.
func WithSpectralWorkers(n int) ProcessorOption {
	return func(p *Processor) {
		if n > 0 {
			p.spectral = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithReadinessCheck adds a named dependency check to CheckReadiness.
func WithReadinessCheck(name string, check ReadinessCheck) ProcessorOption {
	return func(p *Processor) { p.checks[name] = check }
}

// NewProcessor wires the ingest path.
func NewProcessor(st *store.Store, tr domain.Transcriber, hub *broadcast.Hub, logger *slog.Logger, metrics *observability.Metrics, opts ...ProcessorOption) *Processor {
	p := &Processor{
		store:       st,
		transcriber: tr,
		hub:         hub,
		spectral:    semaphore.NewWeighted(int64(runtime.GOMAXPROCS(0))),
		checks:      make(map[string]ReadinessCheck),
		tracer:      otel.Tracer(tracerName),
		logger:      logger,
		metrics:     metrics,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Store exposes the meter store for read paths.
func (p *Processor) Store() *store.Store { return p.store }

// CheckReadiness returns nil when the fleet is seeded and every registered
// dependency check passes.
func (p *Processor) CheckReadiness(ctx context.Context) error {
	if p.store == nil || p.store.Len() == 0 {
		return errors.New("meter store is empty")
	}
	for name, check := range p.checks {
		if err := check(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// Ingest scores one sample and applies it to its meter. On any error the
// meter is left untouched.
func (p *Processor) Ingest(ctx context.Context, sample domain.Sample, source string) (domain.IngestResult, error) {
	start := time.Now()
	ctx, span := p.tracer.Start(ctx, "pipeline.Ingest",
		trace.WithAttributes(
			attribute.String("meter_id", sample.MeterID),
			attribute.String("source", source),
		))
	defer span.End()

	res, err := p.ingest(ctx, sample)
	p.metrics.IngestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		kind := domain.KindOf(err)
		if kind == "" {
			kind = domain.KindService
		}
		p.metrics.SamplesIngested.WithLabelValues(source, "error").Inc()
		p.metrics.IngestErrors.WithLabelValues(string(kind)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, string(kind))
		return domain.IngestResult{}, err
	}

	outcome := "normal"
	if res.IsLeak {
		outcome = "leak"
	}
	p.metrics.SamplesIngested.WithLabelValues(source, outcome).Inc()
	span.SetAttributes(
		attribute.Bool("is_leak", res.IsLeak),
		attribute.Float64("confidence", res.Meter.Confidence),
		attribute.String("severity", string(res.Severity)),
	)

	if res.IsLeak {
		// Fan-out outlives the request that triggered it.
		p.fanOut(context.WithoutCancel(ctx), domain.NewLeakEvent(res.Meter))
	}
	return res, nil
}

func (p *Processor) ingest(ctx context.Context, sample domain.Sample) (domain.IngestResult, error) {
	// Unknown meters are rejected before spending a transcription call.
	if !p.store.Has(sample.MeterID) {
		return domain.IngestResult{}, domain.NewError(domain.KindNotFound,
			fmt.Sprintf("meter %q not found", sample.MeterID), nil)
	}

	clip, err := audio.Normalize(sample.AudioBase64)
	if err != nil {
		return domain.IngestResult{}, err
	}

	transcript, ratio, err := p.analyze(ctx, clip)
	if err != nil {
		return domain.IngestResult{}, err
	}

	result := scoring.Decide(transcript, ratio)
	flow := domain.EstimateFlow(result.IsLeak, result.Confidence)
	severity := domain.ComputeSeverity(flow)
	status := domain.StatusNormal
	if result.IsLeak {
		status = domain.StatusLeak
	}

	meter, err := p.store.Update(sample.MeterID, domain.MeterUpdate{
		Status:      status,
		FlowRateLPH: flow,
		Confidence:  result.Confidence,
		Severity:    severity,
		Transcript:  result.Transcript,
		AudioBase64: sample.AudioBase64,
	})
	if err != nil {
		return domain.IngestResult{}, err
	}

	p.logger.Debug("sample scored",
		"meter_id", sample.MeterID,
		"is_leak", result.IsLeak,
		"confidence", result.Confidence,
		"keyword_score", result.KeywordScore,
		"high_freq_ratio", result.HighFreqRatio,
		"flow_rate_lph", flow,
		"duration_s", clip.Duration(),
	)
	return domain.IngestResult{Meter: meter, IsLeak: result.IsLeak, Severity: severity}, nil
}

// analyze runs transcription and spectral analysis concurrently.
func (p *Processor) analyze(ctx context.Context, clip audio.Clip) (string, float64, error) {
	var transcript string
	var ratio float64

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ctx, span := p.tracer.Start(gctx, "asr.Transcribe")
		defer span.End()
		t, err := p.transcriber.Transcribe(ctx, clip.Raw)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "transcription failed")
			return err
		}
		transcript = t
		return nil
	})
	g.Go(func() error {
		if err := p.spectral.Acquire(gctx, 1); err != nil {
			return domain.NewError(domain.KindService, "wait for spectral worker", err)
		}
		defer p.spectral.Release(1)
		_, span := p.tracer.Start(gctx, "scoring.HighFrequencyRatio",
			trace.WithAttributes(attribute.Int("samples", len(clip.Samples))))
		defer span.End()
		ratio = scoring.HighFrequencyRatio(clip.Samples, clip.SampleRate)
		return nil
	})
	if err := g.Wait(); err != nil {
		return "", 0, err
	}
	return transcript, ratio, nil
}

// fanOut delivers a leak event to live subscribers and external sinks.
// Failures here are logged and counted; they never fail the ingest.
func (p *Processor) fanOut(ctx context.Context, event domain.LeakEvent) {
	if p.hub != nil {
		if failed := p.hub.Broadcast(ctx, event); failed > 0 {
			p.metrics.BroadcastFailures.Add(float64(failed))
		}
	}
	for _, pub := range p.publishers {
		if err := pub.Publish(ctx, event); err != nil {
			p.metrics.EventsPublished.WithLabelValues(pub.Name(), "error").Inc()
			p.logger.Warn("publish leak event failed", "sink", pub.Name(), "meter_id", event.MeterID, "error", err)
			continue
		}
		p.metrics.EventsPublished.WithLabelValues(pub.Name(), "success").Inc()
	}
	p.logger.Info("leak detected",
		"meter_id", event.MeterID,
		"severity", event.Severity,
		"flow_rate_lph", event.FlowRateLPH,
	)
}
