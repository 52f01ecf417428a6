package main

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	"github.com/furzing/leakWhisperer/internal/adapter/asr"
	httpadapter "github.com/furzing/leakWhisperer/internal/adapter/http"
	kafkaadapter "github.com/furzing/leakWhisperer/internal/adapter/kafka"
	natsadapter "github.com/furzing/leakWhisperer/internal/adapter/nats"
	"github.com/furzing/leakWhisperer/internal/broadcast"
	"github.com/furzing/leakWhisperer/internal/config"
	"github.com/furzing/leakWhisperer/internal/domain"
	"github.com/furzing/leakWhisperer/internal/observability"
	"github.com/furzing/leakWhisperer/internal/pipeline"
	"github.com/furzing/leakWhisperer/internal/report"
	"github.com/furzing/leakWhisperer/internal/store"
)

// writeTimeoutSlack is added to the transcription timeout so that a slow but
// successful upload still gets its response written.
const writeTimeoutSlack = 15 * time.Second

func main() {
	// A missing .env file is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to set up tracing", "error", err)
		os.Exit(1)
	}

	clock := clockwork.NewRealClock()

	locations, err := config.LoadLocations(cfg.LocationsFile)
	if err != nil {
		logger.Error("failed to load locations", "error", err)
		os.Exit(1)
	}
	seed := cfg.MeterSeed
	if seed == 0 {
		seed = uint64(clock.Now().UnixNano())
	}
	meters, err := domain.SeedMeters(cfg.MeterCount, locations, rand.New(rand.NewPCG(seed, seed>>1)), clock.Now())
	if err != nil {
		logger.Error("failed to seed meters", "error", err)
		os.Exit(1)
	}
	st, err := store.New(meters, clock)
	if err != nil {
		logger.Error("failed to create meter store", "error", err)
		os.Exit(1)
	}
	logger.Info("meters seeded", "count", st.Len(), "locations", len(locations), "seed", seed)

	hub := broadcast.NewHub(logger,
		broadcast.WithSendTimeout(cfg.BroadcastSendTimeout),
		broadcast.WithCountObserver(func(n int) { metrics.Subscribers.Set(float64(n)) }),
	)

	var transcriber domain.Transcriber = asr.NewClient(cfg.HFAPIURL, cfg.HFAPIToken, cfg.HFAPITimeout, metrics, logger)
	if cfg.ASRCacheSize > 0 {
		cached, err := asr.NewCachedTranscriber(transcriber, cfg.ASRCacheSize, metrics)
		if err != nil {
			logger.Error("failed to create transcript cache", "error", err)
			os.Exit(1)
		}
		transcriber = cached
		logger.Info("transcript cache enabled", "size", cfg.ASRCacheSize)
	}
	if cfg.HFAPIToken == "" {
		logger.Warn("HF_API_TOKEN is empty; the speech service may reject requests")
	}

	opts := []pipeline.ProcessorOption{pipeline.WithSpectralWorkers(cfg.SpectralWorkers)}

	var natsPub *natsadapter.Publisher
	if cfg.NATSURL != "" {
		natsPub, err = natsadapter.Connect(cfg.NATSURL, cfg.NATSSubject, logger)
		if err != nil {
			logger.Error("failed to connect to nats", "error", err)
			os.Exit(1)
		}
		opts = append(opts,
			pipeline.WithPublishers(natsPub),
			pipeline.WithReadinessCheck("nats", func(context.Context) error {
				if !natsPub.Healthy() {
					return errors.New("not connected")
				}
				return nil
			}),
		)
	} else {
		logger.Info("nats publishing disabled")
	}

	var (
		etl    *pipeline.Pipeline
		reader *kafkaadapter.Reader
		writer *kafkaadapter.Writer
	)
	if cfg.KafkaEnabled {
		opts = append(opts, pipeline.WithReadinessCheck("kafka", func(ctx context.Context) error {
			return etl.CheckReadiness(ctx)
		}))
	}

	proc := pipeline.NewProcessor(st, transcriber, hub, logger, metrics, opts...)

	if cfg.KafkaEnabled {
		reader = kafkaadapter.NewReader(cfg, logger)
		writer = kafkaadapter.NewWriter(cfg, logger)
		etl = pipeline.New(reader, pipeline.NewTransformer(proc), writer, logger, metrics, cfg.BatchSize,
			pipeline.WithConcurrency(cfg.SpectralWorkers))
	} else {
		logger.Info("kafka pipeline disabled")
	}

	reporter, err := report.New(cfg.StatsReportSchedule, st, metrics, logger, clock)
	if err != nil {
		logger.Error("failed to create stats reporter", "error", err)
		os.Exit(1)
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, httpadapter.Deps{
		Ingester: proc,
		Meters:   st,
		Hub:      hub,
		Ready:    proc,
	}, httpadapter.Options{
		MaxUploadBytes: cfg.MaxUploadBytes,
		WriteTimeout:   cfg.HFAPITimeout + writeTimeoutSlack,
		SendTimeout:    cfg.BroadcastSendTimeout,
	}, logger)

	var wg sync.WaitGroup

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	// Start stats reporter.
	wg.Add(1)
	go func() {
		defer wg.Done()
		reporter.Run(ctx)
	}()

	// Start Kafka pipeline.
	if etl != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := etl.Run(ctx); err != nil {
				logger.Error("pipeline error", "error", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	wg.Wait()

	if reader != nil {
		if err := reader.Close(); err != nil {
			logger.Error("kafka reader close error", "error", err)
		}
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}
	if natsPub != nil {
		if err := natsPub.Close(); err != nil {
			logger.Error("nats close error", "error", err)
		}
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}
