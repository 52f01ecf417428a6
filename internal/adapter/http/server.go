// Package http serves the meter API, the leak subscription socket, and the
// health, readiness and metrics endpoints.
package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/furzing/leakWhisperer/internal/broadcast"
	"github.com/furzing/leakWhisperer/internal/domain"
)

// Ingester scores one uploaded sample.
type Ingester interface {
	Ingest(ctx context.Context, sample domain.Sample, source string) (domain.IngestResult, error)
}

// MeterReader is the read side of the meter store.
type MeterReader interface {
	Get(id string) (domain.Meter, bool)
	All() []domain.Meter
	Len() int
	ActiveLeaks() int
}

// Deps are the collaborators the routes are served from.
type Deps struct {
	Ingester Ingester
	Meters   MeterReader
	Hub      *broadcast.Hub
	Ready    sharedobs.ReadinessChecker
}

// Options tune transport limits.
type Options struct {
	// MaxUploadBytes caps the /upload-audio request body.
	MaxUploadBytes int64
	// WriteTimeout must cover a full transcription round trip.
	WriteTimeout time.Duration
	// SendTimeout bounds each websocket write.
	SendTimeout time.Duration
}

// Server exposes the meter API plus health, readiness, and metrics endpoints.
type Server struct {
	httpServer *http.Server
	deps       Deps
	opts       Options
	upgrader   websocket.Upgrader
	logger     *slog.Logger
}

// NewServer creates an HTTP server with all routes registered.
func NewServer(addr string, deps Deps, opts Options, logger *slog.Logger) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 16 << 20
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 60 * time.Second
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 5 * time.Second
	}

	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: opts.WriteTimeout,
			IdleTimeout:  60 * time.Second,
		},
		deps: deps,
		opts: opts,
		upgrader: websocket.Upgrader{
			// Dashboards are served from other origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
	}

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /upload-audio", s.handleUpload)
	mux.HandleFunc("GET /meters", s.handleMeters)
	mux.HandleFunc("GET /meter/{meter_id}", s.handleMeter)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /ws/leaks", s.handleLeakSocket)

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(deps.Ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline,
// then closes the hub. Hijacked websocket connections are invisible to the
// http.Server, so the hub closes them.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.deps.Hub != nil {
		s.deps.Hub.Close()
	}
	return err
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // client may have gone away
}
