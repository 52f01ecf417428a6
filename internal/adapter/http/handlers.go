package http

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/furzing/leakWhisperer/internal/domain"
	"github.com/furzing/leakWhisperer/internal/pipeline"
)

// defaultRetryAfter is advertised when the upstream gave no estimate.
const defaultRetryAfter = 5 * time.Second

var apiInfo = map[string]any{
	"message": "LeakWhisperer Backend API",
	"version": "1.0.0",
	"endpoints": map[string]string{
		"GET /":                  "API information (this endpoint)",
		"POST /upload-audio":     "Upload audio for leak detection",
		"GET /meters":            "Get all meters",
		"GET /meter/{meter_id}":  "Get specific meter",
		"GET /stats":             "Get statistics",
		"WebSocket /ws/leaks":    "Real-time leak updates",
		"GET /healthz, /readyz":  "Liveness and readiness probes",
		"GET /metrics":           "Prometheus metrics",
	},
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, apiInfo)
}

type uploadRequest struct {
	MeterID     *string  `json:"meter_id"`
	AudioBase64 *string  `json:"audio_base64"`
	Lat         *float64 `json:"lat"`
	Lon         *float64 `json:"lon"`
	Timestamp   *float64 `json:"timestamp"`
}

type uploadResponse struct {
	meterResponse
	IsLeak bool `json:"is_leak"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)

	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeDetail(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeDetail(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if req.MeterID == nil || *req.MeterID == "" {
		writeDetail(w, http.StatusBadRequest, "meter_id is required")
		return
	}
	if req.AudioBase64 == nil {
		writeDetail(w, http.StatusBadRequest, "audio_base64 is required")
		return
	}

	res, err := s.deps.Ingester.Ingest(r.Context(), domain.Sample{
		MeterID:     *req.MeterID,
		AudioBase64: *req.AudioBase64,
		Lat:         req.Lat,
		Lon:         req.Lon,
		Timestamp:   req.Timestamp,
	}, pipeline.SourceHTTP)
	if err != nil {
		s.writeError(w, *req.MeterID, err)
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		meterResponse: newMeterResponse(res.Meter),
		IsLeak:        res.IsLeak,
	})
}

func (s *Server) handleMeters(w http.ResponseWriter, _ *http.Request) {
	meters := s.deps.Meters.All()
	out := make([]meterResponse, len(meters))
	for i, m := range meters {
		out[i] = newMeterResponse(m)
	}
	writeJSON(w, http.StatusOK, out)
}

// handleMeter answers unknown ids with 200 and an empty object, which
// existing dashboards rely on.
func (s *Server) handleMeter(w http.ResponseWriter, r *http.Request) {
	m, ok := s.deps.Meters.Get(r.PathValue("meter_id"))
	if !ok {
		writeJSON(w, http.StatusOK, struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, newMeterResponse(m))
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, domain.ComputeStats(s.deps.Meters.Len(), s.deps.Meters.ActiveLeaks()))
}

// writeError maps a classified ingest failure to a status code.
func (s *Server) writeError(w http.ResponseWriter, meterID string, err error) {
	status := http.StatusInternalServerError
	switch domain.KindOf(err) {
	case domain.KindDecode, domain.KindAudioFormat:
		status = http.StatusBadRequest
	case domain.KindNotFound:
		status = http.StatusNotFound
	case domain.KindServiceWarmingUp:
		status = http.StatusServiceUnavailable
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(err)))
	case domain.KindUnauthorized, domain.KindService:
		status = http.StatusBadGateway
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("upload failed", "meter_id", meterID, "status", status, "error", err)
	} else {
		s.logger.Info("upload rejected", "meter_id", meterID, "status", status, "error", err)
	}
	writeDetail(w, status, err.Error())
}

func retryAfterSeconds(err error) int {
	d := defaultRetryAfter
	var de *domain.Error
	if errors.As(err, &de) && de.RetryAfter > 0 {
		d = de.RetryAfter
	}
	return int(math.Ceil(d.Seconds()))
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
