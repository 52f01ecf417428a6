package domain

import (
	"context"
	"time"
)

// Sample is one audio upload from a meter. Position and timestamp are
// informational and not used for scoring.
type Sample struct {
	MeterID     string   `json:"meter_id"`
	AudioBase64 string   `json:"audio_base64"`
	Lat         *float64 `json:"lat,omitempty"`
	Lon         *float64 `json:"lon,omitempty"`
	Timestamp   *float64 `json:"timestamp,omitempty"`
}

// IngestResult is the outcome of processing one sample.
type IngestResult struct {
	Meter    Meter
	IsLeak   bool
	Severity Severity
}

// RawEvent is an unprocessed message from the sample source topic.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// Reading is the scored outcome of a sample, written to the readings topic.
type Reading struct {
	MeterID     string    `json:"meter_id"`
	Status      Status    `json:"status"`
	IsLeak      bool      `json:"is_leak"`
	Confidence  float64   `json:"confidence"`
	FlowRateLPH int       `json:"flow_rate_lph"`
	Severity    Severity  `json:"severity"`
	Transcript  string    `json:"transcript"`
	ProcessedAt time.Time `json:"processed_at"`
}

// NewReading summarizes an ingest result for downstream consumers.
func NewReading(r IngestResult) Reading {
	return Reading{
		MeterID:     r.Meter.MeterID,
		Status:      r.Meter.Status,
		IsLeak:      r.IsLeak,
		Confidence:  r.Meter.Confidence,
		FlowRateLPH: r.Meter.FlowRateLPH,
		Severity:    r.Severity,
		Transcript:  r.Meter.Transcript,
		ProcessedAt: r.Meter.LastUpdate,
	}
}
