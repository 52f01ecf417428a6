package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/furzing/leakWhisperer/internal/domain"
)

// Ingester scores one sample and applies it to its meter.
type Ingester interface {
	Ingest(ctx context.Context, sample domain.Sample, source string) (domain.IngestResult, error)
}

// SampleTransformer implements Transformer by decoding a sample message and
// running it through an Ingester.
type SampleTransformer struct {
	ingester Ingester
}

// NewTransformer creates a SampleTransformer.
func NewTransformer(ingester Ingester) *SampleTransformer {
	return &SampleTransformer{ingester: ingester}
}

func (t *SampleTransformer) Transform(ctx context.Context, raw domain.RawEvent) (domain.Reading, error) {
	sample, err := ParseSample(raw)
	if err != nil {
		return domain.Reading{}, err
	}
	res, err := t.ingester.Ingest(ctx, sample, SourceKafka)
	if err != nil {
		return domain.Reading{}, fmt.Errorf("ingest %s: %w", sample.MeterID, err)
	}
	return domain.NewReading(res), nil
}

// ParseSample decodes a sample message. The message key, when present,
// supplies the meter id for payloads that omit it.
func ParseSample(raw domain.RawEvent) (domain.Sample, error) {
	var s domain.Sample
	if err := json.Unmarshal(raw.Value, &s); err != nil {
		return domain.Sample{}, domain.NewError(domain.KindDecode, "decode sample message", err)
	}
	if s.MeterID == "" {
		s.MeterID = string(raw.Key)
	}
	if s.MeterID == "" {
		return domain.Sample{}, domain.NewError(domain.KindDecode, "sample message has no meter_id", nil)
	}
	return s, nil
}
