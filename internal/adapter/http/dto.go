package http

import (
	"github.com/furzing/leakWhisperer/internal/domain"
)

// meterResponse is the wire form of a meter. last_update is Unix seconds.
type meterResponse struct {
	MeterID     string          `json:"meter_id"`
	Lat         float64         `json:"lat"`
	Lon         float64         `json:"lon"`
	Street      string          `json:"street"`
	Status      domain.Status   `json:"status"`
	LastUpdate  float64         `json:"last_update"`
	FlowRateLPH int             `json:"flow_rate_lph"`
	Confidence  float64         `json:"confidence"`
	AudioBase64 *string         `json:"audio_base64"`
	Severity    domain.Severity `json:"severity"`
	Transcript  string          `json:"transcript"`
}

func newMeterResponse(m domain.Meter) meterResponse {
	return meterResponse{
		MeterID:     m.MeterID,
		Lat:         m.Lat,
		Lon:         m.Lon,
		Street:      m.Street,
		Status:      m.Status,
		LastUpdate:  float64(m.LastUpdate.UnixNano()) / 1e9,
		FlowRateLPH: m.FlowRateLPH,
		Confidence:  m.Confidence,
		AudioBase64: m.AudioBase64,
		Severity:    m.Severity,
		Transcript:  m.Transcript,
	}
}
