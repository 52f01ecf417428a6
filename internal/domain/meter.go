package domain

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// Status is the leak state of a meter.
type Status string

const (
	StatusNormal Status = "normal"
	StatusLeak   Status = "leak"
)

// Severity is the discretized bucket of an estimated flow rate.
type Severity string

const (
	SeverityNormal   Severity = "normal"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// DefaultMeterCount is the fleet size used when METER_COUNT is unset.
const DefaultMeterCount = 1000

// jitterDegrees bounds the random offset applied to a pool location when a
// meter is created.
const jitterDegrees = 0.003

// Location is a base position from the meter location pool.
type Location struct {
	Lat    float64 `json:"lat" yaml:"lat"`
	Lon    float64 `json:"lon" yaml:"lon"`
	Street string  `json:"street" yaml:"street"`
}

// Meter is the latest known state of one simulated water meter.
// Identity and position are fixed at creation; everything else is replaced as
// a unit by each processed sample.
type Meter struct {
	MeterID     string
	Lat         float64
	Lon         float64
	Street      string
	Status      Status
	LastUpdate  time.Time
	FlowRateLPH int
	Confidence  float64
	Severity    Severity
	Transcript  string
	AudioBase64 *string
}

// MeterUpdate carries the mutable fields written by one processed sample.
// LastUpdate is assigned by the store.
type MeterUpdate struct {
	Status      Status
	FlowRateLPH int
	Confidence  float64
	Severity    Severity
	Transcript  string
	AudioBase64 string
}

// Validate checks the state invariants: severity follows from flow rate, and a
// normal meter reports no flow.
func (u MeterUpdate) Validate() error {
	if u.FlowRateLPH < 0 {
		return fmt.Errorf("flow rate must be non-negative, got %d", u.FlowRateLPH)
	}
	if u.Status != StatusNormal && u.Status != StatusLeak {
		return fmt.Errorf("unknown status %q", u.Status)
	}
	if u.Status == StatusNormal && u.FlowRateLPH != 0 {
		return fmt.Errorf("normal meter must have zero flow, got %d", u.FlowRateLPH)
	}
	if want := ComputeSeverity(u.FlowRateLPH); u.Severity != want {
		return fmt.Errorf("severity %q does not match flow rate %d (want %q)", u.Severity, u.FlowRateLPH, want)
	}
	return nil
}

// LeakEvent is the compact message pushed to subscribers when a leak is detected.
type LeakEvent struct {
	MeterID     string   `json:"meter_id"`
	Lat         float64  `json:"lat"`
	Lon         float64  `json:"lon"`
	Status      Status   `json:"status"`
	Severity    Severity `json:"severity"`
	FlowRateLPH int      `json:"flow_rate_lph"`
}

// NewLeakEvent builds the event for a meter's post-update state.
func NewLeakEvent(m Meter) LeakEvent {
	return LeakEvent{
		MeterID:     m.MeterID,
		Lat:         m.Lat,
		Lon:         m.Lon,
		Status:      m.Status,
		Severity:    m.Severity,
		FlowRateLPH: m.FlowRateLPH,
	}
}

// MeterID formats the stable identifier of the i-th meter.
func MeterID(i int) string {
	return fmt.Sprintf("meter_%04d", i)
}

// SeedMeters creates count meters in normal state. Meter i takes pool location
// i mod len(pool), offset by a uniform jitter of up to ±0.003 degrees.
func SeedMeters(count int, pool []Location, rng *rand.Rand, now time.Time) ([]Meter, error) {
	if count <= 0 {
		return nil, fmt.Errorf("meter count must be positive, got %d", count)
	}
	if len(pool) == 0 {
		return nil, fmt.Errorf("location pool is empty")
	}

	meters := make([]Meter, count)
	for i := range meters {
		loc := pool[i%len(pool)]
		meters[i] = Meter{
			MeterID:    MeterID(i),
			Lat:        loc.Lat + jitter(rng),
			Lon:        loc.Lon + jitter(rng),
			Street:     loc.Street,
			Status:     StatusNormal,
			LastUpdate: now,
			Severity:   SeverityNormal,
		}
	}
	return meters, nil
}

func jitter(rng *rand.Rand) float64 {
	return (rng.Float64()*2 - 1) * jitterDegrees
}

// DefaultLocations is the built-in pool of Amman / Zarqa base positions.
var DefaultLocations = []Location{
	{Lat: 31.9539, Lon: 35.9106, Street: "شارع الملكة رانيا - مقابل الجامعة الأردنية"},
	{Lat: 31.9632, Lon: 35.9190, Street: "دوار المدينة الرياضية"},
	{Lat: 31.9456, Lon: 35.8845, Street: "شارع الرشيد - الزرقاء"},
	{Lat: 31.9719, Lon: 35.8355, Street: "ماركا الشمالية - قرب المطار"},
	{Lat: 31.9491, Lon: 35.9289, Street: "جاردنز - شارع وصفي التل"},
}
