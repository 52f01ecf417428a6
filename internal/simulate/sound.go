// Package simulate synthesizes meter audio and drives the ingest endpoint
// with it, standing in for a field of acoustic sensors.
package simulate

import (
	"encoding/base64"
	"math"
	"math/rand/v2"

	"github.com/furzing/leakWhisperer/internal/audio"
)

// Clip shape shared by both sound kinds.
const (
	ClipSeconds = 10
	SampleRate  = audio.TargetSampleRate
)

const (
	dripHz      = 800
	dripSamples = 2000
	dripDecay   = 5
	dripGain    = 0.4
	minDrips    = 3
	maxDrips    = 12
	humStdDev   = 0.05

	hissHz       = 1000
	hissGain     = 0.6
	hissModMean  = 0.9
	hissModSD    = 0.1
	rumbleHz     = 50
	rumbleGain   = 0.3
	rumbleDecayS = 3
	leakNoiseSD  = 0.1
)

// Synth generates sensor clips from a seeded source.
type Synth struct {
	rng *rand.Rand
}

// NewSynth returns a Synth drawing from rng. It is not safe for concurrent use.
func NewSynth(rng *rand.Rand) *Synth {
	return &Synth{rng: rng}
}

// Normal returns household background: a few decaying 800 Hz tap drips over
// low gaussian noise.
func (s *Synth) Normal() []float64 {
	n := ClipSeconds * SampleRate
	out := make([]float64, n)

	drips := minDrips + s.rng.IntN(maxDrips-minDrips+1)
	for range drips {
		start := s.rng.IntN(n - dripSamples + 1)
		for i := range dripSamples {
			t := float64(i) / SampleRate
			out[start+i] += dripGain * math.Sin(2*math.Pi*dripHz*t) * math.Exp(-t*dripDecay)
		}
	}
	for i := range out {
		out[i] += s.rng.NormFloat64() * humStdDev
	}
	return clip(out)
}

// Leak returns a pressurized leak: an amplitude-modulated 1 kHz hiss, a
// decaying 50 Hz flow rumble and broadband noise.
func (s *Synth) Leak() []float64 {
	n := ClipSeconds * SampleRate
	out := make([]float64, n)
	for i := range out {
		t := float64(i) / SampleRate
		mod := hissModMean + s.rng.NormFloat64()*hissModSD
		hiss := hissGain * math.Sin(2*math.Pi*hissHz*t) * mod
		rumble := rumbleGain * math.Sin(2*math.Pi*rumbleHz*t) * math.Exp(-t/rumbleDecayS)
		out[i] = hiss + rumble + s.rng.NormFloat64()*leakNoiseSD
	}
	return clip(out)
}

// EncodeBase64 renders samples as a base64 16-bit mono WAV.
func EncodeBase64(samples []float64) (string, error) {
	raw, err := audio.EncodeWAV(audio.FloatToPCM16(samples), SampleRate, 1)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func clip(samples []float64) []float64 {
	for i, v := range samples {
		samples[i] = math.Max(-1, math.Min(1, v))
	}
	return samples
}
