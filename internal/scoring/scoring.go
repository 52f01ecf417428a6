// Package scoring fuses a transcript keyword score with a spectral
// high-frequency energy ratio into a leak decision.
package scoring

import (
	"math"
	"strings"
	"unicode/utf8"
)

const (
	// LeakThreshold is the fused score at or above which a sample is a leak.
	LeakThreshold = 0.55

	keywordHitScore   = 0.8
	keywordLengthCap  = 0.4
	keywordLengthNorm = 80.0

	spectralWeight = 0.6
	keywordWeight  = 0.4
	spectralGain   = 2.0

	// BandLowHz and BandHighHz bound the hiss band, both inclusive.
	BandLowHz  = 800.0
	BandHighHz = 4000.0
)

// Keywords are matched as lower-case substrings of the transcript.
var Keywords = []string{"hiss", "leak", "water", "flow", "pipe", "pressure"}

// Result is the scored outcome of one sample.
type Result struct {
	IsLeak     bool
	Confidence float64
	Transcript string

	KeywordScore  float64
	HighFreqRatio float64
	SpectralScore float64
}

// KeywordScore returns 0.8 when the transcript mentions any keyword, and
// otherwise a length-based score capped at 0.4.
func KeywordScore(transcript string) float64 {
	lower := strings.ToLower(transcript)
	for _, kw := range Keywords {
		if strings.Contains(lower, kw) {
			return keywordHitScore
		}
	}
	return math.Min(keywordLengthCap, float64(utf8.RuneCountInString(lower))/keywordLengthNorm)
}

// HighFrequencyRatio returns the share of spectral power that falls in the
// hiss band. Empty or silent input yields 0.
func HighFrequencyRatio(samples []float64, sampleRate int) float64 {
	n := len(samples)
	if n == 0 || sampleRate <= 0 {
		return 0
	}

	var band, total float64
	for k, power := range powerSpectrum(samples) {
		total += power
		freq := float64(k) * float64(sampleRate) / float64(n)
		if freq >= BandLowHz && freq <= BandHighHz {
			band += power
		}
	}
	if total <= 0 {
		return 0
	}
	return band / total
}

// SpectralScore scales a band ratio into [0, 1].
func SpectralScore(ratio float64) float64 {
	return clamp01(ratio * spectralGain)
}

// Fuse combines the spectral and keyword scores into a leak score in [0, 1].
func Fuse(spectral, keyword float64) float64 {
	return clamp01(spectralWeight*spectral + keywordWeight*keyword)
}

// Decide turns a transcript and a precomputed band ratio into a Result.
func Decide(transcript string, highFreqRatio float64) Result {
	kw := KeywordScore(transcript)
	spectral := SpectralScore(highFreqRatio)
	score := Fuse(spectral, kw)
	return Result{
		IsLeak:        score >= LeakThreshold,
		Confidence:    math.Round(score*1000) / 1000,
		Transcript:    transcript,
		KeywordScore:  kw,
		HighFreqRatio: highFreqRatio,
		SpectralScore: spectral,
	}
}

// Score runs the full scoring on a transcript and mono samples.
func Score(transcript string, samples []float64, sampleRate int) Result {
	return Decide(transcript, HighFrequencyRatio(samples, sampleRate))
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
