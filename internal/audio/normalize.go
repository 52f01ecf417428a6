package audio

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/go-audio/wav"

	"github.com/furzing/leakWhisperer/internal/domain"
)

// TargetSampleRate is the rate every clip is resampled to before scoring.
const TargetSampleRate = 16000

// Accepted native sample rates. Resampling expands a clip by
// TargetSampleRate/rate, so the floor bounds memory per upload.
const (
	MinSourceRate = 4000
	MaxSourceRate = 384000
)

// wavFormatPCM is the WAVE_FORMAT_PCM tag. Float and compressed encodings are
// rejected.
const wavFormatPCM = 1

// Clip is a normalized audio sample.
type Clip struct {
	// Samples are mono, in [-1, 1], at SampleRate.
	Samples    []float64
	SampleRate int

	SourceRate int
	Channels   int
	BitDepth   int

	// Raw holds the decoded WAV bytes as uploaded, for the transcriber.
	Raw []byte
}

// Duration returns the clip length in seconds.
func (c Clip) Duration() float64 {
	if c.SampleRate == 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate)
}

// Normalize decodes a base64 WAV payload, downmixes it to mono and resamples
// it to TargetSampleRate. A bad base64 string yields a decode error; bytes
// that are not a readable PCM WAV yield an audio format error.
func Normalize(payload string) (Clip, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Clip{}, domain.NewError(domain.KindDecode, "decode audio payload", err)
	}

	samples, rate, channels, bitDepth, err := decodeWAV(raw)
	if err != nil {
		return Clip{}, domain.NewError(domain.KindAudioFormat, "read wav", err)
	}

	mono := Downmix(samples, channels)
	return Clip{
		Samples:    Resample(mono, rate, TargetSampleRate),
		SampleRate: TargetSampleRate,
		SourceRate: rate,
		Channels:   channels,
		BitDepth:   bitDepth,
		Raw:        raw,
	}, nil
}

// decodeWAV returns interleaved samples scaled to [-1, 1].
func decodeWAV(raw []byte) (samples []float64, rate, channels, bitDepth int, err error) {
	dec := wav.NewDecoder(bytes.NewReader(raw))
	if !dec.IsValidFile() {
		return nil, 0, 0, 0, fmt.Errorf("not a valid wav file")
	}
	if dec.WavAudioFormat != wavFormatPCM {
		return nil, 0, 0, 0, fmt.Errorf("unsupported wav encoding %d", dec.WavAudioFormat)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil && err != io.EOF {
		return nil, 0, 0, 0, fmt.Errorf("read pcm: %w", err)
	}
	if buf == nil || buf.Format == nil {
		return nil, 0, 0, 0, fmt.Errorf("missing pcm format")
	}

	rate = buf.Format.SampleRate
	channels = buf.Format.NumChannels
	bitDepth = buf.SourceBitDepth
	if rate <= 0 || channels <= 0 {
		return nil, 0, 0, 0, fmt.Errorf("invalid format: rate=%d channels=%d", rate, channels)
	}
	if rate < MinSourceRate || rate > MaxSourceRate {
		return nil, 0, 0, 0, fmt.Errorf("sample rate %d Hz outside [%d, %d]", rate, MinSourceRate, MaxSourceRate)
	}
	if bitDepth < 8 || bitDepth > 32 {
		return nil, 0, 0, 0, fmt.Errorf("unsupported bit depth %d", bitDepth)
	}

	scale := float64(int64(1) << (bitDepth - 1))
	samples = make([]float64, len(buf.Data))
	for i, v := range buf.Data {
		// 8-bit PCM is unsigned.
		if bitDepth == 8 {
			v -= 128
		}
		samples[i] = float64(v) / scale
	}
	return samples, rate, channels, bitDepth, nil
}

// Downmix averages interleaved channels into a mono signal. A trailing
// partial frame is dropped.
func Downmix(interleaved []float64, channels int) []float64 {
	if channels <= 1 {
		return interleaved
	}
	frames := len(interleaved) / channels
	mono := make([]float64, frames)
	for f := range frames {
		var sum float64
		for c := range channels {
			sum += interleaved[f*channels+c]
		}
		mono[f] = sum / float64(channels)
	}
	return mono
}
