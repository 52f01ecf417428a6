package scoring

import (
	"math"
	"math/cmplx"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// naivePower is the O(n²) DFT power spectrum for bins 0..n/2.
func naivePower(x []float64) []float64 {
	n := len(x)
	out := make([]float64, n/2+1)
	for k := range out {
		var sum complex128
		for j, v := range x {
			sum += complex(v, 0) * cmplx.Exp(complex(0, -2*math.Pi*float64(j*k%n)/float64(n)))
		}
		out[k] = real(sum)*real(sum) + imag(sum)*imag(sum)
	}
	return out
}

func shares(power []float64) []float64 {
	var total float64
	for _, p := range power {
		total += p
	}
	out := make([]float64, len(power))
	for i, p := range power {
		out[i] = p / total
	}
	return out
}

func noise(n int, seed uint64) []float64 {
	rng := rand.New(rand.NewPCG(seed, seed))
	out := make([]float64, n)
	for i := range out {
		out[i] = rng.NormFloat64()
	}
	return out
}

func TestSmooth(t *testing.T) {
	for _, n := range []int{1, 2, 3, 5, 16000, 160000, 44100} {
		assert.True(t, smooth(n), n)
	}
	for _, n := range []int{7, 257, 2310, 160001, 160019} {
		assert.False(t, smooth(n), n)
	}
}

func TestPowerSpectrum_MatchesDFT(t *testing.T) {
	for _, n := range []int{7, 257, 1001} {
		x := noise(n, uint64(n))
		got := shares(powerSpectrum(x))
		want := shares(naivePower(x))
		require.Len(t, got, len(want))
		for k := range want {
			assert.InDelta(t, want[k], got[k], 1e-9, "n=%d bin %d", n, k)
		}
	}
}

func TestPowerSpectrum_BluesteinAgreesWithDirect(t *testing.T) {
	x := noise(4000, 11)
	direct := shares(directPower(x))
	chirp := shares(bluesteinPower(x))
	require.Len(t, chirp, len(direct))
	for k := range direct {
		assert.InDelta(t, direct[k], chirp[k], 1e-9, "bin %d", k)
	}
}

func TestHighFrequencyRatio_PrimeLengthClip(t *testing.T) {
	// 160001 samples is a prime length just past 10 s at 16 kHz.
	const n = 160001
	start := time.Now()
	ratio := HighFrequencyRatio(sine(1000, n), rate)
	elapsed := time.Since(start)

	assert.InDelta(t, 1.0, ratio, 1e-3)
	assert.Less(t, elapsed, 3*time.Second)

	assert.InDelta(t, 0.0, HighFrequencyRatio(sine(50, n), rate), 1e-3)
}
