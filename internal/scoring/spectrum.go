package scoring

import (
	"math"
	"math/bits"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// powerSpectrum returns |X_k|² for k = 0..n/2 of the real DFT of x. Bin k
// sits at k·rate/n. Lengths built only from the factors 2, 3 and 5 go
// straight to gonum's real FFT. Any other length, a prime one included, goes
// through Bluestein's chirp-z transform over a power-of-two complex FFT, so
// the cost stays O(n log n) for every clip length.
func powerSpectrum(x []float64) []float64 {
	if len(x) == 0 {
		return nil
	}
	if smooth(len(x)) {
		return directPower(x)
	}
	return bluesteinPower(x)
}

func directPower(x []float64) []float64 {
	coeffs := fourier.NewFFT(len(x)).Coefficients(nil, x)
	power := make([]float64, len(coeffs))
	for k, c := range coeffs {
		power[k] = real(c)*real(c) + imag(c)*imag(c)
	}
	return power
}

// bluesteinPower rewrites the length-n DFT as a circular convolution of
// length m >= 2n-1, m a power of two:
//
//	X_k = w_k · Σ_j (x_j·w_j) · conj(w_{k-j}),   w_k = exp(-iπk²/n)
func bluesteinPower(x []float64) []float64 {
	n := len(x)
	m := 1 << bits.Len(uint(2*n-2))

	chirp := make([]complex128, n)
	twoN := int64(2 * n)
	for k := range chirp {
		// k² mod 2n keeps the angle exact for long clips.
		kk := int64(k) * int64(k) % twoN
		chirp[k] = cmplx.Exp(complex(0, -math.Pi*float64(kk)/float64(n)))
	}

	a := make([]complex128, m)
	b := make([]complex128, m)
	for k, w := range chirp {
		a[k] = complex(x[k], 0) * w
		b[k] = cmplx.Conj(w)
		if k > 0 {
			b[m-k] = b[k]
		}
	}

	fft := fourier.NewCmplxFFT(m)
	fa := fft.Coefficients(nil, a)
	fb := fft.Coefficients(nil, b)
	for i := range fa {
		fa[i] *= fb[i]
	}
	// Sequence is unnormalized; a round trip scales by m.
	conv := fft.Sequence(nil, fa)

	power := make([]float64, n/2+1)
	scale := 1 / (float64(m) * float64(m))
	for k := range power {
		c := conv[k]
		// |w_k| = 1, so the outer chirp does not change the power.
		power[k] = (real(c)*real(c) + imag(c)*imag(c)) * scale
	}
	return power
}

// smooth reports whether n has no prime factor above 5.
func smooth(n int) bool {
	for _, p := range []int{2, 3, 5} {
		for n%p == 0 {
			n /= p
		}
	}
	return n == 1
}
