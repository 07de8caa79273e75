package fourier

import (
	"math"
	"math/cmplx"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	const n, width = 64, 2

	tr, err := New(n, width)
	require.NoError(t, err)

	src := make([]complex128, n*width)
	for i := range src {
		phi := 2 * math.Pi * float64(i) / 17
		src[i] = cmplx.Exp(complex(0, phi)) * complex(1+float64(i%width), 0)
	}

	freq := make([]complex128, n*width)
	require.NoError(t, tr.Forward(freq, src))

	back := make([]complex128, n*width)
	require.NoError(t, tr.Inverse(back, freq))

	for i := range src {
		require.InDelta(t, real(src[i]), real(back[i]), 1e-10)
		require.InDelta(t, imag(src[i]), imag(back[i]), 1e-10)
	}
}

func TestToneLandsInExpectedBin(t *testing.T) {
	const n = 128
	const bin = 5

	tr, err := New(n, 1)
	require.NoError(t, err)

	src := make([]complex128, n)
	for i := range src {
		phi := 2 * math.Pi * float64(bin) * float64(i) / n
		src[i] = cmplx.Exp(complex(0, phi))
	}

	freq := make([]complex128, n)
	require.NoError(t, tr.Forward(freq, src))

	peak, peakVal := 0, 0.0
	for i, v := range freq {
		if a := cmplx.Abs(v); a > peakVal {
			peak, peakVal = i, a
		}
	}
	require.Equal(t, bin, peak)

	// All power in the peak bin.
	for i, v := range freq {
		if i == bin {
			continue
		}
		require.InDelta(t, 0, cmplx.Abs(v), 1e-9)
	}
}

func TestColumnsIndependent(t *testing.T) {
	const n = 16

	tr, err := New(n, 2)
	require.NoError(t, err)

	// Tone in column 0 only; column 1 is DC.
	src := make([]complex128, n*2)
	for i := 0; i < n; i++ {
		phi := 2 * math.Pi * 3 * float64(i) / n
		src[i*2] = cmplx.Exp(complex(0, phi))
		src[i*2+1] = 1
	}

	freq := make([]complex128, n*2)
	require.NoError(t, tr.Forward(freq, src))

	require.InDelta(t, n, cmplx.Abs(freq[3*2]), 1e-9)   // column 0, bin 3
	require.InDelta(t, n, cmplx.Abs(freq[0*2+1]), 1e-9) // column 1, bin 0
	require.InDelta(t, 0, cmplx.Abs(freq[3*2+1]), 1e-9)
}

func TestRejectsNonPowerOfTwo(t *testing.T) {
	_, err := New(12, 1)
	require.Error(t, err)
}

func TestFrequencies(t *testing.T) {
	f := Frequencies(8, 800)
	expected := []float64{0, 100, 200, 300, -400, -300, -200, -100}
	require.Equal(t, expected, f)

	rf := RealFrequencies(8, 800)
	require.Equal(t, []float64{0, 100, 200, 300, 400}, rf)
}
