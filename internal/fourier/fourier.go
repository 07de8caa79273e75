// Package fourier wraps FFT plans for use on sample frames, where data is
// laid out time-major with several interleaved channels, and provides the
// frequency-grid helpers the reduction tasks need.
package fourier

import (
	"fmt"

	algofft "github.com/MeKo-Christian/algo-fft"
)

// Transform applies forward and inverse FFTs along the time axis of a frame
// of n samples with width interleaved values per sample. Each of the width
// columns is transformed independently with a shared plan.
type Transform struct {
	n     int
	width int

	plan *algofft.Plan[complex128]
	col  []complex128
	out  []complex128
}

// New creates a transform for frames of n samples and width values per
// sample. n must be a power of two.
func New(n, width int) (*Transform, error) {
	if n <= 0 || n&(n-1) != 0 {
		return nil, fmt.Errorf("transform size must be a power of two, got %d", n)
	}
	if width <= 0 {
		return nil, fmt.Errorf("invalid frame width: %d", width)
	}
	plan, err := algofft.NewPlan64(n)
	if err != nil {
		return nil, fmt.Errorf("creating FFT plan: %w", err)
	}
	return &Transform{
		n:     n,
		width: width,
		plan:  plan,
		col:   make([]complex128, n),
		out:   make([]complex128, n),
	}, nil
}

// N returns the transform length.
func (t *Transform) N() int { return t.n }

// Forward transforms src into dst column by column. dst and src must both
// hold n*width values; they may alias.
func (t *Transform) Forward(dst, src []complex128) error {
	return t.apply(dst, src, t.plan.Forward)
}

// Inverse applies the normalized inverse transform; a Forward followed by an
// Inverse reproduces the input.
func (t *Transform) Inverse(dst, src []complex128) error {
	return t.apply(dst, src, t.plan.Inverse)
}

func (t *Transform) apply(dst, src []complex128, fn func(dst, src []complex128) error) error {
	if len(src) != t.n*t.width || len(dst) != t.n*t.width {
		return fmt.Errorf("frame size mismatch: expected %d values, got src=%d dst=%d", t.n*t.width, len(src), len(dst))
	}
	if t.width == 1 {
		return fn(dst, src)
	}
	for c := 0; c < t.width; c++ {
		for i := 0; i < t.n; i++ {
			t.col[i] = src[i*t.width+c]
		}
		if err := fn(t.out, t.col); err != nil {
			return err
		}
		for i := 0; i < t.n; i++ {
			dst[i*t.width+c] = t.out[i]
		}
	}
	return nil
}

// Frequencies returns the FFT sample frequencies for an n-point transform of
// data sampled at rate, in standard FFT order: 0, 1, ... n/2-1, -n/2, ... -1
// times rate/n.
func Frequencies(n int, rate float64) []float64 {
	f := make([]float64, n)
	step := rate / float64(n)
	for i := 0; i < (n+1)/2; i++ {
		f[i] = float64(i) * step
	}
	for i := (n + 1) / 2; i < n; i++ {
		f[i] = float64(i-n) * step
	}
	return f
}

// RealFrequencies returns the n/2+1 non-negative frequencies of a real-input
// transform.
func RealFrequencies(n int, rate float64) []float64 {
	f := make([]float64, n/2+1)
	step := rate / float64(n)
	for i := range f {
		f[i] = float64(i) * step
	}
	return f
}
