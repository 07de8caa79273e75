// Package tasks implements the reduction steps of the pipeline. Every task
// wraps an input stream and serves the transformed data as a stream itself,
// so steps chain freely: channelization, dedispersion, shifting, detection,
// integration and folding all build on the same framing machinery.
package tasks

import (
	"fmt"
	"math/cmplx"

	"github.com/Luke-Pratley/scintillometry/internal/fourier"
	"github.com/Luke-Pratley/scintillometry/internal/stream"
)

// Channelize splits a stream into n frequency channels with a block FFT over
// the time axis. Complex input yields n channels; real input yields n/2+1.
// The output sample rate drops by a factor n and the input sample shape is
// carried along as the polarization axis of the channelized stream.
//
// When the input carries a single uniform sky frequency, the output channels
// get per-channel frequencies offset by the FFT bin frequencies along the
// input sideband.
func Channelize(ih stream.Stream, n, samplesPerFrame int) (*stream.Task, error) {
	if samplesPerFrame <= 0 {
		samplesPerFrame = 1
	}
	width := ih.Shape().Width()
	tr, err := fourier.New(n, width)
	if err != nil {
		return nil, err
	}

	nframes := ih.Length() / int64(n*samplesPerFrame)
	if nframes == 0 {
		return nil, fmt.Errorf("input of %d samples is too short for one frame of %d", ih.Length(), n*samplesPerFrame)
	}

	nfreq := n
	if !ih.Complex() {
		nfreq = n/2 + 1
	}
	freq, sb := channelGrid(ih, n, nfreq)

	info, err := stream.NewInfo(
		ih.SampleRate()/float64(n),
		ih.StartTime(),
		nframes*int64(samplesPerFrame),
		stream.SampleShape{NChan: nfreq, NPol: width},
		true,
		freq, sb,
	)
	if err != nil {
		return nil, err
	}

	spec := make([]complex128, n*width)
	fn := func(in, out []complex128) error {
		for j := 0; j < samplesPerFrame; j++ {
			src := in[j*n*width : (j+1)*n*width]
			if nfreq == n {
				if err := tr.Forward(out[j*n*width:(j+1)*n*width], src); err != nil {
					return err
				}
				continue
			}
			// Real input: keep the non-negative half of the spectrum.
			if err := tr.Forward(spec, src); err != nil {
				return err
			}
			copy(out[j*nfreq*width:(j+1)*nfreq*width], spec[:nfreq*width])
		}
		return nil
	}

	return stream.NewTask(ih, fn, stream.TaskConfig{
		Info:        info,
		InPerFrame:  samplesPerFrame * n,
		OutPerFrame: samplesPerFrame,
	})
}

// channelGrid derives per-channel frequencies and sidebands for a
// channelized stream. The input must carry one uniform frequency; per-channel
// input frequencies cannot be spread over a second channel axis.
func channelGrid(ih stream.Stream, n, nfreq int) ([]float64, []int8) {
	inFreq, inSB := ih.Frequency(), ih.Sideband()
	if inFreq == nil || inSB == nil {
		return nil, nil
	}
	for i := 1; i < len(inFreq); i++ {
		if inFreq[i] != inFreq[0] || inSB[i] != inSB[0] {
			return nil, nil
		}
	}

	var bins []float64
	if nfreq == n {
		bins = fourier.Frequencies(n, ih.SampleRate())
	} else {
		bins = fourier.RealFrequencies(n, ih.SampleRate())
	}
	freq := make([]float64, nfreq)
	sb := make([]int8, nfreq)
	for k := range freq {
		freq[k] = inFreq[0] + float64(inSB[0])*bins[k]
		sb[k] = inSB[0]
	}
	return freq, sb
}

// Dechannelize undoes a channelization, turning spectra back into a time
// series with an inverse FFT per sample. n is the number of time samples to
// synthesize per spectrum; zero means the channel count of the input, which
// reproduces a complex timestream. Passing n equal to 2*(nchan-1) instead
// reconstructs a real timestream from half-spectra.
func Dechannelize(ih stream.Stream, n, samplesPerFrame int) (*stream.Task, error) {
	if !ih.Complex() {
		return nil, fmt.Errorf("dechannelization requires complex input")
	}
	if samplesPerFrame <= 0 {
		samplesPerFrame = 1
	}
	nfreq := ih.Shape().NChan
	if n == 0 {
		n = nfreq
	}
	realOut := n != nfreq
	if realOut && nfreq != n/2+1 {
		return nil, fmt.Errorf("cannot synthesize %d samples from %d channels", n, nfreq)
	}

	width := ih.Shape().NPol
	tr, err := fourier.New(n, width)
	if err != nil {
		return nil, err
	}

	nframes := ih.Length() / int64(samplesPerFrame)
	if nframes == 0 {
		return nil, fmt.Errorf("input of %d samples is too short for one frame of %d", ih.Length(), samplesPerFrame)
	}

	var freq []float64
	var sb []int8
	if f := ih.Frequency(); f != nil {
		freq = []float64{f[0]}
	}
	if s := ih.Sideband(); s != nil {
		sb = []int8{s[0]}
	}

	info, err := stream.NewInfo(
		ih.SampleRate()*float64(n),
		ih.StartTime(),
		nframes*int64(samplesPerFrame)*int64(n),
		stream.SampleShape{NChan: 1, NPol: width},
		!realOut,
		freq, sb,
	)
	if err != nil {
		return nil, err
	}

	spec := make([]complex128, n*width)
	fn := func(in, out []complex128) error {
		for j := 0; j < samplesPerFrame; j++ {
			src := in[j*nfreq*width : (j+1)*nfreq*width]
			dst := out[j*n*width : (j+1)*n*width]
			if !realOut {
				if err := tr.Inverse(dst, src); err != nil {
					return err
				}
				continue
			}
			// Rebuild the negative frequencies from Hermitian symmetry.
			copy(spec, src)
			for k := 1; k < n/2; k++ {
				for c := 0; c < width; c++ {
					spec[(n-k)*width+c] = cmplx.Conj(spec[k*width+c])
				}
			}
			if err := tr.Inverse(dst, spec); err != nil {
				return err
			}
			for i := range dst {
				dst[i] = complex(real(dst[i]), 0)
			}
		}
		return nil
	}

	return stream.NewTask(ih, fn, stream.TaskConfig{
		Info:        info,
		InPerFrame:  samplesPerFrame,
		OutPerFrame: samplesPerFrame * n,
	})
}
