package tasks

import (
	"fmt"
	"io"
	"math"
	"math/cmplx"
	"time"

	"github.com/Luke-Pratley/scintillometry/internal/fourier"
	"github.com/Luke-Pratley/scintillometry/internal/stream"
)

// TimeShift shifts the samples of ih by dt seconds, so that output sample k
// holds the input as it was dt later. The start time moves along with the
// data, leaving every sample stamped with its physical time. Whole samples
// are shifted by offsetting reads; the fractional remainder is applied as a
// phase gradient in the Fourier domain, frame by frame, which assumes the
// signal content is well contained within a frame.
//
// One sample is lost per frame of samplesPerFrame, which must be a power of
// two.
func TimeShift(ih stream.Stream, dt float64, samplesPerFrame int) (*stream.Task, error) {
	shift := dt * ih.SampleRate()
	start := ih.StartTime().Add(time.Duration(dt * float64(time.Second)))
	return fractionalShift(ih, shift, samplesPerFrame, start)
}

// Resample shifts the sample grid of ih so that a sample falls exactly at
// time t, interpolating between the original samples with a Fourier phase
// gradient. The returned stream is positioned at the sample landing on t.
// One sample is lost per frame of samplesPerFrame, which must be a power of
// two.
func Resample(ih stream.Stream, t time.Time, samplesPerFrame int) (*stream.Task, error) {
	offset := t.Sub(ih.StartTime()).Seconds() * ih.SampleRate()
	whole := math.Floor(offset)
	frac := offset - whole

	start := ih.StartTime().Add(time.Duration(frac / ih.SampleRate() * float64(time.Second)))
	task, err := fractionalShift(ih, frac, samplesPerFrame, start)
	if err != nil {
		return nil, err
	}
	if whole < 0 || int64(whole) >= task.Length() {
		_ = task.Close()
		return nil, fmt.Errorf("time %s lands at sample %d, outside the resampled stream", t, int64(whole))
	}
	if _, err = task.Seek(int64(whole), io.SeekStart); err != nil {
		_ = task.Close()
		return nil, err
	}
	return task, nil
}

// fractionalShift builds the task serving x[k + shift] at output sample k,
// with start the time of output sample zero before any leading trim.
func fractionalShift(ih stream.Stream, shift float64, spf int, start time.Time) (*stream.Task, error) {
	if spf < 2 {
		return nil, fmt.Errorf("shifting needs at least 2 samples per frame, got %d", spf)
	}
	whole := int64(math.Floor(shift))
	frac := shift - float64(whole)

	width := ih.Shape().Width()
	tr, err := fourier.New(spf, width)
	if err != nil {
		return nil, err
	}

	// A negative whole shift would read before the first sample; trim whole
	// output frames off the front instead.
	var lead int64
	if whole < 0 {
		frames := (-whole + int64(spf) - 2) / int64(spf-1)
		lead = frames * int64(spf-1)
	}

	avail := ih.Length() - whole - lead
	nframes := (avail - 1) / int64(spf-1)
	if nframes <= 0 {
		return nil, fmt.Errorf("input of %d samples is too short to shift by %f with %d-sample frames", ih.Length(), shift, spf)
	}

	info, err := stream.NewInfo(
		ih.SampleRate(),
		start.Add(time.Duration(float64(lead)/ih.SampleRate()*float64(time.Second))),
		nframes*int64(spf-1),
		ih.Shape(),
		ih.Complex(),
		ih.Frequency(), ih.Sideband(),
	)
	if err != nil {
		return nil, err
	}

	// Advancing by frac samples multiplies each spectral bin by a phase
	// proportional to its frequency.
	tau := frac / ih.SampleRate()
	ramp := make([]complex128, spf)
	for i, f := range fourier.Frequencies(spf, ih.SampleRate()) {
		ramp[i] = cmplx.Exp(complex(0, 2*math.Pi*f*tau))
	}

	isComplex := ih.Complex()
	spec := make([]complex128, spf*width)
	work := make([]complex128, spf*width)
	fn := func(in, out []complex128) error {
		if err := tr.Forward(spec, in); err != nil {
			return err
		}
		for i := 0; i < spf; i++ {
			for c := 0; c < width; c++ {
				spec[i*width+c] *= ramp[i]
			}
		}
		if err := tr.Inverse(work, spec); err != nil {
			return err
		}
		if !isComplex {
			for i := range work {
				work[i] = complex(real(work[i]), 0)
			}
		}
		copy(out, work[:(spf-1)*width])
		return nil
	}

	return stream.NewTask(ih, fn, stream.TaskConfig{
		Info:        info,
		InPerFrame:  spf,
		OutPerFrame: spf - 1,
		InStride:    spf - 1,
		InOffset:    whole + lead,
	})
}
