package tasks

import (
	"fmt"

	"github.com/Luke-Pratley/scintillometry/internal/stream"
)

// Detect converts voltages to powers, replacing every component with its
// squared magnitude. The output is a real stream with the shape and rate of
// the input; any trailing samples that do not fill a frame are dropped.
func Detect(ih stream.Stream, samplesPerFrame int) (*stream.Task, error) {
	if samplesPerFrame <= 0 {
		samplesPerFrame = 1
	}
	nframes := ih.Length() / int64(samplesPerFrame)
	if nframes == 0 {
		return nil, fmt.Errorf("input of %d samples is too short for one frame of %d", ih.Length(), samplesPerFrame)
	}

	info, err := stream.NewInfo(
		ih.SampleRate(),
		ih.StartTime(),
		nframes*int64(samplesPerFrame),
		ih.Shape(),
		false,
		ih.Frequency(), ih.Sideband(),
	)
	if err != nil {
		return nil, err
	}

	fn := func(in, out []complex128) error {
		for i, v := range in {
			out[i] = complex(real(v)*real(v)+imag(v)*imag(v), 0)
		}
		return nil
	}

	return stream.NewTask(ih, fn, stream.TaskConfig{
		Info:        info,
		InPerFrame:  samplesPerFrame,
		OutPerFrame: samplesPerFrame,
	})
}

// Integrate averages every navg consecutive samples, reducing the sample
// rate by the same factor. Trailing samples that do not fill a frame are
// dropped.
func Integrate(ih stream.Stream, navg, samplesPerFrame int) (*stream.Task, error) {
	if navg <= 0 {
		return nil, fmt.Errorf("invalid averaging factor: %d", navg)
	}
	if samplesPerFrame <= 0 {
		samplesPerFrame = 1
	}
	width := ih.Shape().Width()

	nframes := ih.Length() / int64(navg*samplesPerFrame)
	if nframes == 0 {
		return nil, fmt.Errorf("input of %d samples is too short for one frame of %d", ih.Length(), navg*samplesPerFrame)
	}

	info, err := stream.NewInfo(
		ih.SampleRate()/float64(navg),
		ih.StartTime(),
		nframes*int64(samplesPerFrame),
		ih.Shape(),
		ih.Complex(),
		ih.Frequency(), ih.Sideband(),
	)
	if err != nil {
		return nil, err
	}

	scale := complex(1/float64(navg), 0)
	fn := func(in, out []complex128) error {
		for j := 0; j < samplesPerFrame; j++ {
			dst := out[j*width : (j+1)*width]
			for c := range dst {
				dst[c] = 0
			}
			for k := 0; k < navg; k++ {
				src := in[(j*navg+k)*width:]
				for c := range dst {
					dst[c] += src[c]
				}
			}
			for c := range dst {
				dst[c] *= scale
			}
		}
		return nil
	}

	return stream.NewTask(ih, fn, stream.TaskConfig{
		Info:        info,
		InPerFrame:  navg * samplesPerFrame,
		OutPerFrame: samplesPerFrame,
	})
}
