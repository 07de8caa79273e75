package tasks

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/Luke-Pratley/scintillometry/internal/fourier"
	"github.com/Luke-Pratley/scintillometry/internal/stream"
)

// DispersionConstant relates dispersion measure to time delay:
// delay = DispersionConstant * dm / f**2, with f in MHz, dm in pc/cm3 and the
// delay in seconds.
const DispersionConstant = 4.148808e3

// DispersionMeasure is the integrated electron column density along the line
// of sight, in pc/cm3.
type DispersionMeasure float64

// TimeDelay returns the dispersive delay at frequency f relative to the
// reference frequency fref, both in Hz, in seconds. It is positive for
// frequencies below the reference.
func (dm DispersionMeasure) TimeDelay(f, fref float64) float64 {
	fMHz := f / 1e6
	refMHz := fref / 1e6
	return DispersionConstant * float64(dm) * (1/(fMHz*fMHz) - 1/(refMHz*refMHz))
}

// PhaseDelay returns the dispersive phase rotation at frequency f relative to
// the reference frequency fref, both in Hz, in cycles.
func (dm DispersionMeasure) PhaseDelay(f, fref float64) float64 {
	fMHz := f / 1e6
	refMHz := fref / 1e6
	d := 1/refMHz - 1/fMHz
	return DispersionConstant * float64(dm) * fMHz * d * d
}

// Dedisperse coherently removes interstellar dispersion from a channelized
// complex stream. Each spectral bin is rotated by the dispersive phase at its
// absolute sky frequency relative to refFreq; refFreq zero selects the
// highest channel frequency. Frames overlap and their contaminated edges are
// discarded, so samplesPerFrame (a power of two) must comfortably exceed the
// dispersive smearing across the band.
func Dedisperse(ih stream.Stream, dm DispersionMeasure, refFreq float64, samplesPerFrame int) (*stream.Task, error) {
	if !ih.Complex() {
		return nil, fmt.Errorf("dedispersion requires complex input")
	}
	freq, sb := ih.Frequency(), ih.Sideband()
	if freq == nil || sb == nil {
		return nil, fmt.Errorf("dedispersion requires channel frequencies and sidebands")
	}

	if refFreq == 0 {
		for _, f := range freq {
			refFreq = math.Max(refFreq, f)
		}
	}

	shape := ih.Shape()
	width := shape.Width()
	spf := samplesPerFrame
	tr, err := fourier.New(spf, width)
	if err != nil {
		return nil, err
	}

	// The largest delay across any channel band edge sets how many frame-edge
	// samples the circular shift corrupts.
	rate := ih.SampleRate()
	var maxDelay float64
	for c, f := range freq {
		lo := f - float64(sb[c])*rate/2
		hi := f + float64(sb[c])*rate/2
		maxDelay = math.Max(maxDelay, math.Abs(dm.TimeDelay(lo, refFreq)))
		maxDelay = math.Max(maxDelay, math.Abs(dm.TimeDelay(hi, refFreq)))
	}
	pad := int(math.Ceil(maxDelay * rate))
	outPerFrame := spf - 2*pad
	if outPerFrame < spf/2 {
		return nil, fmt.Errorf("dispersive smearing of %d samples needs frames longer than %d", pad, samplesPerFrame)
	}

	nframes := (ih.Length() - int64(spf)) / int64(outPerFrame)
	if ih.Length() < int64(spf) {
		return nil, fmt.Errorf("input of %d samples is too short for one frame of %d", ih.Length(), spf)
	}
	nframes++

	info, err := stream.NewInfo(
		rate,
		stream.TimeAt(ih, int64(pad)),
		nframes*int64(outPerFrame),
		shape,
		true,
		freq, sb,
	)
	if err != nil {
		return nil, err
	}

	// Per-bin dedispersion phases at the absolute frequency of each channel's
	// spectral bins.
	bins := fourier.Frequencies(spf, rate)
	factor := make([]complex128, spf*width)
	for i, fb := range bins {
		for c := 0; c < shape.NChan; c++ {
			fAbs := freq[c] + float64(sb[c])*fb
			phase := 2 * math.Pi * dm.PhaseDelay(fAbs, refFreq)
			v := cmplx.Exp(complex(0, phase))
			for p := 0; p < shape.NPol; p++ {
				factor[i*width+c*shape.NPol+p] = v
			}
		}
	}

	spec := make([]complex128, spf*width)
	work := make([]complex128, spf*width)
	fn := func(in, out []complex128) error {
		if err := tr.Forward(spec, in); err != nil {
			return err
		}
		for i := range spec {
			spec[i] *= factor[i]
		}
		if err := tr.Inverse(work, spec); err != nil {
			return err
		}
		copy(out, work[pad*width:(pad+outPerFrame)*width])
		return nil
	}

	return stream.NewTask(ih, fn, stream.TaskConfig{
		Info:        info,
		InPerFrame:  spf,
		OutPerFrame: outPerFrame,
		InStride:    outPerFrame,
	})
}
