package app

import (
	"fmt"
	"sort"

	"github.com/Luke-Pratley/scintillometry/internal/archive"
	"github.com/Luke-Pratley/scintillometry/internal/obsmeta"
	"github.com/Luke-Pratley/scintillometry/internal/stream"
	"github.com/Luke-Pratley/scintillometry/internal/tasks"
	"github.com/Luke-Pratley/scintillometry/internal/vdif"
)

const detectSamplesPerFrame = 1024

// openInput opens the configured recording. Raw baseband readers do not
// record sky frequencies, so when the observation block carries a band the
// channels are tagged with it here.
func openInput(in *InputConfig, obs *obsmeta.Observation) (stream.Stream, error) {
	var (
		ih  stream.Stream
		err error
	)
	switch in.Format {
	case FormatVDIF:
		ih, err = vdif.Open(in.Path, in.SampleRate)
	case FormatArchive:
		ih, err = archive.Open(in.Path)
	default:
		err = fmt.Errorf("unknown input format %q", in.Format)
	}
	if err != nil {
		return nil, err
	}

	if obs.Frequency == 0 || ih.Frequency() != nil {
		return ih, nil
	}

	nchan := ih.Shape().NChan
	freq := make([]float64, nchan)
	sb := make([]int8, nchan)
	for c := range freq {
		freq[c] = obs.Frequency
		sb[c] = obs.Sideband()
	}

	wrapped, err := stream.NewSetAttribute(ih, stream.Attrs{Frequency: freq, Sideband: sb})
	if err != nil {
		_ = ih.Close()
		return nil, err
	}
	return wrapped, nil
}

// buildPipeline chains the configured reduction steps onto ih. Steps apply in
// a fixed order: channelize, dedisperse, detect, integrate.
func buildPipeline(ih stream.Stream, p *PipelineConfig) (stream.Stream, error) {
	out := ih

	if cfg := p.Channelize; cfg != nil {
		t, err := tasks.Channelize(out, cfg.NChan, cfg.SamplesPerFrame)
		if err != nil {
			return nil, fmt.Errorf("channelizing: %w", err)
		}
		out = t
	}
	if cfg := p.Dedisperse; cfg != nil {
		t, err := tasks.Dedisperse(out, tasks.DispersionMeasure(cfg.DM),
			cfg.ReferenceFrequency, cfg.SamplesPerFrame)
		if err != nil {
			return nil, fmt.Errorf("dedispersing: %w", err)
		}
		out = t
	}
	if p.Detect {
		spf := detectSamplesPerFrame
		if l := out.Length(); l < int64(spf) {
			spf = int(l)
		}
		t, err := tasks.Detect(out, spf)
		if err != nil {
			return nil, fmt.Errorf("detecting: %w", err)
		}
		out = t
	}
	if cfg := p.Integrate; cfg != nil {
		t, err := tasks.Integrate(out, cfg.Factor, 1)
		if err != nil {
			return nil, fmt.Errorf("integrating: %w", err)
		}
		out = t
	}

	return out, nil
}

// channelOrder returns the channel indices of s sorted by ascending sky
// frequency, with the grid origin and spacing. Channelized streams list
// channels in FFT order, which is not monotonic.
func channelOrder(s stream.Stream) (order []int, freqStart, binWidth float64, err error) {
	freq := s.Frequency()
	nchan := s.Shape().NChan
	if freq == nil {
		return nil, 0, 0, fmt.Errorf("stream carries no frequency scale")
	}

	order = make([]int, nchan)
	for c := range order {
		order[c] = c
	}
	sort.Slice(order, func(i, j int) bool { return freq[order[i]] < freq[order[j]] })

	freqStart = freq[order[0]]
	if nchan > 1 {
		binWidth = freq[order[1]] - freq[order[0]]
	} else {
		binWidth = s.SampleRate()
	}
	return order, freqStart, binWidth, nil
}
