package tasks

import (
	"fmt"
	"math"
	"time"

	"github.com/Luke-Pratley/scintillometry/internal/stream"
)

// PhaseFunc gives the pulse phase in cycles at time t. Only the fractional
// part matters for binning.
type PhaseFunc func(t time.Time) float64

// SpinPhase returns the phase of a pulsar spinning at f0 Hz with frequency
// derivative fdot Hz/s, zero phase at the given epoch.
func SpinPhase(epoch time.Time, f0, fdot float64) PhaseFunc {
	return func(t time.Time) float64 {
		dt := t.Sub(epoch).Seconds()
		return dt * (f0 + 0.5*fdot*dt)
	}
}

// Profile accumulates folded power. Sum holds NBin rows of Width component
// sums; Count holds the number of samples that landed in each bin.
type Profile struct {
	StartTime time.Time
	Duration  time.Duration
	NBin      int
	Width     int
	Sum       []float64
	Count     []int64
}

func newProfile(start time.Time, nbin, width int) *Profile {
	return &Profile{
		StartTime: start,
		NBin:      nbin,
		Width:     width,
		Sum:       make([]float64, nbin*width),
		Count:     make([]int64, nbin),
	}
}

func (p *Profile) add(bin int, sample []complex128) {
	for c, v := range sample {
		p.Sum[bin*p.Width+c] += real(v)
	}
	p.Count[bin]++
}

// Mean returns the per-bin average power, zero for empty bins.
func (p *Profile) Mean() []float64 {
	out := make([]float64, len(p.Sum))
	for b := 0; b < p.NBin; b++ {
		if p.Count[b] == 0 {
			continue
		}
		n := float64(p.Count[b])
		for c := 0; c < p.Width; c++ {
			out[b*p.Width+c] = p.Sum[b*p.Width+c] / n
		}
	}
	return out
}

const foldChunk = 4096

// Fold bins every sample of ih by pulse phase into a single profile. The
// input should be detected; only real parts are accumulated.
func Fold(ih stream.Stream, phase PhaseFunc, nbin int) (*Profile, error) {
	profiles, err := FoldSegments(ih, phase, nbin, 0)
	if err != nil {
		return nil, err
	}
	return profiles[0], nil
}

// FoldSegments folds ih into consecutive sub-integrations of the given
// length; zero folds the whole stream into one profile. The last segment may
// cover fewer samples.
func FoldSegments(ih stream.Stream, phase PhaseFunc, nbin int, segment time.Duration) ([]*Profile, error) {
	if nbin <= 0 {
		return nil, fmt.Errorf("invalid bin count: %d", nbin)
	}
	if phase == nil {
		return nil, fmt.Errorf("phase function is required")
	}

	perSegment := ih.Length()
	if segment > 0 {
		perSegment = int64(segment.Seconds() * ih.SampleRate())
		if perSegment <= 0 {
			return nil, fmt.Errorf("segment %s is shorter than one sample", segment)
		}
	}

	width := ih.Shape().Width()
	buf := make([]complex128, foldChunk*width)

	var profiles []*Profile
	var cur *Profile
	offset := ih.Offset()
	end := ih.Length()
	segStart := offset

	for offset < end {
		want := end - offset
		if want > foldChunk {
			want = foldChunk
		}
		chunk := buf[:want*int64(width)]
		if err := stream.ReadFull(ih, chunk); err != nil {
			return nil, fmt.Errorf("folding at sample %d: %w", offset, err)
		}

		for i := int64(0); i < want; i++ {
			if cur != nil && offset-segStart >= perSegment {
				cur.Duration = time.Duration(float64(offset-segStart) / ih.SampleRate() * float64(time.Second))
				cur = nil
			}
			if cur == nil {
				segStart = offset
				cur = newProfile(stream.TimeAt(ih, segStart), nbin, width)
				profiles = append(profiles, cur)
			}

			phi := phase(stream.TimeAt(ih, offset))
			bin := int((phi - math.Floor(phi)) * float64(nbin))
			if bin >= nbin {
				bin = nbin - 1
			}
			cur.add(bin, chunk[i*int64(width):(i+1)*int64(width)])
			offset++
		}
	}
	if cur != nil {
		cur.Duration = time.Duration(float64(offset-segStart) / ih.SampleRate() * float64(time.Second))
	}
	if len(profiles) == 0 {
		return nil, fmt.Errorf("stream holds no samples to fold")
	}
	return profiles, nil
}
