package app

import (
	"math"
	"time"

	"github.com/Luke-Pratley/scintillometry/internal/spectra"
)

// SpectrumData accumulates the rows of a dynamic spectrum into a pixel grid,
// one row per spectrum and one column per frequency bin. Powers are kept in
// dB; bins with no usable reading hold NaN and render as the floor color.
type SpectrumData struct {
	Width, Height                int
	FrequencyMin, FrequencyMax   float64
	TimestampStart, TimestampEnd time.Time
	BoundsTracker                *SmoothBounds
	Rows                         [][]float64
}

func NewSpectrumData(b *SmoothBounds) *SpectrumData {
	return &SpectrumData{
		FrequencyMin:  math.MaxFloat64,
		FrequencyMax:  -math.MaxFloat64,
		BoundsTracker: b,
		Rows:          make([][]float64, 0),
	}
}

func (s *SpectrumData) Update(row *spectra.Spectrum) {
	s.Width = max(s.Width, row.NChan())
	s.Height++

	s.FrequencyMin = min(s.FrequencyMin, row.FreqStart)
	s.FrequencyMax = max(s.FrequencyMax, row.FreqEnd())

	if s.TimestampStart.IsZero() || s.TimestampStart.After(row.Timestamp) {
		s.TimestampStart = row.Timestamp
	}
	if s.TimestampEnd.IsZero() || s.TimestampEnd.Before(row.Timestamp) {
		s.TimestampEnd = row.Timestamp
	}

	powers := make([]float64, len(row.Power))
	for i, p := range row.Power {
		if p <= 0 || math.IsNaN(float64(p)) {
			powers[i] = math.NaN()
			continue
		}
		db := 10 * math.Log10(float64(p))
		powers[i] = db
		s.BoundsTracker.Update(db)
	}
	s.Rows = append(s.Rows, powers)
}

// Duration is the time span covered by the accumulated rows.
func (s *SpectrumData) Duration() time.Duration {
	return s.TimestampEnd.Sub(s.TimestampStart)
}
