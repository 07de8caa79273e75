// Package spectra holds the data model shared between the reduction pipeline
// and its storage and rendering layers.
package spectra

import "time"

// Run records one pass of the reduction pipeline over a recording.
type Run struct {
	ID        string    `json:"id"`                  // UUID assigned on creation
	CreatedAt time.Time `json:"createdAt"`           // When the run was registered
	StartTime time.Time `json:"startTime"`           // Start of the reduced stream
	Source    string    `json:"source"`              // Input recording path or URL
	Telescope string    `json:"telescope,omitempty"` // Observing telescope
	Target    string    `json:"target,omitempty"`    // Observed source name
	Mode      string    `json:"mode,omitempty"`      // Observing mode
	Config    *string   `json:"config,omitempty"`    // Pipeline configuration, YAML
}

// Spectrum is one row of a dynamic spectrum: integrated channel powers at a
// point in time. Power holds one value per channel on a uniform frequency
// grid starting at FreqStart.
type Spectrum struct {
	Timestamp time.Time `json:"timestamp"`
	FreqStart float64   `json:"freqStart"` // Frequency of the first channel, Hz
	BinWidth  float64   `json:"binWidth"`  // Channel spacing, Hz
	Power     []float32 `json:"power"`
}

// NChan returns the number of channels in the spectrum.
func (s *Spectrum) NChan() int { return len(s.Power) }

// FreqEnd returns the frequency just past the last channel.
func (s *Spectrum) FreqEnd() float64 {
	return s.FreqStart + s.BinWidth*float64(len(s.Power))
}

// Profile is a folded pulse profile over one sub-integration.
type Profile struct {
	ID        int64         `json:"id"`
	StartTime time.Time     `json:"startTime"`
	Duration  time.Duration `json:"duration"`
	NBin      int           `json:"nbin"`
	Width     int           `json:"width"` // Values per phase bin
	Power     []float32     `json:"power"` // NBin rows of Width mean powers
	Count     []int64       `json:"count"` // Samples folded into each bin
}
