// Package obsmeta describes the observation behind a recording: telescope
// and antenna position, source coordinates, observing mode and band setup.
// The fields follow pulsar-archive conventions, with start times split over a
// modified Julian day and coordinates given in sexagesimal notation, so
// metadata moves cleanly between configuration files and archived output.
package obsmeta

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Observing modes.
const (
	ModeSearch = "SEARCH"
	ModePSR    = "PSR"
	ModeCal    = "CAL"
)

// ITRF is an antenna position in the terrestrial reference frame, meters.
type ITRF struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	Z float64 `yaml:"z"`
}

// Observation is the metadata block attached to a reduction run.
type Observation struct {
	Telescope string `yaml:"telescope"`
	Antenna   ITRF   `yaml:"antenna"`
	Observer  string `yaml:"observer,omitempty"`
	ProjectID string `yaml:"project_id,omitempty"`

	Source string `yaml:"source"`
	RA     string `yaml:"ra"`  // hh:mm:ss.s
	Dec    string `yaml:"dec"` // [+-]dd:mm:ss.s
	Mode   string `yaml:"mode"`

	Frequency float64 `yaml:"frequency"` // band center, Hz
	Bandwidth float64 `yaml:"bandwidth"` // Hz, negative for lower sideband
	NChan     int     `yaml:"nchan"`
}

// Validate checks the observation for the fields every run needs.
func (o *Observation) Validate() error {
	switch o.Mode {
	case ModeSearch, ModePSR, ModeCal:
	case "":
		return fmt.Errorf("observing mode is required")
	default:
		return fmt.Errorf("unknown observing mode %q", o.Mode)
	}
	if o.Telescope == "" {
		return fmt.Errorf("telescope name is required")
	}
	if o.RA != "" {
		if _, err := ParseRA(o.RA); err != nil {
			return err
		}
	}
	if o.Dec != "" {
		if _, err := ParseDec(o.Dec); err != nil {
			return err
		}
	}
	if o.NChan < 0 {
		return fmt.Errorf("invalid channel count: %d", o.NChan)
	}
	return nil
}

// Sideband returns +1 for an upper-sideband band and -1 for lower.
func (o *Observation) Sideband() int8 {
	if o.Bandwidth < 0 {
		return -1
	}
	return 1
}

// ParseRA converts a sexagesimal right ascension in hours to degrees.
func ParseRA(s string) (float64, error) {
	v, err := parseSexagesimal(s)
	if err != nil {
		return 0, fmt.Errorf("invalid right ascension %q: %w", s, err)
	}
	deg := v * 15
	if deg < 0 || deg >= 360 {
		return 0, fmt.Errorf("right ascension %q out of range", s)
	}
	return deg, nil
}

// ParseDec converts a sexagesimal declination to degrees.
func ParseDec(s string) (float64, error) {
	deg, err := parseSexagesimal(s)
	if err != nil {
		return 0, fmt.Errorf("invalid declination %q: %w", s, err)
	}
	if deg < -90 || deg > 90 {
		return 0, fmt.Errorf("declination %q out of range", s)
	}
	return deg, nil
}

func parseSexagesimal(s string) (float64, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("expected dd:mm:ss")
	}

	neg := strings.HasPrefix(parts[0], "-")
	d, err := strconv.ParseFloat(strings.TrimPrefix(parts[0], "-"), 64)
	if err != nil {
		return 0, err
	}
	m, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return 0, err
	}
	sec, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return 0, err
	}
	if m < 0 || m >= 60 || sec < 0 || sec >= 60 {
		return 0, fmt.Errorf("minutes and seconds must be in [0, 60)")
	}

	v := d + m/60 + sec/3600
	if neg {
		v = -v
	}
	return v, nil
}

var mjdEpoch = time.Date(1858, 11, 17, 0, 0, 0, 0, time.UTC)

// SplitMJD splits a time into the integer modified Julian day, whole seconds
// since midnight and the fractional second.
func SplitMJD(t time.Time) (day, sec int64, frac float64) {
	d := t.UTC().Sub(mjdEpoch)
	day = int64(d / (24 * time.Hour))
	rem := d - time.Duration(day)*24*time.Hour
	sec = int64(rem / time.Second)
	frac = float64(rem%time.Second) / float64(time.Second)
	return day, sec, frac
}

// MJDTime reassembles a time from its modified Julian day split.
func MJDTime(day, sec int64, frac float64) time.Time {
	return mjdEpoch.
		Add(time.Duration(day) * 24 * time.Hour).
		Add(time.Duration(sec) * time.Second).
		Add(time.Duration(math.Round(frac * float64(time.Second))))
}
