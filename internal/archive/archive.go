// Package archive reads and writes reduced streams as self-describing
// archive files. A file starts with a magic number and a YAML-encoded header
// carrying the stream metadata, followed by the samples as a flat
// little-endian payload in one of a few element types, so archives written on
// one machine read back anywhere.
package archive

import (
	"errors"
	"fmt"
	"time"
)

// Magic identifies an archive file.
const Magic = "SCAR"

// Version is the archive layout version written by this package.
const Version = 1

var (
	// ErrBadMagic is returned when a file does not start with the archive
	// magic number.
	ErrBadMagic = errors.New("not an archive file")

	// ErrBadHeader is returned for unreadable or inconsistent headers.
	ErrBadHeader = errors.New("invalid archive header")
)

// DType selects how sample values are stored in the payload.
type DType string

const (
	// Complex128 stores each value as two float64s.
	Complex128 DType = "c16"

	// Complex64 stores each value as two float32s.
	Complex64 DType = "c8"

	// Float64 stores the real part of each value as a float64.
	Float64 DType = "f8"

	// Float32 stores the real part of each value as a float32.
	Float32 DType = "f4"

	// Int8 stores the real part of each value as a scaled int8. The scale
	// lives in the header.
	Int8 DType = "i1"
)

// Size returns the number of payload bytes per value, or zero for an unknown
// dtype.
func (d DType) Size() int {
	switch d {
	case Complex128:
		return 16
	case Complex64:
		return 8
	case Float64:
		return 8
	case Float32:
		return 4
	case Int8:
		return 1
	}
	return 0
}

// IsComplex reports whether the dtype preserves imaginary parts.
func (d DType) IsComplex() bool {
	return d == Complex128 || d == Complex64
}

// Header is the YAML-serialized metadata block of an archive.
type Header struct {
	SampleRate float64   `yaml:"sample_rate"`
	StartTime  time.Time `yaml:"start_time"`
	Length     int64     `yaml:"length"`
	NChan      int       `yaml:"nchan"`
	NPol       int       `yaml:"npol"`
	Complex    bool      `yaml:"complex"`
	Frequency  []float64 `yaml:"frequency,omitempty"`
	Sideband   []int8    `yaml:"sideband,omitempty"`
	DType      DType     `yaml:"dtype"`
	Scale      float64   `yaml:"scale,omitempty"`
}

// Validate checks the header for internal consistency.
func (h *Header) Validate() error {
	switch {
	case h.SampleRate <= 0:
		return fmt.Errorf("%w: sample rate %f", ErrBadHeader, h.SampleRate)
	case h.Length < 0:
		return fmt.Errorf("%w: length %d", ErrBadHeader, h.Length)
	case h.NChan < 1 || h.NPol < 1:
		return fmt.Errorf("%w: sample shape %dx%d", ErrBadHeader, h.NChan, h.NPol)
	case h.DType.Size() == 0:
		return fmt.Errorf("%w: unknown dtype %q", ErrBadHeader, h.DType)
	case h.Complex && !h.DType.IsComplex():
		return fmt.Errorf("%w: dtype %q cannot store complex samples", ErrBadHeader, h.DType)
	case h.DType == Int8 && h.Scale <= 0:
		return fmt.Errorf("%w: dtype %q needs a positive scale", ErrBadHeader, h.DType)
	}
	if h.Frequency != nil && len(h.Frequency) != h.NChan {
		return fmt.Errorf("%w: %d frequencies for %d channels", ErrBadHeader, len(h.Frequency), h.NChan)
	}
	if h.Sideband != nil && len(h.Sideband) != h.NChan {
		return fmt.Errorf("%w: %d sidebands for %d channels", ErrBadHeader, len(h.Sideband), h.NChan)
	}
	return nil
}

// Width returns the number of values per sample.
func (h *Header) Width() int { return h.NChan * h.NPol }
