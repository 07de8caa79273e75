package stream

import (
	"fmt"
	"io"
	"time"
)

// Attrs holds metadata overrides for SetAttribute. Nil / zero fields keep the
// value of the underlying stream.
type Attrs struct {
	StartTime time.Time
	Frequency []float64
	Sideband  []int8
}

// SetAttribute wraps a stream and overrides parts of its metadata without
// touching the data. It is used to attach sky frequencies and sidebands to
// raw readers that do not record them, or to shift the nominal start time of
// a delayed recording.
type SetAttribute struct {
	Info
	ih Stream
}

// NewSetAttribute wraps ih with the given metadata overrides.
func NewSetAttribute(ih Stream, attrs Attrs) (*SetAttribute, error) {
	start := ih.StartTime()
	if !attrs.StartTime.IsZero() {
		start = attrs.StartTime
	}
	frequency := ih.Frequency()
	if attrs.Frequency != nil {
		frequency = attrs.Frequency
	}
	sideband := ih.Sideband()
	if attrs.Sideband != nil {
		sideband = attrs.Sideband
	}

	info, err := NewInfo(ih.SampleRate(), start, ih.Length(), ih.Shape(), ih.Complex(), frequency, sideband)
	if err != nil {
		return nil, fmt.Errorf("overriding attributes: %w", err)
	}
	return &SetAttribute{Info: info, ih: ih}, nil
}

// Read forwards to the underlying stream, keeping both offsets in step.
func (s *SetAttribute) Read(p []complex128) (int, error) {
	if s.Closed() {
		return 0, ErrClosed
	}
	if s.ih.Offset() != s.Offset() {
		if _, err := s.ih.Seek(s.Offset(), io.SeekStart); err != nil {
			return 0, err
		}
	}
	n, err := s.ih.Read(p)
	s.Advance(int64(n))
	return n, err
}

func (s *SetAttribute) Close() error {
	if s.Closed() {
		return nil
	}
	err := s.ih.Close()
	_ = s.Info.Close()
	return err
}
