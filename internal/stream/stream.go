// Package stream defines sample streams: seekable sequences of regularly
// sampled voltage data with time as the leading axis and physical metadata
// (sample rate, start time, per-channel frequency and sideband) attached.
//
// Everything in the reduction pipeline is a Stream: file readers, simulated
// generators and transformation tasks all share the interface, so tasks can
// be chained freely.
package stream

import (
	"errors"
	"fmt"
	"io"
	"time"
)

var (
	// ErrSeekOutOfRange is returned when seeking before the start or past the
	// end of a stream.
	ErrSeekOutOfRange = errors.New("seek offset out of range")

	// ErrClosed is returned when reading from a closed stream.
	ErrClosed = errors.New("stream is closed")
)

// SampleShape describes the shape of a single sample: the number of frequency
// channels and the number of polarizations per channel.
type SampleShape struct {
	NChan int
	NPol  int
}

// Width returns the number of complex values that make up one sample.
func (s SampleShape) Width() int {
	npol := s.NPol
	if npol < 1 {
		npol = 1
	}
	nchan := s.NChan
	if nchan < 1 {
		nchan = 1
	}
	return nchan * npol
}

// Stream is a seekable sequence of samples. Data is read in whole samples,
// each sample being Shape().Width() complex values laid out channel-major.
// Real-valued streams (Complex() == false) still transport data as complex
// values with zero imaginary parts; the flag matters for tasks whose output
// shape depends on it, such as channelization.
type Stream interface {
	// SampleRate returns the number of samples per second.
	SampleRate() float64

	// StartTime returns the time of the first sample.
	StartTime() time.Time

	// Length returns the total number of samples in the stream.
	Length() int64

	// Shape returns the shape of a single sample.
	Shape() SampleShape

	// Complex reports whether the underlying samples are complex-valued.
	Complex() bool

	// Frequency returns the sky frequency of each channel in Hz, or nil if
	// unknown. The returned slice must not be modified.
	Frequency() []float64

	// Sideband returns +1 (upper) or -1 (lower) for each channel, or nil if
	// unknown.
	Sideband() []int8

	// Offset returns the current position in samples.
	Offset() int64

	// Seek sets the position in samples, interpreted relative to whence
	// (io.SeekStart, io.SeekCurrent or io.SeekEnd).
	Seek(offset int64, whence int) (int64, error)

	// Read fills p with whole samples starting at the current offset and
	// advances the offset. It returns the number of samples read. io.EOF is
	// returned once the end of the stream is reached.
	Read(p []complex128) (int, error)

	Close() error
}

// Info carries stream metadata and position. Concrete streams embed it and
// implement Read and Close on top.
type Info struct {
	rate      float64
	start     time.Time
	length    int64
	shape     SampleShape
	isComplex bool
	frequency []float64
	sideband  []int8

	offset int64
	closed bool
}

// NewInfo validates and assembles stream metadata. frequency and sideband may
// be nil; when given, their length must match the channel count.
func NewInfo(rate float64, start time.Time, length int64, shape SampleShape, isComplex bool, frequency []float64, sideband []int8) (Info, error) {
	if rate <= 0 {
		return Info{}, fmt.Errorf("invalid sample rate: %f", rate)
	}
	if length < 0 {
		return Info{}, fmt.Errorf("invalid stream length: %d", length)
	}
	if shape.NChan < 1 || shape.NPol < 1 {
		return Info{}, fmt.Errorf("invalid sample shape: %dx%d", shape.NChan, shape.NPol)
	}
	if frequency != nil && len(frequency) != shape.NChan {
		return Info{}, fmt.Errorf("frequency length %d does not match %d channels", len(frequency), shape.NChan)
	}
	if sideband != nil && len(sideband) != shape.NChan {
		return Info{}, fmt.Errorf("sideband length %d does not match %d channels", len(sideband), shape.NChan)
	}
	return Info{
		rate:      rate,
		start:     start,
		length:    length,
		shape:     shape,
		isComplex: isComplex,
		frequency: frequency,
		sideband:  sideband,
	}, nil
}

func (i *Info) SampleRate() float64   { return i.rate }
func (i *Info) StartTime() time.Time  { return i.start }
func (i *Info) Length() int64         { return i.length }
func (i *Info) Shape() SampleShape    { return i.shape }
func (i *Info) Complex() bool         { return i.isComplex }
func (i *Info) Frequency() []float64  { return i.frequency }
func (i *Info) Sideband() []int8      { return i.sideband }
func (i *Info) Offset() int64         { return i.offset }

// Seek implements sample-based seeking shared by all streams.
func (i *Info) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = i.offset + offset
	case io.SeekEnd:
		abs = i.length + offset
	default:
		return 0, fmt.Errorf("invalid whence: %d", whence)
	}
	if abs < 0 || abs > i.length {
		return 0, fmt.Errorf("%w: %d not in [0, %d]", ErrSeekOutOfRange, abs, i.length)
	}
	i.offset = abs
	return abs, nil
}

// Close marks the stream closed. Embedders with resources override this and
// call it last.
func (i *Info) Close() error {
	i.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (i *Info) Closed() bool { return i.closed }

// Advance moves the offset forward by n samples, clamped to the length.
func (i *Info) Advance(n int64) {
	i.offset += n
	if i.offset > i.length {
		i.offset = i.length
	}
}

// Remaining returns the number of samples between the offset and the end.
func (i *Info) Remaining() int64 { return i.length - i.offset }

// SetStartTime replaces the start time. Used by tasks that shift streams in
// time.
func (i *Info) SetStartTime(t time.Time) { i.start = t }

// TimeAt converts a sample offset of s into an absolute time.
func TimeAt(s Stream, offset int64) time.Time {
	sec := float64(offset) / s.SampleRate()
	return s.StartTime().Add(time.Duration(sec * float64(time.Second)))
}

// EndTime returns the time just past the last sample of s.
func EndTime(s Stream) time.Time {
	return TimeAt(s, s.Length())
}

// ReadFull reads exactly len(p)/width samples into p, failing with
// io.ErrUnexpectedEOF if the stream ends first.
func ReadFull(s Stream, p []complex128) error {
	width := s.Shape().Width()
	want := len(p) / width
	got := 0
	for got < want {
		n, err := s.Read(p[got*width:])
		got += n
		if err != nil {
			if errors.Is(err, io.EOF) && got < want {
				return io.ErrUnexpectedEOF
			}
			if got >= want {
				return nil
			}
			return err
		}
	}
	return nil
}

// ReadAll reads the remainder of s into a freshly allocated slice.
func ReadAll(s Stream) ([]complex128, error) {
	width := s.Shape().Width()
	out := make([]complex128, (s.Length()-s.Offset())*int64(width))
	if len(out) == 0 {
		return out, nil
	}
	if err := ReadFull(s, out); err != nil {
		return nil, err
	}
	return out, nil
}
