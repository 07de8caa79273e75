package vdif

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Luke-Pratley/scintillometry/internal/stream"
)

const (
	scanBufferCapacity = 1024
	scanBufferFlush    = 256
)

// Reader serves a VDIF recording as a sample stream. The whole file is
// indexed up front: frames may appear out of order in the recording and are
// sorted through a FrameBuffer; gaps and frames flagged invalid read back as
// zeros.
type Reader struct {
	stream.Info

	f      *os.File
	layout *Header // geometry shared by all frames

	framesPerSec int64
	firstIdx     int64
	offsets      map[int64]int64 // frame index -> byte offset, missing = gap

	frame    int64 // frame index decoded into buf, -1 when empty
	buf      []complex128
	raw      []byte
}

// Open indexes a recording. The sample rate cannot be recovered from frame
// headers and must be supplied.
func Open(path string, sampleRate float64) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening recording: %w", err)
	}

	r := &Reader{f: f, frame: -1}
	if err = r.index(sampleRate); err != nil {
		_ = f.Close()
		return nil, err
	}
	return r, nil
}

// index scans every frame header, orders them and builds the offset table.
func (r *Reader) index(sampleRate float64) error {
	fb, err := NewFrameBuffer(scanBufferCapacity, scanBufferFlush)
	if err != nil {
		return err
	}

	var ordered []*IndexedFrame
	var pos int64
	headerBuf := make([]byte, HeaderSize)

	for {
		if _, err := r.f.ReadAt(headerBuf, pos); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("reading header at %d: %w", pos, err)
		}

		h, err := DecodeHeader(headerBuf)
		if err != nil {
			return fmt.Errorf("frame at byte %d: %w", pos, err)
		}

		if r.layout == nil {
			r.layout = h
		} else if h.FrameLength != r.layout.FrameLength || h.NChan != r.layout.NChan ||
			h.Bits != r.layout.Bits || h.Complex != r.layout.Complex {
			return fmt.Errorf("%w: frame geometry changes at byte %d", ErrInvalidHeader, pos)
		}

		if err = fb.Insert(&IndexedFrame{Header: h, Offset: pos}); err != nil {
			return err
		}
		if fb.IsFull() {
			ordered = append(ordered, fb.Flush()...)
		}

		pos += int64(h.FrameLength)
	}
	ordered = append(ordered, fb.DrainAll()...)

	if len(ordered) == 0 {
		return fmt.Errorf("%w: recording holds no frames", ErrInvalidHeader)
	}

	spf := int64(r.layout.SamplesPerFrame())
	fps := sampleRate / float64(spf)
	if fps != float64(int64(fps)) || fps <= 0 {
		return fmt.Errorf("sample rate %f does not give a whole number of %d-sample frames per second", sampleRate, spf)
	}
	r.framesPerSec = int64(fps)

	first := ordered[0].Header
	r.firstIdx = int64(first.Seconds)*r.framesPerSec + int64(first.FrameNr)

	r.offsets = make(map[int64]int64, len(ordered))
	var lastIdx int64
	for _, fr := range ordered {
		idx := int64(fr.Header.Seconds)*r.framesPerSec + int64(fr.Header.FrameNr) - r.firstIdx
		if idx > lastIdx {
			lastIdx = idx
		}
		if fr.Header.Invalid {
			continue
		}
		r.offsets[idx] = fr.Offset
	}

	start := EpochStart(first.RefEpoch).
		Add(time.Duration(first.Seconds) * time.Second).
		Add(time.Duration(float64(first.FrameNr) * float64(spf) / sampleRate * float64(time.Second)))

	info, err := stream.NewInfo(
		sampleRate,
		start,
		(lastIdx+1)*spf,
		stream.SampleShape{NChan: r.layout.NChan, NPol: 1},
		r.layout.Complex,
		nil, nil,
	)
	if err != nil {
		return err
	}
	r.Info = info

	r.buf = make([]complex128, spf*int64(r.layout.NChan))
	r.raw = make([]byte, r.layout.FrameLength)
	return nil
}

// Layout returns the frame geometry of the recording.
func (r *Reader) Layout() Header { return *r.layout }

// Read decodes samples at the current offset, zero-filling gaps.
func (r *Reader) Read(p []complex128) (int, error) {
	if r.Closed() {
		return 0, stream.ErrClosed
	}
	width := r.Shape().Width()
	want := int64(len(p) / width)
	if want > r.Length()-r.Offset() {
		want = r.Length() - r.Offset()
	}
	if want == 0 {
		return 0, io.EOF
	}

	spf := int64(r.layout.SamplesPerFrame())
	var done int64
	for done < want {
		frame := r.Offset() / spf
		if err := r.fillFrame(frame); err != nil {
			if done > 0 {
				return int(done), nil
			}
			return 0, err
		}

		pos := r.Offset() - frame*spf
		n := spf - pos
		if n > want-done {
			n = want - done
		}
		copy(p[done*int64(width):], r.buf[pos*int64(width):(pos+n)*int64(width)])
		r.Advance(n)
		done += n
	}
	return int(done), nil
}

func (r *Reader) fillFrame(frame int64) error {
	if frame == r.frame {
		return nil
	}

	offset, ok := r.offsets[frame]
	if !ok {
		// Missing or invalid frame: zero fill.
		for i := range r.buf {
			r.buf[i] = 0
		}
		r.frame = frame
		return nil
	}

	if _, err := r.f.ReadAt(r.raw, offset); err != nil {
		return fmt.Errorf("reading frame %d: %w", frame, err)
	}
	h, err := DecodeHeader(r.raw)
	if err != nil {
		return fmt.Errorf("frame %d: %w", frame, err)
	}
	components, err := decodeComponents(r.raw[HeaderSize:], h)
	if err != nil {
		return fmt.Errorf("decoding frame %d: %w", frame, err)
	}
	copy(r.buf, componentsToSamples(components, h))
	r.frame = frame
	return nil
}

func (r *Reader) Close() error {
	if r.Closed() {
		return nil
	}
	err := r.f.Close()
	_ = r.Info.Close()
	return err
}
