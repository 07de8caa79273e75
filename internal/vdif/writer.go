package vdif

import (
	"fmt"
	"io"
	"time"
)

// WriterConfig describes the recording geometry of a Writer.
type WriterConfig struct {
	SampleRate      float64   // Samples per second
	StartTime       time.Time // Time of the first sample; whole seconds only
	NChan           int       // Channels per frame
	Complex         bool      // Complex sample components
	Bits            int       // Bits per sample component (2, 4 or 8)
	SamplesPerFrame int       // Time samples per frame
	StationID       uint16
	ThreadID        uint16
}

// Writer quantizes samples into fixed-size frames and writes them out.
// Samples are buffered until a frame fills; Flush pads the last frame with
// zeros.
type Writer struct {
	w   io.Writer
	cfg WriterConfig

	framesPerSec int64
	baseSeconds  uint32
	refEpoch     uint8
	frameLength  int

	frameIdx int64
	pending  []complex128
	headerBuf [HeaderSize]byte
}

// NewWriter validates the geometry and creates a frame writer on w.
func NewWriter(w io.Writer, cfg WriterConfig) (*Writer, error) {
	if cfg.SamplesPerFrame <= 0 {
		return nil, fmt.Errorf("invalid samples per frame: %d", cfg.SamplesPerFrame)
	}
	bitsPerSample := cfg.Bits * cfg.NChan
	if cfg.Complex {
		bitsPerSample *= 2
	}
	payloadBits := bitsPerSample * cfg.SamplesPerFrame
	if payloadBits%64 != 0 {
		return nil, fmt.Errorf("frame payload of %d bits is not a multiple of 64", payloadBits)
	}

	fps := cfg.SampleRate / float64(cfg.SamplesPerFrame)
	if fps != float64(int64(fps)) || fps <= 0 {
		return nil, fmt.Errorf("sample rate %f does not give a whole number of frames per second", cfg.SampleRate)
	}

	epoch, epochStart := RefEpochFor(cfg.StartTime)
	offset := cfg.StartTime.UTC().Sub(epochStart)
	if offset < 0 || offset%time.Second != 0 {
		return nil, fmt.Errorf("start time %s is not on a whole second from epoch", cfg.StartTime)
	}

	wr := &Writer{
		w:            w,
		cfg:          cfg,
		framesPerSec: int64(fps),
		baseSeconds:  uint32(offset / time.Second),
		refEpoch:     epoch,
		frameLength:  HeaderSize + payloadBits/8,
	}

	// Fail early on bad geometry.
	if err := wr.header(0).Validate(); err != nil {
		return nil, err
	}
	return wr, nil
}

func (w *Writer) header(frameIdx int64) *Header {
	return &Header{
		Seconds:     w.baseSeconds + uint32(frameIdx/w.framesPerSec),
		RefEpoch:    w.refEpoch,
		FrameNr:     uint32(frameIdx % w.framesPerSec),
		NChan:       w.cfg.NChan,
		FrameLength: w.frameLength,
		Complex:     w.cfg.Complex,
		Bits:        w.cfg.Bits,
		ThreadID:    w.cfg.ThreadID,
		StationID:   w.cfg.StationID,
	}
}

// WriteSamples buffers whole samples (NChan values each) and writes out
// every completed frame.
func (w *Writer) WriteSamples(p []complex128) error {
	w.pending = append(w.pending, p...)
	frameValues := w.cfg.SamplesPerFrame * w.cfg.NChan
	for len(w.pending) >= frameValues {
		if err := w.writeFrame(w.pending[:frameValues]); err != nil {
			return err
		}
		w.pending = w.pending[frameValues:]
	}
	return nil
}

// Flush pads and writes any buffered partial frame.
func (w *Writer) Flush() error {
	if len(w.pending) == 0 {
		return nil
	}
	frameValues := w.cfg.SamplesPerFrame * w.cfg.NChan
	frame := make([]complex128, frameValues)
	copy(frame, w.pending)
	w.pending = w.pending[:0]
	return w.writeFrame(frame)
}

func (w *Writer) writeFrame(samples []complex128) error {
	h := w.header(w.frameIdx)
	if err := h.Encode(w.headerBuf[:]); err != nil {
		return fmt.Errorf("encoding header: %w", err)
	}

	payload, err := encodeComponents(samplesToComponents(samples, h), h)
	if err != nil {
		return fmt.Errorf("encoding frame %d: %w", w.frameIdx, err)
	}

	if _, err = w.w.Write(w.headerBuf[:]); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	if _, err = w.w.Write(payload); err != nil {
		return fmt.Errorf("writing payload: %w", err)
	}
	w.frameIdx++
	return nil
}
