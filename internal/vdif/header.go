// Package vdif reads and writes raw baseband recordings framed in the VDIF
// style: fixed-size frames of quantized voltage samples behind a 32-byte
// header carrying the frame time, channel count and sample encoding.
package vdif

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// HeaderSize is the size of a frame header in bytes.
const HeaderSize = 32

// refEpochBase is the origin of VDIF reference epochs (epoch 0).
var refEpochBase = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

var (
	// ErrInvalidHeader is returned when header fields are inconsistent.
	ErrInvalidHeader = errors.New("invalid frame header")

	// ErrShortFrame is returned when a frame is truncated.
	ErrShortFrame = errors.New("short frame")
)

// Header is a decoded frame header.
type Header struct {
	Invalid     bool   // Frame data is flagged unusable
	Seconds     uint32 // Seconds from the reference epoch (30 bits)
	RefEpoch    uint8  // Half-years since 2000-01-01 (6 bits)
	FrameNr     uint32 // Frame number within the second (24 bits)
	NChan       int    // Channels per frame (power of two)
	FrameLength int    // Total frame length in bytes, header included
	Complex     bool   // Samples are complex (interleaved re/im)
	Bits        int    // Bits per sample component
	ThreadID    uint16 // Thread identifier (10 bits)
	StationID   uint16 // Station identifier
}

// RefEpochFor returns the reference epoch covering t and the epoch start.
func RefEpochFor(t time.Time) (uint8, time.Time) {
	t = t.UTC()
	half := (t.Year()-2000)*2
	if t.Month() >= time.July {
		half++
	}
	var start time.Time
	if half%2 == 0 {
		start = time.Date(2000+half/2, time.January, 1, 0, 0, 0, 0, time.UTC)
	} else {
		start = time.Date(2000+half/2, time.July, 1, 0, 0, 0, 0, time.UTC)
	}
	return uint8(half), start
}

// EpochStart returns the start time of a reference epoch.
func EpochStart(epoch uint8) time.Time {
	year := 2000 + int(epoch)/2
	month := time.January
	if epoch%2 == 1 {
		month = time.July
	}
	return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
}

// Time returns the integer-second time of the frame. Sub-second position
// follows from the frame number and the frame rate, which the header alone
// does not carry.
func (h *Header) Time() time.Time {
	return EpochStart(h.RefEpoch).Add(time.Duration(h.Seconds) * time.Second)
}

// PayloadSize returns the payload length in bytes.
func (h *Header) PayloadSize() int {
	return h.FrameLength - HeaderSize
}

// SamplesPerFrame returns the number of complete time samples in the payload.
func (h *Header) SamplesPerFrame() int {
	bitsPerSample := h.Bits * h.NChan
	if h.Complex {
		bitsPerSample *= 2
	}
	return h.PayloadSize() * 8 / bitsPerSample
}

// index orders frames within a recording.
func (h *Header) index() frameKey {
	return frameKey{seconds: h.Seconds, frameNr: h.FrameNr}
}

// Validate checks internal consistency of the header fields.
func (h *Header) Validate() error {
	switch {
	case h.FrameLength <= HeaderSize:
		return fmt.Errorf("%w: frame length %d", ErrInvalidHeader, h.FrameLength)
	case h.FrameLength%8 != 0:
		return fmt.Errorf("%w: frame length %d not a multiple of 8", ErrInvalidHeader, h.FrameLength)
	case h.NChan < 1 || h.NChan&(h.NChan-1) != 0:
		return fmt.Errorf("%w: channel count %d", ErrInvalidHeader, h.NChan)
	case h.Bits != 2 && h.Bits != 4 && h.Bits != 8:
		return fmt.Errorf("%w: unsupported bits per sample %d", ErrInvalidHeader, h.Bits)
	case h.Seconds >= 1<<30:
		return fmt.Errorf("%w: seconds %d out of range", ErrInvalidHeader, h.Seconds)
	case h.FrameNr >= 1<<24:
		return fmt.Errorf("%w: frame number %d out of range", ErrInvalidHeader, h.FrameNr)
	}
	return nil
}

// Encode writes the header into a 32-byte buffer.
func (h *Header) Encode(buf []byte) error {
	if len(buf) < HeaderSize {
		return fmt.Errorf("header buffer too small: %d", len(buf))
	}
	if err := h.Validate(); err != nil {
		return err
	}

	word0 := h.Seconds & 0x3fffffff
	if h.Invalid {
		word0 |= 1 << 31
	}

	word1 := h.FrameNr&0xffffff | uint32(h.RefEpoch&0x3f)<<24

	log2chan := uint32(0)
	for 1<<log2chan < h.NChan {
		log2chan++
	}
	word2 := uint32(h.FrameLength/8)&0xffffff | log2chan<<24

	word3 := uint32(h.StationID) | uint32(h.ThreadID&0x3ff)<<16 | uint32(h.Bits-1)<<26
	if h.Complex {
		word3 |= 1 << 31
	}

	binary.LittleEndian.PutUint32(buf[0:], word0)
	binary.LittleEndian.PutUint32(buf[4:], word1)
	binary.LittleEndian.PutUint32(buf[8:], word2)
	binary.LittleEndian.PutUint32(buf[12:], word3)
	for i := 16; i < HeaderSize; i += 4 {
		binary.LittleEndian.PutUint32(buf[i:], 0)
	}
	return nil
}

// DecodeHeader parses a 32-byte frame header.
func DecodeHeader(buf []byte) (*Header, error) {
	if len(buf) < HeaderSize {
		return nil, fmt.Errorf("%w: %d header bytes", ErrShortFrame, len(buf))
	}

	word0 := binary.LittleEndian.Uint32(buf[0:])
	word1 := binary.LittleEndian.Uint32(buf[4:])
	word2 := binary.LittleEndian.Uint32(buf[8:])
	word3 := binary.LittleEndian.Uint32(buf[12:])

	h := Header{
		Invalid:     word0&(1<<31) != 0,
		Seconds:     word0 & 0x3fffffff,
		FrameNr:     word1 & 0xffffff,
		RefEpoch:    uint8(word1 >> 24 & 0x3f),
		NChan:       1 << (word2 >> 24 & 0x1f),
		FrameLength: int(word2&0xffffff) * 8,
		StationID:   uint16(word3 & 0xffff),
		ThreadID:    uint16(word3 >> 16 & 0x3ff),
		Bits:        int(word3>>26&0x1f) + 1,
		Complex:     word3&(1<<31) != 0,
	}
	if err := h.Validate(); err != nil {
		return nil, err
	}
	return &h, nil
}
