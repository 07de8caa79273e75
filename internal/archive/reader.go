package archive

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Luke-Pratley/scintillometry/internal/stream"
)

// maxHeaderSize bounds the YAML block so a corrupt length field cannot
// trigger a huge allocation.
const maxHeaderSize = 1 << 20

// Reader serves an archive file as a sample stream.
type Reader struct {
	stream.Info

	f       *os.File
	h       Header
	dataOff int64
	buf     []byte
}

// Open reads the header of the archive at path and positions the stream at
// its first sample.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}

	r := &Reader{f: f}
	if err = r.readHeader(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return r, nil
}

func (r *Reader) readHeader() error {
	pre := make([]byte, len(Magic)+1+4)
	if _, err := io.ReadFull(r.f, pre); err != nil {
		return fmt.Errorf("%w: %v", ErrBadMagic, err)
	}
	if string(pre[:len(Magic)]) != Magic {
		return ErrBadMagic
	}
	if pre[len(Magic)] != Version {
		return fmt.Errorf("%w: unsupported version %d", ErrBadHeader, pre[len(Magic)])
	}

	hlen := binary.LittleEndian.Uint32(pre[len(Magic)+1:])
	if hlen == 0 || hlen > maxHeaderSize {
		return fmt.Errorf("%w: header of %d bytes", ErrBadHeader, hlen)
	}
	head := make([]byte, hlen)
	if _, err := io.ReadFull(r.f, head); err != nil {
		return fmt.Errorf("%w: reading header: %v", ErrBadHeader, err)
	}
	if err := yaml.Unmarshal(head, &r.h); err != nil {
		return fmt.Errorf("%w: %v", ErrBadHeader, err)
	}
	if err := r.h.Validate(); err != nil {
		return err
	}
	r.dataOff = int64(len(pre)) + int64(hlen)

	info, err := stream.NewInfo(
		r.h.SampleRate,
		r.h.StartTime,
		r.h.Length,
		stream.SampleShape{NChan: r.h.NChan, NPol: r.h.NPol},
		r.h.Complex,
		r.h.Frequency,
		r.h.Sideband,
	)
	if err != nil {
		return err
	}
	r.Info = info
	return nil
}

// Header returns the decoded archive header.
func (r *Reader) Header() Header { return r.h }

// Read decodes samples at the current offset.
func (r *Reader) Read(p []complex128) (int, error) {
	if r.Closed() {
		return 0, stream.ErrClosed
	}
	width := r.Shape().Width()
	want := int64(len(p) / width)
	if want > r.Remaining() {
		want = r.Remaining()
	}
	if want == 0 {
		return 0, io.EOF
	}

	vsize := r.h.DType.Size()
	values := int(want) * width
	need := values * vsize
	if cap(r.buf) < need {
		r.buf = make([]byte, need)
	}
	buf := r.buf[:need]

	pos := r.dataOff + r.Offset()*int64(width*vsize)
	if _, err := r.f.ReadAt(buf, pos); err != nil {
		return 0, fmt.Errorf("reading payload at %d: %w", pos, err)
	}

	switch r.h.DType {
	case Complex128:
		for i := 0; i < values; i++ {
			re := math.Float64frombits(binary.LittleEndian.Uint64(buf[i*16:]))
			im := math.Float64frombits(binary.LittleEndian.Uint64(buf[i*16+8:]))
			p[i] = complex(re, im)
		}
	case Complex64:
		for i := 0; i < values; i++ {
			re := math.Float32frombits(binary.LittleEndian.Uint32(buf[i*8:]))
			im := math.Float32frombits(binary.LittleEndian.Uint32(buf[i*8+4:]))
			p[i] = complex(float64(re), float64(im))
		}
	case Float64:
		for i := 0; i < values; i++ {
			p[i] = complex(math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:])), 0)
		}
	case Float32:
		for i := 0; i < values; i++ {
			p[i] = complex(float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))), 0)
		}
	case Int8:
		for i := 0; i < values; i++ {
			p[i] = complex(float64(int8(buf[i]))*r.h.Scale, 0)
		}
	}

	r.Advance(want)
	return int(want), nil
}

func (r *Reader) Close() error {
	if r.Closed() {
		return nil
	}
	err := r.f.Close()
	_ = r.Info.Close()
	return err
}
