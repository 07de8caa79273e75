package archive

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Luke-Pratley/scintillometry/internal/stream"
)

// Writer encodes samples into an archive. The header, including the final
// stream length, is written up front; the caller must deliver exactly
// Header.Length samples before closing.
type Writer struct {
	w   *bufio.Writer
	h   Header
	buf []byte

	written int64
}

// NewWriter writes the archive preamble and header to w.
func NewWriter(w io.Writer, h Header) (*Writer, error) {
	if err := h.Validate(); err != nil {
		return nil, err
	}

	head, err := yaml.Marshal(&h)
	if err != nil {
		return nil, fmt.Errorf("encoding header: %w", err)
	}

	bw := bufio.NewWriter(w)
	if _, err = bw.WriteString(Magic); err != nil {
		return nil, fmt.Errorf("writing magic: %w", err)
	}
	if err = bw.WriteByte(Version); err != nil {
		return nil, fmt.Errorf("writing version: %w", err)
	}
	var hlen [4]byte
	binary.LittleEndian.PutUint32(hlen[:], uint32(len(head)))
	if _, err = bw.Write(hlen[:]); err != nil {
		return nil, fmt.Errorf("writing header length: %w", err)
	}
	if _, err = bw.Write(head); err != nil {
		return nil, fmt.Errorf("writing header: %w", err)
	}

	return &Writer{w: bw, h: h}, nil
}

// WriteSamples encodes whole samples into the payload.
func (w *Writer) WriteSamples(p []complex128) error {
	width := w.h.Width()
	n := int64(len(p) / width)
	if w.written+n > w.h.Length {
		return fmt.Errorf("writing %d samples past declared length %d", w.written+n, w.h.Length)
	}

	need := len(p) * w.h.DType.Size()
	if cap(w.buf) < need {
		w.buf = make([]byte, need)
	}
	buf := w.buf[:need]

	switch w.h.DType {
	case Complex128:
		for i, v := range p {
			binary.LittleEndian.PutUint64(buf[i*16:], math.Float64bits(real(v)))
			binary.LittleEndian.PutUint64(buf[i*16+8:], math.Float64bits(imag(v)))
		}
	case Complex64:
		for i, v := range p {
			binary.LittleEndian.PutUint32(buf[i*8:], math.Float32bits(float32(real(v))))
			binary.LittleEndian.PutUint32(buf[i*8+4:], math.Float32bits(float32(imag(v))))
		}
	case Float64:
		for i, v := range p {
			binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(real(v)))
		}
	case Float32:
		for i, v := range p {
			binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(float32(real(v))))
		}
	case Int8:
		for i, v := range p {
			buf[i] = byte(int8(clampF(math.Round(real(v)/w.h.Scale), -127, 127)))
		}
	}

	if _, err := w.w.Write(buf); err != nil {
		return fmt.Errorf("writing payload: %w", err)
	}
	w.written += n
	return nil
}

// Close flushes the payload and verifies the declared length was delivered.
func (w *Writer) Close() error {
	if err := w.w.Flush(); err != nil {
		return fmt.Errorf("flushing archive: %w", err)
	}
	if w.written != w.h.Length {
		return fmt.Errorf("archive holds %d of %d declared samples", w.written, w.h.Length)
	}
	return nil
}

const copyChunk = 8192

// WriteStream archives the remainder of s to a file at path, storing values
// with the given dtype. scale is only used by the Int8 dtype.
func WriteStream(path string, s stream.Stream, dtype DType, scale float64) (err error) {
	if s.Complex() && !dtype.IsComplex() {
		return fmt.Errorf("dtype %q would drop the imaginary parts of a complex stream", dtype)
	}
	shape := s.Shape()
	h := Header{
		SampleRate: s.SampleRate(),
		StartTime:  stream.TimeAt(s, s.Offset()),
		Length:     s.Length() - s.Offset(),
		NChan:      shape.NChan,
		NPol:       shape.NPol,
		Complex:    s.Complex(),
		Frequency:  s.Frequency(),
		Sideband:   s.Sideband(),
		DType:      dtype,
		Scale:      scale,
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating archive: %w", err)
	}
	defer closeWithError(f, &err)

	w, err := NewWriter(f, h)
	if err != nil {
		return err
	}

	buf := make([]complex128, copyChunk*shape.Width())
	for {
		n, rerr := s.Read(buf)
		if n > 0 {
			if err = w.WriteSamples(buf[:n*shape.Width()]); err != nil {
				return err
			}
		}
		if rerr != nil {
			if rerr == io.EOF {
				break
			}
			return fmt.Errorf("reading stream: %w", rerr)
		}
	}
	return w.Close()
}

func closeWithError(c io.Closer, err *error) {
	if cerr := c.Close(); cerr != nil && *err == nil {
		*err = cerr
	}
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
