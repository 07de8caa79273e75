package stream

import (
	"fmt"
	"io"
)

// GenFunc produces samples for a Generator. It fills out (whole samples,
// channel-major) with the data starting at the given sample offset.
type GenFunc func(offset int64, out []complex128) error

// Generator is a Stream backed by a function instead of a file. It is used to
// simulate signals in tests and to feed synthetic data through task chains.
type Generator struct {
	Info
	fn GenFunc
}

// NewGenerator creates a function-backed stream with the given metadata.
func NewGenerator(fn GenFunc, info Info) (*Generator, error) {
	if fn == nil {
		return nil, fmt.Errorf("generator function is required")
	}
	return &Generator{Info: info, fn: fn}, nil
}

// Read fills p with generated samples at the current offset.
func (g *Generator) Read(p []complex128) (int, error) {
	if g.Closed() {
		return 0, ErrClosed
	}
	width := g.Shape().Width()
	want := int64(len(p) / width)
	if want > g.Remaining() {
		want = g.Remaining()
	}
	if want == 0 {
		return 0, io.EOF
	}
	if err := g.fn(g.Offset(), p[:want*int64(width)]); err != nil {
		return 0, fmt.Errorf("generating samples: %w", err)
	}
	g.Advance(want)
	return int(want), nil
}
