package stream

import (
	"fmt"
	"io"
)

// TransformFunc converts one input frame into one output frame. Both slices
// are whole samples in channel-major layout; in must not be retained.
type TransformFunc func(in, out []complex128) error

// TaskConfig describes the framing and output metadata of a Task.
type TaskConfig struct {
	// Info is the metadata of the transformed stream. Its length must be a
	// whole number of output frames.
	Info Info

	// InPerFrame and OutPerFrame give the number of input samples consumed
	// and output samples produced per frame.
	InPerFrame  int
	OutPerFrame int

	// InOffset is added to the input sample position of every frame. Tasks
	// that shift streams in time use it to skip leading samples.
	InOffset int64

	// InStride is the distance in input samples between consecutive frames.
	// It defaults to InPerFrame; a smaller stride makes frames overlap, which
	// tasks that discard frame edges rely on.
	InStride int
}

// Task turns a frame transform into a Stream. It reads InPerFrame samples
// from the input per frame, applies the transform, and serves OutPerFrame
// samples of the result, buffering one frame so that sequential reads of any
// size work. Seeking in output samples is supported; the corresponding input
// frame is re-read as needed.
type Task struct {
	Info
	ih Stream
	fn TransformFunc

	inPerFrame  int
	outPerFrame int
	inStride    int
	inOffset    int64

	inBuf  []complex128
	outBuf []complex128
	frame  int64 // index of the frame in outBuf, -1 when empty
}

// NewTask wraps ih with the given frame transform.
func NewTask(ih Stream, fn TransformFunc, cfg TaskConfig) (*Task, error) {
	if fn == nil {
		return nil, fmt.Errorf("transform function is required")
	}
	if cfg.InPerFrame <= 0 || cfg.OutPerFrame <= 0 {
		return nil, fmt.Errorf("invalid framing: in=%d out=%d", cfg.InPerFrame, cfg.OutPerFrame)
	}
	if cfg.Info.Length()%int64(cfg.OutPerFrame) != 0 {
		return nil, fmt.Errorf("length %d is not a whole number of %d-sample frames", cfg.Info.Length(), cfg.OutPerFrame)
	}
	stride := cfg.InStride
	if stride == 0 {
		stride = cfg.InPerFrame
	}
	if stride < 0 {
		return nil, fmt.Errorf("invalid input stride: %d", stride)
	}
	return &Task{
		Info:        cfg.Info,
		ih:          ih,
		fn:          fn,
		inPerFrame:  cfg.InPerFrame,
		outPerFrame: cfg.OutPerFrame,
		inStride:    stride,
		inOffset:    cfg.InOffset,
		inBuf:       make([]complex128, cfg.InPerFrame*ih.Shape().Width()),
		outBuf:      make([]complex128, cfg.OutPerFrame*cfg.Info.Shape().Width()),
		frame:       -1,
	}, nil
}

// Input returns the wrapped stream.
func (t *Task) Input() Stream { return t.ih }

// Read serves transformed samples at the current offset.
func (t *Task) Read(p []complex128) (int, error) {
	if t.Closed() {
		return 0, ErrClosed
	}
	width := t.Shape().Width()
	want := int64(len(p) / width)
	if want > t.Remaining() {
		want = t.Remaining()
	}
	if want == 0 {
		return 0, io.EOF
	}

	var done int64
	for done < want {
		frame := t.Offset() / int64(t.outPerFrame)
		if err := t.fillFrame(frame); err != nil {
			if done > 0 {
				return int(done), nil
			}
			return 0, err
		}

		pos := int(t.Offset() - frame*int64(t.outPerFrame))
		n := int64(t.outPerFrame - pos)
		if n > want-done {
			n = want - done
		}
		copy(p[done*int64(width):], t.outBuf[pos*width:(pos+int(n))*width])
		t.Advance(n)
		done += n
	}
	return int(done), nil
}

func (t *Task) fillFrame(frame int64) error {
	if frame == t.frame {
		return nil
	}
	inPos := t.inOffset + frame*int64(t.inStride)
	if _, err := t.ih.Seek(inPos, io.SeekStart); err != nil {
		return fmt.Errorf("seeking input to %d: %w", inPos, err)
	}
	if err := ReadFull(t.ih, t.inBuf); err != nil {
		return fmt.Errorf("reading input frame %d: %w", frame, err)
	}
	if err := t.fn(t.inBuf, t.outBuf); err != nil {
		return fmt.Errorf("transforming frame %d: %w", frame, err)
	}
	t.frame = frame
	return nil
}

func (t *Task) Close() error {
	if t.Closed() {
		return nil
	}
	err := t.ih.Close()
	_ = t.Info.Close()
	return err
}
