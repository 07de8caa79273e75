package vdif

import (
	"fmt"
	"sync"
)

// frameKey orders frames by second and frame number within the second.
type frameKey struct {
	seconds uint32
	frameNr uint32
}

func (k frameKey) less(o frameKey) bool {
	if k.seconds != o.seconds {
		return k.seconds < o.seconds
	}
	return k.frameNr < o.frameNr
}

// IndexedFrame ties a frame header to its byte offset in the recording.
type IndexedFrame struct {
	Header *Header
	Offset int64
}

// Node of the internal linked list.
type node struct {
	frame *IndexedFrame
	next  *node
}

// FrameBuffer is a reorder buffer for frames that arrive out of time order,
// as happens when several recorder threads interleave their output. Frames
// are kept sorted by (second, frame number); duplicates are dropped. When
// the buffer reaches capacity, the oldest flushCount frames are released.
type FrameBuffer struct {
	capacity   int // Maximum number of frames to hold
	flushCount int // Number of frames to release when full

	mu   sync.Mutex
	head *node
	size int
}

// NewFrameBuffer creates a reorder buffer holding up to capacity frames and
// releasing flushCount frames at a time once full.
func NewFrameBuffer(capacity, flushCount int) (*FrameBuffer, error) {
	if capacity <= 0 || flushCount <= 0 || flushCount > capacity {
		return nil, fmt.Errorf("invalid buffer parameters: capacity=%d, flushCount=%d", capacity, flushCount)
	}
	return &FrameBuffer{capacity: capacity, flushCount: flushCount}, nil
}

// Insert adds a frame in time order. Frames carrying a key already present
// are ignored, so re-read or duplicated frames cannot corrupt the sequence.
func (fb *FrameBuffer) Insert(frame *IndexedFrame) error {
	if frame == nil || frame.Header == nil {
		return fmt.Errorf("cannot insert nil frame")
	}

	fb.mu.Lock()
	defer fb.mu.Unlock()

	key := frame.Header.index()

	if fb.head == nil {
		fb.head = &node{frame: frame}
		fb.size++
		return nil
	}

	// Frame belongs before the head.
	if key.less(fb.head.frame.Header.index()) {
		fb.head = &node{frame: frame, next: fb.head}
		fb.size++
		return nil
	}

	current := fb.head
	for current != nil {
		currentKey := current.frame.Header.index()
		if currentKey == key {
			return nil // duplicate
		}
		if current.next == nil || key.less(current.next.frame.Header.index()) {
			current.next = &node{frame: frame, next: current.next}
			fb.size++
			return nil
		}
		current = current.next
	}

	return nil
}

// IsFull returns true once the buffer has reached capacity.
func (fb *FrameBuffer) IsFull() bool {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.size >= fb.capacity
}

// Flush removes and returns the oldest frames. Returns nil when empty.
func (fb *FrameBuffer) Flush() []*IndexedFrame {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	if fb.head == nil || fb.size == 0 {
		return nil
	}

	count := fb.flushCount
	if fb.size > fb.capacity {
		count += fb.size - fb.capacity
	}
	count = min(count, fb.size)

	results := make([]*IndexedFrame, 0, count)
	current := fb.head
	for i := 0; i < count && current != nil; i++ {
		results = append(results, current.frame)
		current = current.next
	}

	fb.head = current
	fb.size -= len(results)
	return results
}

// DrainAll removes and returns all frames in order. Returns nil when empty.
func (fb *FrameBuffer) DrainAll() []*IndexedFrame {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	if fb.head == nil || fb.size == 0 {
		return nil
	}

	results := make([]*IndexedFrame, 0, fb.size)
	for current := fb.head; current != nil; current = current.next {
		results = append(results, current.frame)
	}

	fb.head = nil
	fb.size = 0
	return results
}

// Size returns the number of buffered frames.
func (fb *FrameBuffer) Size() int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.size
}
