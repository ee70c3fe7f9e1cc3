package segment

import "github.com/MrWong99/voxgate/pkg/audio"

// FrameBuffer is a bounded FIFO of frames. Once full, each push evicts the
// oldest frame. It is not safe for concurrent use.
type FrameBuffer struct {
	frames []audio.Frame
	head   int // index of the oldest frame
	n      int
}

// NewFrameBuffer creates a buffer retaining at most depth frames.
func NewFrameBuffer(depth int) *FrameBuffer {
	if depth < 1 {
		depth = 1
	}
	return &FrameBuffer{frames: make([]audio.Frame, depth)}
}

// Push appends f and reports whether the oldest frame had to be evicted.
func (b *FrameBuffer) Push(f audio.Frame) (evicted bool) {
	depth := len(b.frames)
	if b.n == depth {
		b.frames[b.head] = f
		b.head = (b.head + 1) % depth
		return true
	}
	b.frames[(b.head+b.n)%depth] = f
	b.n++
	return false
}

// Len returns the number of buffered frames.
func (b *FrameBuffer) Len() int { return b.n }

// Drain returns the buffered frames oldest first and empties the buffer.
func (b *FrameBuffer) Drain() []audio.Frame {
	out := make([]audio.Frame, b.n)
	for i := range b.n {
		out[i] = b.frames[(b.head+i)%len(b.frames)]
	}
	b.Reset()
	return out
}

// Reset empties the buffer and releases frame references.
func (b *FrameBuffer) Reset() {
	clear(b.frames)
	b.head = 0
	b.n = 0
}
