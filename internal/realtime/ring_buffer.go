package realtime

import "sync"

// RingBuffer holds the most recent frames the hub has broadcast. A client
// that connects mid-run gets them before the live stream, so it can render
// the output of a CLI process that started before the page loaded.
type RingBuffer struct {
	mu       sync.RWMutex
	buf      [][]byte
	capacity int
	pos      int
	full     bool
}

// NewRingBuffer keeps at least one frame.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &RingBuffer{
		buf:      make([][]byte, capacity),
		capacity: capacity,
	}
}

// Write records an encoded frame. Once capacity is reached the oldest frame
// is overwritten.
func (rb *RingBuffer) Write(frame []byte) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.buf[rb.pos] = frame
	rb.pos = (rb.pos + 1) % rb.capacity
	if rb.pos == 0 {
		rb.full = true
	}
}

// ReadAll returns the retained frames oldest first, in the order they were
// broadcast.
func (rb *RingBuffer) ReadAll() [][]byte {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if !rb.full {
		return append([][]byte(nil), rb.buf[:rb.pos]...)
	}
	replay := make([][]byte, 0, rb.capacity)
	replay = append(replay, rb.buf[rb.pos:]...)
	return append(replay, rb.buf[:rb.pos]...)
}

// Len reports how many frames a new client would be sent.
func (rb *RingBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	if rb.full {
		return rb.capacity
	}
	return rb.pos
}
