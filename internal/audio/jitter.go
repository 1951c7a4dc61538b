package audio

import (
	"sync/atomic"
	"unsafe"
)

// pcmStage is the lock-free SPSC byte ring that stages PCM bytes between
// Player.pullLoop (the single writer, draining avllq.Queue.Consume) and
// Player.onRender (the single reader, PortAudio's callback). Queue items
// arrive in bursts at chunk granularity while the render callback wants a
// steady drip at the device's buffer size, so something has to sit between
// the two rates; this is that something.
//
// int64 fields are placed first in the struct so that they are 8-byte
// aligned even on 32-bit ARM7 (struct base is always at least
// pointer-aligned).
type pcmStage struct {
	// written is the cumulative number of bytes pushed (only modified by pullLoop).
	written int64
	// consumed is the cumulative number of bytes pulled (only modified by onRender).
	consumed int64

	buf       []byte
	size      int64
	finished  int32 // 1 once Stop has closed the stage

	// Trailing 8-byte pad. written and consumed are adjacent fields and
	// share a cache line; the pad does not separate them.
	_ [unsafe.Sizeof(int64(0))]byte
}

// newPCMStage allocates a stage holding up to size bytes of PCM audio.
func newPCMStage(size int) *pcmStage {
	return &pcmStage{
		buf:  make([]byte, size),
		size: int64(size),
	}
}

// push appends PCM bytes consumed from the queue. Returns the number of
// bytes actually staged; a short write means the render callback is
// falling behind and the remainder is dropped rather than blocking the
// consumer goroutine.
func (s *pcmStage) push(data []byte) int {
	if atomic.LoadInt32(&s.finished) == 1 {
		return 0
	}

	r := atomic.LoadInt64(&s.consumed)
	w := s.written // pullLoop owns written, no atomic load needed for own writes

	avail := s.size - (w - r)
	n := int64(len(data))
	if n > avail {
		n = avail
	}
	if n == 0 {
		return 0
	}

	pos := w % s.size
	first := min(n, s.size-pos)
	copy(s.buf[pos:pos+first], data[:first])
	if first < n {
		copy(s.buf[0:n-first], data[first:n])
	}

	// Publish the new write position. The store must be atomic so
	// onRender sees a consistent value.
	atomic.StoreInt64(&s.written, w+n)
	return int(n)
}

// pull fills out with staged PCM bytes and reports how many it wrote.
// Called from the PortAudio render callback; any shortfall is the
// caller's cue to pad with silence.
func (s *pcmStage) pull(out []byte) int {
	w := atomic.LoadInt64(&s.written)
	r := s.consumed // onRender owns consumed

	avail := w - r
	n := int64(len(out))
	if n > avail {
		n = avail
	}
	if n == 0 {
		return 0
	}

	pos := r % s.size
	first := min(n, s.size-pos)
	copy(out[:first], s.buf[pos:pos+first])
	if first < n {
		copy(out[first:n], s.buf[0:n-first])
	}

	atomic.StoreInt64(&s.consumed, r+n)
	return int(n)
}

// close marks the stage finished; subsequent pushes are no-ops while
// pulls keep draining whatever is left staged.
func (s *pcmStage) close() {
	atomic.StoreInt32(&s.finished, 1)
}
