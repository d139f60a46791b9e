package switchbox

// RingBuffer is a byte-oriented single-producer-single-consumer queue with
// continuous-span accessors, so a socket read/write can target a
// contiguous slice directly instead of copying through an intermediate
// buffer (spec.md section 4.1). It is not safe for concurrent use by more
// than one producer or more than one consumer at a time; synchronization
// across the producer/consumer boundary is the caller's responsibility
// (the owning Connection's worker goroutine on one side, the Root mutex on
// the other -- see spec.md section 5).
//
// head is the next index to be written; tail is the next index to be
// read. One slot is always kept empty so that head==tail is unambiguously
// "empty" (full is head+1==tail, mod capacity).
type RingBuffer struct {
	buf  []byte
	head int
	tail int
}

// NewRingBuffer creates a RingBuffer whose usable capacity is at least
// size bytes. The underlying allocation is rounded up to the next power of
// two plus one reserved slot, so continuous-span arithmetic can use a
// bitmask instead of a modulo.
func NewRingBuffer(size int) *RingBuffer {
	if size < 1 {
		size = 1
	}
	n := nextPowerOfTwo(size + 1)
	return &RingBuffer{buf: make([]byte, n)}
}

func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

func (r *RingBuffer) mask(i int) int {
	return i & (len(r.buf) - 1)
}

// IsEmpty reports whether the buffer holds no bytes.
func (r *RingBuffer) IsEmpty() bool {
	return r.head == r.tail
}

// IsFull reports whether the buffer has no free space.
func (r *RingBuffer) IsFull() bool {
	return r.mask(r.head+1) == r.tail
}

// Bytes returns the number of bytes currently queued for read.
func (r *RingBuffer) Bytes() int {
	return r.mask(r.head - r.tail)
}

// Space returns the number of free bytes available for write.
func (r *RingBuffer) Space() int {
	return len(r.buf) - 1 - r.Bytes()
}

// Cap returns the buffer's usable capacity (the largest value Bytes() or
// Space() can independently reach).
func (r *RingBuffer) Cap() int {
	return len(r.buf) - 1
}

// ContinuousSpace returns a writable slice starting at head that does not
// cross the wrap boundary. The caller may write up to len(result) bytes
// into it, then must call AdvanceHead with however many bytes it actually
// wrote.
func (r *RingBuffer) ContinuousSpace() []byte {
	space := r.Space()
	until := len(r.buf) - r.head
	if until > space {
		until = space
	}
	return r.buf[r.head : r.head+until]
}

// ContinuousBytes returns a readable slice starting at tail that does not
// cross the wrap boundary. The caller may read up to len(result) bytes
// from it, then must call AdvanceTail with however many bytes it actually
// consumed.
func (r *RingBuffer) ContinuousBytes() []byte {
	avail := r.Bytes()
	until := len(r.buf) - r.tail
	if until > avail {
		until = avail
	}
	return r.buf[r.tail : r.tail+until]
}

// AdvanceHead marks n additional bytes, just written into the span
// returned by ContinuousSpace, as readable. n must not exceed the space
// most recently returned by ContinuousSpace or Space.
func (r *RingBuffer) AdvanceHead(n int) {
	r.head = r.mask(r.head + n)
}

// AdvanceTail marks n bytes, just consumed from the span returned by
// ContinuousBytes, as free. n must not exceed the bytes most recently
// returned by ContinuousBytes or Bytes.
func (r *RingBuffer) AdvanceTail(n int) {
	r.tail = r.mask(r.tail + n)
}

// Write copies p into the buffer, wrapping as needed, and returns how many
// bytes were accepted (less than len(p) if the buffer filled up).
func (r *RingBuffer) Write(p []byte) int {
	written := 0
	for written < len(p) && !r.IsFull() {
		span := r.ContinuousSpace()
		if len(span) == 0 {
			break
		}
		n := copy(span, p[written:])
		r.AdvanceHead(n)
		written += n
	}
	return written
}

// Read copies up to len(p) queued bytes out of the buffer, wrapping as
// needed, and returns how many bytes were copied.
func (r *RingBuffer) Read(p []byte) int {
	n := 0
	for n < len(p) && !r.IsEmpty() {
		span := r.ContinuousBytes()
		if len(span) == 0 {
			break
		}
		c := copy(p[n:], span)
		r.AdvanceTail(c)
		n += c
	}
	return n
}

// MoveFrom moves up to n bytes from src into r, wrap-aware on both sides,
// without an intermediate copy through caller-owned memory. It is used by
// the service Connection worker (spec.md section 4.4.1) to move bytes
// directly between a client's ring buffer and the service's ring buffer
// while holding the Root mutex. It returns the number of bytes actually
// moved, which may be less than n if either buffer's available span is
// smaller.
func (r *RingBuffer) MoveFrom(src *RingBuffer, n int) int {
	moved := 0
	for moved < n {
		srcSpan := src.ContinuousBytes()
		dstSpan := r.ContinuousSpace()
		if len(srcSpan) == 0 || len(dstSpan) == 0 {
			break
		}
		want := n - moved
		if len(srcSpan) < want {
			want = len(srcSpan)
		}
		if len(dstSpan) < want {
			want = len(dstSpan)
		}
		copy(dstSpan, srcSpan[:want])
		src.AdvanceTail(want)
		r.AdvanceHead(want)
		moved += want
	}
	return moved
}
