package switchbox

import (
	"bytes"
	"testing"
)

func TestRingBufferWriteReadRoundTrip(t *testing.T) {
	r := NewRingBuffer(8)
	in := []byte("hello")
	n := r.Write(in)
	if n != len(in) {
		t.Fatalf("Write returned %d, want %d", n, len(in))
	}
	out := make([]byte, len(in))
	n = r.Read(out)
	if n != len(in) || !bytes.Equal(out, in) {
		t.Fatalf("Read returned %q, want %q", out[:n], in)
	}
	if !r.IsEmpty() {
		t.Fatalf("expected buffer to be empty after full read")
	}
}

func TestRingBufferWrapsAround(t *testing.T) {
	r := NewRingBuffer(4)
	r.Write([]byte("abcde"))
	drained := make([]byte, 5)
	r.Read(drained)

	r.Write([]byte("cdef"))
	out := make([]byte, r.Bytes())
	n := r.Read(out)
	if string(out[:n]) != "cdef" {
		t.Fatalf("got %q after wraparound, want %q", out[:n], "cdef")
	}
}

func TestRingBufferFullRejectsExcessWrite(t *testing.T) {
	r := NewRingBuffer(4)
	n := r.Write([]byte("abcdefgh"))
	if n != r.Cap() {
		t.Fatalf("Write accepted %d bytes, want exactly capacity %d", n, r.Cap())
	}
	if !r.IsFull() {
		t.Fatalf("expected buffer to report full")
	}
}

func TestRingBufferMoveFrom(t *testing.T) {
	src := NewRingBuffer(16)
	dst := NewRingBuffer(16)
	src.Write([]byte("payload-bytes"))

	moved := dst.MoveFrom(src, 7)
	if moved != 7 {
		t.Fatalf("MoveFrom moved %d bytes, want 7", moved)
	}
	out := make([]byte, 7)
	dst.Read(out)
	if string(out) != "payload" {
		t.Fatalf("MoveFrom produced %q, want %q", out, "payload")
	}
	if src.Bytes() != len("-bytes") {
		t.Fatalf("src has %d bytes left, want %d", src.Bytes(), len("-bytes"))
	}
}

func TestRingBufferMoveFromStopsWhenDestinationFull(t *testing.T) {
	src := NewRingBuffer(64)
	dst := NewRingBuffer(4)
	src.Write([]byte("abcdefgh"))

	moved := dst.MoveFrom(src, 8)
	if moved != dst.Cap() {
		t.Fatalf("MoveFrom moved %d bytes, want capacity-bound %d", moved, dst.Cap())
	}
	if src.Bytes() != 8-dst.Cap() {
		t.Fatalf("src retained %d bytes, want %d", src.Bytes(), 8-dst.Cap())
	}
}
