package switchbox

import "testing"

func TestFrameHeaderEncodeDecodeRoundTrip(t *testing.T) {
	h := FrameHeader{ClientID: 0x1234, Length: 0xABCD}
	buf := make([]byte, HdrSize)
	h.Encode(buf)

	got := DecodeFrameHeader(buf)
	if got != h {
		t.Fatalf("decoded %+v, want %+v", got, h)
	}
}

func TestNewConnectionHeaderIsRecognized(t *testing.T) {
	h := NewConnectionHeader(42)
	if !h.IsNewConnection() {
		t.Fatalf("expected NewConnectionHeader to report IsNewConnection")
	}
	if h.ClientID != 42 {
		t.Fatalf("ClientID = %d, want 42", h.ClientID)
	}

	payload := FrameHeader{ClientID: 42, Length: 10}
	if payload.IsNewConnection() {
		t.Fatalf("ordinary payload header misreported as NewConnection")
	}
}
