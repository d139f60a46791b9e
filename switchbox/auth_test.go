package switchbox

import (
	"net"
	"testing"
	"time"
)

func TestPerformServiceAuthExchangesFrames(t *testing.T) {
	identity, err := NewIdentity("test-seed")
	if err != nil {
		t.Fatalf("NewIdentity: %s", err)
	}

	serverSide, peerSide := net.Pipe()
	defer serverSide.Close()
	defer peerSide.Close()

	peerCreds := []byte("opaque-credential-blob")
	go func() {
		buf := make([]byte, 5)
		net.Conn(peerSide).Read(buf) // magic+length of relay's identity frame header
		n := int(buf[1]) | int(buf[2])<<8 | int(buf[3])<<16 | int(buf[4])<<24
		payload := make([]byte, n)
		peerSide.Read(payload)
		if string(payload) != identity.Fingerprint {
			t.Errorf("peer saw fingerprint %q, want %q", payload, identity.Fingerprint)
		}
		peerSide.Write(encodeAuthFrame(peerCreds))
	}()

	result, err := PerformServiceAuth(serverSide, time.Now().Add(time.Second), identity)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if string(result.Payload) != string(peerCreds) {
		t.Fatalf("Payload = %q, want %q", result.Payload, peerCreds)
	}
}

func TestReadAuthFrameRejectsOversizedPayload(t *testing.T) {
	serverSide, peerSide := net.Pipe()
	defer serverSide.Close()
	defer peerSide.Close()

	go func() {
		hdr := make([]byte, 5)
		hdr[0] = authMagic
		hdr[1] = 0xFF
		hdr[2] = 0xFF
		hdr[3] = 0xFF
		hdr[4] = 0xFF
		peerSide.Write(hdr)
	}()

	serverSide.SetReadDeadline(time.Now().Add(time.Second))
	_, err := readAuthFrame(serverSide)
	if err == nil {
		t.Fatalf("expected error for oversized auth payload")
	}
}
