package switchbox

import (
	"net"
	"testing"
	"time"
)

func TestPerformHandshakeClassifiesClient(t *testing.T) {
	serverSide, peerSide := net.Pipe()
	defer serverSide.Close()
	defer peerSide.Close()

	go func() {
		peerSide.Write(EncodeHandshakeFrame(PeerTypeClient, "acme-network"))
		ack := make([]byte, 2)
		peerSide.Read(ack)
	}()

	result, err := PerformHandshake(serverSide, time.Now().Add(time.Second), nil)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if result.PeerType != PeerTypeClient {
		t.Fatalf("PeerType = %v, want %v", result.PeerType, PeerTypeClient)
	}
	if result.NetworkName != "acme-network" {
		t.Fatalf("NetworkName = %q, want %q", result.NetworkName, "acme-network")
	}
}

func TestPerformHandshakeRejectsBadMagic(t *testing.T) {
	serverSide, peerSide := net.Pipe()
	defer serverSide.Close()
	defer peerSide.Close()

	go func() {
		frame := EncodeHandshakeFrame(PeerTypeService, "n")
		frame[0] = 0x00
		peerSide.Write(frame)
	}()

	_, err := PerformHandshake(serverSide, time.Now().Add(time.Second), nil)
	if err == nil {
		t.Fatalf("expected error for bad magic")
	}
}

func TestPerformHandshakeRejectsEmptyNetworkName(t *testing.T) {
	serverSide, peerSide := net.Pipe()
	defer serverSide.Close()
	defer peerSide.Close()

	go func() {
		peerSide.Write(EncodeHandshakeFrame(PeerTypeService, ""))
	}()

	_, err := PerformHandshake(serverSide, time.Now().Add(time.Second), nil)
	if err == nil {
		t.Fatalf("expected error for empty network name")
	}
}
