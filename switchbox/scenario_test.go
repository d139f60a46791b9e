package switchbox

import (
	"io"
	"net"
	"testing"
	"time"
)

// dialTestService connects to addr, completes the service handshake and
// authentication as a real service peer would, and returns the raw
// net.Conn for the test to speak the mux protocol over.
func dialTestService(t *testing.T, addr net.Addr, networkName string) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("dial service: %s", err)
	}
	conn.SetDeadline(time.Now().Add(2 * time.Second))

	if _, err := conn.Write(EncodeHandshakeFrame(PeerTypeService, networkName)); err != nil {
		t.Fatalf("service handshake write: %s", err)
	}
	ack := make([]byte, 2)
	if _, err := io.ReadFull(conn, ack); err != nil {
		t.Fatalf("service handshake ack: %s", err)
	}

	// relay sends its identity frame first.
	idFrame, err := readAuthFrame(conn)
	if err != nil {
		t.Fatalf("reading relay identity frame: %s", err)
	}
	if len(idFrame) == 0 {
		t.Fatalf("relay identity frame was empty")
	}
	if _, err := conn.Write(encodeAuthFrame([]byte("test-service-credential"))); err != nil {
		t.Fatalf("writing service credential: %s", err)
	}

	conn.SetDeadline(time.Time{})
	return conn
}

// dialTestClient connects to addr and completes the client handshake,
// returning the raw net.Conn for the test to read/write application bytes
// over directly.
func dialTestClient(t *testing.T, addr net.Addr, networkName string) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("dial client: %s", err)
	}
	conn.SetDeadline(time.Now().Add(2 * time.Second))

	if _, err := conn.Write(EncodeHandshakeFrame(PeerTypeClient, networkName)); err != nil {
		t.Fatalf("client handshake write: %s", err)
	}
	ack := make([]byte, 2)
	if _, err := io.ReadFull(conn, ack); err != nil {
		t.Fatalf("client handshake ack: %s", err)
	}

	conn.SetDeadline(time.Time{})
	return conn
}

// readMuxFrame reads one header-plus-payload frame from a service
// connection's socket.
func readMuxFrame(t *testing.T, conn net.Conn) (FrameHeader, []byte) {
	t.Helper()
	hdr := make([]byte, HdrSize)
	if _, err := io.ReadFull(conn, hdr); err != nil {
		t.Fatalf("reading mux frame header: %s", err)
	}
	fh := DecodeFrameHeader(hdr)
	if fh.IsNewConnection() {
		return fh, nil
	}
	payload := make([]byte, fh.Length)
	if _, err := io.ReadFull(conn, payload); err != nil {
		t.Fatalf("reading mux frame payload: %s", err)
	}
	return fh, payload
}

func writeMuxFrame(t *testing.T, conn net.Conn, fh FrameHeader, payload []byte) {
	t.Helper()
	buf := make([]byte, HdrSize+len(payload))
	fh.Encode(buf)
	copy(buf[HdrSize:], payload)
	if _, err := conn.Write(buf); err != nil {
		t.Fatalf("writing mux frame: %s", err)
	}
}

func newTestRootAndEndpoint(t *testing.T) (*Root, *Endpoint) {
	t.Helper()
	logger := NewLogger("test", LogLevelError)
	root, err := NewRoot(logger, "test-seed")
	if err != nil {
		t.Fatalf("NewRoot: %s", err)
	}
	ep := NewEndpoint(logger, root, "127.0.0.1:0", nil, nil)
	root.AddEndpoint(ep)
	if err := ep.Start(); err != nil {
		t.Fatalf("Start: %s", err)
	}
	return root, ep
}

// TestScenarioClientJoinsAndRoundTripsPayload covers spec.md section 8's
// S1/S2: a service connects, a client joins the same network, the service
// sees the client's NEW_CONNECTION announcement, and a payload written by
// the client arrives at the service and an echoed reply arrives back at
// the client.
func TestScenarioClientJoinsAndRoundTripsPayload(t *testing.T) {
	root, ep := newTestRootAndEndpoint(t)
	defer root.Close()

	svc := dialTestService(t, ep.Addr(), "acme-network")
	defer svc.Close()

	cli := dialTestClient(t, ep.Addr(), "acme-network")
	defer cli.Close()

	cli.SetDeadline(time.Now().Add(2 * time.Second))
	if _, err := cli.Write([]byte("ping")); err != nil {
		t.Fatalf("client write: %s", err)
	}

	svc.SetDeadline(time.Now().Add(2 * time.Second))
	fh, _ := readMuxFrame(t, svc)
	if !fh.IsNewConnection() {
		t.Fatalf("expected first frame to announce the new client, got %+v", fh)
	}
	clientID := fh.ClientID

	fh, payload := readMuxFrame(t, svc)
	if fh.ClientID != clientID {
		t.Fatalf("payload frame client id = %d, want %d", fh.ClientID, clientID)
	}
	if string(payload) != "ping" {
		t.Fatalf("service received %q, want %q", payload, "ping")
	}

	writeMuxFrame(t, svc, FrameHeader{ClientID: clientID, Length: uint32(len("pong"))}, []byte("pong"))

	out := make([]byte, 4)
	if _, err := io.ReadFull(cli, out); err != nil {
		t.Fatalf("client read: %s", err)
	}
	if string(out) != "pong" {
		t.Fatalf("client received %q, want %q", out, "pong")
	}
}

// TestScenarioOrphanClientFailsWithNoService covers spec.md section 8's S4:
// a client requesting a network name with no registered service is
// rejected rather than left to hang.
func TestScenarioOrphanClientFailsWithNoService(t *testing.T) {
	root, ep := newTestRootAndEndpoint(t)
	defer root.Close()

	cli := dialTestClient(t, ep.Addr(), "nobody-home")
	defer cli.Close()

	cli.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	_, err := cli.Read(buf)
	if err == nil {
		t.Fatalf("expected connection to be closed for an orphan client")
	}
}

// TestScenarioServiceDisplacement covers spec.md section 8's S3: a second
// service connection claiming the same network name displaces the first.
func TestScenarioServiceDisplacement(t *testing.T) {
	root, ep := newTestRootAndEndpoint(t)
	defer root.Close()

	first := dialTestService(t, ep.Addr(), "acme-network")
	defer first.Close()

	second := dialTestService(t, ep.Addr(), "acme-network")
	defer second.Close()

	first.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	_, err := first.Read(buf)
	if err == nil {
		t.Fatalf("expected displaced service connection to be closed")
	}
}
