package switchbox

import (
	"fmt"
	"io"
	"time"
)

// PeerType classifies a peer's declared role during the handshake
// (spec.md section 4.2).
type PeerType byte

const (
	// PeerTypeService identifies a peer offering an IO network.
	PeerTypeService PeerType = 1

	// PeerTypeClient identifies a peer that wishes to reach a service.
	PeerTypeClient PeerType = 2
)

func (t PeerType) String() string {
	switch t {
	case PeerTypeService:
		return "service"
	case PeerTypeClient:
		return "client"
	default:
		return "unknown"
	}
}

// handshakeMagic marks the start of a handshake frame so a misdialed peer
// (or a byte-order mismatch) fails fast instead of hanging.
const handshakeMagic = 0xB0

// handshakeFrameSize is magic(1) + peerType(1) + netname(NetworkNameSize).
const handshakeFrameSize = 2 + NetworkNameSize

// TrustCertLoader supplies certificate bytes a handshake may want to
// present or compare against. Certificate generation and verification
// themselves are out of this core's scope (spec.md section 1); the loader
// is threaded through only so a caller-supplied collaborator can be
// invoked at the right point in the protocol.
type TrustCertLoader func() ([]byte, error)

// HandshakeResult is what a completed handshake yields to the Connection
// worker (spec.md section 4.2's "expose (a) the peer's declared cloud
// network name and (b) the peer's client type").
type HandshakeResult struct {
	NetworkName string
	PeerType    PeerType
}

// PerformHandshake drives the server side of the two-phase handshake
// (spec.md section 4.2) on a freshly accepted connection. It blocks until
// success, a protocol violation (wrapped in ErrHandshakeFailed), or the
// deadline is reached.
//
// spec.md section 9 notes the source's handshake state machine is
// restartable across non-blocking polls, returning OSAL_PENDING between
// calls. This core instead runs one Connection worker goroutine per
// accepted socket (spec.md section 5's "thread... one per Connection") and
// lets that goroutine block on the read with a deadline: the caller-visible
// contract -- classify the peer, expose its network name, fail clearly -- is
// identical, and Go's blocking-I/O-plus-deadline idiom needs no PENDING
// state to express it.
func PerformHandshake(conn io.ReadWriter, deadline time.Time, loader TrustCertLoader) (HandshakeResult, error) {
	if dc, ok := conn.(interface{ SetReadDeadline(time.Time) error }); ok {
		_ = dc.SetReadDeadline(deadline)
	}

	if loader != nil {
		if _, err := loader(); err != nil {
			return HandshakeResult{}, fmt.Errorf("%w: trust certificate load failed: %s", ErrHandshakeFailed, err)
		}
	}

	buf := make([]byte, handshakeFrameSize)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return HandshakeResult{}, fmt.Errorf("%w: reading handshake frame: %s", ErrHandshakeFailed, err)
	}

	if buf[0] != handshakeMagic {
		return HandshakeResult{}, fmt.Errorf("%w: bad handshake magic 0x%02x", ErrHandshakeFailed, buf[0])
	}

	peerType := PeerType(buf[1])
	if peerType != PeerTypeService && peerType != PeerTypeClient {
		return HandshakeResult{}, fmt.Errorf("%w: unrecognized peer type %d", ErrHandshakeFailed, buf[1])
	}

	name := trimNetworkName(buf[2:handshakeFrameSize])
	if name == "" {
		return HandshakeResult{}, fmt.Errorf("%w: empty cloud network name", ErrHandshakeFailed)
	}

	ack := []byte{handshakeMagic, 1}
	if _, err := conn.Write(ack); err != nil {
		return HandshakeResult{}, fmt.Errorf("%w: writing handshake ack: %s", ErrHandshakeFailed, err)
	}

	return HandshakeResult{NetworkName: name, PeerType: peerType}, nil
}

// EncodeHandshakeFrame builds the client-side wire frame a peer sends to
// announce itself, exported so tests (and any in-process peer simulator)
// can drive PerformHandshake without duplicating the wire format.
func EncodeHandshakeFrame(peerType PeerType, networkName string) []byte {
	buf := make([]byte, handshakeFrameSize)
	buf[0] = handshakeMagic
	buf[1] = byte(peerType)
	n := copy(buf[2:], networkName)
	_ = n
	return buf
}

func trimNetworkName(b []byte) string {
	end := len(b)
	for end > 0 && b[end-1] == 0 {
		end--
	}
	return string(b[:end])
}
