package switchbox

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

// authMagic marks the start of an authentication frame, mirroring
// handshakeMagic's role of failing fast on a desynchronized peer.
const authMagic = 0xB1

// maxAuthPayload bounds both halves of the authentication exchange so a
// misbehaving peer cannot make the relay allocate an unbounded buffer.
const maxAuthPayload = 4096

// AuthResult is what the authentication codec (spec.md section 4.3) hands
// back to the Connection worker: the incoming half of the exchange, kept
// opaque since its interpretation belongs to whatever external authority
// issues credentials, not to this routing core.
type AuthResult struct {
	Payload []byte
}

// PerformServiceAuth drives the two half-duplex transfers of spec.md
// section 4.3 for a connection already classified as a network service by
// PerformHandshake: first it sends identity.Fingerprint so the service peer
// can recognize which relay it reconnected to, then it reads back whatever
// opaque credential payload the peer offers. Only service connections
// authenticate (spec.md section 4.2); client connections skip straight to
// routing.
func PerformServiceAuth(conn io.ReadWriter, deadline time.Time, identity *Identity) (AuthResult, error) {
	if dc, ok := conn.(interface{ SetDeadline(time.Time) error }); ok {
		_ = dc.SetDeadline(deadline)
	}

	out := encodeAuthFrame([]byte(identity.Fingerprint))
	if _, err := conn.Write(out); err != nil {
		return AuthResult{}, fmt.Errorf("%w: sending relay identity: %s", ErrAuthFailed, err)
	}

	payload, err := readAuthFrame(conn)
	if err != nil {
		return AuthResult{}, fmt.Errorf("%w: reading peer credentials: %s", ErrAuthFailed, err)
	}

	return AuthResult{Payload: payload}, nil
}

// encodeAuthFrame wraps payload in this implementation's own
// magic-plus-length-prefix framing. Like the handshake codec, the exact
// byte layout is a free choice (spec.md section 9): the source's
// authentication frame format is inherited from an external IO protocol
// this core does not reimplement.
func encodeAuthFrame(payload []byte) []byte {
	buf := make([]byte, 1+4+len(payload))
	buf[0] = authMagic
	binary.LittleEndian.PutUint32(buf[1:5], uint32(len(payload)))
	copy(buf[5:], payload)
	return buf
}

func readAuthFrame(r io.Reader) ([]byte, error) {
	hdr := make([]byte, 5)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return nil, fmt.Errorf("reading auth frame header: %w", err)
	}
	if hdr[0] != authMagic {
		return nil, fmt.Errorf("bad auth frame magic 0x%02x", hdr[0])
	}
	n := binary.LittleEndian.Uint32(hdr[1:5])
	if n > maxAuthPayload {
		return nil, fmt.Errorf("auth frame payload too large (%d bytes)", n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("reading auth frame payload: %w", err)
	}
	return payload, nil
}
