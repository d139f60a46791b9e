package switchbox

import "encoding/binary"

// FrameHeader is the fixed-width header that precedes every multiplex
// frame on a service connection's socket (spec.md section 6): a client id
// and either a payload length or the NewConnectionSentinel control code.
//
// Wire layout, little-endian, HdrSize (6) bytes total:
//
//	offset 0: client_id uint16
//	offset 2: length    uint32
//
// This is this implementation's own free choice (spec.md section 9 notes
// the width and endianness are unspecified by the source); see
// SPEC_FULL.md "Open questions" for the rationale. It is grounded
// structurally -- a small fixed struct encoded/decoded independently of the
// payload bytes that follow -- on the multiplexer/demultiplexer split in
// github.com/nabbar/golib/encoding/mux, though that package's own wire
// format (CBOR plus a delimiter byte) is not reused here since spec.md
// mandates a fixed binary header.
type FrameHeader struct {
	ClientID uint16
	Length   uint32
}

// IsNewConnection reports whether this header announces a new client
// rather than carrying a payload length.
func (h FrameHeader) IsNewConnection() bool {
	return h.Length == NewConnectionSentinel
}

// Encode writes the header's wire encoding into buf, which must be at
// least HdrSize bytes long.
func (h FrameHeader) Encode(buf []byte) {
	binary.LittleEndian.PutUint16(buf[0:2], h.ClientID)
	binary.LittleEndian.PutUint32(buf[2:6], h.Length)
}

// DecodeFrameHeader reads a FrameHeader from buf, which must be at least
// HdrSize bytes long.
func DecodeFrameHeader(buf []byte) FrameHeader {
	return FrameHeader{
		ClientID: binary.LittleEndian.Uint16(buf[0:2]),
		Length:   binary.LittleEndian.Uint32(buf[2:6]),
	}
}

// NewConnectionHeader builds the control header announcing that clientID
// now exists, per spec.md section 4.4.1's demultiplex invariant: the first
// frame bearing a given client id is always this header.
func NewConnectionHeader(clientID uint16) FrameHeader {
	return FrameHeader{ClientID: clientID, Length: NewConnectionSentinel}
}
