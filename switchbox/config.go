package switchbox

import "time"

// Timeouts and sizes named in the spec as "a single numeric constant the
// implementer selects". Values are chosen near the source's own defaults.
const (
	// SilenceTimeout is the maximum time a Connection may go without a
	// successful socket read before it is terminated.
	SilenceTimeout = 60 * time.Second

	// ListenRetryInterval is the minimum spacing between successive
	// attempts to (re)open a listening socket after a failure.
	ListenRetryInterval = 2 * time.Second

	// AcceptThrottleInterval is how long an Endpoint's accept loop pauses
	// after an accept error before it reopens its listener.
	AcceptThrottleInterval = 50 * time.Millisecond

	// SelectTimeout is the period of a service Connection's routing-loop
	// ticker: the longest the loop waits for its wake event before it runs
	// another routing pass. The silence check runs on its own ticker.
	SelectTimeout = 50 * time.Millisecond
)

// Wire format constants (spec.md section 6). Both peers of a multiplexed
// service socket must agree on these; since this core defines both ends of
// that wire format, the choice is this implementation's own.
const (
	// ClientIDSize is the width, in bytes, of the client_id field of a
	// multiplex frame header.
	ClientIDSize = 2

	// LengthSize is the width, in bytes, of the length field of a
	// multiplex frame header.
	LengthSize = 4

	// HdrSize is the total width of a multiplex frame header.
	HdrSize = ClientIDSize + LengthSize

	// NewConnectionSentinel is the reserved length value that, in place of
	// a payload byte count, announces that client_id now exists.
	NewConnectionSentinel uint32 = 0xFFFFFFFF
)

// Ring buffer defaults. A power-of-two capacity is recommended (not
// required) so that wrap arithmetic can use a mask instead of a modulo;
// this implementation always rounds up to a power of two.
const (
	// DefaultServiceBufferSize is used for a service Connection's ring
	// buffers, which must hold traffic bound for/from many clients.
	DefaultServiceBufferSize = 64 * 1024

	// DefaultClientBufferSize is used for a client Connection's ring
	// buffers, which only ever hold that one client's traffic.
	DefaultClientBufferSize = 16 * 1024
)

// NetworkNameSize is the maximum length, in bytes, of a cloud network name
// (spec.md glossary: "opaque <=16-byte identifier").
const NetworkNameSize = 16

// MaxListenParamsLen is the maximum length of a listen parameter string
// (spec.md section 6).
const MaxListenParamsLen = 32
