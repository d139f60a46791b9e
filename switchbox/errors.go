package switchbox

import "errors"

// Error kinds from spec.md section 7. They are handled entirely within the
// worker that observes them; callers of the public API never see them
// directly (matching spec.md's "errors ... are not surfaced to the caller
// of the API" propagation policy). They exist as sentinels so internal
// code and tests can classify a failure with errors.Is.
var (
	// ErrTransportFailed indicates a socket read/write/select returned a
	// terminal error.
	ErrTransportFailed = errors.New("switchbox: transport failed")

	// ErrHandshakeFailed indicates a protocol violation during the
	// handshake codec.
	ErrHandshakeFailed = errors.New("switchbox: handshake failed")

	// ErrAuthFailed indicates an invalid or missing authentication frame.
	ErrAuthFailed = errors.New("switchbox: authentication failed")

	// ErrNoServiceForClient indicates a client peer arrived for a network
	// name with no current service connection.
	ErrNoServiceForClient = errors.New("switchbox: no service for client network name")

	// ErrServiceDisplaced indicates another service connection arrived for
	// the same network name and this one lost.
	ErrServiceDisplaced = errors.New("switchbox: service displaced by newer connection")

	// ErrOutOfMemory indicates allocation failure while accepting a
	// connection.
	ErrOutOfMemory = errors.New("switchbox: out of memory accepting connection")

	// ErrSilence indicates no bytes were received within the silence
	// timeout.
	ErrSilence = errors.New("switchbox: connection silent too long")
)
