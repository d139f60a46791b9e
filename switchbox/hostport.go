package switchbox

import (
	"fmt"
	"net"
	"strconv"
)

// PortNumber is a TCP port number. 0 means "unspecified".
type PortNumber uint16

// ParsePortNumber converts a decimal string to a PortNumber. An empty
// string yields port 0 ("unspecified"); anything else must parse as an
// integer in [1, 65535].
func ParsePortNumber(s string) (PortNumber, error) {
	if s == "" {
		return 0, nil
	}
	p, err := strconv.ParseUint(s, 10, 16)
	if err != nil || p == 0 {
		return 0, fmt.Errorf("invalid port number %q", s)
	}
	return PortNumber(p), nil
}

// ParseListenParams splits a spec.md section 6 listen parameter string,
// "[host]:port", into a host and port, applying defaultPort when the
// string's port is empty (e.g. "127.0.0.1:" or ":") and enforcing the
// maximum length. A string with no colon at all is rejected as a missing
// port. Host may be empty (listen on all interfaces) or bracketed IPv6,
// per net.SplitHostPort's rules -- adapted from the teacher's
// ParseHostPort, which hand-rolls the same bracket-aware split that the
// standard library already performs correctly for this core's simpler,
// TCP-only needs.
func ParseListenParams(params string, defaultPort PortNumber) (host string, port PortNumber, err error) {
	if len(params) > MaxListenParamsLen {
		return "", 0, fmt.Errorf("listen parameter string too long (max %d bytes): %q", MaxListenParamsLen, params)
	}

	hostStr, portStr, err := net.SplitHostPort(params)
	if err != nil {
		return "", 0, fmt.Errorf("invalid listen parameter string %q: %w", params, err)
	}

	p, err := ParsePortNumber(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid listen parameter string %q: %w", params, err)
	}
	if p == 0 {
		p = defaultPort
	}
	if p == 0 {
		return "", 0, fmt.Errorf("listen parameter string %q has no port and no default was given", params)
	}

	return hostStr, p, nil
}

// Addr renders a host/port pair back into "host:port" form suitable for
// net.Listen.
func Addr(host string, port PortNumber) string {
	return net.JoinHostPort(host, strconv.Itoa(int(port)))
}
