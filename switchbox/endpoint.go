package switchbox

import (
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/jpillora/backoff"
)

// EndpointStatus describes what happened to an Endpoint's listener, passed
// to the StatusFunc callback spec.md section 4.5 requires the accept loop
// invoke outside of root.Lock.
type EndpointStatus int

const (
	EndpointListening EndpointStatus = iota
	EndpointDropped
)

func (s EndpointStatus) String() string {
	if s == EndpointListening {
		return "listening"
	}
	return "dropped"
}

// StatusFunc is notified of an Endpoint's listening/dropped transitions.
type StatusFunc func(ep *Endpoint, status EndpointStatus, err error)

// Endpoint is one listening socket, generalized from the teacher's
// TCPStubEndpoint (share/tcp_stub_endpoint.go) -- a ShutdownHelper-owning
// wrapper around a net.Listener with a lazily (re)opened listener field
// guarded by its own lock -- to spec.md section 4.5's reopen-with-backoff
// listener: a listen failure does not end the Endpoint, it retries on a
// backoff schedule (github.com/jpillora/backoff, the same collaborator the
// teacher uses for its reconnect loop in share/client.go) until shutdown.
type Endpoint struct {
	ShutdownHelper

	root       *Root
	addr       string
	tlsConfig  *tls.Config
	statusFunc StatusFunc

	listener net.Listener
}

// NewEndpoint creates an Endpoint that will listen on addr. If tlsConfig
// is non-nil, accepted connections are wrapped with tls.Server before the
// handshake runs (spec.md section 4.5's plain-vs-TLS distinction).
func NewEndpoint(logger Logger, root *Root, addr string, tlsConfig *tls.Config, statusFunc StatusFunc) *Endpoint {
	ep := &Endpoint{
		root:       root,
		addr:       addr,
		tlsConfig:  tlsConfig,
		statusFunc: statusFunc,
	}
	ep.InitShutdownHelper(logger.Fork("endpoint(%s)", addr), ep)
	return ep
}

func (ep *Endpoint) String() string {
	return ep.addr
}

// Addr returns the address the Endpoint is currently bound to, or nil if
// it is not currently listening. Useful for tests and operators that bind
// to port 0 and need to learn the chosen port.
func (ep *Endpoint) Addr() net.Addr {
	ep.Lock.Lock()
	defer ep.Lock.Unlock()
	if ep.listener == nil {
		return nil
	}
	return ep.listener.Addr()
}

// HandleOnceShutdown closes the listener, unblocking any in-flight Accept.
func (ep *Endpoint) HandleOnceShutdown(completionErr error) error {
	ep.Lock.Lock()
	l := ep.listener
	ep.listener = nil
	ep.Lock.Unlock()

	var err error
	if l != nil {
		err = l.Close()
	}
	ep.root.RemoveEndpoint(ep)
	if completionErr == nil {
		completionErr = err
	}
	return completionErr
}

// Start begins listening and spawns the accept loop in the background,
// mirroring share/proxy.go's Start/acceptLoop split: Start does the
// synchronous part (open the listener) and reports the first failure
// immediately, then hands off to a goroutine that owns retries from then
// on.
func (ep *Endpoint) Start() error {
	l, err := ep.listen()
	if err != nil {
		return err
	}
	ep.Lock.Lock()
	ep.listener = l
	ep.Lock.Unlock()
	ep.notify(EndpointListening, nil)

	go ep.acceptLoop()
	return nil
}

func (ep *Endpoint) listen() (net.Listener, error) {
	l, err := net.Listen("tcp", ep.addr)
	if err != nil {
		return nil, fmt.Errorf("%s: listen failed: %w", ep.Logger.Prefix(), err)
	}
	return l, nil
}

func (ep *Endpoint) notify(status EndpointStatus, err error) {
	if ep.statusFunc != nil {
		ep.statusFunc(ep, status, err)
	}
}

// acceptLoop accepts connections until the Endpoint is shut down,
// reopening the listener with a backoff delay after a transient accept
// error (spec.md section 4.5), and throttling tight accept-error loops
// (e.g. too many open files) with AcceptThrottleInterval.
func (ep *Endpoint) acceptLoop() {
	b := &backoff.Backoff{Min: ListenRetryInterval, Max: 30 * time.Second}

	for !ep.IsStartedShutdown() {
		ep.Lock.Lock()
		l := ep.listener
		ep.Lock.Unlock()
		if l == nil {
			nl, err := ep.listen()
			if err != nil {
				ep.notify(EndpointDropped, err)
				d := b.Duration()
				ep.WLogf("reopen failed, retrying in %s: %s", d, err)
				if !ep.sleepOrShutdown(d) {
					return
				}
				continue
			}
			b.Reset()
			ep.Lock.Lock()
			ep.listener = nl
			ep.Lock.Unlock()
			ep.notify(EndpointListening, nil)
			l = nl
		}

		conn, err := l.Accept()
		if err != nil {
			if ep.IsStartedShutdown() {
				return
			}
			ep.Lock.Lock()
			ep.listener = nil
			ep.Lock.Unlock()
			_ = l.Close()
			ep.notify(EndpointDropped, err)
			ep.ELogf("accept error, reopening listener: %s", err)
			if !ep.sleepOrShutdown(AcceptThrottleInterval) {
				return
			}
			continue
		}

		isTLS := ep.tlsConfig != nil
		if isTLS {
			conn = tls.Server(conn, ep.tlsConfig)
		}

		c := NewConnection(ep.Logger, ep.root, conn, isTLS)
		ep.root.AddConnection(c)
		go c.Run()
	}
}

func (ep *Endpoint) sleepOrShutdown(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ep.ShutdownStartedChan():
		return false
	}
}
