package switchbox

import (
	"fmt"
)

// Root is the relay's top-level registry (spec.md section 4.6): the set of
// live Connections and Endpoints, and the allocator for client ids. It is
// grounded on the teacher's Server type (share/server.go), which plays the
// same role -- a single long-lived object embedding ShutdownHelper that owns
// every session and coordinates shutdown of its children -- generalized
// here from an SSH tunnel server's user/session registry to the switchbox's
// connection/endpoint registry.
//
// Root's mutex (ShutdownHelper.Lock) is the single lock spec.md section 5
// requires around any access to shared routing state: the connection and
// endpoint sets, and a service connection's per-client bookkeeping. Socket
// I/O itself never happens while this lock is held.
type Root struct {
	ShutdownHelper

	identity  *Identity
	connStats ConnStats

	nextClientID uint16
	connections  map[*Connection]struct{}
	endpoints    map[*Endpoint]struct{}

	// services indexes service Connections by their declared cloud network
	// name, so findServiceLocked can resolve a client's requested network in
	// O(1) instead of scanning every Connection (spec.md section 4.6's
	// find_service).
	services map[string]*Connection
}

// NewRoot creates a Root using identity as the relay's own cryptographic
// identity (spec.md section 4.3). If identitySeed is empty a fresh random
// identity is generated.
func NewRoot(logger Logger, identitySeed string) (*Root, error) {
	identity, err := NewIdentity(identitySeed)
	if err != nil {
		return nil, fmt.Errorf("creating root: %w", err)
	}
	r := &Root{
		identity:    identity,
		connections: make(map[*Connection]struct{}),
		endpoints:   make(map[*Endpoint]struct{}),
		services:    make(map[string]*Connection),
	}
	r.InitShutdownHelper(logger.Fork("root"), r)
	return r, nil
}

// Identity returns the relay's own cryptographic identity.
func (r *Root) Identity() *Identity {
	return r.identity
}

// Stats returns the Root's aggregate connection statistics.
func (r *Root) Stats() *ConnStats {
	return &r.connStats
}

// Snapshot returns a point-in-time view of the registry for status
// reporting (switchbox/status.go).
func (r *Root) Snapshot() RootSnapshot {
	r.Lock.Lock()
	defer r.Lock.Unlock()

	snap := RootSnapshot{Stats: r.connStats.String()}
	for name, svc := range r.services {
		snap.Services = append(snap.Services, ServiceSnapshot{
			NetworkName: name,
			ClientCount: len(svc.clients),
		})
	}
	return snap
}

// RootSnapshot is a point-in-time, JSON-friendly view of a Root's registry.
type RootSnapshot struct {
	Stats    string            `json:"stats"`
	Services []ServiceSnapshot `json:"services"`
}

// ServiceSnapshot describes one registered service and how many clients
// are currently linked to it.
type ServiceSnapshot struct {
	NetworkName string `json:"network_name"`
	ClientCount int    `json:"client_count"`
}

// HandleOnceShutdown closes every Endpoint and Connection the Root still
// owns, mirroring share/server.go's shutdown fan-out to its children.
func (r *Root) HandleOnceShutdown(completionErr error) error {
	r.Lock.Lock()
	endpoints := make([]*Endpoint, 0, len(r.endpoints))
	for ep := range r.endpoints {
		endpoints = append(endpoints, ep)
	}
	conns := make([]*Connection, 0, len(r.connections))
	for c := range r.connections {
		conns = append(conns, c)
	}
	r.Lock.Unlock()

	for _, ep := range endpoints {
		ep.Close()
	}
	for _, c := range conns {
		c.Close()
	}
	return completionErr
}

// newClientIDLocked allocates the next client id, wrapping past 0xFFFF back to 1
// (0 is reserved as "no client") and skipping any id currently in use by a
// live Connection, per spec.md section 4.6's monotonic-with-wraparound
// allocator.
//
// Caller must hold r.Lock.
func (r *Root) newClientIDLocked() uint16 {
	for {
		r.nextClientID++
		if r.nextClientID == 0 {
			r.nextClientID = 1
		}
		if !r.clientIDInUseLocked(r.nextClientID) {
			return r.nextClientID
		}
	}
}

func (r *Root) clientIDInUseLocked(id uint16) bool {
	for c := range r.connections {
		if c.clientID == id {
			return true
		}
	}
	return false
}

// AddEndpoint registers ep with the Root, so it is closed when the Root
// shuts down.
func (r *Root) AddEndpoint(ep *Endpoint) {
	r.Lock.Lock()
	r.endpoints[ep] = struct{}{}
	r.Lock.Unlock()
	r.AddShutdownChild(ep)
}

// RemoveEndpoint unregisters ep, called once its listener has permanently
// stopped.
func (r *Root) RemoveEndpoint(ep *Endpoint) {
	r.Lock.Lock()
	delete(r.endpoints, ep)
	r.Lock.Unlock()
}

// AddConnection registers a newly accepted Connection, before its
// handshake has even run, so that a Connection stuck mid-handshake still
// delays Root shutdown the same as any other live Connection.
func (r *Root) AddConnection(c *Connection) {
	r.Lock.Lock()
	r.connections[c] = struct{}{}
	r.Lock.Unlock()
	r.connStats.New()
	r.connStats.Open()
	r.AddShutdownChild(c)
}

// ClassifyConnection assigns a fresh client id to c once its handshake has
// identified it as a client. Service connections are not given a client
// id: they are addressed by network name, not by client id (spec.md
// section 4.4.1).
func (r *Root) ClassifyConnection(c *Connection) {
	if c.isService {
		return
	}
	r.Lock.Lock()
	c.clientID = r.newClientIDLocked()
	r.Lock.Unlock()
}

// RemoveConnection unregisters c, splicing it out of its service's client
// list (if it was linked to one) and out of the services index (if it was
// itself a service), per spec.md section 4.6's unlink operation. Removing a
// service also clears each linked client's back-pointer and starts that
// client's shutdown.
func (r *Root) RemoveConnection(c *Connection) {
	r.Lock.Lock()
	defer r.Lock.Unlock()

	delete(r.connections, c)
	r.connStats.Close()

	if c.isService {
		if r.services[c.networkName] == c {
			delete(r.services, c.networkName)
		}
		for _, client := range c.clients {
			client.service = nil
			client.failWith(ErrNoServiceForClient)
		}
		return
	}

	if svc := c.service; svc != nil {
		svc.unlinkClientLocked(c)
		c.service = nil
	}
}

// findServiceLocked looks up the service Connection currently registered for
// networkName, per spec.md section 4.6's find_service. It returns nil if no
// service is currently registered under that name.
//
// Caller must hold r.Lock.
func (r *Root) findServiceLocked(networkName string) *Connection {
	return r.services[networkName]
}

// RegisterService makes c the service Connection for its declared network
// name, displacing (and returning, so the caller can terminate it outside
// the lock) any previous service already registered under that name --
// spec.md section 4.4.1's "a newer service connection displaces an older
// one claiming the same network name" rule, surfaced as ErrServiceDisplaced
// on the displaced Connection.
func (r *Root) RegisterService(c *Connection) (displaced *Connection) {
	r.Lock.Lock()
	defer r.Lock.Unlock()

	displaced = r.services[c.networkName]
	r.services[c.networkName] = c
	return displaced
}

// LinkClient attaches client to the service currently registered for
// requestedNetwork, returning ErrNoServiceForClient if none exists. The
// client is appended to the service's client list under the Root lock
// (spec.md section 4.6's link_client).
func (r *Root) LinkClient(client *Connection, requestedNetwork string) error {
	r.Lock.Lock()
	defer r.Lock.Unlock()

	svc := r.findServiceLocked(requestedNetwork)
	if svc == nil {
		return ErrNoServiceForClient
	}
	svc.linkClientLocked(client)
	client.service = svc
	return nil
}
