package switchbox

import (
	"time"
)

// runService drives a service Connection through authentication and then
// the routing loop of spec.md section 4.4.1 until its socket or the Root
// closes it.
func (c *Connection) runService() {
	c.setState(StateAuthenticatingService)
	if _, err := PerformServiceAuth(c.conn, time.Now().Add(SilenceTimeout), c.root.Identity()); err != nil {
		c.DLogErrorf("service authentication failed: %s", err)
		return
	}

	if displaced := c.root.RegisterService(c); displaced != nil {
		displaced.ILogf("displaced by newer service connection for network %q", c.networkNameString())
		displaced.failWith(ErrServiceDisplaced)
	}

	c.setState(StateRoutingService)
	c.ILogf("service %q online", c.networkName)

	go c.serviceSocketReader()
	go c.serviceSocketWriter()

	c.serviceRoutingLoop()
}

// serviceSocketReader continuously drains the service socket into c.in,
// blocking on Read -- the Connection's own goroutine, per spec.md section
// 5's one-worker-per-Connection model. The routing loop (running on a
// second goroutine) only ever touches c.in while holding root.Lock, so a
// plain RingBuffer is safe to share between the two: one producer here,
// one consumer there.
func (c *Connection) serviceSocketReader() {
	buf := make([]byte, 32*1024)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			c.touchReceive()
			c.root.Lock.Lock()
			c.in.Write(buf[:n])
			c.root.Lock.Unlock()
			c.signalWake()
		}
		if err != nil {
			c.failWith(ErrTransportFailed)
			return
		}
	}
}

// serviceSocketWriter flushes c.out to the service socket whenever the
// routing loop has queued bytes for it, outside root.Lock as spec.md
// section 4.4.1 requires ("flush to socket outside the lock").
func (c *Connection) serviceSocketWriter() {
	for {
		select {
		case <-c.wake:
		case <-c.ShutdownStartedChan():
			return
		}

		for {
			c.root.Lock.Lock()
			span := c.out.ContinuousBytes()
			c.root.Lock.Unlock()
			if len(span) == 0 {
				break
			}
			n, err := c.conn.Write(span)
			if n > 0 {
				c.root.Lock.Lock()
				c.out.AdvanceTail(n)
				c.root.Lock.Unlock()
				c.touchSend()
			}
			if err != nil {
				c.failWith(ErrTransportFailed)
				return
			}
			if n < len(span) {
				break
			}
		}
	}
}

// serviceRoutingLoop is the heart of spec.md section 4.4.1: under
// root.Lock, announce any newly linked clients, round-robin client payload
// out to the service, and demultiplex service payload back to clients. It
// wakes whenever a client signals progress or on a short ticker, so a
// client's own socket activity (spec.md section 4.4.2: "client worker
// signals the service worker's wake event") is never stuck behind a full
// poll interval.
func (c *Connection) serviceRoutingLoop() {
	ticker := time.NewTicker(SelectTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-c.ShutdownStartedChan():
			return
		case <-c.wake:
		case <-ticker.C:
		}

		c.root.Lock.Lock()
		progressed := c.routeOnceLocked()
		c.root.Lock.Unlock()

		if progressed {
			c.signalWake()
		}

		if c.State() == StateTerminating {
			return
		}
	}
}

// routeOnceLocked performs one pass of demultiplexing and multiplexing.
// Caller must hold root.Lock.
func (c *Connection) routeOnceLocked() bool {
	progressed := false

	// Demultiplex: service->client. A frame's header is only consumed once,
	// into c.demuxPending/c.demuxClientID/c.demuxRemaining, which survive
	// across calls: if a client's out buffer is full, MoveFrom moves fewer
	// than demuxRemaining bytes and we stop, but the next call resumes the
	// same in-progress frame instead of re-parsing leftover payload bytes as
	// a new header.
	for {
		if !c.demuxPending {
			if c.in.Bytes() < HdrSize {
				break
			}
			hdr := make([]byte, HdrSize)
			peekRingBuffer(c.in, hdr)
			fh := DecodeFrameHeader(hdr)
			if fh.IsNewConnection() {
				// spec.md section 4.4.1: a service connection never
				// originates a NEW_CONNECTION frame; seeing the sentinel
				// length on this side of the wire is a protocol violation,
				// treated as a terminal fault.
				c.failWith(ErrTransportFailed)
				return progressed
			}
			discardRingBuffer(c.in, HdrSize)
			c.demuxPending = true
			c.demuxClientID = fh.ClientID
			c.demuxRemaining = int(fh.Length)
		}

		if c.demuxRemaining == 0 {
			c.demuxPending = false
			continue
		}
		if c.in.Bytes() == 0 {
			break // payload not fully arrived yet
		}

		client, ok := c.clients[c.demuxClientID]
		if !ok {
			// spec.md section 4.4.1: unknown client id, discard payload.
			n := discardRingBuffer(c.in, c.demuxRemaining)
			c.demuxRemaining -= n
			if c.demuxRemaining == 0 {
				c.demuxPending = false
			}
			if n == 0 {
				break
			}
			continue
		}

		moved := client.out.MoveFrom(c.in, c.demuxRemaining)
		if moved > 0 {
			progressed = true
			client.signalWake()
		}
		c.demuxRemaining -= moved
		if c.demuxRemaining == 0 {
			c.demuxPending = false
		}
		if moved == 0 {
			// client backpressure: stop demuxing until it drains.
			break
		}
	}

	// Multiplex: client->service, round robin over clientOrder so no
	// single busy client starves the others. The cursor advances by one
	// before every scan (spec.md section 4.4's tie-break rule) so a client
	// that starved the rest of the list last pass isn't served first again.
	if n := len(c.clientOrder); n > 0 {
		c.rrCursor = (c.rrCursor + 1) % n
		for i := 0; i < n; i++ {
			id := c.clientOrder[(c.rrCursor+i)%n]
			client, ok := c.clients[id]
			if !ok {
				continue
			}
			if !client.announced {
				if c.out.Space() < HdrSize {
					break
				}
				hdrBuf := make([]byte, HdrSize)
				NewConnectionHeader(id).Encode(hdrBuf)
				c.out.Write(hdrBuf)
				client.announced = true
				progressed = true
			}

			m := client.in.Bytes()
			if m == 0 {
				continue
			}
			if c.out.Space() < HdrSize+1 {
				break
			}
			if m > c.out.Space()-HdrSize {
				m = c.out.Space() - HdrSize
			}
			if m == 0 {
				continue
			}
			hdrBuf := make([]byte, HdrSize)
			FrameHeader{ClientID: id, Length: uint32(m)}.Encode(hdrBuf)
			c.out.Write(hdrBuf)
			moved := c.out.MoveFrom(client.in, m)
			progressed = progressed || moved > 0
		}
	}

	return progressed
}

// failWith marks the connection terminating and begins an asynchronous
// shutdown, attributing completion to err (spec.md section 7's error
// kinds).
func (c *Connection) failWith(err error) {
	c.setState(StateTerminating)
	c.StartShutdown(err)
}

// peekRingBuffer copies the next len(dst) queued bytes without consuming
// them, used to parse a frame header before committing to discarding it.
func peekRingBuffer(r *RingBuffer, dst []byte) {
	cursor := &RingBuffer{buf: r.buf, head: r.head, tail: r.tail}
	cursor.Read(dst)
}

// discardRingBuffer drops up to n queued bytes without copying them
// anywhere, stopping early if fewer than n are currently available, and
// reports how many bytes it actually discarded.
func discardRingBuffer(r *RingBuffer, n int) int {
	discarded := 0
	for discarded < n {
		span := r.ContinuousBytes()
		if len(span) == 0 {
			return discarded
		}
		if len(span) > n-discarded {
			span = span[:n-discarded]
		}
		r.AdvanceTail(len(span))
		discarded += len(span)
	}
	return discarded
}
