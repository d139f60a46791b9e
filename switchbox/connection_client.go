package switchbox

// runClient drives a client Connection through linking to its requested
// service and then pumping its own socket against its own ring buffers,
// per spec.md section 4.4.2: a client worker never touches another
// Connection's buffers directly -- all cross-connection byte movement
// happens inside the service worker's routing loop
// (connection_service.go's routeOnceLocked), under root.Lock. The client
// worker's only job is moving bytes between its socket and its own two
// ring buffers, and waking the service worker when it does.
func (c *Connection) runClient() {
	if err := c.root.LinkClient(c, c.networkName); err != nil {
		c.DLogErrorf("no service for requested network %q: %s", c.networkName, err)
		c.failWith(err)
		return
	}

	c.setState(StateRoutingClient)
	c.ILogf("client linked to network %q", c.networkName)
	c.service.signalWake()

	go c.clientSocketWriter()
	c.clientSocketReader()
}

// clientSocketReader drains the client socket into c.in, the buffer the
// linked service's routing loop drains client payload from.
func (c *Connection) clientSocketReader() {
	buf := make([]byte, 8*1024)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			c.touchReceive()
			c.root.Lock.Lock()
			c.in.Write(buf[:n])
			svc := c.service
			c.root.Lock.Unlock()
			if svc != nil {
				svc.signalWake()
			}
		}
		if err != nil {
			c.failWith(ErrTransportFailed)
			return
		}
	}
}

// clientSocketWriter flushes c.out -- filled by the linked service's
// routing loop -- to the client socket whenever there is something to
// send.
func (c *Connection) clientSocketWriter() {
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
