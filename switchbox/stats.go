package switchbox

import (
	"fmt"
	"sync/atomic"

	"github.com/jpillora/sizestr"
)

// ConnStats holds a Root's aggregate counters, generalized from
// share/connstats.go's open/total connection counter to also carry byte
// counts. The connection counters are maintained by Root.AddConnection and
// Root.RemoveConnection. The byte counters change only through AddSent and
// AddRecv, which the routing loops in this package do not call, so String
// reports zero sent and received bytes unless a caller adds them.
type ConnStats struct {
	count int32
	open  int32
	sent  int64
	recv  int64
}

// New records a new Connection being created and returns its ordinal.
func (c *ConnStats) New() int32 {
	return atomic.AddInt32(&c.count, 1)
}

// Open marks a Connection as currently active.
func (c *ConnStats) Open() {
	atomic.AddInt32(&c.open, 1)
}

// Close marks a Connection as no longer active.
func (c *ConnStats) Close() {
	atomic.AddInt32(&c.open, -1)
}

// AddSent adds n to the sent-bytes counter.
func (c *ConnStats) AddSent(n int) {
	atomic.AddInt64(&c.sent, int64(n))
}

// AddRecv adds n to the received-bytes counter.
func (c *ConnStats) AddRecv(n int) {
	atomic.AddInt64(&c.recv, int64(n))
}

func (c *ConnStats) String() string {
	return fmt.Sprintf("[%d/%d sent %s recv %s]",
		atomic.LoadInt32(&c.open), atomic.LoadInt32(&c.count),
		sizestr.ToString(atomic.LoadInt64(&c.sent)),
		sizestr.ToString(atomic.LoadInt64(&c.recv)))
}
