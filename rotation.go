package fibload

import (
	"fmt"
	"net"
	"strconv"
	"sync/atomic"
)

// MaxPeers is the size of the synthetic loopback peer pool.
const MaxPeers = 250

// Rotation hands out peer addresses round-robin. Spreading outbound calls over
// many loopback addresses avoids running out of ephemeral ports between a
// single pair of endpoints.
type Rotation struct {
	addrs   []string
	counter atomic.Uint64
}

// NewRotation creates a rotation over hosts, each paired with port.
func NewRotation(hosts []string, port int) *Rotation {
	addrs := make([]string, len(hosts))
	for i, h := range hosts {
		addrs[i] = net.JoinHostPort(h, strconv.Itoa(port))
	}
	return &Rotation{addrs: addrs}
}

// LoopbackHosts returns prefix+"1" through prefix+count, e.g. 127.0.0.1..127.0.0.250.
func LoopbackHosts(prefix string, count int) []string {
	hosts := make([]string, count)
	for i := range hosts {
		hosts[i] = fmt.Sprintf("%s%d", prefix, i+1)
	}
	return hosts
}

// NewLoopbackRotation creates the default pool of MaxPeers loopback peers.
func NewLoopbackRotation(port int) *Rotation {
	return NewRotation(LoopbackHosts("127.0.0.", MaxPeers), port)
}

// Next returns the next peer address as host:port. It never blocks.
func (r *Rotation) Next() string {
	i := r.counter.Add(1) - 1
	return r.addrs[i%uint64(len(r.addrs))]
}

// Size returns the number of peers in the pool.
func (r *Rotation) Size() int {
	return len(r.addrs)
}
