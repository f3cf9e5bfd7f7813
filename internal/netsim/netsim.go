// Package netsim provides a deterministic in-memory datagram network for
// tests. Packets can be dropped through a hook, or held and released in an
// arbitrary order to exercise loss and reordering without real sockets.
package netsim

import (
	"errors"
	"net"
	"sync"
	"time"
)

// Addr identifies an endpoint on the simulated network.
type Addr string

// Network implements net.Addr
func (a Addr) Network() string { return "netsim" }

// String implements net.Addr
func (a Addr) String() string { return string(a) }

type datagram struct {
	from    net.Addr
	to      net.Addr
	payload []byte
}

// Network connects simulated endpoints. By default a packet written on one
// endpoint appears immediately in the destination inbox; Hold buffers
// packets instead so a test can reorder or withhold them.
type Network struct {
	mu      sync.Mutex
	inboxes map[string][]datagram
	held    []datagram
	holding bool

	// Drop, when set, is consulted for every written packet. Returning
	// true discards it.
	Drop func(from, to net.Addr, payload []byte) bool
}

func NewNetwork() *Network {
	return &Network{inboxes: make(map[string][]datagram)}
}

// Endpoint registers a named endpoint and returns its packet connection.
func (n *Network) Endpoint(name string) *Conn {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.inboxes[name]; !ok {
		n.inboxes[name] = nil
	}
	return &Conn{network: n, addr: Addr(name)}
}

// Hold buffers subsequent packets instead of delivering them.
func (n *Network) Hold() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.holding = true
}

// Unhold resumes immediate delivery for packets written after the call.
func (n *Network) Unhold() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.holding = false
}

// Release delivers held packets by index, in the order given. With no
// arguments it delivers everything in write order. Delivered packets leave
// the held list; indices refer to the list before the call.
func (n *Network) Release(order ...int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(order) == 0 {
		for _, d := range n.held {
			n.deliverLocked(d)
		}
		n.held = nil
		return
	}
	taken := make(map[int]bool, len(order))
	for _, i := range order {
		n.deliverLocked(n.held[i])
		taken[i] = true
	}
	var rest []datagram
	for i, d := range n.held {
		if !taken[i] {
			rest = append(rest, d)
		}
	}
	n.held = rest
}

// HeldCount reports how many packets are currently held.
func (n *Network) HeldCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.held)
}

// DiscardHeld drops every held packet.
func (n *Network) DiscardHeld() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.held = nil
}

func (n *Network) deliverLocked(d datagram) {
	key := d.to.String()
	n.inboxes[key] = append(n.inboxes[key], d)
}

func (n *Network) send(d datagram) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Drop != nil && n.Drop(d.from, d.to, d.payload) {
		return
	}
	if n.holding {
		n.held = append(n.held, d)
		return
	}
	n.deliverLocked(d)
}

func (n *Network) receive(addr Addr) (datagram, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	box := n.inboxes[string(addr)]
	if len(box) == 0 {
		return datagram{}, false
	}
	d := box[0]
	n.inboxes[string(addr)] = box[1:]
	return d, true
}

// Conn implements net.PacketConn over the simulated network. Reads never
// block: an empty inbox reports a timeout error, matching a polled socket.
type Conn struct {
	network *Network
	addr    Addr
	closed  bool
}

// ReadFrom implements net.PacketConn
func (c *Conn) ReadFrom(p []byte) (int, net.Addr, error) {
	if c.closed {
		return 0, nil, errors.New("netsim: connection closed")
	}
	d, ok := c.network.receive(c.addr)
	if !ok {
		return 0, nil, &timeoutError{}
	}
	return copy(p, d.payload), d.from, nil
}

// WriteTo implements net.PacketConn
func (c *Conn) WriteTo(p []byte, addr net.Addr) (int, error) {
	if c.closed {
		return 0, errors.New("netsim: connection closed")
	}
	payload := make([]byte, len(p))
	copy(payload, p)
	c.network.send(datagram{from: c.addr, to: addr, payload: payload})
	return len(p), nil
}

// Close implements net.PacketConn
func (c *Conn) Close() error {
	c.closed = true
	return nil
}

// LocalAddr implements net.PacketConn
func (c *Conn) LocalAddr() net.Addr { return c.addr }

// SetDeadline implements net.PacketConn
func (c *Conn) SetDeadline(time.Time) error { return nil }

// SetReadDeadline implements net.PacketConn
func (c *Conn) SetReadDeadline(time.Time) error { return nil }

// SetWriteDeadline implements net.PacketConn
func (c *Conn) SetWriteDeadline(time.Time) error { return nil }

// timeoutError implements net.Error for empty-inbox reads
type timeoutError struct{}

func (e *timeoutError) Error() string   { return "netsim: no packets queued" }
func (e *timeoutError) Timeout() bool   { return true }
func (e *timeoutError) Temporary() bool { return true }
