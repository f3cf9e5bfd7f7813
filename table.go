package rudp

import "net"

// connectionTable owns every live connection, keyed by remote address, and
// enforces the unestablished-connection cap that keeps a datagram flood from
// exhausting memory.
type connectionTable struct {
	conns         map[string]*connection
	unestablished int
	established   int
}

func newConnectionTable() *connectionTable {
	return &connectionTable{conns: make(map[string]*connection)}
}

// get returns the connection for addr, or nil.
func (t *connectionTable) get(addr net.Addr) *connection {
	return t.conns[addr.String()]
}

// create inserts a new connection into the unestablished bucket. It reports
// false when the cap has been reached; established connections are never
// bounded by it.
func (t *connectionTable) create(c *connection, max uint16) bool {
	if t.unestablished >= int(max) {
		return false
	}
	t.conns[c.remote.String()] = c
	t.unestablished++
	return true
}

// promote moves one connection from the unestablished to the established
// bucket. Called once per EventConnect.
func (t *connectionTable) promote() {
	t.unestablished--
	t.established++
}

// remove deletes c and releases its bucket slot.
func (t *connectionTable) remove(c *connection) {
	delete(t.conns, c.remote.String())
	if c.established {
		t.established--
	} else {
		t.unestablished--
	}
}

// all returns a snapshot of the live connections, so callers can remove
// entries while iterating.
func (t *connectionTable) all() []*connection {
	conns := make([]*connection, 0, len(t.conns))
	for _, c := range t.conns {
		conns = append(conns, c)
	}
	return conns
}
