package rudp

import (
	"context"
	"errors"
	"net"
	"time"

	"go.uber.org/zap"
)

// Socket is the public facade: it owns the datagram endpoint, the connection
// table, and the two channels through which users talk to the dispatcher.
// All protocol state is mutated only by the dispatcher tick, so the channels
// are the sole synchronization boundary.
type Socket struct {
	pconn net.PacketConn
	cfg   Config
	log   *zap.Logger

	messages chan Message
	events   chan Event
	table    *connectionTable
	buf      []byte
	closing  bool
}

func newSocket(pconn net.PacketConn, cfg Config) *Socket {
	cfg = cfg.withDefaults()
	return &Socket{
		pconn:    pconn,
		cfg:      cfg,
		log:      cfg.Logger,
		messages: make(chan Message, cfg.SocketEventBufferSize),
		events:   make(chan Event, cfg.SocketEventBufferSize),
		table:    newConnectionTable(),
		buf:      make([]byte, cfg.ReceiveBufferMaxSize),
	}
}

// Sender returns the channel for submitting outbound messages. Closing it
// initiates shutdown: the dispatcher drains remaining work, closes the event
// channel, and exits.
func (s *Socket) Sender() chan<- Message {
	return s.messages
}

// Receiver returns the channel on which delivered packets and connection
// events arrive.
func (s *Socket) Receiver() <-chan Event {
	return s.events
}

// LocalAddr returns the bound datagram endpoint's address.
func (s *Socket) LocalAddr() net.Addr {
	return s.pconn.LocalAddr()
}

// Close releases the underlying datagram endpoint. StartPolling does this
// itself on exit; Close exists for ManualStep users.
func (s *Socket) Close() error {
	return s.pconn.Close()
}

// StartPolling drives the dispatcher until ctx is canceled or the sender
// channel is closed and drained. The event channel is closed on exit.
func (s *Socket) StartPolling(ctx context.Context) error {
	defer close(s.events)
	defer s.pconn.Close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		did := s.step(time.Now())
		if s.closing {
			return nil
		}
		if !did {
			time.Sleep(s.cfg.PollingIdleSleep)
		}
	}
}

// ManualStep runs one dispatcher iteration at the given time. It exists for
// deterministic tests and external scheduling; StartPolling is the
// production driver.
func (s *Socket) ManualStep(now time.Time) error {
	s.step(now)
	return nil
}

// step is one dispatcher iteration: read inbound datagrams, drain queued
// user messages, then tick every connection. It reports whether any work was
// done.
func (s *Socket) step(now time.Time) bool {
	did := s.readPackets(now)
	did = s.drainMessages(now) || did
	s.tickConnections(now)
	return did
}

// readPackets drains up to MaxPacketsPerTick datagrams from the socket. In
// blocking mode the first read of a tick may wait up to ReceiveTimeout;
// every other read polls.
func (s *Socket) readPackets(now time.Time) bool {
	did := false
	for i := 0; i < s.cfg.MaxPacketsPerTick; i++ {
		deadline := now
		if s.cfg.BlockingMode && i == 0 {
			deadline = now.Add(s.cfg.ReceiveTimeout)
		}
		s.pconn.SetReadDeadline(deadline)
		n, addr, err := s.pconn.ReadFrom(s.buf)
		if err != nil {
			var nerr net.Error
			if !errors.As(err, &nerr) || !nerr.Timeout() {
				s.log.Warn("receive failed", zap.Error(err))
			}
			break
		}
		did = true
		data := make([]byte, n)
		copy(data, s.buf[:n])
		s.ingestDatagram(addr, data, now)
	}
	return did
}

// ingestDatagram validates the standard header, resolves the connection
// subject to the unestablished cap, and feeds the remainder to it.
func (s *Socket) ingestDatagram(addr net.Addr, data []byte, now time.Time) {
	var hdr StandardHeader
	if err := hdr.Unmarshal(data); err != nil {
		if !errors.Is(err, ErrProtocolMismatch) {
			s.log.Debug("discarding datagram", zap.Stringer("remote", addr), zap.Error(err))
		}
		return
	}
	conn := s.table.get(addr)
	if conn == nil {
		conn = newConnection(addr, &s.cfg, s.log, now)
		if !s.table.create(conn, s.cfg.MaxUnestablishedConnections) {
			s.log.Warn("rejecting connection, unestablished cap reached",
				zap.Stringer("remote", addr), zap.Error(ErrConnectionRejected))
			return
		}
	}
	s.publish(conn.ingest(hdr, data[STANDARD_HEADER_SIZE:], now))
}

// drainMessages forwards queued user messages into their connections. It
// reports whether any message was processed, and flags shutdown once the
// sender channel is closed.
func (s *Socket) drainMessages(now time.Time) bool {
	did := false
	for {
		select {
		case msg, ok := <-s.messages:
			if !ok {
				s.closing = true
				return did
			}
			did = true
			s.sendMessage(msg, now)
		default:
			return did
		}
	}
}

func (s *Socket) sendMessage(msg Message, now time.Time) {
	if msg.Addr == nil || !msg.Delivery.valid() {
		s.log.Warn("discarding invalid message")
		return
	}
	conn := s.table.get(msg.Addr)
	if conn == nil {
		conn = newConnection(msg.Addr, &s.cfg, s.log, now)
		if !s.table.create(conn, s.cfg.MaxUnestablishedConnections) {
			s.log.Warn("discarding message, unestablished cap reached",
				zap.Stringer("remote", msg.Addr), zap.Error(ErrConnectionRejected))
			return
		}
	}
	datagrams, events, err := conn.enqueueOutbound(msg, now)
	if err != nil {
		s.log.Warn("discarding message", zap.Stringer("remote", msg.Addr), zap.Error(err))
	}
	s.writeAll(conn, datagrams)
	s.publish(events)
	if conn.dropped {
		s.table.remove(conn)
	}
}

// tickConnections drives the timers of every connection and removes the ones
// that dropped.
func (s *Socket) tickConnections(now time.Time) {
	for _, conn := range s.table.all() {
		datagrams, events, remove := conn.onTick(now)
		s.writeAll(conn, datagrams)
		s.publish(events)
		if remove {
			s.table.remove(conn)
		}
	}
}

// writeAll pushes datagrams to the wire. Send failures count as packet loss;
// reliables recover through retransmission.
func (s *Socket) writeAll(conn *connection, datagrams [][]byte) {
	for _, d := range datagrams {
		if _, err := s.pconn.WriteTo(d, conn.remote); err != nil {
			s.log.Warn("send failed", zap.Stringer("remote", conn.remote), zap.Error(err))
		}
	}
}

// publish forwards events to the user channel, keeping the connection-table
// buckets in sync with establishment transitions.
func (s *Socket) publish(events []Event) {
	for _, ev := range events {
		if _, ok := ev.(EventConnect); ok {
			s.table.promote()
		}
		s.events <- ev
	}
}
