package rudp

import (
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
)

// connection is the per-remote-endpoint protocol state: acknowledgement and
// retransmission accounting, arrangement streams, fragment reassembly, the
// RTT estimate, and the liveness timestamps driving heartbeat and timeout.
// It is owned and driven exclusively by the dispatcher.
type connection struct {
	remote net.Addr
	cfg    *Config
	log    *zap.Logger

	acks      acknowledgementHandler
	rtt       rttEstimator
	streams   arrangementStreams
	fragments fragmentAssembly

	firstSeen   time.Time
	lastSent    time.Time
	lastRecv    time.Time
	sentAny     bool
	recvAny     bool
	established bool
	dropped     bool
}

func newConnection(remote net.Addr, cfg *Config, log *zap.Logger, now time.Time) *connection {
	return &connection{
		remote:    remote,
		cfg:       cfg,
		log:       log,
		rtt:       newRTTEstimator(cfg.RTTSmoothingFactor, cfg.RTTMaxValueMS),
		streams:   newArrangementStreams(),
		fragments: newFragmentAssembly(),
		firstSeen: now,
		lastSent:  now,
		lastRecv:  now,
	}
}

// maybeEstablish detects the unestablished-to-established transition, which
// happens exactly once per incarnation: when traffic has been observed in
// both directions.
func (c *connection) maybeEstablish() []Event {
	if c.established || !c.sentAny || !c.recvAny {
		return nil
	}
	c.established = true
	return []Event{EventConnect{Addr: c.remote}}
}

// enqueueOutbound turns one user message into wire datagrams: fragmentation
// if oversized, arrangement tagging, reliability tagging, header encoding.
func (c *connection) enqueueOutbound(msg Message, now time.Time) ([][]byte, []Event, error) {
	pkt := outgoingPacket{
		kind:     KIND_PACKET,
		delivery: msg.Delivery,
		stream:   msg.Stream,
		payload:  msg.Payload,
	}

	switch {
	case msg.Delivery.ordered():
		pkt.arrSeq = c.streams.ordered(msg.Stream).nextSequence()
	case msg.Delivery.sequenced():
		pkt.arrSeq = c.streams.sequenced(msg.Stream).nextSequence()
	}

	if len(msg.Payload) > int(c.cfg.FragmentSize) {
		if !msg.Delivery.reliable() {
			return nil, nil, fmt.Errorf("%w: %d byte payload exceeds fragment size and is not reliable", ErrFragment, len(msg.Payload))
		}
		if totalFragmentsNeeded(len(msg.Payload), int(c.cfg.FragmentSize)) > MAX_FRAGMENTS {
			return nil, nil, fmt.Errorf("%w: %d byte payload needs more than %d fragments", ErrFragment, len(msg.Payload), MAX_FRAGMENTS)
		}
		pkt.kind = KIND_FRAGMENT
	}

	if msg.Delivery.reliable() {
		pkt.seq = c.acks.nextSequence()
		c.acks.processOutgoing(pkt, now)
		if c.acks.inFlight > int(c.cfg.MaxPacketsInFlight) {
			return nil, c.teardown(), ErrMaxPacketsInFlight
		}
	}

	datagrams := c.encode(&pkt)
	c.lastSent = now
	c.sentAny = true
	return datagrams, c.maybeEstablish(), nil
}

// encode assembles the wire datagrams for pkt. Fragmented messages produce
// one datagram per fragment, with the acknowledgement and arrangement
// headers riding only on fragment 0. Reliable packets always pick up the
// current inbound ack state, so a resend carries fresh acks.
func (c *connection) encode(pkt *outgoingPacket) [][]byte {
	std := StandardHeader{ProtocolID: PROTOCOL_ID, Kind: pkt.kind, Delivery: pkt.delivery}

	if pkt.kind == KIND_FRAGMENT {
		chunks := splitPayload(pkt.payload, int(c.cfg.FragmentSize))
		total := uint8(len(chunks))
		datagrams := make([][]byte, 0, len(chunks))
		for i, chunk := range chunks {
			buf := std.Marshal()
			fh := FragmentHeader{GroupSeq: pkt.seq, FragmentID: uint8(i), TotalFragments: total}
			buf = append(buf, fh.Marshal()...)
			if i == 0 {
				if pkt.delivery.reliable() {
					ah := c.acks.ackHeader(pkt.seq)
					buf = append(buf, ah.Marshal()...)
				}
				if pkt.delivery.arranged() {
					arr := ArrangementHeader{Seq: pkt.arrSeq, Stream: pkt.stream}
					buf = append(buf, arr.Marshal()...)
				}
			}
			buf = append(buf, chunk...)
			datagrams = append(datagrams, buf)
		}
		return datagrams
	}

	buf := std.Marshal()
	if pkt.kind == KIND_PACKET {
		if pkt.delivery.reliable() {
			ah := c.acks.ackHeader(pkt.seq)
			buf = append(buf, ah.Marshal()...)
		}
		if pkt.delivery.arranged() {
			arr := ArrangementHeader{Seq: pkt.arrSeq, Stream: pkt.stream}
			buf = append(buf, arr.Marshal()...)
		}
	}
	buf = append(buf, pkt.payload...)
	return [][]byte{buf}
}

// ingest processes the body of one datagram whose standard header already
// validated. A malformed remainder is dropped without touching reliability,
// fragment or arrangement state; the datagram still counts as inbound
// traffic, so it updates the receive timestamp and can complete
// establishment.
func (c *connection) ingest(hdr StandardHeader, body []byte, now time.Time) []Event {
	c.lastRecv = now
	c.recvAny = true
	events := c.maybeEstablish()

	switch hdr.Kind {
	case KIND_HEARTBEAT:
		return events

	case KIND_PACKET:
		return append(events, c.ingestPacket(hdr, body, now)...)

	case KIND_FRAGMENT:
		return append(events, c.ingestFragment(hdr, body, now)...)
	}
	return events
}

// ingestPacket handles a whole (non-fragmented) packet: reliability
// accounting first, then arrangement, then user delivery.
func (c *connection) ingestPacket(hdr StandardHeader, body []byte, now time.Time) []Event {
	var ah AckHeader
	if hdr.Delivery.reliable() {
		if err := ah.Unmarshal(body); err != nil {
			c.log.Debug("discarding packet", zap.Stringer("remote", c.remote), zap.Error(err))
			return nil
		}
		body = body[ACK_HEADER_SIZE:]
	}

	var arr ArrangementHeader
	if hdr.Delivery.arranged() {
		if err := arr.Unmarshal(body); err != nil {
			c.log.Debug("discarding packet", zap.Stringer("remote", c.remote), zap.Error(err))
			return nil
		}
		body = body[ARRANGEMENT_HEADER_SIZE:]
	}

	if hdr.Delivery.reliable() {
		duplicate, acked := c.acks.processIncoming(ah)
		for _, sendTime := range acked {
			c.rtt.update(now.Sub(sendTime))
		}
		if duplicate {
			return nil
		}
	}
	return c.surface(hdr.Delivery, arr.Seq, arr.Stream, body)
}

// ingestFragment handles one slice of a fragmented message. Fragment 0
// additionally carries the acknowledgement and arrangement headers for the
// whole group.
func (c *connection) ingestFragment(hdr StandardHeader, body []byte, now time.Time) []Event {
	if !hdr.Delivery.reliable() {
		c.log.Debug("discarding unreliable fragment", zap.Stringer("remote", c.remote))
		return nil
	}
	var fh FragmentHeader
	if err := fh.Unmarshal(body); err != nil {
		c.log.Debug("discarding fragment", zap.Stringer("remote", c.remote), zap.Error(err))
		return nil
	}
	rest := body[FRAGMENT_HEADER_SIZE:]

	var arrSeq uint16
	var stream uint8
	hasArrangement := false
	if fh.FragmentID == 0 {
		var ah AckHeader
		if err := ah.Unmarshal(rest); err != nil {
			c.log.Debug("discarding fragment", zap.Stringer("remote", c.remote), zap.Error(err))
			return nil
		}
		rest = rest[ACK_HEADER_SIZE:]
		if hdr.Delivery.arranged() {
			var arr ArrangementHeader
			if err := arr.Unmarshal(rest); err != nil {
				c.log.Debug("discarding fragment", zap.Stringer("remote", c.remote), zap.Error(err))
				return nil
			}
			rest = rest[ARRANGEMENT_HEADER_SIZE:]
			arrSeq, stream = arr.Seq, arr.Stream
			hasArrangement = true
		}
		duplicate, acked := c.acks.processIncoming(ah)
		for _, sendTime := range acked {
			c.rtt.update(now.Sub(sendTime))
		}
		if duplicate {
			return nil
		}
	}

	group, err := c.fragments.insert(fh, rest, now)
	if err != nil {
		c.log.Debug("discarding fragment group", zap.Stringer("remote", c.remote), zap.Error(err))
		return nil
	}
	if hasArrangement {
		group.arrSeq = arrSeq
		group.stream = stream
		group.hasArrangement = true
	}
	if !group.complete() {
		return nil
	}
	payload := group.assemble()
	c.fragments.remove(fh.GroupSeq)
	return c.surface(hdr.Delivery, group.arrSeq, group.stream, payload)
}

// surface runs a reassembled payload through the arrangement stage and emits
// a packet event for everything that comes out the other side.
func (c *connection) surface(delivery Delivery, arrSeq uint16, stream uint8, payload []byte) []Event {
	switch {
	case delivery.ordered():
		var events []Event
		for _, p := range c.streams.ordered(stream).arrive(arrSeq, payload) {
			events = append(events, EventPacket{Addr: c.remote, Payload: p})
		}
		return events
	case delivery.sequenced():
		if c.streams.sequenced(stream).arrive(arrSeq) {
			return []Event{EventPacket{Addr: c.remote, Payload: payload}}
		}
		return nil
	default:
		return []Event{EventPacket{Addr: c.remote, Payload: payload}}
	}
}

// onTick drives time-based behavior: the retransmit sweep, fragment
// eviction, heartbeat, idle disconnect, and unestablished timeout. It
// returns datagrams to send, user events, and whether the connection should
// be removed from the table.
func (c *connection) onTick(now time.Time) ([][]byte, []Event, bool) {
	if c.dropped {
		return nil, nil, true
	}

	var datagrams [][]byte
	for _, slot := range c.acks.sweep(now, resendThreshold(c.rtt.value())) {
		datagrams = append(datagrams, c.encode(&slot.packet)...)
	}
	if len(datagrams) > 0 {
		c.lastSent = now
	}

	if evicted := c.fragments.evict(now, c.cfg.FragmentReassemblyTimeout); evicted > 0 {
		c.log.Debug("evicted incomplete fragment groups",
			zap.Stringer("remote", c.remote), zap.Int("count", evicted))
	}

	if c.established && c.cfg.HeartbeatInterval > 0 && now.Sub(c.lastSent) >= c.cfg.HeartbeatInterval {
		hb := outgoingPacket{kind: KIND_HEARTBEAT, delivery: DELIVERY_UNRELIABLE}
		datagrams = append(datagrams, c.encode(&hb)...)
		c.lastSent = now
	}

	if c.established {
		if now.Sub(c.lastRecv) > c.cfg.IdleConnectionTimeout {
			c.dropped = true
			return datagrams, []Event{EventDisconnect{Addr: c.remote}}, true
		}
	} else if now.Sub(c.firstSeen) > c.cfg.IdleConnectionTimeout {
		c.dropped = true
		return datagrams, []Event{EventTimeout{Addr: c.remote}}, true
	}

	return datagrams, nil, false
}

// teardown drops the connection for exceeding the in-flight cap. The event
// mirrors the lifecycle stage: Disconnect once established, Timeout before.
func (c *connection) teardown() []Event {
	c.dropped = true
	c.log.Warn("dropping connection, too many unacknowledged packets",
		zap.Stringer("remote", c.remote), zap.Int("inFlight", c.acks.inFlight))
	if c.established {
		return []Event{EventDisconnect{Addr: c.remote}}
	}
	return []Event{EventTimeout{Addr: c.remote}}
}
