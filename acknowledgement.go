package rudp

import "time"

// receivedBuffer remembers which inbound sequence numbers have been seen
// within a sliding window of RECEIVED_BUFFER_SIZE.
type receivedBuffer struct {
	seqs     [RECEIVED_BUFFER_SIZE]uint16
	occupied [RECEIVED_BUFFER_SIZE]bool
}

func (b *receivedBuffer) insert(seq uint16) {
	slot := seq % RECEIVED_BUFFER_SIZE
	b.seqs[slot] = seq
	b.occupied[slot] = true
}

func (b *receivedBuffer) exists(seq uint16) bool {
	slot := seq % RECEIVED_BUFFER_SIZE
	return b.occupied[slot] && b.seqs[slot] == seq
}

// sentPacket retains one reliable packet until it is acknowledged or its
// slot is reclaimed.
type sentPacket struct {
	seq         uint16
	packet      outgoingPacket
	sendTime    time.Time
	retransmits int
	inUse       bool
}

// acknowledgementHandler owns the reliability accounting of one connection:
// outbound sequence numbers, the sent buffer, inbound duplicate detection,
// and the ack bitfield reported back to the remote.
type acknowledgementHandler struct {
	localSeq    uint16
	remoteSeq   uint16
	anyReceived bool
	received    receivedBuffer
	sent        [SENT_BUFFER_SIZE]sentPacket
	inFlight    int
}

// nextSequence hands out the next outbound sequence number, wrapping at the
// uint16 boundary.
func (a *acknowledgementHandler) nextSequence() uint16 {
	n := a.localSeq
	a.localSeq++
	return n
}

// ackHeader returns the reliability fields for an outbound packet: its own
// sequence plus the current view of inbound traffic.
func (a *acknowledgementHandler) ackHeader(seq uint16) AckHeader {
	return AckHeader{Seq: seq, Ack: a.remoteSeq, AckField: a.ackBitfield()}
}

// ackBitfield reports which of the REDUNDANT_ACKS sequence numbers
// immediately preceding the highest received one have been seen.
func (a *acknowledgementHandler) ackBitfield() uint32 {
	if !a.anyReceived {
		return 0
	}
	var field uint32
	for i := uint16(0); i < REDUNDANT_ACKS; i++ {
		if a.received.exists(a.remoteSeq - (i + 1)) {
			field |= 1 << i
		}
	}
	return field
}

// processOutgoing retains pkt in the sent buffer until acknowledged. A slot
// still holding an unacked packet a full window later is reclaimed; that
// packet is beyond rescue anyway.
func (a *acknowledgementHandler) processOutgoing(pkt outgoingPacket, now time.Time) {
	slot := &a.sent[pkt.seq%SENT_BUFFER_SIZE]
	if slot.inUse {
		a.inFlight--
	}
	*slot = sentPacket{seq: pkt.seq, packet: pkt, sendTime: now, inUse: true}
	a.inFlight++
}

// processIncoming digests the ack header of an inbound reliable packet. It
// reports whether the packet is a duplicate and returns the send times of
// every packet it newly acknowledges.
func (a *acknowledgementHandler) processIncoming(h AckHeader) (bool, []time.Time) {
	duplicate := a.received.exists(h.Seq)
	a.received.insert(h.Seq)
	if !a.anyReceived || sequenceNewer(h.Seq, a.remoteSeq) {
		a.remoteSeq = h.Seq
	}
	a.anyReceived = true

	var acked []time.Time
	if t, ok := a.ack(h.Ack); ok {
		acked = append(acked, t)
	}
	field := h.AckField
	for i := uint16(0); i < REDUNDANT_ACKS; i++ {
		if field&1 == 1 {
			if t, ok := a.ack(h.Ack - (i + 1)); ok {
				acked = append(acked, t)
			}
		}
		field >>= 1
	}
	return duplicate, acked
}

// ack frees the sent-buffer entry for seq if it is still retained, returning
// its last send time.
func (a *acknowledgementHandler) ack(seq uint16) (time.Time, bool) {
	slot := &a.sent[seq%SENT_BUFFER_SIZE]
	if !slot.inUse || slot.seq != seq {
		return time.Time{}, false
	}
	slot.inUse = false
	slot.packet = outgoingPacket{}
	a.inFlight--
	return slot.sendTime, true
}
