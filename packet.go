package rudp

import "net"

// Message is a user-submitted payload addressed to a remote endpoint.
type Message struct {
	Addr     net.Addr
	Payload  []byte
	Delivery Delivery
	Stream   uint8
}

// Unreliable builds a message with no delivery or arrangement guarantee.
func Unreliable(addr net.Addr, payload []byte) Message {
	return Message{Addr: addr, Payload: payload, Delivery: DELIVERY_UNRELIABLE, Stream: DEFAULT_STREAM}
}

// UnreliableSequenced builds a message that may be lost but is discarded on
// arrival if a newer message on the same stream was already surfaced. Pass
// DEFAULT_STREAM for the default stream.
func UnreliableSequenced(addr net.Addr, payload []byte, stream uint8) Message {
	return Message{Addr: addr, Payload: payload, Delivery: DELIVERY_UNRELIABLE_SEQUENCED, Stream: stream}
}

// ReliableUnordered builds a message that is retransmitted until
// acknowledged, with no arrival-order constraint.
func ReliableUnordered(addr net.Addr, payload []byte) Message {
	return Message{Addr: addr, Payload: payload, Delivery: DELIVERY_RELIABLE_UNORDERED, Stream: DEFAULT_STREAM}
}

// ReliableOrdered builds a message that always arrives, in send order
// relative to other ordered messages on the same stream.
func ReliableOrdered(addr net.Addr, payload []byte, stream uint8) Message {
	return Message{Addr: addr, Payload: payload, Delivery: DELIVERY_RELIABLE_ORDERED, Stream: stream}
}

// ReliableSequenced builds a message that always arrives unless a newer
// message on the same stream has already been surfaced.
func ReliableSequenced(addr net.Addr, payload []byte, stream uint8) Message {
	return Message{Addr: addr, Payload: payload, Delivery: DELIVERY_RELIABLE_SEQUENCED, Stream: stream}
}

// Event is a socket-level notification delivered through Receiver.
type Event interface {
	event()
}

// EventPacket carries one payload delivered by a remote endpoint.
type EventPacket struct {
	Addr    net.Addr
	Payload []byte
}

// EventConnect signals that traffic has now been observed in both directions
// with the remote endpoint.
type EventConnect struct {
	Addr net.Addr
}

// EventDisconnect signals that an established connection was dropped.
type EventDisconnect struct {
	Addr net.Addr
}

// EventTimeout signals that a connection was dropped before it ever became
// established.
type EventTimeout struct {
	Addr net.Addr
}

func (EventPacket) event()     {}
func (EventConnect) event()    {}
func (EventDisconnect) event() {}
func (EventTimeout) event()    {}

// outgoingPacket describes one datagram, or one fragmented message, before
// header encoding. Reliable packets keep their descriptor in the sent buffer
// so a resend can re-encode with fresh acknowledgement state.
type outgoingPacket struct {
	kind     uint8
	delivery Delivery
	seq      uint16 // reliability sequence; doubles as the fragment group id
	arrSeq   uint16
	stream   uint8
	payload  []byte
}
