package rudp

import (
	"encoding/binary"
	"fmt"
)

// StandardHeader begins every datagram and identifies the protocol, the
// packet kind, and the delivery contract of the payload.
type StandardHeader struct {
	ProtocolID uint32
	Kind       uint8
	Delivery   Delivery
}

// Marshal serializes the header to bytes
func (h *StandardHeader) Marshal() []byte {
	buf := make([]byte, STANDARD_HEADER_SIZE, DEFAULT_MTU)
	binary.BigEndian.PutUint32(buf[0:4], h.ProtocolID)
	buf[4] = h.Kind
	buf[5] = uint8(h.Delivery)
	return buf
}

// Unmarshal deserializes the header from bytes
func (h *StandardHeader) Unmarshal(data []byte) error {
	if len(data) < STANDARD_HEADER_SIZE {
		return fmt.Errorf("%w: truncated standard header", ErrMalformedHeader)
	}
	h.ProtocolID = binary.BigEndian.Uint32(data[0:4])
	h.Kind = data[4]
	h.Delivery = Delivery(data[5])
	if h.ProtocolID != PROTOCOL_ID {
		return ErrProtocolMismatch
	}
	if h.Kind > KIND_HEARTBEAT {
		return fmt.Errorf("%w: unknown packet kind %d", ErrMalformedHeader, h.Kind)
	}
	if !h.Delivery.valid() {
		return fmt.Errorf("%w: unknown delivery %d", ErrMalformedHeader, uint8(h.Delivery))
	}
	return nil
}

// AckHeader carries the reliability fields of a reliable packet: its own
// sequence number plus the sender's view of inbound traffic. Bit i of
// AckField is set iff the packet with sequence Ack-(i+1) was received.
type AckHeader struct {
	Seq      uint16
	Ack      uint16
	AckField uint32
}

// Marshal serializes the header to bytes
func (h *AckHeader) Marshal() []byte {
	buf := make([]byte, ACK_HEADER_SIZE)
	binary.BigEndian.PutUint16(buf[0:2], h.Seq)
	binary.BigEndian.PutUint16(buf[2:4], h.Ack)
	binary.BigEndian.PutUint32(buf[4:8], h.AckField)
	return buf
}

// Unmarshal deserializes the header from bytes
func (h *AckHeader) Unmarshal(data []byte) error {
	if len(data) < ACK_HEADER_SIZE {
		return fmt.Errorf("%w: truncated acknowledgement header", ErrMalformedHeader)
	}
	h.Seq = binary.BigEndian.Uint16(data[0:2])
	h.Ack = binary.BigEndian.Uint16(data[2:4])
	h.AckField = binary.BigEndian.Uint32(data[4:8])
	return nil
}

// ArrangementHeader tags an ordered or sequenced packet with its per-stream
// arrangement sequence.
type ArrangementHeader struct {
	Seq    uint16
	Stream uint8
}

// Marshal serializes the header to bytes
func (h *ArrangementHeader) Marshal() []byte {
	buf := make([]byte, ARRANGEMENT_HEADER_SIZE)
	binary.BigEndian.PutUint16(buf[0:2], h.Seq)
	buf[2] = h.Stream
	return buf
}

// Unmarshal deserializes the header from bytes
func (h *ArrangementHeader) Unmarshal(data []byte) error {
	if len(data) < ARRANGEMENT_HEADER_SIZE {
		return fmt.Errorf("%w: truncated arrangement header", ErrMalformedHeader)
	}
	h.Seq = binary.BigEndian.Uint16(data[0:2])
	h.Stream = data[2]
	return nil
}

// FragmentHeader identifies one slice of a fragmented message. All fragments
// of a message share GroupSeq.
type FragmentHeader struct {
	GroupSeq       uint16
	FragmentID     uint8
	TotalFragments uint8
}

// Marshal serializes the header to bytes
func (h *FragmentHeader) Marshal() []byte {
	buf := make([]byte, FRAGMENT_HEADER_SIZE)
	binary.BigEndian.PutUint16(buf[0:2], h.GroupSeq)
	buf[2] = h.FragmentID
	buf[3] = h.TotalFragments
	return buf
}

// Unmarshal deserializes the header from bytes
func (h *FragmentHeader) Unmarshal(data []byte) error {
	if len(data) < FRAGMENT_HEADER_SIZE {
		return fmt.Errorf("%w: truncated fragment header", ErrMalformedHeader)
	}
	h.GroupSeq = binary.BigEndian.Uint16(data[0:2])
	h.FragmentID = data[2]
	h.TotalFragments = data[3]
	return nil
}
