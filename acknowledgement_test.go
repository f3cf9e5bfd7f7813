package rudp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextSequenceWrapsOnOverflow(t *testing.T) {
	var a acknowledgementHandler
	a.localSeq = 65535
	assert.Equal(t, uint16(65535), a.nextSequence())
	assert.Equal(t, uint16(0), a.nextSequence())
}

func TestAckBitfieldWithEmptyReceive(t *testing.T) {
	var a acknowledgementHandler
	assert.Equal(t, uint32(0), a.ackBitfield())
}

func TestAckBitfieldWithGaps(t *testing.T) {
	var a acknowledgementHandler
	for _, h := range []AckHeader{{Seq: 0}, {Seq: 1}, {Seq: 3}} {
		a.processIncoming(h)
	}
	require.Equal(t, uint16(3), a.remoteSeq)
	// Relative to 3: seq 2 missing, seq 1 and 0 received.
	assert.Equal(t, uint32(0b110), a.ackBitfield())
}

func TestProcessIncomingAcksSentPackets(t *testing.T) {
	var a acknowledgementHandler
	t0 := time.Unix(100, 0)
	for i := 0; i < 3; i++ {
		seq := a.nextSequence()
		a.processOutgoing(outgoingPacket{kind: KIND_PACKET, delivery: DELIVERY_RELIABLE_UNORDERED, seq: seq}, t0)
	}
	require.Equal(t, 3, a.inFlight)

	// Remote acks seq 2 directly and seq 0 through the bitfield; 1 stays out.
	duplicate, acked := a.processIncoming(AckHeader{Seq: 0, Ack: 2, AckField: 0b10})
	assert.False(t, duplicate)
	assert.Len(t, acked, 2)
	assert.Equal(t, 1, a.inFlight)

	// The surviving entry is seq 1.
	assert.True(t, a.sent[1].inUse)
	assert.False(t, a.sent[0].inUse)
	assert.False(t, a.sent[2].inUse)
}

func TestProcessIncomingFlagsDuplicates(t *testing.T) {
	var a acknowledgementHandler
	duplicate, _ := a.processIncoming(AckHeader{Seq: 9})
	assert.False(t, duplicate)
	duplicate, _ = a.processIncoming(AckHeader{Seq: 9})
	assert.True(t, duplicate)
}

func TestProcessIncomingKeepsHighestRemoteSeq(t *testing.T) {
	var a acknowledgementHandler
	a.processIncoming(AckHeader{Seq: 10})
	a.processIncoming(AckHeader{Seq: 7}) // late arrival
	assert.Equal(t, uint16(10), a.remoteSeq)

	a.processIncoming(AckHeader{Seq: 11})
	assert.Equal(t, uint16(11), a.remoteSeq)
}

func TestRepeatedAckIsNotCountedTwice(t *testing.T) {
	var a acknowledgementHandler
	t0 := time.Unix(100, 0)
	seq := a.nextSequence()
	a.processOutgoing(outgoingPacket{seq: seq}, t0)

	_, acked := a.processIncoming(AckHeader{Seq: 0, Ack: seq})
	require.Len(t, acked, 1)
	_, acked = a.processIncoming(AckHeader{Seq: 1, Ack: seq})
	assert.Empty(t, acked)
	assert.Equal(t, 0, a.inFlight)
}

func TestProcessOutgoingReclaimsOverwrittenSlot(t *testing.T) {
	var a acknowledgementHandler
	t0 := time.Unix(100, 0)

	a.processOutgoing(outgoingPacket{seq: 0}, t0)
	// A full window later the same slot is reused; in-flight must not grow.
	a.processOutgoing(outgoingPacket{seq: SENT_BUFFER_SIZE}, t0)
	assert.Equal(t, 1, a.inFlight)
	assert.Equal(t, uint16(SENT_BUFFER_SIZE), a.sent[0].seq)
}

func TestSweepRetransmitsOnlyOverdueEntries(t *testing.T) {
	var a acknowledgementHandler
	t0 := time.Unix(100, 0)
	a.processOutgoing(outgoingPacket{seq: 0}, t0)
	a.processOutgoing(outgoingPacket{seq: 1}, t0.Add(25*time.Millisecond))

	due := a.sweep(t0.Add(30*time.Millisecond), RESEND_FLOOR)
	require.Len(t, due, 1)
	assert.Equal(t, uint16(0), due[0].seq)
	assert.Equal(t, 1, due[0].retransmits)

	// The send time was refreshed, so an immediate second sweep is empty.
	assert.Empty(t, a.sweep(t0.Add(30*time.Millisecond), RESEND_FLOOR))
}

func TestResendThresholdFloors(t *testing.T) {
	assert.Equal(t, RESEND_FLOOR, resendThreshold(0))
	assert.Equal(t, RESEND_FLOOR, resendThreshold(5*time.Millisecond))
	assert.Equal(t, 80*time.Millisecond, resendThreshold(80*time.Millisecond))
}
