package rudp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStandardHeaderRoundTrip(t *testing.T) {
	in := StandardHeader{
		ProtocolID: PROTOCOL_ID,
		Kind:       KIND_FRAGMENT,
		Delivery:   DELIVERY_RELIABLE_ORDERED,
	}
	data := in.Marshal()
	require.Len(t, data, STANDARD_HEADER_SIZE)

	var out StandardHeader
	require.NoError(t, out.Unmarshal(data))
	assert.Equal(t, in, out)
}

func TestStandardHeaderRejectsProtocolMismatch(t *testing.T) {
	in := StandardHeader{ProtocolID: PROTOCOL_ID + 1, Kind: KIND_PACKET, Delivery: DELIVERY_UNRELIABLE}
	var out StandardHeader
	assert.ErrorIs(t, out.Unmarshal(in.Marshal()), ErrProtocolMismatch)
}

func TestStandardHeaderRejectsUnknownEnums(t *testing.T) {
	kind := StandardHeader{ProtocolID: PROTOCOL_ID, Kind: 9, Delivery: DELIVERY_UNRELIABLE}
	var out StandardHeader
	assert.ErrorIs(t, out.Unmarshal(kind.Marshal()), ErrMalformedHeader)

	delivery := StandardHeader{ProtocolID: PROTOCOL_ID, Kind: KIND_PACKET, Delivery: Delivery(77)}
	assert.ErrorIs(t, out.Unmarshal(delivery.Marshal()), ErrMalformedHeader)
}

func TestHeadersRejectTruncatedInput(t *testing.T) {
	std := StandardHeader{ProtocolID: PROTOCOL_ID, Kind: KIND_PACKET, Delivery: DELIVERY_UNRELIABLE}
	ack := AckHeader{Seq: 1, Ack: 2, AckField: 3}
	arr := ArrangementHeader{Seq: 4, Stream: 5}
	frag := FragmentHeader{GroupSeq: 6, FragmentID: 1, TotalFragments: 3}

	cases := []struct {
		name string
		data []byte
		read func([]byte) error
	}{
		{"standard", std.Marshal(), func(d []byte) error { var h StandardHeader; return h.Unmarshal(d) }},
		{"ack", ack.Marshal(), func(d []byte) error { var h AckHeader; return h.Unmarshal(d) }},
		{"arrangement", arr.Marshal(), func(d []byte) error { var h ArrangementHeader; return h.Unmarshal(d) }},
		{"fragment", frag.Marshal(), func(d []byte) error { var h FragmentHeader; return h.Unmarshal(d) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for cut := 0; cut < len(tc.data); cut++ {
				assert.ErrorIs(t, tc.read(tc.data[:cut]), ErrMalformedHeader, "length %d", cut)
			}
			assert.NoError(t, tc.read(tc.data))
		})
	}
}

func TestAckHeaderRoundTrip(t *testing.T) {
	in := AckHeader{Seq: 65535, Ack: 512, AckField: 0xDEADBEEF}
	var out AckHeader
	require.NoError(t, out.Unmarshal(in.Marshal()))
	assert.Equal(t, in, out)
}

func TestArrangementHeaderRoundTrip(t *testing.T) {
	in := ArrangementHeader{Seq: 40000, Stream: 254}
	var out ArrangementHeader
	require.NoError(t, out.Unmarshal(in.Marshal()))
	assert.Equal(t, in, out)
}

func TestFragmentHeaderRoundTrip(t *testing.T) {
	in := FragmentHeader{GroupSeq: 1000, FragmentID: 4, TotalFragments: 9}
	var out FragmentHeader
	require.NoError(t, out.Unmarshal(in.Marshal()))
	assert.Equal(t, in, out)
}

func TestSequenceNewer(t *testing.T) {
	assert.True(t, sequenceNewer(1, 0))
	assert.True(t, sequenceNewer(32768, 0))
	assert.False(t, sequenceNewer(0, 0))
	assert.False(t, sequenceNewer(0, 1))
	// Wraparound: a small sequence follows a large one.
	assert.True(t, sequenceNewer(0, 65535))
	assert.True(t, sequenceNewer(10, 65530))
	assert.False(t, sequenceNewer(65530, 10))
}
