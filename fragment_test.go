package rudp

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTotalFragmentsNeeded(t *testing.T) {
	assert.Equal(t, 1, totalFragmentsNeeded(1, 1000))
	assert.Equal(t, 1, totalFragmentsNeeded(1000, 1000))
	assert.Equal(t, 2, totalFragmentsNeeded(1001, 1000))
	assert.Equal(t, 4, totalFragmentsNeeded(3500, 1000))
}

func TestSplitPayloadPreservesBytes(t *testing.T) {
	payload := bytes.Repeat([]byte{1, 2, 3, 4, 5, 6, 7}, 500) // 3500 bytes
	chunks := splitPayload(payload, 1000)
	require.Len(t, chunks, 4)
	assert.Len(t, chunks[0], 1000)
	assert.Len(t, chunks[3], 500)
	assert.Equal(t, payload, bytes.Join(chunks, nil))
}

func TestFragmentAssemblyOutOfOrder(t *testing.T) {
	f := newFragmentAssembly()
	now := time.Unix(100, 0)
	payload := bytes.Repeat([]byte("abcdefg"), 500)
	chunks := splitPayload(payload, 1000)

	for _, id := range []uint8{3, 1, 0} {
		group, err := f.insert(FragmentHeader{GroupSeq: 7, FragmentID: id, TotalFragments: 4}, chunks[id], now)
		require.NoError(t, err)
		assert.False(t, group.complete())
	}

	group, err := f.insert(FragmentHeader{GroupSeq: 7, FragmentID: 2, TotalFragments: 4}, chunks[2], now)
	require.NoError(t, err)
	require.True(t, group.complete())
	assert.Equal(t, payload, group.assemble())
}

func TestFragmentAssemblyIgnoresDuplicateSlots(t *testing.T) {
	f := newFragmentAssembly()
	now := time.Unix(100, 0)

	h := FragmentHeader{GroupSeq: 1, FragmentID: 0, TotalFragments: 2}
	group, err := f.insert(h, []byte("first"), now)
	require.NoError(t, err)
	_, err = f.insert(h, []byte("second"), now)
	require.NoError(t, err)

	assert.Equal(t, 1, group.received)
	assert.Equal(t, []byte("first"), group.parts[0])
}

func TestFragmentAssemblyRejectsTotalMismatch(t *testing.T) {
	f := newFragmentAssembly()
	now := time.Unix(100, 0)

	_, err := f.insert(FragmentHeader{GroupSeq: 3, FragmentID: 0, TotalFragments: 4}, []byte("a"), now)
	require.NoError(t, err)

	_, err = f.insert(FragmentHeader{GroupSeq: 3, FragmentID: 1, TotalFragments: 5}, []byte("b"), now)
	assert.ErrorIs(t, err, ErrMalformedHeader)
	assert.Empty(t, f.groups, "mismatch discards the whole group")
}

func TestFragmentAssemblyRejectsFragmentIDOutOfRange(t *testing.T) {
	f := newFragmentAssembly()
	now := time.Unix(100, 0)

	_, err := f.insert(FragmentHeader{GroupSeq: 3, FragmentID: 0, TotalFragments: 2}, []byte("a"), now)
	require.NoError(t, err)

	_, err = f.insert(FragmentHeader{GroupSeq: 3, FragmentID: 2, TotalFragments: 2}, []byte("c"), now)
	assert.ErrorIs(t, err, ErrFragment)
	assert.Empty(t, f.groups)
}

func TestFragmentAssemblyEvictsStaleGroups(t *testing.T) {
	f := newFragmentAssembly()
	start := time.Unix(100, 0)

	_, err := f.insert(FragmentHeader{GroupSeq: 1, FragmentID: 0, TotalFragments: 2}, []byte("a"), start)
	require.NoError(t, err)
	_, err = f.insert(FragmentHeader{GroupSeq: 2, FragmentID: 0, TotalFragments: 2}, []byte("b"), start.Add(4*time.Second))
	require.NoError(t, err)

	assert.Equal(t, 1, f.evict(start.Add(5*time.Second+time.Millisecond), 5*time.Second))
	assert.Nil(t, f.groups[1])
	assert.NotNil(t, f.groups[2])
}
