package rudp

import (
	"fmt"
	"time"
)

// totalFragmentsNeeded returns how many fragments a payload of the given
// length occupies.
func totalFragmentsNeeded(length, fragmentSize int) int {
	return (length + fragmentSize - 1) / fragmentSize
}

// splitPayload cuts a payload into fragmentSize chunks. The final chunk
// carries the remainder.
func splitPayload(payload []byte, fragmentSize int) [][]byte {
	total := totalFragmentsNeeded(len(payload), fragmentSize)
	chunks := make([][]byte, 0, total)
	for len(payload) > 0 {
		size := len(payload)
		if size > fragmentSize {
			size = fragmentSize
		}
		chunks = append(chunks, payload[:size])
		payload = payload[size:]
	}
	return chunks
}

// fragmentGroup collects the fragments of one inbound message until all have
// arrived. The arrangement fields are copied from fragment 0, which is the
// only fragment carrying them.
type fragmentGroup struct {
	total          uint8
	received       int
	parts          [][]byte
	firstSeen      time.Time
	arrSeq         uint16
	stream         uint8
	hasArrangement bool
}

func (g *fragmentGroup) complete() bool {
	return g.received == int(g.total)
}

// assemble concatenates the fragments in id order.
func (g *fragmentGroup) assemble() []byte {
	size := 0
	for _, p := range g.parts {
		size += len(p)
	}
	payload := make([]byte, 0, size)
	for _, p := range g.parts {
		payload = append(payload, p...)
	}
	return payload
}

// fragmentAssembly is the per-connection reassembly table, keyed by fragment
// group id.
type fragmentAssembly struct {
	groups map[uint16]*fragmentGroup
}

func newFragmentAssembly() fragmentAssembly {
	return fragmentAssembly{groups: make(map[uint16]*fragmentGroup)}
}

// insert stores one fragment, creating the group on first sight. A group
// whose header fields stop agreeing is discarded whole.
func (f *fragmentAssembly) insert(h FragmentHeader, part []byte, now time.Time) (*fragmentGroup, error) {
	group, ok := f.groups[h.GroupSeq]
	if !ok {
		group = &fragmentGroup{
			total:     h.TotalFragments,
			parts:     make([][]byte, h.TotalFragments),
			firstSeen: now,
		}
		f.groups[h.GroupSeq] = group
	}
	if group.total != h.TotalFragments {
		delete(f.groups, h.GroupSeq)
		return nil, fmt.Errorf("%w: total fragment count changed mid-group", ErrMalformedHeader)
	}
	if h.FragmentID >= group.total {
		delete(f.groups, h.GroupSeq)
		return nil, fmt.Errorf("%w: fragment id %d out of range for group of %d", ErrFragment, h.FragmentID, group.total)
	}
	if group.parts[h.FragmentID] == nil {
		group.parts[h.FragmentID] = part
		group.received++
	}
	return group, nil
}

// remove deletes a completed group.
func (f *fragmentAssembly) remove(groupSeq uint16) {
	delete(f.groups, groupSeq)
}

// evict drops groups that have waited longer than timeout for their missing
// fragments, returning how many were dropped.
func (f *fragmentAssembly) evict(now time.Time, timeout time.Duration) int {
	evicted := 0
	for seq, group := range f.groups {
		if now.Sub(group.firstSeen) > timeout {
			delete(f.groups, seq)
			evicted++
		}
	}
	return evicted
}
