package rudp

// orderingStream restores send order on one stream. Messages that arrive
// ahead of the expected sequence are buffered; stale arrivals are dropped.
type orderingStream struct {
	nextOut      uint16
	nextExpected uint16
	buffered     map[uint16][]byte
	arrival      []uint16 // buffered sequences, oldest first
}

func newOrderingStream() *orderingStream {
	return &orderingStream{buffered: make(map[uint16][]byte)}
}

// nextSequence assigns the arrangement sequence for an outbound message.
func (s *orderingStream) nextSequence() uint16 {
	n := s.nextOut
	s.nextOut++
	return n
}

// arrive feeds one inbound payload and returns every payload that can now be
// surfaced in order.
func (s *orderingStream) arrive(seq uint16, payload []byte) [][]byte {
	if seq == s.nextExpected {
		out := [][]byte{payload}
		s.nextExpected++
		for {
			next, ok := s.buffered[s.nextExpected]
			if !ok {
				break
			}
			delete(s.buffered, s.nextExpected)
			out = append(out, next)
			s.nextExpected++
		}
		return out
	}
	if sequenceNewer(seq, s.nextExpected) {
		if _, exists := s.buffered[seq]; exists {
			return nil
		}
		if len(s.buffered) >= ORDERING_BUFFER_SIZE {
			s.evictOldest()
		}
		s.buffered[seq] = payload
		s.arrival = append(s.arrival, seq)
		return nil
	}
	// Older than expected: already surfaced or superseded.
	return nil
}

// evictOldest drops the earliest-buffered entry that is still pending. The
// arrival list may hold sequences already drained; those are skipped.
func (s *orderingStream) evictOldest() {
	for len(s.arrival) > 0 {
		seq := s.arrival[0]
		s.arrival = s.arrival[1:]
		if _, ok := s.buffered[seq]; ok {
			delete(s.buffered, seq)
			return
		}
	}
}

// sequencingStream surfaces only strictly-newer messages on one stream.
type sequencingStream struct {
	nextOut uint16
	highest uint16
	seen    bool
}

func newSequencingStream() *sequencingStream {
	return &sequencingStream{}
}

// nextSequence assigns the arrangement sequence for an outbound message.
func (s *sequencingStream) nextSequence() uint16 {
	n := s.nextOut
	s.nextOut++
	return n
}

// arrive reports whether seq is newer than everything surfaced on the stream
// so far, advancing the cursor when it is. Equal sequences are stale.
func (s *sequencingStream) arrive(seq uint16) bool {
	if s.seen && !sequenceNewer(seq, s.highest) {
		return false
	}
	s.highest = seq
	s.seen = true
	return true
}

// arrangementStreams tracks every (kind, stream id) arrangement context of a
// connection. Ordered stream n and sequenced stream n are independent.
type arrangementStreams struct {
	ordering   map[uint8]*orderingStream
	sequencing map[uint8]*sequencingStream
}

func newArrangementStreams() arrangementStreams {
	return arrangementStreams{
		ordering:   make(map[uint8]*orderingStream),
		sequencing: make(map[uint8]*sequencingStream),
	}
}

// ordered returns the ordering context for a stream, creating it on first use.
func (a *arrangementStreams) ordered(stream uint8) *orderingStream {
	s, ok := a.ordering[stream]
	if !ok {
		s = newOrderingStream()
		a.ordering[stream] = s
	}
	return s
}

// sequenced returns the sequencing context for a stream, creating it on first
// use.
func (a *arrangementStreams) sequenced(stream uint8) *sequencingStream {
	s, ok := a.sequencing[stream]
	if !ok {
		s = newSequencingStream()
		a.sequencing[stream] = s
	}
	return s
}
