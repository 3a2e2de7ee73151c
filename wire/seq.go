package wire

// seqTracker implements the ordering check shared by both sides of C2
// (§4.2, §9 "wrap-around seq"). Arithmetic is modulo 2^32 via plain uint32
// overflow, so equality (not ordered comparison) is the correct check.
type seqTracker struct {
	last    uint32
	hasSeen bool
}

// setBaseline records the handshake message's seq with no prior check, as
// required for the first message in a pre-handshake state.
func (s *seqTracker) setBaseline(seq uint32) {
	s.last = seq
	s.hasSeen = true
}

// accept applies the ordering check to a post-handshake message: it must
// equal the last accepted seq plus one (wrapping). On acceptance it
// advances the tracker and returns true; on a gap it returns false and
// leaves the tracker untouched.
func (s *seqTracker) accept(seq uint32) bool {
	if !s.hasSeen {
		s.setBaseline(seq)
		return true
	}
	if seq != s.last+1 {
		return false
	}
	s.last = seq
	return true
}
