package tunnel

import "sync/atomic"

// sequence numbers every exchange on a connection. Reads and writes share one counter.
type sequence struct {
	val atomic.Uint64
}

// claim returns the number the next exchange is addressed with and advances the counter
func (s *sequence) claim() uint64 {
	return s.val.Add(1) - 1
}

func (s *sequence) current() uint64 {
	return s.val.Load()
}

func (s *sequence) reset() {
	s.val.Store(0)
}
