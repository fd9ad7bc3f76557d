package tunnel

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultPollInterval    = 100 * time.Millisecond
	DefaultHintUnit        = 10 * time.Millisecond
	DefaultMinPollInterval = 10 * time.Millisecond
	DefaultMaxPollInterval = 2 * time.Second
)

// hintBackOff waits for as long as the server last asked us to. The first byte of every
// poll response is that hint; zero means the server has no opinion and the fallback is used.
type hintBackOff struct {
	hint     func() byte
	unit     time.Duration
	min      time.Duration
	max      time.Duration
	fallback backoff.BackOff
}

func (h *hintBackOff) NextBackOff() time.Duration {
	hint := h.hint()
	if hint == 0 {
		return h.fallback.NextBackOff()
	}

	delay := time.Duration(hint) * h.unit
	if delay < h.min {
		delay = h.min
	} else if delay > h.max {
		delay = h.max
	}
	return delay
}

func (h *hintBackOff) Reset() {
	h.fallback.Reset()
}
