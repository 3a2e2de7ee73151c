package plugsim

import "time"

// reconnectBackoff is an exponential back-off sleep utility: start fast,
// back off exponentially up to a steady ceiling, and snap back to fast
// the moment a connection attempt succeeds. The plug uses it to pace
// Dial retries after a lost session (§7 "Socket send error... a terminal
// socket error ends the session").
type reconnectBackoff struct {
	cur    time.Duration
	fast   time.Duration
	steady time.Duration
}

func newReconnectBackoff(fast, steady time.Duration) *reconnectBackoff {
	if fast <= 0 {
		fast = 200 * time.Millisecond
	}
	if steady < fast {
		steady = fast
	}
	return &reconnectBackoff{cur: fast, fast: fast, steady: steady}
}

// Wait sleeps for the current interval, then grows it exponentially
// towards steady.
func (b *reconnectBackoff) Wait() {
	time.Sleep(b.cur)
	if b.cur < b.steady {
		b.cur *= 2
		if b.cur > b.steady {
			b.cur = b.steady
		}
	}
}

// Reset collapses the interval back to the fast value, called once Dial
// succeeds (before any handshake with the broker).
func (b *reconnectBackoff) Reset() {
	b.cur = b.fast
}
