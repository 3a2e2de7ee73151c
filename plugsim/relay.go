package plugsim

import "sync/atomic"

// Relay stands in for the plug's physical output switch, in place of
// the out-of-scope embedded firmware that would drive real hardware.
// It is read by QueryStatus handling and written by
// TurnOn/TurnOff handling, both inside the single driver goroutine, so
// atomic.Bool is a touch more than strictly needed but keeps On safe
// for an eventual diagnostics goroutine without extra locking.
type Relay struct {
	on atomic.Bool
}

// NewRelay returns a relay starting in the off position.
func NewRelay() *Relay { return &Relay{} }

func (r *Relay) Set(on bool) { r.on.Store(on) }

func (r *Relay) On() bool { return r.on.Load() }
