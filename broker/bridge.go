package broker

import (
	"context"
	"time"

	"github.com/google/uuid"

	"plugnet/wire"
)

// Bridge is C6: the HTTP-facing API surface, translating list/query/set
// requests into Commands posted onto the right session's inbox and
// awaiting completion under a wall-clock deadline (§4.6). It never holds
// a Registry lock while waiting on a command — the record reference is
// released as soon as the command is posted.
type Bridge struct {
	reg *Registry
	cfg *Config
	met Metrics
}

// NewBridge wires a Bridge to a live Registry.
func NewBridge(reg *Registry, cfg *Config, met Metrics) *Bridge {
	return &Bridge{reg: reg, cfg: cfg, met: met}
}

// PlugStatus is one row returned by List (§6.2 list()).
type PlugStatus struct {
	ID       uuid.UUID
	Power    wire.PowerState
	LastSeen time.Time
}

// List returns every currently-registered plug's last known state. It
// never blocks on a session (§4.6 "No blocking on sessions").
func (b *Bridge) List() []PlugStatus {
	entries := b.reg.List()
	out := make([]PlugStatus, 0, len(entries))
	for _, e := range entries {
		out = append(out, PlugStatus{ID: e.ID, Power: e.Power, LastSeen: e.LastSeen})
	}
	return out
}

// QueryStatus returns the plug's current (power_state, last_seen). If the
// record's power state is already known, it is returned directly with no
// wire round trip. Otherwise the bridge posts a QueryStatus command and
// waits up to cfg.CommandDeadline for the round trip to land (§4.6
// query_status(), §9's QueryStatus-as-command decision); the 10-second
// window is a ceiling, not a requirement — on timeout the bridge still
// returns whatever the record shows at that point, even if the plug
// never responded. The wire protocol carries no request id to correlate
// a response to this specific call, so a concurrent StatusResp for the
// same plug can also satisfy the wait.
func (b *Bridge) QueryStatus(ctx context.Context, id uuid.UUID) (PlugStatus, error) {
	rec, ok := b.reg.Get(id)
	if !ok {
		return PlugStatus{}, ErrUnknownPlug
	}

	if lastSeen, power := rec.Snapshot(); power != wire.PowerUnknown {
		return PlugStatus{ID: id, Power: power, LastSeen: lastSeen}, nil
	}

	cmd, done := NewCommand(CommandQueryStatus)
	if err := rec.Post(cmd); err != nil {
		return PlugStatus{}, err
	}

	_ = b.await(ctx, done)

	lastSeen, power := rec.Snapshot()
	return PlugStatus{ID: id, Power: power, LastSeen: lastSeen}, nil
}

// SetState asks the plug's live session to switch its relay on or off and
// waits for the matching ack (§4.6 set_state()).
func (b *Bridge) SetState(ctx context.Context, id uuid.UUID, on bool) error {
	rec, ok := b.reg.Get(id)
	if !ok {
		return ErrUnknownPlug
	}

	kind := CommandTurnOff
	if on {
		kind = CommandTurnOn
	}
	cmd, done := NewCommand(kind)
	if err := rec.Post(cmd); err != nil {
		return err
	}

	return b.await(ctx, done)
}

// await blocks until done resolves, ctx is cancelled, or the bridge's
// configured command deadline elapses, whichever comes first.
func (b *Bridge) await(ctx context.Context, done <-chan bool) error {
	deadline, cancel := context.WithTimeout(ctx, b.cfg.CommandDeadline)
	defer cancel()

	select {
	case success := <-done:
		if !success {
			return ErrCommandFailed
		}
		return nil
	case <-deadline.Done():
		return ErrCommandTimeout
	}
}
