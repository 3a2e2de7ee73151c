package broker

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"plugnet/wire"
)

// ErrDuplicatePlug is returned by Registry.Insert when a PlugId already
// has a live session. §4.4 documents two possible policies for a
// duplicate Conn from a second address; this repo implements the safe
// default (a): reject the new session, leave the existing one alone
// (see DESIGN.md for the decision record).
var ErrDuplicatePlug = errors.New("broker: plug already has a live session")

// ErrInboxClosed is returned by PlugRecord.Post once the owning driver has
// exited and the record has been removed from the Registry — the command
// has nowhere left to go, so callers should treat it as an immediate
// failure rather than waiting out a deadline nobody will ever resolve.
var ErrInboxClosed = errors.New("broker: plug session closed")

// snapshot is the mutable, frequently-read part of a PlugRecord. It is
// swapped atomically so readers (HTTP handlers) never block on the
// owning driver and the owning driver never blocks on a reader.
type snapshot struct {
	lastSeen time.Time
	power    wire.PowerState
}

// PlugRecord is C4's registry entry (§3 "Plug record"). Only the session
// driver that created it may mutate PowerState/LastSeen; any number of
// readers may observe it atomically via Snapshot.
type PlugRecord struct {
	ID     uuid.UUID
	state  atomic.Pointer[snapshot]
	inbox  chan *Command
	closed atomic.Bool
}

func newPlugRecord(id uuid.UUID, inboxCap int) *PlugRecord {
	r := &PlugRecord{ID: id, inbox: make(chan *Command, inboxCap)}
	r.state.Store(&snapshot{lastSeen: time.Now(), power: wire.PowerUnknown})
	return r
}

// Snapshot returns the record's current last-seen time and power state.
func (r *PlugRecord) Snapshot() (time.Time, wire.PowerState) {
	s := r.state.Load()
	return s.lastSeen, s.power
}

// Touch updates last-seen to now, preserving the current power state.
// Called by the owning driver whenever an inbound event is processed
// (§4.3 "Every iteration also updates last_seen").
func (r *PlugRecord) Touch() {
	for {
		old := r.state.Load()
		next := &snapshot{lastSeen: time.Now(), power: old.power}
		if r.state.CompareAndSwap(old, next) {
			return
		}
	}
}

// SetPower updates the power state and refreshes last-seen in one step.
// Called only by the owning driver, only from the ack/status transitions
// named in §8 invariant 4 (never from HTTP-triggered command injection).
func (r *PlugRecord) SetPower(p wire.PowerState) {
	for {
		old := r.state.Load()
		next := &snapshot{lastSeen: time.Now(), power: p}
		if r.state.CompareAndSwap(old, next) {
			return
		}
	}
}

// Post enqueues a command without blocking. It returns ErrInboxClosed if
// the owning driver has already exited, or ErrInboxFull if the bounded
// queue has no room right now (§4.3 back-pressure, §7).
func (r *PlugRecord) Post(cmd *Command) error {
	if r.closed.Load() {
		return ErrInboxClosed
	}
	select {
	case r.inbox <- cmd:
		return nil
	default:
		return ErrInboxFull
	}
}

// Registry is C4: a concurrent PlugId -> PlugRecord map (§3, §8 invariant
// 3: "a record exists iff exactly one driver is live for its PlugId").
type Registry struct {
	mu    sync.RWMutex
	plugs map[uuid.UUID]*PlugRecord
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{plugs: make(map[uuid.UUID]*PlugRecord)}
}

// Insert creates a new record for id, or returns ErrDuplicatePlug if one
// is already live. The caller (a session driver completing a handshake)
// is the record's sole owner and sole remover.
func (reg *Registry) Insert(id uuid.UUID, inboxCap int) (*PlugRecord, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if _, exists := reg.plugs[id]; exists {
		return nil, ErrDuplicatePlug
	}
	rec := newPlugRecord(id, inboxCap)
	reg.plugs[id] = rec
	return rec, nil
}

// Get returns the live record for id, if any. The registry lock is held
// only for the map lookup — callers must release any reference before
// awaiting on the record's inbox/commands, per §3 "Ownership".
func (reg *Registry) Get(id uuid.UUID) (*PlugRecord, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	rec, ok := reg.plugs[id]
	return rec, ok
}

// Remove deletes id's record, but only if it is still exactly rec (guards
// against a driver removing a record that a newer session already
// replaced — defensive, though policy (a) duplicate rejection means this
// should not happen in practice).
func (reg *Registry) Remove(id uuid.UUID, rec *PlugRecord) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if cur, ok := reg.plugs[id]; ok && cur == rec {
		delete(reg.plugs, id)
		rec.closed.Store(true)
	}
}

// ListEntry is one row of a registry snapshot (§4.6 list()).
type ListEntry struct {
	ID       uuid.UUID
	Power    wire.PowerState
	LastSeen time.Time
}

// List returns a snapshot of every record, blocking on no session
// (§4.6 "No blocking on sessions").
func (reg *Registry) List() []ListEntry {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	out := make([]ListEntry, 0, len(reg.plugs))
	for id, rec := range reg.plugs {
		lastSeen, power := rec.Snapshot()
		out = append(out, ListEntry{ID: id, Power: power, LastSeen: lastSeen})
	}
	return out
}
