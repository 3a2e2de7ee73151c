package broker

import (
	"crypto/rand"
	"errors"
	mathrand "math/rand"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"plugnet/wire"
)

// ErrSequenceGap is logged when a peer's datagram carries a sequence
// number the tracker did not expect, ending the session (§7, §8
// invariant 5).
var ErrSequenceGap = errors.New("broker: sequence gap")

// ErrProtocolViolation is logged when a peer sends a message its current
// phase cannot accept, or when the driver recovers from an unexpected
// panic partway through a step (§7 "never panic a healthy broker").
var ErrProtocolViolation = errors.New("broker: protocol violation")

// inboundEvent is one item on a driver's inbox: a datagram decoded by the
// demultiplexer (C5). Heartbeat-timer ticks (§4.2) do not pass through
// the inbox; run takes them from the timer channel and steps with nil.
type inboundEvent struct {
	msg *wire.Message
}

// driver is C3: the per-peer session driver. One driver owns exactly one
// remote address and, once past the handshake, exactly one PlugRecord. It
// is the only goroutine allowed to mutate that record's power/last-seen
// fields or remove it from the Registry. Its command source is the
// record's own inbox (set once the handshake registers a PlugId, §4.3
// "only active once a plug identity is associated; absent before
// handshake") — there is no separate driver-owned command channel, so a
// command the bridge posts to a record is guaranteed to reach whichever
// driver currently owns it.
type driver struct {
	addr *net.UDPAddr
	sink *sink
	reg  *Registry
	cfg  *Config
	met  Metrics
	log  *logrus.Entry

	inbox   chan inboundEvent
	pending map[wire.AckKind][]*Command

	state wire.BrokerState
	rec   *PlugRecord
	txSeq uint32
}

func newDriver(addr *net.UDPAddr, sink *sink, reg *Registry, cfg *Config, met Metrics, log *logrus.Entry) *driver {
	return &driver{
		addr:    addr,
		sink:    sink,
		reg:     reg,
		cfg:     cfg,
		met:     met,
		log:     log.WithField("peer", addr.String()),
		inbox:   make(chan inboundEvent, cfg.DriverInboxCapacity),
		pending: make(map[wire.AckKind][]*Command),
	}
}

// deliver is called by the demultiplexer (C5) to hand this driver an
// inbound datagram. It never blocks: a full inbox means the peer is
// outrunning us, and the datagram is dropped (§4.5, §7).
func (d *driver) deliver(msg wire.Message) bool {
	select {
	case d.inbox <- inboundEvent{msg: &msg}:
		return true
	default:
		d.met.IncrementDecodeErrors()
		return false
	}
}

func newPingNonce() wire.Nonce {
	var n wire.Nonce
	_, _ = rand.Read(n[:])
	return n
}

// run is the driver's event loop (§4.3): one goroutine per session,
// selecting over the inbound datagram queue, a randomised heartbeat
// timer, and (once registered) the record's command inbox. It exits
// once a step ends the session (the state machine reports Disconnected,
// or a handshake is rejected as a duplicate plug), at which point
// deferred cleanup fails every still-pending command and removes the
// registry entry.
func (d *driver) run() {
	d.met.IncrementSessionsStarted()
	d.log.Info("session started")

	defer func() {
		if r := recover(); r != nil {
			d.log.WithError(ErrProtocolViolation).WithField("panic", r).Error("driver recovered from panic")
			d.sendDisconnect(wire.ReasonProtocolError)
		}
		d.met.IncrementSessionsEnded()
		if d.rec != nil {
			d.reg.Remove(d.rec.ID, d.rec)
		}
		d.failAllPending()
		d.log.Info("session ended")
	}()

	timer := time.NewTimer(d.heartbeatWait())
	defer timer.Stop()

	for {
		var cmdCh chan *Command
		if d.rec != nil {
			cmdCh = d.rec.inbox
		}

		select {
		case ev := <-d.inbox:
			if !d.step(ev.msg, timer) {
				return
			}

		case <-timer.C:
			if !d.step(nil, timer) {
				return
			}

		case cmd := <-cmdCh:
			d.handleCommand(cmd)
		}
	}
}

// heartbeatWait picks a fresh randomised receive timeout in
// [HeartbeatMin, HeartbeatMax) (§4.2). Each call draws from the
// process-wide math/rand source; §9 only requires that sessions don't
// share a single deterministic sequence, which the runtime-seeded global
// source already guarantees.
func (d *driver) heartbeatWait() time.Duration {
	span := d.cfg.HeartbeatMax - d.cfg.HeartbeatMin
	if span <= 0 {
		return d.cfg.HeartbeatMin
	}
	return d.cfg.HeartbeatMin + time.Duration(mathrand.Int63n(int64(span)))
}

// step advances the state machine by one event, applies C2's described
// effects to the registry, sends any outgoing frame, and resets the
// heartbeat timer. It returns false once the session is over.
func (d *driver) step(in *wire.Message, timer *time.Timer) bool {
	next, out := wire.BrokerStep(d.state, in, newPingNonce)
	d.state = next

	if d.rec != nil && in != nil {
		d.rec.Touch()
	}

	if out.RegisterPlug != nil {
		rec, err := d.reg.Insert(*out.RegisterPlug, d.cfg.CommandInboxCapacity)
		if err != nil {
			d.log.WithError(err).Warn("duplicate plug session rejected")
			d.sendDisconnect(wire.ReasonClosed)
			return false
		}
		d.rec = rec
		d.log.WithField("plug", rec.ID).Info("plug registered")
	}

	if out.SetPower != nil && d.rec != nil {
		d.rec.SetPower(*out.SetPower)
	}

	if out.Complete != wire.AckNone {
		d.completePending(out.Complete, true)
	}

	if out.Send != nil {
		d.send(out.Send)
	}

	if out.Disconnected {
		d.logDisconnect(out.Reason)
	}

	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	timer.Reset(d.heartbeatWait())

	return !out.Disconnected
}

// logDisconnect records why a session ended, at a severity matching the
// reason: an orderly Closed is routine and logged at Info, every other
// reason indicates something went wrong on the wire and is logged at
// Warn (§7).
func (d *driver) logDisconnect(reason wire.DisconnectReason) {
	entry := d.log.WithField("reason", reason.String())
	if reason == wire.ReasonClosed {
		entry.Info("session disconnected")
		return
	}

	switch reason {
	case wire.ReasonSequenceError:
		entry = entry.WithError(ErrSequenceGap)
	case wire.ReasonProtocolError:
		entry = entry.WithError(ErrProtocolViolation)
	}
	entry.Warn("session disconnected")
}

// send stamps the driver's outbound sequence number onto payload and
// writes it through the shared sink.
func (d *driver) send(p wire.Payload) {
	msg := wire.Message{Seq: d.txSeq, Payload: p}
	d.txSeq++
	_ = d.sink.send(d.addr, msg)
}

func (d *driver) sendDisconnect(reason wire.DisconnectReason) {
	d.send(wire.DisconnectPayload{Reason: reason})
}

// handleCommand turns one HTTP-triggered Command into wire traffic. All
// three kinds send a wire message and stay pending until their matching
// response arrives — TurnOnAck/TurnOffAck for TurnOn/TurnOff, StatusResp
// for QueryStatus — or until the session ends, when failAllPending
// completes them with failure.
func (d *driver) handleCommand(cmd *Command) {
	if d.rec == nil || d.state.Phase == wire.BrokerDead {
		cmd.Complete(false)
		return
	}

	switch cmd.Kind {
	case CommandTurnOn:
		d.send(wire.TurnOnPayload{})
		d.pending[wire.AckTurnOn] = append(d.pending[wire.AckTurnOn], cmd)
	case CommandTurnOff:
		d.send(wire.TurnOffPayload{})
		d.pending[wire.AckTurnOff] = append(d.pending[wire.AckTurnOff], cmd)
	case CommandQueryStatus:
		d.send(wire.QueryStatusPayload{})
		d.pending[wire.AckQueryStatus] = append(d.pending[wire.AckQueryStatus], cmd)
	default:
		cmd.Complete(false)
	}
}

func (d *driver) completePending(kind wire.AckKind, success bool) {
	for _, cmd := range d.pending[kind] {
		cmd.Complete(success)
		d.met.IncrementCommandsCompleted(success)
	}
	delete(d.pending, kind)
}

// failAllPending resolves every tracked pending ack with failure, then
// drains whatever sits unread in the record's inbox so a bridge call
// racing with session death doesn't block until its deadline for
// nothing. The drained commands are also inherently abandoned from the
// registry's point of view, since Remove has already detached rec from
// the map by the time this runs.
func (d *driver) failAllPending() {
	for kind, cmds := range d.pending {
		for _, cmd := range cmds {
			cmd.Complete(false)
			d.met.IncrementCommandsCompleted(false)
		}
		delete(d.pending, kind)
	}
	if d.rec == nil {
		return
	}
	for {
		select {
		case cmd := <-d.rec.inbox:
			cmd.Complete(false)
		default:
			return
		}
	}
}
