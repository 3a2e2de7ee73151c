package plugsim

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"plugnet/wire"
)

// Driver runs one plug's session against a broker, mirroring broker.driver
// on the other side of the wire but driven by a net.Conn (a *net.UDPConn
// dialed at a fixed remote address) instead of a shared demultiplexer,
// since a single plug only ever talks to one broker at a time.
type Driver struct {
	id    uuid.UUID
	conn  *net.UDPConn
	relay *Relay
	cfg   *Config
	log   *logrus.Entry

	state wire.PlugState
	txSeq uint32
}

// NewDriver wires a Driver for id, ready to Run once conn is dialed.
func NewDriver(id uuid.UUID, conn *net.UDPConn, relay *Relay, cfg *Config, log *logrus.Entry) *Driver {
	return &Driver{
		id:    id,
		conn:  conn,
		relay: relay,
		cfg:   cfg,
		log:   log.WithField("plug", id),
	}
}

func pingNonce() wire.Nonce {
	var n wire.Nonce
	_, _ = rand.Read(n[:])
	return n
}

// Run drives one session to completion: sends the opening Conn, then
// loops reading datagrams and ticking the heartbeat timer until the
// state machine reports Disconnected or the socket errors out. It
// returns nil whenever the state machine ends the session, whatever the
// disconnect reason, and the socket error otherwise — the caller (the
// dial loop) decides whether and when to reconnect.
func (d *Driver) Run() error {
	d.state = wire.PlugState{Phase: wire.PlugConnecting}
	d.send(wire.ConnPayload{ID: d.id})
	d.log.Info("session opening")

	recvTimeout := d.randomJitter()
	buf := make([]byte, wire.MaxDatagramSize)

	for {
		if err := d.conn.SetReadDeadline(time.Now().Add(recvTimeout)); err != nil {
			return err
		}

		n, err := d.conn.Read(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				if !d.step(nil) {
					return nil
				}
				recvTimeout = d.randomJitter()
				continue
			}
			return fmt.Errorf("plugsim: read: %w", err)
		}

		msg, err := wire.Decode(buf[:n])
		if err != nil {
			d.log.WithError(err).Warn("dropped malformed datagram")
			continue
		}

		if !d.step(&msg) {
			return nil
		}
		recvTimeout = d.randomJitter()
	}
}

func (d *Driver) randomJitter() time.Duration {
	span := int64(d.cfg.HeartbeatMax - d.cfg.HeartbeatMin)
	if span <= 0 {
		return d.cfg.HeartbeatMin
	}
	n, err := rand.Int(rand.Reader, big.NewInt(span))
	if err != nil {
		return d.cfg.HeartbeatMin
	}
	return d.cfg.HeartbeatMin + time.Duration(n.Int64())
}

func (d *Driver) step(in *wire.Message) bool {
	next, out := wire.PlugStep(d.state, in, pingNonce, d.relay.On())
	d.state = next

	if out.DriveRelay != nil {
		d.relay.Set(*out.DriveRelay)
		d.log.WithField("on", *out.DriveRelay).Info("relay switched")
	}

	if out.Send != nil {
		d.send(out.Send)
	}

	return !out.Disconnected
}

// sendTimeout bounds how long a single outbound write may block (§5).
const sendTimeout = 5 * time.Second

func (d *Driver) send(p wire.Payload) {
	msg := wire.Message{Seq: d.txSeq, Payload: p}
	d.txSeq++
	encoded, err := wire.Encode(msg)
	if err != nil {
		d.log.WithError(err).Error("encode outbound frame")
		return
	}
	if err := d.conn.SetWriteDeadline(time.Now().Add(sendTimeout)); err != nil {
		d.log.WithError(err).Warn("set write deadline failed")
	}
	if _, err := d.conn.Write(encoded); err != nil {
		d.log.WithError(err).Warn("udp send failed")
	}
}
