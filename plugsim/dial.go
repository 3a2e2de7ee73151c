package plugsim

import (
	"net"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Plug ties together a stable identity, a simulated relay and a
// reconnect loop. One Plug represents one embedded device.
type Plug struct {
	ID    uuid.UUID
	Relay *Relay
	cfg   *Config
	log   *logrus.Entry
}

// NewPlug generates a fresh PlugId and an off relay.
func NewPlug(cfg *Config, log *logrus.Entry) *Plug {
	return &Plug{ID: uuid.New(), Relay: NewRelay(), cfg: cfg, log: log}
}

// Run dials the broker, drives sessions to completion, and reconnects
// with back-off for as long as the process lives, standing in for
// firmware that never gives up. It only returns if cfg.BrokerAddr
// cannot be resolved at all.
func (p *Plug) Run() error {
	raddr, err := net.ResolveUDPAddr("udp", p.cfg.BrokerAddr)
	if err != nil {
		return err
	}

	backoff := newReconnectBackoff(p.cfg.ReconnectFast, p.cfg.ReconnectSteady)

	for {
		conn, err := net.DialUDP("udp", nil, raddr)
		if err != nil {
			p.log.WithError(err).Warn("dial failed, retrying")
			backoff.Wait()
			continue
		}

		backoff.Reset()
		driver := NewDriver(p.ID, conn, p.Relay, p.cfg, p.log)
		runErr := driver.Run()
		_ = conn.Close()

		if runErr != nil {
			p.log.WithError(runErr).Warn("session ended with error")
		} else {
			p.log.Info("session closed")
		}
		backoff.Wait()
	}
}
