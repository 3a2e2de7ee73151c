package broker

import (
	"net"
	"sync"

	"github.com/sirupsen/logrus"

	"plugnet/wire"
)

// sink is the single shared UDP send path used by every session driver
// (§4.5 "A single shared outbound sink is used by all drivers; sends are
// serialised through a lock so only one datagram is emitted at a time.").
type sink struct {
	conn *net.UDPConn
	mu   sync.Mutex
	log  *logrus.Entry
}

func newSink(conn *net.UDPConn, log *logrus.Entry) *sink {
	return &sink{conn: conn, log: log}
}

// send encodes and writes one frame to addr. Encode and socket errors are
// logged here and also returned — per §7 "Socket send error... Log,
// continue", it is the caller's job to decide whether a failure should
// end the session.
func (s *sink) send(addr *net.UDPAddr, msg wire.Message) error {
	encoded, err := wire.Encode(msg)
	if err != nil {
		s.log.WithError(err).Error("encode outbound frame")
		return err
	}

	s.mu.Lock()
	_, err = s.conn.WriteToUDP(encoded, addr)
	s.mu.Unlock()

	if err != nil {
		s.log.WithError(err).WithField("addr", addr).Warn("udp send failed")
	}
	return err
}
