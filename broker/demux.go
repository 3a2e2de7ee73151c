package broker

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/sirupsen/logrus"

	"plugnet/wire"
)

// ErrDecode wraps any error wire.Decode returns, giving the broker package
// its own sentinel for decode failures without hiding the underlying
// wire-level cause (§7).
var ErrDecode = errors.New("broker: decode failed")

// Demux is C5: the single UDP socket shared by every session. It decodes
// each datagram, routes it by source address to that peer's driver
// (spawning a new driver on first contact), and owns the lone receive
// loop — per §4.5, "drivers never read the socket directly".
type Demux struct {
	conn *net.UDPConn
	sink *sink
	reg  *Registry
	cfg  *Config
	met  Metrics
	log  *logrus.Entry

	mu      sync.Mutex
	drivers map[string]*driver
}

// NewDemux binds a UDP socket on cfg.UDPPort and returns a Demux ready to
// Run.
func NewDemux(reg *Registry, cfg *Config, met Metrics, log *logrus.Entry) (*Demux, error) {
	addr := &net.UDPAddr{Port: cfg.UDPPort}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}
	return &Demux{
		conn:    conn,
		sink:    newSink(conn, log),
		reg:     reg,
		cfg:     cfg,
		met:     met,
		log:     log,
		drivers: make(map[string]*driver),
	}, nil
}

// Close releases the underlying socket. In-flight drivers drain their
// inboxes and exit on their own once no further datagrams arrive.
func (dx *Demux) Close() error {
	return dx.conn.Close()
}

// Run is the blocking receive loop (§4.1, §4.5). It returns when the
// socket is closed.
func (dx *Demux) Run() error {
	buf := make([]byte, wire.MaxDatagramSize)
	for {
		n, addr, err := dx.conn.ReadFromUDP(buf)
		if err != nil {
			return err
		}
		dx.met.IncrementDatagramsReceived()

		msg, err := wire.Decode(buf[:n])
		if err != nil {
			dx.met.IncrementDecodeErrors()
			dx.log.WithError(fmt.Errorf("%w: %v", ErrDecode, err)).WithField("addr", addr).Debug("dropped malformed datagram")
			continue
		}

		d, ok := dx.driverFor(addr, msg.Payload.Type())
		if !ok {
			dx.log.WithField("addr", addr).Debug("dropped datagram from unestablished peer without Conn")
			continue
		}
		if !d.deliver(msg) {
			dx.log.WithField("addr", addr).Warn("driver inbox full, dropped datagram")
		}
	}
}

// driverFor returns the existing driver for addr, or spawns a fresh one —
// but only if the first payload ever seen from addr is Conn (§4.5 step 2:
// "if none exists and the payload is not Conn, drop"). Anything else from
// an address with no live driver is reported as dropped with ok==false so
// Run never hands it to a session or lets BrokerStep answer an
// unestablished peer (e.g. a spoofed Ping soliciting a Pong reflection).
func (dx *Demux) driverFor(addr *net.UDPAddr, pt wire.PayloadType) (d *driver, ok bool) {
	key := addr.String()

	dx.mu.Lock()
	defer dx.mu.Unlock()

	if d, ok := dx.drivers[key]; ok {
		return d, true
	}

	if pt != wire.TypeConn {
		return nil, false
	}

	d = newDriver(addr, dx.sink, dx.reg, dx.cfg, dx.met, dx.log)
	dx.drivers[key] = d
	go func() {
		d.run()
		dx.mu.Lock()
		if dx.drivers[key] == d {
			delete(dx.drivers, key)
		}
		dx.mu.Unlock()
	}()
	return d, true
}
