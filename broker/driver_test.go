package broker

import (
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plugnet/wire"
)

func testDriverHarness(t *testing.T) (*driver, *Registry, *net.UDPConn) {
	t.Helper()

	brokerConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { brokerConn.Close() })

	plugConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { plugConn.Close() })

	reg := NewRegistry()
	cfg := NewConfig()
	met := NewDefaultMetrics()
	log := logrus.NewEntry(logrus.New())

	sk := newSink(brokerConn, log)
	d := newDriver(plugConn.LocalAddr().(*net.UDPAddr), sk, reg, cfg, met, log)

	return d, reg, plugConn
}

// withFastHeartbeat shortens the jitter window to 20–25ms, so a session
// the test leaves silent pings and then times out within about 50ms
// instead of lingering for tens of seconds.
func withFastHeartbeat() Option {
	return WithHeartbeatJitter(20*time.Millisecond, 25*time.Millisecond)
}

func readFrame(t *testing.T, conn *net.UDPConn) wire.Message {
	t.Helper()
	buf := make([]byte, wire.MaxDatagramSize)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, err := conn.Read(buf)
	require.NoError(t, err)
	msg, err := wire.Decode(buf[:n])
	require.NoError(t, err)
	return msg
}

func TestDriverHandshakeRegistersPlug(t *testing.T) {
	d, reg, plugConn := testDriverHarness(t)
	id := uuid.New()

	go d.run()

	ok := d.deliver(wire.Message{Seq: 0, Payload: wire.ConnPayload{ID: id}})
	assert.True(t, ok)

	ack := readFrame(t, plugConn)
	assert.Equal(t, wire.TypeConnAck, ack.Payload.Type())

	rec, ok := reg.Get(id)
	require.True(t, ok)
	assert.Equal(t, id, rec.ID)

	d.deliver(wire.Message{Seq: 1, Payload: wire.DisconnectPayload{Reason: wire.ReasonClosed}})
	readFrame(t, plugConn) // broker's own Disconnect
}

func TestDriverDuplicateConnRejected(t *testing.T) {
	d, reg, plugConn := testDriverHarness(t)
	id := uuid.New()

	_, err := reg.Insert(id, 4)
	require.NoError(t, err)

	go d.run()
	d.deliver(wire.Message{Seq: 0, Payload: wire.ConnPayload{ID: id}})

	frame := readFrame(t, plugConn)
	require.Equal(t, wire.TypeDisconnect, frame.Payload.Type())
	assert.Equal(t, wire.ReasonClosed, frame.Payload.(wire.DisconnectPayload).Reason)
}

func TestDriverQueryStatusCommandWaitsForStatusResp(t *testing.T) {
	d, reg, plugConn := testDriverHarness(t)
	id := uuid.New()

	go d.run()
	d.deliver(wire.Message{Seq: 0, Payload: wire.ConnPayload{ID: id}})
	readFrame(t, plugConn) // ConnAck

	rec, ok := reg.Get(id)
	require.True(t, ok)

	cmd, done := NewCommand(CommandQueryStatus)
	require.NoError(t, rec.Post(cmd))

	frame := readFrame(t, plugConn)
	assert.Equal(t, wire.TypeQueryStatus, frame.Payload.Type())

	select {
	case <-done:
		t.Fatal("command completed before the status response arrived")
	case <-time.After(50 * time.Millisecond):
	}

	d.deliver(wire.Message{Seq: 1, Payload: wire.StatusRespPayload{IsOn: true}})

	select {
	case success := <-done:
		assert.True(t, success)
	case <-time.After(time.Second):
		t.Fatal("query_status command never completed")
	}

	_, power := rec.Snapshot()
	assert.Equal(t, wire.PowerOn, power)
}

func TestDriverTurnOnPendingUntilAck(t *testing.T) {
	d, reg, plugConn := testDriverHarness(t)
	id := uuid.New()

	go d.run()
	d.deliver(wire.Message{Seq: 0, Payload: wire.ConnPayload{ID: id}})
	readFrame(t, plugConn) // ConnAck

	rec0, ok := reg.Get(id)
	require.True(t, ok)

	cmd, done := NewCommand(CommandTurnOn)
	require.NoError(t, rec0.Post(cmd))

	frame := readFrame(t, plugConn)
	assert.Equal(t, wire.TypeTurnOn, frame.Payload.Type())

	select {
	case <-done:
		t.Fatal("command completed before the ack arrived")
	case <-time.After(50 * time.Millisecond):
	}

	d.deliver(wire.Message{Seq: 1, Payload: wire.TurnOnAckPayload{}})

	select {
	case success := <-done:
		assert.True(t, success)
	case <-time.After(time.Second):
		t.Fatal("turn_on command never completed")
	}

	rec, _ := reg.Get(id)
	_, power := rec.Snapshot()
	assert.Equal(t, wire.PowerOn, power)
}

func TestDriverSessionDeathFailsPendingCommands(t *testing.T) {
	d, reg, plugConn := testDriverHarness(t)
	id := uuid.New()

	go d.run()
	d.deliver(wire.Message{Seq: 0, Payload: wire.ConnPayload{ID: id}})
	readFrame(t, plugConn) // ConnAck

	rec, ok := reg.Get(id)
	require.True(t, ok)

	cmd, done := NewCommand(CommandTurnOn)
	require.NoError(t, rec.Post(cmd))
	readFrame(t, plugConn) // TurnOn

	d.deliver(wire.Message{Seq: 1, Payload: wire.DisconnectPayload{Reason: wire.ReasonClosed}})
	readFrame(t, plugConn) // broker's own Disconnect

	select {
	case success := <-done:
		assert.False(t, success)
	case <-time.After(time.Second):
		t.Fatal("pending command was never failed when the session ended")
	}
}
