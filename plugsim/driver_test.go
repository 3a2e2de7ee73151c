package plugsim

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

func fastTestConfig(brokerAddr string) *Config {
	return NewConfig(brokerAddr, WithHeartbeatJitter(30*time.Millisecond, 40*time.Millisecond))
}

func TestDriverHandshakeAndTurnOn(t *testing.T) {
	brokerConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer brokerConn.Close()

	plugConn, err := net.DialUDP("udp", nil, brokerConn.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)
	defer plugConn.Close()

	relay := NewRelay()
	id := uuid.New()
	log := logrus.NewEntry(logrus.New())
	driver := NewDriver(id, plugConn, relay, fastTestConfig(brokerConn.LocalAddr().String()), log)

	runErr := make(chan error, 1)
	go func() { runErr <- driver.Run() }()

	buf := make([]byte, wire.MaxDatagramSize)
	require.NoError(t, brokerConn.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, addr, err := brokerConn.ReadFromUDP(buf)
	require.NoError(t, err)

	conn, err := wire.Decode(buf[:n])
	require.NoError(t, err)
	require.Equal(t, wire.TypeConn, conn.Payload.Type())
	assert.Equal(t, id, conn.Payload.(wire.ConnPayload).ID)

	ack, err := wire.Encode(wire.Message{Seq: 0, Payload: wire.ConnAckPayload{}})
	require.NoError(t, err)
	_, err = brokerConn.WriteToUDP(ack, addr)
	require.NoError(t, err)

	turnOn, err := wire.Encode(wire.Message{Seq: 1, Payload: wire.TurnOnPayload{}})
	require.NoError(t, err)
	_, err = brokerConn.WriteToUDP(turnOn, addr)
	require.NoError(t, err)

	n, _, err = brokerConn.ReadFromUDP(buf)
	require.NoError(t, err)
	ackMsg, err := wire.Decode(buf[:n])
	require.NoError(t, err)
	assert.Equal(t, wire.TypeTurnOnAck, ackMsg.Payload.Type())

	assert.Eventually(t, func() bool { return relay.On() }, time.Second, 10*time.Millisecond)

	closeMsg, err := wire.Encode(wire.Message{Seq: 2, Payload: wire.DisconnectPayload{Reason: wire.ReasonClosed}})
	require.NoError(t, err)
	_, err = brokerConn.WriteToUDP(closeMsg, addr)
	require.NoError(t, err)

	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("driver did not exit after Disconnect")
	}
}

func TestDriverAnswersQueryStatus(t *testing.T) {
	brokerConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer brokerConn.Close()

	plugConn, err := net.DialUDP("udp", nil, brokerConn.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)
	defer plugConn.Close()

	relay := NewRelay()
	relay.Set(true)
	id := uuid.New()
	log := logrus.NewEntry(logrus.New())
	driver := NewDriver(id, plugConn, relay, fastTestConfig(brokerConn.LocalAddr().String()), log)

	go driver.Run()

	buf := make([]byte, wire.MaxDatagramSize)
	require.NoError(t, brokerConn.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, addr, err := brokerConn.ReadFromUDP(buf)
	require.NoError(t, err)
	_, err = wire.Decode(buf[:n]) // Conn
	require.NoError(t, err)

	ack, err := wire.Encode(wire.Message{Seq: 0, Payload: wire.ConnAckPayload{}})
	require.NoError(t, err)
	_, err = brokerConn.WriteToUDP(ack, addr)
	require.NoError(t, err)

	query, err := wire.Encode(wire.Message{Seq: 1, Payload: wire.QueryStatusPayload{}})
	require.NoError(t, err)
	_, err = brokerConn.WriteToUDP(query, addr)
	require.NoError(t, err)

	n, _, err = brokerConn.ReadFromUDP(buf)
	require.NoError(t, err)
	resp, err := wire.Decode(buf[:n])
	require.NoError(t, err)
	require.Equal(t, wire.TypeStatusResp, resp.Payload.Type())
	assert.True(t, resp.Payload.(wire.StatusRespPayload).IsOn)
}
