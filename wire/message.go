// Package wire implements the plug<->broker session protocol: the wire
// codec (C1) and the pure session state machine (C2). Both the broker and
// the plug simulator drive the same reducer, supplying only the transition
// table that differs between the two sides.
package wire

import "github.com/google/uuid"

// PayloadType tags the variant carried by a Message.
type PayloadType byte

const (
	TypeConn PayloadType = iota
	TypeConnAck
	TypeDisconnect
	TypePing
	TypePong
	TypeTurnOn
	TypeTurnOff
	TypeTurnOnAck
	TypeTurnOffAck
	TypeQueryStatus
	TypeStatusResp
)

func (t PayloadType) String() string {
	switch t {
	case TypeConn:
		return "Conn"
	case TypeConnAck:
		return "ConnAck"
	case TypeDisconnect:
		return "Disconnect"
	case TypePing:
		return "Ping"
	case TypePong:
		return "Pong"
	case TypeTurnOn:
		return "TurnOn"
	case TypeTurnOff:
		return "TurnOff"
	case TypeTurnOnAck:
		return "TurnOnAck"
	case TypeTurnOffAck:
		return "TurnOffAck"
	case TypeQueryStatus:
		return "QueryStatus"
	case TypeStatusResp:
		return "StatusResp"
	default:
		return "Unknown"
	}
}

// DisconnectReason conveys why a session ended, for observability (§GLOSSARY).
type DisconnectReason byte

const (
	ReasonBadHeartbeat DisconnectReason = iota
	ReasonTimeout
	ReasonProtocolError
	ReasonSequenceError
	ReasonClosed
)

func (r DisconnectReason) String() string {
	switch r {
	case ReasonBadHeartbeat:
		return "BadHeartbeat"
	case ReasonTimeout:
		return "Timeout"
	case ReasonProtocolError:
		return "ProtocolError"
	case ReasonSequenceError:
		return "SequenceError"
	case ReasonClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Payload is the tagged union carried by every Message (§3).
type Payload interface {
	Type() PayloadType
}

type ConnPayload struct{ ID uuid.UUID }

func (ConnPayload) Type() PayloadType { return TypeConn }

type ConnAckPayload struct{}

func (ConnAckPayload) Type() PayloadType { return TypeConnAck }

type DisconnectPayload struct{ Reason DisconnectReason }

func (DisconnectPayload) Type() PayloadType { return TypeDisconnect }

// Nonce is the 16-byte heartbeat token carried by Ping/Pong.
type Nonce [16]byte

type PingPayload struct{ Data Nonce }

func (PingPayload) Type() PayloadType { return TypePing }

type PongPayload struct{ Data Nonce }

func (PongPayload) Type() PayloadType { return TypePong }

type TurnOnPayload struct{}

func (TurnOnPayload) Type() PayloadType { return TypeTurnOn }

type TurnOffPayload struct{}

func (TurnOffPayload) Type() PayloadType { return TypeTurnOff }

type TurnOnAckPayload struct{}

func (TurnOnAckPayload) Type() PayloadType { return TypeTurnOnAck }

type TurnOffAckPayload struct{}

func (TurnOffAckPayload) Type() PayloadType { return TypeTurnOffAck }

type QueryStatusPayload struct{}

func (QueryStatusPayload) Type() PayloadType { return TypeQueryStatus }

type StatusRespPayload struct{ IsOn bool }

func (StatusRespPayload) Type() PayloadType { return TypeStatusResp }

// Message is a single frame: a per-direction sequence number plus its
// payload (§3). Seq arithmetic wraps modulo 2^32.
type Message struct {
	Seq     uint32
	Payload Payload
}

// PowerState mirrors the plug's relay state as known to the broker (§3).
type PowerState byte

const (
	PowerUnknown PowerState = iota
	PowerOn
	PowerOff
)

func (p PowerState) String() string {
	switch p {
	case PowerOn:
		return "on"
	case PowerOff:
		return "off"
	default:
		return "unknown"
	}
}
