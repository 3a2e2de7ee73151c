package wire

import "github.com/google/uuid"

// BrokerPhase enumerates the broker-side connection states (§3, §4.7).
type BrokerPhase byte

const (
	BrokerUnknown BrokerPhase = iota
	BrokerWorking
	BrokerPinging
	BrokerDead
)

// BrokerState is the broker-side session state threaded through BrokerStep.
// Its zero value is the correct starting state for a freshly observed peer.
type BrokerState struct {
	Phase BrokerPhase
	Nonce Nonce
	seq   seqTracker
}

// AckKind identifies which family of pending commands an ack completes.
type AckKind byte

const (
	AckNone AckKind = iota
	AckTurnOn
	AckTurnOff
	AckQueryStatus
)

// BrokerOutput is everything BrokerStep produces for one step: at most one
// outgoing payload (the driver stamps the seq and sends it), an optional
// disconnect, and effects the driver must apply to the plug registry (C4).
// BrokerStep never touches the registry itself — it only describes what
// should happen, keeping C2 a pure function of (state, event).
type BrokerOutput struct {
	Send         Payload
	Disconnected bool
	Reason       DisconnectReason
	RegisterPlug *uuid.UUID
	SetPower     *PowerState
	Complete     AckKind
	Ignored      bool
}

func brokerDisconnect(reason DisconnectReason) BrokerOutput {
	return BrokerOutput{
		Send:         DisconnectPayload{Reason: reason},
		Disconnected: true,
		Reason:       reason,
	}
}

// BrokerStep advances the broker-side state machine by one event. in==nil
// denotes a heartbeat-timer tick (§4.2). nonceGen supplies a fresh 16-byte
// ping nonce; tests can inject a deterministic generator.
func BrokerStep(cur BrokerState, in *Message, nonceGen func() Nonce) (BrokerState, BrokerOutput) {
	next := cur

	if cur.Phase == BrokerDead {
		return next, BrokerOutput{}
	}

	if in != nil && cur.Phase != BrokerUnknown {
		if ok := next.seq.accept(in.Seq); !ok {
			next.Phase = BrokerDead
			return next, brokerDisconnect(ReasonSequenceError)
		}
	}

	if in == nil {
		switch cur.Phase {
		case BrokerWorking:
			nonce := nonceGen()
			next.Phase = BrokerPinging
			next.Nonce = nonce
			return next, BrokerOutput{Send: PingPayload{Data: nonce}}
		case BrokerPinging:
			next.Phase = BrokerDead
			return next, brokerDisconnect(ReasonTimeout)
		case BrokerUnknown:
			next.Phase = BrokerDead
			return next, brokerDisconnect(ReasonClosed)
		default:
			return next, BrokerOutput{}
		}
	}

	switch p := in.Payload.(type) {
	case ConnPayload:
		if cur.Phase == BrokerUnknown {
			next.Phase = BrokerWorking
			next.seq.setBaseline(in.Seq)
			id := p.ID
			return next, BrokerOutput{Send: ConnAckPayload{}, RegisterPlug: &id}
		}
		next.Phase = BrokerDead
		return next, brokerDisconnect(ReasonClosed)

	case DisconnectPayload:
		next.Phase = BrokerDead
		return next, brokerDisconnect(ReasonClosed)

	case PingPayload:
		return next, BrokerOutput{Send: PongPayload{Data: p.Data}}

	case PongPayload:
		if cur.Phase == BrokerPinging {
			if p.Data == cur.Nonce {
				next.Phase = BrokerWorking
				return next, BrokerOutput{}
			}
			next.Phase = BrokerDead
			return next, brokerDisconnect(ReasonBadHeartbeat)
		}
		next.Phase = BrokerDead
		return next, brokerDisconnect(ReasonProtocolError)

	case TurnOnAckPayload:
		on := PowerOn
		return next, BrokerOutput{SetPower: &on, Complete: AckTurnOn}

	case TurnOffAckPayload:
		off := PowerOff
		return next, BrokerOutput{SetPower: &off, Complete: AckTurnOff}

	case StatusRespPayload:
		ps := PowerOff
		if p.IsOn {
			ps = PowerOn
		}
		return next, BrokerOutput{SetPower: &ps, Complete: AckQueryStatus}

	default:
		if cur.Phase == BrokerUnknown {
			next.Phase = BrokerDead
			return next, brokerDisconnect(ReasonClosed)
		}
		return next, BrokerOutput{Ignored: true}
	}
}
