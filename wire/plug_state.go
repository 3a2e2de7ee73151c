package wire

// PlugPhase enumerates the plug-side connection states (§4.2 mirror table).
type PlugPhase byte

const (
	PlugDisconnected PlugPhase = iota
	PlugConnecting
	PlugWorking
	PlugPinging
	PlugDead
)

// PlugState is the plug-side session state threaded through PlugStep.
type PlugState struct {
	Phase PlugPhase
	Nonce Nonce
	seq   seqTracker
}

// PlugOutput mirrors BrokerOutput for the plug side. DriveRelay, when
// non-nil, is an effect the driver must apply to the physical (or
// simulated) relay before — per §4.2 — the corresponding ack is sent;
// PlugStep never touches the relay itself.
type PlugOutput struct {
	Send         Payload
	Disconnected bool
	Reason       DisconnectReason
	DriveRelay   *bool
	Ignored      bool
}

func plugDisconnect(reason DisconnectReason) PlugOutput {
	return PlugOutput{
		Send:         DisconnectPayload{Reason: reason},
		Disconnected: true,
		Reason:       reason,
	}
}

// PlugStep advances the plug-side state machine by one event. in==nil
// denotes a heartbeat-timer tick. relayOn is the relay's current state,
// needed to answer QueryStatus; PlugStep is otherwise a pure function.
// Sending the initial Conn and transitioning Disconnected->Connecting is a
// driver-level action (like command injection on the broker side, §4.3)
// and is not modeled here.
func PlugStep(cur PlugState, in *Message, nonceGen func() Nonce, relayOn bool) (PlugState, PlugOutput) {
	next := cur

	if cur.Phase == PlugDead {
		return next, PlugOutput{}
	}

	preHandshake := cur.Phase == PlugDisconnected || cur.Phase == PlugConnecting
	if in != nil && !preHandshake {
		if ok := next.seq.accept(in.Seq); !ok {
			next.Phase = PlugDead
			return next, plugDisconnect(ReasonSequenceError)
		}
	}

	if in == nil {
		switch cur.Phase {
		case PlugWorking:
			nonce := nonceGen()
			next.Phase = PlugPinging
			next.Nonce = nonce
			return next, PlugOutput{Send: PingPayload{Data: nonce}}
		case PlugPinging:
			next.Phase = PlugDead
			return next, plugDisconnect(ReasonTimeout)
		case PlugConnecting, PlugDisconnected:
			next.Phase = PlugDead
			return next, plugDisconnect(ReasonClosed)
		default:
			return next, PlugOutput{}
		}
	}

	switch p := in.Payload.(type) {
	case ConnAckPayload:
		if cur.Phase == PlugConnecting {
			next.Phase = PlugWorking
			next.seq.setBaseline(in.Seq)
			return next, PlugOutput{}
		}
		next.Phase = PlugDead
		return next, plugDisconnect(ReasonClosed)

	case DisconnectPayload:
		next.Phase = PlugDead
		return next, plugDisconnect(ReasonClosed)

	case PingPayload:
		return next, PlugOutput{Send: PongPayload{Data: p.Data}}

	case PongPayload:
		if cur.Phase == PlugPinging {
			if p.Data == cur.Nonce {
				next.Phase = PlugWorking
				return next, PlugOutput{}
			}
			next.Phase = PlugDead
			return next, plugDisconnect(ReasonBadHeartbeat)
		}
		next.Phase = PlugDead
		return next, plugDisconnect(ReasonProtocolError)

	case TurnOnPayload:
		on := true
		return next, PlugOutput{Send: TurnOnAckPayload{}, DriveRelay: &on}

	case TurnOffPayload:
		off := false
		return next, PlugOutput{Send: TurnOffAckPayload{}, DriveRelay: &off}

	case QueryStatusPayload:
		return next, PlugOutput{Send: StatusRespPayload{IsOn: relayOn}}

	default:
		if preHandshake {
			next.Phase = PlugDead
			return next, plugDisconnect(ReasonClosed)
		}
		return next, PlugOutput{Ignored: true}
	}
}
