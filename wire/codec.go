package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// MaxDatagramSize is the receive buffer size per datagram (§4.1).
const MaxDatagramSize = 512

// ErrMalformed is returned for any frame that cannot be decoded: truncated
// input, an unknown tag byte, or trailing bytes after a fully-parsed
// payload. Callers turn this into Disconnect(ProtocolError) or a dropped
// datagram per §7.
var ErrMalformed = errors.New("wire: malformed frame")

// Encode serializes a frame as: varint seq, tag byte, then payload fields
// in declaration order (§6.1's suggested encoding). One datagram carries
// exactly one frame; there is no length prefix beyond the tag, since the
// datagram boundary delimits the frame.
func Encode(m Message) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(FrameHeaderSize + 16)

	var seqBuf [binary.MaxVarintLen32]byte
	n := binary.PutUvarint(seqBuf[:], uint64(m.Seq))
	buf.Write(seqBuf[:n])
	buf.WriteByte(byte(m.Payload.Type()))

	switch p := m.Payload.(type) {
	case ConnPayload:
		idBytes, err := p.ID.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		buf.Write(idBytes)
	case ConnAckPayload:
	case DisconnectPayload:
		buf.WriteByte(byte(p.Reason))
	case PingPayload:
		buf.Write(p.Data[:])
	case PongPayload:
		buf.Write(p.Data[:])
	case TurnOnPayload:
	case TurnOffPayload:
	case TurnOnAckPayload:
	case TurnOffAckPayload:
	case QueryStatusPayload:
	case StatusRespPayload:
		if p.IsOn {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	default:
		return nil, fmt.Errorf("%w: unknown payload type %T", ErrMalformed, p)
	}

	return buf.Bytes(), nil
}

// FrameHeaderSize is a conservative estimate (varint seq + tag byte) used
// only to pre-size the encode buffer; it is not part of the wire contract.
const FrameHeaderSize = binary.MaxVarintLen32 + 1

// Decode parses a single datagram payload into a Message. Any malformed
// input (truncated, unknown tag, trailing garbage) yields ErrMalformed.
func Decode(data []byte) (Message, error) {
	seq, n := binary.Uvarint(data)
	if n <= 0 {
		return Message{}, fmt.Errorf("%w: bad seq varint", ErrMalformed)
	}
	rest := data[n:]
	if len(rest) < 1 {
		return Message{}, fmt.Errorf("%w: missing tag", ErrMalformed)
	}
	tag := PayloadType(rest[0])
	body := rest[1:]

	var payload Payload
	switch tag {
	case TypeConn:
		if len(body) != 16 {
			return Message{}, fmt.Errorf("%w: Conn wants 16 bytes, got %d", ErrMalformed, len(body))
		}
		id, err := uuid.FromBytes(body)
		if err != nil {
			return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		payload = ConnPayload{ID: id}
	case TypeConnAck:
		if len(body) != 0 {
			return Message{}, fmt.Errorf("%w: ConnAck takes no payload", ErrMalformed)
		}
		payload = ConnAckPayload{}
	case TypeDisconnect:
		if len(body) != 1 {
			return Message{}, fmt.Errorf("%w: Disconnect wants 1 byte", ErrMalformed)
		}
		payload = DisconnectPayload{Reason: DisconnectReason(body[0])}
	case TypePing:
		if len(body) != 16 {
			return Message{}, fmt.Errorf("%w: Ping wants 16 bytes", ErrMalformed)
		}
		var n Nonce
		copy(n[:], body)
		payload = PingPayload{Data: n}
	case TypePong:
		if len(body) != 16 {
			return Message{}, fmt.Errorf("%w: Pong wants 16 bytes", ErrMalformed)
		}
		var n Nonce
		copy(n[:], body)
		payload = PongPayload{Data: n}
	case TypeTurnOn:
		if len(body) != 0 {
			return Message{}, fmt.Errorf("%w: TurnOn takes no payload", ErrMalformed)
		}
		payload = TurnOnPayload{}
	case TypeTurnOff:
		if len(body) != 0 {
			return Message{}, fmt.Errorf("%w: TurnOff takes no payload", ErrMalformed)
		}
		payload = TurnOffPayload{}
	case TypeTurnOnAck:
		if len(body) != 0 {
			return Message{}, fmt.Errorf("%w: TurnOnAck takes no payload", ErrMalformed)
		}
		payload = TurnOnAckPayload{}
	case TypeTurnOffAck:
		if len(body) != 0 {
			return Message{}, fmt.Errorf("%w: TurnOffAck takes no payload", ErrMalformed)
		}
		payload = TurnOffAckPayload{}
	case TypeQueryStatus:
		if len(body) != 0 {
			return Message{}, fmt.Errorf("%w: QueryStatus takes no payload", ErrMalformed)
		}
		payload = QueryStatusPayload{}
	case TypeStatusResp:
		if len(body) != 1 {
			return Message{}, fmt.Errorf("%w: StatusResp wants 1 byte", ErrMalformed)
		}
		payload = StatusRespPayload{IsOn: body[0] != 0}
	default:
		return Message{}, fmt.Errorf("%w: unknown tag %d", ErrMalformed, tag)
	}

	return Message{Seq: uint32(seq), Payload: payload}, nil
}
