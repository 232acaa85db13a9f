package message

import (
	"fmt"

	"github.com/segmentio/encoding/json"

	"github.com/rjboer/radarcore/internal/fault"
)

// ErrMalformed marks a frame that does not decode to a known message.
var ErrMalformed = fault.New(fault.Protocol, "malformed message")

// envelope is the wire frame. Exactly one member is set.
type envelope struct {
	Config  *Config       `json:"config,omitempty"`
	Control *Control      `json:"control,omitempty"`
	Ack     *Ack          `json:"ack,omitempty"`
	Debug   *DebugSamples `json:"debug,omitempty"`
}

func (e envelope) members() int {
	n := 0
	for _, set := range []bool{e.Config != nil, e.Control != nil, e.Ack != nil, e.Debug != nil} {
		if set {
			n++
		}
	}
	return n
}

// Decode parses an inbound frame into a Message.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.members() != 1 {
		return nil, fmt.Errorf("%w: frame must carry exactly one of config or control", ErrMalformed)
	}
	switch {
	case env.Config != nil:
		return *env.Config, nil
	case env.Control != nil:
		return *env.Control, nil
	default:
		return nil, fmt.Errorf("%w: ack and debug frames are outbound only", ErrMalformed)
	}
}

// Encode renders an inbound message as a frame. Clients use it.
func Encode(m Message) ([]byte, error) {
	var env envelope
	switch v := m.(type) {
	case Config:
		env.Config = &v
	case Control:
		env.Control = &v
	default:
		return nil, fmt.Errorf("%w: cannot encode %T", ErrMalformed, m)
	}
	return json.Marshal(env)
}

// EncodeAck renders the ack frame. The debug payload, if any, is encoded
// separately with EncodeDebug.
func EncodeAck(a Ack) ([]byte, error) {
	return json.Marshal(envelope{Ack: &a})
}

// EncodeDebug renders a debug sample frame.
func EncodeDebug(d DebugSamples) ([]byte, error) {
	return json.Marshal(envelope{Debug: &d})
}

// Reply is an outbound frame as seen by a client.
type Reply struct {
	Ack   *Ack
	Debug *DebugSamples
}

// DecodeReply parses an ack or debug frame.
func DecodeReply(data []byte) (Reply, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Reply{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.members() != 1 || (env.Ack == nil && env.Debug == nil) {
		return Reply{}, fmt.Errorf("%w: expected an ack or debug frame", ErrMalformed)
	}
	return Reply{Ack: env.Ack, Debug: env.Debug}, nil
}
