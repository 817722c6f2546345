package negotiation

import "github.com/vmihailenco/msgpack/v5"

const controlMediaState = "media-state"

// MediaState is which local tracks a participant is sending.
type MediaState struct {
	Audio bool `msgpack:"audio" json:"audio"`
	Video bool `msgpack:"video" json:"video"`
}

// ControlMessage frames every message on the control data channel.
type ControlMessage struct {
	Type    string             `msgpack:"type"`
	Payload msgpack.RawMessage `msgpack:"payload"`
}

// DecodePayload decodes the message payload into the provided struct
func (m ControlMessage) DecodePayload(v any) error {
	return msgpack.Unmarshal(m.Payload, v)
}

func encodeControl(t string, payload any) ([]byte, error) {
	b, err := msgpack.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return msgpack.Marshal(ControlMessage{Type: t, Payload: b})
}

func decodeControl(data []byte) (ControlMessage, error) {
	var m ControlMessage
	err := msgpack.Unmarshal(data, &m)
	return m, err
}
