package server

import "encoding/json"

// jsonCodec marshals request and response messages as plain JSON. The
// service uses hand-written message structs rather than generated
// protobuf types, so the default codecs don't apply.
type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(message any) ([]byte, error) {
	return json.Marshal(message)
}

func (jsonCodec) Unmarshal(data []byte, message any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, message)
}
