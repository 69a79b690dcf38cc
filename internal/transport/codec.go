package transport

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// CodecName is the gRPC content-subtype under which the JSON codec is
// negotiated on every Channel stream.
const CodecName = "json"

// jsonCodec marshals stream messages as plain JSON, matching the feed's
// wire protocol.
type jsonCodec struct{}

// Marshal encodes the message as JSON.
func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Unmarshal decodes the JSON payload into the message. Decoding into a
// *json.RawMessage hands the raw payload through untouched, which is how
// the client forwards envelopes to the dispatcher.
func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// Name returns the codec's content-subtype.
func (jsonCodec) Name() string {
	return CodecName
}

//nolint:gochecknoinits // Codec registration is gRPC's init-time convention.
func init() {
	encoding.RegisterCodec(jsonCodec{})
}
