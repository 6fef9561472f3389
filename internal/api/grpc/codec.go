package grpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// jsonCodecName is the codec's content-subtype: a client selects it with
// grpc.CallContentSubtype(jsonCodecName), and the server picks the matching
// registered codec automatically from the request's content-type.
const jsonCodecName = "json"

// jsonCodec is a grpc/encoding.Codec that marshals request/response messages
// as JSON instead of protobuf wire format. This module wires the real
// google.golang.org/grpc server/client machinery (service registration,
// streaming, interceptors) without a protoc code-generation step; message
// types are plain Go structs rather than generated protobuf messages.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return jsonCodecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
