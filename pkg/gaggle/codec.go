package gaggle

import (
	"bytes"
	"encoding/gob"

	"google.golang.org/grpc/encoding"
)

// codecName is the gRPC content-subtype this codec registers under.
// Every call in this package is made with grpc.CallContentSubtype(codecName)
// so gRPC negotiates this codec instead of its built-in "proto" one.
const codecName = "gob"

// gobCodec implements google.golang.org/grpc/encoding.Codec using
// encoding/gob instead of protobuf. gaggle's messages are plain Go
// structs (see protocol.go); gob's self-describing wire format lets
// gRPC's transport, connection pooling, and keepalive machinery carry
// them without a protoc-generated marshaler.
type gobCodec struct{}

func (gobCodec) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (gobCodec) Unmarshal(data []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

func (gobCodec) Name() string {
	return codecName
}

func init() {
	encoding.RegisterCodec(gobCodec{})
}
