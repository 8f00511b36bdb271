package rpc

import (
	"fmt"

	"google.golang.org/grpc/encoding"
)

type wireMessage interface {
	marshal() []byte
	unmarshal(b []byte) error
}

// codec encodes the service messages in protobuf wire format, so peers
// using generated protobuf stubs interoperate.
type codec struct{}

var _ encoding.Codec = codec{}

func (codec) Marshal(v any) ([]byte, error) {
	m, ok := v.(wireMessage)
	if !ok {
		return nil, fmt.Errorf("rpc: cannot marshal %T", v)
	}
	return m.marshal(), nil
}

func (codec) Unmarshal(data []byte, v any) error {
	m, ok := v.(wireMessage)
	if !ok {
		return fmt.Errorf("rpc: cannot unmarshal into %T", v)
	}
	return m.unmarshal(data)
}

func (codec) Name() string {
	return "proto"
}
