package responderv1

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/proto"
)

// CodecName is the content-subtype negotiated by Responder clients.
const CodecName = "json"

// Codec marshals protobuf messages with proto and everything else as JSON,
// so the Responder service and the standard health/reflection services can
// share one server.
type Codec struct{}

// Marshal implements encoding.Codec.
func (Codec) Marshal(v any) ([]byte, error) {
	if m, ok := v.(proto.Message); ok {
		return proto.Marshal(m)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("responderv1: marshal %T: %w", v, err)
	}
	return b, nil
}

// Unmarshal implements encoding.Codec.
func (Codec) Unmarshal(data []byte, v any) error {
	if m, ok := v.(proto.Message); ok {
		return proto.Unmarshal(data, m)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("responderv1: unmarshal %T: %w", v, err)
	}
	return nil
}

// Name implements encoding.Codec.
func (Codec) Name() string { return CodecName }
