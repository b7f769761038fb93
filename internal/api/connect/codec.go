package connect

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// Codec is a Connect codec for plain Go structs encoded as JSON.
// It replaces the protobuf JSON codec registered under the same name.
type Codec struct{}

// Name returns the codec name used in the Content-Type.
func (Codec) Name() string {
	return "json"
}

// Marshal encodes msg as JSON.
func (Codec) Marshal(msg any) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal message")
	}
	return data, nil
}

// Unmarshal decodes JSON data into msg.
func (Codec) Unmarshal(data []byte, msg any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return errors.Wrap(err, "failed to unmarshal message")
	}
	return nil
}
