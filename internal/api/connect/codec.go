package connect

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// CodecName is registered for application/json and application/connect+json.
const CodecName = "json"

// Codec encodes the plain Go messages of this package as JSON.
type Codec struct{}

// Name returns the codec name.
func (Codec) Name() string {
	return CodecName
}

// Marshal encodes message.
func (Codec) Marshal(message any) ([]byte, error) {
	data, err := json.Marshal(message)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal message")
	}
	return data, nil
}

// Unmarshal decodes data into message. An empty body leaves message untouched.
func (Codec) Unmarshal(data []byte, message any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, message); err != nil {
		return errors.Wrap(err, "failed to unmarshal message")
	}
	return nil
}
