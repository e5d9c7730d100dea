// Package singer formats Singer.io messages.
package singer

import (
	"github.com/ajitpratap0/tap-twilio/pkg/errors"
	"github.com/ajitpratap0/tap-twilio/pkg/json"
)

// MessageTypeRecord is the type tag of a Singer RECORD message.
const MessageTypeRecord = "RECORD"

// RecordMessage is the envelope wrapping one extracted record. Field order
// is part of the wire format.
type RecordMessage struct {
	Type   string      `json:"type"`
	Stream string      `json:"stream"`
	Record interface{} `json:"record"`
}

// FormatRecord formats a Singer RECORD message for stream. The result has
// no trailing newline.
func FormatRecord(stream string, record interface{}) (string, error) {
	line, err := json.MarshalLine(RecordMessage{
		Type:   MessageTypeRecord,
		Stream: stream,
		Record: record,
	})
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeData, "failed to format record").
			WithDetail("stream", stream)
	}
	return string(line), nil
}
