package transport

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Envelope is one decoded response body. A nil slice or pointer means the
// field was absent (or null); an empty, non-nil Messages slice means it was
// present and empty.
type Envelope struct {
	Messages      []json.RawMessage `json:"Messages"`
	MessageID     *int64            `json:"MessageId"`
	TransportData *TransportData    `json:"TransportData"`
}

// TransportData carries transport-level state the server pushes to the client.
type TransportData struct {
	Groups []string `json:"Groups"`
}

// DecodeEnvelope decodes and validates a response body. It returns
// (nil, nil) for a value without fields: {}, [], null or a bare scalar.
// Field names match exactly; "messages" is not "Messages".
func DecodeEnvelope(body string) (*Envelope, error) {
	data := []byte(body)

	var top any
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, err
	}
	switch v := top.(type) {
	case map[string]any:
		if len(v) == 0 {
			return nil, nil
		}
	case []any:
		if len(v) == 0 {
			return nil, nil
		}
		return nil, ErrEnvelopeNotObject
	default:
		return nil, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	var env Envelope
	if err := decodeField(fields, "Messages", &env.Messages); err != nil {
		return nil, err
	}
	if err := decodeField(fields, "MessageId", &env.MessageID); err != nil {
		return nil, err
	}
	if raw, ok := fields["TransportData"]; ok && !isNull(raw) {
		var td map[string]json.RawMessage
		if err := json.Unmarshal(raw, &td); err != nil {
			return nil, fmt.Errorf("TransportData: %w", err)
		}
		env.TransportData = &TransportData{}
		if err := decodeField(td, "Groups", &env.TransportData.Groups); err != nil {
			return nil, err
		}
	}
	if env.Messages != nil && env.MessageID == nil {
		return nil, ErrMissingMessageID
	}
	return &env, nil
}

// decodeField unmarshals fields[name] into dst. Absent and null leave dst untouched.
func decodeField(fields map[string]json.RawMessage, name string, dst any) error {
	raw, ok := fields[name]
	if !ok || isNull(raw) {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}

// GroupsPresent reports whether the envelope replaces the group set.
func (e *Envelope) GroupsPresent() bool {
	return e.TransportData != nil && e.TransportData.Groups != nil
}

// messageText is the form a message is handed to Connection.OnReceived in:
// JSON strings unquoted, anything else as its JSON text.
func messageText(raw json.RawMessage) string {
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return string(raw)
}
