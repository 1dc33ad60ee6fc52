package socket

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
)

var eventNamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

func ValidateEventName(event Event) error {
	if event == "" || !eventNamePattern.MatchString(string(event)) {
		return fmt.Errorf("%w: %q", ErrInvalidEventName, string(event))
	}
	return nil
}

// EncodeEnvelope validates an outbound event and serializes it. data must
// encode to a JSON object or array.
func EncodeEnvelope(event Event, data interface{}) ([]byte, error) {
	if err := ValidateEventName(event); err != nil {
		return nil, err
	}

	raw, err := encodeData(data)
	if err != nil {
		return nil, err
	}

	return json.Marshal(Envelope{Event: event, Data: raw})
}

func encodeData(data interface{}) (json.RawMessage, error) {
	if data == nil {
		return nil, fmt.Errorf("%w: got null", ErrInvalidPayloadShape)
	}

	var raw []byte
	switch v := data.(type) {
	case json.RawMessage:
		raw = v
	default:
		b, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayloadShape, err)
		}
		raw = b
	}

	if !json.Valid(raw) {
		return nil, fmt.Errorf("%w: not valid JSON", ErrInvalidPayloadShape)
	}
	raw = bytes.TrimSpace(raw)
	if raw[0] != '{' && raw[0] != '[' {
		return nil, fmt.Errorf("%w: got %s", ErrInvalidPayloadShape, kindOf(raw))
	}
	return raw, nil
}

// DecodeEnvelope checks an inbound frame. Frames that are not a JSON object
// fail with ErrInvalidPayload; objects without a well-formed event name or
// without a data key fail with ErrInvalidMessageShape.
func DecodeEnvelope(payload []byte) (Envelope, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if fields == nil {
		return Envelope{}, fmt.Errorf("%w: got null", ErrInvalidPayload)
	}

	rawEvent, ok := fields["event"]
	if !ok {
		return Envelope{}, fmt.Errorf("%w: missing event", ErrInvalidMessageShape)
	}
	var name string
	if err := json.Unmarshal(rawEvent, &name); err != nil {
		return Envelope{}, fmt.Errorf("%w: event is %s, not a string", ErrInvalidMessageShape, kindOf(rawEvent))
	}
	if err := ValidateEventName(Event(name)); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrInvalidMessageShape, err)
	}

	data, ok := fields["data"]
	if !ok {
		return Envelope{}, fmt.Errorf("%w: missing data", ErrInvalidMessageShape)
	}

	return Envelope{Event: Event(name), Data: data}, nil
}

func kindOf(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "empty"
	}
	switch raw[0] {
	case '{':
		return "object"
	case '[':
		return "array"
	case '"':
		return "string"
	case 't', 'f':
		return "boolean"
	case 'n':
		return "null"
	default:
		return "number"
	}
}
