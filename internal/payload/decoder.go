package payload

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"sensor-collector/internal/models"
)

// ErrMalformedPayload is wrapped by every DecodeError.
var ErrMalformedPayload = errors.New("malformed payload")

// DecodeError describes why a payload could not be turned into a reading.
type DecodeError struct {
	Topic  string
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode payload on %q: %s: %v", e.Topic, e.Reason, e.Err)
	}
	return fmt.Sprintf("decode payload on %q: %s", e.Topic, e.Reason)
}

func (e *DecodeError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrMalformedPayload, e.Err}
	}
	return []error{ErrMalformedPayload}
}

// Decoded is a structurally valid payload.
// Metrics only holds recognized keys whose values are JSON numbers.
type Decoded struct {
	Topic   string
	Metrics map[string]float64
	Raw     map[string]interface{}
}

// Decode parses raw as a flat JSON object. It has no side effects.
func Decode(topic string, raw []byte) (Decoded, error) {
	if topic == "" {
		return Decoded{}, &DecodeError{Topic: topic, Reason: "empty topic"}
	}
	if !utf8.Valid(raw) {
		return Decoded{}, &DecodeError{Topic: topic, Reason: "payload is not valid UTF-8"}
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return Decoded{}, &DecodeError{Topic: topic, Reason: "empty payload"}
	}
	if trimmed[0] != '{' {
		return Decoded{}, &DecodeError{Topic: topic, Reason: "payload is not a JSON object"}
	}

	var obj map[string]interface{}
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return Decoded{}, &DecodeError{Topic: topic, Reason: "invalid JSON", Err: err}
	}

	d := Decoded{
		Topic:   topic,
		Metrics: make(map[string]float64),
		Raw:     obj,
	}
	for _, name := range models.KnownMetrics {
		// bools, strings, arrays, objects and null are not comparable
		if v, ok := obj[name].(float64); ok {
			d.Metrics[name] = v
		}
	}
	return d, nil
}
