package models

import (
	"encoding/json"
	"time"
)

// Reading is one persisted telemetry sample. It is never updated once written.
type Reading struct {
	ID         int64
	MessageID  string
	Topic      string
	Timestamp  time.Time
	Metrics    map[string]float64
	RawPayload map[string]interface{}
}

// Value returns the metric value and whether the reading carried it.
func (r Reading) Value(metric string) (float64, bool) {
	v, ok := r.Metrics[metric]
	return v, ok
}

// MarshalJSON flattens the known metrics into top-level nullable fields.
func (r Reading) MarshalJSON() ([]byte, error) {
	out := map[string]interface{}{
		"id":          r.ID,
		"message_id":  r.MessageID,
		"topic":       r.Topic,
		"timestamp":   r.Timestamp,
		"raw_payload": r.RawPayload,
	}
	for _, m := range KnownMetrics {
		if v, ok := r.Metrics[m]; ok {
			out[m] = v
		} else {
			out[m] = nil
		}
	}
	return json.Marshal(out)
}
