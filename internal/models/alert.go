package models

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Alert records a single metric exceeding its configured threshold.
type Alert struct {
	ID             int64     `json:"id"`
	ReadingID      int64     `json:"reading_id"`
	MessageID      string    `json:"message_id"`
	Topic          string    `json:"topic"`
	Timestamp      time.Time `json:"timestamp"`
	ViolatedMetric string    `json:"violated_key"`
	ActualValue    float64   `json:"actual_value"`
	ThresholdValue float64   `json:"threshold_value"`
	Message        string    `json:"message"`
}

// NewAlert builds an alert from a committed reading.
func NewAlert(r Reading, metric string, actual, threshold float64) Alert {
	return Alert{
		ReadingID:      r.ID,
		MessageID:      r.MessageID,
		Topic:          r.Topic,
		Timestamp:      r.Timestamp,
		ViolatedMetric: metric,
		ActualValue:    actual,
		ThresholdValue: threshold,
		Message:        AlertMessage(metric, actual, threshold),
	}
}

// AlertMessage renders the human readable alert summary.
func AlertMessage(metric string, actual, threshold float64) string {
	return fmt.Sprintf("%s value %s exceeded threshold %s",
		metric,
		formatValue(actual),
		formatValue(threshold),
	)
}

// formatValue prints the shortest round-trip form and always keeps a decimal
// point on whole numbers, so 30 reads as 30.0.
func formatValue(v float64) string {
	if abs := math.Abs(v); abs >= 1e16 || (abs != 0 && abs < 1e-4) {
		return strconv.FormatFloat(v, 'e', -1, 64)
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
