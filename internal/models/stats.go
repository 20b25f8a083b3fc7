package models

import "time"

// Stats is the gateway's aggregate view. LatestReading is global across topics.
type Stats struct {
	TotalReadings int64
	TotalAlerts   int64
	LatestReading *Reading
}

// LatestReading is the stats document's summary of the newest reading.
type LatestReading struct {
	Topic     string                 `json:"topic,omitempty"`
	Timestamp *time.Time             `json:"timestamp,omitempty"`
	Values    map[string]interface{} `json:"values,omitempty"`
}

// DashboardStats is served by the stats endpoint.
type DashboardStats struct {
	TotalMessages     int64         `json:"total_messages"`
	ActiveAlertsCount int64         `json:"active_alerts_count"`
	LatestReadings    LatestReading `json:"latest_readings"`
}
