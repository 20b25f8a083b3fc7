package models

// Recognized metric names. Any other payload key is kept in the raw payload only.
const (
	MetricTemperature = "temperature"
	MetricHumidity    = "humidity"
	MetricVoltage     = "voltage"
	MetricCurrent     = "current"
	MetricPressure    = "pressure"
)

// KnownMetrics lists the fixed metric set in storage column order.
var KnownMetrics = []string{
	MetricTemperature,
	MetricHumidity,
	MetricVoltage,
	MetricCurrent,
	MetricPressure,
}

// IsKnownMetric reports whether name belongs to the fixed metric set.
func IsKnownMetric(name string) bool {
	for _, m := range KnownMetrics {
		if m == name {
			return true
		}
	}
	return false
}
