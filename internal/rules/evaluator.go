package rules

import "sensor-collector/internal/payload"

// Violation is an in-memory evaluation result; the pipeline turns each one into an Alert.
type Violation struct {
	Metric    string
	Actual    float64
	Threshold float64
}

// Evaluate reports one Violation per metric whose value is strictly greater
// than its catalog bound. Metrics missing from either side are ignored.
func Evaluate(d payload.Decoded, c Catalog) []Violation {
	var out []Violation
	for _, e := range c.entries {
		v, ok := d.Metrics[e.Metric]
		if !ok {
			continue
		}
		if v > e.Threshold {
			out = append(out, Violation{Metric: e.Metric, Actual: v, Threshold: e.Threshold})
		}
	}
	return out
}
