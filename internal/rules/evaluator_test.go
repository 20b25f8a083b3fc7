package rules

import (
	"testing"

	"sensor-collector/internal/payload"
)

func decode(t *testing.T, raw string) payload.Decoded {
	t.Helper()
	d, err := payload.Decode("sensors/test", []byte(raw))
	if err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return d
}

func TestEvaluateMultipleViolations(t *testing.T) {
	d := decode(t, `{"temperature": 35, "voltage": 250}`)

	got := Evaluate(d, DefaultCatalog())
	if len(got) != 2 {
		t.Fatalf("expected 2 violations, got %v", got)
	}

	byMetric := map[string]Violation{}
	for _, v := range got {
		byMetric[v.Metric] = v
	}
	if v := byMetric["temperature"]; v.Actual != 35 || v.Threshold != 30.0 {
		t.Errorf("temperature violation = %+v", v)
	}
	if v := byMetric["voltage"]; v.Actual != 250 || v.Threshold != 240.0 {
		t.Errorf("voltage violation = %+v", v)
	}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    []string
	}{
		{"equal to threshold", `{"temperature": 30.0}`, nil},
		{"just above threshold", `{"temperature": 30.0001}`, []string{"temperature"}},
		{"below every threshold", `{"temperature": 20, "humidity": 40, "voltage": 230, "current": 2, "pressure": 1000}`, nil},
		{"absent metrics", `{}`, nil},
		{"non-numeric value", `{"temperature": "99"}`, nil},
		{"boolean value", `{"current": true}`, nil},
		{"unknown key above any bound", `{"rpm": 999999}`, nil},
		{"negative values", `{"temperature": -40}`, nil},
		{"all five exceed", `{"temperature": 31, "humidity": 81, "voltage": 241, "current": 16, "pressure": 1101}`,
			[]string{"current", "humidity", "pressure", "temperature", "voltage"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(decode(t, tt.payload), DefaultCatalog())
			if len(got) != len(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
			for i, v := range got {
				if v.Metric != tt.want[i] {
					t.Errorf("violation %d = %s, want %s", i, v.Metric, tt.want[i])
				}
			}
		})
	}
}

func TestEvaluateCustomCatalog(t *testing.T) {
	c, err := NewCatalog(map[string]float64{"humidity": 10})
	if err != nil {
		t.Fatal(err)
	}

	// temperature is present in the payload but not in the catalog
	got := Evaluate(decode(t, `{"temperature": 1000, "humidity": 11}`), c)
	if len(got) != 1 || got[0].Metric != "humidity" {
		t.Fatalf("expected single humidity violation, got %v", got)
	}
}

func TestEvaluateEmptyCatalog(t *testing.T) {
	if got := Evaluate(decode(t, `{"temperature": 1000}`), Catalog{}); len(got) != 0 {
		t.Errorf("expected no violations, got %v", got)
	}
}
