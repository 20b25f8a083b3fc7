package payload

import (
	"errors"
	"testing"
)

func TestDecodeValidPayload(t *testing.T) {
	raw := []byte(`{"temperature": 35, "humidity": 50.5, "firmware": "1.2.0", "tags": ["a"]}`)

	d, err := Decode("sensors/device_01", raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if d.Topic != "sensors/device_01" {
		t.Errorf("topic = %q", d.Topic)
	}
	if d.Metrics["temperature"] != 35 {
		t.Errorf("temperature = %v", d.Metrics["temperature"])
	}
	if d.Metrics["humidity"] != 50.5 {
		t.Errorf("humidity = %v", d.Metrics["humidity"])
	}
	if len(d.Metrics) != 2 {
		t.Errorf("expected 2 metrics, got %v", d.Metrics)
	}
	if d.Raw["firmware"] != "1.2.0" {
		t.Errorf("unrecognized key not preserved: %v", d.Raw)
	}
	if _, ok := d.Raw["tags"]; !ok {
		t.Errorf("array value not preserved: %v", d.Raw)
	}
}

func TestDecodeSkipsNonNumericMetrics(t *testing.T) {
	raw := []byte(`{"temperature": "hot", "voltage": true, "current": null, "pressure": {"v": 1}, "humidity": 10}`)

	d, err := Decode("sensors/x", raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(d.Metrics) != 1 {
		t.Fatalf("expected only humidity, got %v", d.Metrics)
	}
	if _, ok := d.Metrics["temperature"]; ok {
		t.Error("string temperature must not be a metric")
	}
	if d.Raw["temperature"] != "hot" {
		t.Errorf("raw value lost: %v", d.Raw["temperature"])
	}
}

func TestDecodeEmptyObject(t *testing.T) {
	d, err := Decode("sensors/x", []byte(`{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(d.Metrics) != 0 || len(d.Raw) != 0 {
		t.Errorf("expected empty decode, got %+v", d)
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	tests := []struct {
		name  string
		topic string
		raw   []byte
	}{
		{"not json", "sensors/x", []byte("hello world")},
		{"truncated", "sensors/x", []byte(`{"temperature": 3`)},
		{"array", "sensors/x", []byte(`[1, 2, 3]`)},
		{"scalar", "sensors/x", []byte(`42`)},
		{"null", "sensors/x", []byte(`null`)},
		{"empty", "sensors/x", []byte("   ")},
		{"invalid utf8", "sensors/x", []byte{'{', '"', 0xff, '"', ':', '1', '}'}},
		{"empty topic", "", []byte(`{"temperature": 1}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.topic, tt.raw)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, ErrMalformedPayload) {
				t.Errorf("expected ErrMalformedPayload, got %v", err)
			}
			var de *DecodeError
			if !errors.As(err, &de) {
				t.Errorf("expected *DecodeError, got %T", err)
			}
		})
	}
}
