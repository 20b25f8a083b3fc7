package stats

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"sensor-collector/internal/db"
	"sensor-collector/internal/models"
)

type brokenGateway struct {
	*db.Memory
}

func (brokenGateway) Stats(context.Context) (models.Stats, error) {
	return models.Stats{}, errors.New("connection reset")
}

func TestDashboardEmpty(t *testing.T) {
	got, err := New(db.NewMemory()).Dashboard(context.Background())
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	b, _ := json.Marshal(got)
	want := `{"total_messages":0,"active_alerts_count":0,"latest_readings":{}}`
	if string(b) != want {
		t.Errorf("got %s, want %s", b, want)
	}
}

func TestDashboardLatestReading(t *testing.T) {
	mem := db.NewMemory()
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	s, _ := mem.Session(ctx)
	older := models.Reading{Topic: "sensors/a", Timestamp: base, Metrics: map[string]float64{"temperature": 40}}
	newer := models.Reading{Topic: "sensors/b", Timestamp: base.Add(time.Second),
		Metrics: map[string]float64{"humidity": 55}, RawPayload: map[string]interface{}{"humidity": 55.0, "rssi": -70.0}}
	for _, r := range []*models.Reading{&older, &newer} {
		if _, err := s.WriteReading(ctx, r); err != nil {
			t.Fatal(err)
		}
	}
	a := models.NewAlert(older, "temperature", 40, 30)
	if _, err := s.WriteAlert(ctx, &a); err != nil {
		t.Fatal(err)
	}
	s.Release()

	got, err := New(mem).Dashboard(ctx)
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if got.TotalMessages != 2 || got.ActiveAlertsCount != 1 {
		t.Errorf("totals = %d/%d", got.TotalMessages, got.ActiveAlertsCount)
	}
	lr := got.LatestReadings
	if lr.Topic != "sensors/b" || lr.Timestamp == nil || !lr.Timestamp.Equal(newer.Timestamp) {
		t.Errorf("latest = %+v", lr)
	}
	if lr.Values["rssi"] != -70.0 {
		t.Errorf("values = %v, want raw payload", lr.Values)
	}
}

func TestDashboardPropagatesErrors(t *testing.T) {
	if _, err := New(brokenGateway{db.NewMemory()}).Dashboard(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
