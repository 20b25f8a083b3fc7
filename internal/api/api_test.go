package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"sensor-collector/internal/db"
	"sensor-collector/internal/logging"
	"sensor-collector/internal/metrics"
	"sensor-collector/internal/models"
	"sensor-collector/internal/notify"
	"sensor-collector/internal/stats"
)

type failingGateway struct {
	*db.Memory
}

func (failingGateway) RecentReadings(context.Context, int, int) ([]models.Reading, error) {
	return nil, errors.New("database is locked")
}

func (failingGateway) Ping(context.Context) error {
	return errors.New("database is locked")
}

func newTestRouter(t *testing.T, gw db.Gateway) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := logging.NewNop()
	reg := prometheus.NewRegistry()
	h := NewHandler(gw, stats.New(gw), notify.NewHub(logger), logger)
	return NewRouter("/api/v0", h, logger, metrics.New(reg), reg)
}

func seed(t *testing.T, gw db.Gateway) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s, err := gw.Session(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Release()

	for i := 0; i < 3; i++ {
		r := models.Reading{
			MessageID:  "m",
			Topic:      "sensors/device_01",
			Timestamp:  base.Add(time.Duration(i) * time.Second),
			Metrics:    map[string]float64{"temperature": float64(29 + i)},
			RawPayload: map[string]interface{}{"temperature": float64(29 + i)},
		}
		if _, err := s.WriteReading(ctx, &r); err != nil {
			t.Fatal(err)
		}
		if v := r.Metrics["temperature"]; v > 30 {
			a := models.NewAlert(r, "temperature", v, 30)
			if _, err := s.WriteAlert(ctx, &a); err != nil {
				t.Fatal(err)
			}
		}
	}
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestRoot(t *testing.T) {
	w := get(newTestRouter(t, db.NewMemory()), "/")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Sensor Dashboard Backend is running") {
		t.Errorf("body = %s", w.Body)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("missing request id")
	}
}

func TestGetReadings(t *testing.T) {
	mem := db.NewMemory()
	seed(t, mem)
	r := newTestRouter(t, mem)

	for _, path := range []string{"/data", "/api/v0/data"} {
		w := get(r, path+"?limit=2")
		if w.Code != http.StatusOK {
			t.Fatalf("%s: status = %d", path, w.Code)
		}
		var got []map[string]interface{}
		if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
			t.Fatalf("%s: %v", path, err)
		}
		if len(got) != 2 {
			t.Fatalf("%s: expected 2 readings, got %d", path, len(got))
		}
		if got[0]["temperature"] != 31.0 || got[1]["temperature"] != 30.0 {
			t.Errorf("%s: not newest first: %v", path, got)
		}
		if v, ok := got[0]["humidity"]; !ok || v != nil {
			t.Errorf("%s: absent metric should be null, got %v", path, v)
		}
	}
}

func TestGetAlerts(t *testing.T) {
	mem := db.NewMemory()
	seed(t, mem)

	w := get(newTestRouter(t, mem), "/api/v0/alerts")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var got []models.Alert
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ActualValue != 31 || got[0].ViolatedMetric != "temperature" {
		t.Errorf("alerts = %+v", got)
	}
}

func TestEmptyListsAreArrays(t *testing.T) {
	r := newTestRouter(t, db.NewMemory())
	for _, path := range []string{"/data", "/alerts"} {
		w := get(r, path)
		if strings.TrimSpace(w.Body.String()) != "[]" {
			t.Errorf("%s: body = %s", path, w.Body)
		}
	}
}

func TestPaginationValidation(t *testing.T) {
	r := newTestRouter(t, db.NewMemory())
	tests := []struct {
		query string
		code  int
	}{
		{"?skip=0&limit=10", http.StatusOK},
		{"?limit=1000", http.StatusOK},
		{"?skip=-1", http.StatusBadRequest},
		{"?skip=abc", http.StatusBadRequest},
		{"?limit=0", http.StatusBadRequest},
		{"?limit=1001", http.StatusBadRequest},
		{"?limit=ten", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := get(r, "/data"+tt.query)
			if w.Code != tt.code {
				t.Errorf("status = %d, want %d", w.Code, tt.code)
			}
			if tt.code == http.StatusBadRequest && !strings.Contains(w.Body.String(), `"error"`) {
				t.Errorf("body = %s", w.Body)
			}
		})
	}
}

func TestGetStats(t *testing.T) {
	mem := db.NewMemory()
	seed(t, mem)

	w := get(newTestRouter(t, mem), "/stats")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var got models.DashboardStats
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.TotalMessages != 3 || got.ActiveAlertsCount != 1 {
		t.Errorf("stats = %+v", got)
	}
	if got.LatestReadings.Values["temperature"] != 31.0 {
		t.Errorf("latest = %+v", got.LatestReadings)
	}
}

func TestGatewayErrors(t *testing.T) {
	r := newTestRouter(t, failingGateway{db.NewMemory()})

	if w := get(r, "/data"); w.Code != http.StatusInternalServerError {
		t.Errorf("/data status = %d", w.Code)
	}
	if w := get(r, "/health"); w.Code != http.StatusServiceUnavailable {
		t.Errorf("/health status = %d", w.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	r := newTestRouter(t, db.NewMemory())

	if w := get(r, "/health"); w.Code != http.StatusOK {
		t.Errorf("/health status = %d", w.Code)
	}
	get(r, "/data")
	w := get(r, "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `collector_http_requests_total{endpoint="/data",method="GET",status="200"} 1`) {
		t.Errorf("request counter missing from metrics output")
	}
}

func TestCORSPreflight(t *testing.T) {
	r := newTestRouter(t, db.NewMemory())
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/api/v0/data", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
}
