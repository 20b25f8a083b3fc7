package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"sensor-collector/internal/logging"
	"sensor-collector/internal/models"
)

var (
	// ErrWrite is wrapped by every WriteError.
	ErrWrite           = errors.New("write failed")
	ErrSessionReleased = errors.New("session already released")
	ErrInvalidPage     = errors.New("skip must be >= 0")
)

// WriteError reports a reading or alert that could not be stored.
type WriteError struct {
	Record string // "reading" or "alert"
	Err    error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to insert %s: %v", e.Record, e.Err)
}

func (e *WriteError) Unwrap() []error {
	return []error{ErrWrite, e.Err}
}

// Gateway is the durable store shared by the ingest pipeline and the query API.
// Every write is committed before it returns.
type Gateway interface {
	Session(ctx context.Context) (Session, error)
	RecentReadings(ctx context.Context, skip, limit int) ([]models.Reading, error)
	RecentAlerts(ctx context.Context, skip, limit int) ([]models.Alert, error)
	Stats(ctx context.Context) (models.Stats, error)
	Ping(ctx context.Context) error
	Close()
}

// Session is a write handle scoped to one inbound message. Release must be
// called exactly once on every path; further writes fail with ErrSessionReleased.
type Session interface {
	WriteReading(ctx context.Context, r *models.Reading) (int64, error)
	WriteAlert(ctx context.Context, a *models.Alert) (int64, error)
	Release()
}

// Config selects and parameterizes a backend.
type Config struct {
	Driver     string // sqlite, postgres, memory
	DSN        string
	SQLitePath string
}

// Open connects to the configured backend and ensures the schema exists.
func Open(ctx context.Context, cfg Config, logger *logging.Logger) (Gateway, error) {
	switch cfg.Driver {
	case "postgres":
		pg, err := NewPostgres(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		logger.Info("Connected to Postgres")
		return pg, nil
	case "sqlite", "":
		lite, err := NewSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		logger.Infof("Using SQLite: %s", cfg.SQLitePath)
		return lite, nil
	case "memory":
		logger.Warnf("Using in-memory store, data is lost on restart")
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported db driver %q", cfg.Driver)
	}
}

func checkPage(skip int) error {
	if skip < 0 {
		return ErrInvalidPage
	}
	return nil
}

// metricArgs returns the known metric values in column order, nil when absent.
func metricArgs(r *models.Reading) []interface{} {
	args := make([]interface{}, len(models.KnownMetrics))
	for i, m := range models.KnownMetrics {
		if v, ok := r.Metrics[m]; ok {
			v := v
			args[i] = &v
		} else {
			args[i] = (*float64)(nil)
		}
	}
	return args
}

func metricsFromColumns(cols []*float64) map[string]float64 {
	out := make(map[string]float64, len(cols))
	for i, v := range cols {
		if v != nil {
			out[models.KnownMetrics[i]] = *v
		}
	}
	return out
}

func encodeRaw(raw map[string]interface{}) ([]byte, error) {
	if raw == nil {
		return nil, nil
	}
	return json.Marshal(raw)
}

func decodeRaw(b []byte) (map[string]interface{}, error) {
	if len(b) == 0 || string(b) == "null" {
		return nil, nil
	}
	var out map[string]interface{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("failed to decode raw_payload: %w", err)
	}
	return out, nil
}
