package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"sensor-collector/internal/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sensor_data (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	message_id  TEXT NOT NULL DEFAULT '',
	timestamp   INTEGER NOT NULL,
	topic       TEXT NOT NULL,
	temperature REAL,
	humidity    REAL,
	voltage     REAL,
	"current"   REAL,
	pressure    REAL,
	raw_payload TEXT
);
CREATE INDEX IF NOT EXISTS idx_sensor_data_ts ON sensor_data (timestamp DESC, id DESC);
CREATE INDEX IF NOT EXISTS idx_sensor_data_topic ON sensor_data (topic);

CREATE TABLE IF NOT EXISTS alerts (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	reading_id      INTEGER NOT NULL REFERENCES sensor_data (id),
	message_id      TEXT NOT NULL DEFAULT '',
	timestamp       INTEGER NOT NULL,
	topic           TEXT NOT NULL,
	violated_key    TEXT NOT NULL,
	actual_value    REAL NOT NULL,
	threshold_value REAL NOT NULL,
	message         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_alerts_ts ON alerts (timestamp DESC, id DESC);
`

// SQLite is the default single-file gateway.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) the database file at path and migrates it.
func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite %s: %w", path, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate sqlite %s: %w", path, err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLite) Close() {
	s.db.Close()
}

// Session pins one connection from the database/sql pool.
func (s *SQLite) Session(ctx context.Context) (Session, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	return &sqliteSession{conn: conn}, nil
}

func (s *SQLite) RecentReadings(ctx context.Context, skip, limit int) ([]models.Reading, error) {
	if err := checkPage(skip); err != nil {
		return nil, err
	}
	return sqliteRecentReadings(ctx, s.db, skip, limit)
}

func (s *SQLite) RecentAlerts(ctx context.Context, skip, limit int) ([]models.Alert, error) {
	if err := checkPage(skip); err != nil {
		return nil, err
	}
	list := []models.Alert{}
	if limit <= 0 {
		return list, nil
	}

	rows, err := s.db.QueryContext(ctx, `
	SELECT id, reading_id, message_id, timestamp, topic, violated_key, actual_value, threshold_value, message
	FROM alerts
	ORDER BY timestamp DESC, id DESC
	LIMIT ? OFFSET ?`, limit, skip)
	if err != nil {
		return nil, fmt.Errorf("failed to get alerts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a models.Alert
		var ts int64
		err := rows.Scan(&a.ID, &a.ReadingID, &a.MessageID, &ts, &a.Topic,
			&a.ViolatedMetric, &a.ActualValue, &a.ThresholdValue, &a.Message)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		a.Timestamp = time.Unix(0, ts).UTC()
		list = append(list, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alerts: %w", err)
	}
	return list, nil
}

// Stats reads counts and the latest reading inside one read transaction.
func (s *SQLite) Stats(ctx context.Context) (models.Stats, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return models.Stats{}, fmt.Errorf("failed to begin stats transaction: %w", err)
	}
	defer tx.Rollback()

	var st models.Stats
	err = tx.QueryRowContext(ctx, `SELECT (SELECT COUNT(*) FROM sensor_data), (SELECT COUNT(*) FROM alerts)`).
		Scan(&st.TotalReadings, &st.TotalAlerts)
	if err != nil {
		return models.Stats{}, fmt.Errorf("failed to count records: %w", err)
	}

	latest, err := sqliteRecentReadings(ctx, tx, 0, 1)
	if err != nil {
		return models.Stats{}, err
	}
	if len(latest) > 0 {
		st.LatestReading = &latest[0]
	}
	return st, nil
}

// sqlQuerier is satisfied by *sql.DB, *sql.Tx and *sql.Conn.
type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func sqliteRecentReadings(ctx context.Context, q sqlQuerier, skip, limit int) ([]models.Reading, error) {
	list := []models.Reading{}
	if limit <= 0 {
		return list, nil
	}

	rows, err := q.QueryContext(ctx, `
	SELECT id, message_id, timestamp, topic, temperature, humidity, voltage, "current", pressure, raw_payload
	FROM sensor_data
	ORDER BY timestamp DESC, id DESC
	LIMIT ? OFFSET ?`, limit, skip)
	if err != nil {
		return nil, fmt.Errorf("failed to get readings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r models.Reading
		var ts int64
		var raw sql.NullString
		cols := make([]sql.NullFloat64, len(models.KnownMetrics))
		dest := []interface{}{&r.ID, &r.MessageID, &ts, &r.Topic}
		for i := range cols {
			dest = append(dest, &cols[i])
		}
		dest = append(dest, &raw)

		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		r.Timestamp = time.Unix(0, ts).UTC()

		values := make([]*float64, len(cols))
		for i, c := range cols {
			if c.Valid {
				v := c.Float64
				values[i] = &v
			}
		}
		r.Metrics = metricsFromColumns(values)
		if raw.Valid {
			if r.RawPayload, err = decodeRaw([]byte(raw.String)); err != nil {
				return nil, err
			}
		}
		list = append(list, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate readings: %w", err)
	}
	return list, nil
}

type sqliteSession struct {
	conn *sql.Conn
}

func (s *sqliteSession) WriteReading(ctx context.Context, r *models.Reading) (int64, error) {
	if s.conn == nil {
		return 0, &WriteError{Record: "reading", Err: ErrSessionReleased}
	}
	raw, err := encodeRaw(r.RawPayload)
	if err != nil {
		return 0, &WriteError{Record: "reading", Err: err}
	}
	var rawArg interface{}
	if raw != nil {
		rawArg = string(raw)
	}

	args := []interface{}{r.MessageID, r.Timestamp.UnixNano(), r.Topic}
	args = append(args, metricArgs(r)...)
	args = append(args, rawArg)

	res, err := s.conn.ExecContext(ctx, `
	INSERT INTO sensor_data (
		message_id, timestamp, topic, temperature, humidity, voltage, "current", pressure, raw_payload
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if err != nil {
		return 0, &WriteError{Record: "reading", Err: err}
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, &WriteError{Record: "reading", Err: err}
	}
	r.ID = id
	return id, nil
}

func (s *sqliteSession) WriteAlert(ctx context.Context, a *models.Alert) (int64, error) {
	if s.conn == nil {
		return 0, &WriteError{Record: "alert", Err: ErrSessionReleased}
	}
	res, err := s.conn.ExecContext(ctx, `
	INSERT INTO alerts (
		reading_id, message_id, timestamp, topic, violated_key, actual_value, threshold_value, message
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ReadingID, a.MessageID, a.Timestamp.UnixNano(), a.Topic,
		a.ViolatedMetric, a.ActualValue, a.ThresholdValue, a.Message)
	if err != nil {
		return 0, &WriteError{Record: "alert", Err: err}
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, &WriteError{Record: "alert", Err: err}
	}
	a.ID = id
	return id, nil
}

func (s *sqliteSession) Release() {
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}
