package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"sensor-collector/internal/models"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS sensor_data (
	id          BIGSERIAL PRIMARY KEY,
	message_id  TEXT NOT NULL DEFAULT '',
	timestamp   TIMESTAMPTZ NOT NULL DEFAULT now(),
	topic       VARCHAR(255) NOT NULL,
	temperature DOUBLE PRECISION,
	humidity    DOUBLE PRECISION,
	voltage     DOUBLE PRECISION,
	"current"   DOUBLE PRECISION,
	pressure    DOUBLE PRECISION,
	raw_payload JSONB
);
CREATE INDEX IF NOT EXISTS idx_sensor_data_ts ON sensor_data (timestamp DESC, id DESC);
CREATE INDEX IF NOT EXISTS idx_sensor_data_topic ON sensor_data (topic);

CREATE TABLE IF NOT EXISTS alerts (
	id              BIGSERIAL PRIMARY KEY,
	reading_id      BIGINT NOT NULL REFERENCES sensor_data (id),
	message_id      TEXT NOT NULL DEFAULT '',
	timestamp       TIMESTAMPTZ NOT NULL DEFAULT now(),
	topic           VARCHAR(255) NOT NULL,
	violated_key    VARCHAR(50) NOT NULL,
	actual_value    DOUBLE PRECISION NOT NULL,
	threshold_value DOUBLE PRECISION NOT NULL,
	message         VARCHAR(255) NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_alerts_ts ON alerts (timestamp DESC, id DESC);
CREATE INDEX IF NOT EXISTS idx_alerts_topic ON alerts (topic);
`

// pgQuerier is satisfied by *pgxpool.Pool, *pgxpool.Conn and pgx.Tx.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB is the Postgres gateway backed by a pgx connection pool.
type DB struct {
	Pool *pgxpool.Pool
}

// NewPostgres connects, pings and migrates.
func NewPostgres(ctx context.Context, dsn string) (*DB, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &DB{Pool: pool}, nil
}

func (d *DB) Ping(ctx context.Context) error {
	return d.Pool.Ping(ctx)
}

func (d *DB) Close() {
	d.Pool.Close()
}

// Session acquires one pooled connection for the lifetime of a message.
func (d *DB) Session(ctx context.Context) (Session, error) {
	conn, err := d.Pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	return &pgSession{conn: conn}, nil
}

// Stats reads counts and the latest reading from one snapshot.
func (d *DB) Stats(ctx context.Context) (models.Stats, error) {
	tx, err := d.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return models.Stats{}, fmt.Errorf("failed to begin stats transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var s models.Stats
	err = tx.QueryRow(ctx, `SELECT (SELECT COUNT(*) FROM sensor_data), (SELECT COUNT(*) FROM alerts)`).
		Scan(&s.TotalReadings, &s.TotalAlerts)
	if err != nil {
		return models.Stats{}, fmt.Errorf("failed to count records: %w", err)
	}

	latest, err := pgRecentReadings(ctx, tx, 0, 1)
	if err != nil {
		return models.Stats{}, err
	}
	if len(latest) > 0 {
		s.LatestReading = &latest[0]
	}
	return s, nil
}

type pgSession struct {
	conn *pgxpool.Conn
}

func (s *pgSession) WriteReading(ctx context.Context, r *models.Reading) (int64, error) {
	if s.conn == nil {
		return 0, &WriteError{Record: "reading", Err: ErrSessionReleased}
	}
	return pgInsertReading(ctx, s.conn, r)
}

func (s *pgSession) WriteAlert(ctx context.Context, a *models.Alert) (int64, error) {
	if s.conn == nil {
		return 0, &WriteError{Record: "alert", Err: ErrSessionReleased}
	}
	return pgInsertAlert(ctx, s.conn, a)
}

func (s *pgSession) Release() {
	if s.conn != nil {
		s.conn.Release()
		s.conn = nil
	}
}
