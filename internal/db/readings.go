package db

import (
	"context"
	"fmt"

	"sensor-collector/internal/models"
)

// pgInsertReading inserts a reading and stores the generated id on r.
func pgInsertReading(ctx context.Context, q pgQuerier, r *models.Reading) (int64, error) {
	query := `
	INSERT INTO sensor_data (
		message_id, timestamp, topic, temperature, humidity, voltage, "current", pressure, raw_payload
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9
	)
	RETURNING id`

	args := []interface{}{r.MessageID, r.Timestamp, r.Topic}
	args = append(args, metricArgs(r)...)
	args = append(args, r.RawPayload) // Directly bind the map as JSONB

	var id int64
	if err := q.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		return 0, &WriteError{Record: "reading", Err: err}
	}
	r.ID = id
	return id, nil
}

// RecentReadings returns readings newest first.
func (d *DB) RecentReadings(ctx context.Context, skip, limit int) ([]models.Reading, error) {
	if err := checkPage(skip); err != nil {
		return nil, err
	}
	return pgRecentReadings(ctx, d.Pool, skip, limit)
}

func pgRecentReadings(ctx context.Context, q pgQuerier, skip, limit int) ([]models.Reading, error) {
	list := []models.Reading{}
	if limit <= 0 {
		return list, nil
	}

	query := `
	SELECT id, message_id, timestamp, topic, temperature, humidity, voltage, "current", pressure, raw_payload
	FROM sensor_data
	ORDER BY timestamp DESC, id DESC
	LIMIT $1 OFFSET $2`

	rows, err := q.Query(ctx, query, limit, skip)
	if err != nil {
		return nil, fmt.Errorf("failed to get readings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r models.Reading
		var raw []byte
		cols := make([]*float64, len(models.KnownMetrics))
		dest := []interface{}{&r.ID, &r.MessageID, &r.Timestamp, &r.Topic}
		for i := range cols {
			dest = append(dest, &cols[i])
		}
		dest = append(dest, &raw)

		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		r.Timestamp = r.Timestamp.UTC()
		r.Metrics = metricsFromColumns(cols)
		if r.RawPayload, err = decodeRaw(raw); err != nil {
			return nil, err
		}
		list = append(list, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate readings: %w", err)
	}
	return list, nil
}
