package db

import (
	"context"
	"fmt"

	"sensor-collector/internal/models"
)

// pgInsertAlert inserts an alert and stores the generated id on a.
func pgInsertAlert(ctx context.Context, q pgQuerier, a *models.Alert) (int64, error) {
	query := `
	INSERT INTO alerts (
		reading_id, message_id, timestamp, topic, violated_key, actual_value, threshold_value, message
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8
	)
	RETURNING id`

	var id int64
	err := q.QueryRow(ctx, query,
		a.ReadingID,
		a.MessageID,
		a.Timestamp,
		a.Topic,
		a.ViolatedMetric,
		a.ActualValue,
		a.ThresholdValue,
		a.Message,
	).Scan(&id)
	if err != nil {
		return 0, &WriteError{Record: "alert", Err: err}
	}
	a.ID = id
	return id, nil
}

// RecentAlerts returns alerts newest first.
func (d *DB) RecentAlerts(ctx context.Context, skip, limit int) ([]models.Alert, error) {
	if err := checkPage(skip); err != nil {
		return nil, err
	}
	list := []models.Alert{}
	if limit <= 0 {
		return list, nil
	}

	query := `
	SELECT id, reading_id, message_id, timestamp, topic, violated_key, actual_value, threshold_value, message
	FROM alerts
	ORDER BY timestamp DESC, id DESC
	LIMIT $1 OFFSET $2`

	rows, err := d.Pool.Query(ctx, query, limit, skip)
	if err != nil {
		return nil, fmt.Errorf("failed to get alerts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a models.Alert
		err := rows.Scan(
			&a.ID,
			&a.ReadingID,
			&a.MessageID,
			&a.Timestamp,
			&a.Topic,
			&a.ViolatedMetric,
			&a.ActualValue,
			&a.ThresholdValue,
			&a.Message,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		a.Timestamp = a.Timestamp.UTC()
		list = append(list, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alerts: %w", err)
	}
	return list, nil
}
