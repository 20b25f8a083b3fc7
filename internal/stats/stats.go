package stats

import (
	"context"
	"fmt"

	"sensor-collector/internal/db"
	"sensor-collector/internal/models"
)

// Aggregator shapes gateway stats into the dashboard document. It holds no
// state of its own; every call queries the gateway.
type Aggregator struct {
	gateway db.Gateway
}

func New(gw db.Gateway) *Aggregator {
	return &Aggregator{gateway: gw}
}

// Dashboard returns totals and a summary of the globally newest reading.
func (a *Aggregator) Dashboard(ctx context.Context) (models.DashboardStats, error) {
	st, err := a.gateway.Stats(ctx)
	if err != nil {
		return models.DashboardStats{}, fmt.Errorf("failed to load stats: %w", err)
	}

	out := models.DashboardStats{
		TotalMessages:     st.TotalReadings,
		ActiveAlertsCount: st.TotalAlerts,
	}
	if r := st.LatestReading; r != nil {
		ts := r.Timestamp
		values := r.RawPayload
		if values == nil {
			values = make(map[string]interface{}, len(r.Metrics))
			for k, v := range r.Metrics {
				values[k] = v
			}
		}
		out.LatestReadings = models.LatestReading{
			Topic:     r.Topic,
			Timestamp: &ts,
			Values:    values,
		}
	}
	return out, nil
}
