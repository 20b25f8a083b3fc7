package rules

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"sensor-collector/internal/models"
)

var ErrInvalidCatalog = errors.New("invalid threshold catalog")

// Entry is one metric's upper bound.
type Entry struct {
	Metric    string
	Threshold float64
}

// Catalog maps metric names to upper thresholds. The zero value is empty and
// a Catalog is never mutated after construction.
type Catalog struct {
	entries []Entry
	index   map[string]float64
}

// DefaultThresholds are the stock upper bounds for the fixed metric set.
func DefaultThresholds() map[string]float64 {
	return map[string]float64{
		models.MetricTemperature: 30.0,
		models.MetricHumidity:    80.0,
		models.MetricVoltage:     240.0,
		models.MetricCurrent:     15.0,
		models.MetricPressure:    1100.0,
	}
}

// DefaultCatalog returns the catalog built from DefaultThresholds.
func DefaultCatalog() Catalog {
	c, _ := NewCatalog(DefaultThresholds())
	return c
}

// NewCatalog copies thresholds into an immutable catalog.
func NewCatalog(thresholds map[string]float64) (Catalog, error) {
	c := Catalog{
		entries: make([]Entry, 0, len(thresholds)),
		index:   make(map[string]float64, len(thresholds)),
	}
	for name, limit := range thresholds {
		if name == "" {
			return Catalog{}, fmt.Errorf("%w: empty metric name", ErrInvalidCatalog)
		}
		if math.IsNaN(limit) || math.IsInf(limit, 0) {
			return Catalog{}, fmt.Errorf("%w: threshold for %s must be finite", ErrInvalidCatalog, name)
		}
		c.entries = append(c.entries, Entry{Metric: name, Threshold: limit})
		c.index[name] = limit
	}
	sort.Slice(c.entries, func(i, j int) bool { return c.entries[i].Metric < c.entries[j].Metric })
	return c, nil
}

func (c Catalog) Threshold(metric string) (float64, bool) {
	v, ok := c.index[metric]
	return v, ok
}

// Entries returns a copy of the catalog sorted by metric name.
func (c Catalog) Entries() []Entry {
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

func (c Catalog) Len() int { return len(c.entries) }
