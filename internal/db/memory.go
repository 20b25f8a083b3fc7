package db

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"sensor-collector/internal/models"
)

var errUnknownReading = errors.New("reading_id does not reference a stored reading")

// Memory is an in-process gateway used for tests and the memory driver.
type Memory struct {
	mu        sync.RWMutex
	readings  []models.Reading
	alerts    []models.Alert
	byID      map[int64]struct{}
	nextRead  int64
	nextAlert int64
	open      int
	closed    bool
}

func NewMemory() *Memory {
	return &Memory{byID: make(map[int64]struct{})}
}

func (m *Memory) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return errors.New("memory store closed")
	}
	return nil
}

func (m *Memory) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
}

// OpenSessions reports sessions acquired but not yet released.
func (m *Memory) OpenSessions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.open
}

func (m *Memory) Session(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("failed to acquire session: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, errors.New("memory store closed")
	}
	m.open++
	return &memorySession{store: m}, nil
}

func (m *Memory) RecentReadings(ctx context.Context, skip, limit int) ([]models.Reading, error) {
	if err := checkPage(skip); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.recentReadingsLocked(skip, limit), nil
}

func (m *Memory) recentReadingsLocked(skip, limit int) []models.Reading {
	list := []models.Reading{}
	if limit <= 0 || skip >= len(m.readings) {
		return list
	}
	sorted := make([]models.Reading, len(m.readings))
	copy(sorted, m.readings)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Timestamp.Equal(sorted[j].Timestamp) {
			return sorted[i].Timestamp.After(sorted[j].Timestamp)
		}
		return sorted[i].ID > sorted[j].ID
	})
	end := skip + limit
	if end > len(sorted) {
		end = len(sorted)
	}
	for _, r := range sorted[skip:end] {
		list = append(list, cloneReading(r))
	}
	return list
}

func (m *Memory) RecentAlerts(ctx context.Context, skip, limit int) ([]models.Alert, error) {
	if err := checkPage(skip); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := []models.Alert{}
	if limit <= 0 || skip >= len(m.alerts) {
		return list, nil
	}
	sorted := make([]models.Alert, len(m.alerts))
	copy(sorted, m.alerts)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Timestamp.Equal(sorted[j].Timestamp) {
			return sorted[i].Timestamp.After(sorted[j].Timestamp)
		}
		return sorted[i].ID > sorted[j].ID
	})
	end := skip + limit
	if end > len(sorted) {
		end = len(sorted)
	}
	return append(list, sorted[skip:end]...), nil
}

func (m *Memory) Stats(ctx context.Context) (models.Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := models.Stats{
		TotalReadings: int64(len(m.readings)),
		TotalAlerts:   int64(len(m.alerts)),
	}
	if latest := m.recentReadingsLocked(0, 1); len(latest) > 0 {
		st.LatestReading = &latest[0]
	}
	return st, nil
}

func cloneReading(r models.Reading) models.Reading {
	out := r
	if r.Metrics != nil {
		out.Metrics = make(map[string]float64, len(r.Metrics))
		for k, v := range r.Metrics {
			out.Metrics[k] = v
		}
	}
	if r.RawPayload != nil {
		out.RawPayload = make(map[string]interface{}, len(r.RawPayload))
		for k, v := range r.RawPayload {
			out.RawPayload[k] = v
		}
	}
	return out
}

type memorySession struct {
	store    *Memory
	released bool
}

func (s *memorySession) WriteReading(ctx context.Context, r *models.Reading) (int64, error) {
	if s.released {
		return 0, &WriteError{Record: "reading", Err: ErrSessionReleased}
	}
	if err := ctx.Err(); err != nil {
		return 0, &WriteError{Record: "reading", Err: err}
	}
	m := s.store
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextRead++
	r.ID = m.nextRead
	m.readings = append(m.readings, cloneReading(*r))
	m.byID[r.ID] = struct{}{}
	return r.ID, nil
}

func (s *memorySession) WriteAlert(ctx context.Context, a *models.Alert) (int64, error) {
	if s.released {
		return 0, &WriteError{Record: "alert", Err: ErrSessionReleased}
	}
	if err := ctx.Err(); err != nil {
		return 0, &WriteError{Record: "alert", Err: err}
	}
	m := s.store
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byID[a.ReadingID]; !ok {
		return 0, &WriteError{Record: "alert", Err: errUnknownReading}
	}
	m.nextAlert++
	a.ID = m.nextAlert
	m.alerts = append(m.alerts, *a)
	return a.ID, nil
}

func (s *memorySession) Release() {
	if s.released {
		return
	}
	s.released = true
	s.store.mu.Lock()
	s.store.open--
	s.store.mu.Unlock()
}
