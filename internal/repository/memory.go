package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/domain"
)

type cachedData struct {
	data      domain.DeviceData
	expiresAt time.Time
}

// Memory is the in-process backend. Nothing survives a restart.
type Memory struct {
	mu       sync.RWMutex
	ttl      time.Duration
	now      func() time.Time
	series   map[string][]domain.ChartPoint
	sessions map[string]domain.Session
	raw      map[string][]domain.Reading
	data     map[string]cachedData
}

func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		ttl:      ttl,
		now:      time.Now,
		series:   make(map[string][]domain.ChartPoint),
		sessions: make(map[string]domain.Session),
		raw:      make(map[string][]domain.Reading),
		data:     make(map[string]cachedData),
	}
}

func (m *Memory) Name() string { return "memory" }
func (m *Memory) Close() error { return nil }

func (m *Memory) LoadSeries(_ context.Context, deviceID string) ([]domain.ChartPoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	points, ok := m.series[deviceID]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]domain.ChartPoint(nil), points...), nil
}

func (m *Memory) SaveSeries(_ context.Context, deviceID string, points []domain.ChartPoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.series[deviceID] = append([]domain.ChartPoint(nil), points...)
	return nil
}

func (m *Memory) ClearSeries(_ context.Context, deviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.series, deviceID)
	return nil
}

func (m *Memory) LoadSession(_ context.Context, deviceID string) (*domain.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[deviceID]
	if !ok {
		return nil, ErrNotFound
	}
	return copySession(s), nil
}

func (m *Memory) SaveSession(_ context.Context, s domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.DeviceID] = *copySession(s)
	return nil
}

func (m *Memory) ClearSession(_ context.Context, deviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, deviceID)
	return nil
}

func (m *Memory) ListSessions(context.Context) ([]domain.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, *copySession(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out, nil
}

func (m *Memory) AppendRaw(_ context.Context, deviceID string, r domain.Reading, limit int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf := append(m.raw[deviceID], r)
	if limit > 0 && len(buf) > limit {
		buf = append([]domain.Reading(nil), buf[len(buf)-limit:]...)
	}
	m.raw[deviceID] = buf
	return nil
}

func (m *Memory) LoadRaw(_ context.Context, deviceID string, limit int) ([]domain.Reading, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	buf := m.raw[deviceID]
	if limit > 0 && len(buf) > limit {
		buf = buf[len(buf)-limit:]
	}
	return append([]domain.Reading(nil), buf...), nil
}

func (m *Memory) ClearRaw(_ context.Context, deviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.raw, deviceID)
	return nil
}

func (m *Memory) GetDeviceData(_ context.Context, deviceID, period string) (*domain.DeviceData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.data[deviceID+"|"+periodKey(period)]
	if !ok || (!c.expiresAt.IsZero() && m.now().After(c.expiresAt)) {
		return nil, ErrNotFound
	}
	d := c.data
	d.Data = append([]domain.Reading(nil), c.data.Data...)
	return &d, nil
}

func (m *Memory) PutDeviceData(_ context.Context, deviceID, period string, d *domain.DeviceData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := cachedData{data: *d}
	c.data.Data = append([]domain.Reading(nil), d.Data...)
	if m.ttl > 0 {
		c.expiresAt = m.now().Add(m.ttl)
	}
	m.data[deviceID+"|"+periodKey(period)] = c
	return nil
}

func copySession(s domain.Session) *domain.Session {
	out := s
	if s.Config != nil {
		cfg := *s.Config
		out.Config = &cfg
	}
	return &out
}
