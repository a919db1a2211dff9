package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/domain"
)

func TestMemorySeries(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(0)

	_, err := m.LoadSeries(ctx, "BESS-001")
	assert.True(t, errors.Is(err, ErrNotFound))

	points := []domain.ChartPoint{{Time: "01/03 10:00", SOC: 40}}
	require.NoError(t, m.SaveSeries(ctx, "BESS-001", points))
	points[0].SOC = 99

	got, err := m.LoadSeries(ctx, "BESS-001")
	require.NoError(t, err)
	assert.Equal(t, 40.0, got[0].SOC)

	require.NoError(t, m.ClearSeries(ctx, "BESS-001"))
	_, err = m.LoadSeries(ctx, "BESS-001")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMemorySessions(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(0)

	cfg := &domain.StreamConfig{Interval: 2, Date: "2024-03-01"}
	require.NoError(t, m.SaveSession(ctx, domain.Session{DeviceID: "B", Streaming: true, Config: cfg}))
	require.NoError(t, m.SaveSession(ctx, domain.Session{DeviceID: "A", Online: true}))
	cfg.Interval = 9

	s, err := m.LoadSession(ctx, "B")
	require.NoError(t, err)
	assert.True(t, s.Streaming)
	assert.Equal(t, 2.0, s.Config.Interval)

	list, err := m.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "A", list[0].DeviceID)

	require.NoError(t, m.ClearSession(ctx, "B"))
	_, err = m.LoadSession(ctx, "B")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMemoryRawIsBounded(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(0)
	for i := 0; i < 10; i++ {
		require.NoError(t, m.AppendRaw(ctx, "BESS-001", domain.Reading{BMSSOC: domain.Num(float64(i))}, 4))
	}
	all, err := m.LoadRaw(ctx, "BESS-001", 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, 6.0, all[0].BMSSOC.Or(-1))
	assert.Equal(t, 9.0, all[3].BMSSOC.Or(-1))

	last, err := m.LoadRaw(ctx, "BESS-001", 2)
	require.NoError(t, err)
	require.Len(t, last, 2)
	assert.Equal(t, 8.0, last[0].BMSSOC.Or(-1))

	require.NoError(t, m.ClearRaw(ctx, "BESS-001"))
	empty, err := m.LoadRaw(ctx, "BESS-001", 0)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMemoryDataCacheExpires(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Minute)
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	d := &domain.DeviceData{DeviceID: "BESS-001", TotalRecords: 1, Data: []domain.Reading{{BMSSOC: domain.Num(5)}}}
	require.NoError(t, m.PutDeviceData(ctx, "BESS-001", "", d))

	got, err := m.GetDeviceData(ctx, "BESS-001", "default")
	require.NoError(t, err)
	assert.Equal(t, 1, got.TotalRecords)

	_, err = m.GetDeviceData(ctx, "BESS-001", "2024-03-01")
	assert.True(t, errors.Is(err, ErrNotFound))

	now = now.Add(2 * time.Minute)
	_, err = m.GetDeviceData(ctx, "BESS-001", "")
	assert.True(t, errors.Is(err, ErrNotFound))
}
