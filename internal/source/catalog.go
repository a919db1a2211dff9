package source

import (
	"context"
	"fmt"
	"time"

	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/bess"
	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/domain"
)

var mockDevices = []domain.Device{
	{
		DeviceID:           "BESS-001",
		AvailableMetrics:   []string{"bms", "pcs", "aux", "env", "safety"},
		TotalRowsPerMetric: map[string]int{"bms": 1500, "pcs": 1200, "aux": 800, "env": 600, "safety": 300},
	},
	{
		DeviceID:           "BESS-002",
		AvailableMetrics:   []string{"bms", "pcs", "env"},
		TotalRowsPerMetric: map[string]int{"bms": 2100, "pcs": 1800, "env": 900},
	},
	{
		DeviceID:           "BESS-003",
		AvailableMetrics:   []string{},
		TotalRowsPerMetric: map[string]int{},
	},
}

const (
	mockTotalRecords = 1000
	mockDefaultBatch = 50
)

// SyntheticCatalog serves a fixed device list and generated batches, for
// running without a backend.
type SyntheticCatalog struct {
	rnd func() float64
	now func() time.Time
}

func NewSyntheticCatalog(rnd func() float64) *SyntheticCatalog {
	return &SyntheticCatalog{rnd: rnd, now: time.Now}
}

func (c *SyntheticCatalog) Devices(context.Context) ([]domain.Device, error) {
	out := make([]domain.Device, len(mockDevices))
	copy(out, mockDevices)
	return out, nil
}

// Readings generates one reading per minute ending at the current time.
// Date, when given, moves the batch to the end of that day.
func (c *SyntheticCatalog) Readings(_ context.Context, deviceID string, q bess.Query) (*domain.DeviceData, error) {
	n := q.BatchSize
	if n <= 0 {
		n = mockDefaultBatch
	}
	if n > mockTotalRecords {
		n = mockTotalRecords
	}
	end := c.now().Truncate(time.Minute)
	if q.Date != "" {
		day, err := time.ParseInLocation("2006-01-02", q.Date, time.Local)
		if err != nil {
			return nil, fmt.Errorf("invalid date %q: %w", q.Date, err)
		}
		end = day.Add(24*time.Hour - time.Minute)
	}
	end = end.Add(-time.Duration(q.Skip) * time.Minute)

	gen := NewGenerator(c.rnd)
	data := make([]domain.Reading, n)
	for i := range data {
		data[i] = gen.Next(end.Add(-time.Duration(n-1-i) * time.Minute))
	}
	return &domain.DeviceData{
		DeviceID:     deviceID,
		TotalRecords: mockTotalRecords,
		BatchSize:    n,
		Data:         data,
	}, nil
}
