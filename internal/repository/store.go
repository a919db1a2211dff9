package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/config"
	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/database"
	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/domain"
)

var ErrNotFound = errors.New("not found")

// SeriesStore persists the finalized chart series of a device.
type SeriesStore interface {
	LoadSeries(ctx context.Context, deviceID string) ([]domain.ChartPoint, error)
	SaveSeries(ctx context.Context, deviceID string, points []domain.ChartPoint) error
	ClearSeries(ctx context.Context, deviceID string) error
}

type SessionStore interface {
	LoadSession(ctx context.Context, deviceID string) (*domain.Session, error)
	SaveSession(ctx context.Context, s domain.Session) error
	ClearSession(ctx context.Context, deviceID string) error
	ListSessions(ctx context.Context) ([]domain.Session, error)
}

// RawStore keeps the most recent raw readings of a device, oldest first.
type RawStore interface {
	AppendRaw(ctx context.Context, deviceID string, r domain.Reading, limit int) error
	LoadRaw(ctx context.Context, deviceID string, limit int) ([]domain.Reading, error)
	ClearRaw(ctx context.Context, deviceID string) error
}

// DataCache holds historical batches fetched for reports, keyed by device
// and period.
type DataCache interface {
	GetDeviceData(ctx context.Context, deviceID, period string) (*domain.DeviceData, error)
	PutDeviceData(ctx context.Context, deviceID, period string, d *domain.DeviceData) error
}

type Store interface {
	SeriesStore
	SessionStore
	RawStore
	DataCache
	Name() string
	Close() error
}

// Open connects the backend named by STORE_BACKEND.
func Open(ctx context.Context, backend string) (Store, error) {
	switch backend {
	case "", "memory":
		return NewMemory(config.CacheTTL()), nil
	case "redis":
		return NewRedis(ctx, config.RedisAddr(), config.RedisPassword(), config.RedisDB(), config.CacheTTL())
	case "postgres":
		db, err := database.Connect()
		if err != nil {
			return nil, fmt.Errorf("db connect: %w", err)
		}
		store := NewPostgres(db, config.CacheTTL())
		if err := store.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
		return store, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", backend)
}

func periodKey(period string) string {
	if period == "" {
		return "default"
	}
	return period
}
