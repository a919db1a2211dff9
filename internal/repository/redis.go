package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/domain"
	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/metrics"
)

const (
	seriesKey   = "bess:series:%s"
	sessionKey  = "bess:session:%s"
	sessionsSet = "bess:sessions"
	rawKey      = "bess:raw:%s"
	dataKey     = "bess:data:%s:%s"
)

// Redis stores everything as JSON values; the raw buffer is a capped list
// with the newest reading at the head.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(ctx context.Context, addr, password string, db int, ttl time.Duration) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     20,
		MinIdleConns: 2,
		MaxRetries:   3,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisFromClient(client, ttl), nil
}

func NewRedisFromClient(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func (r *Redis) Name() string { return "redis" }
func (r *Redis) Close() error { return r.client.Close() }

func (r *Redis) observe(op string, err error) error {
	status := "ok"
	if err != nil && !errors.Is(err, ErrNotFound) {
		status = "error"
	}
	metrics.StoreOperations.WithLabelValues("redis", op, status).Inc()
	return err
}

func (r *Redis) getJSON(ctx context.Context, key string, out any) error {
	b, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}

func (r *Redis) LoadSeries(ctx context.Context, deviceID string) ([]domain.ChartPoint, error) {
	var points []domain.ChartPoint
	err := r.getJSON(ctx, fmt.Sprintf(seriesKey, deviceID), &points)
	return points, r.observe("load_series", err)
}

func (r *Redis) SaveSeries(ctx context.Context, deviceID string, points []domain.ChartPoint) error {
	b, err := json.Marshal(points)
	if err != nil {
		return fmt.Errorf("failed to marshal series: %w", err)
	}
	return r.observe("save_series", r.client.Set(ctx, fmt.Sprintf(seriesKey, deviceID), b, 0).Err())
}

func (r *Redis) ClearSeries(ctx context.Context, deviceID string) error {
	return r.observe("clear_series", r.client.Del(ctx, fmt.Sprintf(seriesKey, deviceID)).Err())
}

func (r *Redis) LoadSession(ctx context.Context, deviceID string) (*domain.Session, error) {
	var s domain.Session
	if err := r.getJSON(ctx, fmt.Sprintf(sessionKey, deviceID), &s); err != nil {
		return nil, r.observe("load_session", err)
	}
	return &s, r.observe("load_session", nil)
}

func (r *Redis) SaveSession(ctx context.Context, s domain.Session) error {
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, fmt.Sprintf(sessionKey, s.DeviceID), b, 0)
	pipe.SAdd(ctx, sessionsSet, s.DeviceID)
	_, err = pipe.Exec(ctx)
	return r.observe("save_session", err)
}

func (r *Redis) ClearSession(ctx context.Context, deviceID string) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, fmt.Sprintf(sessionKey, deviceID))
	pipe.SRem(ctx, sessionsSet, deviceID)
	_, err := pipe.Exec(ctx)
	return r.observe("clear_session", err)
}

func (r *Redis) ListSessions(ctx context.Context) ([]domain.Session, error) {
	ids, err := r.client.SMembers(ctx, sessionsSet).Result()
	if err != nil {
		return nil, r.observe("list_sessions", err)
	}
	sort.Strings(ids)
	out := make([]domain.Session, 0, len(ids))
	for _, id := range ids {
		s, err := r.LoadSession(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, r.observe("list_sessions", nil)
}

func (r *Redis) AppendRaw(ctx context.Context, deviceID string, rd domain.Reading, limit int) error {
	b, err := json.Marshal(rd)
	if err != nil {
		return fmt.Errorf("failed to marshal reading: %w", err)
	}
	key := fmt.Sprintf(rawKey, deviceID)
	pipe := r.client.Pipeline()
	pipe.LPush(ctx, key, b)
	if limit > 0 {
		pipe.LTrim(ctx, key, 0, int64(limit-1))
	}
	_, err = pipe.Exec(ctx)
	return r.observe("append_raw", err)
}

func (r *Redis) LoadRaw(ctx context.Context, deviceID string, limit int) ([]domain.Reading, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	items, err := r.client.LRange(ctx, fmt.Sprintf(rawKey, deviceID), 0, stop).Result()
	if err != nil {
		return nil, r.observe("load_raw", err)
	}
	out := make([]domain.Reading, 0, len(items))
	for i := len(items) - 1; i >= 0; i-- {
		var rd domain.Reading
		if err := json.Unmarshal([]byte(items[i]), &rd); err != nil {
			continue
		}
		out = append(out, rd)
	}
	return out, r.observe("load_raw", nil)
}

func (r *Redis) ClearRaw(ctx context.Context, deviceID string) error {
	return r.observe("clear_raw", r.client.Del(ctx, fmt.Sprintf(rawKey, deviceID)).Err())
}

func (r *Redis) GetDeviceData(ctx context.Context, deviceID, period string) (*domain.DeviceData, error) {
	var d domain.DeviceData
	if err := r.getJSON(ctx, fmt.Sprintf(dataKey, deviceID, periodKey(period)), &d); err != nil {
		return nil, r.observe("get_data", err)
	}
	return &d, r.observe("get_data", nil)
}

func (r *Redis) PutDeviceData(ctx context.Context, deviceID, period string, d *domain.DeviceData) error {
	b, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to marshal device data: %w", err)
	}
	return r.observe("put_data", r.client.Set(ctx, fmt.Sprintf(dataKey, deviceID, periodKey(period)), b, r.ttl).Err())
}
