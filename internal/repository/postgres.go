package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/domain"
	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/metrics"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS bess_series (
		device_id  TEXT PRIMARY KEY,
		points     JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS bess_sessions (
		device_id TEXT PRIMARY KEY,
		online    BOOLEAN NOT NULL DEFAULT false,
		streaming BOOLEAN NOT NULL DEFAULT false,
		config    JSONB
	)`,
	`CREATE TABLE IF NOT EXISTS bess_raw (
		id        BIGSERIAL PRIMARY KEY,
		device_id TEXT NOT NULL,
		payload   JSONB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS bess_raw_device_idx ON bess_raw (device_id, id DESC)`,
	`CREATE TABLE IF NOT EXISTS bess_data_cache (
		device_id  TEXT NOT NULL,
		period     TEXT NOT NULL,
		payload    JSONB NOT NULL,
		expires_at TIMESTAMPTZ,
		PRIMARY KEY (device_id, period)
	)`,
}

type Postgres struct {
	db  *sqlx.DB
	ttl time.Duration
}

func NewPostgres(db *sqlx.DB, ttl time.Duration) *Postgres { return &Postgres{db: db, ttl: ttl} }

func (p *Postgres) Name() string { return "postgres" }
func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate: %w", err)
		}
	}
	return nil
}

func (p *Postgres) observe(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		err = ErrNotFound
	}
	status := "ok"
	if err != nil && !errors.Is(err, ErrNotFound) {
		status = "error"
	}
	metrics.StoreOperations.WithLabelValues("postgres", op, status).Inc()
	return err
}

func (p *Postgres) LoadSeries(ctx context.Context, deviceID string) ([]domain.ChartPoint, error) {
	var raw []byte
	if err := p.db.GetContext(ctx, &raw, `SELECT points FROM bess_series WHERE device_id = $1`, deviceID); err != nil {
		return nil, p.observe("load_series", err)
	}
	var points []domain.ChartPoint
	if err := json.Unmarshal(raw, &points); err != nil {
		return nil, fmt.Errorf("failed to decode series: %w", err)
	}
	return points, p.observe("load_series", nil)
}

func (p *Postgres) SaveSeries(ctx context.Context, deviceID string, points []domain.ChartPoint) error {
	b, err := json.Marshal(points)
	if err != nil {
		return fmt.Errorf("failed to marshal series: %w", err)
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO bess_series(device_id, points, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (device_id) DO UPDATE SET points = EXCLUDED.points, updated_at = now()`, deviceID, b)
	return p.observe("save_series", err)
}

func (p *Postgres) ClearSeries(ctx context.Context, deviceID string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM bess_series WHERE device_id = $1`, deviceID)
	return p.observe("clear_series", err)
}

type sessionRow struct {
	DeviceID  string `db:"device_id"`
	Online    bool   `db:"online"`
	Streaming bool   `db:"streaming"`
	Config    []byte `db:"config"`
}

func (row sessionRow) session() domain.Session {
	s := domain.Session{DeviceID: row.DeviceID, Online: row.Online, Streaming: row.Streaming}
	if len(row.Config) > 0 {
		var cfg domain.StreamConfig
		if json.Unmarshal(row.Config, &cfg) == nil {
			s.Config = &cfg
		}
	}
	return s
}

func (p *Postgres) LoadSession(ctx context.Context, deviceID string) (*domain.Session, error) {
	var row sessionRow
	err := p.db.GetContext(ctx, &row, `SELECT device_id, online, streaming, config FROM bess_sessions WHERE device_id = $1`, deviceID)
	if err != nil {
		return nil, p.observe("load_session", err)
	}
	s := row.session()
	return &s, p.observe("load_session", nil)
}

func (p *Postgres) SaveSession(ctx context.Context, s domain.Session) error {
	var cfg []byte
	if s.Config != nil {
		b, err := json.Marshal(s.Config)
		if err != nil {
			return fmt.Errorf("failed to marshal stream config: %w", err)
		}
		cfg = b
	}
	_, err := p.db.ExecContext(ctx, `INSERT INTO bess_sessions(device_id, online, streaming, config) VALUES ($1, $2, $3, $4)
		ON CONFLICT (device_id) DO UPDATE SET online = EXCLUDED.online, streaming = EXCLUDED.streaming, config = EXCLUDED.config`,
		s.DeviceID, s.Online, s.Streaming, cfg)
	return p.observe("save_session", err)
}

func (p *Postgres) ClearSession(ctx context.Context, deviceID string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM bess_sessions WHERE device_id = $1`, deviceID)
	return p.observe("clear_session", err)
}

func (p *Postgres) ListSessions(ctx context.Context) ([]domain.Session, error) {
	var rows []sessionRow
	if err := p.db.SelectContext(ctx, &rows, `SELECT device_id, online, streaming, config FROM bess_sessions ORDER BY device_id`); err != nil {
		return nil, p.observe("list_sessions", err)
	}
	out := make([]domain.Session, len(rows))
	for i, row := range rows {
		out[i] = row.session()
	}
	return out, p.observe("list_sessions", nil)
}

func (p *Postgres) AppendRaw(ctx context.Context, deviceID string, r domain.Reading, limit int) error {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal reading: %w", err)
	}
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return p.observe("append_raw", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO bess_raw(device_id, payload) VALUES ($1, $2)`, deviceID, b); err != nil {
		return p.observe("append_raw", err)
	}
	if limit > 0 {
		_, err := tx.ExecContext(ctx, `DELETE FROM bess_raw WHERE device_id = $1 AND id < (
			SELECT COALESCE(MIN(id), 0) FROM (SELECT id FROM bess_raw WHERE device_id = $1 ORDER BY id DESC LIMIT $2) newest)`,
			deviceID, limit)
		if err != nil {
			return p.observe("append_raw", err)
		}
	}
	return p.observe("append_raw", tx.Commit())
}

func (p *Postgres) LoadRaw(ctx context.Context, deviceID string, limit int) ([]domain.Reading, error) {
	query := `SELECT payload FROM bess_raw WHERE device_id = $1 ORDER BY id DESC`
	args := []any{deviceID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	var payloads [][]byte
	if err := p.db.SelectContext(ctx, &payloads, query, args...); err != nil {
		return nil, p.observe("load_raw", err)
	}
	out := make([]domain.Reading, 0, len(payloads))
	for i := len(payloads) - 1; i >= 0; i-- {
		var r domain.Reading
		if err := json.Unmarshal(payloads[i], &r); err != nil {
			continue
		}
		out = append(out, r)
	}
	return out, p.observe("load_raw", nil)
}

func (p *Postgres) ClearRaw(ctx context.Context, deviceID string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM bess_raw WHERE device_id = $1`, deviceID)
	return p.observe("clear_raw", err)
}

func (p *Postgres) GetDeviceData(ctx context.Context, deviceID, period string) (*domain.DeviceData, error) {
	var raw []byte
	err := p.db.GetContext(ctx, &raw, `SELECT payload FROM bess_data_cache
		WHERE device_id = $1 AND period = $2 AND (expires_at IS NULL OR expires_at > now())`, deviceID, periodKey(period))
	if err != nil {
		return nil, p.observe("get_data", err)
	}
	var d domain.DeviceData
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("failed to decode device data: %w", err)
	}
	return &d, p.observe("get_data", nil)
}

func (p *Postgres) PutDeviceData(ctx context.Context, deviceID, period string, d *domain.DeviceData) error {
	b, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to marshal device data: %w", err)
	}
	var expires *time.Time
	if p.ttl > 0 {
		t := time.Now().Add(p.ttl)
		expires = &t
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO bess_data_cache(device_id, period, payload, expires_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (device_id, period) DO UPDATE SET payload = EXCLUDED.payload, expires_at = EXCLUDED.expires_at`,
		deviceID, periodKey(period), b, expires)
	return p.observe("put_data", err)
}
