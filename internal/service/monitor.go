package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/aggregate"
	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/alert"
	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/domain"
	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/metrics"
	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/repository"
	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/source"
	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/stream"
)

var (
	ErrNoSession     = errors.New("no session for device")
	ErrInvalidConfig = errors.New("invalid stream config")
)

const storeTimeout = 5 * time.Second

// Broadcaster pushes updates to connected browsers; live.Hub implements it.
type Broadcaster interface {
	Broadcast(deviceID, msgType string, data any)
}

type MonitorOptions struct {
	Aggregate       aggregate.Options
	RawLimit        int
	MaxLogs         int
	DefaultInterval time.Duration
	Now             func() time.Time
}

// Monitor owns one session per device: its subscriber, its aggregation
// engine and the latest reading with the alerts it raised.
type Monitor struct {
	src      source.Source
	catalog  source.Catalog
	store    repository.Store
	hub      Broadcaster
	notifier *alert.Notifier
	opts     MonitorOptions

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	deviceID string
	sub      *stream.Subscriber
	engine   *aggregate.Engine

	ctl sync.Mutex // serializes StartStream and StopStream

	mu        sync.Mutex // guards the fields below; held while a reading is processed
	online    bool
	streaming bool
	config    *domain.StreamConfig
	latest    *domain.Reading
	alerts    []domain.Alert
}

// NewMonitor wires a monitor. hub and notifier may be nil.
func NewMonitor(src source.Source, catalog source.Catalog, store repository.Store, hub Broadcaster, notifier *alert.Notifier, opts MonitorOptions) *Monitor {
	if opts.RawLimit <= 0 {
		opts.RawLimit = 10000
	}
	if opts.DefaultInterval <= 0 {
		opts.DefaultInterval = 2 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Monitor{
		src:      src,
		catalog:  catalog,
		store:    store,
		hub:      hub,
		notifier: notifier,
		opts:     opts,
		sessions: make(map[string]*session),
	}
}

// open returns the session of deviceID, creating it and restoring its
// persisted state on first use.
func (m *Monitor) open(ctx context.Context, deviceID string) (*session, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("%w: empty device id", ErrInvalidConfig)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[deviceID]; ok {
		return s, nil
	}

	engine := aggregate.New(deviceID, m.store, m.opts.Aggregate)
	history, err := m.store.LoadRaw(ctx, deviceID, m.opts.RawLimit)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		log.Warn().Err(err).Str("device", deviceID).Msg("raw history unavailable")
	}
	if err := engine.Reset(ctx, history); err != nil {
		return nil, err
	}

	s := &session{
		deviceID: deviceID,
		sub:      stream.New(m.src, m.opts.MaxLogs),
		engine:   engine,
	}
	if persisted, err := m.store.LoadSession(ctx, deviceID); err == nil {
		s.online = persisted.Online
		s.streaming = persisted.Streaming
		s.config = persisted.Config
	} else if !errors.Is(err, repository.ErrNotFound) {
		log.Warn().Err(err).Str("device", deviceID).Msg("session state unavailable")
	}
	s.sub.OnReading(func(r domain.Reading) { m.handle(s, r) })

	m.sessions[deviceID] = s
	return s, nil
}

func (m *Monitor) lookup(deviceID string) (*session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[deviceID]
	return s, ok
}

// StartStream (re)starts the live subscription of a device. The bucket in
// progress is discarded; finalized points are kept.
func (m *Monitor) StartStream(ctx context.Context, deviceID string, cfg domain.StreamConfig) error {
	if cfg.Interval < 0 {
		return fmt.Errorf("%w: negative interval", ErrInvalidConfig)
	}
	if cfg.Date != "" {
		if _, err := time.Parse("2006-01-02", cfg.Date); err != nil {
			return fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidConfig)
		}
	}
	if cfg.Interval == 0 {
		cfg.Interval = m.opts.DefaultInterval.Seconds()
	}
	s, err := m.open(ctx, deviceID)
	if err != nil {
		return err
	}

	s.ctl.Lock()
	defer s.ctl.Unlock()

	s.engine.Discard()
	cfg.StartedAt = m.opts.Now()
	s.sub.Start(ctx, deviceID, stream.Options{
		Interval: time.Duration(cfg.Interval * float64(time.Second)),
		Date:     cfg.Date,
	})

	s.mu.Lock()
	s.online = false
	s.streaming = true
	s.config = &cfg
	state := s.state()
	s.mu.Unlock()

	if err := m.store.SaveSession(ctx, state); err != nil {
		log.Error().Err(err).Str("device", deviceID).Msg("failed to persist session")
	}
	m.broadcast(deviceID, "status", state)
	log.Info().Str("device", deviceID).Float64("interval", cfg.Interval).Str("date", cfg.Date).Msg("stream started")
	return nil
}

// StopStream ends the subscription and clears the session flags. The series
// and the persisted raw buffer are kept.
func (m *Monitor) StopStream(ctx context.Context, deviceID string) error {
	s, ok := m.lookup(deviceID)
	if !ok {
		return ErrNoSession
	}

	s.ctl.Lock()
	defer s.ctl.Unlock()

	s.sub.Stop()
	s.engine.Discard()

	s.mu.Lock()
	s.online = false
	s.streaming = false
	s.config = nil
	s.latest = nil
	s.alerts = nil
	state := s.state()
	s.mu.Unlock()

	if m.notifier != nil {
		m.notifier.Forget(deviceID)
	}
	m.clearAlertGauges(deviceID)
	if err := m.store.ClearSession(ctx, deviceID); err != nil {
		log.Error().Err(err).Str("device", deviceID).Msg("failed to clear session")
	}
	m.broadcast(deviceID, "status", state)
	return nil
}

// Resume restarts every persisted session that was streaming.
func (m *Monitor) Resume(ctx context.Context) (int, error) {
	sessions, err := m.store.ListSessions(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list sessions: %w", err)
	}
	resumed := 0
	for _, sess := range sessions {
		if !sess.Streaming {
			continue
		}
		cfg := domain.StreamConfig{}
		if sess.Config != nil {
			cfg = *sess.Config
		}
		if err := m.StartStream(ctx, sess.DeviceID, cfg); err != nil {
			log.Error().Err(err).Str("device", sess.DeviceID).Msg("failed to resume stream")
			continue
		}
		resumed++
	}
	return resumed, nil
}

// Close stops every running subscription.
func (m *Monitor) Close() {
	m.mu.Lock()
	sessions := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()
	for _, s := range sessions {
		s.ctl.Lock()
		s.sub.Stop()
		s.ctl.Unlock()
	}
}

// handle processes one reading on the source goroutine.
func (m *Monitor) handle(s *session, r domain.Reading) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if r.Timestamp.IsZero() {
		r.Timestamp = m.opts.Now()
	}

	s.mu.Lock()
	if !s.online && r.BMSSOC.Valid() {
		s.online = true
		if err := m.store.SaveSession(ctx, s.state()); err != nil {
			log.Error().Err(err).Str("device", s.deviceID).Msg("failed to persist online flag")
		}
	}
	if err := m.store.AppendRaw(ctx, s.deviceID, r, m.opts.RawLimit); err != nil {
		log.Error().Err(err).Str("device", s.deviceID).Msg("failed to append raw reading")
	}
	point, err := s.engine.Ingest(ctx, r)
	if err != nil {
		log.Error().Err(err).Str("device", s.deviceID).Msg("aggregation persist failed")
	}
	alerts := alert.Derive(r)
	changed := !sameAlerts(s.alerts, alerts)
	latest := r
	s.latest = &latest
	s.alerts = alerts
	s.mu.Unlock()

	if soc, ok := r.BMSSOC.Float64(); ok {
		metrics.LatestSOC.WithLabelValues(s.deviceID).Set(soc)
	}
	m.setAlertGauges(s.deviceID, alerts)
	if m.notifier != nil {
		m.notifier.Notify(ctx, s.deviceID, alerts)
	}

	m.broadcast(s.deviceID, "reading", r)
	if changed {
		m.broadcast(s.deviceID, "alerts", alerts)
	}
	if point != nil {
		m.broadcast(s.deviceID, "series", s.engine.Series())
	}
}

func sameAlerts(a, b []domain.Alert) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].Level != b[i].Level || a[i].Message != b[i].Message {
			return false
		}
	}
	return true
}

var alertLevels = []domain.AlertLevel{domain.LevelWarning, domain.LevelCritical}

func (m *Monitor) setAlertGauges(deviceID string, alerts []domain.Alert) {
	counts := map[domain.AlertLevel]int{}
	for _, a := range alerts {
		counts[a.Level]++
	}
	for _, lvl := range alertLevels {
		metrics.ActiveAlerts.WithLabelValues(deviceID, string(lvl)).Set(float64(counts[lvl]))
	}
}

func (m *Monitor) clearAlertGauges(deviceID string) {
	m.setAlertGauges(deviceID, nil)
}

func (m *Monitor) broadcast(deviceID, msgType string, data any) {
	if m.hub != nil {
		m.hub.Broadcast(deviceID, msgType, data)
	}
}

// caller holds s.mu
func (s *session) state() domain.Session {
	out := domain.Session{DeviceID: s.deviceID, Online: s.online, Streaming: s.streaming}
	if s.config != nil {
		cfg := *s.config
		out.Config = &cfg
	}
	return out
}

// Snapshot is everything the device page shows.
type Snapshot struct {
	domain.Session
	Connected bool                         `json:"connected"`
	Latest    *domain.Reading              `json:"latest,omitempty"`
	Alerts    []domain.Alert               `json:"alerts"`
	Levels    map[string]domain.AlertLevel `json:"levels"`
	Series    []domain.ChartPoint          `json:"series"`
	Current   *aggregate.Bucket            `json:"current,omitempty"`
	Logs      []string                     `json:"logs"`
}

// Snapshot opens the device session if needed, restoring its persisted
// series.
func (m *Monitor) Snapshot(ctx context.Context, deviceID string) (*Snapshot, error) {
	s, err := m.open(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	snap := &Snapshot{
		Session: s.state(),
		Alerts:  append([]domain.Alert{}, s.alerts...),
		Levels:  map[string]domain.AlertLevel{},
	}
	if s.latest != nil {
		latest := *s.latest
		snap.Latest = &latest
		snap.Levels = alert.Levels(latest)
	}
	s.mu.Unlock()

	snap.Connected = s.sub.Connected()
	snap.Series = s.engine.Series()
	snap.Current = s.engine.Current()
	snap.Logs = s.sub.Logs()
	return snap, nil
}

func (m *Monitor) Series(ctx context.Context, deviceID string) ([]domain.ChartPoint, error) {
	s, err := m.open(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	return s.engine.Series(), nil
}

// ClearChart drops the series of a device, persisted copy included.
func (m *Monitor) ClearChart(ctx context.Context, deviceID string) error {
	s, err := m.open(ctx, deviceID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	err = s.engine.Clear(ctx)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	m.broadcast(deviceID, "series", []domain.ChartPoint{})
	return nil
}

func (m *Monitor) Alerts(deviceID string) ([]domain.Alert, error) {
	s, ok := m.lookup(deviceID)
	if !ok {
		return nil, ErrNoSession
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Alert{}, s.alerts...), nil
}

func (m *Monitor) Logs(deviceID string) ([]string, error) {
	s, ok := m.lookup(deviceID)
	if !ok {
		return nil, ErrNoSession
	}
	return s.sub.Logs(), nil
}

// DeviceStatus is one row of the overview page.
type DeviceStatus struct {
	domain.Device
	Online    bool     `json:"online"`
	Streaming bool     `json:"streaming"`
	Connected bool     `json:"connected"`
	SOC       *float64 `json:"soc,omitempty"`
	Alerts    int      `json:"alerts"`
}

// Overview lists the catalog devices with their session status. Devices
// with a persisted session but absent from the catalog are appended.
func (m *Monitor) Overview(ctx context.Context) ([]DeviceStatus, error) {
	devices, err := m.catalog.Devices(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	persisted, err := m.store.ListSessions(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("session list unavailable")
	}
	byID := make(map[string]domain.Session, len(persisted))
	for _, p := range persisted {
		byID[p.DeviceID] = p
	}

	out := make([]DeviceStatus, 0, len(devices))
	seen := make(map[string]bool, len(devices))
	for _, d := range devices {
		seen[d.DeviceID] = true
		out = append(out, m.status(d, byID))
	}
	var extra []string
	for id := range byID {
		if !seen[id] {
			extra = append(extra, id)
		}
	}
	sort.Strings(extra)
	for _, id := range extra {
		out = append(out, m.status(domain.Device{DeviceID: id}, byID))
	}
	return out, nil
}

func (m *Monitor) status(d domain.Device, persisted map[string]domain.Session) DeviceStatus {
	st := DeviceStatus{Device: d}
	if p, ok := persisted[d.DeviceID]; ok {
		st.Online, st.Streaming = p.Online, p.Streaming
	}
	s, ok := m.lookup(d.DeviceID)
	if !ok {
		return st
	}
	s.mu.Lock()
	st.Online, st.Streaming = s.online, s.streaming
	st.Alerts = len(s.alerts)
	if s.latest != nil {
		if v, ok := s.latest.BMSSOC.Float64(); ok {
			st.SOC = &v
		}
	}
	s.mu.Unlock()
	st.Connected = s.sub.Connected()
	return st
}
