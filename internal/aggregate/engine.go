// Package aggregate turns a reading stream into a chart series: readings
// are grouped into calendar buckets, each bucket keeps a running mean of
// SOC, and completed buckets become chart points.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/domain"
	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/metrics"
	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/repository"
)

type Granularity string

const (
	Minute Granularity = "minute"
	Hour   Granularity = "hour"
)

// MissingPolicy decides what a reading without a usable SOC does.
type MissingPolicy string

const (
	// SkipMissing leaves the bucket untouched.
	SkipMissing MissingPolicy = "skip"
	// ZeroMissing counts the reading as SOC 0.
	ZeroMissing MissingPolicy = "zero"
)

const (
	DefaultMaxPoints = 24 * 60
	labelLayout      = "02/01 15:04"
)

type Options struct {
	Granularity Granularity
	MaxPoints   int
	Missing     MissingPolicy
	Location    *time.Location
	Now         func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Granularity != Hour {
		o.Granularity = Minute
	}
	if o.MaxPoints <= 0 {
		o.MaxPoints = DefaultMaxPoints
	}
	if o.Missing != ZeroMissing {
		o.Missing = SkipMissing
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Bucket accumulates one calendar minute or hour. Mean always equals
// Sum/Count.
type Bucket struct {
	Key   time.Time `json:"key"`
	Start time.Time `json:"start"`
	Sum   float64   `json:"sum"`
	Count int       `json:"count"`
	Mean  float64   `json:"mean"`
}

func (b *Bucket) add(v float64) {
	b.Sum += v
	b.Count++
	b.Mean = b.Sum / float64(b.Count)
}

// Engine aggregates the readings of one device. It is safe for concurrent
// use; ingestion is serialized on its mutex, and so are its series writes.
type Engine struct {
	deviceID string
	opts     Options
	store    repository.SeriesStore

	mu      sync.Mutex
	current *Bucket
	points  []domain.ChartPoint
}

// New creates an engine. store may be nil, in which case nothing is
// persisted.
func New(deviceID string, store repository.SeriesStore, opts Options) *Engine {
	return &Engine{deviceID: deviceID, store: store, opts: opts.withDefaults()}
}

func (e *Engine) key(ts time.Time) time.Time {
	t := ts.In(e.opts.Location)
	m := t.Minute()
	if e.opts.Granularity == Hour {
		m = 0
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), m, 0, 0, e.opts.Location)
}

func (e *Engine) project(b *Bucket) domain.ChartPoint {
	return domain.ChartPoint{
		Time:     b.Key.Format(labelLayout),
		SOC:      math.Round(b.Mean*10) / 10,
		FullTime: b.Start,
	}
}

// Ingest folds r into the current bucket. When r opens a new bucket the
// previous one is finalized, persisted and returned.
func (e *Engine) Ingest(ctx context.Context, r domain.Reading) (*domain.ChartPoint, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	point, ok := e.ingest(r)
	if !ok {
		return nil, nil
	}
	metrics.BucketsFinalized.WithLabelValues(e.deviceID).Inc()
	if err := e.persist(ctx); err != nil {
		return &point, err
	}
	return &point, nil
}

// caller holds e.mu
func (e *Engine) ingest(r domain.Reading) (domain.ChartPoint, bool) {
	v, ok := r.BMSSOC.Float64()
	if !ok {
		if e.opts.Missing == SkipMissing {
			return domain.ChartPoint{}, false
		}
		v = 0
	}

	ts := r.Timestamp
	if ts.IsZero() {
		ts = e.opts.Now()
	}
	key := e.key(ts)
	if e.current != nil && key.Before(e.current.Key) {
		// late arrival for a bucket already closed
		log.Debug().Str("device", e.deviceID).Time("ts", ts).Msg("dropping late reading")
		return domain.ChartPoint{}, false
	}

	var (
		finalized domain.ChartPoint
		done      bool
	)
	if e.current != nil && !e.current.Key.Equal(key) {
		finalized = e.project(e.current)
		e.points = append(e.points, finalized)
		if over := len(e.points) - e.opts.MaxPoints; over > 0 {
			e.points = append([]domain.ChartPoint(nil), e.points[over:]...)
		}
		e.current = nil
		done = true
	}
	if e.current == nil {
		e.current = &Bucket{Key: key, Start: ts}
	}
	e.current.add(v)
	return finalized, done
}

// caller holds e.mu
func (e *Engine) persist(ctx context.Context) error {
	if e.store == nil {
		return nil
	}
	if err := e.store.SaveSeries(ctx, e.deviceID, e.points); err != nil {
		return fmt.Errorf("failed to persist series: %w", err)
	}
	return nil
}

// Series returns the finalized points followed by the bucket in progress,
// unless a finalized point already carries its label.
func (e *Engine) Series() []domain.ChartPoint {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]domain.ChartPoint, len(e.points), len(e.points)+1)
	copy(out, e.points)
	if e.current == nil {
		return out
	}
	p := e.project(e.current)
	for _, existing := range e.points {
		if existing.Time == p.Time {
			return out
		}
	}
	out = append(out, p)
	if over := len(out) - e.opts.MaxPoints; over > 0 {
		out = out[over:]
	}
	return out
}

// Points returns the finalized points only.
func (e *Engine) Points() []domain.ChartPoint {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]domain.ChartPoint{}, e.points...)
}

// Current returns a copy of the bucket in progress, or nil.
func (e *Engine) Current() *Bucket {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return nil
	}
	b := *e.current
	return &b
}

// Reset drops all in-memory state and reloads the persisted series. With
// nothing persisted, history is replayed once in timestamp order and the
// result persisted.
func (e *Engine) Reset(ctx context.Context, history []domain.Reading) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.current = nil
	e.points = nil

	if e.store != nil {
		points, err := e.store.LoadSeries(ctx, e.deviceID)
		switch {
		case err == nil && len(points) > 0:
			if over := len(points) - e.opts.MaxPoints; over > 0 {
				points = points[over:]
			}
			e.points = points
			log.Debug().Str("device", e.deviceID).Int("points", len(points)).Msg("series restored")
			return nil
		case err != nil && !errors.Is(err, repository.ErrNotFound):
			return fmt.Errorf("failed to load series: %w", err)
		}
	}

	if len(history) == 0 {
		return nil
	}
	sorted := append([]domain.Reading(nil), history...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })
	for _, r := range sorted {
		e.ingest(r)
	}
	if len(e.points) == 0 {
		return nil
	}
	log.Debug().Str("device", e.deviceID).Int("points", len(e.points)).Msg("series rebuilt from history")
	return e.persist(ctx)
}

// Discard drops the bucket in progress and keeps finalized points.
func (e *Engine) Discard() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.current = nil
}

// Clear removes every point, in memory and persisted.
func (e *Engine) Clear(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.current = nil
	e.points = nil
	if e.store == nil {
		return nil
	}
	if err := e.store.ClearSeries(ctx, e.deviceID); err != nil {
		return fmt.Errorf("failed to clear series: %w", err)
	}
	return nil
}
