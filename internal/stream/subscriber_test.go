package stream

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/domain"
	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/source"
)

type fakeSource struct {
	mu        sync.Mutex
	active    int
	maxActive int
	starts    int
	lastOpts  source.Options
	emits     chan func(source.Event)
}

func newFakeSource() *fakeSource {
	return &fakeSource{emits: make(chan func(source.Event), 16)}
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Subscribe(ctx context.Context, _ string, opts source.Options, emit func(source.Event)) error {
	f.mu.Lock()
	f.active++
	f.starts++
	f.lastOpts = opts
	if f.active > f.maxActive {
		f.maxActive = f.active
	}
	f.mu.Unlock()

	emit(source.Event{Kind: source.EventConnected})
	f.emits <- emit
	<-ctx.Done()

	f.mu.Lock()
	f.active--
	f.mu.Unlock()
	return nil
}

func (f *fakeSource) stats() (active, maxActive, starts int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active, f.maxActive, f.starts
}

func (f *fakeSource) next(t *testing.T) func(source.Event) {
	t.Helper()
	select {
	case emit := <-f.emits:
		return emit
	case <-time.After(2 * time.Second):
		t.Fatal("subscription never started")
		return nil
	}
}

func fixedClock() time.Time { return time.Date(2024, 3, 1, 15, 4, 5, 0, time.Local) }

func newTestSubscriber(src source.Source, maxLogs int) *Subscriber {
	s := New(src, maxLogs)
	s.now = fixedClock
	return s
}

func TestStartTwiceKeepsOneSubscription(t *testing.T) {
	src := newFakeSource()
	s := newTestSubscriber(src, 0)

	s.Start(context.Background(), "BESS-001", Options{Interval: time.Second})
	src.next(t)
	s.Start(context.Background(), "BESS-002", Options{Interval: 3 * time.Second, Date: "2024-03-01"})
	src.next(t)

	active, maxActive, starts := src.stats()
	assert.Equal(t, 1, active)
	assert.Equal(t, 1, maxActive)
	assert.Equal(t, 2, starts)
	assert.Equal(t, "BESS-002", s.DeviceID())
	assert.True(t, s.Connected())
	assert.Equal(t, "2024-03-01", src.lastOpts.Date)

	s.Stop()
	active, _, _ = src.stats()
	assert.Equal(t, 0, active)
}

func TestStopTwiceIsSafe(t *testing.T) {
	src := newFakeSource()
	s := newTestSubscriber(src, 0)
	s.Stop()
	assert.Empty(t, s.Logs())

	s.Start(context.Background(), "BESS-001", Options{})
	src.next(t)
	s.Stop()
	s.Stop()

	assert.False(t, s.Connected())
	assert.False(t, s.Active())
	assert.Empty(t, s.DeviceID())
	logs := s.Logs()
	require.Len(t, logs, 2)
	assert.Equal(t, "[15:04:05] Disconnected", logs[0])
	assert.Equal(t, "[15:04:05] Connected to BESS-001", logs[1])
}

func TestStartOutlivesRequestContext(t *testing.T) {
	src := newFakeSource()
	s := newTestSubscriber(src, 0)
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx, "BESS-001", Options{})
	src.next(t)
	cancel()

	time.Sleep(20 * time.Millisecond)
	active, _, _ := src.stats()
	assert.Equal(t, 1, active)
	s.Stop()
}

func TestEventsAreLoggedAndForwarded(t *testing.T) {
	src := newFakeSource()
	s := newTestSubscriber(src, 0)

	var got []domain.Reading
	s.OnReading(func(r domain.Reading) { got = append(got, r) })

	s.Start(context.Background(), "BESS-001", Options{})
	emit := src.next(t)

	emit(source.Event{Kind: source.EventReading, Reading: domain.Reading{BMSSOC: domain.Num(52.3), BMSVoltage: domain.Num(812.4)}})
	emit(source.Event{Kind: source.EventMalformed, Err: errors.New("unexpected end of JSON input")})
	emit(source.Event{Kind: source.EventReading, Reading: domain.Reading{}, Detail: "Mock data: SOC=50.5% V=800.0V CHARGING"})
	emit(source.Event{Kind: source.EventTransportError, Err: errors.New("EOF")})

	require.Len(t, got, 2)
	assert.Equal(t, 52.3, got[0].BMSSOC.Or(-1))
	assert.False(t, s.Connected())
	assert.True(t, s.Active())

	assert.Equal(t, []string{
		"[15:04:05] Connection error - retrying...",
		"[15:04:05] Mock data: SOC=50.5% V=800.0V CHARGING",
		"[15:04:05] Parse error: unexpected end of JSON input",
		"[15:04:05] Data received: SOC=52.3% V=812.4V",
		"[15:04:05] Connected to BESS-001",
	}, s.Logs())

	emit(source.Event{Kind: source.EventConnected})
	assert.True(t, s.Connected())
	s.Stop()
}

func TestStaleEventsAreDropped(t *testing.T) {
	src := newFakeSource()
	s := newTestSubscriber(src, 0)
	calls := 0
	s.OnReading(func(domain.Reading) { calls++ })

	s.Start(context.Background(), "BESS-001", Options{})
	old := src.next(t)
	s.Start(context.Background(), "BESS-002", Options{})
	src.next(t)

	old(source.Event{Kind: source.EventReading, Reading: domain.Reading{BMSSOC: domain.Num(1)}})
	assert.Equal(t, 0, calls)
	s.Stop()
}

func TestLogsAreBounded(t *testing.T) {
	src := newFakeSource()
	s := newTestSubscriber(src, 3)
	s.Start(context.Background(), "BESS-001", Options{})
	emit := src.next(t)

	for i := 0; i < 10; i++ {
		emit(source.Event{Kind: source.EventReading, Reading: domain.Reading{BMSSOC: domain.Num(float64(i))}})
	}
	logs := s.Logs()
	require.Len(t, logs, 3)
	assert.True(t, strings.Contains(logs[0], "SOC=9%"), logs[0])
	assert.True(t, strings.Contains(logs[2], "SOC=7%"), logs[2])
	assert.Contains(t, logs[0], "V=n/a")
	s.Stop()
}
