package stream

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/domain"
	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/metrics"
	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/source"
)

const DefaultMaxLogs = 100

type Handler func(domain.Reading)

type Options = source.Options

// Subscriber keeps at most one live subscription open and a bounded,
// newest-first activity log. Handlers run on the source goroutine, outside
// the subscriber's locks; they must not call Start or Stop.
type Subscriber struct {
	src     source.Source
	maxLogs int
	now     func() time.Time

	op sync.Mutex // serializes Start and Stop

	mu        sync.Mutex
	deviceID  string
	connected bool
	logs      []string
	handlers  []Handler
	gen       uint64
	cancel    context.CancelFunc
	done      chan struct{}
}

func New(src source.Source, maxLogs int) *Subscriber {
	if maxLogs <= 0 {
		maxLogs = DefaultMaxLogs
	}
	return &Subscriber{src: src, maxLogs: maxLogs, now: time.Now}
}

func (s *Subscriber) OnReading(h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, h)
}

// Start replaces any running subscription with a new one for deviceID. The
// subscription outlives ctx's cancellation; only Stop or another Start ends it.
func (s *Subscriber) Start(ctx context.Context, deviceID string, opts Options) {
	s.op.Lock()
	defer s.op.Unlock()

	s.teardown()

	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.deviceID = deviceID
	s.connected = false
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		err := s.src.Subscribe(subCtx, deviceID, opts, func(ev source.Event) { s.handle(gen, ev) })
		if err != nil {
			log.Error().Err(err).Str("device", deviceID).Str("source", s.src.Name()).Msg("subscription ended")
			s.mu.Lock()
			if s.gen == gen {
				s.setConnected(false)
				s.appendLog(fmt.Sprintf("Stream ended: %v", err))
			}
			s.mu.Unlock()
		}
	}()
	log.Info().Str("device", deviceID).Str("source", s.src.Name()).Msg("subscription started")
}

// Stop ends the running subscription. Calling it with nothing running does
// nothing.
func (s *Subscriber) Stop() {
	s.op.Lock()
	defer s.op.Unlock()

	s.mu.Lock()
	active := s.cancel != nil
	deviceID := s.deviceID
	s.mu.Unlock()
	if !active {
		return
	}

	s.teardown()

	s.mu.Lock()
	s.gen++
	s.deviceID = ""
	s.appendLog("Disconnected")
	s.mu.Unlock()
	log.Info().Str("device", deviceID).Msg("subscription stopped")
}

// teardown cancels the current subscription and waits for its goroutine.
// Caller holds s.op.
func (s *Subscriber) teardown() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.setConnected(false)
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (s *Subscriber) handle(gen uint64, ev source.Event) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	deviceID := s.deviceID
	metrics.StreamEvents.WithLabelValues(deviceID, ev.Kind.String()).Inc()

	var handlers []Handler
	switch ev.Kind {
	case source.EventConnected:
		s.setConnected(true)
		s.appendLog("Connected to " + deviceID)
	case source.EventReading:
		line := ev.Detail
		if line == "" {
			line = fmt.Sprintf("Data received: SOC=%s%% V=%sV", format(ev.Reading.BMSSOC), format(ev.Reading.BMSVoltage))
		}
		s.appendLog(line)
		handlers = append(handlers, s.handlers...)
	case source.EventMalformed:
		log.Warn().Err(ev.Err).Str("device", deviceID).Msg("dropping malformed payload")
		s.appendLog(fmt.Sprintf("Parse error: %v", ev.Err))
	case source.EventTransportError:
		log.Warn().Err(ev.Err).Str("device", deviceID).Msg("stream connection error")
		s.setConnected(false)
		s.appendLog("Connection error - retrying...")
	}
	s.mu.Unlock()

	for _, h := range handlers {
		h(ev.Reading)
	}
}

func format(n domain.Number) string {
	v, ok := n.Float64()
	if !ok {
		return "n/a"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// caller holds s.mu
func (s *Subscriber) appendLog(msg string) {
	line := fmt.Sprintf("[%s] %s", s.now().Format("15:04:05"), msg)
	s.logs = append([]string{line}, s.logs...)
	if len(s.logs) > s.maxLogs {
		s.logs = s.logs[:s.maxLogs]
	}
}

// caller holds s.mu
func (s *Subscriber) setConnected(v bool) {
	s.connected = v
	if s.deviceID == "" {
		return
	}
	if v {
		metrics.StreamConnected.WithLabelValues(s.deviceID).Set(1)
	} else {
		metrics.StreamConnected.WithLabelValues(s.deviceID).Set(0)
	}
}

func (s *Subscriber) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Active reports whether a subscription is running, connected or not.
func (s *Subscriber) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

func (s *Subscriber) DeviceID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deviceID
}

// Logs returns a copy, newest first.
func (s *Subscriber) Logs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.logs))
	copy(out, s.logs)
	return out
}
