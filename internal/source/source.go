// Package source provides the reading sources a device stream can be fed
// from: the backend's SSE endpoint, an MQTT topic, or a local synthetic
// generator. Which one is used is a configuration choice, never a runtime
// fallback.
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/bess"
	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/domain"
)

type EventKind int

const (
	EventConnected EventKind = iota
	EventReading
	EventMalformed
	EventTransportError
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventReading:
		return "reading"
	case EventMalformed:
		return "malformed"
	case EventTransportError:
		return "transport_error"
	}
	return "unknown"
}

// Event is one notification from a running subscription. Detail optionally
// carries a source-specific log line for readings.
type Event struct {
	Kind    EventKind
	Reading domain.Reading
	Err     error
	Detail  string
}

type Options struct {
	Interval time.Duration
	Date     string
}

// Source delivers readings for one device until ctx is cancelled. Subscribe
// blocks; emit is called sequentially and in arrival order.
type Source interface {
	Name() string
	Subscribe(ctx context.Context, deviceID string, opts Options, emit func(Event)) error
}

// Catalog lists devices and serves historical batches.
type Catalog interface {
	Devices(ctx context.Context) ([]domain.Device, error)
	Readings(ctx context.Context, deviceID string, q bess.Query) (*domain.DeviceData, error)
}

var ErrServerPayload = errors.New("server error payload")

// Decode parses one stream payload. An object carrying an "error" key is the
// backend reporting a failure in-band and is rejected like any malformed
// payload.
func Decode(data []byte) (domain.Reading, error) {
	var probe struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return domain.Reading{}, fmt.Errorf("invalid payload: %w", err)
	}
	if len(probe.Error) > 0 && string(probe.Error) != "null" {
		var msg string
		if json.Unmarshal(probe.Error, &msg) != nil {
			msg = string(probe.Error)
		}
		return domain.Reading{}, fmt.Errorf("%w: %s", ErrServerPayload, strings.TrimSpace(msg))
	}
	var r domain.Reading
	if err := json.Unmarshal(data, &r); err != nil {
		return domain.Reading{}, fmt.Errorf("invalid payload: %w", err)
	}
	return r, nil
}

func interval(opts Options) time.Duration {
	if opts.Interval <= 0 {
		return 2 * time.Second
	}
	return opts.Interval
}

// New builds the source named by kind: live, synthetic or mqtt.
func New(kind, baseURL, broker, topicPrefix string) (Source, error) {
	switch kind {
	case "", "live":
		return NewLive(baseURL), nil
	case "synthetic", "mock":
		return NewSynthetic(nil), nil
	case "mqtt":
		return NewMQTT(broker, topicPrefix), nil
	}
	return nil, fmt.Errorf("unknown data source %q", kind)
}

// NewCatalog pairs a catalog with the source kind: synthetic streams get the
// synthetic device list, everything else asks the backend.
func NewCatalog(kind string, client *bess.Client) Catalog {
	if kind == "synthetic" || kind == "mock" {
		return NewSyntheticCatalog(nil)
	}
	return client
}
