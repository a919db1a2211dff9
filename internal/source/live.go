package source

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/r3labs/sse/v2"
	"github.com/rs/zerolog/log"
	"gopkg.in/cenkalti/backoff.v1"

	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/bess"
)

var errStreamClosed = errors.New("stream closed by server")

// Live subscribes to GET /bess/{id}/stream. Transport errors are retried by
// the SSE client; a stream the server ends cleanly is reopened here.
type Live struct {
	baseURL string
	http    *http.Client
}

func NewLive(baseURL string) *Live {
	// no client timeout: the stream is long-lived
	return &Live{baseURL: baseURL, http: &http.Client{}}
}

func (l *Live) Name() string { return "live" }

func (l *Live) Subscribe(ctx context.Context, deviceID string, opts Options, emit func(Event)) error {
	url := bess.StreamURL(l.baseURL, deviceID, opts.Interval, opts.Date)
	client := sse.NewClient(url)
	client.Connection = l.http

	retry := backoff.NewExponentialBackOff()
	retry.MaxElapsedTime = 0
	client.ReconnectStrategy = backoff.WithContext(retry, ctx)
	client.ReconnectNotify = func(err error, next time.Duration) {
		if ctx.Err() != nil {
			return
		}
		log.Debug().Err(err).Str("device", deviceID).Dur("retry_in", next).Msg("stream reconnect")
		emit(Event{Kind: EventTransportError, Err: err})
	}
	client.OnConnect(func(*sse.Client) {
		emit(Event{Kind: EventConnected})
	})

	// the SSE client reports a clean EOF as success
	closed := backoff.NewExponentialBackOff()
	closed.MaxElapsedTime = 0
	var received atomic.Bool

	log.Info().Str("device", deviceID).Str("url", url).Msg("opening stream")
	for {
		err := client.SubscribeRawWithContext(ctx, func(msg *sse.Event) {
			if len(msg.Data) == 0 {
				return
			}
			received.Store(true)
			r, err := Decode(msg.Data)
			if err != nil {
				emit(Event{Kind: EventMalformed, Err: err})
				return
			}
			emit(Event{Kind: EventReading, Reading: r})
		})
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return err
		}

		if received.Swap(false) {
			closed.Reset()
		}
		wait := closed.NextBackOff()
		log.Debug().Str("device", deviceID).Dur("retry_in", wait).Msg("stream closed by server, reopening")
		emit(Event{Kind: EventTransportError, Err: errStreamClosed})

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}
