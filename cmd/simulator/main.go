package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/config"
	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/source"
)

// The simulator publishes synthetic readings for MONITOR_DEVICES (BESS-001
// when unset) to MQTT, one per STREAM_INTERVAL, until interrupted.
func main() {
	if err := config.Load(); err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pub, err := source.NewPublisher(config.MQTTBroker(), config.MQTTTopicPrefix())
	if err != nil {
		log.Fatal().Err(err).Msg("mqtt connect")
	}
	defer pub.Close()

	devices := config.MonitorDevices()
	if len(devices) == 0 {
		devices = []string{"BESS-001"}
	}
	gens := make(map[string]*source.Generator, len(devices))
	for _, id := range devices {
		gens[id] = source.NewGenerator(nil)
	}

	ticker := time.NewTicker(config.StreamInterval())
	defer ticker.Stop()

	sent := 0
	for {
		select {
		case <-ctx.Done():
			log.Info().Int("published", sent).Msg("simulation done")
			return
		case now := <-ticker.C:
			for _, id := range devices {
				g := gens[id]
				r := g.Next(now)
				if err := pub.Publish(id, r); err != nil {
					log.Error().Err(err).Str("device", id).Msg("publish failed")
					continue
				}
				sent++
				log.Debug().Str("device", id).Msg(source.Describe(r, g.Charging()))
			}
		}
	}
}
