package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/aggregate"
	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/alert"
	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/bess"
	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/cloud"
	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/config"
	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/domain"
	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/repository"
	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/service"
	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/source"
)

// The ingestor records series without serving the API: it streams every
// device in MONITOR_DEVICES, plus any persisted streaming session, into the
// configured store.
func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if err := config.Load(); err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	zerolog.SetGlobalLevel(config.LogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := repository.Open(ctx, config.StoreBackend())
	if err != nil {
		log.Fatal().Err(err).Msg("store open failed")
	}
	defer store.Close()

	src, err := source.New(config.DataSource(), config.BESSAPIURL(), config.MQTTBroker(), config.MQTTTopicPrefix())
	if err != nil {
		log.Fatal().Err(err).Msg("data source")
	}
	catalog := source.NewCatalog(config.DataSource(), bess.New(config.BESSAPIURL(), config.HTTPTimeout()))

	var publisher alert.Publisher = alert.LogPublisher{}
	if config.UseCloudServices() && config.SNSTopicArn() != "" {
		sns, err := cloud.NewSNSClient(ctx, config.AWSRegion(), config.SNSTopicArn())
		if err != nil {
			log.Error().Err(err).Msg("sns unavailable, alerts go to the log")
		} else {
			publisher = sns
		}
	}

	mon := service.NewMonitor(src, catalog, store, nil, alert.NewNotifier(publisher), service.MonitorOptions{
		Aggregate: aggregate.Options{
			Granularity: aggregate.Granularity(config.Granularity()),
			MaxPoints:   config.SeriesMaxPoints(),
			Missing:     aggregate.MissingPolicy(config.MissingValuePolicy()),
			Location:    config.Location(),
		},
		RawLimit:        config.RawBufferMax(),
		MaxLogs:         config.LogMaxLines(),
		DefaultInterval: config.StreamInterval(),
	})
	defer mon.Close()

	resumed, err := mon.Resume(ctx)
	if err != nil {
		log.Error().Err(err).Msg("resume failed")
	}
	started := 0
	for _, id := range config.MonitorDevices() {
		if err := mon.StartStream(ctx, id, domain.StreamConfig{}); err != nil {
			log.Error().Err(err).Str("device", id).Msg("stream start failed")
			continue
		}
		started++
	}
	if started+resumed == 0 {
		log.Fatal().Msg("nothing to record; set MONITOR_DEVICES")
	}

	log.Info().Int("devices", started).Int("resumed", resumed).Str("store", store.Name()).Msg("ingestor running; Ctrl+C to stop")
	<-ctx.Done()
	log.Info().Msg("ingestor stopping")
}
