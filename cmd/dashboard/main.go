package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/aggregate"
	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/alert"
	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/analysis"
	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/bess"
	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/cloud"
	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/config"
	httpHandlers "github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/http"
	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/live"
	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/repository"
	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/service"
	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/source"
)

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
		log.Fatal().Err(err).Str("backend", config.StoreBackend()).Msg("store open failed")
	}
	defer store.Close()

	src, err := source.New(config.DataSource(), config.BESSAPIURL(), config.MQTTBroker(), config.MQTTTopicPrefix())
	if err != nil {
		log.Fatal().Err(err).Msg("data source")
	}
	catalog := source.NewCatalog(config.DataSource(), bess.New(config.BESSAPIURL(), config.HTTPTimeout()))

	var (
		publisher alert.Publisher  = alert.LogPublisher{}
		archive   analysis.Archive = analysis.NewMemoryArchive()
	)
	if config.UseCloudServices() {
		publisher, archive = cloudServices(ctx)
	}

	var mon *service.Monitor
	hub := live.NewHub(func(deviceID string) any {
		sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if deviceID == "" {
			rows, err := mon.Overview(sctx)
			if err != nil {
				return nil
			}
			return rows
		}
		snap, err := mon.Snapshot(sctx, deviceID)
		if err != nil {
			return nil
		}
		return snap
	})
	mon = service.NewMonitor(src, catalog, store, hub, alert.NewNotifier(publisher), service.MonitorOptions{
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

	an := analysis.NewService(
		analysis.NewClient(config.BESSAPIURL(), config.AITimeout()),
		catalog, store, archive,
		analysis.Options{Model: config.AIModel(), EnergyRate: config.EnergyRate()},
	)

	go hub.Run(ctx)
	liveSrv := &http.Server{Addr: config.LiveAddr(), Handler: live.NewRouter(hub)}
	go func() {
		log.Info().Str("addr", config.LiveAddr()).Msg("live server listening")
		if err := liveSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("live server exit")
		}
	}()

	if n, err := mon.Resume(ctx); err != nil {
		log.Error().Err(err).Msg("resume failed")
	} else if n > 0 {
		log.Info().Int("sessions", n).Msg("streams resumed")
	}

	app := fiber.New(fiber.Config{Immutable: true, ReadTimeout: 30 * time.Second, WriteTimeout: config.AITimeout() + 10*time.Second})
	httpHandlers.Register(app, service.New(store, catalog, mon, an))

	go func() {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		liveSrv.Shutdown(sctx)
		app.ShutdownWithContext(sctx)
	}()

	log.Info().
		Str("addr", config.APIAddr()).
		Str("source", src.Name()).
		Str("store", store.Name()).
		Msg("api listening")
	if err := app.Listen(config.APIAddr()); err != nil {
		log.Error().Err(err).Msg("server exit")
	}
}

// cloudServices builds the SNS publisher and the S3/DynamoDB report
// archive. Missing pieces fall back to the local implementations.
func cloudServices(ctx context.Context) (alert.Publisher, analysis.Archive) {
	var (
		publisher alert.Publisher  = alert.LogPublisher{}
		archive   analysis.Archive = analysis.NewMemoryArchive()
	)
	if arn := config.SNSTopicArn(); arn != "" {
		sns, err := cloud.NewSNSClient(ctx, config.AWSRegion(), arn)
		if err != nil {
			log.Error().Err(err).Msg("sns unavailable, alerts go to the log")
		} else {
			publisher = sns
		}
	}
	s3, err := cloud.NewS3Client(ctx, config.AWSRegion(), config.S3Bucket())
	if err != nil {
		log.Error().Err(err).Msg("s3 unavailable, reports stay in memory")
		return publisher, archive
	}
	index, err := cloud.NewDynamoDBClient(ctx, config.AWSRegion(), config.ReportsTable())
	if err != nil {
		log.Error().Err(err).Msg("dynamodb unavailable, reports stay in memory")
		return publisher, archive
	}
	log.Info().Str("bucket", config.S3Bucket()).Str("table", config.ReportsTable()).Msg("cloud report archive enabled")
	return publisher, analysis.NewCloudArchive(s3, index)
}
