// Command cloudcheck uploads a test report and indexes it against the
// configured AWS resources. With -notify it also publishes to the SNS topic.
package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/cloud"
	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/config"
)

func main() {
	device := flag.String("device", "BESS-TEST", "device id used for the test entries")
	notify := flag.Bool("notify", false, "also publish a test alert to the SNS topic")
	flag.Parse()

	if err := config.Load(); err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	s3, err := cloud.NewS3Client(ctx, config.AWSRegion(), config.S3Bucket())
	if err != nil {
		log.Fatal().Err(err).Msg("s3 client")
	}
	index, err := cloud.NewDynamoDBClient(ctx, config.AWSRegion(), config.ReportsTable())
	if err != nil {
		log.Fatal().Err(err).Msg("dynamodb client")
	}

	id := uuid.NewString()
	now := time.Now()
	key := fmt.Sprintf("reports/%s/%s/%s.html", *device, now.UTC().Format("2006-01-02"), id)
	url, err := s3.UploadReport(ctx, key, []byte("<p>cloudcheck "+now.Format(time.RFC3339)+"</p>"), "text/html; charset=utf-8")
	if err != nil {
		log.Fatal().Err(err).Msg("upload")
	}
	log.Info().Str("key", key).Str("url", url).Msg("report uploaded")

	if _, err := s3.DownloadReport(ctx, key); err != nil {
		log.Fatal().Err(err).Msg("download")
	}

	entry := cloud.ReportEntry{
		DeviceID:    *device,
		GeneratedAt: now.Unix(),
		ReportID:    id,
		ReportType:  "cloudcheck",
		ObjectKey:   key,
		URL:         url,
	}
	if err := index.PutReport(ctx, entry); err != nil {
		log.Fatal().Err(err).Msg("index put")
	}
	entries, err := index.ListReports(ctx, *device)
	if err != nil {
		log.Fatal().Err(err).Msg("index list")
	}
	log.Info().Int("entries", len(entries)).Str("table", config.ReportsTable()).Msg("report index ok")

	if *notify {
		sns, err := cloud.NewSNSClient(ctx, config.AWSRegion(), config.SNSTopicArn())
		if err != nil {
			log.Fatal().Err(err).Msg("sns client")
		}
		if err := sns.SendAlert(ctx, "BESS cloudcheck", "Test notification for "+*device); err != nil {
			log.Fatal().Err(err).Msg("sns publish")
		}
	}
	log.Info().Msg("cloud check passed")
}
