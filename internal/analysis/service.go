package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/bess"
	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/domain"
	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/markdown"
	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/metrics"
	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/repository"
)

const (
	fetchBatchSize  = 1000
	analyzedRecords = 100

	reportMaxTokens   = 3000
	forecastMaxTokens = 2000
)

var ErrUnsupportedType = errors.New("unsupported analysis type")

var reportTypes = map[PromptType]bool{
	PromptPerformance: true,
	PromptDegradation: true,
	PromptSafety:      true,
	PromptRegulatory:  true,
	PromptFinancial:   true,
}

var forecastTypes = map[PromptType]bool{
	PromptAnomaly:     true,
	PromptDegradation: true,
	PromptPerformance: true,
}

type Kind string

const (
	KindReport   Kind = "report"
	KindForecast Kind = "forecast"
)

// Report is one AI analysis of a device's recent history.
type Report struct {
	ID              string     `json:"id"`
	Kind            Kind       `json:"kind"`
	DeviceID        string     `json:"device_id"`
	ReportType      PromptType `json:"report_type"`
	Period          string     `json:"period,omitempty"`
	RecordsAnalyzed int        `json:"records_analyzed"`
	GeneratedAt     time.Time  `json:"generated_at"`
	AnalysisResult  string     `json:"analysis_result"`
	HTML            string     `json:"html"`
	Summary         *Summary   `json:"summary,omitempty"`
	ModelUsed       string     `json:"model_used,omitempty"`
	TokensUsed      *int       `json:"tokens_used,omitempty"`
	Fallback        bool       `json:"fallback,omitempty"`
	ArchiveURL      string     `json:"archive_url,omitempty"`
}

type Analyzer interface {
	Analyze(ctx context.Context, req Request) (*Result, error)
}

// Catalog serves historical batches; bess.Client and the synthetic catalog
// both satisfy it.
type Catalog interface {
	Readings(ctx context.Context, deviceID string, q bess.Query) (*domain.DeviceData, error)
}

type Options struct {
	Model string
	// EnergyRate is the per-kWh price used for the financial summary.
	EnergyRate float64
	Now        func() time.Time
}

type Service struct {
	ai      Analyzer
	catalog Catalog
	cache   repository.DataCache
	archive Archive
	opts    Options
}

// NewService wires the analysis flow. cache and archive may be nil.
func NewService(ai Analyzer, catalog Catalog, cache repository.DataCache, archive Archive, opts Options) *Service {
	if opts.Model == "" {
		opts.Model = "gpt-4o-mini"
	}
	if opts.EnergyRate <= 0 {
		opts.EnergyRate = 0.20
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{ai: ai, catalog: catalog, cache: cache, archive: archive, opts: opts}
}

func (s *Service) Report(ctx context.Context, deviceID string, reportType PromptType, period string) (*Report, error) {
	if !reportTypes[reportType] {
		return nil, fmt.Errorf("%w: report %q", ErrUnsupportedType, reportType)
	}
	rep, err := s.run(ctx, KindReport, deviceID, reportType, period, reportMaxTokens)
	if err != nil {
		return nil, err
	}
	if s.archive != nil {
		if err := s.archive.Save(ctx, rep); err != nil {
			log.Error().Err(err).Str("device", deviceID).Str("report_id", rep.ID).Msg("report archive failed")
		}
	}
	return rep, nil
}

func (s *Service) Forecast(ctx context.Context, deviceID string, forecastType PromptType, period string) (*Report, error) {
	if !forecastTypes[forecastType] {
		return nil, fmt.Errorf("%w: forecast %q", ErrUnsupportedType, forecastType)
	}
	return s.run(ctx, KindForecast, deviceID, forecastType, period, forecastMaxTokens)
}

// ListReports returns archived reports of a device, newest first.
func (s *Service) ListReports(ctx context.Context, deviceID string) ([]ArchiveEntry, error) {
	if s.archive == nil {
		return []ArchiveEntry{}, nil
	}
	return s.archive.List(ctx, deviceID)
}

func (s *Service) run(ctx context.Context, kind Kind, deviceID string, pt PromptType, period string, maxTokens int) (*Report, error) {
	data, err := s.deviceData(ctx, deviceID, period)
	if err != nil {
		return nil, err
	}
	recent := data.Tail(analyzedRecords)

	res, err := s.ai.Analyze(ctx, Request{
		JSONData:   recent,
		PromptType: pt,
		Model:      s.opts.Model,
		MaxTokens:  maxTokens,
	})
	if err != nil {
		return nil, err
	}

	rep := &Report{
		ID:              uuid.NewString(),
		Kind:            kind,
		DeviceID:        deviceID,
		ReportType:      pt,
		Period:          period,
		RecordsAnalyzed: len(recent.Data),
		GeneratedAt:     s.opts.Now(),
		AnalysisResult:  res.Analysis,
		HTML:            markdown.Render(res.Analysis),
		Summary:         Summarize(recent.Data, s.opts.EnergyRate),
		ModelUsed:       res.ModelUsed,
		TokensUsed:      res.TokensUsed,
		Fallback:        res.Fallback,
	}
	log.Info().
		Str("device", deviceID).
		Str("kind", string(kind)).
		Str("type", string(pt)).
		Int("records", rep.RecordsAnalyzed).
		Bool("fallback", rep.Fallback).
		Msg("analysis generated")
	return rep, nil
}

func (s *Service) deviceData(ctx context.Context, deviceID, period string) (*domain.DeviceData, error) {
	if s.cache != nil {
		d, err := s.cache.GetDeviceData(ctx, deviceID, period)
		if err == nil {
			metrics.CacheHits.WithLabelValues("hit").Inc()
			return d, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			log.Warn().Err(err).Str("device", deviceID).Msg("device data cache read failed")
		}
		metrics.CacheHits.WithLabelValues("miss").Inc()
	}

	d, err := s.catalog.Readings(ctx, deviceID, bess.Query{BatchSize: fetchBatchSize, Date: period})
	if err != nil {
		return nil, fmt.Errorf("fetch device data: %w", err)
	}
	if s.cache != nil {
		if err := s.cache.PutDeviceData(ctx, deviceID, period, d); err != nil {
			log.Warn().Err(err).Str("device", deviceID).Msg("device data cache write failed")
		}
	}
	return d, nil
}
