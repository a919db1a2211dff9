package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts API requests
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bess_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bess_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// StreamEvents counts subscription events by kind
	StreamEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bess_stream_events_total",
			Help: "Stream events by device and kind",
		},
		[]string{"device_id", "kind"},
	)

	StreamConnected = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bess_stream_connected",
			Help: "1 while the device stream is connected",
		},
		[]string{"device_id"},
	)

	// LatestSOC is the last state of charge seen per device
	LatestSOC = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bess_soc_percent",
			Help: "Latest state of charge per device",
		},
		[]string{"device_id"},
	)

	BucketsFinalized = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bess_buckets_finalized_total",
			Help: "Aggregation buckets finalized into chart points",
		},
		[]string{"device_id"},
	)

	ActiveAlerts = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bess_active_alerts",
			Help: "Alerts currently raised per device and level",
		},
		[]string{"device_id", "level"},
	)

	AnalysisRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bess_analysis_requests_total",
			Help: "AI analysis requests by prompt type and outcome",
		},
		[]string{"prompt_type", "outcome"},
	)

	AnalysisLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bess_analysis_latency_seconds",
			Help:    "AI analysis latency in seconds",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 20, 40, 80, 120},
		},
	)

	// StoreOperations counts persistence calls per backend
	StoreOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bess_store_operations_total",
			Help: "Persistence operations by backend, operation and status",
		},
		[]string{"backend", "operation", "status"},
	)

	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bess_data_cache_total",
			Help: "Device data cache lookups by result",
		},
		[]string{"result"},
	)

	LiveClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bess_live_clients",
			Help: "Connected websocket clients",
		},
	)
)
