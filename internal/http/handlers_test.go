package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/aggregate"
	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/analysis"
	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/bess"
	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/domain"
	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/repository"
	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/service"
	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/source"
)

// idleSource connects and then waits for cancellation.
type idleSource struct{}

func (idleSource) Name() string { return "idle" }

func (idleSource) Subscribe(ctx context.Context, _ string, _ source.Options, emit func(source.Event)) error {
	emit(source.Event{Kind: source.EventConnected})
	<-ctx.Done()
	return nil
}

type stubCatalog struct{ err error }

func (s stubCatalog) Devices(context.Context) ([]domain.Device, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []domain.Device{{DeviceID: "BESS-001"}}, nil
}

func (s stubCatalog) Readings(_ context.Context, id string, q bess.Query) (*domain.DeviceData, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &domain.DeviceData{DeviceID: id, BatchSize: q.BatchSize, Data: []domain.Reading{{BMSSOC: domain.Num(48)}}}, nil
}

type stubAI struct{}

func (stubAI) Analyze(_ context.Context, req analysis.Request) (*analysis.Result, error) {
	return &analysis.Result{Analysis: "# " + string(req.PromptType), PromptType: req.PromptType, Success: true}, nil
}

func newApp(t *testing.T, cat source.Catalog) *fiber.App {
	t.Helper()
	store := repository.NewMemory(time.Hour)
	mon := service.NewMonitor(idleSource{}, cat, store, nil, nil, service.MonitorOptions{
		Aggregate: aggregate.Options{Location: time.UTC},
	})
	t.Cleanup(mon.Close)
	an := analysis.NewService(stubAI{}, cat, store, analysis.NewMemoryArchive(), analysis.Options{})

	app := fiber.New()
	Register(app, service.New(store, cat, mon, an))
	return app
}

func do(t *testing.T, app *fiber.App, method, path, body string) (int, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	out := map[string]any{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	} else if len(raw) > 0 {
		out["raw"] = string(raw)
	}
	return resp.StatusCode, out
}

func TestHealthAndDevices(t *testing.T) {
	app := newApp(t, stubCatalog{})

	status, body := do(t, app, "GET", "/health", "")
	assert.Equal(t, 200, status)
	assert.Equal(t, "memory", body["store"])

	status, body = do(t, app, "GET", "/devices", "")
	assert.Equal(t, 200, status)
	devices := body["devices"].([]any)
	require.Len(t, devices, 1)
}

func TestUpstreamFailureIs502(t *testing.T) {
	app := newApp(t, stubCatalog{err: bess.ErrUpstream})

	status, body := do(t, app, "GET", "/devices", "")
	assert.Equal(t, 502, status)
	assert.Contains(t, body["error"], "bess backend error")

	status, _ = do(t, app, "GET", "/devices/BESS-001/readings", "")
	assert.Equal(t, 502, status)
}

func TestReadingsValidatesQuery(t *testing.T) {
	app := newApp(t, stubCatalog{})

	status, _ := do(t, app, "GET", "/devices/BESS-001/readings?batch_size=0", "")
	assert.Equal(t, 400, status)
	status, _ = do(t, app, "GET", "/devices/BESS-001/readings?date=yesterday", "")
	assert.Equal(t, 400, status)

	status, body := do(t, app, "GET", "/devices/BESS-001/readings?batch_size=20&date=2024-03-01", "")
	assert.Equal(t, 200, status)
	assert.Equal(t, float64(20), body["batch_size"])
}

func TestStreamLifecycle(t *testing.T) {
	app := newApp(t, stubCatalog{})

	status, _ := do(t, app, "DELETE", "/devices/BESS-001/stream", "")
	assert.Equal(t, 404, status)
	status, _ = do(t, app, "GET", "/devices/BESS-001/alerts", "")
	assert.Equal(t, 404, status)

	status, _ = do(t, app, "POST", "/devices/BESS-001/stream", `{"interval":"2","date":"2024-03-01"}`)
	assert.Equal(t, 202, status)

	status, body := do(t, app, "GET", "/devices/BESS-001", "")
	assert.Equal(t, 200, status)
	assert.Equal(t, true, body["streaming"])
	cfg := body["config"].(map[string]any)
	assert.Equal(t, float64(2), cfg["interval"])
	assert.Equal(t, "2024-03-01", cfg["date"])

	status, _ = do(t, app, "GET", "/devices/BESS-001/logs", "")
	assert.Equal(t, 200, status)

	status, body = do(t, app, "DELETE", "/devices/BESS-001/stream", "")
	assert.Equal(t, 200, status)
	assert.Equal(t, false, body["streaming"])

	status, _ = do(t, app, "POST", "/devices/BESS-001/stream", `{"interval":-3}`)
	assert.Equal(t, 400, status)
}

func TestSeriesEndpoints(t *testing.T) {
	app := newApp(t, stubCatalog{})

	status, body := do(t, app, "GET", "/devices/BESS-001/series", "")
	assert.Equal(t, 200, status)
	assert.Equal(t, "[]", body["raw"])

	status, _ = do(t, app, "DELETE", "/devices/BESS-001/series", "")
	assert.Equal(t, 204, status)
}

func TestReportsAndForecasts(t *testing.T) {
	app := newApp(t, stubCatalog{})

	status, body := do(t, app, "POST", "/reports", `{"device_id":"BESS-001","type":"safety"}`)
	require.Equal(t, 200, status)
	assert.Equal(t, "BESS-001", body["device_id"])
	assert.Equal(t, "safety", body["report_type"])
	assert.Equal(t, float64(1), body["records_analyzed"])
	assert.Contains(t, body["html"], "safety</h1>")

	status, _ = do(t, app, "POST", "/reports", `{"device_id":"BESS-001","type":"anomaly"}`)
	assert.Equal(t, 400, status)
	status, _ = do(t, app, "POST", "/forecasts", `{"device_id":"BESS-001","type":"anomaly"}`)
	assert.Equal(t, 200, status)
	status, _ = do(t, app, "POST", "/forecasts", `{"device_id":"BESS-001"}`)
	assert.Equal(t, 400, status)

	status, _ = do(t, app, "GET", "/reports", "")
	assert.Equal(t, 400, status)
	status, body = do(t, app, "GET", "/reports?device_id=BESS-001", "")
	assert.Equal(t, 200, status)
	assert.Contains(t, body["raw"], `"report_type":"safety"`)
}

func TestMarkdownAndMetrics(t *testing.T) {
	app := newApp(t, stubCatalog{})

	status, body := do(t, app, "POST", "/markdown", `{"markdown":"**hi**"}`)
	assert.Equal(t, 200, status)
	assert.Contains(t, body["html"], ">hi</strong>")

	status, body = do(t, app, "GET", "/metrics", "")
	assert.Equal(t, 200, status)
	assert.Contains(t, body["raw"], "bess_http_requests_total")
}

func TestSessionKeepsDeviceIDAcrossRequests(t *testing.T) {
	app := newApp(t, stubCatalog{})

	status, _ := do(t, app, "POST", "/devices/AAAAAAAA/stream", `{"interval":1}`)
	require.Equal(t, 202, status)
	for i := 0; i < 20; i++ {
		status, _ = do(t, app, "GET", "/devices/ZZZZZZZZ/logs", "")
		assert.Equal(t, 404, status)
	}

	status, _ = do(t, app, "GET", "/devices/AAAAAAAA/logs", "")
	assert.Equal(t, 200, status)

	status, body := do(t, app, "GET", "/overview", "")
	require.Equal(t, 200, status)
	assert.Contains(t, body["raw"], `"device_id":"AAAAAAAA"`)
	assert.NotContains(t, body["raw"], "ZZZZZZZZ")
}
