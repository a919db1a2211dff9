package http

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/analysis"
	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/bess"
	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/domain"
	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/markdown"
	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/metrics"
	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/repository"
	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/service"
)

const maxBatchSize = 10000

type streamRequest struct {
	Interval domain.Number `json:"interval"`
	Date     string        `json:"date"`
}

type analysisRequest struct {
	DeviceID string `json:"device_id"`
	Type     string `json:"type"`
	Period   string `json:"period"`
}

func Register(app *fiber.App, svcs *service.Services) {
	app.Use(observe)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "store": svcs.Store.Name()})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	app.Get("/devices", func(c *fiber.Ctx) error {
		devices, err := svcs.Catalog.Devices(c.UserContext())
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{"devices": devices})
	})
	app.Get("/overview", func(c *fiber.Ctx) error {
		rows, err := svcs.Monitor.Overview(c.UserContext())
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(rows)
	})

	d := app.Group("/devices/:id")
	d.Get("/", func(c *fiber.Ctx) error {
		snap, err := svcs.Monitor.Snapshot(c.UserContext(), deviceID(c))
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(snap)
	})
	d.Get("/readings", func(c *fiber.Ctx) error {
		q := bess.Query{
			BatchSize: c.QueryInt("batch_size", 100),
			Skip:      c.QueryInt("skip", 0),
			Date:      c.Query("date"),
		}
		if q.BatchSize <= 0 || q.BatchSize > maxBatchSize || q.Skip < 0 {
			return badRequest(c, "batch_size must be 1-"+strconv.Itoa(maxBatchSize)+" and skip non-negative")
		}
		if q.Date != "" && !validDate(q.Date) {
			return badRequest(c, "date must be YYYY-MM-DD")
		}
		data, err := svcs.Catalog.Readings(c.UserContext(), deviceID(c), q)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(data)
	})
	d.Post("/stream", func(c *fiber.Ctx) error {
		var req streamRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return badRequest(c, "invalid body")
			}
		}
		cfg := domain.StreamConfig{Interval: req.Interval.Or(0), Date: req.Date}
		if err := svcs.Monitor.StartStream(c.UserContext(), deviceID(c), cfg); err != nil {
			return fail(c, err)
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"device_id": deviceID(c), "streaming": true})
	})
	d.Delete("/stream", func(c *fiber.Ctx) error {
		if err := svcs.Monitor.StopStream(c.UserContext(), deviceID(c)); err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{"device_id": deviceID(c), "streaming": false})
	})
	d.Get("/series", func(c *fiber.Ctx) error {
		series, err := svcs.Monitor.Series(c.UserContext(), deviceID(c))
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(series)
	})
	d.Delete("/series", func(c *fiber.Ctx) error {
		if err := svcs.Monitor.ClearChart(c.UserContext(), deviceID(c)); err != nil {
			return fail(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
	d.Get("/alerts", func(c *fiber.Ctx) error {
		alerts, err := svcs.Monitor.Alerts(deviceID(c))
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(alerts)
	})
	d.Get("/logs", func(c *fiber.Ctx) error {
		logs, err := svcs.Monitor.Logs(deviceID(c))
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(logs)
	})

	app.Post("/reports", func(c *fiber.Ctx) error {
		return runAnalysis(c, svcs.Analysis.Report)
	})
	app.Post("/forecasts", func(c *fiber.Ctx) error {
		return runAnalysis(c, svcs.Analysis.Forecast)
	})
	app.Get("/reports", func(c *fiber.Ctx) error {
		deviceID := utils.CopyString(c.Query("device_id"))
		if deviceID == "" {
			return badRequest(c, "device_id is required")
		}
		entries, err := svcs.Analysis.ListReports(c.UserContext(), deviceID)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(entries)
	})

	app.Post("/markdown", func(c *fiber.Ctx) error {
		var req struct {
			Markdown string `json:"markdown"`
		}
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid body")
		}
		return c.JSON(fiber.Map{"html": markdown.Render(req.Markdown)})
	})
}

type analysisFunc func(ctx context.Context, deviceID string, pt analysis.PromptType, period string) (*analysis.Report, error)

func runAnalysis(c *fiber.Ctx, run analysisFunc) error {
	var req analysisRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if req.DeviceID == "" || req.Type == "" {
		return badRequest(c, "device_id and type are required")
	}
	if req.Period != "" && !validDate(req.Period) {
		return badRequest(c, "period must be YYYY-MM-DD")
	}
	rep, err := run(c.UserContext(), req.DeviceID, analysis.PromptType(req.Type), req.Period)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(rep)
}

// deviceID copies the route param; fiber reuses the request buffer it points
// into, and the monitor keeps the id as a session key.
func deviceID(c *fiber.Ctx) string {
	return utils.CopyString(c.Params("id"))
}

func validDate(s string) bool {
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

// fail maps service errors to status codes.
func fail(c *fiber.Ctx, err error) error {
	var apiErr *analysis.APIError
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrInvalidConfig),
		errors.Is(err, analysis.ErrUnknownPromptType),
		errors.Is(err, analysis.ErrUnsupportedType):
		status = fiber.StatusBadRequest
	case errors.Is(err, service.ErrNoSession), errors.Is(err, repository.ErrNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, bess.ErrUpstream), errors.As(err, &apiErr):
		status = fiber.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		status = fiber.StatusGatewayTimeout
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

func observe(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()

	status := c.Response().StatusCode()
	var fe *fiber.Error
	if errors.As(err, &fe) {
		status = fe.Code
	} else if err != nil {
		status = fiber.StatusInternalServerError
	}
	route := c.Route().Path
	metrics.RequestsTotal.WithLabelValues(c.Method(), route, strconv.Itoa(status)).Inc()
	metrics.RequestDuration.WithLabelValues(c.Method(), route).Observe(time.Since(start).Seconds())
	return err
}
