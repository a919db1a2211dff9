package bess

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/domain"
)

// ErrUpstream marks a non-2xx answer from the BESS backend.
var ErrUpstream = errors.New("bess backend error")

// Query selects a batch of historical readings.
type Query struct {
	BatchSize int
	Skip      int
	Date      string
}

// Client talks to the BESS backend REST endpoints.
type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) Devices(ctx context.Context) ([]domain.Device, error) {
	var out domain.DevicesResponse
	if err := c.getJSON(ctx, "/bess/devices", &out, nil); err != nil {
		return nil, err
	}
	if out.Devices == nil {
		out.Devices = []domain.Device{}
	}
	return out.Devices, nil
}

func (c *Client) Readings(ctx context.Context, deviceID string, q Query) (*domain.DeviceData, error) {
	params := url.Values{}
	if q.BatchSize > 0 {
		params.Set("batch_size", strconv.Itoa(q.BatchSize))
	}
	if q.Skip > 0 {
		params.Set("skip", strconv.Itoa(q.Skip))
	}
	if q.Date != "" {
		params.Set("date", q.Date)
	}
	var out domain.DeviceData
	if err := c.getJSON(ctx, "/bess/"+url.PathEscape(deviceID), &out, params); err != nil {
		return nil, err
	}
	if out.DeviceID == "" {
		out.DeviceID = deviceID
	}
	return &out, nil
}

// StreamURL is the SSE endpoint for one device.
func (c *Client) StreamURL(deviceID string, interval time.Duration, date string) string {
	return StreamURL(c.baseURL, deviceID, interval, date)
}

func StreamURL(baseURL, deviceID string, interval time.Duration, date string) string {
	params := url.Values{}
	if interval > 0 {
		params.Set("interval", strconv.FormatFloat(interval.Seconds(), 'f', -1, 64))
	}
	if date != "" {
		params.Set("date", date)
	}
	u := baseURL + "/bess/" + url.PathEscape(deviceID) + "/stream"
	if enc := params.Encode(); enc != "" {
		u += "?" + enc
	}
	return u
}

func (c *Client) getJSON(ctx context.Context, path string, out any, params url.Values) error {
	u := c.baseURL + path
	if params != nil {
		if enc := params.Encode(); enc != "" {
			u += "?" + enc
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s %s", ErrUpstream, resp.Status, body)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
