// Package analysis sends device data to the AI analysis endpoint and turns
// the answers into reports and forecasts.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/metrics"
)

type PromptType string

const (
	PromptAnomaly     PromptType = "anomaly"
	PromptDegradation PromptType = "degradation"
	PromptPerformance PromptType = "performance"
	PromptSafety      PromptType = "safety"
	PromptRegulatory  PromptType = "regulatory"
	PromptFinancial   PromptType = "financial"
)

func (p PromptType) Valid() bool {
	switch p {
	case PromptAnomaly, PromptDegradation, PromptPerformance, PromptSafety, PromptRegulatory, PromptFinancial:
		return true
	}
	return false
}

// FallbackNote prefixes a regulatory analysis that was answered with the
// safety prompt.
const FallbackNote = "**Note: This analysis used a safety prompt as fallback. Please restart the server to use the proper Regulations and Compliance prompt.**\n\n"

var ErrUnknownPromptType = errors.New("unknown prompt type")

type Request struct {
	JSONData   any        `json:"json_data"`
	PromptType PromptType `json:"prompt_type"`
	Model      string     `json:"model"`
	MaxTokens  int        `json:"max_tokens"`
}

type Result struct {
	Analysis   string     `json:"analysis"`
	PromptType PromptType `json:"prompt_type"`
	ModelUsed  string     `json:"model_used"`
	TokensUsed *int       `json:"tokens_used,omitempty"`
	Success    bool       `json:"success"`
	Fallback   bool       `json:"fallback,omitempty"`
}

// APIError is a non-2xx answer from the analysis endpoint.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("AI Analysis failed: %d - %s. %s", e.Status, http.StatusText(e.Status), e.Body)
}

// Client talks to the /ai/analyze endpoint.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Analyze sends req once. A regulatory request rejected with "Invalid prompt
// type" is retried with the safety prompt; if that retry fails too the first
// error is returned.
func (c *Client) Analyze(ctx context.Context, req Request) (*Result, error) {
	if !req.PromptType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPromptType, req.PromptType)
	}

	start := time.Now()
	res, err := c.analyze(ctx, req)
	if err == nil {
		metrics.AnalysisRequests.WithLabelValues(string(req.PromptType), "ok").Inc()
		metrics.AnalysisLatency.Observe(time.Since(start).Seconds())
		return res, nil
	}
	if !needsFallback(req.PromptType, err) {
		metrics.AnalysisRequests.WithLabelValues(string(req.PromptType), "error").Inc()
		return nil, err
	}

	log.Warn().Str("prompt_type", string(req.PromptType)).Msg("regulatory prompt rejected, retrying with safety prompt")
	retry := req
	retry.PromptType = PromptSafety
	res, retryErr := c.analyze(ctx, retry)
	if retryErr != nil {
		log.Error().Err(retryErr).Msg("safety fallback failed")
		metrics.AnalysisRequests.WithLabelValues(string(req.PromptType), "error").Inc()
		return nil, err
	}
	res.Analysis = FallbackNote + res.Analysis
	res.Fallback = true
	metrics.AnalysisRequests.WithLabelValues(string(req.PromptType), "fallback").Inc()
	metrics.AnalysisLatency.Observe(time.Since(start).Seconds())
	return res, nil
}

func needsFallback(pt PromptType, err error) bool {
	var apiErr *APIError
	if pt != PromptRegulatory || !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status == http.StatusBadRequest && strings.Contains(apiErr.Body, "Invalid prompt type")
}

func (c *Client) analyze(ctx context.Context, req Request) (*Result, error) {
	var out Result
	if err := c.postJSON(ctx, "/ai/analyze", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Status: resp.StatusCode, Body: string(msg)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
