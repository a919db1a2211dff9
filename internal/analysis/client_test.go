package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// aiServer records the prompt types it receives and answers via respond.
type aiServer struct {
	mu      sync.Mutex
	prompts []PromptType
	respond func(w http.ResponseWriter, req Request)
}

func (s *aiServer) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ai/analyze", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		s.mu.Lock()
		s.prompts = append(s.prompts, req.PromptType)
		s.mu.Unlock()
		s.respond(w, req)
	}
}

func (s *aiServer) calls() []PromptType {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]PromptType(nil), s.prompts...)
}

func ok(text string) func(http.ResponseWriter, Request) {
	return func(w http.ResponseWriter, req Request) {
		json.NewEncoder(w).Encode(Result{Analysis: text, PromptType: req.PromptType, ModelUsed: req.Model, Success: true})
	}
}

func TestAnalyzeSendsRequest(t *testing.T) {
	var got Request
	ai := &aiServer{respond: func(w http.ResponseWriter, req Request) {
		got = req
		ok("# Fine")(w, req)
	}}
	srv := httptest.NewServer(ai.handler(t))
	defer srv.Close()

	res, err := NewClient(srv.URL, time.Second).Analyze(context.Background(), Request{
		JSONData:   map[string]any{"device_id": "BESS-001"},
		PromptType: PromptPerformance,
		Model:      "gpt-4o-mini",
		MaxTokens:  3000,
	})
	require.NoError(t, err)
	assert.Equal(t, "# Fine", res.Analysis)
	assert.False(t, res.Fallback)
	assert.Equal(t, 3000, got.MaxTokens)
	assert.Equal(t, "gpt-4o-mini", got.Model)
}

func TestAnalyzeRejectsUnknownPromptType(t *testing.T) {
	ai := &aiServer{respond: ok("unused")}
	srv := httptest.NewServer(ai.handler(t))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Analyze(context.Background(), Request{PromptType: "weather"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownPromptType))
	assert.Empty(t, ai.calls())
}

func TestRegulatoryFallsBackToSafety(t *testing.T) {
	ai := &aiServer{respond: func(w http.ResponseWriter, req Request) {
		if req.PromptType == PromptRegulatory {
			http.Error(w, `{"detail":"Invalid prompt type: regulatory"}`, http.StatusBadRequest)
			return
		}
		ok("Safety findings")(w, req)
	}}
	srv := httptest.NewServer(ai.handler(t))
	defer srv.Close()

	res, err := NewClient(srv.URL, time.Second).Analyze(context.Background(), Request{PromptType: PromptRegulatory})
	require.NoError(t, err)
	assert.Equal(t, FallbackNote+"Safety findings", res.Analysis)
	assert.True(t, res.Fallback)
	assert.Equal(t, []PromptType{PromptRegulatory, PromptSafety}, ai.calls())
}

func TestFallbackOnlyForRegulatory(t *testing.T) {
	ai := &aiServer{respond: func(w http.ResponseWriter, req Request) {
		http.Error(w, "Invalid prompt type", http.StatusBadRequest)
	}}
	srv := httptest.NewServer(ai.handler(t))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Analyze(context.Background(), Request{PromptType: PromptFinancial})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, []PromptType{PromptFinancial}, ai.calls())
}

func TestFallbackNeedsStatus400(t *testing.T) {
	ai := &aiServer{respond: func(w http.ResponseWriter, req Request) {
		http.Error(w, "Invalid prompt type", http.StatusInternalServerError)
	}}
	srv := httptest.NewServer(ai.handler(t))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Analyze(context.Background(), Request{PromptType: PromptRegulatory})
	require.Error(t, err)
	assert.Equal(t, []PromptType{PromptRegulatory}, ai.calls())
}

func TestFailedFallbackReturnsOriginalError(t *testing.T) {
	ai := &aiServer{respond: func(w http.ResponseWriter, req Request) {
		if req.PromptType == PromptRegulatory {
			http.Error(w, "Invalid prompt type: regulatory", http.StatusBadRequest)
			return
		}
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}}
	srv := httptest.NewServer(ai.handler(t))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Analyze(context.Background(), Request{PromptType: PromptRegulatory})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Contains(t, apiErr.Body, "Invalid prompt type")
	assert.Contains(t, err.Error(), "AI Analysis failed: 400 - Bad Request.")
	assert.Len(t, ai.calls(), 2)
}
