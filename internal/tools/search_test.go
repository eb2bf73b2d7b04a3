package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/briefing/internal/llm"
)

func TestHTTPSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-API-KEY"))

		var req serperRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "open banking", req.Q)

		_, _ = w.Write([]byte(`{"organic":[
			{"title":"One","link":"https://1","snippet":"s1"},
			{"title":"Two","link":"https://2"},
			{"title":"Three","link":"https://3"}
		]}`))
	}))
	defer srv.Close()

	s := NewHTTPSearch(SearchConfig{APIKey: "secret", BaseURL: srv.URL, Limiter: llm.NewRateLimiter(100, 1)})
	results, err := s.Search(context.Background(), "open banking", 2)
	require.NoError(t, err)
	assert.Equal(t, []SearchResult{
		{Title: "One", URL: "https://1", Snippet: "s1"},
		{Title: "Two", URL: "https://2"},
	}, results)
}

func TestHTTPSearch_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewHTTPSearch(SearchConfig{APIKey: "k", BaseURL: srv.URL}).Search(context.Background(), "q", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestNewHTTPSearch_NoKey(t *testing.T) {
	s := NewHTTPSearch(SearchConfig{})
	assert.Nil(t, s)
	_, err := s.Search(context.Background(), "q", 5)
	assert.ErrorIs(t, err, ErrProviderNotConfigured)
}

func TestSerpTrends(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "google_trends", q.Get("engine"))
		assert.Equal(t, "fednow,rtp", q.Get("q"))
		assert.Equal(t, "key", q.Get("api_key"))
		_, _ = w.Write([]byte(`{"interest_over_time":{"timeline_data":[
			{"date":"w1","values":[{"query":"fednow","extracted_value":10},{"query":"rtp","extracted_value":50}]},
			{"date":"w2","values":[{"query":"fednow","extracted_value":20},{"query":"rtp","extracted_value":50}]}
		]}}`))
	}))
	defer srv.Close()

	trends := NewSerpTrends(TrendsConfig{APIKey: "key", BaseURL: srv.URL})
	got, err := trends.Interest(context.Background(), []string{"fednow", "rtp"})
	require.NoError(t, err)
	assert.Equal(t, map[string][]float64{"fednow": {10, 20}, "rtp": {50, 50}}, got)
}

func TestSerpTrends_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"error":"Invalid API key"}`))
	}))
	defer srv.Close()

	_, err := NewSerpTrends(TrendsConfig{APIKey: "bad", BaseURL: srv.URL}).Interest(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid API key")
}
