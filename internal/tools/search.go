package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/scrypster/briefing/internal/llm"
)

// SearchResult is one web search hit.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
	Date    string `json:"date,omitempty"`
}

// SearchProvider runs web searches.
type SearchProvider interface {
	Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error)
}

// SearchConfig configures HTTPSearch.
type SearchConfig struct {
	APIKey  string
	BaseURL string        // default: https://google.serper.dev
	Timeout time.Duration // default: 15s
	Limiter *llm.RateLimiter
}

// HTTPSearch is a SearchProvider backed by a Serper-compatible JSON API.
type HTTPSearch struct {
	cfg    SearchConfig
	client *http.Client
}

// NewHTTPSearch returns nil when no API key is configured, so callers can
// pass the result straight into Deps.
func NewHTTPSearch(cfg SearchConfig) *HTTPSearch {
	if cfg.APIKey == "" {
		return nil
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://google.serper.dev"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &HTTPSearch{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

type serperRequest struct {
	Q   string `json:"q"`
	Num int    `json:"num"`
}

type serperResponse struct {
	Organic []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
		Date    string `json:"date"`
	} `json:"organic"`
}

// Search implements SearchProvider. Calls share the configured limiter.
func (s *HTTPSearch) Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	if s == nil {
		return nil, ErrProviderNotConfigured
	}
	if err := s.cfg.Limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(serperRequest{Q: query, Num: maxResults})
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", s.cfg.APIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("search returned status %d: %s", resp.StatusCode, string(msg))
	}

	var data serperResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	out := make([]SearchResult, 0, len(data.Organic))
	for _, r := range data.Organic {
		if len(out) >= maxResults {
			break
		}
		out = append(out, SearchResult{Title: r.Title, URL: r.Link, Snippet: r.Snippet, Date: r.Date})
	}
	return out, nil
}

// SearchToolResult is returned by web_search.
type SearchToolResult struct {
	Query   string         `json:"query"`
	Results []SearchResult `json:"results"`
	Count   int            `json:"count"`
}

func (e *Executor) webSearch(ctx context.Context, _ *RunContext, args llm.Args) (any, error) {
	query := args.String("query")
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	maxResults := args.IntOr("max_results", 5)
	if maxResults < 1 || maxResults > 10 {
		maxResults = 5
	}
	if e.deps.Search == nil {
		return ErrorResult{Error: "web search " + ErrProviderNotConfigured.Error(), Query: query}, nil
	}

	results, err := e.deps.Search.Search(ctx, query, maxResults)
	if errors.Is(err, ErrProviderNotConfigured) {
		return ErrorResult{Error: "web search " + ErrProviderNotConfigured.Error(), Query: query}, nil
	}
	if err != nil {
		return ErrorResult{Error: "web search failed: " + err.Error(), Query: query}, nil
	}
	if results == nil {
		results = []SearchResult{}
	}
	return SearchToolResult{Query: query, Results: results, Count: len(results)}, nil
}
