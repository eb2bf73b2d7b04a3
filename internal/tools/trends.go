package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/scrypster/briefing/internal/llm"
)

// maxTrendKeywords is the most keywords one trends call compares.
const maxTrendKeywords = 5

// trendThresholdPct is the exclusive percentage change bound for rising and
// falling.
const trendThresholdPct = 15

// Trend directions.
const (
	TrendRising  = "rising"
	TrendFalling = "falling"
	TrendStable  = "stable"
	TrendNew     = "new"
)

// ClassifyTrend compares the mean of the second half of series with the
// mean of the first half. The change must exceed 15% either way to be
// rising or falling. A zero first half with any later interest is new.
// For odd lengths the middle point belongs to the second half.
func ClassifyTrend(series []float64) (direction string, changePct float64) {
	if len(series) < 2 {
		return TrendStable, 0
	}
	half := len(series) / 2
	before := mean(series[:half])
	after := mean(series[half:])

	if before == 0 {
		if after > 0 {
			return TrendNew, 0
		}
		return TrendStable, 0
	}

	diff := after - before
	changePct = roundTo(diff/before*100, 1)
	// Scaled comparison: an exact 15% change stays stable.
	switch {
	case diff*100 > trendThresholdPct*before:
		return TrendRising, changePct
	case diff*100 < -trendThresholdPct*before:
		return TrendFalling, changePct
	}
	return TrendStable, changePct
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// TrendsProvider returns an interest-over-time series per keyword.
type TrendsProvider interface {
	Interest(ctx context.Context, keywords []string) (map[string][]float64, error)
}

// TrendsConfig configures SerpTrends.
type TrendsConfig struct {
	APIKey  string
	BaseURL string        // default: https://serpapi.com
	Window  string        // default: today 3-m
	Timeout time.Duration // default: 20s
	Limiter *llm.RateLimiter
}

// SerpTrends is a TrendsProvider backed by SerpApi's google_trends engine.
type SerpTrends struct {
	cfg    TrendsConfig
	client *http.Client
}

// NewSerpTrends returns nil when no API key is configured.
func NewSerpTrends(cfg TrendsConfig) *SerpTrends {
	if cfg.APIKey == "" {
		return nil
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://serpapi.com"
	}
	if cfg.Window == "" {
		cfg.Window = "today 3-m"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 20 * time.Second
	}
	return &SerpTrends{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

type serpTrendsResponse struct {
	Error            string `json:"error"`
	InterestOverTime struct {
		TimelineData []struct {
			Date   string `json:"date"`
			Values []struct {
				Query          string  `json:"query"`
				ExtractedValue float64 `json:"extracted_value"`
			} `json:"values"`
		} `json:"timeline_data"`
	} `json:"interest_over_time"`
}

// Interest implements TrendsProvider.
func (t *SerpTrends) Interest(ctx context.Context, keywords []string) (map[string][]float64, error) {
	if t == nil {
		return nil, ErrProviderNotConfigured
	}
	if err := t.cfg.Limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("engine", "google_trends")
	q.Set("data_type", "TIMESERIES")
	q.Set("q", strings.Join(keywords, ","))
	q.Set("date", t.cfg.Window)
	q.Set("api_key", t.cfg.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.cfg.BaseURL+"/search.json?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create trends request: %w", err)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("trends request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("trends returned status %d: %s", resp.StatusCode, string(msg))
	}

	var data serpTrendsResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode trends response: %w", err)
	}
	if data.Error != "" {
		return nil, fmt.Errorf("trends: %s", data.Error)
	}

	out := make(map[string][]float64, len(keywords))
	for _, point := range data.InterestOverTime.TimelineData {
		for _, v := range point.Values {
			out[v.Query] = append(out[v.Query], v.ExtractedValue)
		}
	}
	return out, nil
}

// TrendEntry is the classification for one keyword.
type TrendEntry struct {
	Keyword   string  `json:"keyword"`
	Direction string  `json:"direction"`
	ChangePct float64 `json:"change_pct"`
	Points    int     `json:"points"`
}

// TrendsResult is returned by query_google_trends.
type TrendsResult struct {
	Keywords []string     `json:"keywords"`
	Trends   []TrendEntry `json:"trends"`
}

func (e *Executor) queryGoogleTrends(ctx context.Context, _ *RunContext, args llm.Args) (any, error) {
	var keywords []string
	for _, k := range args.Strings("keywords") {
		if k = strings.TrimSpace(k); k != "" {
			keywords = append(keywords, k)
		}
	}
	if len(keywords) == 0 {
		if k := args.String("keyword"); k != "" {
			keywords = []string{k}
		}
	}
	if len(keywords) == 0 {
		return nil, fmt.Errorf("keywords is required")
	}
	if len(keywords) > maxTrendKeywords {
		keywords = keywords[:maxTrendKeywords]
	}

	if e.deps.Trends == nil {
		return ErrorResult{Error: "trends " + ErrProviderNotConfigured.Error(), Keywords: keywords}, nil
	}
	series, err := e.deps.Trends.Interest(ctx, keywords)
	if errors.Is(err, ErrProviderNotConfigured) {
		return ErrorResult{Error: "trends " + ErrProviderNotConfigured.Error(), Keywords: keywords}, nil
	}
	if err != nil {
		return ErrorResult{Error: "trends lookup failed: " + err.Error(), Keywords: keywords}, nil
	}

	out := TrendsResult{Keywords: keywords, Trends: make([]TrendEntry, 0, len(keywords))}
	for _, k := range keywords {
		points := series[k]
		direction, change := ClassifyTrend(points)
		out.Trends = append(out.Trends, TrendEntry{Keyword: k, Direction: direction, ChangePct: change, Points: len(points)})
	}
	return out, nil
}
