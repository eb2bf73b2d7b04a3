package ingestion

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/scrypster/briefing/internal/metrics"
	"github.com/scrypster/briefing/internal/storage"
	"github.com/scrypster/briefing/pkg/types"
)

// maxItemsPerFeed caps items read from one feed per poll.
const maxItemsPerFeed = 50

// FeedFetcher retrieves and parses one feed.
type FeedFetcher interface {
	Fetch(ctx context.Context, url string) (*gofeed.Feed, error)
}

// HTTPFetcher fetches feeds over HTTP with gofeed.
type HTTPFetcher struct {
	parser *gofeed.Parser
}

// NewHTTPFetcher creates a fetcher whose requests time out after timeout.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	parser := gofeed.NewParser()
	parser.Client = &http.Client{Timeout: timeout}
	parser.UserAgent = "briefing-agent/1.0"
	return &HTTPFetcher{parser: parser}
}

// Fetch downloads and parses url. Non-2xx responses are errors.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*gofeed.Feed, error) {
	feed, err := f.parser.ParseURLWithContext(url, ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", url, err)
	}
	return feed, nil
}

// PollerStore is the slice of storage the poller uses.
type PollerStore interface {
	storage.IngestionStore
	storage.SignalStore
	storage.ProvenanceStore
}

// PollReport summarises one PollDue pass.
type PollReport struct {
	Due       int
	Succeeded int
	Failed    int
	Inserted  int
}

// Poller polls due ingestion queries.
type Poller struct {
	store       PollerStore
	fetcher     FeedFetcher
	backoff     Backoff
	concurrency int
	metrics     metrics.Recorder
	logger      *zap.Logger
	now         func() time.Time
}

// NewPoller creates a poller. A nil recorder or logger is replaced by a no-op.
func NewPoller(store PollerStore, fetcher FeedFetcher, backoff Backoff, recorder metrics.Recorder, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		store:       store,
		fetcher:     fetcher,
		backoff:     backoff,
		concurrency: 4,
		metrics:     metrics.OrNoop(recorder),
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// PollDue polls every query whose next poll time has passed. Each query's
// outcome only touches its own backoff state.
func (p *Poller) PollDue(ctx context.Context) (PollReport, error) {
	now := p.now()
	due, err := p.store.DueQueries(ctx, now)
	if err != nil {
		return PollReport{}, fmt.Errorf("list due queries: %w", err)
	}

	report := PollReport{Due: len(due)}
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i := range due {
		q := due[i]
		g.Go(func() error {
			inserted, err := p.pollOne(ctx, &q, now)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed++
			} else {
				report.Succeeded++
				report.Inserted += inserted
			}
			return nil
		})
	}
	_ = g.Wait()

	p.logger.Info("ingestion pass finished",
		zap.Int("due", report.Due),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Int("inserted", report.Inserted))
	return report, nil
}

func (p *Poller) pollOne(ctx context.Context, q *types.IngestionQuery, now time.Time) (int, error) {
	logger := p.logger.With(zap.String("query_id", q.ID), zap.String("user_id", q.UserID), zap.String("url", q.URL))

	inserted, err := p.ingest(ctx, q)
	if err != nil {
		p.backoff.Failure(q, now, err)
		p.metrics.IncPollTotal(false)
		logger.Warn("poll failed",
			zap.Int("error_count", q.ErrorCount),
			zap.Time("next_poll_at", q.NextPollAt),
			zap.Error(err))
	} else {
		p.backoff.Success(q, now)
		p.metrics.IncPollTotal(true)
		logger.Debug("poll succeeded", zap.Int("inserted", inserted))
	}

	if uerr := p.store.UpdateQueryState(ctx, q); uerr != nil {
		logger.Error("failed to persist backoff state", zap.Error(uerr))
	}
	return inserted, err
}

func (p *Poller) ingest(ctx context.Context, q *types.IngestionQuery) (int, error) {
	feed, err := p.fetcher.Fetch(ctx, q.URL)
	if err != nil {
		return 0, err
	}

	label := q.Label
	if label == "" {
		label = Normalize(feed.Title)
	}
	layer := q.Layer
	if layer == "" {
		layer = "news"
	}

	seen := map[string]bool{}
	inserted := 0
	for i, item := range feed.Items {
		if i >= maxItemsPerFeed {
			break
		}
		sig, ok := toSignal(item, q.UserID, label, layer)
		if !ok || seen[sig.SourceURL] {
			continue
		}
		seen[sig.SourceURL] = true

		ok, err := p.store.SaveSignal(ctx, sig)
		if err != nil {
			return inserted, fmt.Errorf("save signal: %w", err)
		}
		if !ok {
			continue
		}
		inserted++

		if err := p.store.RecordProvenance(ctx, &types.SignalProvenance{
			UserID:    q.UserID,
			SourceURL: sig.SourceURL,
			Title:     sig.Title,
			Kind:      types.ProvenanceFeed,
			Detail:    label,
		}); err != nil {
			return inserted, fmt.Errorf("record provenance: %w", err)
		}
	}
	return inserted, nil
}

func toSignal(item *gofeed.Item, userID, label, layer string) (*types.StoredSignal, bool) {
	if item == nil {
		return nil, false
	}
	title := Normalize(item.Title)
	link := strings.TrimSpace(item.Link)
	if title == "" || link == "" {
		return nil, false
	}

	summary := item.Description
	if summary == "" {
		summary = item.Content
	}

	var published *time.Time
	switch {
	case item.PublishedParsed != nil:
		t := item.PublishedParsed.UTC()
		published = &t
	case item.UpdatedParsed != nil:
		t := item.UpdatedParsed.UTC()
		published = &t
	}

	return &types.StoredSignal{
		UserID:      userID,
		Title:       title,
		Summary:     NormalizeSummary(summary),
		SourceURL:   link,
		SourceLabel: label,
		Layer:       layer,
		PublishedAt: published,
	}, true
}
