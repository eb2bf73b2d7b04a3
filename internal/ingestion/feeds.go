package ingestion

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/scrypster/briefing/internal/storage"
	"github.com/scrypster/briefing/pkg/types"
)

// FeedSpec is one feed entry of a feeds file.
type FeedSpec struct {
	UserID string `yaml:"user_id"`
	URL    string `yaml:"url"`
	Label  string `yaml:"label"`
	Layer  string `yaml:"layer"`
}

type feedsFile struct {
	Feeds []FeedSpec `yaml:"feeds"`
}

// LoadFeeds reads a YAML feeds file:
//
//	feeds:
//	  - user_id: u1
//	    url: https://example.com/rss
//	    label: Example
//	    layer: news
func LoadFeeds(path string) ([]FeedSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read feeds file: %w", err)
	}
	var f feedsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse feeds file %s: %w", path, err)
	}
	for i, spec := range f.Feeds {
		if strings.TrimSpace(spec.UserID) == "" || strings.TrimSpace(spec.URL) == "" {
			return nil, fmt.Errorf("feeds file %s: entry %d needs user_id and url", path, i)
		}
	}
	return f.Feeds, nil
}

// QueryID derives a stable query ID from user and URL, so registering the
// same feed twice updates one row.
func QueryID(userID, url string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(userID+"|"+strings.TrimSpace(url))).String()
}

// RegisterFeeds upserts one ingestion query per feed. Existing backoff
// state is left alone.
func RegisterFeeds(ctx context.Context, store storage.IngestionStore, feeds []FeedSpec) error {
	for _, spec := range feeds {
		q := &types.IngestionQuery{
			ID:     QueryID(spec.UserID, spec.URL),
			UserID: spec.UserID,
			Kind:   "rss",
			URL:    strings.TrimSpace(spec.URL),
			Label:  spec.Label,
			Layer:  spec.Layer,
		}
		if err := store.SaveQuery(ctx, q); err != nil {
			return fmt.Errorf("register feed %s for %s: %w", spec.URL, spec.UserID, err)
		}
	}
	return nil
}
