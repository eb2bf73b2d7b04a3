package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/briefing/internal/storage"
	"github.com/scrypster/briefing/pkg/types"
)

// SaveSignal writes a signal unless (user_id, source_url) already exists.
func (s *Store) SaveSignal(ctx context.Context, sig *types.StoredSignal) (bool, error) {
	if sig == nil || sig.UserID == "" || sig.SourceURL == "" || sig.Title == "" {
		return false, fmt.Errorf("%w: signal requires user_id, title and source_url", storage.ErrInvalidInput)
	}
	if sig.ID == "" {
		sig.ID = uuid.New().String()
	}
	if sig.IngestedAt.IsZero() {
		sig.IngestedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO signals (id, user_id, title, summary, source_url, source_label, layer, published_at, ingested_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id, source_url) DO NOTHING`,
		sig.ID, sig.UserID, sig.Title, nullableString(sig.Summary), sig.SourceURL,
		nullableString(sig.SourceLabel), sig.Layer, nullableTime(sig.PublishedAt), sig.IngestedAt.UTC())
	if err != nil {
		return false, fmt.Errorf("postgres: save signal: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("postgres: save signal rows affected: %w", err)
	}
	return n > 0, nil
}

// ListSignals returns signals ingested at or after since, newest first.
func (s *Store) ListSignals(ctx context.Context, userID string, since time.Time, limit int) ([]types.StoredSignal, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, title, summary, source_url, source_label, layer, published_at, ingested_at
		FROM signals
		WHERE user_id = $1 AND ingested_at >= $2
		ORDER BY ingested_at DESC, id ASC
		LIMIT $3`, userID, since.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list signals: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []types.StoredSignal
	for rows.Next() {
		var (
			sig            types.StoredSignal
			summary, label sql.NullString
			published      sql.NullTime
		)
		if err := rows.Scan(&sig.ID, &sig.UserID, &sig.Title, &summary, &sig.SourceURL,
			&label, &sig.Layer, &published, &sig.IngestedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan signal: %w", err)
		}
		sig.Summary, sig.SourceLabel = summary.String, label.String
		sig.PublishedAt = timePtr(published)
		sig.IngestedAt = sig.IngestedAt.UTC()
		out = append(out, sig)
	}
	return out, rows.Err()
}

// SaveQuery creates or replaces an ingestion query.
func (s *Store) SaveQuery(ctx context.Context, q *types.IngestionQuery) error {
	if q == nil || q.UserID == "" || q.URL == "" {
		return fmt.Errorf("%w: ingestion query requires user_id and url", storage.ErrInvalidInput)
	}
	if q.ID == "" {
		q.ID = uuid.New().String()
	}
	if q.Kind == "" {
		q.Kind = "rss"
	}
	if q.NextPollAt.IsZero() {
		q.NextPollAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ingestion_queries (id, user_id, kind, url, label, layer, next_poll_at, error_count, last_error, last_success_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			kind = EXCLUDED.kind,
			url = EXCLUDED.url,
			label = EXCLUDED.label,
			layer = EXCLUDED.layer`,
		q.ID, q.UserID, q.Kind, q.URL, nullableString(q.Label), q.Layer, q.NextPollAt.UTC(),
		q.ErrorCount, nullableString(q.LastError), nullableTime(q.LastSuccessAt))
	if err != nil {
		return fmt.Errorf("postgres: save query: %w", err)
	}
	return nil
}

// DueQueries returns queries with next_poll_at <= now, oldest first.
func (s *Store) DueQueries(ctx context.Context, now time.Time) ([]types.IngestionQuery, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, kind, url, label, layer, next_poll_at, error_count, last_error, last_success_at
		FROM ingestion_queries
		WHERE next_poll_at <= $1
		ORDER BY next_poll_at ASC, id ASC`, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("postgres: due queries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []types.IngestionQuery
	for rows.Next() {
		var (
			q                types.IngestionQuery
			label, lastError sql.NullString
			lastSuccess      sql.NullTime
		)
		if err := rows.Scan(&q.ID, &q.UserID, &q.Kind, &q.URL, &label, &q.Layer,
			&q.NextPollAt, &q.ErrorCount, &lastError, &lastSuccess); err != nil {
			return nil, fmt.Errorf("postgres: scan query: %w", err)
		}
		q.Label, q.LastError = label.String, lastError.String
		q.NextPollAt = q.NextPollAt.UTC()
		q.LastSuccessAt = timePtr(lastSuccess)
		out = append(out, q)
	}
	return out, rows.Err()
}

// UpdateQueryState persists the backoff state of a query.
func (s *Store) UpdateQueryState(ctx context.Context, q *types.IngestionQuery) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE ingestion_queries
		SET next_poll_at = $1, error_count = $2, last_error = $3, last_success_at = $4
		WHERE id = $5`,
		q.NextPollAt.UTC(), q.ErrorCount, nullableString(q.LastError), nullableTime(q.LastSuccessAt), q.ID)
	if err != nil {
		return fmt.Errorf("postgres: update query state: %w", err)
	}
	return requireAffected(res)
}
