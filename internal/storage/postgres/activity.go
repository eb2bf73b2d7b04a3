package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/briefing/internal/storage"
	"github.com/scrypster/briefing/pkg/types"
)

// RecordProvenance stores why a signal surfaced.
func (s *Store) RecordProvenance(ctx context.Context, p *types.SignalProvenance) error {
	if p == nil || p.UserID == "" || (p.SourceURL == "" && p.Title == "") {
		return fmt.Errorf("%w: provenance requires user_id and a url or title", storage.ErrInvalidInput)
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO signal_provenance (id, user_id, source_url, title, kind, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.UserID, nullableString(p.SourceURL), nullableString(p.Title),
		string(p.Kind), nullableString(p.Detail), p.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("postgres: record provenance: %w", err)
	}
	return nil
}

// ListProvenance returns records matching sourceURL or title.
func (s *Store) ListProvenance(ctx context.Context, userID, sourceURL, title string) ([]types.SignalProvenance, error) {
	if sourceURL == "" && title == "" {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, source_url, title, kind, detail, created_at
		FROM signal_provenance
		WHERE user_id = $1
		  AND (($2::text <> '' AND source_url = $2::text) OR ($3::text <> '' AND lower(title) = lower($3::text)))
		ORDER BY created_at ASC`, userID, sourceURL, title)
	if err != nil {
		return nil, fmt.Errorf("postgres: list provenance: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []types.SignalProvenance
	for rows.Next() {
		var (
			p                   types.SignalProvenance
			url, ptitle, detail sql.NullString
			kind                string
		)
		if err := rows.Scan(&p.ID, &p.UserID, &url, &ptitle, &kind, &detail, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan provenance: %w", err)
		}
		p.SourceURL, p.Title, p.Detail = url.String, ptitle.String, detail.String
		p.Kind = types.ProvenanceKind(kind)
		out = append(out, p)
	}
	return out, rows.Err()
}

// SaveMeeting creates or replaces a meeting.
func (s *Store) SaveMeeting(ctx context.Context, m *types.Meeting) error {
	if m == nil || m.UserID == "" || m.Title == "" || m.Start.IsZero() {
		return fmt.Errorf("%w: meeting requires user_id, title and start", storage.ErrInvalidInput)
	}
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.End.IsZero() {
		m.End = m.Start.Add(30 * time.Minute)
	}
	attendees, err := marshalJSON(m.Attendees)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO meetings (id, user_id, title, start_at, end_at, attendees)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			start_at = EXCLUDED.start_at,
			end_at = EXCLUDED.end_at,
			attendees = EXCLUDED.attendees`,
		m.ID, m.UserID, m.Title, m.Start.UTC(), m.End.UTC(), attendees)
	if err != nil {
		return fmt.Errorf("postgres: save meeting: %w", err)
	}
	return nil
}

// ListMeetings returns meetings starting in [from, to], ordered by start.
func (s *Store) ListMeetings(ctx context.Context, userID string, from, to time.Time) ([]types.Meeting, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, title, start_at, end_at, attendees
		FROM meetings
		WHERE user_id = $1 AND start_at >= $2 AND start_at <= $3
		ORDER BY start_at ASC`, userID, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("postgres: list meetings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []types.Meeting
	for rows.Next() {
		var (
			m         types.Meeting
			attendees []byte
		)
		if err := rows.Scan(&m.ID, &m.UserID, &m.Title, &m.Start, &m.End, &attendees); err != nil {
			return nil, fmt.Errorf("postgres: scan meeting: %w", err)
		}
		if err := json.Unmarshal(attendees, &m.Attendees); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal attendees: %w", err)
		}
		m.Start, m.End = m.Start.UTC(), m.End.UTC()
		out = append(out, m)
	}
	return out, rows.Err()
}

// SaveBriefing stores a delivered briefing.
func (s *Store) SaveBriefing(ctx context.Context, b *types.BriefingRecord) error {
	if b == nil || b.UserID == "" {
		return fmt.Errorf("%w: briefing requires user_id", storage.ErrInvalidInput)
	}
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	items, err := marshalJSON(b.Items)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO briefings (id, user_id, created_at, model_used, items)
		VALUES ($1, $2, $3, $4, $5)`,
		b.ID, b.UserID, b.CreatedAt.UTC(), nullableString(b.ModelUsed), items)
	if err != nil {
		return fmt.Errorf("postgres: save briefing: %w", err)
	}
	return nil
}

// ListBriefings returns briefings created at or after since, newest first.
func (s *Store) ListBriefings(ctx context.Context, userID string, since time.Time) ([]types.BriefingRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, created_at, model_used, items
		FROM briefings
		WHERE user_id = $1 AND created_at >= $2
		ORDER BY created_at DESC`, userID, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("postgres: list briefings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []types.BriefingRecord
	for rows.Next() {
		b, err := scanBriefing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// LatestBriefing returns the user's most recent briefing.
func (s *Store) LatestBriefing(ctx context.Context, userID string) (*types.BriefingRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, created_at, model_used, items
		FROM briefings WHERE user_id = $1
		ORDER BY created_at DESC LIMIT 1`, userID)
	b, err := scanBriefing(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	return b, err
}

func scanBriefing(row rowScanner) (*types.BriefingRecord, error) {
	var (
		b     types.BriefingRecord
		model sql.NullString
		items []byte
	)
	if err := row.Scan(&b.ID, &b.UserID, &b.CreatedAt, &model, &items); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("postgres: scan briefing: %w", err)
	}
	b.ModelUsed = model.String
	b.CreatedAt = b.CreatedAt.UTC()
	if err := json.Unmarshal(items, &b.Items); err != nil {
		return nil, fmt.Errorf("postgres: unmarshal briefing items: %w", err)
	}
	return &b, nil
}

func marshalJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("postgres: marshal json: %w", err)
	}
	if string(b) == "null" {
		return "[]", nil
	}
	return string(b), nil
}
