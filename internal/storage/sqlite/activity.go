package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
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
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, nullableString(p.SourceURL), nullableString(p.Title),
		string(p.Kind), nullableString(p.Detail), utc(p.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: record provenance: %w", err)
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
		WHERE user_id = ?
		  AND ((? <> '' AND source_url = ?) OR (? <> '' AND lower(title) = ?))
		ORDER BY created_at ASC`,
		userID, sourceURL, sourceURL, title, strings.ToLower(title))
	if err != nil {
		return nil, fmt.Errorf("sqlite: list provenance: %w", err)
	}
	defer rows.Close()

	var out []types.SignalProvenance
	for rows.Next() {
		var (
			p                   types.SignalProvenance
			url, ptitle, detail sql.NullString
			kind                string
		)
		if err := rows.Scan(&p.ID, &p.UserID, &url, &ptitle, &kind, &detail, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan provenance: %w", err)
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
	attendees, err := marshalList(m.Attendees)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO meetings (id, user_id, title, start_at, end_at, attendees)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			title = excluded.title,
			start_at = excluded.start_at,
			end_at = excluded.end_at,
			attendees = excluded.attendees`,
		m.ID, m.UserID, m.Title, utc(m.Start), utc(m.End), attendees,
	)
	if err != nil {
		return fmt.Errorf("sqlite: save meeting: %w", err)
	}
	return nil
}

// ListMeetings returns meetings starting in [from, to], ordered by start.
func (s *Store) ListMeetings(ctx context.Context, userID string, from, to time.Time) ([]types.Meeting, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, title, start_at, end_at, attendees
		FROM meetings
		WHERE user_id = ? AND start_at >= ? AND start_at <= ?
		ORDER BY start_at ASC`, userID, utc(from), utc(to))
	if err != nil {
		return nil, fmt.Errorf("sqlite: list meetings: %w", err)
	}
	defer rows.Close()

	var out []types.Meeting
	for rows.Next() {
		var (
			m         types.Meeting
			attendees string
		)
		if err := rows.Scan(&m.ID, &m.UserID, &m.Title, &m.Start, &m.End, &attendees); err != nil {
			return nil, fmt.Errorf("sqlite: scan meeting: %w", err)
		}
		if err := unmarshalList(attendees, &m.Attendees); err != nil {
			return nil, err
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
	items, err := marshalList(b.Items)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO briefings (id, user_id, created_at, model_used, items)
		VALUES (?, ?, ?, ?, ?)`,
		b.ID, b.UserID, utc(b.CreatedAt), nullableString(b.ModelUsed), items,
	)
	if err != nil {
		return fmt.Errorf("sqlite: save briefing: %w", err)
	}
	return nil
}

// ListBriefings returns briefings created at or after since, newest first.
func (s *Store) ListBriefings(ctx context.Context, userID string, since time.Time) ([]types.BriefingRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, created_at, model_used, items
		FROM briefings
		WHERE user_id = ? AND created_at >= ?
		ORDER BY created_at DESC`, userID, utc(since))
	if err != nil {
		return nil, fmt.Errorf("sqlite: list briefings: %w", err)
	}
	defer rows.Close()

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
		FROM briefings WHERE user_id = ?
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
		items string
	)
	if err := row.Scan(&b.ID, &b.UserID, &b.CreatedAt, &model, &items); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("sqlite: scan briefing: %w", err)
	}
	b.ModelUsed = model.String
	b.CreatedAt = b.CreatedAt.UTC()
	if err := unmarshalList(items, &b.Items); err != nil {
		return nil, err
	}
	return &b, nil
}
