package sqlite

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

// SaveProfile creates or replaces a profile.
func (s *Store) SaveProfile(ctx context.Context, p *types.UserProfile) error {
	if p == nil || p.UserID == "" {
		return fmt.Errorf("%w: profile requires user_id", storage.ErrInvalidInput)
	}
	expertise, err := marshalList(p.Expertise)
	if err != nil {
		return err
	}
	impress, err := marshalList(p.ImpressList)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO user_profiles (user_id, name, email, role, company, email_domain, expertise, impress_list, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			role = excluded.role,
			company = excluded.company,
			email_domain = excluded.email_domain,
			expertise = excluded.expertise,
			impress_list = excluded.impress_list,
			updated_at = excluded.updated_at`,
		p.UserID, p.Name, nullableString(p.Email), nullableString(p.Role), nullableString(p.Company),
		nullableString(p.EmailDomain), expertise, impress, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: save profile: %w", err)
	}
	return nil
}

// GetProfile returns ErrNotFound if the user has no profile.
func (s *Store) GetProfile(ctx context.Context, userID string) (*types.UserProfile, error) {
	var (
		p                            types.UserProfile
		email, role, company, domain sql.NullString
		expertise, impress           string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, name, email, role, company, email_domain, expertise, impress_list
		FROM user_profiles WHERE user_id = ?`, userID,
	).Scan(&p.UserID, &p.Name, &email, &role, &company, &domain, &expertise, &impress)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get profile: %w", err)
	}
	p.Email, p.Role, p.Company, p.EmailDomain = email.String, role.String, company.String, domain.String
	if err := unmarshalList(expertise, &p.Expertise); err != nil {
		return nil, err
	}
	if err := unmarshalList(impress, &p.ImpressList); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListUserIDs returns every user with a profile, sorted.
func (s *Store) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id FROM user_profiles ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list users: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SaveUniverse appends a new universe version.
func (s *Store) SaveUniverse(ctx context.Context, userID string, u *types.ContentUniverse) error {
	if u == nil || userID == "" {
		return fmt.Errorf("%w: universe requires user_id", storage.ErrInvalidInput)
	}
	if u.Version == 0 {
		var latest sql.NullInt64
		if err := s.db.QueryRowContext(ctx,
			`SELECT MAX(version) FROM content_universes WHERE user_id = ?`, userID).Scan(&latest); err != nil {
			return fmt.Errorf("sqlite: next universe version: %w", err)
		}
		u.Version = int(latest.Int64) + 1
	}
	topics, err := marshalList(u.CoreTopics)
	if err != nil {
		return err
	}
	exclusions, err := marshalList(u.Exclusions)
	if err != nil {
		return err
	}
	from, err := marshalList(u.GeneratedFrom)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO content_universes (user_id, version, definition, core_topics, exclusions, seismic_threshold, generated_from, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		userID, u.Version, nullableString(u.Definition), topics, exclusions,
		nullableString(u.SeismicThreshold), from, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: save universe: %w", err)
	}
	return nil
}

// GetUniverse returns the latest universe version.
func (s *Store) GetUniverse(ctx context.Context, userID string) (*types.ContentUniverse, error) {
	var (
		u                   types.ContentUniverse
		definition, seismic sql.NullString
		topics, excl, from  string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT version, definition, core_topics, exclusions, seismic_threshold, generated_from
		FROM content_universes WHERE user_id = ?
		ORDER BY version DESC LIMIT 1`, userID,
	).Scan(&u.Version, &definition, &topics, &excl, &seismic, &from)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get universe: %w", err)
	}
	u.Definition, u.SeismicThreshold = definition.String, seismic.String
	for _, f := range []struct {
		raw string
		dst *[]string
	}{{topics, &u.CoreTopics}, {excl, &u.Exclusions}, {from, &u.GeneratedFrom}} {
		if err := unmarshalList(f.raw, f.dst); err != nil {
			return nil, err
		}
	}
	return &u, nil
}

// RecordFeedback stores one reaction.
func (s *Store) RecordFeedback(ctx context.Context, ev *types.FeedbackEvent) error {
	if ev == nil || ev.UserID == "" || ev.Kind == "" {
		return fmt.Errorf("%w: feedback requires user_id and kind", storage.ErrInvalidInput)
	}
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feedback_events (id, user_id, signal_title, source_url, source_label, kind, comment, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.UserID, ev.SignalTitle, nullableString(ev.SourceURL), nullableString(ev.SourceLabel),
		string(ev.Kind), nullableString(ev.Comment), utc(ev.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: record feedback: %w", err)
	}
	return nil
}

// ListFeedback returns events created at or after since, newest first.
func (s *Store) ListFeedback(ctx context.Context, userID string, since time.Time, limit int) ([]types.FeedbackEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, signal_title, source_url, source_label, kind, comment, created_at
		FROM feedback_events
		WHERE user_id = ? AND created_at >= ?
		ORDER BY created_at DESC
		LIMIT ?`, userID, utc(since), limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list feedback: %w", err)
	}
	defer rows.Close()

	var out []types.FeedbackEvent
	for rows.Next() {
		var (
			ev                  types.FeedbackEvent
			url, label, comment sql.NullString
			kind                string
		)
		if err := rows.Scan(&ev.ID, &ev.UserID, &ev.SignalTitle, &url, &label, &kind, &comment, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan feedback: %w", err)
		}
		ev.SourceURL, ev.SourceLabel, ev.Comment = url.String, label.String, comment.String
		ev.Kind = types.FeedbackKind(kind)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// SavePeer creates or replaces a tracked peer.
func (s *Store) SavePeer(ctx context.Context, p *types.PeerContact) error {
	if p == nil || p.UserID == "" || p.Name == "" {
		return fmt.Errorf("%w: peer requires user_id and name", storage.ErrInvalidInput)
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.Kind == "" {
		p.Kind = types.PeerKindContact
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO peer_contacts (id, user_id, name, organization, title, kind)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			organization = excluded.organization,
			title = excluded.title,
			kind = excluded.kind`,
		p.ID, p.UserID, p.Name, nullableString(p.Organization), nullableString(p.Title), string(p.Kind),
	)
	if err != nil {
		return fmt.Errorf("sqlite: save peer: %w", err)
	}
	return nil
}

// ListPeers returns a user's tracked peers sorted by name.
func (s *Store) ListPeers(ctx context.Context, userID string) ([]types.PeerContact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, organization, title, kind
		FROM peer_contacts WHERE user_id = ? ORDER BY name`, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list peers: %w", err)
	}
	defer rows.Close()

	var out []types.PeerContact
	for rows.Next() {
		var (
			p          types.PeerContact
			org, title sql.NullString
			kind       string
		)
		if err := rows.Scan(&p.ID, &p.UserID, &p.Name, &org, &title, &kind); err != nil {
			return nil, fmt.Errorf("sqlite: scan peer: %w", err)
		}
		p.Organization, p.Title, p.Kind = org.String, title.String, types.PeerKind(kind)
		out = append(out, p)
	}
	return out, rows.Err()
}

func marshalList(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("sqlite: marshal list: %w", err)
	}
	if string(b) == "null" {
		return "[]", nil
	}
	return string(b), nil
}

func unmarshalList(raw string, dst any) error {
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("sqlite: unmarshal list: %w", err)
	}
	return nil
}
