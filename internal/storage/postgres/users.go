package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/scrypster/briefing/internal/storage"
	"github.com/scrypster/briefing/pkg/types"
)

// SaveProfile creates or replaces a profile.
func (s *Store) SaveProfile(ctx context.Context, p *types.UserProfile) error {
	if p == nil || p.UserID == "" {
		return fmt.Errorf("%w: profile requires user_id", storage.ErrInvalidInput)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_profiles (user_id, name, email, role, company, email_domain, expertise, impress_list, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			role = EXCLUDED.role,
			company = EXCLUDED.company,
			email_domain = EXCLUDED.email_domain,
			expertise = EXCLUDED.expertise,
			impress_list = EXCLUDED.impress_list,
			updated_at = EXCLUDED.updated_at`,
		p.UserID, p.Name, nullableString(p.Email), nullableString(p.Role), nullableString(p.Company),
		nullableString(p.EmailDomain), pq.Array(nonNil(p.Expertise)), pq.Array(nonNil(p.ImpressList)),
		time.Now().UTC())
	if err != nil {
		return fmt.Errorf("postgres: save profile: %w", err)
	}
	return nil
}

// GetProfile returns ErrNotFound if the user has no profile.
func (s *Store) GetProfile(ctx context.Context, userID string) (*types.UserProfile, error) {
	var (
		p                            types.UserProfile
		email, role, company, domain sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, name, email, role, company, email_domain, expertise, impress_list
		FROM user_profiles WHERE user_id = $1`, userID,
	).Scan(&p.UserID, &p.Name, &email, &role, &company, &domain,
		pq.Array(&p.Expertise), pq.Array(&p.ImpressList))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get profile: %w", err)
	}
	p.Email, p.Role, p.Company, p.EmailDomain = email.String, role.String, company.String, domain.String
	return &p, nil
}

// ListUserIDs returns every user with a profile, sorted.
func (s *Store) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id FROM user_profiles ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres: scan user id: %w", err)
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
			`SELECT MAX(version) FROM content_universes WHERE user_id = $1`, userID).Scan(&latest); err != nil {
			return fmt.Errorf("postgres: next universe version: %w", err)
		}
		u.Version = int(latest.Int64) + 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO content_universes (user_id, version, definition, core_topics, exclusions, seismic_threshold, generated_from, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		userID, u.Version, nullableString(u.Definition), pq.Array(nonNil(u.CoreTopics)),
		pq.Array(nonNil(u.Exclusions)), nullableString(u.SeismicThreshold),
		pq.Array(nonNil(u.GeneratedFrom)), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("postgres: save universe: %w", err)
	}
	return nil
}

// GetUniverse returns the latest universe version.
func (s *Store) GetUniverse(ctx context.Context, userID string) (*types.ContentUniverse, error) {
	var (
		u                   types.ContentUniverse
		definition, seismic sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT version, definition, core_topics, exclusions, seismic_threshold, generated_from
		FROM content_universes WHERE user_id = $1
		ORDER BY version DESC LIMIT 1`, userID,
	).Scan(&u.Version, &definition, pq.Array(&u.CoreTopics), pq.Array(&u.Exclusions),
		&seismic, pq.Array(&u.GeneratedFrom))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get universe: %w", err)
	}
	u.Definition, u.SeismicThreshold = definition.String, seismic.String
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
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		ev.ID, ev.UserID, ev.SignalTitle, nullableString(ev.SourceURL), nullableString(ev.SourceLabel),
		string(ev.Kind), nullableString(ev.Comment), ev.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("postgres: record feedback: %w", err)
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
		WHERE user_id = $1 AND created_at >= $2
		ORDER BY created_at DESC
		LIMIT $3`, userID, since.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list feedback: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []types.FeedbackEvent
	for rows.Next() {
		var (
			ev                  types.FeedbackEvent
			url, label, comment sql.NullString
			kind                string
		)
		if err := rows.Scan(&ev.ID, &ev.UserID, &ev.SignalTitle, &url, &label, &kind, &comment, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan feedback: %w", err)
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
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			organization = EXCLUDED.organization,
			title = EXCLUDED.title,
			kind = EXCLUDED.kind`,
		p.ID, p.UserID, p.Name, nullableString(p.Organization), nullableString(p.Title), string(p.Kind))
	if err != nil {
		return fmt.Errorf("postgres: save peer: %w", err)
	}
	return nil
}

// ListPeers returns a user's tracked peers sorted by name.
func (s *Store) ListPeers(ctx context.Context, userID string) ([]types.PeerContact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, organization, title, kind
		FROM peer_contacts WHERE user_id = $1 ORDER BY name`, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list peers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []types.PeerContact
	for rows.Next() {
		var (
			p          types.PeerContact
			org, title sql.NullString
			kind       string
		)
		if err := rows.Scan(&p.ID, &p.UserID, &p.Name, &org, &title, &kind); err != nil {
			return nil, fmt.Errorf("postgres: scan peer: %w", err)
		}
		p.Organization, p.Title, p.Kind = org.String, title.String, types.PeerKind(kind)
		out = append(out, p)
	}
	return out, rows.Err()
}

// nonNil keeps NOT NULL array columns from receiving NULL.
func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
