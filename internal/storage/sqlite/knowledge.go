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

const entityColumns = `id, user_id, entity_type, name, description, source, confidence, embedding, known_since, last_reinforced`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// InsertEntity writes an entity unless (user_id, name, entity_type) exists.
func (s *Store) InsertEntity(ctx context.Context, e *types.KnowledgeEntity) (bool, error) {
	if e == nil || e.UserID == "" || strings.TrimSpace(e.Name) == "" {
		return false, fmt.Errorf("%w: entity requires user_id and name", storage.ErrInvalidInput)
	}
	if !types.IsValidEntityType(string(e.EntityType)) {
		return false, fmt.Errorf("%w: unknown entity type %q", storage.ErrInvalidInput, e.EntityType)
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if e.KnownSince.IsZero() {
		e.KnownSince = now
	}
	if e.LastReinforced.IsZero() {
		e.LastReinforced = e.KnownSince
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO knowledge_entities (`+entityColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, name, entity_type) DO NOTHING`,
		e.ID, e.UserID, string(e.EntityType), e.Name, nullableString(e.Description),
		e.Source, e.Confidence, storage.EncodeEmbedding(e.Embedding),
		utc(e.KnownSince), utc(e.LastReinforced),
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: insert entity: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: insert entity rows affected: %w", err)
	}
	return n > 0, nil
}

// GetEntity retrieves an entity by ID.
func (s *Store) GetEntity(ctx context.Context, id string) (*types.KnowledgeEntity, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entityColumns+` FROM knowledge_entities WHERE id = ?`, id)
	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get entity: %w", err)
	}
	return e, nil
}

// ListEntities returns a user's entities, most recently reinforced first.
func (s *Store) ListEntities(ctx context.Context, userID string, opts storage.EntityListOptions) ([]types.KnowledgeEntity, error) {
	var (
		clauses = []string{"user_id = ?"}
		args    = []any{userID}
	)
	if len(opts.ExcludeSources) > 0 {
		placeholders := make([]string, len(opts.ExcludeSources))
		for i, src := range opts.ExcludeSources {
			placeholders[i] = "?"
			args = append(args, src)
		}
		clauses = append(clauses, "source NOT IN ("+strings.Join(placeholders, ", ")+")")
	}
	if opts.WithEmbeddingOnly {
		clauses = append(clauses, "embedding IS NOT NULL AND length(embedding) > 0")
	}

	query := `SELECT ` + entityColumns + ` FROM knowledge_entities WHERE ` +
		strings.Join(clauses, " AND ") + ` ORDER BY last_reinforced DESC, name ASC`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}
	return s.queryEntities(ctx, query, args...)
}

// SearchEntities matches the query as a case-insensitive substring of name
// or description.
func (s *Store) SearchEntities(ctx context.Context, userID, query string, limit int) ([]types.KnowledgeEntity, error) {
	pattern := "%" + escapeLike(strings.ToLower(strings.TrimSpace(query))) + "%"
	if limit <= 0 {
		limit = 50
	}
	return s.queryEntities(ctx, `
		SELECT `+entityColumns+` FROM knowledge_entities
		WHERE user_id = ?
		  AND (lower(name) LIKE ? ESCAPE '\' OR lower(coalesce(description, '')) LIKE ? ESCAPE '\')
		ORDER BY confidence DESC, name ASC
		LIMIT ?`,
		userID, pattern, pattern, limit,
	)
}

// ReinforceEntity bumps last_reinforced for an entity.
func (s *Store) ReinforceEntity(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE knowledge_entities SET last_reinforced = ? WHERE id = ?`, utc(at), id)
	if err != nil {
		return fmt.Errorf("sqlite: reinforce entity: %w", err)
	}
	return requireAffected(res)
}

// DeleteEntity removes an entity and every edge referencing it in one
// transaction.
func (s *Store) DeleteEntity(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin delete entity: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM entity_edges WHERE from_entity_id = ? OR to_entity_id = ?`, id, id); err != nil {
		return fmt.Errorf("sqlite: delete entity edges: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM knowledge_entities WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: delete entity: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return err
	}
	return tx.Commit()
}

// InsertEdge links two entities.
func (s *Store) InsertEdge(ctx context.Context, edge *types.EntityEdge) error {
	if edge == nil || edge.FromEntityID == "" || edge.ToEntityID == "" {
		return fmt.Errorf("%w: edge requires both endpoints", storage.ErrInvalidInput)
	}
	if edge.ID == "" {
		edge.ID = uuid.New().String()
	}
	if edge.CreatedAt.IsZero() {
		edge.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entity_edges (id, user_id, from_entity_id, to_entity_id, relation, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		edge.ID, edge.UserID, edge.FromEntityID, edge.ToEntityID, edge.Relation, utc(edge.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert edge: %w", err)
	}
	return nil
}

// ListEdges returns all edges touching an entity.
func (s *Store) ListEdges(ctx context.Context, entityID string) ([]types.EntityEdge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, from_entity_id, to_entity_id, relation, created_at
		FROM entity_edges
		WHERE from_entity_id = ? OR to_entity_id = ?
		ORDER BY created_at ASC`, entityID, entityID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list edges: %w", err)
	}
	defer rows.Close()

	var edges []types.EntityEdge
	for rows.Next() {
		var e types.EntityEdge
		if err := rows.Scan(&e.ID, &e.UserID, &e.FromEntityID, &e.ToEntityID, &e.Relation, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan edge: %w", err)
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// RecordPruned stores a sticky suppression record.
func (s *Store) RecordPruned(ctx context.Context, p *types.PrunedEntity) error {
	if p == nil || p.UserID == "" || strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: pruned record requires user_id and name", storage.ErrInvalidInput)
	}
	if p.PrunedAt.IsZero() {
		p.PrunedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pruned_entities (user_id, name_key, name, entity_type, reason, pruned_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, name_key, entity_type) DO NOTHING`,
		p.UserID, nameKey(p.Name), p.Name, string(p.EntityType), nullableString(p.Reason), utc(p.PrunedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: record pruned: %w", err)
	}
	return nil
}

// IsPruned reports whether name+type has been pruned for the user.
func (s *Store) IsPruned(ctx context.Context, userID, name string, entityType types.EntityType) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM pruned_entities
		WHERE user_id = ? AND name_key = ? AND entity_type = ?`,
		userID, nameKey(name), string(entityType),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("sqlite: is pruned: %w", err)
	}
	return n > 0, nil
}

// ListPruned returns every suppression record for a user.
func (s *Store) ListPruned(ctx context.Context, userID string) ([]types.PrunedEntity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, name, entity_type, reason, pruned_at
		FROM pruned_entities WHERE user_id = ? ORDER BY pruned_at ASC, name ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list pruned: %w", err)
	}
	defer rows.Close()

	var out []types.PrunedEntity
	for rows.Next() {
		var (
			p          types.PrunedEntity
			entityType string
			reason     sql.NullString
		)
		if err := rows.Scan(&p.UserID, &p.Name, &entityType, &reason, &p.PrunedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan pruned: %w", err)
		}
		p.EntityType = types.EntityType(entityType)
		p.Reason = reason.String
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) queryEntities(ctx context.Context, query string, args ...any) ([]types.KnowledgeEntity, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query entities: %w", err)
	}
	defer rows.Close()

	var out []types.KnowledgeEntity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan entity: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func scanEntity(row rowScanner) (*types.KnowledgeEntity, error) {
	var (
		e           types.KnowledgeEntity
		entityType  string
		description sql.NullString
		blob        []byte
	)
	if err := row.Scan(&e.ID, &e.UserID, &entityType, &e.Name, &description, &e.Source,
		&e.Confidence, &blob, &e.KnownSince, &e.LastReinforced); err != nil {
		return nil, err
	}
	e.EntityType = types.EntityType(entityType)
	e.Description = description.String
	vec, err := storage.DecodeEmbedding(blob)
	if err != nil {
		return nil, err
	}
	e.Embedding = vec
	return &e, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// escapeLike escapes LIKE wildcards so the query matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
