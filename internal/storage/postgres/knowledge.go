package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/scrypster/briefing/internal/storage"
	"github.com/scrypster/briefing/pkg/types"
)

// entitySelectColumns must match the scan order in scanEntity.
const entitySelectColumns = `id, user_id, entity_type, name, description, source, confidence, embedding, known_since, last_reinforced`

// InsertEntity writes an entity unless (user_id, name, entity_type) exists.
// When pgvector is available the embedding is also written to embedding_vec.
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

	args := []any{
		e.ID, e.UserID, string(e.EntityType), e.Name, nullableString(e.Description),
		e.Source, e.Confidence, storage.EncodeEmbedding(e.Embedding),
		e.KnownSince.UTC(), e.LastReinforced.UTC(),
	}
	query := `
		INSERT INTO knowledge_entities (` + entitySelectColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_id, name, entity_type) DO NOTHING`
	if s.pgvectorAvailable && e.HasEmbedding() {
		query = `
		INSERT INTO knowledge_entities (` + entitySelectColumns + `, embedding_vec)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (user_id, name, entity_type) DO NOTHING`
		args = append(args, pgvector.NewVector(e.Embedding))
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("postgres: insert entity: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("postgres: insert entity rows affected: %w", err)
	}
	return n > 0, nil
}

// GetEntity retrieves an entity by ID.
func (s *Store) GetEntity(ctx context.Context, id string) (*types.KnowledgeEntity, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entitySelectColumns+` FROM knowledge_entities WHERE id = $1`, id)
	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get entity: %w", err)
	}
	return e, nil
}

// ListEntities returns a user's entities, most recently reinforced first.
func (s *Store) ListEntities(ctx context.Context, userID string, opts storage.EntityListOptions) ([]types.KnowledgeEntity, error) {
	clauses := []string{"user_id = $1"}
	args := []any{userID}
	if len(opts.ExcludeSources) > 0 {
		args = append(args, pq.Array(opts.ExcludeSources))
		clauses = append(clauses, "NOT (source = ANY($"+strconv.Itoa(len(args))+"))")
	}
	if opts.WithEmbeddingOnly {
		clauses = append(clauses, "embedding IS NOT NULL AND length(embedding) > 0")
	}
	query := `SELECT ` + entitySelectColumns + ` FROM knowledge_entities WHERE ` +
		strings.Join(clauses, " AND ") + ` ORDER BY last_reinforced DESC, name ASC`
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}
	return s.queryEntities(ctx, query, args...)
}

// SearchEntities matches the query as a case-insensitive substring of name
// or description.
func (s *Store) SearchEntities(ctx context.Context, userID, query string, limit int) ([]types.KnowledgeEntity, error) {
	if limit <= 0 {
		limit = 50
	}
	pattern := "%" + escapeLike(strings.TrimSpace(query)) + "%"
	return s.queryEntities(ctx, `
		SELECT `+entitySelectColumns+` FROM knowledge_entities
		WHERE user_id = $1 AND (name ILIKE $2 OR COALESCE(description, '') ILIKE $2)
		ORDER BY confidence DESC, name ASC
		LIMIT $3`, userID, pattern, limit)
}

// SimilarEntities ranks embedded entities by pgvector cosine distance.
// Entities whose vector dimension differs from vec are ignored.
func (s *Store) SimilarEntities(ctx context.Context, userID string, vec []float32, minSimilarity float64, limit int) ([]types.ScoredEntity, error) {
	if !s.pgvectorAvailable {
		return nil, storage.ErrVectorSearchUnavailable
	}
	if len(vec) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	// Rows of another dimension are dropped before <=> ever sees them.
	rows, err := s.db.QueryContext(ctx, `
		WITH same_dims AS MATERIALIZED (
			SELECT * FROM knowledge_entities
			WHERE user_id = $1
			  AND embedding_vec IS NOT NULL
			  AND vector_dims(embedding_vec) = $3
		), scored AS (
			SELECT *, 1 - (embedding_vec <=> $2::vector) AS similarity FROM same_dims
		)
		SELECT `+entitySelectColumns+`, similarity
		FROM scored
		WHERE similarity > $4
		ORDER BY similarity DESC
		LIMIT $5`,
		userID, pgvector.NewVector(vec), len(vec), minSimilarity, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: similar entities: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []types.ScoredEntity
	for rows.Next() {
		var (
			sc          types.ScoredEntity
			entityType  string
			description sql.NullString
			blob        []byte
		)
		e := &sc.Entity
		if err := rows.Scan(&e.ID, &e.UserID, &entityType, &e.Name, &description, &e.Source,
			&e.Confidence, &blob, &e.KnownSince, &e.LastReinforced, &sc.Similarity); err != nil {
			return nil, fmt.Errorf("postgres: scan similar entity: %w", err)
		}
		e.EntityType = types.EntityType(entityType)
		e.Description = description.String
		if e.Embedding, err = storage.DecodeEmbedding(blob); err != nil {
			return nil, fmt.Errorf("postgres: decode embedding: %w", err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// ReinforceEntity bumps last_reinforced for an entity.
func (s *Store) ReinforceEntity(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE knowledge_entities SET last_reinforced = $1 WHERE id = $2`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("postgres: reinforce entity: %w", err)
	}
	return requireAffected(res)
}

// DeleteEntity removes an entity and every edge referencing it.
func (s *Store) DeleteEntity(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin delete entity: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM entity_edges WHERE from_entity_id = $1 OR to_entity_id = $1`, id); err != nil {
		return fmt.Errorf("postgres: delete entity edges: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM knowledge_entities WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete entity: %w", err)
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
		VALUES ($1, $2, $3, $4, $5, $6)`,
		edge.ID, edge.UserID, edge.FromEntityID, edge.ToEntityID, edge.Relation, edge.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("postgres: insert edge: %w", err)
	}
	return nil
}

// ListEdges returns all edges touching an entity.
func (s *Store) ListEdges(ctx context.Context, entityID string) ([]types.EntityEdge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, from_entity_id, to_entity_id, relation, created_at
		FROM entity_edges
		WHERE from_entity_id = $1 OR to_entity_id = $1
		ORDER BY created_at ASC`, entityID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list edges: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var edges []types.EntityEdge
	for rows.Next() {
		var e types.EntityEdge
		if err := rows.Scan(&e.ID, &e.UserID, &e.FromEntityID, &e.ToEntityID, &e.Relation, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan edge: %w", err)
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
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, name_key, entity_type) DO NOTHING`,
		p.UserID, nameKey(p.Name), p.Name, string(p.EntityType), nullableString(p.Reason), p.PrunedAt.UTC())
	if err != nil {
		return fmt.Errorf("postgres: record pruned: %w", err)
	}
	return nil
}

// IsPruned reports whether name+type has been pruned for the user.
func (s *Store) IsPruned(ctx context.Context, userID, name string, entityType types.EntityType) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM pruned_entities
			WHERE user_id = $1 AND name_key = $2 AND entity_type = $3
		)`, userID, nameKey(name), string(entityType)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: is pruned: %w", err)
	}
	return exists, nil
}

// ListPruned returns every suppression record for a user.
func (s *Store) ListPruned(ctx context.Context, userID string) ([]types.PrunedEntity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, name, entity_type, reason, pruned_at
		FROM pruned_entities WHERE user_id = $1 ORDER BY pruned_at ASC, name ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list pruned: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []types.PrunedEntity
	for rows.Next() {
		var (
			p          types.PrunedEntity
			entityType string
			reason     sql.NullString
		)
		if err := rows.Scan(&p.UserID, &p.Name, &entityType, &reason, &p.PrunedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan pruned: %w", err)
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
		return nil, fmt.Errorf("postgres: query entities: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []types.KnowledgeEntity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan entity: %w", err)
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

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// escapeLike escapes ILIKE wildcards so the query matches literally.
func escapeLike(str string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(str)
}
