package postgres

import (
	"context"
	"fmt"
)

// TruncateForTest removes all rows from every briefing table.
// It lives in the postgres package so it can reach the unexported db field.
func (s *Store) TruncateForTest(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		TRUNCATE TABLE entity_edges, knowledge_entities, pruned_entities, user_profiles,
			content_universes, feedback_events, peer_contacts, signal_provenance,
			meetings, briefings, signals, ingestion_queries
		RESTART IDENTITY CASCADE`)
	if err != nil {
		return fmt.Errorf("postgres: failed to truncate tables: %w", err)
	}
	return nil
}
