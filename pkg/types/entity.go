package types

import "time"

// KnowledgeEntity is something a user is known to already know about.
// (UserID, Name, EntityType) is unique; inserting a duplicate is a no-op.
type KnowledgeEntity struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	EntityType     EntityType `json:"entity_type"`
	Name           string     `json:"name"`
	Description    string     `json:"description,omitempty"`
	Source         string     `json:"source"`
	Confidence     float64    `json:"confidence"`
	Embedding      []float32  `json:"embedding,omitempty"`
	KnownSince     time.Time  `json:"known_since"`
	LastReinforced time.Time  `json:"last_reinforced"`
}

// HasEmbedding reports whether the entity carries a usable vector.
func (e *KnowledgeEntity) HasEmbedding() bool {
	return len(e.Embedding) > 0
}

// EntityEdge links two knowledge entities of the same user.
type EntityEdge struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	FromEntityID string    `json:"from_entity_id"`
	ToEntityID   string    `json:"to_entity_id"`
	Relation     string    `json:"relation"`
	CreatedAt    time.Time `json:"created_at"`
}

// PrunedEntity is a sticky suppression record. Once a name+type has been
// pruned for a user, reseeding the same name+type is skipped.
type PrunedEntity struct {
	UserID     string     `json:"user_id"`
	Name       string     `json:"name"`
	EntityType EntityType `json:"entity_type"`
	Reason     string     `json:"reason"`
	PrunedAt   time.Time  `json:"pruned_at"`
}

// ScoredEntity pairs an entity with its similarity to a query vector.
type ScoredEntity struct {
	Entity     KnowledgeEntity
	Similarity float64
}
