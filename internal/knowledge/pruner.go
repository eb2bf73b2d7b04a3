package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/scrypster/briefing/internal/llm"
	"github.com/scrypster/briefing/internal/storage"
	"github.com/scrypster/briefing/pkg/types"
)

// PruneBatchSize is the number of entities judged per model call.
const PruneBatchSize = 50

// PruneReport summarizes one pruning pass.
type PruneReport struct {
	UserID        string
	Evaluated     int
	Removed       []llm.PruneRemoval
	Batches       int
	FailedBatches int
}

// Pruner removes overly generic or off-domain entities from a user's
// knowledge model. Removed name+type pairs are recorded so reseeding them
// is skipped.
type Pruner struct {
	store     storage.KnowledgeStore
	profiles  storage.ProfileStore
	chat      llm.ChatModel
	logger    *zap.Logger
	batchSize int
}

// NewPruner creates a pruner that judges entities with chat.
func NewPruner(store storage.KnowledgeStore, profiles storage.ProfileStore, chat llm.ChatModel, logger *zap.Logger) *Pruner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pruner{
		store:     store,
		profiles:  profiles,
		chat:      chat,
		logger:    logger,
		batchSize: PruneBatchSize,
	}
}

// Prune evaluates every non-exempt entity of userID. A batch whose model
// call or verdict fails keeps all of its entities. An entity named more than
// once in a verdict is removed once, and one already gone counts as removed.
func (p *Pruner) Prune(ctx context.Context, userID string) (*PruneReport, error) {
	profile, err := p.profiles.GetProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load profile %s: %w", userID, err)
	}

	listed, err := p.store.ListEntities(ctx, userID, storage.EntityListOptions{
		ExcludeSources: types.PruneExemptSources,
	})
	if err != nil {
		return nil, fmt.Errorf("list entities for pruning: %w", err)
	}
	candidates := listed[:0]
	for _, e := range listed {
		if !types.IsPruneExempt(e.Source) {
			candidates = append(candidates, e)
		}
	}

	report := &PruneReport{UserID: userID, Evaluated: len(candidates)}
	for start := 0; start < len(candidates); start += p.batchSize {
		end := start + p.batchSize
		if end > len(candidates) {
			end = len(candidates)
		}
		batch := candidates[start:end]
		report.Batches++

		removals, err := p.judge(ctx, profile, batch)
		if err != nil {
			report.FailedBatches++
			p.logger.Warn("prune batch failed, keeping batch",
				zap.String("user_id", userID),
				zap.Int("batch", report.Batches),
				zap.Int("size", len(batch)),
				zap.Error(err))
			continue
		}

		removed := make(map[string]bool, len(removals))
		for _, r := range removals {
			entity, ok := findEntity(batch, r)
			if !ok || removed[entity.ID] {
				continue
			}
			removed[entity.ID] = true
			if err := p.remove(ctx, entity, r.Reason); err != nil {
				return report, err
			}
			report.Removed = append(report.Removed, llm.PruneRemoval{
				Name:   entity.Name,
				Type:   string(entity.EntityType),
				Reason: r.Reason,
			})
		}
	}

	p.logger.Info("pruning complete",
		zap.String("user_id", userID),
		zap.Int("evaluated", report.Evaluated),
		zap.Int("removed", len(report.Removed)),
		zap.Int("failed_batches", report.FailedBatches))
	return report, nil
}

func (p *Pruner) judge(ctx context.Context, profile *types.UserProfile, batch []types.KnowledgeEntity) ([]llm.PruneRemoval, error) {
	prompt, err := PrunePrompt(profile, batch)
	if err != nil {
		return nil, err
	}
	resp, err := p.chat.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, llm.ChatOptions{
		Temperature: 0,
		MaxTokens:   2048,
	})
	if err != nil {
		return nil, fmt.Errorf("prune judge call: %w", err)
	}
	return llm.ParsePruneVerdict(resp.Content)
}

func (p *Pruner) remove(ctx context.Context, e types.KnowledgeEntity, reason string) error {
	// The suppression row must exist before the entity is deleted.
	if err := p.store.RecordPruned(ctx, &types.PrunedEntity{
		UserID:     e.UserID,
		Name:       e.Name,
		EntityType: e.EntityType,
		Reason:     reason,
	}); err != nil {
		return fmt.Errorf("record pruned entity %q: %w", e.Name, err)
	}
	if err := p.store.DeleteEntity(ctx, e.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("delete pruned entity %q: %w", e.Name, err)
	}
	p.logger.Debug("entity pruned",
		zap.String("user_id", e.UserID),
		zap.String("name", e.Name),
		zap.String("type", string(e.EntityType)),
		zap.String("reason", reason))
	return nil
}

// findEntity matches a removal against the batch by case-insensitive name
// and, when the verdict names one, entity type. Removals outside the batch
// are ignored.
func findEntity(batch []types.KnowledgeEntity, r llm.PruneRemoval) (types.KnowledgeEntity, bool) {
	for _, e := range batch {
		if !strings.EqualFold(e.Name, r.Name) {
			continue
		}
		if r.Type != "" && r.Type != string(e.EntityType) {
			continue
		}
		return e, true
	}
	return types.KnowledgeEntity{}, false
}

// PrunePrompt builds the judging prompt for one batch.
func PrunePrompt(profile *types.UserProfile, batch []types.KnowledgeEntity) (string, error) {
	type item struct {
		Name        string `json:"name"`
		Type        string `json:"type"`
		Description string `json:"description,omitempty"`
	}
	items := make([]item, len(batch))
	for i, e := range batch {
		items[i] = item{Name: e.Name, Type: string(e.EntityType), Description: e.Description}
	}
	body, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal prune batch: %w", err)
	}

	return fmt.Sprintf(`TASK: Review entities in a professional's knowledge model and pick the ones to remove.
OUTPUT: ONLY valid JSON. NO markdown. NO code blocks.

USER:
- Role: %s
- Company: %s
- Expertise: %s

REMOVE an entity when EITHER is true:
1. It is too generic: any working professional already knows it (e.g. "email", "meeting", "internet").
2. It is not plausibly relevant to this user's domain.

KEEP everything else. When unsure, KEEP.

ENTITIES:
%s

REQUIRED JSON STRUCTURE:
{"remove":[{"name":"...","type":"...","reason":"too generic"}]}
Return {"remove":[]} if nothing should be removed.`,
		profile.Role, profile.Company, strings.Join(profile.Expertise, ", "), body), nil
}
