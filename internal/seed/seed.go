// Package seed loads per-user fixtures from YAML and writes them through the
// stores. Knowledge entities go through the knowledge model, so pruned
// name+type pairs stay suppressed and embeddings are generated.
package seed

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/scrypster/briefing/internal/ingestion"
	"github.com/scrypster/briefing/internal/knowledge"
	"github.com/scrypster/briefing/internal/storage"
	"github.com/scrypster/briefing/pkg/types"
)

// File is the root of a seed fixture. One file may describe several users.
type File struct {
	Users []User `yaml:"users"`
}

// User is everything seeded for one user.
type User struct {
	Profile    types.UserProfile       `yaml:"profile"`
	Universe   *types.ContentUniverse  `yaml:"universe"`
	Entities   []knowledge.EntityInput `yaml:"entities"`
	Edges      []Edge                  `yaml:"edges"`
	Peers      []Peer                  `yaml:"peers"`
	Meetings   []Meeting               `yaml:"meetings"`
	Feeds      []Feed                  `yaml:"feeds"`
	Provenance []Provenance            `yaml:"provenance"`
}

// Edge links two seeded entities by name.
type Edge struct {
	From     string `yaml:"from"`
	To       string `yaml:"to"`
	Relation string `yaml:"relation"`
}

// Peer is a tracked organisation or contact.
type Peer struct {
	Name         string `yaml:"name"`
	Organization string `yaml:"organization"`
	Title        string `yaml:"title"`
	Kind         string `yaml:"kind"`
}

// Meeting is a calendar event. StartIn offsets the start from the time the
// fixture is applied, so fixtures stay useful on any day.
type Meeting struct {
	ID        string           `yaml:"id"`
	Title     string           `yaml:"title"`
	Start     time.Time        `yaml:"start"`
	StartIn   time.Duration    `yaml:"start_in"`
	Duration  time.Duration    `yaml:"duration"`
	Attendees []types.Attendee `yaml:"attendees"`
}

// Feed is an RSS source polled for the user.
type Feed struct {
	URL   string `yaml:"url"`
	Label string `yaml:"label"`
	Layer string `yaml:"layer"`
}

// Provenance records why a source surfaces for the user.
type Provenance struct {
	SourceURL string `yaml:"source_url"`
	Title     string `yaml:"title"`
	Kind      string `yaml:"kind"`
	Detail    string `yaml:"detail"`
}

// Result summarises an Apply call.
type Result struct {
	Users      int
	Entities   knowledge.AddResult
	Edges      int
	Peers      int
	Meetings   int
	Feeds      int
	Provenance int
}

// LoadFile reads and validates a fixture.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	for i, u := range f.Users {
		if strings.TrimSpace(u.Profile.UserID) == "" {
			return nil, fmt.Errorf("seed file %s: user %d has no profile.user_id", path, i)
		}
	}
	return &f, nil
}

// Seeder applies fixtures.
type Seeder struct {
	store  storage.Store
	model  *knowledge.Model
	logger *zap.Logger
	now    func() time.Time
}

// NewSeeder creates a seeder writing to store and model.
func NewSeeder(store storage.Store, model *knowledge.Model, logger *zap.Logger) *Seeder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Seeder{
		store:  store,
		model:  model,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Apply writes every user in f. Re-applying a file updates profiles, peers,
// feeds and meetings with explicit IDs in place, and skips entities and edges
// that already exist. Provenance records are appended.
func (s *Seeder) Apply(ctx context.Context, f *File) (*Result, error) {
	res := &Result{}
	for i := range f.Users {
		if err := s.applyUser(ctx, &f.Users[i], res); err != nil {
			return res, fmt.Errorf("seed user %s: %w", f.Users[i].Profile.UserID, err)
		}
		res.Users++
	}
	s.logger.Info("seed applied",
		zap.Int("users", res.Users),
		zap.Int("entities_inserted", res.Entities.Inserted),
		zap.Int("entities_suppressed", res.Entities.Suppressed),
		zap.Int("meetings", res.Meetings),
		zap.Int("feeds", res.Feeds))
	return res, nil
}

func (s *Seeder) applyUser(ctx context.Context, u *User, res *Result) error {
	userID := strings.TrimSpace(u.Profile.UserID)
	u.Profile.UserID = userID

	if err := s.store.SaveProfile(ctx, &u.Profile); err != nil {
		return err
	}
	if u.Universe != nil {
		if err := s.store.SaveUniverse(ctx, userID, u.Universe); err != nil {
			return err
		}
	}

	added, err := s.model.AddEntities(ctx, userID, u.Entities)
	if err != nil {
		return err
	}
	res.Entities.Inserted += added.Inserted
	res.Entities.Duplicates += added.Duplicates
	res.Entities.Suppressed += added.Suppressed
	res.Entities.Invalid += added.Invalid
	res.Entities.Embedded += added.Embedded

	if len(u.Edges) > 0 {
		n, err := s.applyEdges(ctx, userID, u.Edges)
		if err != nil {
			return err
		}
		res.Edges += n
	}

	for _, p := range u.Peers {
		kind := types.PeerKind(p.Kind)
		if kind == "" {
			kind = types.PeerKindOrg
		}
		if err := s.store.SavePeer(ctx, &types.PeerContact{
			ID:           stableID(userID, "peer", p.Name, p.Organization),
			UserID:       userID,
			Name:         p.Name,
			Organization: p.Organization,
			Title:        p.Title,
			Kind:         kind,
		}); err != nil {
			return err
		}
		res.Peers++
	}

	now := s.now()
	for _, m := range u.Meetings {
		meeting := toMeeting(userID, m, now)
		if err := s.store.SaveMeeting(ctx, meeting); err != nil {
			return err
		}
		res.Meetings++
	}

	feeds := make([]ingestion.FeedSpec, 0, len(u.Feeds))
	for _, fd := range u.Feeds {
		feeds = append(feeds, ingestion.FeedSpec{UserID: userID, URL: fd.URL, Label: fd.Label, Layer: fd.Layer})
	}
	if err := ingestion.RegisterFeeds(ctx, s.store, feeds); err != nil {
		return err
	}
	res.Feeds += len(feeds)

	for _, p := range u.Provenance {
		if err := s.store.RecordProvenance(ctx, &types.SignalProvenance{
			UserID:    userID,
			SourceURL: p.SourceURL,
			Title:     p.Title,
			Kind:      types.ProvenanceKind(p.Kind),
			Detail:    p.Detail,
		}); err != nil {
			return err
		}
		res.Provenance++
	}
	return nil
}

// applyEdges resolves edge endpoints by entity name. Edges naming an entity
// that was not stored (pruned, invalid) are skipped.
func (s *Seeder) applyEdges(ctx context.Context, userID string, edges []Edge) (int, error) {
	entities, err := s.store.ListEntities(ctx, userID, storage.EntityListOptions{})
	if err != nil {
		return 0, err
	}
	byName := make(map[string]string, len(entities))
	for _, e := range entities {
		byName[strings.ToLower(e.Name)] = e.ID
	}

	n := 0
	for _, edge := range edges {
		from, okFrom := byName[strings.ToLower(strings.TrimSpace(edge.From))]
		to, okTo := byName[strings.ToLower(strings.TrimSpace(edge.To))]
		if !okFrom || !okTo {
			s.logger.Debug("skipping edge with unknown endpoint",
				zap.String("user_id", userID), zap.String("from", edge.From), zap.String("to", edge.To))
			continue
		}
		relation := edge.Relation
		if relation == "" {
			relation = "related_to"
		}
		exists, err := s.hasEdge(ctx, from, to, relation)
		if err != nil {
			return n, err
		}
		if exists {
			continue
		}
		if err := s.store.InsertEdge(ctx, &types.EntityEdge{
			UserID:       userID,
			FromEntityID: from,
			ToEntityID:   to,
			Relation:     relation,
		}); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (s *Seeder) hasEdge(ctx context.Context, from, to, relation string) (bool, error) {
	edges, err := s.store.ListEdges(ctx, from)
	if err != nil {
		return false, err
	}
	for _, e := range edges {
		if e.FromEntityID == from && e.ToEntityID == to && e.Relation == relation {
			return true, nil
		}
	}
	return false, nil
}

// stableID derives a deterministic ID so re-seeding updates rows in place.
func stableID(parts ...string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(strings.ToLower(strings.Join(parts, "|")))).String()
}

func toMeeting(userID string, m Meeting, now time.Time) *types.Meeting {
	start := m.Start
	if start.IsZero() {
		start = now.Add(m.StartIn)
	}
	duration := m.Duration
	if duration <= 0 {
		duration = 30 * time.Minute
	}
	id := m.ID
	if id == "" {
		id = stableID(userID, "meeting", m.Title, start.UTC().Format(time.RFC3339))
	}
	return &types.Meeting{
		ID:        id,
		UserID:    userID,
		Title:     m.Title,
		Start:     start.UTC(),
		End:       start.Add(duration).UTC(),
		Attendees: m.Attendees,
	}
}
