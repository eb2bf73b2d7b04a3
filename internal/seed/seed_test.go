package seed

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/briefing/internal/knowledge"
	"github.com/scrypster/briefing/internal/storage"
	"github.com/scrypster/briefing/internal/storage/sqlite"
	"github.com/scrypster/briefing/pkg/types"
)

const fixture = `
users:
  - profile:
      user_id: u1
      name: Dana Reyes
      role: Head of Payments Strategy
      company: Northwind Bank
      email_domain: northwind.example
      expertise: [real-time payments, ISO 20022]
      impress_list: [Priya Shah]
    universe:
      definition: Payments infrastructure for US banks
      core_topics: [real-time payments, open banking]
      exclusions: [celebrity]
      seismic_threshold: Network-wide outages
    entities:
      - {name: FedNow, type: product, description: Federal Reserve instant payments, source: profile-derived}
      - {name: ISO 20022, type: concept}
      - {name: Zelle, type: product}
      - {name: "", type: concept}
    edges:
      - {from: FedNow, to: ISO 20022, relation: uses}
      - {from: FedNow, to: Unknown Thing}
    peers:
      - {name: Contoso Bank, kind: peer_org}
      - {name: Priya Shah, organization: Fabrikam, title: CFO, kind: impress}
    meetings:
      - id: m1
        title: Fabrikam partnership review
        start_in: 2h
        duration: 45m
        attendees:
          - {name: Priya Shah, title: CFO, company: Fabrikam}
          - {name: Sam Lee, title: Analyst, company: Northwind Bank, internal: true}
    feeds:
      - {url: https://wire.example/rss, label: Payments Wire}
    provenance:
      - {source_url: https://wire.example/1, kind: peer_tracked, detail: Contoso Bank}
`

func writeFixture(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func newSeeder(t *testing.T) (*Seeder, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.NewStore(filepath.Join(t.TempDir(), "seed.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	s := NewSeeder(store, knowledge.NewModel(store, nil, nil), nil)
	s.now = func() time.Time { return time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC) }
	return s, store
}

func TestApply_WritesEveryCollection(t *testing.T) {
	f, err := LoadFile(writeFixture(t, fixture))
	require.NoError(t, err)
	s, store := newSeeder(t)
	ctx := context.Background()

	res, err := s.Apply(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Users)
	assert.Equal(t, 3, res.Entities.Inserted)
	assert.Equal(t, 1, res.Entities.Invalid)
	assert.Equal(t, 1, res.Edges)
	assert.Equal(t, 2, res.Peers)
	assert.Equal(t, 1, res.Meetings)
	assert.Equal(t, 1, res.Feeds)
	assert.Equal(t, 1, res.Provenance)

	profile, err := store.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Priya Shah"}, profile.ImpressList)

	universe, err := store.GetUniverse(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"real-time payments", "open banking"}, universe.CoreTopics)

	meetings, err := store.ListMeetings(ctx, "u1", s.now(), s.now().Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, meetings, 1)
	assert.Equal(t, s.now().Add(2*time.Hour), meetings[0].Start)
	assert.Equal(t, s.now().Add(2*time.Hour+45*time.Minute), meetings[0].End)
	assert.True(t, meetings[0].Attendees[1].Internal)

	peers, err := store.ListPeers(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, peers, 2)

	entities, err := store.ListEntities(ctx, "u1", storage.EntityListOptions{})
	require.NoError(t, err)
	sources := map[string]string{}
	for _, e := range entities {
		sources[e.Name] = e.Source
	}
	assert.Equal(t, types.SourceProfileDerived, sources["FedNow"])
	assert.Equal(t, types.SourceExtracted, sources["Zelle"])
}

func TestApply_ReapplyIsIdempotentAndHonoursPruning(t *testing.T) {
	f, err := LoadFile(writeFixture(t, fixture))
	require.NoError(t, err)
	s, store := newSeeder(t)
	ctx := context.Background()

	_, err = s.Apply(ctx, f)
	require.NoError(t, err)

	require.NoError(t, store.RecordPruned(ctx, &types.PrunedEntity{
		UserID: "u1", Name: "zelle", EntityType: types.EntityTypeProduct, Reason: "too generic",
	}))

	res, err := s.Apply(ctx, f)
	require.NoError(t, err)
	assert.Zero(t, res.Entities.Inserted)
	assert.Equal(t, 2, res.Entities.Duplicates)
	assert.Equal(t, 1, res.Entities.Suppressed)
	assert.Zero(t, res.Edges)

	peers, err := store.ListPeers(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, peers, 2)

	due, err := store.DueQueries(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, due, 1)
}

func TestLoadFile_RequiresUserID(t *testing.T) {
	_, err := LoadFile(writeFixture(t, "users:\n  - profile:\n      name: Nobody\n"))
	assert.ErrorContains(t, err, "no profile.user_id")

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
