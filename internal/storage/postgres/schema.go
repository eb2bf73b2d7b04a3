// Package postgres provides PostgreSQL implementations of storage interfaces.
package postgres

// Schema contains the SQL statements to create the database schema for PostgreSQL.
// All statements use IF NOT EXISTS so applying it is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS user_profiles (
    user_id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    email TEXT,
    role TEXT,
    company TEXT,
    email_domain TEXT,
    expertise TEXT[] NOT NULL DEFAULT '{}',
    impress_list TEXT[] NOT NULL DEFAULT '{}',
    updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS content_universes (
    user_id TEXT NOT NULL,
    version INTEGER NOT NULL,
    definition TEXT,
    core_topics TEXT[] NOT NULL DEFAULT '{}',
    exclusions TEXT[] NOT NULL DEFAULT '{}',
    seismic_threshold TEXT,
    generated_from TEXT[] NOT NULL DEFAULT '{}',
    created_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (user_id, version)
);

CREATE TABLE IF NOT EXISTS knowledge_entities (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    entity_type TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    source TEXT NOT NULL,
    confidence DOUBLE PRECISION NOT NULL DEFAULT 0.5,
    embedding BYTEA,
    known_since TIMESTAMPTZ NOT NULL,
    last_reinforced TIMESTAMPTZ NOT NULL,
    UNIQUE (user_id, name, entity_type)
);

CREATE INDEX IF NOT EXISTS idx_knowledge_entities_user ON knowledge_entities(user_id, last_reinforced DESC);

CREATE TABLE IF NOT EXISTS entity_edges (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    from_entity_id TEXT NOT NULL REFERENCES knowledge_entities(id) ON DELETE CASCADE,
    to_entity_id TEXT NOT NULL REFERENCES knowledge_entities(id) ON DELETE CASCADE,
    relation TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entity_edges_from ON entity_edges(from_entity_id);
CREATE INDEX IF NOT EXISTS idx_entity_edges_to ON entity_edges(to_entity_id);

CREATE TABLE IF NOT EXISTS pruned_entities (
    user_id TEXT NOT NULL,
    name_key TEXT NOT NULL,
    name TEXT NOT NULL,
    entity_type TEXT NOT NULL,
    reason TEXT,
    pruned_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (user_id, name_key, entity_type)
);

CREATE TABLE IF NOT EXISTS feedback_events (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    signal_title TEXT NOT NULL,
    source_url TEXT,
    source_label TEXT,
    kind TEXT NOT NULL,
    comment TEXT,
    created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_feedback_user_created ON feedback_events(user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS peer_contacts (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    name TEXT NOT NULL,
    organization TEXT,
    title TEXT,
    kind TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_peer_contacts_user ON peer_contacts(user_id);

CREATE TABLE IF NOT EXISTS signal_provenance (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    source_url TEXT,
    title TEXT,
    kind TEXT NOT NULL,
    detail TEXT,
    created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_signal_provenance_user ON signal_provenance(user_id);

CREATE TABLE IF NOT EXISTS meetings (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    title TEXT NOT NULL,
    start_at TIMESTAMPTZ NOT NULL,
    end_at TIMESTAMPTZ NOT NULL,
    attendees JSONB NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_meetings_user_start ON meetings(user_id, start_at);

CREATE TABLE IF NOT EXISTS briefings (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    model_used TEXT,
    items JSONB NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_briefings_user_created ON briefings(user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS signals (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    title TEXT NOT NULL,
    summary TEXT,
    source_url TEXT NOT NULL,
    source_label TEXT,
    layer TEXT NOT NULL,
    published_at TIMESTAMPTZ,
    ingested_at TIMESTAMPTZ NOT NULL,
    UNIQUE (user_id, source_url)
);

CREATE INDEX IF NOT EXISTS idx_signals_user_ingested ON signals(user_id, ingested_at DESC);

CREATE TABLE IF NOT EXISTS ingestion_queries (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    kind TEXT NOT NULL,
    url TEXT NOT NULL,
    label TEXT,
    layer TEXT NOT NULL,
    next_poll_at TIMESTAMPTZ NOT NULL,
    error_count INTEGER NOT NULL DEFAULT 0,
    last_error TEXT,
    last_success_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_ingestion_queries_due ON ingestion_queries(next_poll_at);
`

// MigrationPgvector adds the pgvector column used for in-database similarity
// ranking. It is only applied when the vector extension is available and is
// safe to run multiple times.
const MigrationPgvector = `
DO $$
BEGIN
    IF NOT EXISTS (
        SELECT 1 FROM information_schema.columns
        WHERE table_name = 'knowledge_entities' AND column_name = 'embedding_vec'
    ) THEN
        ALTER TABLE knowledge_entities ADD COLUMN embedding_vec vector;
    END IF;
END
$$;
`
