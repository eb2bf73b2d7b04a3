package sqlite

// Schema contains the SQL statements to create the SQLite schema.
// Every statement is idempotent. List-valued fields are stored as JSON text
// and embeddings as little-endian float32 blobs.
const Schema = `
CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS user_profiles (
    user_id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    email TEXT,
    role TEXT,
    company TEXT,
    email_domain TEXT,
    expertise TEXT NOT NULL DEFAULT '[]',
    impress_list TEXT NOT NULL DEFAULT '[]',
    updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS content_universes (
    user_id TEXT NOT NULL,
    version INTEGER NOT NULL,
    definition TEXT,
    core_topics TEXT NOT NULL DEFAULT '[]',
    exclusions TEXT NOT NULL DEFAULT '[]',
    seismic_threshold TEXT,
    generated_from TEXT NOT NULL DEFAULT '[]',
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (user_id, version)
);

CREATE TABLE IF NOT EXISTS knowledge_entities (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    entity_type TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    source TEXT NOT NULL,
    confidence REAL NOT NULL DEFAULT 0.5,
    embedding BLOB,
    known_since TIMESTAMP NOT NULL,
    last_reinforced TIMESTAMP NOT NULL,
    UNIQUE (user_id, name, entity_type)
);

CREATE INDEX IF NOT EXISTS idx_knowledge_entities_user ON knowledge_entities(user_id, last_reinforced);

CREATE TABLE IF NOT EXISTS entity_edges (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    from_entity_id TEXT NOT NULL REFERENCES knowledge_entities(id) ON DELETE CASCADE,
    to_entity_id TEXT NOT NULL REFERENCES knowledge_entities(id) ON DELETE CASCADE,
    relation TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entity_edges_from ON entity_edges(from_entity_id);
CREATE INDEX IF NOT EXISTS idx_entity_edges_to ON entity_edges(to_entity_id);

CREATE TABLE IF NOT EXISTS pruned_entities (
    user_id TEXT NOT NULL,
    name_key TEXT NOT NULL,
    name TEXT NOT NULL,
    entity_type TEXT NOT NULL,
    reason TEXT,
    pruned_at TIMESTAMP NOT NULL,
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
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_feedback_user_created ON feedback_events(user_id, created_at);

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
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_signal_provenance_user ON signal_provenance(user_id);

CREATE TABLE IF NOT EXISTS meetings (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    title TEXT NOT NULL,
    start_at TIMESTAMP NOT NULL,
    end_at TIMESTAMP NOT NULL,
    attendees TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_meetings_user_start ON meetings(user_id, start_at);

CREATE TABLE IF NOT EXISTS briefings (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    model_used TEXT,
    items TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_briefings_user_created ON briefings(user_id, created_at);

CREATE TABLE IF NOT EXISTS signals (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    title TEXT NOT NULL,
    summary TEXT,
    source_url TEXT NOT NULL,
    source_label TEXT,
    layer TEXT NOT NULL,
    published_at TIMESTAMP,
    ingested_at TIMESTAMP NOT NULL,
    UNIQUE (user_id, source_url)
);

CREATE INDEX IF NOT EXISTS idx_signals_user_ingested ON signals(user_id, ingested_at);

CREATE TABLE IF NOT EXISTS ingestion_queries (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    kind TEXT NOT NULL,
    url TEXT NOT NULL,
    label TEXT,
    layer TEXT NOT NULL,
    next_poll_at TIMESTAMP NOT NULL,
    error_count INTEGER NOT NULL DEFAULT 0,
    last_error TEXT,
    last_success_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_ingestion_queries_due ON ingestion_queries(next_poll_at);
`
