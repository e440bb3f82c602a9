package store

// Schema contains the complete DDL for the coordinator tables.
const Schema = `
-- Focus sessions. At most one row is live (state != 'ended') at a time;
-- the coordinator enforces that, the table just keeps history.
CREATE TABLE IF NOT EXISTS sessions (
    id                TEXT PRIMARY KEY,
    focus             TEXT NOT NULL,
    state             TEXT NOT NULL DEFAULT 'active',
    started_at        INTEGER NOT NULL,
    anchored_at       INTEGER,
    paused_at         INTEGER,
    ended_at          INTEGER,
    accumulated_ms    INTEGER NOT NULL DEFAULT 0,
    last_relevant_url TEXT NOT NULL DEFAULT '',
    limit_reached     INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_sessions_state ON sessions(state, started_at DESC);

-- Whitelist: exact URLs or bare hosts that are always Relevant, never
-- sent for classification.
CREATE TABLE IF NOT EXISTS whitelist (
    entry    TEXT PRIMARY KEY,
    added_at INTEGER NOT NULL
);

-- Assessment cache, keyed by (url, focus) since the same page can be
-- relevant to one focus and not another.
CREATE TABLE IF NOT EXISTS assessment_cache (
    url        TEXT NOT NULL,
    focus      TEXT NOT NULL,
    assessment TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    PRIMARY KEY (url, focus)
);
CREATE INDEX IF NOT EXISTS idx_assessment_age ON assessment_cache(created_at);

-- Daily focus ledger, keyed YYYY-MM-DD. Incremented at pause and end
-- boundaries only.
CREATE TABLE IF NOT EXISTS daily_focus (
    day        TEXT PRIMARY KEY,
    focused_ms INTEGER NOT NULL DEFAULT 0,
    sessions   INTEGER NOT NULL DEFAULT 0
);
`
