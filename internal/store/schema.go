package store

// migrations are applied in order; each entry is one schema version.
// Never edit an applied entry, append a new one.
var migrations = []string{
	`
CREATE TABLE sources (
    id                    TEXT PRIMARY KEY,
    name                  TEXT NOT NULL,
    type                  TEXT NOT NULL,
    url                   TEXT NOT NULL,
    poll_interval_seconds INTEGER NOT NULL,
    enabled               INTEGER NOT NULL DEFAULT 1,
    etag                  TEXT NOT NULL DEFAULT '',
    last_modified         TEXT NOT NULL DEFAULT '',
    next_fetch_at         INTEGER NOT NULL DEFAULT 0,
    cursor                TEXT NOT NULL DEFAULT '',
    default_country       TEXT NOT NULL DEFAULT ''
);

CREATE INDEX idx_sources_due ON sources(enabled, next_fetch_at);

CREATE TABLE source_health (
    source_id            TEXT PRIMARY KEY REFERENCES sources(id) ON DELETE CASCADE,
    consecutive_failures INTEGER NOT NULL DEFAULT 0,
    backoff_seconds      INTEGER NOT NULL DEFAULT 0,
    last_fetch_at        INTEGER NOT NULL DEFAULT 0,
    last_success_at      INTEGER NOT NULL DEFAULT 0,
    last_error_at        INTEGER NOT NULL DEFAULT 0,
    last_status_code     INTEGER NOT NULL DEFAULT 0,
    last_fetch_ms        INTEGER NOT NULL DEFAULT 0,
    last_error           TEXT NOT NULL DEFAULT '',
    success_count        INTEGER NOT NULL DEFAULT 0,
    error_count          INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE items (
    id                  TEXT PRIMARY KEY,
    source_id           TEXT NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
    source_type         TEXT NOT NULL DEFAULT '',
    external_id         TEXT NOT NULL DEFAULT '',
    url                 TEXT NOT NULL DEFAULT '',
    title               TEXT NOT NULL DEFAULT '',
    summary             TEXT NOT NULL DEFAULT '',
    content             TEXT NOT NULL DEFAULT '',
    published_at        INTEGER NOT NULL DEFAULT 0,
    updated_at          INTEGER NOT NULL DEFAULT 0,
    fetched_at          INTEGER NOT NULL DEFAULT 0,
    category            TEXT NOT NULL DEFAULT '',
    tags                TEXT NOT NULL DEFAULT '[]',
    geometry            TEXT,
    lat                 REAL,
    lon                 REAL,
    location_name       TEXT NOT NULL DEFAULT '',
    location_confidence TEXT NOT NULL DEFAULT 'U_unknown',
    location_rationale  TEXT NOT NULL DEFAULT '',
    raw                 TEXT,
    title_hash          TEXT NOT NULL DEFAULT '',
    content_hash        TEXT NOT NULL DEFAULT '',
    simhash             INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX idx_items_url ON items(url) WHERE url <> '';
CREATE UNIQUE INDEX idx_items_source_external ON items(source_id, external_id) WHERE external_id <> '';
CREATE INDEX idx_items_title_hash ON items(source_id, title_hash, fetched_at);
CREATE INDEX idx_items_fetched_at ON items(fetched_at);

CREATE TABLE incidents (
    id                  TEXT PRIMARY KEY,
    title               TEXT NOT NULL DEFAULT '',
    summary             TEXT NOT NULL DEFAULT '',
    category            TEXT NOT NULL DEFAULT '',
    first_seen_at       INTEGER NOT NULL DEFAULT 0,
    last_seen_at        INTEGER NOT NULL DEFAULT 0,
    last_item_at        INTEGER NOT NULL DEFAULT 0,
    status              TEXT NOT NULL DEFAULT 'active',
    severity_score      INTEGER NOT NULL DEFAULT 0,
    geometry            TEXT,
    lat                 REAL,
    lon                 REAL,
    bbox                TEXT NOT NULL DEFAULT '',
    location_confidence TEXT NOT NULL DEFAULT 'U_unknown',
    location_rationale  TEXT NOT NULL DEFAULT '',
    simhash             INTEGER NOT NULL DEFAULT 0,
    simhash_bucket      INTEGER NOT NULL DEFAULT 0,
    token_signature     TEXT NOT NULL DEFAULT '',
    item_count          INTEGER NOT NULL DEFAULT 0,
    source_count        INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX idx_incidents_candidates ON incidents(category, simhash_bucket, last_seen_at);
CREATE INDEX idx_incidents_status ON incidents(status, last_item_at);
CREATE INDEX idx_incidents_last_seen ON incidents(last_seen_at);

CREATE TABLE incident_items (
    incident_id TEXT NOT NULL REFERENCES incidents(id) ON DELETE CASCADE,
    item_id     TEXT NOT NULL REFERENCES items(id) ON DELETE CASCADE,
    joined_at   INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (incident_id, item_id)
);

CREATE INDEX idx_incident_items_item ON incident_items(item_id);

CREATE TABLE incident_merges (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    winner_id   TEXT NOT NULL,
    loser_id    TEXT NOT NULL,
    merged_at   INTEGER NOT NULL,
    hamming     INTEGER NOT NULL DEFAULT 0,
    distance_km REAL NOT NULL DEFAULT 0
);

CREATE TABLE places (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    name            TEXT NOT NULL,
    normalized_name TEXT NOT NULL,
    kind            TEXT NOT NULL DEFAULT '',
    country_code    TEXT NOT NULL DEFAULT '',
    admin1          TEXT NOT NULL DEFAULT '',
    lat             REAL NOT NULL,
    lon             REAL NOT NULL,
    importance      REAL NOT NULL DEFAULT 0
);

CREATE INDEX idx_places_normalized ON places(normalized_name);
`,
	`
CREATE VIRTUAL TABLE incidents_fts USING fts5(
    title, summary,
    content='incidents', content_rowid='rowid'
);

CREATE TRIGGER incidents_fts_insert AFTER INSERT ON incidents BEGIN
    INSERT INTO incidents_fts(rowid, title, summary)
    VALUES (new.rowid, new.title, new.summary);
END;

CREATE TRIGGER incidents_fts_delete AFTER DELETE ON incidents BEGIN
    INSERT INTO incidents_fts(incidents_fts, rowid, title, summary)
    VALUES ('delete', old.rowid, old.title, old.summary);
END;

CREATE TRIGGER incidents_fts_update AFTER UPDATE ON incidents BEGIN
    INSERT INTO incidents_fts(incidents_fts, rowid, title, summary)
    VALUES ('delete', old.rowid, old.title, old.summary);
    INSERT INTO incidents_fts(rowid, title, summary)
    VALUES (new.rowid, new.title, new.summary);
END;
`,
	`
CREATE VIRTUAL TABLE items_fts USING fts5(
    title, summary, content,
    content='items', content_rowid='rowid'
);

INSERT INTO items_fts(rowid, title, summary, content)
SELECT rowid, title, summary, content FROM items;

CREATE TRIGGER items_fts_insert AFTER INSERT ON items BEGIN
    INSERT INTO items_fts(rowid, title, summary, content)
    VALUES (new.rowid, new.title, new.summary, new.content);
END;

CREATE TRIGGER items_fts_delete AFTER DELETE ON items BEGIN
    INSERT INTO items_fts(items_fts, rowid, title, summary, content)
    VALUES ('delete', old.rowid, old.title, old.summary, old.content);
END;

CREATE TRIGGER items_fts_update AFTER UPDATE ON items BEGIN
    INSERT INTO items_fts(items_fts, rowid, title, summary, content)
    VALUES ('delete', old.rowid, old.title, old.summary, old.content);
    INSERT INTO items_fts(rowid, title, summary, content)
    VALUES (new.rowid, new.title, new.summary, new.content);
END;
`,
}
