// Package postgres implements the Ledger interface on a Postgres database.
package postgres

const schemaDDL = `
CREATE TABLE IF NOT EXISTS recovery_requests (
    request_id  TEXT PRIMARY KEY,
    data        JSONB NOT NULL,
    received_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS recovery_files (
    granule_id      TEXT NOT NULL,
    file_key        TEXT NOT NULL,
    request_id      TEXT NOT NULL,
    source_location TEXT NOT NULL,
    status          TEXT NOT NULL,
    version         INTEGER NOT NULL,
    data            JSONB NOT NULL,
    created_at      TIMESTAMPTZ NOT NULL,
    updated_at      TIMESTAMPTZ NOT NULL,
    archived_at     TIMESTAMPTZ,
    PRIMARY KEY (granule_id, file_key)
);
CREATE INDEX IF NOT EXISTS idx_recovery_files_request ON recovery_files (request_id, granule_id, file_key);
CREATE INDEX IF NOT EXISTS idx_recovery_files_location ON recovery_files (source_location);
CREATE INDEX IF NOT EXISTS idx_recovery_files_status ON recovery_files (status, updated_at);

CREATE TABLE IF NOT EXISTS recovery_audit (
    id          BIGSERIAL PRIMARY KEY,
    granule_id  TEXT NOT NULL,
    file_key    TEXT NOT NULL,
    request_id  TEXT,
    kind        TEXT NOT NULL,
    from_status TEXT,
    to_status   TEXT,
    detail      TEXT,
    timestamp   TIMESTAMPTZ NOT NULL,
    seq         INTEGER
);
CREATE INDEX IF NOT EXISTS idx_recovery_audit_file ON recovery_audit (granule_id, file_key, id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_recovery_audit_seq
    ON recovery_audit (granule_id, file_key, seq) WHERE seq IS NOT NULL;

CREATE TABLE IF NOT EXISTS recovery_locks (
    lock_key   TEXT PRIMARY KEY,
    expires_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS archive_cursors (
    granule_id TEXT NOT NULL,
    file_key   TEXT NOT NULL,
    position   INTEGER NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (granule_id, file_key)
);
`
