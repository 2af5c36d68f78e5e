package storage

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Schema creates the audit tables. Timestamps are Unix nanoseconds in UTC.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_records (
    id TEXT PRIMARY KEY,
    identifier TEXT NOT NULL,
    verdict TEXT NOT NULL,
    policy_version TEXT NOT NULL DEFAULT '',
    recorded_at INTEGER NOT NULL,
    violations INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS audit_entries (
    record_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    rule_id TEXT NOT NULL,
    domain TEXT NOT NULL,
    clause_kind TEXT NOT NULL,
    outcome TEXT NOT NULL,
    severity TEXT NOT NULL DEFAULT '',
    reason TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (record_id, position)
);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_records_recorded_at ON audit_records(recorded_at);
CREATE INDEX IF NOT EXISTS idx_audit_records_identifier ON audit_records(identifier);
CREATE INDEX IF NOT EXISTS idx_audit_records_verdict ON audit_records(verdict);
CREATE INDEX IF NOT EXISTS idx_audit_entries_rule_id ON audit_entries(rule_id);
`

// InsertSchemaVersion records the schema version once.
const InsertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, datetime('now'))
ON CONFLICT(version) DO NOTHING;
`

// GetSchemaVersion retrieves the newest applied schema version.
const GetSchemaVersion = `
SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;
`
