package archive

// SchemaVersion is the current archive schema version.
const SchemaVersion = 1

// Schema creates the archive tables and indexes.
const Schema = `
CREATE TABLE IF NOT EXISTS flows (
	id            TEXT PRIMARY KEY,
	state         TEXT NOT NULL,
	flow_type     TEXT NOT NULL,
	provider      TEXT NOT NULL DEFAULT '',
	model         TEXT NOT NULL DEFAULT '',
	created       TIMESTAMP NOT NULL,
	duration_ms   INTEGER NOT NULL DEFAULT 0,
	total_tokens  INTEGER NOT NULL DEFAULT 0,
	has_error     INTEGER NOT NULL DEFAULT 0,
	record        TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_flows_created ON flows(created);
CREATE INDEX IF NOT EXISTS idx_flows_provider ON flows(provider);
CREATE INDEX IF NOT EXISTS idx_flows_model ON flows(model);
CREATE INDEX IF NOT EXISTS idx_flows_state ON flows(state);

CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY
);
`

// InsertSchemaVersion records the schema version, ignoring an existing row.
const InsertSchemaVersion = `INSERT OR IGNORE INTO schema_version (version) VALUES (?)`

// GetSchemaVersion reads the recorded schema version.
const GetSchemaVersion = `SELECT version FROM schema_version LIMIT 1`
