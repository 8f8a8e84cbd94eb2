package storage

// DefaultInboxCap bounds each operator's routed-item queue when no cap is configured.
const DefaultInboxCap = 200

const schema = `
CREATE TABLE IF NOT EXISTS workers (
	id          TEXT PRIMARY KEY,
	host        TEXT NOT NULL,
	aspect      TEXT NOT NULL,
	operator_id TEXT NOT NULL,
	registered  INTEGER NOT NULL,
	data        TEXT NOT NULL,
	UNIQUE (host, aspect, operator_id)
);

CREATE TABLE IF NOT EXISTS dedup (
	hash       TEXT PRIMARY KEY,
	first_seen INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS dedup_first_seen ON dedup (first_seen);

CREATE TABLE IF NOT EXISTS routed (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	id          TEXT NOT NULL UNIQUE,
	operator_id TEXT NOT NULL,
	status      TEXT NOT NULL,
	data        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS routed_operator ON routed (operator_id, seq);

CREATE TABLE IF NOT EXISTS disclosure (
	operator_id TEXT PRIMARY KEY,
	data        TEXT NOT NULL
);
`
