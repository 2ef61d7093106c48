// Package store keeps run history and progress events in SQLite.
package store

import "time"

// Run statuses
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Event writer defaults
const (
	DefaultBatchSize  = 50
	DefaultFlushDelay = 2 * time.Second
	DefaultListLimit  = 50
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	source      TEXT NOT NULL,
	status      TEXT NOT NULL,
	error_code  TEXT NOT NULL DEFAULT '',
	error       TEXT NOT NULL DEFAULT '',
	coverage    REAL NOT NULL DEFAULT 0,
	attempts    INTEGER NOT NULL DEFAULT 0,
	started_at  INTEGER NOT NULL,
	finished_at INTEGER,
	report      BLOB
);
CREATE INDEX IF NOT EXISTS runs_started ON runs(started_at DESC);

CREATE TABLE IF NOT EXISTS events (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id   TEXT NOT NULL,
	stage    TEXT NOT NULL,
	state    TEXT NOT NULL,
	attempt  INTEGER NOT NULL DEFAULT 0,
	coverage REAL NOT NULL DEFAULT 0,
	message  TEXT NOT NULL DEFAULT '',
	at       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS events_run ON events(run_id, id);
`
