package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaEvents = `
CREATE TABLE IF NOT EXISTS events (
    id TEXT PRIMARY KEY,
    type TEXT NOT NULL,
    user_id TEXT NOT NULL,
    amount REAL NOT NULL DEFAULT 0,
    currency TEXT,
    device_id TEXT,
    country TEXT,
    city TEXT,
    latitude REAL,
    longitude REAL,
    recipient_id TEXT,
    timestamp TIMESTAMP NOT NULL,
    payload TEXT
);

CREATE INDEX IF NOT EXISTS idx_events_user_type_ts ON events(user_id, type, timestamp);
CREATE INDEX IF NOT EXISTS idx_events_user_device ON events(user_id, device_id);
CREATE INDEX IF NOT EXISTS idx_events_user_country ON events(user_id, country);
`

const schemaAlerts = `
CREATE TABLE IF NOT EXISTS alerts (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    type TEXT NOT NULL,
    severity TEXT NOT NULL,
    status TEXT NOT NULL,
    details TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    resolved_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_alerts_user_status ON alerts(user_id, status, created_at);
CREATE INDEX IF NOT EXISTS idx_alerts_severity ON alerts(severity, created_at);
`

const schemaScores = `
CREATE TABLE IF NOT EXISTS scores (
    tx_id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    result TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_scores_user ON scores(user_id, created_at);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaEvents,
		schemaAlerts,
		schemaScores,
	}
}
