package stats

import "database/sql"

// Schema contains the DDL for the stats tables.
const Schema = `
CREATE TABLE IF NOT EXISTS conversion_events (
    event_id     TEXT PRIMARY KEY,
    page_url     TEXT NOT NULL,
    site         TEXT NOT NULL,
    currency     TEXT NOT NULL,
    replacements INTEGER NOT NULL,
    display_mode TEXT,
    denomination TEXT,
    duration_ms  INTEGER,
    source       TEXT,
    created_at   INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_conversion_events_site
    ON conversion_events(site, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_conversion_events_time
    ON conversion_events(created_at DESC);
`

// Init applies the stats schema to the given database.
func Init(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
