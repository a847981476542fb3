package connectivity

import "database/sql"

// Schema defines the routes table that drives the action router.
// Each row maps an action name to a dispatch strategy.
//
// Strategies:
//   - "local": dispatch to an in-memory Handler registered via RegisterLocal.
//   - "http":  dispatch via the HTTP transport factory.
//   - "mcp":   dispatch as an MCP tool call via the MCP transport factory.
//   - "noop":  silently succeed without doing anything (feature flag / disable).
//
// The config column holds per-route JSON (timeouts, retry policy, etc.).
// Any UPDATE to this table automatically increments PRAGMA data_version,
// which the Watch loop detects to trigger a hot-reload.
const Schema = `
CREATE TABLE IF NOT EXISTS routes (
    service_name TEXT PRIMARY KEY,
    strategy     TEXT NOT NULL CHECK(strategy IN ('local', 'http', 'mcp', 'noop')),
    endpoint     TEXT,
    config       TEXT DEFAULT '{}',
    updated_at   INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);

CREATE INDEX IF NOT EXISTS idx_routes_strategy ON routes(strategy);

CREATE TRIGGER IF NOT EXISTS trg_routes_updated_at
AFTER UPDATE ON routes
FOR EACH ROW
BEGIN
    UPDATE routes SET updated_at = strftime('%s', 'now') WHERE service_name = NEW.service_name;
END;
`

// Init creates the routes table if it doesn't exist. The service stacks
// Schema with the other package schemas when it opens the shared
// database; Init exists for callers that bring their own handle.
func Init(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
