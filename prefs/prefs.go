// Package prefs persists user preferences to SQLite: default currency,
// display mode, denomination, highlight, and the per-site disable list.
//
// The store is the single source of truth shared by all surfaces. Writes
// bump PRAGMA data_version, so consumers can hot-reload via watch.Watcher.
package prefs

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/satlens/satlens/dbopen"
	"github.com/satlens/satlens/fiat"
)

// Schema defines the preferences tables. Settings are a key-value table so
// new preferences never need a migration; disabled sites get their own
// table for direct lookup.
const Schema = `
CREATE TABLE IF NOT EXISTS settings (
    key        TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    updated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);

CREATE TABLE IF NOT EXISTS disabled_sites (
    hostname   TEXT PRIMARY KEY,
    created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);
`

const (
	keyCurrency     = "default_currency"
	keyDisplayMode  = "display_mode"
	keyDenomination = "denomination"
	keyHighlight    = "highlight"
)

// Store reads and writes preferences.
type Store struct {
	db *sql.DB
}

// Open opens the preferences database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(Schema))
	if err != nil {
		return nil, fmt.Errorf("prefs: %w", err)
	}
	return &Store{db: db}, nil
}

// NewStore wraps an existing database. The caller must have applied Schema.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Init applies the preferences schema to the given database.
func Init(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}

// DB exposes the underlying database for watchers.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// Load reads all preferences. Missing keys fall back to defaults, so an
// empty database yields fiat.DefaultPreferences().
func (s *Store) Load(ctx context.Context) (fiat.Preferences, error) {
	p := fiat.DefaultPreferences()

	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return p, fmt.Errorf("prefs: load settings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return p, fmt.Errorf("prefs: scan setting: %w", err)
		}
		switch k {
		case keyCurrency:
			p.DefaultCurrency = v
		case keyDisplayMode:
			p.DisplayMode = fiat.ParseDisplayMode(v)
		case keyDenomination:
			p.Denomination = fiat.ParseDenomination(v)
		case keyHighlight:
			p.Highlight = v == "1"
		}
	}
	if err := rows.Err(); err != nil {
		return p, fmt.Errorf("prefs: settings rows: %w", err)
	}

	sites, err := s.db.QueryContext(ctx, `SELECT hostname FROM disabled_sites`)
	if err != nil {
		return p, fmt.Errorf("prefs: load disabled sites: %w", err)
	}
	defer sites.Close()

	for sites.Next() {
		var h string
		if err := sites.Scan(&h); err != nil {
			return p, fmt.Errorf("prefs: scan site: %w", err)
		}
		p.DisabledSites[h] = struct{}{}
	}
	if err := sites.Err(); err != nil {
		return p, fmt.Errorf("prefs: sites rows: %w", err)
	}

	return p.Normalize(), nil
}

// Save writes all preferences in one transaction. The disabled-sites table
// is replaced wholesale to match p.DisabledSites.
func (s *Store) Save(ctx context.Context, p fiat.Preferences) error {
	p = p.Normalize()
	return dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		set := func(k, v string) error {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO settings (key, value) VALUES (?, ?)
				ON CONFLICT(key) DO UPDATE SET
				    value = excluded.value,
				    updated_at = strftime('%s', 'now')`, k, v)
			return err
		}
		highlight := "0"
		if p.Highlight {
			highlight = "1"
		}
		if err := set(keyCurrency, p.DefaultCurrency); err != nil {
			return err
		}
		if err := set(keyDisplayMode, p.DisplayMode.String()); err != nil {
			return err
		}
		if err := set(keyDenomination, p.Denomination.String()); err != nil {
			return err
		}
		if err := set(keyHighlight, highlight); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM disabled_sites`); err != nil {
			return err
		}
		for h := range p.DisabledSites {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO disabled_sites (hostname) VALUES (?)`, h); err != nil {
				return err
			}
		}
		return nil
	})
}

// DisableSite adds a hostname to the disable list.
func (s *Store) DisableSite(ctx context.Context, hostname string) error {
	_, err := dbopen.Exec(ctx, s.db,
		`INSERT OR IGNORE INTO disabled_sites (hostname) VALUES (?)`, hostname)
	if err != nil {
		return fmt.Errorf("prefs: disable site: %w", err)
	}
	return nil
}

// EnableSite removes a hostname from the disable list.
func (s *Store) EnableSite(ctx context.Context, hostname string) error {
	_, err := dbopen.Exec(ctx, s.db,
		`DELETE FROM disabled_sites WHERE hostname = ?`, hostname)
	if err != nil {
		return fmt.Errorf("prefs: enable site: %w", err)
	}
	return nil
}

// SiteDisabled reports whether a hostname is on the disable list.
func (s *Store) SiteDisabled(ctx context.Context, hostname string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM disabled_sites WHERE hostname = ?`, hostname).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("prefs: site lookup: %w", err)
	}
	return n > 0, nil
}
