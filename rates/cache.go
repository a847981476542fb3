package rates

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"time"

	"github.com/satlens/satlens/dbopen"
	"github.com/satlens/satlens/fiat"
)

// Schema defines the last-good snapshot table. One row per currency,
// replaced wholesale on every successful fetch.
const Schema = `
CREATE TABLE IF NOT EXISTS rate_snapshots (
    currency   TEXT PRIMARY KEY,
    price      REAL NOT NULL,
    fetched_at INTEGER NOT NULL
);
`

// Init applies the rates schema to the given database.
func Init(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}

// Cached wraps a Supplier with a TTL memory cache and SQLite last-good
// persistence. When the upstream fails, the most recent snapshot is served
// instead: stale rates beat no rates for a display-only conversion.
type Cached struct {
	upstream Supplier
	db       *sql.DB // may be nil: memory-only caching
	ttl      time.Duration
	logger   *slog.Logger

	mu        sync.Mutex
	table     fiat.PriceTable
	fetchedAt time.Time
}

// CachedOption configures a Cached supplier.
type CachedOption func(*Cached)

// WithTTL sets how long a fetched table stays fresh. Default: 5m.
func WithTTL(d time.Duration) CachedOption {
	return func(c *Cached) { c.ttl = d }
}

// WithSnapshotDB enables last-good persistence to the given database.
// The database must have Schema applied (via Init).
func WithSnapshotDB(db *sql.DB) CachedOption {
	return func(c *Cached) { c.db = db }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) CachedOption {
	return func(c *Cached) { c.logger = l }
}

// NewCached wraps upstream with caching.
func NewCached(upstream Supplier, opts ...CachedOption) *Cached {
	c := &Cached{
		upstream: upstream,
		ttl:      5 * time.Minute,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Rates returns the cached table if fresh, otherwise refreshes from the
// upstream. On upstream failure it serves the stale memory copy, then the
// SQLite snapshot, then ErrNoRates.
func (c *Cached) Rates(ctx context.Context) (fiat.PriceTable, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.table != nil && time.Since(c.fetchedAt) < c.ttl {
		return c.table, nil
	}

	table, err := c.upstream.Rates(ctx)
	if err == nil {
		c.table = table
		c.fetchedAt = time.Now()
		c.persist(ctx, table)
		return table, nil
	}

	c.logger.WarnContext(ctx, "rates refresh failed, serving stale", "error", err)

	if c.table != nil {
		return c.table, nil
	}

	if snap := c.loadSnapshot(ctx); len(snap) > 0 {
		c.table = snap
		// fetchedAt stays zero: retry the upstream on the next call.
		return snap, nil
	}

	return nil, err
}

// Refresh forces an upstream fetch regardless of TTL.
func (c *Cached) Refresh(ctx context.Context) error {
	table, err := c.upstream.Rates(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.table = table
	c.fetchedAt = time.Now()
	c.mu.Unlock()
	c.persist(ctx, table)
	return nil
}

// persist writes the snapshot. Errors are logged, never propagated: a
// failing snapshot store must not break a successful fetch.
func (c *Cached) persist(ctx context.Context, table fiat.PriceTable) {
	if c.db == nil {
		return
	}
	now := time.Now().Unix()
	err := dbopen.RunTx(ctx, c.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM rate_snapshots`); err != nil {
			return err
		}
		for code, price := range table {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO rate_snapshots (currency, price, fetched_at) VALUES (?,?,?)`,
				code, price, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "rates snapshot persist failed", "error", err)
	}
}

func (c *Cached) loadSnapshot(ctx context.Context) fiat.PriceTable {
	if c.db == nil {
		return nil
	}
	rows, err := c.db.QueryContext(ctx, `SELECT currency, price FROM rate_snapshots`)
	if err != nil {
		c.logger.ErrorContext(ctx, "rates snapshot load failed", "error", err)
		return nil
	}
	defer rows.Close()

	table := make(fiat.PriceTable)
	for rows.Next() {
		var code string
		var price float64
		if err := rows.Scan(&code, &price); err != nil {
			c.logger.ErrorContext(ctx, "rates snapshot scan failed", "error", err)
			return nil
		}
		table[code] = price
	}
	if rows.Err() != nil {
		return nil
	}
	return table
}
