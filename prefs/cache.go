package prefs

import (
	"context"
	"sync"
	"time"

	"github.com/satlens/satlens/fiat"
	"github.com/satlens/satlens/watch"
)

// Cached wraps a Store with an in-memory snapshot. Live pages can trigger
// hundreds of rewrite passes a minute; the snapshot keeps those passes off
// SQLite. The snapshot is invalidated by a watch.Watcher poll, so writes
// from any process show up within the poll interval.
type Cached struct {
	store *Store

	mu    sync.RWMutex
	snap  fiat.Preferences
	valid bool
}

// NewCached wraps the store. Call Watch to start invalidation; until then
// the first Load fills the snapshot and writes through this instance
// invalidate it directly.
func NewCached(store *Store) *Cached {
	return &Cached{store: store}
}

// Load returns the snapshot, reading from SQLite only when invalid.
func (c *Cached) Load(ctx context.Context) (fiat.Preferences, error) {
	c.mu.RLock()
	if c.valid {
		p := c.snap
		c.mu.RUnlock()
		return p, nil
	}
	c.mu.RUnlock()

	p, err := c.store.Load(ctx)
	if err != nil {
		return fiat.Preferences{}, err
	}
	c.mu.Lock()
	c.snap = p
	c.valid = true
	c.mu.Unlock()
	return p, nil
}

// Save writes through and invalidates.
func (c *Cached) Save(ctx context.Context, p fiat.Preferences) error {
	err := c.store.Save(ctx, p)
	c.Invalidate()
	return err
}

// DisableSite writes through and invalidates.
func (c *Cached) DisableSite(ctx context.Context, hostname string) error {
	err := c.store.DisableSite(ctx, hostname)
	c.Invalidate()
	return err
}

// EnableSite writes through and invalidates.
func (c *Cached) EnableSite(ctx context.Context, hostname string) error {
	err := c.store.EnableSite(ctx, hostname)
	c.Invalidate()
	return err
}

// SiteDisabled checks the snapshot.
func (c *Cached) SiteDisabled(ctx context.Context, hostname string) (bool, error) {
	p, err := c.Load(ctx)
	if err != nil {
		return false, err
	}
	return p.SiteDisabled(hostname), nil
}

// Invalidate drops the snapshot. The next Load re-reads SQLite.
func (c *Cached) Invalidate() {
	c.mu.Lock()
	c.valid = false
	c.mu.Unlock()
}

// Watch invalidates the snapshot whenever the database changes, catching
// writes from other connections and processes. Blocks until ctx is
// cancelled.
func (c *Cached) Watch(ctx context.Context, interval time.Duration) {
	w := watch.New(c.store.DB(), watch.Options{Interval: interval})
	w.OnChange(ctx, func() error {
		c.Invalidate()
		return nil
	})
}
