package connectivity

import (
	"context"
	"database/sql"
	"time"

	"github.com/satlens/satlens/watch"
)

// Watch reloads the route table whenever the database changes, using the
// shared PRAGMA data_version poll loop.
//
// Watch blocks until ctx is cancelled. Run it in a goroutine:
//
//	go router.Watch(ctx, db, 200*time.Millisecond)
func (r *Router) Watch(ctx context.Context, db *sql.DB, interval time.Duration) {
	// Initial load.
	if err := r.Reload(ctx, db); err != nil {
		r.logger.Error("connectivity: initial reload failed", "error", err)
	}

	w := watch.New(db, watch.Options{
		Interval: interval,
		Logger:   r.logger,
	})
	r.logger.Info("connectivity watcher started", "interval", interval)
	w.OnChange(ctx, func() error {
		return r.Reload(ctx, db)
	})
	r.logger.Info("connectivity watcher stopped")
}
