// Package stats records conversion activity to SQLite: one event per
// rewrite pass, with the page, currency, and replacement count.
//
// Persistence is async and non-blocking: buffer overflow drops events
// rather than applying backpressure to the rewrite path.
package stats

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"time"

	"github.com/satlens/satlens/idgen"
)

// ConversionEvent describes one completed rewrite pass.
type ConversionEvent struct {
	PageURL      string
	Site         string // hostname, for per-site aggregation
	Currency     string
	Replacements int
	DisplayMode  string
	Denomination string
	DurationMS   int64
	Source       string // "server", "live", "mcp", "cli"
}

// Recorder buffers conversion events and flushes them to SQLite in batches.
type Recorder struct {
	db            *sql.DB
	newID         idgen.Generator
	bufferSize    int
	flushInterval time.Duration

	mu     sync.Mutex
	buffer []*ConversionEvent
	stop   chan struct{}
	done   chan struct{}
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithIDGenerator sets a custom ID generator for event IDs.
func WithIDGenerator(gen idgen.Generator) RecorderOption {
	return func(r *Recorder) { r.newID = gen }
}

// WithBufferSize sets the batch size that triggers an immediate flush.
// Default: 100.
func WithBufferSize(n int) RecorderOption {
	return func(r *Recorder) { r.bufferSize = n }
}

// WithFlushInterval sets the periodic flush interval. Default: 5s.
func WithFlushInterval(d time.Duration) RecorderOption {
	return func(r *Recorder) { r.flushInterval = d }
}

// NewRecorder creates a Recorder backed by the given stats database.
// The database must have the Schema applied (via Init). Call Close to
// flush remaining events on shutdown.
func NewRecorder(db *sql.DB, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		db:            db,
		newID:         idgen.Prefixed("evt_", idgen.Default),
		bufferSize:    100,
		flushInterval: 5 * time.Second,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	for _, o := range opts {
		o(r)
	}
	r.buffer = make([]*ConversionEvent, 0, r.bufferSize)
	go r.flushLoop()
	return r
}

// Record queues an event for async persistence. Non-blocking.
func (r *Recorder) Record(ev *ConversionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buffer = append(r.buffer, ev)
	if len(r.buffer) >= r.bufferSize {
		r.flushLocked()
	}
}

// Flush persists any buffered events immediately.
func (r *Recorder) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushLocked()
}

// Close flushes remaining events and stops the background loop.
func (r *Recorder) Close() {
	close(r.stop)
	<-r.done
	r.Flush()
}

func (r *Recorder) flushLoop() {
	defer close(r.done)
	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.Flush()
		}
	}
}

// flushLocked writes the buffer in one transaction. Must hold mu.
// Errors are logged via slog and the batch is dropped, so a failing stats
// store never blocks the rewrite path.
func (r *Recorder) flushLocked() {
	if len(r.buffer) == 0 {
		return
	}
	batch := r.buffer
	r.buffer = make([]*ConversionEvent, 0, r.bufferSize)

	tx, err := r.db.Begin()
	if err != nil {
		slog.Error("stats flush failed", "error", err, "dropped", len(batch))
		return
	}
	now := time.Now().Unix()
	for _, ev := range batch {
		_, err := tx.Exec(`
			INSERT INTO conversion_events (
				event_id, page_url, site, currency, replacements,
				display_mode, denomination, duration_ms, source, created_at
			) VALUES (?,?,?,?,?,?,?,?,?,?)`,
			r.newID(), ev.PageURL, ev.Site, ev.Currency, ev.Replacements,
			ev.DisplayMode, ev.Denomination, ev.DurationMS, ev.Source, now)
		if err != nil {
			tx.Rollback()
			slog.Error("stats flush failed", "error", err, "dropped", len(batch))
			return
		}
	}
	if err := tx.Commit(); err != nil {
		slog.Error("stats flush commit failed", "error", err, "dropped", len(batch))
	}
}

// SiteSummary aggregates conversion activity for one site.
type SiteSummary struct {
	Site         string `json:"site"`
	Passes       int    `json:"passes"`
	Replacements int    `json:"replacements"`
	LastSeen     int64  `json:"last_seen"`
}

// Summary returns per-site totals since the given cutoff (unix seconds).
// A zero cutoff means all time.
func Summary(ctx context.Context, db *sql.DB, since int64) ([]SiteSummary, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT site, COUNT(*), SUM(replacements), MAX(created_at)
		FROM conversion_events
		WHERE created_at >= ?
		GROUP BY site
		ORDER BY SUM(replacements) DESC`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []SiteSummary
	for rows.Next() {
		var s SiteSummary
		if err := rows.Scan(&s.Site, &s.Passes, &s.Replacements, &s.LastSeen); err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

// Cleanup deletes events older than the retention window in days.
// Zero or negative days means no cleanup.
func Cleanup(ctx context.Context, db *sql.DB, days int) error {
	if days <= 0 {
		return nil
	}
	cutoff := time.Now().Unix() - int64(days)*86400
	_, err := db.ExecContext(ctx,
		`DELETE FROM conversion_events WHERE created_at < ?`, cutoff)
	return err
}
