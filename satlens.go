// Package satlens annotates fiat prices in HTML with their Bitcoin
// equivalents. The core is a pure rewrite of an HTML tree against a
// preference snapshot and a price table; this package wires that core to
// its collaborators:
//
//	prefs   — SQLite preference store (currency, display mode, site list)
//	rates   — BTC price supplier (CoinGecko, cached, serve-stale)
//	stats   — conversion event recording
//	connectivity — named-action routing between surfaces and the core
//
// Usage:
//
//	svc, err := satlens.New(cfg, logger)
//	defer svc.Close()
//	out, err := svc.RewriteHTML(ctx, pageHTML, satlens.PageInfo{URL: u})
package satlens

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/satlens/satlens/connectivity"
	"github.com/satlens/satlens/dbopen"
	"github.com/satlens/satlens/fiat"
	"github.com/satlens/satlens/prefs"
	"github.com/satlens/satlens/rates"
	"github.com/satlens/satlens/rewrite"
	"github.com/satlens/satlens/stats"
)

// Service is the main satlens orchestrator.
type Service struct {
	db       *sql.DB
	prefs    *prefs.Cached
	rates    rates.Supplier
	catalog  fiat.Catalog
	recorder *stats.Recorder
	router   *connectivity.Router
	logger   *slog.Logger
	config   *Config
}

// PageInfo describes the page being rewritten, for stats and the per-site
// disable list.
type PageInfo struct {
	URL string
	// Source tags where the rewrite came from: "server", "live", "mcp", "cli".
	Source string
	// Fragment parses the input as a subtree instead of a full document.
	Fragment bool
	// Prefs overrides the stored preferences for this pass only.
	Prefs *fiat.Preferences
}

// Result is the outcome of one rewrite pass.
type Result struct {
	HTML     string
	Replaced int
	// Skipped is set when the page was left untouched (disabled site or
	// no price table).
	Skipped string
}

// New creates a Service. It opens the SQLite database, applies all
// sub-schemas, and builds the configured rates supplier.
func New(cfg *Config, logger *slog.Logger) (*Service, error) {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}

	db, err := dbopen.Open(cfg.DBPath,
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(prefs.Schema),
		dbopen.WithSchema(stats.Schema),
		dbopen.WithSchema(rates.Schema),
		dbopen.WithSchema(connectivity.Schema),
	)
	if err != nil {
		return nil, fmt.Errorf("satlens: open database: %w", err)
	}

	catalog := fiat.DefaultCatalog()

	var supplier rates.Supplier
	switch cfg.Rates.Provider {
	case "fixed":
		table := make(fiat.PriceTable, len(cfg.Rates.Fixed))
		for code, price := range cfg.Rates.Fixed {
			table[strings.ToUpper(code)] = price
		}
		supplier = rates.Fixed(table)
	default:
		supplier = rates.NewCached(
			rates.NewCoinGecko(catalog),
			rates.WithTTL(cfg.Rates.TTL),
			rates.WithSnapshotDB(db),
			rates.WithLogger(logger),
		)
	}

	var recorder *stats.Recorder
	if cfg.Stats.Enabled {
		recorder = stats.NewRecorder(db)
	}

	router := connectivity.New(connectivity.WithLogger(logger))
	router.RegisterTransport("http", connectivity.HTTPFactory())
	router.RegisterTransport("mcp", connectivity.MCPFactory())

	s := &Service{
		db:       db,
		prefs:    prefs.NewCached(prefs.NewStore(db)),
		rates:    supplier,
		catalog:  catalog,
		recorder: recorder,
		router:   router,
		logger:   logger,
		config:   cfg,
	}
	s.registerActions()
	return s, nil
}

// Close flushes stats and closes the database.
func (s *Service) Close() error {
	if s.recorder != nil {
		s.recorder.Close()
	}
	s.router.Close()
	return s.db.Close()
}

// Router exposes the action router so surfaces can Call and Watch.
func (s *Service) Router() *connectivity.Router { return s.router }

// WatchPreferences invalidates the preference snapshot when the database
// changes, so edits from other processes take effect. Blocks until ctx is
// cancelled; run it in a goroutine.
func (s *Service) WatchPreferences(ctx context.Context, interval time.Duration) {
	s.prefs.Watch(ctx, interval)
}

// DB exposes the shared database for watchers and maintenance jobs.
func (s *Service) DB() *sql.DB { return s.db }

// Catalog returns the supported currency catalog.
func (s *Service) Catalog() fiat.Catalog { return s.catalog }

// Preferences loads the stored preferences.
func (s *Service) Preferences(ctx context.Context) (fiat.Preferences, error) {
	return s.prefs.Load(ctx)
}

// SavePreferences persists preferences.
func (s *Service) SavePreferences(ctx context.Context, p fiat.Preferences) error {
	return s.prefs.Save(ctx, p)
}

// DisableSite switches conversion off for a hostname.
func (s *Service) DisableSite(ctx context.Context, hostname string) error {
	return s.prefs.DisableSite(ctx, hostname)
}

// EnableSite switches conversion back on for a hostname.
func (s *Service) EnableSite(ctx context.Context, hostname string) error {
	return s.prefs.EnableSite(ctx, hostname)
}

// Rates returns the current price table.
func (s *Service) Rates(ctx context.Context) (fiat.PriceTable, error) {
	return s.rates.Rates(ctx)
}

// ConvertPrice converts a single price string ("$25.00", "1 234,56 €") to
// its Bitcoin display string under the current preferences.
func (s *Service) ConvertPrice(ctx context.Context, text, currency string) (string, error) {
	p, err := s.prefs.Load(ctx)
	if err != nil {
		return "", err
	}
	if currency != "" {
		p.DefaultCurrency = currency
	}
	table, err := s.rates.Rates(ctx)
	if err != nil {
		return "", err
	}
	rc, err := rewrite.NewContext(p, s.catalog, table, s.logger)
	if err != nil {
		return "", err
	}
	return rc.ConvertText(text)
}

// RewriteHTML runs one rewrite pass over the given HTML. The pass fails
// open: a missing price table or a disabled site returns the input
// unchanged with Result.Skipped set.
func (s *Service) RewriteHTML(ctx context.Context, src string, info PageInfo) (Result, error) {
	start := time.Now()

	p := fiat.DefaultPreferences()
	if info.Prefs != nil {
		p = *info.Prefs
	} else {
		loaded, err := s.prefs.Load(ctx)
		if err != nil {
			return Result{}, err
		}
		p = loaded
	}

	host := hostnameOf(info.URL)
	if host != "" && p.SiteDisabled(host) {
		return Result{HTML: src, Skipped: "site disabled"}, nil
	}

	table, err := s.rates.Rates(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "rewrite skipped, no rates", "url", info.URL, "error", err)
		return Result{HTML: src, Skipped: "no price table"}, nil
	}

	rc, err := rewrite.NewContext(p, s.catalog, table, s.logger)
	if err != nil {
		return Result{HTML: src, Skipped: "no price table"}, nil
	}

	var out string
	if info.Fragment {
		out, err = rewrite.Fragment(src, rc)
	} else {
		out, err = rewrite.HTML(src, rc)
	}
	if err != nil {
		return Result{}, err
	}

	if s.recorder != nil && rc.Replaced > 0 {
		s.recorder.Record(&stats.ConversionEvent{
			PageURL:      info.URL,
			Site:         host,
			Currency:     rc.Currency.Code,
			Replacements: rc.Replaced,
			DisplayMode:  p.DisplayMode.String(),
			Denomination: p.Denomination.String(),
			DurationMS:   time.Since(start).Milliseconds(),
			Source:       info.Source,
		})
	}

	return Result{HTML: out, Replaced: rc.Replaced}, nil
}

// Stats returns per-site conversion totals since the given unix timestamp.
func (s *Service) Stats(ctx context.Context, since int64) ([]stats.SiteSummary, error) {
	return stats.Summary(ctx, s.db, since)
}

func hostnameOf(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
