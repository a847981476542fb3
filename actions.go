package satlens

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/satlens/satlens/connectivity"
	"github.com/satlens/satlens/fiat"
)

// registerActions registers the satlens core handlers on the action router.
//
// Registered actions:
//
//	satlens_prefs_get    — load the preference snapshot
//	satlens_prefs_set    — persist preferences
//	satlens_site_toggle  — enable/disable a site
//	satlens_rates_get    — current BTC price table
//	satlens_catalog_get  — supported currency catalog
//	satlens_rewrite      — run one rewrite pass over HTML
//	satlens_convert      — convert a single price string
//	satlens_stats_get    — per-site conversion totals
func (s *Service) registerActions() {
	guard := connectivity.Recovery(s.logger)
	s.router.RegisterLocal("satlens_prefs_get", guard(s.handlePrefsGet))
	s.router.RegisterLocal("satlens_prefs_set", guard(s.handlePrefsSet))
	s.router.RegisterLocal("satlens_site_toggle", guard(s.handleSiteToggle))
	// Rate lookups go over the network when the cache is cold, so they get
	// a retry on top of the panic guard.
	s.router.RegisterLocal("satlens_rates_get", connectivity.Chain(
		guard,
		connectivity.WithRetry(2, 250*time.Millisecond, s.logger),
	)(s.handleRatesGet))
	s.router.RegisterLocal("satlens_catalog_get", guard(s.handleCatalogGet))
	s.router.RegisterLocal("satlens_rewrite", guard(s.handleRewrite))
	s.router.RegisterLocal("satlens_convert", guard(s.handleConvert))
	s.router.RegisterLocal("satlens_stats_get", guard(s.handleStatsGet))
}

// prefsPayload is the wire shape of preferences for actions and HTTP.
type prefsPayload struct {
	DefaultCurrency string   `json:"default_currency"`
	DisplayMode     string   `json:"display_mode"`
	Denomination    string   `json:"denomination"`
	Highlight       bool     `json:"highlight"`
	DisabledSites   []string `json:"disabled_sites"`
}

func prefsToPayload(p fiat.Preferences) prefsPayload {
	sites := make([]string, 0, len(p.DisabledSites))
	for h := range p.DisabledSites {
		sites = append(sites, h)
	}
	return prefsPayload{
		DefaultCurrency: p.DefaultCurrency,
		DisplayMode:     p.DisplayMode.String(),
		Denomination:    p.Denomination.String(),
		Highlight:       p.Highlight,
		DisabledSites:   sites,
	}
}

func payloadToPrefs(in prefsPayload) fiat.Preferences {
	p := fiat.Preferences{
		DefaultCurrency: in.DefaultCurrency,
		DisplayMode:     fiat.ParseDisplayMode(in.DisplayMode),
		Denomination:    fiat.ParseDenomination(in.Denomination),
		Highlight:       in.Highlight,
		DisabledSites:   make(map[string]struct{}, len(in.DisabledSites)),
	}
	for _, h := range in.DisabledSites {
		p.DisabledSites[h] = struct{}{}
	}
	return p.Normalize()
}

func (s *Service) handlePrefsGet(ctx context.Context, payload []byte) ([]byte, error) {
	p, err := s.prefs.Load(ctx)
	if err != nil {
		return nil, err
	}
	return json.Marshal(prefsToPayload(p))
}

func (s *Service) handlePrefsSet(ctx context.Context, payload []byte) ([]byte, error) {
	var in prefsPayload
	if err := json.Unmarshal(payload, &in); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	p := payloadToPrefs(in)
	if err := s.prefs.Save(ctx, p); err != nil {
		return nil, err
	}
	return json.Marshal(prefsToPayload(p))
}

func (s *Service) handleSiteToggle(ctx context.Context, payload []byte) ([]byte, error) {
	var req struct {
		Hostname string `json:"hostname"`
		Disabled bool   `json:"disabled"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if req.Hostname == "" {
		return nil, fmt.Errorf("hostname required")
	}
	var err error
	if req.Disabled {
		err = s.prefs.DisableSite(ctx, req.Hostname)
	} else {
		err = s.prefs.EnableSite(ctx, req.Hostname)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(req)
}

func (s *Service) handleRatesGet(ctx context.Context, payload []byte) ([]byte, error) {
	table, err := s.rates.Rates(ctx)
	if err != nil {
		return nil, err
	}
	return json.Marshal(table)
}

func (s *Service) handleCatalogGet(ctx context.Context, payload []byte) ([]byte, error) {
	return json.Marshal(s.catalog)
}

func (s *Service) handleRewrite(ctx context.Context, payload []byte) ([]byte, error) {
	var req struct {
		HTML     string `json:"html"`
		URL      string `json:"url"`
		Fragment bool   `json:"fragment"`
		Source   string `json:"source"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if req.Source == "" {
		req.Source = "action"
	}
	res, err := s.RewriteHTML(ctx, req.HTML, PageInfo{
		URL:      req.URL,
		Source:   req.Source,
		Fragment: req.Fragment,
	})
	if err != nil {
		return nil, err
	}
	return json.Marshal(res)
}

func (s *Service) handleConvert(ctx context.Context, payload []byte) ([]byte, error) {
	var req struct {
		Text     string `json:"text"`
		Currency string `json:"currency"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	out, err := s.ConvertPrice(ctx, req.Text, req.Currency)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		Input  string `json:"input"`
		Output string `json:"output"`
	}{req.Text, out})
}

func (s *Service) handleStatsGet(ctx context.Context, payload []byte) ([]byte, error) {
	var req struct {
		Since int64 `json:"since"`
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, fmt.Errorf("decode: %w", err)
		}
	}
	if s.recorder != nil {
		s.recorder.Flush()
	}
	summaries, err := s.Stats(ctx, req.Since)
	if err != nil {
		return nil, err
	}
	return json.Marshal(summaries)
}
