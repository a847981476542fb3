// Package live annotates prices in a running browser. It drives a Chrome
// instance over CDP via rod: each watched page gets an initial full
// rewrite, then DOM mutation events are debounced into batches and only
// the touched subtrees are rewritten. Conversion markers left by the
// rewrite core keep the engine from reacting to its own writes.
package live

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/satlens/satlens"
	"github.com/satlens/satlens/mutation"
)

// Config configures the live engine.
type Config struct {
	// AttachURL is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local Chrome via launcher.
	AttachURL string

	// Headless controls the launched Chrome. Ignored when attaching.
	Headless bool

	// Stealth opens pages through the stealth plugin.
	Stealth bool

	// Debounce controls mutation batching.
	Debounce mutation.DebounceConfig

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Engine drives a browser and rewrites prices on its pages.
type Engine struct {
	svc    *satlens.Service
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	browser  *rod.Browser
	lnch     *launcher.Launcher
	launched bool
	pages    map[string]*Page
	closed   bool
}

// NewEngine creates an Engine. Call Start before Watch.
func NewEngine(svc *satlens.Service, cfg Config) *Engine {
	cfg.defaults()
	return &Engine{
		svc:    svc,
		cfg:    cfg,
		logger: cfg.Logger,
		pages:  make(map[string]*Page),
	}
}

// Start connects to the configured browser, launching one if no attach
// URL is set.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return fmt.Errorf("live: engine is closed")
	}
	if e.browser != nil {
		return nil
	}

	wsURL := e.cfg.AttachURL
	if wsURL == "" {
		l := launcher.New().Headless(e.cfg.Headless)
		l = l.Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return fmt.Errorf("live: launch: %w", err)
		}
		wsURL = u
		e.lnch = l
		e.launched = true
		e.logger.Info("live: launched chrome", "url", wsURL, "headless", e.cfg.Headless)
	} else {
		e.logger.Info("live: attaching to browser", "url", wsURL)
	}

	b := rod.New().ControlURL(wsURL).Context(ctx)
	if err := b.Connect(); err != nil {
		return fmt.Errorf("live: connect: %w", err)
	}
	e.browser = b
	return nil
}

// Watch opens the URL in a new tab and starts annotating it. The page
// keeps being rewritten as its DOM mutates, until the engine closes or
// Unwatch is called.
func (e *Engine) Watch(ctx context.Context, pageURL string) error {
	e.mu.Lock()
	b := e.browser
	e.mu.Unlock()
	if b == nil {
		return fmt.Errorf("live: engine not started")
	}

	var page *rod.Page
	var err error
	if e.cfg.Stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		return fmt.Errorf("live: open tab: %w", err)
	}

	navCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		page.Close()
		return fmt.Errorf("live: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		e.logger.Warn("live: wait load timeout", "url", pageURL, "error", err)
	}

	p := newPage(e.svc, page, pageURL, e.cfg.Debounce, e.logger)
	if err := p.start(ctx); err != nil {
		page.Close()
		return fmt.Errorf("live: observe %s: %w", pageURL, err)
	}

	e.mu.Lock()
	e.pages[pageURL] = p
	e.mu.Unlock()
	return nil
}

// Unwatch stops annotating the URL and closes its tab.
func (e *Engine) Unwatch(pageURL string) {
	e.mu.Lock()
	p, ok := e.pages[pageURL]
	delete(e.pages, pageURL)
	e.mu.Unlock()
	if ok {
		p.stop()
	}
}

// Close stops all pages and shuts the browser down. A launched Chrome is
// killed; an attached one is left running.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	for url, p := range e.pages {
		p.stop()
		delete(e.pages, url)
	}
	if e.browser != nil && e.launched {
		if err := e.browser.Close(); err != nil {
			e.logger.Warn("live: browser close", "error", err)
		}
	}
	if e.lnch != nil {
		e.lnch.Cleanup()
	}
	e.browser = nil
	return nil
}
