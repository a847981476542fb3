// Command satlens annotates fiat prices in HTML with their Bitcoin
// equivalents, one page at a time.
//
// Usage:
//
//	satlens -url https://example.com/product        # fetch and rewrite
//	cat page.html | satlens                         # rewrite stdin
//	satlens -url ... -format markdown               # markdown output
//	satlens -rate 97000 -currency USD               # offline, fixed rate
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/microcosm-cc/bluemonday"

	"github.com/satlens/satlens"
	"github.com/satlens/satlens/fiat"
	"github.com/satlens/satlens/urlguard"
)

func main() {
	pageURL := flag.String("url", "", "page URL to fetch and rewrite (default: read HTML from stdin)")
	format := flag.String("format", "html", "output format: html, markdown, text")
	currency := flag.String("currency", "", "default currency code (e.g. USD, EUR)")
	display := flag.String("display", "", "display mode: dual, bitcoin-only")
	denom := flag.String("denomination", "", "denomination: dynamic, btc, sats")
	rate := flag.Float64("rate", 0, "fixed BTC price for -currency; skips the rate provider")
	dbPath := flag.String("db", "", "preferences database path (default: per-user cache)")
	logLevel := flag.String("log-level", "warn", "log level: debug, info, warn, error")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(*logLevel)}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, options{
		url:      *pageURL,
		format:   *format,
		currency: *currency,
		display:  *display,
		denom:    *denom,
		rate:     *rate,
		dbPath:   *dbPath,
	}); err != nil {
		logger.Error("satlens: fatal", "error", err)
		os.Exit(1)
	}
}

type options struct {
	url      string
	format   string
	currency string
	display  string
	denom    string
	rate     float64
	dbPath   string
}

func run(ctx context.Context, logger *slog.Logger, opts options) error {
	if opts.format != "html" && opts.format != "markdown" && opts.format != "text" {
		return fmt.Errorf("unknown format %q", opts.format)
	}

	cfg := &satlens.Config{DBPath: opts.dbPath}
	if cfg.DBPath == "" {
		cacheDir, err := os.UserCacheDir()
		if err != nil {
			cacheDir = "."
		}
		cfg.DBPath = filepath.Join(cacheDir, "satlens", "satlens.db")
	}
	if opts.rate > 0 {
		code := opts.currency
		if code == "" {
			code = "USD"
		}
		cfg.Rates = satlens.RatesConfig{
			Provider: "fixed",
			Fixed:    map[string]float64{strings.ToUpper(code): opts.rate},
		}
	}

	svc, err := satlens.New(cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	src, err := readInput(ctx, opts.url)
	if err != nil {
		return err
	}

	prefs, err := svc.Preferences(ctx)
	if err != nil {
		return err
	}
	if opts.currency != "" {
		prefs.DefaultCurrency = opts.currency
	}
	if opts.display != "" {
		prefs.DisplayMode = fiat.ParseDisplayMode(opts.display)
	}
	if opts.denom != "" {
		prefs.Denomination = fiat.ParseDenomination(opts.denom)
	}
	prefs = prefs.Normalize()

	res, err := svc.RewriteHTML(ctx, src, satlens.PageInfo{
		URL:    opts.url,
		Source: "cli",
		Prefs:  &prefs,
	})
	if err != nil {
		return err
	}
	if res.Skipped != "" {
		logger.Warn("satlens: page not rewritten", "reason", res.Skipped)
	}

	out := res.HTML
	switch opts.format {
	case "markdown":
		md, err := htmltomarkdown.ConvertString(res.HTML)
		if err != nil {
			return fmt.Errorf("markdown conversion: %w", err)
		}
		out = strings.TrimSpace(md)
	case "text":
		out = strings.TrimSpace(bluemonday.StrictPolicy().Sanitize(res.HTML))
	}

	fmt.Println(out)
	fmt.Fprintf(os.Stderr, "%d prices annotated\n", res.Replaced)
	return nil
}

// readInput returns the page HTML, fetched from the URL when given,
// otherwise read from stdin.
func readInput(ctx context.Context, pageURL string) (string, error) {
	if pageURL == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}

	if err := urlguard.ValidateURL(pageURL); err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "text/html")
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: status %d", pageURL, resp.StatusCode)
	}
	body, err := urlguard.LimitedReadAll(resp.Body, urlguard.MaxResponseBody)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}
