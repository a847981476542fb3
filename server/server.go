// Package server is the HTTP surface of satlens. It serves a preview
// endpoint that fetches a remote page, sanitizes it, and returns it with
// every fiat price annotated, plus a small JSON API over preferences,
// rates, and one-shot rewrites.
//
// Preference and rate reads go through the connectivity router so the
// HTTP surface stays decoupled from the core stores.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/microcosm-cc/bluemonday"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/satlens/satlens"
	"github.com/satlens/satlens/connectivity"
	"github.com/satlens/satlens/urlguard"
)

// Server serves the satlens HTTP API and page previews.
type Server struct {
	svc       *satlens.Service
	logger    *slog.Logger
	client    *http.Client
	sanitizer *bluemonday.Policy
	md        *converter.Converter
	validate  func(string) error
	mcpServer *mcp.Server
	admin     *connectivity.Admin
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithHTTPClient sets the client used to fetch preview pages.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Server) { s.client = c }
}

// WithURLValidator replaces the preview URL guard. Pass nil to disable
// validation entirely (tests).
func WithURLValidator(f func(string) error) Option {
	return func(s *Server) { s.validate = f }
}

// WithMCPServer also serves the given MCP server on /mcp over streamable
// HTTP.
func WithMCPServer(m *mcp.Server) Option {
	return func(s *Server) { s.mcpServer = m }
}

// New creates a Server around the given service.
func New(svc *satlens.Service, opts ...Option) *Server {
	s := &Server{
		svc:    svc,
		logger: slog.Default(),
		client: &http.Client{
			Timeout: 20 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		sanitizer: previewPolicy(),
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
		validate: urlguard.ValidateURL,
		admin:    connectivity.NewAdmin(svc.DB()),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// previewPolicy is a relaxed sanitizer that keeps page structure but
// strips scripts, event handlers, and embedded objects.
func previewPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("class", "id").Globally()
	p.AllowElements("span", "section", "article", "header", "footer",
		"nav", "aside", "main", "figure", "figcaption")
	p.AllowStandardURLs()
	return p
}

// Routes builds the chi router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/preview", s.handlePreview)

	r.Route("/api", func(r chi.Router) {
		r.Get("/rates", s.handleRates)
		r.Get("/prefs", s.handlePrefsGet)
		r.Put("/prefs", s.handlePrefsPut)
		r.Post("/rewrite", s.handleRewrite)
		r.Get("/services", s.handleServices)
		r.Get("/services/{name}", s.handleServiceInspect)
		r.Get("/routes", s.handleRoutesList)
		r.Put("/routes/{name}", s.handleRouteUpsert)
		r.Delete("/routes/{name}", s.handleRouteDelete)
	})

	if s.mcpServer != nil {
		r.Handle("/mcp", mcp.NewStreamableHTTPHandler(
			func(*http.Request) *mcp.Server { return s.mcpServer }, nil))
	}

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.logger.Info("http server listening", "addr", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	}
}

// fetchPage retrieves a page, enforcing the URL guard and the response
// body cap.
func (s *Server) fetchPage(r *http.Request, rawURL string) (string, error) {
	if s.validate != nil {
		if err := s.validate(rawURL); err != nil {
			return "", err
		}
	}
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "text/html")
	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("upstream returned %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") && !strings.Contains(ct, "text/plain") {
		return "", fmt.Errorf("unsupported content type %q", ct)
	}
	body, err := urlguard.LimitedReadAll(resp.Body, urlguard.MaxResponseBody)
	if err != nil {
		return "", err
	}
	return string(body), nil
}
