package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/satlens/satlens"
	"github.com/satlens/satlens/connectivity"
	"github.com/satlens/satlens/urlguard"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleHealthz reports liveness.
// GET /healthz
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleRates returns the current BTC price table.
// GET /api/rates
func (s *Server) handleRates(w http.ResponseWriter, r *http.Request) {
	resp, err := s.svc.Router().Call(r.Context(), "satlens_rates_get", nil)
	if err != nil {
		s.logger.Error("rates fetch failed", "error", err)
		writeError(w, http.StatusBadGateway, "no price table available")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(resp)
}

// handlePrefsGet returns the stored preferences.
// GET /api/prefs
func (s *Server) handlePrefsGet(w http.ResponseWriter, r *http.Request) {
	resp, err := s.svc.Router().Call(r.Context(), "satlens_prefs_get", nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(resp)
}

// handlePrefsPut replaces the stored preferences with the request body.
// PUT /api/prefs
func (s *Server) handlePrefsPut(w http.ResponseWriter, r *http.Request) {
	body, err := urlguard.LimitedReadAll(r.Body, urlguard.MaxResponseBody)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	resp, err := s.svc.Router().Call(r.Context(), "satlens_prefs_set", body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(resp)
}

// handleServices lists every action the router can dispatch.
// GET /api/services
func (s *Server) handleServices(w http.ResponseWriter, r *http.Request) {
	list := make([]connectivity.ServiceInfo, 0, 8)
	for info := range s.svc.Router().ListServices() {
		list = append(list, info)
	}
	writeJSON(w, http.StatusOK, list)
}

// handleServiceInspect describes one routed action.
// GET /api/services/{name}
func (s *Server) handleServiceInspect(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	info, ok := s.svc.Router().Inspect(name)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown service: "+name)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// handleRoutesList dumps the routes table.
// GET /api/routes
func (s *Server) handleRoutesList(w http.ResponseWriter, r *http.Request) {
	routes, err := s.admin.ListRoutes(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if routes == nil {
		routes = []connectivity.RouteRow{}
	}
	writeJSON(w, http.StatusOK, routes)
}

// handleRouteUpsert creates or replaces a route. The watcher reloads the
// router from SQLite, so the new route takes effect without a restart.
// PUT /api/routes/{name}
func (s *Server) handleRouteUpsert(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var req struct {
		Strategy string          `json:"strategy"`
		Endpoint string          `json:"endpoint"`
		Config   json.RawMessage `json:"config"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Strategy == "" {
		writeError(w, http.StatusBadRequest, "strategy required")
		return
	}
	if err := s.admin.UpsertRoute(r.Context(), name, req.Strategy, req.Endpoint, req.Config); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"service": name, "strategy": req.Strategy})
}

// handleRouteDelete removes a route.
// DELETE /api/routes/{name}
func (s *Server) handleRouteDelete(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.admin.DeleteRoute(r.Context(), name); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": name})
}

// RewriteRequest is the body for POST /api/rewrite.
type RewriteRequest struct {
	HTML     string `json:"html"`
	URL      string `json:"url,omitempty"`
	Fragment bool   `json:"fragment,omitempty"`
	// Format selects the output rendering: "html" (default) or "markdown".
	Format string `json:"format,omitempty"`
}

// RewriteResponse is the reply for POST /api/rewrite.
type RewriteResponse struct {
	Output   string `json:"output"`
	Format   string `json:"format"`
	Replaced int    `json:"replaced"`
	Skipped  string `json:"skipped,omitempty"`
}

// handleRewrite runs one rewrite pass over the posted HTML.
// POST /api/rewrite
func (s *Server) handleRewrite(w http.ResponseWriter, r *http.Request) {
	var req RewriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.HTML == "" {
		writeError(w, http.StatusBadRequest, "html required")
		return
	}
	format := req.Format
	if format == "" {
		format = "html"
	}
	if format != "html" && format != "markdown" {
		writeError(w, http.StatusBadRequest, "format must be html or markdown")
		return
	}

	res, err := s.svc.RewriteHTML(r.Context(), req.HTML, satlens.PageInfo{
		URL:      req.URL,
		Source:   "server",
		Fragment: req.Fragment,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := res.HTML
	if format == "markdown" {
		md, err := s.md.ConvertString(res.HTML)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "markdown conversion: "+err.Error())
			return
		}
		out = strings.TrimSpace(md)
	}

	writeJSON(w, http.StatusOK, RewriteResponse{
		Output:   out,
		Format:   format,
		Replaced: res.Replaced,
		Skipped:  res.Skipped,
	})
}

// handlePreview fetches a remote page, sanitizes it, and serves it with
// prices annotated.
// GET /preview?url=
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")
	if rawURL == "" {
		writeError(w, http.StatusBadRequest, "url parameter required")
		return
	}

	page, err := s.fetchPage(r, rawURL)
	if err != nil {
		s.logger.Warn("preview fetch failed", "url", rawURL, "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	sanitized := s.sanitizer.Sanitize(page)

	res, err := s.svc.RewriteHTML(r.Context(), sanitized, satlens.PageInfo{
		URL:    rawURL,
		Source: "server",
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(res.HTML))
}
