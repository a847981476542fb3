package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/satlens/satlens"
	_ "modernc.org/sqlite"
)

func testServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	cfg := &satlens.Config{
		DBPath: filepath.Join(t.TempDir(), "satlens.db"),
		Rates: satlens.RatesConfig{
			Provider: "fixed",
			Fixed:    map[string]float64{"USD": 50000},
		},
		Stats: satlens.StatsConfig{Enabled: true},
	}
	svc, err := satlens.New(cfg, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { svc.Close() })

	opts = append([]Option{WithLogger(slog.New(slog.DiscardHandler))}, opts...)
	return New(svc, opts...)
}

func doJSON(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	h := testServer(t).Routes()

	rec := doJSON(t, h, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestRatesEndpoint(t *testing.T) {
	h := testServer(t).Routes()

	rec := doJSON(t, h, http.MethodGet, "/api/rates", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var table map[string]float64
	if err := json.Unmarshal(rec.Body.Bytes(), &table); err != nil {
		t.Fatal(err)
	}
	if table["USD"] != 50000 {
		t.Errorf("USD = %v, want 50000", table["USD"])
	}
}

func TestPrefsRoundTrip(t *testing.T) {
	h := testServer(t).Routes()

	rec := doJSON(t, h, http.MethodPut, "/api/prefs",
		`{"default_currency": "eur", "display_mode": "bitcoin-only", "denomination": "sats"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("put status = %d: %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/prefs", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var got struct {
		DefaultCurrency string `json:"default_currency"`
		DisplayMode     string `json:"display_mode"`
		Denomination    string `json:"denomination"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.DefaultCurrency != "EUR" {
		t.Errorf("currency = %q, want EUR", got.DefaultCurrency)
	}
	if got.DisplayMode != "bitcoin-only" || got.Denomination != "sats" {
		t.Errorf("got %+v", got)
	}
}

func TestRewriteEndpoint_HTML(t *testing.T) {
	h := testServer(t).Routes()

	rec := doJSON(t, h, http.MethodPost, "/api/rewrite",
		`{"html": "<p>Only $25.00</p>", "fragment": true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var resp RewriteResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Replaced != 1 {
		t.Fatalf("replaced = %d, want 1", resp.Replaced)
	}
	if !strings.Contains(resp.Output, "50,000 sats") {
		t.Errorf("output missing conversion: %s", resp.Output)
	}
	if resp.Format != "html" {
		t.Errorf("format = %q", resp.Format)
	}
}

func TestRewriteEndpoint_Markdown(t *testing.T) {
	h := testServer(t).Routes()

	rec := doJSON(t, h, http.MethodPost, "/api/rewrite",
		`{"html": "<h1>Deal</h1><p>Only $25.00</p>", "format": "markdown"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var resp RewriteResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(resp.Output, "# Deal") {
		t.Errorf("output is not markdown: %s", resp.Output)
	}
	if !strings.Contains(resp.Output, "50,000 sats") {
		t.Errorf("output missing conversion: %s", resp.Output)
	}
	if strings.Contains(resp.Output, "<p>") {
		t.Errorf("markdown output still contains HTML: %s", resp.Output)
	}
}

func TestRewriteEndpoint_BadRequests(t *testing.T) {
	h := testServer(t).Routes()

	cases := []struct {
		name string
		body string
	}{
		{"empty html", `{"html": ""}`},
		{"bad format", `{"html": "<p>$1</p>", "format": "pdf"}`},
		{"bad json", `{`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, h, http.MethodPost, "/api/rewrite", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestPreview(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><script>alert(1)</script></head><body><p class="price">Now $100</p></body></html>`))
	}))
	defer backend.Close()

	s := testServer(t, WithURLValidator(nil), WithHTTPClient(backend.Client()))
	h := s.Routes()

	rec := doJSON(t, h, http.MethodGet, "/preview?url="+backend.URL, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	body := rec.Body.String()
	if strings.Contains(body, "<script>") {
		t.Error("script survived sanitization")
	}
	if !strings.Contains(body, "200,000 sats") {
		t.Errorf("preview missing conversion: %s", body)
	}
}

func TestPreview_MissingURL(t *testing.T) {
	h := testServer(t).Routes()

	rec := doJSON(t, h, http.MethodGet, "/preview", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestPreview_GuardBlocksPrivate(t *testing.T) {
	h := testServer(t).Routes()

	rec := doJSON(t, h, http.MethodGet, "/preview?url=http://127.0.0.1:9/x", "")
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func TestServicesEndpoints(t *testing.T) {
	h := testServer(t).Routes()

	rec := doJSON(t, h, http.MethodGet, "/api/services", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var list []struct {
		Name     string `json:"name"`
		Strategy string `json:"strategy"`
		HasLocal bool   `json:"has_local"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	found := false
	for _, s := range list {
		if s.Name == "satlens_rewrite" {
			found = true
			if s.Strategy != "local" || !s.HasLocal {
				t.Errorf("satlens_rewrite = %+v, want local handler", s)
			}
		}
	}
	if !found {
		t.Fatalf("satlens_rewrite not listed in %d services", len(list))
	}

	rec = doJSON(t, h, http.MethodGet, "/api/services/satlens_convert", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("inspect status = %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/services/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown service status = %d, want 404", rec.Code)
	}
}

func TestRouteAdmin(t *testing.T) {
	h := testServer(t).Routes()

	// Empty table to start.
	rec := doJSON(t, h, http.MethodGet, "/api/routes", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPut, "/api/routes/satlens_rates_get",
		`{"strategy":"http","endpoint":"http://rates.internal/call"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("upsert status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodGet, "/api/routes", "")
	var routes []struct {
		ServiceName string `json:"service_name"`
		Strategy    string `json:"strategy"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&routes); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(routes) != 1 || routes[0].ServiceName != "satlens_rates_get" || routes[0].Strategy != "http" {
		t.Fatalf("routes = %+v", routes)
	}

	rec = doJSON(t, h, http.MethodDelete, "/api/routes/satlens_rates_get", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodDelete, "/api/routes/satlens_rates_get", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rec.Code)
	}
}
