package rates

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/satlens/satlens/dbopen"
	"github.com/satlens/satlens/fiat"

	_ "modernc.org/sqlite"
)

func TestFixed(t *testing.T) {
	f := Fixed{"USD": 50000, "EUR": 46000}
	table, err := f.Rates(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if table["USD"] != 50000 || table["EUR"] != 46000 {
		t.Fatalf("table = %v", table)
	}

	if _, err := (Fixed{}).Rates(context.Background()); !errors.Is(err, ErrNoRates) {
		t.Fatalf("empty Fixed error = %v, want ErrNoRates", err)
	}
}

func TestCoinGecko_Rates(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path + "?" + r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"bitcoin": {"usd": 97000.5, "eur": 89000, "gbp": 76000}}`))
	}))
	defer srv.Close()

	catalog := fiat.Catalog{
		{Code: "USD", Symbol: "$"},
		{Code: "EUR", Symbol: "€"},
		{Code: "GBP", Symbol: "£"},
	}
	cg := NewCoinGecko(catalog, WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))

	table, err := cg.Rates(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if table["USD"] != 97000.5 {
		t.Errorf("USD = %v, want 97000.5", table["USD"])
	}
	if table["EUR"] != 89000 {
		t.Errorf("EUR = %v, want 89000", table["EUR"])
	}
	if !strings.Contains(gotPath, "/simple/price") {
		t.Errorf("path = %q, want /simple/price", gotPath)
	}
	if !strings.Contains(gotPath, "ids=bitcoin") {
		t.Errorf("query missing ids=bitcoin: %q", gotPath)
	}
	if !strings.Contains(gotPath, "usd") || !strings.Contains(gotPath, "eur") {
		t.Errorf("query missing catalog currencies: %q", gotPath)
	}
}

func TestCoinGecko_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	cg := NewCoinGecko(fiat.DefaultCatalog(), WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	if _, err := cg.Rates(context.Background()); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}

func TestCoinGecko_DropsNonPositivePrices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"bitcoin": {"usd": 97000, "eur": 0, "gbp": -5}}`))
	}))
	defer srv.Close()

	cg := NewCoinGecko(fiat.DefaultCatalog(), WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	table, err := cg.Rates(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := table["EUR"]; ok {
		t.Error("zero price should be dropped")
	}
	if _, ok := table["GBP"]; ok {
		t.Error("negative price should be dropped")
	}
	if table["USD"] != 97000 {
		t.Errorf("USD = %v", table["USD"])
	}
}

// flaky is a Supplier that fails after serving n successes.
type flaky struct {
	table fiat.PriceTable
	left  int
	calls int
}

func (f *flaky) Rates(ctx context.Context) (fiat.PriceTable, error) {
	f.calls++
	if f.left <= 0 {
		return nil, errors.New("upstream down")
	}
	f.left--
	return f.table, nil
}

func TestCached_ServesFreshWithoutRefetch(t *testing.T) {
	up := &flaky{table: fiat.PriceTable{"USD": 50000}, left: 1}
	c := NewCached(up, WithTTL(time.Hour))

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		table, err := c.Rates(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if table["USD"] != 50000 {
			t.Fatalf("USD = %v", table["USD"])
		}
	}
	if up.calls != 1 {
		t.Fatalf("upstream calls = %d, want 1 (TTL cache)", up.calls)
	}
}

func TestCached_ServesStaleOnUpstreamFailure(t *testing.T) {
	up := &flaky{table: fiat.PriceTable{"USD": 50000}, left: 1}
	c := NewCached(up, WithTTL(0)) // always stale, forces refetch

	ctx := context.Background()
	if _, err := c.Rates(ctx); err != nil {
		t.Fatal(err)
	}

	// Upstream now fails; the stale memory copy is served.
	table, err := c.Rates(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if table["USD"] != 50000 {
		t.Fatalf("stale USD = %v", table["USD"])
	}
}

func TestCached_LoadsSnapshotFromDB(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	ctx := context.Background()

	// First instance fetches once and persists.
	up1 := &flaky{table: fiat.PriceTable{"USD": 48000, "EUR": 44000}, left: 1}
	c1 := NewCached(up1, WithSnapshotDB(db), WithTTL(time.Hour))
	if _, err := c1.Rates(ctx); err != nil {
		t.Fatal(err)
	}

	// Second instance has a dead upstream but finds the snapshot.
	up2 := &flaky{}
	c2 := NewCached(up2, WithSnapshotDB(db), WithTTL(time.Hour))
	table, err := c2.Rates(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if table["USD"] != 48000 || table["EUR"] != 44000 {
		t.Fatalf("snapshot table = %v", table)
	}
}

func TestCached_NoRatesAnywhere(t *testing.T) {
	up := &flaky{}
	c := NewCached(up)
	if _, err := c.Rates(context.Background()); err == nil {
		t.Fatal("expected error with dead upstream and no snapshot")
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, 50*time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := rl.Wait(ctx); err != nil {
			t.Fatal(err)
		}
	}
	// Third call must wait for a refill.
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Fatalf("third token arrived too fast: %v", elapsed)
	}
}

func TestRateLimiter_ContextCancelled(t *testing.T) {
	rl := NewRateLimiter(1, time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := rl.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	if err := rl.Wait(ctx); err == nil {
		t.Fatal("expected context error when bucket is empty")
	}
}
