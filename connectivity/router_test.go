package connectivity

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/satlens/satlens/dbopen"
	_ "modernc.org/sqlite"
)

func routesDB(t *testing.T) *sql.DB {
	t.Helper()
	return dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
}

func TestNew(t *testing.T) {
	r := New()
	if r == nil {
		t.Fatal("New returned nil")
	}
	if r.localHandlers == nil || r.remoteEntries == nil || r.factories == nil {
		t.Fatal("maps not initialized")
	}
}

func TestRegisterLocal_and_Call(t *testing.T) {
	r := New()
	called := false
	r.RegisterLocal("satlens_convert", func(ctx context.Context, payload []byte) ([]byte, error) {
		called = true
		return payload, nil
	})

	resp, err := r.Call(context.Background(), "satlens_convert", []byte(`{"text":"$10"}`))
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if !called {
		t.Fatal("local handler not called")
	}
	if string(resp) != `{"text":"$10"}` {
		t.Fatalf("resp = %q", resp)
	}
}

func TestCall_ServiceNotFound(t *testing.T) {
	r := New()
	_, err := r.Call(context.Background(), "nonexistent", nil)
	if err == nil {
		t.Fatal("want error")
	}
	var snf *ErrServiceNotFound
	if !errors.As(err, &snf) {
		t.Fatalf("err = %T (%v), want ErrServiceNotFound", err, err)
	}
	if snf.Service != "nonexistent" {
		t.Fatalf("service = %q, want %q", snf.Service, "nonexistent")
	}
}

func TestReload_LocalStrategy(t *testing.T) {
	db := routesDB(t)
	r := New()

	localCalled := false
	r.RegisterLocal("satlens_rates_get", func(ctx context.Context, payload []byte) ([]byte, error) {
		localCalled = true
		return []byte("ok"), nil
	})

	if _, err := db.Exec(`INSERT INTO routes (service_name, strategy) VALUES ('satlens_rates_get', 'local')`); err != nil {
		t.Fatal(err)
	}

	if err := r.Reload(context.Background(), db); err != nil {
		t.Fatalf("reload: %v", err)
	}

	resp, err := r.Call(context.Background(), "satlens_rates_get", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !localCalled {
		t.Fatal("local handler not called for local strategy")
	}
	if string(resp) != "ok" {
		t.Fatalf("resp = %q", resp)
	}
}

func TestReload_NoopStrategy(t *testing.T) {
	db := routesDB(t)
	r := New()

	r.RegisterLocal("satlens_stats_get", func(ctx context.Context, payload []byte) ([]byte, error) {
		t.Fatal("noop route must not reach the local handler")
		return nil, nil
	})

	if _, err := db.Exec(`INSERT INTO routes (service_name, strategy) VALUES ('satlens_stats_get', 'noop')`); err != nil {
		t.Fatal(err)
	}

	if err := r.Reload(context.Background(), db); err != nil {
		t.Fatal(err)
	}

	resp, err := r.Call(context.Background(), "satlens_stats_get", []byte("data"))
	if err != nil {
		t.Fatalf("noop call: %v", err)
	}
	if resp != nil {
		t.Fatalf("noop resp = %q, want nil", resp)
	}
}

func TestReload_RemoteStrategy(t *testing.T) {
	db := routesDB(t)
	r := New()

	remoteCalled := false
	r.RegisterTransport("http", func(endpoint string, config json.RawMessage) (Handler, func(), error) {
		h := func(ctx context.Context, payload []byte) ([]byte, error) {
			remoteCalled = true
			return []byte("remote:" + endpoint), nil
		}
		return h, nil, nil
	})

	if _, err := db.Exec(`INSERT INTO routes (service_name, strategy, endpoint) VALUES ('satlens_rates_get', 'http', 'http://10.0.0.1:8080')`); err != nil {
		t.Fatal(err)
	}

	if err := r.Reload(context.Background(), db); err != nil {
		t.Fatal(err)
	}

	resp, err := r.Call(context.Background(), "satlens_rates_get", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !remoteCalled {
		t.Fatal("remote handler not called")
	}
	if string(resp) != "remote:http://10.0.0.1:8080" {
		t.Fatalf("resp = %q", resp)
	}
}

func TestReload_RemoteOverridesLocal(t *testing.T) {
	db := routesDB(t)
	r := New()

	r.RegisterLocal("satlens_rates_get", func(ctx context.Context, payload []byte) ([]byte, error) {
		return []byte("local"), nil
	})

	r.RegisterTransport("http", func(endpoint string, config json.RawMessage) (Handler, func(), error) {
		h := func(ctx context.Context, payload []byte) ([]byte, error) {
			return []byte("remote"), nil
		}
		return h, nil, nil
	})

	if _, err := db.Exec(`INSERT INTO routes (service_name, strategy, endpoint) VALUES ('satlens_rates_get', 'http', 'http://10.0.0.1:8080')`); err != nil {
		t.Fatal(err)
	}

	if err := r.Reload(context.Background(), db); err != nil {
		t.Fatal(err)
	}

	resp, err := r.Call(context.Background(), "satlens_rates_get", nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(resp) != "remote" {
		t.Fatalf("resp = %q, want the remote route to win", resp)
	}
}

func TestReload_UnchangedRoutePreservesHandler(t *testing.T) {
	db := routesDB(t)
	r := New()

	var buildCount int32
	r.RegisterTransport("http", func(endpoint string, config json.RawMessage) (Handler, func(), error) {
		atomic.AddInt32(&buildCount, 1)
		h := func(ctx context.Context, payload []byte) ([]byte, error) {
			return []byte("ok"), nil
		}
		return h, nil, nil
	})

	if _, err := db.Exec(`INSERT INTO routes (service_name, strategy, endpoint) VALUES ('svc', 'http', 'http://10.0.0.1')`); err != nil {
		t.Fatal(err)
	}

	if err := r.Reload(context.Background(), db); err != nil {
		t.Fatal(err)
	}
	if c := atomic.LoadInt32(&buildCount); c != 1 {
		t.Fatalf("builds = %d, want 1", c)
	}

	// Same fingerprint, handler survives.
	if err := r.Reload(context.Background(), db); err != nil {
		t.Fatal(err)
	}
	if c := atomic.LoadInt32(&buildCount); c != 1 {
		t.Fatalf("builds after unchanged reload = %d, want 1", c)
	}
}

func TestReload_ChangedRouteRebuildsHandler(t *testing.T) {
	db := routesDB(t)
	r := New()

	var buildCount int32
	closeCalled := false
	r.RegisterTransport("http", func(endpoint string, config json.RawMessage) (Handler, func(), error) {
		atomic.AddInt32(&buildCount, 1)
		h := func(ctx context.Context, payload []byte) ([]byte, error) {
			return []byte(endpoint), nil
		}
		cl := func() { closeCalled = true }
		return h, cl, nil
	})

	if _, err := db.Exec(`INSERT INTO routes (service_name, strategy, endpoint) VALUES ('svc', 'http', 'http://old')`); err != nil {
		t.Fatal(err)
	}
	if err := r.Reload(context.Background(), db); err != nil {
		t.Fatal(err)
	}

	if _, err := db.Exec(`UPDATE routes SET endpoint='http://new' WHERE service_name='svc'`); err != nil {
		t.Fatal(err)
	}
	if err := r.Reload(context.Background(), db); err != nil {
		t.Fatal(err)
	}

	if c := atomic.LoadInt32(&buildCount); c != 2 {
		t.Fatalf("builds after endpoint change = %d, want 2", c)
	}
	if !closeCalled {
		t.Fatal("old handler close function not called")
	}

	resp, err := r.Call(context.Background(), "svc", nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(resp) != "http://new" {
		t.Fatalf("resp = %q, want the new endpoint", resp)
	}
}

func TestReload_RemovedRouteClosesHandler(t *testing.T) {
	db := routesDB(t)
	r := New()

	closeCalled := false
	r.RegisterTransport("http", func(endpoint string, config json.RawMessage) (Handler, func(), error) {
		h := func(ctx context.Context, payload []byte) ([]byte, error) {
			return nil, nil
		}
		return h, func() { closeCalled = true }, nil
	})

	if _, err := db.Exec(`INSERT INTO routes (service_name, strategy, endpoint) VALUES ('svc', 'http', 'http://x')`); err != nil {
		t.Fatal(err)
	}
	if err := r.Reload(context.Background(), db); err != nil {
		t.Fatal(err)
	}

	if _, err := db.Exec(`DELETE FROM routes WHERE service_name='svc'`); err != nil {
		t.Fatal(err)
	}
	if err := r.Reload(context.Background(), db); err != nil {
		t.Fatal(err)
	}

	if !closeCalled {
		t.Fatal("close not called for removed route")
	}
}

func TestReload_NoFactoryWarns(t *testing.T) {
	db := routesDB(t)
	r := New()

	// Route uses the mcp strategy but no mcp factory was registered.
	if _, err := db.Exec(`INSERT INTO routes (service_name, strategy, endpoint) VALUES ('svc', 'mcp', 'https://x')`); err != nil {
		t.Fatal(err)
	}

	// Reload logs and skips rather than failing the whole pass.
	if err := r.Reload(context.Background(), db); err != nil {
		t.Fatal(err)
	}

	if _, err := r.Call(context.Background(), "svc", nil); err == nil {
		t.Fatal("want error for service with no factory")
	}
}

func TestClose(t *testing.T) {
	r := New()

	closeCalled := false
	r.remoteEntries["svc"] = remoteEntry{
		handler: func(ctx context.Context, payload []byte) ([]byte, error) { return nil, nil },
		close:   func() { closeCalled = true },
	}

	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	if !closeCalled {
		t.Fatal("close not called")
	}
	if len(r.remoteEntries) != 0 {
		t.Fatal("entries not cleared")
	}
}

func TestCircuitBreaker_OpensAndRecovers(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }

	cb := NewCircuitBreaker(
		WithBreakerThreshold(3),
		WithBreakerResetTimeout(100*time.Millisecond),
		WithBreakerHalfOpenMax(1),
		WithBreakerClock(clock),
	)

	if cb.State() != BreakerClosed {
		t.Fatalf("state = %v, want closed", cb.State())
	}

	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	if cb.State() != BreakerOpen {
		t.Fatalf("state after 3 failures = %v, want open", cb.State())
	}
	if cb.Allow() {
		t.Fatal("open breaker must reject calls")
	}

	now = now.Add(200 * time.Millisecond)
	if cb.State() != BreakerHalfOpen {
		t.Fatalf("state after reset timeout = %v, want half-open", cb.State())
	}
	if !cb.Allow() {
		t.Fatal("half-open breaker must allow a probe")
	}

	cb.RecordSuccess()
	if cb.State() != BreakerClosed {
		t.Fatalf("state after half-open success = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }

	cb := NewCircuitBreaker(
		WithBreakerThreshold(1),
		WithBreakerResetTimeout(50*time.Millisecond),
		WithBreakerClock(clock),
	)

	cb.RecordFailure()
	if cb.State() != BreakerOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}

	now = now.Add(100 * time.Millisecond)
	if cb.State() != BreakerHalfOpen {
		t.Fatalf("state = %v, want half-open", cb.State())
	}

	cb.RecordFailure()
	if cb.State() != BreakerOpen {
		t.Fatalf("state after half-open failure = %v, want open", cb.State())
	}
}

func TestWithCircuitBreaker_Middleware(t *testing.T) {
	cb := NewCircuitBreaker(WithBreakerThreshold(1))

	base := func(ctx context.Context, payload []byte) ([]byte, error) {
		return nil, errors.New("fail")
	}
	wrapped := WithCircuitBreaker(cb, "satlens_rates_get")(base)

	// First failure trips the breaker.
	if _, err := wrapped(context.Background(), nil); err == nil {
		t.Fatal("want error")
	}

	// Second call is rejected without reaching the handler.
	_, err := wrapped(context.Background(), nil)
	var eco *ErrCircuitOpen
	if !errors.As(err, &eco) {
		t.Fatalf("err = %T (%v), want ErrCircuitOpen", err, err)
	}
}

func TestWithRetry(t *testing.T) {
	attempts := 0
	base := func(ctx context.Context, payload []byte) ([]byte, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("transient")
		}
		return []byte("ok"), nil
	}

	wrapped := WithRetry(3, 1*time.Millisecond, nil)(base)
	resp, err := wrapped(context.Background(), nil)
	if err != nil {
		t.Fatalf("want success after retries, got: %v", err)
	}
	if string(resp) != "ok" {
		t.Fatalf("resp = %q", resp)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}

func TestWithRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	base := func(ctx context.Context, payload []byte) ([]byte, error) {
		attempts++
		cancel()
		return nil, errors.New("fail")
	}

	wrapped := WithRetry(5, 1*time.Millisecond, nil)(base)
	if _, err := wrapped(ctx, nil); err == nil {
		t.Fatal("want error")
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1 (cancelled context stops the loop)", attempts)
	}
}

func TestWithFallback(t *testing.T) {
	local := func(ctx context.Context, payload []byte) ([]byte, error) {
		return []byte("local"), nil
	}
	remote := func(ctx context.Context, payload []byte) ([]byte, error) {
		return nil, errors.New("remote down")
	}

	wrapped := WithFallback(local, "svc", slog.New(slog.DiscardHandler))(remote)
	resp, err := wrapped(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(resp) != "local" {
		t.Fatalf("resp = %q, want the local fallback", resp)
	}
}

func TestWithFallback_NoFallbackOnContextCancel(t *testing.T) {
	localCalled := false
	local := func(ctx context.Context, payload []byte) ([]byte, error) {
		localCalled = true
		return nil, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	remote := func(ctx context.Context, payload []byte) ([]byte, error) {
		return nil, ctx.Err()
	}

	wrapped := WithFallback(local, "svc", nil)(remote)
	if _, err := wrapped(ctx, nil); err == nil {
		t.Fatal("want error")
	}
	if localCalled {
		t.Fatal("local must not run when the caller cancelled")
	}
}

func TestChain(t *testing.T) {
	var order []string

	mw := func(name string) HandlerMiddleware {
		return func(next Handler) Handler {
			return func(ctx context.Context, payload []byte) ([]byte, error) {
				order = append(order, name+"-before")
				resp, err := next(ctx, payload)
				order = append(order, name+"-after")
				return resp, err
			}
		}
	}

	base := func(ctx context.Context, payload []byte) ([]byte, error) {
		order = append(order, "handler")
		return nil, nil
	}

	wrapped := Chain(mw("outer"), mw("inner"))(base)
	wrapped(context.Background(), nil)

	want := []string{"outer-before", "inner-before", "handler", "inner-after", "outer-after"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i, v := range want {
		if order[i] != v {
			t.Fatalf("order[%d] = %q, want %q", i, order[i], v)
		}
	}
}

func TestRecovery(t *testing.T) {
	base := func(ctx context.Context, payload []byte) ([]byte, error) {
		panic("boom")
	}

	wrapped := Recovery(slog.New(slog.DiscardHandler))(base)
	_, err := wrapped(context.Background(), nil)
	if err == nil {
		t.Fatal("want error from recovered panic")
	}
	var ep *ErrPanic
	if !errors.As(err, &ep) {
		t.Fatalf("err = %T (%v), want ErrPanic", err, err)
	}
}

func TestHTTPFactory_CreatesHandler(t *testing.T) {
	f := HTTPFactory()
	cfg := json.RawMessage(`{"timeout_ms": 5000, "content_type": "application/json"}`)
	// External URL: the guard rejects private and loopback addresses.
	h, closeFn, err := f("https://example.com/api", cfg)
	if err != nil {
		t.Fatal(err)
	}
	if h == nil {
		t.Fatal("handler is nil")
	}
	if closeFn == nil {
		t.Fatal("close function is nil")
	}
	closeFn()
}

func TestHTTPFactory_RejectsPrivateURL(t *testing.T) {
	f := HTTPFactory()
	cfg := json.RawMessage(`{}`)
	if _, _, err := f("http://127.0.0.1:8080", cfg); err == nil {
		t.Fatal("want SSRF error for loopback URL")
	}
	if _, _, err := f("http://10.0.0.1:8080", cfg); err == nil {
		t.Fatal("want SSRF error for private URL")
	}
}

func TestFingerprint(t *testing.T) {
	r1 := route{Strategy: "http", Endpoint: "http://a", Config: json.RawMessage(`{}`)}
	r2 := route{Strategy: "http", Endpoint: "http://a", Config: json.RawMessage(`{}`)}
	r3 := route{Strategy: "http", Endpoint: "http://b", Config: json.RawMessage(`{}`)}

	if r1.fingerprint() != r2.fingerprint() {
		t.Fatal("equal routes must share a fingerprint")
	}
	if r1.fingerprint() == r3.fingerprint() {
		t.Fatal("different endpoints must change the fingerprint")
	}
}

func TestWatch_DetectsChanges(t *testing.T) {
	// PRAGMA data_version only moves when a different connection writes,
	// so use a file-backed database with separate reader and writer handles.
	dbPath := t.TempDir() + "/routes.db"

	writerDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { writerDB.Close() })

	if err := Init(writerDB); err != nil {
		t.Fatal(err)
	}

	readerDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { readerDB.Close() })

	r := New()
	var builds int32
	r.RegisterTransport("http", func(endpoint string, config json.RawMessage) (Handler, func(), error) {
		atomic.AddInt32(&builds, 1)
		h := func(ctx context.Context, payload []byte) ([]byte, error) { return nil, nil }
		return h, nil, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go r.Watch(ctx, readerDB, 50*time.Millisecond)
	time.Sleep(100 * time.Millisecond)

	if _, err := writerDB.Exec(`INSERT INTO routes (service_name, strategy, endpoint) VALUES ('svc', 'http', 'http://x')`); err != nil {
		t.Fatal(err)
	}

	time.Sleep(300 * time.Millisecond)
	if c := atomic.LoadInt32(&builds); c < 1 {
		t.Fatalf("factory builds = %d, want >= 1 after route insert", c)
	}
}
