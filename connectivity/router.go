// Package connectivity provides a named-action router that dispatches calls
// either locally (in-memory function call) or remotely (HTTP/MCP) based on a
// SQLite routes table reloaded at runtime.
//
// Surfaces (the HTTP server, the MCP tools, the live page engine) talk to
// the core through named actions instead of direct function calls, so any
// action can later be moved out of process by updating one SQL row.
//
//	router := connectivity.New()
//	router.RegisterTransport("http", connectivity.HTTPFactory())
//	router.RegisterLocal("satlens_rates_get", svc.RatesGet)
//	go router.Watch(ctx, db, 200*time.Millisecond)
//
//	// The caller never learns whether this ran in-process or remotely:
//	resp, err := router.Call(ctx, "satlens_rates_get", payload)
//
// The routes table decides the strategy. Change a row at runtime and the
// next Call picks up the new route without a restart.
package connectivity

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// Handler is a transport-agnostic service function: bytes in, bytes out.
// Local Go functions and remote RPC clients both fit this signature.
type Handler func(ctx context.Context, payload []byte) ([]byte, error)

// TransportFactory builds a Handler for one remote endpoint, given the
// endpoint URL and the route's config JSON. The returned close function
// runs when the route is removed or replaced during hot reload; nil is
// fine when there is nothing to clean up.
type TransportFactory func(endpoint string, config json.RawMessage) (handler Handler, close func(), err error)

// route mirrors one row of the routes table.
type route struct {
	ServiceName string
	Strategy    string
	Endpoint    string
	Config      json.RawMessage
}

// fingerprint changes whenever the route's dispatch behaviour would.
func (rt route) fingerprint() string {
	return rt.Strategy + "|" + rt.Endpoint + "|" + string(rt.Config)
}

type remoteEntry struct {
	handler Handler
	close   func()
}

// Router dispatches service calls based on SQLite configuration. Reads
// take an RLock; Reload takes the write lock.
type Router struct {
	mu            sync.RWMutex
	localHandlers map[string]Handler
	remoteEntries map[string]remoteEntry
	routeSnap     map[string]route // last loaded snapshot, for diffing
	factories     map[string]TransportFactory
	logger        *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the router's logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// New creates an empty Router. Register transports and local handlers,
// then start Watch to hot-reload routes from SQLite.
func New(opts ...Option) *Router {
	r := &Router{
		localHandlers: make(map[string]Handler),
		remoteEntries: make(map[string]remoteEntry),
		routeSnap:     make(map[string]route),
		factories:     make(map[string]TransportFactory),
		logger:        slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// RegisterLocal installs an in-memory handler. Call dispatches here when
// the routes table says strategy="local" or has no row for the service.
func (r *Router) RegisterLocal(service string, h Handler) {
	r.mu.Lock()
	r.localHandlers[service] = h
	r.mu.Unlock()
}

// RegisterTransport installs a factory for one protocol ("http", "mcp").
// Reload invokes it for every route using that protocol.
func (r *Router) RegisterTransport(protocol string, f TransportFactory) {
	r.mu.Lock()
	r.factories[protocol] = f
	r.mu.Unlock()
}

// Call dispatches a service call. Resolution order:
//  1. noop route: silently succeed (service disabled).
//  2. remote route from SQLite.
//  3. local handler.
//  4. ErrServiceNotFound.
func (r *Router) Call(ctx context.Context, service string, payload []byte) ([]byte, error) {
	r.mu.RLock()
	entry, hasRemote := r.remoteEntries[service]
	localH := r.localHandlers[service]
	snap, hasRoute := r.routeSnap[service]
	r.mu.RUnlock()

	if hasRoute && snap.Strategy == "noop" {
		r.logger.DebugContext(ctx, "routing noop", "service", service)
		return nil, nil
	}

	if hasRemote {
		r.logger.DebugContext(ctx, "routing remote",
			"service", service, "strategy", snap.Strategy, "endpoint", snap.Endpoint)
		return entry.handler(ctx, payload)
	}

	if localH != nil {
		r.logger.DebugContext(ctx, "routing local", "service", service)
		return localH(ctx, payload)
	}

	return nil, &ErrServiceNotFound{Service: service}
}

// Reload reads the routes table and rebuilds the remote handler map.
// Local and noop routes need no remote handler. A route whose
// fingerprint is unchanged keeps its existing handler and connection.
func (r *Router) Reload(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx,
		`SELECT service_name, strategy, COALESCE(endpoint, ''), COALESCE(config, '{}') FROM routes`)
	if err != nil {
		return fmt.Errorf("connectivity: query routes: %w", err)
	}
	defer rows.Close()

	newRoutes := make(map[string]route)
	for rows.Next() {
		var rt route
		var cfgStr string
		if err := rows.Scan(&rt.ServiceName, &rt.Strategy, &rt.Endpoint, &cfgStr); err != nil {
			return fmt.Errorf("connectivity: scan route: %w", err)
		}
		rt.Config = json.RawMessage(cfgStr)
		newRoutes[rt.ServiceName] = rt
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("connectivity: rows: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	newEntries := make(map[string]remoteEntry, len(newRoutes))

	for name, rt := range newRoutes {
		switch rt.Strategy {
		case "local", "noop":
			continue
		default:
			if old, ok := r.routeSnap[name]; ok && old.fingerprint() == rt.fingerprint() {
				if existing, exists := r.remoteEntries[name]; exists {
					newEntries[name] = existing
					continue
				}
			}

			factory, ok := r.factories[rt.Strategy]
			if !ok {
				r.logger.Warn("no transport factory for strategy",
					"service", name, "strategy", rt.Strategy)
				continue
			}

			h, closeFn, err := factory(rt.Endpoint, rt.Config)
			if err != nil {
				r.logger.Error("factory failed",
					"service", name, "strategy", rt.Strategy,
					"endpoint", rt.Endpoint, "error", err)
				continue
			}
			newEntries[name] = remoteEntry{handler: h, close: closeFn}
			r.logger.Info("route built",
				"service", name, "strategy", rt.Strategy, "endpoint", rt.Endpoint)
		}
	}

	// Close handlers for removed routes, and stale handlers whose route
	// changed (the replacement was built above).
	for name, old := range r.remoteEntries {
		if old.close == nil {
			continue
		}
		if _, stillExists := newEntries[name]; !stillExists {
			old.close()
			continue
		}
		oldSnap := r.routeSnap[name]
		newRt := newRoutes[name]
		if oldSnap.fingerprint() != newRt.fingerprint() {
			old.close()
		}
	}

	r.remoteEntries = newEntries
	r.routeSnap = newRoutes

	r.logger.Info("routes reloaded",
		"total", len(newRoutes),
		"remote", len(newEntries),
		"local", countLocal(newRoutes))

	return nil
}

// Close shuts down every remote handler.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, entry := range r.remoteEntries {
		if entry.close != nil {
			entry.close()
		}
	}
	r.remoteEntries = make(map[string]remoteEntry)
	r.routeSnap = make(map[string]route)
	return nil
}

func countLocal(routes map[string]route) int {
	n := 0
	for _, rt := range routes {
		if rt.Strategy == "local" {
			n++
		}
	}
	return n
}
