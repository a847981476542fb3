package connectivity

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// Admin is CRUD over the routes table. Mutations land in SQLite, where
// the Watch loop picks them up; callers never invoke Reload themselves.
type Admin struct {
	db *sql.DB
}

// NewAdmin wraps a database that has had the routes schema applied.
func NewAdmin(db *sql.DB) *Admin {
	return &Admin{db: db}
}

// RouteRow is one row of the routes table.
type RouteRow struct {
	ServiceName string          `json:"service_name"`
	Strategy    string          `json:"strategy"`
	Endpoint    string          `json:"endpoint,omitempty"`
	Config      json.RawMessage `json:"config,omitempty"`
	UpdatedAt   int64           `json:"updated_at"`
}

// ListRoutes returns every route, ordered by service name.
func (a *Admin) ListRoutes(ctx context.Context) ([]RouteRow, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT service_name, strategy, COALESCE(endpoint, ''), COALESCE(config, '{}'), updated_at FROM routes ORDER BY service_name`)
	if err != nil {
		return nil, fmt.Errorf("admin: list routes: %w", err)
	}
	defer rows.Close()

	var result []RouteRow
	for rows.Next() {
		var r RouteRow
		var cfgStr string
		if err := rows.Scan(&r.ServiceName, &r.Strategy, &r.Endpoint, &cfgStr, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("admin: scan route: %w", err)
		}
		r.Config = json.RawMessage(cfgStr)
		result = append(result, r)
	}
	return result, rows.Err()
}

// GetRoute returns one route, or nil when the service has no route.
func (a *Admin) GetRoute(ctx context.Context, serviceName string) (*RouteRow, error) {
	var r RouteRow
	var cfgStr string
	err := a.db.QueryRowContext(ctx,
		`SELECT service_name, strategy, COALESCE(endpoint, ''), COALESCE(config, '{}'), updated_at FROM routes WHERE service_name = ?`,
		serviceName).Scan(&r.ServiceName, &r.Strategy, &r.Endpoint, &cfgStr, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("admin: get route: %w", err)
	}
	r.Config = json.RawMessage(cfgStr)
	return &r, nil
}

// UpsertRoute inserts or replaces a route. The updated_at trigger bumps
// the row timestamp, which is what the watcher's fingerprint sees.
func (a *Admin) UpsertRoute(ctx context.Context, serviceName, strategy, endpoint string, config json.RawMessage) error {
	if config == nil {
		config = json.RawMessage(`{}`)
	}
	_, err := a.db.ExecContext(ctx,
		`INSERT INTO routes (service_name, strategy, endpoint, config)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(service_name) DO UPDATE SET
		     strategy = excluded.strategy,
		     endpoint = excluded.endpoint,
		     config   = excluded.config`,
		serviceName, strategy, endpoint, string(config))
	if err != nil {
		return fmt.Errorf("admin: upsert route: %w", err)
	}
	return nil
}

// DeleteRoute removes a route. The watcher closes the route's handler on
// the next reload.
func (a *Admin) DeleteRoute(ctx context.Context, serviceName string) error {
	result, err := a.db.ExecContext(ctx,
		`DELETE FROM routes WHERE service_name = ?`, serviceName)
	if err != nil {
		return fmt.Errorf("admin: delete route: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("admin: route %q not found", serviceName)
	}
	return nil
}

// SetStrategy rewrites only the strategy column. Setting "noop" parks a
// service without losing its endpoint or config.
func (a *Admin) SetStrategy(ctx context.Context, serviceName, strategy string) error {
	result, err := a.db.ExecContext(ctx,
		`UPDATE routes SET strategy = ? WHERE service_name = ?`,
		strategy, serviceName)
	if err != nil {
		return fmt.Errorf("admin: set strategy: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("admin: route %q not found", serviceName)
	}
	return nil
}
