// Package kit provides transport-agnostic endpoint plumbing: a typed
// request/response function shape, middleware composition, and adapters
// that expose an Endpoint over MCP.
package kit

import "context"

// Endpoint is a transport-agnostic service function: typed request in,
// typed response out. HTTP handlers and MCP tools both adapt to it.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware wraps an Endpoint, adding cross-cutting behaviour without
// changing the signature.
type Middleware func(next Endpoint) Endpoint

// Chain composes middlewares left-to-right: the first middleware in the
// slice is the outermost wrapper (executed first on the request path).
func Chain(mws ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}
