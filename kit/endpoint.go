// Package kit holds the transport-agnostic plumbing shared by the HTTP and
// MCP surfaces: the endpoint shape, middleware chaining, request-scoped
// context values, and MCP tool registration.
package kit

import "context"

// Endpoint is the transport-agnostic handler shape. Both surfaces decode
// into a typed request, call an Endpoint, and encode the response their own
// way.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware wraps an Endpoint.
type Middleware func(Endpoint) Endpoint

// Chain composes middlewares so the first argument is the outermost wrapper.
func Chain(mws ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}
