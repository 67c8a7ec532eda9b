// Package middleware provides the HTTP middleware stack for the query API:
// request logging, correlation-id stamping, and CORS.
package middleware

import "net/http"

// Chain applies middleware to a handler in declaration order: the first
// middleware passed wraps outermost.
func Chain(handler http.Handler, stack ...func(http.Handler) http.Handler) http.Handler {
	for i := len(stack) - 1; i >= 0; i-- {
		handler = stack[i](handler)
	}
	return handler
}
