// Package http serves the operational endpoints of the security core.
//
// This is an observability surface, not a security one: it exposes
// health and metrics and never carries check or token operations. The
// listener defaults to localhost; exposing it further is an explicit
// configuration choice.
//
// # Usage
//
// Create and start the server:
//
//	srv := http.NewOpsServer(
//	    http.WithAddr("127.0.0.1:9090"),
//	    http.WithRegistry(registry),
//	    http.WithHealthChecker(checker),
//	    http.WithLogger(logger),
//	)
//	err := srv.Start(ctx)
//
// Start blocks until the context is cancelled or the listener fails,
// and shuts down gracefully on cancellation.
//
// # Endpoints
//
//	GET /healthz - component health as JSON; 503 when the audit queue
//	               is over 90% full
//	GET /metrics - Prometheus exposition for the configured registry
//
// Any other path is answered with 404 and logged, since unexpected
// traffic on the ops port usually means a misconfigured scraper or
// probe.
//
// # Middleware Chain
//
// Requests pass through middleware in this order:
//
//  1. MetricsMiddleware - records duration and status (outermost, so
//     the full handling time is captured)
//  2. RequestIDMiddleware - extracts or generates X-Request-ID and
//     enriches the logger
//  3. mux - routes to the endpoint handlers
package http
