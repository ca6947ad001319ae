package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// OpsServer is the inbound adapter exposing the operational endpoints
// over HTTP. It serves /healthz and /metrics and nothing else.
type OpsServer struct {
	addr     string
	logger   *slog.Logger
	registry *prometheus.Registry
	health   *HealthChecker
	metrics  *ServerMetrics
	server   *http.Server
}

// OpsOption is a functional option for configuring OpsServer.
type OpsOption func(*OpsServer)

// WithAddr sets the listen address for the ops server.
// Default is "127.0.0.1:9090" (localhost only).
func WithAddr(addr string) OpsOption {
	return func(s *OpsServer) {
		s.addr = addr
	}
}

// WithLogger sets the logger for the ops server.
func WithLogger(logger *slog.Logger) OpsOption {
	return func(s *OpsServer) {
		s.logger = logger
	}
}

// WithRegistry sets the Prometheus registry exposed on /metrics.
// Callers that register their own collectors (check counters, queue
// depth gauges) pass the shared registry here. The server adds its
// request metrics either way; Go runtime collectors are only added to
// a self-created registry so a shared one is not registered twice.
func WithRegistry(reg *prometheus.Registry) OpsOption {
	return func(s *OpsServer) {
		s.registry = reg
	}
}

// WithHealthChecker sets the health checker behind /healthz.
func WithHealthChecker(hc *HealthChecker) OpsOption {
	return func(s *OpsServer) {
		s.health = hc
	}
}

// NewOpsServer creates an ops server with the given options.
func NewOpsServer(opts ...OpsOption) *OpsServer {
	s := &OpsServer{
		addr:   "127.0.0.1:9090",
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start begins serving the operational endpoints. It blocks until the
// context is cancelled or the listener fails.
func (s *OpsServer) Start(ctx context.Context) error {
	reg := s.registry
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	s.server = &http.Server{
		Addr:    s.addr,
		Handler: s.routes(reg),
	}

	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("starting ops server", "addr", s.addr)
		err := s.server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, shutting down ops server")
		return s.shutdown()
	case err := <-errCh:
		return err
	}
}

// routes assembles the mux and middleware chain.
// Middleware order (outermost first):
// 1. MetricsMiddleware - record duration and status (outermost to capture full duration)
// 2. RequestID - extract/generate request ID and enrich logger
// 3. mux - route to the endpoint handlers
func (s *OpsServer) routes(reg *prometheus.Registry) http.Handler {
	s.metrics = NewServerMetrics(reg)

	mux := http.NewServeMux()
	if s.health != nil {
		mux.Handle("/healthz", s.health.Handler())
	} else {
		// Fallback to a liveness-only handler if no checker configured
		mux.Handle("/healthz", liveHandler())
	}
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		Registry: reg,
	}))
	// Favicon handler to prevent browser 500 errors
	mux.Handle("/favicon.ico", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	mux.Handle("/", s.rejectHandler())

	var handler http.Handler = mux
	handler = RequestIDMiddleware(s.logger)(handler)
	handler = MetricsMiddleware(s.metrics)(handler)
	return handler
}

// liveHandler reports liveness only. Used when no health checker is
// configured.
func liveHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy"}` + "\n"))
	})
}

// rejectHandler answers paths outside the ops surface with 404.
// Unexpected traffic on the ops port is worth a log line: it usually
// means a misconfigured scraper or probe.
func (s *OpsServer) rejectHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		LoggerFromContext(r.Context()).Warn("unexpected request on ops listener",
			"method", r.Method,
			"path", r.URL.Path,
			"client_ip", clientIP(r),
		)
		http.NotFound(w, r)
	})
}

// shutdown performs graceful shutdown of the HTTP server.
func (s *OpsServer) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("error during ops server shutdown", "error", err)
		return err
	}

	s.logger.Info("ops server shutdown complete")
	return nil
}

// Close gracefully shuts down the server.
func (s *OpsServer) Close() error {
	if s.server == nil {
		return nil
	}
	return s.shutdown()
}
