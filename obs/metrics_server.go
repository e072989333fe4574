// Package obs provides the merge engine's optional debug/metrics HTTP
// surface: expvar counters, net/http/pprof profiling endpoints, and a
// statsviz live dashboard, grounded on the teacher's
// server/metric_server.go and server/metrics.go (§10).
package obs

import (
	"context"
	"expvar"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"sync"
	"time"

	"github.com/arl/statsviz"
	"github.com/columnardb/o3engine/config"
)

// MetricsServer hosts the debug HTTP surface described by a
// config.DebugConfig: pprof profiling, an expvar /metrics endpoint
// (which, among other variables, exposes o3merge's CopyCalls/
// CountDownCalls counters and its QueueDepth gauge; there is no
// active-partition gauge), and a statsviz live dashboard.
type MetricsServer struct {
	server  *http.Server
	logger  *slog.Logger
	started bool
	mu      sync.Mutex
}

// NewMetricsServer builds a MetricsServer from cfg. It does not start
// listening until Start is called.
func NewMetricsServer(cfg config.DebugConfig, logger *slog.Logger) *MetricsServer {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "MetricsServer")
	mux := http.NewServeMux()

	if cfg.PProfEnabled {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
		logger.Info("pprof profiling endpoints enabled on /debug/pprof")
	}

	if cfg.MetricsEnabled {
		mux.Handle("/metrics", expvar.Handler())
		logger.Info("expvar metrics endpoint enabled on /metrics")

		if cfg.MonitorUIEnabled {
			_ = statsviz.Register(mux,
				statsviz.Root("/viz"),
				statsviz.SendFrequency(250*time.Millisecond),
			)
			logger.Info("statsviz live dashboard available at /viz")
		}
	}

	addr := cfg.ListenAddress
	if addr == "" {
		addr = ":6060"
	}

	return &MetricsServer{
		server: &http.Server{Addr: addr, Handler: mux},
		logger: logger,
	}
}

// Start listens and serves until Stop is called. It is a blocking
// call; run it in its own goroutine.
func (s *MetricsServer) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	s.logger.Info("metrics server listening", "address", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.logger.Error("metrics server failed", "error", err)
		return fmt.Errorf("failed to start metrics server: %w", err)
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *MetricsServer) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("metrics server shutdown failed", "error", err)
	} else {
		s.logger.Info("metrics server stopped gracefully")
	}
}
