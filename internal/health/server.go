package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kiwivoice/kiwi/internal/observe"
)

// ServerConfig configures the admin [Server].
type ServerConfig struct {
	// Addr is the listen address, e.g. "127.0.0.1:9090".
	Addr string

	// Checkers feed /readyz.
	Checkers []Checker

	// Stats feeds /statusz. Optional.
	Stats StatsSource

	// Metrics instruments the admin routes themselves. Optional.
	Metrics *observe.Metrics

	Logger *slog.Logger
}

// Server is the admin HTTP listener. It serves the probe endpoints, the
// statistics dump, and the Prometheus scrape endpoint, and shuts down
// gracefully.
type Server struct {
	srv *http.Server
	log *slog.Logger
}

// NewServer builds the admin server. Call [Server.Start] to begin serving.
func NewServer(cfg ServerConfig) *Server {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "health")

	mux := http.NewServeMux()
	New(cfg.Checkers...).Register(mux)
	mux.HandleFunc("GET /statusz", Statusz(cfg.Stats))
	mux.Handle("GET /metrics", promhttp.Handler())

	var handler http.Handler = mux
	if cfg.Metrics != nil {
		handler = observe.Middleware(cfg.Metrics)(mux)
	}

	return &Server{
		srv: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: log,
	}
}

// Start begins serving in a background goroutine. Listen errors other than
// graceful shutdown are logged; the voice pipeline keeps running without its
// admin surface.
func (s *Server) Start() {
	s.log.Info("admin server listening", "addr", s.srv.Addr)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("admin server failed", "error", err)
		}
	}()
}

// Shutdown stops the server, waiting for in-flight requests up to the
// context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("health: shutdown: %w", err)
	}
	return nil
}
