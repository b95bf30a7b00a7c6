// Package httpserver serves the /metrics and /healthz endpoints shieldnode
// exposes alongside the reorg driver, following the familiar
// module/metrics.Server shape but routed through gorilla/mux instead of a
// bare http.ServeMux.
package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Server serves /metrics (Prometheus) and /healthz (plain 200-if-ready).
type Server struct {
	server *http.Server
	log    zerolog.Logger
}

// HealthFunc reports whether the node is ready to serve traffic.
type HealthFunc func() bool

// New builds a Server bound to addr. health is polled on every /healthz
// request; a nil health always reports ready.
func New(log zerolog.Logger, addr string, health HealthFunc) *Server {
	if health == nil {
		health = func() bool { return true }
	}

	router := mux.NewRouter().StrictSlash(true)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if !health() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)

	return &Server{
		server: &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
		},
		log: log.With().Str("component", "httpserver").Logger(),
	}
}

// Serve starts listening in the background and returns immediately.
func (s *Server) Serve() {
	s.log.Info().Str("address", s.server.Addr).Msg("http server started")
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("http server exited")
		}
	}()
}

// Shutdown gracefully stops the server, waiting up to 5 seconds.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}
