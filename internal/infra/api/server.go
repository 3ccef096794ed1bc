package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"momo-subscription/internal/config"
	"momo-subscription/internal/infra/api/apiv1"
)

// Server hosts the public API, the admin routes, health and metrics.
type Server struct {
	srv *http.Server
	log *zerolog.Logger
}

// NewRouter builds the full handler tree. It is separate from NewServer so
// tests can drive it with httptest.
func NewRouter(cfg config.HTTPConfig, v1 *apiv1.Server, auth *AdminAuth, logger *zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	var guard apiv1.Guard
	if auth != nil && auth.Enabled() {
		guard = auth.Guard
	}
	apiv1.RegisterAPIV1(r, v1, guard)

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return Chain(r, TraceID(logger), RequestLog(logger), Recover(logger), Timeout(timeout))
}

func NewServer(cfg config.HTTPConfig, handler http.Handler, logger *zerolog.Logger) *Server {
	l := logger.With().Str("component", "http").Logger()
	return &Server{
		srv: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: &l,
	}
}

// Start blocks until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.srv.Addr).Msg("HTTP server listening")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
